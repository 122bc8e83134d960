package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for scraping and orchestration.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	PagesTotal      prometheus.Counter
	ReviewsTotal    prometheus.Counter
	BooksTotal      *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goodreads_requests_total",
			Help: "Total HTTP requests issued, by kind (catalog, first_page, next_page).",
		},
		[]string{"kind"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "goodreads_request_duration_seconds",
			Help:    "HTTP request latency including the wait for review content.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "goodreads_review_pages_total",
			Help: "Total number of review pages consumed.",
		},
	)
	reviews := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "goodreads_reviews_total",
			Help: "Total number of rated reviews collected.",
		},
	)
	books := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goodreads_books_total",
			Help: "Books finished by outcome (done, fresh_skip, forced_skip).",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "goodreads_book_retries_total",
			Help: "Total number of book retries after a transient failure.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goodreads_errors_total",
			Help: "Total number of scrape errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, pages, reviews, books, retries, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		PagesTotal:      pages,
		ReviewsTotal:    reviews,
		BooksTotal:      books,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the requests counter for a request kind.
func (m *Metrics) IncRequest(kind string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(kind).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddPage records one consumed review page and its review count.
func (m *Metrics) AddPage(reviews int) {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
	m.ReviewsTotal.Add(float64(reviews))
}

// IncBook records a finished book.
func (m *Metrics) IncBook(outcome string) {
	if m == nil {
		return
	}
	m.BooksTotal.WithLabelValues(outcome).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
