package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/gocolly/colly/v2"
)

var (
	ajaxTargetRe = regexp.MustCompile(`Ajax\.Request\(\s*['"]([^'"]+)['"]`)
	updateRe     = regexp.MustCompile(`(?s)Element\.update\(\s*["']reviews["']\s*,\s*"((?:[^"\\]|\\.)*)"\s*\)`)
	jsUnescaper  = strings.NewReplacer(`\/`, `/`, `\'`, `'`)
)

// Page is one step of a book's review pagination.
type Page struct {
	HasNext bool
	Content []byte
	Label   string
}

// PageFetcher loads the review pages of one book at a time.
type PageFetcher interface {
	// FirstPage loads the book page and returns its review block. ok is false
	// when the page has no review block. reset discards the current session.
	FirstPage(ctx context.Context, bookURL string, reset bool) (content []byte, ok bool, err error)
	// NextPage follows the "next" control of the current review page.
	NextPage(ctx context.Context, bookURL string) (Page, error)
	Close() error
}

// Option customises fetchers built by this package.
type Option func(*options)

type options struct {
	transport http.RoundTripper
	metrics   *Metrics
	logger    *slog.Logger
}

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithMetrics records requests on m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Fetcher is the colly-backed PageFetcher. It owns at most one Session, which
// is replaced whenever FirstPage is called with reset.
type Fetcher struct {
	cfg     *config.Config
	opts    options
	session *Session
}

var _ PageFetcher = (*Fetcher)(nil)

// NewFetcher builds a fetcher for cfg.
func NewFetcher(cfg *config.Config, opts ...Option) (*Fetcher, error) {
	if _, err := parseBase(cfg.BaseURL); err != nil {
		return nil, err
	}
	return &Fetcher{cfg: cfg, opts: buildOptions(opts)}, nil
}

// FirstPage implements PageFetcher.
func (f *Fetcher) FirstPage(ctx context.Context, bookURL string, reset bool) ([]byte, bool, error) {
	if reset || f.session == nil {
		if err := f.Close(); err != nil {
			return nil, false, err
		}
		session, err := newSession(f.cfg, f.opts)
		if err != nil {
			return nil, false, err
		}
		f.session = session
		f.opts.logger.Debug("created review session", slog.String("url", bookURL))
	}
	return f.session.loadBook(ctx, bookURL)
}

// NextPage implements PageFetcher.
func (f *Fetcher) NextPage(ctx context.Context, bookURL string) (Page, error) {
	if f.session == nil || f.session.current == nil {
		if _, _, err := f.FirstPage(ctx, bookURL, true); err != nil {
			return Page{}, err
		}
	}
	return f.session.next(ctx, bookURL)
}

// Close tears down the current session.
func (f *Fetcher) Close() error {
	if f.session != nil {
		f.session.close()
		f.session = nil
	}
	return nil
}

// Session is one browsing session: a collector with its own cookie jar and the
// review document currently on screen.
type Session struct {
	cfg       *config.Config
	collector *colly.Collector
	metrics   *Metrics
	logger    *slog.Logger
	current   *goquery.Document

	kind       string
	lastBody   []byte
	lastStatus int
	lastErr    error
}

func newSession(cfg *config.Config, opts options) (*Session, error) {
	base, err := parseBase(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(base.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	if opts.transport != nil {
		collector.WithTransport(opts.transport)
	} else {
		collector.WithTransport(&http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		})
	}
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	s := &Session{
		cfg:       cfg,
		collector: collector,
		metrics:   opts.metrics,
		logger:    opts.logger,
	}

	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		s.metrics.IncRequest(s.kind)
	})
	collector.OnResponse(func(r *colly.Response) {
		s.lastStatus = r.StatusCode
		s.lastBody = r.Body
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			s.metrics.ObserveDuration(time.Since(start))
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			s.lastStatus = r.StatusCode
		}
		s.lastErr = err
	})

	return s, nil
}

// fetch performs one blocking request bounded by timeout.
func (s *Session) fetch(ctx context.Context, kind, target string, timeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.kind = kind
	s.lastBody, s.lastStatus, s.lastErr = nil, 0, nil
	s.collector.SetRequestTimeout(timeout)

	err := s.collector.Visit(target)
	if err == nil {
		err = s.lastErr
	}
	if err != nil || s.lastStatus >= http.StatusBadRequest {
		classified := classifyError(err, s.lastStatus)
		s.metrics.IncError(ErrorTypeLabel(classified))
		s.logger.Debug("request failed",
			slog.String("kind", kind),
			slog.String("url", target),
			slog.Int("status", s.lastStatus),
			slog.Any("error", classified),
		)
		return nil, fmt.Errorf("%s %s: %w", kind, target, classified)
	}
	return s.lastBody, nil
}

func (s *Session) loadBook(ctx context.Context, bookURL string) ([]byte, bool, error) {
	body, err := s.fetch(ctx, "first_page", bookURL, s.cfg.Timeout)
	if err != nil {
		return nil, false, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("parse book page: %w", err)
	}
	s.current = doc

	reviews := doc.Find("#bookReviews").First()
	if reviews.Length() == 0 {
		return nil, false, nil
	}
	html, err := goquery.OuterHtml(reviews)
	if err != nil {
		return nil, false, fmt.Errorf("render review block: %w", err)
	}
	return []byte(html), true, nil
}

// next clicks the next-page control of the current document and waits, up to
// ContentWait, for the review list to be replaced.
func (s *Session) next(ctx context.Context, bookURL string) (Page, error) {
	control := s.current.Find(".next_page").First()
	if control.Length() == 0 || goquery.NodeName(control) != "a" {
		return Page{HasNext: false}, nil
	}

	target, ok := navigationTarget(control)
	if !ok {
		return Page{}, fmt.Errorf("next control without a target: %w", ErrNoSuchPage)
	}
	resolved, err := resolveAgainst(bookURL, target)
	if err != nil {
		return Page{}, fmt.Errorf("resolve next page %q: %w", target, ErrNoSuchPage)
	}

	body, err := s.fetch(ctx, "next_page", resolved, s.cfg.ContentWait)
	if err != nil {
		return Page{}, err
	}

	fragment, updated := reviewUpdate(body)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fragment))
	if err != nil {
		return Page{}, fmt.Errorf("parse review update: %w", err)
	}
	if !updated && doc.Find("#bookReviews, #reviews, div.friendReviews").Length() == 0 {
		return Page{}, fmt.Errorf("review list missing from %s: %w", resolved, ErrNoSuchPage)
	}
	s.current = doc

	return Page{
		HasNext: true,
		Content: fragment,
		Label:   strings.TrimSpace(doc.Find(".current").First().Text()),
	}, nil
}

func (s *Session) close() {
	s.current = nil
	s.collector = nil
}

// navigationTarget prefers the Ajax.Request target of onclick over href.
func navigationTarget(control *goquery.Selection) (string, bool) {
	if onclick, ok := control.Attr("onclick"); ok {
		if m := ajaxTargetRe.FindStringSubmatch(onclick); m != nil {
			return m[1], true
		}
	}
	href := strings.TrimSpace(control.AttrOr("href", ""))
	if href == "" || href == "#" {
		return "", false
	}
	return href, true
}

// reviewUpdate unwraps an Element.update("reviews", "...") script response.
// Plain HTML bodies are returned unchanged with updated set to false.
func reviewUpdate(body []byte) ([]byte, bool) {
	m := updateRe.FindSubmatch(body)
	if m == nil {
		return body, false
	}
	raw := jsUnescaper.Replace(string(m[1]))
	unquoted, err := strconv.Unquote(`"` + raw + `"`)
	if err != nil {
		return []byte(raw), true
	}
	return []byte(unquoted), true
}

func resolveAgainst(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func parseBase(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	return parsed, nil
}
