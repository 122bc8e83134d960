package rating

// Tuple is one book's ratings as fed to the comparison.
type Tuple struct {
	Bayesian float64
	Official float64
	Simple   float64
	Book     string
}

// Comparison holds the site's top book against the one our ratings rank first.
type Comparison struct {
	OfficialTop   Tuple
	CalculatedTop Tuple
	// Sorted is ascending by Bayesian rating.
	Sorted []Tuple
}

// Agree reports whether both rankings put the same book on top.
func (c Comparison) Agree() bool {
	return c.OfficialTop.Book == c.CalculatedTop.Book
}

// Sort orders rows ascending by Bayesian rating in place. It is a
// partition-exchange sort that pivots on the leftmost element of each range.
// The order of equal keys is not preserved.
func Sort(rows []Tuple) {
	quicksort(rows, 0, len(rows)-1)
}

func quicksort(rows []Tuple, lo, hi int) {
	for lo < hi {
		mid := partition(rows, lo, hi)
		// Recurse into the smaller side.
		if mid-lo < hi-mid {
			quicksort(rows, lo, mid-1)
			lo = mid + 1
		} else {
			quicksort(rows, mid+1, hi)
			hi = mid - 1
		}
	}
}

// partition places rows[lo] at its final position and returns that index.
func partition(rows []Tuple, lo, hi int) int {
	pivot := rows[lo].Bayesian
	p, q := lo+1, hi
	for {
		for p <= q && rows[p].Bayesian <= pivot {
			p++
		}
		for p <= q && rows[q].Bayesian >= pivot {
			q--
		}
		if p > q {
			break
		}
		rows[p], rows[q] = rows[q], rows[p]
		p++
		q--
	}
	rows[lo], rows[q] = rows[q], rows[lo]
	return q
}

// Compare sorts a copy of tuples and picks the calculated top book. official
// is the site's top book and need not be among tuples when it could not be rated.
func Compare(official Tuple, tuples []Tuple) (Comparison, error) {
	if len(tuples) == 0 {
		return Comparison{}, ErrNoReviews
	}
	sorted := make([]Tuple, len(tuples))
	copy(sorted, tuples)
	Sort(sorted)

	return Comparison{
		OfficialTop:   official,
		CalculatedTop: sorted[len(sorted)-1],
		Sorted:        sorted,
	}, nil
}
