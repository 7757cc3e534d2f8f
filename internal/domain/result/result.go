package result

import (
	"math"
	"sort"

	"github.com/kailas-cloud/docstore/internal/domain"
)

// DefaultPageSize applies when a paginated query sets no limit.
const DefaultPageSize = 32

// Page is one window of a paginated read.
type Page struct {
	Total    int               `json:"total"`
	Items    []domain.Document `json:"items"`
	Page     int               `json:"page"`
	Pages    int               `json:"pages"`
	PageSize int               `json:"page_size"`
}

// NewPage assembles a page from the total, the window items and the window bounds.
func NewPage(total int, items []domain.Document, offset, limit int) Page {
	if items == nil {
		items = []domain.Document{}
	}
	return Page{
		Total:    total,
		Items:    items,
		Page:     PageNumber(offset, limit),
		Pages:    PageCount(total, limit),
		PageSize: limit,
	}
}

// PageNumber is the 1-based page that starts at offset.
func PageNumber(offset, limit int) int {
	if limit <= 0 {
		return 1
	}
	return offset/limit + 1
}

// PageCount is ceil(total / limit).
func PageCount(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// GroupSum is one row of a grouped sum.
type GroupSum struct {
	Group      any     `json:"group"`
	ValueField string  `json:"value_field"`
	Total      float64 `json:"total"`
	Count      int     `json:"count"`
}

// Median of values. The slice is sorted in place. NaN when empty.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// NearestRank is the index ceil(p/100*n)-1 clamped to [0, n-1].
func NearestRank(n int, p float64) int {
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		return 0
	}
	if idx > n-1 {
		return n - 1
	}
	return idx
}

// Percentile is the nearest-rank p-th percentile. The slice is sorted in place. NaN when empty.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sort.Float64s(values)
	return values[NearestRank(len(values), p)]
}
