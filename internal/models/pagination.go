package models

import "math"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is a normalized 1-based page request.
type Page struct {
	Number int
	Size   int
}

// NewPage clamps out of range values to the defaults instead of failing.
// Number is capped so that Offset never overflows.
func NewPage(number, size int) Page {
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if number < 1 {
		number = 1
	}
	if last := math.MaxInt / size; number > last {
		number = last
	}
	return Page{Number: number, Size: size}
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	Total       int64 `json:"-"`
	HasNext     bool  `json:"hasNext"`
	HasPrev     bool  `json:"hasPrev"`
}

// NewPagination derives every field from the same filtered total.
func NewPagination(p Page, total int64) Pagination {
	pages := int((total + int64(p.Size) - 1) / int64(p.Size))
	return Pagination{
		CurrentPage: p.Number,
		TotalPages:  pages,
		Total:       total,
		HasNext:     p.Number < pages,
		HasPrev:     p.Number > 1,
	}
}
