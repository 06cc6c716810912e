package table

import (
	"fmt"

	"admin-console/internal/odata"
)

// Snapshot is a point-in-time copy of a controller's state
type Snapshot[T any] struct {
	Name       string
	State      State
	Rows       []T
	Page       int
	PageSize   int
	TotalCount int
	Filters    map[string]string
	Sort       *odata.OrderBy
	Err        error
	Seq        uint64
}

// TotalPages is ceil(TotalCount / PageSize)
func (s Snapshot[T]) TotalPages() int {
	return odata.TotalPages(s.TotalCount, s.PageSize)
}

// Retryable is true when the last fetch failed
func (s Snapshot[T]) Retryable() bool {
	return s.State == Errored
}

// From is the 1-based position of the first row on the page, 0 when the page
// holds nothing
func (s Snapshot[T]) From() int {
	if s.offPage() {
		return 0
	}
	return (s.Page-1)*s.PageSize + 1
}

// To is the position of the last row on the page
func (s Snapshot[T]) To() int {
	if s.offPage() {
		return 0
	}
	return min(s.Page*s.PageSize, s.TotalCount)
}

func (s Snapshot[T]) offPage() bool {
	return s.TotalCount == 0 || (s.Page-1)*s.PageSize >= s.TotalCount
}

// Summary renders "Showing 1 to 10 of 23"
func (s Snapshot[T]) Summary() string {
	return fmt.Sprintf("Showing %d to %d of %d", s.From(), s.To(), s.TotalCount)
}
