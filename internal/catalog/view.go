package catalog

import (
	"context"

	"admin-console/internal/apiclient"
	"admin-console/internal/odata"
	"admin-console/internal/table"
)

// SortView is the active ordering
type SortView struct {
	Field     string          `json:"field"`
	Direction odata.Direction `json:"direction"`
}

// View is the JSON shape of a table snapshot
type View struct {
	Entity     string            `json:"entity"`
	State      table.State       `json:"state"`
	Rows       any               `json:"rows"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalCount int               `json:"totalCount"`
	TotalPages int               `json:"totalPages"`
	Summary    string            `json:"summary"`
	Filters    map[string]string `json:"filters"`
	Sort       *SortView         `json:"sort,omitempty"`
	Error      string            `json:"error,omitempty"`
	Retryable  bool              `json:"retryable"`
	RetryURL   string            `json:"retryUrl,omitempty"`
}

func viewOf[T any](s table.Snapshot[T]) View {
	v := View{
		Entity:     s.Name,
		State:      s.State,
		Rows:       s.Rows,
		Page:       s.Page,
		PageSize:   s.PageSize,
		TotalCount: s.TotalCount,
		TotalPages: s.TotalPages(),
		Summary:    s.Summary(),
		Filters:    s.Filters,
		Retryable:  s.Retryable(),
	}
	if s.Sort != nil {
		v.Sort = &SortView{Field: s.Sort.Field, Direction: s.Sort.Direction}
	}
	if s.Err != nil {
		v.Error = ErrorMessage(s.Err)
	}
	return v
}

// ErrorMessage is the text shown for a failure. Backend errors show the
// backend's message.
func ErrorMessage(err error) string {
	if apiErr, ok := apiclient.AsError(err); ok {
		return apiErr.Message
	}
	return err.Error()
}

type entityTable[T any] struct {
	ctrl *table.Controller[T]
}

func (t entityTable[T]) Name() string { return t.ctrl.Name() }

func (t entityTable[T]) View() View { return viewOf(t.ctrl.Snapshot()) }

func (t entityTable[T]) EnsureLoaded(ctx context.Context) (View, error) {
	return wrap(t.ctrl.EnsureLoaded(ctx))
}

func (t entityTable[T]) SetFilter(ctx context.Context, name, value string) (View, error) {
	return wrap(t.ctrl.SetFilter(ctx, name, value))
}

func (t entityTable[T]) ClearFilters(ctx context.Context) (View, error) {
	return wrap(t.ctrl.ClearFilters(ctx))
}

func (t entityTable[T]) SetSort(ctx context.Context, field string, dir odata.Direction) (View, error) {
	return wrap(t.ctrl.SetSort(ctx, field, dir))
}

func (t entityTable[T]) SetPage(ctx context.Context, n int) (View, error) {
	return wrap(t.ctrl.SetPage(ctx, n))
}

func (t entityTable[T]) SetPageSize(ctx context.Context, size int) (View, error) {
	return wrap(t.ctrl.SetPageSize(ctx, size))
}

func (t entityTable[T]) Retry(ctx context.Context) (View, error) {
	return wrap(t.ctrl.Retry(ctx))
}

func wrap[T any](s table.Snapshot[T], err error) (View, error) {
	return viewOf(s), err
}
