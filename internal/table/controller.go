// Package table implements the paginated, filterable list pattern shared by
// every entity view. A Controller holds filter/sort/page inputs, fetches the
// matching page from a Source, and exposes the result as a Snapshot.
package table

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"admin-console/internal/odata"
)

var (
	// ErrUnknownFilter is returned for a filter name the table does not define
	ErrUnknownFilter = errors.New("unknown filter")
	// ErrInvalidFilterValue is returned when a filter value cannot be interpreted
	ErrInvalidFilterValue = errors.New("invalid filter value")
	// ErrUnknownSortField is returned for a field the table cannot sort by
	ErrUnknownSortField = errors.New("unknown sort field")
	// ErrSuperseded is returned to a caller whose fetch was overtaken by a newer one
	ErrSuperseded = errors.New("fetch superseded by a newer request")
)

// State of a controller
type State string

const (
	Idle    State = "idle"
	Loading State = "loading"
	Loaded  State = "loaded"
	Errored State = "errored"
)

// Page is one page of rows plus the server-side total
type Page[T any] struct {
	Rows       []T
	TotalCount int
}

// Source fetches a page for a built query
type Source[T any] interface {
	Fetch(ctx context.Context, q odata.Query) (Page[T], error)
}

// SourceFunc adapts a function to Source
type SourceFunc[T any] func(ctx context.Context, q odata.Query) (Page[T], error)

func (f SourceFunc[T]) Fetch(ctx context.Context, q odata.Query) (Page[T], error) {
	return f(ctx, q)
}

// FilterDef maps a named UI input to a filter expression
type FilterDef struct {
	Name string
	// Build turns a non-empty input into an expression
	Build func(value string) (odata.Expr, error)
}

// Config describes one entity table
type Config struct {
	Name        string
	Filters     []FilterDef
	SortFields  []string
	DefaultSort *odata.OrderBy
	PageSize    int
}

func (c Config) filter(name string) (FilterDef, bool) {
	for _, f := range c.Filters {
		if f.Name == name {
			return f, true
		}
	}
	return FilterDef{}, false
}

// Controller is safe for concurrent use. Fetches run in the caller's
// goroutine; when callers overlap only the latest issued fetch is applied.
type Controller[T any] struct {
	cfg    Config
	source Source[T]
	logger *slog.Logger

	mu         sync.Mutex
	values     map[string]string
	exprs      map[string]odata.Expr
	sort       *odata.OrderBy
	page       int
	pageSize   int
	state      State
	rows       []T
	totalCount int
	counted    bool
	err        error
	seq        uint64
}

// New creates an idle controller
func New[T any](cfg Config, source Source[T], logger *slog.Logger) *Controller[T] {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	var sort *odata.OrderBy
	if cfg.DefaultSort != nil {
		s := *cfg.DefaultSort
		sort = &s
	}

	return &Controller[T]{
		cfg:      cfg,
		source:   source,
		logger:   logger.With("table", cfg.Name),
		values:   make(map[string]string),
		exprs:    make(map[string]odata.Expr),
		sort:     sort,
		page:     1,
		pageSize: cfg.PageSize,
		state:    Idle,
	}
}

// Name is the table's configured name
func (c *Controller[T]) Name() string {
	return c.cfg.Name
}

// EnsureLoaded fetches once if nothing has been fetched yet
func (c *Controller[T]) EnsureLoaded(ctx context.Context) (Snapshot[T], error) {
	c.mu.Lock()
	idle := c.state == Idle
	c.mu.Unlock()

	if !idle {
		return c.Snapshot(), nil
	}
	return c.fetch(ctx)
}

// Reload refetches with the current inputs
func (c *Controller[T]) Reload(ctx context.Context) (Snapshot[T], error) {
	return c.fetch(ctx)
}

// Retry refetches after a failure
func (c *Controller[T]) Retry(ctx context.Context) (Snapshot[T], error) {
	return c.fetch(ctx)
}

// SetFilter sets or, with an empty value, clears one filter and goes back to
// page 1.
func (c *Controller[T]) SetFilter(ctx context.Context, name, value string) (Snapshot[T], error) {
	def, ok := c.cfg.filter(name)
	if !ok {
		return c.Snapshot(), fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}

	var expr odata.Expr
	if value != "" {
		var err error
		expr, err = def.Build(value)
		if err != nil {
			return c.Snapshot(), fmt.Errorf("%w: %s: %v", ErrInvalidFilterValue, name, err)
		}
	}

	c.mu.Lock()
	if value == "" {
		delete(c.values, name)
		delete(c.exprs, name)
	} else {
		c.values[name] = value
		c.exprs[name] = expr
	}
	c.page = 1
	c.mu.Unlock()

	return c.fetch(ctx)
}

// ClearFilters drops every filter and goes back to page 1
func (c *Controller[T]) ClearFilters(ctx context.Context) (Snapshot[T], error) {
	c.mu.Lock()
	c.values = make(map[string]string)
	c.exprs = make(map[string]odata.Expr)
	c.page = 1
	c.mu.Unlock()

	return c.fetch(ctx)
}

// SetSort orders by field and goes back to page 1
func (c *Controller[T]) SetSort(ctx context.Context, field string, dir odata.Direction) (Snapshot[T], error) {
	if !slices.Contains(c.cfg.SortFields, field) {
		return c.Snapshot(), fmt.Errorf("%w: %q", ErrUnknownSortField, field)
	}
	if dir != odata.Asc && dir != odata.Desc {
		return c.Snapshot(), fmt.Errorf("%w: unknown sort direction %q", odata.ErrInvalidParams, dir)
	}

	c.mu.Lock()
	c.sort = &odata.OrderBy{Field: field, Direction: dir}
	c.page = 1
	c.mu.Unlock()

	return c.fetch(ctx)
}

// SetPage moves to page n. Pages outside 1..TotalPages are ignored once the
// total is known.
func (c *Controller[T]) SetPage(ctx context.Context, n int) (Snapshot[T], error) {
	c.mu.Lock()
	total := odata.TotalPages(c.totalCount, c.pageSize)
	if n < 1 || (c.counted && n > total) {
		c.mu.Unlock()
		return c.Snapshot(), nil
	}
	c.page = n
	c.mu.Unlock()

	return c.fetch(ctx)
}

// SetPageSize changes the page size and goes back to page 1
func (c *Controller[T]) SetPageSize(ctx context.Context, size int) (Snapshot[T], error) {
	if size < 1 {
		return c.Snapshot(), fmt.Errorf("%w: page size must be > 0, got %d", odata.ErrInvalidParams, size)
	}

	c.mu.Lock()
	c.pageSize = size
	c.page = 1
	c.mu.Unlock()

	return c.fetch(ctx)
}

// Mutate applies an optimistic local edit to the loaded rows. The total is
// adjusted by the change in row count and the page is pulled back inside
// 1..TotalPages. Nothing is sent to the backend; a caller that empties the
// page should Reload.
func (c *Controller[T]) Mutate(fn func(rows []T) []T) Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.rows)
	c.rows = fn(slices.Clone(c.rows))
	c.totalCount += len(c.rows) - before
	if c.totalCount < 0 {
		c.totalCount = 0
	}
	if last := max(1, odata.TotalPages(c.totalCount, c.pageSize)); c.counted && c.page > last {
		c.page = last
	}
	return c.snapshotLocked()
}

// Snapshot returns a copy of the current state
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller[T]) fetch(ctx context.Context) (Snapshot[T], error) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	params := c.paramsLocked()
	c.state = Loading
	c.mu.Unlock()

	q, err := odata.Build(params)
	var page Page[T]
	if err == nil {
		page, err = c.source.Fetch(ctx, q)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.seq {
		c.logger.Debug("Discarding stale response", "seq", seq, "latest", c.seq)
		return c.snapshotLocked(), ErrSuperseded
	}

	if err != nil {
		c.state = Errored
		c.rows = nil
		c.totalCount = 0
		c.counted = false
		c.err = err
		c.logger.Error("Failed to load table", "error", err, "query", q.String())
		return c.snapshotLocked(), err
	}

	c.state = Loaded
	c.rows = page.Rows
	c.totalCount = page.TotalCount
	c.counted = true
	c.err = nil
	c.logger.Debug("Table loaded", "query", q.String(), "rows", len(page.Rows), "total", page.TotalCount)
	return c.snapshotLocked(), nil
}

// paramsLocked builds query params with filters in definition order
func (c *Controller[T]) paramsLocked() odata.Params {
	p := odata.Params{Page: c.page, PageSize: c.pageSize}
	for _, def := range c.cfg.Filters {
		if expr, ok := c.exprs[def.Name]; ok {
			p.Filters = append(p.Filters, expr)
		}
	}
	if c.sort != nil {
		s := *c.sort
		p.OrderBy = &s
	}
	return p
}

func (c *Controller[T]) snapshotLocked() Snapshot[T] {
	filters := make(map[string]string, len(c.values))
	for k, v := range c.values {
		filters[k] = v
	}

	var sort *odata.OrderBy
	if c.sort != nil {
		s := *c.sort
		sort = &s
	}

	rows := slices.Clone(c.rows)
	if rows == nil {
		rows = []T{}
	}

	return Snapshot[T]{
		Name:       c.cfg.Name,
		State:      c.state,
		Rows:       rows,
		Page:       c.page,
		PageSize:   c.pageSize,
		TotalCount: c.totalCount,
		Filters:    filters,
		Sort:       sort,
		Err:        c.err,
		Seq:        c.seq,
	}
}
