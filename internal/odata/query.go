// Package odata builds the OData query strings the course backend accepts on
// its list endpoints ($filter, $top, $skip, $orderby, $count).
package odata

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidParams is returned when page, page size or ordering are out of range
var ErrInvalidParams = errors.New("invalid query params")

// Operator is a filter comparison
type Operator string

const (
	Eq       Operator = "eq"
	Ge       Operator = "ge"
	Le       Operator = "le"
	Contains Operator = "contains"
)

// Direction is a sort direction
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts "asc"/"desc" in any case; empty means ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	default:
		return "", fmt.Errorf("%w: unknown sort direction %q", ErrInvalidParams, s)
	}
}

// Raw is a literal written into the filter verbatim, e.g. an OData datetime.
type Raw string

// Expr is a single filter expression
type Expr interface {
	render() string
}

// Filter compares one field against a value. Value may be a string, any
// integer or float, bool, time.Time or Raw.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

func (f Filter) render() string {
	if f.Op == Contains {
		return fmt.Sprintf("contains(%s,%s)", f.Field, literal(fmt.Sprint(f.Value)))
	}
	return fmt.Sprintf("%s %s %s", f.Field, f.Op, literal(f.Value))
}

// AnyOf matches when any of its expressions match. Rendered in parentheses;
// an empty group renders nothing and is left out of the filter.
type AnyOf []Expr

func (a AnyOf) render() string {
	parts := make([]string, 0, len(a))
	for _, e := range a {
		if r := e.render(); r != "" {
			parts = append(parts, r)
		}
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

// OrderBy sorts results by one field
type OrderBy struct {
	Field     string
	Direction Direction
}

// Params is everything a list request needs
type Params struct {
	Filters  []Expr
	OrderBy  *OrderBy
	Page     int
	PageSize int
}

// Validate enforces page >= 1 and pageSize > 0
func (p Params) Validate() error {
	if p.Page < 1 {
		return fmt.Errorf("%w: page must be >= 1, got %d", ErrInvalidParams, p.Page)
	}
	if p.PageSize < 1 {
		return fmt.Errorf("%w: page size must be > 0, got %d", ErrInvalidParams, p.PageSize)
	}
	if p.OrderBy != nil {
		if p.OrderBy.Field == "" {
			return fmt.Errorf("%w: empty order by field", ErrInvalidParams)
		}
		if p.OrderBy.Direction != Asc && p.OrderBy.Direction != Desc {
			return fmt.Errorf("%w: unknown sort direction %q", ErrInvalidParams, p.OrderBy.Direction)
		}
	}
	return nil
}

// Skip is the number of rows before the requested page
func (p Params) Skip() int {
	return (p.Page - 1) * p.PageSize
}

// TotalPages is ceil(totalCount / pageSize)
func TotalPages(totalCount, pageSize int) int {
	if pageSize <= 0 || totalCount <= 0 {
		return 0
	}
	return int(math.Ceil(float64(totalCount) / float64(pageSize)))
}

type option struct {
	key   string
	value string
}

// Query is a built OData query. The zero value is empty.
type Query struct {
	options []option
}

// Build translates params to a query. It is pure: the same params always yield
// the same query.
func Build(p Params) (Query, error) {
	if err := p.Validate(); err != nil {
		return Query{}, err
	}

	var q Query
	parts := make([]string, 0, len(p.Filters))
	for _, f := range p.Filters {
		if r := f.render(); r != "" {
			parts = append(parts, r)
		}
	}
	if len(parts) > 0 {
		q.options = append(q.options, option{"$filter", strings.Join(parts, " and ")})
	}

	q.options = append(q.options,
		option{"$top", strconv.Itoa(p.PageSize)},
		option{"$skip", strconv.Itoa(p.Skip())},
		option{"$count", "true"},
	)

	if p.OrderBy != nil {
		q.options = append(q.options, option{"$orderby", fmt.Sprintf("%s %s", p.OrderBy.Field, p.OrderBy.Direction)})
	}

	return q, nil
}

// String returns the readable form, e.g.
// $filter=contains(Title,'go')&$top=10&$skip=0&$count=true
func (q Query) String() string {
	parts := make([]string, 0, len(q.options))
	for _, o := range q.options {
		parts = append(parts, o.key+"="+o.value)
	}
	return strings.Join(parts, "&")
}

// Encode returns the wire form with each value percent-encoded.
func (q Query) Encode() string {
	parts := make([]string, 0, len(q.options))
	for _, o := range q.options {
		parts = append(parts, o.key+"="+escape(o.value))
	}
	return strings.Join(parts, "&")
}

// Get returns the value of one system query option
func (q Query) Get(key string) (string, bool) {
	for _, o := range q.options {
		if o.key == key {
			return o.value, true
		}
	}
	return "", false
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// literal renders a value the way OData expects it in a $filter.
// Strings are quoted with embedded quotes doubled.
func literal(v any) string {
	switch x := v.(type) {
	case Raw:
		return string(x)
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return literal(x.String())
	default:
		return literal(fmt.Sprint(x))
	}
}
