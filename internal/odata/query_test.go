package odata

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
)

func mustBuild(t *testing.T, p Params) Query {
	t.Helper()
	q, err := Build(p)
	if err != nil {
		t.Fatalf("Build(%+v) error: %v", p, err)
	}
	return q
}

func TestBuild_Pagination(t *testing.T) {
	q := mustBuild(t, Params{Page: 2, PageSize: 10})

	if got := q.String(); got != "$top=10&$skip=10&$count=true" {
		t.Errorf("Unexpected query %q", got)
	}
}

func TestBuild_SkipFormula(t *testing.T) {
	for page := 1; page <= 5; page++ {
		for _, size := range []int{1, 7, 10, 25} {
			q := mustBuild(t, Params{Page: page, PageSize: size})
			skip, _ := q.Get("$skip")
			want := (page - 1) * size
			if skip != strconv.Itoa(want) {
				t.Errorf("page=%d size=%d: $skip=%s, want %d", page, size, skip, want)
			}
			if count, ok := q.Get("$count"); !ok || count != "true" {
				t.Errorf("page=%d size=%d: missing $count=true", page, size)
			}
		}
	}
}

func TestBuild_ContainsFilter(t *testing.T) {
	q := mustBuild(t, Params{
		Filters:  []Expr{Filter{Field: "Title", Op: Contains, Value: "abc"}},
		Page:     1,
		PageSize: 10,
	})

	if !strings.Contains(q.String(), "contains(Title,'abc')") {
		t.Errorf("Expected contains filter, got %q", q.String())
	}
}

func TestBuild_FullCourseQuery(t *testing.T) {
	q := mustBuild(t, Params{
		Filters: []Expr{
			Filter{Field: "Title", Op: Contains, Value: "go"},
			Filter{Field: "CategoryId", Op: Eq, Value: 3},
			Filter{Field: "Level", Op: Eq, Value: "Beginner"},
		},
		OrderBy:  &OrderBy{Field: "Price", Direction: Desc},
		Page:     1,
		PageSize: 20,
	})

	want := "$filter=contains(Title,'go') and CategoryId eq 3 and Level eq 'Beginner'&$top=20&$skip=0&$count=true&$orderby=Price desc"
	if got := q.String(); got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestBuild_AnyOfAndDates(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	q := mustBuild(t, Params{
		Filters: []Expr{
			AnyOf{
				Filter{Field: "FirstName", Op: Contains, Value: "ann"},
				Filter{Field: "LastName", Op: Contains, Value: "ann"},
			},
			Filter{Field: "PaymentDate", Op: Ge, Value: from},
			Filter{Field: "PaymentDate", Op: Le, Value: Raw("2024-03-31T23:59:59Z")},
		},
		Page:     1,
		PageSize: 10,
	})

	filter, _ := q.Get("$filter")
	want := "(contains(FirstName,'ann') or contains(LastName,'ann')) and PaymentDate ge 2024-03-01T00:00:00Z and PaymentDate le 2024-03-31T23:59:59Z"
	if filter != want {
		t.Errorf("got  %q\nwant %q", filter, want)
	}
}

func TestBuild_SkipsEmptyGroups(t *testing.T) {
	q := mustBuild(t, Params{Filters: []Expr{AnyOf{}}, Page: 1, PageSize: 10})
	if _, ok := q.Get("$filter"); ok {
		t.Errorf("Expected no $filter for an empty group, got %q", q.String())
	}

	q = mustBuild(t, Params{
		Filters: []Expr{
			AnyOf{AnyOf{}},
			Filter{Field: "Level", Op: Eq, Value: "Advanced"},
			AnyOf{},
		},
		Page:     1,
		PageSize: 10,
	})
	if filter, _ := q.Get("$filter"); filter != "Level eq 'Advanced'" {
		t.Errorf("got %q, want %q", filter, "Level eq 'Advanced'")
	}
}

func TestBuild_EscapesQuotes(t *testing.T) {
	q := mustBuild(t, Params{
		Filters:  []Expr{Filter{Field: "Title", Op: Contains, Value: "O'Brien') or (1 eq 1"}},
		Page:     1,
		PageSize: 10,
	})

	filter, _ := q.Get("$filter")
	if filter != "contains(Title,'O''Brien'') or (1 eq 1')" {
		t.Errorf("Expected doubled quotes, got %q", filter)
	}
}

func TestBuild_Pure(t *testing.T) {
	p := Params{
		Filters:  []Expr{Filter{Field: "CategoryId", Op: Eq, Value: 7}},
		OrderBy:  &OrderBy{Field: "Title", Direction: Asc},
		Page:     3,
		PageSize: 5,
	}
	a := mustBuild(t, p)
	b := mustBuild(t, p)
	if a.String() != b.String() || a.Encode() != b.Encode() {
		t.Errorf("Build is not deterministic: %q vs %q", a, b)
	}
}

func TestEncode(t *testing.T) {
	q := mustBuild(t, Params{
		Filters:  []Expr{Filter{Field: "Title", Op: Contains, Value: "a&b c"}},
		OrderBy:  &OrderBy{Field: "Title", Direction: Asc},
		Page:     1,
		PageSize: 10,
	})

	got := q.Encode()
	if strings.ContainsAny(got, " '") {
		t.Errorf("Encoded query still has raw characters: %q", got)
	}
	if !strings.Contains(got, "a%26b%20c") {
		t.Errorf("Expected ampersand and space encoded, got %q", got)
	}
	if !strings.Contains(got, "$orderby=Title%20asc") {
		t.Errorf("Expected encoded orderby, got %q", got)
	}
}

func TestBuild_InvalidParams(t *testing.T) {
	bad := []Params{
		{Page: 0, PageSize: 10},
		{Page: 1, PageSize: 0},
		{Page: 1, PageSize: 10, OrderBy: &OrderBy{Field: "Title", Direction: "up"}},
		{Page: 1, PageSize: 10, OrderBy: &OrderBy{Direction: Asc}},
	}
	for _, p := range bad {
		if _, err := Build(p); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("Build(%+v) = %v, want ErrInvalidParams", p, err)
		}
	}
}

func TestParseDirection(t *testing.T) {
	if d, _ := ParseDirection("DESC"); d != Desc {
		t.Errorf("Expected desc, got %q", d)
	}
	if d, _ := ParseDirection(""); d != Asc {
		t.Errorf("Expected asc default, got %q", d)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Error("Expected error for unknown direction")
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct{ total, size, want int }{
		{23, 10, 3},
		{20, 10, 2},
		{0, 10, 0},
		{1, 10, 1},
	}
	for _, c := range cases {
		if got := TotalPages(c.total, c.size); got != c.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", c.total, c.size, got, c.want)
		}
	}
}
