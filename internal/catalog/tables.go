package catalog

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"admin-console/internal/odata"
	"admin-console/internal/table"
)

// Entity names as they appear in console routes
const (
	EntityCategories    = "categories"
	EntityUsers         = "users"
	EntityCourses       = "courses"
	EntityConfirmations = "confirmations"
	EntityPayments      = "payments"
)

// Backend list endpoints
const (
	categoriesEndpoint    = "/odata/categoryOData"
	usersEndpoint         = "/odata/userOData"
	coursesEndpoint       = "/odata/courseodata"
	confirmationsEndpoint = "/odata/instructorconfirmationodata"
	paymentsEndpoint      = "/odata/paymentodata"
)

const dateLayout = "2006-01-02"

func contains(field string) func(string) (odata.Expr, error) {
	return func(v string) (odata.Expr, error) {
		return odata.Filter{Field: field, Op: odata.Contains, Value: v}, nil
	}
}

func categoriesConfig(pageSize int) table.Config {
	return table.Config{
		Name:       EntityCategories,
		Filters:    []table.FilterDef{{Name: "search", Build: contains("FullName")}},
		SortFields: []string{"FullName", "CategoryId"},
		PageSize:   pageSize,
	}
}

func usersConfig(pageSize int) table.Config {
	return table.Config{
		Name: EntityUsers,
		Filters: []table.FilterDef{{Name: "search", Build: func(v string) (odata.Expr, error) {
			return odata.AnyOf{
				odata.Filter{Field: "FirstName", Op: odata.Contains, Value: v},
				odata.Filter{Field: "LastName", Op: odata.Contains, Value: v},
			}, nil
		}}},
		SortFields: []string{"FirstName", "LastName", "Email"},
		PageSize:   pageSize,
	}
}

func coursesConfig(pageSize int) table.Config {
	return table.Config{
		Name: EntityCourses,
		Filters: []table.FilterDef{
			{Name: "search", Build: contains("Title")},
			{Name: "category", Build: func(v string) (odata.Expr, error) {
				id, err := strconv.Atoi(v)
				if err != nil {
					return nil, fmt.Errorf("category must be a number: %w", err)
				}
				return odata.Filter{Field: "CategoryId", Op: odata.Eq, Value: id}, nil
			}},
			{Name: "level", Build: func(v string) (odata.Expr, error) {
				if !slices.Contains(courseLevels, v) {
					return nil, fmt.Errorf("unknown course level %q", v)
				}
				return odata.Filter{Field: "Level", Op: odata.Eq, Value: v}, nil
			}},
		},
		SortFields:  []string{"Title", "Price"},
		DefaultSort: &odata.OrderBy{Field: "Title", Direction: odata.Asc},
		PageSize:    pageSize,
	}
}

func confirmationsConfig(pageSize int) table.Config {
	return table.Config{
		Name:       EntityConfirmations,
		Filters:    []table.FilterDef{{Name: "search", Build: contains("UserName")}},
		SortFields: []string{"SendDate"},
		PageSize:   pageSize,
	}
}

func paymentsConfig(pageSize int) table.Config {
	return table.Config{
		Name: EntityPayments,
		Filters: []table.FilterDef{
			{Name: "from", Build: dateBound(odata.Ge, "T00:00:00Z")},
			{Name: "to", Build: dateBound(odata.Le, "T23:59:59Z")},
		},
		SortFields: []string{"PaymentDate", "Amount"},
		PageSize:   pageSize,
	}
}

// dateBound compares PaymentDate with a YYYY-MM-DD day widened by suffix
func dateBound(op odata.Operator, suffix string) func(string) (odata.Expr, error) {
	return func(v string) (odata.Expr, error) {
		if _, err := time.Parse(dateLayout, v); err != nil {
			return nil, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
		return odata.Filter{Field: "PaymentDate", Op: op, Value: odata.Raw(v + suffix)}, nil
	}
}

func decorateUser(u *User) {
	if u.Role == nil {
		return
	}
	if r, ok := ParseRole(*u.Role); ok {
		u.RoleLabel = r.String()
	}
}

func decorateCourse(c *Course) {
	c.LevelLabel = c.Level.String()
	c.StatusLabel = c.Status.String()
}

func decorateConfirmation(c *InstructorConfirmation) {
	c.CertificateURL = c.DecodedCertificateLink()
}

func decoratePayment(p *Payment) {
	p.StatusLabel = p.Status.String()
}
