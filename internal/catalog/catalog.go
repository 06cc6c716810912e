// Package catalog wires one table controller per admin entity to the backend
// and implements the row actions on categories and instructor confirmations.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"admin-console/internal/apiclient"
	"admin-console/internal/odata"
	"admin-console/internal/table"
)

var (
	// ErrUnknownEntity is returned for an entity name with no table
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrApprovalRejected is returned when the backend answers an approval with success=false
	ErrApprovalRejected = errors.New("approval rejected")
)

const approvePath = "/api/instructor-confirmations/approve"

// Table is the entity-agnostic view of a table controller
type Table interface {
	Name() string
	View() View
	EnsureLoaded(ctx context.Context) (View, error)
	SetFilter(ctx context.Context, name, value string) (View, error)
	ClearFilters(ctx context.Context) (View, error)
	SetSort(ctx context.Context, field string, dir odata.Direction) (View, error)
	SetPage(ctx context.Context, n int) (View, error)
	SetPageSize(ctx context.Context, size int) (View, error)
	Retry(ctx context.Context) (View, error)
}

// Catalog holds the tables of every entity
type Catalog struct {
	client *apiclient.Client
	logger *slog.Logger

	categories    *table.Controller[Category]
	users         *table.Controller[User]
	courses       *table.Controller[Course]
	confirmations *table.Controller[InstructorConfirmation]
	payments      *table.Controller[Payment]

	tables map[string]Table
}

// New creates the catalog. pageSize is the initial page size of every table.
func New(client *apiclient.Client, pageSize int, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Catalog{
		client:        client,
		logger:        logger,
		categories:    table.New(categoriesConfig(pageSize), listSource[Category](client, categoriesEndpoint, nil), logger),
		users:         table.New(usersConfig(pageSize), listSource(client, usersEndpoint, decorateUser), logger),
		courses:       table.New(coursesConfig(pageSize), listSource(client, coursesEndpoint, decorateCourse), logger),
		confirmations: table.New(confirmationsConfig(pageSize), listSource(client, confirmationsEndpoint, decorateConfirmation), logger),
		payments:      table.New(paymentsConfig(pageSize), listSource(client, paymentsEndpoint, decoratePayment), logger),
	}

	c.tables = map[string]Table{
		EntityCategories:    entityTable[Category]{c.categories},
		EntityUsers:         entityTable[User]{c.users},
		EntityCourses:       entityTable[Course]{c.courses},
		EntityConfirmations: entityTable[InstructorConfirmation]{c.confirmations},
		EntityPayments:      entityTable[Payment]{c.payments},
	}
	return c
}

// Table looks up an entity's table
func (c *Catalog) Table(name string) (Table, error) {
	t, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
	}
	return t, nil
}

// Names lists the entity names in a stable order
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// UpdateCategory saves a category and, once the backend accepts it, patches
// the loaded row in place.
func (c *Catalog) UpdateCategory(ctx context.Context, id int, req UpdateCategoryRequest) (View, error) {
	path := fmt.Sprintf("/category/%d", id)
	if err := c.client.Do(ctx, http.MethodPut, path, req, nil); err != nil {
		c.logger.Error("Failed to update category", "category_id", id, "error", err)
		return viewOf(c.categories.Snapshot()), fmt.Errorf("failed to update category %d: %w", id, err)
	}

	snap := c.categories.Mutate(func(rows []Category) []Category {
		for i := range rows {
			if rows[i].CategoryID == id {
				rows[i].FullName = req.FullName
				rows[i].Description = req.Description
			}
		}
		return rows
	})
	c.logger.Info("Category updated", "category_id", id)
	return viewOf(snap), nil
}

// DeleteCategory deletes a category and drops it from the loaded page
func (c *Catalog) DeleteCategory(ctx context.Context, id int) (View, error) {
	path := fmt.Sprintf("/category/%d", id)
	if err := c.client.Do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		c.logger.Error("Failed to delete category", "category_id", id, "error", err)
		return viewOf(c.categories.Snapshot()), fmt.Errorf("failed to delete category %d: %w", id, err)
	}

	snap := c.categories.Mutate(func(rows []Category) []Category {
		return slices.DeleteFunc(rows, func(r Category) bool { return r.CategoryID == id })
	})
	c.logger.Info("Category deleted", "category_id", id)

	// The last row of a page went; fetch the page that now holds rows
	if len(snap.Rows) == 0 && snap.TotalCount > 0 {
		reloaded, err := c.categories.Reload(ctx)
		if err != nil && !errors.Is(err, table.ErrSuperseded) {
			c.logger.Warn("Reload after delete failed", "error", err)
		}
		snap = reloaded
	}
	return viewOf(snap), nil
}

// ApproveConfirmation approves an instructor confirmation and then reloads
// the confirmations table. A failed reload shows up in the returned view.
func (c *Catalog) ApproveConfirmation(ctx context.Context, id int) (ApproveConfirmationResponse, View, error) {
	res, err := apiclient.Post[ApproveConfirmationResponse](ctx, c.client, approvePath, ApproveConfirmationRequest{ConfirmationID: id})
	if err != nil {
		c.logger.Error("Failed to approve confirmation", "confirmation_id", id, "error", err)
		return res, viewOf(c.confirmations.Snapshot()), fmt.Errorf("failed to approve confirmation %d: %w", id, err)
	}
	if !res.Success {
		c.logger.Warn("Confirmation approval rejected", "confirmation_id", id, "message", res.Message)
		return res, viewOf(c.confirmations.Snapshot()), fmt.Errorf("%w: %s", ErrApprovalRejected, res.Message)
	}

	c.logger.Info("Confirmation approved", "confirmation_id", id)
	snap, err := c.confirmations.Reload(ctx)
	if err != nil && !errors.Is(err, table.ErrSuperseded) {
		c.logger.Warn("Reload after approval failed", "error", err)
	}
	return res, viewOf(snap), nil
}

// listSource fetches pages from an OData endpoint. decorate, when set, fills
// display-only fields on each row.
func listSource[T any](client *apiclient.Client, endpoint string, decorate func(*T)) table.Source[T] {
	return table.SourceFunc[T](func(ctx context.Context, q odata.Query) (table.Page[T], error) {
		page, err := apiclient.ListPage[T](ctx, client, endpoint, q)
		if err != nil {
			return table.Page[T]{}, err
		}
		if decorate != nil {
			for i := range page.Rows {
				decorate(&page.Rows[i])
			}
		}
		return table.Page[T]{Rows: page.Rows, TotalCount: page.TotalCount}, nil
	})
}
