package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"admin-console/internal/apiclient"
	"admin-console/internal/catalog"
	"admin-console/internal/odata"
	"admin-console/internal/session"
	"admin-console/internal/table"

	"github.com/gin-gonic/gin"
)

// Handler serves the console routes
type Handler struct {
	sessions SessionManager
	catalog  Catalog
	opts     Options
	logger   *slog.Logger
}

// NewHandler creates a console handler
func NewHandler(sessions SessionManager, cat Catalog, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		sessions: sessions,
		catalog:  cat,
		opts:     opts,
		logger:   opts.Logger,
	}
}

// Health is the console health check handler
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"service":       "admin-console",
		"authenticated": h.sessions.Snapshot().Authenticated(),
	})
}

// Home sends the browser on to the admin frontend
func (h *Handler) Home(c *gin.Context) {
	c.Redirect(http.StatusFound, h.opts.AdminFEURL)
}

// LoginDirect adopts the credentials handed over by the user frontend in the
// query string, then redirects to /.
func (h *Handler) LoginDirect(c *gin.Context) {
	ctx := c.Request.Context()

	if access := c.Query("access"); access != "" {
		if err := h.sessions.SetToken(ctx, access, true); err != nil {
			h.logger.Error("Failed to store access token", "error", err)
		}
	} else {
		h.logger.Warn("Login handoff without access token")
	}

	if refresh := c.Query("refresh"); refresh != "" {
		if err := h.sessions.SetRefreshToken(ctx, refresh); err != nil {
			h.logger.Error("Failed to store refresh token", "error", err)
		}
	}

	if raw := c.Query("user"); raw != "" {
		user, err := decodeHandoffUser(raw)
		if err != nil {
			h.logger.Warn("Ignoring malformed user in login handoff", "error", err)
		} else if err := h.sessions.SetUser(ctx, user, true); err != nil {
			h.logger.Error("Failed to store user", "error", err)
		}
	}

	c.Redirect(http.StatusFound, "/")
}

// decodeHandoffUser accepts the user JSON either as-is or percent-encoded
func decodeHandoffUser(raw string) (*session.UserProfile, error) {
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}

	var user session.UserProfile
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

// Logout ends the session, expires the browser's cookies for this origin and
// sends the browser to the user frontend.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context()); err != nil {
		h.logger.Error("Logout did not clear every key", "error", err)
	}

	for _, cookie := range c.Request.Cookies() {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:   cookie.Name,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
	}

	c.Redirect(http.StatusFound, h.opts.UserFEURL)
}

// Session reports the current identity
func (h *Handler) Session(c *gin.Context) {
	sess := h.sessions.Snapshot()

	data := gin.H{
		"authenticated": sess.Authenticated(),
		"loading":       h.sessions.Loading(),
		"user":          sess.User,
	}
	if sess.User != nil {
		data["display_name"] = sess.User.DisplayName()
		data["is_admin"] = sess.User.HasRole(catalog.RoleAdmin.String())
	}
	if !sess.ExpiresAt.IsZero() {
		data["expires_at"] = sess.ExpiresAt
	}
	if !sess.Authenticated() {
		data["login_url"] = h.opts.UserFEURL
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// RefreshSession exchanges the refresh token for a new session
func (h *Handler) RefreshSession(c *gin.Context) {
	if err := h.sessions.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success":   false,
			"error":     "session refresh failed",
			"login_url": h.opts.UserFEURL,
		})
		return
	}
	h.Session(c)
}

// ListTables reports every table as it stands, without fetching, together
// with the enum labels the filters accept
func (h *Handler) ListTables(c *gin.Context) {
	names := h.catalog.Names()
	views := make([]catalog.View, 0, len(names))
	for _, name := range names {
		t, err := h.catalog.Table(name)
		if err != nil {
			continue
		}
		view := t.View()
		view.RetryURL = retryURL(view)
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"tables": views,
			"labels": catalog.EnumLabels(),
		},
	})
}

// GetTable returns an entity's table, loading it on first access
func (h *Handler) GetTable(c *gin.Context) {
	t, ok := h.table(c)
	if !ok {
		return
	}
	view, err := t.EnsureLoaded(c.Request.Context())
	h.respondView(c, view, err)
}

// SetFilter sets ?value= on the named filter; an empty value clears it
func (h *Handler) SetFilter(c *gin.Context) {
	t, ok := h.table(c)
	if !ok {
		return
	}
	view, err := t.SetFilter(c.Request.Context(), c.Param("name"), c.Query("value"))
	h.respondView(c, view, err)
}

// ClearFilters drops every filter on a table
func (h *Handler) ClearFilters(c *gin.Context) {
	t, ok := h.table(c)
	if !ok {
		return
	}
	view, err := t.ClearFilters(c.Request.Context())
	h.respondView(c, view, err)
}

// SetSort orders a table by ?field= and ?dir=
func (h *Handler) SetSort(c *gin.Context) {
	t, ok := h.table(c)
	if !ok {
		return
	}
	dir, err := odata.ParseDirection(c.Query("dir"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	view, err := t.SetSort(c.Request.Context(), c.Query("field"), dir)
	h.respondView(c, view, err)
}

// SetPage moves a table to :page
func (h *Handler) SetPage(c *gin.Context) {
	t, ok := h.table(c)
	if !ok {
		return
	}
	page, ok := h.intParam(c, "page")
	if !ok {
		return
	}
	view, err := t.SetPage(c.Request.Context(), page)
	h.respondView(c, view, err)
}

// SetPageSize changes a table's page size to :size
func (h *Handler) SetPageSize(c *gin.Context) {
	t, ok := h.table(c)
	if !ok {
		return
	}
	size, ok := h.intParam(c, "size")
	if !ok {
		return
	}
	view, err := t.SetPageSize(c.Request.Context(), size)
	h.respondView(c, view, err)
}

// Retry refetches a table after a failure
func (h *Handler) Retry(c *gin.Context) {
	t, ok := h.table(c)
	if !ok {
		return
	}
	view, err := t.Retry(c.Request.Context())
	h.respondView(c, view, err)
}

// UpdateCategory saves a category's name and description
func (h *Handler) UpdateCategory(c *gin.Context) {
	id, ok := h.intParam(c, "id")
	if !ok {
		return
	}

	var req catalog.UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	if req.FullName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "fullName is required"})
		return
	}

	view, err := h.catalog.UpdateCategory(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondView(c, view, nil)
}

// DeleteCategory deletes a category
func (h *Handler) DeleteCategory(c *gin.Context) {
	id, ok := h.intParam(c, "id")
	if !ok {
		return
	}
	view, err := h.catalog.DeleteCategory(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondView(c, view, nil)
}

// ApproveConfirmation approves an instructor confirmation
func (h *Handler) ApproveConfirmation(c *gin.Context) {
	id, ok := h.intParam(c, "id")
	if !ok {
		return
	}
	res, view, err := h.catalog.ApproveConfirmation(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	view.RetryURL = retryURL(view)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": res.Message,
		"data":    view,
	})
}

func (h *Handler) table(c *gin.Context) (catalog.Table, bool) {
	t, err := h.catalog.Table(c.Param("entity"))
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return t, true
}

func (h *Handler) intParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("%s must be a number", name),
		})
		return 0, false
	}
	return n, true
}

// respondView writes a table view. Fetch failures are part of the view, so
// only input errors turn into an error response.
func (h *Handler) respondView(c *gin.Context, view catalog.View, err error) {
	if err != nil && isInputError(err) {
		h.respondError(c, err)
		return
	}
	if err != nil && !errors.Is(err, table.ErrSuperseded) {
		c.Error(err)
	}

	view.RetryURL = retryURL(view)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": view})
}

func retryURL(view catalog.View) string {
	if !view.Retryable {
		return ""
	}
	return "/api/tables/" + view.Entity + "/retry"
}

func isInputError(err error) bool {
	return errors.Is(err, table.ErrUnknownFilter) ||
		errors.Is(err, table.ErrInvalidFilterValue) ||
		errors.Is(err, table.ErrUnknownSortField) ||
		errors.Is(err, odata.ErrInvalidParams)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		c.Error(err)
	}
	c.JSON(status, gin.H{"success": false, "error": catalog.ErrorMessage(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnknownEntity):
		return http.StatusNotFound
	case isInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrApprovalRejected):
		return http.StatusConflict
	case errors.Is(err, session.ErrRefreshFailed), errors.Is(err, session.ErrNoSession),
		apiclient.IsKind(err, apiclient.KindCredential):
		return http.StatusUnauthorized
	case apiclient.IsKind(err, apiclient.KindStatus):
		if apiErr, ok := apiclient.AsError(err); ok && apiErr.Status >= 400 && apiErr.Status < 500 {
			return apiErr.Status
		}
		return http.StatusBadGateway
	case apiclient.IsKind(err, apiclient.KindTransport), apiclient.IsKind(err, apiclient.KindDecode):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
