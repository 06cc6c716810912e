// Package session owns the administrator's session: the bearer token, the
// user profile, and their persisted copies. The Manager is the only writer;
// every other component reads through it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	// ErrRefreshFailed is returned when the refresh endpoint did not yield a session
	ErrRefreshFailed = errors.New("session refresh failed")
	// ErrNoSession is returned when an operation needs a token and none is held
	ErrNoSession = errors.New("no active session")
)

const (
	refreshPath = "/api/auth/refresh"
	logoutPath  = "/api/auth/logout"
)

// Options configures a Manager
type Options struct {
	// BaseURL is the backend base URL, e.g. https://api.example.com
	BaseURL string
	// HTTPClient is shared with the request client so backend cookies set on
	// refresh are sent back on the next one. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// RefreshCookieName carries the persisted refresh token
	RefreshCookieName string
	// LogoutNotifyTimeout bounds the background logout notification
	LogoutNotifyTimeout time.Duration
	Logger              *slog.Logger
}

// Manager holds the in-memory session and reconciles it with a Store
type Manager struct {
	store         Store
	httpClient    *http.Client
	baseURL       string
	refreshCookie string
	logoutTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time

	// cookieURL scopes the refresh cookie in the client's jar; nil without one
	cookieURL *url.URL

	// refreshMu serializes refreshes; mu guards the fields below it
	refreshMu sync.Mutex
	mu        sync.RWMutex
	token     string
	user      *UserProfile
	expiresAt time.Time
	loading   bool

	// generation changes on every logout so a refresh started before it
	// cannot adopt its result afterwards
	generation uint64

	notifications sync.WaitGroup
}

// NewManager creates a session manager. It starts in the loading state until
// Initialize returns.
func NewManager(store Store, opts Options) *Manager {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.RefreshCookieName == "" {
		opts.RefreshCookieName = "refreshToken"
	}
	if opts.LogoutNotifyTimeout <= 0 {
		opts.LogoutNotifyTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var cookieURL *url.URL
	if opts.HTTPClient.Jar != nil {
		if u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/"); err == nil && u.Host != "" {
			cookieURL = u
		}
	}

	return &Manager{
		store:         store,
		cookieURL:     cookieURL,
		httpClient:    opts.HTTPClient,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		refreshCookie: opts.RefreshCookieName,
		logoutTimeout: opts.LogoutNotifyTimeout,
		logger:        opts.Logger.With("component", "session"),
		now:           time.Now,
		loading:       true,
	}
}

// Initialize adopts a persisted session when both token and user are present
// and the token is not known to be expired. Otherwise it refreshes.
func (m *Manager) Initialize(ctx context.Context) error {
	defer m.setLoading(false)

	token, user, ok := m.loadPersisted(ctx)
	if ok {
		m.mu.Lock()
		m.token = token
		m.user = user
		m.expiresAt, _ = tokenExpiry(token)
		m.mu.Unlock()

		m.logger.Info("Session restored from store", "user_id", user.ID)
		return nil
	}

	return m.Refresh(ctx)
}

func (m *Manager) loadPersisted(ctx context.Context) (string, *UserProfile, bool) {
	token, err := m.store.Get(ctx, KeyAccessToken)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			m.logger.Warn("Failed to read persisted token", "error", err)
		}
		return "", nil, false
	}

	raw, err := m.store.Get(ctx, KeyUser)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			m.logger.Warn("Failed to read persisted user", "error", err)
		}
		return "", nil, false
	}

	if token == "" {
		return "", nil, false
	}

	var user UserProfile
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		m.logger.Warn("Persisted user is malformed", "error", err)
		return "", nil, false
	}

	if tokenExpired(token, m.now()) {
		m.logger.Info("Persisted token expired")
		return "", nil, false
	}

	return token, &user, true
}

// Refresh exchanges the backend credential cookie for a new access token.
// A failed exchange clears the session, in memory and in the store.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.RLock()
	generation := m.generation
	m.mu.RUnlock()

	resp, err := m.requestRefresh(ctx)
	if err != nil {
		m.logger.Info("Refresh failed, session cleared", "error", err)
		m.clear(ctx)
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	expiresAt, _ := tokenExpiry(resp.AccessToken)
	if exp, ok := parseExpiry(resp.AccessTokenExpiresUTC); ok {
		expiresAt = exp
	} else if resp.AccessTokenExpiresUTC != "" {
		m.logger.Debug("Ignoring unparseable token expiry", "value", resp.AccessTokenExpiresUTC)
	}

	// Persist first: a logout that lands meanwhile is detected below and
	// wins, and one that lands after adoption clears the store itself.
	if err := m.persistSession(ctx, resp.AccessToken, resp.User); err != nil {
		m.logger.Warn("Refreshed session kept in memory only", "error", err)
	}

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		m.clear(ctx)
		return fmt.Errorf("%w: %w", ErrRefreshFailed, errLoggedOut)
	}
	m.token = resp.AccessToken
	m.user = resp.User.clone()
	m.expiresAt = expiresAt
	m.mu.Unlock()

	m.logger.Info("Session refreshed", "expires_at", expiresAt)
	return nil
}

var errLoggedOut = errors.New("logged out while refreshing")

// persistSession writes the token and user. A partial write is rolled back so
// the store never pairs the new token with a stale user.
func (m *Manager) persistSession(ctx context.Context, token string, user *UserProfile) error {
	err := m.persistToken(ctx, token)
	if err == nil {
		err = m.persistUser(ctx, user)
	}
	if err != nil {
		if delErr := m.store.Delete(ctx, KeyAccessToken, KeyUser); delErr != nil {
			m.logger.Warn("Failed to roll back persisted session", "error", delErr)
		}
	}
	return err
}

func (m *Manager) requestRefresh(ctx context.Context) (*RefreshResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+refreshPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build refresh request: %w", err)
	}
	m.attachRefreshCookie(ctx, req)

	res, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("refresh returned status %d", res.StatusCode)
	}

	var payload RefreshResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("malformed refresh payload: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, errors.New("refresh payload has no access token")
	}

	m.keepRotatedRefreshToken(ctx, res)
	return &payload, nil
}

// attachRefreshCookie sends the refresh token exactly once. A jar that
// already holds the cookie sends it itself; otherwise the persisted copy is
// seeded into the jar, or added to the request when there is no jar.
func (m *Manager) attachRefreshCookie(ctx context.Context, req *http.Request) {
	if m.cookieURL != nil {
		for _, c := range m.httpClient.Jar.Cookies(req.URL) {
			if c.Name == m.refreshCookie {
				return
			}
		}
	}

	rt, err := m.store.Get(ctx, KeyRefreshToken)
	if err != nil || rt == "" {
		return
	}
	if m.cookieURL != nil {
		m.seedRefreshCookie(rt)
		return
	}
	req.AddCookie(&http.Cookie{Name: m.refreshCookie, Value: rt})
}

// keepRotatedRefreshToken persists a refresh token the backend rotated
// through Set-Cookie so it survives a restart.
func (m *Manager) keepRotatedRefreshToken(ctx context.Context, res *http.Response) {
	for _, c := range res.Cookies() {
		if c.Name != m.refreshCookie || c.Value == "" {
			continue
		}
		if err := m.store.Set(ctx, KeyRefreshToken, c.Value, 0); err != nil {
			m.logger.Warn("Failed to persist rotated refresh token", "error", err)
		}
	}
}

func (m *Manager) seedRefreshCookie(token string) {
	if m.cookieURL == nil {
		return
	}
	c := &http.Cookie{Name: m.refreshCookie, Value: token, Path: "/"}
	if token == "" {
		c.MaxAge = -1
	}
	m.httpClient.Jar.SetCookies(m.cookieURL, []*http.Cookie{c})
}

// SetToken replaces the access token. An empty token clears it. With persist
// false only the in-memory session changes.
func (m *Manager) SetToken(ctx context.Context, token string, persist bool) error {
	exp, _ := tokenExpiry(token)

	m.mu.Lock()
	m.token = token
	m.expiresAt = exp
	m.mu.Unlock()

	if !persist {
		return nil
	}
	return m.persistToken(ctx, token)
}

// SetUser replaces the user profile. A nil user clears it.
func (m *Manager) SetUser(ctx context.Context, user *UserProfile, persist bool) error {
	m.mu.Lock()
	m.user = user.clone()
	m.mu.Unlock()

	if !persist {
		return nil
	}
	return m.persistUser(ctx, user)
}

// SetRefreshToken persists the refresh token sent on the next Refresh
func (m *Manager) SetRefreshToken(ctx context.Context, token string) error {
	m.seedRefreshCookie(token)
	if token == "" {
		return m.store.Delete(ctx, KeyRefreshToken)
	}
	if err := m.store.Set(ctx, KeyRefreshToken, token, 0); err != nil {
		return fmt.Errorf("failed to persist refresh token: %w", err)
	}
	return nil
}

// Logout clears every persisted key and the in-memory session, then tells
// the backend in the background. It never waits for the backend.
func (m *Manager) Logout(ctx context.Context) error {
	token := m.Token()
	refreshToken, _ := m.store.Get(ctx, KeyRefreshToken)

	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.expiresAt = time.Time{}
	m.generation++
	m.mu.Unlock()

	m.seedRefreshCookie("")
	err := m.store.Delete(ctx, AllKeys...)
	if err != nil {
		err = fmt.Errorf("failed to clear persisted session: %w", err)
	}

	m.notifyLogout(token, refreshToken)
	m.logger.Info("Logged out")
	return err
}

func (m *Manager) notifyLogout(token, refreshToken string) {
	m.notifications.Add(1)
	go func() {
		defer m.notifications.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.logoutTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+logoutPath, nil)
		if err != nil {
			m.logger.Debug("Failed to build logout notification", "error", err)
			return
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if refreshToken != "" {
			req.AddCookie(&http.Cookie{Name: m.refreshCookie, Value: refreshToken})
		}

		res, err := m.httpClient.Do(req)
		if err != nil {
			m.logger.Debug("Logout notification failed", "error", err)
			return
		}
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
	}()
}

// Wait blocks until background logout notifications have finished
func (m *Manager) Wait() {
	m.notifications.Wait()
}

// clear drops the session after a failed refresh
func (m *Manager) clear(ctx context.Context) {
	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.expiresAt = time.Time{}
	m.mu.Unlock()

	m.seedRefreshCookie("")
	if err := m.store.Delete(ctx, AllKeys...); err != nil {
		m.logger.Warn("Failed to clear persisted session", "error", err)
	}
}

func (m *Manager) persistToken(ctx context.Context, token string) error {
	if token == "" {
		if err := m.store.Delete(ctx, KeyAccessToken); err != nil {
			return fmt.Errorf("failed to clear token: %w", err)
		}
		return nil
	}
	if err := m.store.Set(ctx, KeyAccessToken, token, 0); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	return nil
}

func (m *Manager) persistUser(ctx context.Context, user *UserProfile) error {
	if user == nil {
		if err := m.store.Delete(ctx, KeyUser); err != nil {
			return fmt.Errorf("failed to clear user: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := m.store.Set(ctx, KeyUser, string(data), 0); err != nil {
		return fmt.Errorf("failed to persist user: %w", err)
	}
	return nil
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

// Token returns the current access token, empty when logged out
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// User returns a copy of the current user, nil when logged out
func (m *Manager) User() *UserProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user.clone()
}

// Loading is true until Initialize has returned
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Authenticated reports whether an access token is held
func (m *Manager) Authenticated() bool {
	return m.Token() != ""
}

// Snapshot returns a copy of the session
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Session{
		AccessToken: m.token,
		User:        m.user.clone(),
		ExpiresAt:   m.expiresAt,
	}
}
