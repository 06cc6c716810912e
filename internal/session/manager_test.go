package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"admin-console/internal/logger"

	"github.com/golang-jwt/jwt/v5"
)

// fakeBackend records calls to the auth endpoints
type fakeBackend struct {
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
	refreshFunc  func(w http.ResponseWriter, r *http.Request)
	lastRefresh  atomic.Value // cookie value seen on refresh
	logoutAuth   atomic.Value
}

func newFakeBackend(t *testing.T, refresh func(w http.ResponseWriter, r *http.Request)) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{refreshFunc: refresh}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		fb.refreshCalls.Add(1)
		if c, err := r.Cookie("refreshToken"); err == nil {
			fb.lastRefresh.Store(c.Value)
		}
		fb.refreshFunc(w, r)
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		fb.logoutCalls.Add(1)
		fb.logoutAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fb, srv
}

func newTestManager(store Store, baseURL string) *Manager {
	return NewManager(store, Options{
		BaseURL:             baseURL,
		LogoutNotifyTimeout: time.Second,
		Logger:              logger.Discard(),
	})
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return tok
}

func storeUser(t *testing.T, store Store, u UserProfile) {
	t.Helper()
	data, _ := json.Marshal(u)
	if err := store.Set(context.Background(), KeyUser, string(data), 0); err != nil {
		t.Fatalf("Failed to store user: %v", err)
	}
}

func assertKeysAbsent(t *testing.T, store Store) {
	t.Helper()
	for _, k := range AllKeys {
		ok, err := store.Exists(context.Background(), k)
		if err != nil {
			t.Fatalf("Exists(%s): %v", k, err)
		}
		if ok {
			t.Errorf("Expected key %s to be absent", k)
		}
	}
}

func okRefresh(token string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"accessToken":           token,
			"accessTokenExpiresUtc": "2030-01-01T00:00:00Z",
			"user": map[string]any{
				"id":    "admin-1",
				"email": "admin@example.com",
				"roles": []string{"Admin"},
			},
		})
	}
}

func TestInitialize_UsesStoredSessionWithoutRefresh(t *testing.T) {
	fb, srv := newFakeBackend(t, okRefresh("fresh"))
	store := NewMemoryStore()
	ctx := context.Background()

	store.Set(ctx, KeyAccessToken, "stored-token", 0)
	storeUser(t, store, UserProfile{ID: "admin-1", Email: "admin@example.com", Roles: []string{"Admin"}})

	m := newTestManager(store, srv.URL)
	if !m.Loading() {
		t.Error("Expected loading before Initialize")
	}

	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	if fb.refreshCalls.Load() != 0 {
		t.Errorf("Expected no refresh call, got %d", fb.refreshCalls.Load())
	}
	if m.Loading() {
		t.Error("Expected loading to be false after Initialize")
	}
	if m.Token() != "stored-token" {
		t.Errorf("Expected stored token, got %q", m.Token())
	}
	if u := m.User(); u == nil || u.Email != "admin@example.com" {
		t.Errorf("Expected stored user, got %+v", u)
	}
}

func TestInitialize_RefreshesWhenStoreEmpty(t *testing.T) {
	fb, srv := newFakeBackend(t, okRefresh("fresh-token"))
	store := NewMemoryStore()
	ctx := context.Background()
	store.Set(ctx, KeyRefreshToken, "rt-123", 0)

	m := newTestManager(store, srv.URL)
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	if fb.refreshCalls.Load() != 1 {
		t.Errorf("Expected one refresh call, got %d", fb.refreshCalls.Load())
	}
	if got, _ := fb.lastRefresh.Load().(string); got != "rt-123" {
		t.Errorf("Expected refresh cookie rt-123, got %q", got)
	}
	if m.Token() != "fresh-token" {
		t.Errorf("Expected fresh token, got %q", m.Token())
	}

	persisted, err := store.Get(ctx, KeyAccessToken)
	if err != nil || persisted != "fresh-token" {
		t.Errorf("Expected token persisted, got %q (%v)", persisted, err)
	}
	if ok, _ := store.Exists(ctx, KeyUser); !ok {
		t.Error("Expected user persisted")
	}

	snap := m.Snapshot()
	if !snap.ExpiresAt.Equal(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected expiry from payload, got %v", snap.ExpiresAt)
	}
}

func TestInitialize_ExpiredTokenTriggersRefresh(t *testing.T) {
	fb, srv := newFakeBackend(t, okRefresh("fresh-token"))
	store := NewMemoryStore()
	ctx := context.Background()

	store.Set(ctx, KeyAccessToken, signedToken(t, time.Now().Add(-time.Minute)), 0)
	storeUser(t, store, UserProfile{ID: "admin-1", Email: "admin@example.com"})

	m := newTestManager(store, srv.URL)
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if fb.refreshCalls.Load() != 1 {
		t.Errorf("Expected refresh for expired token, got %d calls", fb.refreshCalls.Load())
	}
	if m.Token() != "fresh-token" {
		t.Errorf("Expected fresh token, got %q", m.Token())
	}
}

func TestInitialize_UnexpiredJWTIsAdopted(t *testing.T) {
	fb, srv := newFakeBackend(t, okRefresh("fresh-token"))
	store := NewMemoryStore()
	ctx := context.Background()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signedToken(t, exp)
	store.Set(ctx, KeyAccessToken, tok, 0)
	storeUser(t, store, UserProfile{ID: "admin-1", Email: "admin@example.com"})

	m := newTestManager(store, srv.URL)
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if fb.refreshCalls.Load() != 0 {
		t.Errorf("Expected no refresh, got %d", fb.refreshCalls.Load())
	}
	if !m.Snapshot().ExpiresAt.Equal(exp) {
		t.Errorf("Expected expiry %v from claims, got %v", exp, m.Snapshot().ExpiresAt)
	}
}

func TestInitialize_MalformedStoredUserTriggersRefresh(t *testing.T) {
	fb, srv := newFakeBackend(t, okRefresh("fresh-token"))
	store := NewMemoryStore()
	ctx := context.Background()

	store.Set(ctx, KeyAccessToken, "stored-token", 0)
	store.Set(ctx, KeyUser, "{not json", 0)

	m := newTestManager(store, srv.URL)
	m.Initialize(ctx)

	if fb.refreshCalls.Load() != 1 {
		t.Errorf("Expected refresh for malformed user, got %d calls", fb.refreshCalls.Load())
	}
}

func TestRefresh_NonSuccessClearsSession(t *testing.T) {
	_, srv := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	store := NewMemoryStore()
	ctx := context.Background()

	m := newTestManager(store, srv.URL)
	m.SetToken(ctx, "old-token", true)
	m.SetUser(ctx, &UserProfile{ID: "admin-1"}, true)
	m.SetRefreshToken(ctx, "rt-old")

	err := m.Refresh(ctx)
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("Expected ErrRefreshFailed, got %v", err)
	}

	snap := m.Snapshot()
	if snap.AccessToken != "" || snap.User != nil {
		t.Errorf("Expected empty session, got %+v", snap)
	}
	assertKeysAbsent(t, store)
}

func TestRefresh_MalformedPayloadClearsSession(t *testing.T) {
	cases := map[string]func(w http.ResponseWriter, r *http.Request){
		"not json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		},
		"no token": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"user":{"id":"x"}}`))
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			_, srv := newFakeBackend(t, handler)
			store := NewMemoryStore()
			ctx := context.Background()

			m := newTestManager(store, srv.URL)
			m.SetToken(ctx, "old-token", true)

			if err := m.Refresh(ctx); !errors.Is(err, ErrRefreshFailed) {
				t.Fatalf("Expected ErrRefreshFailed, got %v", err)
			}
			if m.Authenticated() {
				t.Error("Expected session cleared")
			}
			assertKeysAbsent(t, store)
		})
	}
}

func TestRefresh_TransportFailureClearsSession(t *testing.T) {
	_, srv := newFakeBackend(t, okRefresh("never"))
	url := srv.URL
	srv.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	m := newTestManager(store, url)
	m.SetToken(ctx, "old-token", true)

	if err := m.Refresh(ctx); !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("Expected ErrRefreshFailed, got %v", err)
	}
	if m.Authenticated() {
		t.Error("Expected session cleared")
	}
	assertKeysAbsent(t, store)
}

func TestSetToken_PersistFlag(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	m := newTestManager(store, "http://unused")

	m.SetToken(ctx, "memory-only", false)
	if m.Token() != "memory-only" {
		t.Errorf("Expected in-memory token, got %q", m.Token())
	}
	if ok, _ := store.Exists(ctx, KeyAccessToken); ok {
		t.Error("Expected token not persisted")
	}

	m.SetToken(ctx, "persisted", true)
	if v, _ := store.Get(ctx, KeyAccessToken); v != "persisted" {
		t.Errorf("Expected persisted token, got %q", v)
	}

	m.SetToken(ctx, "", true)
	if ok, _ := store.Exists(ctx, KeyAccessToken); ok {
		t.Error("Expected empty token to clear the key")
	}
}

func TestSetUser_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	m := newTestManager(store, "http://unused")

	u := &UserProfile{ID: "admin-1", Roles: []string{"Admin"}}
	m.SetUser(ctx, u, true)
	u.Roles[0] = "Student"

	if got := m.User(); !got.HasRole("admin") {
		t.Errorf("Expected manager to hold its own copy, got %+v", got)
	}

	m.SetUser(ctx, nil, true)
	if m.User() != nil {
		t.Error("Expected nil user")
	}
	if ok, _ := store.Exists(ctx, KeyUser); ok {
		t.Error("Expected user key cleared")
	}
}

func TestLogout_ClearsAndNotifies(t *testing.T) {
	fb, srv := newFakeBackend(t, okRefresh("x"))
	store := NewMemoryStore()
	ctx := context.Background()

	m := newTestManager(store, srv.URL)
	m.SetToken(ctx, "tok", true)
	m.SetUser(ctx, &UserProfile{ID: "admin-1"}, true)
	m.SetRefreshToken(ctx, "rt")

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if m.Authenticated() || m.User() != nil {
		t.Error("Expected in-memory session cleared")
	}
	assertKeysAbsent(t, store)

	m.Wait()
	if fb.logoutCalls.Load() != 1 {
		t.Errorf("Expected one logout notification, got %d", fb.logoutCalls.Load())
	}
	if got, _ := fb.logoutAuth.Load().(string); got != "Bearer tok" {
		t.Errorf("Expected bearer on logout notification, got %q", got)
	}
}

func TestLogout_DoesNotBlockOnSlowBackend(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	m := newTestManager(NewMemoryStore(), srv.URL)

	done := make(chan struct{})
	go func() {
		m.Logout(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Logout blocked on the backend")
	}
}

func TestUserProfile_DisplayName(t *testing.T) {
	first, last := "Ada", "Lovelace"
	cases := []struct {
		user UserProfile
		want string
	}{
		{UserProfile{Email: "ada@example.com", FirstName: &first, LastName: &last}, "Ada Lovelace"},
		{UserProfile{Email: "ada@example.com", FirstName: &first}, "Ada"},
		{UserProfile{Email: "ada@example.com"}, "ada@example.com"},
	}
	for _, c := range cases {
		if got := c.user.DisplayName(); got != c.want {
			t.Errorf("DisplayName() = %q, want %q", got, c.want)
		}
	}
}

func TestRefresh_RotatedRefreshCookieReplacesStoredOne(t *testing.T) {
	var mu sync.Mutex
	current := "rt-1"
	var seen [][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		var values []string
		for _, c := range r.Cookies() {
			if c.Name == "refreshToken" {
				values = append(values, c.Value)
			}
		}
		seen = append(seen, values)
		if len(values) != 1 || values[0] != current {
			mu.Unlock()
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		current += "x"
		next := current
		mu.Unlock()

		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: next, Path: "/", HttpOnly: true})
		okRefresh("tok-"+next)(w, r)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	store.Set(ctx, KeyRefreshToken, "rt-1", 0)

	newManager := func() *Manager {
		jar, err := cookiejar.New(nil)
		if err != nil {
			t.Fatalf("Failed to create cookie jar: %v", err)
		}
		return NewManager(store, Options{
			BaseURL:    srv.URL,
			HTTPClient: &http.Client{Jar: jar},
			Logger:     logger.Discard(),
		})
	}

	m := newManager()
	for i := range 3 {
		if err := m.Refresh(ctx); err != nil {
			t.Fatalf("Refresh %d error: %v", i+1, err)
		}
	}
	if m.Token() != "tok-rt-1xxx" {
		t.Errorf("Expected token from the third rotation, got %q", m.Token())
	}
	if v, _ := store.Get(ctx, KeyRefreshToken); v != "rt-1xxx" {
		t.Errorf("Expected rotated refresh token persisted, got %q", v)
	}

	// A restarted console starts with an empty jar and the persisted token
	if err := newManager().Refresh(ctx); err != nil {
		t.Fatalf("Refresh after restart error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, values := range seen {
		if len(values) != 1 {
			t.Errorf("Refresh %d sent refresh cookies %v, expected exactly one", i+1, values)
		}
	}
}

func TestRefresh_ExpiryFormats(t *testing.T) {
	cases := []struct {
		name   string
		expiry string
		want   time.Time
	}{
		{"rfc3339", "2030-01-01T00:00:00Z", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"zoneless fraction", "2030-01-01T00:00:00.1234567", time.Date(2030, 1, 1, 0, 0, 0, 123456700, time.UTC)},
		{"zoneless", "2030-06-01T12:30:00", time.Date(2030, 6, 1, 12, 30, 0, 0, time.UTC)},
		{"unparseable", "tomorrow", time.Time{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, srv := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{
					"accessToken":           "opaque-token",
					"accessTokenExpiresUtc": tc.expiry,
					"user":                  map[string]any{"id": "admin-1", "email": "admin@example.com"},
				})
			})

			m := newTestManager(NewMemoryStore(), srv.URL)
			if err := m.Refresh(context.Background()); err != nil {
				t.Fatalf("Refresh error: %v", err)
			}
			if m.Token() != "opaque-token" {
				t.Errorf("Expected token adopted, got %q", m.Token())
			}
			if got := m.Snapshot().ExpiresAt; !got.Equal(tc.want) {
				t.Errorf("Expected expiry %v, got %v", tc.want, got)
			}
		})
	}
}

func TestRefresh_LogoutDuringRefreshWins(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	_, srv := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		okRefresh("late-token")(w, r)
	})

	store := NewMemoryStore()
	ctx := context.Background()
	m := newTestManager(store, srv.URL)

	errc := make(chan error, 1)
	go func() { errc <- m.Refresh(ctx) }()

	<-entered
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	close(release)

	if err := <-errc; !errors.Is(err, ErrRefreshFailed) {
		t.Errorf("Expected ErrRefreshFailed, got %v", err)
	}
	if m.Authenticated() {
		t.Errorf("Expected logout to win, got token %q", m.Token())
	}
	assertKeysAbsent(t, store)
	m.Wait()
}

// failingStore reads like its Store but rejects every write
type failingStore struct {
	Store
}

func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("disk full")
}

func TestRefresh_PersistFailureKeepsSessionInMemory(t *testing.T) {
	_, srv := newFakeBackend(t, okRefresh("fresh-token"))
	store := failingStore{Store: NewMemoryStore()}
	ctx := context.Background()

	m := newTestManager(store, srv.URL)
	if err := m.Refresh(ctx); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if m.Token() != "fresh-token" {
		t.Errorf("Expected in-memory token, got %q", m.Token())
	}
	if ok, _ := store.Exists(ctx, KeyAccessToken); ok {
		t.Error("Expected nothing half-persisted")
	}
}
