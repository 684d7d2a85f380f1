package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IgorGrieder/short-url/internal/processing/accounts"
	"github.com/IgorGrieder/short-url/internal/processing/links"
	"github.com/IgorGrieder/short-url/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type memLinks struct {
	mu    sync.Mutex
	items map[string]links.Link
}

func newMemLinks() *memLinks { return &memLinks{items: map[string]links.Link{}} }

func (m *memLinks) Insert(_ context.Context, l *links.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[l.ShortCode]; ok {
		return links.ErrCodeTaken
	}
	m.items[l.ShortCode] = *l
	return nil
}

func (m *memLinks) FindByCode(_ context.Context, code string) (*links.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.items[code]
	if !ok {
		return nil, links.ErrNotFound
	}
	return &l, nil
}

func (m *memLinks) FindByOwnerAndURL(_ context.Context, owner uint64, u string) (*links.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.items {
		if l.CreatedBy == owner && l.OriginalURL == u {
			return &l, nil
		}
	}
	return nil, links.ErrNotFound
}

func (m *memLinks) ListByOwner(_ context.Context, owner uint64) ([]links.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []links.Link{}
	for _, l := range m.items {
		if l.CreatedBy == owner {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memLinks) DeleteByCodeAndOwner(_ context.Context, code string, owner uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.items[code]
	if !ok || l.CreatedBy != owner {
		return false, nil
	}
	delete(m.items, code)
	return true, nil
}

func (m *memLinks) IncrementClick(_ context.Context, code string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.items[code]
	if !ok {
		return nil
	}
	l.ClickCount++
	l.LastAccessed = &at
	m.items[code] = l
	return nil
}

type seqCodes struct {
	mu    sync.Mutex
	codes []string
}

func (s *seqCodes) Generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return "", errors.New("no more codes")
	}
	c := s.codes[0]
	s.codes = s.codes[1:]
	return c, nil
}

type memAccounts struct {
	mu    sync.Mutex
	items map[uint64]accounts.Account
}

func (m *memAccounts) FindByID(_ context.Context, id uint64) (*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	return &a, nil
}

func (m *memAccounts) Insert(_ context.Context, a *accounts.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.ID]; ok {
		return accounts.ErrAccountExists
	}
	m.items[a.ID] = *a
	return nil
}

type stubProvider struct {
	token   string
	profile *accounts.Profile
}

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://provider.example/authorize?state=" + url.QueryEscape(state)
}

func (p *stubProvider) Exchange(context.Context, string) (string, error) { return p.token, nil }

func (p *stubProvider) FetchProfile(context.Context, string) (*accounts.Profile, error) {
	if p.profile == nil {
		return nil, errors.New("no profile")
	}
	return p.profile, nil
}

// --- Harness ---

type harness struct {
	t        *testing.T
	handler  http.Handler
	links    *memLinks
	accounts *memAccounts
	provider *stubProvider
	sessions *session.Manager
}

func verified() *bool { v := true; return &v }

func newHarness(t *testing.T, mutate func(*RouterOptions)) *harness {
	t.Helper()

	linkRepo := newMemLinks()
	accountRepo := &memAccounts{items: map[uint64]accounts.Account{}}
	provider := &stubProvider{
		token:   "tok",
		profile: &accounts.Profile{ID: 42, Email: "a@b.com", Verified: verified()},
	}

	sessions, err := session.NewManager(session.Options{Secret: "router-test-secret-value", TTL: time.Hour, Issuer: "short-url"})
	require.NoError(t, err)

	linkSvc := links.NewService(linkRepo, &seqCodes{codes: []string{"abc123", "XYZ789", "Qq1234"}}, []string{"http", "https"})
	accountSvc := accounts.NewService(accountRepo, provider, true)

	opts := DefaultRouterOptions()
	opts.EnableLogging = false
	opts.Links.BaseURL = "http://sho.rt/"
	opts.Links.AsyncClick = false
	if mutate != nil {
		mutate(&opts)
	}

	return &harness{
		t:        t,
		handler:  NewRouter(linkSvc, accountSvc, sessions, opts),
		links:    linkRepo,
		accounts: accountRepo,
		provider: provider,
		sessions: sessions,
	}
}

func (h *harness) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		if c == nil {
			continue
		}
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) signIn(id uint64) *http.Cookie {
	h.t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(h.t, h.sessions.Issue(rec, accounts.Identity{AccountID: id, Email: "a@b.com"}))
	return findCookie(rec, session.CookieName)
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

type envelope struct {
	Code  string          `json:"code"`
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
}

func decodeIndex(t *testing.T, rec *httptest.ResponseRecorder) indexResponse {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	var idx indexResponse
	require.NoError(t, json.Unmarshal(env.Data, &idx))
	return idx
}

// --- Redirect ---

func TestRedirect(t *testing.T) {
	h := newHarness(t, nil)
	h.links.items["abc123"] = links.Link{ShortCode: "abc123", OriginalURL: "https://example.com/x?y=1", CreatedBy: 42}

	rec := h.do(httptest.NewRequest(http.MethodGet, "/abc123", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/x?y=1", rec.Header().Get("Location"))
	assert.Equal(t, int64(1), h.links.items["abc123"].ClickCount)
	assert.NotNil(t, h.links.items["abc123"].LastAccessed)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/ABC123", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", rec.Body.String())
	assert.Equal(t, int64(1), h.links.items["abc123"].ClickCount)
}

func TestRedirectPermanentStatus(t *testing.T) {
	h := newHarness(t, func(o *RouterOptions) { o.Links.RedirectStatus = http.StatusMovedPermanently })
	h.links.items["abc123"] = links.Link{ShortCode: "abc123", OriginalURL: "https://example.com", CreatedBy: 42}

	rec := h.do(httptest.NewRequest(http.MethodGet, "/abc123", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
}

// --- Link forms ---

func TestCreateRequiresSession(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(postForm("/links", url.Values{"originalUrl": {"https://example.com"}}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "UNAUTHORIZED", env.Error)
	assert.Empty(t, h.links.items)
}

func TestCreateAndIndexFlash(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.signIn(42)

	rec := h.do(postForm("/links", url.Values{"originalUrl": {"https://example.com/page"}}), sess)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	flash := findCookie(rec, session.FlashCookieName)
	require.NotNil(t, flash)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/", nil), sess, flash)
	require.Equal(t, http.StatusOK, rec.Code)
	idx := decodeIndex(t, rec)
	assert.True(t, idx.Authenticated)
	assert.Equal(t, "Short URL created: http://sho.rt/abc123", idx.Flash)
	require.Len(t, idx.Links, 1)
	assert.Equal(t, "abc123", idx.Links[0].ShortCode)
	assert.Equal(t, "http://sho.rt/abc123", idx.Links[0].ShortURL)
	assert.Equal(t, "https://example.com/page", idx.Links[0].OriginalURL)
}

func TestCreateFlashMessages(t *testing.T) {
	tests := []struct {
		name  string
		input string
		flash string
	}{
		{"empty", "", "Please enter a valid URL"},
		{"blank", "   ", "Please enter a valid URL"},
		{"relative", "/just/a/path", "Invalid URL format"},
		{"scheme not allowed", "ftp://example.com/file", "Invalid URL format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			sess := h.signIn(42)

			rec := h.do(postForm("/links", url.Values{"originalUrl": {tt.input}}), sess)
			require.Equal(t, http.StatusSeeOther, rec.Code)

			rec = h.do(httptest.NewRequest(http.MethodGet, "/", nil), sess, findCookie(rec, session.FlashCookieName))
			assert.Equal(t, tt.flash, decodeIndex(t, rec).Flash)
			assert.Empty(t, h.links.items)
		})
	}
}

func TestDeleteForm(t *testing.T) {
	h := newHarness(t, nil)
	h.links.items["abc123"] = links.Link{ShortCode: "abc123", OriginalURL: "https://example.com", CreatedBy: 42}

	flashAfter := func(rec *httptest.ResponseRecorder) string {
		rec = h.do(httptest.NewRequest(http.MethodGet, "/", nil), findCookie(rec, session.FlashCookieName))
		return decodeIndex(t, rec).Flash
	}

	rec := h.do(postForm("/links/delete", url.Values{"shortCode": {"abc123"}}), h.signIn(7))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "Failed to delete URL", flashAfter(rec))
	assert.Contains(t, h.links.items, "abc123")

	rec = h.do(postForm("/links/delete", url.Values{"shortCode": {"nope00"}}), h.signIn(42))
	assert.Equal(t, "Failed to delete URL", flashAfter(rec))

	rec = h.do(postForm("/links/delete", url.Values{"shortCode": {"abc123"}}), h.signIn(42))
	assert.Equal(t, "URL deleted successfully", flashAfter(rec))
	assert.NotContains(t, h.links.items, "abc123")
}

func TestIndexAnonymous(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	idx := decodeIndex(t, rec)
	assert.False(t, idx.Authenticated)
	assert.Empty(t, idx.Links)
	assert.Empty(t, idx.Flash)
}

func TestListAPI(t *testing.T) {
	h := newHarness(t, nil)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h.links.items["abc123"] = links.Link{ShortCode: "abc123", OriginalURL: "https://a.example", CreatedBy: 42, CreatedAt: base}
	h.links.items["XYZ789"] = links.Link{ShortCode: "XYZ789", OriginalURL: "https://b.example", CreatedBy: 42, CreatedAt: base.Add(time.Hour)}
	h.links.items["Qq1234"] = links.Link{ShortCode: "Qq1234", OriginalURL: "https://c.example", CreatedBy: 7, CreatedAt: base}

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/links", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/api/links", nil), h.signIn(42))
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "LINKS_FOUND", env.Code)

	var items []linkResponse
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "XYZ789", items[0].ShortCode)
	assert.Equal(t, "abc123", items[1].ShortCode)
}

// --- Auth ---

func TestLoginRedirectsToProvider(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/auth/login?returnUrl=%2Fmine", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://provider.example/authorize?state=%2Fmine", rec.Header().Get("Location"))
}

func TestCallbackIssuesSession(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=%2Fmine", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/mine", rec.Header().Get("Location"))
	assert.Contains(t, h.accounts.items, uint64(42))

	sess := findCookie(rec, session.CookieName)
	require.NotNil(t, sess)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/", nil), sess)
	idx := decodeIndex(t, rec)
	assert.True(t, idx.Authenticated)
	assert.Equal(t, "a@b.com", idx.Email)
}

func TestCallbackUnsafeState(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state="+url.QueryEscape("https://evil.example/"), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestCallbackRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*harness)
		query   string
		message string
	}{
		{
			name:    "no access token",
			mutate:  func(h *harness) { h.provider.token = "" },
			query:   "code=c",
			message: "login cancelled or failed",
		},
		{
			name:    "user cancelled at provider",
			mutate:  func(*harness) {},
			query:   "error=access_denied",
			message: "login cancelled or failed",
		},
		{
			name:    "profile unavailable",
			mutate:  func(h *harness) { h.provider.profile = nil },
			query:   "code=c",
			message: "failed to get user information",
		},
		{
			name: "unverified email",
			mutate: func(h *harness) {
				v := false
				h.provider.profile = &accounts.Profile{ID: 42, Email: "a@b.com", Verified: &v}
			},
			query:   "code=c",
			message: "invalid external user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			tt.mutate(h)

			rec := h.do(httptest.NewRequest(http.MethodGet, "/auth/callback?"+tt.query, nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.message, rec.Body.String())
			assert.Nil(t, findCookie(rec, session.CookieName))
			assert.Empty(t, h.accounts.items)
		})
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t, nil)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := h.do(httptest.NewRequest(method, "/auth/logout", nil), h.signIn(42))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))

		cleared := findCookie(rec, session.CookieName)
		require.NotNil(t, cleared)
		assert.Empty(t, cleared.Value)
	}
}

// --- Health ---

func TestHealth(t *testing.T) {
	h := newHarness(t, func(o *RouterOptions) {
		o.HealthChecks = map[string]HealthCheck{"store": func(context.Context) error { return nil }}
	})
	rec := h.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"up"`)

	h = newHarness(t, func(o *RouterOptions) {
		o.HealthChecks = map[string]HealthCheck{"store": func(context.Context) error { return errors.New("down") }}
	})
	rec = h.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"down"`)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.do(httptest.NewRequest(http.MethodGet, "/nope00", nil))

	rec := h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
