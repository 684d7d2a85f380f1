package accounts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[uint64]Account
	inserts  int
	findErr  error
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[uint64]Account)}
}

func (m *memAccountRepo) FindByID(_ context.Context, id uint64) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

func (m *memAccountRepo) Insert(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; ok {
		return ErrAccountExists
	}
	m.inserts++
	m.accounts[account.ID] = *account
	return nil
}

type fakeProvider struct {
	exchangeFn func(ctx context.Context, code string) (string, error)
	profileFn  func(ctx context.Context, token string) (*Profile, error)
	lastState  string
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	f.lastState = state
	return "https://provider.example/authorize?state=" + state
}

func (f *fakeProvider) Exchange(ctx context.Context, code string) (string, error) {
	return f.exchangeFn(ctx, code)
}

func (f *fakeProvider) FetchProfile(ctx context.Context, token string) (*Profile, error) {
	return f.profileFn(ctx, token)
}

func boolPtr(b bool) *bool { return &b }

func validProvider(profile Profile) *fakeProvider {
	return &fakeProvider{
		exchangeFn: func(context.Context, string) (string, error) { return "access-token", nil },
		profileFn: func(_ context.Context, token string) (*Profile, error) {
			if token != "access-token" {
				return nil, errors.New("bad token")
			}
			p := profile
			return &p, nil
		},
	}
}

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(repo AccountRepository, provider Provider, allowSignup bool) *Service {
	svc := NewService(repo, provider, allowSignup)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

var verifiedProfile = Profile{ID: 42, Email: "a@b.com", Verified: boolPtr(true)}

// --- Tests ---

func TestLoginURLCarriesReturnPath(t *testing.T) {
	p := &fakeProvider{}
	svc := newTestService(newMemAccountRepo(), p, true)

	url := svc.LoginURL(" /dashboard ")
	assert.Equal(t, "/dashboard", p.lastState)
	assert.Contains(t, url, "state=/dashboard")
}

func TestCallback_NewAccountWithSignupsEnabled(t *testing.T) {
	repo := newMemAccountRepo()
	svc := newTestService(repo, validProvider(verifiedProfile), true)

	res, err := svc.Callback(context.Background(), "code", "/mine")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, Identity{AccountID: 42, Email: "a@b.com"}, res.Identity)
	assert.Equal(t, "/mine", res.RedirectTo)

	require.Equal(t, 1, repo.inserts)
	stored := repo.accounts[42]
	assert.Equal(t, "a@b.com", stored.Email)
	assert.Equal(t, fixedNow, stored.CreatedAt)
}

func TestCallback_ExistingAccountIsNotRefreshed(t *testing.T) {
	repo := newMemAccountRepo()
	created := fixedNow.Add(-24 * time.Hour)
	repo.accounts[42] = Account{ID: 42, Email: "old@b.com", CreatedAt: created}

	svc := newTestService(repo, validProvider(verifiedProfile), false)

	res, err := svc.Callback(context.Background(), "code", "")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "old@b.com", res.Identity.Email)
	assert.Equal(t, "/", res.RedirectTo)
	assert.Equal(t, 0, repo.inserts)
	assert.Equal(t, created, repo.accounts[42].CreatedAt)
}

func TestCallback_RegistrationsClosed(t *testing.T) {
	repo := newMemAccountRepo()
	svc := newTestService(repo, validProvider(verifiedProfile), false)

	_, err := svc.Callback(context.Background(), "code", "/")
	require.ErrorIs(t, err, ErrRegistrationsClosed)
	reason, ok := Reason(err)
	assert.True(t, ok)
	assert.Equal(t, "registrations closed", reason)
	assert.Empty(t, repo.accounts)
}

func TestCallback_NoAccessToken(t *testing.T) {
	repo := newMemAccountRepo()
	profileCalled := false
	p := &fakeProvider{
		exchangeFn: func(context.Context, string) (string, error) { return "", nil },
		profileFn: func(context.Context, string) (*Profile, error) {
			profileCalled = true
			return nil, nil
		},
	}
	svc := newTestService(repo, p, true)

	_, err := svc.Callback(context.Background(), "code", "/")
	require.ErrorIs(t, err, ErrLoginFailed)
	reason, _ := Reason(err)
	assert.Equal(t, "login cancelled or failed", reason)
	assert.False(t, profileCalled)
	assert.Empty(t, repo.accounts)
}

func TestCallback_ExchangeError(t *testing.T) {
	p := &fakeProvider{
		exchangeFn: func(context.Context, string) (string, error) { return "", errors.New("invalid_grant") },
	}
	svc := newTestService(newMemAccountRepo(), p, true)

	_, err := svc.Callback(context.Background(), "code", "/")
	assert.ErrorIs(t, err, ErrLoginFailed)
}

func TestCallback_MissingCode(t *testing.T) {
	svc := newTestService(newMemAccountRepo(), &fakeProvider{}, true)

	_, err := svc.Callback(context.Background(), "", "/")
	assert.ErrorIs(t, err, ErrLoginFailed)
}

func TestCallback_ProfileUnavailable(t *testing.T) {
	repo := newMemAccountRepo()
	p := &fakeProvider{
		exchangeFn: func(context.Context, string) (string, error) { return "tok", nil },
		profileFn:  func(context.Context, string) (*Profile, error) { return nil, errors.New("status 500") },
	}
	svc := newTestService(repo, p, true)

	_, err := svc.Callback(context.Background(), "code", "/")
	require.ErrorIs(t, err, ErrProfileUnavailable)
	reason, _ := Reason(err)
	assert.Equal(t, "failed to get user information", reason)
	assert.Empty(t, repo.accounts)
}

func TestCallback_InvalidProfiles(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
	}{
		{"zero id", Profile{ID: 0, Email: "a@b.com", Verified: boolPtr(true)}},
		{"missing email", Profile{ID: 42, Verified: boolPtr(true)}},
		{"unverified", Profile{ID: 42, Email: "a@b.com", Verified: boolPtr(false)}},
		{"verified absent", Profile{ID: 42, Email: "a@b.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemAccountRepo()
			svc := newTestService(repo, validProvider(tt.profile), true)

			_, err := svc.Callback(context.Background(), "code", "/")
			require.ErrorIs(t, err, ErrInvalidProfile)
			reason, _ := Reason(err)
			assert.Equal(t, "invalid external user", reason)
			assert.Empty(t, repo.accounts)
		})
	}
}

func TestCallback_UnsafeStateFallsBackToLanding(t *testing.T) {
	svc := newTestService(newMemAccountRepo(), validProvider(verifiedProfile), true)

	res, err := svc.Callback(context.Background(), "code", "https://evil.example/")
	require.NoError(t, err)
	assert.Equal(t, "/", res.RedirectTo)
}

type racingRepo struct {
	*memAccountRepo
	lost bool
}

// Insert simulates another request creating the same account first.
func (r *racingRepo) Insert(ctx context.Context, account *Account) error {
	if !r.lost {
		r.lost = true
		winner := *account
		winner.Email = "winner@b.com"
		_ = r.memAccountRepo.Insert(ctx, &winner)
		return ErrAccountExists
	}
	return r.memAccountRepo.Insert(ctx, account)
}

func TestCallback_ConcurrentFirstLoginReusesWinner(t *testing.T) {
	repo := &racingRepo{memAccountRepo: newMemAccountRepo()}
	svc := newTestService(repo, validProvider(verifiedProfile), true)

	res, err := svc.Callback(context.Background(), "code", "/")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "winner@b.com", res.Identity.Email)
	assert.Equal(t, 1, repo.inserts)
}

func TestCallback_StoreFailureIsNotARejection(t *testing.T) {
	repo := newMemAccountRepo()
	repo.findErr = errors.New("connection reset")
	svc := newTestService(repo, validProvider(verifiedProfile), true)

	_, err := svc.Callback(context.Background(), "code", "/")
	require.Error(t, err)
	_, ok := Reason(err)
	assert.False(t, ok)
}
