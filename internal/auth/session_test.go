package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tagctl/gtm-go/internal/tokenfile"
)

// testTokenJSON is the canonical refresh response for tests.
const testTokenJSON = `{
	"access_token": "new-access-token",
	"token_type": "Bearer",
	"refresh_token": "new-refresh-token",
	"expires_in": 3600
}`

// newMockTokenServer returns an endpoint whose token URL counts POSTs.
// handler defaults to returning testTokenJSON.
func newMockTokenServer(t *testing.T, handler http.HandlerFunc) (oauth2.Endpoint, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32

	if handler == nil {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(testTokenJSON))
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return oauth2.Endpoint{
		AuthURL:  srv.URL + "/auth",
		TokenURL: srv.URL + "/token",
	}, &calls
}

// stubConsent is a ConsentFlow returning a fixed token or error.
type stubConsent struct {
	tok   *oauth2.Token
	err   error
	calls int
}

func (s *stubConsent) Obtain(_ context.Context, _ *oauth2.Config) (*oauth2.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	return s.tok, nil
}

func newTestSession(t *testing.T, tokenPath string, endpoint oauth2.Endpoint, consent ConsentFlow) *Session {
	t.Helper()

	return NewSession(Options{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		TokenPath:    tokenPath,
		Endpoint:     endpoint,
		Consent:      consent,
		Logger:       slog.Default(),
	})
}

func saveTestCredential(t *testing.T, path, access string, expiry time.Time) {
	t.Helper()

	require.NoError(t, tokenfile.Save(path, &tokenfile.Credential{
		Token: &oauth2.Token{
			AccessToken:  access,
			RefreshToken: "refresh-456",
			TokenType:    "Bearer",
			Expiry:       expiry,
		},
		Scopes:   Scopes,
		ClientID: "test-client",
	}))
}

func TestEnsureValid_StoredValid_NoNetworkCall(t *testing.T) {
	endpoint, calls := newMockTokenServer(t, nil)
	path := filepath.Join(t.TempDir(), "token.json")
	saveTestCredential(t, path, "stored-access", time.Now().Add(time.Hour))

	s := newTestSession(t, path, endpoint, nil)

	handle, err := s.EnsureValid(context.Background())
	require.NoError(t, err)

	tok, err := handle.Token()
	require.NoError(t, err)
	assert.Equal(t, "stored-access", tok)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, ValidCredential, s.State())
}

func TestEnsureValid_Expired_SingleRefresh(t *testing.T) {
	endpoint, calls := newMockTokenServer(t, nil)
	path := filepath.Join(t.TempDir(), "token.json")

	oldExpiry := time.Now().Add(-10 * time.Minute)
	saveTestCredential(t, path, "stale-access", oldExpiry)

	s := newTestSession(t, path, endpoint, nil)

	handle, err := s.EnsureValid(context.Background())
	require.NoError(t, err)

	tok, err := handle.Token()
	require.NoError(t, err)
	assert.Equal(t, "new-access-token", tok)
	assert.NotEqual(t, "stale-access", tok)
	assert.Equal(t, int32(1), calls.Load())

	// The credential file on disk reflects the refreshed token.
	cred, err := tokenfile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "new-access-token", cred.Token.AccessToken)
	assert.True(t, cred.Token.Expiry.After(oldExpiry))
}

func TestEnsureValid_ExpiryMargin(t *testing.T) {
	endpoint, calls := newMockTokenServer(t, nil)
	path := filepath.Join(t.TempDir(), "token.json")

	// 30s of validity left is inside the 60s margin: treated as expired.
	saveTestCredential(t, path, "nearly-expired", time.Now().Add(30*time.Second))

	s := newTestSession(t, path, endpoint, nil)

	handle, err := s.EnsureValid(context.Background())
	require.NoError(t, err)

	tok, err := handle.Token()
	require.NoError(t, err)
	assert.Equal(t, "new-access-token", tok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEnsureValid_RefreshKeepsOldRefreshToken(t *testing.T) {
	// Token endpoint omits the refresh token in its response.
	endpoint, _ := newMockTokenServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access-token","token_type":"Bearer","expires_in":3600}`))
	})
	path := filepath.Join(t.TempDir(), "token.json")
	saveTestCredential(t, path, "stale-access", time.Now().Add(-time.Hour))

	s := newTestSession(t, path, endpoint, nil)

	_, err := s.EnsureValid(context.Background())
	require.NoError(t, err)

	cred, err := tokenfile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "refresh-456", cred.Token.RefreshToken)
}

func TestEnsureValid_RefreshFails_RunsConsent(t *testing.T) {
	endpoint, calls := newMockTokenServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})
	path := filepath.Join(t.TempDir(), "token.json")
	saveTestCredential(t, path, "stale-access", time.Now().Add(-time.Hour))

	consent := &stubConsent{tok: &oauth2.Token{
		AccessToken:  "consent-access",
		RefreshToken: "consent-refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}}

	s := newTestSession(t, path, endpoint, consent)

	handle, err := s.EnsureValid(context.Background())
	require.NoError(t, err)

	tok, err := handle.Token()
	require.NoError(t, err)
	assert.Equal(t, "consent-access", tok)
	assert.Equal(t, 1, consent.calls)
	// Exactly one silent refresh attempt, never more.
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, ValidCredential, s.State())
}

func TestEnsureValid_RefreshFails_NoConsent(t *testing.T) {
	endpoint, _ := newMockTokenServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})
	path := filepath.Join(t.TempDir(), "token.json")
	saveTestCredential(t, path, "stale-access", time.Now().Add(-time.Hour))

	s := newTestSession(t, path, endpoint, nil)

	_, err := s.EnsureValid(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthExpired)
	assert.Equal(t, AwaitingConsent, s.State())
}

func TestEnsureValid_NoCredential_NoConsent(t *testing.T) {
	endpoint, _ := newMockTokenServer(t, nil)
	path := filepath.Join(t.TempDir(), "token.json")

	s := newTestSession(t, path, endpoint, nil)

	_, err := s.EnsureValid(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Equal(t, NoCredential, s.State())
}

func TestEnsureValid_ConsentCancelled_NoTokenFile(t *testing.T) {
	endpoint, _ := newMockTokenServer(t, nil)
	path := filepath.Join(t.TempDir(), "token.json")

	consent := &stubConsent{err: &ConsentError{Reason: "authorization denied: access_denied"}}
	s := newTestSession(t, path, endpoint, consent)

	_, err := s.EnsureValid(context.Background())
	require.Error(t, err)

	var consentErr *ConsentError
	assert.ErrorAs(t, err, &consentErr)

	// No token file was created.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEnsureValid_CorruptFile_TreatedAsAbsent(t *testing.T) {
	endpoint, _ := newMockTokenServer(t, nil)
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{corrupt"), 0o600))

	s := newTestSession(t, path, endpoint, nil)

	_, err := s.EnsureValid(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestEnsureValid_ScopeDowngrade_ForcesReconsent(t *testing.T) {
	endpoint, _ := newMockTokenServer(t, nil)
	path := filepath.Join(t.TempDir(), "token.json")

	require.NoError(t, tokenfile.Save(path, &tokenfile.Credential{
		Token: &oauth2.Token{
			AccessToken:  "narrow-access",
			RefreshToken: "narrow-refresh",
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(time.Hour),
		},
		Scopes:   []string{"https://www.googleapis.com/auth/tagmanager.readonly"},
		ClientID: "test-client",
	}))

	s := newTestSession(t, path, endpoint, nil)

	_, err := s.EnsureValid(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestEnsureValid_DifferentClient_ForcesReconsent(t *testing.T) {
	endpoint, _ := newMockTokenServer(t, nil)
	path := filepath.Join(t.TempDir(), "token.json")

	saveTestCredential(t, path, "other-access", time.Now().Add(time.Hour))

	s := NewSession(Options{
		ClientID:     "another-client",
		ClientSecret: "test-secret",
		TokenPath:    path,
		Endpoint:     endpoint,
		Logger:       slog.Default(),
	})

	_, err := s.EnsureValid(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestEnsureValid_ExpiredWithoutRefreshToken(t *testing.T) {
	endpoint, calls := newMockTokenServer(t, nil)
	path := filepath.Join(t.TempDir(), "token.json")

	require.NoError(t, tokenfile.Save(path, &tokenfile.Credential{
		Token: &oauth2.Token{
			AccessToken: "stale-access",
			TokenType:   "Bearer",
			Expiry:      time.Now().Add(-time.Hour),
		},
		Scopes:   Scopes,
		ClientID: "test-client",
	}))

	s := newTestSession(t, path, endpoint, nil)

	_, err := s.EnsureValid(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Equal(t, int32(0), calls.Load())
}

func TestEnsureValid_SecondCallReusesHandle(t *testing.T) {
	endpoint, calls := newMockTokenServer(t, nil)
	path := filepath.Join(t.TempDir(), "token.json")
	saveTestCredential(t, path, "stored-access", time.Now().Add(time.Hour))

	s := newTestSession(t, path, endpoint, nil)

	first, err := s.EnsureValid(context.Background())
	require.NoError(t, err)

	second, err := s.EnsureValid(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(0), calls.Load())
}

func TestEnsureValid_PersistFailure_SessionStillUsable(t *testing.T) {
	endpoint, _ := newMockTokenServer(t, nil)

	// Point the token path at an existing directory so the rename in Save
	// fails: the session must keep working, just non-persistent.
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")
	require.NoError(t, os.Mkdir(path, 0o700))

	consent := &stubConsent{tok: &oauth2.Token{
		AccessToken:  "consent-access",
		RefreshToken: "consent-refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}}

	s := newTestSession(t, path, endpoint, consent)

	handle, err := s.EnsureValid(context.Background())
	require.NoError(t, err)

	tok, err := handle.Token()
	require.NoError(t, err)
	assert.Equal(t, "consent-access", tok)
}

func TestLogout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	saveTestCredential(t, path, "stored-access", time.Now().Add(time.Hour))

	require.NoError(t, Logout(path, slog.Default()))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Logging out twice is fine.
	assert.NoError(t, Logout(path, slog.Default()))
}

func TestScopesCover(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required []string
		want     bool
	}{
		{"exact", []string{"a", "b"}, []string{"a", "b"}, true},
		{"superset", []string{"a", "b", "c"}, []string{"a", "b"}, true},
		{"missing", []string{"a"}, []string{"a", "b"}, false},
		{"empty granted assumed ok", nil, []string{"a"}, true},
		{"empty required", []string{"a"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scopesCover(tt.granted, tt.required))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "no-credential", NoCredential.String())
	assert.Equal(t, "valid", ValidCredential.String())
	assert.Equal(t, "expired", ExpiredCredential.String())
	assert.Equal(t, "awaiting-consent", AwaitingConsent.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestHandle_WrapsRefreshFailure(t *testing.T) {
	h := &handle{
		src:        failingSource{},
		save:       func(_ *oauth2.Token) {},
		logger:     slog.Default(),
		lastAccess: "old",
	}

	_, err := h.Token()
	assert.ErrorIs(t, err, ErrAuthExpired)
}

type failingSource struct{}

func (failingSource) Token() (*oauth2.Token, error) {
	return nil, errors.New("boom")
}
