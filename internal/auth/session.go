// Package auth manages the OAuth2 session for the Tag Manager client:
// loading the stored credential, refreshing it silently when expired, and
// running the interactive consent flow when nothing usable exists. The
// session is the only writer of the credential file.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tagctl/gtm-go/internal/tokenfile"
)

// Scopes is the fixed scope set the Tag Manager client operates with.
var Scopes = []string{
	"https://www.googleapis.com/auth/tagmanager.delete.containers",
	"https://www.googleapis.com/auth/tagmanager.edit.containers",
	"https://www.googleapis.com/auth/tagmanager.edit.containerversions",
	"https://www.googleapis.com/auth/tagmanager.manage.accounts",
	"https://www.googleapis.com/auth/tagmanager.manage.users",
	"https://www.googleapis.com/auth/tagmanager.publish",
	"https://www.googleapis.com/auth/tagmanager.readonly",
}

// expiryMargin is the remaining-validity threshold below which a stored
// access token is treated as expired and refreshed eagerly.
const expiryMargin = 60 * time.Second

// State describes what the session knows about its credential.
type State int

const (
	// NoCredential: nothing stored, consent required.
	NoCredential State = iota
	// ValidCredential: stored token has enough validity left to use as-is.
	ValidCredential
	// ExpiredCredential: stored token is stale but a refresh token exists.
	ExpiredCredential
	// AwaitingConsent: silent refresh failed, only re-consent recovers.
	AwaitingConsent
)

func (s State) String() string {
	switch s {
	case NoCredential:
		return "no-credential"
	case ValidCredential:
		return "valid"
	case ExpiredCredential:
		return "expired"
	case AwaitingConsent:
		return "awaiting-consent"
	default:
		return "unknown"
	}
}

// TokenSource provides bearer tokens for authenticated requests. The gtm
// package defines its own identical interface at the consumer side; this one
// is what EnsureValid returns.
type TokenSource interface {
	Token() (string, error)
}

// ConsentFlow acquires a brand-new credential interactively. Isolated behind
// an interface so a non-interactive flow (service account, test stub) can be
// substituted without touching the rest of the session.
type ConsentFlow interface {
	Obtain(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)
}

// Options configures a Session. ClientID, ClientSecret, and TokenPath are
// required; everything else has defaults.
type Options struct {
	ClientID     string
	ClientSecret string
	TokenPath    string

	// Scopes defaults to the fixed Tag Manager scope set.
	Scopes []string
	// Endpoint defaults to Google's OAuth2 endpoints. Tests override it.
	Endpoint oauth2.Endpoint
	// Consent is the interactive flow; nil means the session can only use
	// stored credentials and fails with ErrNotLoggedIn / ErrAuthExpired
	// when they are missing or unrefreshable.
	Consent ConsentFlow
	Logger  *slog.Logger
}

// Session owns the in-memory credential for the lifetime of a process and is
// the sole writer back to the credential file. One Session per process; a
// mutex serializes EnsureValid and the handle serializes refreshes, so at
// most one token exchange is ever in flight.
type Session struct {
	cfg       *oauth2.Config
	tokenPath string
	consent   ConsentFlow
	logger    *slog.Logger

	mu     sync.Mutex
	handle *handle
	state  State
}

// NewSession builds a session from explicit options. No package-level
// singleton: callers construct one session at startup and pass it around.
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	scopes := opts.Scopes
	if scopes == nil {
		scopes = Scopes
	}

	endpoint := opts.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}

	return &Session{
		cfg: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		tokenPath: opts.TokenPath,
		consent:   opts.Consent,
		logger:    logger,
		state:     NoCredential,
	}
}

// State reports the session's last observed credential state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// EnsureValid returns a live token handle, acquiring or refreshing the
// credential as needed. Re-evaluated on every call — a token that expires
// mid-process is refreshed transparently by the returned handle. The consent
// flow only runs when no usable stored credential exists.
func (s *Session) EnsureValid(ctx context.Context) (TokenSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return s.handle, nil
	}

	cred := s.loadStored()

	switch s.state {
	case ValidCredential:
		s.logger.Debug("stored credential valid, no network call",
			slog.Time("expiry", cred.Token.Expiry),
		)

		s.adopt(ctx, cred.Token)

		return s.handle, nil

	case ExpiredCredential:
		tok, err := s.refresh(ctx, cred.Token)
		if err == nil {
			s.state = ValidCredential
			s.persist(tok)
			s.adopt(ctx, tok)

			return s.handle, nil
		}

		s.logger.Warn("silent refresh failed, re-consent required",
			slog.String("error", err.Error()),
		)

		s.state = AwaitingConsent
	}

	// NoCredential or AwaitingConsent: interactive consent or bust.
	if s.consent == nil {
		if s.state == AwaitingConsent {
			return nil, ErrAuthExpired
		}

		return nil, ErrNotLoggedIn
	}

	tok, err := s.consent.Obtain(ctx, s.flowConfig())
	if err != nil {
		// ConsentError propagates unmodified; no token file is written.
		return nil, err
	}

	s.logger.Info("consent flow complete",
		slog.Time("expiry", tok.Expiry),
	)

	s.state = ValidCredential
	s.persist(tok)
	s.adopt(ctx, tok)

	return s.handle, nil
}

// loadStored reads the credential file and classifies the session state.
// Corrupt or mismatched credentials are treated as absent — always
// recoverable by re-consent, never fatal.
func (s *Session) loadStored() *tokenfile.Credential {
	cred, err := tokenfile.Load(s.tokenPath)
	if err != nil {
		s.logger.Warn("stored credential unusable, re-consent required",
			slog.String("path", s.tokenPath),
			slog.String("error", err.Error()),
		)

		s.state = NoCredential

		return nil
	}

	switch {
	case cred == nil:
		s.state = NoCredential
	case !scopesCover(cred.Scopes, s.cfg.Scopes):
		// Scope downgrade: the stored grant does not cover what we need.
		s.logger.Info("stored credential missing required scopes, re-consent required")
		s.state = NoCredential
		cred = nil
	case cred.ClientID != "" && cred.ClientID != s.cfg.ClientID:
		s.logger.Info("stored credential belongs to a different client, re-consent required")
		s.state = NoCredential
		cred = nil
	case tokenUsable(cred.Token):
		s.state = ValidCredential
	case cred.Token.RefreshToken != "":
		s.state = ExpiredCredential
	default:
		s.state = NoCredential
		cred = nil
	}

	return cred
}

// refresh performs exactly one refresh-token exchange against the token
// endpoint. The token endpoint tolerates repeated exchanges of the same
// refresh token, but the session never races them: callers hold s.mu.
func (s *Session) refresh(ctx context.Context, stale *oauth2.Token) (*oauth2.Token, error) {
	s.logger.Info("refreshing expired access token",
		slog.Time("old_expiry", stale.Expiry),
	)

	tok, err := s.cfg.TokenSource(ctx, stale).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}

	// A refresh response may omit the refresh token; never discard the one
	// we already hold.
	if tok.RefreshToken == "" {
		tok.RefreshToken = stale.RefreshToken
	}

	s.logger.Info("access token refreshed",
		slog.Time("new_expiry", tok.Expiry),
	)

	return tok, nil
}

// persist writes the credential to disk. A write failure is a StorageError:
// logged, not fatal — the session keeps working but is not persisted, so the
// next run re-consents.
func (s *Session) persist(tok *oauth2.Token) {
	cred := &tokenfile.Credential{
		Token:    tok,
		Scopes:   s.cfg.Scopes,
		ClientID: s.cfg.ClientID,
	}

	if err := tokenfile.Save(s.tokenPath, cred); err != nil {
		storeErr := &StorageError{Path: s.tokenPath, Err: err}
		s.logger.Warn("credential not persisted, session is transient this run",
			slog.String("error", storeErr.Error()),
		)

		return
	}

	s.logger.Debug("credential persisted",
		slog.String("path", s.tokenPath),
	)
}

// adopt installs the live handle around the given token. The handle refreshes
// transparently via the oauth2 reuse source and persists every mutation.
func (s *Session) adopt(ctx context.Context, tok *oauth2.Token) {
	s.handle = &handle{
		src:        s.cfg.TokenSource(ctx, tok),
		save:       s.persist,
		logger:     s.logger,
		lastAccess: tok.AccessToken,
	}
}

// flowConfig returns a copy of the oauth2 config for the consent flow to
// mutate (it sets RedirectURL to the loopback listener).
func (s *Session) flowConfig() *oauth2.Config {
	cfg := *s.cfg
	return &cfg
}

// Logout removes the stored credential. Idempotent: a missing file is not
// an error. A file that cannot be removed is a StorageError.
func Logout(tokenPath string, logger *slog.Logger) error {
	if err := tokenfile.Remove(tokenPath); err != nil {
		return &StorageError{Path: tokenPath, Err: err}
	}

	logger.Info("credential removed",
		slog.String("path", tokenPath),
	)

	return nil
}

// tokenUsable reports whether the access token has at least expiryMargin of
// validity left. Zero expiry means a non-expiring token.
func tokenUsable(tok *oauth2.Token) bool {
	if tok.AccessToken == "" {
		return false
	}

	if tok.Expiry.IsZero() {
		return true
	}

	return time.Until(tok.Expiry) > expiryMargin
}

// scopesCover reports whether the granted scope set includes every required
// scope. An empty granted set (older credential files) is assumed to cover.
func scopesCover(granted, required []string) bool {
	if len(granted) == 0 {
		return true
	}

	have := make(map[string]bool, len(granted))
	for _, sc := range granted {
		have[sc] = true
	}

	for _, sc := range required {
		if !have[sc] {
			return false
		}
	}

	return true
}

// handle is the authorization handle returned by EnsureValid. It adapts the
// oauth2 token source to the string-token interface, serializes refreshes,
// and persists any token the oauth2 library refreshed behind our back.
type handle struct {
	src    oauth2.TokenSource
	save   func(*oauth2.Token)
	logger *slog.Logger

	mu         sync.Mutex
	lastAccess string
}

func (h *handle) Token() (string, error) {
	// One refresh in flight at a time: refresh-token exchanges are not
	// guaranteed safe to race.
	h.mu.Lock()
	defer h.mu.Unlock()

	tok, err := h.src.Token()
	if err != nil {
		h.logger.Warn("token acquisition failed",
			slog.String("error", err.Error()),
		)

		return "", fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}

	if tok.AccessToken != h.lastAccess {
		h.logger.Info("token refreshed mid-session, persisting",
			slog.Time("new_expiry", tok.Expiry),
		)

		h.lastAccess = tok.AccessToken
		h.save(tok)
	}

	return tok.AccessToken, nil
}
