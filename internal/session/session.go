// =============================================================================
// QBO Sales Receipt Extractor - Session Manager
// =============================================================================
//
// This module owns the access-token lifecycle for one run. The accounting
// API only accepts short-lived bearer tokens; they are obtained by exchanging
// the long-lived refresh token at the OAuth2 token endpoint.
//
// LIFECYCLE:
//   - No session exists until the first EnsureAuthorized call.
//   - A session is replaced whenever it is within ExpiryMargin of expiring,
//     or when the fetcher reports that the API rejected it (Reauthorize).
//   - Sessions are never persisted; every process run starts without one.
//
// REFRESH TOKEN ROTATION:
//   The token endpoint may return a new refresh token with every exchange.
//   The old one stops working soon after, so the manager updates its copy
//   and hands the new value to the OnRotate callback. Persisting it is the
//   caller's job.
//
// A Manager is not safe for concurrent use; a run drives it from one
// goroutine.
//
// =============================================================================

package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/config"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Manager. Zero values select the defaults noted on
// each field.
type Options struct {
	// TokenURL is the token endpoint. Default: config.TokenURL
	TokenURL string

	// HTTPClient performs the token requests. Default: client with a 30s timeout.
	HTTPClient *http.Client

	// ExpiryMargin is subtracted from the token expiry. Default: 60s
	ExpiryMargin time.Duration

	// RetryDelay is the wait before the single transient retry. Default: 1s
	RetryDelay time.Duration

	// Now is the clock. Default: time.Now
	Now func() time.Time

	// OnRotate is called with the new refresh token after a rotation.
	OnRotate func(refreshToken string) error

	// Logger receives lifecycle messages. Default: logrus standard logger.
	Logger logrus.FieldLogger
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager issues Grants backed by a refreshed access token.
type Manager struct {
	oauth        *oauth2.Config
	refreshToken string
	current      *session
	refreshes    int
	opts         Options
}

// session is the access token of the current run. It never leaves the
// package; callers only see Grants.
type session struct {
	accessToken string
	expiresAt   time.Time
}

// Grant is the authorized-request capability handed to the fetcher.
type Grant struct {
	accessToken string
	expiresAt   time.Time
}

// Apply sets the bearer authorization header on req.
func (g Grant) Apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+g.accessToken)
}

// ExpiresAt returns the expiry of the underlying access token. The zero
// time means the endpoint did not report one.
func (g Grant) ExpiresAt() time.Time {
	return g.expiresAt
}

// New creates a Manager for the given credentials.
func New(creds config.Credentials, opts Options) *Manager {
	if opts.TokenURL == "" {
		opts.TokenURL = config.TokenURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.ExpiryMargin == 0 {
		opts.ExpiryMargin = 60 * time.Second
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Manager{
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Endpoint: oauth2.Endpoint{
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		refreshToken: creds.RefreshToken,
		opts:         opts,
	}
}

// EnsureAuthorized returns a Grant for the current session, refreshing it
// first when there is no session or it is about to expire.
func (m *Manager) EnsureAuthorized(ctx context.Context) (Grant, error) {
	if m.current != nil && !m.expired() {
		return m.grant(), nil
	}
	if m.current != nil {
		m.opts.Logger.Debug("access token expired, refreshing")
	}
	if err := m.refresh(ctx); err != nil {
		return Grant{}, err
	}
	return m.grant(), nil
}

// Reauthorize discards the current session and refreshes unconditionally.
// The fetcher calls it when the API rejects a token that looked valid.
func (m *Manager) Reauthorize(ctx context.Context) (Grant, error) {
	m.current = nil
	if err := m.refresh(ctx); err != nil {
		return Grant{}, err
	}
	return m.grant(), nil
}

// RefreshToken returns the most recently issued refresh token.
func (m *Manager) RefreshToken() string {
	return m.refreshToken
}

// Refreshes returns the number of successful token exchanges so far.
func (m *Manager) Refreshes() int {
	return m.refreshes
}

// expired reports whether the session is within the margin of its expiry.
// A session without expiry never expires on its own.
func (m *Manager) expired() bool {
	if m.current.expiresAt.IsZero() {
		return false
	}
	return !m.opts.Now().Add(m.opts.ExpiryMargin).Before(m.current.expiresAt)
}

func (m *Manager) grant() Grant {
	return Grant{accessToken: m.current.accessToken, expiresAt: m.current.expiresAt}
}

// =============================================================================
// TOKEN EXCHANGE
// =============================================================================

// refresh exchanges the refresh token, retrying once on a transient failure.
func (m *Manager) refresh(ctx context.Context) error {
	tok, err := m.exchange(ctx)
	if err != nil && isTransient(err) {
		m.opts.Logger.WithError(redactedError(err)).Warn("token refresh failed, retrying once")
		select {
		case <-ctx.Done():
			return &AuthError{Cause: ctx.Err()}
		case <-time.After(m.opts.RetryDelay):
		}
		tok, err = m.exchange(ctx)
	}
	if err != nil {
		return toAuthError(err)
	}
	if tok.AccessToken == "" {
		return &AuthError{Cause: errors.New("token endpoint returned no access token")}
	}

	m.current = &session{accessToken: tok.AccessToken, expiresAt: tok.Expiry}
	m.refreshes++
	m.opts.Logger.WithField("expires_at", tok.Expiry.Format(time.RFC3339)).Info("access token refreshed")

	if tok.RefreshToken != "" && tok.RefreshToken != m.refreshToken {
		m.refreshToken = tok.RefreshToken
		m.opts.Logger.Info("refresh token rotated")
		if m.opts.OnRotate != nil {
			if err := m.opts.OnRotate(tok.RefreshToken); err != nil {
				m.opts.Logger.WithError(err).Error("failed to persist rotated refresh token; the stored token is now stale")
			}
		}
	}
	return nil
}

// exchange performs one refresh_token grant.
func (m *Manager) exchange(ctx context.Context) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.opts.HTTPClient)
	src := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: m.refreshToken})
	return src.Token()
}

// isTransient reports whether a failed exchange is retried: no response,
// a 5xx or a 429.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return true
	}
	if rErr.Response == nil {
		return true
	}
	code := rErr.Response.StatusCode
	return code >= 500 || code == http.StatusTooManyRequests
}

func toAuthError(err error) *AuthError {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		authErr := &AuthError{Code: rErr.ErrorCode, Cause: redactedError(err)}
		if rErr.Response != nil {
			authErr.StatusCode = rErr.Response.StatusCode
		}
		return authErr
	}
	return &AuthError{Cause: err}
}

// redactedError drops the response body of token endpoint errors before
// they reach a log line.
func redactedError(err error) error {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return err
	}
	if rErr.Response != nil {
		return errors.New("token endpoint status " + rErr.Response.Status)
	}
	return errors.New("token endpoint error")
}
