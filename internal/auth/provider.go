// Package auth wraps the Auth0 authorization-code flow and token lifecycle
// for dyschat. It supplies bearer tokens for backend calls, silently
// refreshing them when possible and flagging when an interactive login is
// required instead of surfacing errors to callers.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dyschat/internal/config"
	"dyschat/internal/logging"
)

// expiryMargin is how long before actual expiry a token is treated as stale.
const expiryMargin = 5 * time.Minute

// Token holds the OAuth token details persisted between runs.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	Expiry       time.Time `json:"expiry"`
}

// Provider handles the Auth0 flow and token management.
type Provider struct {
	cfg       config.AuthConfig
	tokenFile string
	client    *http.Client

	// issuer overrides the https://{domain} base when set (tests).
	issuer string

	mu            sync.Mutex
	token         *Token
	loginRequired bool
}

// NewProvider creates a token provider persisting tokens under stateDir.
func NewProvider(cfg config.AuthConfig, stateDir string) *Provider {
	p := &Provider{
		cfg:       cfg,
		tokenFile: filepath.Join(stateDir, "tokens.json"),
		client:    &http.Client{Timeout: 60 * time.Second},
	}
	// Try to load an existing token; a missing file just means signed out.
	_ = p.loadToken()
	return p
}

func (p *Provider) issuerURL() string {
	if p.issuer != "" {
		return p.issuer
	}
	return "https://" + p.cfg.Domain
}

func (p *Provider) tokenURL() string {
	return p.issuerURL() + "/oauth/token"
}

func (p *Provider) authorizeURL() string {
	return p.issuerURL() + "/authorize"
}

func (p *Provider) redirectURL() string {
	return fmt.Sprintf("http://localhost:%d/callback", p.cfg.CallbackPort)
}

// loadToken loads the persisted token from disk.
func (p *Provider) loadToken() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.tokenFile)
	if err != nil {
		return err
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}
	p.token = &token
	return nil
}

// saveToken persists the current token to disk.
func (p *Provider) saveToken() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		return nil
	}

	data, err := json.MarshalIndent(p.token, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.tokenFile), 0755); err != nil {
		return err
	}
	return os.WriteFile(p.tokenFile, data, 0600)
}

// Authenticated reports whether a token (possibly stale) is present.
func (p *Provider) Authenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token != nil
}

// LoginRequired reports whether the last Token call decided that only an
// interactive login can recover. The caller is expected to run Login and
// must not assume the current operation will resume.
func (p *Provider) LoginRequired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginRequired
}

// Token returns a valid bearer token, or "" when none can be obtained.
// It never returns an error: refresh failures degrade to a signed-out
// state rather than breaking the caller. On a transient timeout the
// refresh is retried exactly once before giving up.
func (p *Provider) Token(ctx context.Context) string {
	p.mu.Lock()
	if p.token == nil {
		p.loginRequired = true
		p.mu.Unlock()
		logging.AuthDebug("Token requested with no stored token, login required")
		return ""
	}

	if time.Now().Add(expiryMargin).Before(p.token.Expiry) {
		tok := p.token.AccessToken
		p.mu.Unlock()
		return tok
	}
	refreshToken := p.token.RefreshToken
	p.mu.Unlock()

	if refreshToken == "" {
		p.setLoginRequired()
		logging.AuthWarn("Access token expired and no refresh token available")
		return ""
	}

	logging.AuthDebug("Access token stale, refreshing")
	err := p.refresh(ctx, refreshToken)
	if err == nil {
		p.mu.Lock()
		tok := p.token.AccessToken
		p.mu.Unlock()
		return tok
	}

	if isTimeout(err) {
		// Retry once with a cold connection before giving up.
		logging.AuthWarn("Token refresh timed out, retrying once: %v", err)
		p.client.CloseIdleConnections()
		if err = p.refresh(ctx, refreshToken); err == nil {
			p.mu.Lock()
			tok := p.token.AccessToken
			p.mu.Unlock()
			return tok
		}
	}

	var aerr *authError
	if errors.As(err, &aerr) && aerr.loginRequired() {
		p.setLoginRequired()
	}
	logging.AuthError("Token refresh failed: %v", err)
	return ""
}

func (p *Provider) setLoginRequired() {
	p.mu.Lock()
	p.loginRequired = true
	p.mu.Unlock()
}

// refresh exchanges the refresh token for a new access token.
func (p *Provider) refresh(ctx context.Context, refreshToken string) error {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", p.cfg.ClientID)
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, "POST", p.tokenURL(), strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return parseAuthError(resp.StatusCode, body)
	}

	var newToken Token
	if err := json.NewDecoder(resp.Body).Decode(&newToken); err != nil {
		return err
	}

	p.mu.Lock()
	p.token.AccessToken = newToken.AccessToken
	p.token.ExpiresIn = newToken.ExpiresIn
	p.token.Expiry = time.Now().Add(time.Duration(newToken.ExpiresIn) * time.Second)
	if newToken.IDToken != "" {
		p.token.IDToken = newToken.IDToken
	}
	// Auth0 rotates refresh tokens when offline_access is granted.
	if newToken.RefreshToken != "" {
		p.token.RefreshToken = newToken.RefreshToken
	}
	p.loginRequired = false
	p.mu.Unlock()

	return p.saveToken()
}

// Logout clears the persisted token and in-memory state.
func (p *Provider) Logout() error {
	p.mu.Lock()
	p.token = nil
	p.loginRequired = false
	p.mu.Unlock()

	err := os.Remove(p.tokenFile)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	logging.Auth("Logged out, token file removed")
	return nil
}

// LogoutURL returns the identity provider's logout endpoint. Removing the
// token file ends the CLI session; the browser's SSO session ends only when
// this URL is visited.
func (p *Provider) LogoutURL(returnTo string) string {
	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	if returnTo != "" {
		q.Set("returnTo", returnTo)
	}
	return "https://" + p.cfg.Domain + "/v2/logout?" + q.Encode()
}

// authError is a structured OAuth error response.
type authError struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *authError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("auth request failed (%d): %s", e.Status, e.Code)
}

// loginRequired reports whether the error class can only be recovered by
// an interactive login.
func (e *authError) loginRequired() bool {
	switch e.Code {
	case "invalid_grant", "login_required", "consent_required":
		return true
	}
	return false
}

func parseAuthError(status int, body []byte) error {
	aerr := &authError{Status: status}
	if err := json.Unmarshal(body, aerr); err != nil || aerr.Code == "" {
		aerr.Code = strings.TrimSpace(string(body))
	}
	return aerr
}

func isTimeout(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
