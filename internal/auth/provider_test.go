package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dyschat/internal/config"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		Domain:       "example.auth0.com",
		ClientID:     "client-123",
		Audience:     "https://api.example.com/",
		Scope:        "openid profile email offline_access",
		CallbackPort: 53124,
	}
}

func freshToken() *Token {
	return &Token{
		AccessToken:  "access-fresh",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func staleToken() *Token {
	return &Token{
		AccessToken:  "access-stale",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Minute),
	}
}

func TestTokenValidNoNetwork(t *testing.T) {
	p := &Provider{cfg: testAuthConfig(), token: freshToken()}

	got := p.Token(context.Background())
	if got != "access-fresh" {
		t.Fatalf("Token() = %q, want the stored access token", got)
	}
	if p.LoginRequired() {
		t.Error("valid token must not flag login required")
	}
}

func TestTokenSignedOut(t *testing.T) {
	p := &Provider{cfg: testAuthConfig()}

	if got := p.Token(context.Background()); got != "" {
		t.Fatalf("Token() = %q, want empty for signed-out", got)
	}
	if !p.LoginRequired() {
		t.Error("missing token must flag login required")
	}
}

func TestTokenStaleWithoutRefreshToken(t *testing.T) {
	tok := staleToken()
	tok.RefreshToken = ""
	p := &Provider{cfg: testAuthConfig(), token: tok}

	if got := p.Token(context.Background()); got != "" {
		t.Fatalf("Token() = %q, want empty", got)
	}
	if !p.LoginRequired() {
		t.Error("unrefreshable token must flag login required")
	}
}

func TestTokenRefreshesAndPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.Form.Get("refresh_token"); got != "refresh-1" {
			t.Errorf("refresh_token = %q", got)
		}
		fmt.Fprint(w, `{"access_token":"access-new","refresh_token":"refresh-2","expires_in":3600,"token_type":"Bearer"}`)
	}))
	defer srv.Close()

	dir, err := os.MkdirTemp("", "dyschat-auth")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	p := &Provider{
		cfg:       testAuthConfig(),
		tokenFile: filepath.Join(dir, "tokens.json"),
		client:    &http.Client{Timeout: 5 * time.Second},
		issuer:    srv.URL,
		token:     staleToken(),
	}

	if got := p.Token(context.Background()); got != "access-new" {
		t.Fatalf("Token() = %q, want refreshed token", got)
	}

	// Rotated refresh token must survive a reload from disk.
	reloaded := NewProvider(testAuthConfig(), dir)
	if !reloaded.Authenticated() {
		t.Fatal("reloaded provider should be authenticated")
	}
	reloaded.mu.Lock()
	rt := reloaded.token.RefreshToken
	reloaded.mu.Unlock()
	if rt != "refresh-2" {
		t.Errorf("persisted refresh token = %q, want rotated value", rt)
	}
}

func TestTokenRefreshInvalidGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"refresh token revoked"}`)
	}))
	defer srv.Close()

	p := &Provider{
		cfg:       testAuthConfig(),
		tokenFile: filepath.Join(t.TempDir(), "tokens.json"),
		client:    &http.Client{Timeout: 5 * time.Second},
		issuer:    srv.URL,
		token:     staleToken(),
	}

	if got := p.Token(context.Background()); got != "" {
		t.Fatalf("Token() = %q, want empty on invalid_grant", got)
	}
	if !p.LoginRequired() {
		t.Error("invalid_grant must flag login required")
	}
}

func TestTokenRefreshTimeoutRetriesOnce(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		first := hits == 1
		mu.Unlock()
		if first {
			time.Sleep(500 * time.Millisecond) // outlive the client timeout
			return
		}
		fmt.Fprint(w, `{"access_token":"access-new","expires_in":3600,"token_type":"Bearer"}`)
	}))
	defer srv.Close()

	p := &Provider{
		cfg:       testAuthConfig(),
		tokenFile: filepath.Join(t.TempDir(), "tokens.json"),
		client:    &http.Client{Timeout: 200 * time.Millisecond},
		issuer:    srv.URL,
		token:     staleToken(),
	}

	if got := p.Token(context.Background()); got != "access-new" {
		t.Fatalf("Token() = %q, want success on second attempt", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 2 {
		t.Errorf("refresh endpoint hit %d times, want 2", hits)
	}
	if p.LoginRequired() {
		t.Error("a recovered timeout must not flag login required")
	}
}

func TestLogoutURL(t *testing.T) {
	p := &Provider{cfg: testAuthConfig()}

	got := p.LogoutURL("https://example.com/done")
	want := "https://example.auth0.com/v2/logout?client_id=client-123&returnTo=https%3A%2F%2Fexample.com%2Fdone"
	if got != want {
		t.Errorf("LogoutURL = %q, want %q", got, want)
	}

	if got := p.LogoutURL(""); strings.Contains(got, "returnTo") {
		t.Errorf("empty returnTo must be omitted: %q", got)
	}
}

func TestLogoutClearsState(t *testing.T) {
	dir := t.TempDir()
	p := &Provider{
		cfg:       testAuthConfig(),
		tokenFile: filepath.Join(dir, "tokens.json"),
		token:     freshToken(),
	}
	if err := p.saveToken(); err != nil {
		t.Fatalf("save token: %v", err)
	}

	if err := p.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if p.Authenticated() {
		t.Error("still authenticated after logout")
	}
	if _, err := os.Stat(p.tokenFile); !os.IsNotExist(err) {
		t.Error("token file still present after logout")
	}

	// Logging out twice must not fail on the missing file.
	if err := p.Logout(); err != nil {
		t.Errorf("second Logout: %v", err)
	}
}

func TestStartLoginPKCE(t *testing.T) {
	p := &Provider{cfg: testAuthConfig()}

	flow, err := p.StartLogin()
	if err != nil {
		t.Fatalf("StartLogin: %v", err)
	}

	u, err := url.Parse(flow.AuthURL)
	if err != nil {
		t.Fatalf("parse auth URL: %v", err)
	}
	q := u.Query()
	if got := q.Get("client_id"); got != "client-123" {
		t.Errorf("client_id = %q", got)
	}
	if got := q.Get("code_challenge_method"); got != "S256" {
		t.Errorf("code_challenge_method = %q", got)
	}
	if got := q.Get("state"); got != flow.State {
		t.Errorf("state in URL = %q, flow state = %q", got, flow.State)
	}

	hash := sha256.Sum256([]byte(flow.Verifier))
	want := base64.RawURLEncoding.EncodeToString(hash[:])
	if got := q.Get("code_challenge"); got != want {
		t.Errorf("code_challenge does not match S256(verifier)")
	}
}

func TestWaitForCallbackDeliversCode(t *testing.T) {
	cfg := testAuthConfig()
	cfg.CallbackPort = 53125
	p := &Provider{cfg: cfg}

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)
	go func() {
		code, err := p.WaitForCallback(context.Background(), "state-abc")
		results <- result{code, err}
	}()

	// Poll until the callback server is up.
	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get(fmt.Sprintf("http://localhost:%d/callback?state=state-abc&code=auth-code-1", cfg.CallbackPort))
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("callback request never succeeded: %v", err)
	}
	resp.Body.Close()

	res := <-results
	if res.err != nil {
		t.Fatalf("WaitForCallback: %v", res.err)
	}
	if res.code != "auth-code-1" {
		t.Errorf("code = %q", res.code)
	}
}

func TestWaitForCallbackRejectsBadState(t *testing.T) {
	cfg := testAuthConfig()
	cfg.CallbackPort = 53126
	p := &Provider{cfg: cfg}

	errs := make(chan error, 1)
	go func() {
		_, err := p.WaitForCallback(context.Background(), "expected-state")
		errs <- err
	}()

	for i := 0; i < 50; i++ {
		resp, err := http.Get(fmt.Sprintf("http://localhost:%d/callback?state=wrong&code=x", cfg.CallbackPort))
		if err == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := <-errs; err == nil {
		t.Fatal("expected an error for a state mismatch")
	}
}

func TestExchangeCodePersistsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.Form.Get("code_verifier"); got != "verifier-1" {
			t.Errorf("code_verifier = %q", got)
		}
		fmt.Fprint(w, `{"access_token":"access-1","refresh_token":"refresh-1","id_token":"","expires_in":86400,"token_type":"Bearer"}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := &Provider{
		cfg:       testAuthConfig(),
		tokenFile: filepath.Join(dir, "tokens.json"),
		client:    &http.Client{Timeout: 5 * time.Second},
		issuer:    srv.URL,
	}

	tok, err := p.ExchangeCode(context.Background(), "code-1", "verifier-1")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if tok.AccessToken != "access-1" {
		t.Errorf("access token = %q", tok.AccessToken)
	}
	if tok.Expiry.Before(time.Now().Add(23 * time.Hour)) {
		t.Errorf("expiry not derived from expires_in: %v", tok.Expiry)
	}
	if !p.Authenticated() {
		t.Error("provider should be authenticated after exchange")
	}
	if _, err := os.Stat(p.tokenFile); err != nil {
		t.Errorf("token file not persisted: %v", err)
	}
}

// makeIDToken builds an unsigned JWT carrying the given claims; Identity
// parses without signature verification.
func makeIDToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestIdentityFromIDToken(t *testing.T) {
	idToken := makeIDToken(t, map[string]any{
		"sub":      "auth0|u1",
		"email":    "alex@example.com",
		"name":     "Alex Rivera",
		"nickname": "alex",
		"picture":  "https://cdn.example.com/alex.png",
	})
	p := &Provider{cfg: testAuthConfig(), token: &Token{IDToken: idToken}}

	id := p.Identity()
	if id == nil {
		t.Fatal("expected an identity")
	}
	if id.Subject != "auth0|u1" || id.Email != "alex@example.com" {
		t.Errorf("identity mismatch: %+v", id)
	}
	if id.AvatarURL != "https://cdn.example.com/alex.png" {
		t.Errorf("avatar = %q", id.AvatarURL)
	}
}

func TestIdentityMissing(t *testing.T) {
	if id := (&Provider{cfg: testAuthConfig()}).Identity(); id != nil {
		t.Errorf("signed-out Identity() = %+v, want nil", id)
	}
	p := &Provider{cfg: testAuthConfig(), token: &Token{IDToken: "not-a-jwt"}}
	if id := p.Identity(); id != nil {
		t.Errorf("malformed ID token should yield nil identity, got %+v", id)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		id   *Identity
		want string
	}{
		{"nil identity", nil, ""},
		{"full name wins", &Identity{Name: "Alex Rivera", Nickname: "alex", Email: "a@b.com"}, "Alex Rivera"},
		{"nickname fallback", &Identity{Nickname: "alex", Email: "a@b.com"}, "alex"},
		{"email local part", &Identity{Email: "alex@example.com"}, "alex"},
		{"last resort", &Identity{}, "User"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseAuthErrorPlainBody(t *testing.T) {
	err := parseAuthError(502, []byte("bad gateway"))
	aerr, ok := err.(*authError)
	if !ok {
		t.Fatalf("expected *authError, got %T", err)
	}
	if aerr.Code != "bad gateway" || aerr.Status != 502 {
		t.Errorf("authError = %+v", aerr)
	}
	if aerr.loginRequired() {
		t.Error("transport-level auth errors must not force a login")
	}
}
