package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dyschat/internal/logging"
)

// FlowState holds the in-progress authorization-code flow parameters.
type FlowState struct {
	Verifier string
	State    string
	AuthURL  string
}

// StartLogin generates the PKCE challenge and authorization URL.
func (p *Provider) StartLogin() (*FlowState, error) {
	verifierBytes := make([]byte, 32)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, err
	}
	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	hash := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return nil, err
	}
	state := base64.RawURLEncoding.EncodeToString(stateBytes)

	u, err := url.Parse(p.authorizeURL())
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("client_id", p.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", p.redirectURL())
	q.Set("scope", p.cfg.Scope)
	q.Set("audience", p.cfg.Audience)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	q.Set("state", state)
	u.RawQuery = q.Encode()

	return &FlowState{
		Verifier: verifier,
		State:    state,
		AuthURL:  u.String(),
	}, nil
}

// WaitForCallback starts a local HTTP server to listen for the login
// redirect. Returns the authorization code, or an error.
func (p *Provider) WaitForCallback(ctx context.Context, expectedState string) (string, error) {
	codeChan := make(chan string)
	errChan := make(chan error)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		state := q.Get("state")
		code := q.Get("code")
		errStr := q.Get("error")

		if state != expectedState {
			http.Error(w, "Invalid state", http.StatusBadRequest)
			errChan <- fmt.Errorf("invalid state received")
			return
		}

		if errStr != "" {
			http.Error(w, "Login failed: "+errStr, http.StatusBadRequest)
			errChan <- fmt.Errorf("login failed: %s", errStr)
			return
		}

		if code == "" {
			http.Error(w, "No code received", http.StatusBadRequest)
			errChan <- fmt.Errorf("no code received")
			return
		}

		w.Write([]byte("Login successful! You can close this window and return to the terminal."))
		codeChan <- code
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", p.cfg.CallbackPort), Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	defer server.Close()

	select {
	case code := <-codeChan:
		return code, nil
	case err := <-errChan:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ExchangeCode executes the code exchange for tokens and persists them.
func (p *Provider) ExchangeCode(ctx context.Context, code, verifier string) (*Token, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", p.cfg.ClientID)
	data.Set("code", code)
	data.Set("code_verifier", verifier)
	data.Set("redirect_uri", p.redirectURL())

	req, err := http.NewRequestWithContext(ctx, "POST", p.tokenURL(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("code exchange failed: %w", parseAuthError(resp.StatusCode, body))
	}

	var token Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, err
	}
	token.Expiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	p.mu.Lock()
	p.token = &token
	p.loginRequired = false
	p.mu.Unlock()

	if err := p.saveToken(); err != nil {
		return nil, err
	}

	logging.Auth("Login complete, token persisted")
	return &token, nil
}

// Login runs the full interactive flow: it prints/opens the authorize URL,
// waits for the browser redirect, and exchanges the code.
func (p *Provider) Login(ctx context.Context, openBrowser func(url string) error) error {
	flow, err := p.StartLogin()
	if err != nil {
		return fmt.Errorf("failed to start login flow: %w", err)
	}

	if openBrowser != nil {
		if err := openBrowser(flow.AuthURL); err != nil {
			logging.AuthWarn("Could not open browser: %v", err)
		}
	}

	code, err := p.WaitForCallback(ctx, flow.State)
	if err != nil {
		return fmt.Errorf("login callback failed: %w", err)
	}

	if _, err := p.ExchangeCode(ctx, code, flow.Verifier); err != nil {
		return err
	}
	return nil
}
