// Package backend is the HTTP client for the dyschat backend API: session
// fetch/create, profile completion, usage accounting, and feedback. Session
// calls fail soft: backend unavailability degrades features, it never logs
// the user out.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"dyschat/internal/config"
	"dyschat/internal/logging"
)

// Client talks to the backend API over authenticated HTTP.
type Client struct {
	cfg        config.BackendConfig
	httpClient *http.Client

	mu          sync.Mutex
	useFallback bool

	group singleflight.Group
}

// NewClient creates a backend client from config.
func NewClient(cfg config.BackendConfig) *Client {
	timeout := 5 * time.Minute
	if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
		timeout = d
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the currently active base URL.
func (c *Client) BaseURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.useFallback && c.cfg.FallbackURL != "" {
		return c.cfg.FallbackURL
	}
	return c.cfg.BaseURL
}

// failover switches to the fallback base URL. It returns false when no
// fallback is configured, in which case the caller re-raises the original
// error.
func (c *Client) failover() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.FallbackURL == "" || c.useFallback {
		return false
	}
	c.useFallback = true
	logging.BackendWarn("Primary backend unreachable, failing over to %s", c.cfg.FallbackURL)
	return true
}

// newRequest builds an authenticated JSON request against the active base URL.
func (c *Client) newRequest(ctx context.Context, method, path, token string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do executes the request, retrying once against the fallback URL on a
// transport failure. HTTP status handling is left to the caller.
func (c *Client) do(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, token, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	if !c.failover() {
		return nil, err
	}

	retry, rerr := c.newRequest(ctx, method, path, token, body)
	if rerr != nil {
		return nil, err
	}
	return c.httpClient.Do(retry)
}

// decodeError drains a non-2xx response into an APIError.
func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, apiErr)
	return apiErr
}

// FetchSession gets the server-side session record. Any non-success status
// or network error yields (nil, nil): the caller falls back to identity-only
// data and stays authenticated. Concurrent fetches are deduplicated.
func (c *Client) FetchSession(ctx context.Context, token string) (*SessionRecord, error) {
	v, err, _ := c.group.Do("session", func() (any, error) {
		resp, err := c.do(ctx, http.MethodGet, c.cfg.SessionPath, token, nil)
		if err != nil {
			logging.BackendWarn("Session fetch failed: %v", err)
			return nil, nil
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			logging.BackendWarn("Session fetch returned status %d", resp.StatusCode)
			return nil, nil
		}

		var rec SessionRecord
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			logging.BackendWarn("Session fetch returned malformed body: %v", err)
			return nil, nil
		}
		logging.BackendDebug("Session fetched: premium=%v count=%d completed=%v",
			rec.IsPremium, rec.DailyQuestionCount, rec.ProfileCompleted)
		return &rec, nil
	})
	if err != nil || v == nil {
		return nil, nil
	}
	return v.(*SessionRecord), nil
}

// CreateSession creates the server-side session record for a new user.
// Same soft-fail contract as FetchSession.
func (c *Client) CreateSession(ctx context.Context, token string, ns NewSession) (*SessionRecord, error) {
	resp, err := c.do(ctx, http.MethodPost, c.cfg.SessionPath, token, ns)
	if err != nil {
		logging.BackendWarn("Session create failed: %v", err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.BackendWarn("Session create returned status %d", resp.StatusCode)
		return nil, nil
	}

	var rec SessionRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		logging.BackendWarn("Session create returned malformed body: %v", err)
		return nil, nil
	}
	logging.Backend("Session created for %s", ns.Email)
	return &rec, nil
}

// CompleteProfile submits the onboarding profile. Unlike the session calls
// this returns a hard error: the form has to show the failure.
func (c *Client) CompleteProfile(ctx context.Context, token string, sub ProfileSubmission) (*SessionRecord, error) {
	resp, err := c.do(ctx, http.MethodPost, c.cfg.ProfilePath, token, sub)
	if err != nil {
		return nil, fmt.Errorf("profile submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	var rec SessionRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		// Some deployments return only a status object; the caller
		// re-fetches the session in that case.
		logging.BackendDebug("Profile response body not a session record: %v", err)
		return nil, nil
	}
	logging.Backend("Profile completed")
	return &rec, nil
}

// IncrementUsage bumps the daily question counter. Best effort: callers
// swallow errors since the authoritative count is reconciled on the next
// session fetch.
func (c *Client) IncrementUsage(ctx context.Context, token string) (int, error) {
	resp, err := c.do(ctx, http.MethodPost, c.cfg.IncrementPath, token, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, decodeError(resp)
	}

	var result UsageResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	return result.DailyQuestionCount, nil
}

// SubmitFeedback sends a feedback record.
func (c *Client) SubmitFeedback(ctx context.Context, token string, fb Feedback) error {
	resp, err := c.do(ctx, http.MethodPost, c.cfg.FeedbackPath, token, fb)
	if err != nil {
		return fmt.Errorf("feedback submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	return nil
}
