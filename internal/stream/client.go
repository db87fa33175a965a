package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"dyschat/internal/backend"
	"dyschat/internal/config"
	"dyschat/internal/logging"
)

// Handler receives decoded stream events. Section updates for the same
// index arrive in order (last write wins); ordering across different
// indices is not guaranteed, so each slot renders independently.
type Handler interface {
	Section(index int, title, content string)
	Done()
	StreamError(msg string)
}

// Client issues streaming queries against the backend.
type Client struct {
	cfg        config.BackendConfig
	httpClient *http.Client
}

// NewClient creates a streaming query client.
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

type queryRequest struct {
	Question string `json:"question"`
}

// Query sends the question and dispatches decoded events to h until the
// stream ends. A non-2xx status before streaming begins is returned as a
// *backend.APIError (429 matches backend.ErrQuotaExceeded). Stream-level
// errors are delivered through h.StreamError and finish the stream without
// an error return; the caller already showed them to the user.
func (c *Client) Query(ctx context.Context, token, question string, h Handler) error {
	reqID := uuid.NewString()
	start := time.Now()
	logging.Stream("[%s] Query started, question_len=%d", reqID, len(question))

	body, err := json.Marshal(queryRequest{Question: question})
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.QueryPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("query request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &backend.APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(data, apiErr)
		logging.StreamWarn("[%s] Query rejected with status %d", reqID, resp.StatusCode)
		return apiErr
	}

	dec := NewDecoder()
	buf := make([]byte, 4096)
	done := false

	dispatch := func(events []Event) {
		for _, ev := range events {
			switch ev.Kind {
			case EventSection:
				h.Section(ev.Section, ev.Title, ev.Content)
			case EventComplete:
				if !done {
					done = true
					h.Done()
				}
			case EventError:
				if !done {
					done = true
					h.StreamError(ev.Err)
				}
			}
		}
	}

	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			dispatch(dec.Feed(buf[:n]))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			logging.StreamWarn("[%s] Stream read error after %v: %v", reqID, time.Since(start), rerr)
			return fmt.Errorf("stream read failed: %w", rerr)
		}
	}
	dispatch(dec.Flush())

	logging.Stream("[%s] Query finished in %v", reqID, time.Since(start))
	return nil
}
