package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"dyschat/internal/backend"
	"dyschat/internal/config"
)

type recordingHandler struct {
	sections  []int
	contents  map[int]string
	doneCount int
	streamErr string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{contents: make(map[int]string)}
}

func (h *recordingHandler) Section(index int, title, content string) {
	h.sections = append(h.sections, index)
	h.contents[index] = content
}

func (h *recordingHandler) Done() { h.doneCount++ }

func (h *recordingHandler) StreamError(msg string) { h.streamErr = msg }

func newTestClient(baseURL string) *Client {
	return NewClient(config.BackendConfig{
		BaseURL:   baseURL,
		QueryPath: "/api/query",
		Timeout:   "10s",
	})
}

func TestQueryDispatchesSections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization header = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept header = %q", got)
		}
		fmt.Fprint(w, `data: {"section":1,"title":"Quick Answer","content":"partial"}`+"\n")
		fmt.Fprint(w, `data: {"section":1,"title":"Quick Answer","content":"full answer"}`+"\n")
		fmt.Fprint(w, `data: {"section":2,"title":"From Our Knowledge Base","content":"details"}`+"\n")
		fmt.Fprint(w, `data: {"section":"complete"}`+"\n")
	}))
	defer srv.Close()

	h := newRecordingHandler()
	if err := newTestClient(srv.URL).Query(context.Background(), "tok-123", "what helps?", h); err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if h.doneCount != 1 {
		t.Errorf("Done called %d times, want 1", h.doneCount)
	}
	if h.contents[1] != "full answer" {
		t.Errorf("section 1 = %q, want last write", h.contents[1])
	}
	if h.contents[2] != "details" {
		t.Errorf("section 2 = %q", h.contents[2])
	}
}

func TestQueryQuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"detail":"Daily question limit reached"}`)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Query(context.Background(), "tok", "q", newRecordingHandler())
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !errors.Is(err, backend.ErrQuotaExceeded) {
		t.Errorf("429 should match ErrQuotaExceeded, got %v", err)
	}
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		t.Errorf("expected APIError with status 429, got %v", err)
	}
}

func TestQueryStreamErrorFinishesWithoutReturnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"section":1,"title":"Quick Answer","content":"starting"}`+"\n")
		fmt.Fprint(w, `data: {"error":"upstream model unavailable"}`+"\n")
	}))
	defer srv.Close()

	h := newRecordingHandler()
	if err := newTestClient(srv.URL).Query(context.Background(), "tok", "q", h); err != nil {
		t.Fatalf("stream errors must not surface as return errors: %v", err)
	}
	if h.streamErr != "upstream model unavailable" {
		t.Errorf("StreamError got %q", h.streamErr)
	}
	if h.doneCount != 0 {
		t.Errorf("Done must not fire after a stream error")
	}
}

func TestQueryDoneDispatchedOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"section":"complete"}`+"\n")
		fmt.Fprint(w, `data: {"section":"complete"}`+"\n")
	}))
	defer srv.Close()

	h := newRecordingHandler()
	if err := newTestClient(srv.URL).Query(context.Background(), "tok", "q", h); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if h.doneCount != 1 {
		t.Errorf("Done called %d times, want 1", h.doneCount)
	}
}

func TestQueryFlushesUnterminatedTail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no trailing newline on the final event
		fmt.Fprint(w, `data: {"section":4,"title":"Current Information","content":"late news"}`)
	}))
	defer srv.Close()

	h := newRecordingHandler()
	if err := newTestClient(srv.URL).Query(context.Background(), "tok", "q", h); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if h.contents[4] != "late news" {
		t.Errorf("unterminated final event lost: %q", h.contents[4])
	}
}
