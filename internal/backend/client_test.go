package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dyschat/internal/config"
)

func testConfig(baseURL string) config.BackendConfig {
	return config.BackendConfig{
		BaseURL:       baseURL,
		SessionPath:   "/api/user/session",
		ProfilePath:   "/api/user/complete-profile",
		IncrementPath: "/api/user/increment-question",
		FeedbackPath:  "/api/feedback",
		Timeout:       "10s",
	}
}

func TestFetchSessionReturnsRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/user/session" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization header = %q", got)
		}
		fmt.Fprint(w, `{"email":"user@example.com","is_premium":true,"daily_question_count":3,"profile_completed":true}`)
	}))
	defer srv.Close()

	rec, err := NewClient(testConfig(srv.URL)).FetchSession(context.Background(), "tok")
	if err != nil {
		t.Fatalf("FetchSession: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a session record")
	}
	if !rec.IsPremium || rec.DailyQuestionCount != 3 || !rec.ProfileCompleted {
		t.Errorf("record mismatch: %+v", rec)
	}
}

func TestFetchSessionSoftFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec, err := NewClient(testConfig(srv.URL)).FetchSession(context.Background(), "tok")
	if err != nil {
		t.Fatalf("session fetch must never hard-fail on status, got %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record on 500, got %+v", rec)
	}
}

func TestFetchSessionSoftFailsWhenUnreachable(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1") // nothing listens here
	cfg.Timeout = "500ms"

	rec, err := NewClient(cfg).FetchSession(context.Background(), "tok")
	if err != nil || rec != nil {
		t.Errorf("expected (nil, nil) on transport failure, got (%+v, %v)", rec, err)
	}
}

func TestFetchSessionDeduplicatesConcurrentCalls(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		<-release
		fmt.Fprint(w, `{"daily_question_count":1}`)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.FetchSession(context.Background(), "tok")
		}()
	}
	// Give all four calls time to join the in-flight fetch before it returns.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Errorf("expected concurrent fetches deduplicated to 1 request, backend saw %d", hits)
	}
}

func TestFailoverRetriesAgainstFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"email":"fallback@example.com"}`)
	}))
	defer srv.Close()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.FallbackURL = srv.URL
	cfg.Timeout = "500ms"

	c := NewClient(cfg)
	rec, err := c.FetchSession(context.Background(), "tok")
	if err != nil {
		t.Fatalf("FetchSession: %v", err)
	}
	if rec == nil || rec.Email != "fallback@example.com" {
		t.Fatalf("expected record from fallback, got %+v", rec)
	}
	if got := c.BaseURL(); got != srv.URL {
		t.Errorf("client should stay on fallback, BaseURL = %q", got)
	}
}

func TestNoFallbackConfiguredSoftFails(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Timeout = "500ms"

	c := NewClient(cfg)
	if rec, err := c.FetchSession(context.Background(), "tok"); rec != nil || err != nil {
		t.Errorf("expected (nil, nil), got (%+v, %v)", rec, err)
	}
	if got := c.BaseURL(); got != cfg.BaseURL {
		t.Errorf("BaseURL must not change without a fallback, got %q", got)
	}
}

func TestCreateSessionSendsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		fmt.Fprint(w, `{"email":"new@example.com","daily_question_count":0}`)
	}))
	defer srv.Close()

	rec, err := NewClient(testConfig(srv.URL)).CreateSession(context.Background(), "tok", NewSession{
		Email:     "new@example.com",
		Name:      "New User",
		SubjectID: "auth0|abc",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if rec == nil || rec.Email != "new@example.com" {
		t.Errorf("record mismatch: %+v", rec)
	}
}

func TestCompleteProfileHardFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"detail":"conditions must not be empty"}`)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).CompleteProfile(context.Background(), "tok", ProfileSubmission{})
	if err == nil {
		t.Fatal("profile submission errors must surface to the form")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity || apiErr.Detail != "conditions must not be empty" {
		t.Errorf("APIError mismatch: %+v", apiErr)
	}
}

func TestCompleteProfileStatusOnlyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `"ok"`)
	}))
	defer srv.Close()

	rec, err := NewClient(testConfig(srv.URL)).CompleteProfile(context.Background(), "tok", ProfileSubmission{
		Conditions: []string{"POTS"},
	})
	if err != nil {
		t.Fatalf("CompleteProfile: %v", err)
	}
	if rec != nil {
		t.Errorf("non-record body should yield nil record for re-fetch, got %+v", rec)
	}
}

func TestIncrementUsageReturnsCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/user/increment-question" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"daily_question_count":4}`)
	}))
	defer srv.Close()

	n, err := NewClient(testConfig(srv.URL)).IncrementUsage(context.Background(), "tok")
	if err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}
	if n != 4 {
		t.Errorf("count = %d, want 4", n)
	}
}

func TestSubmitFeedback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := NewClient(testConfig(srv.URL)).SubmitFeedback(context.Background(), "tok", Feedback{
		Type: "bug",
		Text: "streaming stalls on large answers",
	})
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
}

func TestAPIErrorQuotaMatch(t *testing.T) {
	err := &APIError{Status: 429}
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Error("429 APIError should match ErrQuotaExceeded")
	}
	if errors.Is(&APIError{Status: 500}, ErrQuotaExceeded) {
		t.Error("500 APIError must not match ErrQuotaExceeded")
	}
}
