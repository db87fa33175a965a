package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"dyschat/internal/auth"
	"dyschat/internal/backend"
	"dyschat/internal/config"
	"dyschat/internal/logging"
	"dyschat/internal/stream"
)

// TokenSource supplies bearer tokens and identity claims. Token returns ""
// when not authenticated; it never fails.
type TokenSource interface {
	Token(ctx context.Context) string
	Identity() *auth.Identity
}

// API is the subset of the backend client the controller needs.
type API interface {
	FetchSession(ctx context.Context, token string) (*backend.SessionRecord, error)
	CreateSession(ctx context.Context, token string, ns backend.NewSession) (*backend.SessionRecord, error)
	CompleteProfile(ctx context.Context, token string, sub backend.ProfileSubmission) (*backend.SessionRecord, error)
	IncrementUsage(ctx context.Context, token string) (int, error)
}

// Querier issues a streaming query, dispatching events to the handler.
// Satisfied by *stream.Client.
type Querier interface {
	Query(ctx context.Context, token, question string, h stream.Handler) error
}

// Controller owns the single in-memory Session record and coordinates the
// token provider, backend client, onboarding gate, streaming client, and
// view. It is constructed explicitly and injected everywhere a page-global
// singleton would have been used.
type Controller struct {
	cfg     *config.Config
	tokens  TokenSource
	api     API
	queries Querier
	view    View
	gate    *Gate

	mu        sync.Mutex
	session   *Session
	inFlight  bool
	listeners []func(*Session)
}

// NewController wires the controller. The view must be non-nil; listeners
// (header sync) are registered separately.
func NewController(cfg *config.Config, tokens TokenSource, api API, queries Querier, view View) *Controller {
	return &Controller{
		cfg:     cfg,
		tokens:  tokens,
		api:     api,
		queries: queries,
		view:    view,
		gate:    NewGate(cfg.Onboarding.SkipMode),
	}
}

// Gate exposes the onboarding gate state machine.
func (c *Controller) Gate() *Gate { return c.gate }

// Session returns a copy of the current session, or nil when signed out.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.clone()
}

// OnUpdate registers a listener invoked with a session copy on every
// update, and immediately with the current state. This is how the shared
// header mirrors auth/premium state without polling for a global to exist.
func (c *Controller) OnUpdate(fn func(*Session)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	cur := c.session.clone()
	c.mu.Unlock()
	fn(cur)
}

// notify re-renders identity chrome and fans out to listeners.
func (c *Controller) notify() {
	c.mu.Lock()
	cur := c.session.clone()
	listeners := append([]func(*Session){}, c.listeners...)
	c.mu.Unlock()

	c.view.RenderIdentity(cur)
	for _, fn := range listeners {
		fn(cur)
	}
}

// Bootstrap establishes identity, reconciles the server-side session
// record, and evaluates the onboarding gate. Backend failures degrade to
// identity-only data; they never report the user as signed out.
func (c *Controller) Bootstrap(ctx context.Context) error {
	token := c.tokens.Token(ctx)
	if token == "" {
		c.mu.Lock()
		c.session = nil
		c.mu.Unlock()
		c.notify()
		logging.Session("Bootstrap: not authenticated")
		return nil
	}

	id := c.tokens.Identity()
	s := fromIdentity(id)
	if s == nil {
		// Token without usable claims; still authenticated.
		s = &Session{}
	}

	rec, _ := c.api.FetchSession(ctx, token)
	if rec == nil {
		// Might be a new user; try to create the record.
		rec, _ = c.api.CreateSession(ctx, token, backend.NewSession{
			Email:     s.Email,
			Name:      s.DisplayName,
			SubjectID: s.SubjectID,
		})
	}

	if rec != nil {
		s.merge(rec)
	} else {
		logging.SessionWarn("Backend unreachable during bootstrap, using identity data only")
		c.view.ShowWarning("Some features may be limited. Backend connection issue.")
	}

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	c.gate.Evaluate(rec)
	c.notify()
	logging.Session("Bootstrap complete: gate=%s premium=%v count=%d",
		c.gate.State(), s.IsPremium, s.DailyQuestionCount)
	return nil
}

// Refresh re-fetches the authoritative session record and overwrites any
// optimistic client-side counter bumps.
func (c *Controller) Refresh(ctx context.Context) {
	token := c.tokens.Token(ctx)
	if token == "" {
		return
	}
	rec, _ := c.api.FetchSession(ctx, token)
	if rec == nil {
		return
	}

	c.mu.Lock()
	if c.session == nil {
		c.session = &Session{}
	}
	c.session.merge(rec)
	c.mu.Unlock()
	c.notify()
}

// sendHandler routes stream events into the view and tracks completion.
type sendHandler struct {
	c        *Controller
	complete bool
	failed   bool
}

func (h *sendHandler) Section(index int, title, content string) {
	h.c.view.RenderSection(index, title, content, SectionReady)
}

func (h *sendHandler) Done() {
	h.complete = true
}

func (h *sendHandler) StreamError(msg string) {
	h.failed = true
	h.c.view.ShowError(msg)
}

// Send issues a streaming query for the question. Preconditions, checked
// before any network call: non-empty trimmed text and an active session
// fail silently; an exhausted free-tier quota raises a user-visible error.
// A second call while a query is outstanding is a no-op.
func (c *Controller) Send(ctx context.Context, text string) {
	question := strings.TrimSpace(text)
	if question == "" {
		return
	}

	c.mu.Lock()
	if c.inFlight || c.session == nil {
		c.mu.Unlock()
		return
	}
	s := c.session.clone()
	limit := c.cfg.Limits.FreeDailyQuestions

	if max := c.cfg.Limits.MaxMessageLength; max > 0 && len(question) > max {
		c.mu.Unlock()
		c.view.ShowError("Your question is too long. Please shorten it and try again.")
		return
	}
	if !CanAskQuestions(s, limit) {
		c.mu.Unlock()
		c.view.ShowError("Daily question limit reached. Upgrade to Premium for unlimited questions.")
		c.view.ShowUpsell()
		return
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	token := c.tokens.Token(ctx)
	if token == "" {
		c.view.ShowError("Authentication required. Please sign in again.")
		return
	}

	// Reset every slot to its loading state before the stream starts;
	// each slot then renders independently as its events arrive.
	for i := stream.MinSection; i <= stream.MaxSection; i++ {
		c.view.RenderSection(i, stream.DefaultSectionTitle(i), "Generating response...", SectionLoading)
	}

	h := &sendHandler{c: c}
	err := c.queries.Query(ctx, token, question, h)
	if err != nil {
		if errors.Is(err, backend.ErrQuotaExceeded) {
			c.view.ShowUpsell()
		}
		c.view.ShowError(userMessage(err))
		return
	}
	if h.failed {
		return
	}

	if h.complete {
		// Optimistic bump is purely a rendering optimization; Refresh
		// below overwrites it with the authoritative count.
		c.mu.Lock()
		premium := c.session != nil && c.session.IsPremium
		if c.session != nil && !premium {
			c.session.DailyQuestionCount++
		}
		c.mu.Unlock()
		c.notify()

		if !premium {
			if _, err := c.api.IncrementUsage(ctx, token); err != nil {
				logging.SessionWarn("Usage increment failed (reconciled on next fetch): %v", err)
			}
		}
		c.Refresh(ctx)
	}
}

// userMessage maps an error to the text shown to the user, preferring the
// backend's structured message/detail fields.
func userMessage(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return "An error occurred while sending your message. Please try again."
}

// OpenOnboarding moves the gate to in_progress when the form is shown.
func (c *Controller) OpenOnboarding() bool {
	return c.gate.Open()
}

// SubmitOnboarding validates and persists the profile form. Validation
// failures are returned as *ValidationError with zero network calls; on
// backend acceptance the session flips to profile-completed and the new
// fields are merged in.
func (c *Controller) SubmitOnboarding(ctx context.Context, form ProfileForm) error {
	if err := c.gate.Validate(form); err != nil {
		return err
	}

	token := c.tokens.Token(ctx)
	if token == "" {
		return errors.New("authentication required")
	}

	rec, err := c.api.CompleteProfile(ctx, token, form.submission())
	if err != nil {
		return err
	}

	c.gate.markCompleted()

	c.mu.Lock()
	if c.session != nil {
		c.session.ProfileCompleted = true
		c.session.Conditions = append([]string(nil), form.Conditions...)
	}
	c.mu.Unlock()

	if rec != nil {
		c.mu.Lock()
		if c.session != nil {
			c.session.merge(rec)
			c.session.ProfileCompleted = true
		}
		c.mu.Unlock()
	}
	c.notify()
	return nil
}

// SkipOnboarding dismisses the form. In suppress mode the modal simply
// never reappears this run; in placeholder mode a minimal profile is
// persisted so the server-side record converges to completed. A failed
// placeholder write degrades to suppress.
func (c *Controller) SkipOnboarding(ctx context.Context) {
	if c.cfg.Onboarding.SkipMode == config.SkipPlaceholder {
		token := c.tokens.Token(ctx)
		if token != "" {
			form := placeholderForm(c.Session())
			if _, err := c.api.CompleteProfile(ctx, token, form.submission()); err == nil {
				c.gate.markCompleted()
				c.mu.Lock()
				if c.session != nil {
					c.session.ProfileCompleted = true
				}
				c.mu.Unlock()
				c.notify()
				return
			}
			logging.SessionWarn("Placeholder profile write failed, suppressing locally")
		}
	}
	c.gate.markSkipped()
}
