// Package session owns the in-memory user session: the merged identity +
// backend record, the usage counter, the onboarding gate, and the controller
// that coordinates them with the streaming client and the view.
package session

import (
	"dyschat/internal/auth"
	"dyschat/internal/backend"
)

// Session is the merged identity-provider + backend record describing the
// current user. Identity fields come from the ID token and are refreshed on
// each login; IsPremium and DailyQuestionCount are authoritative only from
// the backend.
type Session struct {
	SubjectID   string
	Email       string
	DisplayName string
	AvatarURL   string

	ProfileCompleted   bool
	IsPremium          bool
	DailyQuestionCount int

	Conditions []string

	// BackendReachable is false when the session is built from identity
	// data alone; features degrade but the user stays authenticated.
	BackendReachable bool
}

// fromIdentity builds the identity-only session used when the backend is
// unreachable or the record does not exist yet.
func fromIdentity(id *auth.Identity) *Session {
	if id == nil {
		return nil
	}
	return &Session{
		SubjectID:   id.Subject,
		Email:       id.Email,
		DisplayName: id.DisplayName(),
		AvatarURL:   id.AvatarURL,
	}
}

// merge applies the authoritative backend fields onto the session.
// Client-side counter bumps are rendering optimizations only; the backend
// record always wins here, never the reverse.
func (s *Session) merge(rec *backend.SessionRecord) {
	if rec == nil {
		return
	}
	s.ProfileCompleted = rec.ProfileCompleted || rec.OnboardingCompleted
	s.IsPremium = rec.IsPremium
	s.DailyQuestionCount = rec.DailyQuestionCount
	if len(rec.Conditions) > 0 {
		s.Conditions = rec.Conditions
	}
	s.BackendReachable = true
}

// clone returns a copy safe to hand to listeners.
func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Conditions = append([]string(nil), s.Conditions...)
	return &out
}
