package backend

import (
	"errors"
	"fmt"
)

// SessionRecord is the server-side user-session record. The backend is the
// authority for IsPremium and DailyQuestionCount; identity fields merely echo
// what was stored at signup.
type SessionRecord struct {
	ID                  string   `json:"id,omitempty"`
	Email               string   `json:"email,omitempty"`
	Name                string   `json:"name,omitempty"`
	SubjectID           string   `json:"auth0_user_id,omitempty"`
	ProfileCompleted    bool     `json:"profile_completed"`
	OnboardingCompleted bool     `json:"onboarding_completed"`
	IsPremium           bool     `json:"is_premium"`
	DailyQuestionCount  int      `json:"daily_question_count"`
	Conditions          []string `json:"conditions,omitempty"`
}

// NewSession is the payload for creating a server-side session record.
type NewSession struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	SubjectID string `json:"auth0_user_id"`
}

// ProfileSubmission is the complete-profile payload. The web client nests
// the contact fields under preferences; the wire shape is preserved here.
type ProfileSubmission struct {
	Age         *int               `json:"age"`
	Conditions  []string           `json:"conditions"`
	Symptoms    []string           `json:"symptoms"`
	Medications []string           `json:"medications"`
	Preferences ProfilePreferences `json:"preferences"`
}

// ProfilePreferences holds the contact and marketing-attribution fields.
type ProfilePreferences struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	PhoneNumber     string `json:"phone_number,omitempty"`
	Location        string `json:"location,omitempty"`
	HowHeardAboutUs string `json:"how_heard_about_us,omitempty"`
}

// Feedback is a user feedback submission.
type Feedback struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Email string `json:"email,omitempty"`
}

// UsageResult is the response of the increment-usage endpoint.
type UsageResult struct {
	DailyQuestionCount int `json:"daily_question_count"`
}

// ErrQuotaExceeded marks an HTTP 429 from the query endpoint; the caller is
// expected to surface an upsell, never to auto-retry.
var ErrQuotaExceeded = errors.New("daily question limit reached")

// APIError is a structured non-2xx response body ({message} or {detail}).
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("backend request failed with status %d", e.Status)
}

// Is lets errors.Is(err, ErrQuotaExceeded) match 429 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.Status == 429
}
