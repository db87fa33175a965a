package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"dyschat/internal/backend"
	"dyschat/internal/config"
	"dyschat/internal/logging"
)

// GateState is the onboarding gate's lifecycle state.
type GateState int

const (
	// GateUnknown means no session decision has been made yet.
	GateUnknown GateState = iota
	// GateRequired means the profile form must be offered before full use.
	GateRequired
	// GateInProgress means the form is open and accepting input.
	GateInProgress
	// GateCompleted means a profile was accepted by the backend.
	GateCompleted
	// GateSkipped means the user dismissed the form for this run.
	GateSkipped
)

func (s GateState) String() string {
	switch s {
	case GateRequired:
		return "required"
	case GateInProgress:
		return "in_progress"
	case GateCompleted:
		return "completed"
	case GateSkipped:
		return "skipped"
	}
	return "unknown"
}

// ProfileForm is the onboarding submission as entered by the user.
type ProfileForm struct {
	FirstName       string   `validate:"required"`
	LastName        string   `validate:"required"`
	PhoneNumber     string   `validate:"omitempty,max=32"`
	Location        string   `validate:"omitempty,max=128"`
	Conditions      []string `validate:"required,min=1,dive,condition"`
	HowHeardAboutUs string   `validate:"omitempty"`
}

// ValidationError reports field-level problems with a submission. It is
// kept local to the form: a failed validation makes zero network calls and
// never discards the entered values.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	for _, msg := range e.Fields {
		return msg
	}
	return "invalid profile submission"
}

// Gate decides whether app usage is blocked behind profile completion.
// Terminal states (completed, skipped) prevent the form from reappearing
// for the remainder of the run.
type Gate struct {
	skipMode config.SkipMode
	validate *validator.Validate

	mu    sync.Mutex
	state GateState
}

// NewGate creates a gate in the unknown state.
func NewGate(skipMode config.SkipMode) *Gate {
	v := validator.New()
	// Catalog membership can't be expressed with oneof (values contain
	// spaces), so register a dedicated rule.
	_ = v.RegisterValidation("condition", func(fl validator.FieldLevel) bool {
		return IsKnownCondition(fl.Field().String())
	})
	return &Gate{skipMode: skipMode, validate: v, state: GateUnknown}
}

// State returns the current gate state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Evaluate moves unknown → required or completed from a fetched/created
// session record. A nil record is treated as a new user. Terminal states
// are never reopened.
func (g *Gate) Evaluate(rec *backend.SessionRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != GateUnknown {
		return
	}
	if rec != nil && (rec.ProfileCompleted || rec.OnboardingCompleted) {
		g.state = GateCompleted
		return
	}
	g.state = GateRequired
	logging.Session("Onboarding required (profile_completed=false or no record)")
}

// Open moves required → in_progress when the form becomes visible.
func (g *Gate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != GateRequired {
		return false
	}
	g.state = GateInProgress
	return true
}

// trimmed normalizes whitespace so required fields cannot be satisfied by
// spaces alone.
func (form ProfileForm) trimmed() ProfileForm {
	form.FirstName = strings.TrimSpace(form.FirstName)
	form.LastName = strings.TrimSpace(form.LastName)
	form.PhoneNumber = strings.TrimSpace(form.PhoneNumber)
	form.Location = strings.TrimSpace(form.Location)
	return form
}

// Validate checks the form locally. On failure the gate stays in_progress
// and the returned *ValidationError carries per-field messages.
func (g *Gate) Validate(form ProfileForm) error {
	err := g.validate.Struct(form.trimmed())
	if err == nil {
		return nil
	}

	fields := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			switch {
			case fe.Field() == "FirstName":
				fields["first_name"] = "First name is required"
			case fe.Field() == "LastName":
				fields["last_name"] = "Last name is required"
			// Dive errors report as Conditions[i].
			case strings.HasPrefix(fe.Field(), "Conditions"):
				if fe.Tag() == "condition" {
					fields["conditions"] = fmt.Sprintf("Unknown condition %q", fe.Value())
				} else {
					fields["conditions"] = "Select at least one condition"
				}
			default:
				fields[fe.Field()] = fmt.Sprintf("Invalid value for %s", fe.Field())
			}
		}
	}
	return &ValidationError{Fields: fields}
}

// submission converts a validated form to the wire payload.
func (form ProfileForm) submission() backend.ProfileSubmission {
	form = form.trimmed()
	return backend.ProfileSubmission{
		Conditions:  form.Conditions,
		Symptoms:    []string{},
		Medications: []string{},
		Preferences: backend.ProfilePreferences{
			FirstName:       form.FirstName,
			LastName:        form.LastName,
			PhoneNumber:     form.PhoneNumber,
			Location:        form.Location,
			HowHeardAboutUs: form.HowHeardAboutUs,
		},
	}
}

// markCompleted records backend acceptance of a submission.
func (g *Gate) markCompleted() {
	g.mu.Lock()
	g.state = GateCompleted
	g.mu.Unlock()
}

// markSkipped records a user skip (suppress mode or failed placeholder).
func (g *Gate) markSkipped() {
	g.mu.Lock()
	g.state = GateSkipped
	g.mu.Unlock()
}

// placeholderForm builds the minimal profile persisted by placeholder skip
// mode so the server-side record converges to completed.
func placeholderForm(s *Session) ProfileForm {
	first, last := "ChatDys", "User"
	if s != nil && s.DisplayName != "" {
		first = s.DisplayName
		last = "-"
	}
	return ProfileForm{
		FirstName:  first,
		LastName:   last,
		Conditions: []string{"Other (please specify in preferences)"},
	}
}
