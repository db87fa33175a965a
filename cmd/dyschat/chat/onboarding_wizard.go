package chat

import (
	"context"
	"errors"
	"strings"

	"dyschat/internal/logging"
	"dyschat/internal/session"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// wizardStep is the current phase of the profile onboarding wizard.
type wizardStep int

const (
	stepWelcome wizardStep = iota
	stepFirstName
	stepLastName
	stepPhone
	stepLocation
	stepConditions
	stepHowHeard
	stepSubmitting
)

// wizardState tracks the in-progress profile form. Chat input stays
// suspended until the wizard completes or the user skips it.
type wizardState struct {
	step  wizardStep
	input textinput.Model
	form  session.ProfileForm

	condCursor   int
	condSelected map[int]bool
	howCursor    int

	fieldErrors map[string]string
	stepError   string
}

func newWizardState() *wizardState {
	return &wizardState{
		condSelected: make(map[int]bool),
	}
}

func (m Model) updateWizard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	w := m.wizard
	if w == nil {
		m.inputMode = InputModeNormal
		return m, nil
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEsc:
		// Skipping is always allowed; the backend record simply stays
		// incomplete (or gets a placeholder, per configuration).
		return m.skipWizard()
	}

	switch w.step {
	case stepWelcome:
		if msg.Type == tea.KeyEnter {
			w.step = stepFirstName
		}
		return m, nil

	case stepFirstName, stepLastName, stepPhone, stepLocation:
		return m.updateWizardTextStep(msg)

	case stepConditions:
		return m.updateWizardConditions(msg)

	case stepHowHeard:
		return m.updateWizardHowHeard(msg)

	case stepSubmitting:
		// Ignore input while the submission is in flight.
		return m, nil
	}
	return m, nil
}

func (m Model) updateWizardTextStep(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	w := m.wizard

	if msg.Type == tea.KeyEnter {
		value := strings.TrimSpace(w.input.Value())
		w.stepError = ""

		switch w.step {
		case stepFirstName:
			if value == "" {
				w.stepError = "First name is required."
				return m, nil
			}
			w.form.FirstName = value
			w.step = stepLastName
		case stepLastName:
			if value == "" {
				w.stepError = "Last name is required."
				return m, nil
			}
			w.form.LastName = value
			w.step = stepPhone
		case stepPhone:
			w.form.PhoneNumber = value
			w.step = stepLocation
		case stepLocation:
			w.form.Location = value
			w.step = stepConditions
		}
		w.input.Reset()
		return m, nil
	}

	var cmd tea.Cmd
	w.input, cmd = w.input.Update(msg)
	return m, cmd
}

func (m Model) updateWizardConditions(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	w := m.wizard

	switch msg.Type {
	case tea.KeyUp:
		if w.condCursor > 0 {
			w.condCursor--
		}
	case tea.KeyDown:
		if w.condCursor < len(session.Conditions)-1 {
			w.condCursor++
		}
	case tea.KeySpace:
		w.condSelected[w.condCursor] = !w.condSelected[w.condCursor]
	case tea.KeyEnter:
		var picked []string
		for i, name := range session.Conditions {
			if w.condSelected[i] {
				picked = append(picked, name)
			}
		}
		if len(picked) == 0 {
			w.stepError = "Select at least one condition (Space to toggle)."
			return m, nil
		}
		w.stepError = ""
		w.form.Conditions = picked
		w.step = stepHowHeard
	}
	return m, nil
}

func (m Model) updateWizardHowHeard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	w := m.wizard

	switch msg.Type {
	case tea.KeyUp:
		if w.howCursor > 0 {
			w.howCursor--
		}
	case tea.KeyDown:
		if w.howCursor < len(session.HowHeardOptions)-1 {
			w.howCursor++
		}
	case tea.KeyEnter:
		w.form.HowHeardAboutUs = session.HowHeardOptions[w.howCursor]
		w.step = stepSubmitting
		return m, m.submitWizard()
	}
	return m, nil
}

// submitWizard validates and persists the form in the background.
func (m Model) submitWizard() tea.Cmd {
	controller := m.controller
	form := m.wizard.form
	return func() tea.Msg {
		err := controller.SubmitOnboarding(context.Background(), form)
		return onboardingResultMsg{Err: err}
	}
}

// skipWizard dismisses the form without completing it.
func (m Model) skipWizard() (tea.Model, tea.Cmd) {
	controller := m.controller
	m.closeWizard()
	m.pushNotice(notice{
		Level: noticeWarning,
		Text:  "Profile skipped. Complete it any time with /profile.",
	})
	return m, func() tea.Msg {
		controller.SkipOnboarding(context.Background())
		return nil
	}
}

// handleWizardResult routes the submission outcome: success closes the
// wizard, validation failures jump back to the offending step.
func (m Model) handleWizardResult(err error) (tea.Model, tea.Cmd) {
	w := m.wizard
	if w == nil {
		return m, nil
	}

	if err == nil {
		m.closeWizard()
		m.pushNotice(notice{Level: noticeWarning, Text: "Profile completed. Ask away!"})
		logging.UI("Onboarding completed")
		return m, nil
	}

	var verr *session.ValidationError
	if errors.As(err, &verr) {
		w.fieldErrors = verr.Fields
		switch {
		case verr.Fields["first_name"] != "":
			w.step = stepFirstName
			w.stepError = verr.Fields["first_name"]
		case verr.Fields["last_name"] != "":
			w.step = stepLastName
			w.stepError = verr.Fields["last_name"]
		case verr.Fields["conditions"] != "":
			w.step = stepConditions
			w.stepError = verr.Fields["conditions"]
		default:
			w.step = stepFirstName
		}
		w.input.Reset()
		return m, nil
	}

	// Backend rejection: stay on the final step so Enter retries.
	w.step = stepHowHeard
	w.stepError = "Could not save your profile: " + err.Error()
	return m, nil
}
