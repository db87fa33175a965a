package chat

import (
	"context"
	"strings"

	"dyschat/internal/logging"
	"dyschat/internal/session"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const maxNotices = 3

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.inputMode == InputModeOnboarding {
			return m.updateWizard(msg)
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			if !m.isLoading {
				return m.handleSubmit()
			}
			return m, nil
		}

		if !m.isLoading {
			m.textinput, tiCmd = m.textinput.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 4
		footerHeight := 2
		inputHeight := 3

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}

		m.textinput.Width = msg.Width - 4

		if m.renderer != nil {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(msg.Width-8),
			)
		}
		m.viewport.SetContent(m.renderSections())

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case sectionMsg, sessionUpdateMsg, errorNoticeMsg, warningNoticeMsg, upsellMsg:
		m.applyEvent(msg)
		m.viewport.SetContent(m.renderSections())
		m.viewport.GotoBottom()
		return m, m.bridge.waitForEvent()

	case bootstrapDoneMsg:
		// This message races the bridge's sessionUpdateMsg, so the
		// mirrored m.session may still be stale here. The controller is
		// the authority for the gate decision.
		m.drainBridge()
		m.session = m.controller.Session()
		if m.session == nil {
			m.pushNotice(notice{
				Level: noticeWarning,
				Text:  "Not signed in. Run 'dyschat login' in another terminal, then restart.",
			})
			return m, nil
		}
		if m.controller.Gate().State() == session.GateRequired {
			return m.openWizard()
		}

	case queryFinishedMsg:
		// Delivered through the bridge, so every section event for the
		// query has already been applied.
		m.isLoading = false
		m.archiveExchange()
		m.viewport.SetContent(m.renderSections())
		m.viewport.GotoBottom()
		return m, m.bridge.waitForEvent()

	case onboardingResultMsg:
		return m.handleWizardResult(msg.Err)
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

// applyEvent folds one bridge event into the model.
func (m *Model) applyEvent(msg tea.Msg) {
	switch msg := msg.(type) {
	case sectionMsg:
		i := msg.Index - 1
		if i >= 0 && i < len(m.sections) {
			m.sections[i] = sectionSlot{
				Title:   msg.Title,
				Content: msg.Content,
				Loading: msg.State == session.SectionLoading,
				Seen:    msg.State == session.SectionReady,
			}
		}
	case sessionUpdateMsg:
		m.session = msg.Session
	case errorNoticeMsg:
		m.pushNotice(notice{Level: noticeError, Text: string(msg)})
	case warningNoticeMsg:
		m.pushNotice(notice{Level: noticeWarning, Text: string(msg)})
	case upsellMsg:
		m.upsell = true
	}
}

// drainBridge applies any events already queued without blocking.
func (m *Model) drainBridge() {
	for {
		select {
		case ev := <-m.bridge.events:
			m.applyEvent(ev)
		default:
			return
		}
	}
}

// pushNotice appends a transient banner, keeping only the most recent few.
func (m *Model) pushNotice(n notice) {
	m.notices = append(m.notices, n)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

// archiveExchange moves a fully-streamed answer into the scrollback so the
// panes are free for the next question.
func (m *Model) archiveExchange() {
	any := false
	for i := range m.sections {
		if m.sections[i].Seen {
			any = true
			break
		}
	}
	if !any {
		return
	}
	m.history = append(m.history, exchange{Question: m.question, Sections: m.sections})
	m.question = ""
}

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textinput.Value())
	if input == "" {
		return m, nil
	}

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	if m.session != nil && !m.session.IsPremium &&
		session.Remaining(m.session, m.cfg.Limits.FreeDailyQuestions) == 0 {
		m.upsell = true
		m.pushNotice(notice{
			Level: noticeError,
			Text:  "Daily question limit reached. Upgrade to Premium for unlimited questions.",
		})
		m.textinput.Reset()
		return m, nil
	}

	m.question = input
	m.textinput.Reset()
	m.notices = nil
	m.resetSections()
	m.isLoading = true
	m.viewport.SetContent(m.renderSections())

	logging.UI("Question submitted (%d chars)", len(input))
	return m, tea.Batch(
		m.spinner.Tick,
		m.sendQuestion(input),
	)
}

// sendQuestion issues the streaming query. Section renders and error
// notices arrive through the bridge while Send blocks; the finished
// signal goes through the same channel to keep it ordered after them.
func (m Model) sendQuestion(q string) tea.Cmd {
	controller := m.controller
	bridge := m.bridge
	return func() tea.Msg {
		controller.Send(context.Background(), q)
		bridge.events <- queryFinishedMsg{}
		return nil
	}
}

func (m Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	switch parts[0] {
	case "/quit", "/exit", "/q":
		return m, tea.Quit

	case "/clear":
		m.history = nil
		m.notices = nil
		m.upsell = false
		m.resetSections()
		m.textinput.Reset()
		m.viewport.SetContent(m.renderSections())
		return m, nil

	case "/profile":
		m.textinput.Reset()
		if m.controller.Gate().State() == session.GateCompleted {
			m.pushNotice(notice{Level: noticeWarning, Text: "Profile already completed."})
			return m, nil
		}
		return m.openWizard()

	case "/refresh":
		m.textinput.Reset()
		controller := m.controller
		return m, func() tea.Msg {
			controller.Refresh(context.Background())
			return nil
		}

	default:
		m.pushNotice(notice{
			Level: noticeWarning,
			Text:  "Unknown command: " + parts[0] + ". Available: /profile /refresh /clear /quit",
		})
		m.textinput.Reset()
		return m, nil
	}
}

// openWizard suspends chat input and starts the profile wizard.
func (m Model) openWizard() (tea.Model, tea.Cmd) {
	m.controller.OpenOnboarding()
	m.wizard = newWizardState()
	m.inputMode = InputModeOnboarding
	m.textinput.Blur()
	ti := textinput.New()
	ti.Focus()
	ti.Prompt = "│ "
	ti.Width = 50
	m.wizard.input = ti
	return m, textinput.Blink
}

// closeWizard restores normal chat input.
func (m *Model) closeWizard() {
	m.wizard = nil
	m.inputMode = InputModeNormal
	m.textinput.Focus()
}
