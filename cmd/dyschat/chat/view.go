package chat

import (
	"fmt"
	"strings"

	"dyschat/internal/session"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.renderHeader()

	if m.inputMode == InputModeOnboarding && m.wizard != nil {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			m.styles.Content.Render(m.renderWizard()),
			m.renderFooter(),
		)
	}

	content := m.viewport.View()
	if banner := m.renderNotices(); banner != "" {
		content = lipgloss.JoinVertical(lipgloss.Left, content, banner)
	}
	chatView := m.styles.Content.Render(content)

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.Theme.Accent).
		Padding(0, 1)
	inputArea := inputStyle.Render(m.textinput.View())

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		chatView,
		inputArea,
		m.renderFooter(),
	)
}

// renderHeader shows the product title plus the identity and usage chrome
// that mirrors the controller's session state.
func (m Model) renderHeader() string {
	title := m.styles.Header.Render(" ChatDys ")
	version := m.styles.Badge.Render("v" + m.cfg.Version)

	var identity string
	var plan string
	if m.session == nil {
		identity = m.styles.Muted.Render("Signed out")
	} else {
		identity = m.styles.Bold.Render(m.session.DisplayName)
		if m.session.Email != "" {
			identity += m.styles.Muted.Render("  " + m.session.Email)
		}
		if m.session.IsPremium {
			plan = m.styles.PremiumBadge.Render("Premium")
		} else {
			remaining := session.Remaining(m.session, m.cfg.Limits.FreeDailyQuestions)
			plan = m.styles.FreeBadge.Render(fmt.Sprintf("Free · %d left today", remaining))
		}
		if !m.session.BackendReachable {
			plan += " " + m.styles.Warning.Render("offline")
		}
	}

	var status string
	if m.isLoading {
		status = lipgloss.JoinHorizontal(lipgloss.Center, m.spinner.View(), " ", m.styles.Badge.Render("Answering..."))
	} else {
		status = m.styles.Success.Render("Ready")
	}

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title, " ", version, "  ", status,
	)
	identityLine := lipgloss.JoinHorizontal(lipgloss.Center, " ", identity, "  ", plan)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		headerLine,
		identityLine,
		m.styles.RenderDivider(m.width),
	)
}

// renderSections renders past exchanges followed by the five panes of the
// current answer.
func (m Model) renderSections() string {
	var sb strings.Builder

	for _, ex := range m.history {
		sb.WriteString(m.renderExchange(ex.Question, ex.Sections[:]))
		sb.WriteString("\n")
	}

	if m.question != "" {
		sb.WriteString(m.renderExchange(m.question, m.sections[:]))
	} else if len(m.history) == 0 {
		sb.WriteString(m.renderWelcome())
	}

	return sb.String()
}

func (m Model) renderExchange(question string, sections []sectionSlot) string {
	var sb strings.Builder

	userStyle := m.styles.Bold.
		Foreground(m.styles.Theme.Primary).
		MarginTop(1)
	sb.WriteString(userStyle.Render("You") + "\n")
	sb.WriteString(m.styles.UserInput.Render(question))
	sb.WriteString("\n")

	for i, slot := range sections {
		if !slot.Seen && !slot.Loading {
			continue
		}
		title := m.styles.SectionTitle.Render(fmt.Sprintf("%d. %s", i+1, slot.Title))
		var body string
		if slot.Loading {
			body = m.styles.SectionLoading.Render(slot.Content)
		} else {
			body = m.safeRenderMarkdown(slot.Content)
		}
		pane := m.styles.SectionPane.Width(max(20, m.viewport.Width-4)).
			Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
		sb.WriteString(pane)
		sb.WriteString("\n")
	}

	return sb.String()
}

func (m Model) renderWelcome() string {
	return m.safeRenderMarkdown(`## Welcome to ChatDys

Ask anything about dysautonomia, POTS, ME/CFS, Long-Covid, and related
conditions. Each answer streams in five sections: a quick answer, our
knowledge base, medical literature, current information, and a research
summary.

ChatDys provides educational information, not medical advice. Always
consult your healthcare provider.`)
}

// renderNotices draws the transient error/warning banners and the upsell.
func (m Model) renderNotices() string {
	if len(m.notices) == 0 && !m.upsell {
		return ""
	}
	var lines []string
	for _, n := range m.notices {
		switch n.Level {
		case noticeError:
			lines = append(lines, m.styles.Error.Render("✗ "+n.Text))
		default:
			lines = append(lines, m.styles.Warning.Render("! "+n.Text))
		}
	}
	if m.upsell {
		box := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Premium).
			Padding(0, 1).
			Render(m.styles.Bold.Render("Out of free questions for today.") + "\n" +
				m.styles.Body.Render("Upgrade to Premium at chatdys.com for unlimited questions."))
		lines = append(lines, box)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderFooter() string {
	var help string
	if m.inputMode == InputModeOnboarding {
		help = "Enter: next • Space: toggle • ↑/↓: move • Esc: skip • Ctrl+C: exit"
	} else {
		help = "Enter: send • /profile /refresh /clear • Ctrl+C: exit"
	}
	return lipgloss.NewStyle().
		MarginTop(1).
		Render(m.styles.Muted.Render(help))
}

// renderWizard draws the current onboarding step.
func (m Model) renderWizard() string {
	w := m.wizard
	var sb strings.Builder

	sb.WriteString(m.styles.Title.Render("Complete your profile") + "\n")

	switch w.step {
	case stepWelcome:
		sb.WriteString(m.styles.Body.Render(
			"Tell us a little about yourself so answers can account for your\nconditions. Press Enter to begin, or Esc to skip for now."))

	case stepFirstName:
		sb.WriteString(m.styles.Bold.Render("First name") + "\n")
		sb.WriteString(w.input.View())

	case stepLastName:
		sb.WriteString(m.styles.Bold.Render("Last name") + "\n")
		sb.WriteString(w.input.View())

	case stepPhone:
		sb.WriteString(m.styles.Bold.Render("Phone number") + m.styles.Muted.Render("  (optional)") + "\n")
		sb.WriteString(w.input.View())

	case stepLocation:
		sb.WriteString(m.styles.Bold.Render("Location") + m.styles.Muted.Render("  (optional)") + "\n")
		sb.WriteString(w.input.View())

	case stepConditions:
		sb.WriteString(m.styles.Bold.Render("Your conditions") + m.styles.Muted.Render("  (Space to toggle, Enter to continue)") + "\n\n")
		sb.WriteString(m.renderConditionList())

	case stepHowHeard:
		sb.WriteString(m.styles.Bold.Render("How did you hear about ChatDys?") + "\n\n")
		for i, opt := range session.HowHeardOptions {
			cursor := "  "
			line := opt
			if i == w.howCursor {
				cursor = m.styles.Prompt.Render("> ")
				line = m.styles.Bold.Render(opt)
			}
			sb.WriteString(cursor + line + "\n")
		}

	case stepSubmitting:
		sb.WriteString(m.spinner.View() + " " + m.styles.Muted.Render("Saving your profile..."))
	}

	if w.stepError != "" {
		sb.WriteString("\n\n" + m.styles.Error.Render(w.stepError))
	}
	return sb.String()
}

// renderConditionList windows the catalog around the cursor so it fits on
// one screen.
func (m Model) renderConditionList() string {
	w := m.wizard
	const window = 12

	start := 0
	if w.condCursor >= window {
		start = w.condCursor - window + 1
	}
	end := min(start+window, len(session.Conditions))

	var sb strings.Builder
	if start > 0 {
		sb.WriteString(m.styles.Muted.Render("  ↑ more") + "\n")
	}
	for i := start; i < end; i++ {
		cursor := "  "
		if i == w.condCursor {
			cursor = m.styles.Prompt.Render("> ")
		}
		check := "[ ] "
		if w.condSelected[i] {
			check = m.styles.Success.Render("[x] ")
		}
		name := session.Conditions[i]
		if i == w.condCursor {
			name = m.styles.Bold.Render(name)
		}
		sb.WriteString(cursor + check + name + "\n")
	}
	if end < len(session.Conditions) {
		sb.WriteString(m.styles.Muted.Render("  ↓ more") + "\n")
	}
	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery.
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}
