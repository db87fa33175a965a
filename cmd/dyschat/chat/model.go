package chat

import (
	"context"
	"fmt"

	"dyschat/internal/auth"
	"dyschat/internal/backend"
	"dyschat/internal/config"
	"dyschat/internal/logging"
	"dyschat/internal/session"
	"dyschat/internal/stream"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

// uiBridge adapts the controller's synchronous view callbacks into tea
// messages. Callbacks may fire from the Send goroutine while the program
// loop is processing other messages, so everything funnels through a
// buffered channel drained by waitForEvent.
type uiBridge struct {
	events chan tea.Msg
}

var _ session.View = (*uiBridge)(nil)

func newUIBridge() *uiBridge {
	return &uiBridge{events: make(chan tea.Msg, 256)}
}

func (b *uiBridge) RenderSection(index int, title, content string, state session.SectionState) {
	b.events <- sectionMsg{Index: index, Title: title, Content: content, State: state}
}

func (b *uiBridge) RenderIdentity(s *session.Session) {
	b.events <- sessionUpdateMsg{Session: s}
}

func (b *uiBridge) ShowError(msg string) {
	b.events <- errorNoticeMsg(msg)
}

func (b *uiBridge) ShowWarning(msg string) {
	b.events <- warningNoticeMsg(msg)
}

func (b *uiBridge) ShowUpsell() {
	b.events <- upsellMsg{}
}

// waitForEvent blocks on the next bridge event. Re-issued after every
// receive so the channel keeps draining for the lifetime of the program.
func (b *uiBridge) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-b.events
	}
}

// New builds the chat model around an already-wired controller.
func New(cfg *config.Config, controller *session.Controller, bridge *uiBridge) Model {
	styles := DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = "Ask a health question... (Enter to send, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = cfg.Limits.MaxMessageLength
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	var renderer *glamour.TermRenderer
	if styles.Theme.IsDark {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
	} else {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath("light"),
			glamour.WithWordWrap(80),
		)
	}

	m := Model{
		textinput:  ti,
		viewport:   vp,
		spinner:    sp,
		styles:     styles,
		renderer:   renderer,
		cfg:        cfg,
		controller: controller,
		bridge:     bridge,
	}
	m.resetSections()
	return m
}

// resetSections clears all answer panes back to their idle state.
func (m *Model) resetSections() {
	for i := range m.sections {
		m.sections[i] = sectionSlot{Title: stream.DefaultSectionTitle(i + 1)}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.bridge.waitForEvent(),
		m.bootstrap(),
	)
}

// bootstrap runs the initial session reconciliation in the background.
// Session state arrives through the bridge as it lands.
func (m Model) bootstrap() tea.Cmd {
	return func() tea.Msg {
		if err := m.controller.Bootstrap(context.Background()); err != nil {
			logging.UI("Bootstrap error: %v", err)
		}
		return bootstrapDoneMsg{}
	}
}

// Run wires the full client stack and starts the interactive TUI.
func Run(cfg *config.Config) error {
	stateDir, err := config.Dir()
	if err != nil {
		return fmt.Errorf("failed to resolve state directory: %w", err)
	}

	provider := auth.NewProvider(cfg.Auth, stateDir)
	api := backend.NewClient(cfg.Backend)
	queries := stream.NewClient(cfg.Backend)

	bridge := newUIBridge()
	controller := session.NewController(cfg, provider, api, queries, bridge)

	m := New(cfg, controller, bridge)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
