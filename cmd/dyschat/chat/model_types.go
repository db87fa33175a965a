package chat

import (
	"dyschat/internal/config"
	"dyschat/internal/session"
	"dyschat/internal/stream"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
)

// InputMode represents the current input handling state. The onboarding
// wizard takes over all key handling while it is active.
type InputMode int

const (
	InputModeNormal     InputMode = iota // default: process as a question
	InputModeOnboarding                  // profile wizard active, chat input suspended
)

// sectionSlot is the render state of one answer section pane.
type sectionSlot struct {
	Title   string
	Content string
	Loading bool
	Seen    bool // at least one event arrived for this query
}

// Model is the main model for the interactive chat interface.
type Model struct {
	// UI components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    Styles
	renderer  *glamour.TermRenderer

	// State
	sections  [stream.MaxSection]sectionSlot
	question  string
	history   []exchange
	isLoading bool
	notices   []notice
	upsell    bool
	width     int
	height    int
	ready     bool

	inputMode InputMode
	wizard    *wizardState

	// Session mirror; updated through controller listeners.
	session *session.Session

	// Backend
	cfg        *config.Config
	controller *session.Controller
	bridge     *uiBridge
}

// exchange is one completed question/answer round kept in the scrollback.
type exchange struct {
	Question string
	Sections [stream.MaxSection]sectionSlot
}

// noticeLevel classifies a transient banner message.
type noticeLevel int

const (
	noticeError noticeLevel = iota
	noticeWarning
)

type notice struct {
	Level noticeLevel
	Text  string
}

// Messages for tea updates. Section and session events originate in the
// controller's view callbacks and arrive through the bridge channel.
type (
	// sectionMsg carries one answer-section render from the stream.
	sectionMsg struct {
		Index   int
		Title   string
		Content string
		State   session.SectionState
	}

	// sessionUpdateMsg mirrors the controller's session record after any
	// bootstrap, refresh, or counter change.
	sessionUpdateMsg struct {
		Session *session.Session
	}

	errorNoticeMsg   string
	warningNoticeMsg string
	upsellMsg        struct{}

	// queryFinishedMsg signals that Send returned. It travels through the
	// bridge channel so it always arrives after the query's section events.
	queryFinishedMsg struct{}

	// bootstrapDoneMsg signals the initial session reconciliation finished.
	bootstrapDoneMsg struct{}

	// onboardingResultMsg carries the outcome of a wizard submission.
	onboardingResultMsg struct {
		Err error
	}
)
