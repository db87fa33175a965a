package session

// SectionState tells the view how to style a section slot.
type SectionState int

const (
	// SectionLoading marks a slot awaiting its first content event.
	SectionLoading SectionState = iota
	// SectionReady marks a slot carrying streamed content.
	SectionReady
)

// View abstracts the rendering surface so the session and protocol logic
// can run against a TUI, plain stdout, or a test fake. RenderIdentity
// receives nil for signed-out chrome.
type View interface {
	RenderSection(index int, title, content string, state SectionState)
	RenderIdentity(s *Session)
	ShowError(msg string)
	ShowWarning(msg string)
	ShowUpsell()
}
