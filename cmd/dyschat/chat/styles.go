// Package chat provides the interactive TUI for dyschat: the chat header,
// the five answer-section panes, the question input, and the profile
// onboarding wizard.
package chat

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette. Semantic colors are shared between light and dark mode.
var (
	LightForeground = lipgloss.Color("#1b2a41")
	LightPrimary    = lipgloss.Color("#1b2a41")
	LightAccent     = lipgloss.Color("#2a9d8f")
	LightMuted      = lipgloss.Color("#8a94a6")
	LightBorder     = lipgloss.Color("#d6dae0")

	DarkForeground = lipgloss.Color("#f2f2f2")
	DarkPrimary    = lipgloss.Color("#2a9d8f")
	DarkAccent     = lipgloss.Color("#64dfd0")
	DarkMuted      = lipgloss.Color("#6b7689")
	DarkBorder     = lipgloss.Color("#2a3850")

	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
	Premium     = lipgloss.Color("#FFD54F")
)

// Theme holds the current color scheme.
type Theme struct {
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme.
func LightTheme() Theme {
	return Theme{
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
	}
}

// DarkTheme returns the dark mode theme.
func DarkTheme() Theme {
	return Theme{
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		IsDark:     true,
	}
}

// DetectTheme picks dark mode when the terminal background looks dark.
func DetectTheme() Theme {
	if os.Getenv("DYSCHAT_DARK_MODE") == "1" {
		return DarkTheme()
	}
	colorTerm := os.Getenv("COLORFGBG")
	if parts := strings.Split(colorTerm, ";"); len(parts) == 2 {
		switch parts[1] {
		case "0", "1", "2", "3", "4", "5", "6", "8":
			return DarkTheme()
		}
	}
	return LightTheme()
}

// Styles holds the styled components used across the TUI.
type Styles struct {
	Theme Theme

	Header  lipgloss.Style
	Footer  lipgloss.Style
	Content lipgloss.Style

	Title    lipgloss.Style
	Body     lipgloss.Style
	Muted    lipgloss.Style
	Bold     lipgloss.Style

	Prompt    lipgloss.Style
	UserInput lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Badge        lipgloss.Style
	PremiumBadge lipgloss.Style
	FreeBadge    lipgloss.Style

	SectionTitle   lipgloss.Style
	SectionLoading lipgloss.Style
	SectionPane    lipgloss.Style

	Spinner lipgloss.Style
	Divider lipgloss.Style
}

// NewStyles creates a Styles instance for the given theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 2),

		Content: lipgloss.NewStyle().
			Padding(1, 2),

		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			MarginBottom(1),

		Body: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Bold: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		Prompt: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		UserInput: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Success: lipgloss.NewStyle().
			Foreground(Success).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(Info),

		Badge: lipgloss.NewStyle().
			Background(theme.Accent).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1).
			Bold(true),

		PremiumBadge: lipgloss.NewStyle().
			Background(Premium).
			Foreground(lipgloss.Color("#1b2a41")).
			Padding(0, 1).
			Bold(true),

		FreeBadge: lipgloss.NewStyle().
			Background(theme.Muted).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1),

		SectionTitle: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		SectionLoading: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),

		SectionPane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),
	}
}

// DefaultStyles returns styles with the auto-detected theme.
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// RenderDivider returns a horizontal divider.
func (s Styles) RenderDivider(width int) string {
	if width <= 0 {
		width = 80
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
