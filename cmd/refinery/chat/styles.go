package chat

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	// Light mode
	LightForeground = lipgloss.Color("#1c2733")
	LightPrimary    = lipgloss.Color("#2b5797")
	LightAccent     = lipgloss.Color("#7b5cd6")
	LightMuted      = lipgloss.Color("#8a949e")
	LightBorder     = lipgloss.Color("#d6dae0")

	// Dark mode
	DarkForeground = lipgloss.Color("#e8eaed")
	DarkPrimary    = lipgloss.Color("#7aa2f7")
	DarkAccent     = lipgloss.Color("#bb9af7")
	DarkMuted      = lipgloss.Color("#565f89")
	DarkBorder     = lipgloss.Color("#3b4261")

	// Semantic
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#9ece6a")
	Warning     = lipgloss.Color("#e0af68")
)

// Theme holds the current color scheme
type Theme struct {
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme
func LightTheme() Theme {
	return Theme{
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
		IsDark:     false,
	}
}

// DarkTheme returns the dark mode theme
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

// ThemeByName resolves a configured theme name, falling back to terminal
// detection for anything unrecognized.
func ThemeByName(name string) Theme {
	switch strings.ToLower(name) {
	case "light":
		return LightTheme()
	case "dark":
		return DarkTheme()
	default:
		return DetectTheme()
	}
}

// DetectTheme auto-detects based on terminal hints, defaulting to dark.
func DetectTheme() Theme {
	if colorTerm := os.Getenv("COLORFGBG"); colorTerm != "" {
		// Format is usually "foreground;background"
		parts := strings.Split(colorTerm, ";")
		if len(parts) == 2 {
			if bgIdx, err := strconv.Atoi(parts[1]); err == nil {
				if bgIdx >= 7 && bgIdx != 8 {
					return LightTheme()
				}
			}
		}
	}
	return DarkTheme()
}

// Styles holds all the styled components
type Styles struct {
	Theme Theme

	Header  lipgloss.Style
	Footer  lipgloss.Style
	Divider lipgloss.Style

	UserLabel    lipgloss.Style
	AILabel      lipgloss.Style
	SectionTitle lipgloss.Style
	ChainTitle   lipgloss.Style
	Citation     lipgloss.Style
	Translation  lipgloss.Style
	Muted        lipgloss.Style

	StageBadge lipgloss.Style
	ChainBadge lipgloss.Style
	Error      lipgloss.Style
	Success    lipgloss.Style
	Spinner    lipgloss.Style
}

// NewStyles creates a new Styles instance with the given theme
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(theme.Border),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(theme.Border),

		Divider: lipgloss.NewStyle().Foreground(theme.Border),

		UserLabel: lipgloss.NewStyle().Foreground(theme.Primary).Bold(true),
		AILabel:   lipgloss.NewStyle().Foreground(theme.Accent).Bold(true),

		SectionTitle: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		ChainTitle: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			Underline(true),

		Citation:    lipgloss.NewStyle().Foreground(theme.Muted).Italic(true),
		Translation: lipgloss.NewStyle().Foreground(theme.Foreground).Italic(true),
		Muted:       lipgloss.NewStyle().Foreground(theme.Muted),

		StageBadge: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Background(theme.Border).
			Padding(0, 1),

		ChainBadge: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1c2733")).
			Background(Warning).
			Padding(0, 1),

		Error:   lipgloss.NewStyle().Foreground(Destructive).Bold(true),
		Success: lipgloss.NewStyle().Foreground(Success),
		Spinner: lipgloss.NewStyle().Foreground(theme.Accent),
	}
}
