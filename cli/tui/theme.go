package tui

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	TitleStyle         lipgloss.Style
	BorderStyle        lipgloss.Style
	PreviewBorderStyle lipgloss.Style
	PreviewStyle       lipgloss.Style
	SelectedItemStyle  lipgloss.Style
	DirectoryStyle     lipgloss.Style
	FileStyle          lipgloss.Style
	ArchiveStyle       lipgloss.Style
	ShadowStyle        lipgloss.Style
	StatusBarStyle     lipgloss.Style
	ErrorStyle         lipgloss.Style
	CommandStyle       lipgloss.Style
	HelpStyle          lipgloss.Style
}

func DefaultTheme() *Theme {
	return &Theme{
		TitleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1),
		BorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5A56E0")).
			Padding(0, 1),
		PreviewBorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#767676")).
			Padding(0, 1),
		PreviewStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("#DDDDDD")),
		SelectedItemStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#3C3A8C")),
		DirectoryStyle:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D9CFF")),
		FileStyle:         lipgloss.NewStyle().Foreground(lipgloss.Color("#DDDDDD")),
		ArchiveStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("#E0B256")),
		ShadowStyle:       lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8C69")),
		StatusBarStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#353533")).Padding(0, 1),
		ErrorStyle:        lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")),
		CommandStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")),
		HelpStyle:         lipgloss.NewStyle().Foreground(lipgloss.Color("#767676")),
	}
}
