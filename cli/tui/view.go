package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.mode == ModeHelp {
		return m.renderHelp()
	}

	sections := []string{
		m.renderTitle(),
		m.renderContent(),
		m.renderStatus(),
	}
	if m.mode == ModeFilter {
		sections = append(sections, m.theme.CommandStyle.Render("/ "+m.textInput.View()))
	}
	sections = append(sections, m.theme.HelpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderTitle() string {
	title := fmt.Sprintf("vfsindex - %s", m.displayPath())
	if m.filter != "" {
		title += fmt.Sprintf(" [%s]", m.filter)
	}
	return m.theme.TitleStyle.Render(title)
}

func (m *Model) renderContent() string {
	height := m.visibleLines() + 2
	if !m.showPreview {
		return m.theme.BorderStyle.Width(m.width - 4).Height(height).Render(m.renderList())
	}

	left := m.width / 2
	right := m.width - left - 4
	return lipgloss.JoinHorizontal(lipgloss.Top,
		m.theme.BorderStyle.Width(left).Height(height).Render(m.renderList()),
		m.theme.PreviewBorderStyle.Width(right).Height(height).Render(m.renderPreview()),
	)
}

func (m *Model) renderList() string {
	if len(m.entries) == 0 {
		if m.filter != "" {
			return m.theme.FileStyle.Render("(no matches)")
		}
		return m.theme.FileStyle.Render("(empty directory)")
	}

	nameWidth := 40
	if m.showPreview {
		nameWidth = 30
	}

	end := min(m.offset+m.visibleLines(), len(m.entries))
	lines := make([]string, 0, end-m.offset)
	for i := m.offset; i < end; i++ {
		e := m.entries[i]

		name := e.DisplayName()
		if len(name) > nameWidth {
			name = name[:nameWidth-3] + "..."
		} else {
			name += strings.Repeat(" ", nameWidth-len(name))
		}

		marker := " "
		if e.Shadowed() {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s %10s", marker, name, e.DisplaySize())

		style := m.theme.FileStyle
		switch {
		case i == m.cursor:
			style = m.theme.SelectedItemStyle
		case e.IsDir:
			style = m.theme.DirectoryStyle
		case e.Members > 0:
			style = m.theme.ArchiveStyle
		case e.Source() != "disk":
			style = m.theme.ShadowStyle
		}
		lines = append(lines, style.Render(line))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderPreview() string {
	e := m.currentEntry()
	if e == nil {
		return m.theme.PreviewStyle.Render("Nothing selected")
	}

	var b strings.Builder
	if e.IsDir {
		fmt.Fprintf(&b, "Directory: %s\n\n", e.Name)
	} else {
		fmt.Fprintf(&b, "File: %s\n\n", e.Name)
		fmt.Fprintf(&b, "Size: %s\n", humanize.Bytes(uint64(e.Size)))
		fmt.Fprintf(&b, "Type: %s\n", e.Type)
	}
	fmt.Fprintf(&b, "Path: %s\n", e.Path.Full)
	fmt.Fprintf(&b, "Modified: %s\n", e.DisplayModTime())
	if e.Members > 0 {
		fmt.Fprintf(&b, "Archive: %d files\n", e.Members)
	}

	b.WriteString("\nProviders:\n")
	for i, p := range e.Providers {
		state := "shadowed"
		if i == 0 {
			state = "active"
		}
		fmt.Fprintf(&b, "  %-12s %s\n", p.Provider, state)
	}

	if s := m.snapshot; s != nil {
		fmt.Fprintf(&b, "\nGeneration %d, %d directories, %d files\n", s.Generation, s.DirectoryCount(), s.FileCount())
	}
	return m.theme.PreviewStyle.Render(b.String())
}

func (m *Model) renderStatus() string {
	left := "0 items"
	if len(m.entries) > 0 {
		left = fmt.Sprintf("%d/%d items", m.cursor+1, len(m.entries))
	}

	right := m.statusMsg
	if m.errorMsg != "" {
		right = m.theme.ErrorStyle.Render(m.errorMsg)
	}

	spacing := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-4, 0)
	return m.theme.StatusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", spacing) + right)
}

func (m *Model) renderHelp() string {
	sections := []string{
		m.theme.TitleStyle.Render("vfsindex - Help"),
		"",
		m.help.FullHelpView(m.keys.FullHelp()),
		"",
		"Entries marked with * exist in more than one provider.",
		"Files served from an archive are highlighted.",
		"",
		m.theme.HelpStyle.Render("Press ? or q to return"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
