// Package tui is a terminal browser for index snapshots.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/snapshot"
)

// Source is the part of the enumerator the browser needs.
type Source interface {
	GetCurrentSnapshot() *snapshot.Snapshot
	ScanDirectory(enginePath string)
}

// SnapshotMsg replaces the snapshot the browser shows.
type SnapshotMsg struct {
	Snapshot *snapshot.Snapshot
}

type Mode int

const (
	ModeNormal Mode = iota
	ModeFilter
	ModeHelp
)

type Model struct {
	source Source
	theme  *Theme
	keys   KeyMap
	help   help.Model

	snapshot    *snapshot.Snapshot
	currentPath data.EnginePath
	entries     []*Entry
	cursor      int
	offset      int
	filter      string

	width       int
	height      int
	showPreview bool

	mode      Mode
	textInput textinput.Model
	statusMsg string
	errorMsg  string
}

// NewModel starts the browser at path, or at the root for an empty path.
func NewModel(source Source, path string) *Model {
	ti := textinput.New()
	ti.Placeholder = "Filter by name tokens..."
	ti.CharLimit = 128

	m := &Model{
		source:      source,
		theme:       DefaultTheme(),
		keys:        DefaultKeyMap(),
		help:        help.New(),
		snapshot:    source.GetCurrentSnapshot(),
		currentPath: data.NewEnginePath(path),
		showPreview: true,
		textInput:   ti,
	}
	m.reload("")
	return m
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case SnapshotMsg:
		if msg.Snapshot == nil || msg.Snapshot == m.snapshot {
			return m, nil
		}
		m.snapshot = msg.Snapshot
		m.reload(m.selectedName())
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeFilter:
			return m.handleFilterMode(msg)
		case ModeHelp:
			if key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Quit) || msg.Type == tea.KeyEscape {
				m.mode = ModeNormal
			}
			return m, nil
		default:
			return m.handleNormalMode(msg)
		}
	}

	if m.mode == ModeFilter {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.mode = ModeHelp

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.PageUp):
		m.moveCursor(-10)
	case key.Matches(msg, m.keys.PageDown):
		m.moveCursor(10)
	case key.Matches(msg, m.keys.Top):
		m.cursor, m.offset = 0, 0
	case key.Matches(msg, m.keys.Bottom):
		m.moveCursor(len(m.entries))

	case key.Matches(msg, m.keys.Enter):
		m.enterDirectory()
	case key.Matches(msg, m.keys.Back):
		m.goBack()

	case key.Matches(msg, m.keys.Filter):
		m.mode = ModeFilter
		m.textInput.SetValue(m.filter)
		m.textInput.Focus()

	case key.Matches(msg, m.keys.TogglePreview):
		m.showPreview = !m.showPreview

	case key.Matches(msg, m.keys.Rescan):
		m.source.ScanDirectory(m.currentPath.Full)
		m.statusMsg = fmt.Sprintf("Rescanning %s", m.displayPath())
	}
	return m, nil
}

func (m *Model) handleFilterMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape:
		m.mode = ModeNormal
		m.textInput.Blur()
		return m, nil

	case tea.KeyEnter:
		m.mode = ModeNormal
		m.textInput.Blur()
		m.filter = strings.TrimSpace(m.textInput.Value())
		m.cursor, m.offset = 0, 0
		m.reload("")
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// reload lists the current directory again and keeps the cursor on the entry
// named selected when it still exists. A directory that vanished is left for
// its closest remaining parent.
func (m *Model) reload(selected string) {
	for !m.currentPath.IsRoot() && m.snapshot.GetDirectoryByEnginePath(m.currentPath.Key) == nil {
		selected = m.currentPath.Base()
		m.currentPath = m.currentPath.Dir()
	}
	if d := m.snapshot.GetDirectoryByEnginePath(m.currentPath.Key); d != nil {
		m.currentPath = d.Path
	}

	m.entries = entries(m.snapshot, m.currentPath.Key, m.filter)
	m.errorMsg = ""

	if selected != "" {
		folded := data.Fold(selected)
		for i, e := range m.entries {
			if data.Fold(e.Name) == folded {
				m.cursor = i
				break
			}
		}
	}
	m.moveCursor(0)
}

func (m *Model) selectedName() string {
	if e := m.currentEntry(); e != nil {
		return e.Name
	}
	return ""
}

func (m *Model) moveCursor(delta int) {
	if len(m.entries) == 0 {
		m.cursor, m.offset = 0, 0
		return
	}

	m.cursor = min(max(m.cursor+delta, 0), len(m.entries)-1)

	visible := m.visibleLines()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
}

func (m *Model) visibleLines() int {
	// Title, status, help and borders.
	available := m.height - 8
	if available < 5 {
		return 5
	}
	return available
}

func (m *Model) currentEntry() *Entry {
	if m.cursor >= 0 && m.cursor < len(m.entries) {
		return m.entries[m.cursor]
	}
	return nil
}

func (m *Model) enterDirectory() {
	e := m.currentEntry()
	if e == nil {
		return
	}
	if !e.IsDir {
		m.statusMsg = fmt.Sprintf("%s is a file", e.Name)
		return
	}

	m.currentPath = e.Path
	m.cursor, m.offset = 0, 0
	m.filter = ""
	m.statusMsg = ""
	m.reload("")
}

func (m *Model) goBack() {
	if m.currentPath.IsRoot() {
		return
	}

	previous := m.currentPath.Base()
	m.currentPath = m.currentPath.Dir()
	m.cursor, m.offset = 0, 0
	m.filter = ""
	m.statusMsg = ""
	m.reload(previous)
}

func (m *Model) displayPath() string {
	if m.currentPath.IsRoot() {
		return "/"
	}
	return m.currentPath.Full
}
