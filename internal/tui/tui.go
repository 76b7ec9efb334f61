// Package tui provides an interactive terminal view of a user directory.
package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/steveyegge/userdir/internal/style"
	"github.com/steveyegge/userdir/internal/user"
)

type mode int

const (
	modeBrowse mode = iota
	modeSetCurrent
	modeAdd
	modeRename
)

// changeMsg is delivered after the directory's change notification fires.
type changeMsg struct{}

// Model is the bubbletea model for the directory view.
type Model struct {
	dir     *user.Directory
	changes chan struct{}
	done    chan struct{}

	table table.Model
	input textinput.Model
	mode  mode

	current string
	status  string
	dirty   bool
}

// New builds a model over d. Call Attach before running it so the view
// follows change notifications.
func New(d *user.Directory) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: " ", Width: 1},
			{Title: "ID", Width: 6},
			{Title: "Name", Width: 32},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(s)

	in := textinput.New()
	in.CharLimit = 128

	m := Model{
		dir:     d,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
		table:   t,
		input:   in,
	}
	m.refresh()
	return m
}

// Attach subscribes the model to d's change notification. The returned
// function removes the subscription and stops any pending change listener.
func (m Model) Attach() (detach func()) {
	ch := m.changes
	id := m.dir.Subscribe(func() {
		select {
		case ch <- struct{}{}:
		default:
			// A refresh is already pending.
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.dir.Unsubscribe(id)
			close(m.done)
		})
	}
}

// Dirty reports whether the directory was modified through the view.
func (m Model) Dirty() bool {
	return m.dirty
}

// waitForChange blocks until the next change notification, or returns nil
// once done is closed.
func waitForChange(ch, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ch:
			return changeMsg{}
		case <-done:
			return nil
		}
	}
}

// Init starts listening for change notifications.
func (m Model) Init() tea.Cmd {
	return waitForChange(m.changes, m.done)
}

// Update handles key presses and change notifications.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changeMsg:
		m.refresh()
		if m.current != "" {
			m.status = fmt.Sprintf("%s current user is now %s", style.SuccessPrefix, m.current)
		}
		return m, waitForChange(m.changes, m.done)

	case tea.KeyMsg:
		if m.mode != modeBrowse {
			return m.updatePrompt(msg)
		}
		return m.updateBrowse(msg)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "s":
		return m.prompt(modeSetCurrent, "name: ", "")
	case "a":
		return m.prompt(modeAdd, "id name: ", "")
	case "e":
		id, ok := m.selectedID()
		if !ok {
			return m, nil
		}
		name, _ := m.dir.Get(id)
		return m.prompt(modeRename, fmt.Sprintf("rename %d: ", id), name)
	case "d":
		id, ok := m.selectedID()
		if !ok {
			return m, nil
		}
		m.dir.Remove(id)
		m.dirty = true
		m.status = fmt.Sprintf("%s removed user %d", style.SuccessPrefix, id)
		m.refresh()
		return m, nil
	case "c":
		n := m.dir.Count()
		m.dir.Clear()
		m.dirty = true
		m.status = fmt.Sprintf("%s cleared %d users", style.SuccessPrefix, n)
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) prompt(md mode, prompt, value string) (tea.Model, tea.Cmd) {
	m.mode = md
	m.input.Prompt = prompt
	m.input.SetValue(value)
	m.table.Blur()
	return m, m.input.Focus()
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.endPrompt()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		md := m.mode
		m.endPrompt()
		m.submit(md, value)
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) endPrompt() {
	m.mode = modeBrowse
	m.input.Blur()
	m.input.SetValue("")
	m.table.Focus()
}

// submit applies a completed prompt to the directory.
func (m *Model) submit(md mode, value string) {
	switch md {
	case modeSetCurrent:
		if value == "" {
			m.status = fmt.Sprintf("%s name cannot be empty", style.ErrorPrefix)
			return
		}
		// The status line is set when the change notification arrives.
		m.dir.SetCurrent(value)
		m.dirty = true

	case modeAdd:
		id, name, err := parseAdd(value)
		if err != nil {
			m.status = fmt.Sprintf("%s %v", style.ErrorPrefix, err)
			return
		}
		if err := m.dir.Add(id, name); err != nil {
			m.status = fmt.Sprintf("%s %s", style.ErrorPrefix, describe(err))
			return
		}
		m.dirty = true
		m.status = fmt.Sprintf("%s added user %d", style.SuccessPrefix, id)

	case modeRename:
		id, ok := m.selectedID()
		if !ok || value == "" {
			return
		}
		if err := m.dir.Update(id, value); err != nil {
			m.status = fmt.Sprintf("%s %s", style.ErrorPrefix, describe(err))
			return
		}
		m.dirty = true
		m.status = fmt.Sprintf("%s renamed user %d", style.SuccessPrefix, id)
	}
}

// parseAdd splits "id name" input.
func parseAdd(value string) (int, string, error) {
	idStr, name, ok := strings.Cut(value, " ")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return 0, "", errors.New("expected: <id> <name>")
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return 0, "", fmt.Errorf("invalid id %q", idStr)
	}
	return id, name, nil
}

// describe turns directory errors into status-line text.
func describe(err error) string {
	switch {
	case errors.Is(err, user.ErrDuplicateKey):
		return "that id is already taken"
	case errors.Is(err, user.ErrNotFound):
		return "no user with that id"
	default:
		return err.Error()
	}
}

func (m Model) selectedID() (int, bool) {
	row := m.table.SelectedRow()
	if row == nil {
		return 0, false
	}
	id, err := strconv.Atoi(row[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// refresh reloads rows and the current-user header from the directory.
func (m *Model) refresh() {
	curID := m.dir.CurrentID()
	records := m.dir.Records()

	rows := make([]table.Row, 0, len(records))
	for _, r := range records {
		marker := ""
		if r.ID == curID {
			marker = "*"
		}
		rows = append(rows, table.Row{marker, strconv.Itoa(r.ID), r.Name})
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}

	m.current, _ = m.dir.Current()
}

// View renders the header, table, prompt and help line.
func (m Model) View() string {
	var b strings.Builder

	current := m.current
	if current == "" {
		current = style.Dim.Render("(none)")
	} else {
		current = style.Current.Render(current)
	}
	b.WriteString(style.Header.Render("userdir"))
	b.WriteString(fmt.Sprintf("  current: %s  users: %d\n\n", current, m.dir.Count()))
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if m.mode != modeBrowse {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(style.Dim.Render("enter submit • esc cancel"))
	} else {
		if m.status != "" {
			b.WriteString(m.status)
			b.WriteString("\n")
		}
		b.WriteString(style.Dim.Render("s set current • a add • e rename • d remove • c clear • q quit"))
	}
	b.WriteString("\n")
	return b.String()
}

// Run shows the interactive view until the user quits. It reports whether
// the directory was modified.
func Run(d *user.Directory, opts ...tea.ProgramOption) (bool, error) {
	m := New(d)
	detach := m.Attach()
	defer detach()

	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return false, fmt.Errorf("running interactive view: %w", err)
	}
	fm, ok := final.(Model)
	if !ok {
		return false, nil
	}
	return fm.Dirty(), nil
}
