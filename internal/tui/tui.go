// Package tui is an interactive terminal front end for the todo list API.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vyrodovalexey/todolist-api/internal/client"
	"github.com/vyrodovalexey/todolist-api/internal/model"
)

// API is the subset of the todo client the UI needs.
type API interface {
	List(ctx context.Context) ([]model.TodoItem, error)
	Create(ctx context.Context, description string) (*model.TodoItem, error)
	Complete(ctx context.Context, item model.TodoItem) error
}

type itemsMsg []model.TodoItem

type errMsg struct{ err error }

// doneMsg reports a successful add or complete.
type doneMsg struct{ added bool }

type eventMsg model.TodoEvent

type watchClosedMsg struct{}

// Model is the Bubble Tea model for the todo list screen.
type Model struct {
	ctx    context.Context
	api    API
	events <-chan model.TodoEvent

	items   []model.TodoItem
	cursor  int
	loaded  bool
	adding  bool
	input   textinput.Model
	alert   string
	watched bool

	keys keyMap
	help help.Model
}

// New creates the model. events may be nil, in which case the list only
// refreshes on user actions.
func New(ctx context.Context, api API, events <-chan model.TodoEvent) Model {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render("Description: ")
	ti.Placeholder = "Enter description..."
	ti.CharLimit = 256

	return Model{
		ctx:     ctx,
		api:     api,
		events:  events,
		input:   ti,
		watched: events != nil,
		keys:    defaultKeyMap(),
		help:    help.New(),
	}
}

// Run starts the UI and blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, api API, events <-chan model.TodoEvent, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(New(ctx, api, events), opts...)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Items returns the items currently displayed.
func (m Model) Items() []model.TodoItem {
	return m.items
}

// Alert returns the error text currently shown, if any.
func (m Model) Alert() string {
	return m.alert
}

// Adding reports whether the description input is active.
func (m Model) Adding() bool {
	return m.adding
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadItems(), waitForEvent(m.events))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil
	case itemsMsg:
		m.items = msg
		m.loaded = true
		m.cursor = min(m.cursor, max(len(m.items)-1, 0))
		return m, nil
	case errMsg:
		m.alert = alertText(msg.err)
		return m, nil
	case doneMsg:
		if msg.added {
			m.input.SetValue("")
			m.input.Blur()
			m.adding = false
		}
		return m, m.loadItems()
	case eventMsg:
		return m, tea.Batch(m.loadItems(), waitForEvent(m.events))
	case watchClosedMsg:
		m.watched = false
		return m, nil
	case tea.KeyMsg:
		if m.adding {
			return m.updateInput(msg)
		}
		return m.updateBrowse(msg)
	}

	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Add):
		m.adding = true
		cmd := m.input.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Complete):
		if len(m.items) == 0 {
			return m, nil
		}
		m.alert = ""
		return m, m.completeItem(m.items[m.cursor])
	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadItems()
	case key.Matches(msg, m.keys.Clear):
		m.alert = ""
		m.input.SetValue("")
	}

	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case key.Matches(msg, m.keys.Submit):
		m.alert = ""
		return m, m.createItem(m.input.Value())
	case key.Matches(msg, m.keys.Cancel):
		m.adding = false
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Todo List"))
	b.WriteString("\n\n")

	if m.alert != "" {
		b.WriteString(alertStyle.Render(m.alert))
		b.WriteString("\n\n")
	}

	if m.adding {
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
	}

	b.WriteString(headerStyle.Render(countHeader(len(m.items))))
	if !m.watched {
		b.WriteString(mutedStyle.Render("  (press r to refresh)"))
	}
	b.WriteString("\n\n")

	switch {
	case !m.loaded:
		b.WriteString(mutedStyle.Render("Loading..."))
		b.WriteString("\n")
	case len(m.items) > 0:
		b.WriteString("  " + columnStyle.Render(fmt.Sprintf("%-36s", "Id")) + "  " + columnStyle.Render("Description"))
		b.WriteString("\n")
		for i, item := range m.items {
			line := fmt.Sprintf("%-36s  %s", item.ID, item.Description)
			if i == m.cursor {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if m.adding {
		b.WriteString(m.help.View(inputKeys(m.keys)))
	} else {
		b.WriteString(m.help.View(browseKeys(m.keys)))
	}
	b.WriteString("\n")

	return b.String()
}

func (m Model) loadItems() tea.Cmd {
	ctx, api := m.ctx, m.api
	return func() tea.Msg {
		items, err := api.List(ctx)
		if err != nil {
			return errMsg{err}
		}
		return itemsMsg(items)
	}
}

func (m Model) createItem(description string) tea.Cmd {
	ctx, api := m.ctx, m.api
	return func() tea.Msg {
		if _, err := api.Create(ctx, description); err != nil {
			return errMsg{err}
		}
		return doneMsg{added: true}
	}
}

func (m Model) completeItem(item model.TodoItem) tea.Cmd {
	ctx, api := m.ctx, m.api
	return func() tea.Msg {
		if err := api.Complete(ctx, item); err != nil {
			return errMsg{err}
		}
		return doneMsg{}
	}
}

func waitForEvent(ch <-chan model.TodoEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return watchClosedMsg{}
		}
		return eventMsg(evt)
	}
}

func countHeader(n int) string {
	return fmt.Sprintf("Showing %d Item(s)", n)
}

// alertText prefers the server's message over the client's wrapping.
func alertText(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}
