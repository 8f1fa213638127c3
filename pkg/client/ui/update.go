package ui

import (
	"github.com/aeolun/kindred/pkg/store"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runMsg:
		if !msg.ok {
			return m, nil
		}
		msg.fn()
		return m, listenForWork(m.queue)

	case resultMsg:
		return m, m.applyResult(msg)

	case tea.KeyMsg:
		return m, m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.composer.SetWidth(max(msg.Width-4, 20))
		for _, input := range m.inputs {
			input.Width = max(msg.Width/2, 20)
		}
		m.scheduler.Render()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.scheduler.Frame().Page == PageLoading {
			m.scheduler.Render()
		}
		return m, cmd
	}
	return m, nil
}

// handleKeyPress matches the key against the current frame's bindings and
// otherwise hands it to the focused text field
func (m *Model) handleKeyPress(msg tea.KeyMsg) tea.Cmd {
	if b, ok := Match(m.scheduler.Frame().Bindings, msg, m.activeScope()); ok {
		return b.Handler()
	}
	if m.focus == fieldNone {
		return nil
	}

	var cmd tea.Cmd
	if m.focus == fieldComposer {
		before := m.composer.Value()
		m.composer, cmd = m.composer.Update(msg)
		if m.composer.Value() != before {
			m.composerChanged()
		}
	} else {
		input := m.input(m.focus)
		*input, cmd = input.Update(msg)
	}
	m.scheduler.Render()
	return cmd
}

// composerChanged forwards topic composer keystrokes to the typing debouncer.
// Edits and direct messages do not announce typing.
func (m *Model) composerChanged() {
	if m.typing == nil || m.editingID != "" {
		return
	}
	view := m.store.View()
	if view.Current != store.ViewTopicDetail {
		return
	}
	if room := m.store.ActiveRoom(); room != "" {
		m.typing.Keystroke(room)
	}
}

// navigate switches view, subscribes the channel to the new view's room and
// fetches what the page shows
func (m *Model) navigate(view store.View, params store.NavParams) tea.Cmd {
	m.focusField(fieldNone)
	m.creating = false
	m.editingID = ""
	m.recipient = nil
	m.store.Navigate(view, params)

	if room := m.store.ActiveRoom(); room != "" && m.channel != nil {
		m.channel.JoinRoom(room)
	}
	return m.fetchFor(m.store.View())
}

// reload refetches the current page; offered when a page failed to draw
func (m *Model) reload() tea.Cmd {
	m.focusField(fieldNone)
	m.scheduler.Render()
	return m.fetchFor(m.store.View())
}

func (m *Model) moveCursor(page Page, delta, length int) tea.Cmd {
	if length == 0 {
		return nil
	}
	next := m.cursors[page] + delta
	if next < 0 {
		next = 0
	}
	if next >= length {
		next = length - 1
	}
	m.cursors[page] = next
	m.scheduler.Render()
	return nil
}

func (m *Model) cursorAt(page Page, length int) int {
	c := m.cursors[page]
	if c >= length {
		c = length - 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
