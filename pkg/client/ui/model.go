// ABOUTME: Terminal front end for the sync runtime
// ABOUTME: Owns the bubbletea loop that the Store, channel and timers post onto
package ui

import (
	"context"
	"io"
	"log"

	"github.com/aeolun/kindred/pkg/api"
	"github.com/aeolun/kindred/pkg/client"
	"github.com/aeolun/kindred/pkg/eventloop"
	"github.com/aeolun/kindred/pkg/metrics"
	"github.com/aeolun/kindred/pkg/protocol"
	"github.com/aeolun/kindred/pkg/store"
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gen2brain/beeep"
)

// RoomJoiner subscribes the live-update channel to a room
type RoomJoiner interface {
	JoinRoom(room string)
}

// TypingSignals receives composer activity
type TypingSignals interface {
	Keystroke(room string)
	MessageSent(room string)
}

// OfflineAnnouncer marks the user offline before the session goes away
type OfflineAnnouncer interface {
	OfflineNow(ctx context.Context) error
}

// Deps are the collaborators the Model drives
type Deps struct {
	Store    *store.Store
	API      *api.Client
	Channel  RoomJoiner
	Typing   TypingSignals
	Presence OfflineAnnouncer
	State    client.StateInterface
	Queue    *eventloop.Queue
	Metrics  *metrics.Metrics
	Logger   *log.Logger

	// ResumeToken is a persisted session token checked on start
	ResumeToken string

	// Notifications enables desktop notifications for direct messages
	Notifications bool
	// Notify defaults to beeep.Notify
	Notify func(title, message string) error
}

// field identifies a focusable text input
type field int

const (
	fieldNone field = iota
	fieldUsername
	fieldPassword
	fieldDisplayName
	fieldSearch
	fieldTopicTitle
	fieldTopicDescription
	fieldProfileName
	fieldProfileBio
	fieldProfileStatus
	fieldComposer
)

// Model is the bubbletea model. It is used through a pointer so the Store's
// render callback and the model share widget state.
type Model struct {
	store    *store.Store
	api      *api.Client
	channel  RoomJoiner
	typing   TypingSignals
	presence OfflineAnnouncer
	state    client.StateInterface
	queue    *eventloop.Queue
	logger   *log.Logger

	notifications bool
	notify        func(title, message string) error
	resumeToken   string

	scheduler *Scheduler

	width  int
	height int

	spinner spinner.Model
	inputs  map[field]*textinput.Model
	// composer is shared by topic replies, message edits and direct messages
	composer textarea.Model
	focus    field

	registering bool
	creating    bool
	editingID   string
	recipient   *protocol.User
	cursors     map[Page]int
}

// NewModel wires the model to the Store and renders the first frame
func NewModel(deps Deps) *Model {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	m := &Model{
		store:         deps.Store,
		api:           deps.API,
		channel:       deps.Channel,
		typing:        deps.Typing,
		presence:      deps.Presence,
		state:         deps.State,
		queue:         deps.Queue,
		logger:        logger,
		notifications: deps.Notifications,
		notify:        deps.Notify,
		resumeToken:   deps.ResumeToken,
		inputs:        make(map[field]*textinput.Model),
		cursors:       make(map[Page]int),
	}
	if m.notify == nil {
		m.notify = func(title, message string) error {
			return beeep.Notify(title, message, "")
		}
	}

	m.spinner = spinner.New()
	m.spinner.Spinner = spinner.Dot
	m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m.inputs[fieldUsername] = newInput("username", 64, false)
	m.inputs[fieldPassword] = newInput("password", 128, true)
	m.inputs[fieldDisplayName] = newInput("display name (optional)", 64, false)
	m.inputs[fieldSearch] = newInput("search users", 64, false)
	m.inputs[fieldTopicTitle] = newInput("title", 200, false)
	m.inputs[fieldTopicDescription] = newInput("description", 1000, false)
	m.inputs[fieldProfileName] = newInput("display name", 64, false)
	m.inputs[fieldProfileBio] = newInput("bio", 500, false)
	m.inputs[fieldProfileStatus] = newInput("status", 100, false)

	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false) // Enter sends
	ta.Cursor.SetMode(cursor.CursorStatic)
	m.composer = ta

	m.scheduler = NewScheduler(m.store.Snapshot, m.build, m.reload, logger)
	m.scheduler.SetMetrics(deps.Metrics)
	m.store.Subscribe(m.scheduler.Render)

	if m.store.View().Current == store.ViewLogin {
		m.focusField(fieldUsername)
	}
	m.scheduler.Render()
	return m
}

func newInput(placeholder string, limit int, secret bool) *textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = limit
	ti.Cursor.SetMode(cursor.CursorStatic)
	if secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	return &ti
}

// Init starts draining the event loop queue and resumes a saved session
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.queue != nil {
		cmds = append(cmds, listenForWork(m.queue))
	}
	if m.resumeToken != "" {
		cmds = append(cmds, m.Resume(m.resumeToken))
		m.resumeToken = ""
	}
	return tea.Batch(cmds...)
}

// runMsg carries one closure posted from an I/O goroutine or a timer
type runMsg struct {
	fn func()
	ok bool
}

// listenForWork waits for the next posted closure. Update re-arms it after
// each one, so closures run strictly one at a time on the program goroutine.
func listenForWork(q *eventloop.Queue) tea.Cmd {
	return func() tea.Msg {
		fn, ok := q.Next()
		return runMsg{fn: fn, ok: ok}
	}
}

// View returns the scheduler's current frame
func (m *Model) View() string {
	return m.scheduler.Frame().Content
}

// Frame exposes the current frame
func (m *Model) Frame() Frame {
	return m.scheduler.Frame()
}

func (m *Model) activeScope() Scope {
	if m.focus != fieldNone {
		return ScopeInput
	}
	return ScopeList
}

// focusField moves focus to f, blurring everything else. fieldNone blurs all.
func (m *Model) focusField(f field) {
	for id, input := range m.inputs {
		if id == f {
			input.Focus()
		} else {
			input.Blur()
		}
	}
	if f == fieldComposer {
		m.composer.Focus()
	} else {
		m.composer.Blur()
	}
	m.focus = f
}

func (m *Model) input(f field) *textinput.Model {
	return m.inputs[f]
}

func (m *Model) value(f field) string {
	if f == fieldComposer {
		return m.composer.Value()
	}
	return m.inputs[f].Value()
}

func (m *Model) resetInputs(fields ...field) {
	for _, f := range fields {
		if f == fieldComposer {
			m.composer.Reset()
			continue
		}
		m.inputs[f].Reset()
	}
}

func (m *Model) size() (int, int) {
	w, h := m.width, m.height
	if w <= 0 {
		w = 80
	}
	if h <= 0 {
		h = 24
	}
	return w, h
}
