package ui

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aeolun/kindred/pkg/api"
	"github.com/aeolun/kindred/pkg/client"
	"github.com/aeolun/kindred/pkg/protocol"
	"github.com/aeolun/kindred/pkg/store"
	tea "github.com/charmbracelet/bubbletea"
)

// fakeServer answers API calls from a route table and records what it saw
type fakeServer struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string][]byte
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
	srv      *httptest.Server
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		bodies: make(map[string][]byte),
		routes: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, route)
		f.bodies[route] = body
		handler := f.routes[route]
		f.mu.Unlock()

		if handler == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte("[]"))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

// on registers a JSON reply for "METHOD /path"
func (f *fakeServer) on(route string, status int, body interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}

// body decodes the last JSON body sent to route
func (f *fakeServer) body(t *testing.T, route string) map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	data, ok := f.bodies[route]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no request to %s", route)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("body of %s is not a JSON object: %v (%q)", route, err, data)
	}
	return out
}

func (f *fakeServer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

type fakeJoiner struct {
	rooms []string
}

func (f *fakeJoiner) JoinRoom(room string) { f.rooms = append(f.rooms, room) }

type fakeTyping struct {
	keystrokes []string
	sent       []string
}

func (f *fakeTyping) Keystroke(room string)   { f.keystrokes = append(f.keystrokes, room) }
func (f *fakeTyping) MessageSent(room string) { f.sent = append(f.sent, room) }

// fakePresence records the token the client still held when going offline
type fakePresence struct {
	api    *api.Client
	tokens []string
}

func (f *fakePresence) OfflineNow(ctx context.Context) error {
	f.tokens = append(f.tokens, f.api.Token())
	return nil
}

type testEnv struct {
	model    *Model
	store    *store.Store
	server   *fakeServer
	api      *api.Client
	joiner   *fakeJoiner
	typing   *fakeTyping
	presence *fakePresence
	state    *client.MockState
	notified chan string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	server := newFakeServer(t)
	apiClient := api.New(server.srv.URL)
	env := &testEnv{
		store:    store.New(),
		server:   server,
		api:      apiClient,
		joiner:   &fakeJoiner{},
		typing:   &fakeTyping{},
		presence: &fakePresence{api: apiClient},
		state:    client.NewMockState(),
		notified: make(chan string, 4),
	}
	env.model = NewModel(Deps{
		Store:         env.store,
		API:           apiClient,
		Channel:       env.joiner,
		Typing:        env.typing,
		Presence:      env.presence,
		State:         env.state,
		Logger:        log.New(io.Discard, "", 0),
		Notifications: true,
		Notify: func(title, message string) error {
			env.notified <- message
			return nil
		},
	})
	return env
}

func testUser(role protocol.Role) protocol.User {
	return protocol.User{ID: "u1", Username: "alice", DisplayName: "Alice", Role: role}
}

// signIn puts the env straight into a signed-in session on the topics page
func (e *testEnv) signIn(t *testing.T, role protocol.Role) {
	t.Helper()
	e.run(t, e.model.signIn("tok", testUser(role)))
}

// run executes cmd the way the bubbletea runtime would, feeding API results
// back through Update until no follow-up work is left
func (e *testEnv) run(t *testing.T, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}

	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()

	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(time.Second):
		// timer-driven commands are not followed
		return
	}

	switch msg := msg.(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			e.run(t, c)
		}
	case resultMsg:
		_, next := e.model.Update(msg)
		e.run(t, next)
	}
}

// press sends one key through Update and runs the resulting command
func (e *testEnv) press(t *testing.T, k tea.KeyMsg) {
	t.Helper()
	_, cmd := e.model.Update(k)
	e.run(t, cmd)
}

func (e *testEnv) typeText(t *testing.T, text string) {
	t.Helper()
	for _, r := range text {
		e.press(t, runeKey(r))
	}
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

var (
	enterKey = tea.KeyMsg{Type: tea.KeyEnter}
	escKey   = tea.KeyMsg{Type: tea.KeyEsc}
	tabKey   = tea.KeyMsg{Type: tea.KeyTab}
)

func hasBinding(frame Frame, k string) bool {
	for _, b := range frame.Bindings {
		for _, bound := range b.Key.Keys() {
			if bound == k {
				return true
			}
		}
	}
	return false
}
