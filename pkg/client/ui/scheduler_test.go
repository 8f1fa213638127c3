package ui

import (
	"io"
	"log"
	"strings"
	"testing"

	"github.com/aeolun/kindred/pkg/metrics"
	"github.com/aeolun/kindred/pkg/protocol"
	"github.com/aeolun/kindred/pkg/store"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRendersOnEveryMutation(t *testing.T) {
	st := store.New()
	builds := 0
	s := NewScheduler(st.Snapshot, func(snap store.Snapshot) Frame {
		builds++
		return Frame{Page: Route(snap), Content: snap.Notice}
	}, func() tea.Cmd { return nil }, log.New(io.Discard, "", 0))
	st.Subscribe(s.Render)

	st.SetNotice("first")
	assert.Equal(t, 1, builds)
	assert.Equal(t, "first", s.Frame().Content)

	st.SetNotice("second")
	assert.Equal(t, 2, builds)
	assert.Equal(t, "second", s.Frame().Content)
}

func TestSchedulerContainsPanickingView(t *testing.T) {
	st := store.New()
	reloads := 0
	fail := true
	s := NewScheduler(st.Snapshot, func(snap store.Snapshot) Frame {
		if fail {
			var topics []string
			_ = topics[3]
		}
		return Frame{Page: Route(snap), Content: "ok"}
	}, func() tea.Cmd {
		reloads++
		return nil
	}, log.New(io.Discard, "", 0))
	s.SetMetrics(metrics.New())
	st.Subscribe(s.Render)

	require.NotPanics(t, func() { st.SetNotice("boom") })

	frame := s.Frame()
	require.Error(t, frame.Err)
	assert.Equal(t, PageLogin, frame.Page)
	assert.True(t, strings.Contains(frame.Content, "Something went wrong"))
	require.True(t, hasBinding(frame, "ctrl+r"))

	b, ok := Match(frame.Bindings, tea.KeyMsg{Type: tea.KeyCtrlR}, ScopeList)
	require.True(t, ok)
	b.Handler()
	assert.Equal(t, 1, reloads)

	// the next mutation draws normally again
	fail = false
	st.ClearNotice()
	assert.NoError(t, s.Frame().Err)
	assert.Equal(t, "ok", s.Frame().Content)
}

func TestModelReloadAfterFailedRender(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, protocol.RoleBasic)
	env.server.on("GET /topics", 200, []map[string]interface{}{{"id": "1", "title": "Anxiety"}})

	env.model.scheduler.build = func(store.Snapshot) Frame { panic("broken page") }
	env.model.scheduler.Render()
	require.Error(t, env.model.Frame().Err)

	env.model.scheduler.build = env.model.build
	env.press(t, tea.KeyMsg{Type: tea.KeyCtrlR})

	assert.NoError(t, env.model.Frame().Err)
	assert.Contains(t, env.server.seen(), "GET /topics")
	assert.Contains(t, env.model.View(), "Anxiety")
}
