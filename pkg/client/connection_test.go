package client

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aeolun/kindred/pkg/eventloop"
	"github.com/aeolun/kindred/pkg/protocol"
	"github.com/aeolun/kindred/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// recordingSink is a Store that also records every channel status it is given
type recordingSink struct {
	*store.Store
	statuses []string
}

func (s *recordingSink) SetChannelStatus(status string) {
	s.statuses = append(s.statuses, status)
	s.Store.SetChannelStatus(status)
}

type fakeAnnouncer struct {
	online  int
	offline int
}

func (a *fakeAnnouncer) Online()  { a.online++ }
func (a *fakeAnnouncer) Offline() { a.offline++ }

type harness struct {
	loop      *eventloop.Manual
	store     *store.Store
	sink      *recordingSink
	dialer    *MockDialer
	announcer *fakeAnnouncer
	conn      *Connection
}

func newHarness() *harness {
	loop := eventloop.NewManual()
	st := store.New()
	sink := &recordingSink{Store: st}
	dialer := NewMockDialer()
	announcer := &fakeAnnouncer{}

	conn := NewConnection(dialer, sink, announcer, loop, loop)
	conn.spawn = func(fn func()) { fn() }
	st.Attach(conn)

	return &harness{loop: loop, store: st, sink: sink, dialer: dialer, announcer: announcer, conn: conn}
}

func testUser() protocol.User {
	return protocol.User{ID: "u1", Username: "alice", Role: protocol.RoleBasic}
}

// login signs in and lets the queued dial complete
func (h *harness) login() {
	h.store.SetAuth("tok", testUser())
	h.loop.Flush()
}

func (h *harness) openWith(t *testing.T) *MockTransport {
	t.Helper()
	tr := NewMockTransport()
	h.dialer.QueueTransport(tr)
	h.login()
	require.Equal(t, StateOpen, h.conn.State())
	return tr
}

func envelope(t *testing.T, msgType string, payload interface{}) []byte {
	t.Helper()
	data, err := protocol.EncodeEnvelope(msgType, payload)
	require.NoError(t, err)
	return data
}

func decodeSent(t *testing.T, data []byte) protocol.Envelope {
	t.Helper()
	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

// sentRooms summarises the room frames a transport sent as "type room"
func sentRooms(t *testing.T, tr *MockTransport) []string {
	t.Helper()
	var out []string
	for _, data := range tr.Sent() {
		env := decodeSent(t, data)
		out = append(out, env.Type+" "+env.Room)
	}
	return out
}

func TestLoginOpensChannel(t *testing.T) {
	h := newHarness()
	tr := NewMockTransport()
	h.dialer.QueueTransport(tr)

	h.store.SetAuth("tok", protocol.User{ID: "u1"})
	assert.Equal(t, StateConnecting, h.conn.State())

	h.loop.Flush()

	assert.Equal(t, StateOpen, h.conn.State())
	assert.Equal(t, []string{"connecting", "open"}, h.sink.statuses)
	assert.Equal(t, 1, h.announcer.online)
	assert.Equal(t, 0, h.announcer.offline)
	assert.Equal(t, []string{"tok"}, h.dialer.Tokens())
	assert.True(t, tr.Running())
	assert.Equal(t, "open", h.store.Snapshot().ChannelStatus)
}

func TestStartWithoutTokenStaysDisconnected(t *testing.T) {
	h := newHarness()
	h.conn.Start()
	h.loop.Flush()

	assert.Equal(t, StateDisconnected, h.conn.State())
	assert.Equal(t, 0, h.dialer.Dials())
	assert.Empty(t, h.sink.statuses)
}

func TestStartIsNoopWhileRunning(t *testing.T) {
	h := newHarness()
	h.openWith(t)

	h.conn.Start()
	h.loop.Flush()
	assert.Equal(t, 1, h.dialer.Dials())
	assert.Equal(t, StateOpen, h.conn.State())
}

func TestDropReconnectsAfterFixedDelay(t *testing.T) {
	h := newHarness()
	tr := h.openWith(t)

	tr.Drop(errors.New("connection reset"))
	h.loop.Flush()

	assert.Equal(t, StateReconnectWait, h.conn.State())
	assert.Equal(t, 1, h.announcer.offline)
	assert.Equal(t, 1, h.loop.Pending())

	h.loop.Advance(ReconnectDelay - time.Millisecond)
	assert.Equal(t, StateReconnectWait, h.conn.State())
	assert.Equal(t, 1, h.dialer.Dials())

	tr2 := NewMockTransport()
	h.dialer.QueueTransport(tr2)
	h.loop.Advance(time.Millisecond)

	assert.Equal(t, 2, h.dialer.Dials())
	assert.Equal(t, StateOpen, h.conn.State())
	assert.Equal(t, 2, h.announcer.online)
	assert.Equal(t, []string{"connecting", "open", "reconnect_wait", "connecting", "open"}, h.sink.statuses)
}

func TestStopDuringReconnectWaitCancelsTimer(t *testing.T) {
	h := newHarness()
	tr := h.openWith(t)

	tr.Drop(errors.New("eof"))
	h.loop.Flush()
	require.Equal(t, StateReconnectWait, h.conn.State())

	h.conn.Stop()
	assert.Equal(t, StateDisconnected, h.conn.State())
	assert.Equal(t, 0, h.loop.Pending())

	h.loop.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.Dials())
	assert.Equal(t, StateDisconnected, h.conn.State())
}

func TestDialFailureRetriesWithoutOfflineAnnouncement(t *testing.T) {
	h := newHarness()
	h.dialer.QueueError(errors.New("connection refused"))

	h.login()
	assert.Equal(t, StateReconnectWait, h.conn.State())
	assert.Equal(t, 0, h.announcer.offline)
	assert.Equal(t, 0, h.announcer.online)

	// nothing queued: the retry fails too
	h.loop.Advance(ReconnectDelay)
	assert.Equal(t, 2, h.dialer.Dials())
	assert.Equal(t, StateReconnectWait, h.conn.State())

	h.dialer.QueueTransport(NewMockTransport())
	h.loop.Advance(ReconnectDelay)
	assert.Equal(t, StateOpen, h.conn.State())
	assert.Equal(t, 1, h.announcer.online)
}

func TestJoinRoomOnlyWhileOpen(t *testing.T) {
	h := newHarness()
	tr := NewMockTransport()
	h.dialer.QueueTransport(tr)

	h.conn.JoinRoom("topic_1")
	h.store.SetAuth("tok", protocol.User{ID: "u1"})
	h.conn.JoinRoom("topic_1") // still connecting
	h.loop.Flush()
	require.Equal(t, StateOpen, h.conn.State())
	assert.Equal(t, []string{"join_room dm_u1"}, sentRooms(t, tr))

	h.conn.JoinRoom("topic_1")
	h.conn.JoinRoom("group_2")

	sent := tr.Sent()
	require.Len(t, sent, 4)
	join := decodeSent(t, sent[1])
	assert.Equal(t, protocol.TypeJoinRoom, join.Type)
	assert.Equal(t, "topic_1", join.Room)
	var payload protocol.JoinRoomPayload
	require.NoError(t, join.DecodePayload(&payload))
	assert.Equal(t, "topic_1", payload.Room)
	assert.Equal(t, []string{
		"join_room dm_u1",
		"join_room topic_1",
		"leave_room topic_1",
		"join_room group_2",
	}, sentRooms(t, tr))
}

func TestResubscribesActiveRoomOnOpen(t *testing.T) {
	h := newHarness()
	tr := h.openWith(t)

	h.store.Navigate(store.ViewTopicDetail, store.NavParams{TopicID: "42"})
	h.conn.JoinRoom(h.store.ActiveRoom())
	require.Len(t, tr.Sent(), 2)

	tr.Drop(errors.New("reset"))
	h.loop.Flush()

	tr2 := NewMockTransport()
	h.dialer.QueueTransport(tr2)
	h.loop.Advance(ReconnectDelay)
	require.Equal(t, StateOpen, h.conn.State())

	assert.Equal(t, []string{"join_room dm_u1", "join_room topic_42"}, sentRooms(t, tr2))
}

func TestOpenJoinsInboxWithoutActiveRoom(t *testing.T) {
	h := newHarness()
	tr := h.openWith(t)
	require.Equal(t, store.ViewTopics, h.store.View().Current)
	assert.Equal(t, []string{"join_room dm_u1"}, sentRooms(t, tr))

	// the inbox is joined again after every reconnect
	tr.Drop(errors.New("reset"))
	h.loop.Flush()
	tr2 := NewMockTransport()
	h.dialer.QueueTransport(tr2)
	h.loop.Advance(ReconnectDelay)
	require.Equal(t, StateOpen, h.conn.State())
	assert.Equal(t, []string{"join_room dm_u1"}, sentRooms(t, tr2))
}

func TestInboxJoinedOnce(t *testing.T) {
	h := newHarness()
	tr := h.openWith(t)

	h.store.Navigate(store.ViewTopicDetail, store.NavParams{TopicID: "1"})
	h.conn.JoinRoom(h.store.ActiveRoom())
	h.store.Navigate(store.ViewConversations, store.NavParams{})
	h.conn.JoinRoom(h.store.ActiveRoom())

	// the inbox is not a view-scoped room, so the topic stays joined
	assert.Equal(t, []string{"join_room dm_u1", "join_room topic_1"}, sentRooms(t, tr))
}

func TestInboxSkippedWhenOpenedOnConversations(t *testing.T) {
	h := newHarness()
	tr := NewMockTransport()
	h.dialer.QueueTransport(tr)
	h.login()
	h.store.Navigate(store.ViewConversations, store.NavParams{})

	tr.Drop(errors.New("reset"))
	h.loop.Flush()
	tr2 := NewMockTransport()
	h.dialer.QueueTransport(tr2)
	h.loop.Advance(ReconnectDelay)

	assert.Equal(t, []string{"join_room dm_u1"}, sentRooms(t, tr2))
}

func TestRoomlessTypingGoesToCurrentRoom(t *testing.T) {
	h := newHarness()
	tr := h.openWith(t)

	h.store.Navigate(store.ViewTopicDetail, store.NavParams{TopicID: "A"})
	h.conn.JoinRoom(h.store.ActiveRoom())
	h.store.Navigate(store.ViewTopicDetail, store.NavParams{TopicID: "B"})
	h.conn.JoinRoom(h.store.ActiveRoom())

	assert.Equal(t, []string{
		"join_room dm_u1",
		"join_room topic_A",
		"leave_room topic_A",
		"join_room topic_B",
	}, sentRooms(t, tr))

	tr.Deliver([]byte(`{"type":"typing","payload":{"user_id":"u9","is_typing":true}}`))
	h.loop.Flush()

	assert.Equal(t, []string{"u9"}, h.store.Typing("topic_B"))
	assert.Empty(t, h.store.Typing("topic_A"))
}

func TestRoomlessTypingDroppedWithoutScopedRoom(t *testing.T) {
	h := newHarness()
	tr := h.openWith(t)
	before := h.store.Snapshot()

	tr.Deliver([]byte(`{"type":"typing","payload":{"user_id":"u9","is_typing":true}}`))
	h.loop.Flush()

	assert.Equal(t, before, h.store.Snapshot())
}

func TestSessionChangesRenderOnce(t *testing.T) {
	h := newHarness()
	h.dialer.QueueTransport(NewMockTransport())
	renders := 0
	h.store.Subscribe(func() { renders++ })

	h.store.SetAuth("tok", testUser())
	assert.Equal(t, 1, renders)
	assert.Equal(t, "connecting", h.store.Snapshot().ChannelStatus)

	h.loop.Flush()
	require.Equal(t, StateOpen, h.conn.State())
	renders = 0

	h.store.ClearAuth()
	assert.Equal(t, 1, renders)
	assert.Equal(t, "disconnected", h.store.Snapshot().ChannelStatus)
}

func TestInboundNewMessage(t *testing.T) {
	h := newHarness()
	tr := h.openWith(t)
	require.NoError(t, h.store.ApplyFetch(store.CollectionMessages, []protocol.Message{{ID: "old"}}))

	topic := "t1"
	tr.Deliver(envelope(t, protocol.TypeNewMessage, protocol.Message{ID: "m1", Content: "hello", TopicID: &topic}))
	h.loop.Flush()

	snap := h.store.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "m1", snap.Messages[0].ID)
	assert.Equal(t, "hello", snap.Messages[0].Content)
}

func TestInboundTyping(t *testing.T) {
	h := newHarness()
	tr := h.openWith(t)
	h.store.Navigate(store.ViewTopicDetail, store.NavParams{TopicID: "t1"})
	h.conn.JoinRoom(h.store.ActiveRoom())

	tr.Deliver(envelope(t, protocol.TypeTyping, protocol.TypingPayload{Room: "topic_t1", UserID: "u2", IsTyping: true}))
	h.loop.Flush()
	assert.Equal(t, []string{"u2"}, h.store.Typing("topic_t1"))

	// a payload without a room belongs to the joined room
	tr.Deliver([]byte(`{"type":"typing","payload":{"user_id":"u3","is_typing":true}}`))
	h.loop.Flush()
	assert.Equal(t, []string{"u2", "u3"}, h.store.Typing("topic_t1"))

	tr.Deliver(envelope(t, protocol.TypeTyping, protocol.TypingPayload{Room: "topic_t1", UserID: "u2", IsTyping: false}))
	h.loop.Flush()
	assert.Equal(t, []string{"u3"}, h.store.Typing("topic_t1"))
}

func TestInboundDirectMessage(t *testing.T) {
	h := newHarness()
	var got []protocol.DirectMessage
	h.conn.SetDirectMessageHandler(func(dm protocol.DirectMessage) { got = append(got, dm) })
	tr := h.openWith(t)

	tr.Deliver(envelope(t, protocol.TypeNewDM, protocol.DirectMessage{ID: "d1", SenderID: "u9", Content: "psst"}))
	h.loop.Flush()

	require.Len(t, got, 1)
	assert.Equal(t, "psst", got[0].Content)
}

func TestUnknownAndMalformedFramesLeaveStoreUnchanged(t *testing.T) {
	h := newHarness()
	tr := h.openWith(t)
	h.store.Navigate(store.ViewTopicDetail, store.NavParams{TopicID: "t1"})
	before := h.store.Snapshot()

	for _, frame := range []string{
		`{"type":"unknown_x"}`,
		`{"type":"unknown_x","payload":{"a":1}}`,
		`not json`,
		`{"payload":{}}`,
		`{"type":"new_message","payload":"nope"}`,
		`{"type":"new_message","payload":null}`,
		`{"type":"typing"}`,
	} {
		tr.Deliver([]byte(frame))
	}
	h.loop.Flush()

	assert.Equal(t, before, h.store.Snapshot())
	assert.Equal(t, StateOpen, h.conn.State())
}

func TestStaleTransportEventsIgnored(t *testing.T) {
	h := newHarness()
	tr := h.openWith(t)

	h.conn.Stop()
	assert.True(t, tr.IsClosed())

	tr.Deliver(envelope(t, protocol.TypeNewMessage, protocol.Message{ID: "late"}))
	tr.Drop(errors.New("closed"))
	h.loop.Flush()

	assert.Equal(t, StateDisconnected, h.conn.State())
	assert.Equal(t, 0, h.store.MessageCount())
	assert.Equal(t, 0, h.announcer.offline)
	assert.Equal(t, 0, h.loop.Pending())
}

func TestStopWhileConnectingClosesLateTransport(t *testing.T) {
	h := newHarness()
	var pending func()
	h.conn.spawn = func(fn func()) { pending = fn }

	tr := NewMockTransport()
	h.dialer.QueueTransport(tr)
	h.store.SetAuth("tok", protocol.User{ID: "u1"})
	require.Equal(t, StateConnecting, h.conn.State())

	h.conn.Stop()
	pending()
	h.loop.Flush()

	assert.Equal(t, StateDisconnected, h.conn.State())
	assert.True(t, tr.IsClosed())
	assert.False(t, tr.Running())
	assert.Equal(t, 0, h.announcer.online)
}

func TestClearAuthStopsChannel(t *testing.T) {
	h := newHarness()
	tr := h.openWith(t)
	h.store.Navigate(store.ViewTopicDetail, store.NavParams{TopicID: "t1"})
	h.store.SetTyping("topic_t1", "u2", true)

	h.store.ClearAuth()

	snap := h.store.Snapshot()
	assert.Equal(t, store.ViewLogin, snap.View.Current)
	assert.Empty(t, snap.Session.Token)
	assert.Empty(t, snap.Typing)
	assert.Equal(t, StateDisconnected, h.conn.State())
	assert.True(t, tr.IsClosed())
}

// Whatever happened to the channel before, clearing the session leaves it
// disconnected with nothing scheduled.
func TestClearAuthProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := newHarness()
		var current *MockTransport

		steps := rapid.SliceOfN(rapid.SampledFrom([]string{"login", "drop", "wait", "fail-next", "navigate", "join", "typing"}), 0, 25).Draw(t, "steps")
		for _, step := range steps {
			switch step {
			case "login":
				current = NewMockTransport()
				h.dialer.QueueTransport(current)
				h.login()
			case "drop":
				if current != nil {
					current.Drop(errors.New("drop"))
					h.loop.Flush()
				}
			case "wait":
				current = NewMockTransport()
				h.dialer.QueueTransport(current)
				h.loop.Advance(ReconnectDelay)
			case "fail-next":
				h.dialer.QueueError(errors.New("refused"))
			case "navigate":
				h.store.Navigate(store.ViewTopicDetail, store.NavParams{TopicID: "t1"})
			case "join":
				h.conn.JoinRoom("topic_t1")
			case "typing":
				h.store.SetTyping("topic_t1", "u2", true)
			}
		}

		h.store.ClearAuth()
		h.loop.Advance(time.Minute)

		snap := h.store.Snapshot()
		if snap.View.Current != store.ViewLogin {
			t.Fatalf("view is %s", snap.View.Current)
		}
		if snap.Session.Token != "" {
			t.Fatalf("token still set")
		}
		if len(snap.Typing) != 0 {
			t.Fatalf("typing set not empty: %v", snap.Typing)
		}
		if h.conn.State() != StateDisconnected {
			t.Fatalf("channel is %s", h.conn.State())
		}
		if h.loop.Pending() != 0 {
			t.Fatalf("%d timers still pending", h.loop.Pending())
		}
	})
}
