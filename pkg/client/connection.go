package client

import (
	"context"
	"log"
	"time"

	"github.com/aeolun/kindred/pkg/eventloop"
	"github.com/aeolun/kindred/pkg/metrics"
	"github.com/aeolun/kindred/pkg/protocol"
)

// ConnectionState is the live-update channel status
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateOpen
	StateReconnectWait
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnectWait:
		return "reconnect_wait"
	default:
		return "unknown"
	}
}

const (
	// ReconnectDelay is the fixed wait between a lost connection and the next dial
	ReconnectDelay = 3000 * time.Millisecond

	// DialTimeout bounds a single connection attempt
	DialTimeout = 10 * time.Second
)

type eventKind int

const (
	eventOpened eventKind = iota
	eventDialFailed
	eventFrame
	eventClosed
)

// connEvent is produced on I/O goroutines and consumed on the event loop
type connEvent struct {
	kind      eventKind
	gen       uint64
	transport Transport
	data      []byte
	err       error
}

// Connection is the live-update channel. It owns at most one transport and
// drives it through DISCONNECTED, CONNECTING, OPEN and RECONNECT_WAIT.
//
// All methods must be called from the event loop. Transport goroutines only
// post events back; events from a connection generation that Stop (or a
// newer dial) abandoned are discarded.
type Connection struct {
	dialer    Dialer
	sink      Sink
	announcer Announcer
	poster    eventloop.Poster
	clock     eventloop.Clock

	state      ConnectionState
	gen        uint64
	transport  Transport
	cancelDial context.CancelFunc
	timer      eventloop.Timer
	// inbox is the direct-message room joined for the life of the transport
	inbox string
	// room is the one view-scoped room currently joined
	room string

	onDirectMessage func(protocol.DirectMessage)

	// spawn runs blocking dials off the loop
	spawn func(fn func())

	logger  *log.Logger
	metrics *metrics.Metrics
}

// NewConnection creates a stopped channel
func NewConnection(dialer Dialer, sink Sink, announcer Announcer, poster eventloop.Poster, clock eventloop.Clock) *Connection {
	return &Connection{
		dialer:    dialer,
		sink:      sink,
		announcer: announcer,
		poster:    poster,
		clock:     clock,
		state:     StateDisconnected,
		spawn:     func(fn func()) { go fn() },
	}
}

// SetLogger sets a logger for debugging connection events
func (c *Connection) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// SetMetrics attaches metrics to the channel
func (c *Connection) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// SetDirectMessageHandler sets the callback for new_dm envelopes
func (c *Connection) SetDirectMessageHandler(fn func(protocol.DirectMessage)) {
	c.onDirectMessage = fn
}

// logf logs a message if a logger is set
func (c *Connection) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// State returns the current channel state
func (c *Connection) State() ConnectionState {
	return c.state
}

// Start dials the server when the channel is stopped and a token is present
func (c *Connection) Start() {
	if c.state != StateDisconnected {
		return
	}
	c.connect()
}

// Stop closes the transport, cancels any pending reconnect and forgets the
// joined rooms. The channel ends in DISCONNECTED.
func (c *Connection) Stop() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
	c.forgetRooms()
	c.setState(StateDisconnected)
}

// SessionStarted implements store.SessionHook
func (c *Connection) SessionStarted(string) {
	c.Stop()
	c.Start()
}

// SessionEnded implements store.SessionHook
func (c *Connection) SessionEnded() {
	c.Stop()
}

// JoinRoom subscribes to room. Calls while the channel is not open are
// dropped; the active room is re-joined on the next open.
//
// At most one view-scoped room is joined at a time: joining another one
// leaves the previous room first, so a typing frame without a room always
// belongs to the room being joined last. The inbox room is never left.
func (c *Connection) JoinRoom(room string) {
	if c.state != StateOpen || room == "" {
		return
	}
	if room == c.sink.InboxRoom() {
		if c.inbox != room && c.sendRoomFrame(protocol.TypeJoinRoom, room) {
			c.inbox = room
		}
		return
	}
	if c.room != "" && c.room != room {
		c.sendRoomFrame(protocol.TypeLeaveRoom, c.room)
		c.room = ""
	}
	if c.sendRoomFrame(protocol.TypeJoinRoom, room) {
		c.room = room
	}
}

// joinRooms subscribes a freshly opened transport to the inbox and to the
// room the current view is scoped to
func (c *Connection) joinRooms() {
	c.JoinRoom(c.sink.InboxRoom())
	c.JoinRoom(c.sink.ActiveRoom())
}

func (c *Connection) forgetRooms() {
	c.inbox = ""
	c.room = ""
}

func (c *Connection) connect() {
	token := c.sink.Token()
	if token == "" {
		c.logf("No session token, channel stays disconnected")
		c.setState(StateDisconnected)
		return
	}

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
	c.cancelDial = cancel
	c.setState(StateConnecting)
	c.logf("Connecting live-update channel (session %s, generation %d)", TokenFingerprint(token), gen)

	c.spawn(func() {
		defer cancel()
		t, err := c.dialer.Dial(ctx, token)
		if err != nil {
			c.post(connEvent{kind: eventDialFailed, gen: gen, err: err})
			return
		}
		c.post(connEvent{kind: eventOpened, gen: gen, transport: t})
	})
}

func (c *Connection) post(ev connEvent) {
	c.poster.Post(func() { c.handle(ev) })
}

// handle applies one event to the state machine
func (c *Connection) handle(ev connEvent) {
	if ev.gen != c.gen {
		if ev.kind == eventOpened && ev.transport != nil {
			ev.transport.Close()
		}
		return
	}

	switch ev.kind {
	case eventOpened:
		if c.state != StateConnecting {
			ev.transport.Close()
			return
		}
		c.cancelDial = nil
		c.transport = ev.transport
		c.transport.Run(&transportHandler{conn: c, gen: ev.gen})
		c.setState(StateOpen)
		c.announcer.Online()
		c.joinRooms()

	case eventDialFailed:
		if c.state != StateConnecting {
			return
		}
		c.cancelDial = nil
		c.logf("Dial failed: %v", ev.err)
		c.scheduleReconnect()

	case eventClosed:
		if c.state != StateOpen {
			return
		}
		c.logf("Connection lost: %v", ev.err)
		c.transport = nil
		c.forgetRooms()
		c.scheduleReconnect()
		c.announcer.Offline()

	case eventFrame:
		if c.state != StateOpen {
			return
		}
		c.dispatch(ev.data)
	}
}

func (c *Connection) scheduleReconnect() {
	c.setState(StateReconnectWait)
	c.logf("Reconnecting in %v", ReconnectDelay)
	c.timer = c.clock.AfterFunc(ReconnectDelay, func() {
		c.timer = nil
		if c.state != StateReconnectWait {
			return
		}
		c.metrics.RecordReconnectAttempt()
		c.connect()
	})
}

func (c *Connection) setState(s ConnectionState) {
	if c.state == s {
		return
	}
	c.logf("Channel %s -> %s", c.state, s)
	c.state = s
	c.metrics.RecordChannelTransition(s.String())
	c.sink.SetChannelStatus(s.String())
}

// sendRoomFrame sends a join_room or leave_room frame and reports whether
// it was queued
func (c *Connection) sendRoomFrame(msgType, room string) bool {
	encode := protocol.EncodeJoinRoom
	if msgType == protocol.TypeLeaveRoom {
		encode = protocol.EncodeLeaveRoom
	}
	data, err := encode(room)
	if err != nil {
		c.logf("Encode %s: %v", msgType, err)
		return false
	}
	if err := c.transport.Send(data); err != nil {
		c.logf("Send %s %s: %v", msgType, room, err)
		return false
	}
	c.metrics.RecordFrameSent(msgType)
	return true
}

// dispatch routes one inbound frame. Malformed frames and unknown types are
// dropped.
func (c *Connection) dispatch(data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		c.logf("Dropping frame: %v", err)
		c.metrics.RecordMalformedFrame()
		return
	}

	switch env.Type {
	case protocol.TypeNewMessage:
		var msg protocol.Message
		if err := env.DecodePayload(&msg); err != nil {
			c.dropPayload(err)
			return
		}
		c.metrics.RecordFrameReceived(env.Type)
		c.sink.ApplyLiveMessage(msg)

	case protocol.TypeNewDM:
		var dm protocol.DirectMessage
		if err := env.DecodePayload(&dm); err != nil {
			c.dropPayload(err)
			return
		}
		c.metrics.RecordFrameReceived(env.Type)
		if c.onDirectMessage != nil {
			c.onDirectMessage(dm)
		}

	case protocol.TypeTyping:
		var p protocol.TypingPayload
		if err := env.DecodePayload(&p); err != nil {
			c.dropPayload(err)
			return
		}
		c.metrics.RecordFrameReceived(env.Type)
		room := p.Room
		if room == "" {
			room = c.room
		}
		if room == "" {
			return
		}
		c.sink.SetTyping(room, p.UserID, p.IsTyping)

	default:
		c.metrics.RecordFrameReceived("unknown")
		c.logf("Ignoring envelope type %q", env.Type)
	}
}

func (c *Connection) dropPayload(err error) {
	c.logf("Dropping frame: %v", err)
	c.metrics.RecordMalformedFrame()
}

// transportHandler posts one transport generation's events to the loop
type transportHandler struct {
	conn *Connection
	gen  uint64
}

func (h *transportHandler) HandleFrame(data []byte) {
	h.conn.post(connEvent{kind: eventFrame, gen: h.gen, data: data})
}

func (h *transportHandler) HandleClose(err error) {
	h.conn.post(connEvent{kind: eventClosed, gen: h.gen, err: err})
}
