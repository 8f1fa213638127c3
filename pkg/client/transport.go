package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aeolun/kindred/pkg/protocol"
	"github.com/gorilla/websocket"
)

const (
	defaultOutgoingQueue = 100
	defaultPingInterval  = 30 * time.Second
	defaultWriteTimeout  = 10 * time.Second
)

var (
	errTransportClosed = errors.New("connection closed")
	errQueueFull       = errors.New("outgoing queue full")
)

// WebSocketDialer dials the live-update endpoint with gorilla/websocket. The
// session token is passed as the "token" query parameter.
type WebSocketDialer struct {
	URL          string
	Dialer       *websocket.Dialer
	Logger       *log.Logger
	QueueSize    int
	PingInterval time.Duration
}

// NewWebSocketDialer creates a dialer for a ws:// or wss:// endpoint
func NewWebSocketDialer(rawURL string, logger *log.Logger) *WebSocketDialer {
	return &WebSocketDialer{
		URL:    rawURL,
		Logger: logger,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DialTimeout,
		},
		QueueSize:    defaultOutgoingQueue,
		PingInterval: defaultPingInterval,
	}
}

// Dial opens a connection authenticated with token
func (d *WebSocketDialer) Dial(ctx context.Context, token string) (Transport, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s%s: %w (status %d)", u.Host, u.Path, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s%s: %w", u.Host, u.Path, err)
	}
	conn.SetReadLimit(protocol.MaxEnvelopeSize)

	queueSize := d.QueueSize
	if queueSize <= 0 {
		queueSize = defaultOutgoingQueue
	}
	ping := d.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}

	return &wsTransport{
		conn:         conn,
		outgoing:     make(chan []byte, queueSize),
		shutdown:     make(chan struct{}),
		pingInterval: ping,
		logger:       d.Logger,
	}, nil
}

// wsTransport runs one websocket with a reader goroutine and a writer
// goroutine. Only the writer touches the connection's write side (besides
// control frames, which gorilla allows concurrently).
type wsTransport struct {
	conn         *websocket.Conn
	outgoing     chan []byte
	shutdown     chan struct{}
	pingInterval time.Duration
	logger       *log.Logger

	handler    TransportHandler
	closeOnce  sync.Once
	notifyOnce sync.Once
}

func (t *wsTransport) logf(format string, args ...interface{}) {
	if t.logger != nil {
		t.logger.Printf(format, args...)
	}
}

func (t *wsTransport) Run(handler TransportHandler) {
	t.handler = handler

	// A missed pong lets the read deadline lapse, which ends readLoop
	pongWait := t.pingInterval * 2
	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go t.readLoop(pongWait)
	go t.writeLoop()
}

func (t *wsTransport) Send(data []byte) error {
	select {
	case <-t.shutdown:
		return errTransportClosed
	default:
	}

	select {
	case t.outgoing <- data:
		return nil
	case <-t.shutdown:
		return errTransportClosed
	default:
		return errQueueFull
	}
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.shutdown)
		t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}

// finish tears the connection down and reports why, once
func (t *wsTransport) finish(err error) {
	t.Close()
	t.notifyOnce.Do(func() {
		if t.handler != nil {
			t.handler.HandleClose(err)
		}
	})
}

func (t *wsTransport) readLoop(pongWait time.Duration) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.logf("Read error: %v", err)
			t.finish(fmt.Errorf("read error: %w", err))
			return
		}
		t.conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		t.handler.HandleFrame(data)
	}
}

func (t *wsTransport) writeLoop() {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-t.outgoing:
			t.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
			if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.logf("Write error: %v", err)
				t.finish(fmt.Errorf("write error: %w", err))
				return
			}

		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultWriteTimeout)); err != nil {
				t.logf("Ping error: %v", err)
				t.finish(fmt.Errorf("ping error: %w", err))
				return
			}

		case <-t.shutdown:
			return
		}
	}
}
