// Package transport carries the websocket wire layer: upgrading HTTP
// connections, running the read/write pumps, and implementing the
// narrow interfaces the registry and fanout packages depend on
// (LivenessChecker, fanout.Sender) so neither imports gorilla/websocket
// directly.
package transport

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/fleetrelay/internal/models"
	"github.com/example/fleetrelay/internal/protocol"
	"github.com/example/fleetrelay/internal/registry"
)

var (
	errUnknownConn    = errors.New("transport: unknown connection")
	errSendBufferFull = errors.New("transport: send buffer full")
)

// Dispatcher is the router surface transport needs: decode and act on
// one inbound envelope, returning the effects to fan out.
type Dispatcher interface {
	Dispatch(handle models.ConnHandle, env protocol.Envelope) registry.Effects
}

// Deliverer drains effects outside the registry lock (fanout.Fanout).
type Deliverer interface {
	Deliver(eff registry.Effects)
}

// Unbinder removes a handle's registry state on disconnect.
type Unbinder interface {
	Unbind(handle models.ConnHandle) registry.Effects
}

type conn struct {
	handle models.ConnHandle
	ws     *websocket.Conn
	send   chan []byte

	writeMu sync.Mutex
	closed  bool
	closeMu sync.Mutex
}

// Manager owns the set of live websocket connections. It implements
// fanout.Sender and registry.LivenessChecker.
type Manager struct {
	upgrader websocket.Upgrader

	dispatcher Dispatcher
	deliverer  Deliverer
	unbinder   Unbinder
	logger     *slog.Logger

	maxMessageBytes int64
	pingInterval    time.Duration
	pongTimeout     time.Duration

	mu    sync.RWMutex
	conns map[models.ConnHandle]*conn
}

func New(dispatcher Dispatcher, deliverer Deliverer, unbinder Unbinder, logger *slog.Logger, maxMessageBytes int64, pingInterval, pongTimeout time.Duration) *Manager {
	return &Manager{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
			EnableCompression: true,
		},
		dispatcher:      dispatcher,
		deliverer:       deliverer,
		unbinder:        unbinder,
		logger:          logger,
		maxMessageBytes: maxMessageBytes,
		pingInterval:    pingInterval,
		pongTimeout:     pongTimeout,
		conns:           make(map[models.ConnHandle]*conn),
	}
}

func newHandle() models.ConnHandle {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return models.ConnHandle(hex.EncodeToString(b))
}

// Upgrade promotes an HTTP request to a websocket connection and runs
// its read/write pumps until the link closes.
func (m *Manager) Upgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	ws.EnableWriteCompression(true)
	ws.SetReadLimit(m.maxMessageBytes)

	c := &conn{handle: newHandle(), ws: ws, send: make(chan []byte, 32)}

	m.mu.Lock()
	m.conns[c.handle] = c
	m.mu.Unlock()

	go m.writePump(c)
	m.readPump(c)
}

func (m *Manager) readPump(c *conn) {
	defer m.forget(c)

	c.ws.SetReadDeadline(time.Now().Add(m.pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(m.pongTimeout))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			m.Send(c.handle, mustEncodeError(err))
			continue
		}
		eff := m.dispatcher.Dispatch(c.handle, env)
		m.deliverer.Deliver(eff)
	}
}

func (m *Manager) writePump(c *conn) {
	ticker := time.NewTicker(m.pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) forget(c *conn) {
	m.mu.Lock()
	delete(m.conns, c.handle)
	m.mu.Unlock()
	c.ws.Close()
	m.deliverer.Deliver(m.unbinder.Unbind(c.handle))
}

// Send queues message for handle's connection. It returns an error
// (rather than blocking) when the connection is unknown or its send
// buffer is full, so fanout can treat that as a dead subscriber.
func (m *Manager) Send(handle models.ConnHandle, message []byte) error {
	m.mu.RLock()
	c, ok := m.conns[handle]
	m.mu.RUnlock()
	if !ok {
		return errUnknownConn
	}
	select {
	case c.send <- message:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close terminates handle's connection from the server side, e.g. for
// preemption or graceful shutdown.
func (m *Manager) Close(handle models.ConnHandle, reason string) {
	m.mu.RLock()
	c, ok := m.conns[handle]
	m.mu.RUnlock()
	if !ok {
		return
	}
	c.closeMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.closeMu.Unlock()
}

// IsLive implements registry.LivenessChecker.
func (m *Manager) IsLive(handle models.ConnHandle) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[handle]
	return ok
}

func mustEncodeError(err error) []byte {
	pe := protocol.AsProtocolError(err)
	msg, encErr := protocol.Encode(protocol.EventError, protocol.ErrorPayload{Message: pe.Message})
	if encErr != nil {
		return []byte(`{"event":"error","data":{"message":"malformed request"}}`)
	}
	return msg
}
