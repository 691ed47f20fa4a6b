package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"groupchat/internal/domain"
	"groupchat/internal/observability"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8192
	sendBufferSize = 256
)

// State is the lifecycle stage of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	default:
		return "closed"
	}
}

// Socket is the part of *websocket.Conn a connection needs.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Conn is one live client connection.
type Conn struct {
	id     string
	socket Socket

	send   chan []byte
	probe  chan struct{}
	closed chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
	alive     atomic.Bool
	state     atomic.Int32

	mu      sync.RWMutex
	userID  string
	groupID string
}

func newConn(socket Socket) *Conn {
	c := &Conn{
		id:     uuid.NewString(),
		socket: socket,
		send:   make(chan []byte, sendBufferSize),
		probe:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Conn) GroupID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.groupID
}

func (c *Conn) authenticated() bool {
	s := c.State()
	return s == StateAuthenticated || s == StateJoined
}

// authenticate moves a connecting connection to Authenticated. It fails if
// the connection already timed out or was closed.
func (c *Conn) authenticate(userID string) bool {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateAuthenticated)) {
		return false
	}
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
	return true
}

// setGroup is called by the registry loop only.
func (c *Conn) setGroup(groupID string) {
	c.mu.Lock()
	c.groupID = groupID
	c.mu.Unlock()
	c.state.CompareAndSwap(int32(StateAuthenticated), int32(StateJoined))
}

// clearGroup returns a joined connection to Authenticated. Registry loop only.
func (c *Conn) clearGroup() {
	c.mu.Lock()
	c.groupID = ""
	c.mu.Unlock()
	c.state.CompareAndSwap(int32(StateJoined), int32(StateAuthenticated))
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.closed }

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// enqueue queues a frame without blocking. It returns false when the send
// buffer is full.
func (c *Conn) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// reply queues a server message for this connection only.
func (c *Conn) reply(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal server message", "type", msg.Type, "error", err)
		return
	}
	if c.enqueue(data) {
		observability.WebSocketMessagesSent.WithLabelValues(msg.Type).Inc()
	}
}

// ping asks the write pump to send a protocol ping.
func (c *Conn) ping() {
	select {
	case c.probe <- struct{}{}:
	default:
	}
}

// writePump writes queued frames and pings until the connection closes.
func (c *Conn) writePump() {
	defer c.Close()

	for {
		select {
		case <-c.closed:
			return
		case message := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.probe:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a frame to the socket in a thread-safe manner
func (c *Conn) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return websocket.ErrCloseSent
	}
	if err := c.socket.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Warn("failed to set write deadline", "conn_id", c.id, "error", err)
		return err
	}
	return c.socket.WriteMessage(messageType, data)
}

// fail writes an error envelope and a close frame directly, bypassing the
// send buffer, then closes the connection.
func (c *Conn) fail(err error, closeCode int) {
	data, merr := json.Marshal(errorMessage(err))
	if merr == nil {
		_ = c.writeMessage(websocket.TextMessage, data)
	}
	_ = c.writeMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, domain.CodeOf(err)))
	c.Close()
}

// Close closes the socket once. It does not wait for writeMu: closing the
// socket is what unblocks a write stuck on a slow peer. The send channel is
// never closed, so concurrent enqueues stay safe.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.closed)
		_ = c.socket.Close()
	})
}
