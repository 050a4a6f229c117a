package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
)

var errSendBufferFull = errors.New("send buffer is full")

type outbound struct {
	messageType int
	data        []byte
}

// client wraps one websocket connection. All writes are funneled through a
// single write pump so game notifications and liveness probes never race on
// the wire. Once bound to a (roomCode, mark) pair the binding is immutable.
type client struct {
	id     string
	logger *slog.Logger
	conn   *websocket.Conn

	send chan outbound
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	roomCode string
	mark     string
	bound    bool
}

func newClient(logger *slog.Logger, conn *websocket.Conn) *client {
	return &client{
		id:     uuid.NewString(),
		logger: logger,
		conn:   conn,
		send:   make(chan outbound, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (that *client) ID() string {
	return that.id
}

// bind records which player slot this connection speaks for. The first bind
// wins; later calls are ignored.
func (that *client) bind(roomCode, mark string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.bound {
		return
	}

	that.roomCode = roomCode
	that.mark = mark
	that.bound = true
}

func (that *client) Binding() (string, string, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.roomCode, that.mark, that.bound
}

// Push queues a message for delivery without ever blocking the caller. A
// consumer too slow to drain its buffer is terminated rather than allowed
// to stall the room.
func (that *client) Push(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		that.logger.Error("failed to marshal outbound message", "conn", that.id, "error", err)
		return
	}

	select {
	case <-that.done:
	case that.send <- outbound{messageType: websocket.TextMessage, data: data}:
	default:
		that.logger.Warn("send buffer full, terminating connection", "conn", that.id)
		that.Terminate()
	}
}

// Probe queues a ping control frame for the liveness cycle.
func (that *client) Probe() error {
	select {
	case <-that.done:
		return nil
	case that.send <- outbound{messageType: websocket.PingMessage}:
		return nil
	default:
		return errSendBufferFull
	}
}

// Terminate forcibly closes the connection; the read loop observes the
// close and runs the disconnect path.
func (that *client) Terminate() {
	that.once.Do(func() {
		close(that.done)
		if err := that.conn.Close(); err != nil {
			that.logger.Debug("failed to close connection", "conn", that.id, "error", err)
		}
	})
}

// writePump owns every write to the underlying connection.
func (that *client) writePump() {
	for {
		select {
		case <-that.done:
			return
		case msg := <-that.send:
			if err := that.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				that.Terminate()
				return
			}

			if err := that.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				that.Terminate()
				return
			}
		}
	}
}
