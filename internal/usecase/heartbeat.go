package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LiveConn is what the registry needs from a tracked connection: a way to
// probe it, a way to kill it, and the slot it is bound to, if any.
type LiveConn interface {
	ID() string
	Binding() (roomCode, mark string, bound bool)
	Probe() error
	Terminate()
}

type slotLiveness interface {
	MarkPermanentlyDisconnected(code, mark string)
	RecoverFromHeartbeat(code, mark string)
}

type connHealth struct {
	alive  bool
	missed int
}

// ConnectionRegistry tracks per-connection liveness with a probe/acknowledge
// cycle and converts missed-acknowledgment streaks into permanent-disconnect
// signals against the bound player slot.
type ConnectionRegistry struct {
	logger *slog.Logger
	rooms  slotLiveness

	interval  time.Duration
	threshold int

	mu    sync.Mutex
	conns map[LiveConn]*connHealth
}

func NewConnectionRegistry(logger *slog.Logger, rooms slotLiveness, interval time.Duration, threshold int) *ConnectionRegistry {
	return &ConnectionRegistry{
		logger: logger.With("component", "heartbeat"),
		rooms:  rooms,

		interval:  interval,
		threshold: threshold,

		conns: make(map[LiveConn]*connHealth),
	}
}

// Register starts tracking a freshly-accepted connection as alive.
func (that *ConnectionRegistry) Register(conn LiveConn) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.conns[conn] = &connHealth{alive: true}
}

// Unregister stops tracking a connection, typically when its read loop ends.
func (that *ConnectionRegistry) Unregister(conn LiveConn) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.conns, conn)
}

// Ack records a liveness acknowledgment from the peer. If the bound slot was
// marked permanently disconnected, this is its way back.
func (that *ConnectionRegistry) Ack(conn LiveConn) {
	that.mu.Lock()
	health, ok := that.conns[conn]
	if ok {
		health.alive = true
		health.missed = 0
	}
	that.mu.Unlock()

	if !ok {
		return
	}

	if code, mark, bound := conn.Binding(); bound {
		that.rooms.RecoverFromHeartbeat(code, mark)
	}
}

// Run probes all tracked connections on a fixed interval until the context
// is cancelled. It runs on its own schedule and never blocks message
// processing.
func (that *ConnectionRegistry) Run(ctx context.Context) {
	ticker := time.NewTicker(that.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			that.Tick()
		}
	}
}

// Tick performs one probe cycle: connections that never acknowledged the
// previous probe accumulate a miss; at the threshold the bound slot is
// marked permanently disconnected and the connection is forcibly closed.
func (that *ConnectionRegistry) Tick() {
	var dead, probe []LiveConn

	that.mu.Lock()
	for conn, health := range that.conns {
		if !health.alive {
			health.missed++
			if health.missed >= that.threshold {
				dead = append(dead, conn)
			}
			continue
		}

		health.alive = false
		probe = append(probe, conn)
	}

	for _, conn := range dead {
		delete(that.conns, conn)
	}
	that.mu.Unlock()

	for _, conn := range dead {
		that.logger.Info("terminating inactive connection", "conn", conn.ID())

		if code, mark, bound := conn.Binding(); bound {
			that.rooms.MarkPermanentlyDisconnected(code, mark)
		}

		conn.Terminate()
	}

	for _, conn := range probe {
		if err := conn.Probe(); err != nil {
			that.logger.Debug("failed to probe connection", "conn", conn.ID(), "error", err)
		}
	}
}
