package entity

import (
	"sync"
	"time"
)

const (
	StatusWaiting = "waiting"
	StatusPlaying = "playing"
	StatusEnded   = "ended"
	StatusDraw    = "draw"

	PlayerX = "X"
	PlayerO = "O"

	EmptyCell = ""
)

// Conn is the transport endpoint bound to a player slot. The slot holds the
// connection only for pushing notifications; it is never a source of truth
// for game state.
type Conn interface {
	// Push serializes v and queues it for delivery. It must never block.
	Push(v any)
	// Terminate forcibly closes the underlying connection.
	Terminate()
}

// PlayerSlot is the persistent identity of one side (X or O) of a room,
// distinct from whatever physical connection is currently bound to it.
type PlayerSlot struct {
	Name                    string
	OriginalName            string // identity anchor for reconnection, never cleared once set
	Conn                    Conn
	Connected               bool
	PermanentlyDisconnected bool
	DisconnectedAt          time.Time // zero while connected
	Score                   int
}

// Present reports how the slot's connectivity is shown to clients.
func (that *PlayerSlot) Present() bool {
	return that.Connected && !that.PermanentlyDisconnected
}

// Room is a single game session identified by a caller-chosen code.
//
// Every read-modify-write against a room must happen under its lock so that
// concurrent messages from both connections serialize.
type Room struct {
	mu sync.Mutex

	Code           string
	Board          [9]string
	Turn           string
	Status         string
	Winner         string
	LastWinner     string
	UltimateWinner string
	Players        map[string]*PlayerSlot

	MarkedForCleanup bool
	CleanupAt        time.Time
}

// NewRoom creates a waiting room with the creator occupying slot X.
func NewRoom(code, creatorName string) *Room {
	return &Room{
		Code:   code,
		Turn:   PlayerX, // X always starts the first game
		Status: StatusWaiting,
		Players: map[string]*PlayerSlot{
			PlayerX: {
				Name:         creatorName,
				OriginalName: creatorName,
			},
			PlayerO: {},
		},
	}
}

func (that *Room) Lock()   { that.mu.Lock() }
func (that *Room) Unlock() { that.mu.Unlock() }

// Slot returns the player slot for the given mark, or nil for an unknown mark.
func (that *Room) Slot(mark string) *PlayerSlot {
	return that.Players[mark]
}

// Opponent returns the mark on the other side of the board.
func Opponent(mark string) string {
	if mark == PlayerX {
		return PlayerO
	}

	return PlayerX
}

// BothAbsent reports whether neither slot has a live connection.
func (that *Room) BothAbsent() bool {
	return !that.Players[PlayerX].Connected && !that.Players[PlayerO].Connected
}

// MarkForCleanup arms the cleanup deadline once; already-marked rooms keep
// their original deadline.
func (that *Room) MarkForCleanup(deadline time.Time) {
	if that.MarkedForCleanup {
		return
	}

	that.MarkedForCleanup = true
	that.CleanupAt = deadline
}

// UnmarkForCleanup cancels a pending cleanup deadline.
func (that *Room) UnmarkForCleanup() {
	that.MarkedForCleanup = false
	that.CleanupAt = time.Time{}
}
