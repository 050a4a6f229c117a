package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pixelgrid/tictactoe-rooms/internal/apperror"
	"github.com/pixelgrid/tictactoe-rooms/internal/entity"
	"github.com/pixelgrid/tictactoe-rooms/internal/game"
	"github.com/pixelgrid/tictactoe-rooms/internal/protocol"
)

const (
	noticeOpponentDisconnected = "Your opponent has disconnected. The game will end soon if they don't reconnect."
	noticeOpponentReconnected  = "Your opponent has reconnected."
	noticeRoomClosed           = "Your opponent has been disconnected for too long. The game is ending."
)

type roomStore interface {
	Create(code, creatorName string) (*entity.Room, error)
	Get(code string) (*entity.Room, error)
	Delete(code string)
	Rooms() []*entity.Room
}

// RoomManager owns the room lifecycle: it binds connections to player slots,
// applies moves through the game engine, reconciles reconnects and drives
// the cleanup state machine. All notifications to bound connections are
// pushed from here, fire-and-forget.
type RoomManager struct {
	logger *slog.Logger
	store  roomStore
	now    func() time.Time

	absenceTimeout time.Duration
	preserveWindow time.Duration
}

func NewRoomManager(logger *slog.Logger, store roomStore, now func() time.Time, absenceTimeout, preserveWindow time.Duration) *RoomManager {
	return &RoomManager{
		logger: logger.With("component", "rooms"),
		store:  store,
		now:    now,

		absenceTimeout: absenceTimeout,
		preserveWindow: preserveWindow,
	}
}

// JoinResult describes a successful join or reconnect: the mark the
// connection is now bound to and the game state to report back.
type JoinResult struct {
	Mark        string
	Reconnected bool
	State       *protocol.GameState
}

// CreateRoom creates a new waiting room and binds the connection to slot X.
func (that *RoomManager) CreateRoom(conn entity.Conn, code, name string) error {
	room, err := that.store.Create(code, name)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	room.Lock()
	slot := room.Slot(entity.PlayerX)
	slot.Conn = conn
	slot.Connected = true
	room.Unlock()

	that.logger.Info("room created", "room", code, "player", name)

	return nil
}

// JoinRoom lets a connection enter an existing room. A name matching either
// slot's original name is treated as a reconnect, not a fresh join; joining
// and reconnecting share one state machine.
func (that *RoomManager) JoinRoom(conn entity.Conn, code, name string) (*JoinResult, error) {
	room, err := that.store.Get(code)
	if err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	room.Lock()
	defer room.Unlock()

	playerX := room.Slot(entity.PlayerX)
	playerO := room.Slot(entity.PlayerO)

	if playerX.OriginalName == name {
		return that.rebindSlot(room, conn, name, entity.PlayerX)
	}

	if playerO.OriginalName == name {
		return that.rebindSlot(room, conn, name, entity.PlayerO)
	}

	if playerX.Present() && playerO.Present() {
		return nil, fmt.Errorf("failed to join room %s: %w", code, apperror.ErrRoomIsFull)
	}

	// A fresh join always takes slot O; slot X's identity never changes
	// once a name occupies it.
	*playerO = entity.PlayerSlot{
		Name:         name,
		OriginalName: name,
		Conn:         conn,
		Connected:    true,
	}
	room.Status = entity.StatusPlaying
	room.UnmarkForCleanup()

	state := protocol.StateOf(room)

	if playerX.Conn != nil {
		playerX.Conn.Push(protocol.NewOpponentJoined(name, state))
	}

	that.logger.Info("player joined room", "room", code, "player", name)

	return &JoinResult{Mark: entity.PlayerO, State: state}, nil
}

// MakeMove applies one move and, when accepted, pushes the updated game
// state to both connections. Rejections leave the room untouched and carry
// no feedback to the sender.
func (that *RoomManager) MakeMove(code, mark string, cell int) error {
	room, err := that.store.Get(code)
	if err != nil {
		return fmt.Errorf("failed to make move: %w", err)
	}

	room.Lock()
	defer room.Unlock()

	if err = game.ApplyMove(room, mark, cell); err != nil {
		return fmt.Errorf("move rejected: %w", err)
	}

	that.broadcast(room, protocol.NewGameUpdate(protocol.StateOf(room)))

	return nil
}

// ResetGame starts a rematch, keeping scores.
func (that *RoomManager) ResetGame(code string) error {
	room, err := that.store.Get(code)
	if err != nil {
		return fmt.Errorf("failed to reset game: %w", err)
	}

	room.Lock()
	defer room.Unlock()

	game.Reset(room)
	that.broadcast(room, protocol.NewGameReset(protocol.StateOf(room)))

	that.logger.Info("game reset", "room", code)

	return nil
}

// ResetScores wipes the match score and starts over.
func (that *RoomManager) ResetScores(code string) error {
	room, err := that.store.Get(code)
	if err != nil {
		return fmt.Errorf("failed to reset scores: %w", err)
	}

	room.Lock()
	defer room.Unlock()

	game.ResetScores(room)
	that.broadcast(room, protocol.NewScoresReset(protocol.StateOf(room)))

	that.logger.Info("scores reset", "room", code)

	return nil
}

// LeaveRoom unbinds the connection from its slot and notifies the opponent.
// When the last connection leaves, the room is either deleted on the spot
// (nobody ever joined) or armed for delayed cleanup.
func (that *RoomManager) LeaveRoom(code, mark string) error {
	room, err := that.store.Get(code)
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	that.unbindSlot(room, mark, nil)

	return nil
}

// HandleDisconnect is the transport's close path. Unlike an explicit
// LEAVE_ROOM it only unbinds when the closing connection is still the one
// bound to the slot; a connection superseded by a reconnect must not tear
// down its successor's binding.
func (that *RoomManager) HandleDisconnect(conn entity.Conn, code, mark string) {
	room, err := that.store.Get(code)
	if err != nil {
		return
	}

	that.unbindSlot(room, mark, conn)
}

// unbindSlot clears a slot's connection. A non-nil expect restricts the
// unbind to the case where that exact connection is still bound.
func (that *RoomManager) unbindSlot(room *entity.Room, mark string, expect entity.Conn) {
	room.Lock()

	slot := room.Slot(mark)
	if slot == nil || (expect != nil && slot.Conn != expect) {
		room.Unlock()
		return
	}

	slot.Connected = false
	slot.Conn = nil

	peer := room.Slot(entity.Opponent(mark))
	if peer.Conn != nil {
		peer.Conn.Push(protocol.NewOpponentLeft())
	}

	deleteNow := false
	if room.BothAbsent() {
		if room.Status == entity.StatusWaiting {
			deleteNow = true
		} else {
			room.MarkForCleanup(that.now().Add(that.preserveWindow))
		}
	}

	room.Unlock()

	if deleteNow {
		that.store.Delete(room.Code)
		that.logger.Info("room removed, creator left before anyone joined", "room", room.Code)
		return
	}

	that.logger.Info("player left room", "room", room.Code, "player", mark)
}

// MarkPermanentlyDisconnected records that a slot's connection missed too
// many liveness probes. The slot survives for reconnection; the opponent is
// warned.
func (that *RoomManager) MarkPermanentlyDisconnected(code, mark string) {
	room, err := that.store.Get(code)
	if err != nil {
		return
	}

	room.Lock()
	defer room.Unlock()

	slot := room.Slot(mark)
	if slot == nil {
		return
	}

	slot.PermanentlyDisconnected = true
	slot.DisconnectedAt = that.now()
	if slot.OriginalName == "" {
		slot.OriginalName = slot.Name
	}

	peer := room.Slot(entity.Opponent(mark))
	if peer.Conn != nil {
		peer.Conn.Push(protocol.NewOpponentDisconnected(noticeOpponentDisconnected))
	}

	that.logger.Info("player permanently disconnected", "room", code, "player", mark)
}

// RecoverFromHeartbeat clears a permanent disconnect after a fresh liveness
// acknowledgment. This is the only way back from that state without a full
// reconnect handshake.
func (that *RoomManager) RecoverFromHeartbeat(code, mark string) {
	room, err := that.store.Get(code)
	if err != nil {
		return
	}

	room.Lock()
	defer room.Unlock()

	slot := room.Slot(mark)
	if slot == nil || !slot.PermanentlyDisconnected {
		return
	}

	slot.PermanentlyDisconnected = false
	slot.DisconnectedAt = time.Time{}

	peer := room.Slot(entity.Opponent(mark))
	if peer.Conn != nil {
		peer.Conn.Push(protocol.NewOpponentReconnected(noticeOpponentReconnected, ""))
	}

	that.logger.Info("player recovered via heartbeat", "room", code, "player", mark)
}

// Sweep advances every room through the cleanup state machine: rooms with
// both slots permanently gone get a grace deadline and are evicted past it;
// a single slot absent beyond the shorter timeout closes the room at once.
func (that *RoomManager) Sweep(now time.Time) {
	for _, room := range that.store.Rooms() {
		that.sweepRoom(room, now)
	}
}

func (that *RoomManager) sweepRoom(room *entity.Room, now time.Time) {
	room.Lock()

	playerX := room.Slot(entity.PlayerX)
	playerO := room.Slot(entity.PlayerO)

	if playerX.PermanentlyDisconnected && playerO.PermanentlyDisconnected {
		if !room.MarkedForCleanup {
			room.MarkForCleanup(now.Add(that.preserveWindow))
			that.logger.Info("room marked for cleanup, both players disconnected", "room", room.Code)
		} else if now.After(room.CleanupAt) {
			room.Unlock()
			that.store.Delete(room.Code)
			that.logger.Info("room removed, cleanup deadline reached", "room", room.Code)
			return
		}

		room.Unlock()
		return
	}

	for _, mark := range []string{entity.PlayerX, entity.PlayerO} {
		slot := room.Slot(mark)
		if !slot.PermanentlyDisconnected || slot.DisconnectedAt.IsZero() {
			continue
		}

		if now.Sub(slot.DisconnectedAt) <= that.absenceTimeout {
			continue
		}

		peer := room.Slot(entity.Opponent(mark))
		if peer.Conn != nil {
			peer.Conn.Push(protocol.NewRoomClosed(noticeRoomClosed))
		}

		room.Unlock()
		that.store.Delete(room.Code)
		that.logger.Info("room removed, player disconnected for too long", "room", room.Code, "player", mark)
		return
	}

	room.Unlock()
}

// broadcast pushes a message to every bound connection in the room. The
// caller must hold the room lock.
func (that *RoomManager) broadcast(room *entity.Room, msg any) {
	for _, mark := range []string{entity.PlayerX, entity.PlayerO} {
		if conn := room.Slot(mark).Conn; conn != nil {
			conn.Push(msg)
		}
	}
}
