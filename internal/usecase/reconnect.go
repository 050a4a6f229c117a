package usecase

import (
	"fmt"
	"time"

	"github.com/pixelgrid/tictactoe-rooms/internal/apperror"
	"github.com/pixelgrid/tictactoe-rooms/internal/entity"
	"github.com/pixelgrid/tictactoe-rooms/internal/protocol"
)

// Reconnect rebinds an incoming connection to the slot the name originally
// occupied, restores its visible game state and notifies the peer. The mark
// may be omitted; it is then resolved by matching the name against each
// slot's original name.
func (that *RoomManager) Reconnect(conn entity.Conn, code, name, mark string) (*JoinResult, error) {
	room, err := that.store.Get(code)
	if err != nil {
		return nil, fmt.Errorf("failed to reconnect: %w", err)
	}

	room.Lock()
	defer room.Unlock()

	if mark == "" {
		if room.Slot(entity.PlayerX).OriginalName == name {
			mark = entity.PlayerX
		} else {
			mark = entity.PlayerO
		}
	}

	return that.rebindSlot(room, conn, name, mark)
}

// rebindSlot is the shared tail of joining-with-a-known-name and an explicit
// reconnect request. Idempotent: rebinding an already-bound slot just
// supersedes the prior connection. The caller must hold the room lock.
func (that *RoomManager) rebindSlot(room *entity.Room, conn entity.Conn, name, mark string) (*JoinResult, error) {
	slot := room.Slot(mark)
	if slot == nil || slot.OriginalName != name {
		return nil, fmt.Errorf("failed to reconnect to room %s: %w", room.Code, apperror.ErrIdentityMismatch)
	}

	slot.Conn = conn
	slot.Connected = true
	slot.PermanentlyDisconnected = false
	slot.DisconnectedAt = time.Time{}

	room.UnmarkForCleanup()

	state := protocol.StateOf(room)

	peer := room.Slot(entity.Opponent(mark))
	if peer.Conn != nil {
		peer.Conn.Push(protocol.NewOpponentReconnected(name+" has reconnected to the game.", name))
	}

	that.logger.Info("player reconnected to room", "room", room.Code, "player", mark, "name", name)

	return &JoinResult{Mark: mark, Reconnected: true, State: state}, nil
}
