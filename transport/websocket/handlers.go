package websocket

import (
	"errors"
	"runtime"
	"time"

	"github.com/pixelgrid/tictactoe-rooms/internal/apperror"
	"github.com/pixelgrid/tictactoe-rooms/internal/entity"
	"github.com/pixelgrid/tictactoe-rooms/internal/protocol"
)

func (that *Server) handleCreateRoom(conn *client, msg *protocol.ClientMessage) {
	if err := that.rooms.CreateRoom(conn, msg.RoomCode, msg.PlayerName); err != nil {
		that.rejectOrLog(conn, "handleCreateRoom", err)
		return
	}

	conn.bind(msg.RoomCode, entity.PlayerX)
	conn.Push(protocol.NewRoomCreated(msg.RoomCode, entity.PlayerX))
}

func (that *Server) handleJoinRoom(conn *client, msg *protocol.ClientMessage) {
	result, err := that.rooms.JoinRoom(conn, msg.RoomCode, msg.PlayerName)
	if err != nil {
		that.rejectOrLog(conn, "handleJoinRoom", err)
		return
	}

	conn.bind(msg.RoomCode, result.Mark)

	if result.Reconnected {
		conn.Push(protocol.NewReconnectedToRoom(msg.RoomCode, result.Mark, result.State))
		return
	}

	conn.Push(protocol.NewRoomJoined(msg.RoomCode, result.Mark, result.State))
}

func (that *Server) handleReconnect(conn *client, msg *protocol.ClientMessage) {
	result, err := that.rooms.Reconnect(conn, msg.RoomCode, msg.PlayerName, msg.Player)
	if err != nil {
		that.rejectOrLog(conn, "handleReconnect", err)
		return
	}

	conn.bind(msg.RoomCode, result.Mark)
	conn.Push(protocol.NewReconnectedToRoom(msg.RoomCode, result.Mark, result.State))
}

func (that *Server) handleMakeMove(conn *client, msg *protocol.ClientMessage) {
	// The ACK goes out before any validation so the client can stop
	// retransmitting; it is a delivery receipt, not an acceptance.
	conn.Push(protocol.NewMoveAck(msg.MoveID, msg.Position, time.Now().UnixMilli()))

	if err := that.rooms.MakeMove(msg.RoomCode, msg.Player, msg.Position); err != nil {
		// Illegal moves are dropped with no feedback to the sender.
		that.logger.Debug("move dropped", "room", msg.RoomCode, "player", msg.Player, "error", err)
	}
}

func (that *Server) handleResetGame(conn *client, msg *protocol.ClientMessage) {
	if err := that.rooms.ResetGame(msg.RoomCode); err != nil {
		that.logger.Debug("reset dropped", "room", msg.RoomCode, "error", err)
	}
}

func (that *Server) handleResetScores(conn *client, msg *protocol.ClientMessage) {
	if err := that.rooms.ResetScores(msg.RoomCode); err != nil {
		that.logger.Debug("scores reset dropped", "room", msg.RoomCode, "error", err)
	}
}

func (that *Server) handleLeaveRoom(conn *client, msg *protocol.ClientMessage) {
	if err := that.rooms.LeaveRoom(msg.RoomCode, msg.Player); err != nil {
		that.logger.Debug("leave dropped", "room", msg.RoomCode, "error", err)
	}
}

func (that *Server) handleTestConnection(conn *client, msg *protocol.ClientMessage) {
	conn.Push(&protocol.TestConnectionResponse{
		Type:              protocol.TypeTestConnectionResponse,
		OriginalTimestamp: msg.Timestamp,
		ResponseTimestamp: time.Now().UnixMilli(),
		Message:           "Test connection successful!",
		Secure:            msg.Secure,
		Electron:          msg.Electron,
		ServerInfo: protocol.ServerInfo{
			Server:    "tictactoe-rooms",
			GoVersion: runtime.Version(),
		},
	})
}

func (that *Server) handlePing(conn *client, msg *protocol.ClientMessage) {
	now := time.Now()
	conn.Push(protocol.NewPong(msg.Timestamp, now.UnixMilli(), now.UTC().Format(time.RFC3339)))
}

// rejectOrLog surfaces domain rejections to the originating connection as an
// ERROR message; anything else is an internal fault and only logged.
func (that *Server) rejectOrLog(conn *client, method string, err error) {
	for _, domainErr := range []error{
		apperror.ErrRoomNotFound,
		apperror.ErrRoomAlreadyExists,
		apperror.ErrRoomIsFull,
		apperror.ErrIdentityMismatch,
	} {
		if errors.Is(err, domainErr) {
			conn.Push(protocol.NewError(domainErr.Error()))
			return
		}
	}

	that.logger.Error("failed to process message", "method", method, "error", err)
}
