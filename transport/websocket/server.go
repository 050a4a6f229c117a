package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/pixelgrid/tictactoe-rooms/internal/entity"
	"github.com/pixelgrid/tictactoe-rooms/internal/protocol"
	"github.com/pixelgrid/tictactoe-rooms/internal/usecase"
)

type roomSessions interface {
	CreateRoom(conn entity.Conn, code, name string) error
	JoinRoom(conn entity.Conn, code, name string) (*usecase.JoinResult, error)
	Reconnect(conn entity.Conn, code, name, mark string) (*usecase.JoinResult, error)
	MakeMove(code, mark string, cell int) error
	ResetGame(code string) error
	ResetScores(code string) error
	LeaveRoom(code, mark string) error
	HandleDisconnect(conn entity.Conn, code, mark string)
}

type connRegistry interface {
	Register(conn usecase.LiveConn)
	Unregister(conn usecase.LiveConn)
	Ack(conn usecase.LiveConn)
}

// Server is the session gateway: it upgrades connections, decodes inbound
// protocol messages and routes them to the room manager.
type Server struct {
	logger   *slog.Logger
	rooms    roomSessions
	registry connRegistry
	upgrader websocket.Upgrader

	handlers map[string]func(conn *client, msg *protocol.ClientMessage)
}

func New(logger *slog.Logger, rooms roomSessions, registry connRegistry) *Server {
	server := &Server{
		logger:   logger.With("component", "websocket"),
		rooms:    rooms,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		handlers: make(map[string]func(*client, *protocol.ClientMessage)),
	}

	server.handlers[protocol.TypeCreateRoom] = server.handleCreateRoom
	server.handlers[protocol.TypeJoinRoom] = server.handleJoinRoom
	server.handlers[protocol.TypeReconnect] = server.handleReconnect
	server.handlers[protocol.TypeMakeMove] = server.handleMakeMove
	server.handlers[protocol.TypeResetGame] = server.handleResetGame
	server.handlers[protocol.TypeResetScores] = server.handleResetScores
	server.handlers[protocol.TypeLeaveRoom] = server.handleLeaveRoom
	server.handlers[protocol.TypeTestConnection] = server.handleTestConnection
	server.handlers[protocol.TypePing] = server.handlePing

	return server
}

// Handler exposes the websocket endpoint for embedding in tests.
func (that *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", that.serveWS)

	return mux
}

// Start - starts the WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: that.Handler(),
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		that.logger.Error("failed to upgrade connection", "error", err)
		return
	}

	conn := newClient(that.logger, wsConn)

	wsConn.SetPongHandler(func(string) error {
		that.registry.Ack(conn)
		return nil
	})

	that.registry.Register(conn)

	go conn.writePump()

	that.logger.Info("websocket connection established", "conn", conn.ID())

	that.readLoop(conn)
}

// readLoop processes inbound messages in arrival order for one connection.
func (that *Server) readLoop(conn *client) {
	defer func() {
		that.registry.Unregister(conn)
		conn.Terminate()

		if code, mark, bound := conn.Binding(); bound {
			that.rooms.HandleDisconnect(conn, code, mark)
		}

		that.logger.Info("client disconnected", "conn", conn.ID())
	}()

	log := that.logger.With("method", "readLoop", "conn", conn.ID())

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg protocol.ClientMessage
		if err = json.Unmarshal(data, &msg); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			continue
		}

		handler, ok := that.handlers[msg.Type]
		if !ok {
			log.Error("unknown message type", "type", msg.Type)
			continue
		}

		handler(conn, &msg)
	}
}
