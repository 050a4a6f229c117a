package protocol

import (
	"encoding/json"

	"github.com/pixelgrid/tictactoe-rooms/internal/entity"
)

// Client → server message types.
const (
	TypeCreateRoom     = "CREATE_ROOM"
	TypeJoinRoom       = "JOIN_ROOM"
	TypeMakeMove       = "MAKE_MOVE"
	TypeResetGame      = "RESET_GAME"
	TypeResetScores    = "RESET_SCORES"
	TypeLeaveRoom      = "LEAVE_ROOM"
	TypeReconnect      = "RECONNECT_TO_ROOM"
	TypeTestConnection = "TEST_CONNECTION"
	TypePing           = "PING"
)

// Server → client message types.
const (
	TypeRoomCreated            = "ROOM_CREATED"
	TypeRoomJoined             = "ROOM_JOINED"
	TypeOpponentJoined         = "OPPONENT_JOINED"
	TypeReconnectedToRoom      = "RECONNECTED_TO_ROOM"
	TypeOpponentReconnected    = "OPPONENT_RECONNECTED"
	TypeOpponentDisconnected   = "OPPONENT_DISCONNECTED"
	TypeOpponentLeft           = "OPPONENT_LEFT"
	TypeRoomClosed             = "ROOM_CLOSED"
	TypeMoveAck                = "MOVE_ACK"
	TypeGameUpdate             = "GAME_UPDATE"
	TypeGameReset              = "GAME_RESET"
	TypeScoresReset            = "SCORES_RESET"
	TypeError                  = "ERROR"
	TypePong                   = "PONG"
	TypeTestConnectionResponse = "TEST_CONNECTION_RESPONSE"
)

// ClientMessage is the union of all inbound payloads: a discriminating type
// plus the type-specific fields, flat at the top level.
type ClientMessage struct {
	Type       string          `json:"type"`
	RoomCode   string          `json:"roomCode,omitempty"`
	PlayerName string          `json:"playerName,omitempty"`
	Player     string          `json:"player,omitempty"`
	Position   int             `json:"position"`
	MoveID     json.RawMessage `json:"moveId,omitempty"`
	Timestamp  json.RawMessage `json:"timestamp,omitempty"`
	Secure     bool            `json:"secure,omitempty"`
	Electron   bool            `json:"electron,omitempty"`
}

// PlayerState is one side of the board as shown to clients. Connected is
// false while the slot is permanently disconnected even though the slot
// itself survives for reconnection.
type PlayerState struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Score     int    `json:"score"`
}

// GameState is the full visible state of a room.
type GameState struct {
	Board          [9]string              `json:"board"`
	CurrentTurn    string                 `json:"currentTurn"`
	Status         string                 `json:"status"`
	Winner         string                 `json:"winner"`
	Players        map[string]PlayerState `json:"players"`
	UltimateWinner string                 `json:"ultimateWinner"`
	LastWinner     string                 `json:"lastWinner"`
}

// StateOf snapshots a room into its wire shape. The caller must hold the
// room lock.
func StateOf(room *entity.Room) *GameState {
	players := make(map[string]PlayerState, 2)
	for _, mark := range []string{entity.PlayerX, entity.PlayerO} {
		slot := room.Slot(mark)
		players[mark] = PlayerState{
			Name:      slot.Name,
			Connected: slot.Present(),
			Score:     slot.Score,
		}
	}

	return &GameState{
		Board:          room.Board,
		CurrentTurn:    room.Turn,
		Status:         room.Status,
		Winner:         room.Winner,
		Players:        players,
		UltimateWinner: room.UltimateWinner,
		LastWinner:     room.LastWinner,
	}
}

type RoomCreated struct {
	Type     string `json:"type"`
	RoomCode string `json:"roomCode"`
	Player   string `json:"player"`
}

func NewRoomCreated(roomCode, mark string) *RoomCreated {
	return &RoomCreated{Type: TypeRoomCreated, RoomCode: roomCode, Player: mark}
}

type RoomJoined struct {
	Type      string     `json:"type"`
	RoomCode  string     `json:"roomCode"`
	Player    string     `json:"player"`
	GameState *GameState `json:"gameState"`
}

func NewRoomJoined(roomCode, mark string, state *GameState) *RoomJoined {
	return &RoomJoined{Type: TypeRoomJoined, RoomCode: roomCode, Player: mark, GameState: state}
}

type OpponentJoined struct {
	Type         string     `json:"type"`
	OpponentName string     `json:"opponentName"`
	GameState    *GameState `json:"gameState"`
}

func NewOpponentJoined(opponentName string, state *GameState) *OpponentJoined {
	return &OpponentJoined{Type: TypeOpponentJoined, OpponentName: opponentName, GameState: state}
}

type ReconnectedToRoom struct {
	Type      string     `json:"type"`
	RoomCode  string     `json:"roomCode"`
	Player    string     `json:"player"`
	GameState *GameState `json:"gameState"`
}

func NewReconnectedToRoom(roomCode, mark string, state *GameState) *ReconnectedToRoom {
	return &ReconnectedToRoom{Type: TypeReconnectedToRoom, RoomCode: roomCode, Player: mark, GameState: state}
}

type OpponentReconnected struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	OpponentName string `json:"opponentName,omitempty"`
}

func NewOpponentReconnected(message, opponentName string) *OpponentReconnected {
	return &OpponentReconnected{Type: TypeOpponentReconnected, Message: message, OpponentName: opponentName}
}

type OpponentDisconnected struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewOpponentDisconnected(message string) *OpponentDisconnected {
	return &OpponentDisconnected{Type: TypeOpponentDisconnected, Message: message}
}

type OpponentLeft struct {
	Type string `json:"type"`
}

func NewOpponentLeft() *OpponentLeft {
	return &OpponentLeft{Type: TypeOpponentLeft}
}

type RoomClosed struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewRoomClosed(message string) *RoomClosed {
	return &RoomClosed{Type: TypeRoomClosed, Message: message}
}

// MoveAck is sent immediately on receipt of MAKE_MOVE, before any
// validation, echoing the client's moveId untouched.
type MoveAck struct {
	Type      string          `json:"type"`
	MoveID    json.RawMessage `json:"moveId,omitempty"`
	Position  int             `json:"position"`
	Received  bool            `json:"received"`
	Timestamp int64           `json:"timestamp"`
}

func NewMoveAck(moveID json.RawMessage, position int, timestamp int64) *MoveAck {
	return &MoveAck{Type: TypeMoveAck, MoveID: moveID, Position: position, Received: true, Timestamp: timestamp}
}

type GameUpdate struct {
	Type      string     `json:"type"`
	GameState *GameState `json:"gameState"`
}

func NewGameUpdate(state *GameState) *GameUpdate {
	return &GameUpdate{Type: TypeGameUpdate, GameState: state}
}

type GameReset struct {
	Type      string     `json:"type"`
	GameState *GameState `json:"gameState"`
}

func NewGameReset(state *GameState) *GameReset {
	return &GameReset{Type: TypeGameReset, GameState: state}
}

type ScoresReset struct {
	Type      string     `json:"type"`
	GameState *GameState `json:"gameState"`
}

func NewScoresReset(state *GameState) *ScoresReset {
	return &ScoresReset{Type: TypeScoresReset, GameState: state}
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) *ErrorMessage {
	return &ErrorMessage{Type: TypeError, Message: message}
}

type Pong struct {
	Type              string          `json:"type"`
	OriginalTimestamp json.RawMessage `json:"originalTimestamp,omitempty"`
	ResponseTimestamp int64           `json:"responseTimestamp"`
	ServerTime        string          `json:"serverTime"`
}

func NewPong(originalTimestamp json.RawMessage, responseTimestamp int64, serverTime string) *Pong {
	return &Pong{
		Type:              TypePong,
		OriginalTimestamp: originalTimestamp,
		ResponseTimestamp: responseTimestamp,
		ServerTime:        serverTime,
	}
}

type ServerInfo struct {
	Server    string `json:"server"`
	GoVersion string `json:"goVersion"`
}

type TestConnectionResponse struct {
	Type              string          `json:"type"`
	OriginalTimestamp json.RawMessage `json:"originalTimestamp,omitempty"`
	ResponseTimestamp int64           `json:"responseTimestamp"`
	Message           string          `json:"message"`
	Secure            bool            `json:"secure"`
	Electron          bool            `json:"electron"`
	ServerInfo        ServerInfo      `json:"serverInfo"`
}
