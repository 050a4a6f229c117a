package usecase

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelgrid/tictactoe-rooms/internal/apperror"
	"github.com/pixelgrid/tictactoe-rooms/internal/entity"
	"github.com/pixelgrid/tictactoe-rooms/internal/protocol"
	"github.com/pixelgrid/tictactoe-rooms/internal/roomstore"
)

const (
	testAbsenceTimeout = time.Minute
	testPreserveWindow = time.Hour
)

// fakeConn records everything pushed to it.
type fakeConn struct {
	mu         sync.Mutex
	pushed     []any
	terminated bool
}

func (that *fakeConn) Push(v any) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.pushed = append(that.pushed, v)
}

func (that *fakeConn) Terminate() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.terminated = true
}

func (that *fakeConn) last() any {
	that.mu.Lock()
	defer that.mu.Unlock()

	if len(that.pushed) == 0 {
		return nil
	}

	return that.pushed[len(that.pushed)-1]
}

func (that *fakeConn) count() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.pushed)
}

// fakeClock is a manually-advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (that *fakeClock) Now() time.Time {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.t
}

func (that *fakeClock) Advance(d time.Duration) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.t = that.t.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) (*RoomManager, *roomstore.Store, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	store := roomstore.NewWithClock(clock.Now)
	manager := NewRoomManager(discardLogger(), store, clock.Now, testAbsenceTimeout, testPreserveWindow)

	return manager, store, clock
}

// startGame creates room ABC as alice and joins bob, returning both fake
// connections.
func startGame(t *testing.T, manager *RoomManager) (*fakeConn, *fakeConn) {
	t.Helper()

	alice, bob := &fakeConn{}, &fakeConn{}

	require.NoError(t, manager.CreateRoom(alice, "ABC", "alice"))

	result, err := manager.JoinRoom(bob, "ABC", "bob")
	require.NoError(t, err)
	require.Equal(t, entity.PlayerO, result.Mark)

	return alice, bob
}

func TestRoomManager_CreateRoom(t *testing.T) {
	t.Run("Creates a room and binds the creator to slot X", func(t *testing.T) {
		// Given: a fresh manager
		manager, store, _ := newTestManager(t)
		conn := &fakeConn{}

		// When: alice creates room ABC
		require.NoError(t, manager.CreateRoom(conn, "ABC", "alice"))

		// Then: slot X holds alice's live connection
		room, err := store.Get("ABC")
		require.NoError(t, err)

		slot := room.Slot(entity.PlayerX)
		assert.True(t, slot.Connected)
		assert.Same(t, entity.Conn(conn), slot.Conn)
	})

	t.Run("Rejects a duplicate room code", func(t *testing.T) {
		// Given: a manager with room ABC
		manager, _, _ := newTestManager(t)
		require.NoError(t, manager.CreateRoom(&fakeConn{}, "ABC", "alice"))

		// When: the code is reused
		err := manager.CreateRoom(&fakeConn{}, "ABC", "mallory")

		// Then: the creation fails
		require.ErrorIs(t, err, apperror.ErrRoomAlreadyExists)
	})
}

func TestRoomManager_JoinRoom(t *testing.T) {
	t.Run("Returns ErrRoomNotFound for an unknown code", func(t *testing.T) {
		// Given: a manager without rooms
		manager, _, _ := newTestManager(t)

		// When: joining a room that does not exist
		_, err := manager.JoinRoom(&fakeConn{}, "NOPE", "bob")

		// Then: the join fails
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})

	t.Run("Second player joins as O and the game starts", func(t *testing.T) {
		// Given: alice waiting in room ABC
		manager, store, _ := newTestManager(t)
		alice := &fakeConn{}
		require.NoError(t, manager.CreateRoom(alice, "ABC", "alice"))

		// When: bob joins
		result, err := manager.JoinRoom(&fakeConn{}, "ABC", "bob")

		// Then: bob holds slot O and the room is playing
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerO, result.Mark)
		assert.False(t, result.Reconnected)
		assert.Equal(t, entity.StatusPlaying, result.State.Status)

		room, err := store.Get("ABC")
		require.NoError(t, err)
		assert.Equal(t, entity.StatusPlaying, room.Status)

		// Then: alice was told about her opponent
		joined, ok := alice.last().(*protocol.OpponentJoined)
		require.True(t, ok)
		assert.Equal(t, "bob", joined.OpponentName)
		assert.Equal(t, entity.StatusPlaying, joined.GameState.Status)
	})

	t.Run("Rejects a third player while both slots are present", func(t *testing.T) {
		// Given: a running game
		manager, _, _ := newTestManager(t)
		startGame(t, manager)

		// When: carol tries to join
		_, err := manager.JoinRoom(&fakeConn{}, "ABC", "carol")

		// Then: the room is full
		require.ErrorIs(t, err, apperror.ErrRoomIsFull)
	})

	t.Run("Joining with a known name is a reconnect", func(t *testing.T) {
		// Given: a running game where bob's connection dropped
		manager, store, _ := newTestManager(t)
		_, bob := startGame(t, manager)
		require.NoError(t, manager.LeaveRoom("ABC", entity.PlayerO))

		// When: bob sends a plain join with his original name
		fresh := &fakeConn{}
		result, err := manager.JoinRoom(fresh, "ABC", "bob")

		// Then: he is rebound to slot O with his score intact
		require.NoError(t, err)
		assert.True(t, result.Reconnected)
		assert.Equal(t, entity.PlayerO, result.Mark)

		room, err := store.Get("ABC")
		require.NoError(t, err)
		assert.Same(t, entity.Conn(fresh), room.Slot(entity.PlayerO).Conn)
		assert.NotSame(t, entity.Conn(bob), room.Slot(entity.PlayerO).Conn)
	})
}

func TestRoomManager_Reconnect(t *testing.T) {
	t.Run("Rejects a name that never was in the room", func(t *testing.T) {
		// Given: a running game
		manager, store, _ := newTestManager(t)
		startGame(t, manager)

		// When: a stranger claims slot O
		_, err := manager.Reconnect(&fakeConn{}, "ABC", "mallory", entity.PlayerO)

		// Then: the reconnect fails and the slot keeps its owner
		require.ErrorIs(t, err, apperror.ErrIdentityMismatch)

		room, getErr := store.Get("ABC")
		require.NoError(t, getErr)
		assert.Equal(t, "bob", room.Slot(entity.PlayerO).Name)
		assert.True(t, room.Slot(entity.PlayerO).Connected)
	})

	t.Run("Restores state and cancels a pending cleanup", func(t *testing.T) {
		// Given: a room marked for cleanup after both players left
		manager, store, _ := newTestManager(t)
		startGame(t, manager)
		require.NoError(t, manager.LeaveRoom("ABC", entity.PlayerX))
		require.NoError(t, manager.LeaveRoom("ABC", entity.PlayerO))

		room, err := store.Get("ABC")
		require.NoError(t, err)
		require.True(t, room.MarkedForCleanup)

		// When: alice reconnects
		fresh := &fakeConn{}
		result, err := manager.Reconnect(fresh, "ABC", "alice", "")

		// Then: she is back on slot X and the cleanup mark is gone
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerX, result.Mark)
		assert.False(t, room.MarkedForCleanup)
		assert.True(t, room.Slot(entity.PlayerX).Connected)
	})

	t.Run("Notifies the opponent about the reconnect", func(t *testing.T) {
		// Given: a running game where alice dropped
		manager, _, _ := newTestManager(t)
		_, bob := startGame(t, manager)
		require.NoError(t, manager.LeaveRoom("ABC", entity.PlayerX))

		// When: alice reconnects
		_, err := manager.Reconnect(&fakeConn{}, "ABC", "alice", "")
		require.NoError(t, err)

		// Then: bob hears about it
		notice, ok := bob.last().(*protocol.OpponentReconnected)
		require.True(t, ok)
		assert.Equal(t, "alice", notice.OpponentName)
	})
}

func TestRoomManager_MakeMove(t *testing.T) {
	t.Run("Moves update both players", func(t *testing.T) {
		// Given: alice and bob in a running game
		manager, store, _ := newTestManager(t)
		alice, bob := startGame(t, manager)

		// When: alice plays cell 0 and bob plays cell 4
		require.NoError(t, manager.MakeMove("ABC", entity.PlayerX, 0))
		require.NoError(t, manager.MakeMove("ABC", entity.PlayerO, 4))

		// Then: the board holds both marks and it is X's turn again
		room, err := store.Get("ABC")
		require.NoError(t, err)
		assert.Equal(t, [9]string{"X", "", "", "", "O", "", "", "", ""}, room.Board)
		assert.Equal(t, entity.PlayerX, room.Turn)

		// Then: both connections got a game update per move
		update, ok := alice.last().(*protocol.GameUpdate)
		require.True(t, ok)
		assert.Equal(t, entity.PlayerO, update.GameState.Board[4])

		update, ok = bob.last().(*protocol.GameUpdate)
		require.True(t, ok)
		assert.Equal(t, entity.PlayerX, update.GameState.CurrentTurn)
	})

	t.Run("A completed line ends the game and scores", func(t *testing.T) {
		// Given: a running game
		manager, store, _ := newTestManager(t)
		startGame(t, manager)

		// When: X takes the top row while O plays elsewhere
		require.NoError(t, manager.MakeMove("ABC", entity.PlayerX, 0))
		require.NoError(t, manager.MakeMove("ABC", entity.PlayerO, 6))
		require.NoError(t, manager.MakeMove("ABC", entity.PlayerX, 1))
		require.NoError(t, manager.MakeMove("ABC", entity.PlayerO, 7))
		require.NoError(t, manager.MakeMove("ABC", entity.PlayerX, 2))

		// Then: X won and holds one point
		room, err := store.Get("ABC")
		require.NoError(t, err)
		assert.Equal(t, entity.StatusEnded, room.Status)
		assert.Equal(t, entity.PlayerX, room.Winner)
		assert.Equal(t, 1, room.Slot(entity.PlayerX).Score)
	})

	t.Run("A rejected move produces no update", func(t *testing.T) {
		// Given: a running game
		manager, _, _ := newTestManager(t)
		alice, bob := startGame(t, manager)
		before := bob.count()

		// When: O moves out of turn
		err := manager.MakeMove("ABC", entity.PlayerO, 0)

		// Then: the move errors internally and nobody is notified
		require.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.Equal(t, before, bob.count())
		assert.NotEqual(t, 0, alice.count())

		_, isUpdate := alice.last().(*protocol.GameUpdate)
		assert.False(t, isUpdate)
	})
}

func TestRoomManager_Resets(t *testing.T) {
	t.Run("Game reset clears the board and notifies both sides", func(t *testing.T) {
		// Given: a game with moves on the board
		manager, store, _ := newTestManager(t)
		alice, bob := startGame(t, manager)
		require.NoError(t, manager.MakeMove("ABC", entity.PlayerX, 0))

		// When: the game is reset
		require.NoError(t, manager.ResetGame("ABC"))

		// Then: the board is clean and both players know
		room, err := store.Get("ABC")
		require.NoError(t, err)
		assert.Equal(t, [9]string{}, room.Board)

		_, ok := alice.last().(*protocol.GameReset)
		assert.True(t, ok)
		_, ok = bob.last().(*protocol.GameReset)
		assert.True(t, ok)
	})

	t.Run("Score reset notifies with a wiped match", func(t *testing.T) {
		// Given: a game with a score
		manager, store, _ := newTestManager(t)
		alice, _ := startGame(t, manager)

		room, err := store.Get("ABC")
		require.NoError(t, err)
		room.Slot(entity.PlayerX).Score = 2

		// When: scores are reset
		require.NoError(t, manager.ResetScores("ABC"))

		// Then: the pushed state carries zero scores
		reset, ok := alice.last().(*protocol.ScoresReset)
		require.True(t, ok)
		assert.Zero(t, reset.GameState.Players[entity.PlayerX].Score)
	})
}

func TestRoomManager_LeaveRoom(t *testing.T) {
	t.Run("Leaving notifies the opponent", func(t *testing.T) {
		// Given: a running game
		manager, store, _ := newTestManager(t)
		alice, _ := startGame(t, manager)

		// When: bob leaves
		require.NoError(t, manager.LeaveRoom("ABC", entity.PlayerO))

		// Then: alice is told and bob's slot is unbound
		_, ok := alice.last().(*protocol.OpponentLeft)
		assert.True(t, ok)

		room, err := store.Get("ABC")
		require.NoError(t, err)
		assert.False(t, room.Slot(entity.PlayerO).Connected)
		assert.Nil(t, room.Slot(entity.PlayerO).Conn)
	})

	t.Run("Both players leaving arms the cleanup deadline once", func(t *testing.T) {
		// Given: a running game
		manager, store, clock := newTestManager(t)
		startGame(t, manager)

		// When: both players leave
		require.NoError(t, manager.LeaveRoom("ABC", entity.PlayerX))
		require.NoError(t, manager.LeaveRoom("ABC", entity.PlayerO))

		// Then: the room is marked with the preserve-window deadline
		room, err := store.Get("ABC")
		require.NoError(t, err)
		assert.True(t, room.MarkedForCleanup)
		assert.Equal(t, clock.Now().Add(testPreserveWindow), room.CleanupAt)
	})

	t.Run("Creator leaving a waiting room removes it immediately", func(t *testing.T) {
		// Given: a waiting room nobody ever joined
		manager, store, _ := newTestManager(t)
		require.NoError(t, manager.CreateRoom(&fakeConn{}, "ABC", "alice"))

		// When: the creator leaves
		require.NoError(t, manager.LeaveRoom("ABC", entity.PlayerX))

		// Then: the room is gone
		assert.False(t, store.Exists("ABC"))
	})
}

func TestRoomManager_HandleDisconnect(t *testing.T) {
	t.Run("A superseded connection cannot unbind its successor", func(t *testing.T) {
		// Given: bob reconnected on a fresh connection
		manager, store, _ := newTestManager(t)
		_, oldConn := startGame(t, manager)

		fresh := &fakeConn{}
		_, err := manager.Reconnect(fresh, "ABC", "bob", entity.PlayerO)
		require.NoError(t, err)

		// When: the old connection's close path fires
		manager.HandleDisconnect(oldConn, "ABC", entity.PlayerO)

		// Then: the fresh binding survives
		room, err := store.Get("ABC")
		require.NoError(t, err)
		assert.True(t, room.Slot(entity.PlayerO).Connected)
		assert.Same(t, entity.Conn(fresh), room.Slot(entity.PlayerO).Conn)
	})
}

func TestRoomManager_Liveness(t *testing.T) {
	t.Run("Permanent disconnect marks the slot and warns the peer", func(t *testing.T) {
		// Given: a running game
		manager, store, clock := newTestManager(t)
		alice, _ := startGame(t, manager)

		// When: bob's connection misses too many probes
		manager.MarkPermanentlyDisconnected("ABC", entity.PlayerO)

		// Then: the slot is flagged with a timestamp and alice is warned
		room, err := store.Get("ABC")
		require.NoError(t, err)

		slot := room.Slot(entity.PlayerO)
		assert.True(t, slot.PermanentlyDisconnected)
		assert.Equal(t, clock.Now(), slot.DisconnectedAt)

		_, ok := alice.last().(*protocol.OpponentDisconnected)
		assert.True(t, ok)
	})

	t.Run("A late heartbeat clears the flag and tells the peer", func(t *testing.T) {
		// Given: bob marked permanently disconnected
		manager, store, _ := newTestManager(t)
		alice, _ := startGame(t, manager)
		manager.MarkPermanentlyDisconnected("ABC", entity.PlayerO)

		// When: bob's connection acknowledges a probe after all
		manager.RecoverFromHeartbeat("ABC", entity.PlayerO)

		// Then: the slot is live again and alice is told
		room, err := store.Get("ABC")
		require.NoError(t, err)
		assert.False(t, room.Slot(entity.PlayerO).PermanentlyDisconnected)
		assert.True(t, room.Slot(entity.PlayerO).DisconnectedAt.IsZero())

		_, ok := alice.last().(*protocol.OpponentReconnected)
		assert.True(t, ok)
	})
}

func TestRoomManager_Sweep(t *testing.T) {
	t.Run("Both slots gone: grace period, then eviction", func(t *testing.T) {
		// Given: both players permanently disconnected
		manager, store, clock := newTestManager(t)
		startGame(t, manager)
		manager.MarkPermanentlyDisconnected("ABC", entity.PlayerX)
		manager.MarkPermanentlyDisconnected("ABC", entity.PlayerO)

		// When: the first sweep runs
		manager.Sweep(clock.Now())

		// Then: the room is only marked, not removed
		require.True(t, store.Exists("ABC"))
		room, err := store.Get("ABC")
		require.NoError(t, err)
		assert.True(t, room.MarkedForCleanup)

		// When: sweeping again before the deadline
		clock.Advance(testPreserveWindow - time.Minute)
		manager.Sweep(clock.Now())

		// Then: the room still persists
		assert.True(t, store.Exists("ABC"))

		// When: the deadline passes
		clock.Advance(2 * time.Minute)
		manager.Sweep(clock.Now())

		// Then: the room is deleted
		assert.False(t, store.Exists("ABC"))
	})

	t.Run("A single long absence closes the room at once", func(t *testing.T) {
		// Given: alice permanently disconnected while bob stays
		manager, store, clock := newTestManager(t)
		_, bob := startGame(t, manager)
		manager.MarkPermanentlyDisconnected("ABC", entity.PlayerX)

		// When: sweeping inside the absence timeout
		clock.Advance(30 * time.Second)
		manager.Sweep(clock.Now())

		// Then: the room survives
		assert.True(t, store.Exists("ABC"))

		// When: alice has been gone for 90 seconds
		clock.Advance(time.Minute)
		manager.Sweep(clock.Now())

		// Then: bob gets ROOM_CLOSED and the room is removed
		assert.False(t, store.Exists("ABC"))

		closed, ok := bob.last().(*protocol.RoomClosed)
		require.True(t, ok)
		assert.NotEmpty(t, closed.Message)
	})

	t.Run("Reconnects before the deadline save the room", func(t *testing.T) {
		// Given: a room marked for cleanup
		manager, store, clock := newTestManager(t)
		startGame(t, manager)
		manager.MarkPermanentlyDisconnected("ABC", entity.PlayerX)
		manager.MarkPermanentlyDisconnected("ABC", entity.PlayerO)
		manager.Sweep(clock.Now())

		// When: both players come back and time passes the old deadline
		_, err := manager.Reconnect(&fakeConn{}, "ABC", "alice", "")
		require.NoError(t, err)
		_, err = manager.Reconnect(&fakeConn{}, "ABC", "bob", "")
		require.NoError(t, err)

		clock.Advance(testPreserveWindow + time.Minute)
		manager.Sweep(clock.Now())

		// Then: the room persists
		assert.True(t, store.Exists("ABC"))
	})
}
