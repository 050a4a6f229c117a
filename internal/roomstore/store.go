package roomstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/pixelgrid/tictactoe-rooms/internal/apperror"
	"github.com/pixelgrid/tictactoe-rooms/internal/entity"
)

// Store owns the room table. It is the single owner of all Room and slot
// state; connections only ever hold a (roomCode, mark) lookup key into it.
//
// The table is process-local and in-memory. Multi-instance deployment is out
// of scope and would require externalizing this store.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*entity.Room
	now   func() time.Time
}

func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock builds a store with an injectable clock so timing behavior is
// testable without wall-clock delays.
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		rooms: make(map[string]*entity.Room),
		now:   now,
	}
}

// Now returns the store's current time per the injected clock.
func (that *Store) Now() time.Time {
	return that.now()
}

// Create registers a new waiting room under the given code with the creator
// occupying slot X. A taken code is rejected, never overwritten.
func (that *Store) Create(code, creatorName string) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.rooms[code]; ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomAlreadyExists, code)
	}

	room := entity.NewRoom(code, creatorName)
	that.rooms[code] = room

	return room, nil
}

func (that *Store) Get(code string) (*entity.Room, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	room, ok := that.rooms[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, code)
	}

	return room, nil
}

func (that *Store) Delete(code string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.rooms, code)
}

// Exists is the stateless room-existence check backing the side-channel API.
func (that *Store) Exists(code string) bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	_, ok := that.rooms[code]

	return ok
}

// Rooms returns a snapshot of the current rooms so sweeps can iterate
// without holding the table lock.
func (that *Store) Rooms() []*entity.Room {
	that.mu.RLock()
	defer that.mu.RUnlock()

	rooms := make([]*entity.Room, 0, len(that.rooms))
	for _, room := range that.rooms {
		rooms = append(rooms, room)
	}

	return rooms
}

func (that *Store) Len() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.rooms)
}
