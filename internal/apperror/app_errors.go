package apperror

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomAlreadyExists = errors.New("room already exists")
	ErrRoomIsFull        = errors.New("room is full")
	ErrIdentityMismatch  = errors.New("you were not originally in this room")

	ErrGameNotPlaying = errors.New("game is not in playing state")
	ErrNotYourTurn    = errors.New("it's not your turn")
	ErrCellOccupied   = errors.New("cell is already occupied")
	ErrInvalidCell    = errors.New("invalid cell index")
)
