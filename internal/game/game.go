package game

import (
	"github.com/pixelgrid/tictactoe-rooms/internal/apperror"
	"github.com/pixelgrid/tictactoe-rooms/internal/entity"
)

// UltimateVictoryWins is the cumulative score at which a player wins the
// whole match.
const UltimateVictoryWins = 3

// WinCombos are the 8 fixed win lines: 3 rows, 3 columns, 2 diagonals.
var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// ApplyMove validates and applies one move for the given mark. A rejected
// move returns an error and leaves the room untouched.
//
// The caller must hold the room lock.
func ApplyMove(room *entity.Room, mark string, cell int) error {
	if room.Status != entity.StatusPlaying {
		return apperror.ErrGameNotPlaying
	}

	if room.Turn != mark {
		return apperror.ErrNotYourTurn
	}

	if cell < 0 || cell >= len(room.Board) {
		return apperror.ErrInvalidCell
	}

	if room.Board[cell] != entity.EmptyCell {
		return apperror.ErrCellOccupied
	}

	room.Board[cell] = mark

	switch {
	case winnerOf(room.Board) == mark:
		room.Status = entity.StatusEnded
		room.Winner = mark
		room.LastWinner = mark

		slot := room.Slot(mark)
		slot.Score++
		if slot.Score >= UltimateVictoryWins {
			room.UltimateWinner = mark
		}
	case boardFull(room.Board):
		room.Status = entity.StatusDraw
	default:
		room.Turn = entity.Opponent(mark)
	}

	return nil
}

// Reset clears the board for a rematch. Scores, lastWinner and the ultimate
// winner survive; X starts the next game regardless of who won the last one.
//
// The caller must hold the room lock.
func Reset(room *entity.Room) {
	room.Board = [9]string{}
	room.Status = entity.StatusPlaying
	room.Winner = ""
	room.Turn = entity.PlayerX
}

// ResetScores zeroes both scores, forgets the ultimate and last winner, and
// performs a full game reset.
//
// The caller must hold the room lock.
func ResetScores(room *entity.Room) {
	room.Players[entity.PlayerX].Score = 0
	room.Players[entity.PlayerO].Score = 0
	room.UltimateWinner = ""
	room.LastWinner = ""

	Reset(room)
}

func winnerOf(board [9]string) string {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != entity.EmptyCell && a == b && b == c {
			return a
		}
	}

	return ""
}

func boardFull(board [9]string) bool {
	for _, cell := range board {
		if cell == entity.EmptyCell {
			return false
		}
	}

	return true
}
