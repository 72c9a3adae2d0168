package domain

import (
	"errors"
	"fmt"
)

// Reason explains why a move was rejected.
type Reason uint8

const (
	OutOfRange Reason = iota + 1
	CellOccupied
	GameOver
)

func (r Reason) String() string {
	switch r {
	case OutOfRange:
		return "out of range"
	case CellOccupied:
		return "cell occupied"
	case GameOver:
		return "game over"
	default:
		return "unknown"
	}
}

// Errors returned by domain operations.
var (
	ErrIllegalMove  = errors.New("illegal move")
	ErrOutOfRange   = errors.New("out of range")
	ErrCellOccupied = errors.New("cell occupied")
	ErrGameOver     = errors.New("game over")
)

// IllegalMoveError is returned by Engine.Play for rejected moves.
type IllegalMoveError struct {
	Index  int
	Reason Reason
}

func illegal(index int, reason Reason) *IllegalMoveError {
	return &IllegalMoveError{Index: index, Reason: reason}
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move at %d: %s", e.Index, e.Reason)
}

// Is matches ErrIllegalMove and the sentinel for the error's reason.
func (e *IllegalMoveError) Is(target error) bool {
	switch target {
	case ErrIllegalMove:
		return true
	case ErrOutOfRange:
		return e.Reason == OutOfRange
	case ErrCellOccupied:
		return e.Reason == CellOccupied
	case ErrGameOver:
		return e.Reason == GameOver
	}
	return false
}
