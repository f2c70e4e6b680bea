package table

import "errors"

var (
	ErrNotYourTurn       = errors.New("not your turn")
	ErrTurnMismatch      = errors.New("turn sequence mismatch")
	ErrAlreadyActed      = errors.New("turn already resolved")
	ErrCannotCheck       = errors.New("cannot check")
	ErrRaiseTooSmall     = errors.New("raise too small")
	ErrInsufficientChips = errors.New("insufficient chips")
	ErrUnknownAction     = errors.New("unknown action")

	ErrTableFull     = errors.New("table is full")
	ErrAlreadySeated = errors.New("already seated at this table")
	ErrNotSeated     = errors.New("not seated at this table")
	ErrTableClosed   = errors.New("table is closed")
)
