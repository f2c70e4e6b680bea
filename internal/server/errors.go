package server

import (
	"errors"

	"github.com/openfelt/cardroom/internal/ledger"
	"github.com/openfelt/cardroom/internal/table"
)

// apiError is the JSON error envelope every failing endpoint returns.
type apiError struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
}

// errorCode maps an internal error to its wire code and HTTP status.
func errorCode(err error) (code string, status int) {
	switch {
	case errors.Is(err, table.ErrNotYourTurn):
		return "NOT_YOUR_TURN", 409
	case errors.Is(err, table.ErrTurnMismatch):
		return "TURN_MISMATCH", 409
	case errors.Is(err, table.ErrAlreadyActed):
		return "ALREADY_ACTED", 409
	case errors.Is(err, table.ErrCannotCheck),
		errors.Is(err, table.ErrRaiseTooSmall),
		errors.Is(err, table.ErrInsufficientChips),
		errors.Is(err, table.ErrUnknownAction):
		return "INVALID_ACTION", 400
	case errors.Is(err, table.ErrTableFull):
		return "TABLE_FULL", 409
	case errors.Is(err, table.ErrAlreadySeated):
		return "ALREADY_SEATED", 409
	case errors.Is(err, table.ErrNotSeated):
		return "NOT_SEATED", 409
	case errors.Is(err, table.ErrTableClosed):
		return "TABLE_CLOSED", 409
	case errors.Is(err, ErrTableNotFound):
		return "NOT_FOUND", 404
	case errors.Is(err, ErrTableExists):
		return "TABLE_EXISTS", 409
	case errors.Is(err, ErrTableLimit):
		return "TABLE_LIMIT", 409
	case errors.Is(err, ErrBadTableID), errors.Is(err, ErrBadBuyIn):
		return "INVALID_INPUT", 400
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED", 401
	case errors.Is(err, ErrRankedDisabled):
		return "RANKED_DISABLED", 404
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "INSUFFICIENT", 409
	case errors.Is(err, ledger.ErrFrozen):
		return "RANKED_FROZEN", 503
	case errors.Is(err, ledger.ErrWithdrawInFlight):
		return "WITHDRAW_IN_FLIGHT", 409
	case errors.Is(err, ledger.ErrDepositPending):
		return "DEPOSIT_PENDING", 409
	case errors.Is(err, ledger.ErrBadProof),
		errors.Is(err, ledger.ErrNoSuchChallenge),
		errors.Is(err, ledger.ErrChallengeExpired):
		return "BAD_PROOF", 403
	case errors.Is(err, ledger.ErrFeedUnavailable):
		return "FEED_UNAVAILABLE", 503
	case errors.Is(err, ledger.ErrTransferRejected):
		return "TRANSFER_REJECTED", 502
	default:
		return "INTERNAL", 500
	}
}
