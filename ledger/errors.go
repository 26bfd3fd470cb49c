package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means no ledger connection is configured. It is an
	// expected condition, not a failure.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrCallFailed covers network errors, contract reverts and rejected
	// transactions.
	ErrCallFailed = errors.New("ledger call failed")
	// ErrTimeout means no receipt arrived in time. It matches ErrCallFailed.
	ErrTimeout = fmt.Errorf("%w: timed out waiting for receipt", ErrCallFailed)
)

// CallFailed wraps cause so that it matches both ErrCallFailed and cause.
func CallFailed(op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, ErrCallFailed)
	}
	if errors.Is(cause, ErrCallFailed) {
		return fmt.Errorf("%s: %w", op, cause)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrCallFailed, cause)
}

// Rejected reports a transaction the ledger refused with a non-zero code.
func Rejected(op string, code uint32, log string) error {
	return fmt.Errorf("%s: %w: code %d: %s", op, ErrCallFailed, code, log)
}
