package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ahmadzakiakmal/panelchain/repository"
	"github.com/ahmadzakiakmal/panelchain/repository/models"
)

// Kind classifies coordinator errors. Callers branch on the kind, never on
// the message.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindInvalidTransition  Kind = "invalid_transition"
	KindAlreadyProcessed   Kind = "already_processed"
	KindConflict           Kind = "conflict"
	KindInsufficientStock  Kind = "insufficient_stock"
	KindSaleTransferFailed Kind = "sale_transfer_failed"
	KindValidation         Kind = "validation"
	KindInternal           Kind = "internal"
)

// Error is returned by every coordinator operation
type Error struct {
	Kind    Kind
	Op      string
	AssetID string
	Status  models.AssetStatus // current status, when relevant
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.AssetID != "" {
		b.WriteString(" ")
		b.WriteString(e.AssetID)
	}
	fmt.Fprintf(&b, ": %s", e.Kind)
	if e.Status != "" {
		fmt.Fprintf(&b, " (status %s)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error of the same kind, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Op == "" && t.Kind == e.Kind
}

var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrAlreadyProcessed   = &Error{Kind: KindAlreadyProcessed}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrInsufficientStock  = &Error{Kind: KindInsufficientStock}
	ErrSaleTransferFailed = &Error{Kind: KindSaleTransferFailed}
	ErrValidation         = &Error{Kind: KindValidation}
)

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a coordinator error of kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func newError(kind Kind, op, assetID string, status models.AssetStatus, msg string) *Error {
	return &Error{Kind: kind, Op: op, AssetID: assetID, Status: status, Message: msg}
}

func validation(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: msg}
}

// storeErr maps a repository failure onto the coordinator taxonomy. Errors
// that already carry a kind pass through.
func storeErr(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Kind: KindNotFound, Op: op, AssetID: id, Message: "not found", Cause: err}
	case errors.Is(err, repository.ErrDuplicate):
		return &Error{Kind: KindConflict, Op: op, AssetID: id, Message: "record already exists", Cause: err}
	case errors.Is(err, repository.ErrStale):
		return &Error{Kind: KindConflict, Op: op, AssetID: id, Message: "concurrent update, retry", Cause: err}
	case errors.Is(err, repository.ErrInsufficient):
		return &Error{Kind: KindInsufficientStock, Op: op, Message: "not enough stock", Cause: err}
	}
	return &Error{Kind: KindInternal, Op: op, AssetID: id, Cause: err}
}
