package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL error codes
const (
	PgErrForeignKeyViolation = "23503"
	PgErrUniqueViolation     = "23505"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("duplicate record")
	ErrStale        = errors.New("record changed concurrently")
	ErrInsufficient = errors.New("insufficient stock")
)

// RepositoryError represents repository layer errors
type RepositoryError struct {
	Code    string
	Message string
	Detail  string
	Err     error
}

func (e *RepositoryError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Detail)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// translate maps driver errors onto the package sentinels. msg describes the
// attempted operation.
func translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &RepositoryError{Code: "NOT_FOUND", Message: msg, Err: ErrNotFound}
	case isUniqueViolation(err):
		return &RepositoryError{Code: "DUPLICATE", Message: msg, Detail: err.Error(), Err: ErrDuplicate}
	}
	return &RepositoryError{Code: "DATABASE_ERROR", Message: msg, Detail: err.Error(), Err: err}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == PgErrUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func stale(msg, detail string) error {
	return &RepositoryError{Code: "STALE", Message: msg, Detail: detail, Err: ErrStale}
}
