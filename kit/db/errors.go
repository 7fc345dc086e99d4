package db

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var (
	ErrNotFound = errors.New("db: not found")
	ErrConflict = errors.New("db: conflict")
	ErrInvalid  = errors.New("db: invalid")
	ErrInternal = errors.New("db: internal")
)

const pqUniqueViolation = pq.ErrorCode("23505")

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
func IsInvalid(err error) bool  { return errors.Is(err, ErrInvalid) }
func IsInternal(err error) bool { return errors.Is(err, ErrInternal) }

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Join(ErrNotFound, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return errors.Join(ErrConflict, err)
	}
	return errors.Join(ErrInternal, err)
}
