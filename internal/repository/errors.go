package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicate signals a storage-level unique constraint violation. Services
// translate it into the same Conflict outcome as their advisory pre-checks,
// so race losers and fast-path failures look identical to callers.
var ErrDuplicate = errors.New("duplicate row")

const uniqueViolationCode = "23505"

func translateUnique(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
		return ErrDuplicate
	}
	return err
}
