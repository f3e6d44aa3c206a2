package cache

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound matches every *NotFoundError via errors.Is.
	ErrNotFound = errors.New("cache: entry not found")
	// ErrInvalidConfig is wrapped by New when an option is out of range.
	ErrInvalidConfig = errors.New("cache: invalid configuration")
)

// NotFoundError is returned by Invalidate when no live entry exists for the key.
// An entry that is still stored but already expired is reported the same way.
type NotFoundError struct {
	Dataset string
	KeyName string
	Key     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("there is no %s cache entry for <%s=%v> to invalidate", e.Dataset, e.KeyName, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
