package store

import (
	"fmt"
)

var (
	ErrNotFound       = fmt.Errorf("store: not found")
	ErrAuthorization  = fmt.Errorf("store: requester does not own this playlist")
	ErrCreation       = fmt.Errorf("store: could not create record")
	ErrOwnerNotFound  = fmt.Errorf("store: owner not found")
	ErrUnknownEngine  = fmt.Errorf("store: unknown engine")
	ErrNoStoreOptions = fmt.Errorf("store: connection string is empty")
)

func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Creation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCreation, fmt.Sprintf(format, args...))
}

func OwnerNotFound(ownerID string) error {
	return fmt.Errorf("%w: no user with id %q", ErrOwnerNotFound, ownerID)
}
