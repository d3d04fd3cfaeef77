package store

import (
	"context"
	"fmt"

	"fknsrs.biz/p/playlister/models"
)

// LoadFunc fetches a playlist record in the engine's native form. It reports
// false when no record has that id.
type LoadFunc[T any] func(ctx context.Context, id string) (T, bool, error)

// OwnerFunc resolves the id of the user that owns a loaded record. Document
// engines look the owner up by email, relational engines follow the foreign
// key. It reports false when the owner no longer exists.
type OwnerFunc[T any] func(ctx context.Context, record T) (string, bool, error)

// Owned loads a playlist and checks that requesterID owns it. Get, update and
// delete all go through here, so ownership failures look the same for every
// operation and every engine.
func Owned[T any](ctx context.Context, playlistID, requesterID string, load LoadFunc[T], owner OwnerFunc[T]) (T, error) {
	var zero T

	record, ok, err := load(ctx, playlistID)
	if err != nil {
		return zero, fmt.Errorf("store.Owned: could not load playlist %q: %w", playlistID, err)
	}
	if !ok {
		return zero, NotFound("playlist %q", playlistID)
	}

	ownerID, ok, err := owner(ctx, record)
	if err != nil {
		return zero, fmt.Errorf("store.Owned: could not resolve owner of playlist %q: %w", playlistID, err)
	}
	if !ok {
		return zero, fmt.Errorf("%w: owner of playlist %q could not be resolved", ErrAuthorization, playlistID)
	}

	if requesterID == "" || ownerID != requesterID {
		return zero, fmt.Errorf("%w: playlist %q, requester %q", ErrAuthorization, playlistID, requesterID)
	}

	return record, nil
}

// CheckUpdate validates an update body. Engines call it after Owned, so a
// requester that does not own the playlist is refused before the body is
// looked at.
func CheckUpdate(update *models.PlaylistUpdate) (models.PlaylistUpdate, error) {
	if update == nil {
		return models.PlaylistUpdate{}, Creation("no update data")
	}

	u := *update
	if err := u.Validate(); err != nil {
		return models.PlaylistUpdate{}, Creation("invalid update: %s", err)
	}

	return u, nil
}
