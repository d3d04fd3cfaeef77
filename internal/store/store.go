package store

import (
	"context"
	"time"

	"fknsrs.biz/p/playlister/internal/ctxclock"
	"fknsrs.biz/p/playlister/models"
)

// Store is the persistence contract every engine implements. Identifiers
// crossing this interface are always opaque strings; engines convert to and
// from their native key types at the boundary.
//
// Lookups of users return nil with a nil error when nothing matches.
// Playlist operations that take a requester run through Owned and fail with
// ErrNotFound or ErrAuthorization.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreatePlaylist(ctx context.Context, playlist *models.Playlist, ownerID string) (*models.Playlist, error)
	DeletePlaylist(ctx context.Context, id, requesterID string) error
	GetPlaylistByID(ctx context.Context, id, requesterID string) (*models.Playlist, error)
	GetPlaylistPairs(ctx context.Context, requesterID string) ([]models.PlaylistPair, error)
	// GetPlaylists returns ErrNotFound when the store holds no playlists at
	// all, unlike GetPlaylistPairs which returns an empty list.
	GetPlaylists(ctx context.Context) ([]models.Playlist, error)
	UpdatePlaylist(ctx context.Context, id, requesterID string, update *models.PlaylistUpdate) (*models.Playlist, error)

	// Clear removes every user and playlist.
	Clear(ctx context.Context) error
	Close() error
}

type Options struct {
	// DSN is the engine specific connection string: a file path for the
	// embedded engines, a URI for the server engines.
	DSN string

	LogQueries           bool
	LogQueriesSlowerThan time.Duration
}

// Now returns the current time from the context clock when there is one, so
// tests can pin timestamps. Times are truncated to milliseconds in UTC, which
// is the coarsest precision of any supported engine.
func Now(ctx context.Context) (time.Time, error) {
	t := time.Now()

	if c := ctxclock.GetClock(ctx); c != nil {
		v, err := c.Now()
		if err != nil {
			return time.Time{}, err
		}
		t = v
	}

	return t.UTC().Truncate(time.Millisecond), nil
}

// PreparePlaylist validates a new playlist and binds it to its owner.
func PreparePlaylist(p *models.Playlist, owner *models.User) (*models.Playlist, error) {
	if p == nil {
		return nil, Creation("no playlist data")
	}

	c := *p
	c.Songs = append(models.Songs{}, p.Songs...)

	if err := c.Validate(); err != nil {
		return nil, Creation("invalid playlist: %s", err)
	}

	switch c.OwnerEmail {
	case "":
		c.OwnerEmail = owner.Email
	case owner.Email:
	default:
		return nil, Creation("owner email %q does not match owner %q", c.OwnerEmail, owner.Email)
	}

	return &c, nil
}
