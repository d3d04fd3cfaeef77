package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/playlister/internal/ctxclock"
	"fknsrs.biz/p/playlister/models"
)

type record struct {
	id    string
	owner string
}

func TestOwned(t *testing.T) {
	records := map[string]record{
		"p1": {id: "p1", owner: "u1"},
		"p2": {id: "p2", owner: "gone"},
		"p3": {id: "p3", owner: "broken"},
	}

	load := func(ctx context.Context, id string) (record, bool, error) {
		if id == "explode" {
			return record{}, false, fmt.Errorf("test_error")
		}

		r, ok := records[id]
		return r, ok, nil
	}

	owner := func(ctx context.Context, r record) (string, bool, error) {
		switch r.owner {
		case "gone":
			return "", false, nil
		case "broken":
			return "", false, fmt.Errorf("owner_error")
		default:
			return r.owner, true, nil
		}
	}

	for _, tc := range []struct {
		name      string
		playlist  string
		requester string
		err       error
		errText   string
	}{
		{"owner", "p1", "u1", nil, ""},
		{"someone else", "p1", "u2", ErrAuthorization, ""},
		{"no requester", "p1", "", ErrAuthorization, ""},
		{"missing playlist", "p9", "u1", ErrNotFound, ""},
		{"owner deleted", "p2", "u1", ErrAuthorization, ""},
		{"load failure", "explode", "u1", nil, "test_error"},
		{"owner failure", "p3", "u1", nil, "owner_error"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			r, err := Owned(context.Background(), tc.playlist, tc.requester, load, owner)

			switch {
			case tc.err != nil:
				a.ErrorIs(err, tc.err)
				a.Equal(record{}, r)
			case tc.errText != "":
				a.ErrorContains(err, tc.errText)
				a.NotErrorIs(err, ErrNotFound)
				a.NotErrorIs(err, ErrAuthorization)
			default:
				a.NoError(err)
				a.Equal(tc.playlist, r.id)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	a := assert.New(t)

	var got Options

	Register("test-registry", func(ctx context.Context, opts Options) (Store, error) {
		got = opts
		return nil, fmt.Errorf("test_error")
	})

	a.Contains(Engines(), "test-registry")

	a.Panics(func() {
		Register("test-registry", func(ctx context.Context, opts Options) (Store, error) { return nil, nil })
	})

	_, err := Open(context.Background(), "test-registry", Options{DSN: "dsn"})
	a.ErrorContains(err, "test_error")
	a.Equal("dsn", got.DSN)

	_, err = Open(context.Background(), "test-registry", Options{})
	a.ErrorIs(err, ErrNoStoreOptions)

	_, err = Open(context.Background(), "nope", Options{DSN: "dsn"})
	a.ErrorIs(err, ErrUnknownEngine)
}

func TestNow(t *testing.T) {
	a := assert.New(t)

	at := time.Date(2023, 7, 1, 12, 0, 0, 123456789, time.FixedZone("AEST", 10*60*60))

	now, err := Now(ctxclock.WithClock(context.Background(), ctxclock.NewStaticClock(at)))
	a.NoError(err)
	a.Equal(time.UTC, now.Location())
	a.Equal(123000000, now.Nanosecond())
	a.True(now.Equal(at.Truncate(time.Millisecond)))

	_, err = Now(ctxclock.WithClock(context.Background(), ctxclock.NewTestClock(nil)))
	a.ErrorIs(err, ctxclock.ErrNoTimesLeft)

	now, err = Now(context.Background())
	a.NoError(err)
	a.False(now.IsZero())
}

func TestPreparePlaylist(t *testing.T) {
	owner := &models.User{ID: "u1", Email: "joe.mama@x.edu"}

	for _, tc := range []struct {
		name  string
		input *models.Playlist
		email string
		err   error
	}{
		{"fills owner email", &models.Playlist{Name: "Test Playlist"}, "joe.mama@x.edu", nil},
		{"matching owner email", &models.Playlist{Name: "Test Playlist", OwnerEmail: "joe.mama@x.edu"}, "joe.mama@x.edu", nil},
		{"other owner email", &models.Playlist{Name: "Test Playlist", OwnerEmail: "someone@x.edu"}, "", ErrCreation},
		{"no name", &models.Playlist{}, "", ErrCreation},
		{"nil", nil, "", ErrCreation},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			p, err := PreparePlaylist(tc.input, owner)
			if tc.err != nil {
				a.ErrorIs(err, tc.err)
				return
			}

			if a.NoError(err) {
				a.Equal(tc.email, p.OwnerEmail)
				a.NotNil(p.Songs)
			}
		})
	}
}

func TestCheckUpdate(t *testing.T) {
	for _, tc := range []struct {
		name  string
		input *models.PlaylistUpdate
		err   error
	}{
		{"valid", &models.PlaylistUpdate{Name: "Renamed"}, nil},
		{"blank name", &models.PlaylistUpdate{Name: "  "}, ErrCreation},
		{"nil", nil, ErrCreation},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			u, err := CheckUpdate(tc.input)
			if tc.err != nil {
				a.ErrorIs(err, tc.err)
				return
			}

			if a.NoError(err) {
				a.Equal(tc.input.Name, u.Name)
				a.NotNil(u.Songs)
			}
		})
	}
}

func TestReadFixtures(t *testing.T) {
	a := assert.New(t)

	f, err := ReadFixtures(strings.NewReader(`
users:
  - firstName: Joe
    lastName: Mama
    email: joe.mama@x.edu
    passwordHash: hash
playlists:
  - name: Test Playlist
    ownerEmail: joe.mama@x.edu
    songs:
      - title: Song 1
        artist: Artist1
        youTubeId: "123"
`))
	if a.NoError(err) {
		if a.Len(f.Users, 1) {
			a.Equal("hash", f.Users[0].PasswordHash)
		}
		if a.Len(f.Playlists, 1) {
			a.Equal(models.Songs{{Title: "Song 1", Artist: "Artist1", YouTubeID: "123"}}, f.Playlists[0].Songs)
		}
	}

	_, err = ReadFixtures(strings.NewReader("users: {"))
	a.Error(err)
}
