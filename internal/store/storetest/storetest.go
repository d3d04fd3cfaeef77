// Package storetest holds the behavioural suite shared by every store engine.
// Each engine's tests call Run with a function that returns an empty store.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/playlister/internal/ctxclock"
	"fknsrs.biz/p/playlister/internal/store"
	"fknsrs.biz/p/playlister/models"
)

// OpenFunc returns an empty store. It should register cleanup with t.
type OpenFunc func(t *testing.T) store.Store

// MissingIDs are identifiers that should never resolve in any engine, either
// because they are well formed but unused or because they are malformed for
// the engine.
var MissingIDs = []string{"", "does-not-exist", "0", "999999", "64b000000000000000000000", "00000000-0000-0000-0000-000000000000"}

var testTime = time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)

func Run(t *testing.T, open OpenFunc) {
	for _, tc := range []struct {
		name string
		fn   func(t *testing.T, ctx context.Context, s store.Store)
	}{
		{"UserRoundTrip", testUserRoundTrip},
		{"UserDuplicateEmail", testUserDuplicateEmail},
		{"UserInvalid", testUserInvalid},
		{"UserMissing", testUserMissing},
		{"CreatePlaylistScenario", testCreatePlaylistScenario},
		{"CreatePlaylistOwnerNotFound", testCreatePlaylistOwnerNotFound},
		{"CreatePlaylistInvalid", testCreatePlaylistInvalid},
		{"CreatePlaylistOwnerEmail", testCreatePlaylistOwnerEmail},
		{"GetPlaylistOwnership", testGetPlaylistOwnership},
		{"GetPlaylistMissing", testGetPlaylistMissing},
		{"UpdatePlaylistRoundTrip", testUpdatePlaylistRoundTrip},
		{"UpdatePlaylistByOtherUser", testUpdatePlaylistByOtherUser},
		{"UpdatePlaylistInvalid", testUpdatePlaylistInvalid},
		{"DeletePlaylist", testDeletePlaylist},
		{"DeletePlaylistByOtherUser", testDeletePlaylistByOtherUser},
		{"PlaylistPairs", testPlaylistPairs},
		{"PlaylistPairsEmpty", testPlaylistPairsEmpty},
		{"GetPlaylists", testGetPlaylists},
		{"GetPlaylistsEmpty", testGetPlaylistsEmpty},
		{"Timestamps", testTimestamps},
		{"Clear", testClear},
		{"Fixtures", testFixtures},
	} {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			s := open(t)
			ctx := ctxclock.WithClock(context.Background(), ctxclock.NewSteppingClock(testTime, time.Second))
			tc.fn(t, ctx, s)
		})
	}
}

func joeMama() *models.User {
	return &models.User{
		FirstName:    "Joe",
		LastName:     "Mama",
		Email:        "joe.mama@x.edu",
		PasswordHash: "$2a$12$aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
}

func janeDoe() *models.User {
	return &models.User{
		FirstName:    "Jane",
		LastName:     "Doe",
		Email:        "jane.doe@x.edu",
		PasswordHash: "$2a$12$bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}
}

func testPlaylist() *models.Playlist {
	return &models.Playlist{
		Name:       "Test Playlist",
		OwnerEmail: "joe.mama@x.edu",
		Songs:      models.Songs{{Title: "Song 1", Artist: "Artist1", YouTubeID: "123"}},
	}
}

func mustCreateUser(t *testing.T, ctx context.Context, s store.Store, u *models.User) *models.User {
	t.Helper()

	created, err := s.CreateUser(ctx, u)
	require.NoError(t, err)
	require.NotNil(t, created)
	require.NotEmpty(t, created.ID)

	return created
}

func mustCreatePlaylist(t *testing.T, ctx context.Context, s store.Store, p *models.Playlist, ownerID string) *models.Playlist {
	t.Helper()

	created, err := s.CreatePlaylist(ctx, p, ownerID)
	require.NoError(t, err)
	require.NotNil(t, created)
	require.NotEmpty(t, created.ID)

	return created
}

func testUserRoundTrip(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	u := mustCreateUser(t, ctx, s, joeMama())

	for name, get := range map[string]func() (*models.User, error){
		"by id":    func() (*models.User, error) { return s.GetUserByID(ctx, u.ID) },
		"by email": func() (*models.User, error) { return s.GetUserByEmail(ctx, "joe.mama@x.edu") },
	} {
		found, err := get()
		if a.NoError(err, name) && a.NotNil(found, name) {
			a.Equal(u.ID, found.ID, name)
			a.Equal("Joe", found.FirstName, name)
			a.Equal("Mama", found.LastName, name)
			a.Equal("joe.mama@x.edu", found.Email, name)
			a.Equal(joeMama().PasswordHash, found.PasswordHash, name)
			a.Empty(found.Playlists, name)
		}
	}
}

func testUserDuplicateEmail(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	mustCreateUser(t, ctx, s, joeMama())

	u, err := s.CreateUser(ctx, joeMama())
	a.ErrorIs(err, store.ErrCreation)
	a.Nil(u)
}

func testUserInvalid(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	u := joeMama()
	u.PasswordHash = ""

	created, err := s.CreateUser(ctx, u)
	a.ErrorIs(err, store.ErrCreation)
	a.Nil(created)

	found, err := s.GetUserByEmail(ctx, u.Email)
	a.NoError(err)
	a.Nil(found)
}

func testUserMissing(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	mustCreateUser(t, ctx, s, joeMama())

	for _, id := range MissingIDs {
		u, err := s.GetUserByID(ctx, id)
		a.NoError(err, id)
		a.Nil(u, id)
	}

	u, err := s.GetUserByEmail(ctx, "nobody@x.edu")
	a.NoError(err)
	a.Nil(u)
}

func testCreatePlaylistScenario(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	u := mustCreateUser(t, ctx, s, joeMama())
	created := mustCreatePlaylist(t, ctx, s, testPlaylist(), u.ID)

	a.Equal("Test Playlist", created.Name)
	a.Equal("joe.mama@x.edu", created.OwnerEmail)

	p, err := s.GetPlaylistByID(ctx, created.ID, u.ID)
	if a.NoError(err) && a.NotNil(p) {
		a.Equal(created.ID, p.ID)
		a.Equal("Test Playlist", p.Name)
		if a.Len(p.Songs, 1) {
			a.Equal(models.Song{Title: "Song 1", Artist: "Artist1", YouTubeID: "123"}, p.Songs[0])
		}
	}

	owner, err := s.GetUserByID(ctx, u.ID)
	if a.NoError(err) && a.NotNil(owner) {
		a.Equal([]string{created.ID}, owner.Playlists)
	}
}

func testCreatePlaylistOwnerNotFound(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	for _, id := range MissingIDs {
		p, err := s.CreatePlaylist(ctx, testPlaylist(), id)
		a.ErrorIs(err, store.ErrOwnerNotFound, id)
		a.Nil(p, id)
	}

	_, err := s.GetPlaylists(ctx)
	a.ErrorIs(err, store.ErrNotFound)
}

func testCreatePlaylistInvalid(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	u := mustCreateUser(t, ctx, s, joeMama())

	p, err := s.CreatePlaylist(ctx, &models.Playlist{Name: ""}, u.ID)
	a.ErrorIs(err, store.ErrCreation)
	a.Nil(p)

	p, err = s.CreatePlaylist(ctx, nil, u.ID)
	a.ErrorIs(err, store.ErrCreation)
	a.Nil(p)
}

func testCreatePlaylistOwnerEmail(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	u := mustCreateUser(t, ctx, s, joeMama())

	created := mustCreatePlaylist(t, ctx, s, &models.Playlist{Name: "No Email"}, u.ID)
	a.Equal("joe.mama@x.edu", created.OwnerEmail)
	a.NotNil(created.Songs)
	a.Len(created.Songs, 0)

	p := testPlaylist()
	p.OwnerEmail = "jane.doe@x.edu"

	rejected, err := s.CreatePlaylist(ctx, p, u.ID)
	a.ErrorIs(err, store.ErrCreation)
	a.Nil(rejected)
}

func testGetPlaylistOwnership(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	joe := mustCreateUser(t, ctx, s, joeMama())
	jane := mustCreateUser(t, ctx, s, janeDoe())

	created := mustCreatePlaylist(t, ctx, s, testPlaylist(), joe.ID)

	p, err := s.GetPlaylistByID(ctx, created.ID, jane.ID)
	a.ErrorIs(err, store.ErrAuthorization)
	a.Nil(p)

	for _, id := range MissingIDs {
		p, err := s.GetPlaylistByID(ctx, created.ID, id)
		a.ErrorIs(err, store.ErrAuthorization, id)
		a.Nil(p, id)
	}
}

func testGetPlaylistMissing(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	joe := mustCreateUser(t, ctx, s, joeMama())
	mustCreatePlaylist(t, ctx, s, testPlaylist(), joe.ID)

	for _, id := range MissingIDs {
		p, err := s.GetPlaylistByID(ctx, id, joe.ID)
		a.ErrorIs(err, store.ErrNotFound, id)
		a.Nil(p, id)
	}
}

func testUpdatePlaylistRoundTrip(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	joe := mustCreateUser(t, ctx, s, joeMama())
	created := mustCreatePlaylist(t, ctx, s, testPlaylist(), joe.ID)

	songs := models.Songs{
		{Title: "Song 2", Artist: "Artist2", YouTubeID: "456"},
		{Title: "Song 3", Artist: "Artist3", YouTubeID: "789"},
	}

	updated, err := s.UpdatePlaylist(ctx, created.ID, joe.ID, &models.PlaylistUpdate{Name: "Renamed", Songs: songs})
	if a.NoError(err) && a.NotNil(updated) {
		a.Equal(created.ID, updated.ID)
		a.Equal("Renamed", updated.Name)
		a.Equal(songs, updated.Songs)
		a.Equal("joe.mama@x.edu", updated.OwnerEmail)
	}

	p, err := s.GetPlaylistByID(ctx, created.ID, joe.ID)
	if a.NoError(err) && a.NotNil(p) {
		a.Equal("Renamed", p.Name)
		a.Equal(songs, p.Songs)
	}

	cleared, err := s.UpdatePlaylist(ctx, created.ID, joe.ID, &models.PlaylistUpdate{Name: "Empty"})
	if a.NoError(err) && a.NotNil(cleared) {
		a.NotNil(cleared.Songs)
		a.Len(cleared.Songs, 0)
	}
}

func testUpdatePlaylistByOtherUser(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	joe := mustCreateUser(t, ctx, s, joeMama())
	jane := mustCreateUser(t, ctx, s, janeDoe())
	created := mustCreatePlaylist(t, ctx, s, testPlaylist(), joe.ID)

	updated, err := s.UpdatePlaylist(ctx, created.ID, jane.ID, &models.PlaylistUpdate{Name: "Hijacked"})
	a.ErrorIs(err, store.ErrAuthorization)
	a.Nil(updated)

	updated, err = s.UpdatePlaylist(ctx, created.ID, jane.ID, &models.PlaylistUpdate{Name: ""})
	a.ErrorIs(err, store.ErrAuthorization)
	a.NotErrorIs(err, store.ErrCreation)
	a.Nil(updated)

	p, err := s.GetPlaylistByID(ctx, created.ID, joe.ID)
	if a.NoError(err) && a.NotNil(p) {
		a.Equal("Test Playlist", p.Name)
		a.Equal(testPlaylist().Songs, p.Songs)
	}

	updated, err = s.UpdatePlaylist(ctx, "does-not-exist", joe.ID, &models.PlaylistUpdate{Name: "Nope"})
	a.ErrorIs(err, store.ErrNotFound)
	a.Nil(updated)
}

func testUpdatePlaylistInvalid(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	joe := mustCreateUser(t, ctx, s, joeMama())
	created := mustCreatePlaylist(t, ctx, s, testPlaylist(), joe.ID)

	updated, err := s.UpdatePlaylist(ctx, created.ID, joe.ID, &models.PlaylistUpdate{Name: ""})
	a.ErrorIs(err, store.ErrCreation)
	a.Nil(updated)

	updated, err = s.UpdatePlaylist(ctx, created.ID, joe.ID, nil)
	a.ErrorIs(err, store.ErrCreation)
	a.Nil(updated)

	p, err := s.GetPlaylistByID(ctx, created.ID, joe.ID)
	if a.NoError(err) && a.NotNil(p) {
		a.Equal("Test Playlist", p.Name)
	}
}

func testDeletePlaylist(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	joe := mustCreateUser(t, ctx, s, joeMama())
	first := mustCreatePlaylist(t, ctx, s, testPlaylist(), joe.ID)
	second := mustCreatePlaylist(t, ctx, s, &models.Playlist{Name: "Second"}, joe.ID)

	a.NoError(s.DeletePlaylist(ctx, first.ID, joe.ID))

	p, err := s.GetPlaylistByID(ctx, first.ID, joe.ID)
	a.ErrorIs(err, store.ErrNotFound)
	a.Nil(p)

	a.ErrorIs(s.DeletePlaylist(ctx, first.ID, joe.ID), store.ErrNotFound)

	owner, err := s.GetUserByID(ctx, joe.ID)
	if a.NoError(err) && a.NotNil(owner) {
		a.Equal([]string{second.ID}, owner.Playlists)
	}
}

func testDeletePlaylistByOtherUser(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	joe := mustCreateUser(t, ctx, s, joeMama())
	jane := mustCreateUser(t, ctx, s, janeDoe())
	created := mustCreatePlaylist(t, ctx, s, testPlaylist(), joe.ID)

	a.ErrorIs(s.DeletePlaylist(ctx, created.ID, jane.ID), store.ErrAuthorization)

	p, err := s.GetPlaylistByID(ctx, created.ID, joe.ID)
	a.NoError(err)
	a.NotNil(p)
}

func testPlaylistPairs(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	joe := mustCreateUser(t, ctx, s, joeMama())
	jane := mustCreateUser(t, ctx, s, janeDoe())

	var want []models.PlaylistPair

	for i := 0; i < 5; i++ {
		p := mustCreatePlaylist(t, ctx, s, &models.Playlist{Name: fmt.Sprintf("Joe %d", i)}, joe.ID)
		want = append(want, models.PlaylistPair{ID: p.ID, Name: p.Name})

		mustCreatePlaylist(t, ctx, s, &models.Playlist{Name: fmt.Sprintf("Jane %d", i)}, jane.ID)
	}

	pairs, err := s.GetPlaylistPairs(ctx, joe.ID)
	a.NoError(err)
	a.Equal(want, pairs)

	janePairs, err := s.GetPlaylistPairs(ctx, jane.ID)
	a.NoError(err)
	a.Len(janePairs, 5)
	for _, pair := range janePairs {
		a.Contains(pair.Name, "Jane")
	}
}

func testPlaylistPairsEmpty(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	joe := mustCreateUser(t, ctx, s, joeMama())
	jane := mustCreateUser(t, ctx, s, janeDoe())
	mustCreatePlaylist(t, ctx, s, &models.Playlist{Name: "Jane's"}, jane.ID)

	pairs, err := s.GetPlaylistPairs(ctx, joe.ID)
	a.NoError(err)
	a.NotNil(pairs)
	a.Len(pairs, 0)

	for _, id := range MissingIDs {
		pairs, err := s.GetPlaylistPairs(ctx, id)
		a.NoError(err, id)
		a.NotNil(pairs, id)
		a.Len(pairs, 0, id)
	}
}

func testGetPlaylists(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	joe := mustCreateUser(t, ctx, s, joeMama())
	jane := mustCreateUser(t, ctx, s, janeDoe())

	first := mustCreatePlaylist(t, ctx, s, testPlaylist(), joe.ID)
	second := mustCreatePlaylist(t, ctx, s, &models.Playlist{Name: "Jane's"}, jane.ID)

	playlists, err := s.GetPlaylists(ctx)
	if a.NoError(err) && a.Len(playlists, 2) {
		a.Equal(first.ID, playlists[0].ID)
		a.Equal(first.Songs, playlists[0].Songs)
		a.Equal(second.ID, playlists[1].ID)
		a.Equal("jane.doe@x.edu", playlists[1].OwnerEmail)
		a.NotNil(playlists[1].Songs)
	}
}

func testGetPlaylistsEmpty(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	mustCreateUser(t, ctx, s, joeMama())

	playlists, err := s.GetPlaylists(ctx)
	a.ErrorIs(err, store.ErrNotFound)
	a.Nil(playlists)
}

func testTimestamps(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	ctx = ctxclock.WithClock(ctx, ctxclock.NewStaticClock(testTime))

	joe := mustCreateUser(t, ctx, s, joeMama())
	a.True(testTime.Equal(joe.CreatedAt), "%s != %s", testTime, joe.CreatedAt)

	created := mustCreatePlaylist(t, ctx, s, testPlaylist(), joe.ID)
	a.True(testTime.Equal(created.CreatedAt))
	a.True(testTime.Equal(created.UpdatedAt))

	later := testTime.Add(time.Hour)
	ctx = ctxclock.WithClock(ctx, ctxclock.NewStaticClock(later))

	_, err := s.UpdatePlaylist(ctx, created.ID, joe.ID, &models.PlaylistUpdate{Name: "Later"})
	a.NoError(err)

	p, err := s.GetPlaylistByID(ctx, created.ID, joe.ID)
	if a.NoError(err) && a.NotNil(p) {
		a.True(testTime.Equal(p.CreatedAt), "%s != %s", testTime, p.CreatedAt)
		a.True(later.Equal(p.UpdatedAt), "%s != %s", later, p.UpdatedAt)
	}
}

func testClear(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	joe := mustCreateUser(t, ctx, s, joeMama())
	mustCreatePlaylist(t, ctx, s, testPlaylist(), joe.ID)

	a.NoError(s.Clear(ctx))

	u, err := s.GetUserByEmail(ctx, "joe.mama@x.edu")
	a.NoError(err)
	a.Nil(u)

	_, err = s.GetPlaylists(ctx)
	a.ErrorIs(err, store.ErrNotFound)

	mustCreateUser(t, ctx, s, joeMama())
}

func testFixtures(t *testing.T, ctx context.Context, s store.Store) {
	a := assert.New(t)

	mustCreateUser(t, ctx, s, janeDoe())

	report, err := store.LoadFixtures(ctx, s, &store.Fixtures{
		Users: []models.User{*joeMama(), *joeMama(), *janeDoe()},
		Playlists: []models.Playlist{
			*testPlaylist(),
			{Name: "Orphan", OwnerEmail: "nobody@x.edu"},
			{Name: "Jane's", OwnerEmail: "jane.doe@x.edu"},
		},
	})
	if a.NoError(err) {
		a.Equal(&store.FixtureReport{Users: 2, Playlists: 2, Failed: 2}, report)
	}

	joe, err := s.GetUserByEmail(ctx, "joe.mama@x.edu")
	require.NoError(t, err)
	require.NotNil(t, joe)

	pairs, err := s.GetPlaylistPairs(ctx, joe.ID)
	if a.NoError(err) && a.Len(pairs, 1) {
		a.Equal("Test Playlist", pairs[0].Name)
	}

	playlists, err := s.GetPlaylists(ctx)
	a.NoError(err)
	a.Len(playlists, 2)
}
