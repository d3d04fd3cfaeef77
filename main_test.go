package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/playlister/internal/boltstore"
	"fknsrs.biz/p/playlister/internal/ctxlogger"
	"fknsrs.biz/p/playlister/internal/ctxstore"
	"fknsrs.biz/p/playlister/internal/store"
)

func TestRunAllWorkers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	errBoom := errors.New("boom")

	for _, tc := range []struct {
		name    string
		workers []worker
		err     error
	}{
		{
			name: "failure stops the others",
			workers: []worker{
				{name: "waits", run: func(ctx context.Context) error { <-ctx.Done(); return nil }},
				{name: "fails", run: func(ctx context.Context) error { return errBoom }},
			},
			err: errBoom,
		},
		{
			name: "panics are errors",
			workers: []worker{
				{name: "waits", run: func(ctx context.Context) error { <-ctx.Done(); return nil }},
				{name: "panics", run: func(ctx context.Context) error { panic(errBoom) }},
			},
			err: errBoom,
		},
		{
			name: "clean exit",
			workers: []worker{
				{name: "quick", run: func(ctx context.Context) error { return nil }},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			ctx, cancel := context.WithTimeout(ctxlogger.WithLogger(context.Background(), logger), 5*time.Second)
			defer cancel()

			err := runAllWorkers(ctx, tc.workers)
			if tc.err == nil {
				a.NoError(err)
				return
			}

			a.ErrorIs(err, tc.err)
			a.NoError(ctx.Err(), "workers should stop before the test timeout")
		})
	}
}

func TestResetFixtures(t *testing.T) {
	a := assert.New(t)

	logger, _ := test.NewNullLogger()

	dir := t.TempDir()

	s, err := boltstore.Open(context.Background(), store.Options{DSN: filepath.Join(dir, "test.bolt")})
	require.NoError(t, err)
	defer s.Close()

	path := filepath.Join(dir, "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
users:
  - firstName: Joe
    lastName: Mama
    email: joe.mama@x.edu
    passwordHash: hash
playlists:
  - name: Joe's Jams
    ownerEmail: joe.mama@x.edu
  - name: Orphan
    ownerEmail: nobody@x.edu
`), 0600))

	ctx := ctxstore.WithStore(ctxlogger.WithLogger(context.Background(), logger), s)

	a.NoError(resetFixtures(ctx, path))

	playlists, err := s.GetPlaylists(ctx)
	if a.NoError(err) && a.Len(playlists, 1) {
		a.Equal("Joe's Jams", playlists[0].Name)
	}

	a.Error(resetFixtures(ctx, filepath.Join(dir, "missing.yaml")))
}
