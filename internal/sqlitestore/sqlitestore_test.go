package sqlitestore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/playlister/internal/ctxlogger"
	"fknsrs.biz/p/playlister/internal/store"
	"fknsrs.biz/p/playlister/internal/store/storetest"
	"fknsrs.biz/p/playlister/models"
)

func openTestStore(t *testing.T, opts store.Options) *Store {
	if opts.DSN == "" {
		opts.DSN = filepath.Join(t.TempDir(), "test.db")
	}

	s, err := Open(context.Background(), opts)
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTestStore(t, store.Options{}) })
}

func TestParseID(t *testing.T) {
	for _, tc := range []struct {
		in string
		id int
		ok bool
	}{
		{"1", 1, true},
		{"42", 42, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{"64b000000000000000000000", 0, false},
	} {
		t.Run(tc.in, func(t *testing.T) {
			a := assert.New(t)

			id, ok := parseID(tc.in)
			a.Equal(tc.ok, ok)
			a.Equal(tc.id, id)
		})
	}
}

func TestMigrations(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	migrations, err := loadMigrations()
	require.NoError(t, err)
	if a.Len(migrations, 2) {
		a.Equal(1, migrations[0].Version)
		a.Equal("create_users", migrations[0].Name)
		a.Equal(2, migrations[1].Version)
		a.Equal("create_playlists", migrations[1].Name)
	}

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "migrations.db"))
	require.NoError(t, err)
	defer db.Close()

	a.NoError(Migrate(ctx, db))
	a.NoError(Migrate(ctx, db))

	var count int
	a.NoError(db.QueryRowContext(ctx, "select count(*) from schema_migrations").Scan(&count))
	a.Equal(2, count)

	a.NoError(Rollback(ctx, db))

	_, err = db.ExecContext(ctx, "select 1 from playlists")
	a.Error(err)
	_, err = db.ExecContext(ctx, "select 1 from users")
	a.NoError(err)

	a.NoError(Migrate(ctx, db))
	_, err = db.ExecContext(ctx, "select 1 from playlists")
	a.NoError(err)
}

func TestSplitStatements(t *testing.T) {
	a := assert.New(t)

	a.Equal([]string{
		"create table a (\nid integer\n)",
		"create index b on a (id)",
	}, splitStatements("-- leading\ncreate table a (\n  id integer -- trailing\n);\n\ncreate index b on a (id);\n"))
}

func TestSongsColumn(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	s := openTestStore(t, store.Options{})

	u, err := s.CreateUser(ctx, &models.User{FirstName: "Joe", LastName: "Mama", Email: "joe.mama@x.edu", PasswordHash: "hash"})
	require.NoError(t, err)

	p, err := s.CreatePlaylist(ctx, &models.Playlist{Name: "Test Playlist"}, u.ID)
	require.NoError(t, err)

	var songs string
	a.NoError(s.db.QueryRowContext(ctx, "select songs from playlists where id = ?1", p.ID).Scan(&songs))
	a.Equal("[]", songs)
}

func TestQueryLogging(t *testing.T) {
	a := assert.New(t)

	logger, hook := test.NewNullLogger()
	ctx := ctxlogger.WithLogger(context.Background(), logger)

	s := openTestStore(t, store.Options{LogQueries: true})

	hook.Reset()

	_, err := s.GetUserByEmail(ctx, "nobody@x.edu")
	a.NoError(err)

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Message == "sql query" && e.Level == logrus.InfoLevel {
			a.Contains(e.Data["sql.query.content"], "users")
			found = true
		}
	}
	a.True(found, "expected a logged query")
}
