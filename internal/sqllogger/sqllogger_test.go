package sqllogger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrintQuery(t *testing.T) {
	at := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		name  string
		query string
		args  []interface{}
		want  string
	}{
		{"sqlite style", "select * from playlists\n  where id = ?1 and name = ?2", []interface{}{int64(4), "Test Playlist"}, "select * from playlists where id = 4 and name = 'Test Playlist'"},
		{"postgres style", "update playlists set updated_at = $1 where id = $2", []interface{}{at, int64(1)}, "update playlists set updated_at = '2023-07-01T12:00:00Z' where id = 1"},
		{"null", "insert into users (a) values ($1)", []interface{}{nil}, "insert into users (a) values (NULL)"},
		{"out of range", "select ?3", []interface{}{int64(1)}, "select ?3"},
		{"binary", "select ?1", []interface{}{[]byte{0x00, 0x01}}, "select [2 bytes of binary data ('\\x00')]"},
		{"null string", "select ?1", []interface{}{sql.NullString{}}, "select NULL"},
		{"bool", "select ?1", []interface{}{true}, "select true"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			var args []driver.NamedValue
			for i, v := range tc.args {
				args = append(args, driver.NamedValue{Ordinal: i + 1, Value: v})
			}

			a.Equal(tc.want, printQuery(tc.query, args))
		})
	}
}

func TestBasicFilter(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	f := &BasicFilter{
		LogSlowerThan:            time.Millisecond * 100,
		IgnorePackageStackFrames: []string{"database/sql"},
		IgnoreFunctionQueries:    []string{"main.quiet"},
	}

	a.NoError(f.PreCollection(ctx, &Stats{Stack: []runtime.Frame{{Function: "main.loud"}}}))
	a.Equal(ErrCancelLogging, f.PreCollection(ctx, &Stats{Stack: []runtime.Frame{{Function: "main.quiet"}}}))

	a.Equal(ErrCancelLogging, f.PreLogging(ctx, &Stats{Duration: time.Millisecond}))
	a.NoError(f.PreLogging(ctx, &Stats{Duration: time.Second}))

	hide, err := f.HideStackFrame(ctx, 0, runtime.Frame{Function: "database/sql.(*DB).QueryContext"})
	a.NoError(err)
	a.True(hide)

	hide, err = f.HideStackFrame(ctx, 0, runtime.Frame{Function: "fknsrs.biz/p/playlister/handlers.GetPlaylistByID"})
	a.NoError(err)
	a.False(hide)

	a.Equal(ErrCancelLogging, (&BasicFilter{CancelAll: true}).PreCollection(ctx, &Stats{}))
}

type nopDriver struct{}

func (nopDriver) Open(name string) (driver.Conn, error) {
	return nil, fmt.Errorf("nopDriver: cannot open %q", name)
}

func TestRegisterIsIdempotent(t *testing.T) {
	a := assert.New(t)

	a.NotPanics(func() {
		a.Equal("sqllogger-test:logged", Register("sqllogger-test", nopDriver{}))
		a.Equal("sqllogger-test:logged", Register("sqllogger-test", nopDriver{}))
	})

	a.Contains(sql.Drivers(), "sqllogger-test:logged")
}

func TestRegisterKeepsFilterSettings(t *testing.T) {
	a := assert.New(t)

	fast := Register("sqllogger-filters", nopDriver{}, DefaultFilter(time.Millisecond))
	again := Register("sqllogger-filters", nopDriver{}, DefaultFilter(time.Millisecond))
	slow := Register("sqllogger-filters", nopDriver{}, DefaultFilter(time.Second))

	a.Equal("sqllogger-filters:logged", fast)
	a.Equal(fast, again)
	a.Equal("sqllogger-filters:logged:2", slow)
	a.Equal(slow, Register("sqllogger-filters", nopDriver{}, DefaultFilter(time.Second)))

	a.Contains(sql.Drivers(), fast)
	a.Contains(sql.Drivers(), slow)
}
