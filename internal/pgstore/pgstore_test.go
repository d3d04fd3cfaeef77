package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/playlister/internal/store"
	"fknsrs.biz/p/playlister/internal/store/storetest"
)

// The contract suite shares one database, so each subtest starts from Clear.
func TestContract(t *testing.T) {
	dsn := os.Getenv("POSTGRESQL_URI")
	if dsn == "" {
		t.Skip("POSTGRESQL_URI is not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(context.Background(), store.Options{DSN: dsn})
		require.NoError(t, err)
		require.NoError(t, s.Clear(context.Background()))

		t.Cleanup(func() {
			s.Clear(context.Background())
			s.Close()
		})

		return s
	})
}

func TestParseID(t *testing.T) {
	a := assert.New(t)

	for _, id := range []string{"", "does-not-exist", "0", "-1", "64b000000000000000000000", "99999999999999999999"} {
		_, ok := parseID(id)
		a.False(ok, id)
	}

	id, ok := parseID("17")
	a.True(ok)
	a.Equal(uint(17), id)
	a.Equal("17", formatID(id))

	for _, s := range []string{"4294967296", "9223372036854775807"} {
		id, ok := parseID(s)
		if a.True(ok, s) {
			a.Equal(s, formatID(id))
		}
	}
}
