package httpcache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"fknsrs.biz/p/playlister/internal/ctxclock"
)

func TestTransport(t *testing.T) {
	var hits int32

	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)

		if r.URL.Path == "/missing" {
			http.NotFound(rw, r)
			return
		}

		rw.Header().Set("x-test", "yes")
		io.WriteString(rw, "body for "+r.URL.Path)
	}))
	defer srv.Close()

	db, err := bbolt.Open(filepath.Join(t.TempDir(), "cache.bolt"), 0600, nil)
	require.NoError(t, err)
	defer db.Close()

	client := &http.Client{Transport: NewTransport(nil, NewBBoltStorage(db), time.Hour)}

	start := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)

	get := func(at time.Time, path string) (int, string, string) {
		ctx := ctxclock.WithClock(context.Background(), ctxclock.NewStaticClock(at))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)

		res, err := client.Do(req)
		require.NoError(t, err)
		defer res.Body.Close()

		d, err := io.ReadAll(res.Body)
		require.NoError(t, err)

		return res.StatusCode, res.Header.Get("x-test"), string(d)
	}

	for _, tc := range []struct {
		name   string
		at     time.Time
		path   string
		status int
		body   string
		hits   int32
	}{
		{"first fetch goes upstream", start, "/watch", http.StatusOK, "body for /watch", 1},
		{"second fetch is cached", start.Add(time.Minute), "/watch", http.StatusOK, "body for /watch", 1},
		{"stale entry is refreshed", start.Add(2 * time.Hour), "/watch", http.StatusOK, "body for /watch", 2},
		{"errors are not cached", start, "/missing", http.StatusNotFound, "404 page not found\n", 3},
		{"errors are not cached again", start, "/missing", http.StatusNotFound, "404 page not found\n", 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			status, header, body := get(tc.at, tc.path)
			a.Equal(tc.status, status)
			a.Equal(tc.body, body)
			a.Equal(tc.hits, atomic.LoadInt32(&hits))
			if status == http.StatusOK {
				a.Equal("yes", header)
			}
		})
	}
}

func TestBBoltStorageMissing(t *testing.T) {
	a := assert.New(t)

	db, err := bbolt.Open(filepath.Join(t.TempDir(), "cache.bolt"), 0600, nil)
	require.NoError(t, err)
	defer db.Close()

	req := httptest.NewRequest(http.MethodGet, "http://example.com/watch?v=dQw4w9WgXcQ", nil)

	e, err := NewBBoltStorage(db).Fetch(context.Background(), req.URL)
	a.NoError(err)
	a.Nil(e)
}
