// Package httpcache is a RoundTripper that keeps successful GET responses in
// a bbolt bucket for a fixed time.
package httpcache

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.etcd.io/bbolt"

	"fknsrs.biz/p/playlister/internal/ctxclock"
	"fknsrs.biz/p/playlister/internal/ctxlogger"
)

const DefaultMaxAge = time.Hour * 24

type Entry struct {
	StoredAt   time.Time
	URL        string
	Status     string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *Entry) response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        e.Status,
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

type Storage interface {
	Fetch(ctx context.Context, u *url.URL) (*Entry, error)
	Save(ctx context.Context, u *url.URL, e *Entry) error
}

var bucketName = []byte("http_cache")

type BBoltStorage struct {
	db *bbolt.DB
}

func NewBBoltStorage(db *bbolt.DB) *BBoltStorage {
	return &BBoltStorage{db: db}
}

func key(u *url.URL) []byte {
	h := sha1.Sum([]byte(u.String()))
	return []byte(u.Host + "/" + hex.EncodeToString(h[:]))
}

func (s *BBoltStorage) Fetch(ctx context.Context, u *url.URL) (*Entry, error) {
	var e *Entry

	// values are only valid inside the transaction, so decode before it ends
	if err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}

		d := b.Get(key(u))
		if d == nil {
			return nil
		}

		var v Entry
		if err := gob.NewDecoder(bytes.NewReader(d)).Decode(&v); err != nil {
			return err
		}
		e = &v

		return nil
	}); err != nil {
		return nil, fmt.Errorf("httpcache.BBoltStorage.Fetch: %w", err)
	}

	return e, nil
}

func (s *BBoltStorage) Save(ctx context.Context, u *url.URL, e *Entry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return fmt.Errorf("httpcache.BBoltStorage.Save: could not encode entry: %w", err)
	}

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}

		return b.Put(key(u), buf.Bytes())
	}); err != nil {
		return fmt.Errorf("httpcache.BBoltStorage.Save: %w", err)
	}

	return nil
}

type Transport struct {
	transport http.RoundTripper
	storage   Storage
	maxAge    time.Duration
}

func NewTransport(transport http.RoundTripper, storage Storage, maxAge time.Duration) *Transport {
	if transport == nil {
		transport = http.DefaultTransport
	}

	if maxAge == 0 {
		maxAge = DefaultMaxAge
	}

	return &Transport{
		transport: transport,
		storage:   storage,
		maxAge:    maxAge,
	}
}

func now(ctx context.Context) time.Time {
	if c := ctxclock.GetClock(ctx); c != nil {
		if t, err := c.Now(); err == nil {
			return t
		}
	}

	return time.Now()
}

// RoundTrip serves fresh entries from storage. Storage failures are logged
// and the request goes upstream as if there were no cache.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.transport.RoundTrip(req)
	}

	ctx := req.Context()
	l := ctxlogger.GetLogger(ctx).WithField("http_cache.url", req.URL.String())

	e, err := t.storage.Fetch(ctx, req.URL)
	if err != nil {
		l.WithError(err).Warn("could not read http cache")
	}
	if e != nil && now(ctx).Sub(e.StoredAt) < t.maxAge {
		l.Debug("http cache hit")
		return e.response(req), nil
	}

	res, err := t.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		return res, nil
	}

	defer res.Body.Close()

	d, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("httpcache.Transport.RoundTrip: could not read body: %w", err)
	}

	e = &Entry{
		StoredAt:   now(ctx),
		URL:        req.URL.String(),
		Status:     res.Status,
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       d,
	}

	if err := t.storage.Save(ctx, req.URL, e); err != nil {
		l.WithError(err).Warn("could not write http cache")
	}

	return e.response(req), nil
}
