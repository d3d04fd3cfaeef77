// Package boltstore keeps users and playlists as JSON documents in a bbolt
// file. Playlists reference their owner by email and each user document
// carries the ids of its playlists.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"fknsrs.biz/p/playlister/internal/store"
	"fknsrs.biz/p/playlister/models"
)

func init() {
	store.Register("bolt", func(ctx context.Context, opts store.Options) (store.Store, error) {
		s, err := Open(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

var (
	usersBucket        = []byte("users")
	usersByEmailBucket = []byte("users_by_email")
	playlistsBucket    = []byte("playlists")

	allBuckets = [][]byte{usersBucket, usersByEmailBucket, playlistsBucket}
)

type userDocument struct {
	ID           string    `json:"_id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Playlists    []string  `json:"playlists"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (d *userDocument) model() *models.User {
	return &models.User{
		ID:           d.ID,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Playlists:    append([]string{}, d.Playlists...),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type playlistDocument struct {
	// Seq orders playlists by insertion, since bucket keys are random ids.
	Seq        uint64       `json:"seq"`
	ID         string       `json:"_id"`
	Name       string       `json:"name"`
	OwnerEmail string       `json:"ownerEmail"`
	Songs      models.Songs `json:"songs"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

func (d *playlistDocument) model() *models.Playlist {
	songs := append(models.Songs{}, d.Songs...)

	return &models.Playlist{
		ID:         d.ID,
		Name:       d.Name,
		OwnerEmail: d.OwnerEmail,
		Songs:      songs,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type Store struct {
	db *bbolt.DB
}

func Open(ctx context.Context, opts store.Options) (*Store, error) {
	db, err := bbolt.Open(opts.DSN, 0600, &bbolt.Options{Timeout: time.Second * 5})
	if err != nil {
		return nil, fmt.Errorf("boltstore.Open: could not open database: %w", err)
	}

	if err := db.Update(createBuckets); err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore.Open: could not create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func createBuckets(tx *bbolt.Tx) error {
	for _, name := range allBuckets {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return fmt.Errorf("could not create bucket %q: %w", name, err)
		}
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
				return fmt.Errorf("could not delete bucket %q: %w", name, err)
			}
		}

		return createBuckets(tx)
	}); err != nil {
		return fmt.Errorf("boltstore.Store.Clear: %w", err)
	}

	return nil
}

// document helpers

func get(b *bbolt.Bucket, id string, out interface{}) (bool, error) {
	if id == "" {
		return false, nil
	}

	d := b.Get([]byte(id))
	if d == nil {
		return false, nil
	}

	if err := json.Unmarshal(d, out); err != nil {
		return false, fmt.Errorf("could not decode document %q: %w", id, err)
	}

	return true, nil
}

func put(b *bbolt.Bucket, id string, in interface{}) error {
	d, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("could not encode document %q: %w", id, err)
	}

	if err := b.Put([]byte(id), d); err != nil {
		return fmt.Errorf("could not write document %q: %w", id, err)
	}

	return nil
}

func getUser(tx *bbolt.Tx, id string) (*userDocument, error) {
	var u userDocument
	ok, err := get(tx.Bucket(usersBucket), id, &u)
	if err != nil || !ok {
		return nil, err
	}

	return &u, nil
}

func getUserByEmail(tx *bbolt.Tx, email string) (*userDocument, error) {
	id := tx.Bucket(usersByEmailBucket).Get([]byte(email))
	if id == nil {
		return nil, nil
	}

	return getUser(tx, string(id))
}

func getPlaylist(tx *bbolt.Tx, id string) (*playlistDocument, bool, error) {
	var p playlistDocument
	ok, err := get(tx.Bucket(playlistsBucket), id, &p)
	if err != nil || !ok {
		return nil, false, err
	}

	return &p, true, nil
}

func ownedPlaylist(ctx context.Context, tx *bbolt.Tx, id, requesterID string) (*playlistDocument, error) {
	return store.Owned(
		ctx,
		id,
		requesterID,
		func(ctx context.Context, id string) (*playlistDocument, bool, error) {
			return getPlaylist(tx, id)
		},
		func(ctx context.Context, p *playlistDocument) (string, bool, error) {
			u, err := getUserByEmail(tx, p.OwnerEmail)
			if err != nil || u == nil {
				return "", false, err
			}

			return u.ID, true, nil
		},
	)
}

func allPlaylists(tx *bbolt.Tx, filter func(p *playlistDocument) bool) ([]*playlistDocument, error) {
	var a []*playlistDocument

	if err := tx.Bucket(playlistsBucket).ForEach(func(k, v []byte) error {
		var p playlistDocument
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("could not decode document %q: %w", k, err)
		}

		if filter == nil || filter(&p) {
			a = append(a, &p)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	sort.Slice(a, func(i, j int) bool { return a[i].Seq < a[j].Seq })

	return a, nil
}

// users

func (s *Store) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user == nil {
		return nil, store.Creation("no user data")
	}

	if err := user.Validate(); err != nil {
		return nil, store.Creation("invalid user: %s", err)
	}

	now, err := store.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("boltstore.Store.CreateUser: could not get current time: %w", err)
	}

	u := userDocument{
		ID:           uuid.NewString(),
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Playlists:    []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		byEmail := tx.Bucket(usersByEmailBucket)

		if byEmail.Get([]byte(u.Email)) != nil {
			return store.Creation("email %q is already registered", u.Email)
		}

		if err := put(tx.Bucket(usersBucket), u.ID, &u); err != nil {
			return err
		}

		return byEmail.Put([]byte(u.Email), []byte(u.ID))
	}); err != nil {
		return nil, fmt.Errorf("boltstore.Store.CreateUser: %w", err)
	}

	return u.model(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u *userDocument

	if err := s.db.View(func(tx *bbolt.Tx) error {
		v, err := getUser(tx, id)
		u = v
		return err
	}); err != nil {
		return nil, fmt.Errorf("boltstore.Store.GetUserByID: %w", err)
	}

	if u == nil {
		return nil, nil
	}

	return u.model(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u *userDocument

	if err := s.db.View(func(tx *bbolt.Tx) error {
		v, err := getUserByEmail(tx, email)
		u = v
		return err
	}); err != nil {
		return nil, fmt.Errorf("boltstore.Store.GetUserByEmail: %w", err)
	}

	if u == nil {
		return nil, nil
	}

	return u.model(), nil
}

// playlists

func (s *Store) CreatePlaylist(ctx context.Context, playlist *models.Playlist, ownerID string) (*models.Playlist, error) {
	now, err := store.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("boltstore.Store.CreatePlaylist: could not get current time: %w", err)
	}

	var p *playlistDocument

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		owner, err := getUser(tx, ownerID)
		if err != nil {
			return err
		}
		if owner == nil {
			return store.OwnerNotFound(ownerID)
		}

		prepared, err := store.PreparePlaylist(playlist, owner.model())
		if err != nil {
			return err
		}

		b := tx.Bucket(playlistsBucket)

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("could not get next sequence: %w", err)
		}

		p = &playlistDocument{
			Seq:        seq,
			ID:         uuid.NewString(),
			Name:       prepared.Name,
			OwnerEmail: prepared.OwnerEmail,
			Songs:      prepared.Songs,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		if err := put(b, p.ID, p); err != nil {
			return err
		}

		owner.Playlists = append(owner.Playlists, p.ID)
		owner.UpdatedAt = now

		return put(tx.Bucket(usersBucket), owner.ID, owner)
	}); err != nil {
		return nil, fmt.Errorf("boltstore.Store.CreatePlaylist: %w", err)
	}

	return p.model(), nil
}

func (s *Store) DeletePlaylist(ctx context.Context, id, requesterID string) error {
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		p, err := ownedPlaylist(ctx, tx, id, requesterID)
		if err != nil {
			return err
		}

		if err := tx.Bucket(playlistsBucket).Delete([]byte(p.ID)); err != nil {
			return fmt.Errorf("could not delete document %q: %w", p.ID, err)
		}

		owner, err := getUserByEmail(tx, p.OwnerEmail)
		if err != nil || owner == nil {
			return err
		}

		remaining := []string{}
		for _, e := range owner.Playlists {
			if e != p.ID {
				remaining = append(remaining, e)
			}
		}
		owner.Playlists = remaining

		return put(tx.Bucket(usersBucket), owner.ID, owner)
	}); err != nil {
		return fmt.Errorf("boltstore.Store.DeletePlaylist: %w", err)
	}

	return nil
}

func (s *Store) GetPlaylistByID(ctx context.Context, id, requesterID string) (*models.Playlist, error) {
	var p *playlistDocument

	if err := s.db.View(func(tx *bbolt.Tx) error {
		v, err := ownedPlaylist(ctx, tx, id, requesterID)
		p = v
		return err
	}); err != nil {
		return nil, fmt.Errorf("boltstore.Store.GetPlaylistByID: %w", err)
	}

	return p.model(), nil
}

func (s *Store) GetPlaylistPairs(ctx context.Context, requesterID string) ([]models.PlaylistPair, error) {
	pairs := []models.PlaylistPair{}

	if err := s.db.View(func(tx *bbolt.Tx) error {
		u, err := getUser(tx, requesterID)
		if err != nil || u == nil {
			return err
		}

		a, err := allPlaylists(tx, func(p *playlistDocument) bool { return p.OwnerEmail == u.Email })
		if err != nil {
			return err
		}

		for _, p := range a {
			pairs = append(pairs, models.PlaylistPair{ID: p.ID, Name: p.Name})
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("boltstore.Store.GetPlaylistPairs: %w", err)
	}

	return pairs, nil
}

func (s *Store) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	var playlists []models.Playlist

	if err := s.db.View(func(tx *bbolt.Tx) error {
		a, err := allPlaylists(tx, nil)
		if err != nil {
			return err
		}

		for _, p := range a {
			playlists = append(playlists, *p.model())
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("boltstore.Store.GetPlaylists: %w", err)
	}

	if len(playlists) == 0 {
		return nil, store.NotFound("no playlists")
	}

	return playlists, nil
}

func (s *Store) UpdatePlaylist(ctx context.Context, id, requesterID string, update *models.PlaylistUpdate) (*models.Playlist, error) {
	now, err := store.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("boltstore.Store.UpdatePlaylist: could not get current time: %w", err)
	}

	var p *playlistDocument

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		v, err := ownedPlaylist(ctx, tx, id, requesterID)
		if err != nil {
			return err
		}

		u, err := store.CheckUpdate(update)
		if err != nil {
			return err
		}

		v.Name = u.Name
		v.Songs = u.Songs
		v.UpdatedAt = now

		p = v

		return put(tx.Bucket(playlistsBucket), v.ID, v)
	}); err != nil {
		return nil, fmt.Errorf("boltstore.Store.UpdatePlaylist: %w", err)
	}

	return p.model(), nil
}
