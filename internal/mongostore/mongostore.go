// Package mongostore keeps users and playlists in two MongoDB collections.
// Playlists reference their owner by email and each user document carries
// the ids of its playlists.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"fknsrs.biz/p/playlister/internal/ctxlogger"
	"fknsrs.biz/p/playlister/internal/store"
	"fknsrs.biz/p/playlister/models"
)

func init() {
	store.Register("mongodb", func(ctx context.Context, opts store.Options) (store.Store, error) {
		s, err := Open(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

const defaultDatabase = "playlister"

type userDocument struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty"`
	FirstName    string               `bson:"firstName"`
	LastName     string               `bson:"lastName"`
	Email        string               `bson:"email"`
	PasswordHash string               `bson:"passwordHash"`
	Playlists    []primitive.ObjectID `bson:"playlists"`
	CreatedAt    time.Time            `bson:"createdAt"`
	UpdatedAt    time.Time            `bson:"updatedAt"`
}

func (d *userDocument) model() *models.User {
	playlists := make([]string, len(d.Playlists))
	for i, id := range d.Playlists {
		playlists[i] = id.Hex()
	}

	return &models.User{
		ID:           d.ID.Hex(),
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Playlists:    playlists,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type playlistDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Name       string             `bson:"name"`
	OwnerEmail string             `bson:"ownerEmail"`
	Songs      []models.Song      `bson:"songs"`
	CreatedAt  time.Time          `bson:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt"`
}

func (d *playlistDocument) model() *models.Playlist {
	return &models.Playlist{
		ID:         d.ID.Hex(),
		Name:       d.Name,
		OwnerEmail: d.OwnerEmail,
		Songs:      append(models.Songs{}, d.Songs...),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// parseID reports false for anything that is not an ObjectID in hex, which
// callers treat as a missing document.
func parseID(s string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, false
	}

	return id, true
}

// DatabaseName picks the database from the path of a connection URI.
func DatabaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultDatabase
	}

	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}

	return defaultDatabase
}

func newMonitor(slowerThan time.Duration) *event.CommandMonitor {
	finished := func(ctx context.Context, e event.CommandFinishedEvent, err error) {
		if slowerThan != 0 && e.Duration < slowerThan && err == nil {
			return
		}

		l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
			"mongo.command":    e.CommandName,
			"mongo.database":   e.DatabaseName,
			"mongo.request_id": e.RequestID,
			"mongo.duration":   e.Duration,
		})

		if err != nil {
			l.WithError(err).Warn("mongo command failed")
			return
		}

		l.Info("mongo command")
	}

	return &event.CommandMonitor{
		Started: func(ctx context.Context, e *event.CommandStartedEvent) {
			ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
				"mongo.command":    e.CommandName,
				"mongo.database":   e.DatabaseName,
				"mongo.request_id": e.RequestID,
				"mongo.content":    e.Command.String(),
			}).Debug("mongo command started")
		},
		Succeeded: func(ctx context.Context, e *event.CommandSucceededEvent) {
			finished(ctx, e.CommandFinishedEvent, nil)
		},
		Failed: func(ctx context.Context, e *event.CommandFailedEvent) {
			finished(ctx, e.CommandFinishedEvent, errors.New(e.Failure))
		},
	}
}

type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	users     *mongo.Collection
	playlists *mongo.Collection
}

func Open(ctx context.Context, opts store.Options) (*Store, error) {
	clientOptions := options.Client().ApplyURI(opts.DSN)
	if opts.LogQueries {
		clientOptions.SetMonitor(newMonitor(opts.LogQueriesSlowerThan))
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongostore.Open: could not connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore.Open: could not ping server: %w", err)
	}

	db := client.Database(DatabaseName(opts.DSN))

	s := &Store{
		client:    client,
		db:        db,
		users:     db.Collection("users"),
		playlists: db.Collection("playlists"),
	}

	if err := s.createIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore.Open: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("could not create users email index: %w", err)
	}

	if _, err := s.playlists.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ownerEmail", Value: 1}, {Key: "_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("could not create playlists owner index: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	return s.client.Disconnect(ctx)
}

func (s *Store) Clear(ctx context.Context) error {
	for _, c := range []*mongo.Collection{s.playlists, s.users} {
		if _, err := c.DeleteMany(ctx, bson.D{}); err != nil {
			return fmt.Errorf("mongostore.Store.Clear: could not clear %s: %w", c.Name(), err)
		}
	}

	return nil
}

func findOne[T any](ctx context.Context, c *mongo.Collection, filter interface{}) (*T, error) {
	var v T
	if err := c.FindOne(ctx, filter).Decode(&v); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}

		return nil, err
	}

	return &v, nil
}

func (s *Store) findUserByID(ctx context.Context, id string) (*userDocument, error) {
	oid, ok := parseID(id)
	if !ok {
		return nil, nil
	}

	return findOne[userDocument](ctx, s.users, bson.M{"_id": oid})
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user == nil {
		return nil, store.Creation("no user data")
	}

	if err := user.Validate(); err != nil {
		return nil, store.Creation("invalid user: %s", err)
	}

	now, err := store.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("mongostore.Store.CreateUser: could not get current time: %w", err)
	}

	u := userDocument{
		ID:           primitive.NewObjectID(),
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Playlists:    []primitive.ObjectID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.users.InsertOne(ctx, &u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("mongostore.Store.CreateUser: %w", store.Creation("email %q is already registered", u.Email))
		}

		return nil, fmt.Errorf("mongostore.Store.CreateUser: %w", err)
	}

	return u.model(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	u, err := s.findUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mongostore.Store.GetUserByID: %w", err)
	}
	if u == nil {
		return nil, nil
	}

	return u.model(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := findOne[userDocument](ctx, s.users, bson.M{"email": email})
	if err != nil {
		return nil, fmt.Errorf("mongostore.Store.GetUserByEmail: %w", err)
	}
	if u == nil {
		return nil, nil
	}

	return u.model(), nil
}

func (s *Store) ownedPlaylist(ctx context.Context, id, requesterID string) (*playlistDocument, error) {
	return store.Owned(
		ctx,
		id,
		requesterID,
		func(ctx context.Context, id string) (*playlistDocument, bool, error) {
			oid, ok := parseID(id)
			if !ok {
				return nil, false, nil
			}

			p, err := findOne[playlistDocument](ctx, s.playlists, bson.M{"_id": oid})
			return p, p != nil, err
		},
		func(ctx context.Context, p *playlistDocument) (string, bool, error) {
			u, err := findOne[userDocument](ctx, s.users, bson.M{"email": p.OwnerEmail})
			if err != nil || u == nil {
				return "", false, err
			}

			return u.ID.Hex(), true, nil
		},
	)
}

func (s *Store) CreatePlaylist(ctx context.Context, playlist *models.Playlist, ownerID string) (*models.Playlist, error) {
	owner, err := s.findUserByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("mongostore.Store.CreatePlaylist: %w", err)
	}
	if owner == nil {
		return nil, fmt.Errorf("mongostore.Store.CreatePlaylist: %w", store.OwnerNotFound(ownerID))
	}

	prepared, err := store.PreparePlaylist(playlist, owner.model())
	if err != nil {
		return nil, fmt.Errorf("mongostore.Store.CreatePlaylist: %w", err)
	}

	now, err := store.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("mongostore.Store.CreatePlaylist: could not get current time: %w", err)
	}

	p := playlistDocument{
		ID:         primitive.NewObjectID(),
		Name:       prepared.Name,
		OwnerEmail: prepared.OwnerEmail,
		Songs:      prepared.Songs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if _, err := s.playlists.InsertOne(ctx, &p); err != nil {
		return nil, fmt.Errorf("mongostore.Store.CreatePlaylist: %w", err)
	}

	if _, err := s.users.UpdateOne(ctx, bson.M{"_id": owner.ID}, bson.M{
		"$push": bson.M{"playlists": p.ID},
		"$set":  bson.M{"updatedAt": now},
	}); err != nil {
		return nil, fmt.Errorf("mongostore.Store.CreatePlaylist: could not attach playlist to owner: %w", err)
	}

	return p.model(), nil
}

func (s *Store) DeletePlaylist(ctx context.Context, id, requesterID string) error {
	p, err := s.ownedPlaylist(ctx, id, requesterID)
	if err != nil {
		return fmt.Errorf("mongostore.Store.DeletePlaylist: %w", err)
	}

	if _, err := s.playlists.DeleteOne(ctx, bson.M{"_id": p.ID}); err != nil {
		return fmt.Errorf("mongostore.Store.DeletePlaylist: %w", err)
	}

	if _, err := s.users.UpdateOne(ctx, bson.M{"email": p.OwnerEmail}, bson.M{
		"$pull": bson.M{"playlists": p.ID},
	}); err != nil {
		return fmt.Errorf("mongostore.Store.DeletePlaylist: could not detach playlist from owner: %w", err)
	}

	return nil
}

func (s *Store) GetPlaylistByID(ctx context.Context, id, requesterID string) (*models.Playlist, error) {
	p, err := s.ownedPlaylist(ctx, id, requesterID)
	if err != nil {
		return nil, fmt.Errorf("mongostore.Store.GetPlaylistByID: %w", err)
	}

	return p.model(), nil
}

func (s *Store) findPlaylists(ctx context.Context, filter interface{}) ([]playlistDocument, error) {
	cur, err := s.playlists.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var a []playlistDocument
	if err := cur.All(ctx, &a); err != nil {
		return nil, err
	}

	return a, nil
}

func (s *Store) GetPlaylistPairs(ctx context.Context, requesterID string) ([]models.PlaylistPair, error) {
	pairs := []models.PlaylistPair{}

	u, err := s.findUserByID(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("mongostore.Store.GetPlaylistPairs: %w", err)
	}
	if u == nil {
		return pairs, nil
	}

	a, err := s.findPlaylists(ctx, bson.M{"ownerEmail": u.Email})
	if err != nil {
		return nil, fmt.Errorf("mongostore.Store.GetPlaylistPairs: %w", err)
	}

	for _, p := range a {
		pairs = append(pairs, models.PlaylistPair{ID: p.ID.Hex(), Name: p.Name})
	}

	return pairs, nil
}

func (s *Store) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	a, err := s.findPlaylists(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("mongostore.Store.GetPlaylists: %w", err)
	}

	if len(a) == 0 {
		return nil, store.NotFound("no playlists")
	}

	playlists := make([]models.Playlist, len(a))
	for i := range a {
		playlists[i] = *a[i].model()
	}

	return playlists, nil
}

func (s *Store) UpdatePlaylist(ctx context.Context, id, requesterID string, update *models.PlaylistUpdate) (*models.Playlist, error) {
	now, err := store.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("mongostore.Store.UpdatePlaylist: could not get current time: %w", err)
	}

	p, err := s.ownedPlaylist(ctx, id, requesterID)
	if err != nil {
		return nil, fmt.Errorf("mongostore.Store.UpdatePlaylist: %w", err)
	}

	u, err := store.CheckUpdate(update)
	if err != nil {
		return nil, fmt.Errorf("mongostore.Store.UpdatePlaylist: %w", err)
	}

	p.Name = u.Name
	p.Songs = u.Songs
	p.UpdatedAt = now

	if _, err := s.playlists.UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{
		"name":      p.Name,
		"songs":     p.Songs,
		"updatedAt": p.UpdatedAt,
	}}); err != nil {
		return nil, fmt.Errorf("mongostore.Store.UpdatePlaylist: %w", err)
	}

	return p.model(), nil
}
