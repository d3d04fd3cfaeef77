// Package sqlitestore is the default engine: users and playlists in two
// sqlite tables, with playlists pointing at their owner through user_id.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"fknsrs.biz/p/sorm"
	"fknsrs.biz/p/sorm/qsorm"
	sb "fknsrs.biz/p/sqlbuilder"
	"github.com/mattn/go-sqlite3"

	"fknsrs.biz/p/playlister/internal/sqlbuilderutil"
	"fknsrs.biz/p/playlister/internal/sqllogger"
	"fknsrs.biz/p/playlister/internal/store"
	"fknsrs.biz/p/playlister/models"
)

func init() {
	sorm.SetParameterPrefix("?")

	store.Register("sqlite", func(ctx context.Context, opts store.Options) (store.Store, error) {
		s, err := Open(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

var playlistTable = sqlbuilderutil.MustMakeTable(playlistRecord{})

// sqlite reads a negative limit as no limit at all.
var noLimit = sb.OffsetLimit(nil, sb.Literal("-1"))

type userRecord struct {
	ID           int `sql:",table:users"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
}

func (r *userRecord) model(playlists []string) *models.User {
	if playlists == nil {
		playlists = []string{}
	}

	return &models.User{
		ID:           formatID(r.ID),
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Playlists:    playlists,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type playlistRecord struct {
	ID         int `sql:",table:playlists"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	UserID     int
	OwnerEmail string
	Name       string
	Songs      models.Songs
}

func (r *playlistRecord) model() *models.Playlist {
	songs := append(models.Songs{}, r.Songs...)

	return &models.Playlist{
		ID:         formatID(r.ID),
		Name:       r.Name,
		OwnerEmail: r.OwnerEmail,
		Songs:      songs,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func formatID(id int) string {
	return strconv.Itoa(id)
}

// parseID reports false for anything that could not have come from
// formatID, which callers treat as a missing record.
func parseID(s string) (int, bool) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, false
	}

	return id, true
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type txFunc func(ctx context.Context, tx *sql.Tx) error

func usingTx(ctx context.Context, db *sql.DB, fn txFunc) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, opts store.Options) (*Store, error) {
	driverName := "sqlite3"
	if opts.LogQueries {
		driverName = sqllogger.Register("sqlite3", &sqlite3.SQLiteDriver{}, sqllogger.DefaultFilter(opts.LogQueriesSlowerThan, "fknsrs.biz/p/playlister/internal/sqlitestore"))
	}

	db, err := sql.Open(driverName, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Open: could not open database: %w", err)
	}

	// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY and
	// keeps :memory: databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "pragma foreign_keys = on"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore.Open: could not enable foreign keys: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore.Open: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Clear(ctx context.Context) error {
	if err := usingTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		for _, table := range []string{"playlists", "users"} {
			if _, err := tx.ExecContext(ctx, "delete from "+table); err != nil {
				return fmt.Errorf("could not clear %s: %w", table, err)
			}
		}

		return nil
	}); err != nil {
		return fmt.Errorf("sqlitestore.Store.Clear: %w", err)
	}

	return nil
}

func findUser(ctx context.Context, q querier, where string, args ...interface{}) (*userRecord, error) {
	var u userRecord
	if err := sorm.FindFirstWhere(ctx, q, &u, where, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &u, nil
}

func findUserByID(ctx context.Context, q querier, id string) (*userRecord, error) {
	n, ok := parseID(id)
	if !ok {
		return nil, nil
	}

	return findUser(ctx, q, "where id = ?", n)
}

func playlistIDs(ctx context.Context, q querier, userID int) ([]string, error) {
	rows, err := q.QueryContext(ctx, "select id from playlists where user_id = ?1 order by id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, formatID(id))
	}

	return ids, rows.Err()
}

func (s *Store) userModel(ctx context.Context, u *userRecord) (*models.User, error) {
	if u == nil {
		return nil, nil
	}

	ids, err := playlistIDs(ctx, s.db, u.ID)
	if err != nil {
		return nil, fmt.Errorf("could not list playlists for user %d: %w", u.ID, err)
	}

	return u.model(ids), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	return false
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
		return nil, fmt.Errorf("sqlitestore.Store.CreateUser: could not get current time: %w", err)
	}

	u := userRecord{
		CreatedAt:    now,
		UpdatedAt:    now,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
	}

	if err := usingTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		existing, err := findUser(ctx, tx, "where email = ?", u.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return store.Creation("email %q is already registered", u.Email)
		}

		if err := sorm.CreateRecord(ctx, tx, &u); err != nil {
			if isUniqueViolation(err) {
				return store.Creation("email %q is already registered", u.Email)
			}

			return err
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.CreateUser: %w", err)
	}

	return u.model(nil), nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	u, err := findUserByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.GetUserByID: %w", err)
	}

	v, err := s.userModel(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.GetUserByID: %w", err)
	}

	return v, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := findUser(ctx, s.db, "where email = ?", email)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.GetUserByEmail: %w", err)
	}

	v, err := s.userModel(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.GetUserByEmail: %w", err)
	}

	return v, nil
}

func ownedPlaylist(ctx context.Context, q querier, id, requesterID string) (*playlistRecord, error) {
	return store.Owned(
		ctx,
		id,
		requesterID,
		func(ctx context.Context, id string) (*playlistRecord, bool, error) {
			n, ok := parseID(id)
			if !ok {
				return nil, false, nil
			}

			var p playlistRecord
			if err := sorm.FindFirstWhere(ctx, q, &p, "where id = ?", n); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, false, nil
				}

				return nil, false, err
			}

			return &p, true, nil
		},
		func(ctx context.Context, p *playlistRecord) (string, bool, error) {
			u, err := findUser(ctx, q, "where id = ?", p.UserID)
			if err != nil || u == nil {
				return "", false, err
			}

			return formatID(u.ID), true, nil
		},
	)
}

func (s *Store) CreatePlaylist(ctx context.Context, playlist *models.Playlist, ownerID string) (*models.Playlist, error) {
	now, err := store.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.CreatePlaylist: could not get current time: %w", err)
	}

	var p playlistRecord

	if err := usingTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		owner, err := findUserByID(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if owner == nil {
			return store.OwnerNotFound(ownerID)
		}

		prepared, err := store.PreparePlaylist(playlist, owner.model(nil))
		if err != nil {
			return err
		}

		p = playlistRecord{
			CreatedAt:  now,
			UpdatedAt:  now,
			UserID:     owner.ID,
			OwnerEmail: prepared.OwnerEmail,
			Name:       prepared.Name,
			Songs:      prepared.Songs,
		}

		return sorm.CreateRecord(ctx, tx, &p)
	}); err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.CreatePlaylist: %w", err)
	}

	return p.model(), nil
}

func (s *Store) DeletePlaylist(ctx context.Context, id, requesterID string) error {
	if err := usingTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		p, err := ownedPlaylist(ctx, tx, id, requesterID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, "delete from playlists where id = ?1", p.ID)
		return err
	}); err != nil {
		return fmt.Errorf("sqlitestore.Store.DeletePlaylist: %w", err)
	}

	return nil
}

func (s *Store) GetPlaylistByID(ctx context.Context, id, requesterID string) (*models.Playlist, error) {
	p, err := ownedPlaylist(ctx, s.db, id, requesterID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.GetPlaylistByID: %w", err)
	}

	return p.model(), nil
}

func (s *Store) GetPlaylistPairs(ctx context.Context, requesterID string) ([]models.PlaylistPair, error) {
	pairs := []models.PlaylistPair{}

	userID, ok := parseID(requesterID)
	if !ok {
		return pairs, nil
	}

	var records []playlistRecord
	if err := qsorm.FindWhere(
		ctx,
		s.db,
		&records,
		sb.BinaryOperator("=", playlistTable.C("UserID"), sb.Bind(userID)),
		[]sb.AsOrderingTerm{sb.OrderAsc(playlistTable.C("ID"))},
		noLimit,
	); err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.GetPlaylistPairs: %w", err)
	}

	for _, p := range records {
		pairs = append(pairs, models.PlaylistPair{ID: formatID(p.ID), Name: p.Name})
	}

	return pairs, nil
}

func (s *Store) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	var records []playlistRecord
	if err := qsorm.FindWhere(
		ctx,
		s.db,
		&records,
		nil,
		[]sb.AsOrderingTerm{sb.OrderAsc(playlistTable.C("ID"))},
		noLimit,
	); err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.GetPlaylists: %w", err)
	}

	if len(records) == 0 {
		return nil, store.NotFound("no playlists")
	}

	playlists := make([]models.Playlist, len(records))
	for i := range records {
		playlists[i] = *records[i].model()
	}

	return playlists, nil
}

func (s *Store) UpdatePlaylist(ctx context.Context, id, requesterID string, update *models.PlaylistUpdate) (*models.Playlist, error) {
	now, err := store.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.UpdatePlaylist: could not get current time: %w", err)
	}

	var p *playlistRecord

	if err := usingTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
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

		return sorm.SaveRecord(ctx, tx, v)
	}); err != nil {
		return nil, fmt.Errorf("sqlitestore.Store.UpdatePlaylist: %w", err)
	}

	return p.model(), nil
}
