// Package pgstore keeps users and playlists in postgres through gorm. The
// connection is opened with the pgx database/sql driver so it can be wrapped
// by sqllogger like the sqlite engine.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fknsrs.biz/p/playlister/internal/sqllogger"
	"fknsrs.biz/p/playlister/internal/store"
	"fknsrs.biz/p/playlister/models"
)

func init() {
	store.Register("postgresql", func(ctx context.Context, opts store.Options) (store.Store, error) {
		s, err := Open(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Timestamps come from store.Now so the automatic gorm ones are off.
type userRow struct {
	ID           uint      `gorm:"primaryKey"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false;not null"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false;not null"`
	FirstName    string    `gorm:"not null"`
	LastName     string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`

	Playlists []playlistRow `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (userRow) TableName() string { return "users" }

func (r *userRow) model(playlists []string) *models.User {
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

type playlistRow struct {
	ID         uint         `gorm:"primaryKey"`
	CreatedAt  time.Time    `gorm:"autoCreateTime:false;not null"`
	UpdatedAt  time.Time    `gorm:"autoUpdateTime:false;not null"`
	UserID     uint         `gorm:"not null;index"`
	OwnerEmail string       `gorm:"not null"`
	Name       string       `gorm:"not null"`
	Songs      models.Songs `gorm:"type:jsonb;not null"`
}

func (playlistRow) TableName() string { return "playlists" }

func (r *playlistRow) model() *models.Playlist {
	return &models.Playlist{
		ID:         formatID(r.ID),
		Name:       r.Name,
		OwnerEmail: r.OwnerEmail,
		Songs:      append(models.Songs{}, r.Songs...),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseID(s string) (uint, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}

	return uint(id), true
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type Store struct {
	sqlDB *sql.DB
	db    *gorm.DB
}

func Open(ctx context.Context, opts store.Options) (*Store, error) {
	driverName := "pgx"
	if opts.LogQueries {
		driverName = sqllogger.Register("pgx", stdlib.GetDefaultDriver(), sqllogger.DefaultFilter(opts.LogQueriesSlowerThan, "fknsrs.biz/p/playlister/internal/pgstore"))
	}

	sqlDB, err := sql.Open(driverName, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgstore.Open: could not open database: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pgstore.Open: could not ping database: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pgstore.Open: could not open gorm: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&userRow{}, &playlistRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pgstore.Open: could not migrate schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, db: db}, nil
}

func (s *Store) Close() error {
	return s.sqlDB.Close()
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"playlists", "users"} {
			if err := tx.Exec("delete from " + table).Error; err != nil {
				return fmt.Errorf("could not clear %s: %w", table, err)
			}
		}

		return nil
	}); err != nil {
		return fmt.Errorf("pgstore.Store.Clear: %w", err)
	}

	return nil
}

func take[T any](tx *gorm.DB, query string, args ...interface{}) (*T, error) {
	var v T
	if err := tx.Where(query, args...).Take(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return &v, nil
}

func findUserByID(tx *gorm.DB, id string) (*userRow, error) {
	n, ok := parseID(id)
	if !ok {
		return nil, nil
	}

	return take[userRow](tx, "id = ?", n)
}

func userModel(tx *gorm.DB, u *userRow) (*models.User, error) {
	if u == nil {
		return nil, nil
	}

	var ids []uint
	if err := tx.Model(&playlistRow{}).Where("user_id = ?", u.ID).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("could not list playlists for user %d: %w", u.ID, err)
	}

	playlists := make([]string, len(ids))
	for i, id := range ids {
		playlists[i] = formatID(id)
	}

	return u.model(playlists), nil
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
		return nil, fmt.Errorf("pgstore.Store.CreateUser: could not get current time: %w", err)
	}

	u := userRow{
		CreatedAt:    now,
		UpdatedAt:    now,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := take[userRow](tx, "email = ?", u.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return store.Creation("email %q is already registered", u.Email)
		}

		if err := tx.Create(&u).Error; err != nil {
			if isUniqueViolation(err) {
				return store.Creation("email %q is already registered", u.Email)
			}

			return err
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("pgstore.Store.CreateUser: %w", err)
	}

	return u.model(nil), nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	tx := s.db.WithContext(ctx)

	u, err := findUserByID(tx, id)
	if err != nil {
		return nil, fmt.Errorf("pgstore.Store.GetUserByID: %w", err)
	}

	v, err := userModel(tx, u)
	if err != nil {
		return nil, fmt.Errorf("pgstore.Store.GetUserByID: %w", err)
	}

	return v, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	tx := s.db.WithContext(ctx)

	u, err := take[userRow](tx, "email = ?", email)
	if err != nil {
		return nil, fmt.Errorf("pgstore.Store.GetUserByEmail: %w", err)
	}

	v, err := userModel(tx, u)
	if err != nil {
		return nil, fmt.Errorf("pgstore.Store.GetUserByEmail: %w", err)
	}

	return v, nil
}

func ownedPlaylist(ctx context.Context, tx *gorm.DB, id, requesterID string) (*playlistRow, error) {
	return store.Owned(
		ctx,
		id,
		requesterID,
		func(ctx context.Context, id string) (*playlistRow, bool, error) {
			n, ok := parseID(id)
			if !ok {
				return nil, false, nil
			}

			p, err := take[playlistRow](tx, "id = ?", n)
			return p, p != nil, err
		},
		func(ctx context.Context, p *playlistRow) (string, bool, error) {
			u, err := take[userRow](tx, "id = ?", p.UserID)
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
		return nil, fmt.Errorf("pgstore.Store.CreatePlaylist: could not get current time: %w", err)
	}

	var p playlistRow

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, err := findUserByID(tx, ownerID)
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

		p = playlistRow{
			CreatedAt:  now,
			UpdatedAt:  now,
			UserID:     owner.ID,
			OwnerEmail: prepared.OwnerEmail,
			Name:       prepared.Name,
			Songs:      prepared.Songs,
		}

		return tx.Create(&p).Error
	}); err != nil {
		return nil, fmt.Errorf("pgstore.Store.CreatePlaylist: %w", err)
	}

	return p.model(), nil
}

func (s *Store) DeletePlaylist(ctx context.Context, id, requesterID string) error {
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := ownedPlaylist(ctx, tx, id, requesterID)
		if err != nil {
			return err
		}

		return tx.Delete(&playlistRow{}, p.ID).Error
	}); err != nil {
		return fmt.Errorf("pgstore.Store.DeletePlaylist: %w", err)
	}

	return nil
}

func (s *Store) GetPlaylistByID(ctx context.Context, id, requesterID string) (*models.Playlist, error) {
	p, err := ownedPlaylist(ctx, s.db.WithContext(ctx), id, requesterID)
	if err != nil {
		return nil, fmt.Errorf("pgstore.Store.GetPlaylistByID: %w", err)
	}

	return p.model(), nil
}

func (s *Store) GetPlaylistPairs(ctx context.Context, requesterID string) ([]models.PlaylistPair, error) {
	pairs := []models.PlaylistPair{}

	userID, ok := parseID(requesterID)
	if !ok {
		return pairs, nil
	}

	var rows []playlistRow
	if err := s.db.WithContext(ctx).Select("id", "name").Where("user_id = ?", userID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("pgstore.Store.GetPlaylistPairs: %w", err)
	}

	for _, p := range rows {
		pairs = append(pairs, models.PlaylistPair{ID: formatID(p.ID), Name: p.Name})
	}

	return pairs, nil
}

func (s *Store) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	var rows []playlistRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("pgstore.Store.GetPlaylists: %w", err)
	}

	if len(rows) == 0 {
		return nil, store.NotFound("no playlists")
	}

	playlists := make([]models.Playlist, len(rows))
	for i := range rows {
		playlists[i] = *rows[i].model()
	}

	return playlists, nil
}

func (s *Store) UpdatePlaylist(ctx context.Context, id, requesterID string, update *models.PlaylistUpdate) (*models.Playlist, error) {
	now, err := store.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore.Store.UpdatePlaylist: could not get current time: %w", err)
	}

	var p *playlistRow

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := ownedPlaylist(ctx, tx, id, requesterID)
		if err != nil {
			return err
		}

		u, err := store.CheckUpdate(update)
		if err != nil {
			return err
		}

		if err := tx.Model(v).Updates(map[string]interface{}{
			"name":       u.Name,
			"songs":      u.Songs,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}

		v.Name = u.Name
		v.Songs = u.Songs
		v.UpdatedAt = now

		p = v

		return nil
	}); err != nil {
		return nil, fmt.Errorf("pgstore.Store.UpdatePlaylist: %w", err)
	}

	return p.model(), nil
}
