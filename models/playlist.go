package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Song struct {
	Title     string `json:"title" yaml:"title" bson:"title"`
	Artist    string `json:"artist" yaml:"artist" bson:"artist"`
	YouTubeID string `json:"youTubeId" yaml:"youTubeId" bson:"youTubeId"`
}

// Songs is stored as a JSON array in relational engines.
type Songs []Song

func (s Songs) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}

	d, err := json.Marshal([]Song(s))
	if err != nil {
		return nil, fmt.Errorf("models.Songs.Value: could not encode songs: %w", err)
	}

	return string(d), nil
}

func (s *Songs) Scan(src interface{}) error {
	switch src := src.(type) {
	case nil:
		*s = Songs{}
		return nil
	case []byte:
		return s.decode(src)
	case string:
		return s.decode([]byte(src))
	default:
		return fmt.Errorf("models.Songs.Scan: could not scan input type of %T", src)
	}
}

func (s *Songs) decode(d []byte) error {
	var a []Song
	if err := json.Unmarshal(d, &a); err != nil {
		return fmt.Errorf("models.Songs.Scan: could not decode input as JSON: %w", err)
	}

	if a == nil {
		a = []Song{}
	}

	*s = a

	return nil
}

type Playlist struct {
	ID         string    `json:"_id" yaml:"-"`
	Name       string    `json:"name" yaml:"name"`
	OwnerEmail string    `json:"ownerEmail" yaml:"ownerEmail"`
	Songs      Songs     `json:"songs" yaml:"songs"`
	CreatedAt  time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt  time.Time `json:"updatedAt" yaml:"-"`
}

var ErrMissingName = fmt.Errorf("playlist name is required")

// Validate checks required fields and replaces a nil song list with an empty
// one, so an unset list is never stored or serialised as null.
func (p *Playlist) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("models.Playlist.Validate: %w", ErrMissingName)
	}

	if p.Songs == nil {
		p.Songs = Songs{}
	}

	return nil
}

type PlaylistUpdate struct {
	Name  string `json:"name"`
	Songs Songs  `json:"songs"`
}

func (u *PlaylistUpdate) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("models.PlaylistUpdate.Validate: %w", ErrMissingName)
	}

	if u.Songs == nil {
		u.Songs = Songs{}
	}

	return nil
}

type PlaylistPair struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}
