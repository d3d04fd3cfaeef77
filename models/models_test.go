package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserValidate(t *testing.T) {
	valid := User{FirstName: "Joe", LastName: "Mama", Email: "joe.mama@x.edu", PasswordHash: "hash"}

	for _, tc := range []struct {
		name string
		mod  func(u *User)
		err  error
	}{
		{"valid", func(u *User) {}, nil},
		{"no first name", func(u *User) { u.FirstName = "" }, ErrMissingField},
		{"no last name", func(u *User) { u.LastName = " " }, ErrMissingField},
		{"no email", func(u *User) { u.Email = "" }, ErrMissingField},
		{"no password hash", func(u *User) { u.PasswordHash = "" }, ErrMissingField},
		{"bad email", func(u *User) { u.Email = "joe.mama" }, ErrInvalidEmail},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			u := valid
			tc.mod(&u)

			err := u.Validate()
			if tc.err == nil {
				a.NoError(err)
			} else {
				a.ErrorIs(err, tc.err)
			}
		})
	}
}

func TestPlaylistValidateDefaultsSongs(t *testing.T) {
	a := assert.New(t)

	p := Playlist{Name: "Test Playlist"}
	a.NoError(p.Validate())
	a.NotNil(p.Songs)
	a.Len(p.Songs, 0)

	a.ErrorIs((&Playlist{}).Validate(), ErrMissingName)
	a.ErrorIs((&PlaylistUpdate{Name: "  "}).Validate(), ErrMissingName)
}

func TestSongsScan(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  interface{}
		out  Songs
		err  string
	}{
		{"nil", nil, Songs{}, ""},
		{"empty string", "[]", Songs{}, ""},
		{"null", "null", Songs{}, ""},
		{"bytes", []byte(`[{"title":"Song 1","artist":"Artist1","youTubeId":"123"}]`), Songs{{"Song 1", "Artist1", "123"}}, ""},
		{"bad json", "[", nil, "could not decode"},
		{"bad type", 12, nil, "could not scan input type of int"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			var s Songs
			err := s.Scan(tc.src)
			if tc.err == "" {
				a.NoError(err)
				a.Equal(tc.out, s)
			} else {
				a.ErrorContains(err, tc.err)
			}
		})
	}
}

func TestSongsValue(t *testing.T) {
	a := assert.New(t)

	v, err := Songs(nil).Value()
	a.NoError(err)
	a.Equal("[]", v)

	v, err = Songs{{"Song 1", "Artist1", "123"}}.Value()
	a.NoError(err)
	a.JSONEq(`[{"title":"Song 1","artist":"Artist1","youTubeId":"123"}]`, v.(string))
}

func TestUserJSONHidesPasswordHash(t *testing.T) {
	a := assert.New(t)

	d, err := json.Marshal(User{ID: "1", Email: "joe.mama@x.edu", PasswordHash: "secret"})
	a.NoError(err)
	a.NotContains(string(d), "secret")
	a.Contains(string(d), `"_id":"1"`)
}
