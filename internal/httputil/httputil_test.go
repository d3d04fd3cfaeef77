package httputil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func TestDecodeBody(t *testing.T) {
	for _, tc := range []struct {
		name        string
		contentType string
		body        string
		want        loginBody
		err         bool
	}{
		{"json", "application/json", `{"email":"joe.mama@x.edu","password":"hunter22"}`, loginBody{"joe.mama@x.edu", "hunter22"}, false},
		{"json by default", "", `{"email":"joe.mama@x.edu"}`, loginBody{Email: "joe.mama@x.edu"}, false},
		{"form", "application/x-www-form-urlencoded", url.Values{"email": {"joe.mama@x.edu"}, "password": {"hunter22"}}.Encode(), loginBody{"joe.mama@x.edu", "hunter22"}, false},
		{"form with unknown field", "application/x-www-form-urlencoded", "email=joe.mama%40x.edu&extra=1", loginBody{Email: "joe.mama@x.edu"}, false},
		{"bad json", "application/json", `{"email":`, loginBody{}, true},
		{"unsupported", "text/plain", "hello", loginBody{}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			r := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tc.body))
			if tc.contentType != "" {
				r.Header.Set("content-type", tc.contentType)
			}

			var got loginBody
			err := DecodeBody(r, &got)
			if tc.err {
				a.Error(err)
				return
			}

			if a.NoError(err) {
				a.Equal(tc.want, got)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	a := assert.New(t)

	rw := httptest.NewRecorder()
	WriteError(rw, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusBadRequest, "UNAUTHORIZED")

	a.Equal(http.StatusBadRequest, rw.Code)
	a.Equal("application/json; charset=utf-8", rw.Header().Get("content-type"))
	a.JSONEq(`{"errorMessage":"UNAUTHORIZED"}`, rw.Body.String())
}
