package httputil

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"

	"github.com/monoculum/formam"

	"fknsrs.biz/p/playlister/internal/ctxlogger"
)

var (
	ErrUnsupportedMediaType = fmt.Errorf("httputil: unsupported media type")
)

// WriteJSON writes v with the given status. Encoding failures can only be
// logged since the status line is already out.
func WriteJSON(rw http.ResponseWriter, r *http.Request, status int, v interface{}) {
	rw.Header().Set("content-type", "application/json; charset=utf-8")
	rw.WriteHeader(status)

	if err := json.NewEncoder(rw).Encode(v); err != nil {
		ctxlogger.GetLogger(r.Context()).WithError(err).Warn("could not encode response body")
	}
}

func WriteError(rw http.ResponseWriter, r *http.Request, status int, message string) {
	WriteJSON(rw, r, status, map[string]interface{}{"errorMessage": message})
}

var formDecoder = formam.NewDecoder(&formam.DecoderOptions{TagName: "json", IgnoreUnknownKeys: true})

// DecodeBody reads a JSON or form encoded request body into out. Form
// fields are matched on json tags, so one struct serves both encodings.
func DecodeBody(r *http.Request, out interface{}) error {
	mediaType := "application/json"
	if v := r.Header.Get("content-type"); v != "" {
		t, _, err := mime.ParseMediaType(v)
		if err != nil {
			return fmt.Errorf("httputil.DecodeBody: could not parse content type: %w", err)
		}
		mediaType = t
	}

	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(out); err != nil {
			return fmt.Errorf("httputil.DecodeBody: could not decode json: %w", err)
		}
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil && err != http.ErrNotMultipart {
			return fmt.Errorf("httputil.DecodeBody: could not parse form: %w", err)
		}

		if err := formDecoder.Decode(r.Form, out); err != nil {
			return fmt.Errorf("httputil.DecodeBody: could not decode form: %w", err)
		}
	default:
		return fmt.Errorf("httputil.DecodeBody: %w: %s", ErrUnsupportedMediaType, mediaType)
	}

	return nil
}
