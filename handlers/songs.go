package handlers

import (
	"errors"
	"net/http"

	"fknsrs.biz/p/playlister/internal/ctxlogger"
	"fknsrs.biz/p/playlister/internal/httputil"
	"fknsrs.biz/p/playlister/internal/songlookup"
)

func LookupSong(rw http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(rw, r); !ok {
		return
	}

	song, err := songlookup.GetClient(r.Context()).Lookup(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		if errors.Is(err, songlookup.ErrBadInput) {
			httputil.WriteJSON(rw, r, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "Not a YouTube video url or id"})
			return
		}

		ctxlogger.GetLogger(r.Context()).WithError(err).Warn("could not look up song")
		httputil.WriteJSON(rw, r, http.StatusBadGateway, map[string]interface{}{"success": false, "error": "Song lookup failed"})
		return
	}

	httputil.WriteJSON(rw, r, http.StatusOK, map[string]interface{}{"success": true, "song": song})
}
