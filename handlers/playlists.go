package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"fknsrs.biz/p/playlister/internal/auth"
	"fknsrs.biz/p/playlister/internal/ctxlogger"
	"fknsrs.biz/p/playlister/internal/ctxstore"
	"fknsrs.biz/p/playlister/internal/httputil"
	"fknsrs.biz/p/playlister/internal/store"
	"fknsrs.biz/p/playlister/models"
)

const (
	messageUnauthorized = "UNAUTHORIZED"
	messageAuthError    = "authentication error"
	messageNotUpdated   = "Playlist not updated!"
)

// requireUser writes the unauthorized response when there is no signed in
// caller.
func requireUser(rw http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		httputil.WriteError(rw, r, http.StatusBadRequest, messageUnauthorized)
		return "", false
	}

	return userID, true
}

func CreatePlaylist(rw http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(rw, r)
	if !ok {
		return
	}

	l := ctxlogger.GetLogger(r.Context())

	var input models.Playlist
	if err := httputil.DecodeBody(r, &input); err != nil {
		l.WithError(err).Info("could not decode playlist")
		httputil.WriteError(rw, r, http.StatusBadRequest, "Playlist Not Created!")
		return
	}

	p, err := ctxstore.MustGetStore(r.Context()).CreatePlaylist(r.Context(), &input, userID)
	if err != nil {
		l.WithError(err).Info("could not create playlist")
		httputil.WriteError(rw, r, http.StatusBadRequest, "Playlist Not Created!")
		return
	}

	httputil.WriteJSON(rw, r, http.StatusCreated, map[string]interface{}{"playlist": p})
}

func DeletePlaylist(rw http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(rw, r)
	if !ok {
		return
	}

	if err := ctxstore.MustGetStore(r.Context()).DeletePlaylist(r.Context(), mux.Vars(r)["id"], userID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			httputil.WriteError(rw, r, http.StatusNotFound, "Playlist not found!")
		case errors.Is(err, store.ErrAuthorization):
			httputil.WriteError(rw, r, http.StatusBadRequest, messageAuthError)
		default:
			ctxlogger.GetLogger(r.Context()).WithError(err).Error("could not delete playlist")
			httputil.WriteError(rw, r, http.StatusInternalServerError, "Playlist not deleted!")
		}

		return
	}

	httputil.WriteJSON(rw, r, http.StatusOK, map[string]interface{}{"playlist": struct{}{}})
}

func GetPlaylistByID(rw http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(rw, r)
	if !ok {
		return
	}

	p, err := ctxstore.MustGetStore(r.Context()).GetPlaylistByID(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			httputil.WriteJSON(rw, r, http.StatusNotFound, map[string]interface{}{"success": false, "error": "Playlist not found"})
		case errors.Is(err, store.ErrAuthorization):
			httputil.WriteJSON(rw, r, http.StatusBadRequest, map[string]interface{}{"success": false, "error": messageAuthError})
		default:
			ctxlogger.GetLogger(r.Context()).WithError(err).Error("could not get playlist")
			httputil.WriteJSON(rw, r, http.StatusInternalServerError, map[string]interface{}{"success": false, "error": "Playlist not loaded"})
		}

		return
	}

	httputil.WriteJSON(rw, r, http.StatusOK, map[string]interface{}{"success": true, "playlist": p})
}

func GetPlaylistPairs(rw http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(rw, r)
	if !ok {
		return
	}

	pairs, err := ctxstore.MustGetStore(r.Context()).GetPlaylistPairs(r.Context(), userID)
	if err != nil {
		ctxlogger.GetLogger(r.Context()).WithError(err).Warn("could not get playlist pairs")
		httputil.WriteError(rw, r, http.StatusBadRequest, messageAuthError)
		return
	}

	httputil.WriteJSON(rw, r, http.StatusOK, map[string]interface{}{"success": true, "idNamePairs": pairs})
}

func GetPlaylists(rw http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(rw, r); !ok {
		return
	}

	playlists, err := ctxstore.MustGetStore(r.Context()).GetPlaylists(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteJSON(rw, r, http.StatusNotFound, map[string]interface{}{"success": false, "error": "Playlists not found"})
			return
		}

		ctxlogger.GetLogger(r.Context()).WithError(err).Error("could not get playlists")
		httputil.WriteJSON(rw, r, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "Playlists could not be loaded"})
		return
	}

	httputil.WriteJSON(rw, r, http.StatusOK, map[string]interface{}{"success": true, "data": playlists})
}

type updatePlaylistInput struct {
	Playlist *models.PlaylistUpdate `json:"playlist"`
}

func UpdatePlaylist(rw http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(rw, r)
	if !ok {
		return
	}

	var input updatePlaylistInput
	if err := httputil.DecodeBody(r, &input); err != nil || input.Playlist == nil {
		httputil.WriteJSON(rw, r, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "You must provide a body to update"})
		return
	}

	p, err := ctxstore.MustGetStore(r.Context()).UpdatePlaylist(r.Context(), mux.Vars(r)["id"], userID, input.Playlist)
	if err != nil {
		if errors.Is(err, store.ErrAuthorization) {
			httputil.WriteError(rw, r, http.StatusBadRequest, messageAuthError)
			return
		}

		ctxlogger.GetLogger(r.Context()).WithError(err).Info("could not update playlist")

		reason := messageNotUpdated
		switch {
		case errors.Is(err, store.ErrNotFound):
			reason = "Playlist not found"
		case errors.Is(err, store.ErrCreation):
			reason = "Playlist is not valid"
		}

		httputil.WriteJSON(rw, r, http.StatusNotFound, map[string]interface{}{"error": reason, "message": messageNotUpdated})
		return
	}

	httputil.WriteJSON(rw, r, http.StatusOK, map[string]interface{}{"success": true, "id": p.ID, "message": "Playlist updated!"})
}
