package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

func Routes(m *mux.Router) {
	m.Methods(http.MethodPost).Path("/auth/register").HandlerFunc(RegisterUser)
	m.Methods(http.MethodPost).Path("/auth/login").HandlerFunc(LoginUser)
	m.Methods(http.MethodGet).Path("/auth/logout").HandlerFunc(LogoutUser)
	m.Methods(http.MethodGet).Path("/auth/loggedIn").HandlerFunc(LoggedIn)

	m.Methods(http.MethodPost).Path("/store/playlist/").HandlerFunc(CreatePlaylist)
	m.Methods(http.MethodDelete).Path("/store/playlist/{id}").HandlerFunc(DeletePlaylist)
	m.Methods(http.MethodGet).Path("/store/playlist/{id}").HandlerFunc(GetPlaylistByID)
	m.Methods(http.MethodPut).Path("/store/playlist/{id}").HandlerFunc(UpdatePlaylist)
	m.Methods(http.MethodGet).Path("/store/playlistpairs/").HandlerFunc(GetPlaylistPairs)
	m.Methods(http.MethodGet).Path("/store/playlists/").HandlerFunc(GetPlaylists)

	m.Methods(http.MethodGet).Path("/store/songs/lookup").HandlerFunc(LookupSong)
}
