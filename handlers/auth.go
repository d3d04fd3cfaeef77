package handlers

import (
	"errors"
	"net/http"
	"strings"

	"fknsrs.biz/p/playlister/internal/auth"
	"fknsrs.biz/p/playlister/internal/ctxlogger"
	"fknsrs.biz/p/playlister/internal/ctxstore"
	"fknsrs.biz/p/playlister/internal/httputil"
	"fknsrs.biz/p/playlister/internal/store"
	"fknsrs.biz/p/playlister/models"
)

const (
	messageMissingFields  = "Please enter all required fields."
	messageShortPassword  = "Please enter a password of at least 8 characters."
	messagePasswordVerify = "Please enter the same password twice."
	messageEmailTaken     = "An account with this email address already exists."
	messageBadCredentials = "Wrong email or password provided."
)

type registerInput struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	PasswordVerify string `json:"passwordVerify"`
}

func (in *registerInput) check() string {
	for _, v := range []string{in.FirstName, in.LastName, in.Email, in.Password, in.PasswordVerify} {
		if strings.TrimSpace(v) == "" {
			return messageMissingFields
		}
	}

	if len(in.Password) < auth.MinPasswordLength {
		return messageShortPassword
	}

	if in.Password != in.PasswordVerify {
		return messagePasswordVerify
	}

	return ""
}

// startSession signs the user in and writes the user response.
func startSession(rw http.ResponseWriter, r *http.Request, u *models.User) {
	sm := auth.GetSessionManager(r.Context())

	s, err := sm.CreateSession(r.Context(), u.ID)
	if err != nil {
		ctxlogger.GetLogger(r.Context()).WithError(err).Error("could not create session")
		httputil.WriteError(rw, r, http.StatusInternalServerError, "could not create session")
		return
	}

	sm.SetSessionCookie(rw, s)

	httputil.WriteJSON(rw, r, http.StatusOK, map[string]interface{}{"success": true, "user": u.Public()})
}

func RegisterUser(rw http.ResponseWriter, r *http.Request) {
	l := ctxlogger.GetLogger(r.Context())
	s := ctxstore.MustGetStore(r.Context())

	var input registerInput
	if err := httputil.DecodeBody(r, &input); err != nil {
		httputil.WriteError(rw, r, http.StatusBadRequest, messageMissingFields)
		return
	}

	input.Email = strings.TrimSpace(input.Email)

	if msg := input.check(); msg != "" {
		httputil.WriteError(rw, r, http.StatusBadRequest, msg)
		return
	}

	existing, err := s.GetUserByEmail(r.Context(), input.Email)
	if err != nil {
		l.WithError(err).Error("could not look up user")
		httputil.WriteError(rw, r, http.StatusInternalServerError, "could not register user")
		return
	}
	if existing != nil {
		httputil.WriteError(rw, r, http.StatusBadRequest, messageEmailTaken)
		return
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		l.WithError(err).Error("could not hash password")
		httputil.WriteError(rw, r, http.StatusInternalServerError, "could not register user")
		return
	}

	u, err := s.CreateUser(r.Context(), &models.User{
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrCreation) {
			l.WithError(err).Info("could not create user")
			httputil.WriteError(rw, r, http.StatusBadRequest, messageEmailTaken)
			return
		}

		l.WithError(err).Error("could not create user")
		httputil.WriteError(rw, r, http.StatusInternalServerError, "could not register user")
		return
	}

	l.WithField("user.id", u.ID).Info("user registered")

	startSession(rw, r, u)
}

type loginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func LoginUser(rw http.ResponseWriter, r *http.Request) {
	l := ctxlogger.GetLogger(r.Context())

	var input loginInput
	if err := httputil.DecodeBody(r, &input); err != nil || strings.TrimSpace(input.Email) == "" || input.Password == "" {
		httputil.WriteError(rw, r, http.StatusBadRequest, messageMissingFields)
		return
	}

	u, err := ctxstore.MustGetStore(r.Context()).GetUserByEmail(r.Context(), strings.TrimSpace(input.Email))
	if err != nil {
		l.WithError(err).Error("could not look up user")
		httputil.WriteError(rw, r, http.StatusInternalServerError, "could not log in")
		return
	}
	if u == nil {
		httputil.WriteError(rw, r, http.StatusUnauthorized, messageBadCredentials)
		return
	}

	ok, err := auth.CheckPassword(u.PasswordHash, input.Password)
	if err != nil {
		l.WithError(err).Warn("could not check password")
	}
	if !ok {
		httputil.WriteError(rw, r, http.StatusUnauthorized, messageBadCredentials)
		return
	}

	startSession(rw, r, u)
}

func LogoutUser(rw http.ResponseWriter, r *http.Request) {
	sm := auth.GetSessionManager(r.Context())

	if s, ok := sm.GetSessionFromRequest(r); ok {
		sm.DeleteSession(s.ID)
	}

	sm.ClearSessionCookie(rw)

	httputil.WriteJSON(rw, r, http.StatusOK, map[string]interface{}{"success": true})
}

func LoggedIn(rw http.ResponseWriter, r *http.Request) {
	notLoggedIn := map[string]interface{}{"loggedIn": false, "user": nil, "errorMessage": "?"}

	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		httputil.WriteJSON(rw, r, http.StatusOK, notLoggedIn)
		return
	}

	u, err := ctxstore.MustGetStore(r.Context()).GetUserByID(r.Context(), userID)
	if err != nil {
		ctxlogger.GetLogger(r.Context()).WithError(err).Error("could not look up user")
	}
	if u == nil {
		httputil.WriteJSON(rw, r, http.StatusOK, notLoggedIn)
		return
	}

	httputil.WriteJSON(rw, r, http.StatusOK, map[string]interface{}{"loggedIn": true, "user": u.Public()})
}
