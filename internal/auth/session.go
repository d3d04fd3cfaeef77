package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/playlister/internal/ctxclock"
	"fknsrs.biz/p/playlister/internal/ctxlogger"
)

const DefaultCookieName = "playlister_session"

type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionManager keeps sessions in memory, so they do not survive a
// restart and are not shared between processes.
type SessionManager struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	duration      time.Duration
	cookieName    string
	secureCookies bool
}

func NewSessionManager(duration time.Duration, secureCookies bool) *SessionManager {
	return &SessionManager{
		sessions:      make(map[string]*Session),
		duration:      duration,
		cookieName:    DefaultCookieName,
		secureCookies: secureCookies,
	}
}

func now(ctx context.Context) (time.Time, error) {
	if c := ctxclock.GetClock(ctx); c != nil {
		return c.Now()
	}

	return time.Now(), nil
}

func (sm *SessionManager) CreateSession(ctx context.Context, userID string) (*Session, error) {
	t, err := now(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: t,
		ExpiresAt: t.Add(sm.duration),
	}

	sm.mu.Lock()
	sm.sessions[s.ID] = s
	sm.mu.Unlock()

	return s, nil
}

func (sm *SessionManager) GetSession(ctx context.Context, id string) (*Session, bool) {
	sm.mu.RLock()
	s, ok := sm.sessions[id]
	sm.mu.RUnlock()

	if !ok {
		return nil, false
	}

	t, err := now(ctx)
	if err != nil || t.After(s.ExpiresAt) {
		sm.DeleteSession(id)
		return nil, false
	}

	return s, true
}

func (sm *SessionManager) DeleteSession(id string) {
	sm.mu.Lock()
	delete(sm.sessions, id)
	sm.mu.Unlock()
}

func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.sessions)
}

func (sm *SessionManager) SetSessionCookie(rw http.ResponseWriter, s *Session) {
	http.SetCookie(rw, &http.Cookie{
		Name:     sm.cookieName,
		Value:    s.ID,
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   sm.secureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
}

func (sm *SessionManager) ClearSessionCookie(rw http.ResponseWriter) {
	http.SetCookie(rw, &http.Cookie{
		Name:     sm.cookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
}

func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(sm.cookieName)
	if err != nil || c.Value == "" {
		return nil, false
	}

	return sm.GetSession(r.Context(), c.Value)
}

// RemoveExpired deletes every session that has expired and returns how many
// were removed.
func (sm *SessionManager) RemoveExpired(ctx context.Context) (int, error) {
	t, err := now(ctx)
	if err != nil {
		return 0, err
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	var n int
	for id, s := range sm.sessions {
		if t.After(s.ExpiresAt) {
			delete(sm.sessions, id)
			n++
		}
	}

	return n, nil
}

// Run removes expired sessions every interval until ctx is done.
func (sm *SessionManager) Run(ctx context.Context, interval time.Duration) error {
	l := ctxlogger.GetLogger(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := sm.RemoveExpired(ctx)
			if err != nil {
				return err
			}

			if n > 0 {
				l.WithFields(logrus.Fields{
					"sessions.removed":   n,
					"sessions.remaining": sm.Len(),
				}).Info("removed expired sessions")
			}
		}
	}
}
