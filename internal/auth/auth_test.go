package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/playlister/internal/ctxclock"
)

var testTime = time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)

func TestPasswords(t *testing.T) {
	a := assert.New(t)

	_, err := HashPassword("short")
	a.ErrorIs(err, ErrPasswordTooShort)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	a.NotEqual("correct horse", hash)

	ok, err := CheckPassword(hash, "correct horse")
	a.NoError(err)
	a.True(ok)

	ok, err = CheckPassword(hash, "battery staple")
	a.NoError(err)
	a.False(ok)

	_, err = CheckPassword("not a hash", "correct horse")
	a.Error(err)
}

func TestSessionLifecycle(t *testing.T) {
	a := assert.New(t)

	sm := NewSessionManager(time.Hour, false)

	ctx := ctxclock.WithClock(context.Background(), ctxclock.NewStaticClock(testTime))

	s, err := sm.CreateSession(ctx, "u1")
	require.NoError(t, err)
	a.Equal("u1", s.UserID)
	a.Equal(testTime.Add(time.Hour), s.ExpiresAt)

	got, ok := sm.GetSession(ctx, s.ID)
	if a.True(ok) {
		a.Equal(s, got)
	}

	later := ctxclock.WithClock(context.Background(), ctxclock.NewStaticClock(testTime.Add(2*time.Hour)))

	_, ok = sm.GetSession(later, s.ID)
	a.False(ok)
	a.Equal(0, sm.Len())

	_, ok = sm.GetSession(ctx, "missing")
	a.False(ok)
}

func TestRemoveExpired(t *testing.T) {
	a := assert.New(t)

	sm := NewSessionManager(time.Hour, false)

	for i, at := range []time.Time{testTime, testTime.Add(-2 * time.Hour), testTime.Add(-3 * time.Hour)} {
		_, err := sm.CreateSession(ctxclock.WithClock(context.Background(), ctxclock.NewStaticClock(at)), string(rune('a'+i)))
		require.NoError(t, err)
	}

	n, err := sm.RemoveExpired(ctxclock.WithClock(context.Background(), ctxclock.NewStaticClock(testTime)))
	a.NoError(err)
	a.Equal(2, n)
	a.Equal(1, sm.Len())
}

func TestRunStopsWithContext(t *testing.T) {
	a := assert.New(t)

	sm := NewSessionManager(time.Hour, false)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- sm.Run(ctx, time.Millisecond) }()

	time.Sleep(time.Millisecond * 10)
	cancel()

	select {
	case err := <-done:
		a.NoError(err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMiddleware(t *testing.T) {
	a := assert.New(t)

	sm := NewSessionManager(time.Hour, true)

	s, err := sm.CreateSession(context.Background(), "u1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	sm.SetSessionCookie(rec, s)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	a.Equal(DefaultCookieName, cookies[0].Name)
	a.True(cookies[0].HttpOnly)
	a.True(cookies[0].Secure)

	for _, tc := range []struct {
		name   string
		cookie *http.Cookie
		userID string
		ok     bool
	}{
		{"valid session", cookies[0], "u1", true},
		{"no cookie", nil, "", false},
		{"unknown session", &http.Cookie{Name: DefaultCookieName, Value: "nope"}, "", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			r := httptest.NewRequest(http.MethodGet, "/store/playlistpairs/", nil)
			if tc.cookie != nil {
				r.AddCookie(tc.cookie)
			}

			var called bool
			Register(sm)(httptest.NewRecorder(), r, func(rw http.ResponseWriter, r *http.Request) {
				called = true

				userID, ok := GetUserID(r.Context())
				a.Equal(tc.ok, ok)
				a.Equal(tc.userID, userID)
				a.Same(sm, GetSessionManager(r.Context()))
			})
			a.True(called)
		})
	}
}
