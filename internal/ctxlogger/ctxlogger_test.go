package ctxlogger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/urfave/negroni/v2"
)

func TestLogMiddleware(t *testing.T) {
	a := assert.New(t)

	logger, hook := test.NewNullLogger()

	n := negroni.New()
	n.UseFunc(Register(logger))
	n.UseFunc(func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(AddHookPair(r.Context(), nil, func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
			return l.WithField("test.after", true)
		})))
	})
	n.UseFunc(Log())
	n.UseHandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		GetLogger(r.Context()).Info("inside handler")
		rw.WriteHeader(http.StatusNotFound)
	})

	rw := httptest.NewRecorder()
	n.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/store/playlist/1", nil))

	entries := hook.AllEntries()
	if a.Len(entries, 3) {
		a.Equal("http request started", entries[0].Message)

		a.Equal("inside handler", entries[1].Message)
		a.Equal("/store/playlist/1", entries[1].Data["http.path"])

		a.Equal("http request finished", entries[2].Message)
		a.Equal(logrus.WarnLevel, entries[2].Level)
		a.Equal(http.StatusNotFound, entries[2].Data["http.status_code"])
		a.Equal(true, entries[2].Data["test.after"])
	}
}

func TestGetLoggerDefault(t *testing.T) {
	a := assert.New(t)

	a.Equal(logrus.StandardLogger(), GetLogger(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestLogHookPair(t *testing.T) {
	a := assert.New(t)

	logger, hook := test.NewNullLogger()

	before := func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
		return l.WithField("test.before", r.URL.Path)
	}
	after := func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
		return l.WithField("test.after", "done")
	}

	n := negroni.New()
	n.UseFunc(Register(logger))
	n.UseFunc(func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(AddHookPair(r.Context(), before, after)))
	})
	n.UseFunc(Log())
	n.UseHandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		GetLogger(r.Context()).Info("inside handler")
		rw.WriteHeader(http.StatusInternalServerError)
	})

	n.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth/loggedIn", nil))

	entries := hook.AllEntries()
	if a.Len(entries, 3) {
		for _, e := range entries {
			a.Equal("/auth/loggedIn", e.Data["http.path"])
			a.Equal("/auth/loggedIn", e.Data["test.before"])
		}

		a.NotContains(entries[1].Data, "test.after")

		a.Equal(logrus.ErrorLevel, entries[2].Level)
		a.Equal(http.StatusInternalServerError, entries[2].Data["http.status_code"])
		a.Equal("done", entries[2].Data["test.after"])
	}
}
