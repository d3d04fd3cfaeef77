package ctxlogger

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
)

// context registration

var loggerKey int

func WithLogger(ctx context.Context, l logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, &loggerKey, l)
}

func GetLogger(ctx context.Context) logrus.FieldLogger {
	if v := ctx.Value(&loggerKey); v != nil {
		return v.(logrus.FieldLogger)
	}

	return logrus.StandardLogger()
}

// hooks

var hookListKey int

// HookFunc decorates the request log entry, either before the request is
// handled or after the response has been written.
type HookFunc func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger

type hookPair struct {
	before HookFunc
	after  HookFunc
}

type hookList struct {
	a []hookPair
}

func (h *hookList) runBefore(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
	for _, hook := range h.a {
		if hook.before != nil {
			l = hook.before(rw, r, l)
		}
	}

	return l
}

func (h *hookList) runAfter(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
	for _, hook := range h.a {
		if hook.after != nil {
			l = hook.after(rw, r, l)
		}
	}

	return l
}

func getHookList(ctx context.Context) *hookList {
	if v := ctx.Value(&hookListKey); v != nil {
		return v.(*hookList)
	}

	return nil
}

// AddHookPair registers hooks on the hook list created by Register. Without
// a hook list in ctx a new one is attached, which Log will not see.
func AddHookPair(ctx context.Context, before, after HookFunc) context.Context {
	hooks := getHookList(ctx)
	if hooks == nil {
		hooks = &hookList{}
		ctx = context.WithValue(ctx, &hookListKey, hooks)
	}

	hooks.a = append(hooks.a, hookPair{before: before, after: after})

	return ctx
}

// middleware

func Register(l logrus.FieldLogger) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		ctx := context.WithValue(r.Context(), &hookListKey, &hookList{})
		next(rw, r.WithContext(WithLogger(ctx, l)))
	}
}

func Log() func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		hooks := getHookList(r.Context())

		var l logrus.FieldLogger = GetLogger(r.Context()).WithFields(logrus.Fields{
			"http.method":      r.Method,
			"http.path":        r.URL.String(),
			"http.host":        r.Host,
			"http.remote_addr": r.RemoteAddr,
			"http.user_agent":  r.Header.Get("user-agent"),
		})

		if hooks != nil {
			l = hooks.runBefore(rw, r, l)
		}

		defer func() {
			status := 0

			if nrw, ok := rw.(interface {
				Status() int
				Size() int
			}); ok {
				status = nrw.Status()

				l = l.WithFields(logrus.Fields{
					"http.status_code":   status,
					"http.response_size": nrw.Size(),
				})
			}

			if hooks != nil {
				l = hooks.runAfter(rw, r, l)
			}

			switch {
			case status >= 500:
				l.Error("http request finished")
			case status >= 400:
				l.Warn("http request finished")
			default:
				l.Info("http request finished")
			}
		}()

		l.Info("http request started")

		next(rw, r.WithContext(WithLogger(r.Context(), l)))
	}
}
