package ctxstore

import (
	"context"
	"fmt"
	"net/http"

	"fknsrs.biz/p/playlister/internal/store"
)

var (
	ErrNoStore = fmt.Errorf("ctxstore: no store found in context")
)

var storeKey int

func WithStore(ctx context.Context, s store.Store) context.Context {
	return context.WithValue(ctx, &storeKey, s)
}

func GetStore(ctx context.Context) store.Store {
	if v := ctx.Value(&storeKey); v != nil {
		return v.(store.Store)
	}

	return nil
}

// MustGetStore is for handlers, which are only mounted behind Register.
func MustGetStore(ctx context.Context) store.Store {
	s := GetStore(ctx)
	if s == nil {
		panic(ErrNoStore)
	}

	return s
}

// middleware

func Register(s store.Store) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithStore(r.Context(), s)))
	}
}
