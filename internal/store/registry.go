package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type Opener func(ctx context.Context, opts Options) (Store, error)

var (
	openersMu sync.RWMutex
	openers   = make(map[string]Opener)
)

// Register makes an engine available to Open. Engines call it from init, the
// same way database/sql drivers do.
func Register(engine string, opener Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()

	if opener == nil {
		panic("store.Register: opener is nil")
	}

	if _, ok := openers[engine]; ok {
		panic("store.Register: called twice for engine " + engine)
	}

	openers[engine] = opener
}

func Engines() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()

	var a []string
	for k := range openers {
		a = append(a, k)
	}

	sort.Strings(a)

	return a
}

// Open connects to the named engine. It is meant to be called once at startup;
// the returned store is shared by every request until Close.
func Open(ctx context.Context, engine string, opts Options) (Store, error) {
	openersMu.RLock()
	opener, ok := openers[engine]
	openersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("store.Open: %w %q; available engines are %v", ErrUnknownEngine, engine, Engines())
	}

	if opts.DSN == "" {
		return nil, fmt.Errorf("store.Open: %s: %w", engine, ErrNoStoreOptions)
	}

	s, err := opener(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("store.Open: could not open %s store: %w", engine, err)
	}

	return s, nil
}
