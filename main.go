package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/tdewolff/minify"
	"github.com/tdewolff/minify/json"
	"github.com/urfave/negroni/v2"
	"go.etcd.io/bbolt"

	"fknsrs.biz/p/playlister/handlers"
	"fknsrs.biz/p/playlister/internal/auth"
	"fknsrs.biz/p/playlister/internal/catchpanic"
	"fknsrs.biz/p/playlister/internal/config"
	"fknsrs.biz/p/playlister/internal/configreader"
	"fknsrs.biz/p/playlister/internal/ctxclock"
	"fknsrs.biz/p/playlister/internal/ctxlogger"
	"fknsrs.biz/p/playlister/internal/ctxstore"
	"fknsrs.biz/p/playlister/internal/httpcache"
	"fknsrs.biz/p/playlister/internal/logrusstackhook"
	"fknsrs.biz/p/playlister/internal/songlookup"
	"fknsrs.biz/p/playlister/internal/store"

	_ "fknsrs.biz/p/playlister/internal/boltstore"
	_ "fknsrs.biz/p/playlister/internal/mongostore"
	_ "fknsrs.biz/p/playlister/internal/pgstore"
	_ "fknsrs.biz/p/playlister/internal/sqlitestore"
)

var cfg = config.Config{
	Dotenv:                 ".env",
	LogLevel:               logrus.InfoLevel,
	LogDebugLevels:         config.LevelList{logrus.DebugLevel, logrus.TraceLevel},
	LogQueries:             config.LogQueries{Enabled: true, SlowerThan: time.Millisecond * 100},
	DatabaseType:           config.EngineSQLite,
	SQLiteDSN:              "playlister.db",
	BoltPath:               "playlister.bolt",
	ApplicationAddr:        ":4000",
	ApplicationMinify:      true,
	SessionDuration:        time.Hour * 24,
	SessionCleanupInterval: time.Minute * 10,
	LookupCachePath:        "lookup-cache.db",
	LookupCacheMaxAge:      httpcache.DefaultMaxAge,
	LookupBaseURL:          songlookup.DefaultBaseURL,
}

func init() {
	for _, configPath := range []string{"config.toml", "config.yaml", "config.yml"} {
		if st, err := os.Stat(configPath); err == nil && st != nil && !st.IsDir() {
			cfg.Config = configPath
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := configreader.Read(os.Args[0], os.Args[1:], os.Environ(), &cfg); err != nil {
		panic(err)
	}

	ctx = ctxclock.WithClock(ctx, ctxclock.NewRealClock())

	logger := logrus.New()

	logger.SetLevel(cfg.LogLevel)
	if len(cfg.LogDebugLevels) > 0 {
		logger.AddHook(logrusstackhook.NewStackHook(cfg.LogDebugLevels, nil))
	}

	logger.WithFields(logrus.Fields{
		"config.config":                   cfg.Config,
		"config.dotenv":                   cfg.Dotenv,
		"config.log_level":                cfg.LogLevel,
		"config.log_debug_levels":         cfg.LogDebugLevels,
		"config.log_queries":              cfg.LogQueries,
		"config.database_type":            cfg.DatabaseType,
		"config.application_addr":         cfg.ApplicationAddr,
		"config.application_minify":       cfg.ApplicationMinify,
		"config.secure_cookies":           cfg.SecureCookies,
		"config.session_duration":         cfg.SessionDuration,
		"config.session_cleanup_interval": cfg.SessionCleanupInterval,
		"config.lookup_cache_path":        cfg.LookupCachePath,
		"config.lookup_base_url":          cfg.LookupBaseURL,
		"config.reset_fixtures":           cfg.ResetFixtures,
	}).Info("program starting")

	ctx = ctxlogger.WithLogger(ctx, logger)

	s, err := store.Open(ctx, string(cfg.DatabaseType), store.Options{
		DSN:                  cfg.DSN(),
		LogQueries:           cfg.LogQueries.Enabled,
		LogQueriesSlowerThan: cfg.LogQueries.SlowerThan,
	})
	if err != nil {
		logger.WithError(err).Fatal("could not open store")
	}
	defer s.Close()

	ctx = ctxstore.WithStore(ctx, s)

	if cfg.ResetFixtures != "" {
		if err := resetFixtures(ctx, cfg.ResetFixtures); err != nil {
			logger.WithError(err).Error("could not reset fixtures")
			s.Close()
			os.Exit(1)
		}

		return
	}

	httpClient := &http.Client{}

	if cfg.LookupCachePath != "" {
		cacheDB, err := bbolt.Open(cfg.LookupCachePath, 0600, &bbolt.Options{Timeout: time.Second})
		if err != nil {
			logger.WithError(err).Fatal("could not open lookup cache")
		}
		defer cacheDB.Close()

		httpClient.Transport = httpcache.NewTransport(nil, httpcache.NewBBoltStorage(cacheDB), cfg.LookupCacheMaxAge)
	}

	ctx = songlookup.WithClient(ctx, songlookup.New(httpClient, cfg.LookupBaseURL))

	sm := auth.NewSessionManager(cfg.SessionDuration, cfg.SecureCookies)
	ctx = auth.WithSessionManager(ctx, sm)

	workers := []worker{
		{
			name: "application",
			run: func(ctx context.Context) error {
				return runApplicationWorker(ctx, cfg.ApplicationAddr)
			},
		},
		{
			name: "session_cleanup",
			run: func(ctx context.Context) error {
				return sm.Run(ctx, cfg.SessionCleanupInterval)
			},
		},
	}

	if err := runAllWorkers(ctx, workers); err != nil {
		logger.WithError(err).Error("workers failed")
		s.Close()
		os.Exit(1)
	}

	logger.Info("program finished")
}

func resetFixtures(ctx context.Context, path string) error {
	fd, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("resetFixtures: %w", err)
	}
	defer fd.Close()

	f, err := store.ReadFixtures(fd)
	if err != nil {
		return fmt.Errorf("resetFixtures: %w", err)
	}

	report, err := store.LoadFixtures(ctx, ctxstore.MustGetStore(ctx), f)
	if err != nil {
		return fmt.Errorf("resetFixtures: %w", err)
	}

	ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
		"fixtures.path":      path,
		"fixtures.users":     report.Users,
		"fixtures.playlists": report.Playlists,
		"fixtures.failed":    report.Failed,
	}).Info("fixtures loaded")

	return nil
}

type worker struct {
	name string
	run  func(ctx context.Context) error
}

// runAllWorkers runs every worker until ctx is done or one of them fails, in
// which case the rest are cancelled. It returns once all have stopped.
func runAllWorkers(ctx context.Context, workers []worker) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan error, len(workers))

	var wg sync.WaitGroup

	for id, w := range workers {
		wg.Add(1)

		go func(id int, w worker) {
			defer wg.Done()

			l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
				"worker.id":   id + 1,
				"worker.name": w.name,
			})

			l.Info("worker starting")

			err := catchpanic.CatchErr0(func() error {
				return w.run(ctxlogger.WithLogger(ctx, l))
			})
			if err != nil {
				l.WithError(err).Error("worker failed")
				err = fmt.Errorf("worker %d (%s) failed: %w", id+1, w.name, err)
				cancel(err)
			} else {
				l.Info("worker stopped")
			}

			done <- err
		}(id, w)
	}

	wg.Wait()
	close(done)

	var errs []error
	for err := range done {
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func runApplicationWorker(ctx context.Context, addr string) error {
	l := ctxlogger.GetLogger(ctx)

	l.WithFields(logrus.Fields{
		"args.addr": addr,
	}).Info("running application worker")

	m := mux.NewRouter()
	handlers.Routes(m)

	min := minify.New()
	min.AddFunc("application/json", json.Minify)

	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.UseFunc(ctxlogger.Register(l))
	n.UseFunc(ctxclock.Register(ctxclock.GetClock(ctx)))
	n.UseFunc(ctxstore.Register(ctxstore.MustGetStore(ctx)))
	n.UseFunc(auth.Register(auth.GetSessionManager(ctx)))
	n.UseFunc(songlookup.Register(songlookup.GetClient(ctx)))
	n.UseFunc(ctxclock.AddLoggerHooks())
	n.UseFunc(ctxlogger.Log())

	if cfg.ApplicationMinify {
		n.UseFunc(func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
			if strings.ToLower(r.Header.Get("connection")) != "upgrade" {
				mw := min.ResponseWriter(rw, r)
				defer mw.Close()
				rw = mw
			}

			next(rw, r)
		})
	}

	n.UseHandler(m)

	s := &http.Server{
		Addr:        addr,
		Handler:     n,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		l.Info("starting server")
		errs <- s.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}
}
