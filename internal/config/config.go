package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type LevelList []logrus.Level

func (a LevelList) MarshalText() ([]byte, error) {
	if len(a) == 0 {
		return []byte("-"), nil
	}

	var s string

	for i, e := range a {
		if i != 0 {
			s += ","
		}

		s += e.String()
	}

	return []byte(s), nil
}

func (a *LevelList) UnmarshalText(d []byte) error {
	if string(d) == "" || string(d) == "-" {
		*a = LevelList{}
		return nil
	}

	var aa LevelList

	for _, e := range strings.Split(string(d), ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}

		l, err := logrus.ParseLevel(e)
		if err != nil {
			return fmt.Errorf("config.LevelList.UnmarshalText: could not parse value as logrus level: %w", err)
		}

		aa = append(aa, l)
	}

	*a = aa

	return nil
}

type LogQueries struct {
	Enabled    bool
	SlowerThan time.Duration
}

func (l LogQueries) String() string {
	if l.Enabled {
		if l.SlowerThan != 0 {
			return ">" + l.SlowerThan.String()
		}

		return "all"
	}

	return "none"
}

func (l LogQueries) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *LogQueries) UnmarshalText(d []byte) error {
	s := string(d)

	switch s {
	case "all":
		l.Enabled = true
		l.SlowerThan = 0
		return nil
	case "", "none":
		l.Enabled = false
		l.SlowerThan = 0
		return nil
	default:
		if s[0] == '>' && len(s) > 1 {
			d, err := time.ParseDuration(s[1:])
			if err != nil {
				return fmt.Errorf("config.LogQueries.UnmarshalText: could not parse value as duration: %w", err)
			}
			l.Enabled = true
			l.SlowerThan = d
			return nil
		}

		return fmt.Errorf("config.LogQueries.UnmarshalText: unrecognised input %q; valid options are none, all, or >x where x is a duration", s)
	}
}

func (l *LogQueries) IsZero() bool {
	return l.Enabled == false && l.SlowerThan == 0
}

// Engine names a storage engine. The set is fixed here so a typo fails at
// startup rather than when the store is opened.
type Engine string

const (
	EngineSQLite     = Engine("sqlite")
	EngineBolt       = Engine("bolt")
	EngineMongoDB    = Engine("mongodb")
	EnginePostgreSQL = Engine("postgresql")
)

var engines = []Engine{EngineSQLite, EngineBolt, EngineMongoDB, EnginePostgreSQL}

func (e Engine) MarshalText() ([]byte, error) {
	return []byte(e), nil
}

func (e *Engine) UnmarshalText(d []byte) error {
	s := Engine(strings.ToLower(strings.TrimSpace(string(d))))

	for _, v := range engines {
		if s == v {
			*e = v
			return nil
		}
	}

	return fmt.Errorf("config.Engine.UnmarshalText: unrecognised engine %q; valid options are sqlite, bolt, mongodb, or postgresql", string(d))
}

type Config struct {
	Config                 string        `name:"config" toml:"config" yaml:"config" help:"Config file location."`
	Dotenv                 string        `name:"dotenv" toml:"dotenv" yaml:"dotenv" help:"Environment file to read beneath the real environment."`
	LogLevel               logrus.Level  `name:"log_level" toml:"log_level" yaml:"log_level" help:"Global log level."`
	LogDebugLevels         LevelList     `name:"log_debug_levels" toml:"log_debug_levels" yaml:"log_debug_levels" help:"Which log levels to include stack data on."`
	LogQueries             LogQueries    `name:"log_queries" toml:"log_queries" yaml:"log_queries" help:"Log database queries."`
	DatabaseType           Engine        `name:"database_type" toml:"database_type" yaml:"database_type" help:"Storage engine: sqlite, bolt, mongodb, or postgresql."`
	SQLiteDSN              string        `name:"sqlite_dsn" toml:"sqlite_dsn" yaml:"sqlite_dsn" help:"SQLite database file."`
	BoltPath               string        `name:"bolt_path" toml:"bolt_path" yaml:"bolt_path" help:"bbolt database file."`
	MongoDBURI             string        `name:"mongodb_uri" toml:"mongodb_uri" yaml:"mongodb_uri" help:"MongoDB connection string."`
	PostgreSQLURI          string        `name:"postgresql_uri" toml:"postgresql_uri" yaml:"postgresql_uri" help:"PostgreSQL connection string."`
	ResetFixtures          string        `name:"reset_fixtures" toml:"reset_fixtures" yaml:"reset_fixtures" help:"Clear the store, load this fixture file, and exit."`
	ApplicationAddr        string        `name:"application_addr" toml:"application_addr" yaml:"application_addr" help:"Address to listen on for application server."`
	ApplicationMinify      bool          `name:"application_minify" toml:"application_minify" yaml:"application_minify" help:"Minify JSON output."`
	SecureCookies          bool          `name:"secure_cookies" toml:"secure_cookies" yaml:"secure_cookies" help:"Only send session cookies over HTTPS."`
	SessionDuration        time.Duration `name:"session_duration" toml:"session_duration" yaml:"session_duration" help:"How long a session lasts after signing in."`
	SessionCleanupInterval time.Duration `name:"session_cleanup_interval" toml:"session_cleanup_interval" yaml:"session_cleanup_interval" help:"How often expired sessions are removed."`
	LookupCachePath        string        `name:"lookup_cache_path" toml:"lookup_cache_path" yaml:"lookup_cache_path" help:"Location for the song lookup HTTP cache; empty disables it."`
	LookupCacheMaxAge      time.Duration `name:"lookup_cache_max_age" toml:"lookup_cache_max_age" yaml:"lookup_cache_max_age" help:"How long song lookup responses are cached."`
	LookupBaseURL          string        `name:"lookup_base_url" toml:"lookup_base_url" yaml:"lookup_base_url" help:"Base URL for YouTube watch pages."`
}

// DSN is the connection string for the selected engine.
func (c Config) DSN() string {
	switch c.DatabaseType {
	case EngineBolt:
		return c.BoltPath
	case EngineMongoDB:
		return c.MongoDBURI
	case EnginePostgreSQL:
		return c.PostgreSQLURI
	default:
		return c.SQLiteDSN
	}
}
