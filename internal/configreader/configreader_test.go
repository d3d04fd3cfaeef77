package configreader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/playlister/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0600))
	return p
}

func defaults() config.Config {
	return config.Config{
		LogLevel:        logrus.InfoLevel,
		DatabaseType:    config.EngineSQLite,
		SQLiteDSN:       "playlister.db",
		ApplicationAddr: ":4000",
		SessionDuration: time.Hour,
	}
}

func TestReadPrecedence(t *testing.T) {
	dir := t.TempDir()

	tomlPath := writeFile(t, dir, "config.toml", `
application_addr = ":5000"
database_type = "bolt"
bolt_path = "from-file.bolt"
`)
	yamlPath := writeFile(t, dir, "config.yaml", `
application_addr: ":6000"
mongodb_uri: mongodb://localhost/music
`)
	dotenvPath := writeFile(t, dir, "test.env", `
APPLICATION_ADDR=:7000
SECURE_COOKIES=true
LOG_LEVEL=warning
`)

	for _, tc := range []struct {
		name  string
		args  []string
		env   []string
		check func(a *assert.Assertions, cfg config.Config)
	}{
		{
			name: "defaults survive",
			check: func(a *assert.Assertions, cfg config.Config) {
				a.Equal(":4000", cfg.ApplicationAddr)
				a.Equal("playlister.db", cfg.DSN())
			},
		},
		{
			name: "toml file",
			args: []string{"-config", tomlPath},
			check: func(a *assert.Assertions, cfg config.Config) {
				a.Equal(":5000", cfg.ApplicationAddr)
				a.Equal(config.EngineBolt, cfg.DatabaseType)
				a.Equal("from-file.bolt", cfg.DSN())
			},
		},
		{
			name: "yaml file from environment",
			env:  []string{"CONFIG=" + yamlPath},
			check: func(a *assert.Assertions, cfg config.Config) {
				a.Equal(":6000", cfg.ApplicationAddr)
				a.Equal("mongodb://localhost/music", cfg.MongoDBURI)
			},
		},
		{
			name: "flags override file",
			args: []string{"-config", tomlPath, "-application_addr", ":5001", "-session_duration=2h", "-secure_cookies"},
			check: func(a *assert.Assertions, cfg config.Config) {
				a.Equal(":5001", cfg.ApplicationAddr)
				a.Equal(2*time.Hour, cfg.SessionDuration)
				a.True(cfg.SecureCookies)
			},
		},
		{
			name: "environment overrides flags",
			args: []string{"-application_addr", ":5001"},
			env:  []string{"APPLICATION_ADDR=:5002", "Application_Minify=1", "SESSION_DURATION=15m", "LOG_QUERIES=>50ms"},
			check: func(a *assert.Assertions, cfg config.Config) {
				a.Equal(":5002", cfg.ApplicationAddr)
				a.True(cfg.ApplicationMinify)
				a.Equal(15*time.Minute, cfg.SessionDuration)
				a.Equal(config.LogQueries{Enabled: true, SlowerThan: 50 * time.Millisecond}, cfg.LogQueries)
			},
		},
		{
			name: "dotenv sits beneath the environment",
			args: []string{"-dotenv", dotenvPath},
			env:  []string{"SECURE_COOKIES=false"},
			check: func(a *assert.Assertions, cfg config.Config) {
				a.Equal(":7000", cfg.ApplicationAddr)
				a.False(cfg.SecureCookies)
				a.Equal(logrus.WarnLevel, cfg.LogLevel)
			},
		},
		{
			name: "missing dotenv is ignored",
			args: []string{"-dotenv", filepath.Join(dir, "nope.env")},
			check: func(a *assert.Assertions, cfg config.Config) {
				a.Equal(":4000", cfg.ApplicationAddr)
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			cfg := defaults()
			if a.NoError(Read("test", tc.args, tc.env, &cfg)) {
				tc.check(a, cfg)
			}
		})
	}
}

func TestReadErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
		env  []string
	}{
		{"unknown engine", nil, []string{"DATABASE_TYPE=oracle"}},
		{"bad bool", nil, []string{"SECURE_COOKIES=maybe"}},
		{"bad duration", nil, []string{"SESSION_DURATION=soon"}},
		{"unknown config type", []string{"-config", "config.ini"}, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			assert.New(t).Error(Read("test", tc.args, tc.env, &cfg))
		})
	}
}

func TestReadRejectsNonStruct(t *testing.T) {
	a := assert.New(t)

	var s string
	a.Error(Read("test", nil, nil, &s))
	a.Error(Read("test", nil, nil, config.Config{}))
}
