// Package sqllogger wraps a database/sql driver so that every statement,
// transaction boundary and prepare is logged through the context logger.
package sqllogger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	proxy "github.com/shogo82148/go-sql-proxy"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/playlister/internal/ctxclock"
	"fknsrs.biz/p/playlister/internal/ctxlogger"
	"fknsrs.biz/p/playlister/internal/stackutil"
)

var (
	ErrCancelLogging = fmt.Errorf("cancel logging")
)

type Stats struct {
	Start    time.Time
	Duration time.Duration
	Stack    []runtime.Frame

	query     string
	queryText string
	queryArgs []driver.NamedValue
}

// Query returns the statement with its arguments interpolated. It is only
// for display.
func (s *Stats) Query() string {
	if s.query == "" && s.queryText != "" {
		s.query = printQuery(s.queryText, s.queryArgs)
	}
	return s.query
}

type Filter interface {
	PreCollection(ctx context.Context, stats *Stats) error
	PreLogging(ctx context.Context, stats *Stats) error
	HideStackFrame(ctx context.Context, index int, frame runtime.Frame) (bool, error)
}

func now(ctx context.Context) (time.Time, error) {
	if c := ctxclock.GetClock(ctx); c != nil {
		return c.Now()
	}

	return time.Now(), nil
}

func makeStats(ctx context.Context, query string, args []driver.NamedValue, filters []Filter) (*Stats, error) {
	t, err := now(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Start:     t,
		Stack:     stackutil.GetStack(100, 1),
		queryText: query,
		queryArgs: args,
	}

	for _, filter := range filters {
		if err := filter.PreCollection(ctx, stats); err != nil {
			if err == ErrCancelLogging {
				return nil, nil
			}

			return nil, err
		}
	}

	return stats, nil
}

func logStats(ctx context.Context, upperError error, qctx interface{}, filters []Filter, prefix, message string) error {
	stats, ok := qctx.(*Stats)
	if !ok || stats == nil {
		return upperError
	}

	t, err := now(ctx)
	if err != nil {
		return err
	}

	stats.Duration = t.Sub(stats.Start)

	for _, filter := range filters {
		if err := filter.PreLogging(ctx, stats); err != nil {
			if err == ErrCancelLogging {
				return upperError
			}

			return err
		}
	}

	fields := logrus.Fields{
		prefix + ".start":    stats.Start.Format(time.RFC3339),
		prefix + ".duration": stats.Duration,
	}

	if q := stats.Query(); q != "" {
		fields[prefix+".content"] = q
	}

loop:
	for index, frame := range stats.Stack {
		for _, filter := range filters {
			hide, err := filter.HideStackFrame(ctx, index, frame)
			if err != nil {
				return err
			}
			if hide {
				continue loop
			}
		}

		fields[fmt.Sprintf("%s.stack.%02d", prefix, index)] = stackutil.FormatStackFrame(frame)
	}

	l := ctxlogger.GetLogger(ctx).WithFields(fields)

	if upperError != nil && upperError != driver.ErrSkip {
		l.WithError(upperError).Warn(message + " failed")
	} else {
		l.Info(message)
	}

	return upperError
}

func stmtQuery(stmt *proxy.Stmt) string {
	if stmt == nil {
		return ""
	}

	return stmt.QueryString
}

// New wraps a driver. Statements are logged after they complete so that the
// duration is known.
func New(wrapped driver.Driver, filters ...Filter) driver.Driver {
	return proxy.NewProxyContext(wrapped, &proxy.HooksContext{
		PrePrepare: func(ctx context.Context, stmt *proxy.Stmt) (interface{}, error) {
			return makeStats(ctx, stmtQuery(stmt), nil, filters)
		},
		PostPrepare: func(ctx context.Context, qctx interface{}, stmt *proxy.Stmt, err error) error {
			return logStats(ctx, err, qctx, filters, "sql.prepare", "sql prepare")
		},
		PreExec: func(ctx context.Context, stmt *proxy.Stmt, args []driver.NamedValue) (interface{}, error) {
			return makeStats(ctx, stmtQuery(stmt), args, filters)
		},
		PostExec: func(ctx context.Context, qctx interface{}, stmt *proxy.Stmt, args []driver.NamedValue, _ driver.Result, err error) error {
			return logStats(ctx, err, qctx, filters, "sql.exec", "sql exec")
		},
		PreQuery: func(ctx context.Context, stmt *proxy.Stmt, args []driver.NamedValue) (interface{}, error) {
			return makeStats(ctx, stmtQuery(stmt), args, filters)
		},
		PostQuery: func(ctx context.Context, qctx interface{}, stmt *proxy.Stmt, args []driver.NamedValue, _ driver.Rows, err error) error {
			return logStats(ctx, err, qctx, filters, "sql.query", "sql query")
		},
		PreBegin: func(ctx context.Context, conn *proxy.Conn) (interface{}, error) {
			return makeStats(ctx, "", nil, filters)
		},
		PostBegin: func(ctx context.Context, qctx interface{}, conn *proxy.Conn, err error) error {
			return logStats(ctx, err, qctx, filters, "sql.tx_begin", "sql tx begin")
		},
		PreCommit: func(ctx context.Context, tx *proxy.Tx) (interface{}, error) {
			return makeStats(ctx, "", nil, filters)
		},
		PostCommit: func(ctx context.Context, qctx interface{}, tx *proxy.Tx, err error) error {
			return logStats(ctx, err, qctx, filters, "sql.tx_commit", "sql tx commit")
		},
		PreRollback: func(ctx context.Context, tx *proxy.Tx) (interface{}, error) {
			return makeStats(ctx, "", nil, filters)
		},
		PostRollback: func(ctx context.Context, qctx interface{}, tx *proxy.Tx, err error) error {
			return logStats(ctx, err, qctx, filters, "sql.tx_rollback", "sql tx rollback")
		},
	})
}

var (
	registeredMu sync.Mutex
	registered   = map[string]string{}
	registeredN  = map[string]int{}
)

func filtersKey(base string, filters []Filter) string {
	parts := []string{base}
	for _, f := range filters {
		parts = append(parts, fmt.Sprintf("%T%+v", f, f))
	}

	return strings.Join(parts, "|")
}

// Register installs a logging wrapper around d and returns the driver name to
// open it with. The first registration for base is named base+":logged".
// sql.Register panics on duplicate names, so a repeat call with the same
// filter settings returns the existing name, and a call with different
// settings gets a new one (base+":logged:2" and so on).
func Register(base string, d driver.Driver, filters ...Filter) string {
	key := filtersKey(base, filters)

	registeredMu.Lock()
	defer registeredMu.Unlock()

	if name, ok := registered[key]; ok {
		return name
	}

	registeredN[base]++

	name := base + ":logged"
	if n := registeredN[base]; n > 1 {
		name += ":" + strconv.Itoa(n)
	}

	sql.Register(name, New(d, filters...))
	registered[key] = name

	return name
}

// DefaultFilter returns the filter used by the engines: it hides frames from
// the plumbing between a handler and the driver.
func DefaultFilter(slowerThan time.Duration, extraPackages ...string) *BasicFilter {
	return &BasicFilter{
		LogSlowerThan: slowerThan,
		IgnorePackageStackFrames: append([]string{
			"database/sql",
			"net/http",
			"runtime",
			"testing",
			"github.com/gorilla/mux",
			"github.com/shogo82148/go-sql-proxy",
			"github.com/urfave/negroni/v2",
			"fknsrs.biz/p/sorm",
			"gorm.io/gorm",
			"fknsrs.biz/p/playlister/internal/ctxclock",
			"fknsrs.biz/p/playlister/internal/ctxlogger",
			"fknsrs.biz/p/playlister/internal/ctxstore",
			"fknsrs.biz/p/playlister/internal/sqllogger",
			"main",
		}, extraPackages...),
	}
}

type BasicFilter struct {
	CancelAll                bool
	LogSlowerThan            time.Duration
	IgnorePackageStackFrames []string
	IgnoreFunctionQueries    []string
	PreCollectionFunc        func(ctx context.Context, stats *Stats) error
	PreLoggingFunc           func(ctx context.Context, stats *Stats) error
}

func (b *BasicFilter) PreCollection(ctx context.Context, stats *Stats) error {
	if b.CancelAll {
		return ErrCancelLogging
	}

	for _, functionName := range b.IgnoreFunctionQueries {
		for _, frame := range stats.Stack {
			if frame.Function == functionName {
				return ErrCancelLogging
			}
		}
	}

	if b.PreCollectionFunc != nil {
		return b.PreCollectionFunc(ctx, stats)
	}

	return nil
}

func (b *BasicFilter) PreLogging(ctx context.Context, stats *Stats) error {
	if b.CancelAll {
		return ErrCancelLogging
	}

	if b.LogSlowerThan != 0 && stats.Duration < b.LogSlowerThan {
		return ErrCancelLogging
	}

	if b.PreLoggingFunc != nil {
		return b.PreLoggingFunc(ctx, stats)
	}

	return nil
}

func (b *BasicFilter) HideStackFrame(ctx context.Context, index int, frame runtime.Frame) (bool, error) {
	return stackutil.InPackage(frame, b.IgnorePackageStackFrames...), nil
}

// sqlite numbers parameters as ?N, postgres as $N.
var (
	parameterPattern  = regexp.MustCompile(`[?$]([0-9]+)`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

const sqlNull = "NULL"

func printQuery(sqlString string, args []driver.NamedValue) string {
	replaced := parameterPattern.ReplaceAllStringFunc(sqlString, func(s string) string {
		i, err := strconv.ParseInt(s[1:], 10, 64)
		if err != nil || i < 1 || int(i) > len(args) {
			return s
		}

		return formatValue(args[i-1].Value)
	})

	return strings.TrimSpace(whitespacePattern.ReplaceAllString(replaced, " "))
}

// formatValue renders a driver argument. Drivers only ever see the types in
// driver.Value after conversion, but pointer and sql.Null forms still show
// up from callers using custom converters.
func formatValue(v interface{}) string {
	switch e := v.(type) {
	case nil:
		return sqlNull
	case bool:
		return strconv.FormatBool(e)
	case *bool:
		if e == nil {
			return sqlNull
		}
		return strconv.FormatBool(*e)
	case sql.NullBool:
		if !e.Valid {
			return sqlNull
		}
		return strconv.FormatBool(e.Bool)
	case float64:
		return fmt.Sprintf("%f", e)
	case sql.NullFloat64:
		if !e.Valid {
			return sqlNull
		}
		return fmt.Sprintf("%f", e.Float64)
	case int:
		return strconv.Itoa(e)
	case int64:
		return strconv.FormatInt(e, 10)
	case *int64:
		if e == nil {
			return sqlNull
		}
		return strconv.FormatInt(*e, 10)
	case sql.NullInt64:
		if !e.Valid {
			return sqlNull
		}
		return strconv.FormatInt(e.Int64, 10)
	case string:
		return quote(e)
	case *string:
		if e == nil {
			return sqlNull
		}
		return quote(*e)
	case sql.NullString:
		if !e.Valid {
			return sqlNull
		}
		return quote(e.String)
	case time.Time:
		return "'" + e.Format(time.RFC3339Nano) + "'"
	case *time.Time:
		if e == nil {
			return sqlNull
		}
		return "'" + e.Format(time.RFC3339Nano) + "'"
	case []byte:
		return quote(string(e))
	default:
		return quote(fmt.Sprintf("%v", v))
	}
}

func quote(s string) string {
	if r, ok := printable(s); !ok {
		return fmt.Sprintf("[%d bytes of binary data (%q)]", len(s), r)
	}

	return "'" + s + "'"
}

func printable(s string) (rune, bool) {
	for _, r := range s {
		if unicode.IsControl(r) {
			return r, false
		}

		if unicode.IsPrint(r) {
			continue
		}

		if r > unicode.MaxASCII {
			return r, false
		}
	}

	return 0, true
}
