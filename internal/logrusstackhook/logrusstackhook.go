// Package logrusstackhook adds the caller's stack to log entries at chosen
// levels, one field per frame.
package logrusstackhook

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/playlister/internal/stackutil"
)

const maxDepth = 25

// FilterFunc reports whether a frame should be kept.
type FilterFunc func(index int, frame runtime.Frame) bool

func IgnorePackages(packages ...string) FilterFunc {
	return func(index int, frame runtime.Frame) bool {
		return !stackutil.InPackage(frame, packages...)
	}
}

func CombineFilters(a ...FilterFunc) FilterFunc {
	return func(index int, frame runtime.Frame) bool {
		for _, fn := range a {
			if !fn(index, frame) {
				return false
			}
		}

		return true
	}
}

var (
	DefaultLevels = []logrus.Level{logrus.DebugLevel, logrus.TraceLevel}
	DefaultFilter = IgnorePackages("github.com/sirupsen/logrus")
)

type StackHook struct {
	levels []logrus.Level
	filter FilterFunc
}

func NewStackHook(levels []logrus.Level, filter FilterFunc) *StackHook {
	if levels == nil {
		levels = DefaultLevels
	}

	if filter == nil {
		filter = DefaultFilter
	}

	return &StackHook{levels: levels, filter: filter}
}

func (h *StackHook) Levels() []logrus.Level { return h.levels }

// Fire numbers kept frames consecutively, so stack.00 is always the first
// frame outside logrus.
func (h *StackHook) Fire(e *logrus.Entry) error {
	n := 0

	for index, frame := range stackutil.GetStack(maxDepth, 1) {
		if !h.filter(index, frame) {
			continue
		}

		e.Data[fmt.Sprintf("stack.%02d", n)] = stackutil.FormatStackFrame(frame)
		n++
	}

	return nil
}
