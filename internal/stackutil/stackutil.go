package stackutil

import (
	"fmt"
	"runtime"
	"strings"
)

// GetStack returns up to depth frames of the caller's stack, skipping skip
// frames above the caller.
func GetStack(depth, skip int) []runtime.Frame {
	pc := make([]uintptr, depth)

	// 2 skips runtime.Callers and GetStack itself
	n := runtime.Callers(skip+2, pc)
	if n == 0 {
		return []runtime.Frame{}
	}

	frames := runtime.CallersFrames(pc[:n])

	a := make([]runtime.Frame, 0, n)
	for {
		frame, more := frames.Next()
		a = append(a, frame)
		if !more {
			break
		}
	}

	return a
}

// InPackage reports whether the frame's function belongs to one of the
// packages or anything nested below them.
func InPackage(f runtime.Frame, packages ...string) bool {
	for _, p := range packages {
		if strings.HasPrefix(f.Function, p+".") || strings.HasPrefix(f.Function, p+"/") {
			return true
		}
	}

	return false
}

func FormatStackFrame(f runtime.Frame) string {
	return fmt.Sprintf("%s:%d: %s", f.File, f.Line, f.Function)
}
