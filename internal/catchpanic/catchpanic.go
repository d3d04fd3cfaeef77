package catchpanic

import (
	"fmt"
	"runtime"

	"fknsrs.biz/p/playlister/internal/stackutil"
)

// PanicError is a recovered panic with the stack where it happened.
type PanicError struct {
	Value interface{}
	Stack []runtime.Frame
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("catchpanic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func Catch(fn func()) (err error) {
	defer func() {
		if ex := recover(); ex != nil {
			// skip this closure and the runtime's panic frames
			err = &PanicError{Value: ex, Stack: stackutil.GetStack(32, 2)}
		}
	}()

	fn()

	return
}

func CatchErr0(fn func() error) error {
	var err error

	if err1 := Catch(func() { err = fn() }); err1 != nil {
		return err1
	}

	return err
}
