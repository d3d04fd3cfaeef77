package catchpanic

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errTest = fmt.Errorf("test_error")

func TestCatch(t *testing.T) {
	for _, tc := range []struct {
		name  string
		fn    func()
		isErr bool
	}{
		{"error", func() { panic(errTest) }, true},
		{"string", func() { panic("test_error") }, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			err := Catch(tc.fn)
			a.ErrorContains(err, "test_error")
			a.Equal(tc.isErr, errors.Is(err, errTest))

			var pe *PanicError
			if a.ErrorAs(err, &pe) {
				a.NotEmpty(pe.Stack)
			}
		})
	}

	assert.New(t).NoError(Catch(func() {}))
}

func TestCatchErr0(t *testing.T) {
	a := assert.New(t)

	err := CatchErr0(func() error { return errTest })
	a.ErrorIs(err, errTest)
	var pe *PanicError
	a.False(errors.As(err, &pe))

	err = CatchErr0(func() error { panic(errTest) })
	a.ErrorIs(err, errTest)
	a.True(errors.As(err, &pe))

	a.NoError(CatchErr0(func() error { return nil }))
}
