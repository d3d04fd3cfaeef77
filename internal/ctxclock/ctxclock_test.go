package ctxclock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowWithoutClock(t *testing.T) {
	a := assert.New(t)

	_, err := Now(context.Background())
	a.ErrorIs(err, ErrNoClock)
}

func TestStaticClock(t *testing.T) {
	a := assert.New(t)

	at := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
	ctx := WithClock(context.Background(), NewStaticClock(at))

	for i := 0; i < 3; i++ {
		now, err := Now(ctx)
		a.NoError(err)
		a.Equal(at, now)
	}
}

func TestSteppingClock(t *testing.T) {
	a := assert.New(t)

	at := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
	c := NewSteppingClock(at, time.Second)

	for i := 0; i < 3; i++ {
		now, err := c.Now()
		a.NoError(err)
		a.Equal(at.Add(time.Duration(i)*time.Second), now)
	}
}

func TestTestClock(t *testing.T) {
	a := assert.New(t)

	at := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
	c := NewTestClock([]TestClockResult{
		{Time: at},
		{Error: fmt.Errorf("test_error")},
	})

	now, err := c.Now()
	a.NoError(err)
	a.Equal(at, now)

	_, err = c.Now()
	a.ErrorContains(err, "test_error")

	_, err = c.Now()
	a.ErrorIs(err, ErrNoTimesLeft)
}

func TestWithClockDefaultsToRealClock(t *testing.T) {
	a := assert.New(t)

	before := time.Now()
	now, err := Now(WithClock(context.Background(), nil))
	a.NoError(err)
	a.False(now.Before(before))
}
