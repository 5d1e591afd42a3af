package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BreatheLabs/stillpoint/pkg/clock"
)

func TestSystemClockNow(t *testing.T) {
	c := clock.New()
	before := time.Now()
	now := c.Now()
	after := time.Now()

	assert.False(t, now.Before(before))
	assert.False(t, now.After(after))
}

func TestFakeAdvanceFiresDueTimers(t *testing.T) {
	start := time.Unix(1700000000, 0)
	f := clock.NewFake(start)

	var fired []string
	f.AfterFunc(10*time.Second, func() { fired = append(fired, "a") })
	f.AfterFunc(5*time.Second, func() { fired = append(fired, "b") })
	f.AfterFunc(30*time.Second, func() { fired = append(fired, "c") })

	f.Advance(10 * time.Second)

	assert.Equal(t, []string{"b", "a"}, fired)
	assert.Equal(t, 1, f.Pending())
	assert.Equal(t, start.Add(10*time.Second), f.Now())
}

func TestFakeStopPreventsFire(t *testing.T) {
	f := clock.NewFake(time.Unix(1700000000, 0))

	fired := false
	timer := f.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	f.Advance(2 * time.Second)

	assert.False(t, fired)
	assert.False(t, timer.Stop(), "second stop reports already settled")
	assert.Equal(t, 0, f.Pending())
}

func TestFakeCallbackObservesDeadlineTime(t *testing.T) {
	start := time.Unix(1700000000, 0)
	f := clock.NewFake(start)

	var seen time.Time
	f.AfterFunc(7*time.Second, func() { seen = f.Now() })

	f.Advance(time.Minute)

	assert.Equal(t, start.Add(7*time.Second), seen)
	assert.Equal(t, start.Add(time.Minute), f.Now())
}

func TestFakeCallbackMayArmNewTimer(t *testing.T) {
	f := clock.NewFake(time.Unix(1700000000, 0))

	var fired []string
	f.AfterFunc(time.Second, func() {
		fired = append(fired, "first")
		f.AfterFunc(time.Second, func() { fired = append(fired, "chained") })
	})

	f.Advance(3 * time.Second)

	assert.Equal(t, []string{"first", "chained"}, fired)
	assert.Equal(t, 0, f.Pending())
}
