package autosave

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestDebouncerTrailingEdge(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(0, 0))
	var runs atomic.Int32
	d := NewDebouncer(clk, 2*time.Second, func() { runs.Add(1) })

	d.Trigger()
	clk.Step(1900 * time.Millisecond)
	d.Trigger()
	assert.True(t, d.Pending())

	clk.Step(1900 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())

	clk.Step(100 * time.Millisecond)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !d.Pending() }, time.Second, time.Millisecond)
}

func TestDebouncerCancel(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(0, 0))
	var runs atomic.Int32
	d := NewDebouncer(clk, time.Second, func() { runs.Add(1) })

	d.Trigger()
	d.Cancel()
	assert.False(t, d.Pending())

	clk.Step(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}
