package autosave

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestIndicatorHidesAfterDuration(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(0, 0))

	var mu sync.Mutex
	var changes []bool
	ind := NewIndicator(clk, 2*time.Second, func(v bool) {
		mu.Lock()
		changes = append(changes, v)
		mu.Unlock()
	})

	assert.Equal(t, "", ind.Label())
	ind.Show()
	assert.Equal(t, IndicatorLabel, ind.Label())

	clk.Step(2 * time.Second)
	require.Eventually(t, func() bool { return !ind.Visible() }, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, changes)
}

func TestIndicatorReplacedKeepsNewOne(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(0, 0))
	ind := NewIndicator(clk, 2*time.Second, nil)

	ind.Show()
	clk.Step(1500 * time.Millisecond)
	ind.Show()

	// The first indicator's removal time passes; the replacement stays.
	clk.Step(1000 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, ind.Visible())

	clk.Step(1000 * time.Millisecond)
	require.Eventually(t, func() bool { return !ind.Visible() }, time.Second, time.Millisecond)
}
