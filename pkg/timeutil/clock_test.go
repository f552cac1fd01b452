package timeutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualClock_StartsAtWallTime(t *testing.T) {
	before := NowMillis()
	clock := NewVirtualClock()
	after := NowMillis()

	now := clock.NowMillis()
	assert.GreaterOrEqual(t, now, before)
	assert.LessOrEqual(t, now, after)
}

func TestVirtualClock_Advance(t *testing.T) {
	clock := NewVirtualClock()

	old, now := clock.Advance(86400000)

	assert.Equal(t, old+86400000, now)
	assert.Equal(t, now, clock.NowMillis())
}

func TestVirtualClock_AdvanceClampsNegative(t *testing.T) {
	clock := NewVirtualClock()
	before := clock.NowMillis()

	old, now := clock.Advance(-5000)

	assert.Equal(t, before, old)
	assert.Equal(t, before, now)
}

func TestVirtualClock_SetForward(t *testing.T) {
	clock := NewVirtualClock()
	target := clock.NowMillis() + 3600000

	old, err := clock.Set(target)

	require.NoError(t, err)
	assert.Less(t, old, target)
	assert.Equal(t, target, clock.NowMillis())
}

func TestVirtualClock_SetBackwardFails(t *testing.T) {
	clock := NewVirtualClock()
	clock.Advance(3600000)
	before := clock.NowMillis()

	_, err := clock.Set(before - 1)

	assert.ErrorIs(t, err, ErrBackwards)
	assert.Equal(t, before, clock.NowMillis())
}

func TestVirtualClock_Reset(t *testing.T) {
	clock := NewVirtualClock()
	clock.Advance(30 * 86400000)

	old, now := clock.Reset()

	assert.Greater(t, old, now)
	wall := NowMillis()
	assert.LessOrEqual(t, now, wall)
	assert.GreaterOrEqual(t, wall-now, int64(0))
}

func TestVirtualClock_ConcurrentAdvance(t *testing.T) {
	clock := NewVirtualClock()
	start := clock.NowMillis()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(10)
		}()
	}
	wg.Wait()

	assert.Equal(t, start+500, clock.NowMillis())
}
