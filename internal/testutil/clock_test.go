package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestClock_StepsAfterEachReading(t *testing.T) {
	clock := NewClock(epoch, time.Second)

	assert.Equal(t, epoch, clock.Now())
	assert.Equal(t, epoch.Add(time.Second), clock.Now())
	assert.Equal(t, epoch.Add(2*time.Second), clock.Peek())
	assert.Equal(t, epoch.Add(2*time.Second), clock.Now())
}

func TestClock_ZeroStepIsFrozen(t *testing.T) {
	clock := NewClock(epoch, 0)
	assert.Equal(t, clock.Now(), clock.Now())
}

func TestClock_Advance(t *testing.T) {
	clock := NewClock(epoch, 0)
	clock.Advance(time.Hour)
	assert.Equal(t, epoch.Add(time.Hour), clock.Now())
}

func TestClock_ConcurrentReadingsAreDistinct(t *testing.T) {
	clock := NewClock(epoch, time.Millisecond)

	const n = 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[time.Time]bool, n)

	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts := clock.Now()
			mu.Lock()
			seen[ts] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	assert.Equal(t, epoch.Add(n*time.Millisecond), clock.Peek())
}
