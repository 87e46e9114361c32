package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker(ttl time.Duration) (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(ttl)
	tr.SetClock(clock.Now)
	return tr, clock
}

func TestKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, NewKey(3, 7), NewKey(7, 3))
	assert.Equal(t, "3_7", NewKey(7, 3).String())
	assert.Equal(t, uint64(7), NewKey(3, 7).Other(3))
	assert.Equal(t, uint64(3), NewKey(3, 7).Other(7))
}

func TestSetGetOverwrite(t *testing.T) {
	tr, _ := newTestTracker(DefaultTTL)
	key := NewKey(1, 2)

	assert.False(t, tr.Get(key, 1))

	tr.Set(key, 1, true)
	assert.True(t, tr.Get(key, 1))
	assert.False(t, tr.Get(key, 2), "flags are per user")
	assert.True(t, tr.Get(NewKey(2, 1), 1), "key order must not matter")

	tr.Set(key, 1, false)
	assert.False(t, tr.Get(key, 1))
	assert.Zero(t, tr.Len())
}

func TestFlagExpiresAfterTTL(t *testing.T) {
	tr, clock := newTestTracker(10 * time.Second)
	key := NewKey(1, 2)

	tr.Set(key, 1, true)
	clock.Advance(9 * time.Second)
	assert.True(t, tr.Get(key, 1))

	// Refresh extends the deadline
	tr.Set(key, 1, true)
	clock.Advance(9 * time.Second)
	assert.True(t, tr.Get(key, 1))

	clock.Advance(time.Second)
	assert.False(t, tr.Get(key, 1))
}

func TestZeroTTLNeverExpires(t *testing.T) {
	tr, clock := newTestTracker(0)
	tr.Set(NewKey(1, 2), 1, true)

	clock.Advance(24 * time.Hour)
	assert.True(t, tr.Get(NewKey(1, 2), 1))
	assert.Zero(t, tr.Sweep())
}

func TestClearReturnsActiveConversations(t *testing.T) {
	tr, clock := newTestTracker(10 * time.Second)

	tr.Set(NewKey(1, 2), 1, true)
	tr.Set(NewKey(1, 3), 1, true)
	tr.Set(NewKey(2, 3), 2, true)

	clock.Advance(5 * time.Second)
	tr.Set(NewKey(1, 4), 1, true)
	clock.Advance(6 * time.Second) // first two flags of user 1 expired

	cleared := tr.Clear(1)
	assert.Equal(t, []Key{NewKey(1, 4)}, cleared)
	assert.False(t, tr.Get(NewKey(1, 4), 1))
	assert.Equal(t, 1, tr.Len(), "other users are untouched")
}

func TestSweepRemovesExpired(t *testing.T) {
	tr, clock := newTestTracker(time.Second)
	tr.Set(NewKey(1, 2), 1, true)
	tr.Set(NewKey(1, 2), 2, true)
	clock.Advance(2 * time.Second)
	tr.Set(NewKey(3, 4), 3, true)

	assert.Equal(t, 2, tr.Sweep())
	assert.Equal(t, 1, tr.Len())
}

func TestRunStopsWithContext(t *testing.T) {
	tr := NewTracker(time.Millisecond)
	tr.Set(NewKey(1, 2), 1, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(DefaultTTL)
	var wg sync.WaitGroup
	for i := uint64(1); i <= 20; i++ {
		wg.Add(1)
		go func(user uint64) {
			defer wg.Done()
			key := NewKey(user, user+100)
			for j := 0; j < 100; j++ {
				tr.Set(key, user, j%2 == 0)
				tr.Get(key, user)
				tr.Sweep()
			}
			tr.Clear(user)
		}(i)
	}
	wg.Wait()
	assert.Zero(t, tr.Len())
}
