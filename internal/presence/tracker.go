package presence

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// DefaultTTL is how long a typing flag survives without being refreshed
const DefaultTTL = 10 * time.Second

// Key identifies a conversation independently of who is asking: NewKey(a, b) == NewKey(b, a).
type Key struct {
	Low  uint64
	High uint64
}

func NewKey(a, b uint64) Key {
	if a > b {
		a, b = b, a
	}
	return Key{Low: a, High: b}
}

// Other returns the participant of k that is not userID
func (k Key) Other(userID uint64) uint64 {
	if k.Low == userID {
		return k.High
	}
	return k.Low
}

func (k Key) String() string {
	return strconv.FormatUint(k.Low, 10) + "_" + strconv.FormatUint(k.High, 10)
}

// Tracker holds ephemeral typing flags per conversation and user. A flag that is
// not refreshed within the TTL reads as false. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	ttl    time.Duration // 0 = flags never expire
	now    func() time.Time
	typing map[Key]map[uint64]time.Time
}

func NewTracker(ttl time.Duration) *Tracker {
	if ttl < 0 {
		ttl = 0
	}
	return &Tracker{
		ttl:    ttl,
		now:    time.Now,
		typing: make(map[Key]map[uint64]time.Time),
	}
}

// SetClock replaces the time source; intended for tests
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Set overwrites the user's flag in the conversation
func (t *Tracker) Set(key Key, userID uint64, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !isTyping {
		t.removeNoLock(key, userID)
		return
	}

	users, ok := t.typing[key]
	if !ok {
		users = make(map[uint64]time.Time)
		t.typing[key] = users
	}

	var expiry time.Time
	if t.ttl > 0 {
		expiry = t.now().Add(t.ttl)
	}
	users[userID] = expiry
}

// Get reports whether userID is currently typing in the conversation
func (t *Tracker) Get(key Key, userID uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	expiry, ok := t.typing[key][userID]
	if !ok {
		return false
	}
	if t.expiredNoLock(expiry) {
		t.removeNoLock(key, userID)
		return false
	}
	return true
}

// Clear drops every flag held by userID and returns the conversations where the
// user was still typing.
func (t *Tracker) Clear(userID uint64) []Key {
	t.mu.Lock()
	defer t.mu.Unlock()

	var cleared []Key
	for key, users := range t.typing {
		expiry, ok := users[userID]
		if !ok {
			continue
		}
		if !t.expiredNoLock(expiry) {
			cleared = append(cleared, key)
		}
		t.removeNoLock(key, userID)
	}
	return cleared
}

// Sweep removes expired flags and returns how many it removed
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, users := range t.typing {
		for userID, expiry := range users {
			if t.expiredNoLock(expiry) {
				t.removeNoLock(key, userID)
				removed++
			}
		}
	}
	return removed
}

// Run sweeps expired flags every interval until ctx is done
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Len returns the number of flags held, expired or not
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, users := range t.typing {
		n += len(users)
	}
	return n
}

func (t *Tracker) expiredNoLock(expiry time.Time) bool {
	return !expiry.IsZero() && !t.now().Before(expiry)
}

func (t *Tracker) removeNoLock(key Key, userID uint64) {
	users, ok := t.typing[key]
	if !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.typing, key)
	}
}
