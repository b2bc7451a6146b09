package throttle

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func TestAdmit_Cooldown(t *testing.T) {
	r := NewRegistry(0)
	cooldown := 10 * time.Second

	assert.True(t, r.Admit("alice", Announce, t0, cooldown), "first event fires")
	assert.False(t, r.Admit("alice", Announce, t0.Add(cooldown/2), cooldown), "inside cooldown")
	assert.False(t, r.Admit("alice", Announce, t0.Add(cooldown), cooldown), "exactly at cooldown is still suppressed")
	assert.True(t, r.Admit("alice", Announce, t0.Add(cooldown+time.Nanosecond), cooldown), "after cooldown")
}

func TestAdmit_SuppressDoesNotExtendWindow(t *testing.T) {
	r := NewRegistry(0)
	cooldown := 10 * time.Second

	require.True(t, r.Admit("alice", Announce, t0, cooldown))
	for i := 1; i <= 9; i++ {
		require.False(t, r.Admit("alice", Announce, t0.Add(time.Duration(i)*time.Second), cooldown))
	}
	last, ok := r.LastFired("alice", Announce)
	require.True(t, ok)
	assert.Equal(t, t0, last)
	assert.True(t, r.Admit("alice", Announce, t0.Add(11*time.Second), cooldown))
}

func TestAdmit_ClassesAreIndependent(t *testing.T) {
	r := NewRegistry(0)

	assert.True(t, r.Admit("alice", Announce, t0, DefaultAnnounceCooldown))
	assert.True(t, r.Admit("alice", Capture, t0, DefaultCaptureCooldown))

	// Announce re-arms after 10s while capture stays suppressed until 60s.
	at := t0.Add(15 * time.Second)
	assert.True(t, r.Admit("alice", Announce, at, DefaultAnnounceCooldown))
	assert.False(t, r.Admit("alice", Capture, at, DefaultCaptureCooldown))

	_, ok := r.LastFired("bob", Capture)
	assert.False(t, ok)
}

func TestAdmit_KeysAreIndependent(t *testing.T) {
	r := NewRegistry(0)
	assert.True(t, r.Admit("alice", Announce, t0, time.Minute))
	assert.True(t, r.Admit("bob", Announce, t0, time.Minute))
	assert.Equal(t, 2, r.Len())
}

func TestAdmit_ConcurrentSameKeyAdmitsOnce(t *testing.T) {
	r := NewRegistry(0)
	var admitted atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Admit("bob", Capture, t0, DefaultCaptureCooldown) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted.Load())
}

func TestRegistry_Bounded(t *testing.T) {
	r := NewRegistry(3)
	for i := 0; i < 10; i++ {
		r.Admit(fmt.Sprintf("unknown_%d", i), Capture, t0, time.Minute)
	}
	assert.Equal(t, 3, r.Len())

	// The oldest key was evicted, so it fires again inside its old window.
	assert.True(t, r.Admit("unknown_0", Capture, t0.Add(time.Second), time.Minute))
	// A recent one is still remembered.
	assert.False(t, r.Admit("unknown_9", Capture, t0.Add(time.Second), time.Minute))
}

func TestRegistry_RecentlySeenSurvivesEviction(t *testing.T) {
	r := NewRegistry(2)
	r.Admit("alice", Announce, t0, time.Minute)
	r.Admit("bob", Announce, t0, time.Minute)
	// Suppressed lookup still marks alice as recently used.
	require.False(t, r.Admit("alice", Announce, t0.Add(time.Second), time.Minute))
	r.Admit("carol", Announce, t0, time.Minute)

	_, ok := r.LastFired("alice", Announce)
	assert.True(t, ok)
	_, ok = r.LastFired("bob", Announce)
	assert.False(t, ok)
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "announce", Announce.String())
	assert.Equal(t, "capture", Capture.String())
}
