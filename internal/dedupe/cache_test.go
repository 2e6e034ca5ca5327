// ABOUTME: Tests for the webhook replay suppression cache.
// ABOUTME: Validates TTL expiration, size limits, eviction, cleanup, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_Check_NotSeen(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.Check("sms:SM-never-seen"))
}

func TestCache_Check_Seen(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	cache.Mark("sms:SM001")

	assert.True(t, cache.Check("sms:SM001"))
}

func TestCache_Check_Expired(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.Mark("sms:SM001")
	time.Sleep(20 * time.Millisecond)

	assert.False(t, cache.Check("sms:SM001"))
}

func TestCache_CheckAndMark_FirstDelivery(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	// First delivery is not a replay and is now marked.
	assert.False(t, cache.CheckAndMark("sms:SM001"))
	assert.True(t, cache.Check("sms:SM001"))
}

func TestCache_CheckAndMark_Replay(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.CheckAndMark("sms:SM001"))

	// The provider retries the same event.
	assert.True(t, cache.CheckAndMark("sms:SM001"))
	assert.True(t, cache.CheckAndMark("sms:SM001"))
}

func TestCache_CheckAndMark_ExpiredKeyIsNewAgain(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	assert.False(t, cache.CheckAndMark("sms:SM001"))
	time.Sleep(20 * time.Millisecond)

	assert.False(t, cache.CheckAndMark("sms:SM001"))
}

func TestCache_ReplayRefreshesWindow(t *testing.T) {
	cache := New(40*time.Millisecond, 100)
	defer cache.Close()

	cache.Mark("sms:SM001")
	time.Sleep(25 * time.Millisecond)

	// A replay inside the window refreshes the timestamp, so the key is
	// still suppressed after the original window would have lapsed.
	assert.True(t, cache.CheckAndMark("sms:SM001"))
	time.Sleep(25 * time.Millisecond)

	assert.True(t, cache.Check("sms:SM001"))
}

func TestCache_SizeLimit_EvictsOldest(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	cache.Mark("sms:SM001")
	cache.Mark("sms:SM002")
	cache.Mark("sms:SM003")
	cache.Mark("sms:SM004")

	assert.False(t, cache.Check("sms:SM001"))
	assert.True(t, cache.Check("sms:SM002"))
	assert.True(t, cache.Check("sms:SM003"))
	assert.True(t, cache.Check("sms:SM004"))
	assert.Equal(t, 3, cache.Len())
}

func TestCache_Cleanup_RemovesExpired(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.Mark("sms:SM001")
	cache.Mark("sms:SM002")
	time.Sleep(20 * time.Millisecond)

	cache.runCleanup()

	assert.Equal(t, 0, cache.Len())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "sms:SM001", Key("sms", "SM001"))
	assert.Equal(t, "voice:CA001", Key("voice", "CA001"))

	// The channel qualifier keeps same-ID events on different channels
	// distinct.
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.CheckAndMark(Key("sms", "X1")))
	assert.False(t, cache.CheckAndMark(Key("voice", "X1")))
	assert.True(t, cache.CheckAndMark(Key("sms", "X1")))
}

func TestCache_Concurrency(t *testing.T) {
	cache := New(5*time.Minute, 1000)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := Key("sms", fmt.Sprintf("SM%d-%d", n, j))
				cache.CheckAndMark(key)
				cache.Check(key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000, cache.Len())
}

func TestCache_Close_Idempotent(t *testing.T) {
	cache := New(5*time.Minute, 100)

	cache.Close()
	cache.Close()
}

func TestCache_ConcurrentRetries_OnlyOnePasses(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	passed := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.CheckAndMark("sms:SM-burst") {
				mu.Lock()
				passed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, passed)
}
