package liveness

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerPingPongLatencyEMA(t *testing.T) {
	var sent []uint32
	var mu sync.Mutex
	c := NewController(10*time.Millisecond, func(nowMillis int64, seq uint32) error {
		mu.Lock()
		sent = append(sent, seq)
		mu.Unlock()
		return nil
	})

	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sent) >= 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	seq := sent[0]
	mu.Unlock()

	time.Sleep(5 * time.Millisecond)
	c.HandlePong(seq)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.PongsReceived)
	assert.Greater(t, stats.LastLatency, time.Duration(0))
	assert.Equal(t, stats.LastLatency, stats.AverageLatency)
}

func TestControllerDuplicatePongDropped(t *testing.T) {
	c := NewController(time.Hour, func(int64, uint32) error { return nil })
	c.firePing()
	stats := c.Stats()
	require.Equal(t, uint64(1), stats.PingsSent)

	c.HandlePong(0)
	c.HandlePong(0) // duplicate, silently dropped

	stats = c.Stats()
	assert.Equal(t, uint64(1), stats.PongsReceived)
}

func TestControllerUnknownPongDropped(t *testing.T) {
	c := NewController(time.Hour, func(int64, uint32) error { return nil })
	c.HandlePong(999)
	assert.Equal(t, uint64(0), c.Stats().PongsReceived)
}

func TestControllerResetClearsCounters(t *testing.T) {
	c := NewController(time.Hour, func(int64, uint32) error { return nil })
	c.firePing()
	c.HandlePong(0)
	require.Equal(t, uint64(1), c.Stats().PingsSent)

	c.Reset()
	stats := c.Stats()
	assert.Equal(t, uint64(0), stats.PingsSent)
	assert.Equal(t, uint64(0), stats.PongsReceived)
	assert.Equal(t, time.Duration(0), stats.AverageLatency)
}

func TestReconnectSchedulerSucceedsOnFirstAttempt(t *testing.T) {
	var failedCalled int32
	r := NewReconnectScheduler(3, 5*time.Millisecond, func() error {
		return nil
	}, func() { atomic.AddInt32(&failedCalled, 1) })

	r.Start()
	require.Eventually(t, func() bool {
		return r.Attempts() == 0 && !r.isRunning()
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&failedCalled))
}

func TestReconnectSchedulerExhaustsAttempts(t *testing.T) {
	var failedCalled int32
	attemptErr := errors.New("refused")
	r := NewReconnectScheduler(2, 2*time.Millisecond, func() error {
		return attemptErr
	}, func() { atomic.AddInt32(&failedCalled, 1) })

	r.Start()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&failedCalled) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 2, r.Attempts())
}

func TestReconnectSchedulerStopObservedWithinOneTick(t *testing.T) {
	r := NewReconnectScheduler(Unlimited, time.Hour, func() error {
		return errors.New("never reached in time")
	}, func() {})

	r.Start()
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return promptly")
	}
}

// isRunning is a tiny test-only accessor; it duplicates the package's own
// locking rather than exporting running to production callers.
func (r *ReconnectScheduler) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
