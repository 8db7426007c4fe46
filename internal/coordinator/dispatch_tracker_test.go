// Package coordinator provides the coordinator side of a distributed sort.
// This file contains tests for dispatch status tracking.
package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewDispatchTracker verifies that a new tracker starts empty.
func TestNewDispatchTracker(t *testing.T) {
	tracker := NewDispatchTracker()

	assert.NotNil(t, tracker.records)
	assert.Empty(t, tracker.All())
	assert.Nil(t, tracker.Get("10.0.0.1:4000"))

	succeeded, failed := tracker.Counts()
	assert.Zero(t, succeeded)
	assert.Zero(t, failed)
}

// TestDispatchTrackerLifecycle verifies the status transitions of one worker.
func TestDispatchTrackerLifecycle(t *testing.T) {
	tracker := NewDispatchTracker()

	// Fixed clock so elapsed time is predictable
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	tracker.now = func() time.Time { return clock }

	tracker.Begin("10.0.0.1:4000", "10.0.0.1", 250)
	rec := tracker.Get("10.0.0.1:4000")
	require.NotNil(t, rec)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, 250, rec.Elements)
	assert.Equal(t, "10.0.0.1", rec.Identity)
	assert.True(t, rec.Finished.IsZero())

	tracker.Mark("10.0.0.1:4000", StatusSending)
	assert.Equal(t, StatusSending, tracker.Get("10.0.0.1:4000").Status)

	tracker.Mark("10.0.0.1:4000", StatusAwaiting)
	assert.Equal(t, StatusAwaiting, tracker.Get("10.0.0.1:4000").Status)

	clock = base.Add(1500 * time.Millisecond)
	tracker.Succeed("10.0.0.1:4000")

	rec = tracker.Get("10.0.0.1:4000")
	require.NotNil(t, rec)
	assert.Equal(t, StatusSucceeded, rec.Status)
	assert.Equal(t, 1500*time.Millisecond, rec.Elapsed())
	assert.Empty(t, rec.LastError)
}

// TestDispatchTrackerFailure verifies failure bookkeeping and lost element counts.
func TestDispatchTrackerFailure(t *testing.T) {
	tracker := NewDispatchTracker()

	tracker.Begin("a:1", "a", 10)
	tracker.Begin("b:1", "b", 20)
	tracker.Begin("c:1", "c", 30)

	tracker.Succeed("a:1")
	tracker.Fail("b:1", errors.New("connection reset by peer"))
	tracker.Fail("c:1", errors.New("i/o timeout"))

	succeeded, failed := tracker.Counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 2, failed)
	assert.Equal(t, 50, tracker.LostElements())

	rec := tracker.Get("b:1")
	require.NotNil(t, rec)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "connection reset by peer", rec.LastError)
}

// TestDispatchTrackerUnknownAddress verifies calls for unknown workers are ignored.
func TestDispatchTrackerUnknownAddress(t *testing.T) {
	tracker := NewDispatchTracker()

	tracker.Mark("ghost:1", StatusSending)
	tracker.Succeed("ghost:1")
	tracker.Fail("ghost:1", errors.New("x"))

	assert.Empty(t, tracker.All())
}

// TestDispatchTrackerReturnsCopies verifies callers cannot mutate tracker state.
func TestDispatchTrackerReturnsCopies(t *testing.T) {
	tracker := NewDispatchTracker()
	tracker.Begin("a:1", "a", 5)

	rec := tracker.Get("a:1")
	rec.Status = StatusFailed

	all := tracker.All()
	entry := all["a:1"]
	entry.Elements = 99

	assert.Equal(t, StatusPending, tracker.Get("a:1").Status)
	assert.Equal(t, 5, tracker.Get("a:1").Elements)
}

// TestDispatchTrackerConcurrentAccess verifies the tracker under concurrent dispatches.
func TestDispatchTrackerConcurrentAccess(t *testing.T) {
	tracker := NewDispatchTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("10.0.0.%d:5000", i)
			tracker.Begin(addr, addr, i)
			tracker.Mark(addr, StatusSending)
			tracker.Mark(addr, StatusAwaiting)
			if i%5 == 0 {
				tracker.Fail(addr, errors.New("boom"))
			} else {
				tracker.Succeed(addr)
			}
			_ = tracker.All()
		}(i)
	}
	wg.Wait()

	succeeded, failed := tracker.Counts()
	assert.Equal(t, 40, succeeded)
	assert.Equal(t, 10, failed)
	// 0+5+10+...+45
	assert.Equal(t, 225, tracker.LostElements())
}
