package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestMockClock(t *testing.T) {
	clock := NewMockClock(time.Time{})
	AssertEqual(t, clock.Now(), Epoch)

	clock.Advance(time.Second)
	AssertEqual(t, clock.Now(), Epoch.Add(time.Second))

	got := clock.Tick(time.Nanosecond)
	AssertEqual(t, got, Epoch.Add(time.Second+time.Nanosecond))

	clock.Set(Epoch)
	AssertEqual(t, clock.Now(), Epoch)
}

func TestEventually(t *testing.T) {
	var calls atomic.Int32
	Eventually(t, time.Second, time.Millisecond, func() bool {
		return calls.Add(1) >= 3
	})
	if calls.Load() < 3 {
		t.Errorf("condition evaluated %d times, want at least 3", calls.Load())
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(t)
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("context should have a deadline")
	}
	if time.Until(deadline) > TestTimeout {
		t.Errorf("deadline %v exceeds TestTimeout", deadline)
	}
}

func TestAssertHelpers(t *testing.T) {
	AssertNoError(t, nil)
	AssertEqual(t, 42, 42)
	AssertNotEqual(t, "a", "b")
	AssertAdmitted(t, false, nil)
	AssertThrottled(t, true, nil)
}
