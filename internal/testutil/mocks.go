package testutil

import (
	"sync"
	"time"
)

// Epoch is a fixed logical start time shared by deterministic tests.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// MockClock is a controllable logical clock used to produce decision times.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock starting at the given time.
// If zero time is provided, starts at Epoch.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = Epoch
	}
	return &MockClock{now: start}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Tick advances the clock by d and returns the new time.
func (m *MockClock) Tick(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Set sets the mock clock to a specific time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}
