package schedstore

import (
	"fmt"
	"sync"

	"github.com/vnykmshr/detthrottle/pkg/common/errors"
	"github.com/vnykmshr/detthrottle/pkg/throttle"
)

// Memory is an in-process schedule store. It is safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	schedules map[string]throttle.ScheduledTxn
}

var _ throttle.ScheduleStore = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{schedules: make(map[string]throttle.ScheduledTxn)}
}

// Put stores s under id, replacing any previous schedule.
func (m *Memory) Put(id string, s throttle.ScheduledTxn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[id] = s
}

// Delete removes the schedule stored under id.
func (m *Memory) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
}

// Len returns the number of stored schedules.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.schedules)
}

// Get returns a copy of the schedule stored under id.
func (m *Memory) Get(id string) (*throttle.ScheduledTxn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", id, errors.ErrNotFound)
	}
	return &s, nil
}
