package grid

import (
	"sync"
	"sync/atomic"
)

// Manager owns the current snapshot and hands out versions.
//
// Readers call Current without locking; writers serialize on mu so versions
// are strictly increasing.
type Manager struct {
	mu      sync.Mutex
	version uint64
	current atomic.Pointer[Snapshot]
}

func NewManager() *Manager {
	return &Manager{}
}

// Prepare builds the next version without publishing it.
func (m *Manager) Prepare(p Params) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := Build(p, m.version+1)
	if err != nil {
		return nil, err
	}
	m.version = s.version
	return s, nil
}

// Publish makes s current. Snapshots older than the current one are ignored.
func (m *Manager) Publish(s *Snapshot) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.current.Load(); cur != nil && cur.version >= s.version {
		return
	}
	m.current.Store(s)
}

// Rebuild prepares and publishes in one step.
func (m *Manager) Rebuild(p Params) (*Snapshot, error) {
	s, err := m.Prepare(p)
	if err != nil {
		return nil, err
	}
	m.Publish(s)
	return s, nil
}

// Current returns the published snapshot, nil before the first build.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}
