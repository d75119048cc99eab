package store

import "sync"

// projectLocks hands out one mutex per project so read-modify-write cycles
// on a project's documents cannot interleave. Locks are never evicted; the
// map grows with the number of projects touched by the process, which is
// bounded and small.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *projectLocks) Get(projectID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		p.locks[projectID] = m
	}
	return m
}
