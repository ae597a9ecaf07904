package engine

import "sync"

// tenantLocks serializes publishes per tenant within this process. The
// advisory transaction lock inside the tenant database covers other
// processes; this keeps a slow local publish from racing a faster one and
// overwriting its newer snapshot with stale data.
type tenantLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTenantLocks() *tenantLocks {
	return &tenantLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *tenantLocks) Lock(tenantID string) {
	l.mu.Lock()
	m, ok := l.locks[tenantID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[tenantID] = m
	}
	l.mu.Unlock()
	m.Lock()
}

func (l *tenantLocks) Unlock(tenantID string) {
	l.mu.Lock()
	m := l.locks[tenantID]
	l.mu.Unlock()
	m.Unlock()
}
