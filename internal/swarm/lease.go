package swarm

import "sync"

// tenantLeases serializes spawn decisions per tenant so two concurrent
// submissions cannot both pass the limit check and spawn past it. The
// bound is hard within one coordinator process and best-effort across
// processes; distributed consensus for spawn decisions is out of scope.
type tenantLeases struct {
	mu     sync.Mutex
	leases map[string]*sync.Mutex
}

func newTenantLeases() *tenantLeases {
	return &tenantLeases{leases: make(map[string]*sync.Mutex)}
}

// acquire locks the tenant's lease and returns its release function.
func (l *tenantLeases) acquire(tenantID string) func() {
	l.mu.Lock()
	lease, ok := l.leases[tenantID]
	if !ok {
		lease = &sync.Mutex{}
		l.leases[tenantID] = lease
	}
	l.mu.Unlock()

	lease.Lock()
	return lease.Unlock
}
