package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/highera/swarm/internal/agent"
)

// MemoryStore is an in-memory Store implementation. It backs single-node
// deployments and tests. All records are deep-copied on the way in and out
// so callers never share memory with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]*tenantRecords
}

type tenantRecords struct {
	config   *TenantConfig
	brand    *BrandContext
	usage    Usage
	sprites  map[string]*SpriteRecord
	work     map[string]*WorkRecord
	projects map[string]*Project
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]*tenantRecords)}
}

// tenant returns the record set for a tenant, creating it if needed.
// Callers must hold the write lock.
func (m *MemoryStore) tenant(tenantID string) *tenantRecords {
	t, ok := m.tenants[tenantID]
	if !ok {
		t = &tenantRecords{
			sprites:  make(map[string]*SpriteRecord),
			work:     make(map[string]*WorkRecord),
			projects: make(map[string]*Project),
		}
		m.tenants[tenantID] = t
	}
	return t
}

// PutSprite creates or replaces a sprite record.
func (m *MemoryStore) PutSprite(ctx context.Context, tenantID string, sprite *SpriteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sprite
	m.tenant(tenantID).sprites[sprite.SpriteID] = &cp
	return nil
}

// GetSprite returns a sprite record or ErrNotFound.
func (m *MemoryStore) GetSprite(ctx context.Context, tenantID, spriteID string) (*SpriteRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	s, ok := t.sprites[spriteID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// UpdateSprite applies a field-level patch to a sprite record.
func (m *MemoryStore) UpdateSprite(ctx context.Context, tenantID, spriteID string, patch SpritePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return ErrNotFound
	}
	s, ok := t.sprites[spriteID]
	if !ok {
		return ErrNotFound
	}
	if patch.Status != nil {
		s.Status = *patch.Status
	}
	if patch.CurrentTask != nil {
		s.CurrentTask = *patch.CurrentTask
	}
	if patch.TasksCompleted != nil {
		s.TasksCompleted = *patch.TasksCompleted
	}
	if patch.TokensUsed != nil {
		s.TokensUsed = *patch.TokensUsed
	}
	if patch.LastHeartbeat != nil {
		s.LastHeartbeat = *patch.LastHeartbeat
	}
	return nil
}

// ActiveSprites returns sprites whose status is non-terminal, oldest first.
func (m *MemoryStore) ActiveSprites(ctx context.Context, tenantID string) ([]*SpriteRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	var out []*SpriteRecord
	for _, s := range t.sprites {
		if s.Status.Terminal() {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PutWork creates or replaces a work record.
func (m *MemoryStore) PutWork(ctx context.Context, tenantID string, work *WorkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(tenantID).work[work.WorkID] = cloneWork(work)
	return nil
}

// GetWork returns a work record or ErrNotFound.
func (m *MemoryStore) GetWork(ctx context.Context, tenantID, workID string) (*WorkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	w, ok := t.work[workID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneWork(w), nil
}

// UpdateWork applies a field-level patch to a work record.
func (m *MemoryStore) UpdateWork(ctx context.Context, tenantID, workID string, patch WorkPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return ErrNotFound
	}
	w, ok := t.work[workID]
	if !ok {
		return ErrNotFound
	}
	if patch.Status != nil {
		w.Status = *patch.Status
	}
	if patch.AssignedSprite != nil {
		w.AssignedSprite = *patch.AssignedSprite
	}
	if patch.Output != nil {
		w.Output = *patch.Output
	}
	if patch.Error != nil {
		w.Error = *patch.Error
	}
	if patch.TokensUsed != nil {
		w.TokensUsed = *patch.TokensUsed
	}
	if patch.Dispatches != nil {
		w.Dispatches = *patch.Dispatches
	}
	if patch.AssignedAt != nil {
		w.AssignedAt = *patch.AssignedAt
	}
	if patch.CompletedAt != nil {
		w.CompletedAt = *patch.CompletedAt
	}
	return nil
}

// WorkByStatus returns work records in the given status, oldest first.
func (m *MemoryStore) WorkByStatus(ctx context.Context, tenantID string, status WorkStatus) ([]*WorkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	var out []*WorkRecord
	for _, w := range t.work {
		if w.Status != status {
			continue
		}
		out = append(out, cloneWork(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PutProject creates or replaces a project.
func (m *MemoryStore) PutProject(ctx context.Context, tenantID string, project *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(tenantID).projects[project.ProjectID] = cloneProject(project)
	return nil
}

// GetProject returns a project or ErrNotFound.
func (m *MemoryStore) GetProject(ctx context.Context, tenantID, projectID string) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	p, ok := t.projects[projectID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProject(p), nil
}

// UpdateProject applies a field-level patch to a project.
func (m *MemoryStore) UpdateProject(ctx context.Context, tenantID, projectID string, patch ProjectPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return ErrNotFound
	}
	p, ok := t.projects[projectID]
	if !ok {
		return ErrNotFound
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	return nil
}

// Tenants lists every tenant id known to the store, sorted.
func (m *MemoryStore) Tenants(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.tenants))
	for id := range m.tenants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Tenant returns a tenant's configuration or ErrNotFound.
func (m *MemoryStore) Tenant(ctx context.Context, tenantID string) (*TenantConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok || t.config == nil {
		return nil, ErrNotFound
	}
	return cloneTenantConfig(t.config), nil
}

// PutTenant creates or replaces a tenant's configuration.
func (m *MemoryStore) PutTenant(ctx context.Context, cfg *TenantConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(cfg.TenantID).config = cloneTenantConfig(cfg)
	return nil
}

// Brand returns a tenant's brand context or ErrNotFound.
func (m *MemoryStore) Brand(ctx context.Context, tenantID string) (*BrandContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok || t.brand == nil {
		return nil, ErrNotFound
	}
	return cloneBrand(t.brand), nil
}

// PutBrand creates or replaces a tenant's brand context.
func (m *MemoryStore) PutBrand(ctx context.Context, tenantID string, brand *BrandContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(tenantID).brand = cloneBrand(brand)
	return nil
}

// AddUsage increments a tenant's usage counters.
func (m *MemoryStore) AddUsage(ctx context.Context, tenantID string, tokens int64, sprites int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(tenantID)
	t.usage.TokensUsed += tokens
	t.usage.SpritesSpawned += sprites
	t.usage.LastUpdated = time.Now().UTC()
	return nil
}

// Usage returns a tenant's current usage counters. Unknown tenants read as
// zero usage.
func (m *MemoryStore) Usage(ctx context.Context, tenantID string) (*Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return &Usage{}, nil
	}
	cp := t.usage
	return &cp, nil
}

// ResetUsage zeroes a tenant's usage counters, called on billing cycle.
func (m *MemoryStore) ResetUsage(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(tenantID)
	t.usage = Usage{LastUpdated: time.Now().UTC()}
	return nil
}

// Records carry maps and slices, so a plain value copy would still alias
// store-internal memory. SpriteRecord and Usage are all value fields and
// need no helper.

func cloneWork(w *WorkRecord) *WorkRecord {
	cp := *w
	cp.Task.Context = cloneStringMap(w.Task.Context)
	return &cp
}

func cloneProject(p *Project) *Project {
	cp := *p
	cp.AgentsNeeded = append([]agent.Type(nil), p.AgentsNeeded...)
	return &cp
}

func cloneTenantConfig(c *TenantConfig) *TenantConfig {
	cp := *c
	cp.EnabledAgents = append([]agent.Type(nil), c.EnabledAgents...)
	return &cp
}

func cloneBrand(b *BrandContext) *BrandContext {
	cp := *b
	cp.Keywords = append([]string(nil), b.Keywords...)
	cp.Avoid = append([]string(nil), b.Avoid...)
	return &cp
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
