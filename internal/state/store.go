package state

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist for the given
// tenant and id.
var ErrNotFound = errors.New("record not found")

// Store is tenant-scoped hierarchical record storage for sprite, work and
// project records plus tenant configuration, brand context and usage
// counters.
//
// Concurrency contract: implementations must be safe for concurrent use.
// Patch updates merge at field granularity, so concurrent writers touching
// disjoint fields never clobber each other; concurrent writes to the same
// field resolve arbitrarily by write order with no conflict signal. There
// are no transactions across record types.
type Store interface {
	// Sprites.
	PutSprite(ctx context.Context, tenantID string, sprite *SpriteRecord) error
	GetSprite(ctx context.Context, tenantID, spriteID string) (*SpriteRecord, error)
	UpdateSprite(ctx context.Context, tenantID, spriteID string, patch SpritePatch) error
	// ActiveSprites returns every sprite whose status is non-terminal.
	ActiveSprites(ctx context.Context, tenantID string) ([]*SpriteRecord, error)

	// Work.
	PutWork(ctx context.Context, tenantID string, work *WorkRecord) error
	GetWork(ctx context.Context, tenantID, workID string) (*WorkRecord, error)
	UpdateWork(ctx context.Context, tenantID, workID string, patch WorkPatch) error
	// WorkByStatus returns work records in the given status, oldest first.
	WorkByStatus(ctx context.Context, tenantID string, status WorkStatus) ([]*WorkRecord, error)

	// Projects.
	PutProject(ctx context.Context, tenantID string, project *Project) error
	GetProject(ctx context.Context, tenantID, projectID string) (*Project, error)
	UpdateProject(ctx context.Context, tenantID, projectID string, patch ProjectPatch) error

	// Tenant configuration and brand context.
	// Tenants lists every tenant id known to the store.
	Tenants(ctx context.Context) ([]string, error)
	Tenant(ctx context.Context, tenantID string) (*TenantConfig, error)
	PutTenant(ctx context.Context, cfg *TenantConfig) error
	Brand(ctx context.Context, tenantID string) (*BrandContext, error)
	PutBrand(ctx context.Context, tenantID string, brand *BrandContext) error

	// Usage counters.
	AddUsage(ctx context.Context, tenantID string, tokens int64, sprites int) error
	Usage(ctx context.Context, tenantID string) (*Usage, error)
	ResetUsage(ctx context.Context, tenantID string) error
}
