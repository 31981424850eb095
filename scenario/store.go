/*
store.go - Persistence interfaces for scenarios, resources and templates

PURPOSE:
  Defines the boundary between the lifecycle logic and the database. The
  Manager never talks to SQL or maps directly; it asks a Store.

ATOMIC OPERATIONS:
  PublishScenarioAtomic: archive masters + promote draft + create new draft,
                         all or nothing.
  CopyResourcesAtomic:   all N resources appear in the target, or none.
  The two are deliberately separate calls: publish commits the header
  transition first, then the resource copy runs as its own batch.

SUBSCRIPTIONS:
  Subscribe* calls onUpdate with the current state, then again after every
  write affecting the key. A load error calls onError once and ends the
  subscription. The returned func unsubscribes; cancelling ctx does too.

DRAFT GUARD:
  Resource writes and envelope replacement check that the scenario is a
  DRAFT inside the same critical section as the write, so a publish that
  lands between the Manager's own check and the write cannot mutate the
  new MASTER. Both fail with ErrReadOnly.

IMMUTABILITY:
  Resources returned by a Store must be treated as read-only. Updates
  produce a new value with a bumped Revision.

IMPLEMENTATIONS:
  - scenario/store/memory.go: in-memory, snapshot + rollback batches
  - store/sqlite/sqlite.go: SQLite with real transactions
*/
package scenario

import (
	"context"

	"github.com/warp/presence-engine/presence"
)

// =============================================================================
// STORE
// =============================================================================

// Store persists scenario headers and their resource collections.
type Store interface {
	// Scenarios
	SubscribeScenarios(ctx context.Context, ownerID string, onUpdate func([]Scenario), onError func(error)) (unsubscribe func())
	CreateScenario(ctx context.Context, s Scenario) (string, error)
	// InitScenario creates s only if its owner has no scenario yet, checked
	// in the same batch as the insert. Otherwise it fails with
	// ErrAlreadyInitialized.
	InitScenario(ctx context.Context, s Scenario) (string, error)
	// UpdateScenario applies patch. A patch that replaces the envelopes
	// fails with ErrReadOnly unless the scenario is a DRAFT when it is
	// applied.
	UpdateScenario(ctx context.Context, id string, patch ScenarioPatch) error
	// DeleteScenario removes the scenario and its resource collection.
	DeleteScenario(ctx context.Context, id string) error
	GetScenario(ctx context.Context, id string) (*Scenario, error)
	ListScenarios(ctx context.Context, ownerID string) ([]Scenario, error)

	// PublishScenarioAtomic archives currentMasters, promotes draftID to
	// MASTER and inserts newDraft in one batch. It fails with ErrNotDraft if
	// draftID is no longer a DRAFT when the batch runs. Any MASTER of the
	// owner not listed in currentMasters is archived as well; archived
	// reports every id the batch archived.
	PublishScenarioAtomic(ctx context.Context, draftID, ownerID string, newDraft Scenario, currentMasters []string) (newDraftID string, archived []string, err error)

	// Resources. AddResource, UpdateResource and DeleteResource fail with
	// ErrReadOnly unless the scenario is a DRAFT when the write runs.
	SubscribeResources(ctx context.Context, scenarioID string, onUpdate func([]*presence.Resource), onError func(error)) (unsubscribe func())
	GetResourcesOnce(ctx context.Context, scenarioID string) ([]*presence.Resource, error)
	GetResource(ctx context.Context, scenarioID, id string) (*presence.Resource, error)
	AddResource(ctx context.Context, scenarioID string, r *presence.Resource) (string, error)
	UpdateResource(ctx context.Context, scenarioID, id string, patch presence.ResourcePatch) (*presence.Resource, error)
	DeleteResource(ctx context.Context, scenarioID, id string) error

	// CopyResourcesAtomic copies every resource of source into target under
	// fresh ids and returns how many were copied.
	CopyResourcesAtomic(ctx context.Context, sourceID, targetID string) (int, error)

	// Reset removes every scenario and resource.
	Reset(ctx context.Context) error
}

// =============================================================================
// TEMPLATE STORE
// =============================================================================

// TemplateStore persists calendar templates. At most one template per
// country carries IsDefault.
type TemplateStore interface {
	// SaveTemplate inserts or replaces t. Saving a default clears the
	// previous default of the same country in the same write.
	SaveTemplate(ctx context.Context, t presence.Template) (string, error)
	GetTemplate(ctx context.Context, id string) (*presence.Template, error)
	ListTemplates(ctx context.Context, country presence.Country) ([]presence.Template, error)
	// DefaultTemplate returns nil, nil when the country has no default.
	DefaultTemplate(ctx context.Context, country presence.Country) (*presence.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
}
