package scenario

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/presence-engine/presence"
)

// =============================================================================
// RESOURCE VIEW - Identity-preserving reads
// =============================================================================

// ResourceView holds one *Resource per id and swaps it only when the stored
// revision changes. Stores that decode rows on every read would otherwise
// hand out a new pointer each time and defeat the identity-keyed stats
// cache.
type ResourceView struct {
	mu   sync.Mutex
	byID map[string]*presence.Resource
}

func NewResourceView() *ResourceView {
	return &ResourceView{byID: make(map[string]*presence.Resource)}
}

// Sync reconciles the view with list and returns the canonical pointers in
// list order. Ids missing from list are dropped.
func (v *ResourceView) Sync(list []*presence.Resource) []*presence.Resource {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]*presence.Resource, len(list))
	next := make(map[string]*presence.Resource, len(list))
	for i, r := range list {
		if prev, ok := v.byID[r.ID]; ok && prev.Revision == r.Revision {
			r = prev
		}
		next[r.ID] = r
		out[i] = r
	}
	v.byID = next
	return out
}

// Get returns the canonical pointer for id.
func (v *ResourceView) Get(id string) (*presence.Resource, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	r, ok := v.byID[id]
	return r, ok
}

func (m *Manager) view(scenarioID string) *ResourceView {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.views[scenarioID]
	if !ok {
		v = NewResourceView()
		m.views[scenarioID] = v
	}
	return v
}

// =============================================================================
// READS
// =============================================================================

// Resources returns the scenario's resources. The same pointer comes back
// for a resource until it is edited.
func (m *Manager) Resources(ctx context.Context, scenarioID string) ([]*presence.Resource, error) {
	list, err := m.store.GetResourcesOnce(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	return m.view(scenarioID).Sync(list), nil
}

// Resource returns one resource through the scenario's view.
func (m *Manager) Resource(ctx context.Context, scenarioID, resourceID string) (*presence.Resource, error) {
	list, err := m.Resources(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		if r.ID == resourceID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, resourceID)
}

// ResourceStats returns the yearly stats of a resource, served from the
// cache while the resource is unchanged.
func (m *Manager) ResourceStats(ctx context.Context, scenarioID, resourceID string, year int) (*presence.Stats, error) {
	r, err := m.Resource(ctx, scenarioID, resourceID)
	if err != nil {
		return nil, err
	}
	return m.stats.Get(r, year), nil
}

// Budget returns the scenario's envelopes against its resource forecast.
func (m *Manager) Budget(ctx context.Context, scenarioID string, year int) (*BudgetSummary, error) {
	s, err := m.store.GetScenario(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	resources, err := m.Resources(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	return Forecast(ctx, m.stats, s, resources, year)
}
