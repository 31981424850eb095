// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/presence-engine/presence"
	"github.com/warp/presence-engine/scenario"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements scenario.Store and scenario.TemplateStore in process.
// Resources are kept as immutable pointers: an update swaps the pointer,
// so values handed to callers never change under them.
type Memory struct {
	mu        sync.RWMutex
	scenarios map[string]scenario.Scenario
	order     []string                        // scenario ids by creation
	resources map[string][]*presence.Resource // scenario id -> resources
	templates map[string]presence.Template

	scenarioFeed *scenario.Feed[[]scenario.Scenario]
	resourceFeed *scenario.Feed[[]*presence.Resource]
	now          func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		scenarios:    make(map[string]scenario.Scenario),
		resources:    make(map[string][]*presence.Resource),
		templates:    make(map[string]presence.Template),
		scenarioFeed: scenario.NewFeed[[]scenario.Scenario](),
		resourceFeed: scenario.NewFeed[[]*presence.Resource](),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Close ends every open subscription.
func (m *Memory) Close() error {
	m.scenarioFeed.Close()
	m.resourceFeed.Close()
	return nil
}

// =============================================================================
// SCENARIOS
// =============================================================================

func (m *Memory) SubscribeScenarios(ctx context.Context, ownerID string, onUpdate func([]scenario.Scenario), onError func(error)) func() {
	return m.scenarioFeed.Subscribe(ctx, ownerID, func(ctx context.Context) ([]scenario.Scenario, error) {
		return m.ListScenarios(ctx, ownerID)
	}, onUpdate, onError)
}

func (m *Memory) CreateScenario(_ context.Context, s scenario.Scenario) (string, error) {
	m.mu.Lock()
	id := m.createLocked(s)
	m.mu.Unlock()

	m.scenarioFeed.Notify(s.OwnerID)
	return id, nil
}

// InitScenario creates the owner's first scenario, or fails with
// ErrAlreadyInitialized if the owner already has one.
func (m *Memory) InitScenario(_ context.Context, s scenario.Scenario) (string, error) {
	m.mu.Lock()
	for _, id := range m.order {
		if m.scenarios[id].OwnerID == s.OwnerID {
			m.mu.Unlock()
			return "", fmt.Errorf("%w: owner %s", scenario.ErrAlreadyInitialized, s.OwnerID)
		}
	}
	id := m.createLocked(s)
	m.mu.Unlock()

	m.scenarioFeed.Notify(s.OwnerID)
	return id, nil
}

func (m *Memory) createLocked(s scenario.Scenario) string {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := m.now()
	s.CreatedAt, s.UpdatedAt = now, now
	s.Envelopes = slices.Clone(s.Envelopes)
	m.scenarios[s.ID] = s
	m.order = append(m.order, s.ID)
	return s.ID
}

func (m *Memory) UpdateScenario(_ context.Context, id string, patch scenario.ScenarioPatch) error {
	m.mu.Lock()
	s, ok := m.scenarios[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", scenario.ErrScenarioNotFound, id)
	}
	if patch.Envelopes != nil && s.Status != scenario.StatusDraft {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", scenario.ErrReadOnly, id, s.Status)
	}
	m.updateLocked(&s, patch)
	m.mu.Unlock()

	m.scenarioFeed.Notify(s.OwnerID)
	return nil
}

func (m *Memory) updateLocked(s *scenario.Scenario, patch scenario.ScenarioPatch) {
	if patch.Name != nil {
		s.Name = *patch.Name
	}
	if patch.Status != nil {
		s.Status = *patch.Status
	}
	if patch.Envelopes != nil {
		s.Envelopes = slices.Clone(patch.Envelopes)
	}
	s.UpdatedAt = m.now()
	m.scenarios[s.ID] = *s
}

func (m *Memory) DeleteScenario(_ context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.scenarios[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", scenario.ErrScenarioNotFound, id)
	}
	delete(m.scenarios, id)
	delete(m.resources, id)
	m.order = slices.DeleteFunc(m.order, func(x string) bool { return x == id })
	m.mu.Unlock()

	m.scenarioFeed.Notify(s.OwnerID)
	m.resourceFeed.Notify(id)
	return nil
}

func (m *Memory) GetScenario(_ context.Context, id string) (*scenario.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scenarios[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", scenario.ErrScenarioNotFound, id)
	}
	return s.Clone(), nil
}

func (m *Memory) ListScenarios(_ context.Context, ownerID string) ([]scenario.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []scenario.Scenario
	for _, id := range m.order {
		if s := m.scenarios[id]; s.OwnerID == ownerID {
			out = append(out, *s.Clone())
		}
	}
	return out, nil
}

// PublishScenarioAtomic runs the three header writes of a publish as one
// batch on top of a snapshot that is restored if any step fails.
func (m *Memory) PublishScenarioAtomic(_ context.Context, draftID, ownerID string, newDraft scenario.Scenario, currentMasters []string) (string, []string, error) {
	var (
		newID   string
		archive []string
	)
	err := m.withTx(func() error {
		d, ok := m.scenarios[draftID]
		if !ok {
			return fmt.Errorf("%w: %s", scenario.ErrScenarioNotFound, draftID)
		}
		if d.Status != scenario.StatusDraft {
			return fmt.Errorf("%w: %s is %s", scenario.ErrNotDraft, draftID, d.Status)
		}

		// 1. Archive: the listed masters plus any the caller missed
		archive = slices.Clone(currentMasters)
		for _, id := range m.order {
			if s := m.scenarios[id]; s.OwnerID == ownerID && s.Status == scenario.StatusMaster && !slices.Contains(archive, id) {
				archive = append(archive, id)
			}
		}
		archived := scenario.StatusArchived
		for _, id := range archive {
			s, ok := m.scenarios[id]
			if !ok {
				return fmt.Errorf("%w: master %s", scenario.ErrScenarioNotFound, id)
			}
			m.updateLocked(&s, scenario.ScenarioPatch{Status: &archived})
		}

		// 2. Promote
		master := scenario.StatusMaster
		m.updateLocked(&d, scenario.ScenarioPatch{Status: &master})

		// 3. Continuation draft
		newDraft.OwnerID = ownerID
		newDraft.Status = scenario.StatusDraft
		newID = m.createLocked(newDraft)
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	m.scenarioFeed.Notify(ownerID)
	return newID, archive, nil
}

// =============================================================================
// RESOURCES
// =============================================================================

func (m *Memory) SubscribeResources(ctx context.Context, scenarioID string, onUpdate func([]*presence.Resource), onError func(error)) func() {
	return m.resourceFeed.Subscribe(ctx, scenarioID, func(ctx context.Context) ([]*presence.Resource, error) {
		return m.GetResourcesOnce(ctx, scenarioID)
	}, onUpdate, onError)
}

// GetResourcesOnce returns the stored pointers. They are shared and must
// not be modified.
func (m *Memory) GetResourcesOnce(_ context.Context, scenarioID string) ([]*presence.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.scenarios[scenarioID]; !ok {
		return nil, fmt.Errorf("%w: %s", scenario.ErrScenarioNotFound, scenarioID)
	}
	return slices.Clone(m.resources[scenarioID]), nil
}

func (m *Memory) GetResource(_ context.Context, scenarioID, id string) (*presence.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.indexLocked(scenarioID, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", scenario.ErrResourceNotFound, id)
	}
	return m.resources[scenarioID][i], nil
}

func (m *Memory) AddResource(_ context.Context, scenarioID string, r *presence.Resource) (string, error) {
	m.mu.Lock()
	if _, ok := m.scenarios[scenarioID]; !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", scenario.ErrScenarioNotFound, scenarioID)
	}
	if err := m.readOnlyLocked(scenarioID); err != nil {
		m.mu.Unlock()
		return "", err
	}
	if r.ID != "" && m.indexLocked(scenarioID, r.ID) >= 0 {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", scenario.ErrDuplicateID, r.ID)
	}
	id := m.addLocked(scenarioID, r, r.ID)
	m.mu.Unlock()

	m.resourceFeed.Notify(scenarioID)
	return id, nil
}

func (m *Memory) addLocked(scenarioID string, r *presence.Resource, id string) string {
	c := r.Clone()
	if id == "" {
		id = uuid.NewString()
	}
	now := m.now()
	c.ID = id
	c.Revision = 1
	c.CreatedAt, c.UpdatedAt = now, now
	m.resources[scenarioID] = append(m.resources[scenarioID], c)
	return id
}

func (m *Memory) UpdateResource(_ context.Context, scenarioID, id string, patch presence.ResourcePatch) (*presence.Resource, error) {
	m.mu.Lock()
	if err := m.readOnlyLocked(scenarioID); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	i := m.indexLocked(scenarioID, id)
	if i < 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", scenario.ErrResourceNotFound, id)
	}
	cur := m.resources[scenarioID][i]
	next := patch.Apply(cur)
	next.Revision = cur.Revision + 1
	next.UpdatedAt = m.now()
	m.resources[scenarioID][i] = next
	m.mu.Unlock()

	m.resourceFeed.Notify(scenarioID)
	return next, nil
}

func (m *Memory) DeleteResource(_ context.Context, scenarioID, id string) error {
	m.mu.Lock()
	if err := m.readOnlyLocked(scenarioID); err != nil {
		m.mu.Unlock()
		return err
	}
	i := m.indexLocked(scenarioID, id)
	if i < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", scenario.ErrResourceNotFound, id)
	}
	m.resources[scenarioID] = slices.Delete(slices.Clone(m.resources[scenarioID]), i, i+1)
	m.mu.Unlock()

	m.resourceFeed.Notify(scenarioID)
	return nil
}

// CopyResourcesAtomic copies source's resources into target under fresh
// ids. Either all copies are visible or none.
func (m *Memory) CopyResourcesAtomic(_ context.Context, sourceID, targetID string) (int, error) {
	var n int
	err := m.withTx(func() error {
		if _, ok := m.scenarios[sourceID]; !ok {
			return fmt.Errorf("%w: %s", scenario.ErrScenarioNotFound, sourceID)
		}
		if _, ok := m.scenarios[targetID]; !ok {
			return fmt.Errorf("%w: %s", scenario.ErrScenarioNotFound, targetID)
		}
		for _, r := range m.resources[sourceID] {
			m.addLocked(targetID, r, "")
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.resourceFeed.Notify(targetID)
	}
	return n, nil
}

// readOnlyLocked rejects resource writes to an existing scenario that is no
// longer a DRAFT. Missing scenarios are left to the caller's own lookup.
func (m *Memory) readOnlyLocked(scenarioID string) error {
	s, ok := m.scenarios[scenarioID]
	if ok && s.Status != scenario.StatusDraft {
		return fmt.Errorf("%w: %s is %s", scenario.ErrReadOnly, scenarioID, s.Status)
	}
	return nil
}

func (m *Memory) indexLocked(scenarioID, id string) int {
	return slices.IndexFunc(m.resources[scenarioID], func(r *presence.Resource) bool { return r.ID == id })
}

// Reset clears all data (for testing/demo). Templates are kept.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	owners := make(map[string]struct{})
	ids := slices.Clone(m.order)
	for _, s := range m.scenarios {
		owners[s.OwnerID] = struct{}{}
	}
	m.scenarios = make(map[string]scenario.Scenario)
	m.resources = make(map[string][]*presence.Resource)
	m.order = nil
	m.mu.Unlock()

	for owner := range owners {
		m.scenarioFeed.Notify(owner)
	}
	for _, id := range ids {
		m.resourceFeed.Notify(id)
	}
	return nil
}

// =============================================================================
// TEMPLATES
// =============================================================================

func (m *Memory) SaveTemplate(_ context.Context, t presence.Template) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.IsDefault {
		for id, other := range m.templates {
			if other.Country == t.Country && other.IsDefault && id != t.ID {
				other.IsDefault = false
				m.templates[id] = other
			}
		}
	}
	m.templates[t.ID] = t
	return t.ID, nil
}

func (m *Memory) GetTemplate(_ context.Context, id string) (*presence.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", scenario.ErrTemplateNotFound, id)
	}
	return &t, nil
}

// ListTemplates returns templates sorted by name. An empty country lists all.
func (m *Memory) ListTemplates(_ context.Context, country presence.Country) ([]presence.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []presence.Template
	for _, t := range m.templates {
		if country == "" || t.Country == country {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b presence.Template) int {
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		return 1
	})
	return out, nil
}

func (m *Memory) DefaultTemplate(_ context.Context, country presence.Country) (*presence.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.templates {
		if t.Country == country && t.IsDefault {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *Memory) DeleteTemplate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[id]; !ok {
		return fmt.Errorf("%w: %s", scenario.ErrTemplateNotFound, id)
	}
	delete(m.templates, id)
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// withTx runs fn under the write lock. For the memory store a transaction
// is simulated with a snapshot + rollback on error.
func (m *Memory) withTx(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	scenarios map[string]scenario.Scenario
	order     []string
	resources map[string][]*presence.Resource
}

func (m *Memory) snapshot() memorySnapshot {
	scenarios := make(map[string]scenario.Scenario, len(m.scenarios))
	for k, v := range m.scenarios {
		scenarios[k] = v
	}
	resources := make(map[string][]*presence.Resource, len(m.resources))
	for k, v := range m.resources {
		resources[k] = slices.Clone(v)
	}
	return memorySnapshot{scenarios: scenarios, order: slices.Clone(m.order), resources: resources}
}

func (m *Memory) restore(s memorySnapshot) {
	m.scenarios = s.scenarios
	m.order = s.order
	m.resources = s.resources
}

var (
	_ scenario.Store         = (*Memory)(nil)
	_ scenario.TemplateStore = (*Memory)(nil)
)
