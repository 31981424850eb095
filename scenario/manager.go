/*
manager.go - Scenario lifecycle: create, fork, publish, restore

PUBLISH PROTOCOL:
  Given DRAFT D owned by U:
    1. every MASTER of U becomes ARCHIVED
    2. D becomes MASTER
    3. a new DRAFT N is created, parent D, envelopes copied from D
    4. D's resources are copied into N

  Steps 1-3 are one atomic store batch (PublishScenarioAtomic). Step 4 is a
  separate atomic batch on the resource collection. If step 4 fails the
  promotion stays committed: Publish returns the new draft together with a
  *ReplicationError so callers can tell the two outcomes apart.

ACTIVE SCENARIO:
  Restore only changes which scenario an owner is looking at. It never
  writes to the store. Any status can be restored; only a DRAFT is editable.

CONCURRENCY:
  Manager is safe for concurrent use. The store is the source of truth;
  the only state held here is the per-owner active selection and the
  resource views used for identity-preserving reads.
*/
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/presence-engine/presence"
)

var (
	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenario_publish_total",
		Help: "Publish attempts by outcome (ok, rejected, failed, replication_failed)",
	}, []string{"outcome"})
	replicatedResources = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scenario_replicated_resources_total",
		Help: "Resources copied between scenarios by fork and publish",
	})
)

// =============================================================================
// MANAGER
// =============================================================================

// Manager runs lifecycle transitions and guarded edits against a Store.
type Manager struct {
	store     Store
	templates TemplateStore
	stats     *presence.StatsCache
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	active map[string]string        // owner -> scenario id
	views  map[string]*ResourceView // scenario id -> view
}

// Option configures a Manager.
type Option func(*Manager)

// WithTemplates enables template seeding in AddResource.
func WithTemplates(ts TemplateStore) Option {
	return func(m *Manager) { m.templates = ts }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithStatsCache shares a cache with other readers. By default the Manager
// owns its own.
func WithStatsCache(c *presence.StatsCache) Option {
	return func(m *Manager) { m.stats = c }
}

// WithClock overrides time.Now, for deterministic draft names in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
		active: make(map[string]string),
		views:  make(map[string]*ResourceView),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.stats == nil {
		m.stats = presence.NewStatsCache()
	}
	return m
}

// Store returns the underlying store, for subscriptions.
func (m *Manager) Store() Store { return m.store }

// Stats returns the cache used for resource statistics.
func (m *Manager) Stats() *presence.StatsCache { return m.stats }

// =============================================================================
// TRANSITIONS
// =============================================================================

// CreateDraft initializes a project: the owner's first scenario, a DRAFT
// with no parent. It fails with ErrAlreadyInitialized if the owner already
// has any scenario.
func (m *Manager) CreateDraft(ctx context.Context, ownerID, name string) (*Scenario, error) {
	if name == "" {
		name = "Initial draft"
	}

	id, err := m.store.InitScenario(ctx, Scenario{
		Name:    name,
		Status:  StatusDraft,
		OwnerID: ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}
	m.setActive(ownerID, id)
	m.logger.Info("project initialized", "owner", ownerID, "scenario_id", id)
	return m.store.GetScenario(ctx, id)
}

// Fork creates a DRAFT child of sourceID carrying copies of its envelopes
// and resources. The source is not modified, whatever its status.
//
// The new scenario exists as soon as Fork returns its id. A failed resource
// copy is reported as *ReplicationError alongside that id.
func (m *Manager) Fork(ctx context.Context, sourceID, name string) (string, error) {
	src, err := m.store.GetScenario(ctx, sourceID)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = src.Name + " (copy)"
	}

	id, err := m.store.CreateScenario(ctx, Scenario{
		Name:      name,
		Status:    StatusDraft,
		OwnerID:   src.OwnerID,
		ParentID:  src.ID,
		Envelopes: slices.Clone(src.Envelopes),
	})
	if err != nil {
		return "", fmt.Errorf("fork %s: %w", sourceID, err)
	}
	m.logger.Info("scenario forked", "source_id", sourceID, "scenario_id", id)

	if _, err := m.replicate(ctx, src.ID, id); err != nil {
		return id, err
	}
	return id, nil
}

// PublishResult describes a committed publish.
type PublishResult struct {
	DraftID   string   `json:"draft_id"`
	DraftName string   `json:"draft_name"`
	MasterID  string   `json:"master_id"`
	Archived  []string `json:"archived"`
	Copied    int      `json:"copied"`
}

// Publish promotes draftID to MASTER and opens a new DRAFT from it.
//
// Errors:
//   - ErrNotDraft: draftID is not a DRAFT; nothing was written
//   - ErrPublishFailed: the atomic batch failed; nothing was written
//   - *ReplicationError: the promotion is committed and the result is
//     valid, but the new draft has no resources
func (m *Manager) Publish(ctx context.Context, draftID string) (*PublishResult, error) {
	d, err := m.store.GetScenario(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusDraft {
		publishTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s is %s", ErrNotDraft, d.Name, d.Status)
	}

	siblings, err := m.store.ListScenarios(ctx, d.OwnerID)
	if err != nil {
		return nil, err
	}
	currentMasters := masters(siblings)

	next := Scenario{
		Name:      m.draftName(),
		Status:    StatusDraft,
		OwnerID:   d.OwnerID,
		ParentID:  d.ID,
		Envelopes: slices.Clone(d.Envelopes),
	}
	newID, archived, err := m.store.PublishScenarioAtomic(ctx, d.ID, d.OwnerID, next, currentMasters)
	if err != nil {
		if errors.Is(err, ErrNotDraft) {
			publishTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
		publishTotal.WithLabelValues("failed").Inc()
		m.logger.Error("publish batch failed", "scenario_id", d.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	result := &PublishResult{
		DraftID:   newID,
		DraftName: next.Name,
		MasterID:  d.ID,
		Archived:  archived,
	}
	m.logger.Info("scenario published",
		"master_id", d.ID, "draft_id", newID, "archived", len(archived))

	n, err := m.replicate(ctx, d.ID, newID)
	if err != nil {
		publishTotal.WithLabelValues("replication_failed").Inc()
		return result, err
	}
	result.Copied = n
	publishTotal.WithLabelValues("ok").Inc()
	return result, nil
}

// Restore makes scenarioID the owner's active scenario. It writes nothing.
func (m *Manager) Restore(ctx context.Context, ownerID, scenarioID string) (*Scenario, error) {
	s, err := m.store.GetScenario(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	if s.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, scenarioID)
	}
	m.setActive(ownerID, s.ID)
	return s, nil
}

// Active returns the owner's active scenario. Without an explicit Restore,
// or once the restored scenario is gone, it falls back to the most recent
// DRAFT, then the MASTER.
func (m *Manager) Active(ctx context.Context, ownerID string) (*Scenario, error) {
	m.mu.Lock()
	id := m.active[ownerID]
	m.mu.Unlock()

	if id != "" {
		s, err := m.store.GetScenario(ctx, id)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrScenarioNotFound) {
			return nil, err
		}
	}

	list, err := m.store.ListScenarios(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var pick *Scenario
	for i := range list {
		s := &list[i]
		switch {
		case pick == nil:
			pick = s
		case s.Status == StatusDraft && (pick.Status != StatusDraft || s.CreatedAt.After(pick.CreatedAt)):
			pick = s
		case s.Status == StatusMaster && pick.Status == StatusArchived:
			pick = s
		}
	}
	if pick == nil {
		return nil, fmt.Errorf("%w: owner %s has no scenario", ErrScenarioNotFound, ownerID)
	}
	m.setActive(ownerID, pick.ID)
	return pick, nil
}

// DeleteScenario removes a scenario and its resources. It is an
// administrative action and bypasses the mutation guard.
func (m *Manager) DeleteScenario(ctx context.Context, scenarioID string) error {
	if err := m.store.DeleteScenario(ctx, scenarioID); err != nil {
		return err
	}
	m.mu.Lock()
	for owner, id := range m.active {
		if id == scenarioID {
			delete(m.active, owner)
		}
	}
	delete(m.views, scenarioID)
	m.mu.Unlock()
	m.logger.Info("scenario deleted", "scenario_id", scenarioID)
	return nil
}

// Reset deletes every scenario and resource.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.store.Reset(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.active = make(map[string]string)
	m.views = make(map[string]*ResourceView)
	m.mu.Unlock()
	m.logger.Warn("all scenarios reset")
	return nil
}

// =============================================================================
// REPLICATION
// =============================================================================

// replicate copies every resource of source into target in one batch.
func (m *Manager) replicate(ctx context.Context, sourceID, targetID string) (int, error) {
	n, err := m.store.CopyResourcesAtomic(ctx, sourceID, targetID)
	if err != nil {
		m.logger.Error("resource replication failed",
			"source_id", sourceID, "target_id", targetID, "error", err)
		return 0, &ReplicationError{Source: sourceID, Target: targetID, Err: err}
	}
	replicatedResources.Add(float64(n))
	m.logger.Info("resources replicated", "source_id", sourceID, "target_id", targetID, "count", n)
	return n, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Manager) setActive(ownerID, scenarioID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[ownerID] = scenarioID
}

func (m *Manager) draftName() string {
	return "Draft " + m.now().UTC().Format("2006-01-02 15:04:05")
}
