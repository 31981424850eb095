/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements scenario.Store and scenario.TemplateStore using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  scenario.Store:         Scenario headers + resource collections
  scenario.TemplateStore: Calendar templates

KEY TABLES:
  scenarios:  Versioned headers; envelopes stored as a JSON column
  resources:  One row per resource, FK to scenarios with ON DELETE CASCADE;
              overrides and dynamic holidays stored as JSON columns
  templates:  Calendar presets, at most one default per country

ATOMIC BATCHES:
  PublishScenarioAtomic and CopyResourcesAtomic each run in a single SQL
  transaction. A failure anywhere rolls back the whole batch.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/presence.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  mgr := scenario.NewManager(store, scenario.WithTemplates(store))

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - scenario/store.go: Interface definitions
  - scenario/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/presence-engine/presence"
	"github.com/warp/presence-engine/scenario"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	scenarioFeed *scenario.Feed[[]scenario.Scenario]
	resourceFeed *scenario.Feed[[]*presence.Resource]
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would get its own empty in-memory database
		db.SetMaxOpenConns(1)
	}

	store := &Store{
		db:           db,
		scenarioFeed: scenario.NewFeed[[]scenario.Scenario](),
		resourceFeed: scenario.NewFeed[[]*presence.Resource](),
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close ends subscriptions and closes the database connection.
func (s *Store) Close() error {
	s.scenarioFeed.Close()
	s.resourceFeed.Close()
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Scenario headers
	CREATE TABLE IF NOT EXISTS scenarios (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('DRAFT', 'MASTER', 'ARCHIVED')),
		owner_id TEXT NOT NULL,
		parent_id TEXT,
		envelopes_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scenarios_owner_status
		ON scenarios(owner_id, status);

	-- Resources (one collection per scenario)
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT NOT NULL,
		scenario_id TEXT NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		team TEXT,
		contract TEXT NOT NULL,
		tjm TEXT NOT NULL,
		country TEXT NOT NULL,
		change_ratio INTEGER NOT NULL DEFAULT 0,
		start_date TEXT,
		end_date TEXT,
		overrides_json TEXT NOT NULL DEFAULT '{}',
		dynamic_holidays_json TEXT NOT NULL DEFAULT '[]',
		revision INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (scenario_id, id)
	);

	-- Calendar templates
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		country TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		overrides_json TEXT NOT NULL DEFAULT '{}',
		dynamic_holidays_json TEXT NOT NULL DEFAULT '[]'
	);

	-- At most one default per country
	CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_default_country
		ON templates(country) WHERE is_default;
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a database transaction, rolled back if fn fails.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// SCENARIOS (scenario.Store interface)
// =============================================================================

const scenarioColumns = `id, name, status, owner_id, parent_id, envelopes_json, created_at, updated_at`

func (s *Store) SubscribeScenarios(ctx context.Context, ownerID string, onUpdate func([]scenario.Scenario), onError func(error)) func() {
	return s.scenarioFeed.Subscribe(ctx, ownerID, func(ctx context.Context) ([]scenario.Scenario, error) {
		return s.ListScenarios(ctx, ownerID)
	}, onUpdate, onError)
}

// CreateScenario inserts a scenario header and returns its id.
func (s *Store) CreateScenario(ctx context.Context, sc scenario.Scenario) (string, error) {
	s.mu.Lock()
	id, err := insertScenario(ctx, s.db, sc)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	s.scenarioFeed.Notify(sc.OwnerID)
	return id, nil
}

// InitScenario inserts the owner's first scenario. It fails with
// ErrAlreadyInitialized if the owner has any scenario when the insert runs.
func (s *Store) InitScenario(ctx context.Context, sc scenario.Scenario) (string, error) {
	var id string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM scenarios WHERE owner_id = ?", sc.OwnerID).Scan(&n); err != nil {
			return fmt.Errorf("failed to count scenarios: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: owner %s has %d scenarios", scenario.ErrAlreadyInitialized, sc.OwnerID, n)
		}
		var err error
		id, err = insertScenario(ctx, tx, sc)
		return err
	})
	if err != nil {
		return "", err
	}

	s.scenarioFeed.Notify(sc.OwnerID)
	return id, nil
}

func insertScenario(ctx context.Context, q querier, sc scenario.Scenario) (string, error) {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	envelopes := sc.Envelopes
	if envelopes == nil {
		envelopes = []scenario.Envelope{}
	}
	envelopesJSON, err := json.Marshal(envelopes)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelopes: %w", err)
	}

	now := timestamp()
	_, err = q.ExecContext(ctx, `
		INSERT INTO scenarios (`+scenarioColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sc.ID, sc.Name, string(sc.Status), sc.OwnerID, nullString(sc.ParentID), string(envelopesJSON), now, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return "", fmt.Errorf("%w: scenario %s", scenario.ErrDuplicateID, sc.ID)
		}
		return "", fmt.Errorf("failed to insert scenario: %w", err)
	}
	return sc.ID, nil
}

// UpdateScenario applies a partial header update. Replacing the envelopes
// requires the scenario to be a DRAFT inside the same transaction.
func (s *Store) UpdateScenario(ctx context.Context, id string, patch scenario.ScenarioPatch) error {
	var ownerID string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getScenario(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.Envelopes != nil && current.Status != scenario.StatusDraft {
			return readOnly(current)
		}
		ownerID = current.OwnerID
		return updateScenario(ctx, tx, current, patch)
	})
	if err != nil {
		return err
	}

	s.scenarioFeed.Notify(ownerID)
	return nil
}

func updateScenario(ctx context.Context, q querier, current *scenario.Scenario, patch scenario.ScenarioPatch) error {
	if patch.Name != nil {
		current.Name = *patch.Name
	}
	if patch.Status != nil {
		current.Status = *patch.Status
	}
	if patch.Envelopes != nil {
		current.Envelopes = patch.Envelopes
	}
	envelopes := current.Envelopes
	if envelopes == nil {
		envelopes = []scenario.Envelope{}
	}
	envelopesJSON, err := json.Marshal(envelopes)
	if err != nil {
		return fmt.Errorf("failed to encode envelopes: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		UPDATE scenarios SET name = ?, status = ?, envelopes_json = ?, updated_at = ?
		WHERE id = ?
	`, current.Name, string(current.Status), string(envelopesJSON), timestamp(), current.ID)
	if err != nil {
		return fmt.Errorf("failed to update scenario: %w", err)
	}
	return nil
}

// DeleteScenario removes a scenario; its resources go with it (cascade).
func (s *Store) DeleteScenario(ctx context.Context, id string) error {
	var ownerID string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getScenario(ctx, tx, id)
		if err != nil {
			return err
		}
		ownerID = current.OwnerID
		_, err = tx.ExecContext(ctx, "DELETE FROM scenarios WHERE id = ?", id)
		return err
	})
	if err != nil {
		return err
	}

	s.scenarioFeed.Notify(ownerID)
	s.resourceFeed.Notify(id)
	return nil
}

// GetScenario retrieves a scenario by ID.
func (s *Store) GetScenario(ctx context.Context, id string) (*scenario.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getScenario(ctx, s.db, id)
}

// getDraft loads the scenario and fails with ErrReadOnly unless it is a
// DRAFT. Resource writes call it inside their transaction.
func getDraft(ctx context.Context, q querier, id string) (*scenario.Scenario, error) {
	sc, err := getScenario(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if sc.Status != scenario.StatusDraft {
		return nil, readOnly(sc)
	}
	return sc, nil
}

func readOnly(sc *scenario.Scenario) error {
	return fmt.Errorf("%w: %s is %s", scenario.ErrReadOnly, sc.ID, sc.Status)
}

func getScenario(ctx context.Context, q querier, id string) (*scenario.Scenario, error) {
	row := q.QueryRowContext(ctx, "SELECT "+scenarioColumns+" FROM scenarios WHERE id = ?", id)
	sc, err := scanScenario(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", scenario.ErrScenarioNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// ListScenarios returns the owner's scenarios in creation order.
func (s *Store) ListScenarios(ctx context.Context, ownerID string) ([]scenario.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+scenarioColumns+" FROM scenarios WHERE owner_id = ? ORDER BY rowid",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	var out []scenario.Scenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

// PublishScenarioAtomic archives the masters, promotes the draft and
// inserts the continuation draft in one SQL transaction. It returns the new
// draft's id and every id it archived.
func (s *Store) PublishScenarioAtomic(ctx context.Context, draftID, ownerID string, newDraft scenario.Scenario, currentMasters []string) (string, []string, error) {
	var (
		newID    string
		archived []string
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		d, err := getScenario(ctx, tx, draftID)
		if err != nil {
			return err
		}
		if d.Status != scenario.StatusDraft {
			return fmt.Errorf("%w: %s is %s", scenario.ErrNotDraft, draftID, d.Status)
		}
		now := timestamp()

		// 1. Archive the listed masters, then any the caller did not see
		for _, id := range currentMasters {
			res, err := tx.ExecContext(ctx,
				"UPDATE scenarios SET status = 'ARCHIVED', updated_at = ? WHERE id = ?", now, id)
			if err != nil {
				return fmt.Errorf("failed to archive %s: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: master %s", scenario.ErrScenarioNotFound, id)
			}
			archived = append(archived, id)
		}
		stray, err := masterIDs(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		for _, id := range stray {
			if _, err := tx.ExecContext(ctx,
				"UPDATE scenarios SET status = 'ARCHIVED', updated_at = ? WHERE id = ?", now, id); err != nil {
				return fmt.Errorf("failed to archive %s: %w", id, err)
			}
			archived = append(archived, id)
		}

		// 2. Promote
		if _, err := tx.ExecContext(ctx,
			"UPDATE scenarios SET status = 'MASTER', updated_at = ? WHERE id = ?", now, draftID); err != nil {
			return fmt.Errorf("failed to promote %s: %w", draftID, err)
		}

		// 3. Continuation draft
		newDraft.OwnerID = ownerID
		newDraft.Status = scenario.StatusDraft
		newID, err = insertScenario(ctx, tx, newDraft)
		return err
	})
	if err != nil {
		return "", nil, err
	}

	s.scenarioFeed.Notify(ownerID)
	return newID, archived, nil
}

// masterIDs lists the owner's MASTER scenarios in creation order.
func masterIDs(ctx context.Context, q querier, ownerID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id FROM scenarios WHERE owner_id = ? AND status = 'MASTER' ORDER BY rowid", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query masters: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanScenario(row interface{ Scan(dest ...any) error }) (*scenario.Scenario, error) {
	var (
		sc                   scenario.Scenario
		status               string
		parentID             sql.NullString
		envelopesJSON        string
		createdAt, updatedAt string
	)
	if err := row.Scan(&sc.ID, &sc.Name, &status, &sc.OwnerID, &parentID, &envelopesJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sc.Status = scenario.Status(status)
	sc.ParentID = parentID.String
	if err := json.Unmarshal([]byte(envelopesJSON), &sc.Envelopes); err != nil {
		return nil, fmt.Errorf("failed to decode envelopes of %s: %w", sc.ID, err)
	}
	sc.CreatedAt = parseTime(createdAt)
	sc.UpdatedAt = parseTime(updatedAt)
	return &sc, nil
}

// =============================================================================
// RESOURCES (scenario.Store interface)
// =============================================================================

const resourceColumns = `id, first_name, last_name, team, contract, tjm, country, change_ratio,
	start_date, end_date, overrides_json, dynamic_holidays_json, revision, created_at, updated_at`

func (s *Store) SubscribeResources(ctx context.Context, scenarioID string, onUpdate func([]*presence.Resource), onError func(error)) func() {
	return s.resourceFeed.Subscribe(ctx, scenarioID, func(ctx context.Context) ([]*presence.Resource, error) {
		return s.GetResourcesOnce(ctx, scenarioID)
	}, onUpdate, onError)
}

// GetResourcesOnce returns the scenario's resources in insertion order.
// Every call decodes fresh values.
func (s *Store) GetResourcesOnce(ctx context.Context, scenarioID string) ([]*presence.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := getScenario(ctx, s.db, scenarioID); err != nil {
		return nil, err
	}
	return listResources(ctx, s.db, scenarioID)
}

func listResources(ctx context.Context, q querier, scenarioID string) ([]*presence.Resource, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+resourceColumns+" FROM resources WHERE scenario_id = ? ORDER BY rowid",
		scenarioID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	var out []*presence.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetResource retrieves one resource of a scenario.
func (s *Store) GetResource(ctx context.Context, scenarioID, id string) (*presence.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getResource(ctx, s.db, scenarioID, id)
}

func getResource(ctx context.Context, q querier, scenarioID, id string) (*presence.Resource, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+resourceColumns+" FROM resources WHERE scenario_id = ? AND id = ?",
		scenarioID, id,
	)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", scenario.ErrResourceNotFound, id)
	}
	return r, err
}

// AddResource inserts r into a DRAFT scenario. An empty id is assigned.
func (s *Store) AddResource(ctx context.Context, scenarioID string, r *presence.Resource) (string, error) {
	var id string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getDraft(ctx, tx, scenarioID); err != nil {
			return err
		}
		var err error
		id, err = insertResource(ctx, tx, scenarioID, r, r.ID)
		return err
	})
	if err != nil {
		return "", err
	}

	s.resourceFeed.Notify(scenarioID)
	return id, nil
}

func insertResource(ctx context.Context, q querier, scenarioID string, r *presence.Resource, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	overridesJSON, holidaysJSON, err := encodeCalendar(r.Overrides, r.DynamicHolidays)
	if err != nil {
		return "", err
	}

	now := timestamp()
	_, err = q.ExecContext(ctx, `
		INSERT INTO resources (scenario_id, `+resourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		scenarioID, id, r.FirstName, r.LastName, nullString(r.Team), string(r.Contract),
		r.Rate.String(), string(r.Country), r.ChangeRatio,
		nullString(string(r.StartDate)), nullString(string(r.EndDate)),
		overridesJSON, holidaysJSON, 1, now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return "", fmt.Errorf("%w: resource %s", scenario.ErrDuplicateID, id)
		}
		return "", fmt.Errorf("failed to insert resource: %w", err)
	}
	return id, nil
}

// UpdateResource applies patch and bumps the revision.
func (s *Store) UpdateResource(ctx context.Context, scenarioID, id string, patch presence.ResourcePatch) (*presence.Resource, error) {
	var next *presence.Resource
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getDraft(ctx, tx, scenarioID); err != nil {
			return err
		}
		current, err := getResource(ctx, tx, scenarioID, id)
		if err != nil {
			return err
		}
		next = patch.Apply(current)
		next.Revision = current.Revision + 1
		next.UpdatedAt = time.Now().UTC()

		overridesJSON, holidaysJSON, err := encodeCalendar(next.Overrides, next.DynamicHolidays)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE resources SET
				first_name = ?, last_name = ?, team = ?, contract = ?, tjm = ?, country = ?,
				change_ratio = ?, start_date = ?, end_date = ?, overrides_json = ?,
				dynamic_holidays_json = ?, revision = ?, updated_at = ?
			WHERE scenario_id = ? AND id = ?
		`,
			next.FirstName, next.LastName, nullString(next.Team), string(next.Contract),
			next.Rate.String(), string(next.Country), next.ChangeRatio,
			nullString(string(next.StartDate)), nullString(string(next.EndDate)),
			overridesJSON, holidaysJSON, next.Revision, next.UpdatedAt.Format(time.RFC3339Nano),
			scenarioID, id,
		)
		if err != nil {
			return fmt.Errorf("failed to update resource: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.resourceFeed.Notify(scenarioID)
	return next, nil
}

// DeleteResource removes one resource of a DRAFT scenario.
func (s *Store) DeleteResource(ctx context.Context, scenarioID, id string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getDraft(ctx, tx, scenarioID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM resources WHERE scenario_id = ? AND id = ?", scenarioID, id)
		if err != nil {
			return fmt.Errorf("failed to delete resource: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", scenario.ErrResourceNotFound, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.resourceFeed.Notify(scenarioID)
	return nil
}

// CopyResourcesAtomic copies source's resources into target under fresh ids
// in a single transaction.
func (s *Store) CopyResourcesAtomic(ctx context.Context, sourceID, targetID string) (int, error) {
	var n int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getScenario(ctx, tx, sourceID); err != nil {
			return err
		}
		if _, err := getScenario(ctx, tx, targetID); err != nil {
			return err
		}
		list, err := listResources(ctx, tx, sourceID)
		if err != nil {
			return err
		}
		for _, r := range list {
			if _, err := insertResource(ctx, tx, targetID, r, ""); err != nil {
				return err
			}
		}
		n = len(list)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		s.resourceFeed.Notify(targetID)
	}
	return n, nil
}

func scanResource(row interface{ Scan(dest ...any) error }) (*presence.Resource, error) {
	var (
		r                         presence.Resource
		team, startDate, endDate  sql.NullString
		contract, country, tjm    string
		overridesJSON, holidaysJS string
		createdAt, updatedAt      string
	)
	err := row.Scan(
		&r.ID, &r.FirstName, &r.LastName, &team, &contract, &tjm, &country, &r.ChangeRatio,
		&startDate, &endDate, &overridesJSON, &holidaysJS, &r.Revision, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Team = team.String
	r.Contract = presence.ContractType(contract)
	r.Country = presence.Country(country)
	r.StartDate = presence.Date(startDate.String)
	r.EndDate = presence.Date(endDate.String)
	if r.Rate, err = decimal.NewFromString(tjm); err != nil {
		return nil, fmt.Errorf("failed to decode rate of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(overridesJSON), &r.Overrides); err != nil {
		return nil, fmt.Errorf("failed to decode overrides of %s: %w", r.ID, err)
	}
	if len(r.Overrides) == 0 {
		r.Overrides = nil
	}
	if err := json.Unmarshal([]byte(holidaysJS), &r.DynamicHolidays); err != nil {
		return nil, fmt.Errorf("failed to decode holidays of %s: %w", r.ID, err)
	}
	if len(r.DynamicHolidays) == 0 {
		r.DynamicHolidays = nil
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

func encodeCalendar(overrides map[presence.Date]presence.Presence, holidays []presence.Date) (string, string, error) {
	if overrides == nil {
		overrides = map[presence.Date]presence.Presence{}
	}
	if holidays == nil {
		holidays = []presence.Date{}
	}
	o, err := json.Marshal(overrides)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode overrides: %w", err)
	}
	h, err := json.Marshal(holidays)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode holidays: %w", err)
	}
	return string(o), string(h), nil
}

// =============================================================================
// TEMPLATES (scenario.TemplateStore interface)
// =============================================================================

const templateColumns = `id, name, country, is_default, overrides_json, dynamic_holidays_json`

// SaveTemplate inserts or replaces a template. A new default clears the
// previous default of the same country in the same transaction.
func (s *Store) SaveTemplate(ctx context.Context, t presence.Template) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	overridesJSON, holidaysJSON, err := encodeCalendar(t.Overrides, t.DynamicHolidays)
	if err != nil {
		return "", err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if t.IsDefault {
			if _, err := tx.ExecContext(ctx,
				"UPDATE templates SET is_default = FALSE WHERE country = ? AND id <> ?",
				string(t.Country), t.ID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO templates (`+templateColumns+`)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				country = excluded.country,
				is_default = excluded.is_default,
				overrides_json = excluded.overrides_json,
				dynamic_holidays_json = excluded.dynamic_holidays_json
		`, t.ID, t.Name, string(t.Country), t.IsDefault, overridesJSON, holidaysJSON)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to save template: %w", err)
	}
	return t.ID, nil
}

// GetTemplate retrieves a template by ID.
func (s *Store) GetTemplate(ctx context.Context, id string) (*presence.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := scanTemplate(s.db.QueryRowContext(ctx, "SELECT "+templateColumns+" FROM templates WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", scenario.ErrTemplateNotFound, id)
	}
	return t, err
}

// ListTemplates returns templates sorted by name. An empty country lists all.
func (s *Store) ListTemplates(ctx context.Context, country presence.Country) ([]presence.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + templateColumns + " FROM templates"
	var args []any
	if country != "" {
		query += " WHERE country = ?"
		args = append(args, string(country))
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY name, id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []presence.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DefaultTemplate returns the country's default template, or nil.
func (s *Store) DefaultTemplate(ctx context.Context, country presence.Country) (*presence.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := scanTemplate(s.db.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM templates WHERE country = ? AND is_default",
		string(country)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM templates WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", scenario.ErrTemplateNotFound, id)
	}
	return nil
}

func scanTemplate(row interface{ Scan(dest ...any) error }) (*presence.Template, error) {
	var (
		t                         presence.Template
		country                   string
		overridesJSON, holidaysJS string
	)
	if err := row.Scan(&t.ID, &t.Name, &country, &t.IsDefault, &overridesJSON, &holidaysJS); err != nil {
		return nil, err
	}
	t.Country = presence.Country(country)
	if err := json.Unmarshal([]byte(overridesJSON), &t.Overrides); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(holidaysJS), &t.DynamicHolidays); err != nil {
		return nil, err
	}
	if len(t.DynamicHolidays) == 0 {
		t.DynamicHolidays = nil
	}
	return &t, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all scenarios and resources (for testing/demo). Templates
// are kept.
func (s *Store) Reset(ctx context.Context) error {
	var owners, ids []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT id, owner_id FROM scenarios")
		if err != nil {
			return err
		}
		for rows.Next() {
			var id, owner string
			if err := rows.Scan(&id, &owner); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
			owners = append(owners, owner)
		}
		rows.Close()

		for _, table := range []string{"resources", "scenarios"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, owner := range owners {
		s.scenarioFeed.Notify(owner)
	}
	for _, id := range ids {
		s.resourceFeed.Notify(id)
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

var (
	_ scenario.Store         = (*Store)(nil)
	_ scenario.TemplateStore = (*Store)(nil)
)
