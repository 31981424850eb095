package scenario

import (
	"context"
	"fmt"
)

// Editable reports whether s accepts edits. Every mutating entry point goes
// through this predicate; nothing else decides what is read-only.
func Editable(s *Scenario) bool {
	return s != nil && s.Status == StatusDraft
}

// requireDraft loads the scenario as it is right now and refuses the write
// unless it is still a DRAFT. It must be called per write, never cached.
// It is the early rejection only: a publish can still land between this
// read and the write, and the Store re-checks the status under its own lock.
func (m *Manager) requireDraft(ctx context.Context, scenarioID string) (*Scenario, error) {
	s, err := m.store.GetScenario(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	if !Editable(s) {
		m.logger.Warn("edit rejected by mutation guard",
			"scenario_id", scenarioID, "status", string(s.Status))
		return nil, fmt.Errorf("%w: %s is %s", ErrReadOnly, s.Name, s.Status)
	}
	return s, nil
}
