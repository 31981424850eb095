/*
edit.go - Guarded editing operations on a DRAFT scenario

Every function here follows the same order:
  1. validate the input (no store access)
  2. requireDraft: re-read the scenario and refuse unless it is a DRAFT
  3. write

Resources are never modified in place. An edit builds a ResourcePatch, the
store applies it to a fresh copy and bumps the revision.
*/
package scenario

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/warp/presence-engine/presence"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
}

// ValidateEnvelope rejects an envelope with no name, an unknown type or a
// negative amount.
func ValidateEnvelope(e Envelope) error {
	if err := validate.Struct(e); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			if fe.Tag() == "required" {
				return presence.NewValidationError(fe.Field(), presence.ErrMissingField, "is required")
			}
			return presence.NewValidationError(fe.Field(), presence.ErrInvalidField, "must be one of "+fe.Param())
		}
		return err
	}
	if e.Amount.IsNegative() {
		return presence.NewValidationError("amount", presence.ErrInvalidField, "must not be negative")
	}
	return nil
}

// =============================================================================
// ENVELOPES
// =============================================================================

// AddEnvelope appends e to the scenario under a new id.
func (m *Manager) AddEnvelope(ctx context.Context, scenarioID string, e Envelope) (Envelope, error) {
	if err := ValidateEnvelope(e); err != nil {
		return Envelope{}, err
	}
	s, err := m.requireDraft(ctx, scenarioID)
	if err != nil {
		return Envelope{}, err
	}
	e.ID = uuid.NewString()
	envelopes := append(slices.Clone(s.Envelopes), e)
	if err := m.store.UpdateScenario(ctx, scenarioID, ScenarioPatch{Envelopes: envelopes}); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// UpdateEnvelope replaces the envelope with e.ID.
func (m *Manager) UpdateEnvelope(ctx context.Context, scenarioID string, e Envelope) error {
	if err := ValidateEnvelope(e); err != nil {
		return err
	}
	s, err := m.requireDraft(ctx, scenarioID)
	if err != nil {
		return err
	}
	envelopes := slices.Clone(s.Envelopes)
	i := slices.IndexFunc(envelopes, func(x Envelope) bool { return x.ID == e.ID })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrEnvelopeNotFound, e.ID)
	}
	envelopes[i] = e
	return m.store.UpdateScenario(ctx, scenarioID, ScenarioPatch{Envelopes: envelopes})
}

// DeleteEnvelope removes an envelope.
func (m *Manager) DeleteEnvelope(ctx context.Context, scenarioID, envelopeID string) error {
	s, err := m.requireDraft(ctx, scenarioID)
	if err != nil {
		return err
	}
	envelopes := slices.DeleteFunc(slices.Clone(s.Envelopes), func(x Envelope) bool { return x.ID == envelopeID })
	if len(envelopes) == len(s.Envelopes) {
		return fmt.Errorf("%w: %s", ErrEnvelopeNotFound, envelopeID)
	}
	if envelopes == nil {
		envelopes = []Envelope{}
	}
	return m.store.UpdateScenario(ctx, scenarioID, ScenarioPatch{Envelopes: envelopes})
}

// =============================================================================
// RESOURCES
// =============================================================================

// AddResource adds r to the scenario. If templateID is set the resource is
// seeded from that template; otherwise from the country's default template
// when one exists.
func (m *Manager) AddResource(ctx context.Context, scenarioID string, r *presence.Resource, templateID string) (*presence.Resource, error) {
	if r == nil {
		return nil, presence.NewValidationError("resource", presence.ErrMissingField, "is required")
	}
	seeded, err := m.seed(ctx, r, templateID)
	if err != nil {
		return nil, err
	}
	if err := presence.Validate(seeded); err != nil {
		return nil, err
	}
	if _, err := m.requireDraft(ctx, scenarioID); err != nil {
		return nil, err
	}
	id, err := m.store.AddResource(ctx, scenarioID, seeded)
	if err != nil {
		return nil, err
	}
	return m.store.GetResource(ctx, scenarioID, id)
}

func (m *Manager) seed(ctx context.Context, r *presence.Resource, templateID string) (*presence.Resource, error) {
	if m.templates == nil {
		if templateID != "" {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
		}
		return r.Clone(), nil
	}

	var (
		t   *presence.Template
		err error
	)
	if templateID != "" {
		t, err = m.templates.GetTemplate(ctx, templateID)
	} else {
		t, err = m.templates.DefaultTemplate(ctx, r.Country)
	}
	if err != nil {
		return nil, err
	}
	if t == nil {
		return r.Clone(), nil
	}
	m.logger.Debug("seeding resource from template", "template_id", t.ID, "country", string(t.Country))
	return t.Seed(r), nil
}

// UpdateResource applies patch to a resource of a DRAFT scenario. The
// patched resource must still be valid as a whole.
func (m *Manager) UpdateResource(ctx context.Context, scenarioID, resourceID string, patch presence.ResourcePatch) (*presence.Resource, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if _, err := m.requireDraft(ctx, scenarioID); err != nil {
		return nil, err
	}
	current, err := m.store.GetResource(ctx, scenarioID, resourceID)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return current, nil
	}
	if err := presence.Validate(patch.Apply(current)); err != nil {
		return nil, err
	}
	return m.store.UpdateResource(ctx, scenarioID, resourceID, patch)
}

// DeleteResource removes a resource from a DRAFT scenario.
func (m *Manager) DeleteResource(ctx context.Context, scenarioID, resourceID string) error {
	if _, err := m.requireDraft(ctx, scenarioID); err != nil {
		return err
	}
	return m.store.DeleteResource(ctx, scenarioID, resourceID)
}

// SetOverride sets one day's presence. A nil value removes the override.
func (m *Manager) SetOverride(ctx context.Context, scenarioID, resourceID string, day presence.Date, value *presence.Presence) (*presence.Resource, error) {
	return m.UpdateResource(ctx, scenarioID, resourceID, presence.ResourcePatch{
		Overrides: map[presence.Date]*presence.Presence{day: value},
	})
}

// SetOverrideRange sets every day of [from, to] to value, or clears them
// when value is nil.
func (m *Manager) SetOverrideRange(ctx context.Context, scenarioID, resourceID string, from, to presence.Date, value *presence.Presence) (*presence.Resource, error) {
	delta, err := presence.OverrideRange(from, to, value)
	if err != nil {
		return nil, err
	}
	return m.UpdateResource(ctx, scenarioID, resourceID, presence.ResourcePatch{Overrides: delta})
}

// ApplyHolidays merges imported holiday dates into the resource's dynamic
// holidays.
func (m *Manager) ApplyHolidays(ctx context.Context, scenarioID, resourceID string, dates []presence.Date) (*presence.Resource, error) {
	for _, d := range dates {
		if !d.Valid() {
			return nil, presence.NewValidationError("dates", presence.ErrInvalidDate, fmt.Sprintf("%q is not YYYY-MM-DD", d))
		}
	}
	if _, err := m.requireDraft(ctx, scenarioID); err != nil {
		return nil, err
	}
	current, err := m.store.GetResource(ctx, scenarioID, resourceID)
	if err != nil {
		return nil, err
	}
	merged := presence.MergeDates(current.DynamicHolidays, dates)
	if merged == nil {
		merged = []presence.Date{}
	}
	return m.store.UpdateResource(ctx, scenarioID, resourceID, presence.ResourcePatch{DynamicHolidays: merged})
}
