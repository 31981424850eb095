/*
Package scenario versions budget scenarios and the resources inside them.

PURPOSE:
  A scenario is the unit of work: a name, a set of budget envelopes and a
  collection of resources. Scenarios move through a small lifecycle so that
  one version is the accepted plan while edits happen on a working copy.

LIFECYCLE:
  DRAFT     editable working copy
  MASTER    the accepted version, read-only
  ARCHIVED  a former MASTER, read-only and terminal

  createDraft  -> DRAFT (only when the owner has nothing yet)
  fork(S)      -> new DRAFT, parent S, copies of S's envelopes and resources
  publish(D)   -> old MASTERs ARCHIVED, D MASTER, new DRAFT child of D

KEY CONCEPTS IN THIS FILE (types.go):
  - Status: the closed lifecycle enumeration
  - Envelope: a RUN or CHANGE budget line
  - Scenario: the versioned header; resources live in a separate collection
  - ScenarioPatch: a partial header update

SEE ALSO:
  - manager.go: lifecycle transitions and publish protocol
  - guard.go: the single mutation guard
  - store.go: persistence interfaces
*/
package scenario

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the lifecycle state of a scenario.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusMaster   Status = "MASTER"
	StatusArchived Status = "ARCHIVED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusMaster, StatusArchived:
		return true
	}
	return false
}

// =============================================================================
// BUDGET ENVELOPE
// =============================================================================

// EnvelopeType is the budget category an envelope funds.
type EnvelopeType string

const (
	EnvelopeRun    EnvelopeType = "RUN"
	EnvelopeChange EnvelopeType = "CHANGE"
)

// Envelope is an amount of budget reserved for RUN or CHANGE work.
type Envelope struct {
	ID     string          `json:"id"`
	Name   string          `json:"name" validate:"required"`
	Type   EnvelopeType    `json:"type" validate:"required,oneof=RUN CHANGE"`
	Amount decimal.Decimal `json:"amount"`
}

// =============================================================================
// SCENARIO
// =============================================================================

// Scenario is the versioned header. Its resources are stored in their own
// collection so they can be loaded and subscribed to independently.
type Scenario struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	OwnerID   string     `json:"owner_id"`
	ParentID  string     `json:"parent_id,omitempty"`
	Envelopes []Envelope `json:"envelopes"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Clone returns a copy whose envelope slice is not shared.
func (s *Scenario) Clone() *Scenario {
	c := *s
	c.Envelopes = slices.Clone(s.Envelopes)
	return &c
}

// Envelope returns the envelope with the given id.
func (s *Scenario) Envelope(id string) (Envelope, bool) {
	for _, e := range s.Envelopes {
		if e.ID == id {
			return e, true
		}
	}
	return Envelope{}, false
}

// ScenarioPatch is a partial header update. Nil fields are left unchanged;
// a non-nil Envelopes replaces the whole list.
type ScenarioPatch struct {
	Name      *string
	Status    *Status
	Envelopes []Envelope
}

// masters returns the ids of every MASTER in list.
func masters(list []Scenario) []string {
	var ids []string
	for _, s := range list {
		if s.Status == StatusMaster {
			ids = append(ids, s.ID)
		}
	}
	return ids
}
