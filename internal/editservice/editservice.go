// Package editservice implements the propose/approve/reject lifecycle of
// a MemoryEdit (spec section 3's memory-surgery overlay), validating op
// and target_type before the edit reaches the store. It never touches
// effective_text/effective_importance directly; internal/overlay folds
// approved edits at read time.
package editservice

import (
	"time"

	"github.com/acbmem/agentmem/internal/apierr"
	"github.com/acbmem/agentmem/internal/idgen"
	"github.com/acbmem/agentmem/internal/model"
	"github.com/acbmem/agentmem/internal/store"
)

var validOps = map[model.EditOp]bool{
	model.EditRetract:    true,
	model.EditAmend:      true,
	model.EditQuarantine: true,
	model.EditAttenuate:  true,
	model.EditBlock:      true,
}

var validTargetTypes = map[model.TargetType]bool{
	model.TargetChunk:    true,
	model.TargetDecision: true,
}

// Engine wires the store used to persist memory edits.
type Engine struct {
	store *store.Store
}

// New constructs an Engine over an open store.
func New(s *store.Store) *Engine {
	return &Engine{store: s}
}

// ProposeInput is the input to Propose.
type ProposeInput struct {
	TenantID   string
	TargetType model.TargetType
	TargetID   string
	Op         model.EditOp
	Patch      model.EditPatch
	Reason     string
	ProposedBy string
}

// Propose validates and inserts a new edit in the proposed state. It
// does not affect any effective view until approved.
func (e *Engine) Propose(in ProposeInput) (*model.MemoryEdit, error) {
	if in.TenantID == "" {
		return nil, apierr.New(apierr.KindValidation, "tenant_id is required", nil)
	}
	if !validTargetTypes[in.TargetType] {
		return nil, apierr.New(apierr.KindValidation, "target_type must be chunk or decision", nil)
	}
	if in.TargetID == "" {
		return nil, apierr.New(apierr.KindValidation, "target_id is required", nil)
	}
	if !validOps[in.Op] {
		return nil, apierr.New(apierr.KindValidation, "op must be one of retract, amend, quarantine, attenuate, block", nil)
	}
	if in.ProposedBy == "" {
		return nil, apierr.New(apierr.KindValidation, "proposed_by is required", nil)
	}
	if err := validatePatch(in.Op, in.Patch); err != nil {
		return nil, err
	}

	if err := e.verifyTargetExists(in.TenantID, in.TargetType, in.TargetID); err != nil {
		return nil, err
	}

	edit := model.MemoryEdit{
		EditID:     idgen.New(idgen.KindEdit),
		TenantID:   in.TenantID,
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		Op:         in.Op,
		Patch:      in.Patch,
		Reason:     in.Reason,
		ProposedBy: in.ProposedBy,
		Status:     model.EditProposed,
		CreatedAt:  time.Now(),
	}

	if err := e.store.InsertMemoryEdit(edit); err != nil {
		return nil, apierr.New(apierr.KindStorage, "failed to insert memory edit", err)
	}
	return &edit, nil
}

// validatePatch checks that an op's required patch fields are present;
// it is intentionally permissive about extras, since EditPatch is a
// shared shape across ops.
func validatePatch(op model.EditOp, patch model.EditPatch) error {
	switch op {
	case model.EditAmend:
		if patch.Text == nil && patch.Importance == nil {
			return apierr.New(apierr.KindValidation, "amend requires patch.text and/or patch.importance", nil)
		}
	case model.EditAttenuate:
		if patch.ImportanceDelta == nil && patch.Importance == nil {
			return apierr.New(apierr.KindValidation, "attenuate requires patch.importance_delta or patch.importance", nil)
		}
	case model.EditBlock:
		if patch.Channel == "" {
			return apierr.New(apierr.KindValidation, "block requires patch.channel", nil)
		}
	}
	return nil
}

func (e *Engine) verifyTargetExists(tenantID string, targetType model.TargetType, targetID string) error {
	switch targetType {
	case model.TargetChunk:
		if _, err := e.store.GetChunk(tenantID, targetID); err != nil {
			return apierr.New(apierr.KindValidation, "target chunk not found", err)
		}
	case model.TargetDecision:
		if _, err := e.store.GetDecision(tenantID, targetID); err != nil {
			return apierr.New(apierr.KindValidation, "target decision not found", err)
		}
	}
	return nil
}

// Approve transitions a proposed edit to approved, stamping applied_at.
// Only approved edits are folded into effective views.
func (e *Engine) Approve(tenantID, editID string) (*model.MemoryEdit, error) {
	return e.transition(tenantID, editID, model.EditApproved)
}

// Reject transitions a proposed edit to rejected; it never affects
// effective views.
func (e *Engine) Reject(tenantID, editID string) (*model.MemoryEdit, error) {
	return e.transition(tenantID, editID, model.EditRejected)
}

func (e *Engine) transition(tenantID, editID string, status model.EditStatus) (*model.MemoryEdit, error) {
	existing, err := e.store.GetMemoryEdit(tenantID, editID)
	if err != nil {
		return nil, err
	}
	if existing.Status != model.EditProposed {
		return nil, apierr.New(apierr.KindConflict, "only proposed edits can be approved or rejected", nil)
	}

	var appliedAt interface{}
	if status == model.EditApproved {
		now := time.Now()
		appliedAt = now
	}
	if err := e.store.SetMemoryEditStatus(tenantID, editID, status, appliedAt); err != nil {
		return nil, apierr.New(apierr.KindStorage, "failed to update memory edit status", err)
	}
	return e.store.GetMemoryEdit(tenantID, editID)
}
