// Package overlay implements the non-destructive edit fold of spec
// section 4.E: effective_chunks and the effective-decision equivalent.
// Every function here is pure — it takes a base record and its approved
// edits (already loaded by the caller) and returns the record as it
// should appear at read time. Originals are never mutated; the fold is
// recomputed on every read, per the teacher's query-time-join design
// choice recorded in SPEC_FULL.md section 4.E.
package overlay

import (
	"sort"

	"github.com/acbmem/agentmem/internal/model"
)

// EffectiveChunk is a chunk as it appears after folding approved edits.
type EffectiveChunk struct {
	model.Chunk
	EffectiveText       string
	EffectiveImportance float64
	IsQuarantined       bool
	BlockedChannels     map[model.Channel]bool
	EditsAppliedCount   int
}

// clamp01 clamps a value to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sortedByCreatedAt(edits []model.MemoryEdit) []model.MemoryEdit {
	out := make([]model.MemoryEdit, len(edits))
	copy(out, edits)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// FoldChunk applies every approved edit targeting a chunk to produce its
// effective view. The second return value is false when the chunk must
// be omitted entirely (a retract edit exists).
func FoldChunk(base model.Chunk, edits []model.MemoryEdit) (EffectiveChunk, bool) {
	eff := EffectiveChunk{
		Chunk:               base,
		EffectiveText:       base.Text,
		EffectiveImportance: base.Importance,
		BlockedChannels:     map[model.Channel]bool{},
	}

	ordered := sortedByCreatedAt(edits)

	for _, e := range ordered {
		if e.Status != model.EditApproved || e.TargetType != model.TargetChunk {
			continue
		}
		if e.Op == model.EditRetract {
			return eff, false
		}
	}

	var lastAmendText *string
	var lastAmendImportance *float64
	var attenuateOverride *float64
	var attenuateDelta float64

	for _, e := range ordered {
		if e.Status != model.EditApproved || e.TargetType != model.TargetChunk {
			continue
		}
		eff.EditsAppliedCount++

		switch e.Op {
		case model.EditAmend:
			if e.Patch.Text != nil {
				lastAmendText = e.Patch.Text
			}
			if e.Patch.Importance != nil {
				lastAmendImportance = e.Patch.Importance
			}
		case model.EditQuarantine:
			eff.IsQuarantined = true
		case model.EditAttenuate:
			if e.Patch.Importance != nil {
				attenuateOverride = e.Patch.Importance
				attenuateDelta = 0
			} else if e.Patch.ImportanceDelta != nil {
				attenuateDelta -= *e.Patch.ImportanceDelta
			}
		case model.EditBlock:
			if e.Patch.Channel != "" {
				eff.BlockedChannels[model.Channel(e.Patch.Channel)] = true
			}
		}
	}

	if lastAmendText != nil {
		eff.EffectiveText = *lastAmendText
	}
	if lastAmendImportance != nil {
		eff.EffectiveImportance = *lastAmendImportance
	}
	if attenuateOverride != nil {
		eff.EffectiveImportance = *attenuateOverride
	}
	eff.EffectiveImportance = clamp01(eff.EffectiveImportance + attenuateDelta)

	return eff, true
}

// EffectiveDecision is a decision as it appears after folding approved
// edits (amend/retract apply the same way as for chunks; quarantine,
// attenuate and block are chunk-only operations per spec section 3).
type EffectiveDecision struct {
	model.Decision
	EffectiveText     string
	EditsAppliedCount int
}

// FoldDecision applies approved edits targeting a decision.
func FoldDecision(base model.Decision, edits []model.MemoryEdit) (EffectiveDecision, bool) {
	eff := EffectiveDecision{Decision: base, EffectiveText: base.Decision}

	ordered := sortedByCreatedAt(edits)

	for _, e := range ordered {
		if e.Status != model.EditApproved || e.TargetType != model.TargetDecision {
			continue
		}
		if e.Op == model.EditRetract {
			return eff, false
		}
	}

	var lastAmendText *string
	for _, e := range ordered {
		if e.Status != model.EditApproved || e.TargetType != model.TargetDecision {
			continue
		}
		eff.EditsAppliedCount++
		if e.Op == model.EditAmend && e.Patch.Text != nil {
			lastAmendText = e.Patch.Text
		}
	}
	if lastAmendText != nil {
		eff.EffectiveText = *lastAmendText
	}

	return eff, true
}
