// Package chunk extracts searchable text from a typed event and scores
// its importance, per spec section 4.C. One event yields at most one
// chunk today; the algorithm is deliberately written so a future
// extension that splits large text into multiple chunks only needs to
// change Extract's return type.
package chunk

import (
	"strings"

	"github.com/acbmem/agentmem/internal/idgen"
	"github.com/acbmem/agentmem/internal/model"
)

var pinnedMarkers = []string{"README", "package.json", "pyproject.toml", "Cargo.toml", "go.mod"}

// selectText picks the kind-dependent text to index, per spec step 1.
func selectText(ev model.Event) string {
	switch ev.Kind {
	case model.KindMessage:
		return ev.Content.Text
	case model.KindToolResult:
		return ev.Content.ExcerptText
	case model.KindDecision:
		parts := append([]string{ev.Content.Decision}, ev.Content.Rationale...)
		return strings.Join(nonEmpty(parts), "\n")
	case model.KindTaskUpdate:
		if ev.Content.Details != "" {
			return ev.Content.Details
		}
		return ev.Content.Title
	default: // tool_call, artifact, unknown
		return ""
	}
}

func nonEmpty(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func pathLooksPinned(path string) bool {
	for _, marker := range pinnedMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// importance computes the importance score for an event's extracted
// text, per spec step 3.
func importance(ev model.Event) float64 {
	switch ev.Kind {
	case model.KindDecision:
		return 1.0
	case model.KindTaskUpdate:
		return 0.8
	}
	if hasTag(ev.Tags, "pinned") {
		return 0.9
	}
	if ev.Kind == model.KindToolResult && pathLooksPinned(ev.Content.Path) {
		return 0.7
	}
	return 0.0
}

// Extract produces the chunk(s) derived from an event. Zero chunks are
// returned when the selected text is empty or whitespace-only.
func Extract(ev model.Event) []model.Chunk {
	text := selectText(ev)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c := model.Chunk{
		ChunkID:     idgen.New(idgen.KindChunk),
		TenantID:    ev.TenantID,
		EventID:     ev.EventID,
		TS:          ev.TS,
		Kind:        ev.Kind,
		Channel:     ev.Channel,
		Sensitivity: ev.Sensitivity,
		Tags:        ev.Tags,
		TokenEst:    idgen.EstimateTokens(text),
		Importance:  importance(ev),
		Text:        text,
		Scope:       ev.Scope,
		SubjectType: ev.SubjectType,
		SubjectID:   ev.SubjectID,
		ProjectID:   ev.ProjectID,
	}
	return []model.Chunk{c}
}
