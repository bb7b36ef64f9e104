// Package idgen generates sortable, opaque, per-kind identifiers and
// estimates the token cost of text. The teacher repo mints identifiers
// with google/uuid wherever an opaque, unordered ID is enough
// (internal/events/types.go, internal/metrics/alerts.go); this package
// keeps that library for unordered IDs and adds oklog/ulid for the
// time-ordered entity IDs spec section 4.A requires.
package idgen

import (
	"crypto/rand"
	"math"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// EntityKind names the prefix family an ID belongs to.
type EntityKind string

const (
	KindEvent    EntityKind = "evt"
	KindChunk    EntityKind = "chk"
	KindDecision EntityKind = "dec"
	KindCapsule  EntityKind = "cap"
	KindEdit     EntityKind = "edit"
	KindArtifact EntityKind = "art"
	KindACB      EntityKind = "acb"
	KindEdge     EntityKind = "edge"
	KindTask     EntityKind = "task"
	KindRule     EntityKind = "rule"
)

// entropy is a package-level, mutex-free source: ulid.Monotonic wraps
// crypto/rand and is itself safe only for single-goroutine use, so each
// call to New constructs its own reader seeded off crypto/rand directly
// instead of sharing a monotonic source across goroutines.
func New(kind EntityKind) string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return string(kind) + "_" + id.String()
}

// NewAt is New with an explicit timestamp, for deterministic tests.
func NewAt(kind EntityKind, t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return string(kind) + "_" + id.String()
}

// EstimateTokens is a conservative, deterministic heuristic: ceil(runes/4),
// with a floor of 1 for any non-empty string. Exactness is not part of
// the contract; equal inputs always yield equal outputs.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	n := utf8.RuneCountInString(s)
	est := int(math.Ceil(float64(n) / 4.0))
	if est < 1 {
		est = 1
	}
	return est
}
