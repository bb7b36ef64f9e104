// Package mode implements the Mode & Invariant Detector of spec section
// 4.G: intent classification, confidence estimation, sticky-invariant
// extraction and the guardrail fallback to GENERAL. Grounded directly on
// the teacher's internal/router/router.go SkillRouter.ClassifyQuery:
// same shape (lowercase, substring match over fixed pattern lists),
// generalized from four query types to five interaction modes.
package mode

import "strings"

// Mode names one of the five interaction modes.
type Mode string

const (
	ModeTask        Mode = "TASK"
	ModeExploration Mode = "EXPLORATION"
	ModeDebugging   Mode = "DEBUGGING"
	ModeLearning    Mode = "LEARNING"
	ModeGeneral     Mode = "GENERAL"
)

// InvariantType names a sticky invariant detected in query text.
type InvariantType string

const (
	InvariantSafety        InvariantType = "SAFETY_REQUIREMENT"
	InvariantUserCorrection InvariantType = "USER_CORRECTION"
	InvariantHardConstraint InvariantType = "HARD_CONSTRAINT"
	InvariantBlockingError  InvariantType = "BLOCKING_ERROR"
)

// Priority returns the fixed priority of an invariant type.
func (t InvariantType) Priority() int {
	switch t {
	case InvariantSafety:
		return 1000
	case InvariantUserCorrection:
		return 900
	case InvariantHardConstraint:
		return 800
	case InvariantBlockingError:
		return 700
	default:
		return 0
	}
}

var intentToMode = map[string]Mode{
	"task":       ModeTask,
	"implement":  ModeTask,
	"debug":      ModeDebugging,
	"fix":        ModeDebugging,
	"error":      ModeDebugging,
	"explore":    ModeExploration,
	"investigate": ModeExploration,
	"learn":      ModeLearning,
	"explain":    ModeLearning,
	"teach":      ModeLearning,
	"general":    ModeGeneral,
	"default":    ModeGeneral,
}

var coreWords = map[string]bool{"task": true, "debug": true, "explore": true, "learn": true, "general": true}
var variationWords = map[string]bool{"implement": true, "fix": true, "error": true, "investigate": true, "explain": true, "teach": true}

// ClassifyIntent maps a trimmed, lowercased intent string to a mode and
// its confidence, per spec section 4.G's intent table and confidence
// rules.
func ClassifyIntent(intent string) (Mode, float64) {
	normalized := strings.ToLower(strings.TrimSpace(intent))
	if normalized == "" {
		return ModeGeneral, 0.5
	}

	m, known := intentToMode[normalized]
	if !known {
		return ModeGeneral, 0.6
	}
	if coreWords[normalized] {
		return m, 0.95
	}
	if variationWords[normalized] {
		return m, 0.85
	}
	return m, 0.5
}

// SubBudgets is the (rules, task_state, recent_window, capsules,
// retrieved_evidence, relevant_decisions) tuple for a mode.
type SubBudgets struct {
	Rules             int
	TaskState         int
	RecentWindow      int
	Capsules          int
	RetrievedEvidence int
	RelevantDecisions int
}

var modeBudgets = map[Mode]SubBudgets{
	ModeTask:        {10000, 5000, 2000, 4000, 28000, 4000},
	ModeExploration: {3000, 1000, 15000, 2000, 35000, 6000},
	ModeDebugging:   {5000, 4000, 12000, 0, 25000, 3000},
	ModeLearning:    {8000, 0, 2000, 2000, 40000, 8000},
	ModeGeneral:     {6000, 3000, 8000, 4000, 28000, 4000},
}

// Budgets returns the fixed sub-budget tuple for a mode.
func Budgets(m Mode) SubBudgets {
	if b, ok := modeBudgets[m]; ok {
		return b
	}
	return modeBudgets[ModeGeneral]
}

type invariantRule struct {
	typ      InvariantType
	patterns []string
	and      [2]string
}

var invariantRules = []invariantRule{
	{typ: InvariantSafety, patterns: []string{"safety", "security", "must be secure", "must validate", "authentication"}},
	{typ: InvariantUserCorrection, patterns: []string{" actually ", " wait ", " no, ", " correction", " instead"}},
	{typ: InvariantHardConstraint, patterns: []string{" must ", " must not ", " required ", " mandatory ", " critical "}},
	{typ: InvariantBlockingError, patterns: []string{" error ", " fail", " bug ", " broken ", " crash", " exception"}},
}

// ExtractInvariants applies the sticky-invariant substring heuristic to
// query text; each type appears at most once in the result.
func ExtractInvariants(queryText string) []InvariantType {
	padded := " " + strings.ToLower(queryText) + " "
	var out []InvariantType

	for _, r := range invariantRules {
		matched := false
		for _, p := range r.patterns {
			if strings.Contains(padded, p) {
				matched = true
				break
			}
		}
		if !matched && r.typ == InvariantUserCorrection {
			matched = strings.Contains(padded, " not ") && strings.Contains(padded, " but ")
		}
		if matched {
			out = append(out, r.typ)
		}
	}
	return out
}

// GuardrailInput carries the signals the guardrail fallback consults.
type GuardrailInput struct {
	Confidence       float64
	DriftDetected    bool
	ModeErrorRate    float64
	BaselineErrorRate float64
}

// ApplyGuardrail forces mode to GENERAL and returns a non-empty reason
// when confidence is too low, a drift check fired, or the mode's error
// rate exceeds twice the baseline.
func ApplyGuardrail(m Mode, in GuardrailInput) (Mode, string) {
	if in.Confidence < 0.70 {
		return ModeGeneral, "low_confidence"
	}
	if in.DriftDetected {
		return ModeGeneral, "drift_detected"
	}
	if in.BaselineErrorRate > 0 && in.ModeErrorRate > 2*in.BaselineErrorRate {
		return ModeGeneral, "error_rate_exceeded"
	}
	return m, ""
}

// DefaultBreachPriority is the minimum invariant priority breach
// detection checks against when the caller does not specify one.
const DefaultBreachPriority = 800

// DetectBreach reports whether any required invariant at or above
// minPriority is absent from present, per spec section 4.G's
// log-only breach policy.
func DetectBreach(required, present []InvariantType, minPriority int) []InvariantType {
	presentSet := make(map[InvariantType]bool, len(present))
	for _, t := range present {
		presentSet[t] = true
	}

	var missing []InvariantType
	for _, t := range required {
		if t.Priority() >= minPriority && !presentSet[t] {
			missing = append(missing, t)
		}
	}
	return missing
}

// BreachSeverity maps a missing invariant type to the logging severity
// spec section 4.G/4.I assigns it.
func BreachSeverity(t InvariantType) string {
	switch t {
	case InvariantSafety:
		return "critical"
	case InvariantUserCorrection, InvariantHardConstraint:
		return "high"
	default:
		return "medium"
	}
}
