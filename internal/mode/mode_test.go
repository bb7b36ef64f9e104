package mode

import (
	"reflect"
	"testing"
)

func TestClassifyIntentCoreWord(t *testing.T) {
	m, conf := ClassifyIntent("debug")
	if m != ModeDebugging {
		t.Errorf("expected ModeDebugging, got %s", m)
	}
	if conf != 0.95 {
		t.Errorf("expected core-word confidence 0.95, got %f", conf)
	}
}

func TestClassifyIntentVariationWord(t *testing.T) {
	m, conf := ClassifyIntent("Fix")
	if m != ModeDebugging {
		t.Errorf("expected ModeDebugging, got %s", m)
	}
	if conf != 0.85 {
		t.Errorf("expected variation-word confidence 0.85, got %f", conf)
	}
}

func TestClassifyIntentUnknown(t *testing.T) {
	m, conf := ClassifyIntent("something-unrecognized")
	if m != ModeGeneral || conf != 0.6 {
		t.Errorf("expected (GENERAL, 0.6) for unknown intent, got (%s, %f)", m, conf)
	}
}

func TestClassifyIntentEmpty(t *testing.T) {
	m, conf := ClassifyIntent("   ")
	if m != ModeGeneral || conf != 0.5 {
		t.Errorf("expected (GENERAL, 0.5) for empty intent, got (%s, %f)", m, conf)
	}
}

func TestExtractInvariantsSafety(t *testing.T) {
	got := ExtractInvariants("this endpoint must validate all input for security")
	found := false
	for _, g := range got {
		if g == InvariantSafety {
			found = true
		}
	}
	if !found {
		t.Errorf("expected SAFETY_REQUIREMENT in %v", got)
	}
}

func TestExtractInvariantsNoneMatched(t *testing.T) {
	got := ExtractInvariants("please summarize the last release notes")
	if len(got) != 0 {
		t.Errorf("expected no invariants, got %v", got)
	}
}

func TestApplyGuardrailLowConfidence(t *testing.T) {
	m, reason := ApplyGuardrail(ModeTask, GuardrailInput{Confidence: 0.5})
	if m != ModeGeneral || reason != "low_confidence" {
		t.Errorf("expected fallback to GENERAL with low_confidence, got (%s, %s)", m, reason)
	}
}

func TestApplyGuardrailErrorRateExceeded(t *testing.T) {
	m, reason := ApplyGuardrail(ModeDebugging, GuardrailInput{
		Confidence:        0.9,
		ModeErrorRate:     0.3,
		BaselineErrorRate: 0.1,
	})
	if m != ModeGeneral || reason != "error_rate_exceeded" {
		t.Errorf("expected fallback on error rate breach, got (%s, %s)", m, reason)
	}
}

func TestApplyGuardrailPassthrough(t *testing.T) {
	m, reason := ApplyGuardrail(ModeTask, GuardrailInput{Confidence: 0.9})
	if m != ModeTask || reason != "" {
		t.Errorf("expected mode to pass through unchanged, got (%s, %s)", m, reason)
	}
}

func TestDetectBreachMissingAboveThreshold(t *testing.T) {
	required := []InvariantType{InvariantSafety, InvariantBlockingError}
	present := []InvariantType{InvariantBlockingError}
	missing := DetectBreach(required, present, DefaultBreachPriority)
	if !reflect.DeepEqual(missing, []InvariantType{InvariantSafety}) {
		t.Errorf("expected only SAFETY_REQUIREMENT missing, got %v", missing)
	}
}

func TestDetectBreachBelowThresholdIgnored(t *testing.T) {
	required := []InvariantType{InvariantBlockingError}
	missing := DetectBreach(required, nil, 900)
	if len(missing) != 0 {
		t.Errorf("expected no breach below priority threshold, got %v", missing)
	}
}

func TestBreachSeverity(t *testing.T) {
	if BreachSeverity(InvariantSafety) != "critical" {
		t.Error("expected SAFETY_REQUIREMENT to be critical severity")
	}
	if BreachSeverity(InvariantHardConstraint) != "high" {
		t.Error("expected HARD_CONSTRAINT to be high severity")
	}
}
