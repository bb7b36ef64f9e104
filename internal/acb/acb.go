// Package acb implements the Active Context Bundle Orchestrator of spec
// section 4.H: mode detection, per-section greedy budget packing and
// provenance/telemetry emission. Section assembly generalizes the
// teacher's dashboard aggregation pattern in internal/server/hub.go
// (multiple independent data sources merged into one payload under a
// size constraint) from a push-to-websocket shape to a budgeted
// request/response shape.
package acb

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/acbmem/agentmem/internal/capsule"
	"github.com/acbmem/agentmem/internal/fts"
	"github.com/acbmem/agentmem/internal/idgen"
	"github.com/acbmem/agentmem/internal/mode"
	"github.com/acbmem/agentmem/internal/model"
	"github.com/acbmem/agentmem/internal/privacy"
	"github.com/acbmem/agentmem/internal/store"
	"github.com/acbmem/agentmem/internal/telemetry"
)

// DefaultMaxTokens is the default ACB token budget from spec section 6.
const DefaultMaxTokens = 65000

// MaxEvidenceCandidates bounds the search_chunks call in the
// retrieved_evidence section.
const MaxEvidenceCandidates = 200

// MaxRecentEvents bounds the recent_window section's lookback.
const MaxRecentEvents = 20

// scoringAlpha/Beta/Gamma are contract constants reserved for future
// scoring, carried verbatim into provenance.
const (
	scoringAlpha = 0.6
	scoringBeta  = 0.3
	scoringGamma = 0.1
)

// Request is the input to BuildACB.
type Request struct {
	TenantID           string
	SessionID          string
	AgentID            string
	Channel            model.Channel
	Intent             string
	QueryText          string
	MaxTokens          *int
	SubjectType        *string
	SubjectID          *string
	ProjectID          *string
	IncludeCapsules    bool
	IncludeQuarantined bool
	DriftDetected      bool
	RequiredInvariants []mode.InvariantType
}

// Item is one packed entry within a section.
type Item struct {
	Text     string `json:"text"`
	TokenEst int    `json:"token_est"`
}

// Section is one named, budget-packed part of the response.
type Section struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
	Used  int    `json:"used_tokens"`
}

// Provenance records how the response was derived, per spec step 4.
type Provenance struct {
	Intent             string   `json:"intent"`
	QueryTerms         []string `json:"query_terms"`
	CandidatePoolSize  int      `json:"candidate_pool_size"`
	SensitivityAllowed []string `json:"sensitivity_allowed"`
	ScoringAlpha       float64  `json:"scoring_alpha"`
	ScoringBeta        float64  `json:"scoring_beta"`
	ScoringGamma       float64  `json:"scoring_gamma"`
}

// Response is the full ACB result, per spec step 6.
type Response struct {
	ACBID          string          `json:"acb_id"`
	BudgetTokens   int             `json:"budget_tokens"`
	TokenUsedEst   int             `json:"token_used_est"`
	Sections       []Section       `json:"sections"`
	Omissions      []string        `json:"omissions"`
	Provenance     Provenance      `json:"provenance"`
	Capsules       []model.Capsule `json:"capsules"`
	EditsApplied   int             `json:"edits_applied"`
	Mode           mode.Mode       `json:"mode"`
	ModeConfidence float64         `json:"mode_confidence"`
	ModeInvariants []mode.InvariantType `json:"mode_invariants"`
	FallbackReason string          `json:"fallback_reason,omitempty"`
}

// Orchestrator wires together the store and domain engines BuildACB
// assembles sections from.
type Orchestrator struct {
	store       *store.Store
	capsules    *capsule.Engine
	errorRates  *mode.ErrorRateTracker
	telemetry   *telemetry.Sink
}

// New constructs an Orchestrator.
func New(s *store.Store, capsules *capsule.Engine, errorRates *mode.ErrorRateTracker, sink *telemetry.Sink) *Orchestrator {
	return &Orchestrator{store: s, capsules: capsules, errorRates: errorRates, telemetry: sink}
}

// BuildACB implements the buildACB operation of spec section 4.H.
func (o *Orchestrator) BuildACB(req Request) (*Response, error) {
	budget := DefaultMaxTokens
	if req.MaxTokens != nil {
		budget = *req.MaxTokens
	}
	used := 0

	detectedMode, confidence := mode.ClassifyIntent(req.Intent)
	invariants := mode.ExtractInvariants(req.QueryText)

	errorRate := 0.0
	if o.errorRates != nil {
		if r, err := o.errorRates.Rate(req.TenantID, detectedMode); err == nil {
			errorRate = r
		}
	}
	finalMode, fallbackReason := mode.ApplyGuardrail(detectedMode, mode.GuardrailInput{
		Confidence:        confidence,
		DriftDetected:     req.DriftDetected,
		ModeErrorRate:     errorRate,
		BaselineErrorRate: 0,
	})

	budgets := mode.Budgets(finalMode)
	if !req.IncludeCapsules {
		budgets.Capsules = 0
	}

	var sections []Section
	var omissions []string

	rulesSection, n := o.buildRulesSection(req, localBudget(budgets.Rules, budget, used))
	used += n
	sections = append(sections, rulesSection)

	taskSection, n := o.buildTaskStateSection(req, localBudget(budgets.TaskState, budget, used))
	used += n
	sections = append(sections, taskSection)

	recentSection, n := o.buildRecentWindowSection(req, localBudget(budgets.RecentWindow, budget, used))
	used += n
	sections = append(sections, recentSection)

	var caps []model.Capsule
	var capsSection Section
	if req.IncludeCapsules {
		var n int
		capsSection, caps, n = o.buildCapsulesSection(req, localBudget(budgets.Capsules, budget, used))
		used += n
	} else {
		capsSection = Section{Name: "capsules"}
	}
	sections = append(sections, capsSection)

	evidenceSection, poolSize, editsApplied, n := o.buildEvidenceSection(req, localBudget(budgets.RetrievedEvidence, budget, used))
	used += n
	sections = append(sections, evidenceSection)

	decisionsSection, n := o.buildDecisionsSection(req, localBudget(budgets.RelevantDecisions, budget, used))
	used += n
	sections = append(sections, decisionsSection)

	queryTerms := fts.Tokenize(req.QueryText)
	allowed := privacy.AllowedSensitivity(req.Channel)
	allowedList := make([]string, 0, len(allowed))
	for s := range allowed {
		allowedList = append(allowedList, string(s))
	}
	sort.Strings(allowedList)

	provenance := Provenance{
		Intent:             req.Intent,
		QueryTerms:         queryTerms,
		CandidatePoolSize:  poolSize,
		SensitivityAllowed: allowedList,
		ScoringAlpha:       scoringAlpha,
		ScoringBeta:        scoringBeta,
		ScoringGamma:       scoringGamma,
	}

	missing := mode.DetectBreach(req.RequiredInvariants, invariants, mode.DefaultBreachPriority)
	if o.telemetry != nil {
		o.emitTelemetry(req, finalMode, confidence, fallbackReason, missing)
	}
	if o.errorRates != nil {
		o.errorRates.Record(req.TenantID, finalMode, fallbackReason != "")
	}

	return &Response{
		ACBID:          idgen.New(idgen.KindACB),
		BudgetTokens:   budget,
		TokenUsedEst:   used,
		Sections:       sections,
		Omissions:      omissions,
		Provenance:     provenance,
		Capsules:       caps,
		EditsApplied:   editsApplied,
		Mode:           finalMode,
		ModeConfidence: confidence,
		ModeInvariants: invariants,
		FallbackReason: fallbackReason,
	}, nil
}

func localBudget(modeSubBudget, budget, used int) int {
	remaining := budget - used
	if remaining < 0 {
		remaining = 0
	}
	if modeSubBudget < remaining {
		return modeSubBudget
	}
	return remaining
}

func (o *Orchestrator) buildRulesSection(req Request, local int) (Section, int) {
	sec := Section{Name: "rules"}
	rules, err := o.store.RulesForChannel(req.TenantID, req.Channel)
	if err != nil {
		return sec, 0
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	used := 0
	for _, r := range rules {
		if used+r.TokenEst > local {
			continue
		}
		sec.Items = append(sec.Items, Item{Text: r.Content, TokenEst: r.TokenEst})
		used += r.TokenEst
	}
	sec.Used = used
	return sec, used
}

func (o *Orchestrator) buildTaskStateSection(req Request, local int) (Section, int) {
	sec := Section{Name: "task_state"}
	tasks, err := o.store.OpenTasks(req.TenantID, 50)
	if err != nil || len(tasks) == 0 {
		return sec, 0
	}

	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "- [%s] %s\n", t.Status, t.Title)
	}
	text := strings.TrimRight(b.String(), "\n")
	tokenEst := idgen.EstimateTokens(text)
	if tokenEst > local {
		return sec, 0
	}
	sec.Items = append(sec.Items, Item{Text: text, TokenEst: tokenEst})
	sec.Used = tokenEst
	return sec, tokenEst
}

func (o *Orchestrator) buildRecentWindowSection(req Request, local int) (Section, int) {
	sec := Section{Name: "recent_window"}
	events, err := o.store.RecentSessionEvents(req.TenantID, req.SessionID, MaxRecentEvents)
	if err != nil {
		return sec, 0
	}

	allowed := privacy.AllowedSensitivity(req.Channel)
	used := 0
	for _, ev := range events {
		if !allowed[ev.Sensitivity] {
			continue
		}
		text := renderEvent(ev)
		if text == "" {
			continue
		}
		tokenEst := idgen.EstimateTokens(text)
		if used+tokenEst > local {
			continue
		}
		sec.Items = append(sec.Items, Item{Text: text, TokenEst: tokenEst})
		used += tokenEst
	}
	sec.Used = used
	return sec, used
}

func renderEvent(ev model.Event) string {
	switch ev.Kind {
	case model.KindMessage:
		switch ev.Actor.Type {
		case model.ActorHuman:
			return "User: " + ev.Content.Text
		default:
			return "Agent: " + ev.Content.Text
		}
	case model.KindDecision:
		return "Decision: " + ev.Content.Decision
	default:
		return ""
	}
}

func (o *Orchestrator) buildCapsulesSection(req Request, local int) (Section, []model.Capsule, int) {
	sec := Section{Name: "capsules"}
	caps, err := o.capsules.ListCapsules(req.TenantID, req.AgentID, req.SubjectType, req.SubjectID)
	if err != nil {
		return sec, nil, 0
	}

	const perCapsuleTokens = 50
	used := 0
	var kept []model.Capsule
	for _, c := range caps {
		if used+perCapsuleTokens > local {
			continue
		}
		summary := fmt.Sprintf("capsule %s: %d chunks, %d decisions, %d artifacts, risks: %s",
			c.CapsuleID, len(c.Items.ChunkIDs), len(c.Items.DecisionIDs), len(c.Items.ArtifactIDs), strings.Join(c.Risks, "; "))
		sec.Items = append(sec.Items, Item{Text: summary, TokenEst: perCapsuleTokens})
		used += perCapsuleTokens
		kept = append(kept, c)
	}
	sec.Used = used
	return sec, kept, used
}

func (o *Orchestrator) buildEvidenceSection(req Request, local int) (Section, int, int, int) {
	sec := Section{Name: "retrieved_evidence"}
	channel := req.Channel
	results, err := o.store.SearchChunks(req.TenantID, req.QueryText, store.SearchParams{
		SubjectType:        req.SubjectType,
		SubjectID:          req.SubjectID,
		ProjectID:          req.ProjectID,
		Channel:            &channel,
		IncludeQuarantined: req.IncludeQuarantined,
		Limit:              MaxEvidenceCandidates,
	})
	if err != nil {
		return sec, 0, 0, 0
	}

	used := 0
	editsApplied := 0
	for _, c := range results {
		text := c.EffectiveText
		tokenEst := c.TokenEst
		if used+tokenEst > local {
			continue
		}
		sec.Items = append(sec.Items, Item{Text: text, TokenEst: tokenEst})
		used += tokenEst
		editsApplied += c.EditsAppliedCount
	}
	sec.Used = used
	return sec, len(results), editsApplied, used
}

func (o *Orchestrator) buildDecisionsSection(req Request, local int) (Section, int) {
	sec := Section{Name: "relevant_decisions"}
	decisions, err := o.store.GetActiveDecisions(req.TenantID)
	if err != nil {
		return sec, 0
	}

	sort.SliceStable(decisions, func(i, j int) bool { return decisions[i].TS.After(decisions[j].TS) })

	used := 0
	for _, d := range decisions {
		text := fmt.Sprintf("Decision: %s\nRationale: %s", d.EffectiveText, strings.Join(d.Rationale, "; "))
		tokenEst := idgen.EstimateTokens(text)
		if used+tokenEst > local {
			continue
		}
		sec.Items = append(sec.Items, Item{Text: text, TokenEst: tokenEst})
		used += tokenEst
	}
	sec.Used = used
	return sec, used
}

func (o *Orchestrator) emitTelemetry(req Request, m mode.Mode, confidence float64, fallbackReason string, missing []mode.InvariantType) {
	now := time.Now()

	o.telemetry.Emit(telemetry.Event{
		Family:    telemetry.FamilyModeDetected,
		Timestamp: now,
		SessionID: req.SessionID,
		TenantID:  req.TenantID,
		Payload:   jsonOf(map[string]interface{}{"mode": m, "confidence": confidence}),
	})

	if fallbackReason != "" {
		o.telemetry.Emit(telemetry.Event{
			Family:    telemetry.FamilyFallbackTriggered,
			Timestamp: now,
			SessionID: req.SessionID,
			TenantID:  req.TenantID,
			Payload:   jsonOf(map[string]interface{}{"reason": fallbackReason}),
		})
	}

	for _, t := range missing {
		o.telemetry.Emit(telemetry.Event{
			Family:    telemetry.FamilyInvariantBreach,
			Timestamp: now,
			SessionID: req.SessionID,
			TenantID:  req.TenantID,
			Severity:  mode.BreachSeverity(t),
			Payload:   jsonOf(map[string]interface{}{"missing_invariant": t}),
		})
	}
}

func jsonOf(v map[string]interface{}) []byte {
	out, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return out
}
