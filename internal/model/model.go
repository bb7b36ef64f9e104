// Package model defines the shared domain entities of the agent memory
// service: events, chunks, artifacts, decisions, tasks, rules, memory
// edits, capsules and graph edges. Types mirror spec section 3 and are
// deliberately plain structs with optional fields expressed as pointers,
// not sentinel values.
package model

import "time"

// Channel controls sensitivity admissibility for a read.
type Channel string

const (
	ChannelPrivate Channel = "private"
	ChannelPublic  Channel = "public"
	ChannelTeam    Channel = "team"
	ChannelAgent   Channel = "agent"
)

// Sensitivity classifies how guarded a piece of content is.
type Sensitivity string

const (
	SensitivityNone   Sensitivity = "none"
	SensitivityLow    Sensitivity = "low"
	SensitivityHigh   Sensitivity = "high"
	SensitivitySecret Sensitivity = "secret"
)

// ActorType names who/what produced an event.
type ActorType string

const (
	ActorHuman ActorType = "human"
	ActorAgent ActorType = "agent"
	ActorTool  ActorType = "tool"
)

// Actor identifies the originator of an event.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id"`
}

// EventKind enumerates the kinds of events the pipeline accepts.
type EventKind string

const (
	KindMessage    EventKind = "message"
	KindToolCall   EventKind = "tool_call"
	KindToolResult EventKind = "tool_result"
	KindDecision   EventKind = "decision"
	KindTaskUpdate EventKind = "task_update"
	KindArtifact   EventKind = "artifact"
)

// Event is an immutable record of something that happened. Scope,
// SubjectType, SubjectID and ProjectID are optional axes and are nil
// when absent; a nil pointer and an explicit SQL NULL are treated
// identically on read.
type Event struct {
	EventID     string
	TenantID    string
	SessionID   string
	Channel     Channel
	Actor       Actor
	Kind        EventKind
	Sensitivity Sensitivity
	Tags        []string
	Content     Content
	Refs        []string
	Scope       *string
	SubjectType *string
	SubjectID   *string
	ProjectID   *string
	TS          time.Time
}

// Content is the open, kind-tagged payload of an event. Only the fields
// relevant to the event's Kind are populated; Extra preserves any
// additional fields opaquely so they round-trip through storage.
type Content struct {
	Text        string                 `json:"text,omitempty"`
	ExcerptText string                 `json:"excerpt_text,omitempty"`
	Truncated   bool                   `json:"truncated,omitempty"`
	ArtifactID  string                 `json:"artifact_id,omitempty"`
	Path        string                 `json:"path,omitempty"`
	Decision    string                 `json:"decision,omitempty"`
	Rationale   []string               `json:"rationale,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Details     string                 `json:"details,omitempty"`
	Status      string                 `json:"status,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// Chunk is searchable text extracted from an event.
type Chunk struct {
	ChunkID     string
	TenantID    string
	EventID     string
	TS          time.Time
	Kind        EventKind
	Channel     Channel
	Sensitivity Sensitivity
	Tags        []string
	TokenEst    int
	Importance  float64
	Text        string
	Scope       *string
	SubjectType *string
	SubjectID   *string
	ProjectID   *string
}

// Artifact is an oversize blob offloaded out of an event's content.
type Artifact struct {
	ArtifactID string
	TenantID   string
	Kind       string
	Bytes      []byte
	Meta       map[string]interface{}
	Refs       []string
	CreatedAt  time.Time
}

// DecisionStatus is the lifecycle state of a Decision.
type DecisionStatus string

const (
	DecisionActive     DecisionStatus = "active"
	DecisionSuperseded DecisionStatus = "superseded"
	DecisionRevoked    DecisionStatus = "revoked"
)

// Decision is a recorded authoritative choice.
type Decision struct {
	DecisionID string
	TenantID   string
	TS         time.Time
	Decision   string
	Rationale  []string
	Status     DecisionStatus
	Refs       []string
	Scope      *string
	Subject    *string
	ProjectID  *string
}

// Precedence maps a decision's scope to the retrieval ordering from
// spec section 3: policy(4) > project(3) > user(2) > session(1).
func (d Decision) Precedence() int {
	if d.Scope == nil {
		return 1
	}
	switch *d.Scope {
	case "policy":
		return 4
	case "project":
		return 3
	case "user":
		return 2
	default:
		return 1
	}
}

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskOpen   TaskStatus = "open"
	TaskDoing  TaskStatus = "doing"
	TaskDone   TaskStatus = "done"
	TaskClosed TaskStatus = "closed"
)

// Task is an open unit of work tracked alongside memory.
type Task struct {
	TaskID   string
	TenantID string
	Title    string
	Details  string
	Status   TaskStatus
	TS       time.Time
}

// Rule is a tenant-wide behavioral constraint injected into ACB
// assembly. Channel may be a specific channel or the wildcard "all".
type Rule struct {
	RuleID   string
	TenantID string
	Content  string
	Scope    *string
	Channel  string
	Priority int
	TokenEst int
}

// EditOp names the kind of non-destructive alteration a MemoryEdit makes.
type EditOp string

const (
	EditRetract    EditOp = "retract"
	EditAmend      EditOp = "amend"
	EditQuarantine EditOp = "quarantine"
	EditAttenuate  EditOp = "attenuate"
	EditBlock      EditOp = "block"
)

// EditStatus is the approval lifecycle of a MemoryEdit.
type EditStatus string

const (
	EditProposed EditStatus = "proposed"
	EditApproved EditStatus = "approved"
	EditRejected EditStatus = "rejected"
)

// TargetType names what kind of record a MemoryEdit targets.
type TargetType string

const (
	TargetChunk    TargetType = "chunk"
	TargetDecision TargetType = "decision"
)

// EditPatch is the op-specific payload of a MemoryEdit. Only the fields
// relevant to Op are populated.
type EditPatch struct {
	Text             *string  `json:"text,omitempty"`
	Importance       *float64 `json:"importance,omitempty"`
	ImportanceDelta  *float64 `json:"importance_delta,omitempty"`
	Channel          string   `json:"channel,omitempty"`
}

// MemoryEdit is a non-destructive alteration of a target chunk/decision.
// Only edits with Status == EditApproved affect effective views.
type MemoryEdit struct {
	EditID      string
	TenantID    string
	TargetType  TargetType
	TargetID    string
	Op          EditOp
	Patch       EditPatch
	Reason      string
	ProposedBy  string
	Status      EditStatus
	CreatedAt   time.Time
	AppliedAt   *time.Time
}

// CapsuleScope names the audience breadth of a Capsule.
type CapsuleScope string

const (
	CapsuleSession CapsuleScope = "session"
	CapsuleUser    CapsuleScope = "user"
	CapsuleProject CapsuleScope = "project"
	CapsulePolicy  CapsuleScope = "policy"
	CapsuleGlobal  CapsuleScope = "global"
)

// CapsuleStatus is the lifecycle state of a Capsule.
type CapsuleStatus string

const (
	CapsuleActive  CapsuleStatus = "active"
	CapsuleRevoked CapsuleStatus = "revoked"
	CapsuleExpired CapsuleStatus = "expired"
)

// CapsuleItems bundles the memory references a Capsule curates.
type CapsuleItems struct {
	ChunkIDs    []string `json:"chunk_ids,omitempty"`
	DecisionIDs []string `json:"decision_ids,omitempty"`
	ArtifactIDs []string `json:"artifact_ids,omitempty"`
}

// Capsule is a curated, audience-scoped, time-bounded bundle of memory
// references.
type Capsule struct {
	CapsuleID        string
	TenantID         string
	Scope            CapsuleScope
	SubjectType      *string
	SubjectID        *string
	AuthorAgentID    string
	AudienceAgentIDs []string
	Items            CapsuleItems
	Risks            []string
	TTLDays          int
	Status           CapsuleStatus
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// EdgeType names the relation a graph Edge expresses.
type EdgeType string

const (
	EdgeParentOf   EdgeType = "parent_of"
	EdgeChildOf    EdgeType = "child_of"
	EdgeDependsOn  EdgeType = "depends_on"
	EdgeCreatedBy  EdgeType = "created_by"
	EdgeReferences EdgeType = "references"
)

// Edge is a typed directed relation between two memory nodes.
type Edge struct {
	EdgeID     string
	TenantID   string
	FromNodeID string
	ToNodeID   string
	Type       EdgeType
	Properties map[string]interface{}
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
