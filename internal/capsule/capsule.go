// Package capsule implements the Capsule Engine of spec section 4.F:
// creation with same-tenant membership validation, audience/status/TTL
// gated reads, idempotent revocation and a background expiry sweeper.
// The sweeper's cancellable-goroutine lifecycle is grounded on the
// teacher's internal/events/bus.go run loop and internal/captain's
// periodic-task style.
package capsule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/acbmem/agentmem/internal/apierr"
	"github.com/acbmem/agentmem/internal/idgen"
	"github.com/acbmem/agentmem/internal/model"
	"github.com/acbmem/agentmem/internal/store"
)

// MinTTLDays is the minimum capsule lifetime spec section 6 requires.
const MinTTLDays = 1

// Engine wires the store used to persist and read capsules.
type Engine struct {
	store *store.Store
}

// New constructs an Engine over an open store.
func New(s *store.Store) *Engine {
	return &Engine{store: s}
}

// CreateInput is the input to CreateCapsule.
type CreateInput struct {
	TenantID         string
	AuthorAgentID    string
	Scope            model.CapsuleScope
	SubjectType      *string
	SubjectID        *string
	AudienceAgentIDs []string
	Items            model.CapsuleItems
	TTLDays          int
	Risks            []string
}

// CreateCapsule validates that every referenced chunk/decision/artifact
// belongs to the input tenant, computes expires_at and persists an
// active capsule.
func (e *Engine) CreateCapsule(ctx context.Context, in CreateInput) (*model.Capsule, error) {
	if in.TenantID == "" {
		return nil, apierr.New(apierr.KindValidation, "tenant_id is required", nil)
	}
	if in.AuthorAgentID == "" {
		return nil, apierr.New(apierr.KindValidation, "author_agent_id is required", nil)
	}
	if in.TTLDays < MinTTLDays {
		return nil, apierr.New(apierr.KindValidation, fmt.Sprintf("ttl_days must be >= %d", MinTTLDays), nil)
	}
	switch in.Scope {
	case model.CapsuleSession, model.CapsuleUser, model.CapsuleProject, model.CapsulePolicy, model.CapsuleGlobal:
	default:
		return nil, apierr.New(apierr.KindValidation, fmt.Sprintf("scope %q is not recognized", in.Scope), nil)
	}

	if err := e.validateMembership(in.TenantID, in.Items); err != nil {
		return nil, err
	}

	now := time.Now()
	c := model.Capsule{
		CapsuleID:        idgen.New(idgen.KindCapsule),
		TenantID:         in.TenantID,
		Scope:            in.Scope,
		SubjectType:      in.SubjectType,
		SubjectID:        in.SubjectID,
		AuthorAgentID:    in.AuthorAgentID,
		AudienceAgentIDs: in.AudienceAgentIDs,
		Items:            in.Items,
		Risks:            in.Risks,
		TTLDays:          in.TTLDays,
		Status:           model.CapsuleActive,
		CreatedAt:        now,
		ExpiresAt:        now.Add(time.Duration(in.TTLDays) * 24 * time.Hour),
	}

	if err := e.store.InsertCapsule(c); err != nil {
		return nil, apierr.New(apierr.KindStorage, "failed to insert capsule", err)
	}
	return &c, nil
}

func (e *Engine) validateMembership(tenantID string, items model.CapsuleItems) error {
	for _, id := range items.ChunkIDs {
		if _, err := e.store.GetChunk(tenantID, id); err != nil {
			return apierr.New(apierr.KindValidation, fmt.Sprintf("chunk %q not found in tenant", id), err)
		}
	}
	for _, id := range items.DecisionIDs {
		if _, err := e.store.GetDecision(tenantID, id); err != nil {
			return apierr.New(apierr.KindValidation, fmt.Sprintf("decision %q not found in tenant", id), err)
		}
	}
	for _, id := range items.ArtifactIDs {
		if _, err := e.store.GetArtifact(tenantID, id); err != nil {
			return apierr.New(apierr.KindValidation, fmt.Sprintf("artifact %q not found in tenant", id), err)
		}
	}
	return nil
}

// ListCapsules delegates to get_available_capsules (spec section 4.E
// rule 5).
func (e *Engine) ListCapsules(tenantID, agentID string, subjectType, subjectID *string) ([]model.Capsule, error) {
	caps, err := e.store.AvailableCapsules(tenantID, agentID, subjectType, subjectID)
	if err != nil {
		return nil, apierr.New(apierr.KindStorage, "failed to list capsules", err)
	}
	return caps, nil
}

// GetCapsule returns a capsule if it is visible to requesterAgentID:
// found, active, unexpired, and requester is the author or in the
// audience. Any other case reports Not Found, matching spec section
// 4.F's "returns 404" contract and avoiding existence disclosure.
func (e *Engine) GetCapsule(tenantID, capsuleID, requesterAgentID string) (*model.Capsule, error) {
	c, err := e.store.GetCapsuleRaw(tenantID, capsuleID)
	if err != nil {
		return nil, apierr.New(apierr.KindNotFound, "capsule not found", err)
	}
	if c.AuthorAgentID == requesterAgentID {
		return c, nil
	}
	if c.Status != model.CapsuleActive || time.Now().After(c.ExpiresAt) || !inAudience(c.AudienceAgentIDs, requesterAgentID) {
		return nil, apierr.New(apierr.KindNotFound, "capsule not found", nil)
	}
	return c, nil
}

func inAudience(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// RevokeCapsule transitions a capsule to revoked; idempotent, a no-op
// when already terminal.
func (e *Engine) RevokeCapsule(tenantID, capsuleID string) error {
	if err := e.store.SetCapsuleStatus(tenantID, capsuleID, model.CapsuleRevoked); err != nil {
		return apierr.New(apierr.KindNotFound, "capsule not found", err)
	}
	return nil
}

// Sweeper periodically transitions expired active capsules to expired
// across every tenant, following the bus run-loop's select-on-ticker-
// or-done shape.
type Sweeper struct {
	store    *store.Store
	interval time.Duration
	done     chan struct{}
}

// NewSweeper constructs a Sweeper; call Run in its own goroutine.
func NewSweeper(s *store.Store, interval time.Duration) *Sweeper {
	return &Sweeper{store: s, interval: interval, done: make(chan struct{})}
}

// Run drives the sweeper until ctx is cancelled or Stop is called,
// completing the in-flight sweep before exiting (bounded drain).
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.done:
			return
		case <-ticker.C:
			n, err := sw.store.SweepExpiredCapsulesAllTenants()
			if err != nil {
				log.Printf("[SWEEPER] capsule sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[SWEEPER] expired %d capsule(s)", n)
			}
		}
	}
}

// Stop requests the sweeper loop exit after its current iteration.
func (sw *Sweeper) Stop() {
	close(sw.done)
}
