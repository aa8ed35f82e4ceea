package hypothesis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// candidateK is how many similarity neighbors the deduplicator inspects
// when no exact hash match exists.
const candidateK = 8

// Resolution is the outcome of resolving one draft against the store.
type Resolution struct {
	// Hypothesis is the claim the draft ended up on: newly created, or the
	// existing one it merged into.
	Hypothesis *Hypothesis
	// Created is true when a new hypothesis was persisted.
	Created bool
	// Appended is true when the draft's evidence landed on the hypothesis.
	// False with Created false means the observation was already there and
	// the draft was dropped as a duplicate.
	Appended bool
}

// Deduplicator decides whether a draft becomes a new hypothesis or merges
// into an existing one. Resolution is two-stage: an exact match on the
// normalized claim hash wins outright, otherwise the nearest embedding
// neighbor above the merge threshold absorbs the draft. Resolutions for the
// same claim hash are serialized so concurrent trail flushes cannot race two
// copies of the same claim into existence.
type Deduplicator struct {
	store          *Store
	mergeThreshold float64
	mergeEpsilon   float64
	hashLocks      keyedMutex
	logger         *zap.Logger
}

// NewDeduplicator creates a deduplicator. mergeThreshold is the minimum
// similarity for an embedding merge; mergeEpsilon is the band within which
// near-tied candidates are broken by existing confidence.
func NewDeduplicator(store *Store, mergeThreshold, mergeEpsilon float64, logger *zap.Logger) *Deduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{
		store:          store,
		mergeThreshold: mergeThreshold,
		mergeEpsilon:   mergeEpsilon,
		logger:         logger,
	}
}

// Resolve runs a draft through deduplication and persists the outcome.
func (d *Deduplicator) Resolve(ctx context.Context, draft Draft) (*Resolution, error) {
	normalized := NormalizeClaim(draft.Claim)
	if normalized == "" {
		return nil, ErrEmptyClaim
	}
	hash := ClaimHash(normalized)

	unlock := d.hashLocks.lock(hash)
	defer unlock()

	target, err := d.findTarget(ctx, normalized, hash)
	if err != nil {
		return nil, err
	}
	if target == nil {
		h, err := d.create(ctx, draft, normalized, hash)
		if err != nil {
			return nil, err
		}
		return &Resolution{Hypothesis: h, Created: true, Appended: true}, nil
	}

	h, appended, err := d.store.AppendEvidence(ctx, target.ID, draft.Evidence)
	if errors.Is(err, ErrInvalidState) {
		// The target retired between lookup and append. Its hash is free
		// again, so the draft becomes a fresh hypothesis.
		d.logger.Info("merge target retired mid-resolution, creating new hypothesis",
			zap.String("target_id", target.ID), zap.String("claim_hash", hash))
		h, err := d.create(ctx, draft, normalized, hash)
		if err != nil {
			return nil, err
		}
		return &Resolution{Hypothesis: h, Created: true, Appended: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Resolution{Hypothesis: h, Appended: appended}, nil
}

// findTarget returns the existing hypothesis the draft should merge into, or
// nil when the draft is genuinely new.
func (d *Deduplicator) findTarget(ctx context.Context, normalized, hash string) (*Hypothesis, error) {
	h, err := d.store.FindByClaimHash(ctx, normalized, hash)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	candidates, err := d.store.QueryBySimilarity(ctx, normalized, Filter{
		Statuses: []Status{StatusDraft, StatusActive},
	}, candidateK)
	if err != nil {
		return nil, fmt.Errorf("merge candidate query failed: %w", err)
	}
	return d.pickCandidate(candidates), nil
}

// pickCandidate selects the merge target from similarity-ordered candidates.
// Only candidates at or above the merge threshold qualify; among those
// within epsilon of the best score, the one with higher existing confidence
// wins.
func (d *Deduplicator) pickCandidate(candidates []Scored) *Hypothesis {
	var best *Scored
	for i := range candidates {
		cand := &candidates[i]
		if cand.Score < d.mergeThreshold {
			continue
		}
		if best == nil {
			best = cand
			continue
		}
		if best.Score-cand.Score <= d.mergeEpsilon &&
			cand.Hypothesis.Confidence > best.Hypothesis.Confidence {
			best = cand
		}
	}
	if best == nil {
		return nil
	}
	return best.Hypothesis
}

func (d *Deduplicator) create(ctx context.Context, draft Draft, normalized, hash string) (*Hypothesis, error) {
	now := time.Now()
	ev := draft.Evidence
	h := &Hypothesis{
		ID:              uuid.New().String(),
		NormalizedClaim: normalized,
		ClaimHash:       hash,
		Status:          StatusDraft,
		Confidence:      clamp01(draft.ConfidenceSeed),
		SourceTrailIDs:  []string{draft.SourceTrailID},
		AnchorRefs:      append([]string(nil), draft.AnchorRefs...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	ev.HypothesisID = h.ID
	h.Evidence = []Evidence{ev}
	h.mergeAnchors(ev.AnchorRefs)

	if err := d.store.Create(ctx, h); err != nil {
		return nil, err
	}
	d.logger.Debug("created hypothesis",
		zap.String("hypothesis_id", h.ID),
		zap.String("claim_hash", hash))
	return h, nil
}
