package hypothesis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds the tunables for the hypothesis service.
type Config struct {
	// NoveltyFloor is the minimum novelty score for an insight to be
	// buffered.
	NoveltyFloor float64
	// MergeThreshold is the minimum embedding similarity for a draft to
	// merge into an existing hypothesis.
	MergeThreshold float64
	// MergeEpsilon is the similarity band within which merge candidates
	// are tie-broken by existing confidence.
	MergeEpsilon float64
	// ActivationThreshold is the confidence at which drafts auto-activate.
	ActivationThreshold float64
	// MinEvidenceToActivate is the evidence count required for
	// auto-activation.
	MinEvidenceToActivate int
	// RetirementFloor is the confidence below which contested claims
	// auto-retire.
	RetirementFloor float64
	// ScopeCeiling is the anchor count at which the scope fit component
	// saturates.
	ScopeCeiling int
	// Weights combines the fit components into confidence.
	Weights Weights
	// HUD configures the retriever.
	HUD HUDOptions
	// FinalizeMaxAttempts bounds flush retries on trail commit.
	FinalizeMaxAttempts int
	// FinalizeInitialBackoff is the first retry delay on flush failure.
	FinalizeInitialBackoff time.Duration
}

// DefaultConfig returns the standard service tuning.
func DefaultConfig() Config {
	return Config{
		NoveltyFloor:           0.35,
		MergeThreshold:         0.92,
		MergeEpsilon:           0.02,
		ActivationThreshold:    0.6,
		MinEvidenceToActivate:  2,
		RetirementFloor:        0.15,
		ScopeCeiling:           8,
		Weights:                DefaultWeights(),
		HUD:                    HUDOptions{DefaultK: 5, MaxK: 20, MinConfidence: 0.3, SnippetsPerEntry: 2, Timeout: 2 * time.Second},
		FinalizeMaxAttempts:    4,
		FinalizeInitialBackoff: 100 * time.Millisecond,
	}
}

// FlushResult reports what happened to a trail's drafts on commit.
type FlushResult struct {
	TrailID           string `json:"trail_id"`
	Created           int    `json:"created"`
	Merged            int    `json:"merged"`
	DroppedDuplicates int    `json:"dropped_duplicates"`
	DroppedLowNovelty int    `json:"dropped_low_novelty"`
	Discarded         int    `json:"discarded"`
}

// consilienceK bounds how many neighbors feed the consilience component.
const consilienceK = 8

// Service is the facade over the hypothesis subsystem: it buffers insights
// per trail, flushes committed trails through deduplication and scoring, and
// exposes curation and HUD retrieval.
type Service struct {
	cfg       Config
	buffers   *BufferManager
	dedup     *Deduplicator
	store     *Store
	engine    *Engine
	lifecycle *Lifecycle
	hud       *Retriever
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewService wires the subsystem together over the given store.
func NewService(cfg Config, store *Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:     cfg,
		buffers: NewBufferManager(cfg.NoveltyFloor, logger),
		dedup:   NewDeduplicator(store, cfg.MergeThreshold, cfg.MergeEpsilon, logger),
		store:   store,
		engine:  NewEngine(cfg.Weights, cfg.ScopeCeiling, logger),
		lifecycle: NewLifecycle(LifecycleConfig{
			ActivationThreshold:   cfg.ActivationThreshold,
			MinEvidenceToActivate: cfg.MinEvidenceToActivate,
			RetirementFloor:       cfg.RetirementFloor,
		}, logger),
		hud:    NewRetriever(store, cfg.HUD, logger),
		tracer: otel.Tracer("claimbank.hypothesis.service"),
		logger: logger,
	}
}

// OnInsight buffers a detector insight on its trail. Nothing becomes durable
// until the trail commits.
func (s *Service) OnInsight(ctx context.Context, trailID string, ins Insight) error {
	_, span := s.tracer.Start(ctx, "hypothesis.on_insight",
		trace.WithAttributes(
			attribute.String("trail.id", trailID),
			attribute.String("insight.type", string(ins.Type))))
	defer span.End()
	return s.buffers.Record(trailID, ins)
}

// OnTrailEnd finalizes a trail. An aborted trail discards its buffer; a
// committed trail flushes every draft through deduplication, rescoring, and
// lifecycle checks. The flush retries transient failures with exponential
// backoff, and evidence-level idempotency keeps retries from double-counting
// observations that already landed.
func (s *Service) OnTrailEnd(ctx context.Context, trailID string, committed bool) (*FlushResult, error) {
	ctx, span := s.tracer.Start(ctx, "hypothesis.on_trail_end",
		trace.WithAttributes(
			attribute.String("trail.id", trailID),
			attribute.Bool("trail.committed", committed)))
	defer span.End()

	if trailID == "" {
		return nil, ErrEmptyTrailID
	}

	if !committed {
		discarded := s.buffers.Discard(trailID)
		s.logger.Info("discarded aborted trail buffer",
			zap.String("trail_id", trailID),
			zap.Int("discarded", discarded))
		metricTrailFlushes.WithLabelValues("aborted").Inc()
		return &FlushResult{TrailID: trailID, Discarded: discarded}, nil
	}

	buf := s.buffers.Flush(trailID)
	if buf == nil {
		metricTrailFlushes.WithLabelValues("committed").Inc()
		return &FlushResult{TrailID: trailID}, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.cfg.FinalizeInitialBackoff

	result, err := backoff.Retry(ctx, func() (*FlushResult, error) {
		return s.flushDrafts(ctx, buf)
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(uint(s.cfg.FinalizeMaxAttempts)))
	if err != nil {
		s.logger.Error("trail flush failed",
			zap.String("trail_id", trailID),
			zap.Int("drafts", len(buf.Drafts)),
			zap.Error(err))
		metricTrailFlushes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to flush trail %s: %w", trailID, err)
	}

	metricTrailFlushes.WithLabelValues("committed").Inc()
	s.logger.Info("flushed trail",
		zap.String("trail_id", trailID),
		zap.Int("created", result.Created),
		zap.Int("merged", result.Merged),
		zap.Int("dropped_duplicates", result.DroppedDuplicates),
		zap.Int("dropped_low_novelty", result.DroppedLowNovelty))
	return result, nil
}

// flushDrafts runs one attempt at landing every draft in the buffer. Safe to
// re-run: drafts that already landed resolve as duplicates.
func (s *Service) flushDrafts(ctx context.Context, buf *TrailBuffer) (*FlushResult, error) {
	result := &FlushResult{
		TrailID:           buf.TrailID,
		DroppedLowNovelty: buf.LowNovelty,
	}
	for _, draft := range buf.Drafts {
		res, err := s.dedup.Resolve(ctx, draft)
		if err != nil {
			return nil, err
		}
		switch {
		case res.Created:
			result.Created++
			metricHypothesesCreated.Inc()
		case res.Appended:
			result.Merged++
			metricEvidenceMerged.Inc()
		default:
			result.DroppedDuplicates++
			metricDuplicatesDropped.Inc()
			continue
		}
		if err := s.rescore(ctx, res.Hypothesis, draft.Evidence.Contesting); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// rescore recomputes confidence for a hypothesis and applies any automatic
// lifecycle transition the new score triggers.
func (s *Service) rescore(ctx context.Context, h *Hypothesis, contested bool) error {
	neighbors, err := s.consilienceNeighbors(ctx, h)
	if err != nil {
		return err
	}
	fit, confidence := s.engine.Score(h, neighbors)
	updated, err := s.store.UpdateScores(ctx, h.ID, fit, confidence)
	if err != nil {
		return err
	}

	next, ok := s.lifecycle.AutoStatus(updated, contested)
	if !ok {
		return nil
	}
	if err := s.lifecycle.Validate(updated.Status, next); err != nil {
		return err
	}
	if _, err := s.store.SetStatus(ctx, updated.ID, next, ""); err != nil {
		return err
	}
	s.logger.Info("automatic lifecycle transition",
		zap.String("hypothesis_id", updated.ID),
		zap.String("from", string(updated.Status)),
		zap.String("to", string(next)),
		zap.Float64("confidence", confidence))
	return nil
}

// consilienceNeighbors finds active hypotheses that share an anchor with h,
// ranked by similarity to its claim.
func (s *Service) consilienceNeighbors(ctx context.Context, h *Hypothesis) ([]Neighbor, error) {
	anchors := h.DistinctAnchors()
	if len(anchors) == 0 {
		return nil, nil
	}
	scored, err := s.store.QueryBySimilarity(ctx, h.NormalizedClaim, Filter{
		Statuses:   []Status{StatusActive},
		AnchorRefs: anchors,
		ExcludeID:  h.ID,
	}, consilienceK)
	if err != nil {
		return nil, fmt.Errorf("consilience neighbor query failed: %w", err)
	}
	neighbors := make([]Neighbor, 0, len(scored))
	for _, sc := range scored {
		neighbors = append(neighbors, Neighbor{ID: sc.Hypothesis.ID, Similarity: sc.Score})
	}
	return neighbors, nil
}

// Get returns a hypothesis by ID.
func (s *Service) Get(ctx context.Context, id string) (*Hypothesis, error) {
	return s.store.GetByID(ctx, id)
}

// Retrieve serves HUD context for a query. Degrades to empty on any internal
// failure.
func (s *Service) Retrieve(ctx context.Context, query string, opts RetrieveOptions) []HUDEntry {
	return s.hud.Retrieve(ctx, query, opts)
}

// Promote moves a draft hypothesis to active on behalf of an actor.
func (s *Service) Promote(ctx context.Context, id, actor string) (*Hypothesis, error) {
	return s.transition(ctx, id, StatusActive, actor, nil)
}

// Prove marks an active hypothesis proven. Proving an already-proven
// hypothesis is a no-op.
func (s *Service) Prove(ctx context.Context, id, actor string) (*Hypothesis, error) {
	return s.transition(ctx, id, StatusProven, actor, func(h *Hypothesis) (*Hypothesis, bool) {
		if h.Status == StatusProven {
			return h, true
		}
		return nil, false
	})
}

// Retire retires a hypothesis from any non-retired state.
func (s *Service) Retire(ctx context.Context, id, actor string) (*Hypothesis, error) {
	return s.transition(ctx, id, StatusRetired, actor, nil)
}

// Reactivate returns a retired hypothesis to active. The reactivated claim
// reclaims its hash, so a duplicate non-retired claim must not exist; with
// hash uniqueness enforced at create time that can only happen if an
// identical claim was re-created after retirement, in which case the
// reactivation is rejected.
func (s *Service) Reactivate(ctx context.Context, id, actor string) (*Hypothesis, error) {
	if actor == "" {
		return nil, ErrEmptyActor
	}
	h, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.lifecycle.Validate(h.Status, StatusActive); err != nil {
		return nil, err
	}
	if other, err := s.store.FindByClaimHash(ctx, h.NormalizedClaim, h.ClaimHash); err == nil && other.ID != h.ID {
		return nil, fmt.Errorf("%w: claim is already held by hypothesis %s", ErrInvalidState, other.ID)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.store.SetStatus(ctx, id, StatusActive, actor)
}

// transition runs a human curation action through the state machine.
func (s *Service) transition(ctx context.Context, id string, to Status, actor string, idempotent func(*Hypothesis) (*Hypothesis, bool)) (*Hypothesis, error) {
	if actor == "" {
		return nil, ErrEmptyActor
	}
	h, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if idempotent != nil {
		if done, ok := idempotent(h); ok {
			return done, nil
		}
	}
	if err := s.lifecycle.Validate(h.Status, to); err != nil {
		return nil, err
	}
	return s.store.SetStatus(ctx, id, to, actor)
}

// Pending returns the number of buffered drafts for a trail.
func (s *Service) Pending(trailID string) int {
	return s.buffers.Pending(trailID)
}

// ActiveTrails returns the number of trails with open buffers.
func (s *Service) ActiveTrails() int {
	return s.buffers.ActiveTrails()
}

// Count returns the total number of stored hypotheses.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}
