package hypothesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/claimbank/internal/vectorstore"
)

// Metadata keys on stored documents. claim_hash and status are indexed for
// exact-match filtering; record carries the full hypothesis as JSON.
const (
	metaClaimHash = "claim_hash"
	metaStatus    = "status"
	metaRecord    = "record"
)

// Filter narrows similarity queries over stored hypotheses.
type Filter struct {
	// Statuses limits results to the given lifecycle states. Empty means
	// any state.
	Statuses []Status
	// MinConfidence drops results scored below the given confidence.
	MinConfidence float64
	// AnchorRefs, when set, keeps only hypotheses sharing at least one of
	// the given anchors.
	AnchorRefs []string
	// ExcludeID drops a specific hypothesis from the results, typically
	// the one being scored.
	ExcludeID string
}

// Scored pairs a hypothesis with its similarity to a query.
type Scored struct {
	Hypothesis *Hypothesis
	Score      float64
}

// keyedMutex provides mutual exclusion per string key. Mutexes are created
// on demand and retained for the life of the process; the key space here
// (hypothesis IDs and claim hashes) is small enough that this is fine.
type keyedMutex struct {
	locks sync.Map
}

// lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// oversampleFactor widens similarity queries so that post-filtering on
// status and confidence still leaves enough results.
const oversampleFactor = 4

// Store persists hypotheses in a vector store, one document per hypothesis.
// The document content is the normalized claim (that is what gets embedded);
// the full record rides along as JSON metadata. Mutations are serialized per
// hypothesis ID.
type Store struct {
	vectors vectorstore.Store
	idLocks keyedMutex
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewStore creates a hypothesis store over the given vector store.
func NewStore(vectors vectorstore.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		vectors: vectors,
		tracer:  otel.Tracer("claimbank.hypothesis.store"),
		logger:  logger,
	}
}

// Create persists a new hypothesis. The claim is embedded once here; later
// updates reuse the stored vector because claims are immutable.
func (s *Store) Create(ctx context.Context, h *Hypothesis) error {
	ctx, span := s.tracer.Start(ctx, "hypothesis.store.create",
		trace.WithAttributes(attribute.String("hypothesis.id", h.ID)))
	defer span.End()

	if h.ID == "" || h.NormalizedClaim == "" {
		return fmt.Errorf("%w: hypothesis must have id and claim", ErrInvalidState)
	}
	return s.save(ctx, h, nil)
}

// GetByID returns a hypothesis by ID.
func (s *Store) GetByID(ctx context.Context, id string) (*Hypothesis, error) {
	doc, err := s.vectors.Get(ctx, id)
	if err != nil {
		if errors.Is(err, vectorstore.ErrDocumentNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: failed to get hypothesis: %w", ErrDependencyUnavailable, err)
	}
	return decodeRecord(doc.Metadata)
}

// FindByClaimHash returns the non-retired hypothesis with the given claim
// hash, or ErrNotFound. Retired claims keep their hash but no longer own it.
// The normalized claim doubles as the query text because the underlying
// store ranks by embedding even when filtering on exact metadata.
func (s *Store) FindByClaimHash(ctx context.Context, normalizedClaim, hash string) (*Hypothesis, error) {
	// Retired copies of the claim share the hash and tie on similarity, so
	// widen the fetch until the hash-matching set is exhausted. The backend
	// returns fewer than k results only when there are no more.
	for k := 4; ; k *= 4 {
		results, err := s.vectors.Search(ctx, normalizedClaim, k, map[string]string{metaClaimHash: hash})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to look up claim hash: %w", ErrDependencyUnavailable, err)
		}
		for _, res := range results {
			h, err := decodeRecord(res.Metadata)
			if err != nil {
				s.logger.Warn("skipping undecodable hypothesis record",
					zap.String("document_id", res.ID), zap.Error(err))
				continue
			}
			if h.Status != StatusRetired {
				return h, nil
			}
		}
		if len(results) < k {
			return nil, fmt.Errorf("%w: claim hash %s", ErrNotFound, hash)
		}
	}
}

// QueryBySimilarity searches hypotheses near the query text, applies the
// filter, and returns at most k results ordered by similarity.
func (s *Store) QueryBySimilarity(ctx context.Context, query string, f Filter, k int) ([]Scored, error) {
	ctx, span := s.tracer.Start(ctx, "hypothesis.store.query",
		trace.WithAttributes(attribute.Int("query.k", k)))
	defer span.End()

	if k <= 0 {
		return nil, nil
	}

	// The vector store can only filter on exact metadata matches, so fetch
	// a wider slice and filter here.
	fetch := k * oversampleFactor
	results, err := s.vectors.Search(ctx, query, fetch, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity query failed: %w", ErrDependencyUnavailable, err)
	}

	statuses := make(map[Status]struct{}, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses[st] = struct{}{}
	}

	var scored []Scored
	for _, res := range results {
		if res.ID == f.ExcludeID {
			continue
		}
		h, err := decodeRecord(res.Metadata)
		if err != nil {
			s.logger.Warn("skipping undecodable hypothesis record",
				zap.String("document_id", res.ID), zap.Error(err))
			continue
		}
		if len(statuses) > 0 {
			if _, ok := statuses[h.Status]; !ok {
				continue
			}
		}
		if h.Confidence < f.MinConfidence {
			continue
		}
		if len(f.AnchorRefs) > 0 && !h.SharesAnchor(f.AnchorRefs) {
			continue
		}
		scored = append(scored, Scored{Hypothesis: h, Score: float64(res.Score)})
		if len(scored) == k {
			break
		}
	}
	return scored, nil
}

// AppendEvidence attaches evidence to a hypothesis. Appending to a retired
// hypothesis is rejected. An observation the hypothesis already carries is
// skipped, which makes flush retries idempotent; appended reports whether
// the evidence actually landed.
func (s *Store) AppendEvidence(ctx context.Context, id string, ev Evidence) (h *Hypothesis, appended bool, err error) {
	ctx, span := s.tracer.Start(ctx, "hypothesis.store.append_evidence",
		trace.WithAttributes(attribute.String("hypothesis.id", id)))
	defer span.End()

	unlock := s.idLocks.lock(id)
	defer unlock()

	h, err = s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if h.Status == StatusRetired {
		return nil, false, fmt.Errorf("%w: cannot append evidence to retired hypothesis %s", ErrInvalidState, id)
	}
	if h.HasEvidence(ev) {
		return h, false, nil
	}

	ev.HypothesisID = h.ID
	h.Evidence = append(h.Evidence, ev)
	h.mergeAnchors(ev.AnchorRefs)
	h.addTrail(ev.Provenance.TrailID)
	h.UpdatedAt = time.Now()

	if err := s.saveExisting(ctx, h); err != nil {
		return nil, false, err
	}
	return h, true, nil
}

// UpdateScores persists recomputed fit components and confidence.
func (s *Store) UpdateScores(ctx context.Context, id string, fit FitScore, confidence float64) (*Hypothesis, error) {
	unlock := s.idLocks.lock(id)
	defer unlock()

	h, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	h.Fit = fit
	h.Confidence = confidence
	h.UpdatedAt = time.Now()
	if err := s.saveExisting(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// SetStatus persists a status change and records the acting entity:
// promotions and reactivations stamp PromotedBy, retirements stamp
// RetiredBy. Transition legality is the caller's responsibility.
func (s *Store) SetStatus(ctx context.Context, id string, status Status, actor string) (*Hypothesis, error) {
	ctx, span := s.tracer.Start(ctx, "hypothesis.store.set_status",
		trace.WithAttributes(
			attribute.String("hypothesis.id", id),
			attribute.String("status", string(status))))
	defer span.End()

	unlock := s.idLocks.lock(id)
	defer unlock()

	h, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := h.Status
	h.Status = status
	h.UpdatedAt = time.Now()
	switch status {
	case StatusActive, StatusProven:
		if actor != "" {
			h.PromotedBy = actor
		}
		h.RetiredBy = ""
	case StatusRetired:
		h.RetiredBy = actor
	}
	if err := s.saveExisting(ctx, h); err != nil {
		return nil, err
	}
	metricLifecycleTransitions.WithLabelValues(string(from), string(status)).Inc()
	return h, nil
}

// Count returns the number of stored hypotheses across all states.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.vectors.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count hypotheses: %w", ErrDependencyUnavailable, err)
	}
	return n, nil
}

// saveExisting re-saves a hypothesis, reusing the already-stored embedding
// so mutations never re-embed the immutable claim.
func (s *Store) saveExisting(ctx context.Context, h *Hypothesis) error {
	var embedding []float32
	if doc, err := s.vectors.Get(ctx, h.ID); err == nil {
		embedding = doc.Embedding
	}
	return s.save(ctx, h, embedding)
}

func (s *Store) save(ctx context.Context, h *Hypothesis, embedding []float32) error {
	record, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode hypothesis record: %w", err)
	}
	doc := vectorstore.Document{
		ID:      h.ID,
		Content: h.NormalizedClaim,
		Metadata: map[string]string{
			metaClaimHash: h.ClaimHash,
			metaStatus:    string(h.Status),
			metaRecord:    string(record),
		},
		Embedding: embedding,
	}
	if err := s.vectors.Add(ctx, []vectorstore.Document{doc}); err != nil {
		return fmt.Errorf("%w: failed to persist hypothesis: %w", ErrDependencyUnavailable, err)
	}
	return nil
}

func decodeRecord(metadata map[string]string) (*Hypothesis, error) {
	raw, ok := metadata[metaRecord]
	if !ok {
		return nil, fmt.Errorf("document missing %s metadata", metaRecord)
	}
	var h Hypothesis
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("failed to decode hypothesis record: %w", err)
	}
	return &h, nil
}
