package hypothesis

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TrailBuffer accumulates drafts for a single research trail. Nothing in the
// buffer is durable; the trail either commits (drafts are flushed through
// deduplication into the store) or aborts (drafts are discarded).
type TrailBuffer struct {
	TrailID    string
	StartedAt  time.Time
	Drafts     []Draft
	LowNovelty int
}

// BufferManager holds per-trail draft buffers. It is safe for concurrent use;
// trails are independent and a record on one trail never blocks another.
type BufferManager struct {
	mu           sync.RWMutex
	buffers      map[string]*TrailBuffer
	noveltyFloor float64
	logger       *zap.Logger
}

// NewBufferManager creates a buffer manager. Insights scoring below
// noveltyFloor are counted and dropped without buffering.
func NewBufferManager(noveltyFloor float64, logger *zap.Logger) *BufferManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BufferManager{
		buffers:      make(map[string]*TrailBuffer),
		noveltyFloor: noveltyFloor,
		logger:       logger,
	}
}

// Record buffers an insight as a draft on the given trail, creating the
// buffer on first use. Low-novelty insights are dropped and counted; empty
// claims and unknown discovery types are rejected.
func (m *BufferManager) Record(trailID string, ins Insight) error {
	if trailID == "" {
		return ErrEmptyTrailID
	}
	if NormalizeClaim(ins.Claim) == "" {
		return ErrEmptyClaim
	}
	if !ins.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDiscoveryType, ins.Type)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.buffers[trailID]
	if !ok {
		buf = &TrailBuffer{TrailID: trailID, StartedAt: time.Now()}
		m.buffers[trailID] = buf
	}

	if ins.NoveltyScore < m.noveltyFloor {
		buf.LowNovelty++
		m.logger.Debug("dropped low-novelty insight",
			zap.String("trail_id", trailID),
			zap.Float64("novelty", ins.NoveltyScore),
			zap.Float64("floor", m.noveltyFloor))
		metricInsightsDropped.WithLabelValues("low_novelty").Inc()
		return nil
	}

	buf.Drafts = append(buf.Drafts, newDraft(trailID, ins))
	metricInsightsRecorded.WithLabelValues(string(ins.Type)).Inc()
	return nil
}

// newDraft shapes an insight into a draft. The evidence ID is assigned here,
// before any persistence, so a flush retry re-presents the same observation
// instead of minting a new one.
func newDraft(trailID string, ins Insight) Draft {
	now := time.Now()
	produced := ins.ProducedAt
	if produced.IsZero() {
		produced = now
	}
	seed := clamp01(ins.NoveltyScore)
	return Draft{
		Claim:          ins.Claim,
		ConfidenceSeed: seed,
		Evidence: Evidence{
			ID:         uuid.New().String(),
			SourceRef:  sourceRef(trailID, ins),
			Snippet:    strings.TrimSpace(ins.Claim),
			AnchorRefs: append([]string(nil), ins.AnchorRefs...),
			Provenance: Provenance{TrailID: trailID, Detector: ins.Type},
			Confidence: seed,
			Contesting: ins.Type.Contesting(),
			CreatedAt:  produced,
		},
		AnchorRefs:    append([]string(nil), ins.AnchorRefs...),
		SourceTrailID: trailID,
		BufferedAt:    now,
	}
}

// sourceRef points evidence back at its origin: the first supporting passage
// when the detector named one, otherwise the trail itself.
func sourceRef(trailID string, ins Insight) string {
	if len(ins.PassageIDs) > 0 {
		return ins.PassageIDs[0]
	}
	return "trail:" + trailID
}

// Flush removes and returns the buffer for a trail. Returns nil if the trail
// has no buffer.
func (m *BufferManager) Flush(trailID string) *TrailBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.buffers[trailID]
	if !ok {
		return nil
	}
	delete(m.buffers, trailID)
	return buf
}

// Discard drops the buffer for a trail and returns how many drafts were
// thrown away.
func (m *BufferManager) Discard(trailID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.buffers[trailID]
	if !ok {
		return 0
	}
	delete(m.buffers, trailID)
	return len(buf.Drafts)
}

// Pending returns the number of buffered drafts for a trail.
func (m *BufferManager) Pending(trailID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if buf, ok := m.buffers[trailID]; ok {
		return len(buf.Drafts)
	}
	return 0
}

// ActiveTrails returns the number of trails with open buffers.
func (m *BufferManager) ActiveTrails() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buffers)
}
