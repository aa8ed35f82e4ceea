package hypothesis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draftFor(claim string, seed float64, anchors ...string) Draft {
	return Draft{
		Claim:          claim,
		ConfidenceSeed: seed,
		Evidence: Evidence{
			ID:         uuid.New().String(),
			SourceRef:  "passage:" + uuid.New().String()[:8],
			Snippet:    claim,
			AnchorRefs: anchors,
			Provenance: Provenance{TrailID: "trail-x", Detector: DiscoveryPattern},
			Confidence: seed,
			CreatedAt:  time.Now(),
		},
		AnchorRefs:    anchors,
		SourceTrailID: "trail-x",
		BufferedAt:    time.Now(),
	}
}

// testDeduplicator uses a word-overlap similarity backend, so the merge
// threshold is set well below the production value.
func testDeduplicator(t *testing.T) (*Deduplicator, *Store) {
	t.Helper()
	store := NewStore(newFakeVectorStore(), nil)
	return NewDeduplicator(store, 0.5, 0.05, nil), store
}

func TestDeduplicator_CreatesNewHypothesis(t *testing.T) {
	d, _ := testDeduplicator(t)
	res, err := d.Resolve(context.Background(), draftFor("Replica lag grows under write bursts", 0.7, "doc:1"))
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.True(t, res.Appended)
	h := res.Hypothesis
	assert.Equal(t, "replica lag grows under write bursts", h.NormalizedClaim)
	assert.Equal(t, ClaimHash(h.NormalizedClaim), h.ClaimHash)
	assert.Equal(t, StatusDraft, h.Status)
	assert.Len(t, h.Evidence, 1)
	assert.Equal(t, h.ID, h.Evidence[0].HypothesisID)
	assert.Equal(t, []string{"trail-x"}, h.SourceTrailIDs)
}

func TestDeduplicator_ExactHashMerges(t *testing.T) {
	d, _ := testDeduplicator(t)
	ctx := context.Background()

	first, err := d.Resolve(ctx, draftFor("Replica lag grows under write bursts", 0.7))
	require.NoError(t, err)
	require.True(t, first.Created)

	// Same claim modulo case and whitespace.
	second, err := d.Resolve(ctx, draftFor("replica  lag grows UNDER write bursts", 0.6))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.True(t, second.Appended)
	assert.Equal(t, first.Hypothesis.ID, second.Hypothesis.ID)
	assert.Len(t, second.Hypothesis.Evidence, 2)
}

func TestDeduplicator_SimilarityMerge(t *testing.T) {
	d, _ := testDeduplicator(t)
	ctx := context.Background()

	first, err := d.Resolve(ctx, draftFor("cache eviction policy causes latency spikes under load", 0.7))
	require.NoError(t, err)
	require.True(t, first.Created)

	// Different hash, high word overlap.
	second, err := d.Resolve(ctx, draftFor("cache eviction policy causes latency spikes under pressure", 0.6))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.True(t, second.Appended)
	assert.Equal(t, first.Hypothesis.ID, second.Hypothesis.ID)
}

func TestDeduplicator_BelowThresholdCreates(t *testing.T) {
	d, _ := testDeduplicator(t)
	ctx := context.Background()

	first, err := d.Resolve(ctx, draftFor("cache eviction policy causes latency spikes", 0.7))
	require.NoError(t, err)

	second, err := d.Resolve(ctx, draftFor("replica lag grows under sustained write bursts", 0.7))
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.Hypothesis.ID, second.Hypothesis.ID)
}

func TestDeduplicator_NeverMergesIntoRetired(t *testing.T) {
	d, store := testDeduplicator(t)
	ctx := context.Background()

	first, err := d.Resolve(ctx, draftFor("cache eviction policy causes latency spikes", 0.7))
	require.NoError(t, err)
	_, err = store.SetStatus(ctx, first.Hypothesis.ID, StatusRetired, "curator")
	require.NoError(t, err)

	second, err := d.Resolve(ctx, draftFor("cache eviction policy causes latency spikes", 0.7))
	require.NoError(t, err)
	assert.True(t, second.Created, "identical claim re-emerges as a fresh hypothesis")
	assert.NotEqual(t, first.Hypothesis.ID, second.Hypothesis.ID)
}

func TestDeduplicator_EpsilonTieBreakPrefersConfidence(t *testing.T) {
	store := NewStore(newFakeVectorStore(), nil)
	d := NewDeduplicator(store, 0.5, 0.2, nil)
	ctx := context.Background()

	// Two near-identical existing claims with different confidence.
	low := storedHypothesis(t, store, "cache eviction policy causes latency spikes under heavy load", StatusActive, 0.3)
	high := storedHypothesis(t, store, "cache eviction policy causes latency spikes under heavy pressure", StatusActive, 0.9)
	_ = low

	res, err := d.Resolve(ctx, draftFor("cache eviction policy causes latency spikes under heavy load today", 0.5))
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, high.ID, res.Hypothesis.ID,
		"within epsilon, the higher-confidence claim absorbs the draft")
}

func TestDeduplicator_DuplicateObservationDropped(t *testing.T) {
	d, _ := testDeduplicator(t)
	ctx := context.Background()

	draft := draftFor("replica lag grows under write bursts", 0.7)
	first, err := d.Resolve(ctx, draft)
	require.NoError(t, err)
	require.True(t, first.Created)

	// A flush retry re-presents the exact same draft.
	second, err := d.Resolve(ctx, draft)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.False(t, second.Appended)
	assert.Len(t, second.Hypothesis.Evidence, 1)
}

func TestDeduplicator_RejectsEmptyClaim(t *testing.T) {
	d, _ := testDeduplicator(t)
	_, err := d.Resolve(context.Background(), draftFor("   ", 0.5))
	assert.ErrorIs(t, err, ErrEmptyClaim)
}
