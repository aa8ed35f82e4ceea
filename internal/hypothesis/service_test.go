package hypothesis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServiceConfig lowers the merge threshold to suit the word-overlap
// similarity backend and shrinks retry delays.
func testServiceConfig() Config {
	cfg := DefaultConfig()
	cfg.MergeThreshold = 0.5
	cfg.FinalizeInitialBackoff = time.Millisecond
	return cfg
}

func newTestService(t *testing.T) (*Service, *fakeVectorStore) {
	t.Helper()
	fake := newFakeVectorStore()
	return NewService(testServiceConfig(), NewStore(fake, nil), nil), fake
}

func TestService_CommitCreatesHypotheses(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.OnInsight(ctx, "trail-1", insight("replica lag grows under write bursts", 0.7, "doc:1")))
	require.NoError(t, svc.OnInsight(ctx, "trail-1", insight("cache eviction policy causes latency spikes", 0.8, "doc:2")))

	result, err := svc.OnTrailEnd(ctx, "trail-1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Zero(t, result.Merged)
	assert.Zero(t, result.DroppedDuplicates)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 0, svc.Pending("trail-1"))
}

func TestService_AbortDiscardsBuffer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.OnInsight(ctx, "trail-1", insight("replica lag grows under write bursts", 0.7)))

	result, err := svc.OnTrailEnd(ctx, "trail-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Discarded)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "aborted trails leave no trace")
}

func TestService_CommitEmptyTrail(t *testing.T) {
	svc, _ := newTestService(t)
	result, err := svc.OnTrailEnd(context.Background(), "never-seen", true)
	require.NoError(t, err)
	assert.Equal(t, &FlushResult{TrailID: "never-seen"}, result)
}

func TestService_MergeAcrossTrailsAutoActivates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.OnInsight(ctx, "trail-1", insight("replica lag grows under write bursts", 0.9, "doc:1", "doc:2", "doc:3")))
	first, err := svc.OnTrailEnd(ctx, "trail-1", true)
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)

	require.NoError(t, svc.OnInsight(ctx, "trail-2", insight("replica lag grows under write bursts", 0.9, "doc:4", "doc:5")))
	second, err := svc.OnTrailEnd(ctx, "trail-2", true)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Merged)
	assert.Zero(t, second.Created)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	hyps := allHypotheses(t, svc, ctx)
	require.Len(t, hyps, 1)
	h := hyps[0]
	assert.Len(t, h.Evidence, 2)
	assert.ElementsMatch(t, []string{"trail-1", "trail-2"}, h.SourceTrailIDs)
	assert.Equal(t, StatusActive, h.Status,
		"two confident supporting observations clear the activation bar")
	assert.Empty(t, h.PromotedBy, "automatic activation has no actor")
}

func TestService_TwoTrailTwoAnchorClaimAutoActivates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	claim := "Term X appears only in plural form across corpus Y"
	require.NoError(t, svc.OnInsight(ctx, "trail-1", insight(claim, 0.8, "corpus-y:doc-12")))
	_, err := svc.OnTrailEnd(ctx, "trail-1", true)
	require.NoError(t, err)

	require.NoError(t, svc.OnInsight(ctx, "trail-2", insight(claim, 0.8, "corpus-y:doc-47")))
	second, err := svc.OnTrailEnd(ctx, "trail-2", true)
	require.NoError(t, err)
	require.Equal(t, 1, second.Merged)

	hyps := allHypotheses(t, svc, ctx)
	require.Len(t, hyps, 1)
	h := hyps[0]
	assert.Len(t, h.DistinctAnchors(), 2)
	assert.Equal(t, StatusActive, h.Status,
		"two corroborating trails over two anchors clear the activation bar")
	assert.InDelta(t, 0.6125, h.Confidence, 1e-9)
	assert.Equal(t, 1.0, h.Fit.Simplicity, "a plain occurrence claim takes no hedging penalty")
}

func TestService_ContestedEvidenceRetires(t *testing.T) {
	fake := newFakeVectorStore()
	cfg := testServiceConfig()
	// Make the floor easy to hit: a contested claim with weak evidence
	// retires immediately.
	cfg.RetirementFloor = 0.6
	svc := NewService(cfg, NewStore(fake, nil), nil)
	ctx := context.Background()

	require.NoError(t, svc.OnInsight(ctx, "trail-1", insight("replica lag grows under write bursts", 0.4)))
	_, err := svc.OnTrailEnd(ctx, "trail-1", true)
	require.NoError(t, err)

	require.NoError(t, svc.OnInsight(ctx, "trail-2", contesting("replica lag grows under write bursts", 0.9)))
	_, err = svc.OnTrailEnd(ctx, "trail-2", true)
	require.NoError(t, err)

	hyps := allHypotheses(t, svc, ctx)
	require.Len(t, hyps, 1)
	assert.Equal(t, StatusRetired, hyps[0].Status)
}

func TestService_FlushRetriesTransientFailure(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.OnInsight(ctx, "trail-1", insight("replica lag grows under write bursts", 0.7)))

	fake.searchErr = errors.New("backend briefly unavailable")
	fake.failuresLeft = 1

	result, err := svc.OnTrailEnd(ctx, "trail-1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "retry does not double-create")
}

func TestService_FlushFailsAfterExhaustedRetries(t *testing.T) {
	fake := newFakeVectorStore()
	cfg := testServiceConfig()
	cfg.FinalizeMaxAttempts = 2
	svc := NewService(cfg, NewStore(fake, nil), nil)
	ctx := context.Background()

	require.NoError(t, svc.OnInsight(ctx, "trail-1", insight("replica lag grows under write bursts", 0.7)))

	fake.searchErr = errors.New("backend down")
	fake.failuresLeft = 100

	_, err := svc.OnTrailEnd(ctx, "trail-1", true)
	assert.Error(t, err)
}

func TestService_Curation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.OnInsight(ctx, "trail-1", insight("replica lag grows under write bursts", 0.5)))
	_, err := svc.OnTrailEnd(ctx, "trail-1", true)
	require.NoError(t, err)
	h := allHypotheses(t, svc, ctx)[0]
	require.Equal(t, StatusDraft, h.Status)

	promoted, err := svc.Promote(ctx, h.ID, "curator")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, promoted.Status)
	assert.Equal(t, "curator", promoted.PromotedBy)

	proven, err := svc.Prove(ctx, h.ID, "curator")
	require.NoError(t, err)
	assert.Equal(t, StatusProven, proven.Status)

	again, err := svc.Prove(ctx, h.ID, "curator")
	require.NoError(t, err, "proving a proven hypothesis is a no-op")
	assert.Equal(t, StatusProven, again.Status)

	retired, err := svc.Retire(ctx, h.ID, "curator")
	require.NoError(t, err)
	assert.Equal(t, StatusRetired, retired.Status)
	assert.Equal(t, "curator", retired.RetiredBy)

	reactivated, err := svc.Reactivate(ctx, h.ID, "curator")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, reactivated.Status)
}

func TestService_CurationErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.OnInsight(ctx, "trail-1", insight("replica lag grows under write bursts", 0.5)))
	_, err := svc.OnTrailEnd(ctx, "trail-1", true)
	require.NoError(t, err)
	h := allHypotheses(t, svc, ctx)[0]

	_, err = svc.Promote(ctx, h.ID, "")
	assert.ErrorIs(t, err, ErrEmptyActor)

	_, err = svc.Prove(ctx, h.ID, "curator")
	assert.ErrorIs(t, err, ErrInvalidTransition, "drafts cannot be proven directly")

	_, err = svc.Reactivate(ctx, h.ID, "curator")
	assert.ErrorIs(t, err, ErrInvalidTransition, "only retired hypotheses reactivate")

	_, err = svc.Promote(ctx, "missing-id", "curator")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ReactivateRejectsWhenClaimReoccupied(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.OnInsight(ctx, "trail-1", insight("replica lag grows under write bursts", 0.5)))
	_, err := svc.OnTrailEnd(ctx, "trail-1", true)
	require.NoError(t, err)
	original := allHypotheses(t, svc, ctx)[0]

	_, err = svc.Retire(ctx, original.ID, "curator")
	require.NoError(t, err)

	// The identical claim re-enters as a fresh hypothesis.
	require.NoError(t, svc.OnInsight(ctx, "trail-2", insight("replica lag grows under write bursts", 0.5)))
	_, err = svc.OnTrailEnd(ctx, "trail-2", true)
	require.NoError(t, err)

	_, err = svc.Reactivate(ctx, original.ID, "curator")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestService_OnTrailEndRequiresTrailID(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.OnTrailEnd(context.Background(), "", true)
	assert.ErrorIs(t, err, ErrEmptyTrailID)
}

// allHypotheses decodes every stored record via a broad similarity query.
func allHypotheses(t *testing.T, svc *Service, ctx context.Context) []*Hypothesis {
	t.Helper()
	scored, err := svc.store.QueryBySimilarity(ctx, "replica lag cache eviction latency write bursts", Filter{}, 50)
	require.NoError(t, err)
	hyps := make([]*Hypothesis, 0, len(scored))
	for _, sc := range scored {
		hyps = append(hyps, sc.Hypothesis)
	}
	return hyps
}
