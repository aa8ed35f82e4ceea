package hypothesis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func supportingEvidence(confidence float64, anchors ...string) Evidence {
	return Evidence{
		ID:         "ev-" + anchorKey(anchors),
		SourceRef:  "passage:1",
		Snippet:    "snippet",
		AnchorRefs: anchors,
		Confidence: confidence,
	}
}

func anchorKey(anchors []string) string {
	if len(anchors) == 0 {
		return "none"
	}
	return anchors[0]
}

func TestDefaultWeights_SumToOne(t *testing.T) {
	w := DefaultWeights()
	sum := w.ExplanatoryPower + w.Simplicity + w.Scope + w.Consilience
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestEngine_NoEvidenceFailsClosed(t *testing.T) {
	e := NewEngine(DefaultWeights(), 8, nil)
	fit, confidence := e.Score(&Hypothesis{ID: "h1", NormalizedClaim: "a claim"}, nil)
	assert.Zero(t, confidence)
	assert.Equal(t, FitScore{}, fit)
}

func TestEngine_ExplanatoryPower(t *testing.T) {
	e := NewEngine(DefaultWeights(), 8, nil)

	h := &Hypothesis{
		NormalizedClaim: "cache misses spike at rollout",
		Evidence: []Evidence{
			supportingEvidence(0.8),
			supportingEvidence(0.8),
		},
	}
	fit, _ := e.Score(h, nil)
	assert.InDelta(t, 1.0, fit.ExplanatoryPower, 1e-9, "all supporting evidence")

	h.Evidence = append(h.Evidence, Evidence{
		ID: "ev-contest", SourceRef: "passage:3", Snippet: "counterexample",
		Confidence: 0.8, Contesting: true,
	})
	contestedFit, _ := e.Score(h, nil)
	assert.Less(t, contestedFit.ExplanatoryPower, fit.ExplanatoryPower,
		"contesting evidence lowers explanatory power")
	assert.InDelta(t, 2.0/3.0, contestedFit.ExplanatoryPower, 1e-9)
}

func TestEngine_SimplicityPenalizesHedging(t *testing.T) {
	direct := simplicity("cache eviction causes tail latency spikes")
	hedged := simplicity("cache eviction could possibly perhaps cause tail latency spikes")
	assert.Equal(t, 1.0, direct)
	assert.Less(t, hedged, direct)
}

func TestEngine_SimplicityOccurrenceVerbsAreNotHedging(t *testing.T) {
	occurrence := simplicity("term x appears only in plural form across corpus y")
	assert.Equal(t, 1.0, occurrence, "appears as a verb of occurrence carries no penalty")

	hedged := simplicity("term x appears to vanish from corpus y")
	assert.InDelta(t, 0.9, hedged, 1e-9, "appears to is a hedge")

	hedgedSeems := simplicity("the index seems to drop plural forms")
	assert.InDelta(t, 0.9, hedgedSeems, 1e-9)
}

func TestEngine_SimplicityPenalizesLength(t *testing.T) {
	short := simplicity("replica lag grows under sustained write bursts")
	long := simplicity("replica lag grows without bound whenever the primary node sustains " +
		"write bursts over an extended period across every observed deployment region in the fleet")
	assert.Equal(t, 1.0, short)
	assert.Less(t, long, short)
	assert.GreaterOrEqual(t, long, 0.0)
}

func TestEngine_ScopeSaturatesAtCeiling(t *testing.T) {
	e := NewEngine(DefaultWeights(), 4, nil)
	h := &Hypothesis{
		NormalizedClaim: "claim",
		Evidence: []Evidence{
			supportingEvidence(0.5, "a"),
			supportingEvidence(0.5, "b"),
		},
	}
	fit, _ := e.Score(h, nil)
	assert.InDelta(t, 0.5, fit.Scope, 1e-9)

	h.Evidence = append(h.Evidence,
		supportingEvidence(0.5, "c"),
		supportingEvidence(0.5, "d"),
		supportingEvidence(0.5, "e"))
	fit, _ = e.Score(h, nil)
	assert.Equal(t, 1.0, fit.Scope, "scope never exceeds 1")
}

func TestEngine_Consilience(t *testing.T) {
	e := NewEngine(DefaultWeights(), 8, nil)
	h := &Hypothesis{
		NormalizedClaim: "claim",
		Evidence:        []Evidence{supportingEvidence(0.5, "a")},
	}

	fit, _ := e.Score(h, nil)
	assert.Zero(t, fit.Consilience, "no neighbors means no consilience")

	fit, _ = e.Score(h, []Neighbor{{Similarity: 0.9}, {Similarity: 0.7}})
	assert.InDelta(t, 0.8, fit.Consilience, 1e-9)
}

func TestEngine_BoundedUnderAllContestingEvidence(t *testing.T) {
	e := NewEngine(DefaultWeights(), 8, nil)
	h := &Hypothesis{NormalizedClaim: "a thoroughly contested claim"}
	for i := 0; i < 6; i++ {
		h.Evidence = append(h.Evidence, Evidence{
			ID: fmt.Sprintf("ev-%d", i), SourceRef: "p", Snippet: "s",
			Confidence: 0.9, Contesting: true,
		})
	}
	fit, confidence := e.Score(h, nil)
	assert.Zero(t, fit.ExplanatoryPower)
	assert.GreaterOrEqual(t, confidence, 0.0)
	assert.LessOrEqual(t, confidence, 1.0)
}

func TestEngine_ScoreIsDeterministic(t *testing.T) {
	e := NewEngine(DefaultWeights(), 8, nil)
	h := &Hypothesis{
		NormalizedClaim: "replica lag grows under write bursts",
		Evidence: []Evidence{
			supportingEvidence(0.7, "doc:1"),
			supportingEvidence(0.4, "doc:2"),
		},
	}
	neighbors := []Neighbor{{Similarity: 0.85}}

	fit1, conf1 := e.Score(h, neighbors)
	fit2, conf2 := e.Score(h, neighbors)
	require.Equal(t, fit1, fit2)
	require.Equal(t, conf1, conf2)
	assert.GreaterOrEqual(t, conf1, 0.0)
	assert.LessOrEqual(t, conf1, 1.0)
}
