package hypothesis

import (
	"strings"

	"go.uber.org/zap"
)

// Weights controls how the four fit components combine into a single
// confidence score. The weights must sum to 1.
type Weights struct {
	ExplanatoryPower float64
	Simplicity       float64
	Scope            float64
	Consilience      float64
}

// DefaultWeights returns the standard component weighting.
func DefaultWeights() Weights {
	return Weights{
		ExplanatoryPower: 0.35,
		Simplicity:       0.20,
		Scope:            0.25,
		Consilience:      0.20,
	}
}

// Neighbor is another hypothesis considered for consilience: an active claim
// sharing at least one anchor, with its embedding similarity to the scored
// claim.
type Neighbor struct {
	ID         string
	Similarity float64
}

// Engine computes fit components and the combined confidence score for a
// hypothesis. Scoring is deterministic: the same hypothesis and neighbor set
// always produce the same score.
type Engine struct {
	weights      Weights
	scopeCeiling int
	logger       *zap.Logger
}

// NewEngine creates a confidence engine. scopeCeiling is the anchor count at
// which the scope component saturates at 1.
func NewEngine(weights Weights, scopeCeiling int, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scopeCeiling <= 0 {
		scopeCeiling = 8
	}
	return &Engine{weights: weights, scopeCeiling: scopeCeiling, logger: logger}
}

// Score computes the fit components and combined confidence for a
// hypothesis. A hypothesis with no evidence fails closed to zero confidence.
func (e *Engine) Score(h *Hypothesis, neighbors []Neighbor) (FitScore, float64) {
	if len(h.Evidence) == 0 {
		e.logger.Warn("scoring hypothesis with no evidence",
			zap.String("hypothesis_id", h.ID))
		return FitScore{}, 0
	}

	fit := FitScore{
		ExplanatoryPower: e.explanatoryPower(h.Evidence),
		Simplicity:       simplicity(h.NormalizedClaim),
		Scope:            e.scope(h),
		Consilience:      consilience(neighbors),
	}

	confidence := clamp01(e.weights.ExplanatoryPower*fit.ExplanatoryPower +
		e.weights.Simplicity*fit.Simplicity +
		e.weights.Scope*fit.Scope +
		e.weights.Consilience*fit.Consilience)
	return fit, confidence
}

// explanatoryPower is the confidence-weighted fraction of evidence that
// supports the claim. Contesting evidence pulls the component down in
// proportion to its confidence.
func (e *Engine) explanatoryPower(evidence []Evidence) float64 {
	var supporting, total float64
	for _, ev := range evidence {
		weight := ev.Confidence
		if weight <= 0 {
			weight = 0.05
		}
		total += weight
		if !ev.Contesting {
			supporting += weight
		}
	}
	if total == 0 {
		return 0
	}
	return clamp01(supporting / total)
}

// qualifiers are hedging words that weaken a claim's statement. "appears"
// and "seems" hedge only in the infinitive construction ("appears to break"),
// not as plain verbs of occurrence ("appears in plural form"), so they are
// handled separately in simplicity.
var qualifiers = map[string]struct{}{
	"may": {}, "might": {}, "could": {}, "possibly": {}, "perhaps": {},
	"likely": {}, "suggests": {}, "probably": {}, "arguably": {},
}

// simplicity rewards short, direct claims. Each word past twelve and each
// hedging qualifier costs a fixed penalty.
func simplicity(normalizedClaim string) float64 {
	words := strings.Fields(normalizedClaim)
	score := 1.0
	if extra := len(words) - 12; extra > 0 {
		score -= 0.02 * float64(extra)
	}
	for i, word := range words {
		if _, ok := qualifiers[word]; ok {
			score -= 0.1
			continue
		}
		if (word == "appears" || word == "seems") && i+1 < len(words) && words[i+1] == "to" {
			score -= 0.1
		}
	}
	return clamp01(score)
}

// scope is the distinct anchor coverage relative to the ceiling.
func (e *Engine) scope(h *Hypothesis) float64 {
	return clamp01(float64(len(h.DistinctAnchors())) / float64(e.scopeCeiling))
}

// consilience is the mean similarity to active anchor-sharing neighbors.
// A hypothesis with no such neighbors scores zero here rather than being
// penalized elsewhere.
func consilience(neighbors []Neighbor) float64 {
	if len(neighbors) == 0 {
		return 0
	}
	var sum float64
	for _, n := range neighbors {
		sum += clamp01(n.Similarity)
	}
	return clamp01(sum / float64(len(neighbors)))
}
