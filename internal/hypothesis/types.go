package hypothesis

import (
	"errors"
	"time"
)

// Sentinel errors returned by the hypothesis subsystem.
var (
	// ErrNotFound is returned when a hypothesis cannot be found.
	ErrNotFound = errors.New("hypothesis not found")

	// ErrInvalidState is returned when an operation is not allowed for the
	// hypothesis' current status (e.g. appending evidence to a retired claim).
	ErrInvalidState = errors.New("invalid hypothesis state for operation")

	// ErrInvalidTransition is returned when a lifecycle transition is not
	// part of the state machine.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrEmptyClaim is returned when a claim is empty or whitespace-only.
	ErrEmptyClaim = errors.New("claim text cannot be empty")

	// ErrEmptyTrailID is returned when a trail identifier is missing.
	ErrEmptyTrailID = errors.New("trail ID cannot be empty")

	// ErrEmptyActor is returned when a curation action is missing the
	// acting entity.
	ErrEmptyActor = errors.New("actor reference cannot be empty")

	// ErrInvalidDiscoveryType is returned for insights with an unknown
	// discovery type.
	ErrInvalidDiscoveryType = errors.New("invalid discovery type")

	// ErrDependencyUnavailable is returned when the embedding or vector
	// store backend fails, as opposed to a caller error.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// DiscoveryType classifies what kind of detector produced an insight.
type DiscoveryType string

const (
	DiscoveryPattern       DiscoveryType = "pattern"
	DiscoveryContradiction DiscoveryType = "contradiction"
	DiscoveryGap           DiscoveryType = "gap"
	DiscoveryTrend         DiscoveryType = "trend"
	DiscoveryAnomaly       DiscoveryType = "anomaly"
)

// Valid reports whether the discovery type is one of the known kinds.
func (d DiscoveryType) Valid() bool {
	switch d {
	case DiscoveryPattern, DiscoveryContradiction, DiscoveryGap, DiscoveryTrend, DiscoveryAnomaly:
		return true
	}
	return false
}

// Contesting reports whether evidence from this detector argues against
// the claim rather than for it.
func (d DiscoveryType) Contesting() bool {
	return d == DiscoveryContradiction
}

// Status is the lifecycle state of a hypothesis.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusActive  Status = "active"
	StatusProven  Status = "proven"
	StatusRetired Status = "retired"
)

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusProven, StatusRetired:
		return true
	}
	return false
}

// Insight is a single candidate observation emitted by a detector while a
// research trail is running. Insights accumulate in a trail buffer and only
// become durable when the trail commits.
type Insight struct {
	Type         DiscoveryType `json:"type"`
	Claim        string        `json:"claim"`
	NoveltyScore float64       `json:"novelty_score"`
	PassageIDs   []string      `json:"passage_ids,omitempty"`
	AnchorRefs   []string      `json:"anchor_refs,omitempty"`
	ProducedAt   time.Time     `json:"produced_at"`
}

// Provenance records where a piece of evidence came from.
type Provenance struct {
	TrailID  string        `json:"trail_id"`
	Detector DiscoveryType `json:"detector"`
}

// Evidence is one supporting or contesting observation attached to a
// hypothesis. Evidence IDs are assigned when the draft is buffered so that
// flush retries can detect and skip entries that already landed.
type Evidence struct {
	ID           string     `json:"id"`
	HypothesisID string     `json:"hypothesis_id,omitempty"`
	SourceRef    string     `json:"source_ref"`
	Snippet      string     `json:"snippet"`
	AnchorRefs   []string   `json:"anchor_refs,omitempty"`
	Provenance   Provenance `json:"provenance"`
	Confidence   float64    `json:"confidence"`
	Contesting   bool       `json:"contesting"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SameObservation reports whether two evidence entries describe the same
// underlying observation. Used to drop duplicate appends on flush retries
// and repeated detector firings.
func (e Evidence) SameObservation(other Evidence) bool {
	if e.ID == other.ID {
		return true
	}
	return e.SourceRef == other.SourceRef &&
		e.Snippet == other.Snippet &&
		e.Provenance == other.Provenance
}

// Draft is a buffered insight that has been shaped into a candidate
// hypothesis but not yet deduplicated or persisted.
type Draft struct {
	Claim          string    `json:"claim"`
	ConfidenceSeed float64   `json:"confidence_seed"`
	Evidence       Evidence  `json:"evidence"`
	AnchorRefs     []string  `json:"anchor_refs,omitempty"`
	SourceTrailID  string    `json:"source_trail_id"`
	BufferedAt     time.Time `json:"buffered_at"`
}

// FitScore holds the individual components that feed the confidence score.
// All components are in [0, 1].
type FitScore struct {
	ExplanatoryPower float64 `json:"explanatory_power"`
	Simplicity       float64 `json:"simplicity"`
	Scope            float64 `json:"scope"`
	Consilience      float64 `json:"consilience"`
}

// Hypothesis is a durable, deduplicated claim with its accumulated evidence
// and lifecycle state.
type Hypothesis struct {
	ID              string     `json:"id"`
	NormalizedClaim string     `json:"normalized_claim"`
	ClaimHash       string     `json:"claim_hash"`
	Status          Status     `json:"status"`
	Confidence      float64    `json:"confidence"`
	Fit             FitScore   `json:"fit"`
	Evidence        []Evidence `json:"evidence"`
	SourceTrailIDs  []string   `json:"source_trail_ids,omitempty"`
	AnchorRefs      []string   `json:"anchor_refs,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	PromotedBy      string     `json:"promoted_by,omitempty"`
	RetiredBy       string     `json:"retired_by,omitempty"`
}

// HasEvidence reports whether an observation equivalent to ev is already
// attached to the hypothesis.
func (h *Hypothesis) HasEvidence(ev Evidence) bool {
	for _, existing := range h.Evidence {
		if existing.SameObservation(ev) {
			return true
		}
	}
	return false
}

// DistinctAnchors returns the deduplicated set of anchor references across
// the hypothesis and all of its evidence.
func (h *Hypothesis) DistinctAnchors() []string {
	seen := make(map[string]struct{})
	var anchors []string
	add := func(refs []string) {
		for _, ref := range refs {
			if ref == "" {
				continue
			}
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			anchors = append(anchors, ref)
		}
	}
	add(h.AnchorRefs)
	for _, ev := range h.Evidence {
		add(ev.AnchorRefs)
	}
	return anchors
}

// SharesAnchor reports whether the hypothesis references any of the given
// anchors.
func (h *Hypothesis) SharesAnchor(refs []string) bool {
	if len(refs) == 0 {
		return false
	}
	mine := make(map[string]struct{})
	for _, ref := range h.DistinctAnchors() {
		mine[ref] = struct{}{}
	}
	for _, ref := range refs {
		if _, ok := mine[ref]; ok {
			return true
		}
	}
	return false
}

// addTrail records a source trail on the hypothesis, ignoring duplicates.
func (h *Hypothesis) addTrail(trailID string) {
	if trailID == "" {
		return
	}
	for _, existing := range h.SourceTrailIDs {
		if existing == trailID {
			return
		}
	}
	h.SourceTrailIDs = append(h.SourceTrailIDs, trailID)
}

// mergeAnchors unions the given anchor refs into the hypothesis-level set.
func (h *Hypothesis) mergeAnchors(refs []string) {
	seen := make(map[string]struct{}, len(h.AnchorRefs))
	for _, ref := range h.AnchorRefs {
		seen[ref] = struct{}{}
	}
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		h.AnchorRefs = append(h.AnchorRefs, ref)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
