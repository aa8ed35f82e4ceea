package hypothesis

import (
	"fmt"

	"go.uber.org/zap"
)

// LifecycleConfig holds the thresholds that drive automatic transitions.
type LifecycleConfig struct {
	// ActivationThreshold is the confidence a draft must reach to
	// auto-activate.
	ActivationThreshold float64
	// MinEvidenceToActivate is the minimum evidence count for
	// auto-activation.
	MinEvidenceToActivate int
	// RetirementFloor is the confidence below which a contested claim is
	// automatically retired.
	RetirementFloor float64
}

// transitions is the complete lifecycle state machine. Anything not listed
// here is rejected.
var transitions = map[Status]map[Status]bool{
	StatusDraft:   {StatusActive: true, StatusRetired: true},
	StatusActive:  {StatusProven: true, StatusRetired: true},
	StatusProven:  {StatusRetired: true},
	StatusRetired: {StatusActive: true},
}

// Lifecycle validates status transitions and decides automatic ones.
type Lifecycle struct {
	cfg    LifecycleConfig
	logger *zap.Logger
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(cfg LifecycleConfig, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{cfg: cfg, logger: logger}
}

// Validate returns an error unless from -> to is a legal transition.
func (l *Lifecycle) Validate(from, to Status) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if !transitions[from][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// AutoStatus decides whether a hypothesis should transition automatically
// after a scoring update. contested indicates the update appended contesting
// evidence. Returns the target status and true when a transition applies.
//
// Draft claims activate once confidence clears the activation threshold with
// enough evidence behind it. Draft and active claims retire when contesting
// evidence drags confidence under the retirement floor. Proven claims never
// move automatically.
func (l *Lifecycle) AutoStatus(h *Hypothesis, contested bool) (Status, bool) {
	switch h.Status {
	case StatusDraft:
		if contested && h.Confidence < l.cfg.RetirementFloor {
			return StatusRetired, true
		}
		if h.Confidence >= l.cfg.ActivationThreshold && len(h.Evidence) >= l.cfg.MinEvidenceToActivate {
			return StatusActive, true
		}
	case StatusActive:
		if contested && h.Confidence < l.cfg.RetirementFloor {
			return StatusRetired, true
		}
	}
	return h.Status, false
}
