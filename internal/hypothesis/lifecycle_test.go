package hypothesis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLifecycle() *Lifecycle {
	return NewLifecycle(LifecycleConfig{
		ActivationThreshold:   0.6,
		MinEvidenceToActivate: 2,
		RetirementFloor:       0.15,
	}, nil)
}

func TestLifecycle_Validate(t *testing.T) {
	l := testLifecycle()
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusActive, true},
		{StatusDraft, StatusRetired, true},
		{StatusActive, StatusProven, true},
		{StatusActive, StatusRetired, true},
		{StatusProven, StatusRetired, true},
		{StatusRetired, StatusActive, true},

		{StatusDraft, StatusProven, false},
		{StatusProven, StatusActive, false},
		{StatusProven, StatusDraft, false},
		{StatusRetired, StatusProven, false},
		{StatusRetired, StatusDraft, false},
		{StatusRetired, StatusRetired, false},
		{StatusActive, StatusDraft, false},
		{StatusActive, StatusActive, false},
		{Status("unknown"), StatusActive, false},
		{StatusDraft, Status("unknown"), false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", tt.from, tt.to), func(t *testing.T) {
			err := l.Validate(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestLifecycle_AutoActivation(t *testing.T) {
	l := testLifecycle()

	h := &Hypothesis{Status: StatusDraft, Confidence: 0.7,
		Evidence: []Evidence{supportingEvidence(0.7)}}
	_, ok := l.AutoStatus(h, false)
	assert.False(t, ok, "one piece of evidence is not enough")

	h.Evidence = append(h.Evidence, supportingEvidence(0.6, "b"))
	next, ok := l.AutoStatus(h, false)
	assert.True(t, ok)
	assert.Equal(t, StatusActive, next)

	h.Confidence = 0.59
	_, ok = l.AutoStatus(h, false)
	assert.False(t, ok, "below activation threshold")
}

func TestLifecycle_AutoRetirement(t *testing.T) {
	l := testLifecycle()

	for _, status := range []Status{StatusDraft, StatusActive} {
		h := &Hypothesis{Status: status, Confidence: 0.1,
			Evidence: []Evidence{supportingEvidence(0.1)}}

		next, ok := l.AutoStatus(h, true)
		assert.True(t, ok, "contested %s under the floor retires", status)
		assert.Equal(t, StatusRetired, next)

		_, ok = l.AutoStatus(h, false)
		assert.False(t, ok, "low confidence alone does not retire a %s", status)
	}
}

func TestLifecycle_ProvenNeverMovesAutomatically(t *testing.T) {
	l := testLifecycle()
	h := &Hypothesis{Status: StatusProven, Confidence: 0.01,
		Evidence: []Evidence{supportingEvidence(0.01)}}
	_, ok := l.AutoStatus(h, true)
	assert.False(t, ok)
}
