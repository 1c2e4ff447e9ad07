package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"thoth/internal/rag/retrieve"
)

func gradedItems(relevant ...bool) []GradedItem {
	out := make([]GradedItem, len(relevant))
	for i, r := range relevant {
		out[i] = GradedItem{Item: retrieve.RetrievedItem{ID: "x"}, Relevant: r}
	}
	return out
}

func TestAssess_EmptyIsIncorrect(t *testing.T) {
	assert.Equal(t, ConfidenceIncorrect, Assess(nil, DefaultThresholds()))
}

func TestAssess_AllRelevantIsCorrect(t *testing.T) {
	got := Assess(gradedItems(true, true, true, true), DefaultThresholds())
	assert.Equal(t, ConfidenceCorrect, got)
}

func TestAssess_NoneRelevantIsIncorrect(t *testing.T) {
	got := Assess(gradedItems(false, false, false), DefaultThresholds())
	assert.Equal(t, ConfidenceIncorrect, got)
}

func TestAssess_PartialFallsInAmbiguousBand(t *testing.T) {
	// 2/4 = 0.5, between the default lower (0.4) and upper (0.7) bounds.
	got := Assess(gradedItems(true, true, false, false), DefaultThresholds())
	assert.Equal(t, ConfidenceAmbiguous, got)
}

func TestAssess_ExactlyAtUpperBoundIsCorrect(t *testing.T) {
	th := Thresholds{Upper: 0.7, Lower: 0.4}
	// 7/10 = 0.7 exactly
	items := gradedItems(true, true, true, true, true, true, true, false, false, false)
	assert.Equal(t, ConfidenceCorrect, Assess(items, th))
}

func TestAssess_ExactlyAtLowerBoundIsAmbiguous(t *testing.T) {
	th := Thresholds{Upper: 0.7, Lower: 0.4}
	// 2/5 = 0.4 exactly
	items := gradedItems(true, true, false, false, false)
	assert.Equal(t, ConfidenceAmbiguous, Assess(items, th))
}

func TestAssess_JustBelowLowerBoundIsIncorrect(t *testing.T) {
	th := Thresholds{Upper: 0.7, Lower: 0.4}
	// 1/3 = 0.333...
	items := gradedItems(true, false, false)
	assert.Equal(t, ConfidenceIncorrect, Assess(items, th))
}
