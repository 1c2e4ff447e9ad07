package retrieval

// Confidence is the §4.4 step 5 tri-level CRAG verdict.
type Confidence string

const (
	ConfidenceCorrect   Confidence = "correct"
	ConfidenceAmbiguous Confidence = "ambiguous"
	ConfidenceIncorrect Confidence = "incorrect"
)

// Thresholds holds the CRAG upper/lower bounds; defaults match §4.4
// step 5 (0.7 / 0.4).
type Thresholds struct {
	Upper float64
	Lower float64
}

func DefaultThresholds() Thresholds { return Thresholds{Upper: 0.7, Lower: 0.4} }

// Assess computes the fraction of retained documents above the relevance
// floor and maps it to a Confidence level.
func Assess(graded []GradedItem, th Thresholds) Confidence {
	if len(graded) == 0 {
		return ConfidenceIncorrect
	}
	var above int
	for _, g := range graded {
		if g.Relevant {
			above++
		}
	}
	fraction := float64(above) / float64(len(graded))
	switch {
	case fraction >= th.Upper:
		return ConfidenceCorrect
	case fraction >= th.Lower:
		return ConfidenceAmbiguous
	default:
		return ConfidenceIncorrect
	}
}
