package retrieval

// Confidence is the aggregate match quality of a retrieval.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Policy maps ranked similarity scores to a Confidence. Both thresholds are
// inclusive.
type Policy struct {
	High   float32
	Medium float32
}

func DefaultPolicy() Policy {
	return Policy{High: 0.75, Medium: 0.55}
}

// Classify expects scores in descending order.
//
// high: top >= High and at least two scores >= Medium.
// medium: top >= Medium. A single chunk clearing Medium is the "one good
// match" case and lands here too.
// low: everything else, including no scores.
func (p Policy) Classify(scores []float32) Confidence {
	if len(scores) == 0 {
		return ConfidenceLow
	}
	top := scores[0]
	matches := 0
	for _, s := range scores {
		if s >= p.Medium {
			matches++
		}
	}
	switch {
	case top >= p.High && matches >= 2:
		return ConfidenceHigh
	case top >= p.Medium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
