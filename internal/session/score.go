package session

// Theoretical answers carry 70% of the composite, the practical mark 30%.
// A review passes at 60 or above, inclusive.
const (
	pointsPerQuestion = 10
	theoreticalWeight = 70.0
	practicalWeight   = 30.0
	passThreshold     = 60.0
)

// Score is the live weighted score of a session. It is recomputed from the
// current state on every read, never cached.
type Score struct {
	TheoreticalRaw      int     `json:"theoreticalRaw"`
	TheoreticalMax      int     `json:"theoreticalMax"`
	TheoreticalWeighted float64 `json:"theoreticalWeighted"`
	PracticalWeighted   float64 `json:"practicalWeighted"`
	Composite           float64 `json:"composite"`
	Passed              bool    `json:"passed"`
}

// Compute derives the weighted composite score for a state against a module
// of questionCount questions. With zero questions the theoretical part is 0
// and the composite depends entirely on the practical mark.
func Compute(st State, questionCount int) Score {
	var raw int
	for _, r := range st.Results {
		raw += r.Score
	}
	max := questionCount * pointsPerQuestion

	var theoretical float64
	if max > 0 {
		theoretical = float64(raw) / float64(max) * theoreticalWeight
	}
	practical := st.PracticalMark / 10 * practicalWeight
	composite := theoretical + practical

	return Score{
		TheoreticalRaw:      raw,
		TheoreticalMax:      max,
		TheoreticalWeighted: theoretical,
		PracticalWeighted:   practical,
		Composite:           composite,
		Passed:              composite >= passThreshold,
	}
}
