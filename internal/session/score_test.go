package session

import (
	"math"
	"testing"

	"reviewdeck/internal/model"
)

func resultsFor(judgements ...model.Judgement) []QuestionResult {
	rs := make([]QuestionResult, len(judgements))
	for i, j := range judgements {
		rs[i] = QuestionResult{QuestionID: int64(i + 1), Status: j, Score: j.Points()}
	}
	return rs
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name          string
		judgements    []model.Judgement
		practicalMark float64
		questionCount int
		wantComposite float64
		wantPassed    bool
	}{
		{
			// 25/50 theoretical -> 35, practical 8.5 -> 25.5.
			name: "mixed judgements",
			judgements: []model.Judgement{
				model.JudgementAnswered,
				model.JudgementAnswered,
				model.JudgementNeedImprovement,
				model.JudgementWrong,
				model.JudgementSkip,
			},
			practicalMark: 8.5,
			questionCount: 5,
			wantComposite: 60.5,
			wantPassed:    true,
		},
		{
			name: "all answered full practical",
			judgements: []model.Judgement{
				model.JudgementAnswered,
				model.JudgementAnswered,
				model.JudgementAnswered,
			},
			practicalMark: 10,
			questionCount: 3,
			wantComposite: 100,
			wantPassed:    true,
		},
		{
			name: "all wrong zero practical",
			judgements: []model.Judgement{
				model.JudgementWrong,
				model.JudgementSkip,
			},
			practicalMark: 0,
			questionCount: 2,
			wantComposite: 0,
			wantPassed:    false,
		},
		{
			// 30/50 -> 42, practical 6 -> 18, lands exactly on the
			// threshold. 60.0 passes, inclusive.
			name: "exactly at threshold",
			judgements: []model.Judgement{
				model.JudgementAnswered,
				model.JudgementAnswered,
				model.JudgementAnswered,
				model.JudgementWrong,
				model.JudgementWrong,
			},
			practicalMark: 6,
			questionCount: 5,
			wantComposite: 60,
			wantPassed:    true,
		},
		{
			// 25/50 -> 35, practical 8 -> 24, composite 59.
			name: "just below threshold",
			judgements: []model.Judgement{
				model.JudgementAnswered,
				model.JudgementAnswered,
				model.JudgementNeedImprovement,
				model.JudgementSkip,
				model.JudgementSkip,
			},
			practicalMark: 8,
			questionCount: 5,
			wantComposite: 59,
			wantPassed:    false,
		},
		{
			// Empty module: theoretical contributes nothing, the best
			// possible composite is the practical 30 and no one passes.
			name:          "zero questions",
			judgements:    nil,
			practicalMark: 10,
			questionCount: 0,
			wantComposite: 30,
			wantPassed:    false,
		},
		{
			name: "fractional practical",
			judgements: []model.Judgement{
				model.JudgementAnswered,
				model.JudgementNeedImprovement,
			},
			practicalMark: 7.3,
			questionCount: 2,
			wantComposite: 15.0/20.0*70 + 7.3/10*30,
			wantPassed:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := State{Results: resultsFor(tt.judgements...), PracticalMark: tt.practicalMark}
			got := Compute(st, tt.questionCount)
			if math.Abs(got.Composite-tt.wantComposite) > 1e-9 {
				t.Errorf("composite = %v, want %v", got.Composite, tt.wantComposite)
			}
			if got.Passed != tt.wantPassed {
				t.Errorf("passed = %v, want %v", got.Passed, tt.wantPassed)
			}
		})
	}
}

func TestComputeBreakdown(t *testing.T) {
	st := State{
		Results: resultsFor(
			model.JudgementAnswered,
			model.JudgementNeedImprovement,
			model.JudgementWrong,
		),
		PracticalMark: 5,
	}
	got := Compute(st, 3)
	if got.TheoreticalRaw != 15 {
		t.Errorf("raw = %d, want 15", got.TheoreticalRaw)
	}
	if got.TheoreticalMax != 30 {
		t.Errorf("max = %d, want 30", got.TheoreticalMax)
	}
	if math.Abs(got.TheoreticalWeighted-35) > 1e-9 {
		t.Errorf("theoretical weighted = %v, want 35", got.TheoreticalWeighted)
	}
	if math.Abs(got.PracticalWeighted-15) > 1e-9 {
		t.Errorf("practical weighted = %v, want 15", got.PracticalWeighted)
	}
}

func TestComputeMonotonic(t *testing.T) {
	// Upgrading a judgement never lowers the composite.
	base := State{
		Results: resultsFor(
			model.JudgementWrong,
			model.JudgementWrong,
			model.JudgementWrong,
		),
		PracticalMark: 5,
	}
	prev := Compute(base, 3).Composite
	for _, j := range []model.Judgement{model.JudgementNeedImprovement, model.JudgementAnswered} {
		st := base.Clone()
		st.Results[0] = QuestionResult{QuestionID: 1, Status: j, Score: j.Points()}
		got := Compute(st, 3).Composite
		if got < prev {
			t.Errorf("composite dropped from %v to %v after upgrading to %q", prev, got, j)
		}
		prev = got
	}
}
