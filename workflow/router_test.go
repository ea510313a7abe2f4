package workflow

import (
	"testing"

	"github.com/spetersoncode/longform/state"
	"github.com/stretchr/testify/assert"
)

func TestDepthDecision(t *testing.T) {
	p := Policy{MaxQuestioningRounds: 2, MaxRevisionRounds: 3}
	vague := []state.QuestionResult{{SectionID: "a"}}
	detailed := []state.QuestionResult{{SectionID: "a", DetailedEnough: true}}

	tests := []struct {
		name    string
		results []state.QuestionResult
		count   int
		want    Route
	}{
		{"vague under cap", vague, 0, RouteDeepen},
		{"vague one below cap", vague, 1, RouteDeepen},
		{"vague at cap", vague, 2, RouteCode},
		{"vague past cap", vague, 5, RouteCode},
		{"detailed", detailed, 0, RouteCode},
		{"no results", nil, 0, RouteCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := state.New(state.Input{Topic: "x"})
			s.QuestionResults = tt.results
			s.QuestioningCount = tt.count

			got := DepthDecision(s, p)
			assert.Equal(t, tt.want, got)
			for i := 0; i < 5; i++ {
				assert.Equal(t, got, DepthDecision(s, p))
			}
		})
	}
}

func TestReviewDecision(t *testing.T) {
	p := Policy{MaxQuestioningRounds: 2, MaxRevisionRounds: 3}

	tests := []struct {
		name   string
		review *state.ReviewResult
		count  int
		want   Route
	}{
		{"no review", nil, 0, RouteRevise},
		{"rejected under cap", &state.ReviewResult{Score: 50}, 2, RouteRevise},
		{"rejected at cap", &state.ReviewResult{Score: 50}, 3, RouteAssemble},
		{"approved", &state.ReviewResult{Score: 90, Approved: true}, 0, RouteAssemble},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := state.New(state.Input{Topic: "x"})
			s.Review = tt.review
			s.RevisionCount = tt.count
			assert.Equal(t, tt.want, ReviewDecision(s, p))
		})
	}
}

func TestPolicy_StepBudget(t *testing.T) {
	assert.Equal(t, 8, Policy{}.StepBudget())
	assert.Equal(t, 2*2+3*2+8, DefaultPolicy().StepBudget())
	assert.Equal(t, 8, Policy{MaxQuestioningRounds: -1, MaxRevisionRounds: -4}.StepBudget())
}

func TestRunIDForTopic(t *testing.T) {
	assert.Equal(t, "blog_Go generics", RunIDForTopic("Go generics"))
}
