package workflow

import "github.com/spetersoncode/longform/state"

// Default loop caps.
const (
	DefaultMaxQuestioningRounds = 2
	DefaultMaxRevisionRounds    = 3
)

// Route is the outcome of a routing decision.
type Route string

const (
	RouteDeepen   Route = "deepen"
	RouteCode     Route = "code"
	RouteRevise   Route = "revise"
	RouteAssemble Route = "assemble"
)

// Policy holds the loop caps. Zero or negative caps disable the loop.
type Policy struct {
	MaxQuestioningRounds int `json:"max_questioning_rounds" yaml:"max_questioning_rounds"`
	MaxRevisionRounds    int `json:"max_revision_rounds" yaml:"max_revision_rounds"`
}

// DefaultPolicy returns the default caps: 2 questioning rounds, 3 revisions.
func DefaultPolicy() Policy {
	return Policy{
		MaxQuestioningRounds: DefaultMaxQuestioningRounds,
		MaxRevisionRounds:    DefaultMaxRevisionRounds,
	}
}

// StepBudget is the most steps a run may execute: the acyclic path plus two
// steps (body and re-check) per loop round.
func (p Policy) StepBudget() int {
	return max(p.MaxQuestioningRounds, 0)*2 + max(p.MaxRevisionRounds, 0)*2 + len(acyclicPath)
}

// DepthDecision picks the branch after the questioner. The cap always wins
// over an unsatisfied verdict.
func DepthDecision(s *state.State, p Policy) Route {
	if !s.AllSectionsDetailed() && s.QuestioningCount < p.MaxQuestioningRounds {
		return RouteDeepen
	}
	return RouteCode
}

// ReviewDecision picks the branch after the reviewer. The cap always wins
// over a missing approval.
func ReviewDecision(s *state.State, p Policy) Route {
	if !s.Approved() && s.RevisionCount < p.MaxRevisionRounds {
		return RouteRevise
	}
	return RouteAssemble
}
