// Package task tracks long-running transformation tasks and broadcasts their
// progress to listeners.
//
// A Manager owns one Progress record and one FIFO event queue per task. A
// producer (usually a pipeline goroutine) reports through the Send methods;
// consumers drain the queue with Listen. Every map access happens under a
// single mutex.
//
// Task lifecycle:
//
//	pending → running → completed | failed | cancelled
//
// Terminal states are final. Once a task is terminal, further events are
// dropped; the only exception is the notice Cancel emits itself.
package task

import (
	"maps"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StageResult is what SendResult recorded for a stage.
type StageResult struct {
	Completed bool   `json:"completed"`
	Type      string `json:"type"`
	Data      any    `json:"data"`
}

// Progress is the observable state of one task. Values returned by Manager
// are copies.
type Progress struct {
	TaskID          string                 `json:"task_id"`
	Status          Status                 `json:"status"`
	CurrentStage    string                 `json:"current_stage"`
	StageProgress   int                    `json:"stage_progress"`
	OverallProgress int                    `json:"overall_progress"`
	Message         string                 `json:"message"`
	Results         map[string]StageResult `json:"results"`
	Outputs         map[string]any         `json:"outputs"`
	Error           string                 `json:"error,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

func (p *Progress) clone() Progress {
	c := *p
	c.Results = maps.Clone(p.Results)
	c.Outputs = maps.Clone(p.Outputs)
	return c
}

// Default stage weights. They sum to 100.
var defaultWeights = map[string]int{
	StageAnalyze:  10,
	StageMetaphor: 15,
	StageOutline:  20,
	StageContent:  30,
	StageImage:    25,
}

// Stage names used by the transformation pipeline.
const (
	StageAnalyze  = "analyze"
	StageMetaphor = "metaphor"
	StageOutline  = "outline"
	StageContent  = "content"
	StageImage    = "image"
	StageUnknown  = "unknown"
)

// DefaultWeights returns a copy of the default stage weight table.
func DefaultWeights() map[string]int {
	return maps.Clone(defaultWeights)
}

// overall computes Σ weight(completed stages) + weight(stage) × percent/100.
// Stages missing from the table weigh nothing.
func overall(weights map[string]int, results map[string]StageResult, stage string, percent int) int {
	total := 0
	for name, w := range weights {
		if r, ok := results[name]; ok && r.Completed {
			total += w
		}
	}
	return total + weights[stage]*percent/100
}
