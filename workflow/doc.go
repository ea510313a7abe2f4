// Package workflow drives a blog generation run through a fixed graph of
// steps with two bounded feedback loops.
//
// The topology is static:
//
//	research → plan → write → question ─┬─ deepen → question
//	                                     └─ code → image → review ─┬─ revise → review
//	                                                                └─ assemble → end
//
// Exactly one step runs at a time. After each step the graph saves a
// checkpoint of the state under the run id.
//
// # Outcomes
//
// A step reports how it went through an [Outcome]:
//
//   - [Continue]: the step finished, possibly after skipping sub-operations
//     that failed.
//   - [Fail]: the step could not produce its output. The graph records the
//     error on the state once, and every later step is skipped without being
//     called. The run still walks to the terminal node and returns normally.
//   - [Fatal]: an invariant was violated. Run stops and returns a
//     [*StepError].
//
// # Loops
//
// The two branch points are decided by [DepthDecision] and [ReviewDecision],
// pure functions of the state and a [Policy]. A loop body is never entered
// once its counter has reached the cap, whatever the content verdict. The
// loop bodies themselves come from a [LoopController], which increments the
// counter before doing any work.
//
// # Basic Usage
//
//	g, err := workflow.New(workflow.Nodes{
//	    Research: researcher,
//	    Plan:     planner,
//	    Write:    writer,
//	    Question: questioner,
//	    Code:     coder,
//	    Image:    artist,
//	    Review:   reviewer,
//	    Assemble: assembler,
//	    Enhancer: writer,
//	}, workflow.WithPolicy(workflow.Policy{MaxQuestioningRounds: 2, MaxRevisionRounds: 3}))
//	if err != nil {
//	    return err
//	}
//
//	result, err := g.Run(ctx, state.New(state.Input{Topic: "Redis caching"}))
//	if err != nil {
//	    return err // engine-fatal
//	}
//	if result.State.Failed() {
//	    log.Printf("partial document: %s", result.State.Err)
//	}
//
// # Streaming
//
// RunStream returns the same run as a channel of [event.Event]. The channel
// is closed after RunEnd or RunError.
package workflow
