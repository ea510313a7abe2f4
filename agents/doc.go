// Package agents provides the content-generation steps of a blog run.
//
// Each agent wraps a longform.ChatProvider and implements workflow.Step:
//
//	Researcher  search and summarize background material
//	Planner     produce the outline
//	Writer      write one section per outline entry; also the Enhancer used
//	            by the deepen and revise loops
//	Questioner  judge whether each section is detailed enough
//	Coder       fill [CODE: id - description] placeholders
//	Artist      produce diagrams and illustrations
//	Reviewer    score the whole document
//	Assembler   render the final markdown and HTML
//
// Content failures mark the state failed via workflow.Fail. Failures of a
// single sub-operation (one search query, one code block, one image) are
// logged and skipped.
package agents
