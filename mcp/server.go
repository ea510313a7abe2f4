// Package mcp exposes article generation and content transformation as MCP
// tools, so assistants that speak the Model Context Protocol can call them.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spetersoncode/longform/generator"
	"github.com/spetersoncode/longform/pipeline"
	"github.com/spetersoncode/longform/task"
)

// Tool names.
const (
	ToolGenerateBlog     = "generate_blog"
	ToolTransformContent = "transform_content"
)

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	name    string
	version string
	logger  *slog.Logger
}

// WithName sets the server name reported to MCP clients.
func WithName(name string) ServerOption {
	return func(c *serverConfig) {
		c.name = name
	}
}

// WithVersion sets the server version reported to MCP clients.
func WithVersion(version string) ServerOption {
	return func(c *serverConfig) {
		c.version = version
	}
}

// WithLogger sets the logger. Stdio servers must not log to stdout.
func WithLogger(l *slog.Logger) ServerOption {
	return func(c *serverConfig) {
		c.logger = l
	}
}

type handlers struct {
	gen    *generator.Generator
	pipe   *pipeline.Service
	tasks  *task.Manager
	logger *slog.Logger
}

// NewServer creates an MCP server with the generate_blog tool and, when pipe
// is not nil, the transform_content tool. Transformations run on tasks.
func NewServer(gen *generator.Generator, pipe *pipeline.Service, tasks *task.Manager, opts ...ServerOption) *server.MCPServer {
	cfg := &serverConfig{
		name:    "longform",
		version: "1.0.0",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := server.NewMCPServer(
		cfg.name,
		cfg.version,
		server.WithToolCapabilities(true),
	)
	h := &handlers{gen: gen, pipe: pipe, tasks: tasks, logger: cfg.logger}

	s.AddTool(mcp.NewTool(ToolGenerateBlog,
		mcp.WithDescription("Research, write, review and assemble a technical blog article. Returns the markdown and a JSON summary."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("What the article is about")),
		mcp.WithString("article_type", mcp.Description("Narrative structure"), mcp.Enum("problem-solution", "tutorial", "comparison")),
		mcp.WithString("target_audience", mcp.Description("Reader level"), mcp.Enum("beginner", "intermediate", "advanced")),
		mcp.WithString("target_length", mcp.Description("Article length"), mcp.Enum("short", "medium", "long")),
		mcp.WithString("source_material", mcp.Description("Notes or text to build on")),
		mcp.WithString("source_url", mcp.Description("A page to fetch as source material")),
	), h.generateBlog)

	if pipe != nil && tasks != nil {
		s.AddTool(mcp.NewTool(ToolTransformContent,
			mcp.WithDescription("Turn a technical article into a paged explainer built on everyday metaphors. Returns the pages as JSON."),
			mcp.WithString("content", mcp.Required(), mcp.Description("The technical article")),
			mcp.WithString("title", mcp.Description("Working title")),
			mcp.WithString("target_audience", mcp.Description("Who the explainer is for")),
			mcp.WithString("style", mcp.Description("Visual style of the illustrations")),
			mcp.WithNumber("page_count", mcp.Description("Number of pages"), mcp.Min(1), mcp.Max(pipeline.MaxPageCount)),
			mcp.WithBoolean("generate_images", mcp.Description("Illustrate pages with the image provider")),
		), h.transformContent)
	}

	return s
}

// bindArguments decodes the tool arguments into v.
func bindArguments(req mcp.CallToolRequest, v any) error {
	data, err := json.Marshal(req.GetArguments())
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (h *handlers) generateBlog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in generator.Request
	if err := bindArguments(req, &in); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := h.gen.Generate(ctx, in)
	if err != nil {
		h.logger.Warn("generate_blog failed", "topic", in.Topic, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !out.Success {
		return mcp.NewToolResultError(fmt.Sprintf("run %s failed: %s", out.RunID, out.Error)), nil
	}

	summary, err := json.Marshal(struct {
		*generator.Output
		Markdown string `json:"markdown,omitempty"`
		HTML     string `json:"html,omitempty"`
	}{Output: out})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	h.logger.Info("generate_blog completed", "run_id", out.RunID, "sections", out.Sections)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(out.Markdown),
			mcp.NewTextContent(string(summary)),
		},
	}, nil
}

func (h *handlers) transformContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in pipeline.Request
	if err := bindArguments(req, &in); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := in.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id := h.tasks.Create()
	book, err := h.pipe.Run(ctx, id, in)
	if err != nil {
		h.logger.Warn("transform_content failed", "task_id", id, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.Marshal(book)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio serves s over stdin/stdout, the standard transport for MCP
// servers invoked as subprocesses.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
