// Command mcp serves the longform tools over MCP stdio.
//
// Tools:
//
//	generate_blog      research, write, review and assemble an article
//	transform_content  turn an article into a paged metaphor explainer
//
// Configuration is read like the other commands: LONGFORM_CONFIG names an
// optional YAML file and the environment supplies provider keys. Logs go to
// stderr because stdout carries the protocol.
//
// Configuration for Claude Desktop (claude_desktop_config.json):
//
//	{
//	    "mcpServers": {
//	        "longform": {
//	            "command": "go",
//	            "args": ["run", "./cmd/mcp"],
//	            "cwd": "/path/to/longform",
//	            "env": {"ANTHROPIC_API_KEY": "..."}
//	        }
//	    }
//	}
package main

import (
	"log/slog"
	"os"

	"github.com/spetersoncode/longform/config"
	"github.com/spetersoncode/longform/internal/app"
	"github.com/spetersoncode/longform/mcp"
	"github.com/spetersoncode/longform/task"
)

func main() {
	cfg, err := config.Load(os.Getenv("LONGFORM_CONFIG"))
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create generator", "error", err)
		os.Exit(1)
	}

	tasks := task.New(task.WithLogger(logger), task.WithCleanupDelay(cfg.Server.CleanupDelay))
	defer tasks.Close()

	s := mcp.NewServer(a.Generator, a.Pipeline(tasks), tasks,
		mcp.WithName("longform"),
		mcp.WithVersion("1.0.0"),
		mcp.WithLogger(logger),
	)
	if err := mcp.ServeStdio(s); err != nil {
		logger.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
