package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/spetersoncode/longform/internal/app"
	"github.com/spetersoncode/longform/pipeline"
	"github.com/spetersoncode/longform/task"
)

func transformCmd() *cli.Command {
	return &cli.Command{
		Name:      "transform",
		Usage:     "Turn a technical article into an illustrated explainer",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			configFlag,
			verboseFlag,
			&cli.StringFlag{Name: "title", Usage: "Working title"},
			&cli.StringFlag{Name: "audience", Usage: "Target audience", Value: pipeline.DefaultAudience},
			&cli.StringFlag{Name: "style", Usage: "Visual style", Value: pipeline.DefaultStyle},
			&cli.IntFlag{Name: "pages", Usage: "Number of pages", Value: pipeline.DefaultPageCount},
			&cli.BoolFlag{Name: "images", Usage: "Illustrate pages with the configured image provider"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("file argument is required (use - for stdin)")
			}
			content, err := readInput(path, cmd.Root().Reader)
			if err != nil {
				return err
			}

			req := pipeline.Request{
				Content:        string(content),
				Title:          cmd.String("title"),
				Audience:       cmd.String("audience"),
				Style:          cmd.String("style"),
				PageCount:      int(cmd.Int("pages")),
				GenerateImages: cmd.Bool("images"),
			}
			if err := req.Validate(); err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cfg.NewLogger(os.Stderr)
			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			tasks := task.New(task.WithLogger(logger), task.WithCleanupDelay(time.Minute))
			defer tasks.Close()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			book, err := runTransform(ctx, a.Pipeline(tasks), tasks, req, os.Stderr)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.Root().Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(book)
		},
	}
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// runTransform runs the pipeline on a fresh task, printing its progress
// events until the task ends.
func runTransform(ctx context.Context, svc *pipeline.Service, tasks *task.Manager, req pipeline.Request, progress io.Writer) (*pipeline.Storybook, error) {
	id := tasks.Create()
	events, err := tasks.Listen(ctx, id, 100*time.Millisecond)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			switch e.Name {
			case task.EventProgress:
				fmt.Fprintf(progress, "[%3v%%] %v: %v\n", e.Data["overall_progress"], e.Data["stage"], e.Data["message"])
			case task.EventError:
				fmt.Fprintf(progress, "error in %v: %v\n", e.Data["stage"], e.Data["message"])
			}
		}
	}()

	book, err := svc.Run(ctx, id, req)
	<-done
	return book, err
}
