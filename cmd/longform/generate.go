package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/spetersoncode/longform/event"
	"github.com/spetersoncode/longform/generator"
	"github.com/spetersoncode/longform/internal/app"
	"github.com/spetersoncode/longform/model"
)

func generateCmd() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Research, write, review and assemble an article",
		ArgsUsage: "<topic>",
		Flags: []cli.Flag{
			configFlag,
			verboseFlag,
			&cli.StringFlag{Name: "type", Usage: "Article type: problem-solution, tutorial or comparison", Value: "tutorial"},
			&cli.StringFlag{Name: "audience", Usage: "Reader level: beginner, intermediate or advanced", Value: "intermediate"},
			&cli.StringFlag{Name: "length", Usage: "Target length: short, medium or long", Value: "medium"},
			&cli.IntFlag{Name: "max-questioning", Usage: "Depth questioning rounds (overrides config)"},
			&cli.IntFlag{Name: "max-revision", Usage: "Review revision rounds (overrides config)"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write the article files to this directory"},
			&cli.StringFlag{Name: "source-file", Usage: "Read source material from this file"},
			&cli.StringFlag{Name: "source-url", Usage: "Fetch source material from this page"},
			&cli.BoolFlag{Name: "json", Usage: "Print the run summary as JSON instead of the markdown"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			topic := cmd.Args().First()
			if topic == "" {
				return fmt.Errorf("topic argument is required")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.IsSet("max-questioning") {
				cfg.Workflow.MaxQuestioningRounds = int(cmd.Int("max-questioning"))
			}
			if cmd.IsSet("max-revision") {
				cfg.Workflow.MaxRevisionRounds = int(cmd.Int("max-revision"))
			}
			if out := cmd.String("out"); out != "" {
				cfg.Output.Dir = out
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			req := generator.Request{
				Topic:       topic,
				ArticleType: cmd.String("type"),
				Audience:    cmd.String("audience"),
				Length:      cmd.String("length"),
				SourceURL:   cmd.String("source-url"),
			}
			if path := cmd.String("source-file"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading source file: %w", err)
				}
				req.SourceMaterial = string(data)
			}

			a, err := app.New(cfg, cfg.NewLogger(os.Stderr))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			out, err := runGenerate(ctx, a.Generator, req, os.Stderr)
			if err != nil {
				return err
			}
			reportUsage(os.Stderr, a.Client.ChatModel(), out)
			return printOutput(cmd.Root().Writer, out, cmd.Bool("json"))
		},
	}
}

// runGenerate streams the run, reporting steps to progress, and returns the
// summary. A run that ends without a document is an error.
func runGenerate(ctx context.Context, gen *generator.Generator, req generator.Request, progress io.Writer) (*generator.Output, error) {
	runID, events, err := gen.GenerateStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var last event.Event
	for e := range events {
		last = e
		switch e.Type {
		case event.StepStart:
			fmt.Fprintf(progress, "→ %s\n", e.StepName)
		case event.StepSkipped:
			fmt.Fprintf(progress, "  skipped %s\n", e.StepName)
		case event.LoopIteration:
			fmt.Fprintf(progress, "  %s round %d\n", e.StepName, e.Iteration)
		}
	}

	switch {
	case last.Type == event.RunError:
		return nil, fmt.Errorf("run %s aborted: %w", runID, last.Error)
	case last.Type != event.RunEnd || last.State == nil:
		return nil, fmt.Errorf("run %s ended without a result", runID)
	}

	out := generator.Summarize(runID, last.State)
	if !out.Success {
		return out, fmt.Errorf("run %s failed: %s", runID, out.Error)
	}
	fmt.Fprintf(progress, "done: %q, %d sections, review score %d\n", out.Title, out.Sections, out.ReviewScore)
	return out, nil
}

// reportUsage prints token totals and, for priced models, an estimated cost.
func reportUsage(w io.Writer, chatModel string, out *generator.Output) {
	fmt.Fprintf(w, "usage: %d chat calls, %d input / %d output tokens", out.ChatCalls, out.Usage.InputTokens, out.Usage.OutputTokens)
	if cost, ok := model.ChatCost(chatModel, out.Usage); ok {
		fmt.Fprintf(w, ", ~$%.4f on %s", cost, chatModel)
	}
	fmt.Fprintln(w)
}

func printOutput(w io.Writer, out *generator.Output, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	if out.OutputDir != "" {
		_, err := fmt.Fprintf(w, "wrote %s\n", out.OutputDir)
		return err
	}
	_, err := io.WriteString(w, out.Markdown)
	return err
}
