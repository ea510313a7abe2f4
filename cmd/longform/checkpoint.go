package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/spetersoncode/longform/state"
	"github.com/spetersoncode/longform/store"
)

func checkpointCmd() *cli.Command {
	return &cli.Command{
		Name:      "checkpoint",
		Usage:     "Inspect saved run checkpoints",
		ArgsUsage: "<dir> [run-id]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print the full checkpoint as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir := cmd.Args().Get(0)
			if dir == "" {
				return fmt.Errorf("checkpoint directory argument is required")
			}
			adapter, err := store.NewFileAdapter(dir)
			if err != nil {
				return err
			}
			cp := store.NewCheckpointer[*state.State](adapter)
			w := cmd.Root().Writer

			runID := cmd.Args().Get(1)
			if runID == "" {
				return listCheckpoints(ctx, cp, w)
			}

			c, ok, err := cp.LoadCheckpoint(ctx, runID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no checkpoint for run %q in %s", runID, dir)
			}
			if cmd.Bool("json") {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			}
			return describeCheckpoint(w, c)
		},
	}
}

func listCheckpoints(ctx context.Context, cp *store.Checkpointer[*state.State], w io.Writer) error {
	ids, err := cp.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTEP\tSEQ\tSAVED")
	for _, id := range ids {
		c, ok, err := cp.LoadCheckpoint(ctx, id)
		if err != nil || !ok {
			fmt.Fprintf(tw, "%s\t?\t?\t?\n", id)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", id, c.Step, c.Sequence, c.SavedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

func describeCheckpoint(w io.Writer, c *store.Checkpoint[*state.State]) error {
	s := c.State
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", c.RunID)
	fmt.Fprintf(tw, "step\t%s (save %d)\n", c.Step, c.Sequence)
	fmt.Fprintf(tw, "saved\t%s\n", c.SavedAt.Format(time.RFC3339))
	if s != nil {
		fmt.Fprintf(tw, "topic\t%s (%s, %s, %s)\n", s.Topic, s.ArticleType, s.Audience, s.Length)
		if s.Outline != nil {
			fmt.Fprintf(tw, "title\t%s\n", s.Outline.Title)
		}
		fmt.Fprintf(tw, "sections\t%d\n", len(s.Sections))
		fmt.Fprintf(tw, "code blocks\t%d\n", len(s.CodeBlocks))
		fmt.Fprintf(tw, "images\t%d\n", len(s.Images))
		fmt.Fprintf(tw, "rounds\tquestioning %d, revision %d\n", s.QuestioningCount, s.RevisionCount)
		if s.Review != nil {
			fmt.Fprintf(tw, "review\t%d (approved: %t)\n", s.Review.Score, s.Review.Approved)
		}
		if s.Failed() {
			fmt.Fprintf(tw, "error\t%s\n", s.Err)
		}
		if s.FinalMarkdown != "" {
			fmt.Fprintf(tw, "document\t%d bytes\n", len(s.FinalMarkdown))
		}
	}
	return tw.Flush()
}
