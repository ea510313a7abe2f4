// Command longform generates technical articles and illustrated explainers
// from the command line.
//
//	longform generate "Caching with Redis" --type tutorial --out ./articles
//	longform transform article.md --pages 6 > book.json
//	longform checkpoint ./checkpoints blog_Caching with Redis
//
// Provider settings come from --config and the environment; see package
// config for the variables.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/spetersoncode/longform/config"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "longform",
		Usage: "Generate long-form technical writing with LLMs",
		Commands: []*cli.Command{
			generateCmd(),
			transformCmd(),
			checkpointCmd(),
		},
	}
}

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "YAML config file",
	Sources: cli.EnvVars("LONGFORM_CONFIG"),
}

var verboseFlag = &cli.BoolFlag{
	Name:    "verbose",
	Aliases: []string{"v"},
	Usage:   "Log debug output to stderr",
}

// loadConfig reads the config named by --config and applies --verbose.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cmd.Bool("verbose") {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}
