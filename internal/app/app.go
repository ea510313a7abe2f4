// Package app wires the longform components from a loaded configuration.
// Every command builds its generator and pipeline through here.
package app

import (
	"log/slog"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/client"
	"github.com/spetersoncode/longform/config"
	"github.com/spetersoncode/longform/generator"
	"github.com/spetersoncode/longform/pipeline"
	"github.com/spetersoncode/longform/search"
	"github.com/spetersoncode/longform/state"
	"github.com/spetersoncode/longform/store"
	"github.com/spetersoncode/longform/task"
)

// App holds the components shared by the commands.
type App struct {
	Config    *config.Config
	Client    *client.Client
	Generator *generator.Generator
	Logger    *slog.Logger
}

// Option adjusts the wiring.
type Option func(*options)

type options struct {
	events       chan<- client.Event
	uniqueRunIDs bool
	genOpts      []generator.Option
}

// WithClientEvents forwards provider call events to ch.
func WithClientEvents(ch chan<- client.Event) Option {
	return func(o *options) {
		o.events = ch
	}
}

// WithUniqueRunIDs gives every blog run a random id. Servers need it;
// the CLI keeps topic-derived ids so a rerun finds its checkpoint.
func WithUniqueRunIDs() Option {
	return func(o *options) {
		o.uniqueRunIDs = true
	}
}

// WithGeneratorOptions appends generator options after the configured ones.
func WithGeneratorOptions(opts ...generator.Option) Option {
	return func(o *options) {
		o.genOpts = append(o.genOpts, opts...)
	}
}

// New creates the provider client and the blog generator.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	cc := cfg.ClientConfig()
	cc.Events = o.events
	ai, err := client.New(cc)
	if err != nil {
		return nil, err
	}

	genOpts, err := generatorOptions(cfg, ai, logger)
	if err != nil {
		return nil, err
	}
	if o.uniqueRunIDs {
		genOpts = append(genOpts, generator.WithUniqueRunIDs())
	}
	gen, err := generator.New(ai, append(genOpts, o.genOpts...)...)
	if err != nil {
		return nil, err
	}

	return &App{Config: cfg, Client: ai, Generator: gen, Logger: logger}, nil
}

func generatorOptions(cfg *config.Config, ai *client.Client, logger *slog.Logger) ([]generator.Option, error) {
	opts := []generator.Option{
		generator.WithPolicy(cfg.Workflow.Policy),
		generator.WithStepTimeout(cfg.Workflow.StepTimeout),
		generator.WithLanguage(cfg.Output.Language),
		generator.WithLogger(logger),
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, generator.WithChatOptions(longform.WithMaxTokens(cfg.MaxTokens)))
	}
	if cfg.Output.Dir != "" {
		opts = append(opts, generator.WithOutputDir(cfg.Output.Dir))
	}
	if images := ai.Images(); images != nil {
		opts = append(opts, generator.WithImageProvider(images))
	}

	sc := search.New(cfg.Search, search.WithLogger(logger))
	if sc.Available() {
		opts = append(opts, generator.WithSearcher(sc), generator.WithMaxResults(cfg.Search.MaxResults))
	} else {
		logger.Debug("web research disabled: no search api key")
	}

	if cfg.Workflow.CheckpointDir != "" {
		adapter, err := store.NewFileAdapter(cfg.Workflow.CheckpointDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, generator.WithCheckpointer(store.NewCheckpointer[*state.State](adapter)))
	}
	return opts, nil
}

// Pipeline creates a transformation service reporting to tasks.
func (a *App) Pipeline(tasks *task.Manager) *pipeline.Service {
	opts := []pipeline.Option{pipeline.WithLogger(a.Logger)}
	if a.Config.MaxTokens > 0 {
		opts = append(opts, pipeline.WithChatOptions(longform.WithMaxTokens(a.Config.MaxTokens)))
	}
	if images := a.Client.Images(); images != nil {
		opts = append(opts, pipeline.WithImageProvider(images))
	}
	return pipeline.New(a.Client, tasks, opts...)
}
