// Package main is the entry point for the stateflow research CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/randalmurphal/stateflow/pkg/research"
	"github.com/randalmurphal/stateflow/pkg/research/api"
	"github.com/randalmurphal/stateflow/pkg/stateflow/checkpoint"
	"github.com/randalmurphal/stateflow/pkg/stateflow/config"
)

// CLI is the kong command tree.
type CLI struct {
	Config  string `help:"Config file path (YAML or JSON)." short:"c" type:"path"`
	Verbose bool   `help:"Enable debug logging." short:"v"`

	Run    RunCmd    `cmd:"" help:"Start a research run."`
	Resume ResumeCmd `cmd:"" help:"Resume a suspended run with an approval decision."`
	Serve  ServeCmd  `cmd:"" help:"Serve the HTTP API."`
}

// RunCmd starts a research run and prints its step events.
type RunCmd struct {
	Query   string `arg:"" help:"Research query."`
	Session string `help:"Session name." default:""`
	Approve bool   `help:"Automatically approve the plan when the run suspends."`
}

// ResumeCmd resumes a suspended run.
type ResumeCmd struct {
	ThreadID string `arg:"" help:"Thread ID of the suspended run."`
	Deny     bool   `help:"Deny the plan instead of approving it."`
}

// ServeCmd serves the HTTP API.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides config)." default:""`
}

// appContext carries the shared runtime built in main.
type appContext struct {
	cfg    config.Config
	engine *research.Engine
	store  checkpoint.Store
	logger *slog.Logger
}

func main() {
	// .env is optional; env vars like OPENAI_API_KEY may come from anywhere.
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("stateflow"),
		kong.Description("Deep-research workflow runner."),
		kong.UsageOnError(),
	)

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	store, err := newStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening checkpoint store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	engine, err := research.NewEngine(newCapability(cfg), store,
		research.WithLogger(logger),
		research.WithMaxRevisions(cfg.Research.MaxRevisions),
		research.WithMaxSteps(cfg.Engine.MaxSteps),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	app := &appContext{cfg: cfg, engine: engine, store: store, logger: logger}
	if err := kctx.Run(app); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newStore builds the checkpoint store selected by the config.
func newStore(cfg config.Config) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Backend {
	case "sqlite":
		return checkpoint.NewSQLiteStore(cfg.Checkpoint.Path)
	default:
		return checkpoint.NewMemoryStore(), nil
	}
}

// newCapability builds the capability backend selected by the config.
func newCapability(cfg config.Config) research.Capability {
	if cfg.Research.Backend == "openai" {
		return research.NewOpenAICapability(research.OpenAIOptions{
			Model: cfg.Research.Model,
		})
	}
	return research.NewSimulatedCapability(0)
}

// Run implements the run command.
func (c *RunCmd) Run(app *appContext) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	threadID, events, err := app.engine.StartRun(ctx, c.Query, c.Session)
	if err != nil {
		return err
	}
	fmt.Printf("thread: %s\n", threadID)

	final, suspended := printEvents(events)

	if suspended && c.Approve {
		fmt.Println("plan suspended for approval, approving")
		resumed, err := app.engine.ResumeRun(ctx, threadID, true)
		if err != nil {
			return err
		}
		final, _ = printEvents(resumed)
	} else if suspended {
		fmt.Printf("run suspended; resume with: stateflow resume %s\n", threadID)
		return nil
	}

	return printFinal(final)
}

// Run implements the resume command.
func (c *ResumeCmd) Run(app *appContext) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := app.engine.ResumeRun(ctx, c.ThreadID, !c.Deny)
	if err != nil {
		return err
	}

	final, suspended := printEvents(events)
	if suspended {
		fmt.Printf("run suspended again; resume with: stateflow resume %s\n", c.ThreadID)
		return nil
	}
	return printFinal(final)
}

// Run implements the serve command.
func (c *ServeCmd) Run(app *appContext) error {
	addr := c.Addr
	if addr == "" {
		addr = app.cfg.Server.Addr
	}

	server := api.NewServer(app.engine, app.logger)
	app.logger.Info("serving", slog.String("addr", addr))
	return http.ListenAndServe(addr, server.Handler())
}

// printEvents consumes a run's event stream, printing one line per step.
// Returns the last state seen and whether the run ended suspended.
func printEvents(events <-chan research.StepEvent) (research.StateDocument, bool) {
	var last research.StateDocument
	for ev := range events {
		last = ev.State
		fmt.Printf("[%d] %-14s status=%s\n", ev.Seq, ev.Node, ev.State.Status)
	}
	return last, last.Status == research.StatusAwaitingApproval
}

// printFinal prints the run's final document.
func printFinal(doc research.StateDocument) error {
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if doc.Status == research.StatusFailed {
		return fmt.Errorf("run failed: %s", doc.ErrorMessage)
	}
	return nil
}
