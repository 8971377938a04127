// Command micad runs the mica idea-development service.
//
// It hosts the exchange engine over HTTP: a UI creates ideas, starts
// exchanges with POST /ideas/{id}/exchange and consumes the event stream
// as SSE, and the external preview posts runtime errors from
// agent-authored code back to POST /ideas/{id}/errors.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	mica "github.com/avelline/mica"
	"github.com/avelline/mica/internal/config"
	"github.com/avelline/mica/observer"
	"github.com/avelline/mica/research"
	"github.com/avelline/mica/runner"
	"github.com/avelline/mica/store/postgres"
	"github.com/avelline/mica/store/sqlite"
	documenttool "github.com/avelline/mica/tools/document"
	graphtool "github.com/avelline/mica/tools/graph"
	notetool "github.com/avelline/mica/tools/note"
	researchtool "github.com/avelline/mica/tools/research"
)

// defaultSystemPrompt is used when agent.system_prompt_path is not set.
const defaultSystemPrompt = `You are a thinking partner helping the user develop an idea.

Work in small, verifiable steps. Research claims before repeating them.
Capture durable insights as proposed notes, keep documents up to date
(including the app source the user previews), and maintain the concept
graph so dependencies between parts of the idea stay visible. When the
preview reports runtime errors, fix the underlying code before anything
else.`

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmsgprefix)
	log.SetPrefix("[micad] ")

	cfg := config.Load(os.Getenv("MICA_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Observability (optional)
	var inst *observer.Instruments
	var tracer mica.Tracer
	if cfg.Observer.Enabled {
		var (
			otelShutdown func(context.Context) error
			err          error
		)
		inst, otelShutdown, err = observer.Init(ctx)
		if err != nil {
			log.Fatalf("observer init: %v", err)
		}
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = otelShutdown(shutCtx)
		}()
		tracer = observer.NewTracer()
	}

	// Store
	var st mica.Store
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			log.Fatalf("postgres pool: %v", err)
		}
		defer pool.Close()
		st = postgres.New(pool)
	default:
		st = sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
	}
	if err := st.Init(ctx); err != nil {
		log.Fatalf("store init: %v", err)
	}
	defer st.Close()

	// Research provider subprocess (optional)
	var provider research.Provider
	if cfg.Research.Command != "" {
		client := research.NewClient(cfg.Research.Command, cfg.Research.Args,
			research.WithCallTimeout(time.Duration(cfg.Research.TimeoutSeconds)*time.Second),
			research.WithLogger(logger),
		)
		if err := client.Start(ctx); err != nil {
			log.Fatalf("research provider: %v", err)
		}
		defer client.Close()
		provider = client
	}

	// Tools
	registry := mica.NewRegistry()
	addTool := func(t mica.Tool) {
		if inst != nil {
			t = observer.WrapTool(t, inst)
		}
		registry.Add(t)
	}
	addTool(notetool.New(st))
	addTool(documenttool.New(st, cfg.Agent.ImportPath))
	addTool(graphtool.New(st))
	addTool(researchtool.New(provider, research.NewScraper()))

	// Session runner
	var run mica.SessionRunner = runner.New(cfg.Agent.Command,
		runner.WithArgs(cfg.Agent.Args...),
		runner.WithLogger(logger),
	)
	if inst != nil {
		run = observer.WrapRunner(run, inst)
	}

	// System prompt
	prompt := defaultSystemPrompt
	if cfg.Agent.SystemPromptPath != "" {
		data, err := os.ReadFile(cfg.Agent.SystemPromptPath)
		if err != nil {
			log.Fatalf("system prompt: %v", err)
		}
		prompt = string(data)
	}

	// Engine
	opts := []mica.EngineOption{
		mica.WithTools(registry),
		mica.WithLogger(logger),
		mica.WithSystemPrompt(prompt),
		mica.WithWorkspaceRoot(cfg.Agent.WorkspacePath),
		mica.WithMaxRounds(cfg.Engine.MaxRounds),
		mica.WithFixBudget(cfg.Engine.FixBudget),
		mica.WithSettleDelay(time.Duration(cfg.Engine.SettleDelayMS) * time.Millisecond),
	}
	if tracer != nil {
		opts = append(opts, mica.WithTracer(tracer))
	}
	engine := mica.NewEngine(run, st, opts...)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newServer(engine, st, inst, logger).routes(),
		ReadTimeout:  time.Minute,
		WriteTimeout: 0, // SSE exchanges stream for as long as the loop runs
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("stopped")
}
