// Command agorasim runs the Agora market simulation: a roster of
// model-driven agents trading with each other around a Markov chain.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agorasim/agora/internal/agents"
	"github.com/agorasim/agora/internal/api"
	"github.com/agorasim/agora/internal/engine"
	"github.com/agorasim/agora/internal/events"
	"github.com/agorasim/agora/internal/llm"
	"github.com/agorasim/agora/internal/persistence"
)

var flags struct {
	population       string
	dbPath           string
	port             int
	steps            int
	selfProb         float64
	interactionProb  float64
	maxTurns         int
	weightPeriod     int
	productionPeriod int
	queueSize        int
	seed             int64
	testing          bool
	verbose          bool
}

func main() {
	root := &cobra.Command{
		Use:   "agorasim",
		Short: "Run a model-driven agent market simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
		SilenceUsage: true,
	}

	root.Flags().StringVar(&flags.population, "population", "populations/market.json", "population file to seed agents from")
	root.Flags().StringVar(&flags.dbPath, "db", "data/agora.db", "SQLite database path")
	root.Flags().IntVar(&flags.port, "port", 8080, "HTTP API port")
	root.Flags().IntVar(&flags.steps, "steps", 100, "number of simulation steps")
	root.Flags().Float64Var(&flags.selfProb, "self-prob", 0.2, "self-transition (reflection) probability")
	root.Flags().Float64Var(&flags.interactionProb, "interaction-prob", 0.8, "off-diagonal interaction probability mass")
	root.Flags().IntVar(&flags.maxTurns, "max-turns", 8, "utterance budget per conversation")
	root.Flags().IntVar(&flags.weightPeriod, "weight-period", 20, "steps per affinity-reweighting cycle")
	root.Flags().IntVar(&flags.productionPeriod, "production-period", 0, "steps between production phases (0 = weight period)")
	root.Flags().IntVar(&flags.queueSize, "queue-size", events.DefaultCapacity, "event queue capacity")
	root.Flags().Int64Var(&flags.seed, "seed", 0, "RNG seed (0 = time-based)")
	root.Flags().BoolVar(&flags.testing, "testing", false, "run without persistence")
	root.Flags().BoolVar(&flags.verbose, "verbose", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if flags.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	client := llm.NewClient(os.Getenv("ANTHROPIC_API_KEY"))
	if client.Enabled() {
		slog.Info("LLM client enabled (Haiku)")
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set — conversations will fall back to stock behavior")
	}

	var db *persistence.DB
	if !flags.testing {
		if err := os.MkdirAll(filepath.Dir(flags.dbPath), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		var err error
		db, err = persistence.Open(flags.dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		slog.Info("database opened", "path", flags.dbPath)
	}

	roster, scene, err := loadRoster(db)
	if err != nil {
		return err
	}

	queue := events.NewQueue(flags.queueSize)
	cfg := engine.Config{
		Context:          scene,
		TotalSteps:       flags.steps,
		SelfProb:         flags.selfProb,
		InteractionProb:  flags.interactionProb,
		MaxTurns:         flags.maxTurns,
		WeightPeriod:     flags.weightPeriod,
		ProductionPeriod: flags.productionPeriod,
		Seed:             flags.seed,
	}

	orch, err := engine.New(cfg, roster, client, queue)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}
	if db != nil {
		orch.OnCheckpoint = func(s engine.Snapshot) error {
			return db.SaveCheckpoint(s, roster)
		}
	}

	server := &api.Server{Orch: orch, Queue: queue, Port: flags.port}
	server.Start()
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", flags.port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	sum, runErr := orch.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("simulation: %w", runErr)
	}

	slog.Info("run summary",
		"steps", sum.Steps,
		"cycles", sum.Cycles,
		"conversations", sum.Conversations,
		"reflections", sum.Reflections,
		"trades", sum.Trades,
		"failed_trades", sum.FailedTrades,
	)
	for i, s := range sum.Leaderboard {
		slog.Info("leaderboard",
			"rank", i+1,
			"agent", s.Agent,
			"sales", fmt.Sprintf("%.2f", s.Sales),
			"purchases", fmt.Sprintf("%.2f", s.Purchases),
			"net", fmt.Sprintf("%.2f", s.NetValue),
			"trades", s.TradeCount,
		)
	}

	if db != nil {
		if err := db.SaveCheckpoint(orch.Snapshot(), roster); err != nil {
			slog.Error("final save failed", "error", err)
		} else {
			slog.Info("final state saved")
		}
	}
	return nil
}

// loadRoster restores agents from the database when a saved roster
// exists, otherwise seeds from the population file.
func loadRoster(db *persistence.DB) ([]*agents.Agent, string, error) {
	pop, err := agents.LoadPopulation(flags.population)
	if err != nil {
		return nil, "", fmt.Errorf("load population: %w", err)
	}

	if db != nil {
		has, err := db.HasAgents()
		if err != nil {
			return nil, "", fmt.Errorf("check saved state: %w", err)
		}
		if has {
			roster, err := db.LoadAgents()
			if err != nil {
				return nil, "", fmt.Errorf("load saved agents: %w", err)
			}
			lastStep := "0"
			if v, err := db.GetMeta("last_step"); err == nil {
				lastStep = v
			}
			step, _ := strconv.Atoi(lastStep)
			slog.Info("saved roster restored", "agents", len(roster), "last_step", step)
			return roster, pop.Context, nil
		}
	}

	roster := pop.BuildAll()
	slog.Info("population seeded", "agents", len(roster), "source", flags.population)
	return roster, pop.Context, nil
}
