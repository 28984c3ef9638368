/*
harmindex - command-line entry point

COMMANDS:
  serve                 Run the HTTP API and the snapshot scheduler
  score <user>          Print a user's current breakdown (or --at an instant)
  history <user>        Print a user's daily scores over --from/--to
  recompute [user]      Refresh today's snapshot for one user, or --all

GLOBAL FLAGS:
  --config    YAML config file (default: harmindex.yaml, optional)
  --db        SQLite database path, overrides config and HARMINDEX_DB_PATH
  --log-mode  production | development

STARTUP SEQUENCE:
  1. Load config (defaults, file, env, flags)
  2. Build the zap logger for the log mode
  3. Load the rate table and risk weights (built-in or from files)
  4. Open the SQLite store
  5. Build the tracker over store and aggregator

SEE ALSO:
  - config/config.go: configuration sources
  - api/server.go: Router configuration
*/
package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/harm-index/config"
	"github.com/warp/harm-index/factory"
	"github.com/warp/harm-index/harm"
	"github.com/warp/harm-index/store/sqlite"
	"github.com/warp/harm-index/substance"
	"github.com/warp/harm-index/tracker"
)

type rootFlags struct {
	configPath string
	dbPath     string
	logMode    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:          "harmindex",
		Short:        "Personal substance-use harm index",
		Long:         "harmindex turns logged substance use, recovery activities and abstinence breaks into a decaying 0-100 harm score.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "harmindex.yaml", "YAML config file")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "SQLite database path (\":memory:\" for ephemeral)")
	cmd.PersistentFlags().StringVar(&flags.logMode, "log-mode", "", "production or development")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newScoreCmd(flags))
	cmd.AddCommand(newHistoryCmd(flags))
	cmd.AddCommand(newRecomputeCmd(flags))
	return cmd
}

// app is the wired object graph shared by every command.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	store   *sqlite.Store
	tracker *tracker.Tracker
}

func (a *app) Close() {
	a.store.Close()
	a.log.Sync()
}

// loadConfig resolves the config and applies flag overrides.
func (f *rootFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.dbPath != "" {
		cfg.Database.Path = f.dbPath
	}
	if f.logMode != "" {
		cfg.Log.Mode = f.logMode
	}
	return cfg, cfg.Validate()
}

// openApp loads config and wires store, engine and tracker.
func (f *rootFlags) openApp() (*app, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	agg, err := newAggregator(cfg.Engine)
	if err != nil {
		log.Sync()
		return nil, err
	}

	st, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Error("open database", zap.String("path", cfg.Database.Path), zap.Error(err))
		log.Sync()
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &app{
		cfg:     cfg,
		log:     log,
		store:   st,
		tracker: tracker.New(st, agg, tracker.WithLogger(log)),
	}, nil
}

// newAggregator builds the engine from the built-in presets or the
// configured files.
func newAggregator(cfg config.EngineConfig) (*harm.Aggregator, error) {
	f := factory.NewRateFactory()

	rates := substance.DefaultRateTable()
	if cfg.RatesFile != "" {
		table, err := f.LoadRateTable(cfg.RatesFile)
		if err != nil {
			return nil, err
		}
		rates = table
	}
	agg := harm.NewAggregator(rates)

	if cfg.RiskWeightsFile != "" {
		w, err := f.LoadRiskWeights(cfg.RiskWeightsFile)
		if err != nil {
			return nil, err
		}
		agg.Risk = w
	}
	return agg, nil
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
