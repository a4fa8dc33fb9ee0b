package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reasoningbank/internal/bank"
	"github.com/fyrsmithlabs/reasoningbank/internal/breaker"
	"github.com/fyrsmithlabs/reasoningbank/internal/config"
	"github.com/fyrsmithlabs/reasoningbank/internal/embedding"
	"github.com/fyrsmithlabs/reasoningbank/internal/logging"
	"github.com/fyrsmithlabs/reasoningbank/internal/metrics"
	"github.com/fyrsmithlabs/reasoningbank/internal/store"
)

// app bundles the wired components behind every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	service *bank.Service
	tracker *metrics.Tracker
	cache   *embedding.Cache
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	var embedder embedding.Embedder
	switch cfg.Embedding.Provider {
	case "remote":
		embedder, err = embedding.NewRemote(embedding.RemoteConfig{
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
		})
		if err != nil {
			st.Close()
			return nil, err
		}
	default:
		embedder = embedding.NewHashing()
	}
	cached := embedding.NewCache(embedder,
		embedding.WithMaxEntries(cfg.Embedding.CacheMaxEntries),
		embedding.WithCacheMetrics(embedding.NewMetrics(logger)))

	brk := breaker.New(
		breaker.WithThreshold(cfg.Breaker.FailureThreshold),
		breaker.WithCooldown(cfg.Breaker.Cooldown))
	tracker := metrics.New(cfg.Metrics.Path, logger)

	service, err := bank.New(st, cached, brk, tracker, logger, bank.Options{
		Threshold:      cfg.Retrieval.Threshold,
		TopK:           cfg.Retrieval.TopK,
		CandidateLimit: cfg.Retrieval.CandidateLimit,
		LearningRate:   cfg.Confidence.LearningRate,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: st, service: service, tracker: tracker, cache: cached}, nil
}

func (a *app) close() {
	stats := a.cache.Stats()
	a.tracker.SetCacheStats(stats.Hits, stats.Misses)
	if err := a.tracker.Save(); err != nil {
		a.logger.Warn("failed to save metrics report", zap.Error(err))
	}
	a.store.Close()
	a.logger.Sync()
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// initCmd creates the database and applies migrations.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the episodic memory database and apply migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		fmt.Printf("database ready at %s\n", a.cfg.Database.Path)
		return nil
	},
}

var (
	retrieveDomain string
	retrieveTopK   int
)

// retrieveCmd looks up the best prior strategy for a task description.
var retrieveCmd = &cobra.Command{
	Use:   "retrieve <task description>",
	Short: "Retrieve the most relevant prior strategy for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		strategy, err := a.service.PreTaskRetrieve(cmd.Context(), args[0], retrieveDomain, retrieveTopK)
		if err != nil {
			return err
		}
		if strategy == nil {
			fmt.Println("no relevant strategy found")
			return nil
		}
		return printJSON(strategy)
	},
}

var (
	storeDomain    string
	storeSession   string
	storeTaskID    string
	storeInput     string
	storeOutput    string
	storeStrategy  string
	storeCritique  string
	storeOutcome   string
	storeReward    float64
	storeLatencyMS int64
	storeTokens    int64
)

// storeCmd persists a finished task trajectory.
var storeCmd = &cobra.Command{
	Use:   "store <task description>",
	Short: "Persist a finished task trajectory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		taskID := storeTaskID
		if taskID == "" {
			taskID = uuid.NewString()
		}
		result, err := a.service.PostTaskStore(cmd.Context(), taskID, bank.Trajectory{
			Description: args[0],
			Domain:      storeDomain,
			SessionID:   storeSession,
			Input:       storeInput,
			Output:      storeOutput,
			Strategy:    storeStrategy,
			Critique:    storeCritique,
		}, bank.Outcome(storeOutcome), bank.TaskMetrics{
			Reward:     storeReward,
			LatencyMS:  storeLatencyMS,
			TokensUsed: storeTokens,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

// consolidateCmd compacts a session's episodes into summaries.
var consolidateCmd = &cobra.Command{
	Use:   "consolidate <session-id>",
	Short: "Consolidate a session's episodes into compact memories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.service.SessionEndConsolidate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

// metricsCmd prints and saves the current metrics report.
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print the metrics report",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		return printJSON(a.tracker.Report())
	},
}

func init() {
	retrieveCmd.Flags().StringVar(&retrieveDomain, "domain", "", "restrict retrieval to a domain")
	retrieveCmd.Flags().IntVar(&retrieveTopK, "top-k", 0, "supporting episode count (0 = configured default)")

	storeCmd.Flags().StringVar(&storeDomain, "domain", "", "trajectory domain")
	storeCmd.Flags().StringVar(&storeSession, "session", "", "session id")
	storeCmd.Flags().StringVar(&storeTaskID, "task-id", "", "external task id recorded in metadata")
	storeCmd.Flags().StringVar(&storeInput, "input", "", "task input")
	storeCmd.Flags().StringVar(&storeOutput, "output", "", "task output")
	storeCmd.Flags().StringVar(&storeStrategy, "strategy", "", "strategy that was applied")
	storeCmd.Flags().StringVar(&storeCritique, "critique", "", "self-critique of the execution")
	storeCmd.Flags().StringVar(&storeOutcome, "outcome", "success", "outcome: success, failure, or unknown")
	storeCmd.Flags().Float64Var(&storeReward, "reward", 0, "reward in [0,1] (0 = unmeasured, treated as neutral)")
	storeCmd.Flags().Int64Var(&storeLatencyMS, "latency-ms", 0, "task latency in milliseconds")
	storeCmd.Flags().Int64Var(&storeTokens, "tokens", 0, "token cost")
}
