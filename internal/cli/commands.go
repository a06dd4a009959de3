package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reflexcoder/autoagent/internal/agent"
	"github.com/reflexcoder/autoagent/internal/config"
	"github.com/reflexcoder/autoagent/internal/dataflows"
	"github.com/reflexcoder/autoagent/internal/display"
	"github.com/reflexcoder/autoagent/internal/log"
	"github.com/reflexcoder/autoagent/internal/server"
	"github.com/reflexcoder/autoagent/internal/service"
	"github.com/reflexcoder/autoagent/internal/storage"
	"github.com/reflexcoder/autoagent/internal/version"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "autoagent",
		Short: "autoagent - an autonomous earning agent",
		Long: `autoagent is a self-improving agent that learns to earn through
reinforcement learning over market environments. It trains a tabular
Q-learning policy, allocates episodes across earning strategies and
tracks realized revenue per strategy.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Debug = true
				cfg.LogLevel = "debug"
			}
			log.Configure(log.Config{
				Level:   cfg.LogLevel,
				Service: "autoagent",
			})
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("create directories: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractiveMode(cmd.Context(), cfg)
		},
	}

	rootCmd.AddCommand(newTrainCmd(cfg))
	rootCmd.AddCommand(newRunCmd(cfg))
	rootCmd.AddCommand(newBacktestCmd(cfg))
	rootCmd.AddCommand(newQuoteCmd(cfg))
	rootCmd.AddCommand(newReportCmd(cfg))
	rootCmd.AddCommand(newServeCmd(cfg))
	rootCmd.AddCommand(newConfigCmd(cfg))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	return rootCmd
}

func addSessionFlags(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().IntVar(&cfg.Episodes, "episodes", cfg.Episodes, "Number of episodes to run")
	cmd.Flags().IntVar(&cfg.MaxSteps, "max-steps", cfg.MaxSteps, "Maximum steps per episode")
	cmd.Flags().StringVar(&cfg.MarketSource, "source", cfg.MarketSource, "Market source: replay or synthetic")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed (0 = time-based)")
	cmd.Flags().StringVar(&cfg.EarningTarget, "target", cfg.EarningTarget, "Stop early once cumulative net reaches this amount")
}

func newTrainCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train [SYMBOL]",
		Short: "Train the agent's policy on a symbol",
		Long: `Train the Q-learning policy over repeated episodes. Progress is
persisted: episodes and decisions go to SQLite, the Q-table is
checkpointed per symbol and restored on the next session.
Example: autoagent train AAPL --episodes=100`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				cfg.Symbol = args[0]
			}
			return runSession(cmd.Context(), cfg, agent.ModeTrain)
		},
	}
	addSessionFlags(cmd, cfg)
	return cmd
}

func newRunCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [SYMBOL]",
		Short: "Run the learned policy with learning frozen",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				cfg.Symbol = args[0]
			}
			return runSession(cmd.Context(), cfg, agent.ModeRun)
		},
	}
	addSessionFlags(cmd, cfg)
	return cmd
}

func newBacktestCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest [SYMBOL]",
		Short: "Replay historical bars with the learned policy",
		Long: `Run the learned policy over historical daily bars with learning
frozen. Equivalent to "run --source=replay".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				cfg.Symbol = args[0]
			}
			cfg.MarketSource = "replay"
			return runSession(cmd.Context(), cfg, agent.ModeRun)
		},
	}
	cmd.Flags().IntVar(&cfg.Episodes, "episodes", 1, "Number of backtest episodes")
	cmd.Flags().IntVar(&cfg.MaxSteps, "max-steps", cfg.MaxSteps, "Maximum steps per episode")
	return cmd
}

func newQuoteCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "quote SYMBOL",
		Short: "Show a live quote and news sentiment for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showQuote(cmd.Context(), cfg, args[0])
		},
	}
}

func newReportCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the realized earnings ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			return showReport(cmd.Context(), cfg, sessionID)
		},
	}
	cmd.Flags().String("session", "", "Limit the report to one session ID")
	return cmd
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API and Prometheus metrics",
		Long: `Start the HTTP status server. Configuration is hot-reloaded from
the config file while serving.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Listen address")
	return cmd
}

func newConfigCmd(cfg *config.Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			showConfig(cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("configuration is valid")
			return nil
		},
	})

	return configCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("autoagent v%s\n", version.Version)
			fmt.Println("Autonomous AI Agent Framework with Reinforcement Learning")
			fmt.Printf("Author: %s\n", version.Author)
		},
	}
}

func runSession(ctx context.Context, cfg *config.Config, mode string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := service.NewSession(ctx, cfg, mode)
	if err != nil {
		return err
	}
	defer sess.Close()

	fmt.Printf("Starting %s session for %s (%d episodes)\n", mode, cfg.Symbol, cfg.Episodes)

	result, err := sess.Agent.RunSession(ctx)
	if result != nil {
		fmt.Println(display.RenderSession(result))
	}
	if err != nil {
		return fmt.Errorf("session failed: %w", err)
	}
	return nil
}

func showQuote(ctx context.Context, cfg *config.Config, symbol string) error {
	flows := dataflows.NewDataFlowInterface(cfg)
	defer flows.Close()

	q, err := flows.GetQuote(symbol)
	if err != nil {
		return fmt.Errorf("quote for %s: %w", symbol, err)
	}

	// Sentiment and exchange metadata are best effort.
	sentiment, _, err := flows.GetNewsSentiment(symbol, 7)
	if err != nil {
		sentiment = 0
	}
	info, err := flows.GetSymbolInfo(ctx, symbol)
	if err != nil {
		info = nil
	}

	fmt.Println(display.RenderQuote(q, sentiment, info))
	return nil
}

func showReport(ctx context.Context, cfg *config.Config, sessionID string) error {
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.SummarizeEarnings(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("no earnings recorded yet")
		return nil
	}

	fmt.Printf("%-16s %7s %12s\n", "STRATEGY", "TRADES", "NET")
	for _, s := range summaries {
		fmt.Printf("%-16s %7d %12s\n", s.Strategy, s.Trades, s.Net.StringFixed(2))
	}

	sessions, err := store.ListSessions(ctx, 10)
	if err != nil {
		return err
	}
	if len(sessions) > 0 {
		fmt.Println("\nRecent sessions:")
		for _, s := range sessions {
			fmt.Printf("  %s  %-5s %-6s %s\n", s.ID, s.Mode, s.Symbol, s.Status)
		}
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.WithComponent("cli")

	manager, err := config.NewManager(config.WithInitialConfig(cfg))
	if err != nil {
		return fmt.Errorf("config manager: %w", err)
	}
	if err := manager.Watch(ctx, func(updated config.Config) {
		logger.Info().Str("path", manager.Path()).Msg("configuration reloaded")
	}); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	return server.New(cfg.ListenAddr, store).ListenAndServe(ctx)
}

func showConfig(cfg *config.Config) {
	fmt.Println("Current configuration:")
	fmt.Printf("  Project dir:      %s\n", cfg.ProjectDir)
	fmt.Printf("  Data dir:         %s\n", cfg.DataDir)
	fmt.Printf("  Checkpoint dir:   %s\n", cfg.CheckpointDir)
	fmt.Printf("  Database:         %s\n", cfg.DBPath)
	fmt.Println()
	fmt.Printf("  Symbol:           %s\n", cfg.Symbol)
	fmt.Printf("  Episodes:         %d\n", cfg.Episodes)
	fmt.Printf("  Max steps:        %d\n", cfg.MaxSteps)
	fmt.Printf("  Window size:      %d\n", cfg.WindowSize)
	fmt.Printf("  Initial cash:     %s\n", cfg.InitialCash)
	fmt.Printf("  Fee rate:         %s\n", cfg.FeeRate)
	fmt.Printf("  Order fraction:   %.2f\n", cfg.OrderFraction)
	fmt.Printf("  Earning target:   %s\n", orNone(cfg.EarningTarget))
	fmt.Println()
	fmt.Printf("  Alpha:            %.3f\n", cfg.Alpha)
	fmt.Printf("  Gamma:            %.3f\n", cfg.Gamma)
	fmt.Printf("  Epsilon:          %.3f (min %.3f, decay %.3f)\n", cfg.Epsilon, cfg.EpsilonMin, cfg.EpsilonDecay)
	fmt.Printf("  Replay:           %d capacity, %d batch\n", cfg.ReplayCapacity, cfg.ReplayBatch)
	fmt.Println()
	fmt.Printf("  Market source:    %s\n", cfg.MarketSource)
	fmt.Printf("  Online tools:     %t\n", cfg.OnlineTools)
	fmt.Printf("  Cache enabled:    %t\n", cfg.CacheEnabled)
	fmt.Printf("  Listen addr:      %s\n", cfg.ListenAddr)
	fmt.Println()
	fmt.Printf("  Advisor:          %t (%s/%s)\n", cfg.AdvisorEnabled, cfg.LLMProvider, cfg.LLMModel)
	fmt.Printf("  OpenAI key:       %s\n", configured(cfg.OpenAIAPIKey))
	fmt.Printf("  DeepSeek key:     %s\n", configured(cfg.DeepSeekAPIKey))
	fmt.Printf("  Longport keys:    %s\n", configured(cfg.LongportAppKey))
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func configured(s string) string {
	if s == "" {
		return "not configured"
	}
	return "configured"
}

func runInteractiveMode(ctx context.Context, cfg *config.Config) error {
	fmt.Println("autoagent - autonomous earning agent")
	fmt.Println()

	mode, err := PromptForMode()
	if err != nil {
		return err
	}

	symbol, err := PromptForSymbol(cfg.Symbol)
	if err != nil {
		return err
	}
	cfg.Symbol = symbol

	episodes, err := PromptForEpisodes(cfg.Episodes)
	if err != nil {
		return err
	}
	cfg.Episodes = episodes

	if mode == "backtest" {
		cfg.MarketSource = "replay"
		mode = agent.ModeRun
	}
	if mode == agent.ModeTrain && cfg.MarketSource == "replay" {
		online, err := PromptConfirm("Replay source needs market data. Allow online fetches?", cfg.OnlineTools)
		if err != nil {
			return err
		}
		cfg.OnlineTools = online
	}

	return runSession(ctx, cfg, mode)
}
