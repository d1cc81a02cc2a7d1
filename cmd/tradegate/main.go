// tradegate is the trading-analysis gateway.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/seenimoa/tradegate/api"
	"github.com/seenimoa/tradegate/internal/config"
	"github.com/seenimoa/tradegate/internal/executor"
	"github.com/seenimoa/tradegate/internal/gateway"
	"github.com/seenimoa/tradegate/internal/llm"
	"github.com/seenimoa/tradegate/internal/logger"
	"github.com/seenimoa/tradegate/internal/storage"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var (
	cfg *config.Config
	log *logrus.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tradegate",
	Short: "tradegate — gateway for multi-agent trading analysis",
	Long: `tradegate fronts a multi-agent trading-analysis framework.
It runs analyses as external processes or simulates them, tests the
LLM endpoint and reports network reachability over HTTP and the CLI.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		log, err = logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(diagnoseCmd)
}

// newService wires a gateway.Service from the loaded config. A provider
// that cannot be built is reported through the connection test.
func newService(ctx context.Context, events gateway.EventSink) (*gateway.Service, error) {
	provider, llmErr := llm.New(ctx, cfg.LLM)
	if llmErr != nil {
		log.WithError(llmErr).Warn("LLM provider unavailable")
		provider = nil
	}
	strategy, err := executor.New(cfg)
	if err != nil {
		return nil, err
	}
	return gateway.New(gateway.Deps{
		Config:   cfg,
		LLM:      provider,
		LLMErr:   llmErr,
		Strategy: strategy,
		Events:   events,
		Log:      log,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tradegate %s (gateway %s)\n", version, gateway.Version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.API.Port = port
		}

		store, err := storage.Open(ctx, cfg.Storage, log)
		if err != nil {
			return err
		}
		defer store.Close()

		hub := api.NewWSHub(log)
		svc, err := newService(ctx, hub)
		if err != nil {
			return err
		}
		defer svc.Close()

		log.WithFields(logrus.Fields{
			"addr":    cfg.API.Addr(),
			"mode":    svc.Mode(),
			"storage": cfg.Storage.Driver,
		}).Info("starting tradegate API server")
		return api.NewServer(cfg, svc, store, hub, log).ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides api.port)")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  tradegate — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Println()

		// Config summary
		fmt.Println("  Configuration:")
		fmt.Printf("    LLM:           %s via %s (%s)\n", cfg.LLM.Model, cfg.LLM.Driver, cfg.LLM.BaseURL)
		fmt.Printf("    Executor:      %s (%s, max %d)\n", cfg.Executor.Mode, cfg.Executor.Interpreter, cfg.Executor.MaxConcurrent)
		fmt.Printf("    Work Dir:      %s\n", cfg.Executor.WorkDir)
		fmt.Printf("    Storage:       %s\n", cfg.Storage.Driver)
		fmt.Printf("    API Server:    %s\n", cfg.API.Addr())
		fmt.Println()

		// API keys status
		fmt.Println("  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
