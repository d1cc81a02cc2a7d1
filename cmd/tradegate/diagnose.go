package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/tradegate/internal/gateway"
	"github.com/seenimoa/tradegate/pkg/models"
	"github.com/seenimoa/tradegate/pkg/utils"
)

// --- Analyze Command ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze [ticker]",
	Short: "Run one analysis and print the result as JSON",
	Long: `Run one analysis through the gateway without starting the server.
The ticker defaults to NVDA and is normalized (aliases, upper case).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.NewAnalysisRequest()
		if len(args) == 1 {
			req.Ticker = utils.NormalizeTicker(args[0])
		}
		if d, _ := cmd.Flags().GetString("date"); d != "" {
			req.AnalysisDate = d
		}
		if cmd.Flags().Changed("analysts") {
			a, _ := cmd.Flags().GetString("analysts")
			req.Analysts = utils.SplitList(a)
			if req.Analysts == nil {
				req.Analysts = []string{}
			}
		}
		req.ResearchDepth, _ = cmd.Flags().GetInt("depth")
		if m, _ := cmd.Flags().GetString("mode"); m != "" {
			cfg.Executor.Mode = m
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		var events gateway.EventSink
		if verbose, _ := cmd.Flags().GetBool("progress"); verbose {
			events = gateway.SinkFunc(func(ev models.AnalysisEvent) {
				if ev.Type == models.EventAnalysisPhase {
					fmt.Fprintf(os.Stderr, "  [%3d%%] %s\n", ev.Completion, ev.CurrentPhase)
				}
			})
		}
		svc, err := newService(cmd.Context(), events)
		if err != nil {
			return err
		}
		defer svc.Close()

		res := svc.RunAnalysis(cmd.Context(), req)
		if err := printJSON(res); err != nil {
			return err
		}
		if res.Status != models.StatusCompleted {
			return fmt.Errorf("analysis %s: %s", res.Status, res.Message)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("date", models.DefaultAnalysisDate, "analysis date")
	analyzeCmd.Flags().String("analysts", "", "comma-separated analyst teams (default: market,social,news,fundamentals)")
	analyzeCmd.Flags().Int("depth", models.DefaultResearchDepth, "research depth")
	analyzeCmd.Flags().String("mode", "", "execution mode override (real, simulated)")
	analyzeCmd.Flags().Bool("progress", false, "print phase progress to stderr")
}

// --- Launch Command ---

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch the interactive analysis interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		res := svc.LaunchAnalysisInterface(cmd.Context())
		if err := printJSON(res); err != nil {
			return err
		}
		if res.Status == models.StatusError {
			return fmt.Errorf("launch failed: %s", res.Message)
		}
		return nil
	},
}

// --- Diagnose Commands ---

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Check the LLM endpoint, network reachability and rate limits",
}

var diagnoseModelCmd = &cobra.Command{
	Use:   "model",
	Short: "Send one short completion to the configured model",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		quick, _ := cmd.Flags().GetBool("quick")
		var res models.ConnectionTest
		if quick {
			res = svc.TestModelConnectionQuick(cmd.Context())
		} else {
			res = svc.TestModelConnection(cmd.Context())
		}

		fmt.Printf("🔍 Model connection: %s (%s)\n", res.Details.Endpoint, cfg.LLM.Model)
		if res.Status == "success" {
			fmt.Printf("  ✅ %s\n", res.Message)
			fmt.Printf("     latency: %s, tokens: %d\n", res.Details.Latency, res.Details.TotalTokens)
			fmt.Printf("     reply:   %q\n", res.Details.ResponseTest)
			return nil
		}
		fmt.Printf("  ❌ %s\n", res.Message)
		fmt.Printf("     %s: %s\n", res.Details.ErrorType, res.Details.ErrorMessage)
		fmt.Println("  Troubleshooting:")
		keys := make([]string, 0, len(res.Details.Troubleshooting))
		for k := range res.Details.Troubleshooting {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("    - %s\n", res.Details.Troubleshooting[k])
		}
		return errors.New("model connection failed")
	},
}

var diagnoseNetworkCmd = &cobra.Command{
	Use:   "network",
	Short: "Probe every configured network target",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		report := svc.CheckNetworkStatus(cmd.Context())
		names := make([]string, 0, len(report.Services))
		for name := range report.Services {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Println("🌐 Network status")
		for _, name := range names {
			s := report.Services[name]
			mark := "❌"
			if s.Reachable {
				mark = "✅"
			}
			line := fmt.Sprintf("  %s %-12s %-12s %8s  %s", mark, name, s.Status, s.Latency, s.URL)
			if s.Error != "" {
				line += "  (" + s.Error + ")"
			}
			fmt.Println(line)
		}
		fmt.Printf("  overall: %s\n", report.OverallStatus)
		if report.OverallStatus == models.ReachNone {
			return errors.New("no target reachable")
		}
		return nil
	},
}

var diagnoseRateCmd = &cobra.Command{
	Use:   "rate-limits",
	Short: "Make paced tiny completions and tally rate-limit responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		interval, _ := cmd.Flags().GetDuration("interval")
		if count < 1 {
			return errors.New("--count must be at least 1")
		}

		svc, err := newService(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		fmt.Printf("⏱  %d requests, %v apart\n", count, interval)
		report := svc.ProbeRateLimits(cmd.Context(), count, interval)
		for _, a := range report.Attempts {
			line := fmt.Sprintf("  #%-2d %-12s %8s", a.Attempt, a.Outcome, a.Latency)
			if a.Error != "" {
				line += "  " + a.Error
			}
			fmt.Println(line)
		}
		fmt.Printf("  ok=%d rate_limited=%d timeout=%d error=%d\n",
			report.Counts[models.AttemptOK], report.Counts[models.AttemptRateLimited],
			report.Counts[models.AttemptTimeout], report.Counts[models.AttemptError])
		fmt.Println("  Recommendations:")
		for _, r := range report.Recommendations {
			fmt.Printf("    - %s\n", r)
		}
		return nil
	},
}

func init() {
	diagnoseModelCmd.Flags().Bool("quick", false, "use llm.quick_timeout")
	diagnoseRateCmd.Flags().Int("count", 5, "number of requests")
	diagnoseRateCmd.Flags().Duration("interval", 2*time.Second, "delay between requests")

	diagnoseCmd.AddCommand(diagnoseModelCmd)
	diagnoseCmd.AddCommand(diagnoseNetworkCmd)
	diagnoseCmd.AddCommand(diagnoseRateCmd)
}
