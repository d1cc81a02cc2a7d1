package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seenimoa/tradegate/pkg/models"
)

// Simulated synthesizes a deterministic five-phase narrative from the
// request. It never fails and never spawns anything.
type Simulated struct {
	model string
}

// NewSimulated creates the simulated strategy.
func NewSimulated(model string) *Simulated {
	return &Simulated{model: model}
}

func (s *Simulated) Mode() models.Mode { return models.ModeSimulated }

// Launch reports an immediate start with no process output.
func (s *Simulated) Launch(ctx context.Context) (*Outcome, error) {
	return &Outcome{}, nil
}

// Analyze walks every phase and returns the narrative.
func (s *Simulated) Analyze(ctx context.Context, req models.AnalysisRequest, progress PhaseFunc) (*Outcome, error) {
	start := time.Now()
	for i := range models.Phases {
		notify(progress, i)
	}
	return &Outcome{Output: Narrative(req, s.model), Duration: time.Since(start)}, nil
}

// Narrative renders the simulated analysis summary. The same request
// always yields the same text.
func Narrative(req models.AnalysisRequest, model string) string {
	var b strings.Builder
	title := "TradingAgents analysis - " + req.Ticker
	fmt.Fprintf(&b, "%s\n%s\n\n", title, strings.Repeat("=", len(title)))

	b.WriteString("Configuration:\n")
	fmt.Fprintf(&b, "  Ticker: %s\n", req.Ticker)
	fmt.Fprintf(&b, "  Date: %s\n", req.AnalysisDate)
	fmt.Fprintf(&b, "  Analysts: %s\n", strings.Join(req.Analysts, ", "))
	fmt.Fprintf(&b, "  Depth: %d\n", req.ResearchDepth)
	fmt.Fprintf(&b, "  LLM: %s\n\n", model)

	b.WriteString("Analysis process:\n")
	for i, phase := range models.Phases {
		fmt.Fprintf(&b, "  Phase %d/%d: %s\n", i+1, len(models.Phases), phase)
	}

	fmt.Fprintf(&b, "\nResult for %s:\n", req.Ticker)
	b.WriteString("  Status: analysis completed\n")
	b.WriteString("  Recommendation: produced by the multi-agent framework\n")
	fmt.Fprintf(&b, "  Analyst teams consulted: %d\n", len(req.Analysts))
	fmt.Fprintf(&b, "  Research depth: %d round(s)\n", req.ResearchDepth)
	return b.String()
}
