// Package executor runs trading analyses, either by driving the external
// multi-agent framework as a subprocess or by synthesizing a deterministic
// result.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seenimoa/tradegate/internal/config"
	"github.com/seenimoa/tradegate/pkg/models"
)

// Errors returned by strategies.
var (
	ErrTimeout  = errors.New("executor: deadline exceeded")
	ErrSpawn    = errors.New("executor: failed to start process")
	ErrCapacity = errors.New("executor: capacity exhausted")
	ErrTemplate = errors.New("executor: script template")
)

// ExitError reports a process that ran and exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("executor: process exited with code %d", e.Code)
}

// PhaseFunc is called with the 0-based index of each phase as it starts.
type PhaseFunc func(phase int)

// Outcome is what a run produced, a partial result when an error is also
// returned.
type Outcome struct {
	Output   string
	Stderr   string
	Duration time.Duration
}

// Strategy executes analyses and launches the interactive interface.
type Strategy interface {
	Mode() models.Mode
	Launch(ctx context.Context) (*Outcome, error)
	Analyze(ctx context.Context, req models.AnalysisRequest, progress PhaseFunc) (*Outcome, error)
}

// Secrets are handed to the child process through its environment only.
type Secrets struct {
	APIKey     string
	BaseURL    string
	FinnhubKey string
}

// New returns the strategy selected by cfg.Executor.Mode.
func New(cfg *config.Config) (Strategy, error) {
	switch models.Mode(cfg.Executor.Mode) {
	case models.ModeSimulated:
		return NewSimulated(cfg.LLM.Model), nil
	case models.ModeReal:
		return NewProcess(cfg.Executor, cfg.LLM.Model, Secrets{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			FinnhubKey: cfg.MarketData.FinnhubKey,
		})
	default:
		return nil, fmt.Errorf("executor: unknown mode %q", cfg.Executor.Mode)
	}
}

func notify(progress PhaseFunc, phase int) {
	if progress != nil {
		progress(phase)
	}
}
