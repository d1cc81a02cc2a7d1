package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradegate/internal/executor"
	"github.com/seenimoa/tradegate/pkg/models"
	"github.com/seenimoa/tradegate/pkg/utils"
)

var launchNextSteps = []string{
	"Select the ticker to analyze",
	"Choose the analysis date",
	"Configure the analyst agents",
	"Set the research depth",
	"Start the multi-agent analysis",
}

var analysisNextSteps = []string{
	"Review the analysis results",
	"Read the agent recommendations",
	"Make an informed trading decision",
}

// LaunchAnalysisInterface starts the interactive analysis interface and
// reports its initialization output.
func (s *Service) LaunchAnalysisInterface(ctx context.Context) *models.LaunchResult {
	start := s.now()
	id := s.newID()
	mode := s.strategy.Mode()
	log := s.log.WithFields(logrus.Fields{"id": id, "mode": mode})

	s.publish(models.AnalysisEvent{Type: models.EventLaunchStatus, ID: id, Status: models.StatusRunning})
	out, err := s.strategy.Launch(ctx)

	res := &models.LaunchResult{ID: id, Mode: mode}
	if out != nil {
		res.CLIOutput = out.Output
	}
	switch {
	case err == nil:
		res.Status = models.StatusStarted
		res.Message = "TradingAgents CLI interface launched"
		res.CLIInfo = s.cliInfo()
		res.NextSteps = append([]string(nil), launchNextSteps...)
		log.Info("interface launched")
	case isTimeout(err):
		res.Status = models.StatusTimeout
		res.Message = "CLI launched but timed out during initialization"
		log.WithError(err).Warn("interface launch timed out")
	default:
		if beforeStart(err) {
			res.ID = ""
		}
		res.Status = models.StatusError
		res.Message = "error: " + err.Error()
		log.WithError(err).Error("interface launch failed")
	}
	res.DurationMS = utils.Since(start)

	s.publish(models.AnalysisEvent{Type: models.EventLaunchStatus, ID: res.ID, Status: res.Status, Message: res.Message})
	return res
}

func (s *Service) cliInfo() *models.CLIInfo {
	var apis []string
	if s.cfg.LLM.APIKey != "" {
		apis = append(apis, "DeepSeek")
	}
	if s.cfg.MarketData.FinnhubKey != "" {
		apis = append(apis, "FinnHub")
	}
	if apis == nil {
		apis = []string{}
	}
	return &models.CLIInfo{
		Command:          s.cfg.Executor.Interpreter + " -m cli.main",
		WorkingDirectory: s.cfg.Executor.WorkDir,
		Configuration: models.LaunchSettings{
			LLMModel:       s.cfg.LLM.Model,
			BackendURL:     s.cfg.LLM.BaseURL,
			APIsConfigured: apis,
		},
	}
}

// phaseTracker records the latest phase reported by a running analysis.
type phaseTracker struct {
	mu    sync.Mutex
	phase int
}

func (t *phaseTracker) set(n int) {
	t.mu.Lock()
	if n > t.phase {
		t.phase = n
	}
	t.mu.Unlock()
}

func (t *phaseTracker) get() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// RunAnalysis validates req and runs one analysis to a terminal status.
// The configuration echo always carries the request fields unchanged.
func (s *Service) RunAnalysis(ctx context.Context, req models.AnalysisRequest) *models.AnalysisResult {
	start := s.now()
	if err := s.validate.Struct(req); err != nil {
		s.log.WithError(err).Warn("analysis request rejected")
		res := models.ErrorResult("invalid request: " + err.Error())
		res.DurationMS = utils.Since(start)
		return res
	}

	analysts := append([]string{}, req.Analysts...)
	res := &models.AnalysisResult{
		ID:     s.newID(),
		Status: models.StatusPending,
		Mode:   s.strategy.Mode(),
		Configuration: &models.AnalysisConfiguration{
			Ticker:        req.Ticker,
			Date:          req.AnalysisDate,
			Analysts:      analysts,
			ResearchDepth: req.ResearchDepth,
			LLMModel:      s.cfg.LLM.Model,
		},
		Progress: models.NewProgress(0),
	}
	log := s.log.WithFields(logrus.Fields{"id": res.ID, "ticker": req.Ticker, "mode": res.Mode})
	s.publishStatus(res, req.Ticker)

	res.Status = models.StatusRunning
	s.publishStatus(res, req.Ticker)
	log.Info("analysis started")

	tracker := &phaseTracker{}
	out, err := s.strategy.Analyze(ctx, req, func(n int) {
		tracker.set(n)
		p := models.NewProgress(n)
		s.publish(models.AnalysisEvent{
			Type: models.EventAnalysisPhase, ID: res.ID, Ticker: req.Ticker,
			Status: models.StatusRunning, CurrentPhase: p.CurrentPhase, Completion: p.Completion,
		})
	})
	if out != nil {
		res.AnalysisOutput = out.Output
		res.ErrorOutput = strings.TrimSpace(out.Stderr)
	}

	switch {
	case err == nil:
		res.Complete(fmt.Sprintf("Analysis of %s completed", req.Ticker), res.AnalysisOutput)
		res.Recommendations = &models.Recommendations{
			SystemStatus:     "operational",
			AnalysisComplete: true,
			NextSteps:        append([]string(nil), analysisNextSteps...),
		}
		log.Info("analysis completed")
	case beforeStart(err):
		log.WithError(err).Error("analysis could not start")
		res = models.ErrorResult("error: " + err.Error())
	default:
		res.Progress = models.NewProgress(tracker.get())
		if isTimeout(err) {
			res.Fail(models.StatusTimeout, fmt.Sprintf("Analysis of %s timed out", req.Ticker))
			log.WithError(err).Warn("analysis timed out")
		} else {
			res.Fail(models.StatusError, "error: "+err.Error())
			log.WithError(err).Error("analysis failed")
		}
		res.Recommendations = &models.Recommendations{
			SystemStatus:     "degraded",
			AnalysisComplete: false,
			NextSteps:        []string{"Check the analysis framework installation", "Retry the analysis"},
		}
	}
	res.DurationMS = utils.Since(start)

	s.publishStatus(res, req.Ticker)
	return res
}

func (s *Service) publishStatus(res *models.AnalysisResult, ticker string) {
	ev := models.AnalysisEvent{
		Type: models.EventAnalysisStatus, ID: res.ID, Ticker: ticker,
		Status: res.Status, Message: res.Message,
	}
	if res.Progress != nil {
		ev.CurrentPhase = res.Progress.CurrentPhase
		ev.Completion = res.Progress.Completion
	}
	s.publish(ev)
}

func isTimeout(err error) bool {
	return errors.Is(err, executor.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// beforeStart reports failures that happened before any process ran.
func beforeStart(err error) bool {
	return errors.Is(err, executor.ErrCapacity) || errors.Is(err, executor.ErrSpawn) ||
		errors.Is(err, executor.ErrTemplate)
}
