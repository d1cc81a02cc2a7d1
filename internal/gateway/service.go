// Package gateway implements the analysis gateway operations: service
// status, model connectivity, network reachability, interface launch and
// analysis runs. Every operation absorbs failures into a result envelope.
package gateway

import (
	"errors"
	"maps"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradegate/internal/config"
	"github.com/seenimoa/tradegate/internal/executor"
	"github.com/seenimoa/tradegate/internal/infra"
	"github.com/seenimoa/tradegate/internal/llm"
	"github.com/seenimoa/tradegate/internal/probe"
	"github.com/seenimoa/tradegate/pkg/models"
)

// Version is reported by ServiceStatus.
const Version = "v1.0.0"

// EventSink receives lifecycle events. Implementations must be safe for
// concurrent use.
type EventSink interface {
	Publish(ev models.AnalysisEvent)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(models.AnalysisEvent)

func (f SinkFunc) Publish(ev models.AnalysisEvent) { f(ev) }

type nopSink struct{}

func (nopSink) Publish(models.AnalysisEvent) {}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Config   *config.Config
	LLM      llm.Provider // nil when the provider could not be built
	LLMErr   error        // why LLM is nil
	Prober   *probe.Prober
	Strategy executor.Strategy
	Events   EventSink
	Log      *logrus.Logger
}

// Service is the analysis gateway.
type Service struct {
	cfg      *config.Config
	llm      llm.Provider
	llmErr   error
	prober   *probe.Prober
	strategy executor.Strategy
	events   EventSink
	log      *logrus.Logger
	validate *validator.Validate
	network  *infra.Cache[models.NetworkReport]
	status   models.ServiceStatus

	now   func() time.Time
	newID func() string
}

// New wires a Service. Config and Strategy are required.
func New(d Deps) (*Service, error) {
	if d.Config == nil {
		return nil, errors.New("gateway: config is required")
	}
	if d.Strategy == nil {
		return nil, errors.New("gateway: execution strategy is required")
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Events == nil {
		d.Events = nopSink{}
	}
	if d.Prober == nil {
		d.Prober = probe.New(d.Config.Network.ProbeTimeout, d.Log)
	}
	if d.LLM == nil && d.LLMErr == nil {
		d.LLMErr = llm.ErrNoAPIKey
	}

	s := &Service{
		cfg:      d.Config,
		llm:      d.LLM,
		llmErr:   d.LLMErr,
		prober:   d.Prober,
		strategy: d.Strategy,
		events:   d.Events,
		log:      d.Log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		network:  infra.NewCache[models.NetworkReport](d.Config.Network.CacheTTL),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	s.status = buildStatus(d.Config, d.Strategy.Mode())
	return s, nil
}

func configured(v string) string {
	if v == "" {
		return "missing"
	}
	return "configured"
}

func buildStatus(cfg *config.Config, mode models.Mode) models.ServiceStatus {
	return models.ServiceStatus{
		Status:  "online",
		Version: Version,
		Mode:    mode,
		Components: map[string]string{
			"analyst_team":         "ready",
			"research_team":        "ready",
			"trading_team":         "ready",
			"risk_management":      "ready",
			"portfolio_management": "ready",
		},
		Dependencies: "installed",
		APIs: map[string]string{
			"deepseek": configured(cfg.LLM.APIKey),
			"finnhub":  configured(cfg.MarketData.FinnhubKey),
		},
	}
}

// Close releases pooled connections.
func (s *Service) Close() {
	s.prober.Close()
}

// ServiceStatus returns the fixed readiness descriptor. It performs no I/O
// and is identical across calls.
func (s *Service) ServiceStatus() models.ServiceStatus {
	st := s.status
	st.Components = maps.Clone(s.status.Components)
	st.APIs = maps.Clone(s.status.APIs)
	return st
}

// Mode reports how analyses are executed.
func (s *Service) Mode() models.Mode {
	return s.strategy.Mode()
}

func (s *Service) publish(ev models.AnalysisEvent) {
	ev.Timestamp = s.now().UTC()
	s.events.Publish(ev)
}
