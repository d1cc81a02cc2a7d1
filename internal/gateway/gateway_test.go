package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/seenimoa/tradegate/internal/config"
	"github.com/seenimoa/tradegate/internal/executor"
	"github.com/seenimoa/tradegate/internal/llm"
	"github.com/seenimoa/tradegate/internal/logger"
	"github.com/seenimoa/tradegate/pkg/models"
)

// ── Fakes ──

type fakeLLM struct {
	chat func(ctx context.Context, msgs []llm.Message, opts *llm.ChatOptions) (*llm.Response, error)
}

func (f *fakeLLM) Name() string                   { return "fake" }
func (f *fakeLLM) Ping(ctx context.Context) error { return nil }
func (f *fakeLLM) Chat(ctx context.Context, msgs []llm.Message, opts *llm.ChatOptions) (*llm.Response, error) {
	return f.chat(ctx, msgs, opts)
}

type fakeStrategy struct {
	mode    models.Mode
	launch  func(ctx context.Context) (*executor.Outcome, error)
	analyze func(ctx context.Context, req models.AnalysisRequest, progress executor.PhaseFunc) (*executor.Outcome, error)
}

func (f *fakeStrategy) Mode() models.Mode { return f.mode }
func (f *fakeStrategy) Launch(ctx context.Context) (*executor.Outcome, error) {
	return f.launch(ctx)
}
func (f *fakeStrategy) Analyze(ctx context.Context, req models.AnalysisRequest, progress executor.PhaseFunc) (*executor.Outcome, error) {
	return f.analyze(ctx, req, progress)
}

type recorder struct {
	mu     sync.Mutex
	events []models.AnalysisEvent
}

func (r *recorder) Publish(ev models.AnalysisEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) statuses() []models.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Status
	for _, ev := range r.events {
		if ev.Type == models.EventAnalysisStatus {
			out = append(out, ev.Status)
		}
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.LLM.APIKey = "sk-test-key-000000"
	cfg.LLM.TestTimeout = 2 * time.Second
	cfg.LLM.QuickTimeout = 100 * time.Millisecond
	cfg.Network.ProbeTimeout = 2 * time.Second
	return cfg
}

func newService(t *testing.T, cfg *config.Config, provider llm.Provider, strategy executor.Strategy, sink EventSink) *Service {
	t.Helper()
	if strategy == nil {
		strategy = executor.NewSimulated(cfg.LLM.Model)
	}
	s, err := New(Deps{Config: cfg, LLM: provider, Strategy: strategy, Events: sink, Log: logger.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New without config should fail")
	}
	if _, err := New(Deps{Config: config.Default()}); err == nil {
		t.Error("New without strategy should fail")
	}
}

// ── ServiceStatus ──

func TestServiceStatusIsStable(t *testing.T) {
	s := newService(t, testConfig(), nil, nil, nil)

	first, _ := json.Marshal(s.ServiceStatus())
	st := s.ServiceStatus()
	st.Components["analyst_team"] = "tampered"
	second, _ := json.Marshal(s.ServiceStatus())

	if string(first) != string(second) {
		t.Fatalf("status changed between calls:\n%s\n%s", first, second)
	}

	st = s.ServiceStatus()
	if st.Version != Version || st.Mode != models.ModeSimulated || st.Status != "online" {
		t.Errorf("unexpected header: %+v", st)
	}
	if len(st.Components) != 5 {
		t.Errorf("components: got %d", len(st.Components))
	}
	want := map[string]string{"deepseek": "configured", "finnhub": "missing"}
	if diff := cmp.Diff(want, st.APIs); diff != "" {
		t.Errorf("apis mismatch (-want +got):\n%s", diff)
	}
}

// ── TestModelConnection ──

func TestModelConnectionSuccess(t *testing.T) {
	provider := &fakeLLM{chat: func(ctx context.Context, msgs []llm.Message, opts *llm.ChatOptions) (*llm.Response, error) {
		if opts == nil || opts.MaxTokens != connectionMaxTokens {
			t.Errorf("max tokens: got %+v", opts)
		}
		if len(msgs) != 1 || msgs[0].Content != connectionPrompt {
			t.Errorf("prompt: got %+v", msgs)
		}
		return &llm.Response{Content: "connected", Usage: llm.Usage{TotalTokens: 7}}, nil
	}}
	s := newService(t, testConfig(), provider, nil, nil)

	got := s.TestModelConnection(context.Background())
	if got.Status != "success" {
		t.Fatalf("status: got %q (%s)", got.Status, got.Message)
	}
	d := got.Details
	if !d.RealTest || d.ResponseTest != "connected" || d.TotalTokens != 7 || d.Model != "deepseek-chat" {
		t.Errorf("details: %+v", d)
	}
	if !strings.HasSuffix(d.Latency, "ms") {
		t.Errorf("latency: got %q", d.Latency)
	}
	if d.Troubleshooting != nil {
		t.Error("success should not carry troubleshooting")
	}
}

func TestModelConnectionForcedNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := testConfig()
	cfg.LLM.BaseURL = url
	cfg.LLM.MaxRetries = 0
	cfg.LLM.RateLimit = 0
	provider, err := llm.New(context.Background(), cfg.LLM)
	if err != nil {
		t.Fatal(err)
	}
	s := newService(t, cfg, provider, nil, nil)

	got := s.TestModelConnection(context.Background())
	if got.Status != "error" {
		t.Fatalf("status: got %q", got.Status)
	}
	if !strings.Contains(got.Message, "network") {
		t.Errorf("message should name the network category: %q", got.Message)
	}
	if got.Details.ErrorMessage == "" || got.Details.ErrorType == "" {
		t.Errorf("details: %+v", got.Details)
	}
	for _, k := range []string{"check_network", "check_api_key", "check_endpoint", "check_quota"} {
		if got.Details.Troubleshooting[k] == "" {
			t.Errorf("troubleshooting missing %q", k)
		}
	}
}

func TestModelConnectionCategories(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth", &llm.APIError{StatusCode: 401, Message: "Authentication Fails"}, "authentication"},
		{"rate", &llm.APIError{StatusCode: 429}, "rate limit"},
		{"opaque", fmt.Errorf("weird failure"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeLLM{chat: func(context.Context, []llm.Message, *llm.ChatOptions) (*llm.Response, error) {
				return nil, tt.err
			}}
			got := newService(t, testConfig(), provider, nil, nil).TestModelConnection(context.Background())
			if got.Status != "error" || !strings.Contains(got.Message, tt.want) {
				t.Errorf("got %q / %q, want message containing %q", got.Status, got.Message, tt.want)
			}
		})
	}
}

func TestModelConnectionQuickTimesOut(t *testing.T) {
	provider := &fakeLLM{chat: func(ctx context.Context, _ []llm.Message, _ *llm.ChatOptions) (*llm.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	s := newService(t, testConfig(), provider, nil, nil)

	start := time.Now()
	got := s.TestModelConnectionQuick(context.Background())
	if time.Since(start) > time.Second {
		t.Errorf("quick test should honour llm.quick_timeout")
	}
	if got.Status != "error" || !strings.Contains(got.Message, "timeout") {
		t.Errorf("got %q / %q", got.Status, got.Message)
	}
}

func TestModelConnectionWithoutProvider(t *testing.T) {
	got := newService(t, testConfig(), nil, nil, nil).TestModelConnection(context.Background())
	if got.Status != "error" || !strings.Contains(got.Message, "authentication") {
		t.Errorf("got %q / %q", got.Status, got.Message)
	}
	if got.Details.APIKeyStatus != "missing" {
		t.Errorf("api_key_status: got %q", got.Details.APIKeyStatus)
	}
}

// ── CheckNetworkStatus ──

func TestCheckNetworkStatus(t *testing.T) {
	var hits atomic.Int32
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	closed := httptest.NewServer(http.NotFoundHandler())
	down := closed.URL
	closed.Close()

	tests := []struct {
		name    string
		targets []config.ProbeTarget
		want    string
	}{
		{"all", []config.ProbeTarget{{Name: "a", URL: up.URL}, {Name: "b", URL: up.URL + "/x"}}, models.ReachAll},
		{"partial", []config.ProbeTarget{{Name: "a", URL: up.URL}, {Name: "b", URL: down}}, models.ReachSome},
		{"none", []config.ProbeTarget{{Name: "a", URL: broken.URL}, {Name: "b", URL: down}}, models.ReachNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Network.Targets = tt.targets
			cfg.Network.CacheTTL = 0
			report := newService(t, cfg, nil, nil, nil).CheckNetworkStatus(context.Background())
			if report.OverallStatus != tt.want {
				t.Errorf("overall: got %q, want %q", report.OverallStatus, tt.want)
			}
			if len(report.Services) != 2 {
				t.Errorf("services: got %d", len(report.Services))
			}
		})
	}

	t.Run("cached", func(t *testing.T) {
		cfg := testConfig()
		cfg.Network.Targets = []config.ProbeTarget{{Name: "a", URL: up.URL}}
		cfg.Network.CacheTTL = time.Minute
		s := newService(t, cfg, nil, nil, nil)

		before := hits.Load()
		first := s.CheckNetworkStatus(context.Background())
		second := s.CheckNetworkStatus(context.Background())
		if hits.Load()-before != 1 {
			t.Errorf("probe hits: got %d, want 1", hits.Load()-before)
		}
		if !first.Timestamp.Equal(second.Timestamp) {
			t.Error("second call should be served from cache")
		}
	})

	t.Run("cancelled caller", func(t *testing.T) {
		cfg := testConfig()
		cfg.Network.Targets = []config.ProbeTarget{{Name: "a", URL: up.URL}, {Name: "b", URL: up.URL + "/y"}}
		cfg.Network.CacheTTL = time.Minute
		s := newService(t, cfg, nil, nil, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		first := s.CheckNetworkStatus(ctx)
		second := s.CheckNetworkStatus(context.Background())
		if first.OverallStatus != models.ReachAll || second.OverallStatus != models.ReachAll {
			t.Errorf("overall: got %q then %q, want %q", first.OverallStatus, second.OverallStatus, models.ReachAll)
		}
	})
}

// ── RunAnalysis ──

func TestRunAnalysisSimulatedScenario(t *testing.T) {
	rec := &recorder{}
	s := newService(t, testConfig(), nil, nil, rec)

	req := models.AnalysisRequest{Ticker: "NVDA", AnalysisDate: "2024-05-10", Analysts: []string{"market"}, ResearchDepth: 1}
	res := s.RunAnalysis(context.Background(), req)

	if res.Status != models.StatusCompleted || res.Progress.Completion != 100 {
		t.Fatalf("got %q / %d", res.Status, res.Progress.Completion)
	}
	if res.ID == "" || res.Mode != models.ModeSimulated {
		t.Errorf("id %q mode %q", res.ID, res.Mode)
	}
	if !strings.Contains(res.AnalysisOutput, "NVDA") {
		t.Error("output should mention the ticker")
	}
	if len(res.Progress.Phases) != 5 {
		t.Errorf("phases: got %d", len(res.Progress.Phases))
	}
	want := &models.AnalysisConfiguration{
		Ticker: "NVDA", Date: "2024-05-10", Analysts: []string{"market"}, ResearchDepth: 1, LLMModel: "deepseek-chat",
	}
	if diff := cmp.Diff(want, res.Configuration); diff != "" {
		t.Errorf("configuration mismatch (-want +got):\n%s", diff)
	}
	if res.Recommendations == nil || !res.Recommendations.AnalysisComplete {
		t.Errorf("recommendations: %+v", res.Recommendations)
	}

	wantStatuses := []models.Status{models.StatusPending, models.StatusRunning, models.StatusCompleted}
	if diff := cmp.Diff(wantStatuses, rec.statuses()); diff != "" {
		t.Errorf("status events mismatch (-want +got):\n%s", diff)
	}
	phaseEvents := 0
	for _, ev := range rec.events {
		if ev.Type == models.EventAnalysisPhase {
			phaseEvents++
			if ev.Completion >= 100 {
				t.Errorf("phase event reached 100: %+v", ev)
			}
		}
	}
	if phaseEvents != 5 {
		t.Errorf("phase events: got %d, want 5", phaseEvents)
	}
}

func TestRunAnalysisSimulatedAlwaysCompletes(t *testing.T) {
	s := newService(t, testConfig(), nil, nil, nil)
	tickers := []string{"NVDA", "aapl", "BRK.B", "^GSPC", "RELIANCE.NS", "x"}
	analysts := [][]string{nil, {}, {"news"}, {"fundamentals", "market", "social"}}

	for _, ticker := range tickers {
		for _, list := range analysts {
			for depth := 1; depth <= 3; depth++ {
				req := models.AnalysisRequest{Ticker: ticker, AnalysisDate: "2025-01-02", Analysts: list, ResearchDepth: depth}
				res := s.RunAnalysis(context.Background(), req)
				if res.Status != models.StatusCompleted || res.Progress.Completion != 100 {
					t.Fatalf("%+v: got %q / %+v", req, res.Status, res.Progress)
				}
				if res.Configuration.Ticker != ticker {
					t.Errorf("ticker echo: got %q, want %q", res.Configuration.Ticker, ticker)
				}
				if res.Configuration.Analysts == nil || len(res.Configuration.Analysts) != len(list) {
					t.Errorf("analysts echo: got %v, want %v", res.Configuration.Analysts, list)
				}
				for i := range list {
					if res.Configuration.Analysts[i] != list[i] {
						t.Errorf("analysts order: got %v, want %v", res.Configuration.Analysts, list)
					}
				}
			}
		}
	}
}

func TestRunAnalysisRejectsInvalid(t *testing.T) {
	s := newService(t, testConfig(), nil, nil, nil)
	tests := []models.AnalysisRequest{
		{Ticker: "", AnalysisDate: "2024-05-10", ResearchDepth: 1},
		{Ticker: "NVDA", AnalysisDate: "", ResearchDepth: 1},
		{Ticker: "NVDA", AnalysisDate: "2024-05-10", ResearchDepth: 0},
		{Ticker: strings.Repeat("N", 21), AnalysisDate: "2024-05-10", ResearchDepth: 1},
		{Ticker: "NVDA", AnalysisDate: "2024-05-10", Analysts: []string{""}, ResearchDepth: 1},
	}
	for _, req := range tests {
		res := s.RunAnalysis(context.Background(), req)
		if res.Status != models.StatusError || res.ID != "" {
			t.Errorf("%+v: got %q id %q", req, res.Status, res.ID)
		}
		if !strings.Contains(res.Message, "invalid request") {
			t.Errorf("message: %q", res.Message)
		}
	}
}

func TestRunAnalysisStrategyFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus models.Status
		wantID     bool
		wantMsg    string
	}{
		{"timeout", fmt.Errorf("%w after 5m", executor.ErrTimeout), models.StatusTimeout, true, "timed out"},
		{"exit", &executor.ExitError{Code: 2, Stderr: "Traceback"}, models.StatusError, true, "code 2"},
		{"capacity", fmt.Errorf("%w: 4 runs in progress", executor.ErrCapacity), models.StatusError, false, "capacity"},
		{"spawn", fmt.Errorf("%w: no python", executor.ErrSpawn), models.StatusError, false, "failed to start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := &fakeStrategy{mode: models.ModeReal, analyze: func(ctx context.Context, req models.AnalysisRequest, progress executor.PhaseFunc) (*executor.Outcome, error) {
				progress(0)
				progress(2)
				return &executor.Outcome{Output: "partial", Stderr: "Traceback\n"}, tt.err
			}}
			res := newService(t, testConfig(), nil, strategy, nil).RunAnalysis(context.Background(), models.NewAnalysisRequest())

			if res.Status != tt.wantStatus {
				t.Fatalf("status: got %q, want %q", res.Status, tt.wantStatus)
			}
			if (res.ID != "") != tt.wantID {
				t.Errorf("id presence: got %q", res.ID)
			}
			if !strings.Contains(res.Message, tt.wantMsg) {
				t.Errorf("message %q should contain %q", res.Message, tt.wantMsg)
			}
			if res.Progress != nil && res.Progress.Completion >= 100 {
				t.Errorf("failed run reported completion %d", res.Progress.Completion)
			}
			if tt.wantID && (res.Progress.CurrentPhase != models.Phases[2] || res.ErrorOutput != "Traceback") {
				t.Errorf("progress %+v error_output %q", res.Progress, res.ErrorOutput)
			}
		})
	}
}

// ── LaunchAnalysisInterface ──

func TestLaunchSimulated(t *testing.T) {
	cfg := testConfig()
	cfg.MarketData.FinnhubKey = "fh"
	rec := &recorder{}
	res := newService(t, cfg, nil, nil, rec).LaunchAnalysisInterface(context.Background())

	if res.Status != models.StatusStarted || res.ID == "" || res.CLIOutput != "" {
		t.Fatalf("got %+v", res)
	}
	if res.CLIInfo == nil || res.CLIInfo.WorkingDirectory != cfg.Executor.WorkDir {
		t.Fatalf("cli_info: %+v", res.CLIInfo)
	}
	if diff := cmp.Diff([]string{"DeepSeek", "FinnHub"}, res.CLIInfo.Configuration.APIsConfigured); diff != "" {
		t.Errorf("apis mismatch (-want +got):\n%s", diff)
	}
	if len(res.NextSteps) != 5 {
		t.Errorf("next steps: %v", res.NextSteps)
	}
	if len(rec.events) != 2 || rec.events[1].Status != models.StatusStarted {
		t.Errorf("events: %+v", rec.events)
	}
}

func TestLaunchTimeout(t *testing.T) {
	strategy := &fakeStrategy{mode: models.ModeReal, launch: func(ctx context.Context) (*executor.Outcome, error) {
		return &executor.Outcome{Output: "booting"}, fmt.Errorf("%w after 10s", executor.ErrTimeout)
	}}
	res := newService(t, testConfig(), nil, strategy, nil).LaunchAnalysisInterface(context.Background())
	if res.Status != models.StatusTimeout || res.ID == "" || res.CLIOutput != "booting" {
		t.Errorf("got %+v", res)
	}
}

func TestLaunchSpawnError(t *testing.T) {
	strategy := &fakeStrategy{mode: models.ModeReal, launch: func(ctx context.Context) (*executor.Outcome, error) {
		return nil, fmt.Errorf("%w: exec: not found", executor.ErrSpawn)
	}}
	res := newService(t, testConfig(), nil, strategy, nil).LaunchAnalysisInterface(context.Background())
	if res.Status != models.StatusError || res.ID != "" || !strings.HasPrefix(res.Message, "error: ") {
		t.Errorf("got %+v", res)
	}
}

// ── ProbeRateLimits ──

func TestProbeRateLimits(t *testing.T) {
	var n atomic.Int32
	provider := &fakeLLM{chat: func(ctx context.Context, msgs []llm.Message, opts *llm.ChatOptions) (*llm.Response, error) {
		switch n.Add(1) {
		case 2:
			return nil, &llm.APIError{StatusCode: 429, Message: "Too many requests"}
		case 3:
			return nil, context.DeadlineExceeded
		case 4:
			return nil, fmt.Errorf("boom")
		}
		return &llm.Response{Usage: llm.Usage{TotalTokens: 3}}, nil
	}}
	s := newService(t, testConfig(), provider, nil, nil)

	report := s.ProbeRateLimits(context.Background(), 5, time.Millisecond)
	want := map[string]int{
		models.AttemptOK: 2, models.AttemptRateLimited: 1, models.AttemptTimeout: 1, models.AttemptError: 1,
	}
	if diff := cmp.Diff(want, report.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	if len(report.Attempts) != 5 || report.Attempts[0].Tokens != 3 {
		t.Errorf("attempts: %+v", report.Attempts)
	}
	if len(report.Recommendations) != 3 {
		t.Errorf("recommendations: %v", report.Recommendations)
	}
}
