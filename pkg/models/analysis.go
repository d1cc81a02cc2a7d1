// Package models defines the request, result and event types shared by
// the gateway, the HTTP API and the CLI.
package models

import "time"

// Default request values used when a field is absent from the request body.
const (
	DefaultTicker        = "NVDA"
	DefaultAnalysisDate  = "2024-05-10"
	DefaultResearchDepth = 1
)

// DefaultAnalysts is the analyst-team list used when the request omits it.
var DefaultAnalysts = []string{"market", "social", "news", "fundamentals"}

// Status is the lifecycle state of an analysis or launch.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStarted   Status = "started"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusTimeout   Status = "timeout"
	StatusError     Status = "error"
)

// Terminal reports whether no further transition can happen from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusTimeout, StatusError:
		return true
	}
	return false
}

// Mode selects how analyses are executed.
type Mode string

const (
	ModeReal      Mode = "real"      // spawn and wait on an external process
	ModeSimulated Mode = "simulated" // synthesize a deterministic result
)

// Phases is the fixed, ordered five-phase workflow.
var Phases = []string{
	"Analyst Team - market data collection",
	"Research Team - bull vs bear debate",
	"Trading Team - strategy formulation",
	"Risk Management - risk assessment",
	"Portfolio Management - final decision",
}

// PhaseDone is reported as current_phase once every phase has finished.
const PhaseDone = "Analysis complete"

// AnalysisRequest is the body of POST /api/trading/analyze.
type AnalysisRequest struct {
	Ticker        string   `json:"ticker"         validate:"required,max=20,printascii"`
	AnalysisDate  string   `json:"analysis_date"  validate:"required,max=32"`
	Analysts      []string `json:"analysts"       validate:"dive,required,max=32,printascii"`
	ResearchDepth int      `json:"research_depth" validate:"min=1"`
}

// NewAnalysisRequest returns a request populated with the defaults.
// Decoding JSON on top of it leaves absent fields at their default.
func NewAnalysisRequest() AnalysisRequest {
	return AnalysisRequest{
		Ticker:        DefaultTicker,
		AnalysisDate:  DefaultAnalysisDate,
		Analysts:      append([]string(nil), DefaultAnalysts...),
		ResearchDepth: DefaultResearchDepth,
	}
}

// AnalysisConfiguration echoes the request back with the model in use.
type AnalysisConfiguration struct {
	Ticker        string   `json:"ticker"`
	Date          string   `json:"date"`
	Analysts      []string `json:"analysts"`
	ResearchDepth int      `json:"research_depth"`
	LLMModel      string   `json:"llm_model"`
}

// Progress describes where an analysis stands in the five-phase workflow.
type Progress struct {
	CurrentPhase string   `json:"current_phase"`
	Phases       []string `json:"phases"`
	Completion   int      `json:"completion"` // 0-100
}

// Recommendations carries follow-up hints for the caller.
type Recommendations struct {
	SystemStatus     string   `json:"system_status"`
	AnalysisComplete bool     `json:"analysis_complete"`
	NextSteps        []string `json:"next_steps"`
}

// AnalysisResult is the envelope returned for every analysis request.
type AnalysisResult struct {
	ID              string                 `json:"id"`
	Status          Status                 `json:"status"`
	Message         string                 `json:"message"`
	Mode            Mode                   `json:"mode,omitempty"`
	Configuration   *AnalysisConfiguration `json:"configuration,omitempty"`
	Progress        *Progress              `json:"progress,omitempty"`
	AnalysisOutput  string                 `json:"analysis_output,omitempty"`
	ErrorOutput     string                 `json:"error_output,omitempty"`
	Recommendations *Recommendations       `json:"recommendations,omitempty"`
	DurationMS      int64                  `json:"duration_ms"`
}

// NewProgress returns progress for the given phase index (0-based) with
// the matching proportional completion, capped below 100. Completion 100
// is only reachable through CompletedProgress.
func NewProgress(phase int) *Progress {
	if phase < 0 {
		phase = 0
	}
	if phase >= len(Phases) {
		phase = len(Phases) - 1
	}
	return &Progress{
		CurrentPhase: Phases[phase],
		Phases:       append([]string(nil), Phases...),
		Completion:   phase * 100 / len(Phases),
	}
}

// CompletedProgress returns progress for a finished workflow.
func CompletedProgress() *Progress {
	return &Progress{
		CurrentPhase: PhaseDone,
		Phases:       append([]string(nil), Phases...),
		Completion:   100,
	}
}

// Complete marks r as completed and sets full progress.
func (r *AnalysisResult) Complete(msg, output string) {
	r.Status = StatusCompleted
	r.Message = msg
	r.AnalysisOutput = output
	r.Progress = CompletedProgress()
}

// Fail moves r into a non-completed terminal status. Progress, if any,
// is kept but never reports 100.
func (r *AnalysisResult) Fail(status Status, msg string) {
	if status == StatusCompleted || !status.Terminal() {
		status = StatusError
	}
	r.Status = status
	r.Message = msg
	if r.Progress != nil && r.Progress.Completion >= 100 {
		r.Progress = NewProgress(len(Phases) - 1)
	}
}

// ErrorResult builds an error envelope for failures that happen before
// an analysis id could be assigned.
func ErrorResult(msg string) *AnalysisResult {
	return &AnalysisResult{Status: StatusError, Message: msg}
}

// AnalysisEvent is a progress notification published while an analysis
// or launch moves through its lifecycle.
type AnalysisEvent struct {
	Type         string    `json:"type"`
	ID           string    `json:"id"`
	Ticker       string    `json:"ticker,omitempty"`
	Status       Status    `json:"status"`
	CurrentPhase string    `json:"current_phase,omitempty"`
	Completion   int       `json:"completion"`
	Message      string    `json:"message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Event types.
const (
	EventAnalysisStatus = "analysis_status"
	EventAnalysisPhase  = "analysis_phase"
	EventLaunchStatus   = "launch_status"
)
