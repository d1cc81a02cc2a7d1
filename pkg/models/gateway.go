package models

import (
	"time"

	"github.com/google/uuid"
)

// ServiceStatus is the fixed readiness descriptor served by
// GET /api/trading/status.
type ServiceStatus struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Mode         Mode              `json:"mode"`
	Components   map[string]string `json:"components"`
	Dependencies string            `json:"dependencies"`
	APIs         map[string]string `json:"apis"`
}

// ConnectionTest is the result of a live chat-completion round trip.
type ConnectionTest struct {
	Status  string            `json:"status"` // "success" or "error"
	Message string            `json:"message"`
	Details ConnectionDetails `json:"details"`
}

// ConnectionDetails carries either the success measurements or the
// classified failure with a troubleshooting checklist.
type ConnectionDetails struct {
	Endpoint        string            `json:"endpoint"`
	Model           string            `json:"model,omitempty"`
	APIKeyStatus    string            `json:"api_key_status"`
	ResponseTest    string            `json:"response_test,omitempty"`
	Latency         string            `json:"latency,omitempty"`
	LatencyMS       int64             `json:"latency_ms,omitempty"`
	RealTest        bool              `json:"real_test"`
	TotalTokens     int               `json:"total_tokens,omitempty"`
	ErrorType       string            `json:"error_type,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	Troubleshooting map[string]string `json:"troubleshooting,omitempty"`
}

// Overall reachability verdicts.
const (
	ReachAll  = "all reachable"
	ReachSome = "partial"
	ReachNone = "none reachable"
)

// ServiceReach is the probe result for a single external host.
type ServiceReach struct {
	Status     string `json:"status"`
	Reachable  bool   `json:"reachable"`
	URL        string `json:"url"`
	Latency    string `json:"latency"`
	LatencyMS  int64  `json:"latency_ms,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Title      string `json:"title,omitempty"`
	Items      int    `json:"items,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NetworkReport aggregates all probes into one verdict.
type NetworkReport struct {
	Timestamp     time.Time               `json:"timestamp"`
	Services      map[string]ServiceReach `json:"services"`
	OverallStatus string                  `json:"overall_status"`
	Error         string                  `json:"error,omitempty"`
}

// CLIInfo describes the external interface a launch started.
type CLIInfo struct {
	Command          string         `json:"command"`
	WorkingDirectory string         `json:"working_directory"`
	Configuration    LaunchSettings `json:"configuration"`
}

// LaunchSettings echoes the model setup handed to the external process.
type LaunchSettings struct {
	LLMModel       string   `json:"llm_model"`
	BackendURL     string   `json:"backend_url"`
	APIsConfigured []string `json:"apis_configured"`
}

// LaunchResult is returned by POST /api/trading/launch-cli.
type LaunchResult struct {
	ID         string   `json:"id"`
	Status     Status   `json:"status"`
	Message    string   `json:"message"`
	Mode       Mode     `json:"mode,omitempty"`
	CLIOutput  string   `json:"cli_output,omitempty"`
	CLIInfo    *CLIInfo `json:"cli_info,omitempty"`
	NextSteps  []string `json:"next_steps,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// StatusCheck is a stored client health-check record.
type StatusCheck struct {
	ID         string    `json:"id"          badgerhold:"key"`
	ClientName string    `json:"client_name"`
	Timestamp  time.Time `json:"timestamp"   badgerholdIndex:"Timestamp"`
}

// NewStatusCheck stamps a new record for clientName.
func NewStatusCheck(clientName string, now time.Time) *StatusCheck {
	return &StatusCheck{ID: uuid.NewString(), ClientName: clientName, Timestamp: now.UTC()}
}

// StatusCheckCreate is the body of POST /api/status.
type StatusCheckCreate struct {
	ClientName string `json:"client_name" validate:"required,max=200"`
}

// Rate-limit probe outcomes.
const (
	AttemptOK          = "ok"
	AttemptRateLimited = "rate_limited"
	AttemptTimeout     = "timeout"
	AttemptError       = "error"
)

// RateLimitAttempt is one paced call made by the rate-limit probe.
type RateLimitAttempt struct {
	Attempt   int    `json:"attempt"`
	Outcome   string `json:"outcome"`
	Latency   string `json:"latency"`
	LatencyMS int64  `json:"latency_ms"`
	Tokens    int    `json:"tokens,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RateLimitReport summarizes a rate-limit probe run.
type RateLimitReport struct {
	Timestamp       time.Time          `json:"timestamp"`
	Attempts        []RateLimitAttempt `json:"attempts"`
	Counts          map[string]int     `json:"counts"`
	Recommendations []string           `json:"recommendations"`
}
