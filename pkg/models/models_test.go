package models

import (
	"encoding/json"
	"testing"
	"time"
)

// ── Progress Tests ──

func TestNewProgressStaysBelowComplete(t *testing.T) {
	for phase := -1; phase <= len(Phases)+1; phase++ {
		p := NewProgress(phase)
		if p.Completion >= 100 {
			t.Errorf("NewProgress(%d): completion %d", phase, p.Completion)
		}
		if len(p.Phases) != 5 {
			t.Errorf("NewProgress(%d): %d phases", phase, len(p.Phases))
		}
	}
	if got := NewProgress(2).CurrentPhase; got != Phases[2] {
		t.Errorf("CurrentPhase: got %q, want %q", got, Phases[2])
	}
	if got := NewProgress(4).Completion; got != 80 {
		t.Errorf("Completion(4): got %d, want 80", got)
	}
}

func TestCompletionMatchesStatus(t *testing.T) {
	tests := []struct {
		name  string
		apply func(r *AnalysisResult)
		want  Status
	}{
		{"complete", func(r *AnalysisResult) { r.Complete("done", "out") }, StatusCompleted},
		{"timeout", func(r *AnalysisResult) { r.Fail(StatusTimeout, "slow") }, StatusTimeout},
		{"fail as completed", func(r *AnalysisResult) { r.Fail(StatusCompleted, "bogus") }, StatusError},
		{"fail as running", func(r *AnalysisResult) { r.Fail(StatusRunning, "bogus") }, StatusError},
		{"complete then fail", func(r *AnalysisResult) {
			r.Complete("done", "out")
			r.Fail(StatusError, "late failure")
		}, StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &AnalysisResult{Status: StatusRunning, Progress: NewProgress(1)}
			tt.apply(r)
			if r.Status != tt.want {
				t.Errorf("Status: got %q, want %q", r.Status, tt.want)
			}
			if (r.Progress.Completion == 100) != (r.Status == StatusCompleted) {
				t.Errorf("completion %d with status %q", r.Progress.Completion, r.Status)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusPending: false, StatusStarted: false, StatusRunning: false,
		StatusCompleted: true, StatusTimeout: true, StatusError: true,
	} {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal(): got %v, want %v", s, got, want)
		}
	}
}

// ── Request Tests ──

func TestNewAnalysisRequestDefaults(t *testing.T) {
	a := NewAnalysisRequest()
	a.Analysts[0] = "changed"
	b := NewAnalysisRequest()
	if b.Analysts[0] != "market" || DefaultAnalysts[0] != "market" {
		t.Error("default analysts are shared between requests")
	}
	if b.Ticker != "NVDA" || b.AnalysisDate != "2024-05-10" || b.ResearchDepth != 1 {
		t.Errorf("defaults: got %+v", b)
	}
}

func TestAnalysisRequestDecodeOverDefaults(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		analysts int
		ticker   string
	}{
		{"absent analysts", `{"ticker":"AAPL"}`, 4, "AAPL"},
		{"empty analysts", `{"analysts":[]}`, 0, "NVDA"},
		{"custom analysts", `{"analysts":["news","market"]}`, 2, "NVDA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewAnalysisRequest()
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatal(err)
			}
			if len(req.Analysts) != tt.analysts || req.Ticker != tt.ticker {
				t.Errorf("got %+v", req)
			}
		})
	}
}

// ── StatusCheck Tests ──

func TestNewStatusCheck(t *testing.T) {
	local := time.Date(2025, 1, 2, 15, 4, 5, 0, time.FixedZone("IST", 5*3600+1800))
	a := NewStatusCheck("frontend", local)
	b := NewStatusCheck("frontend", local)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("IDs: %q %q", a.ID, b.ID)
	}
	if a.Timestamp.Location() != time.UTC || !a.Timestamp.Equal(local) {
		t.Errorf("Timestamp: got %v", a.Timestamp)
	}
}
