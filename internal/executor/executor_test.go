package executor

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/seenimoa/tradegate/internal/config"
	"github.com/seenimoa/tradegate/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewSelectsMode(t *testing.T) {
	cfg := config.Default()

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New(simulated): %v", err)
	}
	if s.Mode() != models.ModeSimulated {
		t.Errorf("Mode: got %q", s.Mode())
	}

	cfg.Executor.Mode = "real"
	s, err = New(cfg)
	if err != nil {
		t.Fatalf("New(real): %v", err)
	}
	if s.Mode() != models.ModeReal {
		t.Errorf("Mode: got %q", s.Mode())
	}

	cfg.Executor.Mode = "dry-run"
	if _, err := New(cfg); err == nil {
		t.Error("unknown mode should fail")
	}
}

func TestSimulatedAnalyze(t *testing.T) {
	s := NewSimulated("deepseek-chat")
	req := models.AnalysisRequest{
		Ticker: "NVDA", AnalysisDate: "2024-05-10",
		Analysts: []string{"market"}, ResearchDepth: 1,
	}

	var phases []int
	out, err := s.Analyze(context.Background(), req, func(p int) { phases = append(phases, p) })
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
	for _, want := range []string{"NVDA", "2024-05-10", "market", "Depth: 1", "deepseek-chat", "Phase 5/5"} {
		if !strings.Contains(out.Output, want) {
			t.Errorf("output missing %q:\n%s", want, out.Output)
		}
	}
	for _, phase := range models.Phases {
		if !strings.Contains(out.Output, phase) {
			t.Errorf("output missing phase %q", phase)
		}
	}
}

func TestNarrativeDeterministic(t *testing.T) {
	req := models.NewAnalysisRequest()
	if Narrative(req, "m") != Narrative(req, "m") {
		t.Fatal("narrative should be deterministic")
	}
	req.Analysts = nil
	if !strings.Contains(Narrative(req, "m"), "Analyst teams consulted: 0") {
		t.Error("empty analyst list should be reported as zero teams")
	}
}

func TestSimulatedLaunch(t *testing.T) {
	out, err := NewSimulated("deepseek-chat").Launch(context.Background())
	if err != nil || out.Output != "" {
		t.Fatalf("Launch: got %+v, %v", out, err)
	}
}

func TestEmbeddedTemplatesRender(t *testing.T) {
	p, err := NewProcess(config.Default().Executor, "deepseek-chat", Secrets{
		APIKey: "sk-secret-value", BaseURL: "https://api.deepseek.com/v1",
	})
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}

	var buf bytes.Buffer
	err = p.analyze.Execute(&buf, scriptData{
		Ticker: `NV"DA`, Date: "2024-05-10", Analysts: []string{"market", "news"},
		ResearchDepth: 2, Model: "deepseek-chat", BaseURL: "https://api.deepseek.com/v1",
	})
	if err != nil {
		t.Fatalf("Execute analyze: %v", err)
	}
	script := buf.String()
	for _, want := range []string{
		`TICKER = "NV\"DA"`,
		`ANALYSTS = ["market","news"]`,
		`DEPTH = 2`,
		`config["deep_think_llm"] = "deepseek-chat"`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("analyze script missing %q", want)
		}
	}
	if strings.Contains(script, "sk-secret-value") {
		t.Error("analyze script must not embed the API key")
	}

	buf.Reset()
	if err := p.launch.Execute(&buf, scriptData{Model: "deepseek-chat", BaseURL: "https://api.deepseek.com/v1"}); err != nil {
		t.Fatalf("Execute launch: %v", err)
	}
	if strings.Contains(buf.String(), "sk-secret-value") {
		t.Error("launch script must not embed the API key")
	}
}

func TestLineWriter(t *testing.T) {
	var phases []int
	w := &lineWriter{progress: func(p int) { phases = append(phases, p) }}
	w.Write([]byte("start\n@@pha"))
	w.Write([]byte("se 2\nmiddle\n@@phase 9\n@@phase x\n"))
	w.Write([]byte("tail"))
	w.flush()

	if diff := cmp.Diff([]int{1}, phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
	want := "start\nmiddle\n@@phase 9\n@@phase x\ntail"
	if got := w.String(); got != want {
		t.Errorf("output: got %q, want %q", got, want)
	}
}

func TestCapWriter(t *testing.T) {
	var w capWriter
	big := bytes.Repeat([]byte("x"), maxCapture+10)
	n, err := w.Write(big)
	if err != nil || n != len(big) {
		t.Fatalf("Write: %d, %v", n, err)
	}
	if len(w.String()) != maxCapture {
		t.Errorf("captured %d bytes, want %d", len(w.String()), maxCapture)
	}
}

func TestTailWriterKeepsEnd(t *testing.T) {
	w := &tailWriter{limit: 8}
	w.Write([]byte("line one\n"))
	w.Write([]byte("Trace"))
	w.Write([]byte("back\n"))
	if got := w.String(); got != "aceback\n" {
		t.Errorf("tail: got %q, want %q", got, "aceback\n")
	}

	w = &tailWriter{limit: 4}
	w.Write([]byte("abcdefgh"))
	if got := w.String(); got != "efgh" {
		t.Errorf("oversized write: got %q, want %q", got, "efgh")
	}

	var d tailWriter
	big := append(bytes.Repeat([]byte("x"), maxCapture), []byte("\nValueError: bad ticker\n")...)
	d.Write(big)
	if len(d.String()) != maxCapture || !strings.HasSuffix(d.String(), "ValueError: bad ticker\n") {
		t.Errorf("default limit: kept %d bytes", len(d.String()))
	}
}

func TestLineWriterBoundsUnterminatedLine(t *testing.T) {
	w := &lineWriter{}
	chunk := bytes.Repeat([]byte("y"), 64<<10)
	for i := 0; i < 20; i++ {
		w.Write(chunk)
	}
	if len(w.partial) > maxCapture {
		t.Errorf("pending line grew to %d bytes", len(w.partial))
	}
	w.flush()
	if len(w.String()) != maxCapture {
		t.Errorf("captured %d bytes, want %d", len(w.String()), maxCapture)
	}
}
