package executor

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"text/template"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/seenimoa/tradegate/internal/config"
	"github.com/seenimoa/tradegate/pkg/models"
)

//go:embed scripts/*.tmpl
var scriptFS embed.FS

const (
	phaseMarker = "@@phase "
	maxCapture  = 1 << 20
	waitDelay   = 2 * time.Second
)

var funcs = template.FuncMap{
	// py renders v as a literal that Python parses back to the same value.
	"py": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

// Process runs the external framework through an interpreter.
type Process struct {
	cfg     config.ExecutorConfig
	model   string
	secrets Secrets
	analyze *template.Template
	launch  *template.Template
	sem     *semaphore.Weighted
}

// NewProcess parses the scripts and sizes the admission semaphore.
func NewProcess(cfg config.ExecutorConfig, model string, secrets Secrets) (*Process, error) {
	analyze, err := loadTemplate("analyze.py.tmpl", cfg.AnalyzeTemplate)
	if err != nil {
		return nil, err
	}
	launch, err := loadTemplate("launch.py.tmpl", cfg.LaunchTemplate)
	if err != nil {
		return nil, err
	}
	slots := cfg.MaxConcurrent
	if slots < 1 {
		slots = 1
	}
	return &Process{
		cfg:     cfg,
		model:   model,
		secrets: secrets,
		analyze: analyze,
		launch:  launch,
		sem:     semaphore.NewWeighted(int64(slots)),
	}, nil
}

func loadTemplate(name, override string) (*template.Template, error) {
	t := template.New(name).Funcs(funcs).Option("missingkey=error")
	var err error
	if override != "" {
		var src []byte
		if src, err = os.ReadFile(override); err == nil {
			t, err = t.Parse(string(src))
		}
	} else {
		t, err = t.ParseFS(scriptFS, "scripts/"+name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrTemplate, name, err)
	}
	return t, nil
}

func (p *Process) Mode() models.Mode { return models.ModeReal }

type scriptData struct {
	Ticker        string
	Date          string
	Analysts      []string
	ResearchDepth int
	Model         string
	BaseURL       string
}

// Launch runs the launch script with executor.launch_timeout.
func (p *Process) Launch(ctx context.Context) (*Outcome, error) {
	data := scriptData{Model: p.model, BaseURL: p.secrets.BaseURL, Analysts: []string{}}
	return p.run(ctx, p.launch, "launch", data, p.cfg.LaunchTimeout, nil)
}

// Analyze runs the analysis script with executor.analysis_timeout.
func (p *Process) Analyze(ctx context.Context, req models.AnalysisRequest, progress PhaseFunc) (*Outcome, error) {
	analysts := req.Analysts
	if analysts == nil {
		analysts = []string{}
	}
	data := scriptData{
		Ticker:        req.Ticker,
		Date:          req.AnalysisDate,
		Analysts:      analysts,
		ResearchDepth: req.ResearchDepth,
		Model:         p.model,
		BaseURL:       p.secrets.BaseURL,
	}
	return p.run(ctx, p.analyze, "analyze", data, p.cfg.AnalysisTimeout, progress)
}

func (p *Process) acquire(ctx context.Context) error {
	if p.cfg.QueueTimeout <= 0 {
		if !p.sem.TryAcquire(1) {
			return ErrCapacity
		}
		return nil
	}
	qctx, cancel := context.WithTimeout(ctx, p.cfg.QueueTimeout)
	defer cancel()
	if err := p.sem.Acquire(qctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %d runs in progress", ErrCapacity, p.cfg.MaxConcurrent)
	}
	return nil
}

func (p *Process) writeScript(tmpl *template.Template, kind string, data scriptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTemplate, err)
	}
	f, err := os.CreateTemp(p.cfg.ScriptDir, "tradegate-"+kind+"-*.py")
	if err != nil {
		return "", fmt.Errorf("executor: create script: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("executor: write script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("executor: write script: %w", err)
	}
	return f.Name(), nil
}

func (p *Process) env() []string {
	env := os.Environ()
	if p.secrets.APIKey != "" {
		env = append(env, "OPENAI_API_KEY="+p.secrets.APIKey)
	}
	if p.secrets.BaseURL != "" {
		env = append(env, "OPENAI_BASE_URL="+p.secrets.BaseURL)
	}
	if p.secrets.FinnhubKey != "" {
		env = append(env, "FINNHUB_API_KEY="+p.secrets.FinnhubKey)
	}
	return env
}

func (p *Process) run(ctx context.Context, tmpl *template.Template, kind string, data scriptData,
	timeout time.Duration, progress PhaseFunc) (*Outcome, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	script, err := p.writeScript(tmpl, kind, data)
	if err != nil {
		return nil, err
	}
	defer os.Remove(script)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := &lineWriter{progress: progress}
	stderr := &tailWriter{}
	cmd := exec.CommandContext(runCtx, p.cfg.Interpreter, script)
	cmd.Dir = p.cfg.WorkDir
	cmd.Env = p.env()
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	err = cmd.Wait()
	stdout.flush()

	out := &Outcome{Output: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}
	if err == nil {
		return out, nil
	}
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return out, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case ctx.Err() != nil:
		return out, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, &ExitError{Code: exitErr.ExitCode(), Stderr: out.Stderr}
	}
	return out, fmt.Errorf("executor: wait: %w", err)
}

// capWriter keeps at most maxCapture bytes.
type capWriter struct {
	buf bytes.Buffer
}

func (w *capWriter) Write(b []byte) (int, error) {
	if room := maxCapture - w.buf.Len(); room > 0 {
		if len(b) > room {
			w.buf.Write(b[:room])
		} else {
			w.buf.Write(b)
		}
	}
	return len(b), nil
}

func (w *capWriter) String() string { return w.buf.String() }

// tailWriter keeps the last limit bytes (maxCapture when zero).
type tailWriter struct {
	buf   []byte
	limit int
}

func (w *tailWriter) Write(b []byte) (int, error) {
	n := len(b)
	limit := w.limit
	if limit <= 0 {
		limit = maxCapture
	}
	if len(b) >= limit {
		w.buf = append(w.buf[:0], b[len(b)-limit:]...)
		return n, nil
	}
	if over := len(w.buf) + len(b) - limit; over > 0 {
		w.buf = append(w.buf[:0], w.buf[over:]...)
	}
	w.buf = append(w.buf, b...)
	return n, nil
}

func (w *tailWriter) String() string { return string(w.buf) }

// lineWriter splits stdout into lines, reports phase markers and keeps
// every other line.
type lineWriter struct {
	progress PhaseFunc
	partial  []byte
	out      capWriter
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.partial = append(w.partial, b...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.line(w.partial[:i+1])
		w.partial = w.partial[i+1:]
	}
	if len(w.partial) > maxCapture {
		w.out.Write(w.partial)
		w.partial = nil
	}
	return len(b), nil
}

func (w *lineWriter) line(l []byte) {
	text := strings.TrimSpace(string(l))
	if rest, ok := strings.CutPrefix(text, phaseMarker); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil && n >= 1 && n <= len(models.Phases) {
			notify(w.progress, n-1)
			return
		}
	}
	w.out.Write(l)
}

func (w *lineWriter) flush() {
	if len(w.partial) > 0 {
		w.line(w.partial)
		w.partial = nil
	}
}

func (w *lineWriter) String() string { return w.out.String() }
