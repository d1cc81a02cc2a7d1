// Package probe checks the reachability of the external services the
// analysis framework depends on.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/tradegate/internal/config"
	"github.com/seenimoa/tradegate/pkg/models"
	"github.com/seenimoa/tradegate/pkg/utils"
)

// Kind selects how a probe interprets the response body.
type Kind string

const (
	KindHTTP Kind = "http" // status code only
	KindHTML Kind = "html" // status code plus <title>
	KindFeed Kind = "feed" // RSS/Atom parse plus item count
)

// Per-service status strings.
const (
	StatusAccessible  = "accessible"
	StatusDegraded    = "degraded"
	StatusUnreachable = "unreachable"
)

const userAgent = "tradegate-probe/1.0"

// Target is one host to probe.
type Target struct {
	Name       string
	URL        string
	Kind       Kind
	OKStatuses []int // empty: any 2xx or 3xx
}

// Accepts reports whether code counts as reachable for t.
func (t Target) Accepts(code int) bool {
	if len(t.OKStatuses) == 0 {
		return code >= 200 && code < 400
	}
	return slices.Contains(t.OKStatuses, code)
}

// TargetsFromConfig converts configured targets, defaulting the kind.
func TargetsFromConfig(in []config.ProbeTarget) []Target {
	out := make([]Target, 0, len(in))
	for _, t := range in {
		kind := Kind(t.Kind)
		if kind == "" {
			kind = KindHTTP
		}
		out = append(out, Target{Name: t.Name, URL: t.URL, Kind: kind, OKStatuses: t.OKStatuses})
	}
	return out
}

// DefaultTargets returns the LLM endpoint and the market-data host. The
// LLM API root answers 404 to a bare GET, which still proves reachability.
func DefaultTargets(cfg *config.Config) []Target {
	return []Target{
		{Name: "deepseek", URL: cfg.LLM.BaseURL, Kind: KindHTTP, OKStatuses: []int{200, 404}},
		{Name: "finnhub", URL: cfg.MarketData.FinnhubURL, Kind: KindHTTP, OKStatuses: []int{200}},
	}
}

// Prober runs reachability probes.
type Prober struct {
	client  *resty.Client
	timeout time.Duration
	log     *logrus.Logger
}

// New creates a prober where every probe is bounded by timeout.
func New(timeout time.Duration, log *logrus.Logger) *Prober {
	if log == nil {
		log = logrus.StandardLogger()
	}
	client := resty.New()
	client.SetHeader("User-Agent", userAgent)
	client.SetTimeout(timeout)
	return &Prober{client: client, timeout: timeout, log: log}
}

// Close releases idle keep-alive connections.
func (p *Prober) Close() {
	p.client.GetClient().CloseIdleConnections()
}

// Probe checks a single target. It never fails; problems are reported in
// the returned ServiceReach.
func (p *Prober) Probe(ctx context.Context, t Target) models.ServiceReach {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	reach := models.ServiceReach{URL: t.URL, Latency: "N/A"}
	start := time.Now()
	resp, err := p.client.R().SetContext(ctx).Get(t.URL)
	if err != nil {
		reach.Status = StatusUnreachable
		reach.Error = err.Error()
		p.log.WithFields(logrus.Fields{"service": t.Name, "url": t.URL}).WithError(err).Warn("probe failed")
		return reach
	}
	elapsed := time.Since(start)
	reach.Latency = utils.FormatLatency(elapsed)
	reach.LatencyMS = elapsed.Milliseconds()
	reach.StatusCode = resp.StatusCode()
	reach.Reachable = t.Accepts(resp.StatusCode())

	switch t.Kind {
	case KindHTML:
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body())); err == nil {
			reach.Title = strings.TrimSpace(doc.Find("title").First().Text())
		}
	case KindFeed:
		feed, err := gofeed.NewParser().ParseString(resp.String())
		if err != nil {
			reach.Reachable = false
			reach.Error = fmt.Sprintf("feed: %v", err)
		} else {
			reach.Title = feed.Title
			reach.Items = len(feed.Items)
		}
	}

	if reach.Reachable {
		reach.Status = StatusAccessible
	} else {
		reach.Status = StatusDegraded
	}
	p.log.WithFields(logrus.Fields{
		"service": t.Name,
		"status":  reach.Status,
		"code":    reach.StatusCode,
		"latency": reach.Latency,
	}).Debug("probe done")
	return reach
}

// Run probes every target concurrently and aggregates the verdict.
func (p *Prober) Run(ctx context.Context, targets []Target) models.NetworkReport {
	results := make([]models.ServiceReach, len(targets))

	var g errgroup.Group
	g.SetLimit(8)
	for i, t := range targets {
		g.Go(func() error {
			results[i] = p.Probe(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	report := models.NetworkReport{
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]models.ServiceReach, len(targets)),
	}
	for i, t := range targets {
		report.Services[t.Name] = results[i]
	}
	report.OverallStatus = Aggregate(results)
	return report
}

// Aggregate returns ReachAll iff every probe is reachable, ReachNone iff
// none is, and ReachSome otherwise. An empty set counts as none.
func Aggregate(results []models.ServiceReach) string {
	ok := 0
	for _, r := range results {
		if r.Reachable {
			ok++
		}
	}
	switch {
	case len(results) > 0 && ok == len(results):
		return models.ReachAll
	case ok == 0:
		return models.ReachNone
	default:
		return models.ReachSome
	}
}
