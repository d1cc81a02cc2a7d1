package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/seenimoa/tradegate/internal/llm"
	"github.com/seenimoa/tradegate/pkg/models"
	"github.com/seenimoa/tradegate/pkg/utils"
)

// ProbeRateLimits makes count tiny completions spaced by interval and
// tallies how the endpoint answered. Each call is bounded by
// llm.test_timeout.
func (s *Service) ProbeRateLimits(ctx context.Context, count int, interval time.Duration) models.RateLimitReport {
	report := models.RateLimitReport{
		Timestamp: s.now().UTC(),
		Attempts:  []models.RateLimitAttempt{},
		Counts: map[string]int{
			models.AttemptOK:          0,
			models.AttemptRateLimited: 0,
			models.AttemptTimeout:     0,
			models.AttemptError:       0,
		},
	}

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	pacer := rate.NewLimiter(limit, 1)

	for i := 1; i <= count; i++ {
		if err := pacer.Wait(ctx); err != nil {
			break
		}
		a := s.rateAttempt(ctx, i)
		report.Counts[a.Outcome]++
		report.Attempts = append(report.Attempts, a)
	}
	report.Recommendations = rateRecommendations(report.Counts, len(report.Attempts))
	return report
}

func (s *Service) rateAttempt(ctx context.Context, n int) models.RateLimitAttempt {
	a := models.RateLimitAttempt{Attempt: n, Latency: "N/A"}
	if s.llm == nil {
		a.Outcome = models.AttemptError
		if s.llmErr != nil {
			a.Error = s.llmErr.Error()
		}
		return a
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LLM.TestTimeout)
	defer cancel()
	start := s.now()
	resp, err := s.llm.Chat(ctx, []llm.Message{llm.UserMessage(fmt.Sprintf("Test %d", n))}, &llm.ChatOptions{MaxTokens: 5})
	elapsed := s.now().Sub(start)
	a.Latency = utils.FormatLatency(elapsed)
	a.LatencyMS = elapsed.Milliseconds()

	if err == nil {
		a.Outcome = models.AttemptOK
		a.Tokens = resp.Usage.TotalTokens
		return a
	}
	a.Error = err.Error()
	switch {
	case errors.Is(err, llm.ErrRateLimit) || llm.Classify(err) == llm.CategoryRateLimit:
		a.Outcome = models.AttemptRateLimited
	case llm.Classify(err) == llm.CategoryTimeout:
		a.Outcome = models.AttemptTimeout
	default:
		a.Outcome = models.AttemptError
	}
	return a
}

func rateRecommendations(counts map[string]int, total int) []string {
	var recs []string
	if total == 0 {
		return []string{"No attempts were made"}
	}
	if counts[models.AttemptRateLimited] > 0 {
		recs = append(recs, "Rate limits detected: increase the delay between requests or lower llm.rate_limit")
	}
	if counts[models.AttemptTimeout] > 0 {
		recs = append(recs, "Timeouts detected: increase llm.test_timeout or check network latency")
	}
	if counts[models.AttemptError] > 0 {
		recs = append(recs, "Errors detected: verify the API key and endpoint")
	}
	if counts[models.AttemptOK] == total {
		recs = append(recs, "All requests succeeded: the current pacing is safe")
	}
	return recs
}
