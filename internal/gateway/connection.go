package gateway

import (
	"context"
	"maps"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradegate/internal/llm"
	"github.com/seenimoa/tradegate/pkg/models"
	"github.com/seenimoa/tradegate/pkg/utils"
)

const (
	connectionPrompt    = "Test connection"
	connectionMaxTokens = 10
)

var troubleshooting = map[string]string{
	"check_network":  "Check the internet connection",
	"check_api_key":  "Validate the DeepSeek API key",
	"check_endpoint": "Confirm the DeepSeek endpoint is reachable",
	"check_quota":    "Check the limits of the DeepSeek account",
}

// TestModelConnection runs one short chat completion bounded by
// llm.test_timeout.
func (s *Service) TestModelConnection(ctx context.Context) models.ConnectionTest {
	return s.testConnection(ctx, s.cfg.LLM.TestTimeout)
}

// TestModelConnectionQuick is TestModelConnection bounded by
// llm.quick_timeout.
func (s *Service) TestModelConnectionQuick(ctx context.Context) models.ConnectionTest {
	return s.testConnection(ctx, s.cfg.LLM.QuickTimeout)
}

func (s *Service) testConnection(ctx context.Context, timeout time.Duration) models.ConnectionTest {
	endpoint := s.cfg.LLM.BaseURL
	if s.llm == nil {
		return s.connectionError(endpoint, "missing", s.llmErr)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := s.now()
	resp, err := s.llm.Chat(ctx, []llm.Message{llm.UserMessage(connectionPrompt)}, &llm.ChatOptions{
		Model:     s.cfg.LLM.Model,
		MaxTokens: connectionMaxTokens,
	})
	if err != nil {
		return s.connectionError(endpoint, "configured but not verified", err)
	}
	elapsed := s.now().Sub(start)

	s.log.WithFields(logrus.Fields{
		"driver":  s.llm.Name(),
		"latency": elapsed.Round(time.Millisecond),
		"tokens":  resp.Usage.TotalTokens,
	}).Info("model connection ok")

	return models.ConnectionTest{
		Status:  "success",
		Message: "model connection tested successfully",
		Details: models.ConnectionDetails{
			Endpoint:     endpoint,
			Model:        s.cfg.LLM.Model,
			APIKeyStatus: "configured and valid",
			ResponseTest: resp.Content,
			Latency:      utils.FormatLatency(elapsed),
			LatencyMS:    elapsed.Milliseconds(),
			RealTest:     true,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
}

func (s *Service) connectionError(endpoint, keyStatus string, err error) models.ConnectionTest {
	category := llm.Classify(err)
	s.log.WithFields(logrus.Fields{
		"category": category,
		"type":     llm.ErrorType(err),
	}).WithError(err).Error("model connection failed")

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return models.ConnectionTest{
		Status:  "error",
		Message: "model connection error: " + category.Label(),
		Details: models.ConnectionDetails{
			Endpoint:        endpoint,
			APIKeyStatus:    keyStatus,
			ErrorType:       llm.ErrorType(err),
			ErrorMessage:    msg,
			Troubleshooting: maps.Clone(troubleshooting),
		},
	}
}
