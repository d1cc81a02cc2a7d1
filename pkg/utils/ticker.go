package utils

import (
	"strings"
)

// Common company-name aliases typed at the command line.
var tickerAliases = map[string]string{
	"NVIDIA":    "NVDA",
	"APPLE":     "AAPL",
	"MICROSOFT": "MSFT",
	"GOOGLE":    "GOOGL",
	"ALPHABET":  "GOOGL",
	"AMAZON":    "AMZN",
	"FACEBOOK":  "META",
	"TESLA":     "TSLA",
	"NETFLIX":   "NFLX",
}

// NormalizeTicker normalizes a user-input ticker to its canonical symbol.
// It handles aliases, uppercasing, whitespace and a leading "$".
func NormalizeTicker(ticker string) string {
	ticker = strings.TrimSpace(strings.ToUpper(ticker))
	ticker = strings.TrimPrefix(ticker, "$")

	if canonical, ok := tickerAliases[ticker]; ok {
		return canonical
	}
	return ticker
}

// SplitList splits a comma-separated flag value, dropping empty items
// and surrounding whitespace while keeping order.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
