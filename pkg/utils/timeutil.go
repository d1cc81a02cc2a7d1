package utils

import (
	"fmt"
	"time"
)

// FormatLatency renders a duration as whole milliseconds, e.g. "125ms".
func FormatLatency(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// Since returns the elapsed time since start in whole milliseconds.
func Since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
