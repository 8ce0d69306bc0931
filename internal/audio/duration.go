package audio

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatDuration renders seconds as M:SS.
func FormatDuration(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatDurationHuman renders seconds as "3m 45s", "3m" or "45s".
func FormatDurationHuman(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int(seconds)
	minutes, secs := total/60, total%60

	switch {
	case minutes == 0:
		return fmt.Sprintf("%ds", secs)
	case secs == 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	}
}

// ParseTimeToSeconds parses an M:SS string.
func ParseTimeToSeconds(s string) (float64, error) {
	minutes, seconds, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q: expected M:SS", s)
	}
	m, err := strconv.Atoi(minutes)
	if err != nil || m < 0 {
		return 0, fmt.Errorf("invalid minutes in %q", s)
	}
	sec, err := strconv.ParseFloat(seconds, 64)
	if err != nil || sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("invalid seconds in %q", s)
	}
	return float64(m)*60 + sec, nil
}

// Progress returns the played percentage, capped at 100.
func Progress(current, duration float64) float64 {
	if duration <= 0 || current <= 0 {
		return 0
	}
	return math.Min(100, current/duration*100)
}
