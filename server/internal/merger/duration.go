package merger

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDuration accepts the duration formats the Analysis Service is known
// to emit: "MM:SS", "HH:MM:SS", "N minutes", "~N min", a bare "N" (treated
// as minutes), and the literal "Unknown" (→ 0).
func ParseDuration(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "unknown") {
		return 0
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		var nums []float64
		for _, p := range parts {
			n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return 0
			}
			nums = append(nums, n)
		}
		switch len(nums) {
		case 2:
			return nums[0]*60 + nums[1]
		case 3:
			return nums[0]*3600 + nums[1]*60 + nums[2]
		default:
			return 0
		}
	}

	cleaned := strings.TrimPrefix(s, "~")
	cleaned = strings.TrimSuffix(cleaned, "minutes")
	cleaned = strings.TrimSuffix(cleaned, "minute")
	cleaned = strings.TrimSuffix(cleaned, "min")
	cleaned = strings.TrimSpace(cleaned)
	if n, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return n * 60
	}
	return 0
}

// FormatHHMMSS renders a duration in seconds as "HH:MM:SS".
func FormatHHMMSS(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds + 0.5)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
