package moderation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(`(?i)^(\d+)([smhd])$`)

var unitMillis = map[byte]int64{
	's': 1000,
	'm': 60 * 1000,
	'h': 60 * 60 * 1000,
	'd': 24 * 60 * 60 * 1000,
}

// ParseDuration parses "<int><unit>" with unit one of s, m, h, d (any case).
// It does not clamp: "0m" yields 0 and callers decide what zero means.
func ParseDuration(text string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
	}
	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
	}
	mult := unitMillis[strings.ToLower(m[2])[0]]
	if value > math.MaxInt64/int64(time.Millisecond)/mult {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidDuration, text)
	}
	return time.Duration(value*mult) * time.Millisecond, nil
}

// ParseTemporaryDuration is the policy used by temporary actions.
// Empty text means permanent and returns 0. A zero duration is rejected, so a
// permanent action is expressed only by omitting the duration. max <= 0 disables the cap.
func ParseTemporaryDuration(text string, max time.Duration) (time.Duration, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	d, err := ParseDuration(text)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("%w: zero duration", ErrInvalidDuration)
	}
	if max > 0 && d > max {
		return 0, fmt.Errorf("%w: %s > %s", ErrDurationTooLong, FormatDuration(d), FormatDuration(max))
	}
	return d, nil
}

// FormatDuration renders d with the largest units first, e.g. "1d 2h 30m".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	parts := make([]string, 0, 4)
	for _, u := range []struct {
		unit time.Duration
		sym  string
	}{{24 * time.Hour, "d"}, {time.Hour, "h"}, {time.Minute, "m"}, {time.Second, "s"}} {
		if n := d / u.unit; n > 0 {
			parts = append(parts, strconv.FormatInt(int64(n), 10)+u.sym)
			d -= n * u.unit
		}
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}
