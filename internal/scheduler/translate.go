package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnrecognized is returned when a phrase matches no known recurrence
// pattern. Callers must treat it as user error, never substitute a default.
var ErrUnrecognized = errors.New("unrecognized schedule phrase")

// Default fire time for patterns that name a day but no clock time.
const (
	defaultHour   = 9
	defaultMinute = 0
)

var weekdayNumbers = []struct {
	name string
	num  int
}{
	{"monday", 1}, {"mon", 1},
	{"tuesday", 2}, {"tue", 2},
	{"wednesday", 3}, {"wed", 3},
	{"thursday", 4}, {"thu", 4},
	{"friday", 5}, {"fri", 5},
	{"saturday", 6}, {"sat", 6},
	{"sunday", 0}, {"sun", 0},
}

var (
	clockTimeRe = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(am|pm)?\b`)
	amPmTimeRe  = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`)
	everyHrsRe  = regexp.MustCompile(`every\s+(\d+)\s+hours?`)
	everyMinsRe = regexp.MustCompile(`every\s+(\d+)\s+minutes?`)
)

// Translate converts a natural-language recurrence phrase into a canonical
// 5-field cron expression. Pattern families are tried in a fixed precedence
// order; the first match wins. Unrecognized phrases yield ErrUnrecognized.
func Translate(phrase string) (string, error) {
	input := strings.ToLower(phrase)

	// Daily.
	if strings.Contains(input, "every day") || strings.Contains(input, "daily") {
		hour, minute := extractTime(input)
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	}

	// Named weekday.
	for _, day := range weekdayNumbers {
		if strings.Contains(input, "every "+day.name) {
			hour, minute := extractTime(input)
			return fmt.Sprintf("%d %d * * %d", minute, hour, day.num), nil
		}
	}

	// Hourly.
	if strings.Contains(input, "every hour") || strings.Contains(input, "hourly") {
		return "0 * * * *", nil
	}

	// Every N hours.
	if m := everyHrsRe.FindStringSubmatch(input); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return fmt.Sprintf("0 */%d * * *", n), nil
		}
	}

	// Every N minutes.
	if m := everyMinsRe.FindStringSubmatch(input); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return fmt.Sprintf("*/%d * * * *", n), nil
		}
	}

	// Weekdays only.
	if strings.Contains(input, "weekday") || strings.Contains(input, "week day") {
		hour, minute := extractTime(input)
		return fmt.Sprintf("%d %d * * 1-5", minute, hour), nil
	}

	// Weekend only.
	if strings.Contains(input, "weekend") {
		hour, minute := extractTime(input)
		return fmt.Sprintf("%d %d * * 0,6", minute, hour), nil
	}

	// Monthly, on the 1st.
	if strings.Contains(input, "every month") || strings.Contains(input, "monthly") {
		hour, minute := extractTime(input)
		return fmt.Sprintf("%d %d 1 * *", minute, hour), nil
	}

	return "", ErrUnrecognized
}

// extractTime finds an explicit clock time in the phrase and normalizes it
// to 24-hour (hour, minute). Recognizes "HH:MM", "HH:MM am/pm" and bare
// "H am/pm". Without a valid time the family default (09:00) applies.
func extractTime(input string) (hour, minute int) {
	if m := clockTimeRe.FindStringSubmatch(input); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		h = foldAmPm(h, m[3])
		if h <= 23 && min <= 59 {
			return h, min
		}
	}
	if m := amPmTimeRe.FindStringSubmatch(input); m != nil {
		h, _ := strconv.Atoi(m[1])
		h = foldAmPm(h, m[2])
		if h <= 23 {
			return h, 0
		}
	}
	return defaultHour, defaultMinute
}

// foldAmPm applies 12-hour folding: 12am → 0, Npm → N+12 for N < 12.
func foldAmPm(hour int, period string) int {
	switch period {
	case "pm":
		if hour < 12 {
			return hour + 12
		}
	case "am":
		if hour == 12 {
			return 0
		}
	}
	return hour
}
