// Package billingperiod parses and formats the ISO 8601 duration subset used
// by Play subscription products (P1M, P1Y, P7D, ...).
package billingperiod

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Millisecond values for the supported units. Months are fixed at 30 days and
// years at 365 days; renewal-interval math downstream depends on these exact
// approximations.
const (
	MillisPerSecond int64 = 1000
	MillisPerMinute int64 = 60 * MillisPerSecond
	MillisPerHour   int64 = 60 * MillisPerMinute
	MillisPerDay    int64 = 24 * MillisPerHour
	MillisPerWeek   int64 = 7 * MillisPerDay
	MillisPerMonth  int64 = 30 * MillisPerDay
	MillisPerYear   int64 = 365 * MillisPerDay
)

// ErrInvalidPeriod is wrapped by all parse and format failures.
var ErrInvalidPeriod = errors.New("invalid billing period")

var periodPattern = regexp.MustCompile(`^(\d+)?([DWMY])$`)

// Parse converts a period string to milliseconds. Accepted forms are P[n]D,
// P[n]W, P[n]M and P[n]Y, case-insensitive, with n defaulting to 1 when
// omitted. Leading and trailing whitespace is ignored.
func Parse(period string) (int64, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(period))
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty period", ErrInvalidPeriod)
	}
	if !strings.HasPrefix(trimmed, "P") {
		return 0, fmt.Errorf("%w: %q must start with 'P'", ErrInvalidPeriod, period)
	}

	duration := trimmed[1:]
	if duration == "" {
		return 0, fmt.Errorf("%w: %q has no duration", ErrInvalidPeriod, period)
	}

	match := periodPattern.FindStringSubmatch(duration)
	if match == nil {
		return 0, fmt.Errorf("%w: %q (supported: P[n]D, P[n]W, P[n]M, P[n]Y)", ErrInvalidPeriod, period)
	}

	n := int64(1)
	if match[1] != "" {
		parsed, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidPeriod, period, err)
		}
		n = parsed
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: coefficient must be positive, got %d", ErrInvalidPeriod, n)
	}

	switch match[2] {
	case "D":
		return n * MillisPerDay, nil
	case "W":
		return n * MillisPerWeek, nil
	case "M":
		return n * MillisPerMonth, nil
	case "Y":
		return n * MillisPerYear, nil
	}
	return 0, fmt.Errorf("%w: unsupported unit in %q", ErrInvalidPeriod, period)
}

// Format converts milliseconds back to a period string, preferring exact
// years, then exact months, then exact weeks, else whole days (floor).
// Zero formats as P0D; negative input fails.
func Format(millis int64) (string, error) {
	if millis < 0 {
		return "", fmt.Errorf("%w: milliseconds must be non-negative, got %d", ErrInvalidPeriod, millis)
	}
	if millis == 0 {
		return "P0D", nil
	}
	if millis%MillisPerYear == 0 {
		return fmt.Sprintf("P%dY", millis/MillisPerYear), nil
	}
	if millis%MillisPerMonth == 0 {
		return fmt.Sprintf("P%dM", millis/MillisPerMonth), nil
	}
	if millis%MillisPerWeek == 0 {
		return fmt.Sprintf("P%dW", millis/MillisPerWeek), nil
	}
	return fmt.Sprintf("P%dD", millis/MillisPerDay), nil
}

// Compare orders two period strings by parsed millisecond value, returning
// -1, 0 or 1.
func Compare(a, b string) (int, error) {
	millisA, err := Parse(a)
	if err != nil {
		return 0, err
	}
	millisB, err := Parse(b)
	if err != nil {
		return 0, err
	}
	switch {
	case millisA < millisB:
		return -1, nil
	case millisA > millisB:
		return 1, nil
	}
	return 0, nil
}

// Validate reports whether the string is a parseable billing period.
func Validate(period string) bool {
	_, err := Parse(period)
	return err == nil
}
