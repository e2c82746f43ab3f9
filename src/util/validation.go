package util

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

var ErrInvalidMonth = errors.New("invalid month")

const maxMonthDistanceYears = 100

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ParseMonth parses a YYYY-MM string to the first instant of that month in UTC.
func ParseMonth(month string) (time.Time, error) {
	if !monthPattern.MatchString(month) {
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM", ErrInvalidMonth, month)
	}
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidMonth, month, err)
	}
	return t, nil
}

// ValidateMonth checks the format and that the month lies within 100 years of now.
func ValidateMonth(month string, now time.Time) error {
	t, err := ParseMonth(month)
	if err != nil {
		return err
	}
	now = now.UTC()
	lo := time.Date(now.Year()-maxMonthDistanceYears, now.Month(), 1, 0, 0, 0, 0, time.UTC)
	hi := time.Date(now.Year()+maxMonthDistanceYears, now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if t.Before(lo) || t.After(hi) {
		return fmt.Errorf("%w: %q is more than %d years from now", ErrInvalidMonth, month, maxMonthDistanceYears)
	}
	return nil
}

func ValidateMonths(months []string, now time.Time) error {
	for _, m := range months {
		if err := ValidateMonth(m, now); err != nil {
			return err
		}
	}
	return nil
}

func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MonthRange lists every month from start through end inclusive, as YYYY-MM.
func MonthRange(start, end time.Time) []string {
	cur := time.Date(start.UTC().Year(), start.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.UTC().Year(), end.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	var out []string
	for !cur.After(last) {
		out = append(out, MonthKey(cur))
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}
