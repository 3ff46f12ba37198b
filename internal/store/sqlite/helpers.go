package sqlite

import "time"

// timeLayout is RFC 3339 with a fixed nine-digit fractional second, so
// stored timestamps sort lexicographically; the run_at/next_run_at
// comparisons in this package are plain string comparisons in SQLite.
// RFC3339Nano would trim trailing zeros and break that ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
