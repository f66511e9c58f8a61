package sqlite

import "time"

// SQLite has no native timestamp type; every temporal column round-trips
// through RFC3339 text explicitly rather than relying on the driver's
// declared-type heuristics.

func timeToArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func timePtrToArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeToArg(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseTime(s)
	return &t
}
