package server

import (
	"errors"
	"strings"
	"time"
)

const dateOnlyLayout = "2006-01-02"

var errInvalidTime = errors.New("invalid_time")

// parseOptionalTime accepts RFC 3339 timestamps or plain dates. A date
// means the start of that day in UTC.
func parseOptionalTime(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		parsed = parsed.UTC()
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		return &parsed, nil
	}
	return nil, errInvalidTime
}

// metaQuery collects metadata.<key>=<value> query parameters.
func metaQuery(values map[string][]string) map[string]string {
	out := make(map[string]string)
	for key, vals := range values {
		if !strings.HasPrefix(key, "metadata.") || len(vals) == 0 {
			continue
		}
		out[strings.TrimPrefix(key, "metadata.")] = vals[0]
	}
	return out
}
