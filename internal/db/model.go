package db

import (
	"fmt"
	"time"
)

type DatabaseProvider string

const (
	PostGreSQL DatabaseProvider = "postgresql"
	SQLite     DatabaseProvider = "sqlite"
)

// RequestEvent is one completed network request captured by the recording
// proxy. Start and End are wall-clock timestamps taken around the upstream
// round trip.
type RequestEvent struct {
	Method     string
	Host       string
	Path       string
	StatusCode int
	BodySize   int
	Start      time.Time
	End        time.Time
	Duration   time.Duration
}

// Validate rejects events that cannot have been produced by the proxy.
func (e RequestEvent) Validate() error {
	if e.Method == "" {
		return ValidationError("request event", "method is required")
	}
	if e.StatusCode < 100 || e.StatusCode > 599 {
		return ValidationError("request event", fmt.Sprintf("status code out of range: %d", e.StatusCode))
	}
	if e.BodySize < 0 {
		return ValidationError("request event", "body size must be non-negative")
	}
	if e.End.Before(e.Start) {
		return ValidationError("request event", "end time precedes start time")
	}
	return nil
}

// TimelineSpan is the elapsed window covered by the visible request set:
// min(start) to max(end) over all events in range.
type TimelineSpan struct {
	StartMs int64 `json:"startMs"`
	EndMs   int64 `json:"endMs"`
	Count   int   `json:"count"`
}

// DurationMs returns max(end) - min(start) in milliseconds. An empty
// request set yields zero, which produces the trivial single-tick axis.
func (s *TimelineSpan) DurationMs() float64 {
	if s == nil || s.Count == 0 {
		return 0
	}
	return float64(s.EndMs - s.StartMs)
}

type TimeRange struct {
	From time.Time
	To   time.Time
}

// Ms returns the range bounds as unix milliseconds, the representation all
// event timestamps are stored in.
func (tr TimeRange) Ms() (int64, int64) {
	return tr.From.UnixMilli(), tr.To.UnixMilli()
}

type ListParams struct {
	TimeRange TimeRange
	Page      int
	PageSize  int
}

type PagedResult struct {
	TotalPages int         `json:"totalPages"`
	Total      int         `json:"total"`
	Data       interface{} `json:"data"`
}

// RequestEventRow is the JSON listing shape served to the panel.
type RequestEventRow struct {
	Method     string `json:"method"`
	Host       string `json:"host"`
	Path       string `json:"path"`
	StatusCode int    `json:"statusCode"`
	BodySize   int    `json:"bodySize"`
	StartMs    int64  `json:"startMs"`
	EndMs      int64  `json:"endMs"`
	DurationMs int64  `json:"durationMs"`
}

type StatusDistributionResult struct {
	Time      string `json:"time"`
	Status2xx int    `json:"2xx"`
	Status4xx int    `json:"4xx"`
	Status5xx int    `json:"5xx"`
}

type AverageDurationResult struct {
	AvgDurationMs *float64 `json:"avgDurationMs"`
}
