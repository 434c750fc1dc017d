package models

import (
	"github.com/netlens/netlens/internal/timeaxis"
)

// TimelineResponse is the payload the panel renderer consumes: the total
// visible span plus the ordered axis divisions to draw.
type TimelineResponse struct {
	DurationMs   float64             `json:"durationMs"`
	RequestCount int                 `json:"requestCount"`
	Divisions    []timeaxis.Division `json:"divisions"`
}
