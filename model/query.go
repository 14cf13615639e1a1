package model

import (
	"errors"
	"fmt"
	"time"
)

// SceneQuery holds the user's filter choices for the image collection
type SceneQuery struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	CloudLimit float64   `json:"cloudLimit"`
}

// DefaultSceneQuery starts at the beginning of 2024 and ends at now
func DefaultSceneQuery(now time.Time) SceneQuery {
	return SceneQuery{
		Start:      time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:        now.UTC().Truncate(24 * time.Hour),
		CloudLimit: DefaultCloudLimit,
	}
}

// Validate checks the date order and the cloud limit bounds
func (q SceneQuery) Validate() error {
	if q.Start.IsZero() || q.End.IsZero() {
		return errors.New("Both start and end dates are required")
	}
	if !q.Start.Before(q.End) {
		return fmt.Errorf("Start date %s must be before end date %s", q.Start.Format(DateFormat), q.End.Format(DateFormat))
	}
	if q.CloudLimit < 0 || q.CloudLimit > 100 {
		return fmt.Errorf("Cloud percentage limit must be between 0 and 100, got %v", q.CloudLimit)
	}
	return nil
}

// StartString formats the start date for the remote engine
func (q SceneQuery) StartString() string {
	return q.Start.Format(DateFormat)
}

// EndString formats the end date for the remote engine
func (q SceneQuery) EndString() string {
	return q.End.Format(DateFormat)
}

// Key identifies the query for memoization
func (q SceneQuery) Key() string {
	return fmt.Sprintf("%s/%s/%g", q.StartString(), q.EndString(), q.CloudLimit)
}

var dateLayouts = []string{
	DateFormat,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseDate is a drop-in replacement for time.Parse, accepting a bare date or a full timestamp
func ParseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if output, err := time.Parse(layout, value); err == nil {
			return output, nil
		}
	}
	return time.Time{}, fmt.Errorf("Date could not be parsed by any expected time format: `%s`", value)
}
