// Package session keeps the per-user dashboard state between requests.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/venicegeo/bf-vegindex/model"
	"github.com/venicegeo/bf-vegindex/roi"
	"github.com/venicegeo/bf-vegindex/util"
)

// ErrNotFound is returned for unknown or expired session ids
var ErrNotFound = errors.New("session not found")

// Session is what one user has uploaded and selected so far
type Session struct {
	ID            string           `json:"id"`
	ROI           *roi.ROI         `json:"roi,omitempty"`
	Query         model.SceneQuery `json:"query"`
	SelectedDates []string         `json:"selectedDates"`
	Indices       []model.Index    `json:"indices"`
	LastAccess    time.Time        `json:"lastAccess"`
}

// New starts a session with the default query and nothing selected
func New(now time.Time) *Session {
	return &Session{
		ID:            util.NewUUID(),
		Query:         model.DefaultSceneQuery(now),
		SelectedDates: []string{},
		Indices:       []model.Index{},
		LastAccess:    now,
	}
}

// SetROI replaces the ROI; the previous date selection no longer applies
func (s *Session) SetROI(region *roi.ROI) {
	s.ROI = region
	s.SelectedDates = []string{}
}

// SetQuery replaces the query and clears the date selection when it changed
func (s *Session) SetQuery(query model.SceneQuery) {
	if query.Key() != s.Query.Key() {
		s.SelectedDates = []string{}
	}
	s.Query = query
}

// IndexEnabled reports whether the index layer is switched on
func (s *Session) IndexEnabled(index model.Index) bool {
	for _, enabled := range s.Indices {
		if enabled == index {
			return true
		}
	}
	return false
}

// Store persists sessions by id
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// Sweep removes sessions idle for longer than maxIdle and returns how many
	Sweep(ctx context.Context, maxIdle time.Duration) (int, error)
}
