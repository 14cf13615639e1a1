// Package history records export attempts per session.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/venicegeo/bf-vegindex/model"
	"github.com/venicegeo/bf-vegindex/util"
)

// ExportRecord is one export attempt and its outcome
type ExportRecord struct {
	ID             string             `json:"id"`
	SessionID      string             `json:"sessionId"`
	ROIFingerprint string             `json:"roiFingerprint"`
	SceneDate      string             `json:"sceneDate"`
	Status         model.ExportStatus `json:"status"`
	Message        string             `json:"message"`
	Files          []model.ExportFile `json:"files"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// NewExportRecord stamps result with a fresh id and the current time
func NewExportRecord(sessionID, roiFingerprint string, result model.ExportResult) ExportRecord {
	return ExportRecord{
		ID:             util.NewUUID(),
		SessionID:      sessionID,
		ROIFingerprint: roiFingerprint,
		SceneDate:      result.Date,
		Status:         result.Status,
		Message:        result.Message,
		Files:          result.Files,
		CreatedAt:      time.Now().UTC(),
	}
}

// Store keeps export records
type Store interface {
	Record(ctx context.Context, record ExportRecord) error
	// List returns the records of a session, newest first
	List(ctx context.Context, sessionID string) ([]ExportRecord, error)
}

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]ExportRecord
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string][]ExportRecord{}}
}

// Record implements Store
func (m *MemoryStore) Record(ctx context.Context, record ExportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.SessionID] = append(m.records[record.SessionID], record)
	return nil
}

// List implements Store
func (m *MemoryStore) List(ctx context.Context, sessionID string) ([]ExportRecord, error) {
	m.mu.Lock()
	records := append([]ExportRecord{}, m.records[sessionID]...)
	m.mu.Unlock()
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}
