package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/venicegeo/bf-vegindex/model"
)

// PostgresStore keeps records in the export_history table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore uses an open connection; the schema comes from the migrations package
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Record implements Store
func (p *PostgresStore) Record(ctx context.Context, record ExportRecord) error {
	files, err := json.Marshal(record.Files)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO public.export_history
		(id, session_id, roi_fingerprint, scene_date, status, message, files, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID,
		record.SessionID,
		record.ROIFingerprint,
		record.SceneDate,
		string(record.Status),
		record.Message,
		files,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record export %s: %v", record.ID, err)
	}
	return nil
}

// List implements Store
func (p *PostgresStore) List(ctx context.Context, sessionID string) ([]ExportRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, session_id, roi_fingerprint, scene_date, status, message, files, created_at
		FROM public.export_history
		WHERE session_id=$1
		ORDER BY created_at DESC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []ExportRecord{}
	for rows.Next() {
		var (
			record     ExportRecord
			status     string
			filesBytes []byte
		)
		err = rows.Scan(&record.ID, &record.SessionID, &record.ROIFingerprint, &record.SceneDate,
			&status, &record.Message, &filesBytes, &record.CreatedAt)
		if err != nil {
			return nil, err
		}
		record.Status = model.ExportStatus(status)
		if len(filesBytes) > 0 {
			if err = json.Unmarshal(filesBytes, &record.Files); err != nil {
				return nil, err
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
