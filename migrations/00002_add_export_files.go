package migration

import (
	"database/sql"

	"github.com/pressly/goose"
)

func init() {
	goose.AddMigration(Up00002, Down00002)
}

// Up00002 adds the exported file list and the ROI each export was cut from
func Up00002(tx *sql.Tx) error {
	_, err := tx.Exec(`
	ALTER TABLE public.export_history ADD COLUMN files json;
	ALTER TABLE public.export_history ADD COLUMN roi_fingerprint text NOT NULL DEFAULT '';
	`)
	return err
}

// Down00002 undoes the effects of Up00002
func Down00002(tx *sql.Tx) error {
	_, err := tx.Exec(`
	ALTER TABLE public.export_history DROP COLUMN roi_fingerprint;
	ALTER TABLE public.export_history DROP COLUMN files;
	`)
	return err
}
