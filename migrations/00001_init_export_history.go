package migration

import (
	"database/sql"

	"github.com/pressly/goose"
)

func init() {
	goose.AddMigration(Up00001, Down00001)
}

// Up00001 creates the export history table
func Up00001(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE public.export_history
	(
		id text COLLATE pg_catalog."default" NOT NULL,
		session_id text COLLATE pg_catalog."default" NOT NULL,
		scene_date text COLLATE pg_catalog."default" NOT NULL,
		status text COLLATE pg_catalog."default" NOT NULL,
		message text COLLATE pg_catalog."default" NOT NULL,
		created_at timestamp without time zone NOT NULL,
		CONSTRAINT "export_history_pk_id" PRIMARY KEY (id)
	)
	WITH (
		OIDS = FALSE
	);

	CREATE INDEX idx_export_history_session
	ON public.export_history USING btree
	(session_id, created_at DESC);
	`)
	return err
}

// Down00001 undoes the effects of Up00001
func Down00001(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS public.export_history;`)
	return err
}
