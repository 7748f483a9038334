package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS exams (
	id TEXT PRIMARY KEY,
	exam_type TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	summary JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS exam_images (
	id TEXT PRIMARY KEY,
	exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
	storage_ref TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	image_type TEXT NOT NULL,
	status TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT '',
	raw_response TEXT NOT NULL DEFAULT '',
	findings JSONB NOT NULL DEFAULT '[]'::jsonb,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	rejected_findings INTEGER NOT NULL DEFAULT 0,
	primary_diagnosis TEXT NOT NULL DEFAULT '',
	clinical_recommendations JSONB NOT NULL DEFAULT '[]'::jsonb,
	requires_additional_exams BOOLEAN NOT NULL DEFAULT FALSE,
	overlay_ref TEXT NOT NULL DEFAULT '',
	failure JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS dental_findings (
	id TEXT PRIMARY KEY,
	exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
	image_id TEXT NOT NULL REFERENCES exam_images(id) ON DELETE CASCADE,
	finding_type TEXT NOT NULL,
	tooth_number TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	bbox JSONB,
	description TEXT NOT NULL DEFAULT '',
	clinical_recommendations JSONB NOT NULL DEFAULT '[]'::jsonb,
	urgency TEXT NOT NULL DEFAULT '',
	expert_validated BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exams_status ON exams(status);
CREATE INDEX IF NOT EXISTS idx_exam_images_exam_id ON exam_images(exam_id);
CREATE INDEX IF NOT EXISTS idx_exam_images_status ON exam_images(status);
CREATE INDEX IF NOT EXISTS idx_dental_findings_image_id ON dental_findings(image_id);
CREATE INDEX IF NOT EXISTS idx_dental_findings_exam_id ON dental_findings(exam_id);
`

// EnsureSchema creates the exam tables. Concurrent api and worker startups
// serialize on an advisory lock.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2024050101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// stringList stores a string slice as a JSONB array.
type stringList []string

func (l stringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func (l *stringList) Scan(value any) error {
	*l = stringList{}
	if value == nil {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan string list: unsupported type %T", value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

// nullableJSON marshals v, mapping nil pointers to SQL NULL.
func nullableJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// scanNullableJSON decodes a nullable JSONB column.
func scanNullableJSON[T any](raw []byte) (*T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
