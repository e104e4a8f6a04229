package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"rosterbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) RecordJobOutcome(ctx context.Context, o JobOutcome) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if o.FinishedAt.IsZero() {
		o.FinishedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_outcome(job_id, document_id, line_id, kind, label, success, attempts, detail, finished_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		o.JobID, o.DocumentID, o.LineID, o.Kind, nullStr(o.Label),
		boolInt(o.Success), o.Attempts, nullStr(o.Detail),
		o.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) OutcomesByDocument(ctx context.Context, documentID string) ([]JobOutcome, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, document_id, line_id, kind, label, success, attempts, detail, finished_at
		 FROM job_outcome WHERE document_id = ? ORDER BY id`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobOutcome
	for rows.Next() {
		var o JobOutcome
		var label, detail sql.NullString
		var success int
		var finished string
		if err := rows.Scan(&o.JobID, &o.DocumentID, &o.LineID, &o.Kind, &label, &success, &o.Attempts, &detail, &finished); err != nil {
			return nil, err
		}
		o.Label = label.String
		o.Detail = detail.String
		o.Success = success != 0
		if t, perr := time.Parse(time.RFC3339Nano, finished); perr == nil {
			o.FinishedAt = t
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneOutcomes(ctx context.Context, olderThan time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM job_outcome WHERE finished_at < ?`,
		olderThan.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func nullStr(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
