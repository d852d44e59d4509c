package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cardlens/benefit-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	phase      TEXT NOT NULL,
	snapshot   TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_records (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	bank_key    TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL,
	total_chars INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS benefit_records (
	id               TEXT PRIMARY KEY,
	raw_record_id    TEXT NOT NULL UNIQUE REFERENCES raw_records(id),
	payload          TEXT NOT NULL,
	pipelines_total  INTEGER NOT NULL DEFAULT 0,
	pipelines_failed INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_phase ON sessions(phase);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
CREATE INDEX IF NOT EXISTS idx_raw_records_session_id ON raw_records(session_id);
CREATE INDEX IF NOT EXISTS idx_raw_records_bank_key ON raw_records(bank_key);
CREATE INDEX IF NOT EXISTS idx_benefit_records_raw_record_id ON benefit_records(raw_record_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess model.Session) error {
	snapshot, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, phase, snapshot, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET phase = excluded.phase, snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		sess.ID, string(sess.Phase), string(snapshot), sess.CreatedAt, sess.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save session %s", sess.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM sessions WHERE id = ?`, id,
	).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(snapshot), &sess); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal session")
	}
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT snapshot FROM sessions WHERE 1=1`
	var args []any

	if filter.Phase != "" {
		query += ` AND phase = ?`
		args = append(args, string(filter.Phase))
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		var sess model.Session
		if err := json.Unmarshal([]byte(snapshot), &sess); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal session")
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete session %s", id)
	}
	return checkRowsAffected(res, "session", id)
}

func (s *SQLiteStore) CreateRawRecord(ctx context.Context, rec model.RawRecord) (*model.RawRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal raw record")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_records (id, session_id, bank_key, payload, total_chars, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.BankKey, string(payload), rec.TotalChars, rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert raw record")
	}
	return &rec, nil
}

func (s *SQLiteStore) GetRawRecord(ctx context.Context, id string) (*model.RawRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM raw_records WHERE id = ?`, id,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "raw record %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get raw record %s", id)
	}

	var rec model.RawRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal raw record")
	}
	return &rec, nil
}

func (s *SQLiteStore) ListRawRecords(ctx context.Context, filter model.RecordFilter) (*model.RecordPage, error) {
	where := ` WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		where += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.BankKey != "" {
		where += ` AND bank_key = ?`
		args = append(args, filter.BankKey)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_records`+where, args...).Scan(&total); err != nil {
		return nil, eris.Wrap(err, "sqlite: count raw records")
	}

	query := `SELECT payload FROM raw_records` + where + ` ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list raw records")
	}
	defer rows.Close()

	page := &model.RecordPage{Total: total}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw record")
		}
		var rec model.RawRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal raw record")
		}
		page.Items = append(page.Items, rec)
	}
	return page, eris.Wrap(rows.Err(), "sqlite: list raw records iterate")
}

func (s *SQLiteStore) DeleteRawRecord(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM benefit_records WHERE raw_record_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete benefit records for %s", id)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM raw_records WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete raw record %s", id)
	}
	return checkRowsAffected(res, "raw record", id)
}

func (s *SQLiteStore) SaveBenefitRecord(ctx context.Context, rec model.BenefitRecord) (*model.BenefitRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal benefit record")
	}
	total, failed := pipelineCounts(rec)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO benefit_records (id, raw_record_id, payload, pipelines_total, pipelines_failed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(raw_record_id) DO UPDATE SET
		   payload = excluded.payload, pipelines_total = excluded.pipelines_total,
		   pipelines_failed = excluded.pipelines_failed, updated_at = excluded.updated_at`,
		rec.ID, rec.RawRecordID, string(payload), total, failed, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: save benefit record")
	}
	return &rec, nil
}

func (s *SQLiteStore) GetBenefitRecord(ctx context.Context, rawRecordID string) (*model.BenefitRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM benefit_records WHERE raw_record_id = ?`, rawRecordID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "benefit record for %s", rawRecordID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get benefit record for %s", rawRecordID)
	}

	var rec model.BenefitRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal benefit record")
	}
	return &rec, nil
}

func (s *SQLiteStore) CountSessionsByPhase(ctx context.Context) (map[model.Phase]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT phase, COUNT(*) FROM sessions GROUP BY phase`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count sessions by phase")
	}
	defer rows.Close()

	counts := make(map[model.Phase]int)
	for rows.Next() {
		var phase string
		var n int
		if err := rows.Scan(&phase, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan phase count")
		}
		counts[model.Phase(phase)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count sessions iterate")
}

func (s *SQLiteStore) CountRawRecords(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_records`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count raw records")
}

func (s *SQLiteStore) PipelineOutcomes(ctx context.Context, since time.Time) (PipelineTally, error) {
	var t PipelineTally
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(pipelines_total), 0), COALESCE(SUM(pipelines_failed), 0)
		 FROM benefit_records WHERE updated_at > ?`,
		since.UTC(),
	).Scan(&t.Total, &t.Failed)
	return t, eris.Wrap(err, "sqlite: pipeline outcomes")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
