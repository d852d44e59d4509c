package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cardlens/benefit-cli/internal/db"
	"github.com/cardlens/benefit-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"save_session":   `INSERT INTO sessions (id, phase, snapshot, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO UPDATE SET phase = $2, snapshot = $3, updated_at = $5`,
	"get_session":    `SELECT snapshot FROM sessions WHERE id = $1`,
	"insert_raw":     `INSERT INTO raw_records (id, session_id, bank_key, payload, total_chars, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"get_raw":        `SELECT payload FROM raw_records WHERE id = $1`,
	"get_benefits":   `SELECT payload FROM benefit_records WHERE raw_record_id = $1`,
	"save_benefits":  `INSERT INTO benefit_records (id, raw_record_id, payload, pipelines_total, pipelines_failed, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (raw_record_id) DO UPDATE SET payload = $3, pipelines_total = $4, pipelines_failed = $5, updated_at = $7`,
	"delete_session": `DELETE FROM sessions WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	phase      TEXT NOT NULL,
	snapshot   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_records (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id  TEXT NOT NULL,
	bank_key    TEXT NOT NULL DEFAULT '',
	payload     JSONB NOT NULL,
	total_chars INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS benefit_records (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	raw_record_id    TEXT NOT NULL UNIQUE REFERENCES raw_records(id),
	payload          JSONB NOT NULL,
	pipelines_total  INTEGER NOT NULL DEFAULT 0,
	pipelines_failed INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_phase ON sessions(phase);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
CREATE INDEX IF NOT EXISTS idx_raw_records_session_id ON raw_records(session_id);
CREATE INDEX IF NOT EXISTS idx_raw_records_bank_key ON raw_records(bank_key);
CREATE INDEX IF NOT EXISTS idx_benefit_records_raw_record_id ON benefit_records(raw_record_id);
CREATE INDEX IF NOT EXISTS idx_benefit_records_updated_at ON benefit_records(updated_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess model.Session) error {
	snapshot, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, phase, snapshot, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET phase = $2, snapshot = $3, updated_at = $5`,
		sess.ID, string(sess.Phase), snapshot, sess.CreatedAt, sess.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save session %s", sess.ID)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var snapshot []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM sessions WHERE id = $1`, id,
	).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "session %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}

	var sess model.Session
	if err := json.Unmarshal(snapshot, &sess); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal session")
	}
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT snapshot FROM sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Phase != "" {
		query += fmt.Sprintf(` AND phase = $%d`, argIdx)
		args = append(args, string(filter.Phase))
		argIdx++
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		var sess model.Session
		if err := json.Unmarshal(snapshot, &sess); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal session")
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete session %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return nil
}

func (s *PostgresStore) CreateRawRecord(ctx context.Context, rec model.RawRecord) (*model.RawRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal raw record")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO raw_records (id, session_id, bank_key, payload, total_chars, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.SessionID, rec.BankKey, payload, rec.TotalChars, rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert raw record")
	}
	return &rec, nil
}

func (s *PostgresStore) GetRawRecord(ctx context.Context, id string) (*model.RawRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM raw_records WHERE id = $1`, id,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "raw record %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get raw record %s", id)
	}

	var rec model.RawRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal raw record")
	}
	return &rec, nil
}

func (s *PostgresStore) ListRawRecords(ctx context.Context, filter model.RecordFilter) (*model.RecordPage, error) {
	where := ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.SessionID != "" {
		where += fmt.Sprintf(` AND session_id = $%d`, argIdx)
		args = append(args, filter.SessionID)
		argIdx++
	}
	if filter.BankKey != "" {
		where += fmt.Sprintf(` AND bank_key = $%d`, argIdx)
		args = append(args, filter.BankKey)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM raw_records`+where, args...).Scan(&total); err != nil {
		return nil, eris.Wrap(err, "postgres: count raw records")
	}

	query := `SELECT payload FROM raw_records` + where + ` ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list raw records")
	}
	defer rows.Close()

	page := &model.RecordPage{Total: total}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw record")
		}
		var rec model.RawRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal raw record")
		}
		page.Items = append(page.Items, rec)
	}
	return page, eris.Wrap(rows.Err(), "postgres: list raw records iterate")
}

func (s *PostgresStore) DeleteRawRecord(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM benefit_records WHERE raw_record_id = $1`, id); err != nil {
		return eris.Wrapf(err, "postgres: delete benefit records for %s", id)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM raw_records WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete raw record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "raw record %s", id)
	}
	return nil
}

func (s *PostgresStore) SaveBenefitRecord(ctx context.Context, rec model.BenefitRecord) (*model.BenefitRecord, error) {
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
		return nil, eris.Wrap(err, "postgres: marshal benefit record")
	}
	total, failed := pipelineCounts(rec)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO benefit_records (id, raw_record_id, payload, pipelines_total, pipelines_failed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (raw_record_id) DO UPDATE SET
		   payload = $3, pipelines_total = $4, pipelines_failed = $5, updated_at = $7`,
		rec.ID, rec.RawRecordID, payload, total, failed, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: save benefit record")
	}
	return &rec, nil
}

func (s *PostgresStore) GetBenefitRecord(ctx context.Context, rawRecordID string) (*model.BenefitRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM benefit_records WHERE raw_record_id = $1`, rawRecordID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "benefit record for %s", rawRecordID)
		}
		return nil, eris.Wrapf(err, "postgres: get benefit record for %s", rawRecordID)
	}

	var rec model.BenefitRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal benefit record")
	}
	return &rec, nil
}

func (s *PostgresStore) CountSessionsByPhase(ctx context.Context) (map[model.Phase]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT phase, COUNT(*) FROM sessions GROUP BY phase`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count sessions by phase")
	}
	defer rows.Close()

	counts := make(map[model.Phase]int)
	for rows.Next() {
		var phase string
		var n int
		if err := rows.Scan(&phase, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan phase count")
		}
		counts[model.Phase(phase)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count sessions iterate")
}

func (s *PostgresStore) CountRawRecords(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM raw_records`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count raw records")
}

func (s *PostgresStore) PipelineOutcomes(ctx context.Context, since time.Time) (PipelineTally, error) {
	var t PipelineTally
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(pipelines_total), 0), COALESCE(SUM(pipelines_failed), 0)
		 FROM benefit_records WHERE updated_at > $1`,
		since,
	).Scan(&t.Total, &t.Failed)
	return t, eris.Wrap(err, "postgres: pipeline outcomes")
}
