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

	"github.com/stacklens/catalog-ingest/internal/db"
	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/internal/resilience"
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
	"save_template":        `INSERT INTO templates (id, tenant_id, name, body, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
	"get_template":         `SELECT body FROM templates WHERE id = $1`,
	"save_correction":      `INSERT INTO corrections (id, tenant_id, session_id, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"get_cached_ingestion": `SELECT body FROM ingestion_cache WHERE tenant_id = $1 AND checksum = $2 AND expires_at > now()`,
	"set_cached_ingestion": `INSERT INTO ingestion_cache (id, tenant_id, checksum, body, created_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (tenant_id, checksum) DO UPDATE SET body = EXCLUDED.body, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
	"delete_expired":       `DELETE FROM ingestion_cache WHERE expires_at <= now()`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

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

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS templates (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id  TEXT NOT NULL,
	name       TEXT NOT NULL,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS corrections (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id  TEXT NOT NULL,
	session_id TEXT,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS items (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	item_type  TEXT,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS review_queue (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id  TEXT NOT NULL,
	reason     TEXT NOT NULL,
	body       JSONB NOT NULL,
	resolved   BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	status     TEXT NOT NULL,
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	document   TEXT NOT NULL,
	error_type TEXT NOT NULL,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingestion_cache (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id  TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, checksum)
);

CREATE INDEX IF NOT EXISTS idx_templates_tenant ON templates(tenant_id);
CREATE INDEX IF NOT EXISTS idx_corrections_tenant ON corrections(tenant_id, session_id);
CREATE INDEX IF NOT EXISTS idx_items_tenant ON items(tenant_id, item_type);
CREATE INDEX IF NOT EXISTS idx_review_queue_tenant ON review_queue(tenant_id, resolved);
CREATE INDEX IF NOT EXISTS idx_sessions_tenant ON sessions(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_dead_letters_tenant ON dead_letters(tenant_id, error_type);
CREATE INDEX IF NOT EXISTS idx_ingestion_cache_expires ON ingestion_cache(expires_at);
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

func (s *PostgresStore) SaveTemplate(ctx context.Context, tpl *model.ExtractionTemplate) error {
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now

	body, err := json.Marshal(tpl)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal template")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO templates (id, tenant_id, name, body, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		tpl.ID, tpl.TenantID, tpl.Name, body, tpl.CreatedAt, tpl.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save template %s", tpl.ID)
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (*model.ExtractionTemplate, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM templates WHERE id = $1`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "template %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get template %s", id)
	}
	var tpl model.ExtractionTemplate
	if err := json.Unmarshal(body, &tpl); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal template")
	}
	return &tpl, nil
}

func (s *PostgresStore) ListTemplates(ctx context.Context, tenantID string) ([]*model.ExtractionTemplate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT body FROM templates WHERE tenant_id = $1 ORDER BY updated_at DESC`, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list templates")
	}
	defer rows.Close()

	var out []*model.ExtractionTemplate
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "postgres: scan template")
		}
		var tpl model.ExtractionTemplate
		if err := json.Unmarshal(body, &tpl); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal template")
		}
		out = append(out, &tpl)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate templates")
}

func (s *PostgresStore) DeleteTemplate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete template %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "template %s", id)
	}
	return nil
}

func (s *PostgresStore) SaveCorrection(ctx context.Context, c *model.Correction) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal correction")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO corrections (id, tenant_id, session_id, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.TenantID, c.SessionID, body, c.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save correction %s", c.ID)
}

func (s *PostgresStore) ListCorrections(ctx context.Context, tenantID, sessionID string) ([]model.Correction, error) {
	query := `SELECT body FROM corrections WHERE tenant_id = $1`
	args := []any{tenantID}
	if sessionID != "" {
		query += ` AND session_id = $2`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list corrections")
	}
	defer rows.Close()

	var out []model.Correction
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "postgres: scan correction")
		}
		var c model.Correction
		if err := json.Unmarshal(body, &c); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal correction")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate corrections")
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess *model.Session) error {
	body, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, tenant_id, status, body, updated_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		sess.ID, sess.TenantID, string(sess.Status), body, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save session %s", sess.ID)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM sessions WHERE id = $1`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "session %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	var sess model.Session
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal session")
	}
	return &sess, nil
}

func (s *PostgresStore) SaveItems(ctx context.Context, items []model.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(items))
	now := time.Now().UTC()
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.New().String()
		}
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
		body, err := json.Marshal(items[i])
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal item")
		}
		rows = append(rows, []any{
			items[i].ID, items[i].TenantID,
			items[i].StringValue(model.FieldItemType), body, items[i].CreatedAt,
		})
	}

	affected, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "items",
		Columns:      []string{"id", "tenant_id", "item_type", "body", "created_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"tenant_id", "item_type", "body"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save items")
	}
	return int(affected), nil
}

func (s *PostgresStore) ListItems(ctx context.Context, filter ItemFilter) ([]model.Item, error) {
	query := `SELECT body FROM items WHERE tenant_id = $1`
	args := []any{filter.TenantID}
	argIdx := 2

	if filter.ItemType != "" {
		query += fmt.Sprintf(` AND item_type = $%d`, argIdx)
		args = append(args, filter.ItemType)
		argIdx++
	}
	query += ` ORDER BY created_at`

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
		return nil, eris.Wrap(err, "postgres: list items")
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "postgres: scan item")
		}
		var it model.Item
		if err := json.Unmarshal(body, &it); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal item")
		}
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate items")
}

func (s *PostgresStore) EnqueueReview(ctx context.Context, entry *model.ReviewQueueItem) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal review entry")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO review_queue (id, tenant_id, reason, body, resolved, created_at) VALUES ($1, $2, $3, $4, false, $5)`,
		entry.ID, entry.TenantID, entry.Reason, body, entry.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: enqueue review %s", entry.ID)
}

func (s *PostgresStore) ListReview(ctx context.Context, tenantID string, limit int) ([]model.ReviewQueueItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT body FROM review_queue WHERE tenant_id = $1 AND resolved = false ORDER BY created_at LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list review queue")
	}
	defer rows.Close()

	var out []model.ReviewQueueItem
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review entry")
		}
		var entry model.ReviewQueueItem
		if err := json.Unmarshal(body, &entry); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal review entry")
		}
		out = append(out, entry)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate review queue")
}

func (s *PostgresStore) ResolveReview(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE review_queue SET resolved = true WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve review %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "review entry %s", id)
	}
	return nil
}

func (s *PostgresStore) SaveDeadLetter(ctx context.Context, entry *resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dead letter")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letters (id, tenant_id, document, error_type, body, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.TenantID, entry.Document, entry.ErrorType, body, entry.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save dead letter %s", entry.ID)
}

func (s *PostgresStore) ListDeadLetters(ctx context.Context, tenantID string, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT body FROM dead_letters WHERE tenant_id = $1`
	args := []any{tenantID}
	if filter.ErrorType != "" {
		query += ` AND error_type = $2`
		args = append(args, filter.ErrorType)
	}
	query += fmt.Sprintf(` ORDER BY created_at LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dead letters")
	}
	defer rows.Close()

	var out []resilience.DLQEntry
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dead letter")
		}
		var entry resilience.DLQEntry
		if err := json.Unmarshal(body, &entry); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dead letter")
		}
		out = append(out, entry)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate dead letters")
}

func (s *PostgresStore) GetCachedIngestion(ctx context.Context, tenantID, checksum string) (*model.IngestionCache, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM ingestion_cache WHERE tenant_id = $1 AND checksum = $2 AND expires_at > now()`,
		tenantID, checksum,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached ingestion")
	}
	var cache model.IngestionCache
	if err := json.Unmarshal(body, &cache); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal ingestion cache")
	}
	return &cache, nil
}

func (s *PostgresStore) SetCachedIngestion(ctx context.Context, tenantID, checksum string, items []model.Item, ttl time.Duration) error {
	now := time.Now().UTC()
	cache := model.IngestionCache{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Checksum:  checksum,
		Items:     items,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	body, err := json.Marshal(cache)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal ingestion cache")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO ingestion_cache (id, tenant_id, checksum, body, created_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (tenant_id, checksum) DO UPDATE SET body = EXCLUDED.body, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		cache.ID, tenantID, checksum, body, now, cache.ExpiresAt,
	)
	return eris.Wrap(err, "postgres: set cached ingestion")
}

func (s *PostgresStore) DeleteExpiredIngestions(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ingestion_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired ingestions")
	}
	return int(tag.RowsAffected()), nil
}
