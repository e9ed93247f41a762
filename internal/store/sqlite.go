package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/internal/resilience"
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
CREATE TABLE IF NOT EXISTS templates (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	name       TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS corrections (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	session_id TEXT,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS items (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	item_type  TEXT,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS review_queue (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	reason     TEXT NOT NULL,
	body       TEXT NOT NULL,
	resolved   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	status     TEXT NOT NULL,
	body       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	document   TEXT NOT NULL,
	error_type TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ingestion_cache (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_templates_tenant ON templates(tenant_id);
CREATE INDEX IF NOT EXISTS idx_corrections_tenant ON corrections(tenant_id, session_id);
CREATE INDEX IF NOT EXISTS idx_items_tenant ON items(tenant_id, item_type);
CREATE INDEX IF NOT EXISTS idx_review_queue_tenant ON review_queue(tenant_id, resolved);
CREATE INDEX IF NOT EXISTS idx_sessions_tenant ON sessions(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_dead_letters_tenant ON dead_letters(tenant_id, error_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ingestion_cache_checksum ON ingestion_cache(tenant_id, checksum);
CREATE INDEX IF NOT EXISTS idx_ingestion_cache_expires ON ingestion_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveTemplate(ctx context.Context, tpl *model.ExtractionTemplate) error {
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
		return eris.Wrap(err, "sqlite: marshal template")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO templates (id, tenant_id, name, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, body = excluded.body, updated_at = excluded.updated_at`,
		tpl.ID, tpl.TenantID, tpl.Name, string(body), tpl.CreatedAt, tpl.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save template %s", tpl.ID)
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*model.ExtractionTemplate, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM templates WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "template %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get template %s", id)
	}
	var tpl model.ExtractionTemplate
	if err := json.Unmarshal([]byte(body), &tpl); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal template")
	}
	return &tpl, nil
}

func (s *SQLiteStore) ListTemplates(ctx context.Context, tenantID string) ([]*model.ExtractionTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM templates WHERE tenant_id = ? ORDER BY updated_at DESC`, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list templates")
	}
	defer rows.Close()

	var out []*model.ExtractionTemplate
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan template")
		}
		var tpl model.ExtractionTemplate
		if err := json.Unmarshal([]byte(body), &tpl); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal template")
		}
		out = append(out, &tpl)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate templates")
}

func (s *SQLiteStore) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete template %s", id)
	}
	return checkRowsAffected(res, "template", id)
}

func (s *SQLiteStore) SaveCorrection(ctx context.Context, c *model.Correction) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal correction")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO corrections (id, tenant_id, session_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.SessionID, string(body), c.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: save correction %s", c.ID)
}

func (s *SQLiteStore) ListCorrections(ctx context.Context, tenantID, sessionID string) ([]model.Correction, error) {
	query := `SELECT body FROM corrections WHERE tenant_id = ?`
	args := []any{tenantID}
	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list corrections")
	}
	defer rows.Close()

	var out []model.Correction
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan correction")
		}
		var c model.Correction
		if err := json.Unmarshal([]byte(body), &c); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal correction")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate corrections")
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.Session) error {
	body, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, tenant_id, status, body, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, body = excluded.body, updated_at = excluded.updated_at`,
		sess.ID, sess.TenantID, string(sess.Status), string(body), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save session %s", sess.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM sessions WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}
	var sess model.Session
	if err := json.Unmarshal([]byte(body), &sess); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal session")
	}
	return &sess, nil
}

func (s *SQLiteStore) SaveItems(ctx context.Context, items []model.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (id, tenant_id, item_type, body, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body, item_type = excluded.item_type`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare item insert")
	}
	defer stmt.Close()

	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.New().String()
		}
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = time.Now().UTC()
		}
		body, err := json.Marshal(items[i])
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal item")
		}
		if _, err := stmt.ExecContext(ctx,
			items[i].ID, items[i].TenantID, items[i].StringValue(model.FieldItemType),
			string(body), items[i].CreatedAt,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert item %s", items[i].ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit items")
	}
	return len(items), nil
}

func (s *SQLiteStore) ListItems(ctx context.Context, filter ItemFilter) ([]model.Item, error) {
	query := `SELECT body FROM items WHERE tenant_id = ?`
	args := []any{filter.TenantID}
	if filter.ItemType != "" {
		query += ` AND item_type = ?`
		args = append(args, filter.ItemType)
	}
	query += ` ORDER BY created_at`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list items")
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		var it model.Item
		if err := json.Unmarshal([]byte(body), &it); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal item")
		}
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate items")
}

func (s *SQLiteStore) EnqueueReview(ctx context.Context, entry *model.ReviewQueueItem) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal review entry")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO review_queue (id, tenant_id, reason, body, resolved, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		entry.ID, entry.TenantID, entry.Reason, string(body), entry.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: enqueue review %s", entry.ID)
}

func (s *SQLiteStore) ListReview(ctx context.Context, tenantID string, limit int) ([]model.ReviewQueueItem, error) {
	query := `SELECT body FROM review_queue WHERE tenant_id = ? AND resolved = 0 ORDER BY created_at`
	args := []any{tenantID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list review queue")
	}
	defer rows.Close()

	var out []model.ReviewQueueItem
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review entry")
		}
		var entry model.ReviewQueueItem
		if err := json.Unmarshal([]byte(body), &entry); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal review entry")
		}
		out = append(out, entry)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate review queue")
}

func (s *SQLiteStore) ResolveReview(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE review_queue SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve review %s", id)
	}
	return checkRowsAffected(res, "review entry", id)
}

func (s *SQLiteStore) SaveDeadLetter(ctx context.Context, entry *resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dead letter")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (id, tenant_id, document, error_type, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TenantID, entry.Document, entry.ErrorType, string(body), entry.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: save dead letter %s", entry.ID)
}

func (s *SQLiteStore) ListDeadLetters(ctx context.Context, tenantID string, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT body FROM dead_letters WHERE tenant_id = ?`
	args := []any{tenantID}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY created_at`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dead letters")
	}
	defer rows.Close()

	var out []resilience.DLQEntry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dead letter")
		}
		var entry resilience.DLQEntry
		if err := json.Unmarshal([]byte(body), &entry); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dead letter")
		}
		out = append(out, entry)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate dead letters")
}

func (s *SQLiteStore) GetCachedIngestion(ctx context.Context, tenantID, checksum string) (*model.IngestionCache, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM ingestion_cache WHERE tenant_id = ? AND checksum = ? AND expires_at > datetime('now')`,
		tenantID, checksum,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached ingestion")
	}
	var cache model.IngestionCache
	if err := json.Unmarshal([]byte(body), &cache); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal ingestion cache")
	}
	return &cache, nil
}

func (s *SQLiteStore) SetCachedIngestion(ctx context.Context, tenantID, checksum string, items []model.Item, ttl time.Duration) error {
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
		return eris.Wrap(err, "sqlite: marshal ingestion cache")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingestion_cache (id, tenant_id, checksum, body, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, checksum) DO UPDATE SET body = excluded.body, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		cache.ID, tenantID, checksum, string(body), now, cache.ExpiresAt,
	)
	return eris.Wrap(err, "sqlite: set cached ingestion")
}

func (s *SQLiteStore) DeleteExpiredIngestions(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ingestion_cache WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired ingestions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", kind, id)
	}
	return nil
}
