package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/communityfood/discovery-engine/internal/cooldown"
	"github.com/communityfood/discovery-engine/internal/db"
	"github.com/communityfood/discovery-engine/internal/model"
	"github.com/communityfood/discovery-engine/internal/normalize"
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

const (
	sqlFindTombstone = `SELECT id, address, normalized_address, reason, created_at FROM tombstones WHERE normalized_address = $1`

	sqlFindInBox = `SELECT id, name, address, latitude, longitude FROM resources
	 WHERE latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4`

	sqlInsertEvent = `INSERT INTO discovery_events
	 (id, location_hash, status, provider, user_id, result_count, metadata, searched_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	 ON CONFLICT (location_hash) WHERE status = 'in_progress' DO NOTHING`

	sqlCompleteEvent = `UPDATE discovery_events SET status = $1, result_count = $2, completed_at = $3
	 WHERE id = $4 AND status = 'in_progress'`

	sqlLatestEvent = `SELECT id, location_hash, status, provider, user_id, result_count, metadata, searched_at, completed_at
	 FROM discovery_events WHERE location_hash = $1 AND searched_at >= $2
	 ORDER BY searched_at DESC LIMIT 1`

	sqlListEvents = `SELECT id, location_hash, status, provider, user_id, result_count, metadata, searched_at, completed_at
	 FROM discovery_events ORDER BY searched_at DESC LIMIT $1`

	sqlUpsertResource = `INSERT INTO resources
	 (id, fingerprint, name, address, city, state, zip, latitude, longitude, phone, website, description,
	  services, hours, source_url, source_urls, confidence, factors, status, needs_review, discovered_by,
	  created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	 ON CONFLICT (fingerprint) DO UPDATE SET
	  phone = COALESCE(resources.phone, EXCLUDED.phone),
	  website = COALESCE(resources.website, EXCLUDED.website),
	  description = COALESCE(resources.description, EXCLUDED.description),
	  hours = COALESCE(resources.hours, EXCLUDED.hours),
	  services = EXCLUDED.services,
	  source_urls = EXCLUDED.source_urls,
	  confidence = GREATEST(resources.confidence, EXCLUDED.confidence),
	  factors = EXCLUDED.factors,
	  status = CASE WHEN resources.status = 'published' THEN resources.status ELSE EXCLUDED.status END,
	  needs_review = resources.needs_review AND EXCLUDED.needs_review,
	  updated_at = EXCLUDED.updated_at
	 RETURNING id, (xmax = 0) AS inserted`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"find_tombstone":  sqlFindTombstone,
	"find_in_box":     sqlFindInBox,
	"insert_event":    sqlInsertEvent,
	"complete_event":  sqlCompleteEvent,
	"latest_event":    sqlLatestEvent,
	"list_events":     sqlListEvents,
	"upsert_resource": sqlUpsertResource,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables do not exist until the first migrate.
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
					continue
				}
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

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS resources (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	fingerprint   TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	address       TEXT NOT NULL,
	city          TEXT NOT NULL,
	state         TEXT NOT NULL,
	zip           TEXT NOT NULL,
	latitude      DOUBLE PRECISION NOT NULL,
	longitude     DOUBLE PRECISION NOT NULL,
	phone         TEXT,
	website       TEXT,
	description   TEXT,
	services      JSONB NOT NULL DEFAULT '[]',
	hours         JSONB,
	source_url    TEXT NOT NULL,
	source_urls   JSONB NOT NULL DEFAULT '[]',
	confidence    DOUBLE PRECISION NOT NULL,
	factors       JSONB NOT NULL,
	status        TEXT NOT NULL,
	needs_review  BOOLEAN NOT NULL DEFAULT false,
	discovered_by TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_resources_lat_lng ON resources(latitude, longitude);

CREATE TABLE IF NOT EXISTS discovery_events (
	id            TEXT PRIMARY KEY,
	location_hash TEXT NOT NULL,
	status        TEXT NOT NULL,
	provider      TEXT NOT NULL,
	user_id       TEXT,
	result_count  INTEGER NOT NULL DEFAULT 0,
	metadata      JSONB,
	searched_at   TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_discovery_events_hash_searched ON discovery_events(location_hash, searched_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS uq_discovery_events_in_progress ON discovery_events(location_hash) WHERE status = 'in_progress';

CREATE TABLE IF NOT EXISTS tombstones (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	address            TEXT NOT NULL,
	normalized_address TEXT NOT NULL UNIQUE,
	reason             TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
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

func (s *PostgresStore) FindTombstone(ctx context.Context, normalizedAddress string) (*model.Tombstone, error) {
	var t model.Tombstone
	err := s.pool.QueryRow(ctx, sqlFindTombstone, normalizedAddress).
		Scan(&t.ID, &t.Address, &t.NormalizedAddress, &t.Reason, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find tombstone")
	}
	return &t, nil
}

var tombstoneColumns = []string{"id", "address", "normalized_address", "reason", "created_at"}

// InsertTombstones bulk-loads tombstones. Addresses already tombstoned are
// left untouched; the return value counts new rows only.
func (s *PostgresStore) InsertTombstones(ctx context.Context, tombstones []model.Tombstone) (int64, error) {
	prepared := prepareTombstones(tombstones)
	rows := make([][]any, 0, len(prepared))
	for _, t := range prepared {
		rows = append(rows, []any{t.ID, t.Address, t.NormalizedAddress, t.Reason, t.CreatedAt})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "tombstones",
		Columns:      tombstoneColumns,
		ConflictKeys: []string{"normalized_address"},
		DoNothing:    true,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert tombstones")
	}
	return n, nil
}

func (s *PostgresStore) FindInBoundingBox(ctx context.Context, box model.BoundingBox) ([]model.InventoryRecord, error) {
	rows, err := s.pool.Query(ctx, sqlFindInBox, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find in bounding box")
	}
	defer rows.Close()

	var out []model.InventoryRecord
	for rows.Next() {
		var rec model.InventoryRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Address, &rec.Latitude, &rec.Longitude); err != nil {
			return nil, eris.Wrap(err, "postgres: scan inventory record")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate inventory records")
	}
	return out, nil
}

// UpsertResource inserts r keyed on its fingerprint, or merges it into the
// existing row. It reports whether a new row was created and sets r.ID.
func (s *PostgresStore) UpsertResource(ctx context.Context, r *model.Resource) (bool, error) {
	args, err := resourceArgs(r)
	if err != nil {
		return false, err
	}

	var inserted bool
	if err := s.pool.QueryRow(ctx, sqlUpsertResource, args...).Scan(&r.ID, &inserted); err != nil {
		return false, eris.Wrapf(err, "postgres: upsert resource %s", r.Fingerprint)
	}
	return inserted, nil
}

func (s *PostgresStore) InsertEvent(ctx context.Context, ev *model.DiscoveryEvent) error {
	meta, err := marshalMetadata(ev.Metadata)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, sqlInsertEvent,
		ev.ID, ev.LocationHash, string(ev.Status), ev.Provider, ev.UserID, ev.ResultCount, meta, ev.SearchedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert event %s", ev.LocationHash)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(cooldown.ErrRunInProgress, "postgres: insert event %s", ev.LocationHash)
	}
	return nil
}

func (s *PostgresStore) CompleteEvent(ctx context.Context, id string, status model.EventStatus, resultCount int, completedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, sqlCompleteEvent, string(status), resultCount, completedAt, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete event %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(cooldown.ErrAlreadyFinalized, "postgres: complete event %s", id)
	}
	return nil
}

func (s *PostgresStore) LatestEventSince(ctx context.Context, locationHash string, since time.Time) (*model.DiscoveryEvent, error) {
	ev, err := scanPostgresEvent(s.pool.QueryRow(ctx, sqlLatestEvent, locationHash, since))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest event %s", locationHash)
	}
	return ev, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, limit int) ([]model.DiscoveryEvent, error) {
	rows, err := s.pool.Query(ctx, sqlListEvents, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var out []model.DiscoveryEvent
	for rows.Next() {
		ev, err := scanPostgresEvent(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate events")
	}
	return out, nil
}

func scanPostgresEvent(row scannable) (*model.DiscoveryEvent, error) {
	var ev model.DiscoveryEvent
	var status string
	var meta []byte
	if err := row.Scan(&ev.ID, &ev.LocationHash, &status, &ev.Provider, &ev.UserID,
		&ev.ResultCount, &meta, &ev.SearchedAt, &ev.CompletedAt); err != nil {
		return nil, err
	}
	ev.Status = model.EventStatus(status)
	if err := unmarshalMetadata(meta, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

type scannable interface {
	Scan(dest ...any) error
}

// prepareTombstones fills derived fields and drops entries with no address.
func prepareTombstones(in []model.Tombstone) []model.Tombstone {
	now := time.Now().UTC()
	out := make([]model.Tombstone, 0, len(in))
	for _, t := range in {
		if t.NormalizedAddress == "" {
			t.NormalizedAddress = normalize.TombstoneKey(t.Address)
		}
		if t.NormalizedAddress == "" {
			continue
		}
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		out = append(out, t)
	}
	return out
}

func marshalMetadata(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal event metadata")
	}
	return b, nil
}

func unmarshalMetadata(raw []byte, ev *model.DiscoveryEvent) error {
	if len(raw) == 0 {
		return nil
	}
	return eris.Wrap(json.Unmarshal(raw, &ev.Metadata), "store: unmarshal event metadata")
}

// resourceArgs flattens r into the column order of the resources table,
// assigning an ID and timestamps when missing.
func resourceArgs(r *model.Resource) ([]any, error) {
	if r.Fingerprint == "" {
		return nil, eris.New("store: resource has no fingerprint")
	}
	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	res := r.Result
	services := res.Services
	if services == nil {
		services = []string{}
	}
	servicesJSON, err := json.Marshal(services)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal services")
	}
	var hoursJSON []byte
	if !res.Hours.IsEmpty() {
		if hoursJSON, err = json.Marshal(res.Hours); err != nil {
			return nil, eris.Wrap(err, "store: marshal hours")
		}
	}
	sources := res.SourceURLs
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal source urls")
	}
	factorsJSON, err := json.Marshal(r.Factors)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal factors")
	}

	var discoveredBy *string
	if r.DiscoveredBy != "" {
		discoveredBy = &r.DiscoveredBy
	}

	return []any{
		r.ID, r.Fingerprint, res.Name, res.Address, res.City, res.State, res.Zip,
		res.Latitude, res.Longitude, res.Phone, res.Website, res.Description,
		servicesJSON, hoursJSON, res.SourceURL, sourcesJSON, r.Confidence, factorsJSON,
		string(r.Status), r.NeedsReview, discoveredBy, r.CreatedAt, r.UpdatedAt,
	}, nil
}
