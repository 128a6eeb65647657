package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/communityfood/discovery-engine/internal/cooldown"
	"github.com/communityfood/discovery-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqliteTimeLayout is fixed width so stored timestamps sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS resources (
	id            TEXT PRIMARY KEY,
	fingerprint   TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	address       TEXT NOT NULL,
	city          TEXT NOT NULL,
	state         TEXT NOT NULL,
	zip           TEXT NOT NULL,
	latitude      REAL NOT NULL,
	longitude     REAL NOT NULL,
	phone         TEXT,
	website       TEXT,
	description   TEXT,
	services      TEXT NOT NULL DEFAULT '[]',
	hours         TEXT,
	source_url    TEXT NOT NULL,
	source_urls   TEXT NOT NULL DEFAULT '[]',
	confidence    REAL NOT NULL,
	factors       TEXT NOT NULL,
	status        TEXT NOT NULL,
	needs_review  INTEGER NOT NULL DEFAULT 0,
	discovered_by TEXT,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_resources_lat_lng ON resources(latitude, longitude);

CREATE TABLE IF NOT EXISTS discovery_events (
	id            TEXT PRIMARY KEY,
	location_hash TEXT NOT NULL,
	status        TEXT NOT NULL,
	provider      TEXT NOT NULL,
	user_id       TEXT,
	result_count  INTEGER NOT NULL DEFAULT 0,
	metadata      TEXT,
	searched_at   TEXT NOT NULL,
	completed_at  TEXT
);

CREATE INDEX IF NOT EXISTS idx_discovery_events_hash_searched ON discovery_events(location_hash, searched_at);
CREATE UNIQUE INDEX IF NOT EXISTS uq_discovery_events_in_progress ON discovery_events(location_hash) WHERE status = 'in_progress';

CREATE TABLE IF NOT EXISTS tombstones (
	id                 TEXT PRIMARY KEY,
	address            TEXT NOT NULL,
	normalized_address TEXT NOT NULL UNIQUE,
	reason             TEXT NOT NULL DEFAULT '',
	created_at         TEXT NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindTombstone(ctx context.Context, normalizedAddress string) (*model.Tombstone, error) {
	var t model.Tombstone
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, address, normalized_address, reason, created_at FROM tombstones WHERE normalized_address = ?`,
		normalizedAddress,
	).Scan(&t.ID, &t.Address, &t.NormalizedAddress, &t.Reason, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find tombstone")
	}
	if t.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) InsertTombstones(ctx context.Context, tombstones []model.Tombstone) (int64, error) {
	prepared := prepareTombstones(tombstones)
	if len(prepared) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tombstone tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, t := range prepared {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO tombstones (id, address, normalized_address, reason, created_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(normalized_address) DO NOTHING`,
			t.ID, t.Address, t.NormalizedAddress, t.Reason, formatSQLiteTime(t.CreatedAt),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert tombstone %s", t.NormalizedAddress)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "rows affected")
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tombstones")
	}
	return total, nil
}

func (s *SQLiteStore) FindInBoundingBox(ctx context.Context, box model.BoundingBox) ([]model.InventoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, address, latitude, longitude FROM resources
		 WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find in bounding box")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.InventoryRecord
	for rows.Next() {
		var rec model.InventoryRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Address, &rec.Latitude, &rec.Longitude); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan inventory record")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate inventory records")
	}
	return out, nil
}

func (s *SQLiteStore) UpsertResource(ctx context.Context, r *model.Resource) (bool, error) {
	args, err := resourceArgs(r)
	if err != nil {
		return false, err
	}
	// Trailing timestamps are stored as text.
	args[21] = formatSQLiteTime(r.CreatedAt)
	args[22] = formatSQLiteTime(r.UpdatedAt)
	for _, i := range []int{12, 13, 15, 17} {
		if b, ok := args[i].([]byte); ok {
			if b == nil {
				args[i] = nil
			} else {
				args[i] = string(b)
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin resource tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var existingID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM resources WHERE fingerprint = ?`, r.Fingerprint).Scan(&existingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, eris.Wrapf(err, "sqlite: lookup resource %s", r.Fingerprint)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO resources
		 (id, fingerprint, name, address, city, state, zip, latitude, longitude, phone, website, description,
		  services, hours, source_url, source_urls, confidence, factors, status, needs_review, discovered_by,
		  created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
		  phone = COALESCE(resources.phone, excluded.phone),
		  website = COALESCE(resources.website, excluded.website),
		  description = COALESCE(resources.description, excluded.description),
		  hours = COALESCE(resources.hours, excluded.hours),
		  services = excluded.services,
		  source_urls = excluded.source_urls,
		  confidence = MAX(resources.confidence, excluded.confidence),
		  factors = excluded.factors,
		  status = CASE WHEN resources.status = 'published' THEN resources.status ELSE excluded.status END,
		  needs_review = resources.needs_review AND excluded.needs_review,
		  updated_at = excluded.updated_at`,
		args...,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert resource %s", r.Fingerprint)
	}
	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit resource")
	}

	if existingID != "" {
		r.ID = existingID
		return false, nil
	}
	return true, nil
}

func (s *SQLiteStore) InsertEvent(ctx context.Context, ev *model.DiscoveryEvent) error {
	meta, err := marshalMetadata(ev.Metadata)
	if err != nil {
		return err
	}
	var metaArg any
	if meta != nil {
		metaArg = string(meta)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO discovery_events (id, location_hash, status, provider, user_id, result_count, metadata, searched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		ev.ID, ev.LocationHash, string(ev.Status), ev.Provider, ev.UserID, ev.ResultCount, metaArg,
		formatSQLiteTime(ev.SearchedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert event %s", ev.LocationHash)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(cooldown.ErrRunInProgress, "sqlite: insert event %s", ev.LocationHash)
	}
	return nil
}

func (s *SQLiteStore) CompleteEvent(ctx context.Context, id string, status model.EventStatus, resultCount int, completedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_events SET status = ?, result_count = ?, completed_at = ?
		 WHERE id = ? AND status = 'in_progress'`,
		string(status), resultCount, formatSQLiteTime(completedAt), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete event %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(cooldown.ErrAlreadyFinalized, "sqlite: complete event %s", id)
	}
	return nil
}

const sqliteEventColumns = `id, location_hash, status, provider, user_id, result_count, metadata, searched_at, completed_at`

func (s *SQLiteStore) LatestEventSince(ctx context.Context, locationHash string, since time.Time) (*model.DiscoveryEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteEventColumns+` FROM discovery_events
		 WHERE location_hash = ? AND searched_at >= ?
		 ORDER BY searched_at DESC LIMIT 1`,
		locationHash, formatSQLiteTime(since),
	)
	ev, err := scanSQLiteEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest event %s", locationHash)
	}
	return ev, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, limit int) ([]model.DiscoveryEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteEventColumns+` FROM discovery_events ORDER BY searched_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DiscoveryEvent
	for rows.Next() {
		ev, err := scanSQLiteEvent(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate events")
	}
	return out, nil
}

func scanSQLiteEvent(row scannable) (*model.DiscoveryEvent, error) {
	var (
		ev        model.DiscoveryEvent
		status    string
		userID    sql.NullString
		meta      sql.NullString
		searched  string
		completed sql.NullString
	)
	if err := row.Scan(&ev.ID, &ev.LocationHash, &status, &ev.Provider, &userID,
		&ev.ResultCount, &meta, &searched, &completed); err != nil {
		return nil, err
	}
	ev.Status = model.EventStatus(status)
	if userID.Valid {
		ev.UserID = &userID.String
	}
	if meta.Valid {
		if err := unmarshalMetadata([]byte(meta.String), &ev); err != nil {
			return nil, err
		}
	}
	var err error
	if ev.SearchedAt, err = parseSQLiteTime(searched); err != nil {
		return nil, err
	}
	if completed.Valid {
		t, err := parseSQLiteTime(completed.String)
		if err != nil {
			return nil, err
		}
		ev.CompletedAt = &t
	}
	return &ev, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}
