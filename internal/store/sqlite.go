package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS variants (
    id TEXT PRIMARY KEY,
    variant_key TEXT UNIQUE NOT NULL,
    question_text TEXT NOT NULL,
    context_hint TEXT NOT NULL DEFAULT '',
    alpha REAL NOT NULL DEFAULT 1.0,
    beta REAL NOT NULL DEFAULT 1.0,
    is_seed INTEGER NOT NULL DEFAULT 0,
    parent_id TEXT REFERENCES variants(id),
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_variants_created ON variants(created_at);

CREATE TABLE IF NOT EXISTS selections (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    variant_id TEXT NOT NULL REFERENCES variants(id),
    session_id TEXT NOT NULL,
    cohort_key TEXT NOT NULL DEFAULT '',
    style TEXT NOT NULL DEFAULT '',
    response_text TEXT,
    conversion_event TEXT,
    window_start INTEGER NOT NULL,
    window_end INTEGER NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_selections_subject ON selections(subject_id, conversion_event);
CREATE INDEX IF NOT EXISTS idx_selections_expiry ON selections(conversion_event, window_end);

CREATE TABLE IF NOT EXISTS segments (
    segment_key TEXT PRIMARY KEY,
    sample_size INTEGER NOT NULL,
    avg_conversion_rate REAL NOT NULL,
    top_variants TEXT NOT NULL DEFAULT '[]',
    distribution TEXT NOT NULL DEFAULT '{}',
    updated_at INTEGER NOT NULL
);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers; SQLite allows a single writer
	// anyway, and this avoids SQLITE_BUSY under concurrent updates.
	db.SetMaxOpenConns(1)

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const variantColumns = `id, variant_key, question_text, context_hint, alpha, beta, is_seed, parent_id, created_at`

func scanVariant(row interface{ Scan(...any) error }) (*Variant, error) {
	var v Variant
	var isSeed int
	var parentID sql.NullString
	var createdAt int64

	err := row.Scan(&v.ID, &v.Key, &v.Text, &v.ContextHint, &v.Alpha, &v.Beta, &isSeed, &parentID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan variant: %w", err)
	}

	// Malformed weights would silently corrupt the learning history, so a
	// bad row fails the read instead of being coerced to the prior.
	if v.Alpha <= 0 || v.Beta <= 0 {
		return nil, fmt.Errorf("malformed variant %s: alpha=%g beta=%g (both must be > 0)", v.ID, v.Alpha, v.Beta)
	}

	v.IsSeed = isSeed != 0
	if parentID.Valid {
		v.ParentID = &parentID.String
	}
	v.CreatedAt = time.Unix(createdAt, 0)

	return &v, nil
}

// ListVariants returns the full pool in stable order: creation time
// ascending, insert order as the tie break. Selection depends on this
// ordering for deterministic tie handling.
func (s *SQLiteStore) ListVariants(ctx context.Context) ([]*Variant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+variantColumns+` FROM variants ORDER BY created_at ASC, rowid ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	defer rows.Close()

	var variants []*Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}

	return variants, rows.Err()
}

func (s *SQLiteStore) GetVariant(ctx context.Context, id string) (*Variant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE id = ?`, id,
	)
	return scanVariant(row)
}

func (s *SQLiteStore) GetVariantByKey(ctx context.Context, key string) (*Variant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE variant_key = ?`, key,
	)
	return scanVariant(row)
}

// AtomicAddWeight adds a non-negative delta to one side of a variant's Beta
// parameters as a single UPDATE, so concurrent updates for the same variant
// never lose increments.
func (s *SQLiteStore) AtomicAddWeight(ctx context.Context, id string, field WeightField, delta float64) error {
	var column string
	switch field {
	case FieldAlpha:
		column = "alpha"
	case FieldBeta:
		column = "beta"
	default:
		return fmt.Errorf("invalid weight field: %q", field)
	}
	if delta < 0 {
		return fmt.Errorf("negative weight delta: %g", delta)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE variants SET `+column+` = `+column+` + ? WHERE id = ?`,
		delta, id,
	)
	if err != nil {
		return fmt.Errorf("failed to add weight: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLiteStore) InsertVariants(ctx context.Context, variants []NewVariant) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	ids := make([]string, 0, len(variants))

	for _, nv := range variants {
		id := uuid.NewString()
		var parentID sql.NullString
		if nv.ParentID != nil {
			parentID = sql.NullString{String: *nv.ParentID, Valid: true}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO variants (id, variant_key, question_text, context_hint, alpha, beta, is_seed, parent_id, created_at)
			 VALUES (?, ?, ?, ?, 1.0, 1.0, ?, ?, ?)`,
			id, nv.Key, nv.Text, nv.ContextHint, boolToInt(nv.IsSeed), parentID, now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert variant %q: %w", nv.Key, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit variants: %w", err)
	}

	return ids, nil
}

// NewestGeneratedAt returns the creation time of the most recent non-seed
// variant, or ErrNotFound if nothing has been generated yet. The plateau
// cycle uses this as its restart-safe cooldown clock.
func (s *SQLiteStore) NewestGeneratedAt(ctx context.Context) (time.Time, error) {
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM variants WHERE is_seed = 0 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query newest generated variant: %w", err)
	}
	return time.Unix(createdAt, 0), nil
}

func (s *SQLiteStore) InsertSelection(ctx context.Context, sel *Selection) (string, error) {
	id := uuid.NewString()
	now := time.Now().Unix()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO selections (id, subject_id, variant_id, session_id, cohort_key, style, window_start, window_end, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sel.SubjectID, sel.VariantID, sel.SessionID, sel.CohortKey, sel.Style,
		sel.WindowStart.Unix(), sel.WindowEnd.Unix(), now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert selection: %w", err)
	}

	return id, nil
}

const selectionColumns = `id, subject_id, variant_id, session_id, cohort_key, style, response_text, conversion_event, window_start, window_end, created_at`

func scanSelection(row interface{ Scan(...any) error }) (*Selection, error) {
	var sel Selection
	var responseText, conversionEvent sql.NullString
	var windowStart, windowEnd, createdAt int64

	err := row.Scan(&sel.ID, &sel.SubjectID, &sel.VariantID, &sel.SessionID,
		&sel.CohortKey, &sel.Style,
		&responseText, &conversionEvent, &windowStart, &windowEnd, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan selection: %w", err)
	}

	if responseText.Valid {
		sel.ResponseText = &responseText.String
	}
	if conversionEvent.Valid {
		sel.ConversionEvent = &conversionEvent.String
	}
	sel.WindowStart = time.Unix(windowStart, 0)
	sel.WindowEnd = time.Unix(windowEnd, 0)
	sel.CreatedAt = time.Unix(createdAt, 0)

	return &sel, nil
}

// FindOpenSelectionsForSubject returns the subject's open, unexpired
// observation windows, most recently created first.
func (s *SQLiteStore) FindOpenSelectionsForSubject(ctx context.Context, subjectID string) ([]*Selection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectionColumns+` FROM selections
		 WHERE subject_id = ? AND conversion_event IS NULL AND window_end >= ?
		 ORDER BY created_at DESC, rowid DESC`,
		subjectID, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find open selections: %w", err)
	}
	defer rows.Close()

	var selections []*Selection
	for rows.Next() {
		sel, err := scanSelection(rows)
		if err != nil {
			return nil, err
		}
		selections = append(selections, sel)
	}

	return selections, rows.Err()
}

// CloseSelectionIfOpen closes an observation window exactly once. The guard
// on conversion_event being still null is part of the UPDATE itself, so a
// conversion and an expiry sweep racing on the same row cannot both win.
// Returns false if the selection was already closed.
func (s *SQLiteStore) CloseSelectionIfOpen(ctx context.Context, id, conversionEvent, responseText string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE selections SET conversion_event = ?, response_text = ?
		 WHERE id = ? AND conversion_event IS NULL`,
		conversionEvent, nullableString(responseText), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to close selection: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (s *SQLiteStore) FindExpiredOpenSelections(ctx context.Context, limit int) ([]*Selection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectionColumns+` FROM selections
		 WHERE conversion_event IS NULL AND window_end < ?
		 ORDER BY window_end ASC LIMIT ?`,
		time.Now().Unix(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired selections: %w", err)
	}
	defer rows.Close()

	var selections []*Selection
	for rows.Next() {
		sel, err := scanSelection(rows)
		if err != nil {
			return nil, err
		}
		selections = append(selections, sel)
	}

	return selections, rows.Err()
}

func (s *SQLiteStore) GetSegmentModel(ctx context.Context, key string) (*SegmentModel, error) {
	var m SegmentModel
	var topVariantsJSON, distributionJSON string
	var updatedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT segment_key, sample_size, avg_conversion_rate, top_variants, distribution, updated_at
		 FROM segments WHERE segment_key = ?`, key,
	).Scan(&m.SegmentKey, &m.SampleSize, &m.AvgConversionRate, &topVariantsJSON, &distributionJSON, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get segment model: %w", err)
	}

	if m.AvgConversionRate < 0 || m.AvgConversionRate > 1 {
		return nil, fmt.Errorf("malformed segment %s: avg_conversion_rate=%g outside [0,1]", key, m.AvgConversionRate)
	}

	if err := json.Unmarshal([]byte(topVariantsJSON), &m.TopVariants); err != nil {
		return nil, fmt.Errorf("malformed segment %s: bad top_variants: %w", key, err)
	}
	if err := json.Unmarshal([]byte(distributionJSON), &m.Distribution); err != nil {
		return nil, fmt.Errorf("malformed segment %s: bad distribution: %w", key, err)
	}

	m.UpdatedAt = time.Unix(updatedAt, 0)

	return &m, nil
}

func (s *SQLiteStore) UpsertSegmentModel(ctx context.Context, m *SegmentModel) error {
	topVariantsJSON, err := json.Marshal(m.TopVariants)
	if err != nil {
		return fmt.Errorf("failed to marshal top variants: %w", err)
	}
	distributionJSON, err := json.Marshal(m.Distribution)
	if err != nil {
		return fmt.Errorf("failed to marshal distribution: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO segments (segment_key, sample_size, avg_conversion_rate, top_variants, distribution, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(segment_key) DO UPDATE SET
		   sample_size = excluded.sample_size,
		   avg_conversion_rate = excluded.avg_conversion_rate,
		   top_variants = excluded.top_variants,
		   distribution = excluded.distribution,
		   updated_at = excluded.updated_at`,
		m.SegmentKey, m.SampleSize, m.AvgConversionRate,
		string(topVariantsJSON), string(distributionJSON), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert segment model: %w", err)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
