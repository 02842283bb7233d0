// Package sqlite implements the durable ledger on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/domain/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ledger implements ledger.Ledger on SQLite. Timestamps are stored as unix
// microseconds.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

var _ ledger.Ledger = (*Ledger)(nil)

// Open opens (creating if needed) the database at path and applies
// migrations.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if err := Migrate(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping database: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Migrate applies the embedded schema migrations to the file at path.
func Migrate(path string) error {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return fmt.Errorf("sqlite: open for migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("sqlite: create migrate driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("sqlite: create source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("sqlite: create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: run migrations: %w", err)
	}
	return nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (l *Ledger) Append(ctx context.Context, rec model.ScoreRecord, displayName string) (model.ScoreRecord, error) {
	rec, err := ledger.Prepare(rec, l.now())
	if err != nil {
		return model.ScoreRecord{}, err
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return model.ScoreRecord{}, fmt.Errorf("%w: metadata: %w", ledger.ErrInvalidRecord, err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ScoreRecord{}, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE id = ?`, rec.CategoryID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScoreRecord{}, fmt.Errorf("append: %w: %s", ledger.ErrCategoryNotFound, rec.CategoryID)
	}
	if err != nil {
		return model.ScoreRecord{}, fmt.Errorf("sqlite: check category: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO players (id, display_name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name`,
		rec.UserID, displayName,
	); err != nil {
		return model.ScoreRecord{}, fmt.Errorf("sqlite: upsert player: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO score_records (id, user_id, category_id, value, metadata, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.CategoryID, rec.Value, string(meta), rec.SubmittedAt.UnixMicro(),
	); err != nil {
		return model.ScoreRecord{}, fmt.Errorf("sqlite: insert score record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.ScoreRecord{}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return rec, nil
}

func (l *Ledger) MaxScore(ctx context.Context, userID, categoryID string) (int64, bool, error) {
	var best sql.NullInt64
	err := l.db.QueryRowContext(ctx,
		`SELECT MAX(value) FROM score_records WHERE user_id = ? AND category_id = ?`,
		userID, categoryID,
	).Scan(&best)
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: max score: %w", err)
	}
	return best.Int64, best.Valid, nil
}

func (l *Ledger) SumScore(ctx context.Context, userID string, f ledger.SumFilter) (ledger.Aggregate, error) {
	var (
		conds = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.CategoryID != "" {
		conds = append(conds, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "submitted_at >= ?")
		args = append(args, f.Since.UnixMicro())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "submitted_at < ?")
		args = append(args, f.Until.UnixMicro())
	}
	// SQLite's SUM fails on integer overflow, so values are totalled here.
	rows, err := l.db.QueryContext(ctx, `SELECT value FROM score_records WHERE `+strings.Join(conds, " AND "), args...)
	if err != nil {
		return ledger.Aggregate{}, fmt.Errorf("sqlite: sum scores: %w", err)
	}
	defer rows.Close()

	var agg ledger.Aggregate
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return ledger.Aggregate{}, fmt.Errorf("sqlite: scan score: %w", err)
		}
		agg.Sum = model.AddScores(agg.Sum, v)
		agg.Count++
	}
	if err := rows.Err(); err != nil {
		return ledger.Aggregate{}, fmt.Errorf("sqlite: sum scores: %w", err)
	}
	return agg, nil
}

func (l *Ledger) ListActiveUsers(ctx context.Context) ([]model.Player, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT p.id, p.display_name, p.active
		FROM players p
		WHERE p.active = 1 AND EXISTS (SELECT 1 FROM score_records r WHERE r.user_id = p.id)
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list users: %w", err)
	}
	defer rows.Close()

	var out []model.Player
	for rows.Next() {
		var p model.Player
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Active); err != nil {
			return nil, fmt.Errorf("sqlite: scan user: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (l *Ledger) ListActiveCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, name, slug, max_score, active FROM categories WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list categories: %w", err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (l *Ledger) CountDistinctUsers(ctx context.Context, categoryID string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT r.user_id)
		FROM score_records r
		JOIN players p ON p.id = r.user_id
		WHERE r.category_id = ? AND p.active = 1`, categoryID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count users: %w", err)
	}
	return n, nil
}

func (l *Ledger) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM score_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count records: %w", err)
	}
	return n, nil
}

func (l *Ledger) GetCategory(ctx context.Context, id string) (model.Category, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, name, slug, max_score, active FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Category{}, fmt.Errorf("get category: %w: %s", ledger.ErrCategoryNotFound, id)
	}
	return c, err
}

func (l *Ledger) UpsertCategory(ctx context.Context, c model.Category) error {
	if c.ID == "" {
		return fmt.Errorf("upsert category: %w: empty id", ledger.ErrInvalidRecord)
	}
	var maxScore sql.NullInt64
	if c.MaxScore != nil {
		maxScore = sql.NullInt64{Int64: *c.MaxScore, Valid: true}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if c.Name != "" {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ? AND id <> ?`, c.Name, c.ID).Scan(&owner)
		switch {
		case err == nil:
			return fmt.Errorf("upsert category %s: %w: %q", c.ID, ledger.ErrDuplicateCategoryName, c.Name)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("sqlite: check category name: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO categories (id, name, slug, max_score, active) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, slug = excluded.slug, max_score = excluded.max_score, active = excluded.active`,
		c.ID, c.Name, c.Slug, maxScore, c.Active,
	); err != nil {
		return fmt.Errorf("sqlite: upsert category: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// SetPlayerActive toggles whether a player participates in rebuilds.
func (l *Ledger) SetPlayerActive(ctx context.Context, userID string, active bool) error {
	if _, err := l.db.ExecContext(ctx, `UPDATE players SET active = ? WHERE id = ?`, active, userID); err != nil {
		return fmt.Errorf("sqlite: set player active: %w", err)
	}
	return nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCategory(s scanner) (model.Category, error) {
	var (
		c        model.Category
		maxScore sql.NullInt64
	)
	if err := s.Scan(&c.ID, &c.Name, &c.Slug, &maxScore, &c.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Category{}, err
		}
		return model.Category{}, fmt.Errorf("sqlite: scan category: %w", err)
	}
	if maxScore.Valid {
		v := maxScore.Int64
		c.MaxScore = &v
	}
	return c, nil
}
