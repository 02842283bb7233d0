package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/domain/model"
)

const (
	uniqueViolation   = "23505"
	categoryNameIndex = "idx_categories_name"
)

// Ledger implements ledger.Ledger on PostgreSQL.
type Ledger struct {
	db  *DB
	now func() time.Time
}

var _ ledger.Ledger = (*Ledger)(nil)

// New wraps an open connection pool.
func New(db *DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Open connects to databaseURL, optionally migrating first.
func Open(ctx context.Context, databaseURL string, migrateFirst bool) (*Ledger, error) {
	if migrateFirst {
		if err := Migrate(databaseURL); err != nil {
			return nil, err
		}
	}
	db, err := Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return New(db), nil
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

	err = l.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, rec.CategoryID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check category: %w", err)
		}
		if !exists {
			return fmt.Errorf("append: %w: %s", ledger.ErrCategoryNotFound, rec.CategoryID)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO players (id, display_name)
			VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE
			SET display_name = EXCLUDED.display_name, updated_at = now()`,
			rec.UserID, displayName,
		); err != nil {
			return fmt.Errorf("failed to upsert player: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO score_records (id, user_id, category_id, value, metadata, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID, rec.UserID, rec.CategoryID, rec.Value, meta, rec.SubmittedAt,
		); err != nil {
			return fmt.Errorf("failed to insert score record: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.ScoreRecord{}, err
	}
	return rec, nil
}

func (l *Ledger) MaxScore(ctx context.Context, userID, categoryID string) (int64, bool, error) {
	var best *int64
	err := l.db.QueryRow(ctx,
		`SELECT MAX(value) FROM score_records WHERE user_id = $1 AND category_id = $2`,
		userID, categoryID,
	).Scan(&best)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query max score: %w", err)
	}
	if best == nil {
		return 0, false, nil
	}
	return *best, true, nil
}

func (l *Ledger) SumScore(ctx context.Context, userID string, f ledger.SumFilter) (ledger.Aggregate, error) {
	var (
		conds = []string{"user_id = $1"}
		args  = []any{userID}
	)
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		conds = append(conds, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since.UTC())
		conds = append(conds, fmt.Sprintf("submitted_at >= $%d", len(args)))
	}
	if !f.Until.IsZero() {
		args = append(args, f.Until.UTC())
		conds = append(conds, fmt.Sprintf("submitted_at < $%d", len(args)))
	}
	// SUM over BIGINT is NUMERIC; cap it before the cast back.
	query := `SELECT LEAST(COALESCE(SUM(value), 0), 9223372036854775807)::BIGINT, COUNT(*) FROM score_records WHERE ` +
		strings.Join(conds, " AND ")

	var agg ledger.Aggregate
	if err := l.db.QueryRow(ctx, query, args...).Scan(&agg.Sum, &agg.Count); err != nil {
		return ledger.Aggregate{}, fmt.Errorf("failed to sum scores: %w", err)
	}
	return agg, nil
}

func (l *Ledger) ListActiveUsers(ctx context.Context) ([]model.Player, error) {
	rows, err := l.db.Query(ctx, `
		SELECT p.id, p.display_name, p.active
		FROM players p
		WHERE p.active AND EXISTS (SELECT 1 FROM score_records r WHERE r.user_id = p.id)
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []model.Player
	for rows.Next() {
		var p model.Player
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (l *Ledger) ListActiveCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, name, slug, max_score, active
		FROM categories
		WHERE active
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.MaxScore, &c.Active); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (l *Ledger) CountDistinctUsers(ctx context.Context, categoryID string) (int, error) {
	var n int
	err := l.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT r.user_id)
		FROM score_records r
		JOIN players p ON p.id = r.user_id
		WHERE r.category_id = $1 AND p.active`, categoryID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (l *Ledger) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := l.db.QueryRow(ctx, `SELECT COUNT(*) FROM score_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (l *Ledger) GetCategory(ctx context.Context, id string) (model.Category, error) {
	var c model.Category
	err := l.db.QueryRow(ctx,
		`SELECT id, name, slug, max_score, active FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.MaxScore, &c.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Category{}, fmt.Errorf("get category: %w: %s", ledger.ErrCategoryNotFound, id)
	}
	if err != nil {
		return model.Category{}, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

func (l *Ledger) UpsertCategory(ctx context.Context, c model.Category) error {
	if c.ID == "" {
		return fmt.Errorf("upsert category: %w: empty id", ledger.ErrInvalidRecord)
	}
	_, err := l.db.Exec(ctx, `
		INSERT INTO categories (id, name, slug, max_score, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, slug = EXCLUDED.slug, max_score = EXCLUDED.max_score,
		    active = EXCLUDED.active, updated_at = now()`,
		c.ID, c.Name, c.Slug, c.MaxScore, c.Active,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == categoryNameIndex {
		return fmt.Errorf("upsert category %s: %w: %q", c.ID, ledger.ErrDuplicateCategoryName, c.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (l *Ledger) Close() error {
	l.db.Close()
	return nil
}
