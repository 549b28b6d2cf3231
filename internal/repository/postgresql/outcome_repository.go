package postgresql

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tag-bridge/internal/entity"
)

var ErrNotFound = errors.New("not found")

// OutcomeRepository is the local ledger of processed items.
type OutcomeRepository struct {
	pool *pgxpool.Pool
}

func NewOutcomeRepository(pool *pgxpool.Pool) *OutcomeRepository {
	return &OutcomeRepository{pool: pool}
}

func (r *OutcomeRepository) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS item_outcomes (
    item_id          TEXT PRIMARY KEY,
    job_id           TEXT NOT NULL DEFAULT '',
    tags             JSONB NOT NULL DEFAULT '[]',
    categorized_tags JSONB NOT NULL DEFAULT '{}',
    description      TEXT NOT NULL DEFAULT '',
    aesthetic_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
    is_flagged       BOOLEAN NOT NULL DEFAULT FALSE,
    score            DOUBLE PRECISION NOT NULL DEFAULT 0,
    disposition      TEXT NOT NULL,
    reported         BOOLEAN NOT NULL DEFAULT FALSE,
    processed_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS item_outcomes_processed_at_idx ON item_outcomes (processed_at DESC);
`
	_, err := r.pool.Exec(ctx, q)
	return err
}

// Record upserts the outcome for an item; reprocessing overwrites it.
func (r *OutcomeRepository) Record(ctx context.Context, o entity.Outcome) error {
	rec := o.Record.Clamped()
	tags, err := json.Marshal(nonNilTags(rec.Tags))
	if err != nil {
		return err
	}
	cats, err := json.Marshal(nonNilCats(rec.CategorizedTags))
	if err != nil {
		return err
	}

	const q = `
INSERT INTO item_outcomes
    (item_id, job_id, tags, categorized_tags, description, aesthetic_score, is_flagged, score, disposition, reported, processed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (item_id) DO UPDATE SET
    job_id = EXCLUDED.job_id,
    tags = EXCLUDED.tags,
    categorized_tags = EXCLUDED.categorized_tags,
    description = EXCLUDED.description,
    aesthetic_score = EXCLUDED.aesthetic_score,
    is_flagged = EXCLUDED.is_flagged,
    score = EXCLUDED.score,
    disposition = EXCLUDED.disposition,
    reported = EXCLUDED.reported,
    processed_at = EXCLUDED.processed_at;
`
	_, err = r.pool.Exec(ctx, q,
		o.ItemID,
		o.JobID,
		tags,
		cats,
		rec.Description,
		rec.AestheticScore,
		rec.IsFlagged,
		o.Decision.Score,
		string(o.Decision.Disposition),
		o.Reported,
		o.ProcessedAt,
	)
	return err
}

const selectOutcome = `
SELECT item_id, job_id, tags, categorized_tags, description, aesthetic_score, is_flagged, score, disposition, reported, processed_at
FROM item_outcomes
`

func (r *OutcomeRepository) GetByItemID(ctx context.Context, itemID string) (*entity.Outcome, error) {
	row := r.pool.QueryRow(ctx, selectOutcome+`WHERE item_id = $1;`, itemID)
	o, err := scanOutcome(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *OutcomeRepository) ListRecent(ctx context.Context, limit int) ([]entity.Outcome, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, selectOutcome+`ORDER BY processed_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []entity.Outcome{}
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func scanOutcome(row pgx.Row) (*entity.Outcome, error) {
	var (
		o           entity.Outcome
		tagsBytes   []byte
		catsBytes   []byte
		disposition string
	)
	if err := row.Scan(
		&o.ItemID,
		&o.JobID,
		&tagsBytes,
		&catsBytes,
		&o.Record.Description,
		&o.Record.AestheticScore,
		&o.Record.IsFlagged,
		&o.Decision.Score,
		&disposition,
		&o.Reported,
		&o.ProcessedAt,
	); err != nil {
		return nil, err
	}

	o.Decision.Disposition = entity.Disposition(disposition)
	if err := json.Unmarshal(tagsBytes, &o.Record.Tags); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(catsBytes, &o.Record.CategorizedTags); err != nil {
		return nil, err
	}
	return &o, nil
}

func nonNilTags(t []string) []string {
	if t == nil {
		return []string{}
	}
	return t
}

func nonNilCats(c map[string][]string) map[string][]string {
	if c == nil {
		return map[string][]string{}
	}
	return c
}
