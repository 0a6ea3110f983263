package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository reads schedule templates from PostgreSQL. Weekday is stored as
// the label the upstream feed supplied ("Monday", "mon", "Tues.") and
// normalized through ParseWeekday on the way out.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const templateColumns = `id, provider_id, weekday, start_time, end_time, capacity, created_at, updated_at`

func scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	var weekday string
	err := row.Scan(&t.ID, &t.ProviderID, &weekday, &t.StartTime, &t.EndTime, &t.Capacity, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	wd, ok := ParseWeekday(weekday)
	if !ok {
		return nil, fmt.Errorf("template %s: unrecognized weekday %q", t.ID, weekday)
	}
	t.Weekday = wd
	return &t, nil
}

func (r *PgRepository) GetTemplateByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM schedule_templates
		WHERE id = $1
	`, id)
	return scanTemplate(row)
}

func (r *PgRepository) ListTemplatesByProvider(ctx context.Context, providerID uuid.UUID) ([]Template, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+templateColumns+`
		FROM schedule_templates
		WHERE provider_id = $1
		ORDER BY start_time ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
