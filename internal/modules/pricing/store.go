// README: Rate store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS delivery_rates (
			method TEXT PRIMARY KEY,
			base_fee BIGINT NOT NULL,
			per_km BIGINT NOT NULL
		)`)
	return err
}

func (s *Store) Rate(ctx context.Context, method string) (Rate, bool, error) {
	var r Rate
	err := s.db.QueryRow(ctx,
		`SELECT method, base_fee, per_km FROM delivery_rates WHERE method = $1`, method,
	).Scan(&r.Method, &r.BaseFee, &r.PerKm)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, false, nil
	}
	if err != nil {
		return Rate{}, false, err
	}
	return r, true, nil
}
