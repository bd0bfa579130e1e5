// README: Follow store persists directed follow edges in postgres.
package follow

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"bento/internal/types"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS follows (
			follower_id TEXT NOT NULL,
			followee_id TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (follower_id, followee_id)
		)`)
	return err
}

// Toggle flips the edge and reports the resulting state: true when the
// follower now follows the followee.
func (s *PgStore) Toggle(ctx context.Context, followerID, followeeID types.ID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`,
		string(followerID), string(followeeID))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		string(followerID), string(followeeID))
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PgStore) IsFollowing(ctx context.Context, followerID, followeeID types.ID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2)`,
		string(followerID), string(followeeID)).Scan(&exists)
	return exists, err
}

func (s *PgStore) Followers(ctx context.Context, followeeID types.ID) ([]types.ID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT follower_id FROM follows WHERE followee_id = $1 ORDER BY created_at`,
		string(followeeID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}
