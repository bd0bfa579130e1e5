// README: Follow service toggles buyer-to-seller follow relationships.
package follow

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"bento/internal/types"
)

var ErrBadRequest = errors.New("bad follow request")

type Store interface {
	Toggle(ctx context.Context, followerID, followeeID types.ID) (bool, error)
	IsFollowing(ctx context.Context, followerID, followeeID types.ID) (bool, error)
	Followers(ctx context.Context, followeeID types.ID) ([]types.ID, error)
}

type Service struct {
	store Store
	log   *zap.Logger
}

func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log}
}

// Toggle flips the follow edge and returns the new state.
func (s *Service) Toggle(ctx context.Context, followerID, followeeID types.ID) (bool, error) {
	if followerID == "" || followeeID == "" || followerID == followeeID {
		return false, ErrBadRequest
	}
	following, err := s.store.Toggle(ctx, followerID, followeeID)
	if err != nil {
		return false, err
	}
	s.log.Info("follow toggled",
		zap.String("follower_id", string(followerID)),
		zap.String("followee_id", string(followeeID)),
		zap.Bool("following", following),
	)
	return following, nil
}

func (s *Service) IsFollowing(ctx context.Context, followerID, followeeID types.ID) (bool, error) {
	return s.store.IsFollowing(ctx, followerID, followeeID)
}

func (s *Service) Followers(ctx context.Context, followeeID types.ID) ([]types.ID, error) {
	return s.store.Followers(ctx, followeeID)
}
