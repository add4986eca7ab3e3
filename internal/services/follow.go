package services

import (
	"context"
	"fmt"

	"github.com/microblog/microblog/internal/models"
	"github.com/microblog/microblog/internal/repository"
	"github.com/microblog/microblog/pkg/queue"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func requireUsers(ctx context.Context, users *repository.UserRepository, ids ...uint) error {
	for _, id := range ids {
		ok, err := users.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
	}
	return nil
}

// Follow makes followerID follow targetID. Following someone already
// followed is a successful no-op, including when two requests race to
// insert the same edge.
func (s *UserService) Follow(ctx context.Context, followerID, targetID uint) error {
	if followerID == targetID {
		return ErrSelfFollowNotAllowed
	}

	var inserted bool
	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := requireUsers(ctx, s.userRepo.WithTx(tx), followerID, targetID); err != nil {
			return err
		}

		var err error
		inserted, err = s.followRepo.WithTx(tx).Create(ctx, &models.Follow{
			FollowerID: followerID,
			FollowedID: targetID,
			CreatedAt:  s.now(),
		})
		return err
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	s.counts.Invalidate(ctx, followerID, targetID)

	publish(ctx, s.producer, s.logger, followerID, queue.EventFollowCreated, s.now(), queue.FollowEventData{
		FollowerID: followerID,
		FollowedID: targetID,
	})

	s.logger.WithFields(logrus.Fields{
		"follower_id": followerID,
		"followed_id": targetID,
	}).Info("User followed successfully")
	return nil
}

// Unfollow removes the edge if present; a missing edge is a no-op.
func (s *UserService) Unfollow(ctx context.Context, followerID, targetID uint) error {
	var removed bool
	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := requireUsers(ctx, s.userRepo.WithTx(tx), followerID, targetID); err != nil {
			return err
		}

		var err error
		removed, err = s.followRepo.WithTx(tx).Delete(ctx, followerID, targetID)
		return err
	})
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	s.counts.Invalidate(ctx, followerID, targetID)

	publish(ctx, s.producer, s.logger, followerID, queue.EventFollowDeleted, s.now(), queue.FollowEventData{
		FollowerID: followerID,
		FollowedID: targetID,
	})

	s.logger.WithFields(logrus.Fields{
		"follower_id": followerID,
		"followed_id": targetID,
	}).Info("User unfollowed successfully")
	return nil
}

func (s *UserService) IsFollowing(ctx context.Context, followerID, targetID uint) (bool, error) {
	return s.followRepo.IsFollowing(ctx, followerID, targetID)
}

func (s *UserService) FollowersCount(ctx context.Context, userID uint) (int64, error) {
	return s.counts.get(ctx, userID, FollowersCountKey(userID), func(ctx context.Context) (int64, error) {
		return s.followRepo.CountFollowers(ctx, userID)
	})
}

func (s *UserService) FollowingCount(ctx context.Context, userID uint) (int64, error) {
	return s.counts.get(ctx, userID, FollowingCountKey(userID), func(ctx context.Context) (int64, error) {
		return s.followRepo.CountFollowing(ctx, userID)
	})
}

func (s *UserService) GetFollowers(ctx context.Context, userID uint, offset, limit int) ([]*models.User, error) {
	followers, err := s.followRepo.GetFollowers(ctx, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get followers: %w", err)
	}
	return followers, nil
}

func (s *UserService) GetFollowing(ctx context.Context, userID uint, offset, limit int) ([]*models.User, error) {
	following, err := s.followRepo.GetFollowing(ctx, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get following: %w", err)
	}
	return following, nil
}
