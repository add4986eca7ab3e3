package repository

import (
	"context"
	"fmt"

	"github.com/microblog/microblog/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository owns the followers edge table. Both traversal directions
// ("who do I follow", "who follows me") are queries over the same rows.
type FollowRepository struct {
	db *gorm.DB
}

func NewFollowRepository(db *gorm.DB) *FollowRepository {
	return &FollowRepository{db: db}
}

func (r *FollowRepository) WithTx(tx *gorm.DB) *FollowRepository {
	return &FollowRepository{db: tx}
}

// Create inserts the edge if it is absent. It reports whether a row was
// written; a concurrent insert of the same pair is not an error.
func (r *FollowRepository) Create(ctx context.Context, follow *models.Follow) (bool, error) {
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(follow)
	if res.Error != nil {
		return false, translate("failed to create follow", res.Error, ErrConstraintViolation)
	}
	return res.RowsAffected > 0, nil
}

// Delete removes the edge and reports whether it existed.
func (r *FollowRepository) Delete(ctx context.Context, followerID, followedID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Delete(&models.Follow{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete follow: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteAllFor removes every edge touching userID, in either direction.
func (r *FollowRepository) DeleteAllFor(ctx context.Context, userID uint) error {
	if err := r.db.WithContext(ctx).
		Where("follower_id = ? OR followed_id = ?", userID, userID).
		Delete(&models.Follow{}).Error; err != nil {
		return fmt.Errorf("failed to delete follows: %w", err)
	}
	return nil
}

// NeighborIDs returns the ids of everyone userID follows or is followed by.
func (r *FollowRepository) NeighborIDs(ctx context.Context, userID uint) ([]uint, error) {
	var followed, followers []uint
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ? AND followed_id <> ?", userID, userID).
		Pluck("followed_id", &followed).Error; err != nil {
		return nil, fmt.Errorf("failed to list followed ids: %w", err)
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("followed_id = ? AND follower_id <> ?", userID, userID).
		Pluck("follower_id", &followers).Error; err != nil {
		return nil, fmt.Errorf("failed to list follower ids: %w", err)
	}

	seen := make(map[uint]struct{}, len(followed)+len(followers))
	ids := make([]uint, 0, len(followed)+len(followers))
	for _, id := range append(followed, followers...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *FollowRepository) GetFollowers(ctx context.Context, userID uint, offset, limit int) ([]*models.User, error) {
	var users []*models.User
	if err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("users.*").
		Joins("JOIN followers ON followers.follower_id = users.id").
		Where("followers.followed_id = ?", userID).
		Order("users.username ASC").
		Offset(offset).
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to get followers: %w", err)
	}
	return users, nil
}

func (r *FollowRepository) GetFollowing(ctx context.Context, userID uint, offset, limit int) ([]*models.User, error) {
	var users []*models.User
	if err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("users.*").
		Joins("JOIN followers ON followers.followed_id = users.id").
		Where("followers.follower_id = ?", userID).
		Order("users.username ASC").
		Offset(offset).
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to get following: %w", err)
	}
	return users, nil
}

func (r *FollowRepository) CountFollowers(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("followed_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count followers: %w", err)
	}
	return count, nil
}

func (r *FollowRepository) CountFollowing(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count following: %w", err)
	}
	return count, nil
}

func (r *FollowRepository) IsFollowing(ctx context.Context, followerID, followedID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check follow status: %w", err)
	}
	return count > 0, nil
}
