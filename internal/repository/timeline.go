package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/microblog/microblog/internal/models"
	"gorm.io/gorm"
)

var ErrInvalidCursor = errors.New("invalid timeline cursor")

// Cursor marks the last post of a page. Posts are ordered by
// (timestamp DESC, id DESC), so the next page starts strictly after it.
type Cursor struct {
	Timestamp time.Time `json:"ts"`
	ID        uint      `json:"id"`
}

func (c Cursor) Encode() string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

func DecodeCursor(s string) (*Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.ID == 0 || c.Timestamp.IsZero() {
		return nil, ErrInvalidCursor
	}
	c.Timestamp = c.Timestamp.UTC()
	return &c, nil
}

// TimelineQuery selects one page. Cursor, when set, takes precedence over
// Offset.
type TimelineQuery struct {
	Limit  int
	Offset int
	Cursor *Cursor
}

type TimelineRepository struct {
	db *gorm.DB
}

func NewTimelineRepository(db *gorm.DB) *TimelineRepository {
	return &TimelineRepository{db: db}
}

// GetByUserID returns posts authored by userID or by anyone userID follows
// right now. The IN subquery yields each post at most once. At most q.Limit
// rows are loaded.
func (r *TimelineRepository) GetByUserID(ctx context.Context, userID uint, q TimelineQuery) ([]*models.Post, error) {
	followed := r.db.Model(&models.Follow{}).
		Select("followed_id").
		Where("follower_id = ?", userID)

	db := r.db.WithContext(ctx).
		Preload("Author").
		Where("(posts.user_id = ? OR posts.user_id IN (?))", userID, followed)

	if q.Cursor != nil {
		db = db.Where("(posts.timestamp < ? OR (posts.timestamp = ? AND posts.id < ?))",
			q.Cursor.Timestamp, q.Cursor.Timestamp, q.Cursor.ID)
	} else if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}

	var posts []*models.Post
	if err := db.
		Order("posts.timestamp DESC").
		Order("posts.id DESC").
		Limit(q.Limit).
		Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("failed to get timeline: %w", err)
	}
	return posts, nil
}
