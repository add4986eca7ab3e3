package services

import (
	"context"
	"fmt"
	"time"

	"github.com/microblog/microblog/internal/config"
	"github.com/microblog/microblog/internal/models"
	"github.com/microblog/microblog/internal/repository"
	"github.com/microblog/microblog/pkg/logger"
	"github.com/microblog/microblog/pkg/queue"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type PostService struct {
	db           *repository.Database
	postRepo     *repository.PostRepository
	timelineRepo *repository.TimelineRepository
	userRepo     *repository.UserRepository
	producer     queue.Publisher
	config       *config.TimelineConfig
	logger       *logger.Logger

	now func() time.Time
}

func NewPostService(
	db *repository.Database,
	postRepo *repository.PostRepository,
	timelineRepo *repository.TimelineRepository,
	userRepo *repository.UserRepository,
	producer queue.Publisher,
	config *config.TimelineConfig,
	logger *logger.Logger,
) *PostService {
	return &PostService{
		db:           db,
		postRepo:     postRepo,
		timelineRepo: timelineRepo,
		userRepo:     userRepo,
		producer:     producer,
		config:       config,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type CreatePostRequest struct {
	Body string `json:"body" binding:"required,max=140"`
}

// TimelineRequest selects a page. A non-empty Cursor wins over Offset.
type TimelineRequest struct {
	Cursor string `form:"cursor"`
	Offset int    `form:"offset"`
	Limit  int    `form:"limit"`
}

type TimelinePage struct {
	Posts      []*models.Post `json:"posts"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

func (s *PostService) CreatePost(ctx context.Context, authorID uint, req *CreatePostRequest) (*models.Post, error) {
	if !models.ValidBody(req.Body) {
		return nil, fmt.Errorf("post body must be 1-%d characters: %w", models.MaxPostLength, ErrConstraintViolation)
	}

	post := &models.Post{
		Body:   req.Body,
		UserID: authorID,
		// postgres keeps microseconds; truncating keeps cursors exact
		Timestamp: s.now().Truncate(time.Microsecond),
	}

	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := requireUsers(ctx, s.userRepo.WithTx(tx), authorID); err != nil {
			return err
		}
		return s.postRepo.WithTx(tx).Create(ctx, post)
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.producer, s.logger, authorID, queue.EventPostCreated, post.Timestamp, queue.PostEventData{
		PostID:    post.ID,
		UserID:    authorID,
		Body:      post.Body,
		CreatedAt: post.Timestamp,
	})

	s.logger.WithFields(logrus.Fields{
		"post_id": post.ID,
		"user_id": authorID,
	}).Info("Post created successfully")

	return post, nil
}

func (s *PostService) GetPost(ctx context.Context, postID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	if post == nil {
		return nil, fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	return post, nil
}

func (s *PostService) GetUserPosts(ctx context.Context, userID uint, offset, limit int) ([]*models.Post, error) {
	posts, err := s.postRepo.GetByUserID(ctx, userID, offset, s.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get user posts: %w", err)
	}
	return posts, nil
}

func (s *PostService) CountUserPosts(ctx context.Context, userID uint) (int64, error) {
	n, err := s.postRepo.CountByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count user posts: %w", err)
	}
	return n, nil
}

// Explore lists every user's posts, newest first.
func (s *PostService) Explore(ctx context.Context, offset, limit int) ([]*models.Post, error) {
	posts, err := s.postRepo.ListRecent(ctx, offset, s.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}

// Timeline returns one page of the posts visible to userID: their own and
// those of everyone they follow at query time, newest first. Ties on
// timestamp are broken by id so repeated calls page identically.
func (s *PostService) Timeline(ctx context.Context, userID uint, req TimelineRequest) (*TimelinePage, error) {
	limit := s.clampLimit(req.Limit)
	q := repository.TimelineQuery{Limit: limit + 1}

	if req.Cursor != "" {
		cursor, err := repository.DecodeCursor(req.Cursor)
		if err != nil {
			return nil, err
		}
		q.Cursor = cursor
	} else if req.Offset > 0 {
		q.Offset = req.Offset
	}

	ok, err := s.userRepo.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	posts, err := s.timelineRepo.GetByUserID(ctx, userID, q)
	if err != nil {
		return nil, err
	}

	page := &TimelinePage{Posts: posts}
	if len(posts) > limit {
		page.Posts = posts[:limit]
		page.HasMore = true
		last := page.Posts[limit-1]
		page.NextCursor = repository.Cursor{Timestamp: last.Timestamp, ID: last.ID}.Encode()
	}
	if page.Posts == nil {
		page.Posts = []*models.Post{}
	}
	return page, nil
}

func (s *PostService) clampLimit(limit int) int {
	if limit < 1 {
		return s.config.DefaultPageSize
	}
	if limit > s.config.MaxPageSize {
		return s.config.MaxPageSize
	}
	return limit
}

// TimelineIterator walks a timeline lazily, one page per round trip.
type TimelineIterator struct {
	svc      *PostService
	userID   uint
	pageSize int

	buf    []*models.Post
	cursor string
	done   bool
	err    error
}

func (s *PostService) IterateTimeline(userID uint, pageSize int) *TimelineIterator {
	return &TimelineIterator{svc: s, userID: userID, pageSize: pageSize}
}

// Next returns the next post, or false when the timeline is exhausted or a
// page fetch failed; check Err afterwards.
func (it *TimelineIterator) Next(ctx context.Context) (*models.Post, bool) {
	if len(it.buf) == 0 {
		if it.done || it.err != nil {
			return nil, false
		}
		page, err := it.svc.Timeline(ctx, it.userID, TimelineRequest{Cursor: it.cursor, Limit: it.pageSize})
		if err != nil {
			it.err = err
			return nil, false
		}
		it.buf = page.Posts
		it.cursor = page.NextCursor
		it.done = !page.HasMore
		if len(it.buf) == 0 {
			return nil, false
		}
	}

	post := it.buf[0]
	it.buf = it.buf[1:]
	return post, true
}

func (it *TimelineIterator) Err() error {
	return it.err
}
