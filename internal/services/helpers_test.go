package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/microblog/microblog/internal/config"
	"github.com/microblog/microblog/internal/models"
	"github.com/microblog/microblog/internal/repository"
	"github.com/microblog/microblog/internal/testutil"
	"github.com/microblog/microblog/pkg/cache"
	"github.com/microblog/microblog/pkg/logger"
	"github.com/microblog/microblog/pkg/queue"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []queue.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]queue.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type env struct {
	db     *repository.Database
	users  *UserService
	posts  *PostService
	events *recordingPublisher
	clock  *fakeClock
	redis  *miniredis.Miniredis
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) *env {
	t.Helper()

	db := testutil.NewDatabase(t)
	log := logger.NewNopLogger()

	mr := miniredis.RunT(t)
	redisClient := cache.NewRedisClient(mr.Addr(), "", 0, 4, 0)
	t.Cleanup(func() { _ = redisClient.Close() })

	userRepo := repository.NewUserRepository(db.DB)
	followRepo := repository.NewFollowRepository(db.DB)
	postRepo := repository.NewPostRepository(db.DB)
	timelineRepo := repository.NewTimelineRepository(db.DB)

	events := &recordingPublisher{}
	clock := &fakeClock{now: epoch}
	counts := NewCountCache(redisClient, time.Minute, log)

	users := NewUserService(db, userRepo, followRepo, postRepo, counts, events,
		&config.JWTConfig{Secret: "test-secret", ResetExpire: 10 * time.Minute}, log)
	users.passwordCost = bcrypt.MinCost
	users.now = clock.Now

	posts := NewPostService(db, postRepo, timelineRepo, userRepo, events,
		&config.TimelineConfig{DefaultPageSize: 20, MaxPageSize: 100}, log)
	posts.now = clock.Now

	return &env{db: db, users: users, posts: posts, events: events, clock: clock, redis: mr}
}

func (e *env) register(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), &RegisterRequest{
		Username: name,
		Email:    name + "@example.com",
		Password: "secret-" + name,
	})
	require.NoError(t, err)
	return u
}

func (e *env) postAt(t *testing.T, author *models.User, body string, at time.Time) *models.Post {
	t.Helper()
	e.clock.Set(at)
	p, err := e.posts.CreatePost(context.Background(), author.ID, &CreatePostRequest{Body: body})
	require.NoError(t, err)
	return p
}

func postBodies(posts []*models.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Body)
	}
	return out
}
