package services

import (
	"context"
	"sync"
	"testing"

	"github.com/microblog/microblog/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowUnfollow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.register(t, "alice"), e.register(t, "bob")

	require.NoError(t, e.users.Follow(ctx, alice.ID, bob.ID))

	ok, err := e.users.IsFollowing(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.users.IsFollowing(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok, "edges are directed")

	followers, err := e.users.GetFollowers(ctx, bob.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, "alice", followers[0].Username)

	following, err := e.users.GetFollowing(ctx, alice.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, "bob", following[0].Username)

	require.NoError(t, e.users.Unfollow(ctx, alice.ID, bob.ID))
	ok, err = e.users.IsFollowing(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// unfollowing again is a no-op
	require.NoError(t, e.users.Unfollow(ctx, alice.ID, bob.ID))

	assert.Equal(t, []queue.EventType{
		queue.EventUserRegistered,
		queue.EventUserRegistered,
		queue.EventFollowCreated,
		queue.EventFollowDeleted,
	}, e.events.types())
}

func TestFollowSelfRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")

	assert.ErrorIs(t, e.users.Follow(ctx, alice.ID, alice.ID), ErrSelfFollowNotAllowed)

	n, err := e.users.FollowingCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	ok, err := e.users.IsFollowing(ctx, alice.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFollowIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.register(t, "alice"), e.register(t, "bob")

	require.NoError(t, e.users.Follow(ctx, alice.ID, bob.ID))
	require.NoError(t, e.users.Follow(ctx, alice.ID, bob.ID))

	n, err := e.users.FollowersCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = e.users.FollowingCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	created := 0
	for _, typ := range e.events.types() {
		if typ == queue.EventFollowCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestFollowMissingUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")

	assert.ErrorIs(t, e.users.Follow(ctx, alice.ID, 999), ErrNotFound)
	assert.ErrorIs(t, e.users.Follow(ctx, 999, alice.ID), ErrNotFound)
	assert.ErrorIs(t, e.users.Unfollow(ctx, alice.ID, 999), ErrNotFound)
}

func TestConcurrentFollowsCreateOneEdge(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.register(t, "alice"), e.register(t, "bob")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.users.Follow(ctx, alice.ID, bob.ID)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	n, err := e.users.FollowersCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCountsReflectCommittedWrites(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, carol := e.register(t, "alice"), e.register(t, "bob"), e.register(t, "carol")

	// prime the cache with zero
	n, err := e.users.FollowersCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, e.redis.Exists(FollowersCountKey(bob.ID)))

	require.NoError(t, e.users.Follow(ctx, alice.ID, bob.ID))
	assert.False(t, e.redis.Exists(FollowersCountKey(bob.ID)))

	require.NoError(t, e.users.Follow(ctx, carol.ID, bob.ID))
	n, err = e.users.FollowersCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, e.users.Unfollow(ctx, carol.ID, bob.ID))
	n, err = e.users.FollowersCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCountLoadOverlappingFollowIsNotCached(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.register(t, "alice"), e.register(t, "bob")

	// the load counts zero, then a follow commits before the value is cached
	n, err := e.users.counts.get(ctx, bob.ID, FollowersCountKey(bob.ID), func(ctx context.Context) (int64, error) {
		n, err := e.users.followRepo.CountFollowers(ctx, bob.ID)
		require.NoError(t, err)
		require.NoError(t, e.users.Follow(ctx, alice.ID, bob.ID))
		return n, nil
	})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, e.redis.Exists(FollowersCountKey(bob.ID)))

	n, err = e.users.FollowersCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCountsWithoutCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.users.counts = nil
	alice, bob := e.register(t, "alice"), e.register(t, "bob")

	require.NoError(t, e.users.Follow(ctx, alice.ID, bob.ID))
	n, err := e.users.FollowersCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCountsFallBackWhenRedisDown(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.register(t, "alice"), e.register(t, "bob")
	require.NoError(t, e.users.Follow(ctx, alice.ID, bob.ID))

	e.redis.Close()

	n, err := e.users.FollowersCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
