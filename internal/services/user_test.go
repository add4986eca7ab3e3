package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/microblog/microblog/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterThenVerifyCredentials(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	alice := e.register(t, "alice")
	assert.NotZero(t, alice.ID)
	assert.NotEqual(t, "secret-alice", alice.PasswordHash)
	assert.Equal(t, epoch, alice.LastSeen)

	got, err := e.users.VerifyCredentials(ctx, "alice", "secret-alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice.ID, got.ID)

	got, err = e.users.VerifyCredentials(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = e.users.VerifyCredentials(ctx, "nobody", "secret-alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	// exact match only
	got, err = e.users.VerifyCredentials(ctx, "Alice", "secret-alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Equal(t, []queue.EventType{queue.EventUserRegistered}, e.events.types())
}

func TestRegisterDuplicateIdentity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.register(t, "alice")

	_, err := e.users.Register(ctx, &RegisterRequest{Username: "alice", Email: "new@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	// the failed attempt left nothing behind, so new@example.com is still free
	_, err = e.users.Register(ctx, &RegisterRequest{Username: "carol", Email: "alice@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	carol, err := e.users.Register(ctx, &RegisterRequest{Username: "carol", Email: "new@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "carol", carol.Username)
}

func TestRegisterHashFailureWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.users.Register(ctx, &RegisterRequest{
		Username: "long",
		Email:    "long@example.com",
		Password: strings.Repeat("x", 73),
	})
	assert.ErrorIs(t, err, ErrConstraintViolation)

	_, err = e.users.GetByUsername(ctx, "long")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, e.events.types())
}

func TestGetUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")

	got, err := e.users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = e.users.GetByID(ctx, alice.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")
	e.register(t, "bob")

	about := "hello there"
	got, err := e.users.UpdateProfile(ctx, alice.ID, &UpdateProfileRequest{AboutMe: &about})
	require.NoError(t, err)
	assert.Equal(t, about, got.AboutMe)
	assert.Equal(t, "alice", got.Username)

	tooLong := strings.Repeat("a", 141)
	_, err = e.users.UpdateProfile(ctx, alice.ID, &UpdateProfileRequest{AboutMe: &tooLong})
	assert.ErrorIs(t, err, ErrConstraintViolation)

	taken := "bob"
	_, err = e.users.UpdateProfile(ctx, alice.ID, &UpdateProfileRequest{Username: &taken})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	renamed := "alice2"
	got, err = e.users.UpdateProfile(ctx, alice.ID, &UpdateProfileRequest{Username: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "alice2", got.Username)
	assert.Equal(t, about, got.AboutMe)

	_, err = e.users.UpdateProfile(ctx, 999, &UpdateProfileRequest{AboutMe: &about})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTouchLastSeen(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")

	later := epoch.Add(time.Hour)
	e.clock.Set(later)
	require.NoError(t, e.users.TouchLastSeen(ctx, alice.ID))

	got, err := e.users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, later.Equal(got.LastSeen))
}

func TestResetPasswordToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")

	token, err := e.users.ResetPasswordToken(alice)
	require.NoError(t, err)

	got, err := e.users.VerifyResetPasswordToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = e.users.VerifyResetPasswordToken(ctx, token+"x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	e.clock.Set(epoch.Add(11 * time.Minute))
	_, err = e.users.VerifyResetPasswordToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.ErrorIs(t, e.users.ResetPassword(ctx, alice.ID, strings.Repeat("x", 73)), ErrConstraintViolation)

	require.NoError(t, e.users.ResetPassword(ctx, alice.ID, "brand-new"))
	got, err = e.users.VerifyCredentials(ctx, "alice", "brand-new")
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = e.users.VerifyCredentials(ctx, "alice", "secret-alice")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteUserCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, carol := e.register(t, "alice"), e.register(t, "bob"), e.register(t, "carol")
	require.NoError(t, e.users.Follow(ctx, alice.ID, bob.ID))
	require.NoError(t, e.users.Follow(ctx, carol.ID, alice.ID))
	e.postAt(t, alice, "bye", epoch)
	e.postAt(t, bob, "hi", epoch.Add(time.Second))

	// warm the cache so invalidation is observable
	n, err := e.users.FollowersCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, e.users.DeleteUser(ctx, alice.ID))

	_, err = e.users.GetByID(ctx, alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err = e.users.FollowersCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = e.users.FollowingCount(ctx, carol.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	posts, err := e.posts.Explore(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, postBodies(posts))

	assert.ErrorIs(t, e.users.DeleteUser(ctx, alice.ID), ErrNotFound)
	assert.Contains(t, e.events.types(), queue.EventUserDeleted)
}

func TestSearchUsers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.register(t, "alice")
	e.register(t, "albert")
	e.register(t, "bob")

	users, err := e.users.Search(ctx, "al", 0, 10)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "albert", users[0].Username)
	assert.Equal(t, "alice", users[1].Username)
}

func TestRequestPasswordReset(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")

	require.NoError(t, e.users.RequestPasswordReset(ctx, "nobody@example.com"))
	assert.Equal(t, []queue.EventType{queue.EventUserRegistered}, e.events.types())

	require.NoError(t, e.users.RequestPasswordReset(ctx, "alice@example.com"))
	require.Len(t, e.events.events, 2)
	event := e.events.events[1]
	assert.Equal(t, queue.EventPasswordResetRequested, event.Type)

	var data queue.PasswordResetEventData
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, alice.ID, data.UserID)

	got, err := e.users.VerifyResetPasswordToken(ctx, data.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
}
