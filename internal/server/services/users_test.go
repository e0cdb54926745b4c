package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/dmitrijs2005/loadgate/internal/server/auth"
	"github.com/dmitrijs2005/loadgate/internal/server/models"
	"github.com/dmitrijs2005/loadgate/internal/server/plans"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/memory"
	"github.com/dmitrijs2005/loadgate/internal/server/throttle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_Register(t *testing.T) {
	repo := memory.NewUsers()
	s := newTestUserService(t, repo, nil, nil)

	u, err := s.Register(context.Background(), "alice", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.UserName)
	assert.True(t, u.IsActive)
	assert.Equal(t, "free", u.Plan)

	stored, err := repo.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, auth.SchemeBcrypt, auth.ParseHash(stored.PasswordHash).Scheme)
	assert.NotContains(t, stored.PasswordHash, "Secret123")

	_, err = s.Register(context.Background(), "alice", "Secret123")
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestUserService_RegisterPolicy(t *testing.T) {
	s := newTestUserService(t, memory.NewUsers(), nil, nil)

	_, err := s.Register(context.Background(), "al", "Secret123")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = s.Register(context.Background(), "bad name!", "Secret123")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = s.Register(context.Background(), "alice", "short")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestUserService_Login(t *testing.T) {
	repo := memory.NewUsers()
	s := newTestUserService(t, repo, nil, nil)
	_, err := s.Register(context.Background(), "alice", "Secret123")
	require.NoError(t, err)

	sess, err := s.Login(context.Background(), "10.0.0.1", "alice", "Secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	require.NotNil(t, sess.User.LastLogin)

	stored, _ := repo.GetByUsername(context.Background(), "alice")
	assert.NotNil(t, stored.LastLogin)

	_, err = s.Login(context.Background(), "10.0.0.1", "alice", "wrong-password")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = s.Login(context.Background(), "10.0.0.1", "nobody", "Secret123")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestUserService_LoginLegacyHashIsNotRewritten(t *testing.T) {
	repo := memory.NewUsers()
	legacy := auth.LegacyHash("OldSecret1")
	u, err := repo.Create(context.Background(), &models.User{UserName: "carol", PasswordHash: legacy, IsActive: true})
	require.NoError(t, err)
	s := newTestUserService(t, repo, nil, nil)

	_, err = s.Login(context.Background(), "10.0.0.2", "carol", "OldSecret1")
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, legacy, stored.PasswordHash)
}

func TestUserService_LoginInactive(t *testing.T) {
	repo := memory.NewUsers()
	s := newTestUserService(t, repo, nil, nil)
	u, err := s.Register(context.Background(), "dave", "Secret123")
	require.NoError(t, err)
	_, err = s.SetActive(context.Background(), u.ID, false)
	require.NoError(t, err)

	_, err = s.Login(context.Background(), "10.0.0.3", "dave", "Secret123")
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = s.Authenticate(context.Background(), u.ID)
	assert.ErrorIs(t, err, common.ErrInactiveAccount)
}

func TestUserService_LoginThrottled(t *testing.T) {
	repo := memory.NewUsers()
	limiter := throttle.NewMemoryLimiter(10, 5*time.Minute)
	s := newTestUserService(t, repo, nil, limiter)
	_, err := s.Register(context.Background(), "erin", "Secret123")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := s.Login(context.Background(), "10.0.0.4", "erin", "wrong-password")
		assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	}

	// The right password is refused too once the window is full.
	_, err = s.Login(context.Background(), "10.0.0.4", "erin", "Secret123")
	assert.ErrorIs(t, err, common.ErrRateLimited)

	// Another address is tracked separately.
	_, err = s.Login(context.Background(), "10.0.0.5", "erin", "Secret123")
	assert.NoError(t, err)
}

func TestUserService_Authenticate(t *testing.T) {
	repo := memory.NewUsers()
	s := newTestUserService(t, repo, nil, nil)
	u, err := s.Register(context.Background(), "frank", "Secret123")
	require.NoError(t, err)

	got, err := s.Authenticate(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Authenticate(context.Background(), 12345)
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestUserService_ChangePassword(t *testing.T) {
	repo := memory.NewUsers()
	u, err := repo.Create(context.Background(), &models.User{UserName: "gina", PasswordHash: auth.LegacyHash("OldSecret1"), IsActive: true})
	require.NoError(t, err)
	s := newTestUserService(t, repo, nil, nil)

	err = s.ChangePassword(context.Background(), u, "nope-nope", "NewSecret1")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	err = s.ChangePassword(context.Background(), u, "OldSecret1", "short")
	assert.ErrorIs(t, err, common.ErrValidation)

	require.NoError(t, s.ChangePassword(context.Background(), u, "OldSecret1", "NewSecret1"))

	stored, err := repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	h := auth.ParseHash(stored.PasswordHash)
	assert.Equal(t, auth.SchemeBcrypt, h.Scheme)
	assert.True(t, h.Verify("NewSecret1"))
	assert.False(t, h.Verify("OldSecret1"))
}

func TestUserService_ProfileUsesEffectiveTier(t *testing.T) {
	repo := memory.NewUsers()
	s := newTestUserService(t, repo, nil, nil)
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	yesterday := now.Add(-24 * time.Hour)
	p, err := s.Profile(context.Background(), &models.User{ID: 1, Plan: "pro", PlanExpiresAt: &yesterday})
	require.NoError(t, err)
	assert.Equal(t, plans.TierFree, p.Tier)
	assert.Equal(t, 1, p.Limits.MaxConcurrent)
	assert.Zero(t, p.LiveJobs)
}

func TestUserService_SetPlan(t *testing.T) {
	repo := memory.NewUsers()
	s := newTestUserService(t, repo, nil, nil)
	u, err := s.Register(context.Background(), "hank", "Secret123")
	require.NoError(t, err)

	next := time.Now().Add(30 * 24 * time.Hour)
	got, err := s.SetPlan(context.Background(), u.ID, "PRO", &next)
	require.NoError(t, err)
	assert.Equal(t, "pro", got.Plan)
	require.NotNil(t, got.PlanExpiresAt)

	past := time.Now().Add(-time.Hour)
	_, err = s.SetPlan(context.Background(), u.ID, "pro", &past)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = s.SetPlan(context.Background(), u.ID, "gold", nil)
	assert.ErrorIs(t, err, common.ErrValidation)

	got, err = s.SetPlan(context.Background(), u.ID, "free", &next)
	require.NoError(t, err)
	assert.Nil(t, got.PlanExpiresAt)

	_, err = s.SetPlan(context.Background(), 999, "pro", nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUserService_ListUsers(t *testing.T) {
	repo := memory.NewUsers()
	s := newTestUserService(t, repo, nil, nil)
	for _, n := range []string{"user1", "user2", "user3"} {
		_, err := s.Register(context.Background(), n, "Secret123")
		require.NoError(t, err)
	}

	list, err := s.ListUsers(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "user2", list[0].UserName)
}
