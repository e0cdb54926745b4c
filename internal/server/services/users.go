package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/dmitrijs2005/loadgate/internal/logging"
	"github.com/dmitrijs2005/loadgate/internal/server/auth"
	"github.com/dmitrijs2005/loadgate/internal/server/models"
	"github.com/dmitrijs2005/loadgate/internal/server/plans"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/users"
	"github.com/dmitrijs2005/loadgate/internal/server/throttle"
	"github.com/dmitrijs2005/loadgate/internal/timex"
)

// TokenIssuer is the part of auth.TokenService the user service needs.
type TokenIssuer interface {
	Issue(userID int64, username string) (string, error)
}

// Session is the outcome of a successful login.
type Session struct {
	Token string
	User  *models.User
}

// Profile is a user with the plan actually in force right now.
type Profile struct {
	User     *models.User
	Tier     plans.Tier
	Limits   plans.Limits
	LiveJobs int
}

type UserService struct {
	users   users.Repository
	jobs    LiveCounter
	hasher  *auth.Hasher
	policy  auth.Policy
	tokens  TokenIssuer
	limiter throttle.Limiter
	logger  logging.Logger
	now     timex.Clock
}

func NewUserService(repo users.Repository, jobs LiveCounter, hasher *auth.Hasher, policy auth.Policy, tokens TokenIssuer, limiter throttle.Limiter, logger logging.Logger) *UserService {
	return &UserService{
		users:   repo,
		jobs:    jobs,
		hasher:  hasher,
		policy:  policy,
		tokens:  tokens,
		limiter: limiter,
		logger:  logger.With("module", "users"),
		now:     timex.UTCNow,
	}
}

// Register creates an active free-tier account.
func (s *UserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := s.policy.CheckUsername(username); err != nil {
		return nil, err
	}
	if err := s.policy.CheckPassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%w: hashing password: %v", common.ErrInternal, err)
	}

	user, err := s.users.Create(ctx, &models.User{
		UserName:     username,
		PasswordHash: hash,
		IsActive:     true,
		Plan:         string(plans.TierFree),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID, "username", user.UserName)
	return user, nil
}

// Login checks credentials and issues a token. addr is the client address
// used together with username as the throttle key.
func (s *UserService) Login(ctx context.Context, addr, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, common.NewValidationError("username", "username and password are required")
	}

	if !s.limiter.Allow(addr, username) {
		s.logger.Warn(ctx, "login throttled", "addr", addr, "username", username)
		return nil, common.ErrRateLimited
	}

	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !auth.VerifyPassword(password, user.PasswordHash) {
		return nil, common.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, common.ErrInactiveAccount
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn(ctx, "last login not updated", "user_id", user.ID, "error", err)
	} else {
		user.LastLogin = &now
	}

	token, err := s.tokens.Issue(user.ID, user.UserName)
	if err != nil {
		return nil, fmt.Errorf("%w: issuing token: %v", common.ErrInternal, err)
	}
	return &Session{Token: token, User: user}, nil
}

// Authenticate resolves a verified identity to an active account.
func (s *UserService) Authenticate(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown user", common.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, common.ErrInactiveAccount
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
// The new hash always uses the adaptive scheme.
func (s *UserService) ChangePassword(ctx context.Context, user *models.User, current, next string) error {
	if !auth.VerifyPassword(current, user.PasswordHash) {
		return common.ErrInvalidCredentials
	}
	if err := s.policy.CheckPassword(next); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("%w: hashing password: %v", common.ErrInternal, err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}
	s.logger.Info(ctx, "password changed", "user_id", user.ID)
	return nil
}

func (s *UserService) Profile(ctx context.Context, user *models.User) (*Profile, error) {
	now := s.now()
	tier := plans.EffectiveTier(user.Plan, user.PlanExpiresAt, now)
	live, err := s.jobs.CountLive(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Tier: tier, Limits: plans.LimitsFor(tier), LiveJobs: live}, nil
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.List(ctx, limit, offset)
}

func (s *UserService) SetActive(ctx context.Context, id int64, active bool) (*models.User, error) {
	user, err := s.users.SetActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "user activation changed", "user_id", id, "active", active)
	return user, nil
}

// SetPlan assigns tier until expiresAt. A nil expiresAt never lapses.
func (s *UserService) SetPlan(ctx context.Context, id int64, tier string, expiresAt *time.Time) (*models.User, error) {
	t := plans.Tier(strings.ToLower(strings.TrimSpace(tier)))
	if !t.Valid() {
		return nil, common.NewValidationError("plan", "unknown plan "+tier)
	}
	if expiresAt != nil && t != plans.TierFree && !expiresAt.After(s.now()) {
		return nil, common.NewValidationError("expires_at", "must be in the future")
	}
	if t == plans.TierFree {
		expiresAt = nil
	}
	user, err := s.users.SetPlan(ctx, id, string(t), expiresAt)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "plan changed", "user_id", id, "plan", string(t))
	return user, nil
}
