package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/dmitrijs2005/loadgate/internal/server/models"
	"github.com/dmitrijs2005/loadgate/internal/server/plans"
)

// StartRequest is a tenant's request to begin a load test. Port and Params
// are forwarded to the executor as given.
type StartRequest struct {
	Target   string          `json:"target"`
	Port     *int            `json:"port,omitempty"`
	Duration int             `json:"duration"`
	JobType  string          `json:"job_type"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// Validate checks the request shape. Quota checks happen in Admit.
func (r StartRequest) Validate() error {
	if strings.TrimSpace(r.Target) == "" {
		return common.NewValidationError("target", "is required")
	}
	if strings.TrimSpace(r.JobType) == "" {
		return common.NewValidationError("job_type", "is required")
	}
	if r.Duration < 1 {
		return common.NewValidationError("duration", "must be a positive number of seconds")
	}
	if r.Port != nil && (*r.Port < 1 || *r.Port > 65535) {
		return common.NewValidationError("port", "must be between 1 and 65535")
	}
	if len(r.Params) > 0 && !json.Valid(r.Params) {
		return common.NewValidationError("params", "must be valid JSON")
	}
	return nil
}

type DenialReason string

const (
	DenialDuration          DenialReason = "duration_exceeds_plan"
	DenialJobType           DenialReason = "job_type_not_in_plan"
	DenialTargetNotVerified DenialReason = "target_not_verified"
	DenialConcurrency       DenialReason = "concurrency_limit_reached"
)

// DenialError is a quota refusal. Limit is the plan value that was hit and
// Current the requested or observed value.
type DenialError struct {
	Reason  DenialReason
	Tier    plans.Tier
	Limit   int
	Current int
	JobType string
	Allowed []string
}

func (e *DenialError) Error() string {
	switch e.Reason {
	case DenialDuration:
		return fmt.Sprintf("duration %ds exceeds the %s plan maximum of %ds", e.Current, e.Tier, e.Limit)
	case DenialJobType:
		return fmt.Sprintf("job type %q is not available on the %s plan", e.JobType, e.Tier)
	case DenialTargetNotVerified:
		return "target ownership has not been verified"
	case DenialConcurrency:
		return fmt.Sprintf("%d of %d concurrent jobs already running on the %s plan", e.Current, e.Limit, e.Tier)
	}
	return string(e.Reason)
}

func (e *DenialError) Unwrap() error { return common.ErrForbidden }

// LiveCounter is the part of the job store admission reads.
type LiveCounter interface {
	CountLive(ctx context.Context, userID int64, now time.Time) (int, error)
}

// VerifiedTargets reports whether a host was proven to belong to a user.
type VerifiedTargets interface {
	FindVerified(ctx context.Context, userID int64, host string) (*models.Target, error)
}

// Admitted is a successful admission: the limits the job runs under and
// the live count observed.
type Admitted struct {
	Tier   plans.Tier
	Limits plans.Limits
	Host   string
	Live   int
}

// Admission gates job starts. Checks run cheapest first and stop at the
// first failure: duration, job type, target ownership, live concurrency.
type Admission struct {
	jobs    LiveCounter
	targets VerifiedTargets
}

func NewAdmission(jobs LiveCounter, targets VerifiedTargets) *Admission {
	return &Admission{jobs: jobs, targets: targets}
}

func (a *Admission) Admit(ctx context.Context, user *models.User, req StartRequest, now time.Time) (*Admitted, error) {
	tier := plans.EffectiveTier(user.Plan, user.PlanExpiresAt, now)
	limits := plans.LimitsFor(tier)

	if req.Duration > limits.MaxDurationSeconds {
		return nil, &DenialError{Reason: DenialDuration, Tier: tier, Limit: limits.MaxDurationSeconds, Current: req.Duration}
	}

	if !limits.Allows(req.JobType) {
		return nil, &DenialError{Reason: DenialJobType, Tier: tier, JobType: req.JobType, Allowed: limits.JobTypes()}
	}

	host, err := NormalizeHost(req.Target)
	if err != nil {
		return nil, err
	}
	if _, err := a.targets.FindVerified(ctx, user.ID, host); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, &DenialError{Reason: DenialTargetNotVerified, Tier: tier}
		}
		return nil, fmt.Errorf("target lookup: %w", err)
	}

	live, err := a.jobs.CountLive(ctx, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("count live jobs: %w", err)
	}
	if live >= limits.MaxConcurrent {
		return nil, &DenialError{Reason: DenialConcurrency, Tier: tier, Limit: limits.MaxConcurrent, Current: live}
	}

	return &Admitted{Tier: tier, Limits: limits, Host: host, Live: live}, nil
}
