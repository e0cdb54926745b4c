package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/dmitrijs2005/loadgate/internal/logging"
	"github.com/dmitrijs2005/loadgate/internal/server/archive"
	"github.com/dmitrijs2005/loadgate/internal/server/executor"
	"github.com/dmitrijs2005/loadgate/internal/server/models"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/loadgate/internal/timex"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	noExternalIDNote = "executor returned no job id; stopped locally only"
)

// StatusConflictError is returned when a transition is asked of a job that
// is no longer running.
type StatusConflictError struct {
	Current models.JobStatus
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("job is not running (status=%s)", e.Current)
}

func (e *StatusConflictError) Unwrap() error { return common.ErrConflict }

// StartedJob is a created job plus the executor's reply text.
type StartedJob struct {
	Job      *models.Job
	Response string
}

// StoppedJob is a stopped job plus the executor's reply text. Response is
// empty when the executor was not reached.
type StoppedJob struct {
	Job      *models.Job
	Response string
}

// JobService owns the job state machine: running to stopped, completed or
// failed. The executor is always called outside any database transaction.
type JobService struct {
	admission *Admission
	jobs      jobs.Repository
	executor  executor.Executor
	archive   archive.Store
	logger    logging.Logger
	timeout   time.Duration
	now       timex.Clock
}

func NewJobService(admission *Admission, repo jobs.Repository, exec executor.Executor, store archive.Store, logger logging.Logger, timeout time.Duration) *JobService {
	if store == nil {
		store = archive.Noop{}
	}
	return &JobService{
		admission: admission,
		jobs:      repo,
		executor:  exec,
		archive:   store,
		logger:    logger.With("module", "jobs"),
		timeout:   timeout,
		now:       timex.UTCNow,
	}
}

func (s *JobService) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Start admits req for user, asks the executor to run it and records the
// job only after the executor accepted it.
func (s *JobService) Start(ctx context.Context, user *models.User, req StartRequest) (*StartedJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	admitted, err := s.admission.Admit(ctx, user, req, s.now())
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.callCtx(ctx)
	res, err := s.executor.Start(callCtx, executor.StartRequest{
		Target:   req.Target,
		Port:     req.Port,
		Duration: req.Duration,
		JobType:  req.JobType,
		Params:   req.Params,
	})
	cancel()
	if err != nil {
		s.logger.Warn(ctx, "executor rejected start", "user_id", user.ID, "target", req.Target, "error", err)
		return nil, fmt.Errorf("start job: %w", err)
	}

	startedAt := s.now()
	job := &models.Job{
		UserID:     user.ID,
		Target:     req.Target,
		Port:       req.Port,
		Duration:   req.Duration,
		JobType:    req.JobType,
		Status:     models.JobStatusRunning,
		Params:     req.Params,
		ExternalID: res.ExternalID,
		StartedAt:  startedAt,
		ExpiresAt:  startedAt.Add(time.Duration(req.Duration) * time.Second),
	}

	created, err := s.jobs.CreateWithinLimit(ctx, job, admitted.Limits.MaxConcurrent, startedAt)
	if errors.Is(err, jobs.ErrLimitReached) {
		// Another start for the same user won the race after admission.
		s.compensate(ctx, user.ID, res.ExternalID)
		return nil, &DenialError{
			Reason:  DenialConcurrency,
			Tier:    admitted.Tier,
			Limit:   admitted.Limits.MaxConcurrent,
			Current: admitted.Limits.MaxConcurrent,
		}
	}
	if err != nil {
		s.logger.Error(ctx, "executor accepted job but it was not recorded; reconcile manually",
			"user_id", user.ID, "target", req.Target, "external_id", deref(res.ExternalID), "error", err)
		return nil, fmt.Errorf("%w: job was started but could not be recorded", common.ErrInternal)
	}

	s.save(ctx, created, archive.EventStart, res.Body, startedAt)
	s.logger.Info(ctx, "job started", "job_id", created.ID, "user_id", user.ID, "tier", string(admitted.Tier))

	return &StartedJob{Job: created, Response: res.Body}, nil
}

func (s *JobService) compensate(ctx context.Context, userID int64, externalID *string) {
	if externalID == nil {
		s.logger.Error(ctx, "job over limit could not be stopped: no external id", "user_id", userID)
		return
	}
	callCtx, cancel := s.callCtx(ctx)
	defer cancel()
	if _, err := s.executor.Stop(callCtx, *externalID); err != nil {
		s.logger.Error(ctx, "failed to stop job over limit", "user_id", userID, "external_id", *externalID, "error", err)
	}
}

// Stop halts a running job. Only the owner or an administrator may stop
// it. A failing or unreachable executor does not keep the job running
// locally; the failure is kept in error_message instead.
func (s *JobService) Stop(ctx context.Context, actor *models.User, jobID int64) (*StoppedJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := Authorize(actor, job.UserID); err != nil {
		return nil, err
	}

	if current := job.EffectiveStatus(s.now()); current != models.JobStatusRunning {
		return nil, &StatusConflictError{Current: current}
	}

	var (
		response string
		note     *string
	)
	if job.ExternalID == nil {
		n := noExternalIDNote
		note = &n
	} else {
		callCtx, cancel := s.callCtx(ctx)
		response, err = s.executor.Stop(callCtx, *job.ExternalID)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "executor stop failed; stopping locally", "job_id", job.ID, "external_id", *job.ExternalID, "error", err)
			n := fmt.Sprintf("executor stop failed: %v", err)
			note = &n
			response = ""
		}
	}

	stoppedAt := s.now()
	updated, err := s.jobs.MarkStopped(ctx, job.ID, stoppedAt, note)
	if errors.Is(err, common.ErrConflict) {
		if fresh, gerr := s.jobs.GetByID(ctx, job.ID); gerr == nil {
			return nil, &StatusConflictError{Current: fresh.EffectiveStatus(stoppedAt)}
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if response != "" {
		s.save(ctx, updated, archive.EventStop, response, stoppedAt)
	}
	s.logger.Info(ctx, "job stopped", "job_id", updated.ID, "by", actor.ID)

	return &StoppedJob{Job: updated, Response: response}, nil
}

// List returns the caller's jobs, newest first. Running jobs past their
// expiry are reported as completed. An empty status lists everything.
func (s *JobService) List(ctx context.Context, userID int64, status string, limit, offset int) ([]*models.Job, error) {
	filter := jobs.ListFilter{Limit: limit, Offset: offset}
	if status != "" {
		st := models.JobStatus(status)
		if !st.Valid() {
			return nil, common.NewValidationError("status", "unknown status "+status)
		}
		filter.Status = &st
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	now := s.now()
	list, err := s.jobs.List(ctx, userID, now, filter)
	if err != nil {
		return nil, err
	}
	for _, j := range list {
		j.Status = j.EffectiveStatus(now)
	}
	return list, nil
}

// Reconcile persists the completed state of lapsed running jobs. Nothing
// depends on it for correctness; it keeps stored status close to reality.
func (s *JobService) Reconcile(ctx context.Context) (int64, error) {
	n, err := s.jobs.CompleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug(ctx, "expired jobs completed", "count", n)
	}
	return n, nil
}

func (s *JobService) save(ctx context.Context, job *models.Job, event archive.Event, body string, at time.Time) {
	if _, err := s.archive.Save(ctx, job.UserID, job.ID, event, body, at); err != nil {
		s.logger.Warn(ctx, "transcript not archived", "job_id", job.ID, "event", string(event), "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
