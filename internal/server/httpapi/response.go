package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/dmitrijs2005/loadgate/internal/server/models"
	"github.com/dmitrijs2005/loadgate/internal/server/plans"
	"github.com/dmitrijs2005/loadgate/internal/server/services"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorClass struct {
	sentinel error
	status   int
	code     string
}

// classes is ordered: the first sentinel err matches decides the status.
var classes = []errorClass{
	{common.ErrValidation, http.StatusBadRequest, "validation_error"},
	{common.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{common.ErrForbidden, http.StatusForbidden, "forbidden"},
	{common.ErrNotFound, http.StatusNotFound, "not_found"},
	{common.ErrConflict, http.StatusConflict, "conflict"},
	{common.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{common.ErrDelegatedFailure, http.StatusBadGateway, "executor_failure"},
	{common.ErrConfiguration, http.StatusInternalServerError, "configuration_error"},
	{common.ErrInternal, http.StatusInternalServerError, "internal_error"},
}

// errorResponse is the single place errors become HTTP statuses. Only the
// 4xx classes echo the error text; server-side failures get a fixed
// message so driver or network detail never leaves the process.
func errorResponse(err error) (int, ErrorResponse) {
	var denial *services.DenialError
	if errors.As(err, &denial) {
		return http.StatusForbidden, ErrorResponse{
			Error:   "plan_limit",
			Message: denial.Error(),
			Details: gin.H{
				"reason":            denial.Reason,
				"tier":              denial.Tier,
				"limit":             denial.Limit,
				"current":           denial.Current,
				"allowed_job_types": denial.Allowed,
			},
		}
	}

	var conflict *services.StatusConflictError
	if errors.As(err, &conflict) {
		return http.StatusConflict, ErrorResponse{
			Error:   "invalid_state",
			Message: conflict.Error(),
			Details: gin.H{"status": conflict.Current},
		}
	}

	var verr *common.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: verr.Error(),
			Details: gin.H{"field": verr.Field},
		}
	}

	for _, c := range classes {
		if !errors.Is(err, c.sentinel) {
			continue
		}
		switch {
		case c.status == http.StatusBadGateway:
			return c.status, ErrorResponse{Error: c.code, Message: "the load runner rejected the request or could not be reached"}
		case c.status >= 500:
			return c.status, ErrorResponse{Error: c.code, Message: "internal server error"}
		default:
			return c.status, ErrorResponse{Error: c.code, Message: err.Error()}
		}
	}

	return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"}
}

func (s *Server) respondError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= 500 {
		s.logger.Error(c.Request.Context(), "request failed", "request_id", requestID(c), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

func iso(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func isoPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := iso(*t)
	return &s
}

type userResponse struct {
	ID            int64   `json:"id"`
	Username      string  `json:"username"`
	IsActive      bool    `json:"is_active"`
	IsAdmin       bool    `json:"is_admin"`
	Plan          string  `json:"plan"`
	PlanExpiresAt *string `json:"plan_expires_at"`
	LastLogin     *string `json:"last_login"`
	CreatedAt     string  `json:"created_at"`
}

func toUser(u *models.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Username:      u.UserName,
		IsActive:      u.IsActive,
		IsAdmin:       u.IsAdmin,
		Plan:          u.Plan,
		PlanExpiresAt: isoPtr(u.PlanExpiresAt),
		LastLogin:     isoPtr(u.LastLogin),
		CreatedAt:     iso(u.CreatedAt),
	}
}

type jobResponse struct {
	ID           int64   `json:"id"`
	Target       string  `json:"target"`
	Port         *int    `json:"port"`
	Duration     int     `json:"duration"`
	JobType      string  `json:"job_type"`
	Status       string  `json:"status"`
	Params       any     `json:"params,omitempty"`
	ExternalID   *string `json:"external_id"`
	StartedAt    string  `json:"started_at"`
	ExpiresAt    string  `json:"expires_at"`
	CompletedAt  *string `json:"completed_at"`
	ErrorMessage *string `json:"error_message"`
	CreatedAt    string  `json:"created_at"`
}

func toJob(j *models.Job) jobResponse {
	r := jobResponse{
		ID:           j.ID,
		Target:       j.Target,
		Port:         j.Port,
		Duration:     j.Duration,
		JobType:      j.JobType,
		Status:       string(j.Status),
		ExternalID:   j.ExternalID,
		StartedAt:    iso(j.StartedAt),
		ExpiresAt:    iso(j.ExpiresAt),
		CompletedAt:  isoPtr(j.CompletedAt),
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    iso(j.CreatedAt),
	}
	if len(j.Params) > 0 {
		r.Params = j.Params
	}
	return r
}

type targetResponse struct {
	ID                int64   `json:"id"`
	Host              string  `json:"host"`
	VerificationToken string  `json:"verification_token"`
	TXTRecord         string  `json:"txt_record"`
	WellKnownPath     string  `json:"well_known_path"`
	VerifiedAt        *string `json:"verified_at"`
	CreatedAt         string  `json:"created_at"`
}

func toTarget(t *models.Target) targetResponse {
	return targetResponse{
		ID:                t.ID,
		Host:              t.Host,
		VerificationToken: t.Token,
		TXTRecord:         services.TXTRecordPrefix + t.Token,
		WellKnownPath:     services.WellKnownPath,
		VerifiedAt:        isoPtr(t.VerifiedAt),
		CreatedAt:         iso(t.CreatedAt),
	}
}

type planResponse struct {
	Tier               plans.Tier `json:"tier"`
	MaxConcurrent      int        `json:"max_concurrent"`
	MaxDurationSeconds int        `json:"max_duration_seconds"`
	AllowedJobTypes    any        `json:"allowed_job_types"`
}

func toPlan(l plans.Limits) planResponse {
	var allowed any = "all"
	if !l.AllowsAllJobTypes() {
		allowed = l.JobTypes()
	}
	return planResponse{
		Tier:               l.Tier,
		MaxConcurrent:      l.MaxConcurrent,
		MaxDurationSeconds: l.MaxDurationSeconds,
		AllowedJobTypes:    allowed,
	}
}
