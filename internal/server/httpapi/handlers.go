package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/dmitrijs2005/loadgate/internal/server/plans"
	"github.com/dmitrijs2005/loadgate/internal/server/services"
	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	if s.storage != nil {
		if err := s.storage.Ping(c.Request.Context()); err != nil {
			s.logger.Warn(c.Request.Context(), "storage ping failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listPlans(c *gin.Context) {
	tiers := plans.Tiers()
	out := make([]planResponse, 0, len(tiers))
	for _, l := range tiers {
		out = append(out, toPlan(l))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// bindJSON decodes the body into dst; a malformed body is a validation error.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", common.ErrValidation)
	}
	return nil
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

func pagination(c *gin.Context) (limit, offset int, err error) {
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, common.NewValidationError("limit", "must be a non-negative integer")
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, common.NewValidationError("offset", "must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// register: POST /api/auth/register
func (s *Server) register(c *gin.Context) {
	var req credentialsRequest
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}

	user, err := s.users.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": toUser(user)})
}

// login: POST /api/auth/login
func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}

	sess, err := s.users.Login(c.Request.Context(), c.ClientIP(), req.Username, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      sess.Token,
		"token_type": "Bearer",
		"expires_in": int(s.tokenValidity / time.Second),
		"user":       toUser(sess.User),
	})
}

func (s *Server) me(c *gin.Context) {
	p, err := s.users.Profile(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":      toUser(p.User),
		"plan":      toPlan(p.Limits),
		"live_jobs": p.LiveJobs,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.users.ChangePassword(c.Request.Context(), currentUser(c), req.CurrentPassword, req.NewPassword); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password changed"})
}

// listJobs: GET /api/jobs?status=running&limit=20&offset=0
func (s *Server) listJobs(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	list, err := s.jobs.List(c.Request.Context(), currentUser(c).ID, c.Query("status"), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]jobResponse, 0, len(list))
	for _, j := range list {
		out = append(out, toJob(j))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

// startJobRequest accepts the documented fields plus tier-gated extras
// (rate, protocol, payload, ...) which are collected into params.
type startJobRequest struct {
	Target   string          `json:"target"`
	Port     *int            `json:"port"`
	Duration int             `json:"duration"`
	JobType  string          `json:"job_type"`
	Params   json.RawMessage `json:"params"`
}

var knownStartFields = map[string]bool{"target": true, "port": true, "duration": true, "job_type": true, "jobType": true, "params": true}

func parseStartRequest(c *gin.Context) (services.StartRequest, error) {
	body, err := c.GetRawData()
	if err != nil {
		return services.StartRequest{}, fmt.Errorf("%w: unreadable request body", common.ErrValidation)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return services.StartRequest{}, fmt.Errorf("%w: invalid request body", common.ErrValidation)
	}
	var req startJobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return services.StartRequest{}, common.NewValidationError("body", "target must be a string, duration and port numbers")
	}
	if v, ok := raw["jobType"]; ok && req.JobType == "" {
		_ = json.Unmarshal(v, &req.JobType)
	}

	params := req.Params
	extras := map[string]json.RawMessage{}
	for k, v := range raw {
		if !knownStartFields[k] {
			extras[k] = v
		}
	}
	if len(extras) > 0 {
		if len(params) > 0 {
			var nested map[string]json.RawMessage
			if err := json.Unmarshal(params, &nested); err != nil {
				return services.StartRequest{}, common.NewValidationError("params", "must be a JSON object")
			}
			for k, v := range nested {
				extras[k] = v
			}
		}
		if params, err = json.Marshal(extras); err != nil {
			return services.StartRequest{}, fmt.Errorf("%w: encoding params: %v", common.ErrInternal, err)
		}
	}

	return services.StartRequest{
		Target:   req.Target,
		Port:     req.Port,
		Duration: req.Duration,
		JobType:  req.JobType,
		Params:   params,
	}, nil
}

// startJob: POST /api/jobs
func (s *Server) startJob(c *gin.Context) {
	req, err := parseStartRequest(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	res, err := s.jobs.Start(c.Request.Context(), currentUser(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"job": toJob(res.Job), "executor_response": res.Response})
}

// stopJob: POST /api/jobs/:id/stop
func (s *Server) stopJob(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	res, err := s.jobs.Stop(c.Request.Context(), currentUser(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": toJob(res.Job), "executor_response": res.Response})
}

func (s *Server) listTargets(c *gin.Context) {
	list, err := s.targets.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]targetResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toTarget(t))
	}
	c.JSON(http.StatusOK, gin.H{"targets": out})
}

type addTargetRequest struct {
	Host string `json:"host"`
}

func (s *Server) addTarget(c *gin.Context) {
	var req addTargetRequest
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	t, err := s.targets.Add(c.Request.Context(), currentUser(c).ID, req.Host)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"target": toTarget(t)})
}

func (s *Server) verifyTarget(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	t, err := s.targets.Verify(c.Request.Context(), currentUser(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"target": toTarget(t)})
}

func (s *Server) adminListUsers(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	list, err := s.users.ListUsers(c.Request.Context(), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, u := range list {
		out = append(out, toUser(u))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) adminSetActive(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var req setActiveRequest
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	if req.Active == nil {
		s.respondError(c, common.NewValidationError("active", "is required"))
		return
	}
	u, err := s.users.SetActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUser(u)})
}

type setPlanRequest struct {
	Plan      string     `json:"plan"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *Server) adminSetPlan(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var req setPlanRequest
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	u, err := s.users.SetPlan(c.Request.Context(), id, req.Plan, req.ExpiresAt)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUser(u)})
}
