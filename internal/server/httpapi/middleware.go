package httpapi

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/dmitrijs2005/loadgate/internal/server/auth"
	"github.com/dmitrijs2005/loadgate/internal/server/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey = "request_id"
	userKey      = "user"
)

var (
	allowedMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}, ", ")
	allowedHeaders = strings.Join([]string{
		"Content-Type",
		common.AuthorizationHeaderName,
		common.AuthTokenHeaderName,
		common.LegacyUserIDHeaderName,
		common.AdminTokenHeaderName,
		common.RequestIDHeaderName,
	}, ", ")
)

// requestIDMiddleware keeps a caller supplied X-Request-Id or makes one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(common.RequestIDHeaderName)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(common.RequestIDHeaderName, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// accessLog writes one line per request.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info(c.Request.Context(), "http request",
			"request_id", requestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// cors answers every OPTIONS request with 204 and the allowed methods and
// headers, before any authentication runs.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", allowedMethods)
		h.Set("Access-Control-Allow-Headers", allowedHeaders)
		h.Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// authenticate resolves the caller to an active user. Tokens come first;
// the legacy X-User-Id header is honoured only when enabled.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID int64

		claims, err := auth.ClaimsFromHeaders(c.Request.Header, s.tokens)
		switch {
		case err == nil:
			userID = claims.UserID
		case s.allowLegacyIdentity && c.GetHeader(common.LegacyUserIDHeaderName) != "":
			id, perr := strconv.ParseInt(c.GetHeader(common.LegacyUserIDHeaderName), 10, 64)
			if perr != nil || id <= 0 {
				s.respondError(c, fmt.Errorf("%w: malformed %s header", common.ErrUnauthenticated, common.LegacyUserIDHeaderName))
				return
			}
			userID = id
		default:
			s.respondError(c, err)
			return
		}

		user, err := s.users.Authenticate(c.Request.Context(), userID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

// adminAuth guards /api/admin with a static token. An empty configured
// token disables the admin API.
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.adminToken == "" {
			s.respondError(c, fmt.Errorf("%w: admin API is disabled", common.ErrForbidden))
			return
		}
		token := c.GetHeader(common.AdminTokenHeaderName)
		if token == "" {
			s.respondError(c, fmt.Errorf("%w: admin token required", common.ErrUnauthenticated))
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			s.respondError(c, fmt.Errorf("%w: invalid admin token", common.ErrForbidden))
			return
		}
		c.Next()
	}
}
