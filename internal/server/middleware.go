package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billingportal/internal/auth/session"
	obscontext "github.com/smallbiznis/billingportal/internal/observability/context"
	"github.com/smallbiznis/billingportal/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextSessionKey = "portal.current_session"

	rateLimitEndpointLogin = "login"
)

// SessionRequired loads the caller's session. Pages redirect to the login
// form when there is none; the JSON API answers 401.
func (s *Server) SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.sessions.Load(c)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) && !errors.Is(err, session.ErrExpired) {
				logger.FromContext(c.Request.Context()).Warn("session lookup failed", zap.Error(err))
			}
			if isAPIRequest(c) {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}

		c.Set(contextSessionKey, sess)
		if sess.UserID != 0 {
			ctx := obscontext.WithUserID(c.Request.Context(), strconv.FormatInt(sess.UserID, 10))
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// LoginRateLimit throttles credential submissions per client address.
func (s *Server) LoginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.loginLimiter == nil {
			c.Next()
			return
		}

		res := s.loginLimiter.Allow(c.Request.Context(), c.ClientIP())
		if res.Allowed {
			c.Next()
			return
		}

		s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), rateLimitEndpointLogin, "client-rate")
		logger.FromContext(c.Request.Context()).Warn("login rate limited",
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("retry_after", res.RetryAfter),
		)
		if res.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		}
		s.renderError(c, ErrTooManyRequests)
		c.Abort()
	}
}

func currentSession(c *gin.Context) *session.Session {
	value, ok := c.Get(contextSessionKey)
	if !ok {
		return nil
	}
	sess, _ := value.(*session.Session)
	return sess
}

func isAPIRequest(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/")
}

// int64Param reads a positive numeric path parameter.
func int64Param(c *gin.Context, name string) (int64, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}
