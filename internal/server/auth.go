package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/billingportal/internal/account/domain"
	"github.com/smallbiznis/billingportal/internal/auth/session"
	"github.com/smallbiznis/billingportal/internal/observability/logger"
	"go.uber.org/zap"
)

type loginForm struct {
	Email    string `form:"email" binding:"required,email"`
	Password string `form:"password" binding:"required"`
	User     string `form:"user" binding:"omitempty,numeric"`
}

type registerForm struct {
	FirstName string `form:"firstName" binding:"required"`
	LastName  string `form:"lastName" binding:"required"`
	Email     string `form:"email" binding:"required,email"`
	Password  string `form:"password" binding:"required,min=8"`
	Bio       string `form:"bio"`
	Tier      string `form:"tier" binding:"omitempty,oneof=NORMAL CORE PRO"`
}

type loginPage struct {
	Layout     Layout
	Email      string
	User       string
	Registered bool
	Error      string
	Errors     ValidationErrors
}

type registerPage struct {
	Layout Layout
	Form   registerForm
	Tiers  []accountdomain.Tier
	Error  string
	Errors ValidationErrors
}

type homePage struct {
	Layout Layout
	Errors ValidationErrors
}

// Home sends signed-in users with a known account to their profile.
func (s *Server) Home(c *gin.Context) {
	sess, err := s.sessions.Load(c)
	if err != nil {
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}
	c.Set(contextSessionKey, sess)
	if sess.UserID != 0 {
		c.Redirect(http.StatusSeeOther, userPath(sess.UserID))
		return
	}

	if raw := strings.TrimSpace(c.Query("user")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && id > 0 {
			c.Redirect(http.StatusSeeOther, userPath(id))
			return
		}
		s.renderPage(c, http.StatusBadRequest, viewHome, homePage{
			Layout: s.layoutFor(c, "Open account"),
			Errors: ValidationErrors{Errors: []ValidationError{{
				Field:   "user",
				Code:    "numeric",
				Message: "User ID must be a number",
			}}},
		})
		return
	}

	s.renderPage(c, http.StatusOK, viewHome, homePage{Layout: s.layoutFor(c, "Open account")})
}

func (s *Server) LoginPage(c *gin.Context) {
	s.renderLogin(c, http.StatusOK, loginPage{
		User:       strings.TrimSpace(c.Query("user")),
		Registered: c.Query("registered") == "1",
	})
}

func (s *Server) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		s.renderLogin(c, http.StatusBadRequest, loginPage{
			Email:  form.Email,
			User:   form.User,
			Errors: bindingErrors(err),
		})
		return
	}

	ctx := c.Request.Context()
	email := strings.TrimSpace(form.Email)
	token, err := s.clients("").Login(ctx, email, form.Password)
	if err != nil {
		s.obsMetrics.RecordLogin(ctx, "failure")
		_ = c.Error(err)
		status, payload := mapError(err)
		s.renderLogin(c, status, loginPage{
			Email: email,
			User:  form.User,
			Error: "Login failed: " + payload.Message,
		})
		return
	}

	var userID int64
	if form.User != "" {
		userID, _ = strconv.ParseInt(form.User, 10, 64)
	}

	if err := s.sessions.Destroy(c); err != nil {
		logger.FromContext(ctx).Warn("drop previous session failed", zap.Error(err))
	}
	sess, err := s.sessions.Start(c, token, email, userID)
	if err != nil {
		s.renderError(c, err)
		return
	}

	s.obsMetrics.RecordLogin(ctx, "success")
	logger.FromContext(ctx).Info("portal login", zap.Int64("user_id", sess.UserID))
	s.redirectWithFlash(c, sess, session.FlashSuccess, "Login successful!", "/")
}

func (s *Server) RegisterPage(c *gin.Context) {
	s.renderRegister(c, http.StatusOK, registerPage{
		Form: registerForm{Tier: string(accountdomain.TierNormal)},
	})
}

func (s *Server) Register(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBind(&form); err != nil {
		form.Password = ""
		s.renderRegister(c, http.StatusBadRequest, registerPage{Form: form, Errors: bindingErrors(err)})
		return
	}

	tier, err := accountdomain.ParseTier(form.Tier)
	if err != nil {
		form.Password = ""
		s.renderRegister(c, http.StatusBadRequest, registerPage{
			Form:   form,
			Errors: ValidationErrors{Errors: []ValidationError{{Field: "tier", Code: "oneof", Message: err.Error()}}},
		})
		return
	}

	req := accountdomain.RegisterRequest{
		FirstName: strings.TrimSpace(form.FirstName),
		LastName:  strings.TrimSpace(form.LastName),
		Email:     strings.TrimSpace(form.Email),
		Password:  form.Password,
		Bio:       form.Bio,
		Tier:      tier,
	}
	if err := s.clients("").Register(c.Request.Context(), req); err != nil {
		_ = c.Error(err)
		status, payload := mapError(err)
		form.Password = ""
		s.renderRegister(c, status, registerPage{Form: form, Error: "Registration failed: " + payload.Message})
		return
	}

	c.Redirect(http.StatusSeeOther, "/login?registered=1")
}

func (s *Server) Logout(c *gin.Context) {
	if err := s.sessions.Destroy(c); err != nil {
		logger.FromContext(c.Request.Context()).Warn("logout failed", zap.Error(err))
	}
	c.Redirect(http.StatusSeeOther, "/login")
}

func (s *Server) renderLogin(c *gin.Context, status int, page loginPage) {
	page.Layout = s.layoutFor(c, "Sign in")
	s.renderPage(c, status, viewLogin, page)
}

func (s *Server) renderRegister(c *gin.Context, status int, page registerPage) {
	page.Layout = s.layoutFor(c, "Create account")
	page.Tiers = accountdomain.Tiers
	s.renderPage(c, status, viewRegister, page)
}

func userPath(userID int64) string {
	return fmt.Sprintf("/users/%d", userID)
}
