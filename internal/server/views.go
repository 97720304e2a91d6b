package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billingportal/internal/auth/session"
	"github.com/smallbiznis/billingportal/internal/observability/logger"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	viewHome     = "home"
	viewLogin    = "login"
	viewRegister = "register"
	viewProfile  = "profile"
	viewInvoices = "invoices"
	viewError    = "error"
)

var viewNames = []string{viewHome, viewLogin, viewRegister, viewProfile, viewInvoices, viewError}

// views holds one template set per page, each joined with the shared layout.
type views struct {
	pages map[string]*template.Template
}

func loadViews() (*views, error) {
	funcs := template.FuncMap{
		"flashClass": flashClass,
	}
	pages := make(map[string]*template.Template, len(viewNames))
	for _, name := range viewNames {
		tpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse view %s: %w", name, err)
		}
		pages[name] = tpl
	}
	return &views{pages: pages}, nil
}

func mustLoadViews() *views {
	v, err := loadViews()
	if err != nil {
		panic(err)
	}
	return v
}

func (v *views) render(w io.Writer, name string, data any) error {
	tpl, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("unknown view %q", name)
	}
	return tpl.ExecuteTemplate(w, "layout", data)
}

func flashClass(kind session.FlashKind) string {
	if kind == session.FlashError {
		return "notice notice-error"
	}
	return "notice notice-success"
}

// Layout is the data every page shares.
type Layout struct {
	Title    string
	SignedIn bool
	Email    string
	UserID   int64
	Flashes  []session.Flash
}

// layoutFor builds the shared page data and consumes the session's queued notices.
func (s *Server) layoutFor(c *gin.Context, title string) Layout {
	l := Layout{Title: title}
	sess := currentSession(c)
	if sess == nil {
		if loaded, err := s.sessions.Load(c); err == nil {
			sess = loaded
		}
	}
	if sess == nil {
		return l
	}
	l.SignedIn = true
	l.Email = sess.Email
	l.UserID = sess.UserID
	l.Flashes = s.sessions.PopFlashes(c.Request.Context(), sess)
	return l
}

func (s *Server) renderPage(c *gin.Context, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.views.render(&buf, name, data); err != nil {
		logger.FromContext(c.Request.Context()).Error("render page failed",
			zap.String("view", name),
			zap.Error(err),
		)
		c.String(http.StatusInternalServerError, "internal server error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

type errorPage struct {
	Layout  Layout
	Status  int
	Message string
}

// renderError answers with the mapped status: JSON under /api, a page elsewhere.
func (s *Server) renderError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, payload := mapError(err)
	if isAPIRequest(c) {
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
		return
	}
	s.renderPage(c, status, viewError, errorPage{
		Layout:  s.layoutFor(c, http.StatusText(status)),
		Status:  status,
		Message: payload.Message,
	})
}

// redirectWithFlash queues a notice on sess and sends the browser to location.
func (s *Server) redirectWithFlash(c *gin.Context, sess *session.Session, kind session.FlashKind, message, location string) {
	if sess != nil {
		if err := s.sessions.AddFlash(c.Request.Context(), sess, kind, message); err != nil {
			logger.FromContext(c.Request.Context()).Warn("store flash failed", zap.Error(err))
		}
	}
	c.Redirect(http.StatusSeeOther, location)
}
