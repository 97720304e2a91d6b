package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/billingportal/internal/clock"
	"github.com/smallbiznis/billingportal/internal/config"
)

const (
	DefaultCookieName = "_portal_sid"
	DefaultTTL        = 12 * time.Hour

	contextKey = "portal.session"
)

// Manager binds the session cookie to records in a Store.
type Manager struct {
	cookieName string
	secure     bool
	ttl        time.Duration
	store      Store
	clock      clock.Clock
}

func NewManager(cfg config.Config, store Store, clk clock.Clock) *Manager {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Manager{
		cookieName: DefaultCookieName,
		secure:     cfg.AuthCookieSecure,
		ttl:        ttl,
		store:      store,
		clock:      clk,
	}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

func (m *Manager) ReadID(c *gin.Context) (string, bool) {
	id, err := c.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(id) == "" {
		return "", false
	}
	return id, true
}

// Start creates a session for token and sets its cookie. The session never
// outlives the token's own exp claim.
func (m *Manager) Start(c *gin.Context, token, email string, userID int64) (*Session, error) {
	now := m.clock.Now()
	expiresAt := now.Add(m.ttl)
	if claims, ok := ReadClaims(token); ok {
		if !claims.ExpiresAt.IsZero() && claims.ExpiresAt.Before(expiresAt) {
			expiresAt = claims.ExpiresAt
		}
		if userID == 0 {
			userID = claims.UserID
		}
	}

	s := &Session{
		ID:        uuid.NewString(),
		Token:     token,
		Email:     strings.TrimSpace(email),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := m.store.Save(c.Request.Context(), s); err != nil {
		return nil, err
	}
	m.setCookie(c, s.ID, expiresAt)
	c.Set(contextKey, s)
	return s, nil
}

// Load returns the caller's session. A missing or expired session clears the cookie.
func (m *Manager) Load(c *gin.Context) (*Session, error) {
	if cached, ok := c.Get(contextKey); ok {
		if s, ok := cached.(*Session); ok {
			return s, nil
		}
	}
	id, ok := m.ReadID(c)
	if !ok {
		return nil, ErrNotFound
	}
	s, err := m.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.clearCookie(c)
		}
		return nil, err
	}
	if s.Expired(m.clock.Now()) {
		_ = m.store.Delete(c.Request.Context(), id)
		m.clearCookie(c)
		return nil, ErrExpired
	}
	c.Set(contextKey, s)
	return s, nil
}

// Destroy removes the session record and its cookie.
func (m *Manager) Destroy(c *gin.Context) error {
	c.Set(contextKey, nil)
	m.clearCookie(c)
	id, ok := m.ReadID(c)
	if !ok {
		return nil
	}
	return m.store.Delete(c.Request.Context(), id)
}

// AddFlash queues a notice for the next page the session renders.
func (m *Manager) AddFlash(ctx context.Context, s *Session, kind FlashKind, message string) error {
	if s == nil {
		return ErrNotFound
	}
	s.Flashes = append(s.Flashes, Flash{Kind: kind, Message: message})
	return m.store.Save(ctx, s)
}

// PopFlashes returns and clears queued notices.
func (m *Manager) PopFlashes(ctx context.Context, s *Session) []Flash {
	if s == nil || len(s.Flashes) == 0 {
		return nil
	}
	flashes := s.Flashes
	s.Flashes = nil
	_ = m.store.Save(ctx, s)
	return flashes
}

func (m *Manager) setCookie(c *gin.Context, value string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(m.clock.Now()).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, value, maxAge, "/", "", m.secure, true)
}

func (m *Manager) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}
