package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/billingportal/internal/clock"
	"github.com/smallbiznis/billingportal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(clk *clock.FakeClock) (*Manager, *MemoryStore) {
	store := NewMemoryStore(clk)
	return NewManager(config.Config{SessionTTL: time.Hour}, store, clk), store
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func TestManagerStartAndLoad(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clk := clock.NewFakeClock(time.Now())
	mgr, _ := newTestManager(clk)

	r := gin.New()
	r.POST("/login", func(c *gin.Context) {
		_, err := mgr.Start(c, "opaque-token", "ada@example.com", 5)
		require.NoError(t, err)
		c.Status(http.StatusNoContent)
	})
	r.GET("/me", func(c *gin.Context) {
		s, err := mgr.Load(c)
		if err != nil {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.String(http.StatusOK, "%d %s", s.UserID, s.Token)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	cookie := sessionCookie(t, rec, DefaultCookieName)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5 opaque-token", rec.Body.String())

	clk.Advance(2 * time.Hour)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestManagerStartCapsExpiryAtTokenExp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Now()
	clk := clock.NewFakeClock(now)
	mgr, _ := newTestManager(clk)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": 11,
		"exp": now.Add(10 * time.Minute).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/login", nil)

	s, err := mgr.Start(c, token, "x@y.z", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(11), s.UserID, "user id falls back to the token claim")
	assert.True(t, s.ExpiresAt.Before(now.Add(11*time.Minute)))
}

func TestManagerFlashes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clk := clock.NewFakeClock(time.Now())
	mgr, store := newTestManager(clk)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	s, err := mgr.Start(c, "tok", "", 1)
	require.NoError(t, err)

	require.NoError(t, mgr.AddFlash(c.Request.Context(), s, FlashSuccess, "Wallet topped up with $5.00"))
	stored, err := store.Get(c.Request.Context(), s.ID)
	require.NoError(t, err)
	require.Len(t, stored.Flashes, 1)

	flashes := mgr.PopFlashes(c.Request.Context(), stored)
	assert.Equal(t, []Flash{{Kind: FlashSuccess, Message: "Wallet topped up with $5.00"}}, flashes)

	again, err := store.Get(c.Request.Context(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Flashes)
}

func TestManagerDestroy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clk := clock.NewFakeClock(time.Now())
	mgr, store := newTestManager(clk)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	s, err := mgr.Start(c, "tok", "", 1)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(rec)
	c2.Request = httptest.NewRequest(http.MethodPost, "/logout", nil)
	c2.Request.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: s.ID})
	require.NoError(t, mgr.Destroy(c2))

	_, err = store.Get(c.Request.Context(), s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, -1, sessionCookie(t, rec, DefaultCookieName).MaxAge)
}
