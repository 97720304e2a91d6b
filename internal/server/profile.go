package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/billingportal/internal/account/domain"
	"github.com/smallbiznis/billingportal/internal/apiclient"
	"github.com/smallbiznis/billingportal/internal/auth/session"
	"github.com/smallbiznis/billingportal/internal/observability/logger"
	"github.com/smallbiznis/billingportal/internal/ratelimit"
	walletdomain "github.com/smallbiznis/billingportal/internal/wallet/domain"
	walletservice "github.com/smallbiznis/billingportal/internal/wallet/service"
	"go.uber.org/zap"
)

const topUpLockTTL = 30 * time.Second

type profilePage struct {
	Layout    Layout
	Profile   accountdomain.UserProfile
	Wallet    string
	TierKnown bool
	Amount    string
	Errors    ValidationErrors
}

func (s *Server) Profile(c *gin.Context) {
	userID, err := int64Param(c, "id")
	if err != nil {
		s.renderError(c, err)
		return
	}
	sess := currentSession(c)

	profile, err := s.apiFor(sess).GetUserProfile(c.Request.Context(), userID)
	if err != nil {
		s.handleAPIError(c, err)
		return
	}
	s.renderProfile(c, http.StatusOK, profile, "", ValidationErrors{})
}

// TopUp adds the submitted dollar amount to the wallet. The balance is
// re-read under a per-user lease so portal requests for one user never write
// from the same stale snapshot.
func (s *Server) TopUp(c *gin.Context) {
	userID, err := int64Param(c, "id")
	if err != nil {
		s.renderError(c, err)
		return
	}
	sess := currentSession(c)
	ctx := c.Request.Context()
	api := s.apiFor(sess)
	raw := strings.TrimSpace(c.PostForm(walletdomain.AmountField))
	back := userPath(userID)

	if _, err := walletservice.ParseAmountCents(raw); err != nil {
		_ = c.Error(err)
		profile, fetchErr := api.GetUserProfile(ctx, userID)
		if fetchErr != nil {
			s.handleAPIError(c, fetchErr)
			return
		}
		s.renderProfile(c, http.StatusBadRequest, profile, raw, amountError(err))
		return
	}

	key := ratelimit.TopUpLockKey(userID)
	token, ok, err := s.locker.TryLock(ctx, key, topUpLockTTL)
	if err != nil {
		logger.FromContext(ctx).Warn("top-up lock failed", zap.Int64("user_id", userID), zap.Error(err))
		s.redirectWithFlash(c, sess, session.FlashError, "Top-Up Failed: wallet service unavailable", back)
		return
	}
	if !ok {
		_, payload := mapError(ratelimit.ErrLockHeld)
		s.redirectWithFlash(c, sess, session.FlashError, "Top-Up Failed: "+payload.Message, back)
		return
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			logger.FromContext(ctx).Warn("top-up lock release failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}()

	profile, err := api.GetUserProfile(ctx, userID)
	if err != nil {
		if apiclient.IsUnauthorized(err) {
			s.handleAPIError(c, err)
			return
		}
		_ = c.Error(err)
		s.redirectWithFlash(c, sess, session.FlashError, "Top-Up Failed: "+walletdomain.ErrProfileNotLoaded.Error(), back)
		return
	}

	result, err := s.wallet.TopUp(ctx, api, &profile, raw)
	if err != nil {
		_ = c.Error(err)
		if walletservice.IsValidationError(err) {
			s.renderProfile(c, http.StatusBadRequest, profile, raw, amountError(err))
			return
		}
		if apiclient.IsUnauthorized(err) {
			s.handleAPIError(c, err)
			return
		}
		_, payload := mapError(err)
		s.redirectWithFlash(c, sess, session.FlashError, "Top-Up Failed: "+payload.Message, back)
		return
	}

	message := "Wallet topped up with " + s.formatter().Cents(result.Proposal.AmountCents)
	s.redirectWithFlash(c, sess, session.FlashSuccess, message, back)
}

func (s *Server) renderProfile(c *gin.Context, status int, profile accountdomain.UserProfile, amount string, errs ValidationErrors) {
	s.renderPage(c, status, viewProfile, profilePage{
		Layout:    s.layoutFor(c, profile.FullName()),
		Profile:   profile,
		Wallet:    s.formatter().Cents(profile.WalletCents),
		TierKnown: profile.Tier.Known(),
		Amount:    amount,
		Errors:    errs,
	})
}

// apiFor returns a client acting with the session's bearer token.
func (s *Server) apiFor(sess *session.Session) PortalAPI {
	if sess == nil {
		return s.clients("")
	}
	return s.clients(sess.Token)
}

// handleAPIError signs the user out when the API rejects their token and
// renders the mapped error otherwise.
func (s *Server) handleAPIError(c *gin.Context, err error) {
	if apiclient.StatusCode(err) == http.StatusUnauthorized && !isAPIRequest(c) {
		_ = c.Error(err)
		if destroyErr := s.sessions.Destroy(c); destroyErr != nil {
			logger.FromContext(c.Request.Context()).Warn("drop rejected session failed", zap.Error(destroyErr))
		}
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}
	s.renderError(c, err)
}
