package session

import (
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the fields the portal reads from a login token.
type TokenClaims struct {
	Subject   string
	UserID    int64
	ExpiresAt time.Time
}

// ReadClaims decodes the login token without verifying its signature; the
// billing API verifies it on every call. Opaque tokens yield ok=false.
func ReadClaims(token string) (TokenClaims, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return TokenClaims{}, false
	}

	var out TokenClaims
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	for _, key := range []string{"uid", "userId", "user_id", "id"} {
		if id, ok := numericClaim(claims[key]); ok {
			out.UserID = id
			break
		}
	}
	if out.UserID == 0 {
		if id, err := strconv.ParseInt(out.Subject, 10, 64); err == nil && id > 0 {
			out.UserID = id
		}
	}
	return out, true
}

func numericClaim(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		if val > 0 && val == float64(int64(val)) {
			return int64(val), true
		}
	case string:
		if id, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}
