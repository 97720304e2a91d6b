// Package domain contains user account records returned by the billing API.
package domain

import (
	"errors"
	"strings"
)

// Tier is a subscription level. Unknown values are kept verbatim for display.
type Tier string

const (
	TierNormal Tier = "NORMAL"
	TierCore   Tier = "CORE"
	TierPro    Tier = "PRO"
)

var Tiers = []Tier{TierNormal, TierCore, TierPro}

var ErrInvalidTier = errors.New("invalid tier")

// ParseTier accepts a tier name in any case. Empty input yields TierNormal.
func ParseTier(raw string) (Tier, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return TierNormal, nil
	}
	for _, t := range Tiers {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", ErrInvalidTier
}

func (t Tier) Known() bool {
	for _, k := range Tiers {
		if k == t {
			return true
		}
	}
	return false
}

// UserProfile is the server's view of an account. WalletCents is
// authoritative; WalletDollars is a display value derived by the server.
type UserProfile struct {
	ID            int64   `json:"id"`
	FirstName     string  `json:"firstName"`
	LastName      string  `json:"lastName"`
	Email         string  `json:"email"`
	Tier          Tier    `json:"tier"`
	WalletCents   int64   `json:"walletCents"`
	WalletDollars float64 `json:"walletDollars"`
}

func (p UserProfile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Initials returns up to two uppercase letters for avatars.
func (p UserProfile) Initials() string {
	var b strings.Builder
	for _, part := range []string{p.FirstName, p.LastName} {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(string([]rune(part)[0])))
	}
	return b.String()
}

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Bio       string `json:"bio"`
	Tier      Tier   `json:"tier"`
}
