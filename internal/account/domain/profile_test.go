package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("pro")
	require.NoError(t, err)
	assert.Equal(t, TierPro, tier)

	tier, err = ParseTier("")
	require.NoError(t, err)
	assert.Equal(t, TierNormal, tier)

	_, err = ParseTier("GOLD")
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestUserProfileNames(t *testing.T) {
	p := UserProfile{FirstName: "ada", LastName: "Lovelace"}
	assert.Equal(t, "ada Lovelace", p.FullName())
	assert.Equal(t, "AL", p.Initials())
	assert.Equal(t, "", UserProfile{}.Initials())
}

func TestTierKnown(t *testing.T) {
	assert.True(t, TierCore.Known())
	assert.False(t, Tier("ENTERPRISE").Known())
}
