package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, PlanPremium, Normalize("premium"))
	assert.Equal(t, PlanPremium, Normalize("Premium"))
	assert.Equal(t, PlanFree, Normalize("free"))
	assert.Equal(t, PlanFree, Normalize(""))
	assert.Equal(t, PlanFree, Normalize("something-else"))
}

func TestAllowsMoreListings(t *testing.T) {
	assert.True(t, AllowsMoreListings(PlanFree, 0))
	assert.True(t, AllowsMoreListings(PlanFree, 4))
	assert.False(t, AllowsMoreListings(PlanFree, 5))
	assert.False(t, AllowsMoreListings(PlanFree, 50))

	assert.True(t, AllowsMoreListings(PlanPremium, 0))
	assert.True(t, AllowsMoreListings(PlanPremium, 100000))
}
