package entitlements

import (
	"strings"

	"github.com/fleamarkt/fleamarkt/app/models"
)

type Plan string

const (
	PlanFree    Plan = models.PlanFree
	PlanPremium Plan = models.PlanPremium
)

// Unlimited marks an allowance without an upper bound.
const Unlimited = -1

// Normalize maps a stored plan value onto a known plan. Anything
// unrecognized counts as free.
func Normalize(raw string) Plan {
	if Plan(strings.ToLower(raw)) == PlanPremium {
		return PlanPremium
	}
	return PlanFree
}

// MaxActiveListings returns how many listings a plan may keep active at
// once.
func MaxActiveListings(plan Plan) int {
	switch plan {
	case PlanPremium:
		return Unlimited
	default:
		return 5
	}
}

// AllowsMoreListings reports whether a plan permits one more active listing
// given the current count.
func AllowsMoreListings(plan Plan, activeCount int64) bool {
	max := MaxActiveListings(plan)
	if max == Unlimited {
		return true
	}
	return activeCount < int64(max)
}
