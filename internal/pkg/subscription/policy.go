package subscription

import (
	"time"

	"github.com/fleamarkt/fleamarkt/app/models"
	"github.com/fleamarkt/fleamarkt/internal/pkg/billing"
)

// CustomerSignals bundles one billing customer with its subscriptions, in
// provider listing order.
type CustomerSignals struct {
	CustomerID    string
	Subscriptions []billing.Subscription
}

// Snapshots holds the current record from each internal store. A missing
// record reads as the empty record, never as an error.
type Snapshots struct {
	Primary models.SubscriptionRecord
	Mirror  models.SubscriptionRecord
}

// BothEmpty reports the no-data case: neither store has ever seen a
// subscription for this user.
func (s Snapshots) BothEmpty() bool {
	return s.Primary.IsZero() && s.Mirror.IsZero()
}

// Outcome is the result of the reconciliation policy: the canonical record
// plus the billing-side cleanup the engine must run after a successful write.
type Outcome struct {
	Record models.SubscriptionRecord

	// CancelSubscriptionIDs lists stray non-canceled subscriptions that did
	// not qualify for any entitlement and should be canceled at the provider.
	CancelSubscriptionIDs []string

	// CustomerIDs are all billing customers found for the identity. They are
	// purged after the write when the final plan is free, so a dead identity
	// cannot collide with a future signup.
	CustomerIDs []string
}

// ShouldPurgeCustomers reports whether the found billing customers are dead
// state that should be deleted once the canonical record is persisted.
func (o Outcome) ShouldPurgeCustomers() bool {
	return len(o.CustomerIDs) > 0 && o.Record.Plan == models.PlanFree
}

// Resolve computes the canonical subscription record for one identity. It is
// a pure function of the billing signals and the stored snapshots; running it
// again with unchanged inputs yields the same outcome.
//
// Priority order: a live (active or trialing) provider subscription wins,
// then a canceled one whose paid period still runs (grace), then cleanup of
// stray provider state, then an admin grant if the provider is completely
// silent, then nothing. The provider is authoritative whenever it has any
// subscription at all, even an expired one.
func Resolve(now time.Time, customers []CustomerSignals, snaps Snapshots) Outcome {
	customerIDs := make([]string, 0, len(customers))
	total := 0
	for _, c := range customers {
		customerIDs = append(customerIDs, c.CustomerID)
		total += len(c.Subscriptions)
	}

	// Rule 1: first live subscription in lookup order.
	for _, c := range customers {
		for _, sub := range c.Subscriptions {
			if !sub.IsEntitling() {
				continue
			}
			return Outcome{
				Record: models.SubscriptionRecord{
					Status:                models.SubscriptionStatusActive,
					Plan:                  models.PlanPremium,
					BillingSubscriptionID: sub.ID,
					StartDate:             sub.CurrentPeriodStart,
					EndDate:               sub.CurrentPeriodEnd,
					RenewalDate:           sub.CurrentPeriodEnd,
					CancelAtPeriodEnd:     sub.CancelAtPeriodEnd,
					LastUpdated:           now,
				},
				CustomerIDs: customerIDs,
			}
		}
	}

	// Rule 2: canceled but the paid period still runs, grace entitlement.
	for _, c := range customers {
		for _, sub := range c.Subscriptions {
			if !sub.IsCanceled() || sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.After(now) {
				continue
			}
			return Outcome{
				Record: models.SubscriptionRecord{
					Status:                models.SubscriptionStatusCanceled,
					Plan:                  models.PlanPremium,
					BillingSubscriptionID: sub.ID,
					StartDate:             sub.CurrentPeriodStart,
					EndDate:               sub.CurrentPeriodEnd,
					RenewalDate:           sub.CurrentPeriodEnd,
					CancelAtPeriodEnd:     true,
					CanceledAt:            sub.CanceledAt,
					LastUpdated:           now,
				},
				CustomerIDs: customerIDs,
			}
		}
	}

	// Rule 3: subscriptions exist but none qualifies. Every non-canceled one
	// is stray state to cancel; the record falls through to rule 5.
	var cancelIDs []string
	if total > 0 {
		for _, c := range customers {
			for _, sub := range c.Subscriptions {
				if !sub.IsCanceled() {
					cancelIDs = append(cancelIDs, sub.ID)
				}
			}
		}
	}

	// Rule 4: an admin grant survives only when the provider reported no
	// subscription at all. Re-stamp a fresh one-year entitlement.
	if total == 0 {
		if grant, ok := adminGrant(snaps); ok {
			end := now.AddDate(1, 0, 0)
			start := grant.StartDate
			if start == nil {
				start = &now
			}
			lastManual := now
			return Outcome{
				Record: models.SubscriptionRecord{
					Status:                models.SubscriptionStatusActive,
					Plan:                  models.PlanPremium,
					BillingSubscriptionID: grant.BillingSubscriptionID,
					StartDate:             start,
					EndDate:               &end,
					RenewalDate:           &end,
					ManuallyUpdated:       true,
					LastManualUpdate:      &lastManual,
					LastUpdated:           now,
				},
				CustomerIDs: customerIDs,
			}
		}
	}

	// Rule 5: no entitlement.
	rec := models.EmptySubscriptionRecord()
	rec.LastUpdated = now
	return Outcome{
		Record:                rec,
		CancelSubscriptionIDs: cancelIDs,
		CustomerIDs:           customerIDs,
	}
}

func adminGrant(snaps Snapshots) (models.SubscriptionRecord, bool) {
	for _, rec := range []models.SubscriptionRecord{snaps.Primary, snaps.Mirror} {
		if rec.IsAdminGrant() && rec.Status == models.SubscriptionStatusActive {
			return rec, true
		}
	}
	return models.SubscriptionRecord{}, false
}

// Inconsistent reports whether the two snapshots need repair. It only drives
// the fixed-vs-consistent classification of a batch run; the policy is re-run
// either way.
func Inconsistent(now time.Time, snaps Snapshots) bool {
	p, m := snaps.Primary, snaps.Mirror
	if p.Plan != m.Plan || p.Status != m.Status || p.BillingSubscriptionID != m.BillingSubscriptionID {
		return true
	}
	for _, rec := range []models.SubscriptionRecord{p, m} {
		// Premium without a live status or a still-running paid period.
		if rec.Plan == models.PlanPremium &&
			rec.Status != models.SubscriptionStatusActive &&
			!rec.HasValidEndDate(now) {
			return true
		}
		// Free despite a still-running paid period.
		if rec.Plan == models.PlanFree && rec.HasValidEndDate(now) {
			return true
		}
	}
	return false
}
