package subscription

import (
	"testing"
	"time"

	"github.com/fleamarkt/fleamarkt/app/models"
	"github.com/fleamarkt/fleamarkt/internal/pkg/billing"
)

var policyNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }

func activeSignal(customerID, subID string, end time.Time) CustomerSignals {
	return CustomerSignals{
		CustomerID: customerID,
		Subscriptions: []billing.Subscription{{
			ID:                 subID,
			Status:             billing.StatusActive,
			CurrentPeriodStart: timePtr(end.AddDate(0, -1, 0)),
			CurrentPeriodEnd:   timePtr(end),
		}},
	}
}

func TestResolveActiveSubscriptionWinsRegardlessOfSnapshots(t *testing.T) {
	end := policyNow.AddDate(0, 0, 30)
	snapshotVariants := []Snapshots{
		{}, // both empty
		{Primary: models.SubscriptionRecord{Status: models.SubscriptionStatusActive, Plan: models.PlanPremium}},
		{Mirror: models.SubscriptionRecord{Status: models.SubscriptionStatusNone, Plan: models.PlanFree}},
		{Primary: models.SubscriptionRecord{Status: models.SubscriptionStatusActive, Plan: models.PlanPremium, BillingSubscriptionID: "admin_x"}},
	}

	for _, snaps := range snapshotVariants {
		out := Resolve(policyNow, []CustomerSignals{activeSignal("cus_1", "sub_123", end)}, snaps)
		if out.Record.Status != models.SubscriptionStatusActive || out.Record.Plan != models.PlanPremium {
			t.Fatalf("expected active/premium, got %s/%s", out.Record.Status, out.Record.Plan)
		}
		if out.Record.BillingSubscriptionID != "sub_123" {
			t.Fatalf("expected sub_123, got %q", out.Record.BillingSubscriptionID)
		}
		if out.Record.EndDate == nil || !out.Record.EndDate.Equal(end) {
			t.Fatalf("expected end date %v, got %v", end, out.Record.EndDate)
		}
		if out.Record.RenewalDate == nil || !out.Record.RenewalDate.Equal(end) {
			t.Fatalf("expected renewal date %v, got %v", end, out.Record.RenewalDate)
		}
		if out.ShouldPurgeCustomers() {
			t.Fatal("premium outcome must not purge customers")
		}
	}
}

func TestResolveTrialingCountsAsActive(t *testing.T) {
	end := policyNow.AddDate(0, 0, 14)
	signals := []CustomerSignals{{
		CustomerID: "cus_1",
		Subscriptions: []billing.Subscription{{
			ID:               "sub_trial",
			Status:           billing.StatusTrialing,
			CurrentPeriodEnd: timePtr(end),
		}},
	}}

	out := Resolve(policyNow, signals, Snapshots{})
	if out.Record.Status != models.SubscriptionStatusActive || out.Record.Plan != models.PlanPremium {
		t.Fatalf("expected trialing to resolve active/premium, got %s/%s", out.Record.Status, out.Record.Plan)
	}
}

func TestResolveFirstMatchInListingOrderWins(t *testing.T) {
	end := policyNow.AddDate(0, 1, 0)
	signals := []CustomerSignals{
		{CustomerID: "cus_old", Subscriptions: []billing.Subscription{{ID: "sub_canceled", Status: billing.StatusCanceled, CurrentPeriodEnd: timePtr(end)}}},
		activeSignal("cus_new", "sub_live", end),
	}

	out := Resolve(policyNow, signals, Snapshots{})
	if out.Record.BillingSubscriptionID != "sub_live" {
		t.Fatalf("expected the live subscription to win, got %q", out.Record.BillingSubscriptionID)
	}
	if out.Record.Status != models.SubscriptionStatusActive {
		t.Fatalf("expected active, got %s", out.Record.Status)
	}
}

func TestResolveGracePeriod(t *testing.T) {
	end := policyNow.Add(24 * time.Hour)
	canceledAt := policyNow.Add(-48 * time.Hour)
	signals := []CustomerSignals{{
		CustomerID: "cus_1",
		Subscriptions: []billing.Subscription{{
			ID:               "sub_g",
			Status:           billing.StatusCanceled,
			CurrentPeriodEnd: timePtr(end),
			CanceledAt:       timePtr(canceledAt),
		}},
	}}

	out := Resolve(policyNow, signals, Snapshots{})
	if out.Record.Status != models.SubscriptionStatusCanceled || out.Record.Plan != models.PlanPremium {
		t.Fatalf("expected canceled/premium grace, got %s/%s", out.Record.Status, out.Record.Plan)
	}
	if !out.Record.CancelAtPeriodEnd {
		t.Fatal("expected cancel_at_period_end to be set during grace")
	}
	if out.Record.CanceledAt == nil || !out.Record.CanceledAt.Equal(canceledAt) {
		t.Fatalf("expected canceled_at %v, got %v", canceledAt, out.Record.CanceledAt)
	}
}

func TestResolveGraceMonotonicity(t *testing.T) {
	end := policyNow.Add(time.Hour)
	signals := []CustomerSignals{{
		CustomerID: "cus_1",
		Subscriptions: []billing.Subscription{{
			ID:               "sub_g",
			Status:           billing.StatusCanceled,
			CurrentPeriodEnd: timePtr(end),
		}},
	}}

	before := Resolve(end.Add(-time.Minute), signals, Snapshots{})
	if before.Record.Plan != models.PlanPremium {
		t.Fatalf("before period end: expected premium, got %s", before.Record.Plan)
	}

	after := Resolve(end, signals, Snapshots{})
	if after.Record.Plan != models.PlanFree || after.Record.Status != models.SubscriptionStatusNone {
		t.Fatalf("at period end: expected none/free, got %s/%s", after.Record.Status, after.Record.Plan)
	}
	if !after.ShouldPurgeCustomers() {
		t.Fatal("expected stale customer to be purged once grace lapsed")
	}
}

func TestResolveExpiredCanceledSubscription(t *testing.T) {
	// Scenario C: the only subscription ended yesterday.
	end := policyNow.Add(-24 * time.Hour)
	signals := []CustomerSignals{{
		CustomerID: "cus_stale",
		Subscriptions: []billing.Subscription{{
			ID:               "sub_dead",
			Status:           billing.StatusCanceled,
			CurrentPeriodEnd: timePtr(end),
		}},
	}}

	out := Resolve(policyNow, signals, Snapshots{})
	if out.Record.Status != models.SubscriptionStatusNone || out.Record.Plan != models.PlanFree {
		t.Fatalf("expected none/free, got %s/%s", out.Record.Status, out.Record.Plan)
	}
	if out.Record.BillingSubscriptionID != "" {
		t.Fatalf("expected empty billing id, got %q", out.Record.BillingSubscriptionID)
	}
	if !out.ShouldPurgeCustomers() {
		t.Fatal("expected stale customer purge")
	}
	if len(out.CancelSubscriptionIDs) != 0 {
		t.Fatalf("already canceled subscriptions must not be canceled again, got %v", out.CancelSubscriptionIDs)
	}
}

func TestResolveDefensiveCancelOfStraySubscriptions(t *testing.T) {
	signals := []CustomerSignals{
		{CustomerID: "cus_1", Subscriptions: []billing.Subscription{
			{ID: "sub_past_due", Status: billing.StatusPastDue},
			{ID: "sub_old", Status: billing.StatusCanceled, CurrentPeriodEnd: timePtr(policyNow.Add(-time.Hour))},
		}},
		{CustomerID: "cus_2", Subscriptions: []billing.Subscription{
			{ID: "sub_unpaid", Status: billing.StatusUnpaid},
		}},
	}

	out := Resolve(policyNow, signals, Snapshots{})
	if out.Record.Plan != models.PlanFree {
		t.Fatalf("expected free, got %s", out.Record.Plan)
	}
	if len(out.CancelSubscriptionIDs) != 2 {
		t.Fatalf("expected 2 defensive cancels, got %v", out.CancelSubscriptionIDs)
	}
	if out.CancelSubscriptionIDs[0] != "sub_past_due" || out.CancelSubscriptionIDs[1] != "sub_unpaid" {
		t.Fatalf("unexpected cancel list: %v", out.CancelSubscriptionIDs)
	}
}

func TestResolveAdminGrantPreservedWithoutBillingSignal(t *testing.T) {
	// Scenario B: admin grant in primary store, nothing in the mirror.
	start := policyNow.AddDate(0, -6, 0)
	snaps := Snapshots{
		Primary: models.SubscriptionRecord{
			Status:                models.SubscriptionStatusActive,
			Plan:                  models.PlanPremium,
			BillingSubscriptionID: "admin_abc",
			StartDate:             timePtr(start),
		},
	}

	out := Resolve(policyNow, nil, snaps)
	if out.Record.Status != models.SubscriptionStatusActive || out.Record.Plan != models.PlanPremium {
		t.Fatalf("expected preserved admin grant, got %s/%s", out.Record.Status, out.Record.Plan)
	}
	if out.Record.BillingSubscriptionID != "admin_abc" {
		t.Fatalf("expected admin id preserved, got %q", out.Record.BillingSubscriptionID)
	}
	wantEnd := policyNow.AddDate(1, 0, 0)
	if out.Record.EndDate == nil || !out.Record.EndDate.Equal(wantEnd) {
		t.Fatalf("expected re-stamped one-year end %v, got %v", wantEnd, out.Record.EndDate)
	}
	if !out.Record.ManuallyUpdated || out.Record.LastManualUpdate == nil {
		t.Fatal("expected manual provenance on re-stamped grant")
	}
	if out.Record.StartDate == nil || !out.Record.StartDate.Equal(start) {
		t.Fatalf("expected original start date kept, got %v", out.Record.StartDate)
	}
}

func TestResolveAdminGrantInMirrorOnly(t *testing.T) {
	snaps := Snapshots{
		Mirror: models.SubscriptionRecord{
			Status:                models.SubscriptionStatusActive,
			BillingSubscriptionID: "admin_xyz",
		},
	}
	out := Resolve(policyNow, nil, snaps)
	if out.Record.BillingSubscriptionID != "admin_xyz" {
		t.Fatalf("expected mirror-side admin grant honored, got %q", out.Record.BillingSubscriptionID)
	}
}

func TestResolveBillingSignalSupersedesAdminGrant(t *testing.T) {
	snaps := Snapshots{
		Primary: models.SubscriptionRecord{
			Status:                models.SubscriptionStatusActive,
			Plan:                  models.PlanPremium,
			BillingSubscriptionID: "admin_abc",
		},
	}
	// Even an expired subscription beats the admin grant.
	signals := []CustomerSignals{{
		CustomerID: "cus_1",
		Subscriptions: []billing.Subscription{{
			ID:               "sub_exp",
			Status:           billing.StatusCanceled,
			CurrentPeriodEnd: timePtr(policyNow.Add(-time.Hour)),
		}},
	}}

	out := Resolve(policyNow, signals, snaps)
	if out.Record.Plan != models.PlanFree || out.Record.Status != models.SubscriptionStatusNone {
		t.Fatalf("expected billing signal to supersede admin grant, got %s/%s", out.Record.Status, out.Record.Plan)
	}
}

func TestResolveInactiveAdminGrantNotPreserved(t *testing.T) {
	snaps := Snapshots{
		Primary: models.SubscriptionRecord{
			Status:                models.SubscriptionStatusCanceled,
			BillingSubscriptionID: "admin_abc",
		},
	}
	out := Resolve(policyNow, nil, snaps)
	if out.Record.Plan != models.PlanFree {
		t.Fatalf("expected non-active admin grant to lapse, got %s", out.Record.Plan)
	}
}

func TestResolveIdempotence(t *testing.T) {
	end := policyNow.AddDate(0, 0, 30)
	signals := []CustomerSignals{activeSignal("cus_1", "sub_123", end)}
	snaps := Snapshots{}

	first := Resolve(policyNow, signals, snaps)
	second := Resolve(policyNow, []CustomerSignals{activeSignal("cus_1", "sub_123", end)}, Snapshots{Primary: first.Record, Mirror: first.Record})

	if !first.Record.Equal(second.Record) {
		t.Fatalf("expected identical records:\nfirst:  %+v\nsecond: %+v", first.Record, second.Record)
	}
}

func TestResolveCustomersWithoutSubscriptionsArePurged(t *testing.T) {
	signals := []CustomerSignals{{CustomerID: "cus_empty"}}
	out := Resolve(policyNow, signals, Snapshots{})
	if out.Record.Plan != models.PlanFree {
		t.Fatalf("expected free, got %s", out.Record.Plan)
	}
	if !out.ShouldPurgeCustomers() || len(out.CustomerIDs) != 1 {
		t.Fatalf("expected empty customer to be purged, got %v", out.CustomerIDs)
	}
}

func TestInconsistent(t *testing.T) {
	future := policyNow.Add(48 * time.Hour)
	premiumActive := models.SubscriptionRecord{
		Status: models.SubscriptionStatusActive, Plan: models.PlanPremium,
		BillingSubscriptionID: "sub_1", EndDate: timePtr(future),
	}
	empty := models.EmptySubscriptionRecord()

	tests := []struct {
		name  string
		snaps Snapshots
		want  bool
	}{
		{"both empty", Snapshots{Primary: empty, Mirror: empty}, false},
		{"both premium active", Snapshots{Primary: premiumActive, Mirror: premiumActive}, false},
		{"plan mismatch", Snapshots{Primary: premiumActive, Mirror: empty}, true},
		{
			"billing id mismatch",
			Snapshots{Primary: premiumActive, Mirror: models.SubscriptionRecord{
				Status: models.SubscriptionStatusActive, Plan: models.PlanPremium,
				BillingSubscriptionID: "sub_2", EndDate: timePtr(future),
			}},
			true,
		},
		{
			"premium without backing",
			Snapshots{
				Primary: models.SubscriptionRecord{Status: models.SubscriptionStatusCanceled, Plan: models.PlanPremium},
				Mirror:  models.SubscriptionRecord{Status: models.SubscriptionStatusCanceled, Plan: models.PlanPremium},
			},
			true,
		},
		{
			"grace period is consistent",
			Snapshots{
				Primary: models.SubscriptionRecord{Status: models.SubscriptionStatusCanceled, Plan: models.PlanPremium, EndDate: timePtr(future)},
				Mirror:  models.SubscriptionRecord{Status: models.SubscriptionStatusCanceled, Plan: models.PlanPremium, EndDate: timePtr(future)},
			},
			false,
		},
		{
			"free with future end date",
			Snapshots{
				Primary: models.SubscriptionRecord{Status: models.SubscriptionStatusNone, Plan: models.PlanFree, EndDate: timePtr(future)},
				Mirror:  models.SubscriptionRecord{Status: models.SubscriptionStatusNone, Plan: models.PlanFree, EndDate: timePtr(future)},
			},
			true,
		},
	}

	for _, tt := range tests {
		if got := Inconsistent(policyNow, tt.snaps); got != tt.want {
			t.Fatalf("%s: Inconsistent() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
