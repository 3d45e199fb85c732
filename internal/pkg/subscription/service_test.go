package subscription

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/fleamarkt/fleamarkt/app/models"
	"github.com/fleamarkt/fleamarkt/internal/pkg/billing"
)

// fakeProvider is an in-memory billing provider recording destructive calls.
type fakeProvider struct {
	customers map[string][]string               // email -> customer ids
	subs      map[string][]billing.Subscription // customer id -> subs

	findErr    error
	findErrFor string // fail lookups for this email only
	listErr    error

	canceled []string
	deleted  []string

	cancelErr error
	deleteErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		customers: make(map[string][]string),
		subs:      make(map[string][]billing.Subscription),
	}
}

func (p *fakeProvider) FindCustomersByEmail(_ context.Context, email string) ([]string, error) {
	if p.findErr != nil {
		return nil, p.findErr
	}
	if p.findErrFor != "" && p.findErrFor == email {
		return nil, errors.New("provider unreachable")
	}
	return p.customers[email], nil
}

func (p *fakeProvider) ListSubscriptions(_ context.Context, customerID string) ([]billing.Subscription, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.subs[customerID], nil
}

func (p *fakeProvider) CancelSubscription(_ context.Context, subscriptionID string) error {
	if p.cancelErr != nil {
		return p.cancelErr
	}
	p.canceled = append(p.canceled, subscriptionID)
	return nil
}

func (p *fakeProvider) DeleteCustomer(_ context.Context, customerID string) error {
	if p.deleteErr != nil {
		return p.deleteErr
	}
	p.deleted = append(p.deleted, customerID)
	return nil
}

// memStore is an in-memory Store with optional failure injection.
type memStore struct {
	name    string
	records map[uint]models.SubscriptionRecord
	getErr  error
	putErr  error
}

func newMemStore(name string) *memStore {
	return &memStore{name: name, records: make(map[uint]models.SubscriptionRecord)}
}

func (s *memStore) Name() string { return s.name }

func (s *memStore) Get(_ context.Context, userID uint) (models.SubscriptionRecord, bool, error) {
	if s.getErr != nil {
		return models.EmptySubscriptionRecord(), false, s.getErr
	}
	rec, ok := s.records[userID]
	if !ok {
		return models.EmptySubscriptionRecord(), false, nil
	}
	return rec, true, nil
}

func (s *memStore) Put(_ context.Context, userID uint, rec models.SubscriptionRecord) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.records[userID] = rec
	return nil
}

func (s *memStore) ListReconcilable(_ context.Context, limit int) ([]uint, error) {
	var ids []uint
	for id, rec := range s.records {
		if rec.Status != models.SubscriptionStatusNone {
			ids = append(ids, id)
		}
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// fakeUsers maps ids to users.
type fakeUsers struct {
	users map[uint]*models.User
}

func newFakeUsers(ids ...uint) *fakeUsers {
	f := &fakeUsers{users: make(map[uint]*models.User)}
	for _, id := range ids {
		f.users[id] = &models.User{ID: id, Email: fmt.Sprintf("user%d@example.com", id)}
	}
	return f
}

func (f *fakeUsers) GetByID(id uint) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

type serviceFixture struct {
	provider *fakeProvider
	users    *fakeUsers
	primary  *memStore
	mirror   *memStore
	service  *Service
	now      time.Time
}

func newServiceFixture(userIDs ...uint) *serviceFixture {
	f := &serviceFixture{
		provider: newFakeProvider(),
		users:    newFakeUsers(userIDs...),
		primary:  newMemStore("db"),
		mirror:   newMemStore("cache"),
		now:      time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
	f.service = NewService(f.provider, f.users, f.primary, f.mirror)
	f.service.now = func() time.Time { return f.now }
	return f
}

func (f *serviceFixture) email(userID uint) string {
	return fmt.Sprintf("user%d@example.com", userID)
}

func TestReconcileUserScenarioA(t *testing.T) {
	// Store X premium/active, store Y free/none, billing has one active
	// subscription: both stores converge onto the billing truth.
	f := newServiceFixture(1)
	end := f.now.AddDate(0, 0, 30)
	f.provider.customers[f.email(1)] = []string{"cus_1"}
	f.provider.subs["cus_1"] = []billing.Subscription{{
		ID:               "sub_123",
		Status:           billing.StatusActive,
		CurrentPeriodEnd: &end,
	}}
	f.primary.records[1] = models.SubscriptionRecord{Status: models.SubscriptionStatusActive, Plan: models.PlanPremium, BillingSubscriptionID: "sub_old"}
	// mirror intentionally empty

	rec, err := f.service.ReconcileUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != models.SubscriptionStatusActive || rec.Plan != models.PlanPremium || rec.BillingSubscriptionID != "sub_123" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.EndDate == nil || !rec.EndDate.Equal(end) {
		t.Fatalf("unexpected end date: %v", rec.EndDate)
	}

	p := f.primary.records[1]
	m := f.mirror.records[1]
	if !p.Equal(m) || !p.Equal(rec) {
		t.Fatalf("stores did not converge:\nprimary: %+v\nmirror:  %+v", p, m)
	}
	if len(f.provider.deleted) != 0 {
		t.Fatalf("premium outcome must not purge customers, deleted %v", f.provider.deleted)
	}
}

func TestReconcileUserStaleCustomerPurgedAfterWrite(t *testing.T) {
	// Scenario C: expired canceled subscription, record goes free and the
	// dead billing customer is deleted.
	f := newServiceFixture(2)
	end := f.now.Add(-24 * time.Hour)
	f.provider.customers[f.email(2)] = []string{"cus_stale"}
	f.provider.subs["cus_stale"] = []billing.Subscription{{
		ID:               "sub_dead",
		Status:           billing.StatusCanceled,
		CurrentPeriodEnd: &end,
	}}

	rec, err := f.service.ReconcileUser(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != models.SubscriptionStatusNone || rec.Plan != models.PlanFree {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(f.provider.deleted) != 1 || f.provider.deleted[0] != "cus_stale" {
		t.Fatalf("expected cus_stale purge, got %v", f.provider.deleted)
	}
}

func TestReconcileUserNoCleanupWhenMirrorWriteFails(t *testing.T) {
	f := newServiceFixture(3)
	end := f.now.Add(-24 * time.Hour)
	f.provider.customers[f.email(3)] = []string{"cus_stale"}
	f.provider.subs["cus_stale"] = []billing.Subscription{{
		ID:               "sub_dead",
		Status:           billing.StatusCanceled,
		CurrentPeriodEnd: &end,
	}}
	f.mirror.putErr = errors.New("cache down")

	_, err := f.service.ReconcileUser(context.Background(), 3)
	if CodeOf(err) != CodePersistenceMirror {
		t.Fatalf("expected persistence_mirror error, got %v", err)
	}
	if len(f.provider.deleted) != 0 || len(f.provider.canceled) != 0 {
		t.Fatal("destructive cleanup must be gated on a complete dual write")
	}
	// Primary already holds the record: the torn write is visible.
	if got := f.primary.records[3]; got.Plan != models.PlanFree {
		t.Fatalf("expected primary write to have happened, got %+v", got)
	}
}

func TestReconcileUserPrimaryWriteFailure(t *testing.T) {
	f := newServiceFixture(4)
	f.provider.customers[f.email(4)] = []string{"cus_1"}
	f.provider.subs["cus_1"] = []billing.Subscription{{ID: "sub_1", Status: billing.StatusActive}}
	f.primary.putErr = errors.New("db down")

	_, err := f.service.ReconcileUser(context.Background(), 4)
	if CodeOf(err) != CodePersistence {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if len(f.mirror.records) != 0 {
		t.Fatal("mirror must not be written when the primary write failed")
	}
}

func TestReconcileUserProviderFailureIsNotADowngrade(t *testing.T) {
	f := newServiceFixture(5)
	f.primary.records[5] = models.SubscriptionRecord{Status: models.SubscriptionStatusActive, Plan: models.PlanPremium, BillingSubscriptionID: "sub_1"}
	f.provider.findErr = errors.New("provider unreachable")

	_, err := f.service.ReconcileUser(context.Background(), 5)
	if CodeOf(err) != CodeProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
	// The stored entitlement must be untouched.
	if got := f.primary.records[5]; got.Plan != models.PlanPremium {
		t.Fatalf("provider outage must not downgrade the user, got %+v", got)
	}
}

func TestReconcileUserNotFoundForNoData(t *testing.T) {
	f := newServiceFixture(6)

	_, err := f.service.ReconcileUser(context.Background(), 6)
	if !IsNotFound(err) {
		t.Fatalf("expected not_found for the no-data case, got %v", err)
	}
	if len(f.primary.records) != 0 {
		t.Fatal("no record should be created for the no-data case")
	}
}

func TestReconcileUserUnknownUser(t *testing.T) {
	f := newServiceFixture()
	_, err := f.service.ReconcileUser(context.Background(), 99)
	if !IsNotFound(err) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestReconcileUserAdminGrantRestamped(t *testing.T) {
	// Scenario B end to end.
	f := newServiceFixture(7)
	f.primary.records[7] = models.SubscriptionRecord{
		Status:                models.SubscriptionStatusActive,
		Plan:                  models.PlanPremium,
		BillingSubscriptionID: "admin_abc",
	}

	rec, err := f.service.ReconcileUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.BillingSubscriptionID != "admin_abc" || !rec.ManuallyUpdated {
		t.Fatalf("expected re-stamped admin grant, got %+v", rec)
	}
	wantEnd := f.now.AddDate(1, 0, 0)
	if rec.EndDate == nil || !rec.EndDate.Equal(wantEnd) {
		t.Fatalf("expected end %v, got %v", wantEnd, rec.EndDate)
	}
	if !f.mirror.records[7].Equal(rec) {
		t.Fatal("mirror did not receive the re-stamped grant")
	}
}

func TestReconcileUserIdempotent(t *testing.T) {
	f := newServiceFixture(8)
	end := f.now.AddDate(0, 0, 30)
	f.provider.customers[f.email(8)] = []string{"cus_1"}
	f.provider.subs["cus_1"] = []billing.Subscription{{
		ID:               "sub_123",
		Status:           billing.StatusActive,
		CurrentPeriodEnd: &end,
	}}

	first, err := f.service.ReconcileUser(context.Background(), 8)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := f.service.ReconcileUser(context.Background(), 8)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !first.Equal(second) || !first.LastUpdated.Equal(second.LastUpdated) {
		t.Fatalf("expected identical canonical output:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestReconcileUserCancelFailureIsLoggedNotFatal(t *testing.T) {
	f := newServiceFixture(9)
	f.provider.customers[f.email(9)] = []string{"cus_1"}
	f.provider.subs["cus_1"] = []billing.Subscription{{ID: "sub_stray", Status: billing.StatusPastDue}}
	f.provider.cancelErr = errors.New("cancel rejected")

	rec, err := f.service.ReconcileUser(context.Background(), 9)
	if err != nil {
		t.Fatalf("cleanup failure must not fail reconciliation: %v", err)
	}
	if rec.Plan != models.PlanFree {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
