package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/fleamarkt/fleamarkt/app/models"
	"github.com/fleamarkt/fleamarkt/internal/pkg/billing"
)

// UserSource resolves a user id to its account, most importantly the email
// the billing provider keys its customers on.
type UserSource interface {
	GetByID(id uint) (*models.User, error)
}

// Service runs the single-identity reconciliation pipeline: read billing
// signals and stored snapshots, resolve the canonical record, write it to
// both stores, then clean up dead billing state.
type Service struct {
	provider billing.ProviderClient
	users    UserSource
	primary  Store
	mirror   Store
	writer   *DualWriter

	// now is injectable for tests.
	now func() time.Time
}

func NewService(provider billing.ProviderClient, users UserSource, primary, mirror Store) *Service {
	return &Service{
		provider: provider,
		users:    users,
		primary:  primary,
		mirror:   mirror,
		writer:   NewDualWriter(primary, mirror),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Snapshots reads the current record from both stores. Missing records read
// as the empty record.
func (s *Service) Snapshots(ctx context.Context, userID uint) (Snapshots, error) {
	var snaps Snapshots
	var err error
	if snaps.Primary, _, err = s.primary.Get(ctx, userID); err != nil {
		return snaps, newError(CodePersistence, "primary store read failed", err)
	}
	if snaps.Mirror, _, err = s.mirror.Get(ctx, userID); err != nil {
		return snaps, newError(CodePersistence, "mirror store read failed", err)
	}
	return snaps, nil
}

// ReconcileUser runs the full pipeline for one identity and returns the
// canonical record both stores now hold.
//
// A billing provider failure aborts with a provider error; it is never
// folded into "no subscription", because that would silently downgrade a
// paying user. Destructive cleanup (cancel stray subscriptions, purge dead
// customers) runs only after both internal writes succeeded, and its own
// failures are logged but not returned: the next run converges.
func (s *Service) ReconcileUser(ctx context.Context, userID uint) (models.SubscriptionRecord, error) {
	if userID == 0 {
		return models.SubscriptionRecord{}, newError(CodeValidation, "user id is required", nil)
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SubscriptionRecord{}, newError(CodeNotFound, "user not found", err)
		}
		return models.SubscriptionRecord{}, newError(CodePersistence, "user lookup failed", err)
	}

	customers, err := s.provider.FindCustomersByEmail(ctx, user.Email)
	if err != nil {
		return models.SubscriptionRecord{}, newError(CodeProvider, "billing customer lookup failed", err)
	}

	signals := make([]CustomerSignals, 0, len(customers))
	for _, customerID := range customers {
		subs, err := s.provider.ListSubscriptions(ctx, customerID)
		if err != nil {
			return models.SubscriptionRecord{}, newError(CodeProvider, "billing subscription listing failed", err)
		}
		signals = append(signals, CustomerSignals{CustomerID: customerID, Subscriptions: subs})
	}

	snaps, err := s.Snapshots(ctx, userID)
	if err != nil {
		return models.SubscriptionRecord{}, err
	}

	if len(customers) == 0 && snaps.BothEmpty() {
		return models.SubscriptionRecord{}, newError(CodeNotFound, "no subscription data in any store and no billing signal", nil)
	}

	outcome := Resolve(s.now(), signals, snaps)

	res, err := s.writer.Write(ctx, userID, outcome.Record)
	if err != nil {
		return models.SubscriptionRecord{}, err
	}
	if res.Complete() {
		s.cleanupBillingState(ctx, userID, outcome)
	}

	return outcome.Record, nil
}

func (s *Service) cleanupBillingState(ctx context.Context, userID uint, outcome Outcome) {
	for _, subID := range outcome.CancelSubscriptionIDs {
		if err := s.provider.CancelSubscription(ctx, subID); err != nil {
			log.Warnf("subscription cleanup: cancel of stray subscription %s for user %d failed: %v", subID, userID, err)
		}
	}
	if !outcome.ShouldPurgeCustomers() {
		return
	}
	for _, customerID := range outcome.CustomerIDs {
		if err := s.provider.DeleteCustomer(ctx, customerID); err != nil {
			log.Warnf("subscription cleanup: purge of billing customer %s for user %d failed: %v", customerID, userID, err)
		}
	}
}
