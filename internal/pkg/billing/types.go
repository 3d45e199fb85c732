package billing

import (
	"context"
	"strings"
	"time"
)

const (
	StatusActive     = "active"
	StatusTrialing   = "trialing"
	StatusPastDue    = "past_due"
	StatusCanceled   = "canceled"
	StatusIncomplete = "incomplete"
	StatusUnpaid     = "unpaid"
	StatusPaused     = "paused"
)

// Lookup limits. One user should never legitimately own more than a handful
// of billing identities; anything beyond these is stale state.
const (
	CustomerLookupLimit     = 5
	SubscriptionLookupLimit = 10
)

// Subscription is the provider-agnostic shape of one external subscription
// as read from the billing provider.
type Subscription struct {
	ID                 string
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
}

// IsEntitling reports whether the subscription grants premium on its own.
func (s Subscription) IsEntitling() bool {
	switch strings.ToLower(strings.TrimSpace(s.Status)) {
	case StatusActive, StatusTrialing:
		return true
	default:
		return false
	}
}

// IsCanceled reports whether the subscription was canceled at the provider.
func (s Subscription) IsCanceled() bool {
	return strings.ToLower(strings.TrimSpace(s.Status)) == StatusCanceled
}

// ProviderClient is the I/O wrapper around the billing provider. It carries
// no reconciliation policy; callers decide what to do with the signals.
type ProviderClient interface {
	// FindCustomersByEmail returns the ids of billing customers registered
	// under the given email, in provider listing order.
	FindCustomersByEmail(ctx context.Context, email string) ([]string, error)
	// ListSubscriptions returns all subscriptions of one customer in
	// provider listing order, regardless of status.
	ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	// CancelSubscription cancels a subscription immediately.
	CancelSubscription(ctx context.Context, subscriptionID string) error
	// DeleteCustomer permanently deletes a billing customer.
	DeleteCustomer(ctx context.Context, customerID string) error
}
