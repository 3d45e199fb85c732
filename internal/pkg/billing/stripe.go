package billing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/fleamarkt/fleamarkt/internal/pkg/env"
)

const (
	defaultMaxAttempts = 3
	baseRetryDelay     = 250 * time.Millisecond
)

// StripeClient implements ProviderClient against the Stripe API with bounded
// retries. Reads are retried on transient failures; a failure that survives
// the retries is returned to the caller and must be treated as "billing state
// unknown", never as "no subscription".
type StripeClient struct {
	api         *client.API
	maxAttempts int
}

// NewStripeClientFromEnv builds a Stripe client from STRIPE_SECRET_KEY.
func NewStripeClientFromEnv() *StripeClient {
	api := &client.API{}
	api.Init(strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")), nil)
	return &StripeClient{
		api:         api,
		maxAttempts: defaultMaxAttempts,
	}
}

// NewStripeClient builds a Stripe client from an explicit API handle.
func NewStripeClient(api *client.API) *StripeClient {
	return &StripeClient{api: api, maxAttempts: defaultMaxAttempts}
}

func (c *StripeClient) FindCustomersByEmail(ctx context.Context, email string) ([]string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("email is required")
	}

	var ids []string
	err := c.withRetry(ctx, func() error {
		params := &stripe.CustomerListParams{Email: stripe.String(email)}
		params.Context = ctx
		params.Limit = stripe.Int64(CustomerLookupLimit)

		ids = ids[:0]
		it := c.api.Customers.List(params)
		for it.Next() {
			ids = append(ids, it.Customer().ID)
			if len(ids) >= CustomerLookupLimit {
				break
			}
		}
		return it.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("stripe customer lookup for %s failed: %w", email, err)
	}
	return ids, nil
}

func (c *StripeClient) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, errors.New("customer id is required")
	}

	var subs []Subscription
	err := c.withRetry(ctx, func() error {
		params := &stripe.SubscriptionListParams{
			Customer: stripe.String(customerID),
			Status:   stripe.String("all"),
		}
		params.Context = ctx
		params.Limit = stripe.Int64(SubscriptionLookupLimit)

		subs = subs[:0]
		it := c.api.Subscriptions.List(params)
		for it.Next() {
			subs = append(subs, fromStripeSubscription(it.Subscription()))
			if len(subs) >= SubscriptionLookupLimit {
				break
			}
		}
		return it.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("stripe subscription listing for %s failed: %w", customerID, err)
	}
	return subs, nil
}

func (c *StripeClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return errors.New("subscription id is required")
	}

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := c.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return fmt.Errorf("stripe subscription cancel for %s failed: %w", subscriptionID, err)
	}
	return nil
}

func (c *StripeClient) DeleteCustomer(ctx context.Context, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return errors.New("customer id is required")
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx
	if _, err := c.api.Customers.Del(customerID, params); err != nil {
		return fmt.Errorf("stripe customer delete for %s failed: %w", customerID, err)
	}
	return nil
}

// withRetry runs fn up to maxAttempts times with doubling, jittered delays.
// Only transient failures are retried; cancellation ends the loop at once.
func (c *StripeClient) withRetry(ctx context.Context, fn func() error) error {
	attempts := c.maxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := baseRetryDelay
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isTransient(err) || i == attempts-1 {
			return err
		}

		jitter := time.Duration(rand.Int63n(int64(delay)))
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		return sErr.HTTPStatusCode == 429 || sErr.HTTPStatusCode >= 500
	}
	// Anything else is a transport failure worth one more try.
	return true
}

func fromStripeSubscription(s *stripe.Subscription) Subscription {
	sub := Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.CurrentPeriodStart > 0 {
		t := time.Unix(s.CurrentPeriodStart, 0).UTC()
		sub.CurrentPeriodStart = &t
	}
	if s.CurrentPeriodEnd > 0 {
		t := time.Unix(s.CurrentPeriodEnd, 0).UTC()
		sub.CurrentPeriodEnd = &t
	}
	if s.CanceledAt > 0 {
		t := time.Unix(s.CanceledAt, 0).UTC()
		sub.CanceledAt = &t
	}
	return sub
}
