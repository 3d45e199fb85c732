package models

import (
	"strings"
	"time"
)

const (
	SubscriptionStatusNone     = "none"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusReplaced = "replaced"
)

const (
	PlanFree    = "free"
	PlanPremium = "premium"
)

// AdminGrantPrefix marks synthetic subscription ids for manually granted
// premium entitlements that are not backed by the billing provider.
const AdminGrantPrefix = "admin_"

// SubscriptionRecord is the canonical subscription state for one user. It is
// mirrored into both internal stores; after reconciliation both copies must
// be equal.
type SubscriptionRecord struct {
	Status                string     `gorm:"type:varchar(16);not null;default:'none'" json:"status"`
	Plan                  string     `gorm:"type:varchar(16);not null;default:'free'" json:"plan"`
	BillingSubscriptionID string     `gorm:"type:varchar(191);index" json:"billing_subscription_id,omitempty"`
	StartDate             *time.Time `gorm:"type:timestamp;default:null" json:"start_date,omitempty"`
	EndDate               *time.Time `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	RenewalDate           *time.Time `gorm:"type:timestamp;default:null" json:"renewal_date,omitempty"`
	CancelAtPeriodEnd     bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt            *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	ManuallyUpdated       bool       `gorm:"default:false" json:"manually_updated"`
	LastManualUpdate      *time.Time `gorm:"type:timestamp;default:null" json:"last_manual_update,omitempty"`
	LastUpdated           time.Time  `gorm:"type:timestamp" json:"last_updated"`
}

// UserSubscription is the primary-store row holding the canonical record.
type UserSubscription struct {
	ID                 uint `gorm:"primaryKey" json:"id"`
	UserID             uint `gorm:"uniqueIndex;not null" json:"user_id"`
	SubscriptionRecord `gorm:"embedded"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// EmptySubscriptionRecord is what a missing record reads as: no entitlement.
func EmptySubscriptionRecord() SubscriptionRecord {
	return SubscriptionRecord{
		Status: SubscriptionStatusNone,
		Plan:   PlanFree,
	}
}

// IsAdminGrant reports whether the record represents a manually granted
// entitlement rather than a provider-backed subscription.
func (r SubscriptionRecord) IsAdminGrant() bool {
	return strings.HasPrefix(r.BillingSubscriptionID, AdminGrantPrefix)
}

// IsZero reports whether the record carries no subscription data at all.
func (r SubscriptionRecord) IsZero() bool {
	return (r.Status == "" || r.Status == SubscriptionStatusNone) &&
		r.BillingSubscriptionID == "" &&
		r.EndDate == nil
}

// HasValidEndDate reports whether the record's paid period still extends
// beyond the given time.
func (r SubscriptionRecord) HasValidEndDate(now time.Time) bool {
	return r.EndDate != nil && r.EndDate.After(now)
}

// Equal compares the fields that must converge between the two internal
// stores. LastUpdated is excluded: a torn dual write leaves differing write
// timestamps without making the entitlement itself inconsistent.
func (r SubscriptionRecord) Equal(o SubscriptionRecord) bool {
	return r.Status == o.Status &&
		r.Plan == o.Plan &&
		r.BillingSubscriptionID == o.BillingSubscriptionID &&
		equalTimePtr(r.StartDate, o.StartDate) &&
		equalTimePtr(r.EndDate, o.EndDate) &&
		equalTimePtr(r.RenewalDate, o.RenewalDate) &&
		r.CancelAtPeriodEnd == o.CancelAtPeriodEnd &&
		equalTimePtr(r.CanceledAt, o.CanceledAt) &&
		r.ManuallyUpdated == o.ManuallyUpdated
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
