package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fleamarkt/fleamarkt/app/models"
	"github.com/fleamarkt/fleamarkt/internal/pkg/ttlfield"
)

// Hash fields of the cached subscription document.
const (
	fieldStatus            = "status"
	fieldPlan              = "plan"
	fieldBillingSubID      = "billing_subscription_id"
	fieldStartDate         = "start_date"
	fieldEndDate           = "end_date"
	fieldRenewalDate       = "renewal_date"
	fieldCancelAtPeriodEnd = "cancel_at_period_end"
	fieldCanceledAt        = "canceled_at"
	fieldManuallyUpdated   = "manually_updated"
	fieldLastManualUpdate  = "last_manual_update"
	fieldLastUpdated       = "last_updated"
)

// CacheStore keeps the canonical record in the low-latency store as a hash
// under the user's key. It additionally mirrors plan and status into plain
// top-level keys for cheap reads by unrelated request paths.
//
// All writes go through ttlfield validation: the cached document is subject
// to the reaper's automatic deletion of expired documents, so a deletion
// timestamp must either hold a concrete value or be removed outright.
type CacheStore struct {
	rdb *redis.Client
}

func NewCacheStore(rdb *redis.Client) *CacheStore {
	return &CacheStore{rdb: rdb}
}

func (s *CacheStore) Name() string { return "cache" }

func SubscriptionKey(userID uint) string {
	return fmt.Sprintf("user:%d:subscription", userID)
}

func PlanKey(userID uint) string {
	return fmt.Sprintf("user:%d:plan", userID)
}

func StatusKey(userID uint) string {
	return fmt.Sprintf("user:%d:subscription_status", userID)
}

func (s *CacheStore) Get(ctx context.Context, userID uint) (models.SubscriptionRecord, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, SubscriptionKey(userID)).Result()
	if err != nil {
		return models.EmptySubscriptionRecord(), false, err
	}
	if len(fields) == 0 {
		return models.EmptySubscriptionRecord(), false, nil
	}

	rec := models.SubscriptionRecord{
		Status:                fields[fieldStatus],
		Plan:                  fields[fieldPlan],
		BillingSubscriptionID: fields[fieldBillingSubID],
		StartDate:             parseTimeField(fields[fieldStartDate]),
		EndDate:               parseTimeField(fields[fieldEndDate]),
		RenewalDate:           parseTimeField(fields[fieldRenewalDate]),
		CancelAtPeriodEnd:     fields[fieldCancelAtPeriodEnd] == "1",
		CanceledAt:            parseTimeField(fields[fieldCanceledAt]),
		ManuallyUpdated:       fields[fieldManuallyUpdated] == "1",
		LastManualUpdate:      parseTimeField(fields[fieldLastManualUpdate]),
	}
	if rec.Status == "" {
		rec.Status = models.SubscriptionStatusNone
	}
	if rec.Plan == "" {
		rec.Plan = models.PlanFree
	}
	if t := parseTimeField(fields[fieldLastUpdated]); t != nil {
		rec.LastUpdated = *t
	}
	return rec, true, nil
}

func (s *CacheStore) Put(ctx context.Context, userID uint, rec models.SubscriptionRecord) error {
	u := ttlfield.NewUpdate()
	u.SetField(fieldStatus, rec.Status)
	u.SetField(fieldPlan, rec.Plan)
	setOrRemoveString(u, fieldBillingSubID, rec.BillingSubscriptionID)
	setOrRemoveTime(u, fieldStartDate, rec.StartDate)
	setOrRemoveTime(u, fieldEndDate, rec.EndDate)
	setOrRemoveTime(u, fieldRenewalDate, rec.RenewalDate)
	u.SetField(fieldCancelAtPeriodEnd, formatBool(rec.CancelAtPeriodEnd))
	setOrRemoveTime(u, fieldCanceledAt, rec.CanceledAt)
	u.SetField(fieldManuallyUpdated, formatBool(rec.ManuallyUpdated))
	setOrRemoveTime(u, fieldLastManualUpdate, rec.LastManualUpdate)
	u.SetTime(fieldLastUpdated, rec.LastUpdated)

	if err := u.Validate(); err != nil {
		return err
	}

	key := SubscriptionKey(userID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, u.Args()...)
	if len(u.Del) > 0 {
		pipe.HDel(ctx, key, u.Del...)
	}
	pipe.Set(ctx, PlanKey(userID), rec.Plan, 0)
	pipe.Set(ctx, StatusKey(userID), rec.Status, 0)
	_, err := pipe.Exec(ctx)
	return err
}

func setOrRemoveString(u *ttlfield.Update, field, value string) {
	if value == "" {
		u.RemoveField(field)
		return
	}
	u.SetField(field, value)
}

func setOrRemoveTime(u *ttlfield.Update, field string, t *time.Time) {
	if t == nil {
		u.RemoveField(field)
		return
	}
	u.SetTime(field, *t)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseTimeField(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
