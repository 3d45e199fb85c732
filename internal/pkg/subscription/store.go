package subscription

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fleamarkt/fleamarkt/app/models"
)

// Store is one internal persistence system holding a copy of the canonical
// subscription record.
type Store interface {
	Name() string
	Get(ctx context.Context, userID uint) (models.SubscriptionRecord, bool, error)
	Put(ctx context.Context, userID uint, rec models.SubscriptionRecord) error
}

// ReconcilableLister selects identities worth scanning: anything whose
// stored status is not "none".
type ReconcilableLister interface {
	ListReconcilable(ctx context.Context, limit int) ([]uint, error)
}

// DBStore keeps the canonical record in the primary relational store, one
// row per user.
type DBStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Name() string { return "db" }

func (s *DBStore) Get(ctx context.Context, userID uint) (models.SubscriptionRecord, bool, error) {
	var row models.UserSubscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.EmptySubscriptionRecord(), false, nil
		}
		return models.EmptySubscriptionRecord(), false, err
	}
	return row.SubscriptionRecord, true, nil
}

func (s *DBStore) Put(ctx context.Context, userID uint, rec models.SubscriptionRecord) error {
	row := models.UserSubscription{
		UserID:             userID,
		SubscriptionRecord: rec,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"plan",
			"billing_subscription_id",
			"start_date",
			"end_date",
			"renewal_date",
			"cancel_at_period_end",
			"canceled_at",
			"manually_updated",
			"last_manual_update",
			"last_updated",
			"updated_at",
		}),
	}).Create(&row).Error
}

func (s *DBStore) ListReconcilable(ctx context.Context, limit int) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("status <> ?", models.SubscriptionStatusNone).
		Order("user_id").
		Limit(limit).
		Pluck("user_id", &ids).Error
	return ids, err
}
