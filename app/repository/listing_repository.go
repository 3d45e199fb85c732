package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fleamarkt/fleamarkt/app/models"
)

// listingRepository implements the ListingRepository interface
type listingRepository struct {
	db *gorm.DB
}

// NewListingRepository creates a new listing repository instance
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) Create(listing *models.Listing) error {
	return r.db.Create(listing).Error
}

func (r *listingRepository) GetByID(id uint) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.First(&listing, id).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *listingRepository) GetByUserID(userID uint, offset, limit int) ([]models.Listing, error) {
	var listings []models.Listing
	err := r.db.Where("user_id = ?", userID).Offset(offset).Limit(limit).Order("id DESC").Find(&listings).Error
	return listings, err
}

func (r *listingRepository) Update(listing *models.Listing) error {
	return r.db.Save(listing).Error
}

// Archive marks a listing archived and stamps the deletion timestamp that
// will eventually purge its cached document.
func (r *listingRepository) Archive(id uint) (*models.Listing, error) {
	listing, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}
	if listing.Status == models.ListingStatusArchived {
		return listing, nil
	}

	now := time.Now().UTC()
	deleteAt := now.Add(models.ListingPurgeDelay)
	listing.Status = models.ListingStatusArchived
	listing.ArchivedAt = &now
	listing.DeleteAt = &deleteAt
	if err := r.db.Save(listing).Error; err != nil {
		return nil, err
	}
	return listing, nil
}

// Restore brings an archived listing back. The deletion timestamp is cleared
// on the row; the cached document clears it through the ttlfield helper so
// the field is removed, not nulled.
func (r *listingRepository) Restore(id uint) (*models.Listing, error) {
	listing, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}
	if listing.Status != models.ListingStatusArchived {
		return nil, errors.New("only archived listings can be restored")
	}

	listing.Status = models.ListingStatusActive
	listing.ArchivedAt = nil
	listing.DeleteAt = nil
	if err := r.db.Model(listing).Updates(map[string]interface{}{
		"status":      models.ListingStatusActive,
		"archived_at": gorm.Expr("NULL"),
		"delete_at":   gorm.Expr("NULL"),
	}).Error; err != nil {
		return nil, err
	}
	return listing, nil
}

func (r *listingRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Listing{}).Count(&count).Error
	return count, err
}

func (r *listingRepository) CountActiveByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Listing{}).
		Where("user_id = ? AND status = ?", userID, models.ListingStatusActive).
		Count(&count).Error
	return count, err
}
