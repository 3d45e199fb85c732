package repository

import (
	"github.com/fleamarkt/fleamarkt/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// ListingRepository defines the interface for listing-related database operations
type ListingRepository interface {
	Create(listing *models.Listing) error
	GetByID(id uint) (*models.Listing, error)
	GetByUserID(userID uint, offset, limit int) ([]models.Listing, error)
	Update(listing *models.Listing) error
	Archive(id uint) (*models.Listing, error)
	Restore(id uint) (*models.Listing, error)
	Count() (int64, error)
	CountActiveByUser(userID uint) (int64, error)
}
