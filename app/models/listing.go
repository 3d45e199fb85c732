package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ListingStatusActive   = "active"
	ListingStatusArchived = "archived"
	ListingStatusSold     = "sold"
)

// ListingPurgeDelay is how long an archived listing is kept before the
// automatic deletion timestamp fires.
const ListingPurgeDelay = 30 * 24 * time.Hour

// Listing is a marketplace listing. Archiving stamps DeleteAt so the cache
// reaper eventually purges the cached document; restoring must remove the
// field again (never null it, see the ttlfield package).
type Listing struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UUID        string     `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	Title       string     `gorm:"type:varchar(200);not null" json:"title" validate:"required,min=3,max=200"`
	Description string     `gorm:"type:text" json:"description" validate:"max=5000"`
	PriceCents  int64      `gorm:"not null;default:0" json:"price_cents" validate:"gte=0"`
	Currency    string     `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency" validate:"len=3"`
	Status      string     `gorm:"type:varchar(16);not null;default:'active';index" json:"status" validate:"oneof=active archived sold"`
	ViewCount   int64      `gorm:"not null;default:0" json:"view_count"`
	ArchivedAt  *time.Time `gorm:"type:timestamp;default:null" json:"archived_at,omitempty"`
	DeleteAt    *time.Time `gorm:"type:timestamp;default:null" json:"delete_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns the public identifier.
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.UUID == "" {
		l.UUID = uuid.New().String()
	}
	return nil
}

func (l *Listing) Validate() error {
	v := validator.New()

	return v.Struct(l)
}
