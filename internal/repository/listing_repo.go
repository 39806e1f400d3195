package repository

import (
	"context"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListingRepository is the booking service's view of the listing catalog.
type ListingRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Listing, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Listing, error)
	Upsert(ctx context.Context, listing *models.Listing) error
	Deactivate(ctx context.Context, id uint) error
}

type listingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) FindByID(ctx context.Context, id uint) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).First(&listing, id).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// FindByIDForUpdate acquires a row-level lock on the listing within the given
// transaction, serializing booking creation per listing.
func (r *listingRepository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Listing, error) {
	var listing models.Listing
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&listing, id).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// Upsert inserts the listing or refreshes the replicated columns when it exists.
func (r *listingRepository) Upsert(ctx context.Context, listing *models.Listing) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "title", "price_per_day", "active", "updated_at"}),
	}).Create(listing).Error
}

func (r *listingRepository) Deactivate(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", id).
		Update("active", false).Error
}
