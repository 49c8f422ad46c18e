package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carrier-service/carriers"
	"carrier-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CarrierConfigRepository defines data-access operations for carrier
// configurations. It also serves as the credential store of the UPS token
// manager.
type CarrierConfigRepository interface {
	Get(ctx context.Context, userID, carrierName string) (*models.CarrierConfiguration, error)
	ListByUser(ctx context.Context, userID string) ([]models.CarrierConfiguration, error)
	ListActive(ctx context.Context, userID string) ([]models.CarrierConfiguration, error)
	Upsert(ctx context.Context, cfg *models.CarrierConfiguration) error
	Deactivate(ctx context.Context, userID, carrierName string) error
	SaveTokens(ctx context.Context, userID, carrierName, accessToken, refreshToken string, expiresAt time.Time) error
}

var _ carriers.CredentialStore = (CarrierConfigRepository)(nil)

// GormCarrierConfigRepository implements CarrierConfigRepository using GORM.
type GormCarrierConfigRepository struct {
	db *gorm.DB
}

// NewGormCarrierConfigRepository creates a new GormCarrierConfigRepository.
func NewGormCarrierConfigRepository(db *gorm.DB) CarrierConfigRepository {
	return &GormCarrierConfigRepository{db: db}
}

func (r *GormCarrierConfigRepository) Get(ctx context.Context, userID, carrierName string) (*models.CarrierConfiguration, error) {
	var cfg models.CarrierConfiguration
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND carrier_name = ?", userID, carrierName).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, carriers.ErrConfigurationNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *GormCarrierConfigRepository) ListByUser(ctx context.Context, userID string) ([]models.CarrierConfiguration, error) {
	var cfgs []models.CarrierConfiguration
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("carrier_name").
		Find(&cfgs).Error; err != nil {
		return nil, err
	}
	return cfgs, nil
}

func (r *GormCarrierConfigRepository) ListActive(ctx context.Context, userID string) ([]models.CarrierConfiguration, error) {
	var cfgs []models.CarrierConfiguration
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("carrier_name").
		Find(&cfgs).Error; err != nil {
		return nil, err
	}
	return cfgs, nil
}

// Upsert inserts the configuration or replaces the existing one for the same
// user and carrier.
func (r *GormCarrierConfigRepository) Upsert(ctx context.Context, cfg *models.CarrierConfiguration) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "carrier_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"account_number", "credentials", "settings", "is_active", "updated_at", "deleted_at",
			}),
		}).
		Create(cfg).Error
}

func (r *GormCarrierConfigRepository) Deactivate(ctx context.Context, userID, carrierName string) error {
	res := r.db.WithContext(ctx).
		Model(&models.CarrierConfiguration{}).
		Where("user_id = ? AND carrier_name = ?", userID, carrierName).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return carriers.ErrConfigurationNotFound
	}
	return nil
}

// SaveTokens rewrites the token fields of the stored credentials. The row is
// locked so concurrent writers do not lose each other's updates.
func (r *GormCarrierConfigRepository) SaveTokens(ctx context.Context, userID, carrierName, accessToken, refreshToken string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cfg models.CarrierConfiguration
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND carrier_name = ?", userID, carrierName).
			First(&cfg).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return carriers.ErrConfigurationNotFound
			}
			return fmt.Errorf("lock carrier configuration: %w", err)
		}

		creds := cfg.Credentials
		creds.AccessToken = accessToken
		creds.RefreshToken = refreshToken
		expires := expiresAt.UTC()
		creds.TokenExpiresAt = &expires

		return tx.Model(&cfg).Update("credentials", creds).Error
	})
}
