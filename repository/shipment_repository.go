package repository

import (
	"context"

	"carrier-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ShipmentRepository defines data-access operations for shipments.
type ShipmentRepository interface {
	Create(ctx context.Context, shipment *models.Shipment) error
	FindByID(ctx context.Context, userID string, id uuid.UUID) (*models.Shipment, error)
	FindByTrackingNumber(ctx context.Context, userID, carrierName, trackingNumber string) (*models.Shipment, error)
	Update(ctx context.Context, shipment *models.Shipment) error
	FindByUser(ctx context.Context, userID string, page, limit int) ([]models.Shipment, int64, error)
}

// GormShipmentRepository implements ShipmentRepository using GORM.
type GormShipmentRepository struct {
	db *gorm.DB
}

// NewGormShipmentRepository creates a new GormShipmentRepository.
func NewGormShipmentRepository(db *gorm.DB) ShipmentRepository {
	return &GormShipmentRepository{db: db}
}

func (r *GormShipmentRepository) Create(ctx context.Context, shipment *models.Shipment) error {
	return r.db.WithContext(ctx).Create(shipment).Error
}

func (r *GormShipmentRepository) FindByID(ctx context.Context, userID string, id uuid.UUID) (*models.Shipment, error) {
	var s models.Shipment
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormShipmentRepository) FindByTrackingNumber(ctx context.Context, userID, carrierName, trackingNumber string) (*models.Shipment, error) {
	var s models.Shipment
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND carrier_name = ? AND tracking_number = ?", userID, carrierName, trackingNumber).
		Order("created_at DESC").
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormShipmentRepository) Update(ctx context.Context, shipment *models.Shipment) error {
	return r.db.WithContext(ctx).Save(shipment).Error
}

func (r *GormShipmentRepository) FindByUser(ctx context.Context, userID string, page, limit int) ([]models.Shipment, int64, error) {
	var shipments []models.Shipment
	var total int64

	query := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("user_id = ?", userID).
		Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&shipments).Error; err != nil {
		return nil, 0, err
	}

	return shipments, total, nil
}
