package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/apexlabs/apex-backend/internal/logger"
	"github.com/apexlabs/apex-backend/internal/types"
)

type SourceImageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, images []*types.SourceImage) ([]*types.SourceImage, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.SourceImage, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.SourceImage, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error
}

type sourceImageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceImageRepo(db *gorm.DB, baseLog *logger.Logger) SourceImageRepo {
	return &sourceImageRepo{db: db, log: baseLog.With("repo", "SourceImageRepo")}
}

func (r *sourceImageRepo) Create(ctx context.Context, tx *gorm.DB, images []*types.SourceImage) ([]*types.SourceImage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(images) == 0 {
		return []*types.SourceImage{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

func (r *sourceImageRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.SourceImage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.SourceImage
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *sourceImageRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.SourceImage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.SourceImage
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *sourceImageRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.SourceImage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}
