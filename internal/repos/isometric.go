package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/apexlabs/apex-backend/internal/logger"
	"github.com/apexlabs/apex-backend/internal/types"
)

type IsometricRepo interface {
	Create(ctx context.Context, tx *gorm.DB, images []*types.IsometricImage) ([]*types.IsometricImage, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.IsometricImage, error)
	GetBySourceImageIDs(ctx context.Context, tx *gorm.DB, sourceImageIDs []uuid.UUID) ([]*types.IsometricImage, error)
}

type isometricRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIsometricRepo(db *gorm.DB, baseLog *logger.Logger) IsometricRepo {
	return &isometricRepo{db: db, log: baseLog.With("repo", "IsometricRepo")}
}

func (r *isometricRepo) Create(ctx context.Context, tx *gorm.DB, images []*types.IsometricImage) ([]*types.IsometricImage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(images) == 0 {
		return []*types.IsometricImage{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

func (r *isometricRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.IsometricImage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.IsometricImage
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *isometricRepo) GetBySourceImageIDs(ctx context.Context, tx *gorm.DB, sourceImageIDs []uuid.UUID) ([]*types.IsometricImage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.IsometricImage
	if len(sourceImageIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("source_image_id IN ?", sourceImageIDs).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
