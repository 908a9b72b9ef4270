package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/apexlabs/apex-backend/internal/logger"
	"github.com/apexlabs/apex-backend/internal/types"
)

type ExplanationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, explanations []*types.Explanation) ([]*types.Explanation, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Explanation, error)
	GetBySourceImageIDs(ctx context.Context, tx *gorm.DB, sourceImageIDs []uuid.UUID) ([]*types.Explanation, error)
}

type explanationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExplanationRepo(db *gorm.DB, baseLog *logger.Logger) ExplanationRepo {
	return &explanationRepo{db: db, log: baseLog.With("repo", "ExplanationRepo")}
}

func (r *explanationRepo) Create(ctx context.Context, tx *gorm.DB, explanations []*types.Explanation) ([]*types.Explanation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(explanations) == 0 {
		return []*types.Explanation{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&explanations).Error; err != nil {
		return nil, err
	}
	return explanations, nil
}

func (r *explanationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Explanation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Explanation
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *explanationRepo) GetBySourceImageIDs(ctx context.Context, tx *gorm.DB, sourceImageIDs []uuid.UUID) ([]*types.Explanation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Explanation
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
