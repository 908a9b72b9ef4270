package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/apexlabs/apex-backend/internal/logger"
	"github.com/apexlabs/apex-backend/internal/types"
)

type Model3DTaskRepo interface {
	Create(ctx context.Context, tx *gorm.DB, tasks []*types.Model3DTask) ([]*types.Model3DTask, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Model3DTask, error)
	GetByTaskID(ctx context.Context, tx *gorm.DB, taskID string) (*types.Model3DTask, error)
	GetBySourceImageIDs(ctx context.Context, tx *gorm.DB, sourceImageIDs []uuid.UUID) ([]*types.Model3DTask, error)
	// GetActiveBySourceImageID returns the most recent task for the
	// source image that is not failed. Used as the duplicate-submission
	// guard: a pending, processing or completed task means there is
	// nothing to submit.
	GetActiveBySourceImageID(ctx context.Context, tx *gorm.DB, sourceImageID uuid.UUID) (*types.Model3DTask, error)
	// MarkProcessingByTaskID advances pending -> processing. The status
	// guard in the WHERE clause keeps terminal rows untouched, so a
	// stale poll can never regress the state machine.
	MarkProcessingByTaskID(ctx context.Context, tx *gorm.DB, taskID string) error
	// CompleteByTaskID performs the terminal transition and writes the
	// local artifact map in the same UPDATE. The conditional WHERE makes
	// it a no-op once the row is terminal; it returns the number of rows
	// changed so callers can tell whether they won the transition.
	CompleteByTaskID(ctx context.Context, tx *gorm.DB, taskID string, localArtifacts datatypes.JSON) (int64, error)
	FailByTaskID(ctx context.Context, tx *gorm.DB, taskID string, errMsg string) (int64, error)
}

type model3DTaskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModel3DTaskRepo(db *gorm.DB, baseLog *logger.Logger) Model3DTaskRepo {
	return &model3DTaskRepo{db: db, log: baseLog.With("repo", "Model3DTaskRepo")}
}

func (r *model3DTaskRepo) Create(ctx context.Context, tx *gorm.DB, tasks []*types.Model3DTask) ([]*types.Model3DTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(tasks) == 0 {
		return []*types.Model3DTask{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *model3DTaskRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Model3DTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Model3DTask
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *model3DTaskRepo) GetByTaskID(ctx context.Context, tx *gorm.DB, taskID string) (*types.Model3DTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Model3DTask
	if err := transaction.WithContext(ctx).
		Where("task_id = ?", taskID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *model3DTaskRepo) GetBySourceImageIDs(ctx context.Context, tx *gorm.DB, sourceImageIDs []uuid.UUID) ([]*types.Model3DTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Model3DTask
	if len(sourceImageIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("source_image_id IN ?", sourceImageIDs).
		Order("submitted_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *model3DTaskRepo) GetActiveBySourceImageID(ctx context.Context, tx *gorm.DB, sourceImageID uuid.UUID) (*types.Model3DTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Model3DTask
	err := transaction.WithContext(ctx).
		Where("source_image_id = ? AND status <> ?", sourceImageID, types.Model3DStatusFailed).
		Order("submitted_at DESC").
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *model3DTaskRepo) MarkProcessingByTaskID(ctx context.Context, tx *gorm.DB, taskID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Model3DTask{}).
		Where("task_id = ? AND status = ?", taskID, types.Model3DStatusPending).
		Update("status", types.Model3DStatusProcessing).Error
}

func (r *model3DTaskRepo) CompleteByTaskID(ctx context.Context, tx *gorm.DB, taskID string, localArtifacts datatypes.JSON) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.Model3DTask{}).
		Where("task_id = ? AND status IN ?", taskID, []string{types.Model3DStatusPending, types.Model3DStatusProcessing}).
		Updates(map[string]interface{}{
			"status":          types.Model3DStatusCompleted,
			"local_artifacts": localArtifacts,
			"completed_at":    now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *model3DTaskRepo) FailByTaskID(ctx context.Context, tx *gorm.DB, taskID string, errMsg string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.Model3DTask{}).
		Where("task_id = ? AND status IN ?", taskID, []string{types.Model3DStatusPending, types.Model3DStatusProcessing}).
		Updates(map[string]interface{}{
			"status":       types.Model3DStatusFailed,
			"error":        errMsg,
			"completed_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
