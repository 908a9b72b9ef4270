package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	Model3DStatusPending    = "pending"
	Model3DStatusProcessing = "processing"
	Model3DStatusCompleted  = "completed"
	Model3DStatusFailed     = "failed"
)

// Model3DTask tracks a remote image-to-3D reconstruction job. TaskID
// is the remote handle and the reconciliation key: the unique index
// makes completion upserts idempotent per job.
//
// Status only moves forward (pending -> processing -> completed|failed).
// LocalArtifacts is written exactly once, together with the transition
// into completed.
type Model3DTask struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	TaskID         string         `gorm:"column:task_id;not null;uniqueIndex" json:"task_id"`
	SourceImageID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"source_image_id"`
	IsometricID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"isometric_id"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	LocalArtifacts datatypes.JSON `gorm:"column:local_artifacts;type:jsonb" json:"local_artifacts,omitempty"`
	Error          string         `gorm:"column:error" json:"error,omitempty"`
	SubmittedAt    time.Time      `gorm:"column:submitted_at;not null" json:"submitted_at"`
	CompletedAt    *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Model3DTask) TableName() string { return "model3d_task" }

// IsTerminal reports whether the task can no longer change state.
func (t *Model3DTask) IsTerminal() bool {
	return t.Status == Model3DStatusCompleted || t.Status == Model3DStatusFailed
}
