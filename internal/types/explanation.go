package types

import (
	"time"

	"github.com/google/uuid"
)

// Explanation is the long-form educational description generated from
// a source image. IsometricID records which stylized rendering existed
// at generation time; uuid.Nil when the stage ran standalone.
type Explanation struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	SourceImageID uuid.UUID `gorm:"type:uuid;not null;index" json:"source_image_id"`
	IsometricID   uuid.UUID `gorm:"type:uuid;index" json:"isometric_id"`
	FilePath      string    `gorm:"column:file_path;not null" json:"file_path"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

func (Explanation) TableName() string { return "explanation" }
