package types

import (
	"time"

	"github.com/google/uuid"
)

// IsometricImage is the stylized rendering produced by the image
// generation service from a source image.
type IsometricImage struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	SourceImageID uuid.UUID `gorm:"type:uuid;not null;index" json:"source_image_id"`
	FilePath      string    `gorm:"column:file_path;not null" json:"file_path"`
	Status        string    `gorm:"column:status;not null" json:"status"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

func (IsometricImage) TableName() string { return "isometric_image" }
