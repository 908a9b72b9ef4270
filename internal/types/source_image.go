package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	SourceImageStatusUploaded  = "uploaded"
	SourceImageStatusProcessed = "processed"
)

// SourceImage is the root of the derivation graph. Every generated
// artifact points back at it, directly or through the isometric
// rendering derived from it.
type SourceImage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	FileName  string    `gorm:"column:file_name;not null" json:"file_name"`
	FilePath  string    `gorm:"column:file_path;not null" json:"file_path"`
	Status    string    `gorm:"column:status;not null" json:"status"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (SourceImage) TableName() string { return "source_image" }
