package types

import (
	"time"

	"github.com/google/uuid"
)

// Quiz points at the serialized question set on disk. The questions
// themselves are not separately persisted; FilePath holds the JSON
// produced by quizparse from the generated text.
type Quiz struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	ExplanationID uuid.UUID `gorm:"type:uuid;not null;index" json:"explanation_id"`
	FilePath      string    `gorm:"column:file_path;not null" json:"file_path"`
	QuestionCount int       `gorm:"column:question_count;not null" json:"question_count"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

func (Quiz) TableName() string { return "quiz" }
