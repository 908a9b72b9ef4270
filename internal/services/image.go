package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/apexlabs/apex-backend/internal/logger"
	"github.com/apexlabs/apex-backend/internal/repos"
	"github.com/apexlabs/apex-backend/internal/types"
)

// ImageService owns source image ingestion and the per-user gallery
// aggregation. Derived artifacts are produced elsewhere (pipeline,
// model3d); this service only ever touches SourceImage rows and reads
// the artifact tables for listing.
type ImageService interface {
	SaveUpload(ctx context.Context, userID uuid.UUID, originalName string, data []byte) (*types.SourceImage, error)
	GetSourceImage(ctx context.Context, userID, imageID uuid.UUID) (*types.SourceImage, error)
	GetIsometric(ctx context.Context, userID, isometricID uuid.UUID) (*types.IsometricImage, error)
	GetExplanation(ctx context.Context, userID, explanationID uuid.UUID) (*types.Explanation, error)
	MarkProcessed(ctx context.Context, imageID uuid.UUID) error
	ListUserImages(ctx context.Context, userID uuid.UUID) ([]*UserImageSummary, error)
}

// UserImageSummary links one source image to every artifact derived
// from it, for the read-only gallery endpoint.
type UserImageSummary struct {
	Image       *types.SourceImage    `json:"image"`
	Isometric   *types.IsometricImage `json:"isometric,omitempty"`
	Explanation *types.Explanation    `json:"explanation,omitempty"`
	Quiz        *types.Quiz           `json:"quiz,omitempty"`
	Model3D     *types.Model3DTask    `json:"model3d,omitempty"`
}

type imageService struct {
	db              *gorm.DB
	log             *logger.Logger
	storage         StorageService
	sourceImageRepo repos.SourceImageRepo
	isometricRepo   repos.IsometricRepo
	explanationRepo repos.ExplanationRepo
	quizRepo        repos.QuizRepo
	model3DRepo     repos.Model3DTaskRepo
}

func NewImageService(
	db *gorm.DB,
	baseLog *logger.Logger,
	storage StorageService,
	sourceImageRepo repos.SourceImageRepo,
	isometricRepo repos.IsometricRepo,
	explanationRepo repos.ExplanationRepo,
	quizRepo repos.QuizRepo,
	model3DRepo repos.Model3DTaskRepo,
) ImageService {
	return &imageService{
		db:              db,
		log:             baseLog.With("service", "ImageService"),
		storage:         storage,
		sourceImageRepo: sourceImageRepo,
		isometricRepo:   isometricRepo,
		explanationRepo: explanationRepo,
		quizRepo:        quizRepo,
		model3DRepo:     model3DRepo,
	}
}

func (s *imageService) SaveUpload(ctx context.Context, userID uuid.UUID, originalName string, data []byte) (*types.SourceImage, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user id")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty upload")
	}
	if originalName == "" {
		originalName = "upload"
	}

	fileName := fmt.Sprintf("%s_%s_%s", userID, time.Now().UTC().Format("20060102150405"), originalName)
	path, err := s.storage.Save("uploads", fileName, data)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	img := &types.SourceImage{
		ID:       uuid.New(),
		UserID:   userID,
		FileName: fileName,
		FilePath: path,
		Status:   types.SourceImageStatusUploaded,
	}
	if _, err := s.sourceImageRepo.Create(ctx, nil, []*types.SourceImage{img}); err != nil {
		return nil, fmt.Errorf("failed to create source image record: %w", err)
	}
	s.log.Info("Source image ingested", "image_id", img.ID, "file_path", path)
	return img, nil
}

func (s *imageService) GetSourceImage(ctx context.Context, userID, imageID uuid.UUID) (*types.SourceImage, error) {
	img, err := s.sourceImageRepo.GetByID(ctx, nil, imageID)
	if err != nil {
		return nil, err
	}
	if img.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return img, nil
}

func (s *imageService) GetIsometric(ctx context.Context, userID, isometricID uuid.UUID) (*types.IsometricImage, error) {
	iso, err := s.isometricRepo.GetByID(ctx, nil, isometricID)
	if err != nil {
		return nil, err
	}
	if iso.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return iso, nil
}

func (s *imageService) GetExplanation(ctx context.Context, userID, explanationID uuid.UUID) (*types.Explanation, error) {
	explanation, err := s.explanationRepo.GetByID(ctx, nil, explanationID)
	if err != nil {
		return nil, err
	}
	if explanation.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return explanation, nil
}

func (s *imageService) MarkProcessed(ctx context.Context, imageID uuid.UUID) error {
	return s.sourceImageRepo.UpdateStatus(ctx, nil, imageID, types.SourceImageStatusProcessed)
}

func (s *imageService) ListUserImages(ctx context.Context, userID uuid.UUID) ([]*UserImageSummary, error) {
	images, err := s.sourceImageRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list source images: %w", err)
	}
	if len(images) == 0 {
		return []*UserImageSummary{}, nil
	}

	ids := make([]uuid.UUID, 0, len(images))
	for _, img := range images {
		ids = append(ids, img.ID)
	}

	isometrics, err := s.isometricRepo.GetBySourceImageIDs(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list isometrics: %w", err)
	}
	explanations, err := s.explanationRepo.GetBySourceImageIDs(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list explanations: %w", err)
	}
	tasks, err := s.model3DRepo.GetBySourceImageIDs(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list 3d tasks: %w", err)
	}

	explanationIDs := make([]uuid.UUID, 0, len(explanations))
	for _, e := range explanations {
		explanationIDs = append(explanationIDs, e.ID)
	}
	quizzes, err := s.quizRepo.GetByExplanationIDs(ctx, nil, explanationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}

	// Lists come back newest-first, so the first hit per source image
	// is the latest artifact of that kind.
	isoBySource := map[uuid.UUID]*types.IsometricImage{}
	for _, iso := range isometrics {
		if _, ok := isoBySource[iso.SourceImageID]; !ok {
			isoBySource[iso.SourceImageID] = iso
		}
	}
	explBySource := map[uuid.UUID]*types.Explanation{}
	for _, e := range explanations {
		if _, ok := explBySource[e.SourceImageID]; !ok {
			explBySource[e.SourceImageID] = e
		}
	}
	taskBySource := map[uuid.UUID]*types.Model3DTask{}
	for _, t := range tasks {
		if _, ok := taskBySource[t.SourceImageID]; !ok {
			taskBySource[t.SourceImageID] = t
		}
	}
	quizByExplanation := map[uuid.UUID]*types.Quiz{}
	for _, q := range quizzes {
		if _, ok := quizByExplanation[q.ExplanationID]; !ok {
			quizByExplanation[q.ExplanationID] = q
		}
	}

	out := make([]*UserImageSummary, 0, len(images))
	for _, img := range images {
		summary := &UserImageSummary{
			Image:     img,
			Isometric: isoBySource[img.ID],
			Model3D:   taskBySource[img.ID],
		}
		if e := explBySource[img.ID]; e != nil {
			summary.Explanation = e
			summary.Quiz = quizByExplanation[e.ID]
		}
		out = append(out, summary)
	}
	return out, nil
}
