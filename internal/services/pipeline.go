package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/apexlabs/apex-backend/internal/logger"
	"github.com/apexlabs/apex-backend/internal/quizparse"
	"github.com/apexlabs/apex-backend/internal/repos"
	"github.com/apexlabs/apex-backend/internal/types"
)

// PipelineService sequences the generation stages for one ingested
// image: isometric rendering first, then 3D submission and the
// explanation/quiz chain. Stages are best-effort — any stage may fail
// without rolling back or blocking the others — and the 3D job is only
// submitted here, never awaited; its completion is reconciled later by
// Model3DService polls.
type PipelineService interface {
	Run(ctx context.Context, source *types.SourceImage) *PipelineResult
	GenerateIsometric(ctx context.Context, userID uuid.UUID, source *types.SourceImage) (*types.IsometricImage, error)
	GenerateExplanation(ctx context.Context, userID uuid.UUID, source *types.SourceImage, isometricID uuid.UUID) (*types.Explanation, error)
	GenerateQuiz(ctx context.Context, userID uuid.UUID, explanation *types.Explanation, numQuestions int) (*types.Quiz, error)
}

// PipelineResult reports what each stage produced. A nil artifact plus
// a non-empty entry in Errors means the stage was attempted and
// failed; Success covers ingestion only, since downstream stages are
// best-effort.
type PipelineResult struct {
	Success     bool
	Image       *types.SourceImage
	Isometric   *types.IsometricImage
	Explanation *types.Explanation
	Quiz        *types.Quiz
	Model3D     *types.Model3DTask
	Errors      map[string]string
}

// StageOK reports whether the named stage produced its artifact.
func (r *PipelineResult) StageOK(stage string) bool {
	switch stage {
	case "isometric":
		return r.Isometric != nil
	case "explanation":
		return r.Explanation != nil
	case "quiz":
		return r.Quiz != nil
	case "model3d":
		return r.Model3D != nil
	default:
		return false
	}
}

type pipelineService struct {
	db              *gorm.DB
	log             *logger.Logger
	pool            *TaskPool
	storage         StorageService
	genai           GenAIClient
	model3D         Model3DService
	imageService    ImageService
	isometricRepo   repos.IsometricRepo
	explanationRepo repos.ExplanationRepo
	quizRepo        repos.QuizRepo
	defaultQuizSize int
}

func NewPipelineService(
	db *gorm.DB,
	baseLog *logger.Logger,
	pool *TaskPool,
	storage StorageService,
	genai GenAIClient,
	model3D Model3DService,
	imageService ImageService,
	isometricRepo repos.IsometricRepo,
	explanationRepo repos.ExplanationRepo,
	quizRepo repos.QuizRepo,
	defaultQuizSize int,
) PipelineService {
	if defaultQuizSize <= 0 {
		defaultQuizSize = 3
	}
	return &pipelineService{
		db:              db,
		log:             baseLog.With("service", "PipelineService"),
		pool:            pool,
		storage:         storage,
		genai:           genai,
		model3D:         model3D,
		imageService:    imageService,
		isometricRepo:   isometricRepo,
		explanationRepo: explanationRepo,
		quizRepo:        quizRepo,
		defaultQuizSize: defaultQuizSize,
	}
}

func (s *pipelineService) Run(ctx context.Context, source *types.SourceImage) *PipelineResult {
	result := &PipelineResult{
		Image:  source,
		Errors: map[string]string{},
	}
	if source == nil || !s.storage.Exists(source.FilePath) {
		result.Errors["ingestion"] = "source image file not found"
		return result
	}
	result.Success = true
	log := s.log.With("image_id", source.ID)

	// Stage 1: isometric rendering. Everything downstream hangs off it,
	// so a failure here short-circuits the rest of the run.
	isometric, err := s.GenerateIsometric(ctx, source.UserID, source)
	if err != nil {
		log.Warn("Isometric stage failed", "error", err)
		result.Errors["isometric"] = err.Error()
		return result
	}
	result.Isometric = isometric

	// Stage 2 runs the 3D submission alongside the explanation/quiz
	// chain. Only the submission is awaited before returning — the
	// reconstruction job itself finishes asynchronously and is picked
	// up by later status polls.
	var mu sync.Mutex
	var g errgroup.Group
	g.Go(func() error {
		task, err := s.model3D.Submit(ctx, source.UserID, source.ID, isometric.ID, isometric.FilePath, "")
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			log.Warn("3d submission stage failed", "error", err)
			result.Errors["model3d"] = err.Error()
			return nil
		}
		result.Model3D = task
		return nil
	})
	g.Go(func() error {
		explanation, err := s.GenerateExplanation(ctx, source.UserID, source, isometric.ID)
		if err != nil {
			log.Warn("Explanation stage failed", "error", err)
			mu.Lock()
			result.Errors["explanation"] = err.Error()
			result.Errors["quiz"] = "explanation unavailable"
			mu.Unlock()
			return nil
		}
		quiz, quizErr := s.GenerateQuiz(ctx, source.UserID, explanation, s.defaultQuizSize)
		mu.Lock()
		defer mu.Unlock()
		result.Explanation = explanation
		if quizErr != nil {
			log.Warn("Quiz stage failed", "error", quizErr)
			result.Errors["quiz"] = quizErr.Error()
			return nil
		}
		result.Quiz = quiz
		return nil
	})
	_ = g.Wait()

	if err := s.imageService.MarkProcessed(ctx, source.ID); err != nil {
		log.Warn("Failed to mark source image processed", "error", err)
	}
	return result
}

func (s *pipelineService) GenerateIsometric(ctx context.Context, userID uuid.UUID, source *types.SourceImage) (*types.IsometricImage, error) {
	imageBytes, err := s.storage.Read(source.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read source image: %w", err)
	}

	var pngBytes []byte
	err = s.pool.Run(ctx, func(ctx context.Context) error {
		out, genErr := s.genai.GenerateIsometric(ctx, imageBytes, detectMimeType(source.FilePath, imageBytes))
		if genErr != nil {
			return genErr
		}
		pngBytes = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("isometric_%s_%s.png", time.Now().UTC().Format("20060102150405"), shortSuffix())
	path, err := s.storage.Save("isometric", name, pngBytes)
	if err != nil {
		return nil, fmt.Errorf("store isometric image: %w", err)
	}

	iso := &types.IsometricImage{
		ID:            uuid.New(),
		UserID:        userID,
		SourceImageID: source.ID,
		FilePath:      path,
		Status:        "generated",
	}
	if _, err := s.isometricRepo.Create(ctx, nil, []*types.IsometricImage{iso}); err != nil {
		return nil, fmt.Errorf("record isometric image: %w", err)
	}
	return iso, nil
}

func (s *pipelineService) GenerateExplanation(ctx context.Context, userID uuid.UUID, source *types.SourceImage, isometricID uuid.UUID) (*types.Explanation, error) {
	imageBytes, err := s.storage.Read(source.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read source image: %w", err)
	}

	var text string
	err = s.pool.Run(ctx, func(ctx context.Context) error {
		out, genErr := s.genai.DescribeImage(ctx, imageBytes, detectMimeType(source.FilePath, imageBytes))
		if genErr != nil {
			return genErr
		}
		text = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(source.FileName, filepath.Ext(source.FileName))
	name := fmt.Sprintf("%s_description_%s.txt", base, time.Now().UTC().Format("20060102_150405"))
	path, err := s.storage.Save("descriptions", name, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("store explanation: %w", err)
	}

	explanation := &types.Explanation{
		ID:            uuid.New(),
		UserID:        userID,
		SourceImageID: source.ID,
		IsometricID:   isometricID,
		FilePath:      path,
	}
	if _, err := s.explanationRepo.Create(ctx, nil, []*types.Explanation{explanation}); err != nil {
		return nil, fmt.Errorf("record explanation: %w", err)
	}
	return explanation, nil
}

const quizPromptTemplate = `Generate %d multiple-choice questions from the following text:
"""%s"""

Each question should have 4 options (a, b, c, d) and indicate the correct answer.

Format:
Q1. ...
a) ...
b) ...
c) ...
d) ...
Answer: ...`

func (s *pipelineService) GenerateQuiz(ctx context.Context, userID uuid.UUID, explanation *types.Explanation, numQuestions int) (*types.Quiz, error) {
	if numQuestions <= 0 {
		numQuestions = s.defaultQuizSize
	}
	sourceText, err := s.storage.Read(explanation.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read explanation text: %w", err)
	}

	var quizText string
	err = s.pool.Run(ctx, func(ctx context.Context) error {
		out, genErr := s.genai.GenerateText(ctx, fmt.Sprintf(quizPromptTemplate, numQuestions, string(sourceText)))
		if genErr != nil {
			return genErr
		}
		quizText = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	questions := quizparse.Extract(quizText, numQuestions)
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no valid questions in generated text", ErrGenerationFailed)
	}
	if len(questions) < numQuestions {
		s.log.Warn("Quiz came back short",
			"explanation_id", explanation.ID,
			"requested", numQuestions,
			"parsed", len(questions),
		)
	}

	payload, err := json.MarshalIndent(questions, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode quiz: %w", err)
	}
	name := fmt.Sprintf("quiz_%s_%s.json", time.Now().UTC().Format("20060102150405"), shortSuffix())
	path, err := s.storage.Save("quizzes", name, payload)
	if err != nil {
		return nil, fmt.Errorf("store quiz: %w", err)
	}

	quiz := &types.Quiz{
		ID:            uuid.New(),
		UserID:        userID,
		ExplanationID: explanation.ID,
		FilePath:      path,
		QuestionCount: len(questions),
	}
	if _, err := s.quizRepo.Create(ctx, nil, []*types.Quiz{quiz}); err != nil {
		return nil, fmt.Errorf("record quiz: %w", err)
	}
	return quiz, nil
}

func detectMimeType(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return http.DetectContentType(data)
}

func shortSuffix() string {
	return strings.Split(uuid.NewString(), "-")[0]
}
