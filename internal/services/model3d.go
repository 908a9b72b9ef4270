package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/apexlabs/apex-backend/internal/logger"
	"github.com/apexlabs/apex-backend/internal/repos"
	"github.com/apexlabs/apex-backend/internal/types"
)

// Model3DService drives the reconstruction task state machine. Remote
// state arrives only through client-triggered polls; every transition
// is applied through conditional, forward-only store updates keyed by
// the remote task handle, which is what makes repeated polls (and
// concurrent ones) converge on a single terminal record.
type Model3DService interface {
	// Submit creates a remote image-to-3d job for the isometric
	// rendering and records it as pending. If the source image already
	// has a task that is not failed, that task is returned instead of
	// creating a duplicate remote job.
	Submit(ctx context.Context, userID, sourceImageID, isometricID uuid.UUID, imagePath, prompt string) (*types.Model3DTask, error)
	// CheckStatus reconciles one poll: it advances the stored task
	// according to the remote status and, on the transition into
	// completed, downloads every named output exactly once.
	CheckStatus(ctx context.Context, userID uuid.UUID, taskID string) (*Model3DStatusResult, error)
}

type Model3DStatusResult struct {
	Task        *types.Model3DTask
	Status      string
	LocalFiles  map[string]string
	RemoteFiles map[string]string
	Message     string
}

type model3DService struct {
	db          *gorm.DB
	log         *logger.Logger
	trellis     TrellisClient
	storage     StorageService
	taskRepo    repos.Model3DTaskRepo
	httpClient  *http.Client
}

func NewModel3DService(
	db *gorm.DB,
	baseLog *logger.Logger,
	trellis TrellisClient,
	storage StorageService,
	taskRepo repos.Model3DTaskRepo,
	downloadTimeout time.Duration,
) Model3DService {
	if downloadTimeout <= 0 {
		downloadTimeout = 60 * time.Second
	}
	return &model3DService{
		db:         db,
		log:        baseLog.With("service", "Model3DService"),
		trellis:    trellis,
		storage:    storage,
		taskRepo:   taskRepo,
		httpClient: &http.Client{Timeout: downloadTimeout},
	}
}

func (s *model3DService) Submit(ctx context.Context, userID, sourceImageID, isometricID uuid.UUID, imagePath, prompt string) (*types.Model3DTask, error) {
	if existing, err := s.taskRepo.GetActiveBySourceImageID(ctx, nil, sourceImageID); err == nil {
		s.log.Info("Reusing existing 3d task for source image",
			"source_image_id", sourceImageID,
			"remote_task_id", existing.TaskID,
			"status", existing.Status,
		)
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("duplicate-task check failed: %w", err)
	}

	imageBytes, err := s.storage.Read(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read submission image: %v", ErrSubmissionFailed, err)
	}

	remoteTaskID, err := s.trellis.CreateImageTo3DTask(ctx, imageBytes, prompt)
	if err != nil {
		return nil, err
	}

	task := &types.Model3DTask{
		ID:            uuid.New(),
		UserID:        userID,
		TaskID:        remoteTaskID,
		SourceImageID: sourceImageID,
		IsometricID:   isometricID,
		Status:        types.Model3DStatusPending,
		SubmittedAt:   time.Now(),
	}
	if _, err := s.taskRepo.Create(ctx, nil, []*types.Model3DTask{task}); err != nil {
		return nil, fmt.Errorf("failed to record 3d task: %w", err)
	}
	s.log.Info("3d task submitted", "remote_task_id", remoteTaskID, "source_image_id", sourceImageID)
	return task, nil
}

func (s *model3DService) CheckStatus(ctx context.Context, userID uuid.UUID, taskID string) (*Model3DStatusResult, error) {
	task, err := s.taskRepo.GetByTaskID(ctx, nil, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}

	// Terminal records are served from the store. No remote call, no
	// downloads: a completed task answers every later poll with the
	// same local artifacts.
	if task.IsTerminal() {
		return s.terminalResult(task), nil
	}

	remote, err := s.trellis.GetTaskStatus(ctx, task.TaskID)
	if err != nil {
		return nil, err
	}

	switch remote.Status {
	case types.Model3DStatusProcessing:
		if err := s.taskRepo.MarkProcessingByTaskID(ctx, nil, task.TaskID); err != nil {
			return nil, fmt.Errorf("failed to mark task processing: %w", err)
		}
		task.Status = types.Model3DStatusProcessing
		return &Model3DStatusResult{
			Task:    task,
			Status:  task.Status,
			Message: "3d generation in progress",
		}, nil

	case types.Model3DStatusCompleted:
		return s.reconcileCompleted(ctx, task, remote)

	case types.Model3DStatusFailed:
		if _, err := s.taskRepo.FailByTaskID(ctx, nil, task.TaskID, remote.Error); err != nil {
			return nil, fmt.Errorf("failed to mark task failed: %w", err)
		}
		task.Status = types.Model3DStatusFailed
		task.Error = remote.Error
		return &Model3DStatusResult{
			Task:    task,
			Status:  task.Status,
			Message: remote.Error,
		}, nil

	default:
		// pending, staged, or anything the remote adds later: the
		// stored status stands (it can only be ahead of pending here).
		return &Model3DStatusResult{
			Task:    task,
			Status:  task.Status,
			Message: "3d generation not finished yet",
		}, nil
	}
}

func (s *model3DService) reconcileCompleted(ctx context.Context, task *types.Model3DTask, remote *TaskStatus) (*Model3DStatusResult, error) {
	if len(remote.Output) == 0 {
		return nil, fmt.Errorf("%w: remote reports completed without outputs", ErrStatusUnavailable)
	}

	localFiles := map[string]string{}
	for kind, fileURL := range remote.Output {
		localPath, err := s.downloadOutput(ctx, task.TaskID, kind, fileURL)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s output: %w", kind, err)
		}
		localFiles[kind] = localPath
	}

	artifactsJSON, err := json.Marshal(localFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to encode local artifacts: %w", err)
	}

	rows, err := s.taskRepo.CompleteByTaskID(ctx, nil, task.TaskID, datatypes.JSON(artifactsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}
	if rows == 0 {
		// Another poll won the terminal transition between our read and
		// this update. Its artifact map is authoritative; ours is
		// discarded.
		s.log.Warn("Lost completion race, serving stored artifacts", "remote_task_id", task.TaskID)
		stored, err := s.taskRepo.GetByTaskID(ctx, nil, task.TaskID)
		if err != nil {
			return nil, err
		}
		return s.terminalResult(stored), nil
	}

	task.Status = types.Model3DStatusCompleted
	task.LocalArtifacts = datatypes.JSON(artifactsJSON)
	s.log.Info("3d task completed and reconciled", "remote_task_id", task.TaskID, "artifact_count", len(localFiles))
	return &Model3DStatusResult{
		Task:        task,
		Status:      task.Status,
		LocalFiles:  localFiles,
		RemoteFiles: remote.Output,
		Message:     "3d model generated successfully",
	}, nil
}

func (s *model3DService) terminalResult(task *types.Model3DTask) *Model3DStatusResult {
	result := &Model3DStatusResult{
		Task:   task,
		Status: task.Status,
	}
	if task.Status == types.Model3DStatusFailed {
		result.Message = task.Error
		if result.Message == "" {
			result.Message = "3d generation failed"
		}
		return result
	}
	result.Message = "3d model generated successfully"
	if len(task.LocalArtifacts) > 0 {
		local := map[string]string{}
		if err := json.Unmarshal(task.LocalArtifacts, &local); err == nil {
			result.LocalFiles = local
		} else {
			s.log.Warn("Stored local artifacts are not decodable", "remote_task_id", task.TaskID, "error", err)
		}
	}
	return result
}

// outputDirs maps the remote output kind to its storage directory.
var outputDirs = map[string]string{
	"model_file":          "3d_models",
	"no_background_image": "no_background_image",
}

func (s *model3DService) downloadOutput(ctx context.Context, taskID, kind, fileURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	dir, ok := outputDirs[kind]
	if !ok {
		dir = "3d_outputs"
	}
	name := fileNameFromURL(fileURL)
	if name == "" {
		name = fmt.Sprintf("%s_%s", taskID, kind)
	}
	return s.storage.Save(dir, name, data)
}

func fileNameFromURL(fileURL string) string {
	u, err := url.Parse(fileURL)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
