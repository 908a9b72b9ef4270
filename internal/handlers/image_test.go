package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/apexlabs/apex-backend/internal/logger"
	"github.com/apexlabs/apex-backend/internal/requestdata"
	"github.com/apexlabs/apex-backend/internal/services"
	"github.com/apexlabs/apex-backend/internal/types"
)

type fakeImageService struct {
	saveUploadFn func(ctx context.Context, userID uuid.UUID, originalName string, data []byte) (*types.SourceImage, error)
	summaries    []*services.UserImageSummary
}

func (f *fakeImageService) SaveUpload(ctx context.Context, userID uuid.UUID, originalName string, data []byte) (*types.SourceImage, error) {
	return f.saveUploadFn(ctx, userID, originalName, data)
}

func (f *fakeImageService) GetSourceImage(ctx context.Context, userID, imageID uuid.UUID) (*types.SourceImage, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeImageService) GetIsometric(ctx context.Context, userID, isometricID uuid.UUID) (*types.IsometricImage, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeImageService) GetExplanation(ctx context.Context, userID, explanationID uuid.UUID) (*types.Explanation, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeImageService) MarkProcessed(ctx context.Context, imageID uuid.UUID) error {
	return nil
}

func (f *fakeImageService) ListUserImages(ctx context.Context, userID uuid.UUID) ([]*services.UserImageSummary, error) {
	return f.summaries, nil
}

type fakePipelineService struct {
	runFn func(ctx context.Context, source *types.SourceImage) *services.PipelineResult
}

func (f *fakePipelineService) Run(ctx context.Context, source *types.SourceImage) *services.PipelineResult {
	return f.runFn(ctx, source)
}

func (f *fakePipelineService) GenerateIsometric(ctx context.Context, userID uuid.UUID, source *types.SourceImage) (*types.IsometricImage, error) {
	return nil, errors.New("not used")
}

func (f *fakePipelineService) GenerateExplanation(ctx context.Context, userID uuid.UUID, source *types.SourceImage, isometricID uuid.UUID) (*types.Explanation, error) {
	return nil, errors.New("not used")
}

func (f *fakePipelineService) GenerateQuiz(ctx context.Context, userID uuid.UUID, explanation *types.Explanation, numQuestions int) (*types.Quiz, error) {
	return nil, errors.New("not used")
}

type fakeModel3DService struct {
	checkStatusFn func(ctx context.Context, userID uuid.UUID, taskID string) (*services.Model3DStatusResult, error)
}

func (f *fakeModel3DService) Submit(ctx context.Context, userID, sourceImageID, isometricID uuid.UUID, imagePath, prompt string) (*types.Model3DTask, error) {
	return nil, errors.New("not used")
}

func (f *fakeModel3DService) CheckStatus(ctx context.Context, userID uuid.UUID, taskID string) (*services.Model3DStatusResult, error) {
	return f.checkStatusFn(ctx, userID, taskID)
}

func testHandler(t *testing.T, image services.ImageService, pipeline services.PipelineService, model3D services.Model3DService) *ImageHandler {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	return NewImageHandler(log, image, pipeline, model3D)
}

func authedContext(t *testing.T, w *httptest.ResponseRecorder, req *http.Request, userID uuid.UUID) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(w)
	ctx := requestdata.WithRequestData(req.Context(), &requestdata.RequestData{UserID: userID})
	c.Request = req.WithContext(ctx)
	return c
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadCompletePartialFailureStillCreated(t *testing.T) {
	userID := uuid.New()
	source := &types.SourceImage{ID: uuid.New(), UserID: userID, FileName: "heart.png", FilePath: "data/uploads/heart.png"}

	imageSvc := &fakeImageService{
		saveUploadFn: func(ctx context.Context, uid uuid.UUID, originalName string, data []byte) (*types.SourceImage, error) {
			if uid != userID {
				t.Errorf("upload attributed to wrong user")
			}
			return source, nil
		},
	}
	pipelineSvc := &fakePipelineService{
		runFn: func(ctx context.Context, src *types.SourceImage) *services.PipelineResult {
			return &services.PipelineResult{
				Success:   true,
				Image:     src,
				Isometric: &types.IsometricImage{ID: uuid.New(), FilePath: "data/isometric/iso.png"},
				Model3D:   &types.Model3DTask{ID: uuid.New(), TaskID: "remote-task-1", Status: types.Model3DStatusPending},
				Errors:    map[string]string{"explanation": "generation failed", "quiz": "explanation unavailable"},
			}
		},
	}
	h := testHandler(t, imageSvc, pipelineSvc, &fakeModel3DService{})

	body, contentType := multipartBody(t, "file", "heart.png", []byte("image bytes"))
	req := httptest.NewRequest(http.MethodPost, "/image/upload-complete", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.UploadComplete(authedContext(t, w, req, userID))

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201", w.Code)
	}
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			ImageID          uuid.UUID         `json:"image_id"`
			Model3DTaskID    string            `json:"model3d_task_id"`
			Model3DStatus    string            `json:"model3d_status"`
			ProcessingStatus map[string]bool   `json:"processing_status"`
			StageErrors      map[string]string `json:"stage_errors"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not decodable: %v", err)
	}
	if !resp.Success {
		t.Fatalf("ingestion-level success lost")
	}
	if !strings.Contains(resp.Message, "partial") {
		t.Fatalf("message %q does not flag partial results", resp.Message)
	}
	if resp.Data.ImageID != source.ID {
		t.Fatalf("wrong image id in response")
	}
	if resp.Data.Model3DTaskID != "remote-task-1" || resp.Data.Model3DStatus != "pending" {
		t.Fatalf("3d submission not surfaced: %+v", resp.Data)
	}
	ps := resp.Data.ProcessingStatus
	if !ps["isometric"] || ps["explanation"] || ps["quiz"] || !ps["model3d"] {
		t.Fatalf("unexpected processing status %v", ps)
	}
	if resp.Data.StageErrors["explanation"] == "" {
		t.Fatalf("stage errors missing from response")
	}
}

func TestUploadCompleteRequiresFile(t *testing.T) {
	h := testHandler(t, &fakeImageService{}, &fakePipelineService{}, &fakeModel3DService{})

	req := httptest.NewRequest(http.MethodPost, "/image/upload-complete", strings.NewReader(""))
	w := httptest.NewRecorder()
	h.UploadComplete(authedContext(t, w, req, uuid.New()))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
}

func TestModel3DStatusRequiresTaskID(t *testing.T) {
	h := testHandler(t, &fakeImageService{}, &fakePipelineService{}, &fakeModel3DService{})

	req := httptest.NewRequest(http.MethodPost, "/image/3d/status", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Model3DStatus(authedContext(t, w, req, uuid.New()))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
}

func TestModel3DStatusUnknownTask(t *testing.T) {
	model3D := &fakeModel3DService{
		checkStatusFn: func(ctx context.Context, userID uuid.UUID, taskID string) (*services.Model3DStatusResult, error) {
			return nil, gorm.ErrRecordNotFound
		},
	}
	h := testHandler(t, &fakeImageService{}, &fakePipelineService{}, model3D)

	req := httptest.NewRequest(http.MethodPost, "/image/3d/status", strings.NewReader(`{"task_id":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Model3DStatus(authedContext(t, w, req, uuid.New()))

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}
}

func TestModel3DStatusCompleted(t *testing.T) {
	task := &types.Model3DTask{ID: uuid.New(), TaskID: "remote-task-1", Status: types.Model3DStatusCompleted}
	model3D := &fakeModel3DService{
		checkStatusFn: func(ctx context.Context, userID uuid.UUID, taskID string) (*services.Model3DStatusResult, error) {
			return &services.Model3DStatusResult{
				Task:       task,
				Status:     task.Status,
				LocalFiles: map[string]string{"model_file": "data/3d_models/model.glb"},
				Message:    "3d model generated successfully",
			}, nil
		},
	}
	h := testHandler(t, &fakeImageService{}, &fakePipelineService{}, model3D)

	req := httptest.NewRequest(http.MethodPost, "/image/3d/status", strings.NewReader(`{"task_id":"remote-task-1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Model3DStatus(authedContext(t, w, req, uuid.New()))

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Status     string            `json:"status"`
			LocalFiles map[string]string `json:"local_files"`
			TaskID     string            `json:"task_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not decodable: %v", err)
	}
	if !resp.Success || resp.Data.Status != "completed" || resp.Data.TaskID != "remote-task-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Data.LocalFiles["model_file"] == "" {
		t.Fatalf("local files missing from response")
	}
}

func TestListUserImages(t *testing.T) {
	imageSvc := &fakeImageService{
		summaries: []*services.UserImageSummary{
			{Image: &types.SourceImage{ID: uuid.New(), FileName: "heart.png"}},
		},
	}
	h := testHandler(t, imageSvc, &fakePipelineService{}, &fakeModel3DService{})

	req := httptest.NewRequest(http.MethodGet, "/image/user/images", nil)
	w := httptest.NewRecorder()
	h.ListUserImages(authedContext(t, w, req, uuid.New()))

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Images []json.RawMessage `json:"images"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not decodable: %v", err)
	}
	if !resp.Success || len(resp.Data.Images) != 1 {
		t.Fatalf("unexpected response body %s", w.Body.String())
	}
}
