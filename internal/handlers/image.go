package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/apexlabs/apex-backend/internal/logger"
	"github.com/apexlabs/apex-backend/internal/requestdata"
	"github.com/apexlabs/apex-backend/internal/services"
)

type ImageHandler struct {
	log             *logger.Logger
	imageService    services.ImageService
	pipelineService services.PipelineService
	model3DService  services.Model3DService
}

func NewImageHandler(
	log *logger.Logger,
	imageService services.ImageService,
	pipelineService services.PipelineService,
	model3DService services.Model3DService,
) *ImageHandler {
	return &ImageHandler{
		log:             log.With("handler", "ImageHandler"),
		imageService:    imageService,
		pipelineService: pipelineService,
		model3DService:  model3DService,
	}
}

// UploadComplete ingests the uploaded file and runs the full generation
// pipeline. Partial stage failures still return 201 — the success flag
// and processing_status breakdown carry the nuance.
func (ih *ImageHandler) UploadComplete(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("no request identity"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_file", errors.New("multipart field 'file' is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}

	source, err := ih.imageService.SaveUpload(c.Request.Context(), rd.UserID, fileHeader.Filename, data)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "ingestion_failed", err)
		return
	}

	result := ih.pipelineService.Run(c.Request.Context(), source)

	payload := gin.H{
		"image_id":   source.ID,
		"image_path": source.FilePath,
		"processing_status": gin.H{
			"isometric":   result.StageOK("isometric"),
			"explanation": result.StageOK("explanation"),
			"quiz":        result.StageOK("quiz"),
			"model3d":     result.StageOK("model3d"),
		},
	}
	if result.Isometric != nil {
		payload["isometric_id"] = result.Isometric.ID
		payload["isometric_path"] = result.Isometric.FilePath
	}
	if result.Explanation != nil {
		payload["explanation_id"] = result.Explanation.ID
		payload["explanation_path"] = result.Explanation.FilePath
	}
	if result.Quiz != nil {
		payload["quiz_id"] = result.Quiz.ID
		payload["quiz_path"] = result.Quiz.FilePath
	}
	if result.Model3D != nil {
		payload["model3d_id"] = result.Model3D.ID
		payload["model3d_task_id"] = result.Model3D.TaskID
		payload["model3d_status"] = result.Model3D.Status
	}
	if len(result.Errors) > 0 {
		payload["stage_errors"] = result.Errors
	}

	message := "image processed"
	allOK := result.Success
	for _, stage := range []string{"isometric", "explanation", "quiz", "model3d"} {
		if !result.StageOK(stage) {
			allOK = false
		}
	}
	if !allOK {
		message = "image processed with partial results"
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": result.Success,
		"message": message,
		"data":    payload,
	})
}

// Model3DStatus polls the remote reconstruction job and reconciles the
// stored task record.
func (ih *ImageHandler) Model3DStatus(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("no request identity"))
		return
	}
	var req struct {
		TaskID    string `json:"task_id"`
		Model3DID string `json:"model3d_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.TaskID == "" {
		RespondError(c, http.StatusBadRequest, "missing_task_id", errors.New("task_id is required"))
		return
	}

	result, err := ih.model3DService.CheckStatus(c.Request.Context(), rd.UserID, req.TaskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			RespondError(c, http.StatusNotFound, "task_not_found", fmt.Errorf("no 3d task with id %s", req.TaskID))
			return
		}
		RespondError(c, http.StatusBadGateway, "status_unavailable", err)
		return
	}
	RespondOK(c, gin.H{
		"success": true,
		"data": gin.H{
			"status":        result.Status,
			"local_files":   result.LocalFiles,
			"model3d_files": result.RemoteFiles,
			"task_id":       result.Task.TaskID,
			"model3d_id":    result.Task.ID,
			"message":       result.Message,
		},
	})
}

// GenerateIsometric re-runs the isometric stage for one stored image.
func (ih *ImageHandler) GenerateIsometric(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("no request identity"))
		return
	}
	var req struct {
		ImageID uuid.UUID `json:"image_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ImageID == uuid.Nil {
		RespondError(c, http.StatusBadRequest, "missing_image_id", errors.New("image_id is required"))
		return
	}
	source, err := ih.imageService.GetSourceImage(c.Request.Context(), rd.UserID, req.ImageID)
	if err != nil {
		RespondError(c, http.StatusNotFound, "image_not_found", err)
		return
	}
	isometric, err := ih.pipelineService.GenerateIsometric(c.Request.Context(), rd.UserID, source)
	if err != nil {
		RespondError(c, http.StatusBadGateway, "isometric_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"success": true,
		"data": gin.H{
			"isometric_id":   isometric.ID,
			"isometric_path": isometric.FilePath,
		},
	})
}

// Submit3D submits the image-to-3d job for an existing isometric
// rendering without running the rest of the pipeline.
func (ih *ImageHandler) Submit3D(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("no request identity"))
		return
	}
	var req struct {
		ImageID     uuid.UUID `json:"image_id"`
		IsometricID uuid.UUID `json:"isometric_id"`
		Prompt      string    `json:"prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.IsometricID == uuid.Nil {
		RespondError(c, http.StatusBadRequest, "missing_isometric_id", errors.New("isometric_id is required"))
		return
	}
	isometric, err := ih.imageService.GetIsometric(c.Request.Context(), rd.UserID, req.IsometricID)
	if err != nil {
		RespondError(c, http.StatusNotFound, "isometric_not_found", err)
		return
	}
	task, err := ih.model3DService.Submit(c.Request.Context(), rd.UserID, isometric.SourceImageID, isometric.ID, isometric.FilePath, req.Prompt)
	if err != nil {
		RespondError(c, http.StatusBadGateway, "submission_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"success": true,
		"data": gin.H{
			"model3d_id": task.ID,
			"task_id":    task.TaskID,
			"status":     task.Status,
		},
	})
}

// GenerateExplanation re-runs the explanation stage for one stored
// image.
func (ih *ImageHandler) GenerateExplanation(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("no request identity"))
		return
	}
	var req struct {
		ImageID     uuid.UUID `json:"image_id"`
		IsometricID uuid.UUID `json:"isometric_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ImageID == uuid.Nil {
		RespondError(c, http.StatusBadRequest, "missing_image_id", errors.New("image_id is required"))
		return
	}
	source, err := ih.imageService.GetSourceImage(c.Request.Context(), rd.UserID, req.ImageID)
	if err != nil {
		RespondError(c, http.StatusNotFound, "image_not_found", err)
		return
	}
	explanation, err := ih.pipelineService.GenerateExplanation(c.Request.Context(), rd.UserID, source, req.IsometricID)
	if err != nil {
		RespondError(c, http.StatusBadGateway, "explanation_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"success": true,
		"data": gin.H{
			"explanation_id":   explanation.ID,
			"explanation_path": explanation.FilePath,
		},
	})
}

// GenerateQuiz re-runs the quiz stage from an existing explanation.
func (ih *ImageHandler) GenerateQuiz(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("no request identity"))
		return
	}
	var req struct {
		ExplanationID uuid.UUID `json:"explanation_id"`
		NumQuestions  int       `json:"num_questions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ExplanationID == uuid.Nil {
		RespondError(c, http.StatusBadRequest, "missing_explanation_id", errors.New("explanation_id is required"))
		return
	}
	explanation, err := ih.imageService.GetExplanation(c.Request.Context(), rd.UserID, req.ExplanationID)
	if err != nil {
		RespondError(c, http.StatusNotFound, "explanation_not_found", err)
		return
	}
	quiz, err := ih.pipelineService.GenerateQuiz(c.Request.Context(), rd.UserID, explanation, req.NumQuestions)
	if err != nil {
		RespondError(c, http.StatusBadGateway, "quiz_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"success": true,
		"data": gin.H{
			"quiz_id":        quiz.ID,
			"quiz_path":      quiz.FilePath,
			"question_count": quiz.QuestionCount,
		},
	})
}

// ListUserImages returns every source image the caller owns with its
// derived artifacts.
func (ih *ImageHandler) ListUserImages(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("no request identity"))
		return
	}
	summaries, err := ih.imageService.ListUserImages(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"success": true,
		"data":    gin.H{"images": summaries},
	})
}
