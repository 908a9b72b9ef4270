package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apexlabs/apex-backend/internal/logger"
)

// TrellisClient wraps the asynchronous image-to-3D reconstruction
// service. Submission returns a remote task handle; completion is
// discovered only by polling GetTaskStatus.
type TrellisClient interface {
	CreateImageTo3DTask(ctx context.Context, imageBytes []byte, prompt string) (string, error)
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
}

// TaskStatus is the remote view of a reconstruction job. Output is
// nil until the job completes; on completion it maps output kinds
// (model_file, no_background_image) to download URLs.
type TaskStatus struct {
	Status string
	Output map[string]string
	Error  string
}

type TrellisConfig struct {
	APIKey  string
	BaseURL string
	// MaxImageDim bounds both dimensions of the submitted image.
	MaxImageDim int
	Timeout     time.Duration
}

type trellisClient struct {
	log        *logger.Logger
	cfg        TrellisConfig
	httpClient *http.Client
}

func NewTrellisClient(log *logger.Logger, cfg TrellisConfig) (TrellisClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing reconstruction service api key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.piapi.ai/api/v1/task"
	}
	if cfg.MaxImageDim <= 0 {
		cfg.MaxImageDim = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &trellisClient{
		log:        log.With("service", "TrellisClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type trellisSubmitRequest struct {
	Model    string         `json:"model"`
	TaskType string         `json:"task_type"`
	Input    map[string]any `json:"input"`
	Config   map[string]any `json:"config"`
}

type trellisResponse struct {
	Code int `json:"code"`
	Data struct {
		TaskID string            `json:"task_id"`
		Status string            `json:"status"`
		Output map[string]string `json:"output"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"data"`
	Message string `json:"message"`
}

func (c *trellisClient) CreateImageTo3DTask(ctx context.Context, imageBytes []byte, prompt string) (string, error) {
	prepared, err := prepareImageForSubmission(imageBytes, c.cfg.MaxImageDim)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	input := map[string]any{
		"image":                  base64.StdEncoding.EncodeToString(prepared),
		"ss_sampling_steps":      50,
		"slat_sampling_steps":    50,
		"ss_guidance_strength":   7.5,
		"slat_guidance_strength": 3,
		"seed":                   0,
	}
	if prompt != "" {
		input["prompt"] = prompt
	}
	req := trellisSubmitRequest{
		Model:    "Qubico/trellis",
		TaskType: "image-to-3d",
		Input:    input,
		// The webhook slot is reserved but unused: completion is
		// observed by polling only.
		Config: map[string]any{
			"webhook_config": map[string]string{"endpoint": "", "secret": ""},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrSubmissionFailed, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, &buf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrSubmissionFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: http %d: %s", ErrSubmissionFailed, resp.StatusCode, string(raw))
	}

	var out trellisResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrSubmissionFailed, err)
	}
	if out.Code != 200 || out.Data.TaskID == "" {
		return "", fmt.Errorf("%w: code=%d message=%q", ErrSubmissionFailed, out.Code, out.Message)
	}

	c.log.Info("Image-to-3D task created", "remote_task_id", out.Data.TaskID)
	return out.Data.TaskID, nil
}

func (c *trellisClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	url := fmt.Sprintf("%s/%s", c.cfg.BaseURL, taskID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatusUnavailable, err)
	}
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatusUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrStatusUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http %d: %s", ErrStatusUnavailable, resp.StatusCode, string(raw))
	}

	var out trellisResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrStatusUnavailable, err)
	}
	return &TaskStatus{
		Status: out.Data.Status,
		Output: out.Data.Output,
		Error:  out.Data.Error.Message,
	}, nil
}
