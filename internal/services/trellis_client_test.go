package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateImageTo3DTaskPayload(t *testing.T) {
	var got trellisSubmitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "trellis-key" {
			t.Errorf("missing x-api-key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("request body was not json: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":200,"data":{"task_id":"task-123","status":"pending"}}`)
	}))
	defer srv.Close()

	client, err := NewTrellisClient(testLogger(t), TrellisConfig{APIKey: "trellis-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewTrellisClient: %v", err)
	}
	taskID, err := client.CreateImageTo3DTask(context.Background(), tinyPNG(t), "")
	if err != nil {
		t.Fatalf("CreateImageTo3DTask: %v", err)
	}
	if taskID != "task-123" {
		t.Fatalf("got task id %q, want %q", taskID, "task-123")
	}

	if got.Model != "Qubico/trellis" {
		t.Fatalf("got model %q, want %q", got.Model, "Qubico/trellis")
	}
	if got.TaskType != "image-to-3d" {
		t.Fatalf("got task type %q, want %q", got.TaskType, "image-to-3d")
	}
	if got.Input["image"] == "" {
		t.Fatalf("submission payload missing image data")
	}
	if _, ok := got.Input["prompt"]; ok {
		t.Fatalf("empty prompt should be omitted from input")
	}
	for _, key := range []string{"ss_sampling_steps", "slat_sampling_steps", "ss_guidance_strength", "slat_guidance_strength", "seed"} {
		if _, ok := got.Input[key]; !ok {
			t.Fatalf("submission payload missing %q", key)
		}
	}
	webhook, ok := got.Config["webhook_config"].(map[string]any)
	if !ok {
		t.Fatalf("submission payload missing webhook_config")
	}
	if webhook["endpoint"] != "" {
		t.Fatalf("webhook endpoint should stay empty, got %v", webhook["endpoint"])
	}
}

func TestCreateImageTo3DTaskIncludesPrompt(t *testing.T) {
	var got trellisSubmitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":200,"data":{"task_id":"task-456","status":"pending"}}`)
	}))
	defer srv.Close()

	client, err := NewTrellisClient(testLogger(t), TrellisConfig{APIKey: "trellis-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewTrellisClient: %v", err)
	}
	if _, err := client.CreateImageTo3DTask(context.Background(), tinyPNG(t), "a heart model"); err != nil {
		t.Fatalf("CreateImageTo3DTask: %v", err)
	}
	if got.Input["prompt"] != "a heart model" {
		t.Fatalf("got prompt %v, want %q", got.Input["prompt"], "a heart model")
	}
}

func TestCreateImageTo3DTaskRejectsErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":500,"message":"internal error"}`)
	}))
	defer srv.Close()

	client, err := NewTrellisClient(testLogger(t), TrellisConfig{APIKey: "trellis-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewTrellisClient: %v", err)
	}
	_, err = client.CreateImageTo3DTask(context.Background(), tinyPNG(t), "")
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("got error %v, want ErrSubmissionFailed", err)
	}
}

func TestCreateImageTo3DTaskRejectsUndecodableImage(t *testing.T) {
	client, err := NewTrellisClient(testLogger(t), TrellisConfig{APIKey: "trellis-key", BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewTrellisClient: %v", err)
	}
	_, err = client.CreateImageTo3DTask(context.Background(), []byte("not an image"), "")
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("got error %v, want ErrSubmissionFailed", err)
	}
}

func TestGetTaskStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/task-123" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":200,"data":{"task_id":"task-123","status":"completed","output":{"model_file":"https://cdn.example.com/model.glb","no_background_image":"https://cdn.example.com/clean.png"}}}`)
	}))
	defer srv.Close()

	client, err := NewTrellisClient(testLogger(t), TrellisConfig{APIKey: "trellis-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewTrellisClient: %v", err)
	}
	status, err := client.GetTaskStatus(context.Background(), "task-123")
	if err != nil {
		t.Fatalf("GetTaskStatus: %v", err)
	}
	if status.Status != "completed" {
		t.Fatalf("got status %q, want %q", status.Status, "completed")
	}
	if len(status.Output) != 2 {
		t.Fatalf("got %d outputs, want 2", len(status.Output))
	}
}

func TestGetTaskStatusUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewTrellisClient(testLogger(t), TrellisConfig{APIKey: "trellis-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewTrellisClient: %v", err)
	}
	_, err = client.GetTaskStatus(context.Background(), "task-123")
	if !errors.Is(err, ErrStatusUnavailable) {
		t.Fatalf("got error %v, want ErrStatusUnavailable", err)
	}
}
