package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/apexlabs/apex-backend/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	return log
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

func imageChunk(payload string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":%q}}]}}]}`, payload)
}

func newStreamServer(t *testing.T, chunks []string, requestCount *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestCount != nil {
			*requestCount++
		}
		if !strings.Contains(r.URL.Path, ":streamGenerateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "[%s]", strings.Join(chunks, ","))
	}))
}

func TestGenerateIsometricDeduplicatesIdenticalChunks(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString(tinyPNG(t))
	var requests int
	srv := newStreamServer(t, []string{imageChunk(payload), imageChunk(payload)}, &requests)
	defer srv.Close()

	client, err := NewGenAIClient(testLogger(t), GenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGenAIClient: %v", err)
	}
	out, err := client.GenerateIsometric(context.Background(), []byte("input"), "image/png")
	if err != nil {
		t.Fatalf("GenerateIsometric: %v", err)
	}
	if requests != 1 {
		t.Fatalf("server saw %d requests, want 1", requests)
	}
	decoded, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a decodable image: %v", err)
	}
	if decoded.Bounds().Dx() != 2 || decoded.Bounds().Dy() != 2 {
		t.Fatalf("unexpected output bounds %v", decoded.Bounds())
	}
}

func TestGenerateIsometricSkipsUndecodableThenDecodes(t *testing.T) {
	junk := base64.StdEncoding.EncodeToString([]byte("not an image at all"))
	good := base64.StdEncoding.EncodeToString(tinyPNG(t))
	srv := newStreamServer(t, []string{imageChunk(junk), imageChunk(junk), imageChunk(good)}, nil)
	defer srv.Close()

	client, err := NewGenAIClient(testLogger(t), GenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGenAIClient: %v", err)
	}
	out, err := client.GenerateIsometric(context.Background(), []byte("input"), "image/png")
	if err != nil {
		t.Fatalf("GenerateIsometric: %v", err)
	}
	if _, _, err := image.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("output is not a decodable image: %v", err)
	}
}

func TestGenerateIsometricNoOutput(t *testing.T) {
	textOnly := `{"candidates":[{"content":{"parts":[{"text":"no image for you"}]}}]}`
	srv := newStreamServer(t, []string{textOnly}, nil)
	defer srv.Close()

	client, err := NewGenAIClient(testLogger(t), GenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGenAIClient: %v", err)
	}
	_, err = client.GenerateIsometric(context.Background(), []byte("input"), "image/png")
	if !errors.Is(err, ErrNoOutputProduced) {
		t.Fatalf("got error %v, want ErrNoOutputProduced", err)
	}
}

func TestGenerateTextConcatenatesParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("request body was not json: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"world"}]}}]}`)
	}))
	defer srv.Close()

	client, err := NewGenAIClient(testLogger(t), GenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGenAIClient: %v", err)
	}
	text, err := client.GenerateText(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("got %q, want %q", text, "Hello world")
	}
}

func TestGenerateTextUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewGenAIClient(testLogger(t), GenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGenAIClient: %v", err)
	}
	_, err = client.GenerateText(context.Background(), "say hello")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("got error %v, want ErrGenerationFailed", err)
	}
}

func TestDescribeImageEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	client, err := NewGenAIClient(testLogger(t), GenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGenAIClient: %v", err)
	}
	_, err = client.DescribeImage(context.Background(), []byte("input"), "image/png")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("got error %v, want ErrGenerationFailed", err)
	}
}

func TestNewGenAIClientRequiresKey(t *testing.T) {
	if _, err := NewGenAIClient(testLogger(t), GenAIConfig{}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}
