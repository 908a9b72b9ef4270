package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/apexlabs/apex-backend/internal/logger"
)

// GenAIClient wraps the remote multimodal generation service: the
// image-to-image style transform and both text generation calls the
// pipeline needs. It is stateless; credentials and endpoints are
// injected once at construction.
type GenAIClient interface {
	// GenerateIsometric runs the streaming image generation call and
	// returns the first decodable image payload as PNG bytes.
	GenerateIsometric(ctx context.Context, imageBytes []byte, mimeType string) ([]byte, error)
	// DescribeImage produces the long-form educational description of
	// the image.
	DescribeImage(ctx context.Context, imageBytes []byte, mimeType string) (string, error)
	// GenerateText is a plain text-to-text call, used for the quiz
	// question text.
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type GenAIConfig struct {
	APIKey     string
	BaseURL    string
	ImageModel string
	TextModel  string
	Timeout    time.Duration
}

type genAIClient struct {
	log        *logger.Logger
	cfg        GenAIConfig
	httpClient *http.Client
}

const isometricPrompt = "Generate isometric view of this Image"

const describePrompt = `You are an educational assistant for students.

Given the image below, do the following:
1. Identify the object present in the image.
2. Describe what it is.
3. Explain its structure in detail.
4. Explain its main functions.
5. Provide any additional relevant information (like its role in the human body, diseases related to it, or interesting facts).

Be detailed and educational, using clear language suitable for high school and undergraduate students. response must be stick to these 5 points mentioned above, no extra text`

func NewGenAIClient(log *logger.Logger, cfg GenAIConfig) (GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing generation service api key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "gemini-2.0-flash-preview-image-generation"
	}
	if cfg.TextModel == "" {
		cfg.TextModel = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &genAIClient{
		log:        log.With("service", "GenAIClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// ---- wire types ----

type genaiPart struct {
	Text       string           `json:"text,omitempty"`
	InlineData *genaiInlineData `json:"inline_data,omitempty"`
}

type genaiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type genaiContent struct {
	Role  string      `json:"role,omitempty"`
	Parts []genaiPart `json:"parts"`
}

type genaiRequest struct {
	Contents         []genaiContent `json:"contents"`
	GenerationConfig map[string]any `json:"generationConfig,omitempty"`
}

type genaiResponseChunk struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text,omitempty"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *genAIClient) GenerateIsometric(ctx context.Context, imageBytes []byte, mimeType string) ([]byte, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	req := genaiRequest{
		Contents: []genaiContent{{
			Role: "user",
			Parts: []genaiPart{
				{Text: isometricPrompt},
				{InlineData: &genaiInlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(imageBytes),
				}},
			},
		}},
		GenerationConfig: map[string]any{
			"responseModalities": []string{"IMAGE", "TEXT"},
		},
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?key=%s", c.cfg.BaseURL, c.cfg.ImageModel, c.cfg.APIKey)
	resp, err := c.post(ctx, url, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The stream is a JSON array of response chunks. The service is
	// known to emit the same inline payload more than once, so each
	// payload is deduplicated by content hash before decoding.
	dec := json.NewDecoder(resp.Body)
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode stream open: %w", err)
	}

	seen := map[[sha256.Size]byte]struct{}{}
	for dec.More() {
		var chunk genaiResponseChunk
		if err := dec.Decode(&chunk); err != nil {
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}
		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if part.InlineData == nil || part.InlineData.Data == "" {
					if part.Text != "" {
						c.log.Debug("Stream text part", "text", part.Text)
					}
					continue
				}
				hash := sha256.Sum256([]byte(part.InlineData.Data))
				if _, dup := seen[hash]; dup {
					continue
				}
				seen[hash] = struct{}{}

				if pngBytes, ok := decodeInlineImage(part.InlineData.Data); ok {
					return pngBytes, nil
				}
				c.log.Warn("Stream emitted undecodable image payload, skipping")
			}
		}
	}
	return nil, ErrNoOutputProduced
}

// decodeInlineImage tries the payload as base64-encoded image bytes
// first, then as raw bytes (some stream revisions double-encode, some
// do not). A successful decode is re-encoded to PNG.
func decodeInlineImage(data string) ([]byte, bool) {
	if raw, err := base64.StdEncoding.DecodeString(data); err == nil {
		if out, ok := reencodePNG(raw); ok {
			return out, true
		}
	}
	return reencodePNG([]byte(data))
}

func reencodePNG(raw []byte) ([]byte, bool) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, false
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

func (c *genAIClient) DescribeImage(ctx context.Context, imageBytes []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	req := genaiRequest{
		Contents: []genaiContent{{
			Role: "user",
			Parts: []genaiPart{
				{InlineData: &genaiInlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(imageBytes),
				}},
				{Text: describePrompt},
			},
		}},
	}
	return c.generateText(ctx, req)
}

func (c *genAIClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	req := genaiRequest{
		Contents: []genaiContent{{
			Role:  "user",
			Parts: []genaiPart{{Text: prompt}},
		}},
	}
	return c.generateText(ctx, req)
}

func (c *genAIClient) generateText(ctx context.Context, req genaiRequest) (string, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.cfg.TextModel, c.cfg.APIKey)
	resp, err := c.post(ctx, url, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out genaiResponseChunk
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGenerationFailed, err)
	}
	var sb strings.Builder
	for _, cand := range out.Candidates {
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty response text", ErrGenerationFailed)
	}
	return text, nil
}

func (c *genAIClient) post(ctx context.Context, url string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrGenerationFailed, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: http %d: %s", ErrGenerationFailed, resp.StatusCode, string(raw))
	}
	return resp, nil
}
