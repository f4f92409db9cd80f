package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxImageBytes caps how much of a generator response we are willing to read.
const maxImageBytes = 32 << 20

// ImageClient talks to the upstream image generation API. The API takes a
// prompt and dimensions and answers either with raw image bytes or with a
// JSON body carrying the image as base64.
type ImageClient struct {
	http   *http.Client
	apiURL string
	apiKey string
}

func NewImageClient(httpClient *http.Client, apiURL, apiKey string) *ImageClient {
	return &ImageClient{
		http:   httpClient,
		apiURL: strings.TrimSpace(apiURL),
		apiKey: strings.TrimSpace(apiKey),
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type generateResponse struct {
	Image string `json:"image"`
}

func (c *ImageClient) GenerateImage(ctx context.Context, prompt string, width, height int) ([]byte, string, error) {
	if c.http == nil {
		return nil, "", fmt.Errorf("http client is nil")
	}
	if c.apiURL == "" {
		return nil, "", fmt.Errorf("generation api url is empty")
	}

	payload, err := json.Marshal(generateRequest{Prompt: prompt, Width: width, Height: height})
	if err != nil {
		return nil, "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("call generation api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read generation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("generation api status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "image/") {
		if len(body) == 0 {
			return nil, "", fmt.Errorf("generation api returned an empty image")
		}
		return body, contentType, nil
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, "", fmt.Errorf("decode generation response: %w", err)
	}
	if decoded.Image == "" {
		return nil, "", fmt.Errorf("generation api returned no image")
	}

	image, err := base64.StdEncoding.DecodeString(decoded.Image)
	if err != nil {
		return nil, "", fmt.Errorf("decode generation image: %w", err)
	}
	return image, "image/png", nil
}
