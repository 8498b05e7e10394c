package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dskvich/perplexed/pkg/domain"
)

const defaultImageModel = "openai/dall-e-3"

type imagesGenerationsRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imagesGenerationsResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage produces one image for prompt and returns it as a data URL
// the browser can render directly.
func (c *client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return "", domain.ErrNotConfigured
	}

	payload, err := json.Marshal(imagesGenerationsRequest{
		Model:          c.imageModel,
		Prompt:         prompt,
		N:              1,
		Size:           "1024x1024",
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generations", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)

		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return "", domain.ErrRateLimited
		case http.StatusPaymentRequired:
			return "", domain.ErrUsageLimited
		}
		return "", fmt.Errorf("failed to generate image: status %d: %s", resp.StatusCode, body)
	}

	var imageResponse imagesGenerationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&imageResponse); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if len(imageResponse.Data) == 0 || imageResponse.Data[0].B64JSON == "" {
		return "", fmt.Errorf("no image in response")
	}

	return "data:image/png;base64," + imageResponse.Data[0].B64JSON, nil
}
