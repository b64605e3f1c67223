/**
 * Embedding provider client.
 *
 * A typed HTTP client in the same shape as the engine's other external
 * service clients: one constructor taking a base URL and API key, one
 * http.Client with a request timeout, private request/response DTOs,
 * every failure wrapped with fmt.Errorf("...: %w", err).
 */

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nexusdoc/docengine/internal/logging"
)

const maxCharsPerText = 16000

// Client generates embeddings through a VoyageAI-shaped batch API.
type Client struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponseItem struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Data  []embeddingResponseItem `json:"data"`
	Model string                  `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// New creates an embedding client. dimensions is the model's expected
// output width, used to validate every response.
func New(apiKey, baseURL, model string, dimensions int, logger *logging.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding provider api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.voyageai.com/v1/embeddings"
	}
	if model == "" {
		model = "voyage-3"
	}
	if dimensions <= 0 {
		dimensions = 1024
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// GenerateBatch embeds up to 100 texts per underlying API call, falling
// back to one-at-a-time calls if a batch call fails.
func (c *Client) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	const batchSize = 100
	out := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		embeddings, err := c.generateBatchInternal(ctx, batch)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("batch embedding call failed, falling back to individual calls",
					"batchStart", i, "batchEnd", end, "error", err)
			}
			for j, text := range batch {
				one, err := c.generateOne(ctx, text)
				if err != nil {
					return nil, fmt.Errorf("failed to generate embedding for text %d: %w", i+j, err)
				}
				out = append(out, one)
			}
			continue
		}
		out = append(out, embeddings...)
	}

	return out, nil
}

func truncate(text string) string {
	if len(text) > maxCharsPerText {
		return text[:maxCharsPerText]
	}
	return text
}

func (c *Client) generateOne(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.generateBatchInternal(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
	}
	return embeddings[0], nil
}

func (c *Client) generateBatchInternal(ctx context.Context, texts []string) ([][]float32, error) {
	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = truncate(t)
	}

	reqBody := embeddingRequest{Input: truncated, Model: c.model}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected embedding count: got %d, expected %d", len(parsed.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("invalid embedding index %d", item.Index)
		}
		if len(item.Embedding) != c.dimensions {
			return nil, fmt.Errorf("unexpected embedding dimensions for index %d: got %d, expected %d",
				item.Index, len(item.Embedding), c.dimensions)
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}
