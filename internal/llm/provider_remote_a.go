/**
 * Remote provider A: an OpenAI-family chat/completions-shaped API.
 *
 * Typed HTTP client in the same shape as the engine's other external
 * service clients (see clients.ArtifactClient in the teacher): a
 * constructor taking base URL and API key, one http.Client with a request
 * timeout, private request/response DTOs, every failure wrapped and
 * reclassified at the call boundary.
 */

package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nexusdoc/docengine/internal/errs"
)

// RemoteAProvider talks to a chat-completions-shaped API.
type RemoteAProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	models     []string
}

// NewRemoteAProvider constructs the provider. An empty apiKey makes
// Available() report false without failing construction, so the Manager
// can still enumerate the provider and skip it.
func NewRemoteAProvider(apiKey, baseURL string) *RemoteAProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &RemoteAProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		models:     []string{"standard-fast-model", "premium-model", "cheap-fast-model"},
	}
}

func (p *RemoteAProvider) Name() string             { return "remote-a" }
func (p *RemoteAProvider) Available() bool          { return p.apiKey != "" }
func (p *RemoteAProvider) SupportedModels() []string { return p.models }

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *chatImageRef   `json:"image_url,omitempty"`
}

type chatImageRef struct {
	URL string `json:"url"`
}

// buildContent translates message parts faithfully: text-only messages
// marshal as a plain string (the common case); any image part forces the
// array-of-parts vision format so the image data round-trips.
func buildContent(parts []ContentPart) interface{} {
	hasImage := false
	for _, p := range parts {
		if len(p.ImageData) > 0 {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return joinParts(parts)
	}

	out := make([]chatContentPart, 0, len(parts))
	for _, p := range parts {
		if len(p.ImageData) > 0 {
			mime := p.ImageMIME
			if mime == "" {
				mime = "image/png"
			}
			out = append(out, chatContentPart{
				Type:     "image_url",
				ImageURL: &chatImageRef{URL: fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(p.ImageData))},
			})
			continue
		}
		if p.Text != "" {
			out = append(out, chatContentPart{Type: "text", Text: p.Text})
		}
	}
	return out
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *RemoteAProvider) GenerateText(ctx context.Context, req Request) (*Response, error) {
	return p.call(ctx, req, "standard-fast-model")
}

func (p *RemoteAProvider) AnalyzeImage(ctx context.Context, req Request) (*Response, error) {
	return p.call(ctx, req, "premium-model")
}

func (p *RemoteAProvider) call(ctx context.Context, req Request, defaultModel string) (*Response, error) {
	if !p.Available() {
		return nil, errs.New(errs.InvalidAPIKey, "remote-a has no configured api key", nil)
	}

	model := req.ModelOverride
	if model == "" {
		model = defaultModel
	}

	messages := make([]chatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: buildContent(m.Parts)})
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal remote-a request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create remote-a request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("remote-a request failed: %w", err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote-a response: %w", err)
	}

	if err := classifyHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse remote-a response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("remote-a returned no choices")
	}

	usage := TokenUsage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}

	return &Response{
		Content:        parsed.Choices[0].Message.Content,
		Model:          model,
		Provider:       p.Name(),
		Tokens:         usage,
		Cost:           EstimateCost(model, usage),
		ProcessingTime: elapsed.Seconds(),
	}, nil
}

func (p *RemoteAProvider) HealthCheck(ctx context.Context) bool {
	if !p.Available() {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func joinParts(parts []ContentPart) string {
	var out string
	for _, part := range parts {
		if part.Text != "" {
			if out != "" {
				out += "\n"
			}
			out += part.Text
		}
	}
	return out
}

func classifyHTTPStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized:
		return errs.New(errs.InvalidAPIKey, "provider rejected api key", nil)
	case status == http.StatusTooManyRequests:
		return errs.New(errs.RateLimitExceeded, "provider rate limit exceeded", nil)
	case status >= 500:
		return errs.New(errs.ProviderUnavailable, fmt.Sprintf("provider returned status %d: %s", status, string(body)), nil)
	default:
		return fmt.Errorf("provider returned status %d: %s", status, string(body))
	}
}
