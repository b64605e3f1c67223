/**
 * Remote provider B: a Google-family content-generation-shaped API.
 *
 * Same typed-HTTP-client shape as provider A. Provider B has no system
 * role, so any system message is concatenated into the first user message
 * before translation.
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

// RemoteBProvider talks to a content-generation-shaped API.
type RemoteBProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	models     []string
}

func NewRemoteBProvider(apiKey, baseURL string) *RemoteBProvider {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &RemoteBProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		models:     []string{"exp-fast-model", "exp-premium-model"},
	}
}

func (p *RemoteBProvider) Name() string              { return "remote-b" }
func (p *RemoteBProvider) Available() bool           { return p.apiKey != "" }
func (p *RemoteBProvider) SupportedModels() []string { return p.models }

type genContentPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *genInlineBlob  `json:"inline_data,omitempty"`
}

type genInlineBlob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type genContent struct {
	Role  string           `json:"role"`
	Parts []genContentPart `json:"parts"`
}

type genRequest struct {
	Contents         []genContent `json:"contents"`
	GenerationConfig genConfig    `json:"generationConfig"`
}

type genConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
}

type genResponse struct {
	Candidates []struct {
		Content struct {
			Parts []genContentPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// translateMessages folds any system message into the first user message,
// since provider B's schema has no system role.
func translateMessages(messages []Message) []genContent {
	var systemText string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			if systemText != "" {
				systemText += "\n"
			}
			systemText += joinParts(m.Parts)
			continue
		}
		rest = append(rest, m)
	}

	contents := make([]genContent, 0, len(rest))
	prependedSystem := false
	for _, m := range rest {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}

		parts := translateParts(m.Parts)
		if !prependedSystem && systemText != "" && role == "user" {
			parts = append([]genContentPart{{Text: systemText}}, parts...)
			prependedSystem = true
		}
		contents = append(contents, genContent{Role: role, Parts: parts})
	}

	if !prependedSystem && systemText != "" {
		contents = append([]genContent{{Role: "user", Parts: []genContentPart{{Text: systemText}}}}, contents...)
	}

	return contents
}

func translateParts(parts []ContentPart) []genContentPart {
	out := make([]genContentPart, 0, len(parts))
	for _, p := range parts {
		if len(p.ImageData) > 0 {
			mime := p.ImageMIME
			if mime == "" {
				mime = "image/png"
			}
			out = append(out, genContentPart{InlineData: &genInlineBlob{
				MimeType: mime,
				Data:     base64.StdEncoding.EncodeToString(p.ImageData),
			}})
			continue
		}
		if p.Text != "" {
			out = append(out, genContentPart{Text: p.Text})
		}
	}
	return out
}

func (p *RemoteBProvider) GenerateText(ctx context.Context, req Request) (*Response, error) {
	return p.call(ctx, req, "exp-fast-model")
}

func (p *RemoteBProvider) AnalyzeImage(ctx context.Context, req Request) (*Response, error) {
	return p.call(ctx, req, "exp-premium-model")
}

func (p *RemoteBProvider) call(ctx context.Context, req Request, defaultModel string) (*Response, error) {
	if !p.Available() {
		return nil, errs.New(errs.InvalidAPIKey, "remote-b has no configured api key", nil)
	}

	model := req.ModelOverride
	if model == "" {
		model = defaultModel
	}

	body, err := json.Marshal(genRequest{
		Contents: translateMessages(req.Messages),
		GenerationConfig: genConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
			TopP:            req.TopP,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal remote-b request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create remote-b request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("remote-b request failed: %w", err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote-b response: %w", err)
	}

	if err := classifyHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var parsed genResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse remote-b response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("remote-b returned no candidates")
	}

	var content string
	for _, part := range parsed.Candidates[0].Content.Parts {
		content += part.Text
	}

	usage := TokenUsage{
		PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
		CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
	}

	return &Response{
		Content:        content,
		Model:          model,
		Provider:       p.Name(),
		Tokens:         usage,
		Cost:           EstimateCost(model, usage),
		ProcessingTime: elapsed.Seconds(),
	}, nil
}

func (p *RemoteBProvider) HealthCheck(ctx context.Context) bool {
	if !p.Available() {
		return false
	}
	url := fmt.Sprintf("%s/models?key=%s", p.baseURL, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
