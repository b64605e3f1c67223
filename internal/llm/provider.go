/**
 * LLM provider interface.
 *
 * The interface shape (typed request/response, provider-reported model
 * name, retryable typed errors) follows the pgEdge rag-server's
 * EmbeddingProvider/CompletionProvider split, adapted from RAG
 * completion/embedding semantics to this engine's generateText/analyzeImage
 * semantics.
 */

package llm

import "context"

// MessageRole tags a message's origin in a conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ContentPart is one piece of a message: either text or an image reference.
type ContentPart struct {
	Text      string
	ImageData []byte
	ImageMIME string
}

// Message is one turn in the conversation sent to a provider.
type Message struct {
	Role  MessageRole
	Parts []ContentPart
}

// TextMessage is a convenience constructor for a plain-text message.
func TextMessage(role MessageRole, text string) Message {
	return Message{Role: role, Parts: []ContentPart{{Text: text}}}
}

// Request carries everything a provider needs to produce one response.
type Request struct {
	Messages       []Message
	MaxTokens      int
	Temperature    float64
	TopP           float64
	ModelOverride  string
}

// TokenUsage records prompt/completion/total token counts for one call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is what every provider call returns on success.
type Response struct {
	Content         string
	Model           string
	Provider        string
	Tokens          TokenUsage
	Cost            float64
	ProcessingTime  float64 // seconds
}

// Provider is the interface both concrete LLM providers implement.
type Provider interface {
	Name() string
	Available() bool
	SupportedModels() []string
	GenerateText(ctx context.Context, req Request) (*Response, error)
	AnalyzeImage(ctx context.Context, req Request) (*Response, error)
	HealthCheck(ctx context.Context) bool
}
