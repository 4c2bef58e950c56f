package llm

import "context"

type CompletionRequest struct {
	SystemPrompt string
	Prompt       string
	JSONMode     bool
	MaxTokens    int
	Temperature  float32
}

type CompletionResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Model            string
	FinishReason     string
}

// Client is the language-model completion service used for post-call
// analysis, fallback summarization and post-call chat replies.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// CompleteStructured requests JSON output and unmarshals it into target.
	CompleteStructured(ctx context.Context, req CompletionRequest, target any) error
}
