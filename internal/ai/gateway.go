// Package ai provides a provider-agnostic completion gateway for the
// extraction pipeline, with task-based request tagging and fallback routing.
package ai

import "context"

// TaskType tags a completion request with the pipeline stage issuing it.
type TaskType int

const (
	TaskExtractQuestion TaskType = iota
	TaskExtractAnswer
	TaskDistractors
	TaskNormalize
)

func (t TaskType) String() string {
	switch t {
	case TaskExtractQuestion:
		return "extract_question"
	case TaskExtractAnswer:
		return "extract_answer"
	case TaskDistractors:
		return "distractors"
	case TaskNormalize:
		return "normalize"
	default:
		return "unknown"
	}
}

// Message represents a chat message. FileID references a previously uploaded
// document on the provider side; the paper and memo PDFs are addressed this
// way rather than inlined.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	FileID  string `json:"file_id,omitempty"`
}

// CompletionRequest is the input to a completion call.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
}

// CompletionResponse is the output of a completion call.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Provider is the interface all completion providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	HealthCheck(ctx context.Context) error
}
