package shared

import (
	"time"
)

// TokenUsage tracks the tokens consumed by one completion call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// AgentMeta holds operational metadata for one plan generation.
type AgentMeta struct {
	AgentName string
	RequestID string
	Usage     TokenUsage
	Latency   time.Duration
	// Truncated is set when the provider stopped at its output cap.
	Truncated bool
}
