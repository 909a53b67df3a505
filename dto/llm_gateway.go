package dto

// CompletionRequest is the body posted to the LLM gateway.
type CompletionRequest struct {
	Model     string `json:"model"`
	System    string `json:"system,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"maxTokens"`
	RequestID string `json:"requestId,omitempty"`
}

type CompletionResponse struct {
	Text      string          `json:"text"`
	Usage     CompletionUsage `json:"usage"`
	RequestID string          `json:"requestId"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
}

type CompletionUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}
