package models

type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
	Model     string
}

type CompletionUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

type Completion struct {
	Text  string          `json:"text"`
	Usage CompletionUsage `json:"usage"`
}
