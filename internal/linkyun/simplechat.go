package linkyun

import (
	"context"
	"encoding/json"
	"net/http"
)

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SimpleChatRequest is a stateless completion; nothing is stored server side.
type SimpleChatRequest struct {
	Messages     []ChatTurn `json:"messages"`
	SystemPrompt string     `json:"system_prompt,omitempty"`
	Model        string     `json:"model,omitempty"`
	Temperature  float64    `json:"temperature,omitempty"`
	MaxTokens    int        `json:"max_tokens,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type SimpleChatResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   *Usage `json:"usage,omitempty"`
}

// SimpleChat calls POST /chat. The payload may be nested once more under data.
func (c *Client) SimpleChat(ctx context.Context, req SimpleChatRequest) (*SimpleChatResponse, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/chat", nil, req, &raw); err != nil {
		return nil, err
	}
	var nested struct {
		Data *SimpleChatResponse `json:"data"`
		SimpleChatResponse
	}
	if err := decodeInto(raw, &nested); err != nil {
		return nil, err
	}
	if nested.Data != nil {
		return nested.Data, nil
	}
	out := nested.SimpleChatResponse
	return &out, nil
}
