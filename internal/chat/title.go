package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/suPer8Hu/legalwise/internal/linkyun"
)

const (
	maxTitleRunes   = 10
	titleSample     = 3
	titleTemp       = 0.3
	titleMaxTokens  = 50
	titleSystem     = "你是一个帮助生成对话标题的助手。只返回简短的标题，不要任何解释。"
	titleInstructor = "根据以下对话内容，生成一个简短的标题（不超过10个字）。只返回标题，不要解释或标点。\n\n"
)

// Completer runs a stateless completion.
type Completer interface {
	SimpleChat(ctx context.Context, req linkyun.SimpleChatRequest) (*linkyun.SimpleChatResponse, error)
}

// shouldTitle reports whether a session that just got a reply is due a title.
func shouldTitle(n int) bool { return n == 3 || n == 4 }

// TitleRequest builds the completion request from the first messages of a session.
func TitleRequest(msgs []Message) linkyun.SimpleChatRequest {
	if len(msgs) > titleSample {
		msgs = msgs[:titleSample]
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return linkyun.SimpleChatRequest{
		Messages: []linkyun.ChatTurn{{
			Role:    string(RoleUser),
			Content: titleInstructor + strings.Join(lines, "\n"),
		}},
		SystemPrompt: titleSystem,
		Temperature:  titleTemp,
		MaxTokens:    titleMaxTokens,
	}
}

// GenerateTitle asks the backend for a short title.
func GenerateTitle(ctx context.Context, c Completer, msgs []Message) (string, error) {
	resp, err := c.SimpleChat(ctx, TitleRequest(msgs))
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	return CleanTitle(resp.Content), nil
}

// CleanTitle trims quotes, keeps at most 10 characters, and falls back to the default title.
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(strings.Trim(s, "\"'“”‘’「」《》"))
	r := []rune(s)
	if len(r) > maxTitleRunes {
		s = strings.TrimSpace(string(r[:maxTitleRunes]))
	}
	if s == "" {
		return DefaultTitle
	}
	return s
}
