package anythingllm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ChatMode selects how a workspace answers.
type ChatMode string

const (
	// ChatModeChat uses general knowledge plus the workspace's documents
	// and keeps a rolling history.
	ChatModeChat ChatMode = "chat"

	// ChatModeQuery answers only from the workspace's documents.
	ChatModeQuery ChatMode = "query"
)

// ParseChatMode validates a chat mode name.
func ParseChatMode(s string) (ChatMode, error) {
	switch ChatMode(s) {
	case ChatModeChat, ChatModeQuery:
		return ChatMode(s), nil
	default:
		return "", fmt.Errorf("unknown chat mode %q (want chat or query)", s)
	}
}

// Source is a document cited by a chat answer.
type Source struct {
	Title string `json:"title"`
}

// ChatResponse is the answer of a workspace chat.
type ChatResponse struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	TextResponse string   `json:"textResponse"`
	Sources      []Source `json:"sources"`
	Error        *string  `json:"error"`
}

// Chat sends message to the workspace with slug.
func (c *Client) Chat(ctx context.Context, slug, message string, mode ChatMode) (ChatResponse, error) {
	body := map[string]string{"message": message, "mode": string(mode)}

	var resp ChatResponse
	endpoint := "workspace/" + url.PathEscape(slug) + "/chat"
	if err := c.http.SendJSON(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return ChatResponse{}, fmt.Errorf("chat with %s: %w", slug, err)
	}
	if resp.Error != nil && *resp.Error != "" {
		return resp, fmt.Errorf("chat with %s: %s", slug, *resp.Error)
	}
	return resp, nil
}
