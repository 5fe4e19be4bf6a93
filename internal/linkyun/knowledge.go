package linkyun

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

func kbPath(id ID) string { return "/knowledge-bases/" + url.PathEscape(id.String()) }

func (c *Client) ListKnowledgeBases(ctx context.Context) ([]KnowledgeBase, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/knowledge-bases", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[KnowledgeBase](raw, "knowledge_bases", "items")
}

type CreateKnowledgeBaseRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

func (c *Client) CreateKnowledgeBase(ctx context.Context, req CreateKnowledgeBaseRequest) (*KnowledgeBase, error) {
	var out KnowledgeBase
	if err := c.doJSON(ctx, http.MethodPost, "/knowledge-bases", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetKnowledgeBase(ctx context.Context, id ID) (*KnowledgeBase, error) {
	var out KnowledgeBase
	if err := c.doJSON(ctx, http.MethodGet, kbPath(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteKnowledgeBase(ctx context.Context, id ID) error {
	return c.doJSON(ctx, http.MethodDelete, kbPath(id), nil, nil, nil)
}

func (c *Client) ListDocuments(ctx context.Context, kbID ID) ([]Document, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, kbPath(kbID)+"/documents", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[Document](raw, "documents", "items")
}

// AddTextDocument creates a document from plain text.
func (c *Client) AddTextDocument(ctx context.Context, kbID ID, name, content string) (*Document, error) {
	body := map[string]string{"name": name, "content": content}
	var out Document
	if err := c.doJSON(ctx, http.MethodPost, kbPath(kbID)+"/documents/text", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteDocument(ctx context.Context, id ID) error {
	return c.doJSON(ctx, http.MethodDelete, "/documents/"+url.PathEscape(id.String()), nil, nil, nil)
}
