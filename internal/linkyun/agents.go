package linkyun

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) GetAgentByCode(ctx context.Context, code string) (*Agent, error) {
	var out Agent
	if err := c.doJSON(ctx, http.MethodGet, "/agents/by-code/"+url.PathEscape(code), nil, nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("Agent 不存在")
	}
	return &out, nil
}

type ListAgentsParams struct {
	Status string
	Limit  int
	Offset int
}

func (c *Client) ListAgents(ctx context.Context, params ListAgentsParams) ([]Agent, error) {
	q := url.Values{}
	if params.Status != "" {
		q.Set("status", params.Status)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/agents", q, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[Agent](raw, "agents", "items")
}

// GetAgent accepts both a bare agent and {agent: {...}}.
func (c *Client) GetAgent(ctx context.Context, id ID) (*Agent, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/agents/"+url.PathEscape(id.String()), nil, nil, &raw); err != nil {
		return nil, err
	}
	var wrapped struct {
		Agent *Agent `json:"agent"`
	}
	if err := decodeInto(raw, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Agent != nil {
		return wrapped.Agent, nil
	}
	var out Agent
	if err := decodeInto(raw, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("无效的 Agent 数据")
	}
	return &out, nil
}

type CreateAgentRequest struct {
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Model         string   `json:"model"`
	SystemPrompt  string   `json:"system_prompt"`
	Temperature   *float64 `json:"temperature,omitempty"`
	AgentType     string   `json:"agent_type,omitempty"`
	MemoryEnabled bool     `json:"memory_enabled"`
	Status        string   `json:"status,omitempty"`
}

// CreateAgent fills the backend's required defaults: temperature 0.7, cloud agent, draft status.
func (c *Client) CreateAgent(ctx context.Context, req CreateAgentRequest) (*Agent, error) {
	temperature := 0.7
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if req.AgentType == "" {
		req.AgentType = "cloud"
	}
	if req.Status == "" {
		req.Status = "draft"
	}
	body := map[string]any{
		"code":            req.Code,
		"name":            req.Name,
		"description":     req.Description,
		"model":           req.Model,
		"system_prompt":   req.SystemPrompt,
		"temperature":     temperature,
		"agent_type":      req.AgentType,
		"memory_enabled":  req.MemoryEnabled,
		"status":          req.Status,
		"examples":        []any{},
		"skills":          []any{},
		"rag_config":      nil,
		"workspace_id":    nil,
		"llm_provider":    "",
		"llm_temperature": nil,
	}
	var out Agent
	if err := c.doJSON(ctx, http.MethodPost, "/agents", nil, body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("创建 Agent 失败")
	}
	return &out, nil
}

// UpdateAgentRequest carries only the fields to change.
type UpdateAgentRequest struct {
	Name            *string `json:"name,omitempty"`
	Code            *string `json:"code,omitempty"`
	Description     *string `json:"description,omitempty"`
	SystemPrompt    *string `json:"system_prompt,omitempty"`
	Status          *string `json:"status,omitempty"`
	KnowledgeBaseID *int64  `json:"knowledge_base_id,omitempty"`
}

func (c *Client) UpdateAgent(ctx context.Context, id ID, req UpdateAgentRequest) (*Agent, error) {
	var out Agent
	if err := c.doJSON(ctx, http.MethodPut, "/agents/"+url.PathEscape(id.String()), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
