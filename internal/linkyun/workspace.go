package linkyun

import (
	"context"
	"encoding/json"
	"net/http"
)

// UserWorkspace is a workspace membership of the current user.
type UserWorkspace struct {
	Workspace *Workspace `json:"workspace,omitempty"`
	Role      string     `json:"role,omitempty"`
}

func (c *Client) ListWorkspaces(ctx context.Context) ([]UserWorkspace, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/user/workspaces", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[UserWorkspace](raw, "workspaces")
}

func (c *Client) JoinWorkspace(ctx context.Context, inviteCode string) error {
	return c.doJSON(ctx, http.MethodPost, "/user/workspace/join", nil, map[string]string{"invite_code": inviteCode}, nil)
}

func (c *Client) SwitchWorkspace(ctx context.Context, workspaceCode string) error {
	return c.doJSON(ctx, http.MethodPost, "/user/workspace/switch", nil, map[string]string{"workspace_code": workspaceCode}, nil)
}
