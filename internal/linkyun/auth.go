package linkyun

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type LoginRequest struct {
	Username      string `json:"username"` // username or email
	Password      string `json:"password"`
	WorkspaceCode string `json:"workspace_code,omitempty"`
}

type RegisterRequest struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	InvitationCode string `json:"invitation_code"`
}

// AuthResult is returned by login and register.
type AuthResult struct {
	APIKey    string     `json:"api_key"`
	User      *User      `json:"user,omitempty"`
	Creator   *User      `json:"creator,omitempty"`
	Workspace *Workspace `json:"workspace,omitempty"`
}

// Account is the signed-in identity: user for end users, creator for lawyers.
func (r *AuthResult) Account() *User {
	if r.User != nil {
		return r.User
	}
	return r.Creator
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/login", req)
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/register", req)
}

func (c *Client) authenticate(ctx context.Context, p string, body any) (*AuthResult, error) {
	var out AuthResult
	if err := c.doJSON(ctx, http.MethodPost, p, nil, body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.APIKey) == "" {
		return nil, errors.New("登录未返回 api_key")
	}
	return &out, nil
}
