// Package account signs users in and out and keeps the persisted state in step.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/suPer8Hu/legalwise/internal/authstore"
	"github.com/suPer8Hu/legalwise/internal/config"
	"github.com/suPer8Hu/legalwise/internal/linkyun"
)

var (
	ErrMissingCredentials = errors.New("请输入用户名和密码")
	ErrInvalidUsername    = errors.New("用户名长度需为 3-100 个字符")
	ErrWeakPassword       = errors.New("密码至少 8 位")
	ErrMissingInvitation  = errors.New("请输入邀请码")
)

// Backend is the slice of the Linkyun client used for sign-in.
type Backend interface {
	Login(ctx context.Context, req linkyun.LoginRequest) (*linkyun.AuthResult, error)
	Register(ctx context.Context, req linkyun.RegisterRequest) (*linkyun.AuthResult, error)
	ListWorkspaces(ctx context.Context) ([]linkyun.UserWorkspace, error)
	JoinWorkspace(ctx context.Context, inviteCode string) error
	SwitchWorkspace(ctx context.Context, workspaceCode string) error
	SetAPIKey(key string)
}

var _ Backend = (*linkyun.Client)(nil)

type Manager struct {
	backend       Backend
	store         authstore.Store
	workspaceCode string
	joinCode      string
	log           *slog.Logger
	now           func() time.Time
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithWorkspace names the workspace the app runs in and the invite code used to join it.
func WithWorkspace(code, joinCode string) Option {
	return func(m *Manager) {
		m.workspaceCode = strings.TrimSpace(code)
		m.joinCode = strings.TrimSpace(joinCode)
	}
}

func NewManager(backend Backend, store authstore.Store, opts ...Option) *Manager {
	m := &Manager{backend: backend, store: store, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login authenticates, persists the state for role and makes sure the user
// is a member of the configured workspace.
func (m *Manager) Login(ctx context.Context, username, password string, role config.Role) (*authstore.State, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	res, err := m.backend.Login(ctx, linkyun.LoginRequest{
		Username:      username,
		Password:      password,
		WorkspaceCode: m.workspaceCode,
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return m.establish(ctx, res, role)
}

type RegisterParams struct {
	Username       string
	Email          string
	Password       string
	InvitationCode string
}

func (p RegisterParams) validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(p.Username)); n < 3 || n > 100 {
		return ErrInvalidUsername
	}
	if len(p.Password) < 8 {
		return ErrWeakPassword
	}
	if strings.TrimSpace(p.InvitationCode) == "" {
		return ErrMissingInvitation
	}
	return nil
}

// Register creates an account and signs it in.
func (m *Manager) Register(ctx context.Context, p RegisterParams, role config.Role) (*authstore.State, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	res, err := m.backend.Register(ctx, linkyun.RegisterRequest{
		Username:       strings.TrimSpace(p.Username),
		Email:          strings.TrimSpace(p.Email),
		Password:       p.Password,
		InvitationCode: strings.TrimSpace(p.InvitationCode),
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return m.establish(ctx, res, role)
}

func (m *Manager) establish(ctx context.Context, res *linkyun.AuthResult, role config.Role) (*authstore.State, error) {
	m.backend.SetAPIKey(res.APIKey)
	st := &authstore.State{
		APIKey:    res.APIKey,
		User:      res.Account(),
		Workspace: res.Workspace,
		Role:      role,
		SavedAt:   m.now(),
	}
	if ws := m.EnsureWorkspace(ctx); ws != nil {
		st.Workspace = ws
	}
	if err := m.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("save login: %w", err)
	}
	m.log.Info("logged in", "user", accountName(st.User), "role", role)
	return st, nil
}

// EnsureWorkspace joins the configured workspace when the user is not yet a
// member and an invite code is known, then switches to it. Failures are
// logged and never fail the login.
func (m *Manager) EnsureWorkspace(ctx context.Context) *linkyun.Workspace {
	if m.workspaceCode == "" {
		return nil
	}
	list, err := m.backend.ListWorkspaces(ctx)
	if err != nil {
		m.log.Warn("list workspaces", "error", err)
		return nil
	}
	ws := findWorkspace(list, m.workspaceCode)
	if ws == nil {
		if m.joinCode == "" {
			m.log.Warn("not a member of workspace and no join code configured", "workspace", m.workspaceCode)
			return nil
		}
		if err := m.backend.JoinWorkspace(ctx, m.joinCode); err != nil {
			m.log.Warn("join workspace", "workspace", m.workspaceCode, "error", err)
			return nil
		}
		ws = &linkyun.Workspace{Code: m.workspaceCode}
		if list, err := m.backend.ListWorkspaces(ctx); err == nil {
			if found := findWorkspace(list, m.workspaceCode); found != nil {
				ws = found
			}
		}
	}
	if err := m.backend.SwitchWorkspace(ctx, m.workspaceCode); err != nil {
		m.log.Warn("switch workspace", "workspace", m.workspaceCode, "error", err)
	}
	return ws
}

func findWorkspace(list []linkyun.UserWorkspace, code string) *linkyun.Workspace {
	for _, uw := range list {
		if uw.Workspace != nil && strings.EqualFold(uw.Workspace.Code, code) {
			w := *uw.Workspace
			return &w
		}
	}
	return nil
}

// Restore loads the saved state and hands its API key to the backend.
func (m *Manager) Restore(ctx context.Context) (*authstore.State, error) {
	st, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !st.LoggedIn() {
		return nil, authstore.ErrNotLoggedIn
	}
	m.backend.SetAPIKey(st.APIKey)
	return st, nil
}

// Logout forgets the saved state.
func (m *Manager) Logout(ctx context.Context) error {
	m.backend.SetAPIKey("")
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func accountName(u *linkyun.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}
