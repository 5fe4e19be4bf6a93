// Package authstore persists the signed-in identity between CLI runs.
package authstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/suPer8Hu/legalwise/internal/config"
	"github.com/suPer8Hu/legalwise/internal/linkyun"
)

// DefaultProfile is used when no profile name is given.
const DefaultProfile = "default"

// ErrNotLoggedIn is returned by Load when nothing is stored for the profile.
var ErrNotLoggedIn = errors.New("未登录")

// State is what a successful login leaves behind.
type State struct {
	APIKey    string             `json:"api_key"`
	User      *linkyun.User      `json:"user,omitempty"`
	Workspace *linkyun.Workspace `json:"workspace,omitempty"`
	Role      config.Role        `json:"role"`
	SavedAt   time.Time          `json:"saved_at"`
}

func (s *State) LoggedIn() bool {
	return s != nil && strings.TrimSpace(s.APIKey) != ""
}

type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
	Clear(ctx context.Context) error
}

func profileName(p string) string {
	if p = strings.TrimSpace(p); p == "" {
		return DefaultProfile
	}
	return p
}
