package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Role is the portal a user signs in to.
type Role string

const (
	RoleIndividual Role = "individual"
	RoleLawyer     Role = "lawyer"
	RoleJudiciary  Role = "judiciary"
)

// ParseRole accepts the portal names used on the login screen.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoleIndividual:
		return RoleIndividual, nil
	case RoleLawyer:
		return RoleLawyer, nil
	case RoleJudiciary:
		return RoleJudiciary, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type Config struct {
	// Linkyun API
	APIBaseURL    string        `env:"API_BASE_URL" envDefault:"https://linkyun.co"`
	AvatarBaseURL string        `env:"AVATAR_BASE_URL" envDefault:"https://api.linkyun.co"`
	// zero leaves uploads and sends to the transport defaults
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT"`

	// workspace the app expects; joined with the invite code when missing
	WorkspaceCode     string `env:"WORKSPACE_CODE"`
	WorkspaceJoinCode string `env:"WORKSPACE_JOIN_CODE"`

	// agents
	SystemAgentCode          string `env:"SYSTEM_AGENT_CODE"`
	SystemAssistantAgentCode string `env:"SYSTEM_ASSISTANT_AGENT_CODE"`
	SystemServiceAgentCode   string `env:"SYSTEM_SERVICE_AGENT_CODE"`

	// chat reconciliation
	PollInterval   time.Duration `env:"CHAT_POLL_INTERVAL" envDefault:"2s"`
	PollTimeout    time.Duration `env:"CHAT_POLL_TIMEOUT" envDefault:"30s"`
	UploadMaxBytes int64         `env:"UPLOAD_MAX_BYTES" envDefault:"20971520"`

	// persisted login state
	StateBackend  string `env:"STATE_BACKEND" envDefault:"sqlite"`
	StateDSN      string `env:"STATE_DSN" envDefault:"legalwise.db"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// terminal output; RENDER_STYLE=plain disables markdown rendering
	RenderStyle string `env:"RENDER_STYLE" envDefault:"auto"`
	RenderWidth int    `env:"RENDER_WIDTH" envDefault:"100"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.WorkspaceCode = strings.TrimSpace(cfg.WorkspaceCode)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	if c.PollInterval <= 0 || c.PollTimeout <= 0 {
		return fmt.Errorf("poll interval and timeout must be positive (interval=%s timeout=%s)", c.PollInterval, c.PollTimeout)
	}
	if c.PollInterval > c.PollTimeout {
		return fmt.Errorf("poll interval %s exceeds poll timeout %s", c.PollInterval, c.PollTimeout)
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("invalid UPLOAD_MAX_BYTES %d", c.UploadMaxBytes)
	}
	switch c.StateBackend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("unsupported STATE_BACKEND=%q", c.StateBackend)
	}
	return nil
}

// AgentCode returns the agent a role chats with. The judiciary portal has none.
func (c *Config) AgentCode(role Role) string {
	switch role {
	case RoleLawyer:
		return strings.TrimSpace(c.SystemAssistantAgentCode)
	case RoleJudiciary:
		return ""
	default:
		return strings.TrimSpace(c.SystemAgentCode)
	}
}

// SlogLevel maps LOG_LEVEL onto slog, defaulting to info.
func (c *Config) SlogLevel() slog.Level { return parseLevel(c.LogLevel) }

func (c *Config) Logger(w io.Writer) *slog.Logger { return NewLogger(w, c.LogLevel, c.LogFormat) }

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// NewLogger builds a text or json (LOG_FORMAT) slog logger at LOG_LEVEL.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// FakeConfig drives cmd/linkyun-fake.
type FakeConfig struct {
	Addr      string `env:"FAKE_ADDR" envDefault:":8089"`
	DBDSN     string `env:"FAKE_DB_DSN" envDefault:"file::memory:?cache=shared"`
	JWTSecret string `env:"FAKE_JWT_SECRET" envDefault:"dev-secret-change-me"`

	ReplyMode  string        `env:"FAKE_REPLY_MODE" envDefault:"async"`
	ReplyDelay time.Duration `env:"FAKE_REPLY_DELAY" envDefault:"1500ms"`

	AgentCodes        []string `env:"FAKE_AGENT_CODES" envSeparator:","`
	InvitationCode    string   `env:"FAKE_INVITATION_CODE"`
	WorkspaceCode     string   `env:"FAKE_WORKSPACE_CODE"`
	WorkspaceJoinCode string   `env:"FAKE_WORKSPACE_JOIN_CODE"`

	// rabbitMQ; empty URL keeps reply jobs in memory
	RabbitURL         string `env:"RABBIT_URL"`
	RabbitQueue       string `env:"RABBIT_QUEUE" envDefault:"linkyun_reply_jobs"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY" envDefault:"2"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

func (c *FakeConfig) Logger(w io.Writer) *slog.Logger { return NewLogger(w, c.LogLevel, c.LogFormat) }

func LoadFake() (*FakeConfig, error) {
	cfg := &FakeConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse fake config: %w", err)
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 2
	}
	if cfg.WorkerConcurrency > 50 {
		cfg.WorkerConcurrency = 50
	}
	return cfg, nil
}
