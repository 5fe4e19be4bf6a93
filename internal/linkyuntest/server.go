// Package linkyuntest is an in-process fake of the Linkyun REST API. It backs
// integration tests and local demos of the client.
package linkyuntest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/suPer8Hu/legalwise/internal/linkyun"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ReplyMode is how the fake answers a sent message.
type ReplyMode string

const (
	// ReplyAsync returns the stored user message and answers later through the worker pool.
	ReplyAsync ReplyMode = "async"
	// ReplyInline returns the assistant message itself.
	ReplyInline ReplyMode = "inline"
	// ReplyList returns the whole message list including the answer.
	ReplyList ReplyMode = "list"
	// ReplyNone acknowledges and never answers.
	ReplyNone ReplyMode = "none"
)

func ParseReplyMode(s string) (ReplyMode, error) {
	switch m := ReplyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ReplyAsync, nil
	case ReplyAsync, ReplyInline, ReplyList, ReplyNone:
		return m, nil
	}
	return "", fmt.Errorf("unknown reply mode %q", s)
}

type Options struct {
	// DB defaults to a fresh sqlite database at DSN (or in memory).
	DB  *gorm.DB
	DSN string

	JWTSecret  string
	ReplyMode  ReplyMode
	ReplyDelay time.Duration
	Responder  Responder
	// Titler answers POST /chat; the default derives a title from the first user line.
	Titler func(linkyun.SimpleChatRequest) string

	// AgentCodes are seeded as published agents.
	AgentCodes        []string
	InvitationCode    string
	WorkspaceCode     string
	WorkspaceJoinCode string

	// Queue defaults to a MemoryQueue.
	Queue       JobQueue
	Concurrency int

	Logger    *slog.Logger
	AccessLog io.Writer
}

// Backend is the fake server state shared by the router and the worker pool.
type Backend struct {
	repo   *Repo
	opts   Options
	queue  JobQueue
	worker *Worker
	log    *slog.Logger

	mode  atomic.Value // ReplyMode
	delay atomic.Int64
}

// OpenDB opens MySQL for a user:pass@tcp(host)/db DSN and sqlite otherwise.
func OpenDB(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if strings.Contains(dsn, "@tcp(") {
		return gorm.Open(mysql.Open(dsn), cfg)
	}
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

func New(ctx context.Context, opts Options) (*Backend, error) {
	db := opts.DB
	if db == nil {
		var err error
		if db, err = OpenDB(opts.DSN); err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
	}
	if opts.JWTSecret == "" {
		opts.JWTSecret = "linkyun-fake"
	}
	if opts.ReplyMode == "" {
		opts.ReplyMode = ReplyAsync
	}
	if opts.Responder == nil {
		opts.Responder = EchoResponder
	}
	if opts.Titler == nil {
		opts.Titler = DefaultTitler
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	queue := opts.Queue
	if queue == nil {
		queue = NewMemoryQueue(0)
	}

	b := &Backend{repo: NewRepo(db), opts: opts, queue: queue, log: opts.Logger}
	b.mode.Store(opts.ReplyMode)
	b.delay.Store(int64(opts.ReplyDelay))
	b.worker = NewWorker(b.repo, queue, opts.Concurrency, b.ReplyDelay, opts.Responder, opts.Logger)

	if err := b.repo.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := b.seed(ctx); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return b, nil
}

func (b *Backend) seed(ctx context.Context) error {
	if b.opts.WorkspaceCode != "" {
		if _, err := b.repo.EnsureWorkspace(ctx, b.opts.WorkspaceCode, b.opts.WorkspaceCode, b.opts.WorkspaceJoinCode); err != nil {
			return err
		}
	}
	for _, code := range b.opts.AgentCodes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, err := b.SeedAgent(ctx, code, code); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the REST API.
func (b *Backend) Handler() http.Handler { return NewRouter(b) }

// Run processes reply jobs until ctx is done.
func (b *Backend) Run(ctx context.Context) error { return b.worker.Run(ctx) }

func (b *Backend) Close() error { return b.queue.Close() }

func (b *Backend) Repo() *Repo { return b.repo }

func (b *Backend) ReplyMode() ReplyMode { return b.mode.Load().(ReplyMode) }

func (b *Backend) SetReplyMode(m ReplyMode) { b.mode.Store(m) }

func (b *Backend) ReplyDelay() time.Duration { return time.Duration(b.delay.Load()) }

func (b *Backend) SetReplyDelay(d time.Duration) { b.delay.Store(int64(d)) }

// SeedAgent creates a published agent unless one with code exists.
func (b *Backend) SeedAgent(ctx context.Context, code, name string) (*Agent, error) {
	a := &Agent{Code: code, Name: name, Status: "published", AgentType: "cloud", Temperature: 0.7}
	if err := b.repo.EnsureAgent(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateUser registers a user directly and returns an API key for it.
func (b *Backend) CreateUser(ctx context.Context, username, password string, creator bool) (*User, string, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}
	u := &User{Username: username, Email: username + "@example.com", PasswordHash: hash, Creator: creator}
	if err := b.repo.CreateUser(ctx, u); err != nil {
		return nil, "", err
	}
	key, err := SignAPIKey(u.ID, b.opts.JWTSecret, apiKeyTTL)
	if err != nil {
		return nil, "", err
	}
	return u, key, nil
}

// AddAssistantMessage appends an assistant reply as if it arrived late.
func (b *Backend) AddAssistantMessage(ctx context.Context, chatID, content string) error {
	return b.repo.InsertMessage(ctx, &ChatMessage{ChatID: chatID, Role: "assistant", Content: content})
}

// DefaultTitler uses the first "user: " line of the prompt, cut to eight characters.
func DefaultTitler(req linkyun.SimpleChatRequest) string {
	for _, turn := range req.Messages {
		for _, line := range strings.Split(turn.Content, "\n") {
			if rest, ok := strings.CutPrefix(line, "user: "); ok {
				r := []rune(strings.TrimSpace(rest))
				if len(r) > 8 {
					r = r[:8]
				}
				if len(r) > 0 {
					return string(r)
				}
			}
		}
	}
	return "新对话"
}

// TestServer is a Backend served over httptest with its worker pool running.
type TestServer struct {
	*httptest.Server
	Backend *Backend
}

// NewServer starts a fake on a temporary sqlite database; it is torn down with t.
func NewServer(t testing.TB, opts Options) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if opts.DB == nil && opts.DSN == "" {
		opts.DSN = t.TempDir() + "/linkyun.db"
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	b, err := New(ctx, opts)
	if err != nil {
		cancel()
		t.Fatalf("linkyuntest: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("linkyuntest worker: %v", err)
		}
	}()

	srv := httptest.NewServer(b.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		wg.Wait()
		_ = b.Close()
	})
	return &TestServer{Server: srv, Backend: b}
}

// Client returns a Linkyun client pointed at the server.
func (s *TestServer) Client(opts ...linkyun.Option) *linkyun.Client {
	return linkyun.New(s.URL, append([]linkyun.Option{linkyun.WithHTTPClient(s.Server.Client())}, opts...)...)
}
