package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/legalwise/internal/authstore"
	"github.com/suPer8Hu/legalwise/internal/chat"
	"github.com/suPer8Hu/legalwise/internal/config"
	"github.com/suPer8Hu/legalwise/internal/linkyuntest"
)

type harness struct {
	srv *linkyuntest.TestServer
	app *App
	out *bytes.Buffer
	err *bytes.Buffer
}

func newHarness(t *testing.T, mode linkyuntest.ReplyMode) *harness {
	t.Helper()
	srv := linkyuntest.NewServer(t, linkyuntest.Options{
		ReplyMode:  mode,
		AgentCodes: []string{"legal-individual", "legal-lawyer"},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	_, _, err := srv.Backend.CreateUser(context.Background(), "zhangsan", "password1", false)
	require.NoError(t, err)

	store, err := authstore.OpenSQLite(filepath.Join(t.TempDir(), "state.db"), "test")
	require.NoError(t, err)

	cfg := &config.Config{
		APIBaseURL:               srv.URL,
		SystemAgentCode:          "legal-individual",
		SystemAssistantAgentCode: "legal-lawyer",
		PollInterval:             10 * time.Millisecond,
		PollTimeout:              80 * time.Millisecond,
		UploadMaxBytes:           20 * 1024 * 1024,
	}
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	app := New(cfg, srv.Client(), store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithOutput(out, errOut),
		WithRenderer(&Renderer{}),
	)
	return &harness{srv: srv, app: app, out: out, err: errOut}
}

func (h *harness) run(t *testing.T, args ...string) string {
	t.Helper()
	h.out.Reset()
	require.NoError(t, h.app.Run(context.Background(), args))
	return h.out.String()
}

func (h *harness) login(t *testing.T, role string) {
	t.Helper()
	h.run(t, "login", "-u", "zhangsan", "-p", "password1", "-role", role)
}

func TestRun_RequiresLogin(t *testing.T) {
	h := newHarness(t, linkyuntest.ReplyInline)
	err := h.app.Run(context.Background(), []string{"sessions"})
	assert.ErrorIs(t, err, authstore.ErrNotLoggedIn)
}

func TestRun_UnknownCommand(t *testing.T) {
	h := newHarness(t, linkyuntest.ReplyInline)
	err := h.app.Run(context.Background(), []string{"frobnicate"})
	assert.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, h.err.String(), "用法")
}

func TestRun_LoginWhoamiLogout(t *testing.T) {
	h := newHarness(t, linkyuntest.ReplyInline)
	out := h.run(t, "login", "-u", "zhangsan", "-p", "password1")
	assert.Contains(t, out, "已登录：zhangsan（individual）")

	out = h.run(t, "whoami")
	assert.Contains(t, out, "用户：zhangsan")

	h.run(t, "logout")
	assert.ErrorIs(t, h.app.Run(context.Background(), []string{"whoami"}), authstore.ErrNotLoggedIn)
}

func TestRun_SendSessionsHistoryDelete(t *testing.T) {
	h := newHarness(t, linkyuntest.ReplyInline)
	h.login(t, "individual")

	out := h.run(t, "send", "房东不退押金怎么办")
	assert.Contains(t, out, "助手：\n收到您的问题：房东不退押金怎么办")
	id := strings.TrimSpace(strings.TrimPrefix(h.err.String(), "对话："))
	require.NotEmpty(t, id)

	out = h.run(t, "send", "-session", id, "需要起诉吗")
	assert.Contains(t, out, "收到您的问题：需要起诉吗")

	out = h.run(t, "sessions")
	assert.Contains(t, out, id)

	out = h.run(t, "history", "-session", id)
	assert.Contains(t, out, "你：房东不退押金怎么办")
	assert.Contains(t, out, "你：需要起诉吗")

	h.run(t, "delete", id)
	out = h.run(t, "sessions")
	assert.Contains(t, out, "暂无历史对话")
}

func TestRun_SendTimeoutIsReported(t *testing.T) {
	h := newHarness(t, linkyuntest.ReplyNone)
	h.login(t, "individual")

	out := h.run(t, "send", "在吗")
	assert.Contains(t, out, chat.ErrReplyTimeout.Error())
}

func TestRun_SendWithImage(t *testing.T) {
	h := newHarness(t, linkyuntest.ReplyInline)
	h.login(t, "individual")

	path := filepath.Join(t.TempDir(), "证据.png")
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	require.NoError(t, os.WriteFile(path, png, 0o600))

	out := h.run(t, "send", "-image", path)
	assert.Contains(t, out, "收到您的问题：请分析这个图片")
}

func TestRun_SendRejectsWrongPicker(t *testing.T) {
	h := newHarness(t, linkyuntest.ReplyInline)
	h.login(t, "individual")

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	err := h.app.Run(context.Background(), []string{"send", "-image", path, "看看"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "请上传图片")
}

func TestRun_JudiciaryHasNoAgent(t *testing.T) {
	h := newHarness(t, linkyuntest.ReplyInline)
	h.login(t, "judiciary")
	assert.ErrorIs(t, h.app.Run(context.Background(), []string{"send", "你好"}), ErrNoAgent)
}

func TestRun_LawyerAgentsAndKB(t *testing.T) {
	h := newHarness(t, linkyuntest.ReplyInline)
	h.login(t, "lawyer")

	out := h.run(t, "agents")
	assert.Contains(t, out, "legal-lawyer")

	out = h.run(t, "agents", "create", "-code", "twin-zhang", "-name", "张律师")
	assert.Contains(t, out, "已创建 Agent 张律师")

	out = h.run(t, "kb", "create", "-name", "合同法")
	assert.Contains(t, out, "已创建知识库 合同法")

	out = h.run(t, "kb", "list")
	fields := strings.Fields(out)
	require.NotEmpty(t, fields)
	kbID := fields[0]

	doc := filepath.Join(t.TempDir(), "第一章.txt")
	require.NoError(t, os.WriteFile(doc, []byte("合同是民事主体之间的协议。"), 0o600))
	out = h.run(t, "kb", "add", "-kb", kbID, "-file", doc)
	assert.Contains(t, out, "已添加文档 第一章.txt")

	out = h.run(t, "kb", "docs", kbID)
	assert.Contains(t, out, "第一章.txt")

	h.run(t, "kb", "rm", kbID)
	out = h.run(t, "kb", "list")
	assert.Empty(t, strings.TrimSpace(out))
}
