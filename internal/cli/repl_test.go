package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/legalwise/internal/chat"
	"github.com/suPer8Hu/legalwise/internal/linkyuntest"
)

func newTestREPL(t *testing.T, mode linkyuntest.ReplyMode) (*harness, *repl) {
	t.Helper()
	h := newHarness(t, mode)
	h.login(t, "individual")
	svc, err := h.app.chatService(context.Background())
	require.NoError(t, err)
	return h, &repl{app: h.app, svc: svc}
}

func TestREPL_SendAndSwitch(t *testing.T) {
	h, r := newTestREPL(t, linkyuntest.ReplyInline)
	ctx := context.Background()

	more, err := r.handle(ctx, "工伤赔偿标准")
	require.NoError(t, err)
	assert.True(t, more)
	assert.Contains(t, h.out.String(), "收到您的问题：工伤赔偿标准")
	first, ok := r.svc.Active()
	require.True(t, ok)
	assert.Equal(t, "[新对话] > ", r.prompt())

	_, err = r.handle(ctx, "/new")
	require.NoError(t, err)
	second, _ := r.svc.Active()
	assert.NotEqual(t, first.ID, second.ID)

	h.out.Reset()
	_, err = r.handle(ctx, "/sessions")
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "* 1.")

	h.out.Reset()
	_, err = r.handle(ctx, "/use 2")
	require.NoError(t, err)
	active, _ := r.svc.Active()
	assert.Equal(t, first.ID, active.ID)
	assert.Contains(t, h.out.String(), "你：工伤赔偿标准")

	more, err = r.handle(ctx, "/quit")
	require.NoError(t, err)
	assert.False(t, more)
}

func TestREPL_Tray(t *testing.T) {
	h, r := newTestREPL(t, linkyuntest.ReplyInline)
	ctx := context.Background()
	dir := t.TempDir()

	doc := filepath.Join(dir, "起诉状.md")
	require.NoError(t, os.WriteFile(doc, []byte("# 起诉状"), 0o600))
	bad := filepath.Join(dir, "scan.txt")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o600))

	_, err := r.handle(ctx, "/doc "+doc)
	require.NoError(t, err)
	_, err = r.handle(ctx, "/image "+bad)
	require.NoError(t, err)
	assert.Equal(t, 2, r.tray.Len())
	assert.Contains(t, h.out.String(), "不会发送")
	assert.Equal(t, "[新对话 +2] > ", r.prompt())

	h.out.Reset()
	_, err = r.handle(ctx, "/files")
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "1. 起诉状.md")
	assert.Contains(t, h.out.String(), "请上传图片")

	_, err = r.handle(ctx, "/drop 2")
	require.NoError(t, err)
	assert.Equal(t, 1, r.tray.Len())
	_, err = r.handle(ctx, "/drop 9")
	assert.ErrorIs(t, err, ErrUsage)

	_, err = r.handle(ctx, "请帮我看看")
	require.NoError(t, err)
	assert.Zero(t, r.tray.Len())

	s, _ := r.svc.Active()
	require.Len(t, s.Messages, 2)
	require.Len(t, s.Messages[0].Attachments, 1)
	assert.Equal(t, "起诉状.md", s.Messages[0].Attachments[0].Name)
}

func TestREPL_TimeoutAndRefresh(t *testing.T) {
	h, r := newTestREPL(t, linkyuntest.ReplyNone)
	ctx := context.Background()

	_, err := r.handle(ctx, "还在吗")
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "系统正在忙，请稍后刷新")

	s, _ := r.svc.Active()
	require.NoError(t, h.srv.Backend.AddAssistantMessage(ctx, s.ID, "刚才网络繁忙"))

	h.out.Reset()
	_, err = r.handle(ctx, "/refresh")
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "刚才网络繁忙")
	s, _ = r.svc.Active()
	assert.False(t, s.LoadError)
}

func TestREPL_UnknownCommand(t *testing.T) {
	_, r := newTestREPL(t, linkyuntest.ReplyInline)
	more, err := r.handle(context.Background(), "/frob")
	assert.True(t, more)
	assert.ErrorIs(t, err, errUnknownInput)
}

func TestREPL_RetryAfterUploadFailureKeepsTokens(t *testing.T) {
	h, r := newTestREPL(t, linkyuntest.ReplyInline)
	ctx := context.Background()
	dir := t.TempDir()

	doc := filepath.Join(dir, "证据清单.txt")
	require.NoError(t, os.WriteFile(doc, []byte("借条一份"), 0o600))
	fake := filepath.Join(dir, "借条.png")
	require.NoError(t, os.WriteFile(fake, []byte("plain text, not a png"), 0o600))

	_, err := r.handle(ctx, "/doc "+doc)
	require.NoError(t, err)
	_, err = r.handle(ctx, "/image "+fake)
	require.NoError(t, err)

	_, err = r.handle(ctx, "请看证据")
	var upErr *chat.UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "借条.png", upErr.Name)
	require.Equal(t, 2, r.tray.Len())

	files := r.tray.Files()
	assert.NotEmpty(t, files[0].Token)
	assert.Empty(t, files[1].Token)
	token := files[0].Token

	h.out.Reset()
	_, err = r.handle(ctx, "/files")
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "1. 证据清单.txt (file, 12 字节) 已上传")

	_, err = r.handle(ctx, "/drop 2")
	require.NoError(t, err)
	_, err = r.handle(ctx, "请看证据")
	require.NoError(t, err)

	s, _ := r.svc.Active()
	require.Len(t, s.Messages, 2)
	require.Len(t, s.Messages[0].Attachments, 1)
	assert.Equal(t, token, s.Messages[0].Attachments[0].Token)
}
