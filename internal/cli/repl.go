package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/suPer8Hu/legalwise/internal/chat"
)

const replHelp = `命令：
  /new              新建对话
  /sessions         列出对话
  /use N|ID         切换对话
  /history          显示当前对话
  /refresh          从服务器重新加载当前对话
  /title            重新生成标题
  /delete [ID]      删除对话（默认当前）
  /image PATH       添加图片
  /doc PATH         添加文档
  /attach PATH      添加文件（按类型识别）
  /files            查看待发送文件
  /drop N           移除第 N 个待发送文件
  /quit             退出
其他输入将作为消息发送。`

// repl is the state of one interactive chat.
type repl struct {
	app  *App
	svc  *chat.Service
	tray chat.Tray
}

func (a *App) cmdChat(ctx context.Context, _ []string) error {
	svc, err := a.chatService(ctx)
	if err != nil {
		return err
	}
	if _, err := svc.LoadHistory(ctx); err != nil {
		a.log.Warn("load chat history", "error", err)
	}
	r := &repl{app: a, svc: svc}
	defer svc.Wait()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	historyFile := replHistoryPath()
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer saveHistory(line, historyFile)

	a.printf("输入消息开始咨询，/help 查看命令\n")
	for {
		input, err := line.Prompt(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		more, err := r.handle(ctx, input)
		if err != nil {
			fmt.Fprintf(a.errOut, "错误：%v\n", err)
		}
		if !more {
			return nil
		}
	}
}

func replHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "legalwise", "chat_history")
}

func saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}

func (r *repl) prompt() string {
	title := "新对话"
	if s, ok := r.svc.Active(); ok {
		title = s.Title
	}
	if n := r.tray.Len(); n > 0 {
		return fmt.Sprintf("[%s +%d] > ", title, n)
	}
	return fmt.Sprintf("[%s] > ", title)
}

// handle runs one line of input. It reports false when the loop should end.
func (r *repl) handle(ctx context.Context, input string) (bool, error) {
	if !strings.HasPrefix(input, "/") {
		return true, r.send(ctx, input)
	}
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	a := r.app

	switch cmd {
	case "/quit", "/exit", "/q":
		return false, nil
	case "/help":
		a.printf("%s\n", replHelp)
	case "/new":
		s, err := r.svc.NewSession(ctx)
		if err != nil {
			return true, err
		}
		a.printf("已新建对话 %s\n", s.ID)
	case "/sessions":
		r.listSessions()
	case "/use":
		id, err := r.sessionArg(arg)
		if err != nil {
			return true, err
		}
		s, err := r.svc.SelectSession(ctx, id)
		if err != nil {
			return true, err
		}
		r.printSession(s)
	case "/history":
		s, ok := r.svc.Active()
		if !ok {
			return true, errors.New("当前没有对话")
		}
		r.printSession(s)
	case "/refresh":
		s, ok := r.svc.Active()
		if !ok {
			return true, errors.New("当前没有对话")
		}
		s, err := r.svc.Refresh(ctx, s.ID)
		if err != nil {
			return true, err
		}
		r.printSession(s)
	case "/title":
		s, ok := r.svc.Active()
		if !ok {
			return true, errors.New("当前没有对话")
		}
		title, err := r.svc.GenerateTitle(ctx, s.ID)
		if err != nil {
			return true, err
		}
		a.printf("标题：%s\n", title)
	case "/delete":
		id := arg
		if id == "" {
			s, ok := r.svc.Active()
			if !ok {
				return true, errors.New("当前没有对话")
			}
			id = s.ID
		} else if resolved, err := r.sessionArg(arg); err == nil {
			id = resolved
		}
		r.svc.DeleteSession(ctx, id)
		a.printf("已删除 %s\n", id)
	case "/image", "/doc", "/attach":
		if arg == "" {
			return true, fmt.Errorf("%w: %s PATH", ErrUsage, cmd)
		}
		picker := chat.PickAuto
		switch cmd {
		case "/image":
			picker = chat.PickImage
		case "/doc":
			picker = chat.PickDocument
		}
		pf, err := a.validator().FromPath(arg, picker)
		if err != nil {
			return true, err
		}
		r.tray.Add(pf)
		if !pf.Valid() {
			a.printf("已添加 %s（不会发送：%s）\n", pf.Name, pf.Error)
		} else {
			a.printf("已添加 %s\n", pf.Name)
		}
	case "/files":
		r.listFiles()
	case "/drop":
		n, err := strconv.Atoi(arg)
		if err != nil || !r.tray.Remove(n-1) {
			return true, fmt.Errorf("%w: /drop N", ErrUsage)
		}
	default:
		return true, errUnknownInput
	}
	return true, nil
}

// send keeps the tray when nothing was committed so a failed upload can be retried
// without re-uploading the files that already went through.
func (r *repl) send(ctx context.Context, text string) error {
	res, err := r.svc.Send(ctx, chat.SendRequest{Text: text, Files: r.tray.Files()})
	if res != nil && res.Committed {
		r.tray.Clear()
	}
	var upErr *chat.UploadError
	if errors.As(err, &upErr) {
		r.tray.MarkUploaded(upErr.Uploaded)
	}
	if errors.Is(err, chat.ErrReplyTimeout) {
		r.app.printf("%s（输入 /refresh 重新加载）\n", chat.ErrReplyTimeout.Error())
		return nil
	}
	if err != nil {
		return err
	}
	switch {
	case res.Stale:
		r.app.printf("（回复已过期，已忽略）\n")
	case res.Reply != nil:
		r.app.printMessage(*res.Reply)
	}
	return nil
}

// sessionArg accepts a 1-based index into the session list or an id.
func (r *repl) sessionArg(arg string) (string, error) {
	if arg == "" {
		return "", fmt.Errorf("%w: /use N|ID", ErrUsage)
	}
	sessions := r.svc.Sessions()
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(sessions) {
		return sessions[n-1].ID, nil
	}
	if _, ok := r.svc.Session(arg); ok {
		return arg, nil
	}
	return "", fmt.Errorf("%w: %s", chat.ErrSessionNotFound, arg)
}

func (r *repl) listSessions() {
	sessions := r.svc.Sessions()
	if len(sessions) == 0 {
		r.app.printf("暂无对话\n")
		return
	}
	active, _ := r.svc.Active()
	for i, s := range sessions {
		mark := " "
		if s.ID == active.ID {
			mark = "*"
		}
		r.app.printf("%s %d. %s  %s\n", mark, i+1, s.Title, s.ID)
	}
}

func (r *repl) listFiles() {
	files := r.tray.Files()
	if len(files) == 0 {
		r.app.printf("没有待发送文件\n")
		return
	}
	for i, f := range files {
		status := "待上传"
		if f.Token != "" {
			status = "已上传"
		}
		if !f.Valid() {
			status = f.Error
		}
		r.app.printf("%d. %s (%s, %d 字节) %s\n", i+1, f.Name, f.Type, f.Size, status)
	}
}

func (r *repl) printSession(s chat.Session) {
	r.app.printf("# %s\n", s.Title)
	for _, m := range s.Messages {
		r.app.printMessage(m)
	}
	if s.LoadError {
		r.app.printf("%s（输入 /refresh 重新加载）\n", chat.ErrReplyTimeout.Error())
	}
}
