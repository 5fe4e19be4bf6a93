// Package cli is the legalwise terminal front end: one-shot subcommands and
// an interactive chat loop over the Linkyun API.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/suPer8Hu/legalwise/internal/account"
	"github.com/suPer8Hu/legalwise/internal/authstore"
	"github.com/suPer8Hu/legalwise/internal/chat"
	"github.com/suPer8Hu/legalwise/internal/config"
	"github.com/suPer8Hu/legalwise/internal/linkyun"
)

var (
	ErrUsage        = errors.New("usage")
	ErrNoAgent      = errors.New("司法端暂无可用的对话助手")
	errUnknownInput = errors.New("未知命令，输入 /help 查看帮助")
)

type App struct {
	cfg      *config.Config
	client   *linkyun.Client
	accounts *account.Manager
	render   *Renderer
	log      *slog.Logger
	out      io.Writer
	errOut   io.Writer
}

type Option func(*App)

func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

func WithOutput(out, errOut io.Writer) Option {
	return func(a *App) {
		if out != nil {
			a.out = out
		}
		if errOut != nil {
			a.errOut = errOut
		}
	}
}

func WithRenderer(r *Renderer) Option {
	return func(a *App) { a.render = r }
}

func New(cfg *config.Config, client *linkyun.Client, store authstore.Store, opts ...Option) *App {
	a := &App{
		cfg:    cfg,
		client: client,
		log:    slog.Default(),
		out:    os.Stdout,
		errOut: os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.accounts = account.NewManager(client, store,
		account.WithLogger(a.log),
		account.WithWorkspace(cfg.WorkspaceCode, cfg.WorkspaceJoinCode),
	)
	if a.render == nil {
		r, err := NewRenderer(cfg.RenderStyle, cfg.RenderWidth)
		if err != nil {
			a.log.Warn("markdown rendering disabled", "error", err)
			r = &Renderer{}
		}
		a.render = r
	}
	return a
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) error
}

func (a *App) commands() map[string]command {
	list := []command{
		{"login", "登录（-u 用户名 -p 密码 -role individual|lawyer|judiciary）", a.cmdLogin},
		{"register", "注册（-u -email -p -invite -role）", a.cmdRegister},
		{"logout", "退出登录", a.cmdLogout},
		{"whoami", "查看当前账号", a.cmdWhoami},
		{"sessions", "列出历史对话", a.cmdSessions},
		{"history", "查看对话消息（-session ID）", a.cmdHistory},
		{"send", "发送消息（-session ID -image 路径 -doc 路径 文本）", a.cmdSend},
		{"title", "重新生成对话标题（-session ID）", a.cmdTitle},
		{"delete", "删除对话（ID）", a.cmdDelete},
		{"chat", "进入交互式对话", a.cmdChat},
		{"agents", "列出或创建 Agent（agents [-status S] | agents create ...）", a.cmdAgents},
		{"kb", "知识库管理（kb list|create|docs|add|rm|rmdoc）", a.cmdKB},
	}
	m := make(map[string]command, len(list))
	for _, c := range list {
		m[c.name] = c
	}
	return m
}

// Run dispatches args[0] to a subcommand; no arguments starts the chat loop.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.cmdChat(ctx, nil)
	}
	cmds := a.commands()
	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		a.usage(cmds)
		return nil
	}
	c, ok := cmds[name]
	if !ok {
		a.usage(cmds)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, name)
	}
	return c.run(ctx, args[1:])
}

func (a *App) usage(cmds map[string]command) {
	names := make([]string, 0, len(cmds))
	for n := range cmds {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Fprintln(a.errOut, "用法: legalwise <命令> [参数]")
	for _, n := range names {
		fmt.Fprintf(a.errOut, "  %-9s %s\n", n, cmds[n].summary)
	}
}

func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func (a *App) printf(format string, args ...any) { fmt.Fprintf(a.out, format, args...) }

// Auth

func (a *App) cmdLogin(ctx context.Context, args []string) error {
	fs := a.flags("login")
	user := fs.String("u", "", "用户名或邮箱")
	pass := fs.String("p", "", "密码")
	role := fs.String("role", string(config.RoleIndividual), "登录端")
	if err := fs.Parse(args); err != nil {
		return err
	}
	r, err := config.ParseRole(*role)
	if err != nil {
		return err
	}
	st, err := a.accounts.Login(ctx, *user, *pass, r)
	if err != nil {
		return err
	}
	a.printf("已登录：%s（%s）\n", displayName(st.User), st.Role)
	return nil
}

func (a *App) cmdRegister(ctx context.Context, args []string) error {
	fs := a.flags("register")
	var p account.RegisterParams
	fs.StringVar(&p.Username, "u", "", "用户名")
	fs.StringVar(&p.Email, "email", "", "邮箱")
	fs.StringVar(&p.Password, "p", "", "密码")
	fs.StringVar(&p.InvitationCode, "invite", "", "邀请码")
	role := fs.String("role", string(config.RoleIndividual), "登录端")
	if err := fs.Parse(args); err != nil {
		return err
	}
	r, err := config.ParseRole(*role)
	if err != nil {
		return err
	}
	st, err := a.accounts.Register(ctx, p, r)
	if err != nil {
		return err
	}
	a.printf("注册成功，已登录：%s（%s）\n", displayName(st.User), st.Role)
	return nil
}

func (a *App) cmdLogout(ctx context.Context, _ []string) error {
	if err := a.accounts.Logout(ctx); err != nil {
		return err
	}
	a.printf("已退出登录\n")
	return nil
}

func (a *App) cmdWhoami(ctx context.Context, _ []string) error {
	st, err := a.accounts.Restore(ctx)
	if err != nil {
		return err
	}
	a.printf("用户：%s\n角色：%s\n", displayName(st.User), st.Role)
	if st.Workspace != nil {
		a.printf("工作空间：%s\n", st.Workspace.Code)
	}
	return nil
}

func displayName(u *linkyun.User) string {
	if u == nil {
		return "-"
	}
	for _, s := range []string{u.FullName, u.Username, u.Email} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return u.ID.String()
}

// Chat

// chatService restores the login and binds a chat service to the role's agent.
func (a *App) chatService(ctx context.Context) (*chat.Service, error) {
	st, err := a.accounts.Restore(ctx)
	if err != nil {
		return nil, err
	}
	code := a.cfg.AgentCode(st.Role)
	if code == "" {
		if st.Role == config.RoleJudiciary {
			return nil, ErrNoAgent
		}
		return nil, fmt.Errorf("未配置 %s 端的 Agent 编码", st.Role)
	}
	return chat.NewService(a.client, code,
		chat.WithLogger(a.log),
		chat.WithPolling(a.cfg.PollInterval, a.cfg.PollTimeout),
	), nil
}

func (a *App) validator() chat.Validator {
	return chat.Validator{MaxBytes: a.cfg.UploadMaxBytes}
}

func (a *App) cmdSessions(ctx context.Context, _ []string) error {
	svc, err := a.chatService(ctx)
	if err != nil {
		return err
	}
	sessions, err := svc.LoadHistory(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		a.printf("暂无历史对话\n")
		return nil
	}
	for _, s := range sessions {
		a.printf("%s\t%s\t%s\n", s.ID, s.Title, s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// openSession loads the history and selects id, fetching its messages.
func (a *App) openSession(ctx context.Context, svc *chat.Service, id string) (chat.Session, error) {
	if _, err := svc.LoadHistory(ctx); err != nil {
		return chat.Session{}, err
	}
	return svc.SelectSession(ctx, id)
}

func (a *App) cmdHistory(ctx context.Context, args []string) error {
	fs := a.flags("history")
	id := fs.String("session", "", "对话 ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: history -session ID", ErrUsage)
	}
	svc, err := a.chatService(ctx)
	if err != nil {
		return err
	}
	sess, err := a.openSession(ctx, svc, *id)
	if err != nil {
		return err
	}
	a.printf("# %s\n", sess.Title)
	for _, m := range sess.Messages {
		a.printMessage(m)
	}
	return nil
}

func (a *App) cmdSend(ctx context.Context, args []string) error {
	fs := a.flags("send")
	id := fs.String("session", "", "对话 ID（默认新建）")
	var images, docs multiFlag
	fs.Var(&images, "image", "图片路径，可重复")
	fs.Var(&docs, "doc", "文档路径，可重复")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text := strings.Join(fs.Args(), " ")

	var files []chat.PendingFile
	for _, group := range []struct {
		paths  []string
		picker chat.Picker
	}{{images, chat.PickImage}, {docs, chat.PickDocument}} {
		for _, p := range group.paths {
			pf, err := a.validator().FromPath(p, group.picker)
			if err != nil {
				return err
			}
			if !pf.Valid() {
				return fmt.Errorf("%s: %s", pf.Name, pf.Error)
			}
			files = append(files, pf)
		}
	}

	svc, err := a.chatService(ctx)
	if err != nil {
		return err
	}
	if *id != "" {
		if _, err := a.openSession(ctx, svc, *id); err != nil {
			return err
		}
	}
	res, err := svc.Send(ctx, chat.SendRequest{SessionID: *id, Text: text, Files: files})
	defer svc.Wait()
	return a.reportSend(res, err)
}

// reportSend prints the reply or the reason there is none. A timed-out reply is
// not an error for the caller.
func (a *App) reportSend(res *chat.SendResult, err error) error {
	if res != nil && res.SessionID != "" {
		fmt.Fprintf(a.errOut, "对话：%s\n", res.SessionID)
	}
	switch {
	case errors.Is(err, chat.ErrReplyTimeout):
		a.printf("%s\n", chat.ErrReplyTimeout.Error())
		return nil
	case err != nil:
		return err
	case res.Stale:
		a.printf("（回复已过期，已忽略）\n")
	case res.Reply != nil:
		a.printMessage(*res.Reply)
	}
	return nil
}

func (a *App) printMessage(m chat.Message) {
	switch m.Role {
	case chat.RoleUser:
		a.printf("你：%s\n", m.Content)
	default:
		a.printf("助手：\n%s\n", a.render.Render(m.Content))
	}
	for _, att := range m.Attachments {
		a.printf("  [附件] %s %s\n", att.Name, att.DownloadURL)
	}
}

func (a *App) cmdTitle(ctx context.Context, args []string) error {
	fs := a.flags("title")
	id := fs.String("session", "", "对话 ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: title -session ID", ErrUsage)
	}
	svc, err := a.chatService(ctx)
	if err != nil {
		return err
	}
	if _, err := a.openSession(ctx, svc, *id); err != nil {
		return err
	}
	title, err := svc.GenerateTitle(ctx, *id)
	if err != nil {
		return err
	}
	a.printf("标题：%s\n", title)
	return nil
}

func (a *App) cmdDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: delete ID", ErrUsage)
	}
	svc, err := a.chatService(ctx)
	if err != nil {
		return err
	}
	if _, err := svc.LoadHistory(ctx); err != nil {
		return err
	}
	svc.DeleteSession(ctx, args[0])
	a.printf("已删除 %s\n", args[0])
	return nil
}

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
