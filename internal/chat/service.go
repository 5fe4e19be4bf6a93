package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/legalwise/internal/linkyun"
)

var (
	ErrEmptyMessage       = errors.New("chat: message has no text and no valid attachments")
	ErrSessionNotFound    = errors.New("chat: session not found")
	ErrAgentNotConfigured = errors.New("chat: no agent configured for this portal")
)

const (
	defaultImagePrompt = "请分析这个图片"
	defaultDocPrompt   = "(附带文档)"
	historyLimit       = 50
	titleTimeout       = 30 * time.Second
)

// Backend is the Linkyun surface the chat service depends on. *linkyun.Client implements it.
type Backend interface {
	Uploader
	MessageLister
	Completer
	GetAgentByCode(ctx context.Context, code string) (*linkyun.Agent, error)
	CreateGroupChat(ctx context.Context, agentID linkyun.ID) (*linkyun.GroupChat, error)
	ListGroupChats(ctx context.Context, params linkyun.ListGroupChatsParams) ([]linkyun.GroupChat, error)
	UpdateGroupChat(ctx context.Context, id linkyun.ID, req linkyun.UpdateGroupChatRequest) (*linkyun.GroupChat, error)
	DeleteGroupChat(ctx context.Context, id linkyun.ID) error
	SendMessage(ctx context.Context, chatID linkyun.ID, req linkyun.SendMessageRequest) (*linkyun.SendResponse, error)
}

var _ Backend = (*linkyun.Client)(nil)

// SendError reports a failed send after the user message was committed locally.
type SendError struct {
	SessionID string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.SessionID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Hooks are invoked synchronously as session state changes. Any may be nil.
type Hooks struct {
	OnMessage   func(sessionID string, m Message)
	OnLoadError func(sessionID string)
	OnTitle     func(sessionID, title string)
}

type Service struct {
	backend   Backend
	store     *Store
	resolver  *Resolver
	poller    *Poller
	agentCode string
	hooks     Hooks
	log       *slog.Logger
	now       func() time.Time

	agentMu   sync.Mutex
	agent     *linkyun.Agent
	titleTime time.Duration
	bg        sync.WaitGroup
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithPolling overrides the reply poll interval and timeout.
func WithPolling(interval, timeout time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.poller.Interval = interval
		}
		if timeout > 0 {
			s.poller.Timeout = timeout
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(s *Service) { s.hooks = h }
}

func WithStore(st *Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTitleTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.titleTime = d
		}
	}
}

// NewService binds a chat service to the agent identified by agentCode.
func NewService(backend Backend, agentCode string, opts ...Option) *Service {
	s := &Service{
		backend:   backend,
		store:     NewStore(),
		resolver:  NewResolver(backend),
		poller:    &Poller{Lister: backend, Interval: DefaultPollInterval, Timeout: DefaultPollTimeout},
		agentCode: strings.TrimSpace(agentCode),
		log:       slog.Default(),
		now:       time.Now,
		titleTime: titleTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Store() *Store { return s.store }

// Agent resolves and caches the configured agent.
func (s *Service) Agent(ctx context.Context) (*linkyun.Agent, error) {
	s.agentMu.Lock()
	defer s.agentMu.Unlock()
	if s.agent != nil {
		return s.agent, nil
	}
	if s.agentCode == "" {
		return nil, ErrAgentNotConfigured
	}
	a, err := s.backend.GetAgentByCode(ctx, s.agentCode)
	if err != nil {
		return nil, fmt.Errorf("resolve agent %s: %w", s.agentCode, err)
	}
	s.agent = a
	return a, nil
}

// NewSession creates a remote group chat with the agent, mirrors it locally and activates it.
func (s *Service) NewSession(ctx context.Context) (Session, error) {
	agent, err := s.Agent(ctx)
	if err != nil {
		return Session{}, err
	}
	gc, err := s.backend.CreateGroupChat(ctx, agent.ID)
	if err != nil {
		return Session{}, fmt.Errorf("create chat: %w", err)
	}
	sess := Session{
		ID:        gc.ID.String(),
		Title:     DefaultTitle,
		CreatedAt: s.now(),
		AgentID:   agent.ID.String(),
		AgentName: agent.Name,
	}
	s.store.Prepend(sess)
	s.store.SetActive(sess.ID)
	s.log.Info("chat session created", "session", sess.ID, "agent", agent.Code)
	return sess, nil
}

type SendRequest struct {
	// SessionID defaults to the active session; a new one is created when neither exists.
	SessionID string
	Text      string
	Files     []PendingFile
}

type SendResult struct {
	SessionID string
	User      Message
	// Committed is true once the user message was appended locally.
	Committed bool
	// Reply is nil when no reply was appended.
	Reply *Message
	// Stale is set when a reply arrived after a newer send and was discarded.
	Stale bool
}

// Send commits the user message locally, sends it and waits for the assistant reply.
// The returned result is non-nil whenever the session was resolved, even on error.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	text := strings.TrimSpace(req.Text)
	valid := make([]PendingFile, 0, len(req.Files))
	for _, f := range req.Files {
		if f.Valid() {
			valid = append(valid, f)
		}
	}
	if text == "" && len(valid) == 0 {
		return nil, ErrEmptyMessage
	}

	// 1) resolve target session
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.store.ActiveID()
	}
	if sessionID == "" {
		sess, err := s.NewSession(ctx)
		if err != nil {
			s.log.Error("create session failed", "err", err)
			return nil, err
		}
		sessionID = sess.ID
	} else if _, ok := s.store.Get(sessionID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	res := &SendResult{SessionID: sessionID}

	// 2) upload attachments before anything is committed
	atts, err := s.resolver.Resolve(ctx, valid)
	if err != nil {
		s.log.Error("upload failed", "session", sessionID, "err", err)
		return res, err
	}
	if len(atts) == 0 {
		atts = nil
	}

	// 3) optimistic append
	if text == "" {
		text = defaultDocPrompt
		for _, a := range atts {
			if a.Type == AttachmentImage {
				text = defaultImagePrompt
				break
			}
		}
	}
	user := Message{
		ID:          uuid.NewString(),
		Role:        RoleUser,
		Content:     text,
		Timestamp:   s.now(),
		Attachments: atts,
	}
	sess, gen, ok := s.store.Commit(sessionID, user)
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	res.User, res.Committed = user, true
	s.emitMessage(sessionID, user)
	baseline := len(sess.Messages)

	// 4) send and reconcile
	resp, err := s.backend.SendMessage(ctx, linkyun.ID(sessionID), linkyun.SendMessageRequest{
		Content:     text,
		Attachments: attachmentRefs(atts),
	})
	if err != nil {
		s.log.Error("send message failed", "session", sessionID, "err", err)
		s.finishSend(sessionID, gen)
		return res, &SendError{SessionID: sessionID, Err: err}
	}

	content, ok := replyFromSend(resp, baseline)
	if !ok {
		s.log.Debug("reply not in send response, polling", "session", sessionID, "kind", resp.Kind.String(), "baseline", baseline)
		content, err = s.poller.Wait(ctx, sessionID, baseline)
		if err != nil {
			if errors.Is(err, ErrReplyTimeout) {
				s.markLoadError(sessionID, gen)
			} else {
				s.log.Error("poll for reply failed", "session", sessionID, "err", err)
				s.finishSend(sessionID, gen)
			}
			return res, &SendError{SessionID: sessionID, Err: err}
		}
	}

	// 5) append reply unless a newer send superseded this one
	reply := Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: s.now(),
	}
	updated, current := s.store.UpdateIfCurrent(sessionID, gen, func(ss *Session) {
		ss.Messages = append(ss.Messages, reply)
		ss.Loading = false
		ss.LoadError = false
	})
	if !current {
		s.log.Warn("discarding stale reply", "session", sessionID, "generation", gen)
		res.Stale = true
		return res, nil
	}
	res.Reply = &reply
	s.emitMessage(sessionID, reply)

	if shouldTitle(len(updated.Messages)) {
		s.titleAsync(ctx, sessionID)
	}
	return res, nil
}

func (s *Service) finishSend(id string, gen uint64) {
	s.store.UpdateIfCurrent(id, gen, func(ss *Session) { ss.Loading = false })
}

// markLoadError flags the session once per timed-out send.
func (s *Service) markLoadError(id string, gen uint64) {
	_, current := s.store.UpdateIfCurrent(id, gen, func(ss *Session) {
		ss.Loading = false
		ss.LoadError = true
	})
	if !current {
		return
	}
	s.log.Warn("reply timed out", "session", id, "timeout", s.poller.Timeout)
	if s.hooks.OnLoadError != nil {
		s.hooks.OnLoadError(id)
	}
}

func (s *Service) emitMessage(id string, m Message) {
	if s.hooks.OnMessage != nil {
		s.hooks.OnMessage(id, m)
	}
}

func (s *Service) titleAsync(ctx context.Context, id string) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.titleTime)
		defer cancel()
		if _, err := s.GenerateTitle(tctx, id); err != nil {
			s.log.Debug("title generation failed", "session", id, "err", err)
		}
	}()
}

// GenerateTitle derives a title from the session's first messages, applies it
// locally and patches the remote chat. Every call patches again.
func (s *Service) GenerateTitle(ctx context.Context, id string) (string, error) {
	sess, ok := s.store.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	title, err := GenerateTitle(ctx, s.backend, sess.Messages)
	if err != nil {
		return "", err
	}
	if _, ok := s.store.Update(id, func(ss *Session) { ss.Title = title }); !ok {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if s.hooks.OnTitle != nil {
		s.hooks.OnTitle(id, title)
	}
	if _, err := s.backend.UpdateGroupChat(ctx, linkyun.ID(id), linkyun.UpdateGroupChatRequest{Title: title}); err != nil {
		s.log.Debug("patch title failed", "session", id, "err", err)
	}
	return title, nil
}

// Wait blocks until background title jobs finish.
func (s *Service) Wait() { s.bg.Wait() }

// SelectSession activates a session, loading its messages when none are held locally.
func (s *Service) SelectSession(ctx context.Context, id string) (Session, error) {
	if !s.store.SetActive(id) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess, _ := s.store.Update(id, func(ss *Session) { ss.LoadError = false })
	if len(sess.Messages) > 0 {
		return sess, nil
	}
	return s.load(ctx, id)
}

// Refresh replaces local messages with the server's list and clears the load error.
func (s *Service) Refresh(ctx context.Context, id string) (Session, error) {
	if _, ok := s.store.Update(id, func(ss *Session) { ss.LoadError = false }); !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id string) (Session, error) {
	msgs, err := s.backend.ListMessages(ctx, linkyun.ID(id))
	if err != nil {
		s.log.Error("load messages failed", "session", id, "err", err)
		sess, _ := s.store.Get(id)
		return sess, fmt.Errorf("load messages: %w", err)
	}
	local := fromRemote(id, msgs, s.now())
	sess, ok := s.store.Update(id, func(ss *Session) { ss.Messages = local })
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// LoadHistory lists the agent's remote chats and makes them the local session list.
func (s *Service) LoadHistory(ctx context.Context) ([]Session, error) {
	agent, err := s.Agent(ctx)
	if err != nil {
		return nil, err
	}
	chats, err := s.backend.ListGroupChats(ctx, linkyun.ListGroupChatsParams{AgentID: agent.ID, Limit: historyLimit})
	if err != nil {
		s.log.Error("load chat history failed", "err", err)
		return nil, fmt.Errorf("list chats: %w", err)
	}
	chats = linkyun.FilterSingleAgentChats(chats, agent.ID)

	now := s.now()
	sessions := make([]Session, 0, len(chats))
	for _, gc := range chats {
		ss := sessionFromChat(gc, now)
		ss.AgentID, ss.AgentName = agent.ID.String(), agent.Name
		sessions = append(sessions, ss)
	}
	s.store.ReplaceAll(sessions)
	return s.store.List(), nil
}

// DeleteSession removes the session locally, then deletes it remotely on a best-effort basis.
func (s *Service) DeleteSession(ctx context.Context, id string) {
	s.store.Delete(id)
	if err := s.backend.DeleteGroupChat(ctx, linkyun.ID(id)); err != nil {
		s.log.Warn("delete remote chat failed", "session", id, "err", err)
	}
}

func (s *Service) Sessions() []Session { return s.store.List() }

func (s *Service) Session(id string) (Session, bool) { return s.store.Get(id) }

// Active returns the active session, if any.
func (s *Service) Active() (Session, bool) {
	id := s.store.ActiveID()
	if id == "" {
		return Session{}, false
	}
	return s.store.Get(id)
}
