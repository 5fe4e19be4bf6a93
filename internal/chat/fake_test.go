package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/suPer8Hu/legalwise/internal/linkyun"
)

// fakeBackend is an in-memory Backend. By default a send stores the user
// message and is acknowledged without a reply; tests script replies via onSend.
type fakeBackend struct {
	mu sync.Mutex

	agent    linkyun.Agent
	chats    []linkyun.GroupChat
	messages map[string][]linkyun.Message
	nextID   int

	onSend    func(chatID string, req linkyun.SendMessageRequest) (*linkyun.SendResponse, error)
	onList    func(chatID string, calls int) ([]linkyun.Message, error)
	uploadErr map[string]error
	deleteErr error

	titleReply string
	titleErr   error

	sent       []linkyun.SendMessageRequest
	uploads    []string
	listCalls  int
	titleCalls int
	patches    []string
	deleted    []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		agent:      linkyun.Agent{ID: "7", Code: "legal-individual", Name: "法律助手"},
		messages:   make(map[string][]linkyun.Message),
		titleReply: "欠款起诉",
	}
}

func (f *fakeBackend) GetAgentByCode(ctx context.Context, code string) (*linkyun.Agent, error) {
	if code != f.agent.Code {
		return nil, &linkyun.APIError{Status: 404, Message: "Agent 不存在"}
	}
	a := f.agent
	return &a, nil
}

func (f *fakeBackend) CreateGroupChat(ctx context.Context, agentID linkyun.ID) (*linkyun.GroupChat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	gc := linkyun.GroupChat{ID: linkyun.ID(fmt.Sprintf("chat-%d", f.nextID)), Title: "新建对话", AgentIDs: []linkyun.ID{agentID}}
	f.chats = append(f.chats, gc)
	return &gc, nil
}

func (f *fakeBackend) ListGroupChats(ctx context.Context, params linkyun.ListGroupChatsParams) ([]linkyun.GroupChat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]linkyun.GroupChat(nil), f.chats...), nil
}

func (f *fakeBackend) UpdateGroupChat(ctx context.Context, id linkyun.ID, req linkyun.UpdateGroupChatRequest) (*linkyun.GroupChat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, req.Title)
	return &linkyun.GroupChat{ID: id, Title: req.Title}, nil
}

func (f *fakeBackend) DeleteGroupChat(ctx context.Context, id linkyun.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id.String())
	return f.deleteErr
}

func (f *fakeBackend) ListMessages(ctx context.Context, chatID linkyun.ID) ([]linkyun.Message, error) {
	f.mu.Lock()
	f.listCalls++
	calls := f.listCalls
	onList := f.onList
	msgs := append([]linkyun.Message(nil), f.messages[chatID.String()]...)
	f.mu.Unlock()
	if onList != nil {
		return onList(chatID.String(), calls)
	}
	return msgs, nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, chatID linkyun.ID, req linkyun.SendMessageRequest) (*linkyun.SendResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	var atts []linkyun.MessageAttachment
	for _, a := range req.Attachments {
		atts = append(atts, linkyun.MessageAttachment{Type: a.Type, Token: a.Token})
	}
	f.messages[chatID.String()] = append(f.messages[chatID.String()], linkyun.Message{
		ID: linkyun.ID(fmt.Sprintf("m-%d", len(f.messages[chatID.String()])+1)), Role: "user", Content: req.Content, Attachments: atts,
	})
	onSend := f.onSend
	f.mu.Unlock()
	if onSend != nil {
		return onSend(chatID.String(), req)
	}
	return &linkyun.SendResponse{Kind: linkyun.SendAccepted}, nil
}

// addReply appends an assistant message to the remote history.
func (f *fakeBackend) addReply(chatID, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[chatID] = append(f.messages[chatID], linkyun.Message{
		ID: linkyun.ID(fmt.Sprintf("m-%d", len(f.messages[chatID])+1)), Role: "assistant", Content: content,
	})
}

func (f *fakeBackend) history(chatID string) []linkyun.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]linkyun.Message(nil), f.messages[chatID]...)
}

func (f *fakeBackend) SimpleChat(ctx context.Context, req linkyun.SimpleChatRequest) (*linkyun.SimpleChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleCalls++
	if f.titleErr != nil {
		return nil, f.titleErr
	}
	return &linkyun.SimpleChatResponse{Content: f.titleReply}, nil
}

func (f *fakeBackend) UploadImage(ctx context.Context, name, mimeType string, r io.Reader) (*linkyun.Upload, error) {
	return f.upload(name, r)
}

func (f *fakeBackend) UploadDocument(ctx context.Context, name, mimeType string, r io.Reader) (*linkyun.Upload, error) {
	return f.upload(name, r)
}

func (f *fakeBackend) upload(name string, r io.Reader) (*linkyun.Upload, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.uploadErr[name]; err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, name)
	return &linkyun.Upload{Token: "tok-" + name}, nil
}

func (f *fakeBackend) FileDownloadURL(token string) string {
	return "https://linkyun.test/api/v1/files/" + token + "/download"
}

func (f *fakeBackend) counts() (titleCalls int, patches []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.titleCalls, append([]string(nil), f.patches...)
}

// inlineReply answers every send synchronously with an assistant message object.
func inlineReply(f *fakeBackend, content string) func(string, linkyun.SendMessageRequest) (*linkyun.SendResponse, error) {
	return func(chatID string, _ linkyun.SendMessageRequest) (*linkyun.SendResponse, error) {
		f.addReply(chatID, content)
		return &linkyun.SendResponse{Kind: linkyun.SendMessageObject, Message: &linkyun.Message{Role: "assistant", Content: content}}, nil
	}
}

var errBoom = errors.New("boom")
