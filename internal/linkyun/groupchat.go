package linkyun

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const defaultChatTitle = "新建对话"

type ListGroupChatsParams struct {
	AgentID  ID
	AgentIDs []ID
	Limit    int
	Offset   int
}

func (p ListGroupChatsParams) query() url.Values {
	q := url.Values{}
	if p.AgentID != "" {
		q.Set("agent_id", p.AgentID.String())
	}
	if len(p.AgentIDs) > 0 {
		ids := make([]string, 0, len(p.AgentIDs))
		for _, id := range p.AgentIDs {
			ids = append(ids, id.String())
		}
		q.Set("agent_ids", strings.Join(ids, ","))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	return q
}

func groupChatPath(id ID) string {
	return "/user/group-chats/" + url.PathEscape(id.String())
}

func (c *Client) ListGroupChats(ctx context.Context, params ListGroupChatsParams) ([]GroupChat, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/user/group-chats", params.query(), nil, &raw); err != nil {
		return nil, err
	}
	chats, err := decodeList[GroupChat](raw, "items", "group_chats", "list", "data", "result")
	if err != nil || chats != nil {
		return chats, err
	}
	return firstArrayField[GroupChat](raw)
}

// firstArrayField decodes the first array-valued field of an object, in key order.
func firstArrayField[T any](raw json.RawMessage) ([]T, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, nil
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if t := bytes.TrimSpace(v); len(t) > 0 && t[0] == '[' {
			var out []T
			if err := json.Unmarshal(t, &out); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
			return out, nil
		}
	}
	return nil, nil
}

// CreateGroupChat opens a new chat between the current user and one agent.
func (c *Client) CreateGroupChat(ctx context.Context, agentID ID) (*GroupChat, error) {
	n, err := agentID.Int64()
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"agent_ids": []int64{n},
		"topic":     defaultChatTitle,
		"title":     defaultChatTitle,
	}
	var out GroupChat
	if err := c.doJSON(ctx, http.MethodPost, "/user/group-chats", nil, body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("创建群聊失败")
	}
	return &out, nil
}

func (c *Client) GetGroupChat(ctx context.Context, id ID) (*GroupChat, error) {
	var out GroupChat
	if err := c.doJSON(ctx, http.MethodGet, groupChatPath(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type UpdateGroupChatRequest struct {
	Title string `json:"title,omitempty"`
	Topic string `json:"topic,omitempty"`
}

func (c *Client) UpdateGroupChat(ctx context.Context, id ID, req UpdateGroupChatRequest) (*GroupChat, error) {
	var out GroupChat
	if err := c.doJSON(ctx, http.MethodPatch, groupChatPath(id), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteGroupChat(ctx context.Context, id ID) error {
	return c.doJSON(ctx, http.MethodDelete, groupChatPath(id), nil, nil, nil)
}

func (c *Client) ListMessages(ctx context.Context, chatID ID) ([]Message, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, groupChatPath(chatID)+"/messages", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[Message](raw, "messages", "items")
}

// AttachmentRef is the only attachment data sent with a message.
type AttachmentRef struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type SendMessageRequest struct {
	Content     string          `json:"content"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	Stream      bool            `json:"stream"`
}

// SendKind tags the shape of a send response.
type SendKind int

const (
	// SendAccepted: the server acknowledged without returning messages.
	SendAccepted SendKind = iota
	// SendMessageObject: a single message object.
	SendMessageObject
	// SendMessageList: the conversation's message list.
	SendMessageList
)

func (k SendKind) String() string {
	switch k {
	case SendMessageObject:
		return "message"
	case SendMessageList:
		return "list"
	default:
		return "accepted"
	}
}

type SendResponse struct {
	Kind     SendKind
	Message  *Message
	Messages []Message
}

// DecodeSendResponse classifies a send response body. Scalars are rejected.
func DecodeSendResponse(raw json.RawMessage) (*SendResponse, error) {
	t := bytes.TrimSpace(raw)
	if isNull(t) {
		return &SendResponse{Kind: SendAccepted}, nil
	}
	switch t[0] {
	case '[':
		var msgs []Message
		if err := json.Unmarshal(t, &msgs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return &SendResponse{Kind: SendMessageList, Messages: msgs}, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(t, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if _, ok := obj["role"]; ok {
			var m Message
			if err := json.Unmarshal(t, &m); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
			return &SendResponse{Kind: SendMessageObject, Message: &m}, nil
		}
		if v, ok := obj["messages"]; ok && !isNull(v) {
			var msgs []Message
			if err := json.Unmarshal(v, &msgs); err != nil {
				return nil, fmt.Errorf("%w: messages: %v", ErrMalformedResponse, err)
			}
			return &SendResponse{Kind: SendMessageList, Messages: msgs}, nil
		}
		return &SendResponse{Kind: SendAccepted}, nil
	}
	return nil, fmt.Errorf("%w: unexpected send response %.32s", ErrMalformedResponse, t)
}

// SendMessage posts a non-streaming message to a group chat.
func (c *Client) SendMessage(ctx context.Context, chatID ID, req SendMessageRequest) (*SendResponse, error) {
	req.Stream = false
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, groupChatPath(chatID)+"/messages", nil, req, &raw); err != nil {
		return nil, err
	}
	return DecodeSendResponse(raw)
}

// FilterSingleAgentChats keeps chats whose only agent is agentID. Chats that
// report no membership at all are kept, since the list was already queried by agent.
func FilterSingleAgentChats(chats []GroupChat, agentID ID) []GroupChat {
	out := make([]GroupChat, 0, len(chats))
	for _, gc := range chats {
		agents := chatAgents(gc)
		if len(agents) == 0 {
			out = append(out, gc)
			continue
		}
		if len(agents) == 1 && agents[0] == agentID {
			out = append(out, gc)
		}
	}
	return out
}

func chatAgents(gc GroupChat) []ID {
	if len(gc.AgentIDs) > 0 {
		return dedupe(gc.AgentIDs)
	}
	var ids []ID
	for _, p := range gc.Participants {
		if strings.EqualFold(p.Type, "agent") {
			ids = append(ids, p.ID)
		}
	}
	return dedupe(ids)
}

func dedupe(ids []ID) []ID {
	seen := make(map[ID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
