package chat

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AttachmentType matches the backend attachment type.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentFile  AttachmentType = "file"
)

// Attachment references a file already uploaded to the backend.
type Attachment struct {
	Type        AttachmentType `json:"type"`
	Token       string         `json:"token"`
	MimeType    string         `json:"mime_type,omitempty"`
	Name        string         `json:"name,omitempty"`
	Size        int64          `json:"size,omitempty"`
	DownloadURL string         `json:"download_url,omitempty"`
	PreviewURL  string         `json:"preview_url,omitempty"`
}

// Message is immutable once appended to a session.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	AgentID   string    `json:"agent_id,omitempty"`
	AgentName string    `json:"agent_name,omitempty"`

	// Loading is set while a send awaits its reply.
	Loading bool `json:"loading"`
	// LoadError is set when the last reply did not arrive in time.
	LoadError bool `json:"load_error"`
}

const DefaultTitle = "新对话"

func (s *Session) clone() *Session {
	cp := *s
	cp.Messages = cloneMessages(s.Messages)
	return &cp
}

func cloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = m
		if m.Attachments != nil {
			out[i].Attachments = append([]Attachment(nil), m.Attachments...)
		}
	}
	return out
}

// LastMessage returns the tail message, if any.
func (s Session) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
