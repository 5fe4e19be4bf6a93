package linkyun

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ID is a resource id. The backend returns some ids as numbers and others as strings.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Int64 parses the id as a number; agent ids must be sent numerically.
func (id ID) Int64() (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(id)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("无效的 Agent ID %q", string(id))
	}
	return n, nil
}

type User struct {
	ID        ID     `json:"id"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type Workspace struct {
	ID   ID     `json:"id"`
	Code string `json:"code,omitempty"`
	Name string `json:"name,omitempty"`
}

// Agent is an AI persona on the backend ("digital twin" in the lawyer portal).
type Agent struct {
	ID              ID       `json:"id"`
	Code            string   `json:"code,omitempty"`
	Name            string   `json:"name,omitempty"`
	Description     string   `json:"description,omitempty"`
	Model           string   `json:"model,omitempty"`
	Status          string   `json:"status,omitempty"`
	SystemPrompt    string   `json:"system_prompt,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	AgentType       string   `json:"agent_type,omitempty"`
	KnowledgeBaseID *int64   `json:"knowledge_base_id,omitempty"`
	RAGConfig       *struct {
		KnowledgeBaseIDs []string `json:"knowledge_base_ids,omitempty"`
	} `json:"rag_config,omitempty"`
	AvatarURLRaw   string `json:"avatar_url,omitempty"`
	AvatarFilename string `json:"avatar_filename,omitempty"`
	Metadata       *struct {
		Avatar string `json:"avatar,omitempty"`
	} `json:"metadata,omitempty"`
}

// AvatarURL returns a full avatar URL. Bare filenames are served from
// {avatarBase}/api/v1/avatars/{filename}.
func (a *Agent) AvatarURL(avatarBase string) string {
	if a == nil {
		return ""
	}
	if strings.HasPrefix(a.AvatarURLRaw, "http") {
		return a.AvatarURLRaw
	}
	fn := a.AvatarFilename
	if fn == "" && a.Metadata != nil {
		fn = a.Metadata.Avatar
	}
	base := strings.TrimRight(avatarBase, "/")
	if fn == "" || base == "" {
		return ""
	}
	return base + apiPrefix + "/avatars/" + url.PathEscape(fn)
}

type KnowledgeBase struct {
	ID            ID     `json:"id"`
	Name          string `json:"name,omitempty"`
	Code          string `json:"code,omitempty"`
	Description   string `json:"description,omitempty"`
	DocumentCount int    `json:"document_count,omitempty"`
	TotalSize     int64  `json:"total_size,omitempty"`
	Status        string `json:"status,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

type Document struct {
	ID         ID     `json:"id"`
	Name       string `json:"name,omitempty"`
	Filename   string `json:"filename,omitempty"`
	FileType   string `json:"file_type,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Status     string `json:"status,omitempty"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// Participant is a member of a group chat.
type Participant struct {
	ID   ID     `json:"id"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// GroupChat pairs a user with one or more agents.
type GroupChat struct {
	ID           ID            `json:"id"`
	Title        string        `json:"title,omitempty"`
	Topic        string        `json:"topic,omitempty"`
	AgentIDs     []ID          `json:"agent_ids,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	CreatedAt    string        `json:"created_at,omitempty"`
	UpdatedAt    string        `json:"updated_at,omitempty"`
}

// DisplayTitle is the title, then the topic, then the default placeholder.
func (g GroupChat) DisplayTitle() string {
	if t := strings.TrimSpace(g.Title); t != "" {
		return t
	}
	if t := strings.TrimSpace(g.Topic); t != "" {
		return t
	}
	return "新对话"
}

// CreatedTime parses created_at; the zero time is returned when absent or invalid.
func (g GroupChat) CreatedTime() time.Time {
	return ParseTime(g.CreatedAt)
}

// MessageAttachment as stored on a remote message.
type MessageAttachment struct {
	Type        string `json:"type"`
	Token       string `json:"token,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	Name        string `json:"name,omitempty"`
	Size        int64  `json:"size,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

type Message struct {
	ID          ID                  `json:"id,omitempty"`
	Role        string              `json:"role,omitempty"`
	Content     string              `json:"content"`
	Attachments []MessageAttachment `json:"attachments,omitempty"`
	CreatedAt   string              `json:"created_at,omitempty"`
}

// HasAssistantContent reports an assistant-role message with non-blank content.
func (m *Message) HasAssistantContent() bool {
	return m != nil && m.Role == "assistant" && strings.TrimSpace(m.Content) != ""
}

// ParseTime accepts RFC 3339 timestamps with or without fractional seconds.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
