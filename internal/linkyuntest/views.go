package linkyuntest

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
)

// JSON shapes mirror what the real API returns, including its mix of
// numeric and string ids.

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func userView(u *User) gin.H {
	return gin.H{
		"id":        u.ID,
		"username":  u.Username,
		"email":     u.Email,
		"full_name": u.FullName,
	}
}

func workspaceView(ws *Workspace) gin.H {
	return gin.H{"id": ws.ID, "code": ws.Code, "name": ws.Name}
}

func agentView(a *Agent) gin.H {
	v := gin.H{
		"id":             a.ID,
		"code":           a.Code,
		"name":           a.Name,
		"description":    a.Description,
		"model":          a.Model,
		"status":         a.Status,
		"system_prompt":  a.SystemPrompt,
		"temperature":    a.Temperature,
		"agent_type":     a.AgentType,
		"memory_enabled": a.MemoryEnabled,
	}
	if a.AvatarFilename != "" {
		v["avatar_filename"] = a.AvatarFilename
	}
	if a.KnowledgeBaseID != nil {
		v["knowledge_base_id"] = *a.KnowledgeBaseID
	}
	return v
}

func chatView(gc *GroupChat, agentName string) gin.H {
	return gin.H{
		"id":        gc.ID,
		"title":     gc.Title,
		"topic":     gc.Topic,
		"agent_ids": []uint64{gc.AgentID},
		"participants": []gin.H{
			{"id": gc.UserID, "type": "user"},
			{"id": gc.AgentID, "type": "agent", "name": agentName},
		},
		"created_at": ts(gc.CreatedAt),
		"updated_at": ts(gc.UpdatedAt),
	}
}

type attachmentView struct {
	Type        string `json:"type"`
	Token       string `json:"token"`
	MimeType    string `json:"mime_type,omitempty"`
	Name        string `json:"name,omitempty"`
	Size        int64  `json:"size,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

func fileViewURLs(f *File) (download, preview string) {
	download = "/api/v1/files/" + f.Token + "/download"
	if f.Kind == "image" {
		preview = download + "?preview=1"
	}
	return download, preview
}

func messageView(m *ChatMessage) gin.H {
	atts := []attachmentView{}
	if m.Attachments != "" {
		_ = json.Unmarshal([]byte(m.Attachments), &atts)
	}
	return gin.H{
		"id":          m.ID,
		"role":        m.Role,
		"content":     m.Content,
		"attachments": atts,
		"created_at":  ts(m.CreatedAt),
	}
}

func messagesView(msgs []ChatMessage) []gin.H {
	out := make([]gin.H, 0, len(msgs))
	for i := range msgs {
		out = append(out, messageView(&msgs[i]))
	}
	return out
}

func kbView(kb *KnowledgeBase, docs int, size int64) gin.H {
	return gin.H{
		"id":             kb.ID,
		"name":           kb.Name,
		"code":           kb.Code,
		"description":    kb.Description,
		"document_count": docs,
		"total_size":     size,
		"status":         "active",
		"created_at":     ts(kb.CreatedAt),
		"updated_at":     ts(kb.UpdatedAt),
	}
}

func documentView(d *Document) gin.H {
	return gin.H{
		"id":          d.ID,
		"name":        d.Name,
		"filename":    d.Name,
		"file_type":   d.FileType,
		"size":        d.Size,
		"status":      d.Status,
		"chunk_count": chunkCount(d.Content),
		"created_at":  ts(d.CreatedAt),
	}
}

// chunkCount splits documents into 500-rune chunks.
func chunkCount(s string) int {
	n := len([]rune(s))
	if n == 0 {
		return 0
	}
	return (n + 499) / 500
}
