package linkyuntest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/legalwise/internal/linkyun"
)

func parseAgentIDs(c *gin.Context) []uint64 {
	var ids []uint64
	raw := c.Query("agent_id")
	if more := c.Query("agent_ids"); more != "" {
		raw += "," + more
	}
	for _, s := range strings.Split(raw, ",") {
		if n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}

func (b *Backend) agentName(c *gin.Context, id uint64) string {
	if a, err := b.repo.GetAgent(c.Request.Context(), id); err == nil {
		return a.Name
	}
	return ""
}

func (b *Backend) ListGroupChats(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	chats, err := b.repo.ListChats(c.Request.Context(), userIDFromContext(c), parseAgentIDs(c), limit, offset)
	if err != nil {
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	names := map[uint64]string{}
	out := make([]gin.H, 0, len(chats))
	for i := range chats {
		id := chats[i].AgentID
		if _, seen := names[id]; !seen {
			names[id] = b.agentName(c, id)
		}
		out = append(out, chatView(&chats[i], names[id]))
	}
	ok(c, gin.H{"items": out, "total": len(out)})
}

type createChatReq struct {
	AgentIDs []uint64 `json:"agent_ids"`
	Topic    string   `json:"topic"`
	Title    string   `json:"title"`
}

func (b *Backend) CreateGroupChat(c *gin.Context) {
	var req createChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.AgentIDs) != 1 {
		fail(c, http.StatusBadRequest, "仅支持与一个 Agent 对话")
		return
	}
	ctx := c.Request.Context()
	a, err := b.repo.GetAgent(ctx, req.AgentIDs[0])
	if err != nil {
		fail(c, http.StatusNotFound, "Agent 不存在")
		return
	}
	gc := &GroupChat{UserID: userIDFromContext(c), AgentID: a.ID, Title: req.Title, Topic: req.Topic}
	if err := b.repo.CreateChat(ctx, gc); err != nil {
		fail(c, http.StatusInternalServerError, "failed to create chat")
		return
	}
	ok(c, chatView(gc, a.Name))
}

func (b *Backend) loadChat(c *gin.Context) (*GroupChat, bool) {
	gc, err := b.repo.GetChat(c.Request.Context(), userIDFromContext(c), c.Param("id"))
	if err != nil {
		if isNotFound(err) {
			fail(c, http.StatusNotFound, "对话不存在")
			return nil, false
		}
		fail(c, http.StatusInternalServerError, "db error")
		return nil, false
	}
	return gc, true
}

func (b *Backend) GetGroupChat(c *gin.Context) {
	gc, okk := b.loadChat(c)
	if !okk {
		return
	}
	ok(c, chatView(gc, b.agentName(c, gc.AgentID)))
}

func (b *Backend) UpdateGroupChat(c *gin.Context) {
	var req struct {
		Title *string `json:"title"`
		Topic *string `json:"topic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	fields := map[string]any{}
	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.Topic != nil {
		fields["topic"] = *req.Topic
	}
	gc, err := b.repo.UpdateChat(c.Request.Context(), userIDFromContext(c), c.Param("id"), fields)
	if err != nil {
		if isNotFound(err) {
			fail(c, http.StatusNotFound, "对话不存在")
			return
		}
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	ok(c, chatView(gc, b.agentName(c, gc.AgentID)))
}

func (b *Backend) DeleteGroupChat(c *gin.Context) {
	if err := b.repo.DeleteChat(c.Request.Context(), userIDFromContext(c), c.Param("id")); err != nil {
		if isNotFound(err) {
			fail(c, http.StatusNotFound, "对话不存在")
			return
		}
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	ok(c, gin.H{"deleted": true})
}

func (b *Backend) ListMessages(c *gin.Context) {
	gc, okk := b.loadChat(c)
	if !okk {
		return
	}
	msgs, err := b.repo.ListMessages(c.Request.Context(), gc.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to list messages")
		return
	}
	ok(c, gin.H{"messages": messagesView(msgs)})
}

type sendMessageReq struct {
	Content     string `json:"content"`
	Attachments []struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	} `json:"attachments"`
	Stream bool `json:"stream"`
}

func (b *Backend) SendMessage(c *gin.Context) {
	gc, okk := b.loadChat(c)
	if !okk {
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Stream {
		fail(c, http.StatusBadRequest, "暂不支持流式输出")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.Attachments) == 0 {
		fail(c, http.StatusBadRequest, "消息内容不能为空")
		return
	}

	ctx := c.Request.Context()
	atts := make([]attachmentView, 0, len(req.Attachments))
	for _, ref := range req.Attachments {
		f, err := b.repo.GetFile(ctx, ref.Token)
		if err != nil {
			fail(c, http.StatusBadRequest, "附件不存在")
			return
		}
		download, preview := fileViewURLs(f)
		atts = append(atts, attachmentView{
			Type: ref.Type, Token: f.Token, MimeType: f.MimeType, Name: f.Name,
			Size: f.Size, DownloadURL: download, PreviewURL: preview,
		})
	}
	user := &ChatMessage{ChatID: gc.ID, Role: "user", Content: content}
	if len(atts) > 0 {
		raw, _ := json.Marshal(atts)
		user.Attachments = string(raw)
	}
	if err := b.repo.InsertMessage(ctx, user); err != nil {
		fail(c, http.StatusInternalServerError, "failed to send message")
		return
	}

	switch b.ReplyMode() {
	case ReplyInline, ReplyList:
		reply := &ChatMessage{ChatID: gc.ID, Role: "assistant", Content: b.opts.Responder(content)}
		if err := b.repo.InsertMessage(ctx, reply); err != nil {
			fail(c, http.StatusInternalServerError, "failed to reply")
			return
		}
		if b.ReplyMode() == ReplyInline {
			ok(c, messageView(reply))
			return
		}
		msgs, err := b.repo.ListMessages(ctx, gc.ID)
		if err != nil {
			fail(c, http.StatusInternalServerError, "failed to list messages")
			return
		}
		ok(c, gin.H{"messages": messagesView(msgs)})

	case ReplyAsync:
		j := &Job{UserID: gc.UserID, ChatID: gc.ID, Prompt: content}
		if err := b.repo.CreateJob(ctx, j); err != nil {
			b.log.Error("create reply job", "chat", gc.ID, "error", err)
			fail(c, http.StatusInternalServerError, "internal error")
			return
		}
		if err := b.queue.Publish(ctx, j.ID); err != nil {
			b.log.Error("publish reply job", "chat", gc.ID, "job", j.ID, "error", err)
			_ = b.repo.MarkJobFailed(ctx, j.ID, err.Error())
			fail(c, http.StatusInternalServerError, "enqueue failed")
			return
		}
		ok(c, messageView(user))

	default:
		ok(c, gin.H{"status": "accepted"})
	}
}

func (b *Backend) SimpleChat(c *gin.Context) {
	var req linkyun.SimpleChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Messages) == 0 {
		fail(c, http.StatusBadRequest, "messages 不能为空")
		return
	}
	content := b.opts.Titler(req)
	in := 0
	for _, m := range req.Messages {
		in += len([]rune(m.Content))
	}
	out := len([]rune(content))
	ok(c, gin.H{"data": gin.H{
		"content": content,
		"model":   "linkyun-fake",
		"usage":   gin.H{"input_tokens": in, "output_tokens": out, "total_tokens": in + out},
	}})
}
