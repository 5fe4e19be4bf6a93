package linkyuntest

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func paramID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (b *Backend) ListKnowledgeBases(c *gin.Context) {
	rows, err := b.repo.ListKnowledgeBases(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, kbView(&rows[i].KnowledgeBase, rows[i].DocumentCount, rows[i].TotalSize))
	}
	ok(c, gin.H{"knowledge_bases": out})
}

func (b *Backend) CreateKnowledgeBase(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Code        string `json:"code"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, "知识库名称不能为空")
		return
	}
	kb := &KnowledgeBase{
		UserID:      userIDFromContext(c),
		Name:        strings.TrimSpace(req.Name),
		Code:        strings.TrimSpace(req.Code),
		Description: req.Description,
	}
	if err := b.repo.CreateKnowledgeBase(c.Request.Context(), kb); err != nil {
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	ok(c, kbView(kb, 0, 0))
}

func (b *Backend) GetKnowledgeBase(c *gin.Context) {
	id, okk := paramID(c)
	if !okk {
		return
	}
	ctx := c.Request.Context()
	kb, err := b.repo.GetKnowledgeBase(ctx, userIDFromContext(c), id)
	if err != nil {
		fail(c, http.StatusNotFound, "知识库不存在")
		return
	}
	docs, err := b.repo.ListDocuments(ctx, kb.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	var size int64
	for _, d := range docs {
		size += d.Size
	}
	ok(c, kbView(kb, len(docs), size))
}

func (b *Backend) DeleteKnowledgeBase(c *gin.Context) {
	id, okk := paramID(c)
	if !okk {
		return
	}
	if err := b.repo.DeleteKnowledgeBase(c.Request.Context(), userIDFromContext(c), id); err != nil {
		if isNotFound(err) {
			fail(c, http.StatusNotFound, "知识库不存在")
			return
		}
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	ok(c, gin.H{"deleted": true})
}

func (b *Backend) ListDocuments(c *gin.Context) {
	id, okk := paramID(c)
	if !okk {
		return
	}
	ctx := c.Request.Context()
	if _, err := b.repo.GetKnowledgeBase(ctx, userIDFromContext(c), id); err != nil {
		fail(c, http.StatusNotFound, "知识库不存在")
		return
	}
	docs, err := b.repo.ListDocuments(ctx, id)
	if err != nil {
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	out := make([]gin.H, 0, len(docs))
	for i := range docs {
		out = append(out, documentView(&docs[i]))
	}
	ok(c, gin.H{"documents": out})
}

func (b *Backend) AddTextDocument(c *gin.Context) {
	id, okk := paramID(c)
	if !okk {
		return
	}
	var req struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		fail(c, http.StatusBadRequest, "文档内容不能为空")
		return
	}
	ctx := c.Request.Context()
	if _, err := b.repo.GetKnowledgeBase(ctx, userIDFromContext(c), id); err != nil {
		fail(c, http.StatusNotFound, "知识库不存在")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "未命名文档"
	}
	d := &Document{KBID: id, Name: name, FileType: "txt", Content: req.Content, Size: int64(len(req.Content)), Status: "ready"}
	if err := b.repo.AddDocument(ctx, d); err != nil {
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	ok(c, documentView(d))
}

func (b *Backend) DeleteDocument(c *gin.Context) {
	id, okk := paramID(c)
	if !okk {
		return
	}
	if err := b.repo.DeleteDocument(c.Request.Context(), userIDFromContext(c), id); err != nil {
		if isNotFound(err) {
			fail(c, http.StatusNotFound, "文档不存在")
			return
		}
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	ok(c, gin.H{"deleted": true})
}
