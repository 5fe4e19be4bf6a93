package linkyuntest

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (b *Backend) GetAgentByCode(c *gin.Context) {
	a, err := b.repo.GetAgentByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		fail(c, http.StatusNotFound, "Agent 不存在")
		return
	}
	ok(c, agentView(a))
}

func (b *Backend) ListAgents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	agents, total, err := b.repo.ListAgents(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	out := make([]gin.H, 0, len(agents))
	for i := range agents {
		out = append(out, agentView(&agents[i]))
	}
	ok(c, gin.H{"agents": out, "total": total})
}

// GetAgent wraps the agent as {agent: ...}, unlike the by-code lookup.
func (b *Backend) GetAgent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid agent id")
		return
	}
	a, err := b.repo.GetAgent(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusNotFound, "Agent 不存在")
		return
	}
	ok(c, gin.H{"agent": agentView(a)})
}

type createAgentReq struct {
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Model         string   `json:"model"`
	SystemPrompt  string   `json:"system_prompt"`
	Temperature   *float64 `json:"temperature"`
	AgentType     string   `json:"agent_type"`
	MemoryEnabled bool     `json:"memory_enabled"`
	Status        string   `json:"status"`
}

func (b *Backend) CreateAgent(c *gin.Context) {
	var req createAgentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, "code 和 name 为必填项")
		return
	}
	if req.Temperature == nil {
		fail(c, http.StatusBadRequest, "temperature 为必填项")
		return
	}
	a := &Agent{
		Code:          strings.TrimSpace(req.Code),
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Model:         req.Model,
		SystemPrompt:  req.SystemPrompt,
		Temperature:   *req.Temperature,
		AgentType:     req.AgentType,
		MemoryEnabled: req.MemoryEnabled,
		Status:        req.Status,
		OwnerID:       userIDFromContext(c),
	}
	if err := b.repo.CreateAgent(c.Request.Context(), a); err != nil {
		if isDuplicate(err) {
			fail(c, http.StatusConflict, "Agent 编码已存在")
			return
		}
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	ok(c, agentView(a))
}

type updateAgentReq struct {
	Name            *string `json:"name"`
	Code            *string `json:"code"`
	Description     *string `json:"description"`
	SystemPrompt    *string `json:"system_prompt"`
	Status          *string `json:"status"`
	KnowledgeBaseID *int64  `json:"knowledge_base_id"`
}

func (b *Backend) UpdateAgent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid agent id")
		return
	}
	var req updateAgentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	ctx := c.Request.Context()
	a, err := b.repo.GetAgent(ctx, id)
	if err != nil {
		fail(c, http.StatusNotFound, "Agent 不存在")
		return
	}
	if a.OwnerID != 0 && a.OwnerID != userIDFromContext(c) {
		fail(c, http.StatusForbidden, "无权修改该 Agent")
		return
	}

	fields := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			fields[col] = *v
		}
	}
	set("name", req.Name)
	set("code", req.Code)
	set("description", req.Description)
	set("system_prompt", req.SystemPrompt)
	set("status", req.Status)
	if req.KnowledgeBaseID != nil {
		fields["knowledge_base_id"] = *req.KnowledgeBaseID
	}
	a, err = b.repo.UpdateAgent(ctx, id, fields)
	if err != nil {
		if isDuplicate(err) {
			fail(c, http.StatusConflict, "Agent 编码已存在")
			return
		}
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	ok(c, agentView(a))
}
