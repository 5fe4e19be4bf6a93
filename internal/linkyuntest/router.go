package linkyuntest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userIDKey = "linkyun.user_id"

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func fail(c *gin.Context, httpStatus int, msg string) {
	c.AbortWithStatusJSON(httpStatus, gin.H{
		"success": false,
		"error":   gin.H{"message": msg},
	})
}

func userIDFromContext(c *gin.Context) uint64 {
	v, _ := c.Get(userIDKey)
	id, _ := v.(uint64)
	return id
}

// authRequired resolves X-API-Key to a user id.
func (b *Backend) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if key == "" {
			fail(c, http.StatusUnauthorized, "未登录或登录已过期")
			return
		}
		uid, err := ParseAPIKey(key, b.opts.JWTSecret)
		if err != nil {
			fail(c, http.StatusUnauthorized, "未登录或登录已过期")
			return
		}
		if _, err := b.repo.GetUser(c.Request.Context(), uid); err != nil {
			fail(c, http.StatusUnauthorized, "用户不存在")
			return
		}
		c.Set(userIDKey, uid)
		c.Next()
	}
}

func NewRouter(b *Backend) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	if b.opts.AccessLog != nil {
		r.Use(gin.LoggerWithWriter(b.opts.AccessLog))
	}
	r.Use(gin.Recovery())

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.GET("/ping", func(c *gin.Context) { ok(c, gin.H{"pong": true}) })

	v1 := r.Group("/api/v1")

	// auth
	v1.POST("/auth/login", b.Login)
	v1.POST("/auth/register", b.Register)

	// files are fetched by token, e.g. from <img> tags
	v1.GET("/files/:token/download", b.DownloadFile)

	authGroup := v1.Group("/")
	authGroup.Use(b.authRequired())

	authGroup.GET("/user/workspaces", b.ListWorkspaces)
	authGroup.POST("/user/workspace/join", b.JoinWorkspace)
	authGroup.POST("/user/workspace/switch", b.SwitchWorkspace)

	authGroup.POST("/files/upload", b.UploadImage)
	authGroup.POST("/files/upload-document", b.UploadDocument)

	authGroup.GET("/agents", b.ListAgents)
	authGroup.POST("/agents", b.CreateAgent)
	authGroup.GET("/agents/by-code/:code", b.GetAgentByCode)
	authGroup.GET("/agents/:id", b.GetAgent)
	authGroup.PUT("/agents/:id", b.UpdateAgent)

	authGroup.GET("/user/group-chats", b.ListGroupChats)
	authGroup.POST("/user/group-chats", b.CreateGroupChat)
	authGroup.GET("/user/group-chats/:id", b.GetGroupChat)
	authGroup.PATCH("/user/group-chats/:id", b.UpdateGroupChat)
	authGroup.DELETE("/user/group-chats/:id", b.DeleteGroupChat)
	authGroup.GET("/user/group-chats/:id/messages", b.ListMessages)
	authGroup.POST("/user/group-chats/:id/messages", b.SendMessage)

	authGroup.POST("/chat", b.SimpleChat)

	authGroup.GET("/knowledge-bases", b.ListKnowledgeBases)
	authGroup.POST("/knowledge-bases", b.CreateKnowledgeBase)
	authGroup.GET("/knowledge-bases/:id", b.GetKnowledgeBase)
	authGroup.DELETE("/knowledge-bases/:id", b.DeleteKnowledgeBase)
	authGroup.GET("/knowledge-bases/:id/documents", b.ListDocuments)
	authGroup.POST("/knowledge-bases/:id/documents/text", b.AddTextDocument)
	authGroup.DELETE("/documents/:id", b.DeleteDocument)
	return r
}
