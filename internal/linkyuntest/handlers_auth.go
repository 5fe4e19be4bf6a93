package linkyuntest

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

type loginReq struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	WorkspaceCode string `json:"workspace_code"`
}

func (b *Backend) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	ctx := c.Request.Context()
	u, err := b.repo.FindUserByLogin(ctx, strings.TrimSpace(req.Username))
	if err != nil || !CheckPassword(u.PasswordHash, req.Password) {
		fail(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	resp := gin.H{}
	if code := strings.TrimSpace(req.WorkspaceCode); code != "" {
		if ws, err := b.repo.GetWorkspaceByCode(ctx, code); err == nil {
			if member, _ := b.repo.IsMember(ctx, u.ID, ws.ID); member {
				_ = b.repo.SetUserWorkspace(ctx, u.ID, ws.ID)
				resp["workspace"] = workspaceView(ws)
			}
		}
	}
	b.respondAuth(c, u, resp)
}

type registerReq struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	InvitationCode string `json:"invitation_code"`
}

func (b *Backend) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if n := utf8.RuneCountInString(req.Username); n < 3 || n > 100 {
		fail(c, http.StatusBadRequest, "用户名长度需为 3-100 个字符")
		return
	}
	if len(req.Password) < 8 {
		fail(c, http.StatusBadRequest, "密码至少 8 位")
		return
	}
	if strings.TrimSpace(req.InvitationCode) == "" ||
		(b.opts.InvitationCode != "" && req.InvitationCode != b.opts.InvitationCode) {
		fail(c, http.StatusBadRequest, "邀请码无效")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to hash password")
		return
	}
	u := &User{Username: req.Username, Email: strings.TrimSpace(req.Email), PasswordHash: hash}
	if err := b.repo.CreateUser(c.Request.Context(), u); err != nil {
		if isDuplicate(err) {
			fail(c, http.StatusConflict, "用户名已存在")
			return
		}
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	b.respondAuth(c, u, gin.H{})
}

// respondAuth signs an API key; creators come back under "creator".
func (b *Backend) respondAuth(c *gin.Context, u *User, resp gin.H) {
	key, err := SignAPIKey(u.ID, b.opts.JWTSecret, apiKeyTTL)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to sign token")
		return
	}
	resp["api_key"] = key
	if u.Creator {
		resp["creator"] = userView(u)
	} else {
		resp["user"] = userView(u)
	}
	ok(c, resp)
}

func (b *Backend) ListWorkspaces(c *gin.Context) {
	rows, err := b.repo.ListMemberships(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, gin.H{"workspace": workspaceView(&rows[i].Workspace), "role": rows[i].Role})
	}
	ok(c, gin.H{"workspaces": out})
}

func (b *Backend) JoinWorkspace(c *gin.Context) {
	var req struct {
		InviteCode string `json:"invite_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.InviteCode) == "" {
		fail(c, http.StatusBadRequest, "请输入邀请码")
		return
	}
	ctx := c.Request.Context()
	ws, err := b.repo.GetWorkspaceByInvite(ctx, strings.TrimSpace(req.InviteCode))
	if err != nil {
		fail(c, http.StatusNotFound, "邀请码无效")
		return
	}
	if err := b.repo.AddMember(ctx, userIDFromContext(c), ws.ID, "member"); err != nil {
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	ok(c, gin.H{"workspace": workspaceView(ws)})
}

func (b *Backend) SwitchWorkspace(c *gin.Context) {
	var req struct {
		WorkspaceCode string `json:"workspace_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.WorkspaceCode) == "" {
		fail(c, http.StatusBadRequest, "workspace_code required")
		return
	}
	ctx := c.Request.Context()
	uid := userIDFromContext(c)
	ws, err := b.repo.GetWorkspaceByCode(ctx, strings.TrimSpace(req.WorkspaceCode))
	if err != nil {
		fail(c, http.StatusNotFound, "工作空间不存在")
		return
	}
	if member, err := b.repo.IsMember(ctx, uid, ws.ID); err != nil || !member {
		fail(c, http.StatusForbidden, "不是该工作空间成员")
		return
	}
	if err := b.repo.SetUserWorkspace(ctx, uid, ws.ID); err != nil {
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	ok(c, workspaceView(ws))
}
