package linkyuntest

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Migrate() error {
	return r.db.AutoMigrate(allModels()...)
}

// Users

func (r *Repo) CreateUser(ctx context.Context, u *User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repo) GetUser(ctx context.Context, id uint64) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByLogin matches a username or an email.
func (r *Repo) FindUserByLogin(ctx context.Context, login string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).
		Where("username = ? OR email = ?", login, login).
		First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) SetUserWorkspace(ctx context.Context, userID, workspaceID uint64) error {
	return r.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Update("workspace_id", workspaceID).Error
}

// Workspaces

func (r *Repo) EnsureWorkspace(ctx context.Context, code, name, inviteCode string) (*Workspace, error) {
	ws := Workspace{Code: code, Name: name, InviteCode: inviteCode}
	err := r.db.WithContext(ctx).
		Where(Workspace{Code: code}).
		Attrs(Workspace{Name: name, InviteCode: inviteCode}).
		FirstOrCreate(&ws).Error
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *Repo) GetWorkspaceByCode(ctx context.Context, code string) (*Workspace, error) {
	var ws Workspace
	if err := r.db.WithContext(ctx).First(&ws, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *Repo) GetWorkspaceByInvite(ctx context.Context, invite string) (*Workspace, error) {
	var ws Workspace
	if err := r.db.WithContext(ctx).First(&ws, "invite_code = ?", invite).Error; err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *Repo) AddMember(ctx context.Context, userID, workspaceID uint64, role string) error {
	m := Membership{UserID: userID, WorkspaceID: workspaceID, Role: role}
	return r.db.WithContext(ctx).
		Where(Membership{UserID: userID, WorkspaceID: workspaceID}).
		FirstOrCreate(&m).Error
}

func (r *Repo) IsMember(ctx context.Context, userID, workspaceID uint64) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&Membership{}).
		Where("user_id = ? AND workspace_id = ?", userID, workspaceID).
		Count(&cnt).Error
	return cnt > 0, err
}

type membershipRow struct {
	Workspace
	Role string
}

func (r *Repo) ListMemberships(ctx context.Context, userID uint64) ([]membershipRow, error) {
	var rows []membershipRow
	err := r.db.WithContext(ctx).
		Table("workspaces").
		Select("workspaces.*, memberships.role").
		Joins("JOIN memberships ON memberships.workspace_id = workspaces.id").
		Where("memberships.user_id = ?", userID).
		Order("workspaces.id ASC").
		Scan(&rows).Error
	return rows, err
}

// Agents

func (r *Repo) CreateAgent(ctx context.Context, a *Agent) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// EnsureAgent creates the agent with code unless it already exists.
func (r *Repo) EnsureAgent(ctx context.Context, a *Agent) error {
	return r.db.WithContext(ctx).
		Where(Agent{Code: a.Code}).
		Attrs(*a).
		FirstOrCreate(a).Error
}

func (r *Repo) GetAgent(ctx context.Context, id uint64) (*Agent, error) {
	var a Agent
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) GetAgentByCode(ctx context.Context, code string) (*Agent, error) {
	var a Agent
	if err := r.db.WithContext(ctx).First(&a, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) ListAgents(ctx context.Context, status string, limit, offset int) ([]Agent, int64, error) {
	q := r.db.WithContext(ctx).Model(&Agent{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	var out []Agent
	if err := q.Order("id ASC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repo) UpdateAgent(ctx context.Context, id uint64, fields map[string]any) (*Agent, error) {
	if len(fields) > 0 {
		if err := r.db.WithContext(ctx).Model(&Agent{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return nil, err
		}
	}
	return r.GetAgent(ctx, id)
}

// Group chats

func (r *Repo) CreateChat(ctx context.Context, gc *GroupChat) error {
	if gc.ID == "" {
		gc.ID = newULID()
	}
	return r.db.WithContext(ctx).Create(gc).Error
}

// GetChat returns the chat only when it belongs to userID.
func (r *Repo) GetChat(ctx context.Context, userID uint64, id string) (*GroupChat, error) {
	var gc GroupChat
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&gc).Error; err != nil {
		return nil, err
	}
	return &gc, nil
}

// ListChats returns the user's chats, newest first.
func (r *Repo) ListChats(ctx context.Context, userID uint64, agentIDs []uint64, limit, offset int) ([]GroupChat, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(agentIDs) > 0 {
		q = q.Where("agent_id IN ?", agentIDs)
	}
	if limit <= 0 {
		limit = 50
	}
	var out []GroupChat
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) UpdateChat(ctx context.Context, userID uint64, id string, fields map[string]any) (*GroupChat, error) {
	if _, err := r.GetChat(ctx, userID, id); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := r.db.WithContext(ctx).Model(&GroupChat{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return nil, err
		}
	}
	return r.GetChat(ctx, userID, id)
}

// DeleteChat removes a chat and its messages.
func (r *Repo) DeleteChat(ctx context.Context, userID uint64, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&GroupChat{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("chat_id = ?", id).Delete(&ChatMessage{}).Error
	})
}

// Messages

func (r *Repo) InsertMessage(ctx context.Context, m *ChatMessage) error {
	if m.ID == "" {
		m.ID = newULID()
	}
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages returns a chat's messages in ASC id order (oldest -> newest).
func (r *Repo) ListMessages(ctx context.Context, chatID string) ([]ChatMessage, error) {
	var msgs []ChatMessage
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// Files

func (r *Repo) SaveFile(ctx context.Context, f *File) error {
	if f.Token == "" {
		f.Token = newULID()
	}
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *Repo) GetFile(ctx context.Context, token string) (*File, error) {
	var f File
	if err := r.db.WithContext(ctx).First(&f, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// Knowledge bases

func (r *Repo) CreateKnowledgeBase(ctx context.Context, kb *KnowledgeBase) error {
	return r.db.WithContext(ctx).Create(kb).Error
}

func (r *Repo) GetKnowledgeBase(ctx context.Context, userID, id uint64) (*KnowledgeBase, error) {
	var kb KnowledgeBase
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&kb).Error; err != nil {
		return nil, err
	}
	return &kb, nil
}

type kbRow struct {
	KnowledgeBase
	DocumentCount int
	TotalSize     int64
}

func (r *Repo) ListKnowledgeBases(ctx context.Context, userID uint64) ([]kbRow, error) {
	var rows []kbRow
	err := r.db.WithContext(ctx).
		Table("knowledge_bases").
		Select("knowledge_bases.*, COUNT(documents.id) AS document_count, COALESCE(SUM(documents.size), 0) AS total_size").
		Joins("LEFT JOIN documents ON documents.kb_id = knowledge_bases.id").
		Where("knowledge_bases.user_id = ?", userID).
		Group("knowledge_bases.id").
		Order("knowledge_bases.id ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *Repo) DeleteKnowledgeBase(ctx context.Context, userID, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&KnowledgeBase{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("kb_id = ?", id).Delete(&Document{}).Error
	})
}

func (r *Repo) AddDocument(ctx context.Context, d *Document) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *Repo) ListDocuments(ctx context.Context, kbID uint64) ([]Document, error) {
	var docs []Document
	if err := r.db.WithContext(ctx).Where("kb_id = ?", kbID).Order("id ASC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteDocument removes a document of one of the user's knowledge bases.
func (r *Repo) DeleteDocument(ctx context.Context, userID, id uint64) error {
	var d Document
	if err := r.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return err
	}
	if _, err := r.GetKnowledgeBase(ctx, userID, d.KBID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&Document{}, id).Error
}

// Job CRUD
func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = newULID()
	}
	if job.Status == "" {
		job.Status = JobQueued
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, assistantMsgID string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": assistantMsgID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isDuplicate recognises unique constraint violations from sqlite and mysql.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry")
}
