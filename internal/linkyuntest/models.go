package linkyuntest

import (
	"time"

	"github.com/oklog/ulid/v2"
)

func newULID() string { return ulid.Make().String() }

type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"size:100;uniqueIndex;not null"`
	Email        string `gorm:"size:255;index"`
	FullName     string `gorm:"size:100"`
	PasswordHash string `gorm:"size:100;not null"`
	// Creator accounts (lawyers) are returned under "creator" on login.
	Creator     bool
	WorkspaceID *uint64
	CreatedAt   time.Time
}

type Workspace struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Code       string `gorm:"size:64;uniqueIndex;not null"`
	Name       string `gorm:"size:100"`
	InviteCode string `gorm:"size:64;index"`
	CreatedAt  time.Time
}

type Membership struct {
	UserID      uint64 `gorm:"primaryKey"`
	WorkspaceID uint64 `gorm:"primaryKey"`
	Role        string `gorm:"size:16"`
	CreatedAt   time.Time
}

type Agent struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	Code            string `gorm:"size:64;uniqueIndex;not null"`
	Name            string `gorm:"size:100"`
	Description     string `gorm:"type:text"`
	Model           string `gorm:"size:100"`
	SystemPrompt    string `gorm:"type:text"`
	Temperature     float64
	AgentType       string `gorm:"size:16"`
	Status          string `gorm:"size:16"`
	MemoryEnabled   bool
	AvatarFilename  string `gorm:"size:255"`
	KnowledgeBaseID *int64
	OwnerID         uint64 `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type GroupChat struct {
	ID        string `gorm:"primaryKey;size:26"`
	UserID    uint64 `gorm:"index;not null"`
	AgentID   uint64 `gorm:"index;not null"`
	Title     string `gorm:"size:255"`
	Topic     string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatMessage is a group chat message. Attachments hold the JSON-encoded refs.
type ChatMessage struct {
	ID          string `gorm:"primaryKey;size:26"`
	ChatID      string `gorm:"size:26;index;not null"`
	Role        string `gorm:"size:16;not null"`
	Content     string `gorm:"type:text;not null"`
	Attachments string `gorm:"type:text"`
	CreatedAt   time.Time
}

// File is an uploaded blob addressed by its token.
type File struct {
	Token     string `gorm:"primaryKey;size:26"`
	UserID    uint64 `gorm:"index"`
	Kind      string `gorm:"size:16"`
	Name      string `gorm:"size:255"`
	MimeType  string `gorm:"size:128"`
	Size      int64
	Data      []byte
	CreatedAt time.Time
}

type KnowledgeBase struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	UserID      uint64 `gorm:"index"`
	Name        string `gorm:"size:100;not null"`
	Code        string `gorm:"size:64"`
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Document struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	KBID      uint64 `gorm:"column:kb_id;index;not null"`
	Name      string `gorm:"size:255"`
	FileType  string `gorm:"size:16"`
	Content   string `gorm:"type:text"`
	Size      int64
	Status    string `gorm:"size:16"`
	CreatedAt time.Time
}

func allModels() []any {
	return []any{
		&User{}, &Workspace{}, &Membership{}, &Agent{}, &GroupChat{}, &ChatMessage{},
		&File{}, &KnowledgeBase{}, &Document{}, &Job{},
	}
}
