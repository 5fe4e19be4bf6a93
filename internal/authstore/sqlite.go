package authstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/suPer8Hu/legalwise/internal/config"
	"github.com/suPer8Hu/legalwise/internal/linkyun"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// stateRow is one saved login per profile.
type stateRow struct {
	Profile   string `gorm:"primaryKey;size:64"`
	APIKey    string `gorm:"type:text;not null"`
	User      string `gorm:"type:text"`
	Workspace string `gorm:"type:text"`
	Role      string `gorm:"size:16"`
	SavedAt   time.Time
}

func (stateRow) TableName() string { return "auth_state" }

// SQLiteStore keeps the state in a local sqlite file.
type SQLiteStore struct {
	db      *gorm.DB
	profile string
}

// OpenSQLite opens (creating if needed) the sqlite database at dsn.
func OpenSQLite(dsn, profile string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	return NewSQLiteStore(db, profile)
}

func NewSQLiteStore(db *gorm.DB, profile string) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&stateRow{}); err != nil {
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return &SQLiteStore{db: db, profile: profileName(profile)}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*State, error) {
	var row stateRow
	if err := s.db.WithContext(ctx).First(&row, "profile = ?", s.profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}
	st := &State{APIKey: row.APIKey, Role: config.Role(row.Role), SavedAt: row.SavedAt}
	if row.User != "" {
		st.User = new(linkyun.User)
		if err := json.Unmarshal([]byte(row.User), st.User); err != nil {
			return nil, fmt.Errorf("decode saved user: %w", err)
		}
	}
	if row.Workspace != "" {
		st.Workspace = new(linkyun.Workspace)
		if err := json.Unmarshal([]byte(row.Workspace), st.Workspace); err != nil {
			return nil, fmt.Errorf("decode saved workspace: %w", err)
		}
	}
	return st, nil
}

func (s *SQLiteStore) Save(ctx context.Context, st *State) error {
	if !st.LoggedIn() {
		return errors.New("save state: empty api key")
	}
	row := stateRow{Profile: s.profile, APIKey: st.APIKey, Role: string(st.Role), SavedAt: st.SavedAt}
	if row.SavedAt.IsZero() {
		row.SavedAt = time.Now()
	}
	if st.User != nil {
		b, err := json.Marshal(st.User)
		if err != nil {
			return err
		}
		row.User = string(b)
	}
	if st.Workspace != nil {
		b, err := json.Marshal(st.Workspace)
		if err != nil {
			return err
		}
		row.Workspace = string(b)
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Delete(&stateRow{}, "profile = ?", s.profile).Error
}
