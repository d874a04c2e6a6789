// Package drafts keeps unsaved entry content locally, one record per entry key.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/journal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("drafts: database handle is required")

// Draft is the locally cached content for one (date, account) key.
type Draft struct {
	AccountID        string `gorm:"column:account_id;primaryKey;size:190;not null"`
	EntryDate        string `gorm:"column:entry_date;primaryKey;size:10;not null"`
	Content          string `gorm:"column:content;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Draft) TableName() string {
	return "entry_drafts"
}

type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store persists drafts through GORM.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Load returns the draft content for key and whether one exists.
func (s *Store) Load(ctx context.Context, key journal.EntryKey) (string, bool, error) {
	var draft Draft
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND entry_date = ?", key.Account().String(), key.Date().String()).
		Take(&draft).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		s.logger.Error("draft load failed", zap.String("entry_key", key.String()), zap.Error(err))
		return "", false, fmt.Errorf("drafts: load %s: %w", key, err)
	}
	return draft.Content, true, nil
}

// Save writes content for key, replacing any previous draft.
func (s *Store) Save(ctx context.Context, key journal.EntryKey, content string) error {
	draft := Draft{
		AccountID:        key.Account().String(),
		EntryDate:        key.Date().String(),
		Content:          content,
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "entry_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at_s"}),
	}).Create(&draft).Error
	if err != nil {
		s.logger.Error("draft save failed", zap.String("entry_key", key.String()), zap.Error(err))
		return fmt.Errorf("drafts: save %s: %w", key, err)
	}
	return nil
}

// Delete removes the draft for key. Deleting a missing draft is not an error.
func (s *Store) Delete(ctx context.Context, key journal.EntryKey) error {
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND entry_date = ?", key.Account().String(), key.Date().String()).
		Delete(&Draft{}).Error
	if err != nil {
		s.logger.Error("draft delete failed", zap.String("entry_key", key.String()), zap.Error(err))
		return fmt.Errorf("drafts: delete %s: %w", key, err)
	}
	return nil
}

// List returns every stored draft, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Draft, error) {
	var drafts []Draft
	if err := s.db.WithContext(ctx).Order("updated_at_s DESC, entry_date DESC, account_id ASC").Find(&drafts).Error; err != nil {
		return nil, fmt.Errorf("drafts: list: %w", err)
	}
	return drafts, nil
}
