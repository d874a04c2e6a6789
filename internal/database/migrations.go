package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/journal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillThumbnailURLs = "2026-09-14_backfill_attachment_thumbnail_urls"
	migrationTrimAccountIDs        = "2026-10-02_trim_entry_account_ids"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillThumbnailURLs, apply: backfillThumbnailURLs},
		{name: migrationTrimAccountIDs, apply: trimAccountIDs},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(migration.apply); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillThumbnailURLs points attachments stored before thumbnails existed at
// their full-size image.
func backfillThumbnailURLs(db *gorm.DB) error {
	return db.Model(&journal.Attachment{}).
		Where("thumbnail_url = ''").
		Update("thumbnail_url", gorm.Expr("url")).Error
}

func trimAccountIDs(db *gorm.DB) error {
	return db.Model(&journal.Entry{}).
		Where("account_id <> TRIM(account_id)").
		Update("account_id", gorm.Expr("TRIM(account_id)")).Error
}
