package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/media"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrEntryNotFound indicates that no entry with the identifier belongs to the user.
	ErrEntryNotFound = errors.New("journal: entry not found")
	// ErrAttachmentNotFound indicates that no attachment with the identifier belongs to the entry.
	ErrAttachmentNotFound = errors.New("journal: attachment not found")
	// ErrInvalidPatch indicates an attachment patch that changes nothing or carries a negative order.
	ErrInvalidPatch = errors.New("journal: invalid attachment patch")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingBlobStore  = errors.New("blob store is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable "operation.reason" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew        = "journal.service.new"
	opGetEntry          = "journal.get_entry"
	opCreateEntry       = "journal.create_entry"
	opUpdateEntry       = "journal.update_entry"
	opDeleteEntry       = "journal.delete_entry"
	opUploadAttachment  = "journal.upload_attachment"
	opUpdateAttachment  = "journal.update_attachment"
	opDeleteAttachment  = "journal.delete_attachment"
	fieldUserID         = "user_id"
	fieldEntryID        = "entry_id"
	fieldAttachmentID   = "attachment_id"
	fieldEntryKey       = "entry_key"
	queryUserKey        = "user_id = ? AND account_id = ? AND entry_date = ?"
	queryUserEntry      = "user_id = ? AND entry_id = ?"
	queryEntryID        = "entry_id = ?"
	orderAttachments    = "sort_order ASC, created_at_s ASC, attachment_id ASC"
	reasonMissingDB     = "missing_database"
	reasonQueryFailed   = "query_failed"
	reasonNotFound      = "not_found"
	reasonSaveFailed    = "save_failed"
	reasonIDFailed      = "id_generation_failed"
	reasonDeleteFailed  = "delete_failed"
	reasonInvalidUpload = "invalid_upload"
	reasonBlobFailed    = "blob_write_failed"
	reasonInvalidPatch  = "invalid_patch"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// BlobStore persists attachment bytes and returns their public URL.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// Thumbnailer produces a preview image for an attachment.
type Thumbnailer interface {
	Thumbnail(data []byte, contentType string) ([]byte, string, error)
}

// IDProvider issues identifiers for entries and attachments.
type IDProvider interface {
	NewID() (string, error)
}

type ServiceConfig struct {
	Database    *gorm.DB
	Blobs       BlobStore
	Thumbnailer Thumbnailer
	Policy      UploadPolicy
	Clock       func() time.Time
	IDProvider  IDProvider
	Logger      *zap.Logger
}

// Service persists journal entries and their attachments per user.
type Service struct {
	db          *gorm.DB
	blobs       BlobStore
	thumbnailer Thumbnailer
	policy      UploadPolicy
	clock       func() time.Time
	idProvider  IDProvider
	logger      *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDB, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Blobs == nil {
		return nil, newServiceError(opServiceNew, "missing_blob_store", errMissingBlobStore)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	thumbnailer := cfg.Thumbnailer
	if thumbnailer == nil {
		thumbnailer = media.Thumbnailer{MaxSide: media.DefaultMaxSide}
	}
	policy := cfg.Policy
	if len(policy.AllowedTypes) == 0 && policy.MaxBytes == 0 {
		policy = DefaultUploadPolicy()
	}
	policy.MaxBytes = policy.Limit()
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:          cfg.Database,
		blobs:       cfg.Blobs,
		thumbnailer: thumbnailer,
		policy:      policy,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		logger:      logger,
	}, nil
}

// Policy returns the upload policy enforced by the service.
func (s *Service) Policy() UploadPolicy {
	return s.policy
}

// GetEntry returns the entry stored for key with attachments in display order,
// or nil when the key has no entry yet.
func (s *Service) GetEntry(ctx context.Context, userID UserID, key EntryKey) (*Entry, error) {
	if s.db == nil {
		s.logError(opGetEntry, reasonMissingDB, errMissingDatabase)
		return nil, newServiceError(opGetEntry, reasonMissingDB, errMissingDatabase)
	}

	var entry Entry
	err := s.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order(orderAttachments) }).
		Where(queryUserKey, userID.String(), key.Account().String(), key.Date().String()).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opGetEntry, reasonQueryFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldEntryKey, key.String()))
		return nil, newServiceError(opGetEntry, reasonQueryFailed, err)
	}
	return &entry, nil
}

// CreateEntry stores content for key. An entry that already exists for the key
// is overwritten, last write wins.
func (s *Service) CreateEntry(ctx context.Context, userID UserID, key EntryKey, content string) (Entry, error) {
	if s.db == nil {
		s.logError(opCreateEntry, reasonMissingDB, errMissingDatabase)
		return Entry{}, newServiceError(opCreateEntry, reasonMissingDB, errMissingDatabase)
	}

	var saved Entry
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Entry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(queryUserKey, userID.String(), key.Account().String(), key.Date().String()).
			Take(&existing).Error
		appliedAt := s.clock().UTC()

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			entryID, idErr := s.idProvider.NewID()
			if idErr != nil {
				s.logError(opCreateEntry, reasonIDFailed, idErr, zap.String(fieldUserID, userID.String()))
				return newServiceError(opCreateEntry, reasonIDFailed, idErr)
			}
			saved = newEntry(entryID, userID, key, content, appliedAt)
			if err := tx.Create(&saved).Error; err != nil {
				s.logError(opCreateEntry, reasonSaveFailed, err,
					zap.String(fieldUserID, userID.String()),
					zap.String(fieldEntryKey, key.String()))
				return newServiceError(opCreateEntry, reasonSaveFailed, err)
			}
			return nil
		case err != nil:
			s.logError(opCreateEntry, reasonQueryFailed, err,
				zap.String(fieldUserID, userID.String()),
				zap.String(fieldEntryKey, key.String()))
			return newServiceError(opCreateEntry, reasonQueryFailed, err)
		}

		saved = applyContentUpdate(existing, content, appliedAt)
		if err := tx.Omit(clause.Associations).Save(&saved).Error; err != nil {
			s.logError(opCreateEntry, reasonSaveFailed, err,
				zap.String(fieldUserID, userID.String()),
				zap.String(fieldEntryID, existing.EntryID))
			return newServiceError(opCreateEntry, reasonSaveFailed, err)
		}
		attachments, err := loadAttachments(tx, saved.EntryID)
		if err != nil {
			return newServiceError(opCreateEntry, reasonQueryFailed, err)
		}
		saved.Attachments = attachments
		return nil
	})
	if txErr != nil {
		return Entry{}, txErr
	}
	return saved, nil
}

// UpdateEntry replaces the content of an existing entry, last write wins.
func (s *Service) UpdateEntry(ctx context.Context, userID UserID, entryID string, content string) (Entry, error) {
	if s.db == nil {
		s.logError(opUpdateEntry, reasonMissingDB, errMissingDatabase)
		return Entry{}, newServiceError(opUpdateEntry, reasonMissingDB, errMissingDatabase)
	}

	var saved Entry
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.takeEntry(tx, opUpdateEntry, userID, entryID)
		if err != nil {
			return err
		}
		saved = applyContentUpdate(existing, content, s.clock().UTC())
		if err := tx.Omit(clause.Associations).Save(&saved).Error; err != nil {
			s.logError(opUpdateEntry, reasonSaveFailed, err,
				zap.String(fieldUserID, userID.String()),
				zap.String(fieldEntryID, entryID))
			return newServiceError(opUpdateEntry, reasonSaveFailed, err)
		}
		attachments, err := loadAttachments(tx, entryID)
		if err != nil {
			return newServiceError(opUpdateEntry, reasonQueryFailed, err)
		}
		saved.Attachments = attachments
		return nil
	})
	if txErr != nil {
		return Entry{}, txErr
	}
	return saved, nil
}

// DeleteEntry removes the entry and its attachments. Blob cleanup runs after
// the rows are gone; failures there are logged and do not fail the call.
func (s *Service) DeleteEntry(ctx context.Context, userID UserID, entryID string) (Entry, error) {
	if s.db == nil {
		s.logError(opDeleteEntry, reasonMissingDB, errMissingDatabase)
		return Entry{}, newServiceError(opDeleteEntry, reasonMissingDB, errMissingDatabase)
	}

	var deleted Entry
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.takeEntry(tx, opDeleteEntry, userID, entryID)
		if err != nil {
			return err
		}
		attachments, err := loadAttachments(tx, entryID)
		if err != nil {
			return newServiceError(opDeleteEntry, reasonQueryFailed, err)
		}
		if err := tx.Where(queryEntryID, entryID).Delete(&Attachment{}).Error; err != nil {
			s.logError(opDeleteEntry, reasonDeleteFailed, err, zap.String(fieldEntryID, entryID))
			return newServiceError(opDeleteEntry, reasonDeleteFailed, err)
		}
		if err := tx.Where(queryUserEntry, userID.String(), entryID).Delete(&Entry{}).Error; err != nil {
			s.logError(opDeleteEntry, reasonDeleteFailed, err, zap.String(fieldEntryID, entryID))
			return newServiceError(opDeleteEntry, reasonDeleteFailed, err)
		}
		existing.Attachments = attachments
		deleted = existing
		return nil
	})
	if txErr != nil {
		return Entry{}, txErr
	}

	s.removeBlobs(ctx, opDeleteEntry, blobKeys(deleted.Attachments...))
	return deleted, nil
}

func (s *Service) takeEntry(tx *gorm.DB, operation string, userID UserID, entryID string) (Entry, error) {
	var existing Entry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(queryUserEntry, userID.String(), entryID).
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, newServiceError(operation, reasonNotFound, ErrEntryNotFound)
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldEntryID, entryID))
		return Entry{}, newServiceError(operation, reasonQueryFailed, err)
	}
	return existing, nil
}

func loadAttachments(tx *gorm.DB, entryID string) ([]Attachment, error) {
	var attachments []Attachment
	if err := tx.Where(queryEntryID, entryID).Order(orderAttachments).Find(&attachments).Error; err != nil {
		return nil, err
	}
	return attachments, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("journal service error", attrs...)
}
