package journal

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const blobCleanupConcurrency = 4

// UploadAttachment validates and stores an image for an existing entry. The new
// attachment is appended after the highest existing order.
func (s *Service) UploadAttachment(ctx context.Context, userID UserID, entryID string, upload Upload) (Attachment, error) {
	if s.db == nil {
		s.logError(opUploadAttachment, reasonMissingDB, errMissingDatabase)
		return Attachment{}, newServiceError(opUploadAttachment, reasonMissingDB, errMissingDatabase)
	}

	contentType, err := s.policy.Validate(upload)
	if err != nil {
		return Attachment{}, newServiceError(opUploadAttachment, reasonInvalidUpload, err)
	}
	if _, err := s.takeEntry(s.db.WithContext(ctx), opUploadAttachment, userID, entryID); err != nil {
		return Attachment{}, err
	}

	attachmentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opUploadAttachment, reasonIDFailed, err, zap.String(fieldEntryID, entryID))
		return Attachment{}, newServiceError(opUploadAttachment, reasonIDFailed, err)
	}

	storageKey := fmt.Sprintf("entries/%s/%s%s", entryID, attachmentID, FileExtension(contentType))
	url, err := s.blobs.Put(ctx, storageKey, contentType, upload.Data)
	if err != nil {
		s.logError(opUploadAttachment, reasonBlobFailed, err,
			zap.String(fieldEntryID, entryID),
			zap.String(fieldAttachmentID, attachmentID))
		return Attachment{}, newServiceError(opUploadAttachment, reasonBlobFailed, err)
	}
	thumbnailKey, thumbnailURL := s.storeThumbnail(ctx, entryID, attachmentID, contentType, upload.Data)
	if thumbnailURL == "" {
		thumbnailURL = url
	}

	attachment := Attachment{
		AttachmentID:     attachmentID,
		EntryID:          entryID,
		UserID:           userID.String(),
		URL:              url,
		ThumbnailURL:     thumbnailURL,
		StorageKey:       storageKey,
		ThumbnailKey:     thumbnailKey,
		ContentType:      contentType,
		SizeBytes:        int64(len(upload.Data)),
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxOrder int
		if err := tx.Model(&Attachment{}).
			Where(queryEntryID, entryID).
			Select("COALESCE(MAX(sort_order), -1)").
			Scan(&maxOrder).Error; err != nil {
			return newServiceError(opUploadAttachment, reasonQueryFailed, err)
		}
		attachment.Order = maxOrder + 1
		if err := tx.Create(&attachment).Error; err != nil {
			return newServiceError(opUploadAttachment, reasonSaveFailed, err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opUploadAttachment, reasonSaveFailed, txErr,
			zap.String(fieldEntryID, entryID),
			zap.String(fieldAttachmentID, attachmentID))
		s.removeBlobs(ctx, opUploadAttachment, blobKeys(attachment))
		return Attachment{}, txErr
	}
	return attachment, nil
}

func (s *Service) storeThumbnail(ctx context.Context, entryID, attachmentID, contentType string, data []byte) (string, string) {
	thumbnail, thumbnailType, err := s.thumbnailer.Thumbnail(data, contentType)
	if err != nil {
		s.loggerOrDefault().Warn("thumbnail generation failed",
			zap.String(fieldAttachmentID, attachmentID),
			zap.Error(err))
		return "", ""
	}
	key := fmt.Sprintf("entries/%s/thumb_%s%s", entryID, attachmentID, FileExtension(thumbnailType))
	url, err := s.blobs.Put(ctx, key, thumbnailType, thumbnail)
	if err != nil {
		s.loggerOrDefault().Warn("thumbnail write failed",
			zap.String(fieldAttachmentID, attachmentID),
			zap.Error(err))
		return "", ""
	}
	return key, url
}

// UpdateAttachment applies a caption and/or order change.
func (s *Service) UpdateAttachment(ctx context.Context, userID UserID, entryID, attachmentID string, patch AttachmentPatch) (Attachment, error) {
	if s.db == nil {
		s.logError(opUpdateAttachment, reasonMissingDB, errMissingDatabase)
		return Attachment{}, newServiceError(opUpdateAttachment, reasonMissingDB, errMissingDatabase)
	}
	if patch.IsEmpty() {
		return Attachment{}, newServiceError(opUpdateAttachment, reasonInvalidPatch, fmt.Errorf("%w: empty", ErrInvalidPatch))
	}
	if patch.Order != nil && *patch.Order < 0 {
		return Attachment{}, newServiceError(opUpdateAttachment, reasonInvalidPatch, fmt.Errorf("%w: negative order %d", ErrInvalidPatch, *patch.Order))
	}

	var updated Attachment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attachment, err := s.takeAttachment(tx, opUpdateAttachment, userID, entryID, attachmentID)
		if err != nil {
			return err
		}
		changes := map[string]interface{}{}
		if patch.Caption != nil {
			changes["caption"] = *patch.Caption
			attachment.Caption = *patch.Caption
		}
		if patch.Order != nil {
			changes["sort_order"] = *patch.Order
			attachment.Order = *patch.Order
		}
		if err := tx.Model(&Attachment{}).Where("attachment_id = ?", attachmentID).Updates(changes).Error; err != nil {
			s.logError(opUpdateAttachment, reasonSaveFailed, err,
				zap.String(fieldEntryID, entryID),
				zap.String(fieldAttachmentID, attachmentID))
			return newServiceError(opUpdateAttachment, reasonSaveFailed, err)
		}
		updated = attachment
		return nil
	})
	if txErr != nil {
		return Attachment{}, txErr
	}
	return updated, nil
}

// DeleteAttachment removes one attachment. Remaining order values are kept as is.
func (s *Service) DeleteAttachment(ctx context.Context, userID UserID, entryID, attachmentID string) (Attachment, error) {
	if s.db == nil {
		s.logError(opDeleteAttachment, reasonMissingDB, errMissingDatabase)
		return Attachment{}, newServiceError(opDeleteAttachment, reasonMissingDB, errMissingDatabase)
	}

	var deleted Attachment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attachment, err := s.takeAttachment(tx, opDeleteAttachment, userID, entryID, attachmentID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&Attachment{}, "attachment_id = ?", attachmentID).Error; err != nil {
			s.logError(opDeleteAttachment, reasonDeleteFailed, err, zap.String(fieldAttachmentID, attachmentID))
			return newServiceError(opDeleteAttachment, reasonDeleteFailed, err)
		}
		deleted = attachment
		return nil
	})
	if txErr != nil {
		return Attachment{}, txErr
	}

	s.removeBlobs(ctx, opDeleteAttachment, blobKeys(deleted))
	return deleted, nil
}

func (s *Service) takeAttachment(tx *gorm.DB, operation string, userID UserID, entryID, attachmentID string) (Attachment, error) {
	var attachment Attachment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND entry_id = ? AND attachment_id = ?", userID.String(), entryID, attachmentID).
		Take(&attachment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Attachment{}, newServiceError(operation, reasonNotFound, ErrAttachmentNotFound)
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err,
			zap.String(fieldEntryID, entryID),
			zap.String(fieldAttachmentID, attachmentID))
		return Attachment{}, newServiceError(operation, reasonQueryFailed, err)
	}
	return attachment, nil
}

func blobKeys(attachments ...Attachment) []string {
	keys := make([]string, 0, len(attachments)*2)
	for _, attachment := range attachments {
		if attachment.StorageKey != "" {
			keys = append(keys, attachment.StorageKey)
		}
		if attachment.ThumbnailKey != "" {
			keys = append(keys, attachment.ThumbnailKey)
		}
	}
	return keys
}

func (s *Service) removeBlobs(ctx context.Context, operation string, keys []string) {
	if len(keys) == 0 {
		return
	}
	group, groupCtx := errgroup.WithContext(context.WithoutCancel(ctx))
	group.SetLimit(blobCleanupConcurrency)
	for _, key := range keys {
		group.Go(func() error {
			if err := s.blobs.Delete(groupCtx, key); err != nil {
				s.loggerOrDefault().Warn("blob cleanup failed",
					zap.String("operation", operation),
					zap.String("key", key),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = group.Wait()
}
