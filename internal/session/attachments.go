package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/journal"
	"go.uber.org/zap"
)

// Direction moves an attachment one position in display order.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection accepts "up" and "down" in any case.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case DirectionUp:
		return DirectionUp, nil
	case DirectionDown:
		return DirectionDown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, raw)
	}
}

// Upload validates the file locally, creates the entry if needed and appends
// the stored attachment after the existing ones. Validation failures are
// returned as *journal.ValidationError without touching any store.
func (s *Session) Upload(ctx context.Context, upload journal.Upload) (journal.Attachment, error) {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	return s.uploadLocked(ctx, upload)
}

// UploadAll uploads files one at a time in the given order. Files that fail
// are skipped; their errors are joined into the returned error.
func (s *Session) UploadAll(ctx context.Context, uploads []journal.Upload) ([]journal.Attachment, error) {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()

	stored := make([]journal.Attachment, 0, len(uploads))
	var errs []error
	for _, upload := range uploads {
		attachment, err := s.uploadLocked(ctx, upload)
		if errors.Is(err, ErrSessionClosed) {
			return stored, err
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		stored = append(stored, attachment)
	}
	return stored, errors.Join(errs...)
}

func (s *Session) uploadLocked(ctx context.Context, upload journal.Upload) (journal.Attachment, error) {
	if s.isClosed() {
		return journal.Attachment{}, ErrSessionClosed
	}
	if _, err := s.policy.Validate(upload); err != nil {
		return journal.Attachment{}, err
	}

	entryID, err := s.ensureEntry(ctx)
	if errors.Is(err, ErrSessionClosed) {
		return journal.Attachment{}, err
	}
	if errors.Is(err, ErrNotLoaded) {
		return journal.Attachment{}, s.fail(ErrUpload, opUpload, reasonNotLoaded, err, nil)
	}
	if err != nil {
		return journal.Attachment{}, s.fail(ErrUpload, opUpload, reasonEnsureEntry, err, nil)
	}

	attachment, err := s.remote.UploadAttachment(ctx, entryID, upload)
	if err != nil {
		return journal.Attachment{}, s.fail(ErrUpload, opUpload, reasonRemoteFailed, err, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return journal.Attachment{}, ErrSessionClosed
	}
	s.attachments = append(s.attachments, attachment)
	journal.SortAttachments(s.attachments)
	return attachment, nil
}

// Reorder swaps the order values of the attachment and its neighbour in the
// given direction and persists both. Moving past either end returns
// ErrReorderBoundary without any remote call. Local order changes only after
// both writes succeed.
func (s *Session) Reorder(ctx context.Context, attachmentID string, direction Direction) error {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()

	step := 0
	switch direction {
	case DirectionUp:
		step = -1
	case DirectionDown:
		step = 1
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	sorted := slices.Clone(s.attachments)
	entryID := s.entryID
	s.mu.Unlock()
	journal.SortAttachments(sorted)

	index := slices.IndexFunc(sorted, func(attachment journal.Attachment) bool {
		return attachment.AttachmentID == attachmentID
	})
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownAttachment, attachmentID)
	}
	neighbourIndex := index + step
	if neighbourIndex < 0 || neighbourIndex >= len(sorted) {
		return ErrReorderBoundary
	}

	moving := sorted[index]
	neighbour := sorted[neighbourIndex]
	movingOrder := neighbour.Order
	neighbourOrder := moving.Order

	if _, err := s.remote.UpdateAttachment(ctx, entryID, moving.AttachmentID, journal.AttachmentPatch{Order: &movingOrder}); err != nil {
		return s.fail(ErrReorder, opReorder, reasonRemoteFailed, err, nil)
	}
	if _, err := s.remote.UpdateAttachment(ctx, entryID, neighbour.AttachmentID, journal.AttachmentPatch{Order: &neighbourOrder}); err != nil {
		restoreOrder := moving.Order
		if _, restoreErr := s.remote.UpdateAttachment(ctx, entryID, moving.AttachmentID, journal.AttachmentPatch{Order: &restoreOrder}); restoreErr != nil {
			s.logger.Error("editor session error",
				zap.String("operation", opReorder),
				zap.String("reason", reasonCompensation),
				zap.String("attachment_id", moving.AttachmentID),
				zap.Error(restoreErr))
		}
		return s.fail(ErrReorder, opReorder, reasonPartialReorder, err, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	for position := range s.attachments {
		switch s.attachments[position].AttachmentID {
		case moving.AttachmentID:
			s.attachments[position].Order = movingOrder
		case neighbour.AttachmentID:
			s.attachments[position].Order = neighbourOrder
		}
	}
	journal.SortAttachments(s.attachments)
	return nil
}

// Caption persists a new caption. The local caption changes only on success.
func (s *Session) Caption(ctx context.Context, attachmentID, caption string) error {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()

	entryID, err := s.lookupAttachment(attachmentID)
	if err != nil {
		return err
	}
	if _, err := s.remote.UpdateAttachment(ctx, entryID, attachmentID, journal.AttachmentPatch{Caption: &caption}); err != nil {
		return s.fail(ErrCaption, opCaption, reasonRemoteFailed, err, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	for index := range s.attachments {
		if s.attachments[index].AttachmentID == attachmentID {
			s.attachments[index].Caption = caption
		}
	}
	return nil
}

// Remove deletes the attachment remotely and drops it from the list. Remaining
// order values are left with their gaps.
func (s *Session) Remove(ctx context.Context, attachmentID string) error {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()

	entryID, err := s.lookupAttachment(attachmentID)
	if err != nil {
		return err
	}
	if err := s.remote.DeleteAttachment(ctx, entryID, attachmentID); err != nil && !errors.Is(err, journal.ErrAttachmentNotFound) {
		return s.fail(ErrDelete, opRemoveAttachment, reasonRemoteFailed, err, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.attachments = slices.DeleteFunc(s.attachments, func(attachment journal.Attachment) bool {
		return attachment.AttachmentID == attachmentID
	})
	return nil
}

func (s *Session) lookupAttachment(attachmentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	for _, attachment := range s.attachments {
		if attachment.AttachmentID == attachmentID {
			return s.entryID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownAttachment, attachmentID)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
