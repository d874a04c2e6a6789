package journal

import "context"

// Store binds the service to one user so editor sessions can call it without
// carrying the user identifier around.
type Store struct {
	service *Service
	userID  UserID
}

// ForUser returns the service scoped to userID.
func (s *Service) ForUser(userID UserID) *Store {
	return &Store{service: s, userID: userID}
}

func (s *Store) GetEntry(ctx context.Context, key EntryKey) (*Entry, error) {
	return s.service.GetEntry(ctx, s.userID, key)
}

func (s *Store) CreateEntry(ctx context.Context, key EntryKey, content string) (Entry, error) {
	return s.service.CreateEntry(ctx, s.userID, key, content)
}

func (s *Store) UpdateEntry(ctx context.Context, entryID string, content string) (Entry, error) {
	return s.service.UpdateEntry(ctx, s.userID, entryID, content)
}

func (s *Store) DeleteEntry(ctx context.Context, entryID string) error {
	_, err := s.service.DeleteEntry(ctx, s.userID, entryID)
	return err
}

func (s *Store) UploadAttachment(ctx context.Context, entryID string, upload Upload) (Attachment, error) {
	return s.service.UploadAttachment(ctx, s.userID, entryID, upload)
}

func (s *Store) UpdateAttachment(ctx context.Context, entryID, attachmentID string, patch AttachmentPatch) (Attachment, error) {
	return s.service.UpdateAttachment(ctx, s.userID, entryID, attachmentID, patch)
}

func (s *Store) DeleteAttachment(ctx context.Context, entryID, attachmentID string) error {
	_, err := s.service.DeleteAttachment(ctx, s.userID, entryID, attachmentID)
	return err
}
