package journal

import "time"

func newEntry(entryID string, userID UserID, key EntryKey, content string, appliedAt time.Time) Entry {
	return Entry{
		EntryID:          entryID,
		UserID:           userID.String(),
		AccountID:        key.Account().String(),
		EntryDate:        key.Date().String(),
		Content:          content,
		Version:          1,
		CreatedAtSeconds: appliedAt.Unix(),
		UpdatedAtSeconds: appliedAt.Unix(),
	}
}

// applyContentUpdate overwrites content unconditionally. Timestamps never move
// backwards, so a skewed server clock cannot make a newer write look older.
func applyContentUpdate(existing Entry, content string, appliedAt time.Time) Entry {
	updated := existing
	updated.Content = content

	if appliedAt.Unix() > updated.UpdatedAtSeconds {
		updated.UpdatedAtSeconds = appliedAt.Unix()
	}
	if updated.CreatedAtSeconds == 0 || updated.CreatedAtSeconds > updated.UpdatedAtSeconds {
		updated.CreatedAtSeconds = updated.UpdatedAtSeconds
	}

	nextVersion := existing.Version + 1
	if nextVersion <= 0 {
		nextVersion = 1
	}
	updated.Version = nextVersion
	return updated
}
