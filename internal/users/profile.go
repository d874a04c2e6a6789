package users

import (
	"strings"
)

const defaultProvider = "default"

// Profile maps a login (provider + subject) to the journal user that owns
// entries, and keeps the display details carried by the latest session.
type Profile struct {
	Provider         string `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject          string `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;size:190;not null;index"`
	Email            string `gorm:"column:user_email;size:320;not null;default:''"`
	DisplayName      string `gorm:"column:user_display_name;size:320;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	LastSeenSeconds  int64  `gorm:"column:last_seen_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "journal_users"
}

// splitLogin separates "provider:subject" identifiers. Identifiers without a
// provider prefix belong to the default provider.
func splitLogin(raw string) (string, string) {
	trimmed := strings.TrimSpace(raw)
	provider, subject, found := strings.Cut(trimmed, ":")
	provider, subject = strings.TrimSpace(provider), strings.TrimSpace(subject)
	if !found || provider == "" || subject == "" {
		return defaultProvider, trimmed
	}
	return strings.ToLower(provider), subject
}
