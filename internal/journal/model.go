package journal

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	maxIdentifierLength = 190
	entryDateLayout     = "2006-01-02"
)

var (
	// ErrInvalidEntryDate indicates that an entry date is not a YYYY-MM-DD calendar date.
	ErrInvalidEntryDate = errors.New("journal: invalid entry date")
	// ErrInvalidAccountID indicates that an account identifier is empty or exceeds storage bounds.
	ErrInvalidAccountID = errors.New("journal: invalid account id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("journal: invalid user id")
)

// EntryDate is a validated calendar date in YYYY-MM-DD form.
type EntryDate string

// NewEntryDate validates raw input and returns an EntryDate.
func NewEntryDate(rawInput string) (EntryDate, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEntryDate)
	}
	if _, err := time.Parse(entryDateLayout, trimmed); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryDate, trimmed)
	}
	return EntryDate(trimmed), nil
}

// String returns the underlying date string.
func (d EntryDate) String() string {
	return string(d)
}

// AccountID represents a validated trading account identifier.
type AccountID string

// NewAccountID validates raw input and returns an AccountID.
func NewAccountID(rawInput string) (AccountID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAccountID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidAccountID, maxIdentifierLength)
	}
	return AccountID(trimmed), nil
}

// String returns the underlying string identifier.
func (id AccountID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// EntryKey identifies one journal entry: a calendar date for a trading account.
type EntryKey struct {
	date    EntryDate
	account AccountID
}

// NewEntryKey validates both halves of the key.
func NewEntryKey(rawDate, rawAccount string) (EntryKey, error) {
	date, err := NewEntryDate(rawDate)
	if err != nil {
		return EntryKey{}, err
	}
	account, err := NewAccountID(rawAccount)
	if err != nil {
		return EntryKey{}, err
	}
	return EntryKey{date: date, account: account}, nil
}

// Date returns the entry date.
func (key EntryKey) Date() EntryDate {
	return key.date
}

// Account returns the account identifier.
func (key EntryKey) Account() AccountID {
	return key.account
}

// IsZero reports whether the key was never initialized.
func (key EntryKey) IsZero() bool {
	return key.date == "" && key.account == ""
}

func (key EntryKey) String() string {
	return key.date.String() + "/" + key.account.String()
}

// Entry models a persisted journal annotation for one (date, account) key.
type Entry struct {
	EntryID          string       `gorm:"column:entry_id;primaryKey;size:190;not null"`
	UserID           string       `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_entries_user_key,priority:1"`
	AccountID        string       `gorm:"column:account_id;size:190;not null;uniqueIndex:idx_entries_user_key,priority:2"`
	EntryDate        string       `gorm:"column:entry_date;size:10;not null;uniqueIndex:idx_entries_user_key,priority:3"`
	Content          string       `gorm:"column:content;type:text;not null"`
	Version          int64        `gorm:"column:version;not null;default:1"`
	CreatedAtSeconds int64        `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64        `gorm:"column:updated_at_s;not null"`
	Attachments      []Attachment `gorm:"foreignKey:EntryID;references:EntryID"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "journal_entries"
}

// Key rebuilds the validated key from the stored columns.
func (e Entry) Key() (EntryKey, error) {
	return NewEntryKey(e.EntryDate, e.AccountID)
}

// Attachment models an image bound to an entry. Order defines the display
// sequence and may contain gaps.
type Attachment struct {
	AttachmentID     string `gorm:"column:attachment_id;primaryKey;size:190;not null"`
	EntryID          string `gorm:"column:entry_id;size:190;not null;index:idx_attachments_entry_order,priority:1"`
	UserID           string `gorm:"column:user_id;size:190;not null"`
	URL              string `gorm:"column:url;size:1024;not null"`
	ThumbnailURL     string `gorm:"column:thumbnail_url;size:1024;not null;default:''"`
	StorageKey       string `gorm:"column:storage_key;size:512;not null"`
	ThumbnailKey     string `gorm:"column:thumbnail_key;size:512;not null;default:''"`
	Caption          string `gorm:"column:caption;type:text;not null;default:''"`
	Order            int    `gorm:"column:sort_order;not null;default:0;index:idx_attachments_entry_order,priority:2"`
	ContentType      string `gorm:"column:content_type;size:100;not null"`
	SizeBytes        int64  `gorm:"column:size_bytes;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Attachment) TableName() string {
	return "journal_attachments"
}

// AttachmentPatch carries the mutable attachment fields. Nil fields are left untouched.
type AttachmentPatch struct {
	Caption *string
	Order   *int
}

// IsEmpty reports whether the patch changes nothing.
func (p AttachmentPatch) IsEmpty() bool {
	return p.Caption == nil && p.Order == nil
}

// SortAttachments orders attachments for display: by order, then creation time,
// then identifier so that duplicated order values still sort deterministically.
func SortAttachments(attachments []Attachment) {
	slices.SortStableFunc(attachments, func(left, right Attachment) int {
		return cmp.Or(
			cmp.Compare(left.Order, right.Order),
			cmp.Compare(left.CreatedAtSeconds, right.CreatedAtSeconds),
			cmp.Compare(left.AttachmentID, right.AttachmentID),
		)
	})
}

// NextOrder returns the order value that appends after every attachment.
func NextOrder(attachments []Attachment) int {
	next := 0
	for _, attachment := range attachments {
		if attachment.Order+1 > next {
			next = attachment.Order + 1
		}
	}
	return next
}
