package journal

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewEntryKeyValidatesParts(t *testing.T) {
	key := mustKey(t, " 2024-03-15 ", "acc-1")
	if key.Date() != "2024-03-15" || key.Account() != "acc-1" {
		t.Fatalf("unexpected key %v", key)
	}
	if key.String() != "2024-03-15/acc-1" {
		t.Fatalf("unexpected key string %s", key.String())
	}

	testCases := []struct {
		name    string
		date    string
		account string
		wantErr error
	}{
		{name: "empty-date", date: "", account: "acc", wantErr: ErrInvalidEntryDate},
		{name: "bad-date", date: "2024-02-30", account: "acc", wantErr: ErrInvalidEntryDate},
		{name: "slashed-date", date: "15/03/2024", account: "acc", wantErr: ErrInvalidEntryDate},
		{name: "empty-account", date: "2024-03-15", account: "  ", wantErr: ErrInvalidAccountID},
		{name: "long-account", date: "2024-03-15", account: strings.Repeat("a", maxIdentifierLength+1), wantErr: ErrInvalidAccountID},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := NewEntryKey(testCase.date, testCase.account); !errors.Is(err, testCase.wantErr) {
				t.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestSortAttachmentsAndNextOrder(t *testing.T) {
	attachments := []Attachment{
		{AttachmentID: "c", Order: 4},
		{AttachmentID: "b", Order: 0, CreatedAtSeconds: 20},
		{AttachmentID: "a", Order: 0, CreatedAtSeconds: 10},
		{AttachmentID: "d", Order: 2},
	}
	SortAttachments(attachments)
	order := []string{attachments[0].AttachmentID, attachments[1].AttachmentID, attachments[2].AttachmentID, attachments[3].AttachmentID}
	if strings.Join(order, "") != "abdc" {
		t.Fatalf("unexpected sort order %v", order)
	}
	if NextOrder(attachments) != 5 {
		t.Fatalf("expected next order 5, got %d", NextOrder(attachments))
	}
	if NextOrder(nil) != 0 {
		t.Fatalf("expected next order 0 for empty list")
	}
}

func TestApplyContentUpdateIncrementsVersion(t *testing.T) {
	existing := Entry{
		EntryID:          "entry-1",
		Content:          "stored",
		Version:          2,
		CreatedAtSeconds: 1699990000,
		UpdatedAtSeconds: 1700000000,
	}
	updated := applyContentUpdate(existing, "incoming", time.Unix(1700000600, 0).UTC())
	if updated.Content != "incoming" {
		t.Fatalf("expected content to be replaced")
	}
	if updated.Version != 3 {
		t.Fatalf("expected version to increment to 3, got %d", updated.Version)
	}
	if updated.UpdatedAtSeconds != 1700000600 {
		t.Fatalf("unexpected updated timestamp %d", updated.UpdatedAtSeconds)
	}
	if updated.CreatedAtSeconds != 1699990000 {
		t.Fatalf("created timestamp should be preserved")
	}
}

func TestApplyContentUpdateKeepsTimestampMonotonic(t *testing.T) {
	existing := Entry{Version: 5, UpdatedAtSeconds: 1700000000}
	updated := applyContentUpdate(existing, "late clock", time.Unix(1600000000, 0).UTC())
	if updated.Content != "late clock" {
		t.Fatalf("last write should win regardless of clock skew")
	}
	if updated.UpdatedAtSeconds != 1700000000 {
		t.Fatalf("updated timestamp moved backwards: %d", updated.UpdatedAtSeconds)
	}
	if updated.CreatedAtSeconds != 1700000000 {
		t.Fatalf("expected created timestamp backfilled, got %d", updated.CreatedAtSeconds)
	}
	if updated.Version != 6 {
		t.Fatalf("unexpected version %d", updated.Version)
	}
}

func TestUploadPolicyValidate(t *testing.T) {
	policy := UploadPolicy{MaxBytes: 1024, AllowedTypes: []string{"image/png", "image/jpeg"}}

	contentType, err := policy.Validate(Upload{Filename: "chart.bin", Data: pngBytes(t, 2, 2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contentType != "image/png" {
		t.Fatalf("expected sniffed png, got %s", contentType)
	}

	_, err = policy.Validate(Upload{Filename: "notes.png", Data: []byte("plain text pretending to be png")})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) || !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected unsupported type validation error, got %v", err)
	}
	if !strings.HasPrefix(validationErr.ContentType, "text/plain") {
		t.Fatalf("expected sniffed text type, got %s", validationErr.ContentType)
	}

	_, err = policy.Validate(Upload{Filename: "big.png", Data: make([]byte, 2048)})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected too large error, got %v", err)
	}

	_, err = policy.Validate(Upload{Filename: "empty.png"})
	if !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected empty file error, got %v", err)
	}
}

func TestUploadPolicyLimitDefaultsWhenUnset(t *testing.T) {
	policy := UploadPolicy{AllowedTypes: []string{"image/png"}}
	if policy.Limit() != defaultMaxUploadBytes {
		t.Fatalf("expected default limit, got %d", policy.Limit())
	}
	if _, err := policy.Validate(Upload{Filename: "chart.png", Data: pngBytes(t, 2, 2)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit := (UploadPolicy{MaxBytes: 512}).Limit(); limit != 512 {
		t.Fatalf("expected explicit limit, got %d", limit)
	}
}
