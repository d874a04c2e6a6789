package journal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const defaultMaxUploadBytes = 10 << 20

var (
	// ErrUnsupportedType indicates an upload whose sniffed content type is not allowed.
	ErrUnsupportedType = errors.New("journal: unsupported attachment type")
	// ErrFileTooLarge indicates an upload exceeding the configured size limit.
	ErrFileTooLarge = errors.New("journal: attachment too large")
	// ErrEmptyFile indicates an upload without content.
	ErrEmptyFile = errors.New("journal: attachment is empty")
)

// Upload is an image file offered for attachment.
type Upload struct {
	Filename string
	Data     []byte
}

// ValidationError reports an upload rejected before any remote call.
type ValidationError struct {
	Reason      error
	Filename    string
	ContentType string
	Size        int64
	Limit       int64
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Reason, ErrFileTooLarge):
		return fmt.Sprintf("%v: %s is %d bytes, limit %d", e.Reason, e.Filename, e.Size, e.Limit)
	case errors.Is(e.Reason, ErrUnsupportedType):
		return fmt.Sprintf("%v: %s is %s", e.Reason, e.Filename, e.ContentType)
	default:
		return fmt.Sprintf("%v: %s", e.Reason, e.Filename)
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// UploadPolicy bounds what may be attached to an entry.
type UploadPolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

// DefaultUploadPolicy accepts common web image formats up to 10 MiB.
func DefaultUploadPolicy() UploadPolicy {
	return UploadPolicy{
		MaxBytes:     defaultMaxUploadBytes,
		AllowedTypes: []string{"image/png", "image/jpeg", "image/gif", "image/webp"},
	}
}

// Limit returns the effective size limit; a non-positive MaxBytes means the default.
func (p UploadPolicy) Limit() int64 {
	if p.MaxBytes <= 0 {
		return defaultMaxUploadBytes
	}
	return p.MaxBytes
}

// Validate checks the upload against the policy and returns the sniffed
// content type. The declared filename extension is never trusted.
func (p UploadPolicy) Validate(upload Upload) (string, error) {
	size := int64(len(upload.Data))
	if size == 0 {
		return "", &ValidationError{Reason: ErrEmptyFile, Filename: upload.Filename}
	}
	limit := p.Limit()
	if size > limit {
		return "", &ValidationError{Reason: ErrFileTooLarge, Filename: upload.Filename, Size: size, Limit: limit}
	}

	detected := mimetype.Detect(upload.Data)
	allowed := p.AllowedTypes
	if len(allowed) == 0 {
		allowed = DefaultUploadPolicy().AllowedTypes
	}
	for _, candidate := range allowed {
		if detected.Is(strings.TrimSpace(candidate)) {
			return strings.TrimSpace(candidate), nil
		}
	}
	return "", &ValidationError{
		Reason:      ErrUnsupportedType,
		Filename:    upload.Filename,
		ContentType: detected.String(),
		Size:        size,
	}
}

// FileExtension returns the canonical extension for an allowed content type.
func FileExtension(contentType string) string {
	if extension := mimetype.Lookup(contentType); extension != nil {
		return extension.Extension()
	}
	return ""
}
