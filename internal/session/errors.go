package session

import (
	"errors"
	"fmt"
)

// Error kinds reported by a session. Every failure returned from a remote call
// unwraps to exactly one of them.
var (
	ErrLoad    = errors.New("session: load failed")
	ErrSave    = errors.New("session: save failed")
	ErrDelete  = errors.New("session: delete failed")
	ErrUpload  = errors.New("session: upload failed")
	ErrReorder = errors.New("session: reorder failed")
	ErrCaption = errors.New("session: caption failed")
)

var (
	// ErrSessionClosed is returned for calls on, or results arriving after, a closed session.
	ErrSessionClosed = errors.New("session: closed")
	// ErrReorderBoundary is returned when an attachment cannot move further in the requested direction.
	ErrReorderBoundary = errors.New("session: attachment already at list boundary")
	// ErrUnknownAttachment is returned when the attachment is not part of the session.
	ErrUnknownAttachment = errors.New("session: unknown attachment")
	// ErrInvalidDirection is returned for reorder directions other than up and down.
	ErrInvalidDirection = errors.New("session: invalid reorder direction")
	// ErrNotLoaded is returned for writes attempted before a successful Load.
	ErrNotLoaded = errors.New("session: entry not loaded")

	errMissingRemote = errors.New("session: remote store is required")
	errMissingDrafts = errors.New("session: draft store is required")
	errMissingKey    = errors.New("session: entry key is required")
)

const (
	opLoad             = "session.load"
	opSave             = "session.save"
	opDelete           = "session.delete"
	opUpload           = "session.upload"
	opReorder          = "session.reorder"
	opCaption          = "session.caption"
	opRemoveAttachment = "session.remove_attachment"
	opAutosave         = "session.autosave"

	reasonRemoteFailed   = "remote_failed"
	reasonEnsureEntry    = "ensure_entry_failed"
	reasonNotLoaded      = "not_loaded"
	reasonDraftFailed    = "draft_failed"
	reasonCompensation   = "compensation_failed"
	reasonPartialReorder = "second_write_failed"
)

// OperationError is a failed session operation. It unwraps to its kind (ErrSave,
// ErrUpload, ...) and to the underlying cause.
type OperationError struct {
	code string
	kind error
	err  error
}

func newOperationError(kind error, operation, reason string, cause error) *OperationError {
	return &OperationError{
		code: fmt.Sprintf("%s.%s", operation, reason),
		kind: kind,
		err:  cause,
	}
}

func (e *OperationError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *OperationError) Unwrap() []error {
	return []error{e.kind, e.err}
}

// Code returns the "operation.reason" identifier.
func (e *OperationError) Code() string {
	return e.code
}

// Kind returns the error kind sentinel.
func (e *OperationError) Kind() error {
	return e.kind
}
