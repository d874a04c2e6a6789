// Package session drives one editing session for a journal entry: it reconciles
// the persisted entry with the local draft, autosaves edits, and keeps the
// attachment list consistent with the remote store.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/editor"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/journal"
	"go.uber.org/zap"
)

// Remote is the entry store a session reconciles against.
type Remote interface {
	GetEntry(ctx context.Context, key journal.EntryKey) (*journal.Entry, error)
	CreateEntry(ctx context.Context, key journal.EntryKey, content string) (journal.Entry, error)
	UpdateEntry(ctx context.Context, entryID string, content string) (journal.Entry, error)
	DeleteEntry(ctx context.Context, entryID string) error
	UploadAttachment(ctx context.Context, entryID string, upload journal.Upload) (journal.Attachment, error)
	UpdateAttachment(ctx context.Context, entryID, attachmentID string, patch journal.AttachmentPatch) (journal.Attachment, error)
	DeleteAttachment(ctx context.Context, entryID, attachmentID string) error
}

// DraftStore keeps one unsaved content copy per entry key.
type DraftStore interface {
	Load(ctx context.Context, key journal.EntryKey) (string, bool, error)
	Save(ctx context.Context, key journal.EntryKey, content string) error
	Delete(ctx context.Context, key journal.EntryKey) error
}

// State is the reconciliation state of a session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Config struct {
	Key           journal.EntryKey
	Remote        Remote
	Drafts        DraftStore
	Policy        journal.UploadPolicy
	AutosaveDelay time.Duration
	Scheduler     Scheduler
	Logger        *zap.Logger
}

// Session owns the buffer, selection and attachment list of one entry.
type Session struct {
	key      journal.EntryKey
	remote   Remote
	drafts   DraftStore
	policy   journal.UploadPolicy
	debounce *debouncer
	logger   *zap.Logger

	// entryMu serializes entry creation between Save, Delete and Upload.
	entryMu sync.Mutex
	// attachMu serializes attachment operations.
	attachMu sync.Mutex
	// draftMu serializes draft store writes.
	draftMu sync.Mutex

	mu            sync.Mutex
	state         State
	content       string
	selection     editor.Selection
	entryID       string
	attachments   []journal.Attachment
	draftRestored bool
	draftGen      uint64
	failures      []error
	closed        bool
}

func New(cfg Config) (*Session, error) {
	if cfg.Key.IsZero() {
		return nil, errMissingKey
	}
	if cfg.Remote == nil {
		return nil, errMissingRemote
	}
	if cfg.Drafts == nil {
		return nil, errMissingDrafts
	}
	policy := cfg.Policy
	if len(policy.AllowedTypes) == 0 && policy.MaxBytes == 0 {
		policy = journal.DefaultUploadPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		key:      cfg.Key,
		remote:   cfg.Remote,
		drafts:   cfg.Drafts,
		policy:   policy,
		debounce: newDebouncer(cfg.Scheduler, cfg.AutosaveDelay),
		logger:   logger.With(zap.String("entry_key", cfg.Key.String())),
	}, nil
}

func (s *Session) Key() journal.EntryKey {
	return s.key
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

func (s *Session) Selection() editor.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// EntryID returns the persisted entry identifier, empty until the entry exists.
func (s *Session) EntryID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryID
}

// Attachments returns a copy of the attachment list sorted by order.
func (s *Session) Attachments() []journal.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.attachments)
}

// DraftRestored reports whether the buffer came from a local draft.
func (s *Session) DraftRestored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draftRestored
}

// Errors returns the failures recorded since the last DismissErrors.
func (s *Session) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.failures)
}

func (s *Session) DismissErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = nil
}

// Load fetches the persisted entry and decides what to present. Persisted
// content wins when it is non-empty; otherwise an existing draft is restored.
// A failed load leaves an empty buffer and may be retried.
func (s *Session) Load(ctx context.Context) error {
	s.debounce.Cancel()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateLoading
	s.draftGen++
	s.mu.Unlock()

	entry, err := s.remote.GetEntry(ctx, s.key)
	if err != nil {
		return s.fail(ErrLoad, opLoad, reasonRemoteFailed, err, func() {
			s.state = StateFailed
			s.content = ""
			s.selection = editor.Selection{}
			s.entryID = ""
			s.attachments = nil
			s.draftRestored = false
		})
	}

	var draft string
	var hasDraft bool
	if entry == nil || entry.Content == "" {
		draft, hasDraft, err = s.loadDraft(ctx)
		if err != nil {
			s.logger.Warn("draft read failed", zap.String("operation", opLoad), zap.Error(err))
			hasDraft = false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.state = StateReady
	s.entryID = ""
	s.attachments = nil
	s.content = ""
	s.draftRestored = false
	if entry != nil {
		s.entryID = entry.EntryID
		s.content = entry.Content
		s.attachments = slices.Clone(entry.Attachments)
		journal.SortAttachments(s.attachments)
	}
	if s.content == "" && hasDraft {
		s.content = draft
		s.draftRestored = true
	}
	s.selection = editor.Collapse(0)
	return nil
}

func (s *Session) loadDraft(ctx context.Context) (string, bool, error) {
	s.draftMu.Lock()
	defer s.draftMu.Unlock()
	return s.drafts.Load(ctx, s.key)
}

// SetSelection records the user's selection, normalized against the buffer.
func (s *Session) SetSelection(anchor, head int) editor.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = editor.NewSelection(s.content, anchor, head)
	return s.selection
}

// OnBufferChange replaces the buffer and restarts the autosave delay.
func (s *Session) OnBufferChange(content string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.content = content
	s.selection = s.selection.Clamp(content)
	gen := s.bumpDraftGenLocked()
	s.mu.Unlock()

	s.scheduleAutosave(gen)
	return nil
}

// ApplyToolbarAction transforms the buffer around the current selection and
// re-applies the returned selection.
func (s *Session) ApplyToolbarAction(action editor.Action) (editor.Selection, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return editor.Selection{}, ErrSessionClosed
	}
	content, selection, err := editor.Apply(s.content, s.selection, action)
	if err != nil {
		current := s.selection
		s.mu.Unlock()
		return current, err
	}
	s.content = content
	s.selection = selection
	gen := s.bumpDraftGenLocked()
	s.mu.Unlock()

	s.scheduleAutosave(gen)
	return selection, nil
}

func (s *Session) bumpDraftGenLocked() uint64 {
	s.draftGen++
	return s.draftGen
}

func (s *Session) scheduleAutosave(gen uint64) {
	s.debounce.Schedule(func() {
		s.flushDraft(gen)
	})
}

// flushDraft writes the buffer to the draft store unless the buffer has moved
// on since gen or a save has begun. Empty buffers delete the draft instead.
func (s *Session) flushDraft(gen uint64) {
	s.draftMu.Lock()
	defer s.draftMu.Unlock()

	s.mu.Lock()
	if s.closed || gen != s.draftGen {
		s.mu.Unlock()
		return
	}
	content := s.content
	s.mu.Unlock()

	ctx := context.Background()
	var err error
	if content == "" {
		err = s.drafts.Delete(ctx, s.key)
	} else {
		err = s.drafts.Save(ctx, s.key, content)
	}
	if err != nil {
		s.logger.Warn("draft autosave failed", zap.String("operation", opAutosave), zap.Error(err))
	}
}

// Save persists the buffer, creating the entry when it does not exist yet. The
// pending autosave is cancelled before any I/O; on success the draft is deleted.
// Save fails with ErrNotLoaded until Load has succeeded.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != StateReady {
		s.mu.Unlock()
		return s.fail(ErrSave, opSave, reasonNotLoaded, ErrNotLoaded, nil)
	}
	saveGen := s.bumpDraftGenLocked()
	content := s.content
	s.mu.Unlock()
	s.debounce.Cancel()

	s.entryMu.Lock()
	entryID := s.EntryID()
	var saved journal.Entry
	var err error
	if entryID == "" {
		saved, err = s.remote.CreateEntry(ctx, s.key, content)
	} else {
		saved, err = s.remote.UpdateEntry(ctx, entryID, content)
	}
	s.entryMu.Unlock()
	if err != nil {
		return s.fail(ErrSave, opSave, reasonRemoteFailed, err, nil)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.entryID = saved.EntryID
	s.draftRestored = false
	s.mu.Unlock()

	s.draftMu.Lock()
	err = s.drafts.Delete(ctx, s.key)
	s.draftMu.Unlock()
	if err != nil {
		return s.fail(ErrSave, opSave, reasonDraftFailed, err, nil)
	}

	s.mu.Lock()
	editedSince := s.draftGen != saveGen
	gen := s.draftGen
	s.mu.Unlock()
	if editedSince {
		s.scheduleAutosave(gen)
	}
	return nil
}

// Delete removes the persisted entry and clears the session. Local state is
// kept when the remote delete fails. Like Save, it requires a loaded session.
func (s *Session) Delete(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != StateReady {
		s.mu.Unlock()
		return s.fail(ErrDelete, opDelete, reasonNotLoaded, ErrNotLoaded, nil)
	}
	s.bumpDraftGenLocked()
	s.mu.Unlock()
	s.debounce.Cancel()

	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	s.entryMu.Lock()
	entryID := s.EntryID()
	if entryID != "" {
		if err := s.remote.DeleteEntry(ctx, entryID); err != nil && !errors.Is(err, journal.ErrEntryNotFound) {
			s.entryMu.Unlock()
			return s.fail(ErrDelete, opDelete, reasonRemoteFailed, err, nil)
		}
	}
	s.entryMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.content = ""
	s.selection = editor.Selection{}
	s.entryID = ""
	s.attachments = nil
	s.draftRestored = false
	s.mu.Unlock()

	s.draftMu.Lock()
	err := s.drafts.Delete(ctx, s.key)
	s.draftMu.Unlock()
	if err != nil {
		return s.fail(ErrDelete, opDelete, reasonDraftFailed, err, nil)
	}
	return nil
}

// Close discards the session. Pending autosave is cancelled and results of
// calls still in flight are dropped.
func (s *Session) Close() {
	s.debounce.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// ensureEntry returns the entry identifier, creating the entry from the current
// buffer when it does not exist yet. An unloaded session never creates one: the
// create is an upsert and would replace content the session never saw.
func (s *Session) ensureEntry(ctx context.Context) (string, error) {
	s.entryMu.Lock()
	defer s.entryMu.Unlock()

	s.mu.Lock()
	entryID := s.entryID
	content := s.content
	state := s.state
	s.mu.Unlock()
	if state != StateReady {
		return "", ErrNotLoaded
	}
	if entryID != "" {
		return entryID, nil
	}

	created, err := s.remote.CreateEntry(ctx, s.key, content)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	s.entryID = created.EntryID
	return created.EntryID, nil
}

// fail records the failure unless the session was closed meanwhile, applying
// mutate under the state lock.
func (s *Session) fail(kind error, operation, reason string, cause error, mutate func()) error {
	opErr := newOperationError(kind, operation, reason, cause)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if mutate != nil {
		mutate()
	}
	s.failures = append(s.failures, opErr)
	s.mu.Unlock()

	s.logger.Error("editor session error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(cause))
	return opErr
}
