package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/journal"
)

var errRemoteUnavailable = errors.New("remote unavailable")

// fakeRemote keeps a single entry in memory and records every call.
type fakeRemote struct {
	mu       sync.Mutex
	entry    *journal.Entry
	calls    []string
	failures map[string]error
	nextID   int
	onCall   func(call string)
}

func newFakeRemote(entry *journal.Entry) *fakeRemote {
	return &fakeRemote{entry: entry, failures: map[string]error{}}
}

func (r *fakeRemote) record(call string) error {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	err := r.failures[call]
	hook := r.onCall
	r.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return err
}

func (r *fakeRemote) failOn(call string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[call] = err
}

func (r *fakeRemote) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func (r *fakeRemote) stored() *journal.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entry == nil {
		return nil
	}
	copied := *r.entry
	copied.Attachments = slices.Clone(r.entry.Attachments)
	return &copied
}

func (r *fakeRemote) GetEntry(_ context.Context, _ journal.EntryKey) (*journal.Entry, error) {
	if err := r.record("get"); err != nil {
		return nil, err
	}
	return r.stored(), nil
}

func (r *fakeRemote) CreateEntry(_ context.Context, key journal.EntryKey, content string) (journal.Entry, error) {
	if err := r.record("create:" + content); err != nil {
		return journal.Entry{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entry == nil {
		r.entry = &journal.Entry{
			EntryID:   "entry-1",
			AccountID: key.Account().String(),
			EntryDate: key.Date().String(),
		}
	}
	r.entry.Content = content
	r.entry.Version++
	return *r.entry, nil
}

func (r *fakeRemote) UpdateEntry(_ context.Context, entryID string, content string) (journal.Entry, error) {
	if err := r.record("update:" + content); err != nil {
		return journal.Entry{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entry == nil || r.entry.EntryID != entryID {
		return journal.Entry{}, journal.ErrEntryNotFound
	}
	r.entry.Content = content
	r.entry.Version++
	return *r.entry, nil
}

func (r *fakeRemote) DeleteEntry(_ context.Context, entryID string) error {
	if err := r.record("delete"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entry == nil || r.entry.EntryID != entryID {
		return journal.ErrEntryNotFound
	}
	r.entry = nil
	return nil
}

func (r *fakeRemote) UploadAttachment(_ context.Context, entryID string, upload journal.Upload) (journal.Attachment, error) {
	if err := r.record("upload:" + upload.Filename); err != nil {
		return journal.Attachment{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entry == nil || r.entry.EntryID != entryID {
		return journal.Attachment{}, journal.ErrEntryNotFound
	}
	r.nextID++
	attachment := journal.Attachment{
		AttachmentID: fmt.Sprintf("att-%d", r.nextID),
		EntryID:      entryID,
		URL:          "https://cdn.test/" + upload.Filename,
		ThumbnailURL: "https://cdn.test/thumb_" + upload.Filename,
		Order:        journal.NextOrder(r.entry.Attachments),
	}
	r.entry.Attachments = append(r.entry.Attachments, attachment)
	return attachment, nil
}

func (r *fakeRemote) UpdateAttachment(_ context.Context, entryID, attachmentID string, patch journal.AttachmentPatch) (journal.Attachment, error) {
	if err := r.record("update_attachment:" + attachmentID); err != nil {
		return journal.Attachment{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entry == nil || r.entry.EntryID != entryID {
		return journal.Attachment{}, journal.ErrEntryNotFound
	}
	for index := range r.entry.Attachments {
		attachment := &r.entry.Attachments[index]
		if attachment.AttachmentID != attachmentID {
			continue
		}
		if patch.Caption != nil {
			attachment.Caption = *patch.Caption
		}
		if patch.Order != nil {
			attachment.Order = *patch.Order
		}
		return *attachment, nil
	}
	return journal.Attachment{}, journal.ErrAttachmentNotFound
}

func (r *fakeRemote) DeleteAttachment(_ context.Context, entryID, attachmentID string) error {
	if err := r.record("delete_attachment:" + attachmentID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entry == nil || r.entry.EntryID != entryID {
		return journal.ErrEntryNotFound
	}
	r.entry.Attachments = slices.DeleteFunc(r.entry.Attachments, func(attachment journal.Attachment) bool {
		return attachment.AttachmentID == attachmentID
	})
	return nil
}

func (r *fakeRemote) orders() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := map[string]int{}
	if r.entry == nil {
		return result
	}
	for _, attachment := range r.entry.Attachments {
		result[attachment.AttachmentID] = attachment.Order
	}
	return result
}

// memoryDrafts is an in-memory DraftStore counting writes.
type memoryDrafts struct {
	mu      sync.Mutex
	drafts  map[string]string
	saves   int
	deletes int
	failure error
}

func newMemoryDrafts() *memoryDrafts {
	return &memoryDrafts{drafts: map[string]string{}}
}

func (d *memoryDrafts) Load(_ context.Context, key journal.EntryKey) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	content, ok := d.drafts[key.String()]
	return content, ok, nil
}

func (d *memoryDrafts) Save(_ context.Context, key journal.EntryKey, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failure != nil {
		return d.failure
	}
	d.saves++
	d.drafts[key.String()] = content
	return nil
}

func (d *memoryDrafts) Delete(_ context.Context, key journal.EntryKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failure != nil {
		return d.failure
	}
	d.deletes++
	delete(d.drafts, key.String())
	return nil
}

func (d *memoryDrafts) get(key journal.EntryKey) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	content, ok := d.drafts[key.String()]
	return content, ok
}

func (d *memoryDrafts) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saves, d.deletes
}

// manualScheduler fires scheduled calls only when the test asks it to.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	timer := &manualTimer{delay: d, fn: fn}
	s.mu.Lock()
	s.timers = append(s.timers, timer)
	s.mu.Unlock()
	return timer
}

// FireAll runs every pending call and returns how many ran.
func (s *manualScheduler) FireAll() int {
	s.mu.Lock()
	timers := slices.Clone(s.timers)
	s.mu.Unlock()
	fired := 0
	for _, timer := range timers {
		timer.mu.Lock()
		if timer.stopped || timer.fired {
			timer.mu.Unlock()
			continue
		}
		timer.fired = true
		timer.mu.Unlock()
		timer.fn()
		fired++
	}
	return fired
}

func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := 0
	for _, timer := range s.timers {
		timer.mu.Lock()
		if !timer.stopped && !timer.fired {
			pending++
		}
		timer.mu.Unlock()
	}
	return pending
}

func (s *manualScheduler) LastDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return 0
	}
	return s.timers[len(s.timers)-1].delay
}

func mustKey(t *testing.T) journal.EntryKey {
	t.Helper()
	key, err := journal.NewEntryKey("2024-03-15", "acc-1")
	if err != nil {
		t.Fatalf("unexpected key error: %v", err)
	}
	return key
}

func newTestSession(t *testing.T, remote *fakeRemote, drafts *memoryDrafts) (*Session, *manualScheduler) {
	t.Helper()
	scheduler := &manualScheduler{}
	session, err := New(Config{
		Key:       mustKey(t),
		Remote:    remote,
		Drafts:    drafts,
		Scheduler: scheduler,
	})
	if err != nil {
		t.Fatalf("failed to build session: %v", err)
	}
	return session, scheduler
}

func mustLoad(t *testing.T, session *Session) {
	t.Helper()
	if err := session.Load(context.Background()); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
}

func pngUpload(t *testing.T, name string) journal.Upload {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return journal.Upload{Filename: name, Data: buf.Bytes()}
}

func entryWithAttachments(content string, orders map[string]int) *journal.Entry {
	entry := &journal.Entry{EntryID: "entry-1", Content: content}
	for id, order := range orders {
		entry.Attachments = append(entry.Attachments, journal.Attachment{AttachmentID: id, EntryID: "entry-1", Order: order})
	}
	journal.SortAttachments(entry.Attachments)
	return entry
}

func attachmentIDs(attachments []journal.Attachment) []string {
	ids := make([]string, 0, len(attachments))
	for _, attachment := range attachments {
		ids = append(ids, attachment.AttachmentID)
	}
	return ids
}
