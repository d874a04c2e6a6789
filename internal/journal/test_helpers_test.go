package journal

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/storage"
	sqlite "github.com/glebarez/sqlite"
	"github.com/spf13/afero"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

type steppingClock struct {
	current time.Time
}

func (c *steppingClock) Now() time.Time {
	c.current = c.current.Add(time.Second)
	return c.current
}

type testFixture struct {
	service *Service
	db      *gorm.DB
	fs      afero.Fs
}

func newTestService(t *testing.T, ids []string) testFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "journal.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Entry{}, &Attachment{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	fs := afero.NewMemMapFs()
	blobs, err := storage.NewFileStore(storage.FileStoreConfig{Fs: fs, Root: "/media", PublicURL: "http://journal.test/media"})
	if err != nil {
		t.Fatalf("failed to build file store: %v", err)
	}
	clock := &steppingClock{current: time.Unix(1700000000, 0).UTC()}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Blobs:      blobs,
		Clock:      clock.Now,
		IDProvider: &staticIDGenerator{ids: ids},
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return testFixture{service: service, db: db, fs: fs}
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustKey(t *testing.T, date, account string) EntryKey {
	t.Helper()
	key, err := NewEntryKey(date, account)
	if err != nil {
		t.Fatalf("unexpected entry key error: %v", err)
	}
	return key
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}
