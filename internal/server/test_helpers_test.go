package server

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/auth"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/journal"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/preview"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/storage"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "test-signing-secret"
	testIssuer        = "tradejournal"
	testCookieName    = "journal_session"
	testOrigin        = "https://journal.example.com"
)

type sequentialIDs struct {
	mu   sync.Mutex
	next int
}

func (g *sequentialIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("id-%d", g.next), nil
}

type testServer struct {
	handler  http.Handler
	service  *journal.Service
	realtime *RealtimeDispatcher
	media    afero.Fs
	issuer   *auth.TokenIssuer
	logger   *zap.Logger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithLogger(t, zap.NewNop())
}

func newTestServerWithLogger(t *testing.T, logger *zap.Logger) *testServer {
	t.Helper()
	return buildTestServer(t, logger, journal.UploadPolicy{MaxBytes: 64 << 10, AllowedTypes: []string{"image/png", "image/jpeg"}})
}

func newTestServerWithPolicy(t *testing.T, policy journal.UploadPolicy) *testServer {
	t.Helper()
	return buildTestServer(t, zap.NewNop(), policy)
}

func buildTestServer(t *testing.T, logger *zap.Logger, policy journal.UploadPolicy) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "journal.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&journal.Entry{}, &journal.Attachment{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	mediaFs := afero.NewMemMapFs()
	blobs, err := storage.NewFileStore(storage.FileStoreConfig{Fs: mediaFs, Root: "/", PublicURL: "/media"})
	if err != nil {
		t.Fatalf("failed to build file store: %v", err)
	}
	service, err := journal.NewService(journal.ServiceConfig{
		Database:   db,
		Blobs:      blobs,
		IDProvider: &sequentialIDs{},
		Policy:     policy,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("failed to build journal service: %v", err)
	}

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator:  validator,
		JournalService:    service,
		Preview:           preview.NewRenderer(),
		Realtime:          realtime,
		Media:             mediaFs,
		AllowedOrigins:    []string{testOrigin},
		HeartbeatInterval: 50 * time.Millisecond,
		Logger:            logger,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return &testServer{
		handler:  handler,
		service:  service,
		realtime: realtime,
		media:    mediaFs,
		issuer:   issuer,
		logger:   logger,
	}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := s.issuer.Issue(userID, "", "")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = http.NoBody
	}
	request := httptest.NewRequest(method, target, body)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s *testServer) doJSON(t *testing.T, method, target, token, payload string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, method, target, token, strings.NewReader(payload), "application/json")
}

func (s *testServer) upload(t *testing.T, target, token, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return s.do(t, http.MethodPost, target, token, &body, writer.FormDataContentType())
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}
