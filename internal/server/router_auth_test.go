package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/auth"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/journal"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubSessionValidator struct {
	claims auth.SessionClaims
	err    error
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	return s.claims, s.err
}

func (s stubSessionValidator) ValidateToken(string) (auth.SessionClaims, error) {
	return s.claims, s.err
}

func TestAuthorizeRequestLogsExpiredTokenAtInfoLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/entries", http.NoBody)
	request.Header.Set("Authorization", "Bearer expired-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{err: auth.ErrExpiredSessionToken},
		logger:   zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entry.Level)
	}
	if entry.Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredSessionToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired token error context, got %v", entry.Context)
	}
}

func TestAuthorizeRequestLogsUnexpectedTokenErrorAtWarnLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/entries", http.NoBody)

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{err: auth.ErrInvalidSessionToken},
		logger:   zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d", recorder.Code)
	}
	if logs.Len() != 1 || logs.All()[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected a single warn entry, got %v", logs.All())
	}
}

func TestAuthorizeRequestStoresUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/entries", http.NoBody)

	handler := &httpHandler{
		sessions: stubSessionValidator{claims: auth.SessionClaims{UserID: " user-7 "}},
		logger:   zap.NewNop(),
	}
	handler.authorizeRequest(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected request to proceed")
	}
	if got := ctx.GetString(userIDContextKey); got != "user-7" {
		t.Fatalf("unexpected user id in context: %q", got)
	}
}

type stubUserResolver struct {
	userID journal.UserID
	err    error
	seen   []string
}

func (s *stubUserResolver) Resolve(_ context.Context, claims auth.SessionClaims) (journal.UserID, error) {
	s.seen = append(s.seen, claims.UserID)
	return s.userID, s.err
}

func TestAuthorizeRequestUsesUserResolver(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resolver := &stubUserResolver{userID: "12345"}
	handler := &httpHandler{
		sessions: stubSessionValidator{claims: auth.SessionClaims{UserID: "google:12345"}},
		users:    resolver,
		logger:   zap.NewNop(),
	}

	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/entries", http.NoBody)
	handler.authorizeRequest(ctx)
	if got := ctx.GetString(userIDContextKey); got != "12345" {
		t.Fatalf("expected resolved user id, got %q", got)
	}
	if len(resolver.seen) != 1 || resolver.seen[0] != "google:12345" {
		t.Fatalf("expected resolver to receive the login, got %v", resolver.seen)
	}

	resolver.err = errors.New("registry unavailable")
	failing := httptest.NewRecorder()
	failingCtx, _ := gin.CreateTestContext(failing)
	failingCtx.Request = httptest.NewRequest(http.MethodGet, "/entries", http.NoBody)
	handler.authorizeRequest(failingCtx)
	if failing.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when resolution fails, got %d", failing.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	server := newTestServer(t)

	anonymous := server.do(t, http.MethodGet, "/entries?date=2024-03-15&account=acc-1", "", nil, "")
	if anonymous.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", anonymous.Code)
	}

	foreign, _, err := mustForeignIssuer(t).Issue("user-1", "", "")
	if err != nil {
		t.Fatalf("failed to issue foreign token: %v", err)
	}
	rejected := server.do(t, http.MethodGet, "/entries?date=2024-03-15&account=acc-1", foreign, nil, "")
	if rejected.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign issuer, got %d", rejected.Code)
	}

	request := httptest.NewRequest(http.MethodGet, "/entries?date=2024-03-15&account=acc-1", http.NoBody)
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: server.token(t, "user-1")})
	recorder := httptest.NewRecorder()
	server.handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected cookie session to reach the handler, got %d", recorder.Code)
	}

	queryToken := server.do(t, http.MethodGet, "/entries?date=2024-03-15&account=acc-1&access_token="+server.token(t, "user-1"), "", nil, "")
	if queryToken.Code != http.StatusNotFound {
		t.Fatalf("expected query token to authenticate, got %d", queryToken.Code)
	}
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); !errors.Is(err, errMissingSessionValidator) {
		t.Fatalf("expected missing validator error, got %v", err)
	}
	if _, err := NewHTTPHandler(Dependencies{SessionValidator: stubSessionValidator{}}); !errors.Is(err, errMissingJournalService) {
		t.Fatalf("expected missing journal error, got %v", err)
	}
}

func mustForeignIssuer(t *testing.T) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        "someone-else",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}
	return issuer
}
