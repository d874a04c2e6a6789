package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/auth"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/journal"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	userIDContextKey         = "journal_user_id"
	accessTokenQueryKey      = "access_token"
	defaultHeartbeatInterval = 25 * time.Second
	multipartOverheadBytes   = 1 << 20
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingJournalService   = errors.New("journal service dependency required")
	errMissingPreviewRenderer  = errors.New("preview renderer dependency required")
)

// SessionValidator authenticates requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	ValidateToken(token string) (auth.SessionClaims, error)
}

// UserResolver maps session claims onto the journal user that owns entries.
type UserResolver interface {
	Resolve(ctx context.Context, claims auth.SessionClaims) (journal.UserID, error)
}

// PreviewRenderer renders entry content to HTML.
type PreviewRenderer interface {
	Render(content string) (string, error)
}

type Dependencies struct {
	SessionValidator  SessionValidator
	Users             UserResolver
	JournalService    *journal.Service
	Preview           PreviewRenderer
	Realtime          *RealtimeDispatcher
	Media             afero.Fs
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.JournalService == nil {
		return nil, errMissingJournalService
	}
	if deps.Preview == nil {
		return nil, errMissingPreviewRenderer
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))
	router.MaxMultipartMemory = deps.JournalService.Policy().Limit() + multipartOverheadBytes

	handler := &httpHandler{
		sessions:          deps.SessionValidator,
		users:             deps.Users,
		journal:           deps.JournalService,
		preview:           deps.Preview,
		realtime:          realtime,
		heartbeatInterval: heartbeat,
		logger:            logger,
	}

	if deps.Media != nil {
		router.StaticFS("/media", afero.NewHttpFs(filesOnlyFs{Fs: deps.Media}))
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/entries", handler.handleGetEntry)
	protected.POST("/entries", handler.handleCreateEntry)
	protected.GET("/entries/stream", handler.handleEntryStream)
	protected.PUT("/entries/:entryID", handler.handleUpdateEntry)
	protected.DELETE("/entries/:entryID", handler.handleDeleteEntry)
	protected.POST("/entries/:entryID/attachments", handler.handleUploadAttachment)
	protected.PATCH("/entries/:entryID/attachments/:attachmentID", handler.handleUpdateAttachment)
	protected.DELETE("/entries/:entryID/attachments/:attachmentID", handler.handleDeleteAttachment)
	protected.POST("/preview", handler.handlePreview)

	return router, nil
}

type httpHandler struct {
	sessions          SessionValidator
	users             UserResolver
	journal           *journal.Service
	preview           PreviewRenderer
	realtime          *RealtimeDispatcher
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

// authorizeRequest accepts a bearer token or session cookie. EventSource
// clients cannot set headers, so the stream also accepts an access_token query
// parameter.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if errors.Is(err, auth.ErrMissingSessionToken) {
		if token := strings.TrimSpace(c.Query(accessTokenQueryKey)); token != "" {
			claims, err = h.sessions.ValidateToken(token)
		}
	}
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := h.resolveUser(c.Request.Context(), claims)
	if err != nil {
		h.logger.Warn("user resolution failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID.String())
	c.Next()
}

func (h *httpHandler) resolveUser(ctx context.Context, claims auth.SessionClaims) (journal.UserID, error) {
	if h.users == nil {
		return journal.NewUserID(claims.UserID)
	}
	return h.users.Resolve(ctx, claims)
}

func (h *httpHandler) userID(c *gin.Context) (journal.UserID, bool) {
	userID, err := journal.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
