// Package users resolves session logins to the journal users that own entries.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/auth"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/journal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

const queryLogin = "provider = ? AND subject = ?"

// ServiceConfig describes the dependencies required for user resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service maps provider logins to journal user identifiers. Resolved logins are
// cached for the lifetime of the process.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, now: clock, logger: logger}, nil
}

// Resolve returns the journal user for the session claims, registering the
// login on first sight. "google:123" and "123" from the default provider
// resolve to the same user.
func (s *Service) Resolve(ctx context.Context, claims auth.SessionClaims) (journal.UserID, error) {
	provider, subject := splitLogin(claims.UserID)
	if subject == "" {
		provider, subject = defaultProvider, strings.TrimSpace(claims.UserEmail)
	}
	if subject == "" {
		return "", ErrInvalidIdentity
	}

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if userID, ok := cached.(journal.UserID); ok {
			return userID, nil
		}
	}

	var profile Profile
	err := s.db.WithContext(ctx).Where(queryLogin, provider, subject).Take(&profile).Error
	now := s.now().UTC().Unix()
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		profile = Profile{
			Provider:         provider,
			Subject:          subject,
			UserID:           subject,
			Email:            strings.TrimSpace(claims.UserEmail),
			DisplayName:      strings.TrimSpace(claims.UserDisplayName),
			CreatedAtSeconds: now,
			LastSeenSeconds:  now,
		}
		if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
			s.logger.Error("user registration failed",
				zap.String("operation", "users.resolve"),
				zap.String("reason", "save_failed"),
				zap.String("provider", provider),
				zap.Error(err))
			return "", err
		}
	case err != nil:
		return "", err
	default:
		s.touch(ctx, profile, claims, now)
	}

	userID, err := journal.NewUserID(profile.UserID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	s.cache.Store(cacheKey, userID)
	return userID, nil
}

// Lookup returns the stored profile for a login.
func (s *Service) Lookup(ctx context.Context, login string) (Profile, bool, error) {
	provider, subject := splitLogin(login)
	var profile Profile
	err := s.db.WithContext(ctx).Where(queryLogin, provider, subject).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, err
	}
	return profile, true, nil
}

// touch refreshes the profile details. Failures only cost freshness, so they
// are logged and not returned.
func (s *Service) touch(ctx context.Context, profile Profile, claims auth.SessionClaims, now int64) {
	updates := map[string]any{"last_seen_s": now}
	if email := strings.TrimSpace(claims.UserEmail); email != "" && email != profile.Email {
		updates["user_email"] = email
	}
	if display := strings.TrimSpace(claims.UserDisplayName); display != "" && display != profile.DisplayName {
		updates["user_display_name"] = display
	}
	err := s.db.WithContext(ctx).Model(&Profile{}).
		Where(queryLogin, profile.Provider, profile.Subject).
		Updates(updates).Error
	if err != nil {
		s.logger.Warn("user profile refresh failed",
			zap.String("operation", "users.resolve"),
			zap.String("reason", "update_failed"),
			zap.Error(err))
	}
}
