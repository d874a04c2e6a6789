package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "JOURNAL"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "journal.db"
	defaultDraftsPath     = "journal-drafts.db"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultCookieName     = "journal_session"
	defaultIssuer         = "tradejournal"
	defaultStorageBackend = StorageBackendFile
	defaultFileRoot       = "media"
	defaultPublicURL      = "/media"
	defaultMaxUploadBytes = 10 << 20
	defaultThumbnailSize  = 320
	defaultAutosaveDelay  = 600 * time.Millisecond
	defaultAllowedOrigins = "http://localhost:5173"
)

// Storage backends for attachment blobs.
const (
	StorageBackendFile = "file"
	StorageBackendS3   = "s3"
)

var defaultAllowedTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// AppConfig captures runtime configuration for the API server and CLI.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabasePath   string
	DraftsPath     string
	LogLevel       string
	LogFormat      string
	Auth           AuthConfig
	Storage        StorageConfig
	Uploads        UploadConfig
	AutosaveDelay  time.Duration
}

type AuthConfig struct {
	SigningSecret string
	Issuer        string
	CookieName    string
}

type StorageConfig struct {
	Backend   string
	FileRoot  string
	PublicURL string
	S3        S3Config
}

type S3Config struct {
	Region    string
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
}

type UploadConfig struct {
	MaxBytes      int64
	AllowedTypes  []string
	ThumbnailSize int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("drafts.path", defaultDraftsPath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("storage.backend", defaultStorageBackend)
	configViper.SetDefault("storage.file.root", defaultFileRoot)
	configViper.SetDefault("storage.public_url", defaultPublicURL)
	configViper.SetDefault("uploads.max_bytes", defaultMaxUploadBytes)
	configViper.SetDefault("uploads.allowed_types", strings.Join(defaultAllowedTypes, ","))
	configViper.SetDefault("uploads.thumbnail_size", defaultThumbnailSize)
	configViper.SetDefault("editor.autosave_delay", defaultAutosaveDelay)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		AllowedOrigins: splitList(configViper.GetString("http.allowed_origins")),
		DatabasePath:   configViper.GetString("database.path"),
		DraftsPath:     configViper.GetString("drafts.path"),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),
		Auth: AuthConfig{
			SigningSecret: configViper.GetString("auth.signing_secret"),
			Issuer:        configViper.GetString("auth.issuer"),
			CookieName:    configViper.GetString("auth.cookie_name"),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(strings.TrimSpace(configViper.GetString("storage.backend"))),
			FileRoot:  configViper.GetString("storage.file.root"),
			PublicURL: configViper.GetString("storage.public_url"),
			S3: S3Config{
				Region:    configViper.GetString("storage.s3.region"),
				Endpoint:  configViper.GetString("storage.s3.endpoint"),
				Bucket:    configViper.GetString("storage.s3.bucket"),
				AccessKey: configViper.GetString("storage.s3.access_key"),
				SecretKey: configViper.GetString("storage.s3.secret_key"),
			},
		},
		Uploads: UploadConfig{
			MaxBytes:      configViper.GetInt64("uploads.max_bytes"),
			AllowedTypes:  splitList(configViper.GetString("uploads.allowed_types")),
			ThumbnailSize: configViper.GetInt("uploads.thumbnail_size"),
		},
		AutosaveDelay: configViper.GetDuration("editor.autosave_delay"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.Auth.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.Auth.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.DraftsPath) == "" {
		return fmt.Errorf("drafts.path is required")
	}
	if c.DraftsPath == c.DatabasePath {
		return fmt.Errorf("drafts.path must differ from database.path")
	}
	switch c.Storage.Backend {
	case StorageBackendFile:
		if strings.TrimSpace(c.Storage.FileRoot) == "" {
			return fmt.Errorf("storage.file.root is required for the file backend")
		}
	case StorageBackendS3:
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", StorageBackendFile, StorageBackendS3, c.Storage.Backend)
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("uploads.max_bytes must be positive")
	}
	if len(c.Uploads.AllowedTypes) == 0 {
		return fmt.Errorf("uploads.allowed_types must list at least one type")
	}
	if c.Uploads.ThumbnailSize <= 0 {
		return fmt.Errorf("uploads.thumbnail_size must be positive")
	}
	if c.AutosaveDelay <= 0 {
		return fmt.Errorf("editor.autosave_delay must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
