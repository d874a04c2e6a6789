package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/config"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/database"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/drafts"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/journal"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/logging"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/media"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/storage"
	"github.com/MarcoPoloResearchLab/tradejournal/internal/users"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime holds the wired services shared by the serve and note commands.
type runtime struct {
	config  config.AppConfig
	logger  *zap.Logger
	journal *journal.Service
	drafts  *drafts.Store
	users   *users.Service
	// media is the blob filesystem when the file backend is active.
	media   afero.Fs
	closers []func() error
}

func newRuntime(ctx context.Context) (*runtime, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	rt := &runtime{config: appConfig, logger: logger}
	if err := rt.open(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) open(ctx context.Context) error {
	db, err := database.OpenSQLite(rt.config.DatabasePath, rt.logger)
	if err != nil {
		return err
	}
	rt.closeDatabase(db)

	rt.users, err = users.NewService(users.ServiceConfig{Database: db, Logger: rt.logger})
	if err != nil {
		return err
	}

	draftsDB, err := database.OpenDrafts(rt.config.DraftsPath, rt.logger)
	if err != nil {
		return err
	}
	rt.closeDatabase(draftsDB)

	blobs, err := rt.openBlobStore(ctx)
	if err != nil {
		return err
	}

	rt.journal, err = journal.NewService(journal.ServiceConfig{
		Database:    db,
		Blobs:       blobs,
		Thumbnailer: media.Thumbnailer{MaxSide: rt.config.Uploads.ThumbnailSize},
		Policy:      rt.uploadPolicy(),
		IDProvider:  journal.NewUUIDProvider(),
		Logger:      rt.logger,
	})
	if err != nil {
		return err
	}

	rt.drafts, err = drafts.NewStore(drafts.StoreConfig{Database: draftsDB, Logger: rt.logger})
	return err
}

func (rt *runtime) openBlobStore(ctx context.Context) (journal.BlobStore, error) {
	storageConfig := rt.config.Storage
	switch storageConfig.Backend {
	case config.StorageBackendS3:
		return storage.NewS3Store(ctx, storage.S3Config{
			Region:    storageConfig.S3.Region,
			Endpoint:  storageConfig.S3.Endpoint,
			Bucket:    storageConfig.S3.Bucket,
			AccessKey: storageConfig.S3.AccessKey,
			SecretKey: storageConfig.S3.SecretKey,
			PublicURL: storageConfig.PublicURL,
		})
	case config.StorageBackendFile:
		osFs := afero.NewOsFs()
		if err := osFs.MkdirAll(storageConfig.FileRoot, 0o755); err != nil {
			return nil, fmt.Errorf("create storage root: %w", err)
		}
		rt.media = afero.NewBasePathFs(osFs, storageConfig.FileRoot)
		return storage.NewFileStore(storage.FileStoreConfig{
			Fs:        rt.media,
			Root:      "/",
			PublicURL: storageConfig.PublicURL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", storageConfig.Backend)
	}
}

func (rt *runtime) uploadPolicy() journal.UploadPolicy {
	return journal.UploadPolicy{
		MaxBytes:     rt.config.Uploads.MaxBytes,
		AllowedTypes: rt.config.Uploads.AllowedTypes,
	}
}

func (rt *runtime) closeDatabase(db *gorm.DB) {
	rt.closers = append(rt.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
}

// Close releases the databases and flushes the logger.
func (rt *runtime) Close() error {
	var errs []error
	for index := len(rt.closers) - 1; index >= 0; index-- {
		errs = append(errs, rt.closers[index]())
	}
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
	return errors.Join(errs...)
}
