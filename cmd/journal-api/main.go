package main

import (
	"errors"
	"os"

	"github.com/MarcoPoloResearchLab/tradejournal/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "journal-api",
		Short:         "Trading journal annotation service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newServeCommand(), newTokenCommand(), newNoteCommand())
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("allowed-origins", defaults.GetString("http.allowed_origins"), "Comma separated CORS origins")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("drafts-path", defaults.GetString("drafts.path"), "SQLite draft store path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	flags.String("signing-secret", "", "Session signing secret (overrides env)")
	flags.String("issuer", defaults.GetString("auth.issuer"), "Session token issuer")
	flags.String("cookie-name", defaults.GetString("auth.cookie_name"), "Session cookie name")
	flags.String("storage-backend", defaults.GetString("storage.backend"), "Attachment storage backend (file, s3)")
	flags.String("storage-root", defaults.GetString("storage.file.root"), "Directory for the file storage backend")
	flags.String("public-url", defaults.GetString("storage.public_url"), "Public URL prefix for stored attachments")
	flags.String("s3-region", "", "S3 region")
	flags.String("s3-endpoint", "", "S3 compatible endpoint")
	flags.String("s3-bucket", "", "S3 bucket")
	flags.Int64("max-upload-bytes", defaults.GetInt64("uploads.max_bytes"), "Largest accepted attachment in bytes")
	flags.Int("thumbnail-size", defaults.GetInt("uploads.thumbnail_size"), "Longest thumbnail side in pixels")
	flags.Duration("autosave-delay", defaults.GetDuration("editor.autosave_delay"), "Inactivity before a draft is written")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "drafts.path", "drafts-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.issuer", "issuer")
	bindFlag(cmd, "auth.cookie_name", "cookie-name")
	bindFlag(cmd, "storage.backend", "storage-backend")
	bindFlag(cmd, "storage.file.root", "storage-root")
	bindFlag(cmd, "storage.public_url", "public-url")
	bindFlag(cmd, "storage.s3.region", "s3-region")
	bindFlag(cmd, "storage.s3.endpoint", "s3-endpoint")
	bindFlag(cmd, "storage.s3.bucket", "s3-bucket")
	bindFlag(cmd, "uploads.max_bytes", "max-upload-bytes")
	bindFlag(cmd, "uploads.thumbnail_size", "thumbnail-size")
	bindFlag(cmd, "editor.autosave_delay", "autosave-delay")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
