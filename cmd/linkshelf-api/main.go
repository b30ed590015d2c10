package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/linkshelf/internal/auth"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/config"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/database"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/identity"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/links"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/logging"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/metadata"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/metrics"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/profiles"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile  string
	envFiles = []string{".env.local", ".env"}
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "linkshelf-api",
		Short: "LinkShelf bookmarking backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMetadataCommand(), newPostLinkCommand(), newSessionTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "PostgreSQL connection string")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("webhook-secret", "", "Identity webhook signing secret (whsec_...)")
	cmd.PersistentFlags().String("session-signing-secret", "", "Session JWT signing secret; enables session auth on write routes")
	cmd.PersistentFlags().Duration("metadata-timeout", defaults.GetDuration("metadata.timeout"), "Metadata fetch timeout")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "webhook.secret", "webhook-secret")
	bindFlag(cmd, "auth.session_signing_secret", "session-signing-secret")
	bindFlag(cmd, "metadata.timeout", "metadata-timeout")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

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

// application holds the wired services shared by every command.
type application struct {
	config    config.AppConfig
	logger    *zap.Logger
	db        *gorm.DB
	profiles  *profiles.Service
	links     *links.Service
	extractor *metadata.Extractor
}

func loadConfigAndLogger() (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return appConfig, logger, nil
}

func newExtractor(appConfig config.AppConfig, logger *zap.Logger) *metadata.Extractor {
	return metadata.New(metadata.Config{
		UserAgent: appConfig.MetadataUserAgent,
		Timeout:   appConfig.MetadataTimeout,
	}, logger)
}

func newApplication() (*application, error) {
	appConfig, logger, err := loadConfigAndLogger()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return nil, err
	}

	idProvider := links.NewUUIDProvider()
	profileService, err := profiles.NewService(profiles.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	linkService, err := links.NewService(links.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	return &application{
		config:    appConfig,
		logger:    logger,
		db:        db,
		profiles:  profileService,
		links:     linkService,
		extractor: newExtractor(appConfig, logger),
	}, nil
}

func (a *application) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func (a *application) webhookProcessor() (server.WebhookProcessor, error) {
	if a.config.WebhookSecret == "" {
		a.logger.Warn("webhook secret not configured; identity webhooks will be rejected")
		return nil, nil
	}
	verifier, err := identity.NewVerifier(a.config.WebhookSecret)
	if err != nil {
		return nil, err
	}
	return identity.NewProcessor(verifier, a.profiles, a.logger)
}

func (a *application) sessionValidator() (server.SessionValidator, error) {
	if !a.config.SessionAuthEnabled() {
		return nil, nil
	}
	return auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(a.config.SessionSigningSecret),
		Issuer:        a.config.SessionIssuer,
		CookieName:    a.config.SessionCookieName,
	})
}

func runServer(ctx context.Context) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.close()

	metrics.Init()

	deps := server.Dependencies{
		Profiles: app.profiles,
		Links:    app.links,
		Metadata: app.extractor,
		Logger:   app.logger,
	}
	processor, err := app.webhookProcessor()
	if err != nil {
		return err
	}
	if processor != nil {
		deps.Webhooks = processor
	}
	sessions, err := app.sessionValidator()
	if err != nil {
		return err
	}
	if sessions != nil {
		deps.Sessions = sessions
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting",
			zap.String("address", app.config.HTTPAddress),
			zap.String("database_driver", app.config.DatabaseDriver),
			zap.Bool("session_auth", app.config.SessionAuthEnabled()))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
