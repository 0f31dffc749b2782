package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lensmirror/backend/internal/assets"
	"github.com/lensmirror/backend/internal/cache"
	"github.com/lensmirror/backend/internal/config"
	"github.com/lensmirror/backend/internal/database"
	"github.com/lensmirror/backend/internal/logging"
	"github.com/lensmirror/backend/internal/mirror"
	"github.com/lensmirror/backend/internal/remote"
	"github.com/lensmirror/backend/internal/server"
	"github.com/lensmirror/backend/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lensmirror-api",
		Short: "Lens Mirror backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("max-open-conns", defaults.GetInt("database.max_open_conns"), "Database connection pool ceiling")
	cmd.PersistentFlags().String("storage-path", defaults.GetString("storage.path"), "Asset storage directory")
	cmd.PersistentFlags().String("remote-base-url", defaults.GetString("remote.base_url"), "Remote content platform base URL")
	cmd.PersistentFlags().Bool("enable-web-source", defaults.GetBool("search.enable_web_source"), "Include remote-origin rows in read results")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.max_open_conns", "max-open-conns")
	bindFlag(cmd, "storage.path", "storage-path")
	bindFlag(cmd, "remote.base_url", "remote-base-url")
	bindFlag(cmd, "search.enable_web_source", "enable-web-source")
	bindFlag(cmd, "log.level", "log-level")
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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, appConfig.MaxOpenConns, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	downloader, err := assets.New(assets.Config{
		StorageRoot: appConfig.StoragePath,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	recordStore, err := store.New(store.Config{
		Database:   db,
		Downloader: downloader,
		Options: store.Options{
			EnableWebSource:     appConfig.EnableWebSource,
			IgnoreAltMedia:      appConfig.IgnoreAltMedia,
			IgnoreImageSequence: appConfig.IgnoreImageSequence,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	downloader.SetRecorder(recordStore)

	fetcher, err := remote.NewClient(remote.ClientConfig{
		BaseURL: appConfig.RemoteBaseURL,
		Timeout: appConfig.RemoteTimeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	resultCache := cache.New(appConfig.CacheTTL, appConfig.CacheSweepInterval)
	defer resultCache.Stop()

	engine, err := mirror.New(mirror.Config{
		Store:   recordStore,
		Fetcher: fetcher,
		Cache:   resultCache,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Store:  recordStore,
		Engine: engine,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
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
