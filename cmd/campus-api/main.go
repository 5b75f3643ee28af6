package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/campuslabs/campus/backend/internal/auth"
	"github.com/campuslabs/campus/backend/internal/catalog"
	"github.com/campuslabs/campus/backend/internal/chat"
	"github.com/campuslabs/campus/backend/internal/config"
	"github.com/campuslabs/campus/backend/internal/database"
	"github.com/campuslabs/campus/backend/internal/logging"
	"github.com/campuslabs/campus/backend/internal/server"
	"github.com/campuslabs/campus/backend/internal/students"
	"github.com/campuslabs/campus/backend/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "campus-api",
		Short: "Campus learning platform backend service",
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
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")
	cmd.PersistentFlags().String("auth-issuer", defaults.GetString("auth.issuer"), "Expected token issuer")
	cmd.PersistentFlags().Int("chat-history-limit", defaults.GetInt("chat.history_limit"), "Default chat history page size")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the chat bridge (empty disables it)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.issuer", "auth-issuer")
	bindFlag(cmd, "chat.history_limit", "chat-history-limit")
	bindFlag(cmd, "redis.address", "redis-address")
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

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte(appConfig.AuthSigningKey),
		Issuer:        appConfig.AuthIssuer,
	})

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	studentsService, err := students.NewService(students.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := chat.NewRegistry()

	var bridge chat.Bridge
	if appConfig.RedisAddress != "" {
		redisBridge, err := chat.NewRedisBridge(chat.RedisBridgeConfig{
			Address: appConfig.RedisAddress,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		defer redisBridge.Close() //nolint:errcheck
		err = redisBridge.Start(signalCtx, func(event chat.Event) {
			registry.Publish(event.CourseID, event.Envelope)
		})
		if err != nil {
			return err
		}
		bridge = redisBridge
		logger.Info("chat bridge connected", zap.String("address", appConfig.RedisAddress))
	}

	chatService, err := chat.NewService(chat.ServiceConfig{
		Database: db,
		Registry: registry,
		Bridge:   bridge,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:     tokenManager,
		CatalogService:   catalogService,
		ChatService:      chatService,
		StudentsService:  studentsService,
		UsersService:     usersService,
		Registry:         registry,
		ChatHistoryLimit: appConfig.ChatHistoryLimit,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

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
