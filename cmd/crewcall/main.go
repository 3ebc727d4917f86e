package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/crewcall/crewcall/api"
	"github.com/crewcall/crewcall/internal/applications"
	"github.com/crewcall/crewcall/internal/chat"
	"github.com/crewcall/crewcall/internal/config"
	"github.com/crewcall/crewcall/internal/database"
	"github.com/crewcall/crewcall/internal/identities"
	"github.com/crewcall/crewcall/internal/notifications"
	"github.com/crewcall/crewcall/internal/profiles"
	"github.com/crewcall/crewcall/internal/projects"
	"github.com/crewcall/crewcall/internal/schedules"
	"github.com/crewcall/crewcall/internal/uploads"
	"github.com/crewcall/crewcall/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment variables")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	defer zapLogger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		zapLogger.Fatal("load configuration", zap.Error(err))
	}

	db, err := database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		zapLogger.Fatal("connect postgres", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		zapLogger.Fatal("run migrations", zap.Error(err))
	}

	rdb, err := database.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zapLogger.Fatal("connect redis", zap.Error(err))
	}

	ctx := context.Background()

	// Identities
	otpManager := identities.NewOTPManager(rdb, cfg.Auth.OTPTTL, cfg.Auth.OTPRequestWin,
		cfg.Auth.OTPMaxAttempts, cfg.Auth.OTPMaxRequests)
	smsSender := &identities.LogSender{Logger: zapLogger}
	identitySvc, err := identities.NewService(zapLogger, db, rdb, otpManager, smsSender, identities.Options{
		JWTSecret:     cfg.Auth.JWTSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
	})
	if err != nil {
		zapLogger.Fatal("create identities service", zap.Error(err))
	}

	// Notifications
	var pusher notifications.Pusher = notifications.NewLogPusher(zapLogger)
	if cfg.Push.GatewayURL != "" {
		pusher = notifications.NewGatewayPusher(cfg.Push.GatewayURL, cfg.Push.APIKey, cfg.Push.Timeout)
	}
	var publisher notifications.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaPub := notifications.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, zapLogger)
		defer kafkaPub.Close()
		publisher = kafkaPub
	}
	notificationSvc, err := notifications.NewService(zapLogger, db, pusher, publisher)
	if err != nil {
		zapLogger.Fatal("create notifications service", zap.Error(err))
	}

	// Chat store and gateway
	chatSvc, err := chat.NewService(zapLogger, db, notificationSvc)
	if err != nil {
		zapLogger.Fatal("create chat service", zap.Error(err))
	}
	presence := chat.NewPresence(rdb, cfg.Chat.PresenceTTL)
	bridge := chat.NewBridge(rdb, zapLogger)
	hub := chat.NewHub(zapLogger, chatSvc, presence, bridge, chat.HubConfig{
		WriteTimeout:   cfg.Chat.WriteTimeout,
		PongTimeout:    cfg.Chat.PongTimeout,
		PingInterval:   cfg.Chat.PingInterval,
		MaxMessageSize: cfg.Chat.MaxMessageSize,
		SendBuffer:     cfg.Chat.SendBuffer,
	})

	// Marketplace services
	profileSvc, err := profiles.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("create profiles service", zap.Error(err))
	}
	projectSvc, err := projects.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("create projects service", zap.Error(err))
	}
	applicationSvc, err := applications.NewService(zapLogger, db, notificationSvc, chatSvc)
	if err != nil {
		zapLogger.Fatal("create applications service", zap.Error(err))
	}
	scheduleSvc, err := schedules.NewService(zapLogger, db, projectSvc, applicationSvc)
	if err != nil {
		zapLogger.Fatal("create schedules service", zap.Error(err))
	}

	// Object storage
	minioClient, err := uploads.NewMinioClient(cfg.Storage.Endpoint, cfg.Storage.AccessKey,
		cfg.Storage.SecretKey, cfg.Storage.UseSSL)
	if err != nil {
		zapLogger.Fatal("connect object storage", zap.Error(err))
	}
	uploadSvc, err := uploads.NewService(ctx, zapLogger, db, minioClient, cfg.Storage.Bucket)
	if err != nil {
		zapLogger.Fatal("create uploads service", zap.Error(err))
	}

	// Hourly call-time reminder sweep
	reminder := schedules.NewReminder(zapLogger, db, notificationSvc)
	if err := reminder.Start(); err != nil {
		zapLogger.Fatal("start reminder cron", zap.Error(err))
	}

	apiServer, err := api.NewServer(zapLogger, api.Services{
		Identities:    identitySvc,
		Profiles:      profileSvc,
		Projects:      projectSvc,
		Applications:  applicationSvc,
		Schedules:     scheduleSvc,
		Chat:          chatSvc,
		Notifications: notificationSvc,
		Uploads:       uploadSvc,
		Hub:           hub,
	}, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
	})
	if err != nil {
		zapLogger.Fatal("create API server", zap.Error(err))
	}

	go func() {
		if err := apiServer.Start(cfg.Server.Addr); err != nil {
			zapLogger.Fatal("API server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("shutting down")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("drain HTTP server", zap.Error(err))
	}
	reminder.Stop()
	hub.Shutdown()
	if err := rdb.Close(); err != nil {
		zapLogger.Error("close redis", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	zapLogger.Info("server exited")
}
