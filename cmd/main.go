package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	httpapi "github.com/immxrtalbeast/studyroom/internal/api/http"
	"github.com/immxrtalbeast/studyroom/internal/config"
	"github.com/immxrtalbeast/studyroom/internal/janitor"
	"github.com/immxrtalbeast/studyroom/internal/notify"
	"github.com/immxrtalbeast/studyroom/internal/presence"
	"github.com/immxrtalbeast/studyroom/internal/registry"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/internal/repository/model"
	"github.com/immxrtalbeast/studyroom/internal/service"
	"github.com/immxrtalbeast/studyroom/internal/session"
	"github.com/immxrtalbeast/studyroom/internal/signal"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
	"github.com/immxrtalbeast/studyroom/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

func main() {
	// must be registered before config.MustLoad parses the flags
	cleanupOnly := flag.Bool("cleanup", false, "delete expired rooms once and exit")

	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		log.Error("failed to connect database", sl.Err(err))
		os.Exit(1)
	}

	roomRepo := repository.NewGormRoomRepository(db)
	membershipRepo := repository.NewGormMembershipRepository(db)
	chatRepo := repository.NewGormChatRepository(db)
	notificationRepo := repository.NewGormNotificationRepository(db)
	userRepo := repository.NewGormUserRepository(db)

	tracker := presence.NewTracker(roomRepo, membershipRepo, cfg.Presence.ExpiryWindow, log)
	sweeper := janitor.New(roomRepo, tracker, cfg.Janitor.Schedule, cfg.Janitor.SweepTimeout, log)

	if *cleanupOnly {
		res, err := sweeper.Sweep(context.Background())
		log.Info("cleanup finished",
			slog.Int("deleted", res.Deleted),
			slog.Int("skipped", res.Skipped),
			slog.Int("scheduled", res.Scheduled),
		)
		closeDatabase(db, log)
		if err != nil {
			log.Error("cleanup failed", sl.Err(err))
			os.Exit(1)
		}
		return
	}

	reg := registry.New()
	dispatcher := notify.NewDispatcher(notificationRepo, cfg.Notify.Workers, cfg.Notify.QueueSize, log)
	router := signal.NewRouter(reg, roomRepo, chatRepo, log)
	sessions := session.NewManager(reg, tracker, router, dispatcher, session.Config{
		SendQueueSize:  cfg.WebSocket.SendQueueSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		WriteWait:      cfg.WebSocket.WriteWait,
	}, log)

	roomService := service.NewRoomService(roomRepo, membershipRepo, chatRepo, tracker, reg, dispatcher, log)
	userService := service.NewUserService(userRepo, log)
	notificationService := service.NewNotificationService(notificationRepo, log)

	if _, err := roomService.EnsureGlobalRoom(context.Background(), uuid.Nil); err != nil {
		log.Error("failed to ensure global room", sl.Err(err))
		os.Exit(1)
	}

	notifyCtx, stopNotify := context.WithCancel(context.Background())
	notifyDone := make(chan struct{})
	go func() {
		defer close(notifyDone)
		if err := dispatcher.Run(notifyCtx); err != nil {
			log.Error("notification dispatcher stopped", sl.Err(err))
		}
	}()

	if err := sweeper.Start(); err != nil {
		log.Error("failed to start janitor", sl.Err(err))
		os.Exit(1)
	}

	if cfg.Env == envProd {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := httpapi.SetupRouter(httpapi.Controllers{
		Rooms: httpapi.NewRoomController(roomService, sessions, httpapi.UpgraderConfig{
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
			AllowOrigins:    cfg.HTTP.AllowOrigins,
		}, log),
		Users: httpapi.NewUserController(userService, roomService, notificationService),
		RTC:   httpapi.NewRTCController(cfg.WebRTC.STUNServers),
	}, userService, cfg.HTTP.AllowOrigins, log)

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: handler,
	}

	go func() {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.HTTP.ShutdownTimeout, map[string]gfshutdown.Operation{
		// steps depend on each other, so they run in order inside one operation
		"studyroom": func(ctx context.Context) error {
			var errs []error
			if err := srv.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http: %w", err))
			}
			if err := sessions.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("sessions: %w", err))
			}
			if err := sweeper.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("janitor: %w", err))
			}

			stopNotify()
			select {
			case <-notifyDone:
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("notify: %w", ctx.Err()))
			}

			closeDatabase(db, log)
			return errors.Join(errs...)
		},
	})

	exitCode := <-wait
	log.Info("application stopped", slog.Int("exit_code", exitCode))
	os.Exit(exitCode)
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case driverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case driverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

func closeDatabase(db *gorm.DB, log *slog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error("failed to close database", sl.Err(err))
	}
}
