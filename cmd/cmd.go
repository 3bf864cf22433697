package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"daily-album-backend/internal/config"
	"daily-album-backend/internal/handlers"
	"daily-album-backend/internal/middleware"
	"daily-album-backend/internal/push"
	"daily-album-backend/internal/repository"
	"daily-album-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Run migrations, then connect the pool
	if err := repository.RunMigrations(context.Background(), cfg.Database.DSN()); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	loc, err := cfg.Schedule.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve schedule timezone")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	uploadRepo := repository.NewUploadRepository(db)
	dailyRepo := repository.NewDailyPostRepository(db)
	tokenRepo := repository.NewTokenRepository(db)

	// Initialize push senders. Either provider may be left unconfigured.
	var fcmSender, apnsSender push.Sender
	if cfg.Push.FirebaseCredentialsFile != "" {
		s, err := push.NewFCMSender(context.Background(), cfg.Push.FirebaseCredentialsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create FCM sender")
		}
		fcmSender = s
	} else {
		log.Warn().Msg("FCM credentials not configured, FCM pushes disabled")
	}
	if cfg.Push.APNs.CertFile != "" {
		s, err := push.NewAPNsSender(cfg.Push.APNs.CertFile, cfg.Push.APNs.CertPass, cfg.Push.APNs.Topic, cfg.Push.APNs.Prod)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs sender")
		}
		apnsSender = s
	}

	// Initialize services
	sessions := services.NewSessionTracker(cfg.Auth.InactivityTimeout)
	userService := services.NewUserService(userRepo, tokenRepo, convRepo, sessions, cfg.JWT.Secret, cfg.Auth.AllowedEmails)
	convService := services.NewConversationService(convRepo, userRepo)
	photoService, err := services.NewPhotoService(uploadRepo, dailyRepo, convRepo, services.S3Config{
		Region:    cfg.AWS.Region,
		Bucket:    cfg.AWS.S3Bucket,
		AccessKey: cfg.AWS.AccessKey,
		SecretKey: cfg.AWS.SecretKey,
		Endpoint:  cfg.AWS.Endpoint,
		PublicURL: cfg.AWS.PublicURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create photo service")
	}
	notifyService := services.NewNotifyService(tokenRepo, fcmSender, apnsSender)
	wsHub := services.NewWSHub()

	// Start the scheduled fan-outs
	schedCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	scheduler := services.NewScheduler(notifyService, dailyRepo, loc, cfg.Schedule.ReminderHour, cfg.Schedule.ReminderInterval)
	scheduler.Start(schedCtx)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	convHandler := handlers.NewConversationHandler(convService, notifyService, wsHub)
	photoHandler := handlers.NewPhotoHandler(photoService, convService, userService, notifyService, wsHub, loc)
	adminHandler := handlers.NewAdminHandler(photoService, notifyService, scheduler)
	wsHandler := handlers.NewWebSocketHandler(wsHub, userService, convService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/register", userHandler.Register)
		r.Post("/auth/login", userHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(userService))

			r.Post("/auth/logout", userHandler.Logout)

			r.Get("/users/me", userHandler.Me)
			r.Put("/users/me", userHandler.UpdateProfile)
			r.Delete("/users/me", userHandler.DeleteAccount)
			r.Get("/users/search", userHandler.SearchUsers)
			r.Post("/users/me/push-token", userHandler.RegisterPushToken)
			r.Delete("/users/me/push-token", userHandler.UnregisterPushToken)

			r.Post("/conversations", convHandler.Create)
			r.Get("/conversations", convHandler.List)
			r.Get("/conversations/{conversationId}", convHandler.Get)
			r.Delete("/conversations/{conversationId}", convHandler.Delete)

			r.Get("/conversations/{conversationId}/days/{dateId}", photoHandler.GetDay)
			r.Post("/conversations/{conversationId}/days/{dateId}/upload", photoHandler.Upload)
			r.Put("/conversations/{conversationId}/days/{dateId}/upload", photoHandler.Edit)
			r.Delete("/conversations/{conversationId}/days/{dateId}/upload", photoHandler.Delete)
			r.Get("/conversations/{conversationId}/memories", photoHandler.Memories)

			// Conversation-less aliases for clients with a single pair.
			r.Get("/days/{dateId}", photoHandler.GetDay)
			r.Post("/days/{dateId}/upload", photoHandler.Upload)
			r.Put("/days/{dateId}/upload", photoHandler.Edit)
			r.Delete("/days/{dateId}/upload", photoHandler.Delete)
			r.Get("/memories", photoHandler.Memories)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminMiddleware(cfg.Admin.Token))
			r.Post("/admin/daily-posts", adminHandler.UpsertDailyPost)
			r.Post("/admin/push-test", adminHandler.PushTest)
			r.Post("/admin/fanout/{kind}", adminHandler.TriggerFanOut)
			r.Post("/admin/sweep-orphans", adminHandler.SweepOrphans)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	stopScheduler()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Admin-Token")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
