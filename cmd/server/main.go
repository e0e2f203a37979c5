package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pixvault/backend/internal/config"
	"github.com/pixvault/backend/internal/database"
	"github.com/pixvault/backend/internal/handlers"
	"github.com/pixvault/backend/internal/metrics"
	"github.com/pixvault/backend/internal/middleware"
	"github.com/pixvault/backend/internal/services"
	"github.com/pixvault/backend/internal/storage"
	"github.com/pixvault/backend/pkg/logger"
	"github.com/pixvault/backend/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logger.Init()

	cfg := config.Load()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	tokens := utils.NewTokenManager(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	sessions := services.NewSessionService(db, tokens)
	quota := services.NewQuotaService(db)

	stopCleanup := sessions.StartCleanup(5 * time.Minute)
	defer stopCleanup()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	cookies := middleware.NewCookieWriter(cfg.Cookie, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	authMiddleware := middleware.NewAuthMiddleware(sessions, cookies, collector)

	authHandler := handlers.NewAuthHandler(db, sessions, storageClient, cookies)
	filesHandler := handlers.NewFilesHandler(db, storageClient, quota, collector)

	app := fiber.New(fiber.Config{BodyLimit: 64 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS("http://localhost:5173,http://localhost:4173"))
	app.Use(middleware.RequestMetrics(collector))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(registry)))

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/logout", authMiddleware.RequireAuth, authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/update-profile", authMiddleware.RequireAuth, authHandler.UpdateProfile)
	authRoutes.Put("/change-password", authMiddleware.RequireAuth, authHandler.ChangePassword)
	authRoutes.Delete("/delete-account", authMiddleware.RequireAuth, authHandler.DeleteAccount)

	fileRoutes := api.Group("/files", authMiddleware.RequireAuth)
	fileRoutes.Post("/upload", filesHandler.Upload)
	fileRoutes.Get("/", filesHandler.List)
	fileRoutes.Post("/recalc-storage", filesHandler.RecalcStorage)
	fileRoutes.Delete("/bulk", filesHandler.BulkDelete)
	fileRoutes.Delete("/:id", filesHandler.Delete)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
