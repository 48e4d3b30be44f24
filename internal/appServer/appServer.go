package appServer

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ohana-reunion/backend/config"
	repository "github.com/ohana-reunion/backend/internal/database/postgres"
	"github.com/ohana-reunion/backend/internal/service"
	"github.com/ohana-reunion/backend/internal/transport"
	"github.com/ohana-reunion/backend/pkg/mailer"
	"github.com/ohana-reunion/backend/pkg/payment"
	"github.com/ohana-reunion/backend/pkg/postgres"
	"github.com/ohana-reunion/backend/pkg/redis"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewServer(cfg *config.Config) {

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)

	// Secrets come from the environment when set; the yaml values are
	// development fallbacks.
	cfg.Database.Password = config.GetEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Payment.SecretKey = config.GetEnv("PAYMENT_SECRET_KEY", cfg.Payment.SecretKey)
	cfg.Payment.WebhookSecret = config.GetEnv("PAYMENT_WEBHOOK_SECRET", cfg.Payment.WebhookSecret)
	cfg.Admin.Token = config.GetEnv("ADMIN_TOKEN", cfg.Admin.Token)

	// Initialize database
	db, err := postgres.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run database migrations
	if err := postgres.RunMigrations(db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	tierRepo := repository.NewTierRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	// Redis backs the submission rate limiter. Not having it is survivable;
	// the limiter fails open.
	redisClient := redis.NewRedisClient(&cfg.Redis)
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logrus.Warnf("Redis unavailable, rate limiting disabled: %v", err)
	}

	// Payment provider client
	provider := payment.NewClient(payment.Config{
		APIBase:       cfg.Payment.APIBase,
		SecretKey:     cfg.Payment.SecretKey,
		WebhookSecret: cfg.Payment.WebhookSecret,
		SuccessURL:    cfg.Payment.SuccessURL,
		CancelURL:     cfg.Payment.CancelURL,
		Currency:      cfg.Payment.CurrencyCode,
		Tolerance:     cfg.Payment.WebhookTolerance,
	})
	if provider.Enabled() {
		logrus.Info("Hosted checkout provider configured")
	} else {
		logrus.Warn("Checkout provider not configured, card orders will use manual confirmation")
	}

	mail := mailer.NewMailer(cfg.Mail)

	// Initialize services
	checkoutService := service.NewCheckoutService(tierRepo, orderRepo, provider, mail, cfg)
	finalizeService := service.NewFinalizeService(tierRepo, orderRepo, provider, mail)
	adminService := service.NewAdminService(tierRepo, orderRepo)

	// Initialize handlers
	registrationHandler := transport.NewRegistrationHandler(checkoutService)
	paymentHandler := transport.NewPaymentHandler(finalizeService, provider, cfg.Payment.ConfirmationURL)
	adminHandler := transport.NewAdminHandler(adminService, finalizeService)

	// Setup HTTP server
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := new(Server)
	go func() {
		router := transport.InitRoutes(cfg, redisClient, registrationHandler, paymentHandler, adminHandler)
		if err := srv.Run(cfg, router); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	if err := srv.Shutdown(context.Background()); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
}
