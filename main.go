package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Eursukkul/booking-microservice/rental-service/config"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/cache"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/consumer"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/handler"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/identity"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/middleware"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/notify"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/payment"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/repository"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/service"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/telemetry"
	"github.com/Eursukkul/booking-microservice/rental-service/pkg/database"
	"github.com/Eursukkul/booking-microservice/rental-service/pkg/rabbitmq"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.OTelServiceName)
	if err != nil {
		log.Printf("[Telemetry] tracing disabled: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	db := database.NewPostgresDB(cfg.DSN())

	// Repositories
	listingRepo := repository.NewListingRepository(db)
	bookingRepo := repository.NewBookingRepository(db)

	// RabbitMQ: listing replica in, notifications out
	var notifier notify.Dispatcher = notify.LogDispatcher{}
	if cfg.RabbitURL != "" {
		mqConsumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, rabbitmq.ListingsExchange, rabbitmq.ListingsQueue, rabbitmq.ListingsBinding)
		if err != nil {
			log.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer mqConsumer.Close()

		msgs, err := mqConsumer.Consume()
		if err != nil {
			log.Fatalf("failed to start consuming: %v", err)
		}
		consumer.NewListingConsumer(listingRepo).Start(msgs)

		publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL, rabbitmq.NotificationsExchange)
		if err != nil {
			log.Fatalf("failed to open notification publisher: %v", err)
		}
		defer publisher.Close()
		notifier = notify.NewAMQPDispatcher(publisher)
	} else {
		log.Println("[RabbitMQ] RABBITMQ_URL not set, listing sync disabled and notifications logged")
	}

	// Redis availability cache
	var availability *cache.AvailabilityCache
	if cfg.RedisURL != "" {
		client, err := cache.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to configure Redis: %v", err)
		}
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[AvailabilityCache] Redis unreachable, reads will fall through: %v", err)
		}
		availability = cache.NewAvailabilityCache(client, cfg.AvailabilityCacheTTL)
	}

	// Services
	bookingSvc := service.NewBookingService(bookingRepo, listingRepo, availability, notifier)
	paymentSvc := service.NewPaymentService(
		bookingRepo,
		listingRepo,
		payment.NewClient(cfg.PaymentBaseURL, cfg.PaymentSecretKey, cfg.PaymentTimeout),
		notifier,
		service.PaymentSettings{
			Currency:       cfg.PaymentCurrency,
			FrontendAppURL: cfg.FrontendAppURL,
			PublicBaseURL:  cfg.PublicBaseURL,
		},
	)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Validator = middleware.NewValidator()
	e.Use(echoMw.RequestIDWithConfig(echoMw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echoMw.RequestLoggerWithConfig(echoMw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echoMw.RequestLoggerValues) error {
			log.Printf("%s %s %d %s", v.Method, v.URI, v.Status, v.RequestID)
			return nil
		},
	}))
	e.Use(echoMw.Recover())
	e.Use(middleware.Authenticate(identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "rental-service"})
	})

	handler.NewBookingHandler(bookingSvc, notifier).RegisterRoutes(e)
	handler.NewListingHandler(bookingSvc).RegisterRoutes(e)
	handler.NewPaymentHandler(paymentSvc).RegisterRoutes(e)

	go func() {
		log.Printf("Rental Service starting on :%s", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Rental Service shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
