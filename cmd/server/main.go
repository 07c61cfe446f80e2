package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/broker"
	"github.com/ignatzorin/marketplace-backend/internal/cache"
	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/db"
	"github.com/ignatzorin/marketplace-backend/internal/gateway"
	httpHandlers "github.com/ignatzorin/marketplace-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/marketplace-backend/internal/http/router"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/service"
	"github.com/ignatzorin/marketplace-backend/internal/stock"
	"github.com/ignatzorin/marketplace-backend/internal/storage"
	"github.com/ignatzorin/marketplace-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Инициализируем вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	attachmentStorage, err := storage.NewAttachmentStorage(cfg.AttachmentStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	// Необязательная инфраструктура: кэш статусов и брокер событий
	// отключаются пустой конфигурацией, сервисы работают с nil.
	statusCache, err := cache.NewStatusCache(cfg.RedisAddr, cfg.RedisPassword, cfg.TransactionTTL)
	if err != nil {
		log.Fatalf("main: не удалось подключиться к redis: %v", err)
	}
	defer statusCache.Close()

	publisher := broker.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Log.Errorf("main: ошибка закрытия kafka producer: %v", err)
		}
	}()

	// Внешние шлюзы.
	paymentGW := gateway.NewPaymentClient(cfg.PaymentBaseURL, cfg.PaymentTimeout)
	deliveryGW := gateway.NewDeliveryClient(cfg.DeliveryBaseURL, cfg.PaymentTimeout)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	productRepo := repository.NewProductRepository(dbConn)
	transactionRepo := repository.NewTransactionRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	reportRepo := repository.NewReportRepository(dbConn)

	ledger := stock.NewLedger(productRepo)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run()

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	transactionService := service.NewTransactionService(
		transactionRepo, paymentRepo, productRepo, ledger,
		paymentGW, deliveryGW, publisher, statusCache,
		cfg.PaymentTimeout, cfg.TransactionTTL,
	)
	reconciliationService := service.NewReconciliationService(transactionRepo, productRepo)
	disputeService := service.NewDisputeService(disputeRepo, hub)
	reportService := service.NewReportService(reportRepo, disputeRepo, userRepo, hub)
	seedService := service.NewSeedService(userRepo, productRepo)

	// Свипер добивает Pending транзакции, пережившие TTL.
	sweeper := service.NewSweeper(transactionService, cfg.SweepInterval)
	go sweeper.Run(ctx)

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	transactionHandler := httpHandlers.NewTransactionHandler(transactionService, reconciliationService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	reportHandler := httpHandlers.NewReportHandler(reportService, attachmentStorage)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)
	seedHandler := httpHandlers.NewSeedHandler(seedService)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, authHandler, transactionHandler, disputeHandler, reportHandler, wsHandler, healthHandler, seedHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
