package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-core/internal/ai"
	"crm-core/internal/api"
	"crm-core/internal/commission"
	"crm-core/internal/config"
	"crm-core/internal/customer"
	"crm-core/internal/mailer"
	"crm-core/internal/metrics"
	"crm-core/internal/migrations"
	"crm-core/internal/notify"
	"crm-core/internal/orchestrator"
	"crm-core/internal/remediation"
	"crm-core/internal/reminder"
	"crm-core/internal/scheduler"
	"crm-core/internal/store"

	"go.uber.org/zap"
)

func main() {
	// Загрузка конфигурации: логгер строится по ней
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("запуск приложения CRM Core",
		zap.String("env", cfg.App.Env),
		zap.String("log_level", cfg.App.LogLevel))

	// Инициализация базы данных
	store, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("ошибка инициализации базы данных", zap.Error(err))
	}
	defer store.Close()

	// Применение миграций
	if err := migrations.RunMigrations(cfg, logger); err != nil {
		logger.Fatal("ошибка применения миграций", zap.Error(err))
	}

	// Инициализация почтового клиента
	mailClient := mailer.NewResendClient(cfg.Email.APIKey, cfg.Email.BaseURL, cfg.Email.TestMode, logger)
	logger.Info("почтовый клиент инициализирован",
		zap.String("from", cfg.Email.From),
		zap.Bool("test_mode", cfg.Email.TestMode))

	// Инициализация AI клиента
	logger.Info("конфигурация AI",
		zap.String("provider", cfg.AI.Provider),
		zap.String("model", cfg.AI.Model))

	aiClient, err := ai.NewAIClient(&ai.AIConfig{
		Provider:    cfg.AI.Provider,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
		DeepSeek: ai.DeepSeekConfig{
			APIKey:  cfg.AI.DeepSeek.APIKey,
			BaseURL: cfg.AI.DeepSeek.BaseURL,
		},
		OpenRouter: ai.OpenRouterConfig{
			APIKey:   cfg.AI.OpenRouter.APIKey,
			SiteURL:  cfg.AI.OpenRouter.SiteURL,
			SiteName: cfg.AI.OpenRouter.SiteName,
		},
	}, logger)
	if err != nil {
		logger.Fatal("ошибка создания AI клиента", zap.Error(err))
	}

	// Уведомитель дежурного: необязательный, без него деградация
	// прогонов видна только в логах
	var operatorNotifier reminder.OperatorNotifier
	if cfg.Telegram.Enabled() {
		tgNotifier, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID, logger)
		if err != nil {
			logger.Warn("Telegram уведомитель недоступен, продолжаем без него", zap.Error(err))
		} else {
			operatorNotifier = tgNotifier
		}
	} else {
		logger.Info("Telegram уведомитель не настроен")
	}

	// Инициализация метрик: сервисы пишут в них на рабочих путях
	metricsSystem := metrics.New(logger)
	metricsHandler := metrics.NewHandler(metricsSystem, logger)

	// Окна напоминаний берутся из конфигурации
	reminderWindows := reminder.Windows{
		Tier1Start: cfg.Reminder.Tier1Start,
		Tier1End:   cfg.Reminder.Tier1End,
		Tier2Start: cfg.Reminder.Tier2Start,
		Tier2End:   cfg.Reminder.Tier2End,
	}

	// Инициализация сервисов
	commissionService := commission.NewService(
		store.Customer(), store.Affiliate(), store.Commission(),
		commission.DefaultRateTable(), metricsSystem, logger)
	customerService := customer.NewService(
		store.Customer(), store.Affiliate(), store.Plan(), store.Commission(), logger)
	remediationService := remediation.NewService(store.Suggestion(), metricsSystem, logger)
	reminderJob := reminder.NewJob(
		store.Customer(), store.Affiliate(), mailClient, operatorNotifier,
		reminderWindows, cfg.Email.From, cfg.Email.SupportAddress, metricsSystem, logger)
	testOrchestrator := orchestrator.NewOrchestrator(
		aiClient, customerService, commissionService, store.Plan(), metricsSystem, logger)

	// Инициализация HTTP обработчика ядра
	apiHandler := api.NewHandler(commissionService, reminderJob, remediationService, testOrchestrator, logger)

	// Инициализация планировщика задач
	taskScheduler := scheduler.NewScheduler(logger)
	taskScheduler.AddJob(reminderJob)

	// Создание канала для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Обработка сигналов для graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Запуск HTTP сервера
	go startHTTPServer(ctx, cfg.App.Port, apiHandler, metricsHandler, logger)

	// Запуск планировщика задач: часовой интервал при двухчасовых
	// окнах гарантирует, что каждый клиент попадет хотя бы в один прогон
	go taskScheduler.Start(ctx, time.Hour)

	logger.Info("приложение запущено и готово к работе",
		zap.String("address", fmt.Sprintf("http://localhost:%d", cfg.App.Port)),
	)

	// Ожидание сигнала завершения
	<-sigChan
	logger.Info("получен сигнал завершения, начинаем graceful shutdown")
	cancel()

	logger.Info("приложение завершено")
}

// initLogger инициализирует логгер по настройкам приложения:
// в продакшене JSON формат, уровень берется из LOG_LEVEL
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	logConfig := zap.NewDevelopmentConfig()
	if cfg.App.IsProduction() {
		logConfig = zap.NewProductionConfig()
	}
	logConfig.Level = cfg.App.GetLogLevel()
	logConfig.OutputPaths = []string{"stdout", "logs/app.log"}
	logConfig.ErrorOutputPaths = []string{"stderr", "logs/error.log"}

	// Создаем директорию для логов если её нет
	if err := os.MkdirAll("logs", 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории логов: %w", err)
	}

	return logConfig.Build()
}

// startHTTPServer запускает HTTP сервер ядра: API, метрики, health
func startHTTPServer(ctx context.Context, port int, apiHandler *api.Handler, metricsHandler *metrics.Handler, logger *zap.Logger) {
	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)
	mux.Handle("/metrics", metricsHandler.MetricsHandler())
	mux.HandleFunc("/health", metricsHandler.HealthHandler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	logger.Info("HTTP сервер запущен", zap.String("address", server.Addr))

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ошибка HTTP сервера", zap.Error(err))
		}
	}()

	// Ожидание сигнала завершения
	<-ctx.Done()

	// Graceful shutdown HTTP сервера
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка при остановке HTTP сервера", zap.Error(err))
	}

	logger.Info("HTTP сервер остановлен")
}
