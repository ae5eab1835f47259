package main

import (
	"context"
	"flag"
	"log"

	"crm-core/internal/config"
	"crm-core/internal/customer"
	"crm-core/internal/store"

	"go.uber.org/zap"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Показать что будет удалено без фактического удаления")
	flag.Parse()

	// Инициализация логгера
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Ошибка инициализации логгера:", err)
	}
	defer logger.Sync()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Подключение к базе данных
	store, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("Ошибка подключения к базе данных", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()

	if *dryRun {
		ids, err := store.Customer().ListTestIDs(ctx)
		if err != nil {
			logger.Fatal("Ошибка выборки тестовых клиентов", zap.Error(err))
		}
		logger.Info("DRY RUN: будут удалены тестовые клиенты",
			zap.Int("count", len(ids)),
			zap.Int64s("customer_ids", ids))
		return
	}

	customerService := customer.NewService(
		store.Customer(), store.Affiliate(), store.Plan(), store.Commission(), logger)

	result, err := customerService.ClearTestData(ctx)
	if err != nil {
		logger.Fatal("Ошибка очистки тестовых данных", zap.Error(err))
	}

	logger.Info("Очистка тестовых данных завершена успешно",
		zap.Int("customers_deleted", result.CustomersDeleted),
		zap.Int64("commissions_deleted", result.CommissionsDeleted))
}
