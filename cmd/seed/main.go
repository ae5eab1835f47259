package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"crm-core/internal/config"
	"crm-core/internal/store"
	"crm-core/pkg/models"

	"go.uber.org/zap"
)

// Заполняет базу демо-данными для локальной разработки: цепочка из трех
// партнеров и черновик предложения для генератора патчей. Партнеры и
// предложения в проде приходят из внешних систем, поэтому у сервиса нет
// своих ручек для их создания.
func main() {
	prefix := flag.String("prefix", "demo", "Префикс имен создаваемых партнеров")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Ошибка инициализации логгера:", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	store, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("Ошибка подключения к базе данных", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()

	// Цепочка root <- middle <- direct: хватает на все три уровня начислений
	var parentID *int64
	var affiliateIDs []int64
	for _, name := range []string{"root", "middle", "direct"} {
		affiliate := &models.Affiliate{
			Username: fmt.Sprintf("%s_%s", *prefix, name),
			Email:    fmt.Sprintf("%s_%s@partners.example", *prefix, name),
			ParentID: parentID,
		}
		if err := store.Affiliate().Create(ctx, affiliate); err != nil {
			logger.Fatal("Ошибка создания партнера",
				zap.String("username", affiliate.Username),
				zap.Error(err))
		}
		affiliateIDs = append(affiliateIDs, affiliate.ID)
		parentID = &affiliate.ID
	}

	suggestion := &models.RemediationSuggestion{
		VerticalID: "dental_clinic",
		Channel:    "whatsapp",
		IssueTags:  []string{"hallucinated_fact", "tone_mismatch"},
		SuggestedChange: map[string]string{
			"field":    "working_hours",
			"question": "Уточните часы работы клиники по будням и выходным",
		},
	}
	if err := store.Suggestion().Create(ctx, suggestion); err != nil {
		logger.Fatal("Ошибка создания предложения", zap.Error(err))
	}

	logger.Info("демо-данные созданы",
		zap.Int64s("affiliate_ids", affiliateIDs),
		zap.Int64("suggestion_id", suggestion.ID))
}
