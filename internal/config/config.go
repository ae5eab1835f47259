package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config содержит все конфигурационные параметры приложения
type Config struct {
	Database DatabaseConfig
	Email    EmailConfig
	AI       AIConfig
	Telegram TelegramConfig
	Reminder ReminderConfig
	App      AppConfig
}

// DatabaseConfig содержит настройки базы данных
type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MigrationPath string
}

// EmailConfig содержит настройки почтового провайдера
type EmailConfig struct {
	APIKey         string
	BaseURL        string
	From           string
	SupportAddress string // Адрес поддержки, копия на него ставится в эскалациях
	TestMode       bool
}

// AIConfig содержит настройки AI провайдеров
type AIConfig struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	DeepSeek    DeepSeekConfig
	OpenRouter  OpenRouterConfig
}

type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
}

type OpenRouterConfig struct {
	APIKey   string
	SiteURL  string
	SiteName string
}

// TelegramConfig содержит настройки операторских уведомлений в Telegram
type TelegramConfig struct {
	BotToken    string
	AdminChatID int64
}

// ReminderConfig задает окна напоминаний относительно момента оплаты
type ReminderConfig struct {
	Tier1Start time.Duration
	Tier1End   time.Duration
	Tier2Start time.Duration
	Tier2End   time.Duration
}

type AppConfig struct {
	Env      string
	LogLevel string
	Port     int
}

// Load загружает конфигурацию из переменных окружения и .env
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Database
	cfg.Database.Host = getEnvDefault("DB_HOST", "localhost")
	cfg.Database.Port = getEnvIntDefault("DB_PORT", 5432)
	cfg.Database.User = os.Getenv("DB_USER")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Name = os.Getenv("DB_NAME")
	cfg.Database.SSLMode = getEnvDefault("DB_SSL_MODE", "disable")
	cfg.Database.MigrationPath = getEnvDefault("MIGRATION_PATH", "scripts/migrations")

	// Email
	cfg.Email.APIKey = os.Getenv("EMAIL_API_KEY")
	cfg.Email.BaseURL = getEnvDefault("EMAIL_BASE_URL", "https://api.resend.com")
	cfg.Email.From = getEnvDefault("EMAIL_FROM", "onboarding@crm-core.app")
	cfg.Email.SupportAddress = getEnvDefault("EMAIL_SUPPORT_ADDRESS", "support@crm-core.app")
	cfg.Email.TestMode = getEnvBoolDefault("EMAIL_TEST_MODE", true)

	// AI
	cfg.AI.Provider = getEnvDefault("AI_PROVIDER", "deepseek")
	cfg.AI.Model = getEnvDefault("AI_MODEL", "deepseek-chat")
	cfg.AI.MaxTokens = getEnvIntDefault("AI_MAX_TOKENS", 1000)
	cfg.AI.Temperature = getEnvFloatDefault("AI_TEMPERATURE", 0.2)
	cfg.AI.DeepSeek.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	cfg.AI.DeepSeek.BaseURL = getEnvDefault("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1")
	cfg.AI.OpenRouter.APIKey = os.Getenv("OPENROUTER_API_KEY")
	cfg.AI.OpenRouter.SiteURL = getEnvDefault("OPENROUTER_SITE_URL", "https://crm-core.app")
	cfg.AI.OpenRouter.SiteName = getEnvDefault("OPENROUTER_SITE_NAME", "CRM Core")

	// Telegram (необязательно: операторские алерты)
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.AdminChatID = getEnvInt64Default("TELEGRAM_ADMIN_CHAT_ID", 0)

	// Reminder
	cfg.Reminder.Tier1Start = getEnvDurationDefault("REMINDER_TIER1_START", 23*time.Hour)
	cfg.Reminder.Tier1End = getEnvDurationDefault("REMINDER_TIER1_END", 25*time.Hour)
	cfg.Reminder.Tier2Start = getEnvDurationDefault("REMINDER_TIER2_START", 47*time.Hour)
	cfg.Reminder.Tier2End = getEnvDurationDefault("REMINDER_TIER2_END", 49*time.Hour)

	// App
	cfg.App.Env = getEnvDefault("APP_ENV", "development")
	cfg.App.LogLevel = getEnvDefault("LOG_LEVEL", "info")
	cfg.App.Port = getEnvIntDefault("APP_PORT", 8080)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("ошибка валидации конфигурации: %w", err)
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvInt64Default(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// validateConfig проверяет корректность конфигурации
func validateConfig(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("DB_HOST не установлен")
	}
	if config.Database.User == "" {
		return fmt.Errorf("DB_USER не установлен")
	}
	if config.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD не установлен")
	}
	if config.Database.Name == "" {
		return fmt.Errorf("DB_NAME не установлен")
	}
	if !config.Email.TestMode && config.Email.APIKey == "" {
		return fmt.Errorf("EMAIL_API_KEY не установлен")
	}
	if config.AI.Provider == "deepseek" && config.AI.DeepSeek.APIKey == "" {
		return fmt.Errorf("DEEPSEEK_API_KEY не установлен")
	}
	if config.AI.Provider == "openrouter" && config.AI.OpenRouter.APIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY не установлен")
	}
	if config.AI.Provider != "deepseek" && config.AI.Provider != "openrouter" {
		return fmt.Errorf("поддерживаются только AI_PROVIDER: deepseek, openrouter")
	}
	if config.Reminder.Tier1Start >= config.Reminder.Tier1End {
		return fmt.Errorf("REMINDER_TIER1_START должен быть меньше REMINDER_TIER1_END")
	}
	if config.Reminder.Tier2Start >= config.Reminder.Tier2End {
		return fmt.Errorf("REMINDER_TIER2_START должен быть меньше REMINDER_TIER2_END")
	}
	if config.Reminder.Tier1End > config.Reminder.Tier2Start {
		return fmt.Errorf("окно эскалации должно начинаться после первого окна напоминаний")
	}

	return nil
}

// GetDSN возвращает строку подключения к базе данных
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшн режиме
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// Enabled сообщает, настроены ли операторские уведомления в Telegram
func (c *TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.AdminChatID != 0
}

// GetLogLevel возвращает уровень логирования в формате zap
func (c *AppConfig) GetLogLevel() zap.AtomicLevel {
	switch c.LogLevel {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}
