package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"liraexchange/internal/models"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Rates     RatesConfig
	Exchange  ExchangeConfig
	Processor ProcessorConfig
	Wallet    WalletConfig
	Chain     ChainConfig
	Market    MarketConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string

	AllowedOrigins     []string // CORS, кроме локальных dev-серверов
	RateLimitPerMinute int      // запросов с одного клиента, 0 - без ограничения
	RateLimitBurst     int
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	Name         string
	User         string
	Password     string
	SSLMode      string
	AutoMigrate  bool
	MaxOpenConns int
}

// SecurityConfig - ключ шифрования секретов кошельков
type SecurityConfig struct {
	EncryptionKey      string
	SecretBoxAlgorithm string // aesgcm, xchacha
}

// ReferencePair - опорная пара рынка: BASE→QUOTE и обратное направление
type ReferencePair struct {
	Base     models.Currency
	Quote    models.Currency
	Fallback decimal.Decimal // цена на случай недоступности рынка
}

// Symbol - символ спотового тикера, например USDTTRY
func (p ReferencePair) Symbol() string {
	return string(p.Base) + string(p.Quote)
}

// RatesConfig - обновление котировок
type RatesConfig struct {
	UpdateInterval time.Duration
	CacheTTL       time.Duration
	Markup         decimal.Decimal
	Pairs          []ReferencePair
}

// ExchangeConfig - параметры заявок
type ExchangeConfig struct {
	FeePercentage decimal.Decimal
}

// ProcessorConfig - обработчик платежей и его ограничитель
type ProcessorConfig struct {
	Enabled             bool
	Interval            time.Duration
	MaxConcurrentPasses int
	MinPassInterval     time.Duration
	ItemDelay           time.Duration
	ErrorThreshold      int
	Cooldown            time.Duration
	BatchSize           int
}

// WalletConfig - кастодиальные кошельки
type WalletConfig struct {
	BalanceRecheck time.Duration
}

// ChainConfig - доступ к сети TON
type ChainConfig struct {
	TonAPIURL string
	TonAPIKey string
	Testnet   bool
	Timeout   time.Duration
}

// MarketConfig - рыночные данные
type MarketConfig struct {
	BybitBaseURL   string
	Timeout        time.Duration
	BreakerErrors  int
	BreakerTimeout time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения.
// Если рядом лежит .env, его значения подхватываются, но не перекрывают уже заданные.
func Load() (*Config, error) {
	_ = godotenv.Load()

	pairs, err := parsePairs(getEnv("RATE_PAIRS", "USDT:TRY:31.5"))
	if err != nil {
		return nil, err
	}

	markup, err := getEnvAsDecimal("RATE_MARKUP_PERCENT", models.DefaultMarkupPercentage)
	if err != nil {
		return nil, err
	}
	fee, err := getEnvAsDecimal("EXCHANGE_FEE_PERCENT", decimal.RequireFromString("1.5"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),

			AllowedOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS"),
			RateLimitPerMinute: getEnvAsInt("API_RATE_LIMIT_PER_MINUTE", 120),
			RateLimitBurst:     getEnvAsInt("API_RATE_LIMIT_BURST", 20),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			Name:         getEnv("DB_NAME", "liraexchange"),
			User:         getEnv("DB_USER", "user"),
			Password:     getEnv("DB_PASSWORD", "password"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			AutoMigrate:  getEnvAsBool("DB_AUTO_MIGRATE", true),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		},
		Security: SecurityConfig{
			EncryptionKey:      getEnv("ENCRYPTION_KEY", ""),
			SecretBoxAlgorithm: getEnv("SECRET_BOX_ALGORITHM", "aesgcm"),
		},
		Rates: RatesConfig{
			UpdateInterval: getEnvAsMillis("RATE_UPDATE_INTERVAL", 5*time.Minute),
			CacheTTL:       getEnvAsDuration("RATE_CACHE_TTL", 5*time.Minute),
			Markup:         markup,
			Pairs:          pairs,
		},
		Exchange: ExchangeConfig{
			FeePercentage: fee,
		},
		Processor: ProcessorConfig{
			Enabled:             getEnvAsBool("PROCESSOR_ENABLED", true),
			Interval:            getEnvAsMillis("PAYMENT_CHECK_INTERVAL", time.Minute),
			MaxConcurrentPasses: getEnvAsInt("PROCESSOR_MAX_CONCURRENT_PASSES", 1),
			MinPassInterval:     getEnvAsDuration("PROCESSOR_MIN_PASS_INTERVAL", 10*time.Second),
			ItemDelay:           getEnvAsDuration("PROCESSOR_ITEM_DELAY", time.Second),
			ErrorThreshold:      getEnvAsInt("PROCESSOR_ERROR_THRESHOLD", 5),
			Cooldown:            getEnvAsDuration("PROCESSOR_COOLDOWN", 5*time.Minute),
			BatchSize:           getEnvAsInt("PROCESSOR_BATCH_SIZE", 100),
		},
		Wallet: WalletConfig{
			BalanceRecheck: getEnvAsDuration("WALLET_BALANCE_RECHECK", 30*time.Second),
		},
		Chain: ChainConfig{
			TonAPIURL: getEnv("TON_API_URL", "https://toncenter.com/api/v2"),
			TonAPIKey: getEnv("TON_API_KEY", ""),
			Testnet:   getEnvAsBool("TON_TESTNET", false),
			Timeout:   getEnvAsDuration("TON_API_TIMEOUT", 15*time.Second),
		},
		Market: MarketConfig{
			BybitBaseURL:   getEnv("BYBIT_BASE_URL", "https://api.bybit.com"),
			Timeout:        getEnvAsDuration("MARKET_API_TIMEOUT", 10*time.Second),
			BreakerErrors:  getEnvAsInt("MARKET_BREAKER_ERRORS", 3),
			BreakerTimeout: getEnvAsDuration("MARKET_BREAKER_TIMEOUT", time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования секретов кошельков
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting wallet secrets")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes")
	}

	switch c.Security.SecretBoxAlgorithm {
	case "aesgcm", "xchacha":
	default:
		return fmt.Errorf("SECRET_BOX_ALGORITHM must be aesgcm or xchacha, got %q", c.Security.SecretBoxAlgorithm)
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.RateLimitPerMinute < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("API rate limits cannot be negative")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Rates.UpdateInterval < time.Second {
		return fmt.Errorf("RATE_UPDATE_INTERVAL must be at least 1s, got %v", c.Rates.UpdateInterval)
	}

	if c.Rates.Markup.IsNegative() || c.Rates.Markup.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("RATE_MARKUP_PERCENT must be between 0 and 100, got %s", c.Rates.Markup)
	}

	if c.Exchange.FeePercentage.IsNegative() || c.Exchange.FeePercentage.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("EXCHANGE_FEE_PERCENT must be between 0 and 100, got %s", c.Exchange.FeePercentage)
	}

	if c.Processor.Interval < time.Second {
		return fmt.Errorf("PAYMENT_CHECK_INTERVAL must be at least 1s, got %v", c.Processor.Interval)
	}

	if c.Processor.MaxConcurrentPasses < 1 || c.Processor.MaxConcurrentPasses > 5 {
		return fmt.Errorf("PROCESSOR_MAX_CONCURRENT_PASSES must be between 1 and 5, got %d", c.Processor.MaxConcurrentPasses)
	}

	if c.Processor.ErrorThreshold < 1 {
		return fmt.Errorf("PROCESSOR_ERROR_THRESHOLD must be positive, got %d", c.Processor.ErrorThreshold)
	}

	if c.Processor.Cooldown <= 0 {
		return fmt.Errorf("PROCESSOR_COOLDOWN must be positive, got %v", c.Processor.Cooldown)
	}

	if c.Processor.ItemDelay < 0 || c.Processor.MinPassInterval < 0 {
		return fmt.Errorf("processor pacing delays cannot be negative")
	}

	if c.Wallet.BalanceRecheck < 0 {
		return fmt.Errorf("WALLET_BALANCE_RECHECK cannot be negative, got %v", c.Wallet.BalanceRecheck)
	}

	return nil
}

// parsePairs разбирает "USDT:TRY:31.5,TON:USDT:5.4"
func parsePairs(raw string) ([]ReferencePair, error) {
	var pairs []ReferencePair
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("RATE_PAIRS entry %q must look like BASE:QUOTE:FALLBACK", item)
		}

		base, ok := models.ParseCurrency(parts[0])
		if !ok {
			return nil, fmt.Errorf("RATE_PAIRS: unsupported currency %q", parts[0])
		}
		quote, ok := models.ParseCurrency(parts[1])
		if !ok {
			return nil, fmt.Errorf("RATE_PAIRS: unsupported currency %q", parts[1])
		}
		if base == quote {
			return nil, fmt.Errorf("RATE_PAIRS: %q pairs a currency with itself", item)
		}

		fallback, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
		if err != nil || !fallback.IsPositive() {
			return nil, fmt.Errorf("RATE_PAIRS: fallback price in %q must be a positive number", item)
		}

		pairs = append(pairs, ReferencePair{Base: base, Quote: quote, Fallback: fallback})
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("RATE_PAIRS must contain at least one pair")
	}
	return pairs, nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsMillis принимает и "300000" (мс), и "5m"
func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if ms, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return getEnvAsDuration(key, defaultValue)
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal number, got %q", key, valueStr)
	}
	return value, nil
}

// getEnvAsList разбирает значения через запятую, пустые элементы пропускаются
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
