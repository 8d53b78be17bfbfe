package config

import (
	"os"
	"strconv"
	"strings"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Kafka     KafkaConfig     `json:"kafka"`
	Logger    LoggerConfig    `json:"logger"`
	Promotion PromotionConfig `json:"promotion"`
	Tax       TaxConfig       `json:"tax"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
}

// DatabaseConfig представляет конфигурацию базы данных
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig представляет конфигурацию Kafka
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Topics представляет список топиков Kafka
type Topics struct {
	Rules           string `json:"rules"`
	Recalculations  string `json:"recalculations"`
	Orders          string `json:"orders"`
}

// LoggerConfig представляет конфигурацию логгера
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// PromotionConfig хранит настройки валидации правил промоакций
type PromotionConfig struct {
	// Максимум правил с checkout/order предикатом на одну промоакцию.
	CheckoutAndOrderRulesLimit int `json:"checkout_and_order_rules_limit"`
	// TTL кеша справочника каналов в минутах.
	ChannelCacheTTLMinutes int `json:"channel_cache_ttl_minutes"`
}

// TaxConfig хранит настройки пересчёта налогов
type TaxConfig struct {
	// Цены заведены с налогом (gross) или без (net).
	PricesEnteredWithTax bool `json:"prices_entered_with_tax"`
	// YAML-файл стартовой загрузки таблицы ставок; пусто — загрузка отключена.
	RatesSeedFile string `json:"rates_seed_file"`
	// TTL кеша таблицы ставок в минутах.
	CacheTTLMinutes int `json:"cache_ttl_minutes"`
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 10),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "discount_user"),
			Password: getEnv("DB_PASSWORD", "discount_pass"),
			DBName:   getEnv("DB_NAME", "discount_system"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", "discount-system"),
			Topics: Topics{
				Rules:          getEnv("KAFKA_TOPIC_RULES", "promotion-rules"),
				Recalculations: getEnv("KAFKA_TOPIC_RECALCULATIONS", "recalculations"),
				Orders:         getEnv("KAFKA_TOPIC_ORDERS", "orders"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Promotion: PromotionConfig{
			CheckoutAndOrderRulesLimit: getEnvAsInt("PROMOTION_CHECKOUT_AND_ORDER_RULES_LIMIT", 100),
			ChannelCacheTTLMinutes:     getEnvAsInt("PROMOTION_CHANNEL_CACHE_TTL_MINUTES", 60),
		},
		Tax: TaxConfig{
			PricesEnteredWithTax: getEnvAsBool("TAX_PRICES_ENTERED_WITH_TAX", true),
			RatesSeedFile:        getEnv("TAX_RATES_SEED_FILE", ""),
			CacheTTLMinutes:      getEnvAsInt("TAX_CACHE_TTL_MINUTES", 15),
		},
	}
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool возвращает значение переменной окружения как bool
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
