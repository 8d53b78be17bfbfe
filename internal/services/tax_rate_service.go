package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"discount-system/internal/config"
	"discount-system/internal/database"
	"discount-system/internal/logger"
	"discount-system/internal/models"
	"discount-system/internal/redis"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const taxRatesCacheKey = "table"

// TaxRateService предоставляет таблицу плоских налоговых ставок из базы
// данных с кешированием в Redis и стартовой загрузкой из YAML-файла.
type TaxRateService struct {
	db    *database.DB
	redis *redis.Client
	log   *logger.Logger
	ttl   time.Duration
}

// NewTaxRateService создаёт сервис налоговых ставок.
func NewTaxRateService(db *database.DB, redisClient *redis.Client, log *logger.Logger, cfg *config.TaxConfig) *TaxRateService {
	ttl := time.Duration(cfg.CacheTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TaxRateService{
		db:    db,
		redis: redisClient,
		log:   log,
		ttl:   ttl,
	}
}

// LoadTable возвращает таблицу ставок, используя кеш Redis.
func (s *TaxRateService) LoadTable(ctx context.Context) (*models.TaxRateTable, error) {
	key := redis.GenerateKey(redis.KeyPrefixTaxRates, taxRatesCacheKey)

	var cached models.TaxRateTable
	if s.redis != nil {
		if err := s.redis.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	query := `
		SELECT tax_class_id, country, rate
		FROM tax_class_country_rates
		ORDER BY country, tax_class_id NULLS FIRST
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tax rates: %w", err)
	}
	defer rows.Close()

	table := &models.TaxRateTable{}
	for rows.Next() {
		var r models.TaxClassCountryRate
		if err := rows.Scan(&r.TaxClassID, &r.Country, &r.Rate); err != nil {
			return nil, fmt.Errorf("failed to scan tax rate: %w", err)
		}
		table.Rates = append(table.Rates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tax rates: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, key, table, s.ttl); err != nil {
			s.log.WithError(err).Warn("Failed to cache tax rate table")
		}
	}

	return table, nil
}

// InvalidateCache сбрасывает кешированную таблицу ставок.
func (s *TaxRateService) InvalidateCache(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Delete(ctx, redis.GenerateKey(redis.KeyPrefixTaxRates, taxRatesCacheKey))
}

// seedRate — запись YAML-файла стартовой загрузки ставок.
type seedRate struct {
	Country  string `yaml:"country"`
	TaxClass string `yaml:"tax_class,omitempty"`
	Rate     string `yaml:"rate"`
}

type seedFile struct {
	Rates []seedRate `yaml:"rates"`
}

// ParseRatesSeedFile читает YAML-файл со ставками.
func ParseRatesSeedFile(path string) ([]models.TaxClassCountryRate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rates seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse rates seed file: %w", err)
	}

	rates := make([]models.TaxClassCountryRate, 0, len(seed.Rates))
	for i, entry := range seed.Rates {
		if entry.Country == "" {
			return nil, fmt.Errorf("rates seed entry %d: country is required", i)
		}
		rate, err := decimal.NewFromString(entry.Rate)
		if err != nil {
			return nil, fmt.Errorf("rates seed entry %d: invalid rate %q: %w", i, entry.Rate, err)
		}
		record := models.TaxClassCountryRate{Country: entry.Country, Rate: rate}
		if entry.TaxClass != "" {
			id, err := uuid.Parse(entry.TaxClass)
			if err != nil {
				return nil, fmt.Errorf("rates seed entry %d: invalid tax_class %q: %w", i, entry.TaxClass, err)
			}
			record.TaxClassID = &id
		}
		rates = append(rates, record)
	}
	return rates, nil
}

// SeedFromFile загружает ставки из YAML-файла в базу (upsert) и сбрасывает кеш.
func (s *TaxRateService) SeedFromFile(ctx context.Context, path string) error {
	rates, err := ParseRatesSeedFile(path)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO tax_class_country_rates (tax_class_id, country, rate)
		VALUES ($1, $2, $3)
		ON CONFLICT (tax_class_id, country) DO UPDATE SET rate = EXCLUDED.rate
	`
	for _, r := range rates {
		if _, err := tx.ExecContext(ctx, query, r.TaxClassID, r.Country, r.Rate); err != nil {
			return fmt.Errorf("failed to upsert tax rate for %s: %w", r.Country, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if err := s.InvalidateCache(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to invalidate tax rate cache after seeding")
	}

	s.log.WithField("rates", len(rates)).Info("Tax rate table seeded")
	return nil
}
