package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"discount-system/internal/apperror"
	"discount-system/internal/config"
	"discount-system/internal/database"
	"discount-system/internal/logger"
	"discount-system/internal/models"
	"discount-system/internal/redis"

	"github.com/google/uuid"
)

// ChannelDirectory разрешает идентификаторы каналов в каналы с валютами,
// используя кеш Redis поверх базы данных.
type ChannelDirectory struct {
	db    *database.DB
	redis *redis.Client
	log   *logger.Logger
	ttl   time.Duration
}

// NewChannelDirectory создаёт справочник каналов.
func NewChannelDirectory(db *database.DB, redisClient *redis.Client, log *logger.Logger, cfg *config.PromotionConfig) *ChannelDirectory {
	ttl := time.Duration(cfg.ChannelCacheTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ChannelDirectory{
		db:    db,
		redis: redisClient,
		log:   log,
		ttl:   ttl,
	}
}

// ResolveChannels возвращает каналы по списку идентификаторов, сохраняя
// порядок. Неизвестный идентификатор — ошибка not_found.
func (d *ChannelDirectory) ResolveChannels(ctx context.Context, ids []uuid.UUID) ([]models.Channel, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	channels := make([]models.Channel, 0, len(ids))
	for _, id := range ids {
		channel, err := d.resolveChannel(ctx, id)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *channel)
	}
	return channels, nil
}

func (d *ChannelDirectory) resolveChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	key := redis.GenerateKey(redis.KeyPrefixChannel, id.String())

	// Пробуем из кеша
	var cached models.Channel
	if d.redis != nil {
		if err := d.redis.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	query := `
		SELECT id, slug, name, currency_code
		FROM channels
		WHERE id = $1
	`
	channel := &models.Channel{}
	err := d.db.QueryRowContext(ctx, query, id).Scan(&channel.ID, &channel.Slug, &channel.Name, &channel.CurrencyCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound(fmt.Sprintf("channel %s not found", id), err)
		}
		return nil, fmt.Errorf("failed to get channel %s: %w", id, err)
	}

	// Пишем в кеш (best effort)
	if d.redis != nil {
		if err := d.redis.Set(ctx, key, channel, d.ttl); err != nil {
			d.log.WithError(err).WithField("channel_id", id).Warn("Failed to cache channel")
		}
	}

	return channel, nil
}
