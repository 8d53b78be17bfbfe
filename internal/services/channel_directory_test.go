package services

import (
	"context"
	"testing"

	"discount-system/internal/apperror"
	"discount-system/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestChannelDirectory_ResolveChannels(t *testing.T) {
	db, mock := newMockDB(t)
	usdID := uuid.New()
	eurID := uuid.New()

	mock.ExpectQuery("SELECT id, slug, name, currency_code").
		WithArgs(usdID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "currency_code"}).
			AddRow(usdID.String(), "us", "US Channel", "USD"))
	mock.ExpectQuery("SELECT id, slug, name, currency_code").
		WithArgs(eurID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "currency_code"}).
			AddRow(eurID.String(), "eu", "EU Channel", "EUR"))

	dir := NewChannelDirectory(db, nil, testLogger(), &config.PromotionConfig{ChannelCacheTTLMinutes: 60})
	channels, err := dir.ResolveChannels(context.Background(), []uuid.UUID{usdID, eurID})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if len(channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(channels))
	}
	// Порядок входных идентификаторов сохраняется.
	if channels[0].CurrencyCode != "USD" || channels[1].CurrencyCode != "EUR" {
		t.Fatalf("unexpected channel order: %+v", channels)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestChannelDirectory_ResolveChannels_Cached(t *testing.T) {
	db, mock := newMockDB(t)
	redisClient := newTestRedis(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, slug, name, currency_code").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "currency_code"}).
			AddRow(id.String(), "pl", "PL Channel", "PLN"))

	dir := NewChannelDirectory(db, redisClient, testLogger(), &config.PromotionConfig{ChannelCacheTTLMinutes: 60})
	ctx := context.Background()

	if _, err := dir.ResolveChannels(ctx, []uuid.UUID{id}); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}

	// Повторный запрос обслуживается из кеша.
	channels, err := dir.ResolveChannels(ctx, []uuid.UUID{id})
	if err != nil {
		t.Fatalf("cached resolve failed: %v", err)
	}
	if channels[0].CurrencyCode != "PLN" {
		t.Fatalf("unexpected cached channel: %+v", channels[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestChannelDirectory_UnknownChannel(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, slug, name, currency_code").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "currency_code"}))

	dir := NewChannelDirectory(db, nil, testLogger(), &config.PromotionConfig{ChannelCacheTTLMinutes: 60})
	_, err := dir.ResolveChannels(context.Background(), []uuid.UUID{id})
	if err == nil {
		t.Fatalf("expected error for unknown channel")
	}
	if !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not_found error, got %v", err)
	}
}

func TestChannelDirectory_EmptyInput(t *testing.T) {
	db, _ := newMockDB(t)
	dir := NewChannelDirectory(db, nil, testLogger(), &config.PromotionConfig{ChannelCacheTTLMinutes: 60})
	channels, err := dir.ResolveChannels(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if channels != nil {
		t.Fatalf("expected nil channels for empty input")
	}
}
