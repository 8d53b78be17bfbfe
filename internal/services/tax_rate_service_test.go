package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"discount-system/internal/config"
	"discount-system/internal/database"
	"discount-system/internal/logger"
	"discount-system/internal/redis"

	"github.com/DATA-DOG/go-sqlmock"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func testLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return &database.DB{DB: sqlDB}, mock
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.Connect(&config.RedisConfig{Host: "127.0.0.1", Port: mr.Port()}, testLogger())
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTaxRateService_LoadTable(t *testing.T) {
	db, mock := newMockDB(t)
	classID := uuid.New()

	rows := sqlmock.NewRows([]string{"tax_class_id", "country", "rate"}).
		AddRow(nil, "PL", "23").
		AddRow(classID.String(), "PL", "8")
	mock.ExpectQuery("SELECT tax_class_id, country, rate").WillReturnRows(rows)

	svc := NewTaxRateService(db, nil, testLogger(), &config.TaxConfig{CacheTTLMinutes: 15})
	table, err := svc.LoadTable(context.Background())
	if err != nil {
		t.Fatalf("load table failed: %v", err)
	}

	if len(table.Rates) != 2 {
		t.Fatalf("expected 2 rates, got %d", len(table.Rates))
	}
	if !table.DefaultRate("PL").Equal(decimal.NewFromInt(23)) {
		t.Fatalf("unexpected default rate: %s", table.DefaultRate("PL"))
	}
	if rate := table.RateForClass(&classID, "PL"); rate == nil || !rate.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("unexpected class rate: %v", rate)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTaxRateService_LoadTable_CacheHit(t *testing.T) {
	db, mock := newMockDB(t)
	redisClient := newTestRedis(t)

	rows := sqlmock.NewRows([]string{"tax_class_id", "country", "rate"}).
		AddRow(nil, "DE", "19")
	mock.ExpectQuery("SELECT tax_class_id, country, rate").WillReturnRows(rows)

	svc := NewTaxRateService(db, redisClient, testLogger(), &config.TaxConfig{CacheTTLMinutes: 15})
	ctx := context.Background()

	if _, err := svc.LoadTable(ctx); err != nil {
		t.Fatalf("first load failed: %v", err)
	}

	// Второй вызов обслуживается из кеша без обращения к базе.
	table, err := svc.LoadTable(ctx)
	if err != nil {
		t.Fatalf("cached load failed: %v", err)
	}
	if !table.DefaultRate("DE").Equal(decimal.NewFromInt(19)) {
		t.Fatalf("unexpected cached rate: %s", table.DefaultRate("DE"))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestParseRatesSeedFile(t *testing.T) {
	classID := uuid.New()
	content := "rates:\n" +
		"  - country: PL\n" +
		"    rate: \"23\"\n" +
		"  - country: PL\n" +
		"    tax_class: " + classID.String() + "\n" +
		"    rate: \"8.5\"\n"

	path := filepath.Join(t.TempDir(), "rates.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}

	rates, err := ParseRatesSeedFile(path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("expected 2 rates, got %d", len(rates))
	}
	if rates[0].TaxClassID != nil {
		t.Fatalf("expected default rate without tax class")
	}
	if rates[1].TaxClassID == nil || *rates[1].TaxClassID != classID {
		t.Fatalf("expected class rate bound to %s", classID)
	}
	if !rates[1].Rate.Equal(decimal.RequireFromString("8.5")) {
		t.Fatalf("unexpected rate: %s", rates[1].Rate)
	}
}

func TestParseRatesSeedFile_InvalidRate(t *testing.T) {
	content := "rates:\n  - country: PL\n    rate: \"abc\"\n"
	path := filepath.Join(t.TempDir(), "rates.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}

	if _, err := ParseRatesSeedFile(path); err == nil {
		t.Fatalf("expected error for malformed rate")
	}
}

func TestTaxRateService_SeedFromFile(t *testing.T) {
	db, mock := newMockDB(t)
	content := "rates:\n  - country: PL\n    rate: \"23\"\n"
	path := filepath.Join(t.TempDir(), "rates.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tax_class_country_rates").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	svc := NewTaxRateService(db, nil, testLogger(), &config.TaxConfig{CacheTTLMinutes: 15})
	if err := svc.SeedFromFile(context.Background(), path); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
