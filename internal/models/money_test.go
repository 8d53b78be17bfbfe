package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCurrencyPrecision(t *testing.T) {
	cases := []struct {
		currency string
		want     int32
	}{
		{"USD", 2},
		{"EUR", 2},
		{"JPY", 0},
		{"ISK", 0},
		{"KWD", 3},
		{"XYZ", 2},
	}
	for _, tc := range cases {
		if got := CurrencyPrecision(tc.currency); got != tc.want {
			t.Fatalf("%s: expected precision %d, got %d", tc.currency, tc.want, got)
		}
	}
}

func TestMoney_Quantize_BankersRounding(t *testing.T) {
	// Округление к чётному: 2.505 -> 2.50, 2.515 -> 2.52.
	m := NewMoney(decimal.RequireFromString("2.505"), "USD").Quantize()
	if !m.Amount.Equal(decimal.RequireFromString("2.50")) {
		t.Fatalf("expected 2.50, got %s", m.Amount)
	}

	m = NewMoney(decimal.RequireFromString("2.515"), "USD").Quantize()
	if !m.Amount.Equal(decimal.RequireFromString("2.52")) {
		t.Fatalf("expected 2.52, got %s", m.Amount)
	}

	m = NewMoney(decimal.RequireFromString("100.5"), "JPY").Quantize()
	if !m.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100 for JPY, got %s", m.Amount)
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	a := NewMoney(decimal.NewFromInt(10), "USD")
	b := NewMoney(decimal.RequireFromString("2.50"), "USD")

	if sum := a.Add(b); !sum.Amount.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected 12.50, got %s", sum.Amount)
	}
	if diff := a.Sub(b); !diff.Amount.Equal(decimal.RequireFromString("7.50")) {
		t.Fatalf("expected 7.50, got %s", diff.Amount)
	}
	if mul := b.MulInt(3); !mul.Amount.Equal(decimal.RequireFromString("7.50")) {
		t.Fatalf("expected 7.50, got %s", mul.Amount)
	}
	if max := MaxMoney(a, b); !max.Amount.Equal(a.Amount) {
		t.Fatalf("expected max 10, got %s", max.Amount)
	}
}

func TestTaxedMoney_SubAmount(t *testing.T) {
	tm := NewTaxedMoney(
		NewMoney(decimal.NewFromInt(81), "USD"),
		NewMoney(decimal.NewFromInt(100), "USD"),
	)

	got := tm.SubAmount(decimal.NewFromInt(20))
	if !got.Net.Amount.Equal(decimal.NewFromInt(61)) {
		t.Fatalf("expected net 61, got %s", got.Net.Amount)
	}
	if !got.Gross.Amount.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("expected gross 80, got %s", got.Gross.Amount)
	}
}

func TestTaxedMoney_LessOrEqual(t *testing.T) {
	low := NewTaxedMoney(NewMoney(decimal.NewFromInt(81), "USD"), NewMoney(decimal.NewFromInt(100), "USD"))
	high := NewTaxedMoney(NewMoney(decimal.NewFromInt(90), "USD"), NewMoney(decimal.NewFromInt(110), "USD"))

	if !low.LessOrEqual(high) {
		t.Fatalf("expected low <= high")
	}
	if high.LessOrEqual(low) {
		t.Fatalf("expected high > low")
	}
	// Равный gross сравнивается по net.
	sameGross := NewTaxedMoney(NewMoney(decimal.NewFromInt(85), "USD"), NewMoney(decimal.NewFromInt(100), "USD"))
	if !low.LessOrEqual(sameGross) {
		t.Fatalf("expected tie on gross resolved by net")
	}
}
