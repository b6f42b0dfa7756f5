package iol

import (
	"testing"

	"github.com/mtlprog/holdings/internal/domain"
)

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"peso_Argentino", "ARS"},
		{"Dólar Estadounidense", "USD"},
		{"dolar_mep", "USD"},
		{"usd", "USD"},
		{"  eur ", "EUR"},
		{"", ""},
		{"something odd", "something odd"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeCurrency(tt.in); got != tt.want {
				t.Errorf("NormalizeCurrency(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestInstrumentType(t *testing.T) {
	tests := []struct {
		tipo string
		want domain.InstrumentType
	}{
		{"ACCIONES", domain.InstrumentEquity},
		{"CEDEARS", domain.InstrumentEquity},
		{"FondoComundeInversion", domain.InstrumentFund},
		{"TitulosPublicos Bonos", domain.InstrumentOther},
		{"Letras", domain.InstrumentOther},
		{"Caucion", domain.InstrumentCash},
		{"", domain.InstrumentEquity},
	}

	for _, tt := range tests {
		t.Run(tt.tipo, func(t *testing.T) {
			if got := instrumentType(tt.tipo); got != tt.want {
				t.Errorf("instrumentType(%q) = %q, want %q", tt.tipo, got, tt.want)
			}
		})
	}
}

func TestGuessPanel(t *testing.T) {
	tests := map[string]string{
		"":              "Acciones",
		"CEDEARS":       "CEDEAR",
		"ETF":           "ETF",
		"Bonos":         "RentaFija",
		"FCI":           "Fondos",
		"ACCIONES":      "Acciones",
		"ObligacionNeg": "Acciones",
	}
	for tipo, want := range tests {
		if got := guessPanel(tipo); got != want {
			t.Errorf("guessPanel(%q) = %q, want %q", tipo, got, want)
		}
	}
}

func TestFirstStringFallsThroughPaths(t *testing.T) {
	obj := map[string]any{
		"simbolo": "",
		"titulo":  map[string]any{"ticker": "GGAL"},
	}
	if got := firstString(obj, "$.simbolo", "$.titulo.simbolo", "$.titulo.ticker"); got != "GGAL" {
		t.Errorf("firstString = %q, want GGAL", got)
	}
	if got := firstString(obj, "$.missing"); got != "" {
		t.Errorf("firstString(missing) = %q, want empty", got)
	}
}
