package iol

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"github.com/PaesslerAG/jsonpath"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mtlprog/holdings/internal/domain"
)

var currencyAliases = map[string]string{
	"peso_argentino":          "ARS",
	"pesos_argentinos":        "ARS",
	"peso":                    "ARS",
	"pesos":                   "ARS",
	"dolar_estadounidense":    "USD",
	"dolares_estadounidenses": "USD",
	"dolar":                   "USD",
	"dolares":                 "USD",
	"usd_oficial":             "USD",
	"usd_mep":                 "USD",
	"usd_ccl":                 "USD",
	"usd_cable":               "USD",
	"dolar_mep":               "USD",
	"dolar_ccl":               "USD",
	"dolar_bolsa":             "USD",
	"dolar_cable":             "USD",
	"euro":                    "EUR",
	"real_brasileno":          "BRL",
}

// NormalizeCurrency maps IOL currency labels such as "peso_Argentino" or
// "Dólar Estadounidense" to ISO codes. Unknown three-letter codes are upper-cased.
func NormalizeCurrency(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), value)
	if err != nil {
		stripped = value
	}
	slug := strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(strings.ToLower(stripped))
	if code, ok := currencyAliases[slug]; ok {
		return code
	}
	if len(value) == 3 && strings.IndexFunc(value, func(r rune) bool { return !unicode.IsLetter(r) }) < 0 {
		return strings.ToUpper(value)
	}
	return value
}

// instrumentType maps an IOL "tipo" label onto an instrument type.
func instrumentType(tipo string) domain.InstrumentType {
	s := strings.ToLower(tipo)
	switch {
	case strings.Contains(s, "fci"), strings.Contains(s, "fondo"):
		return domain.InstrumentFund
	case strings.Contains(s, "bono"), strings.Contains(s, "letra"), strings.Contains(s, "obligacion"), strings.Contains(s, "renta"):
		return domain.InstrumentOther
	case strings.Contains(s, "caucion"), strings.Contains(s, "cheque"):
		return domain.InstrumentCash
	default:
		return domain.InstrumentEquity
	}
}

// guessPanel picks the Cotizaciones panel for an IOL instrument type.
func guessPanel(tipo string) string {
	s := strings.ToLower(tipo)
	switch {
	case s == "":
		return "Acciones"
	case strings.Contains(s, "cedear"):
		return "CEDEAR"
	case strings.Contains(s, "etf"):
		return "ETF"
	case strings.Contains(s, "bon"), strings.Contains(s, "renta"):
		return "RentaFija"
	case strings.Contains(s, "fci"), strings.Contains(s, "fondo"):
		return "Fondos"
	default:
		return "Acciones"
	}
}

// firstString returns the first path that resolves to a non-empty scalar in obj.
func firstString(obj any, paths ...string) string {
	for _, path := range paths {
		v, err := jsonpath.Get(path, obj)
		if err != nil {
			continue
		}
		// jsonpath may wrap a single answer in a list; keep the first.
		if list, ok := v.([]any); ok {
			if len(list) == 0 {
				continue
			}
			v = list[0]
		}
		if s := scalar(v); s != "" {
			return s
		}
	}
	return ""
}

// firstList returns the first path that resolves to a list in obj.
func firstList(obj any, paths ...string) []any {
	if list, ok := obj.([]any); ok {
		return list
	}
	for _, path := range paths {
		v, err := jsonpath.Get(path, obj)
		if err != nil {
			continue
		}
		if list, ok := v.([]any); ok {
			return list
		}
	}
	return nil
}

// firstObject returns the first path that resolves to an object in obj, or obj itself.
func firstObject(obj any, paths ...string) any {
	if list, ok := obj.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	for _, path := range paths {
		v, err := jsonpath.Get(path, obj)
		if err != nil {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return obj
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
