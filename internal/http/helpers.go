package http

import (
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"carteira/internal/core"
	"carteira/internal/notify"
)

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

var templateFuncs = template.FuncMap{
	"currency":   formatCurrency,
	"date":       formatDate,
	"toastClass": toastClass,
}

// formatCurrency renders an amount as Brazilian reais (e.g. "R$ 1.234,56").
func formatCurrency(d decimal.Decimal) string {
	d = d.Round(2)
	if d.IsNegative() {
		return "-R$ " + ptBR.Sprintf("%.2f", d.Neg().InexactFloat64())
	}
	return "R$ " + ptBR.Sprintf("%.2f", d.InexactFloat64())
}

// formatDate renders dd/mm/yyyy, or an empty string for a missing date.
func formatDate(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format("02/01/2006")
}

// formatRate renders a monthly rate fraction as a percentage: 0.0085 -> "0,85%".
func formatRate(rate decimal.Decimal) string {
	return ptBR.Sprintf("%.2f", rate.Mul(decimal.NewFromInt(100)).InexactFloat64()) + "%"
}

func formatProgress(pct float64) string {
	return ptBR.Sprintf("%.1f", pct) + "%"
}

func toastClass(l notify.Level) string {
	switch l {
	case notify.LevelSuccess:
		return "toast toast-success"
	case notify.LevelError:
		return "toast toast-error"
	}
	return "toast toast-info"
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// safeNext accepts only local absolute paths as redirect targets.
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return fallback
	}
	return next
}
