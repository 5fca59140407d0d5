package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/core"
)

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "R$ 0,00"},
		{"12.5", "R$ 12,50"},
		{"1234.56", "R$ 1.234,56"},
		{"-40", "-R$ 40,00"},
		{"0.005", "R$ 0,01"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCurrency(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestFormatDateAndRate(t *testing.T) {
	assert.Equal(t, "05/03/2024", formatDate(core.NewDate(2024, 3, 5)))
	assert.Equal(t, "", formatDate(core.Date{}))
	assert.Equal(t, "0,85%", formatRate(decimal.RequireFromString("0.0085")))
	assert.Equal(t, "66,7%", formatProgress(200.0/3))
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "abc", sanitizeInput("  a\x00b\x07c  "))
	assert.Equal(t, "linha\tcom tab", sanitizeInput("linha\tcom tab"))
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                    "/",
		"/goals":              "/goals",
		"//evil.example":      "/",
		"https://evil.example": "/",
		"/\\evil":             "/",
		"transactions":        "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeNext(in, "/"), in)
	}
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestParseTransactionForm(t *testing.T) {
	today := core.NewDate(2024, 3, 15)

	d, err := parseTransactionForm(postForm(url.Values{
		"amount":      {"R$ 1.234,56"},
		"type":        {"despesa"},
		"category_id": {"7"},
		"description": {"  Mercado  "},
	}), today)
	require.NoError(t, err)
	assert.True(t, d.Amount.Equal(decimal.RequireFromString("1234.56")))
	assert.Equal(t, core.Expense, d.Type)
	assert.EqualValues(t, 7, d.CategoryID)
	assert.Equal(t, today, d.Date)
	assert.Equal(t, "Mercado", d.Description)

	_, err = parseTransactionForm(postForm(url.Values{
		"amount": {"10"}, "type": {"receita"}, "category_id": {""},
	}), today)
	assert.True(t, core.IsValidation(err))
	assert.Equal(t, "categoria obrigatória", core.UserMessage(err, ""))

	_, err = parseTransactionForm(postForm(url.Values{
		"amount": {"10"}, "type": {"receita"}, "category_id": {"1"}, "date": {"15/03/2024"},
	}), today)
	assert.True(t, core.IsValidation(err))
}

func TestParseGoalForm(t *testing.T) {
	d, err := parseGoalForm(postForm(url.Values{
		"description":   {"Reserva"},
		"target_amount": {"5000"},
		"deadline":      {"2025-01-31"},
		"kind":          {"economia"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-31", d.Deadline.String())
	require.NoError(t, d.Validate())

	_, err = parseGoalForm(postForm(url.Values{"target_amount": {"10"}, "deadline": {""}}))
	assert.Equal(t, "prazo inválido", core.UserMessage(err, ""))
}

func TestParseDepositForm(t *testing.T) {
	amount, err := parseDepositForm(postForm(url.Values{"amount": {"250,50"}}))
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("250.50")))

	_, err = parseDepositForm(postForm(url.Values{"amount": {"0"}}))
	assert.Equal(t, "valor deve ser maior que zero", core.UserMessage(err, ""))
}

func TestPathID(t *testing.T) {
	req := mux.SetURLVars(httptest.NewRequest(http.MethodPost, "/goals/12/deposit", nil), map[string]string{"id": "12"})
	id, err := pathID(req)
	require.NoError(t, err)
	assert.EqualValues(t, 12, id)

	_, err = formID("0")
	assert.Error(t, err)
}
