package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"carteira/internal/core"
	"carteira/internal/ledger/memory"
	applog "carteira/internal/log"
	"carteira/internal/notify"
	"carteira/internal/services"
	"carteira/internal/session"
)

type testApp struct {
	srv     *Server
	backend *memory.Store
	sess    *session.Manager
	ledger  *services.LedgerService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	backend := memory.New(memory.DefaultInvestments()).WithCost(bcrypt.MinCost)
	require.NoError(t, backend.Register(context.Background(), "Ana", "ana@example.com", "secret"))

	inbox := notify.NewInbox(50)
	sess := session.NewManager(backend, session.NewMemoryStore(), inbox, applog.Discard())
	ledger := services.NewLedgerService(backend, sess, inbox, nil, applog.Discard())

	srv, err := NewServer(":0", Deps{
		Ledger:      ledger,
		Session:     sess,
		Inbox:       inbox,
		Logger:      applog.Discard(),
		RecentLimit: 5,
		Now:         func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testApp{srv: srv, backend: backend, sess: sess, ledger: ledger}
}

func (a *testApp) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func (a *testApp) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (a *testApp) login(t *testing.T) {
	t.Helper()
	rr := a.post(t, "/auth/login", url.Values{"email": {"ana@example.com"}, "password": {"secret"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/", rr.Header().Get("Location"))
}

func (a *testApp) category(t *testing.T, name string, typ core.EntryType) core.Category {
	t.Helper()
	c, err := a.ledger.CreateCategory(context.Background(), core.CategoryDraft{Name: name, Type: typ})
	require.NoError(t, err)
	return c
}

func TestHealthAndReady(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := app.get(t, path)
		require.Equal(t, http.StatusOK, rr.Code, path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.NotEmpty(t, body["status"])
	}

	rr := app.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total")
}

func TestPagesRequireAuthentication(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/", "/transactions", "/categories", "/goals", "/investments"} {
		rr := app.get(t, path)
		assert.Equal(t, http.StatusSeeOther, rr.Code, path)
		assert.Equal(t, "/auth", rr.Header().Get("Location"), path)
	}

	rr := app.get(t, "/auth")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Entrar")
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestLoginShowsDashboard(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	rr := app.get(t, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Saldo Atual")
	assert.Contains(t, body, "Olá, Ana")
	assert.Contains(t, body, "Bem-vindo(a), Ana!")
	assert.Contains(t, body, "Nenhuma transação encontrada")

	// toasts are shown once
	assert.NotContains(t, app.get(t, "/").Body.String(), "Bem-vindo(a)")
}

func TestLoginFailureReturnsToAuth(t *testing.T) {
	app := newTestApp(t)

	rr := app.post(t, "/auth/login", url.Values{"email": {"ana@example.com"}, "password": {"wrong"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth", rr.Header().Get("Location"))
	assert.False(t, app.sess.Snapshot().Authenticated())

	assert.Contains(t, app.get(t, "/auth").Body.String(), "Erro no login")
}

func TestRegisterRedirectsToLoginTab(t *testing.T) {
	app := newTestApp(t)

	rr := app.post(t, "/auth/register", url.Values{"name": {"Bia"}, "email": {"bia@example.com"}, "password": {"pw"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth?tab=login", rr.Header().Get("Location"))

	rr = app.post(t, "/auth/register", url.Values{"name": {""}, "email": {"x@example.com"}, "password": {"pw"}})
	assert.Equal(t, "/auth?tab=register", rr.Header().Get("Location"))
	assert.Contains(t, app.get(t, "/auth?tab=register").Body.String(), "nome obrigatório")
}

func TestCreateTransactionFlow(t *testing.T) {
	app := newTestApp(t)
	app.login(t)
	salary := app.category(t, "Salário", core.Income)
	app.category(t, "Mercado", core.Expense)

	rr := app.post(t, "/transactions", url.Values{
		"amount":      {"1.500,00"},
		"type":        {"receita"},
		"category_id": {formatID(salary.ID)},
		"date":        {"2024-03-10"},
		"description": {"Pagamento março"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/transactions", rr.Header().Get("Location"))

	txs := app.ledger.Transactions()
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(1500)))

	body := app.get(t, "/transactions").Body.String()
	assert.Contains(t, body, "Transação adicionada com sucesso.")
	assert.Contains(t, body, "Pagamento março")
	assert.Contains(t, body, "10/03/2024")

	dash := app.get(t, "/").Body.String()
	assert.Contains(t, dash, "Salário")
	assert.Contains(t, dash, "R$ 1.500,00")
}

func TestCreateTransactionRejectsBadAmount(t *testing.T) {
	app := newTestApp(t)
	app.login(t)
	salary := app.category(t, "Salário", core.Income)
	app.get(t, "/")

	rr := app.post(t, "/transactions", url.Values{
		"amount":      {"abc"},
		"type":        {"receita"},
		"category_id": {formatID(salary.ID)},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Empty(t, app.ledger.Transactions())
	assert.Contains(t, app.get(t, "/transactions").Body.String(), "valor inválido")
}

func TestTransactionDefaultsToToday(t *testing.T) {
	app := newTestApp(t)
	app.login(t)
	salary := app.category(t, "Salário", core.Income)

	app.post(t, "/transactions", url.Values{
		"amount":      {"10"},
		"type":        {"receita"},
		"category_id": {formatID(salary.ID)},
	})
	txs := app.ledger.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "2024-03-15", txs[0].Date.String())
}

func TestUndoTransaction(t *testing.T) {
	app := newTestApp(t)
	app.login(t)
	salary := app.category(t, "Salário", core.Income)
	tx, err := app.ledger.CreateTransaction(context.Background(), core.TransactionDraft{
		Amount:     decimal.NewFromInt(25),
		Type:       core.Income,
		CategoryID: salary.ID,
		Date:       core.NewDate(2024, 3, 1),
	})
	require.NoError(t, err)

	rr := app.post(t, "/transactions/"+formatID(tx.ID)+"/undo", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Empty(t, app.ledger.Transactions())
	assert.Contains(t, app.get(t, "/transactions").Body.String(), "Transação desfeita com sucesso.")
}

func TestCategoryForm(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	rr := app.post(t, "/categories", url.Values{"name": {"Aluguel"}, "type": {"despesa"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)

	body := app.get(t, "/categories").Body.String()
	assert.Contains(t, body, "Aluguel")
	assert.Contains(t, body, "Categoria criada com sucesso.")

	app.post(t, "/categories", url.Values{"name": {"X"}, "type": {"outro"}})
	assert.Len(t, app.ledger.Categories(), 1)
}

func TestGoalCreateAndDeposit(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	rr := app.post(t, "/goals", url.Values{
		"description":   {"Viagem"},
		"target_amount": {"200"},
		"deadline":      {"2024-12-31"},
		"kind":          {"viagem"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	goals := app.ledger.Goals()
	require.Len(t, goals, 1)

	body := app.get(t, "/goals").Body.String()
	assert.Contains(t, body, "Viagem")
	assert.NotContains(t, body, "Meta Alcançada")

	rr = app.post(t, "/goals/"+formatID(goals[0].ID)+"/deposit", url.Values{"amount": {"250"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.True(t, app.ledger.Goals()[0].CurrentAmount.Equal(decimal.NewFromInt(250)))

	body = app.get(t, "/goals").Body.String()
	assert.Contains(t, body, "Depósito realizado com sucesso.")
	assert.Contains(t, body, "Meta Alcançada!")
}

func TestGoalProgressJSON(t *testing.T) {
	app := newTestApp(t)
	app.login(t)
	g, err := app.ledger.CreateGoal(context.Background(), core.GoalDraft{
		Description:  "Carro",
		TargetAmount: decimal.NewFromInt(400),
		Deadline:     core.NewDate(2024, 12, 1),
		Kind:         "compra",
	})
	require.NoError(t, err)
	require.NoError(t, app.ledger.DepositToGoal(context.Background(), g.ID, decimal.NewFromInt(100)))

	rr := app.get(t, "/goals/"+formatID(g.ID)+"/progress")
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "100.00", body["current_amount"])
	assert.Equal(t, "400.00", body["target_amount"])
	assert.InDelta(t, 25.0, body["percent"], 0.001)
	assert.Equal(t, "25,0%", body["progress"])

	rr = app.get(t, "/goals/9999/progress")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// foreignRecords creates a transaction and a goal owned by another user.
func (a *testApp) foreignRecords(t *testing.T) (core.Transaction, core.Goal) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.backend.Register(ctx, "Bruno", "bruno@example.com", "secret"))
	bob, err := a.backend.Login(ctx, "bruno@example.com", "secret")
	require.NoError(t, err)
	cat, err := a.backend.CreateCategory(ctx, bob.ID, core.CategoryDraft{Name: "Freela", Type: core.Income})
	require.NoError(t, err)
	tx, err := a.backend.CreateTransaction(ctx, bob.ID, core.TransactionDraft{
		Amount:     decimal.NewFromInt(80),
		Type:       core.Income,
		CategoryID: cat.ID,
		Date:       core.NewDate(2024, 3, 2),
	})
	require.NoError(t, err)
	g, err := a.backend.CreateGoal(ctx, bob.ID, core.GoalDraft{
		Description:  "Moto",
		TargetAmount: decimal.NewFromInt(900),
		Deadline:     core.NewDate(2024, 12, 1),
		Kind:         "compra",
	})
	require.NoError(t, err)
	return tx, g
}

func TestForeignIdsRejected(t *testing.T) {
	app := newTestApp(t)
	app.login(t)
	tx, g := app.foreignRecords(t)
	ctx := context.Background()

	rr := app.post(t, "/transactions/"+formatID(tx.ID)+"/undo", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	theirs, err := app.backend.ListTransactions(ctx, tx.OwnerID)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
	assert.Contains(t, app.get(t, "/transactions").Body.String(), "Transação não encontrada.")

	rr = app.post(t, "/goals/"+formatID(g.ID)+"/deposit", url.Values{"amount": {"50"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	progress, err := app.backend.GoalProgress(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, progress.CurrentAmount.IsZero())
	body := app.get(t, "/goals").Body.String()
	assert.Contains(t, body, "Meta não encontrada.")
	assert.NotContains(t, body, "Depósito realizado com sucesso.")

	rr = app.get(t, "/goals/"+formatID(g.ID)+"/progress")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NotContains(t, rr.Body.String(), "900")
}

func TestDepositRejectsZero(t *testing.T) {
	app := newTestApp(t)
	app.login(t)
	g, err := app.ledger.CreateGoal(context.Background(), core.GoalDraft{
		Description:  "Reserva",
		TargetAmount: decimal.NewFromInt(100),
		Deadline:     core.NewDate(2024, 12, 1),
		Kind:         "economia",
	})
	require.NoError(t, err)

	app.post(t, "/goals/"+formatID(g.ID)+"/deposit", url.Values{"amount": {"0"}})
	assert.True(t, app.ledger.Goals()[0].CurrentAmount.IsZero())
	assert.Contains(t, app.get(t, "/goals").Body.String(), "valor deve ser maior que zero")
}

func TestInvestmentsPage(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	body := app.get(t, "/investments").Body.String()
	assert.Contains(t, body, "Tesouro Selic")
	assert.Contains(t, body, "Baixo Risco")
	assert.Contains(t, body, "0,85%")
	assert.Contains(t, body, "Alto Risco")
}

func TestRefreshRedirect(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	rr := app.post(t, "/refresh", url.Values{"next": {"/goals"}})
	assert.Equal(t, "/goals", rr.Header().Get("Location"))

	rr = app.post(t, "/refresh", url.Values{"next": {"//evil.example"}})
	assert.Equal(t, "/", rr.Header().Get("Location"))
}

func TestLogoutClearsSession(t *testing.T) {
	app := newTestApp(t)
	app.login(t)
	app.category(t, "Salário", core.Income)

	rr := app.post(t, "/auth/logout", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth", rr.Header().Get("Location"))
	assert.False(t, app.sess.Snapshot().Authenticated())
	assert.Empty(t, app.ledger.Categories())

	assert.Equal(t, http.StatusSeeOther, app.get(t, "/").Code)
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	app := newTestApp(t)

	rr := app.get(t, "/.env")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.EqualValues(t, 1, app.srv.detector.GetMetrics().SuspiciousRequests)
}

func TestCrossSiteFormRejected(t *testing.T) {
	app := newTestApp(t)
	app.login(t)
	salary := app.category(t, "Salário", core.Income)
	tx, err := app.ledger.CreateTransaction(context.Background(), core.TransactionDraft{
		Amount:     decimal.NewFromInt(25),
		Type:       core.Income,
		CategoryID: salary.ID,
		Date:       core.NewDate(2024, 3, 1),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/transactions/"+formatID(tx.ID)+"/undo", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	rr := httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Len(t, app.ledger.Transactions(), 1)

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Origin", "null")
	rr = httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.True(t, app.sess.Snapshot().Authenticated())

	req = httptest.NewRequest(http.MethodPost, "/transactions/"+formatID(tx.ID)+"/undo", nil)
	req.Header.Set("Origin", "http://example.com")
	rr = httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Empty(t, app.ledger.Transactions())
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
