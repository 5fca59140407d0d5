package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"carteira/internal/core"
	applog "carteira/internal/log"
	"carteira/internal/notify"
	"carteira/internal/services"
)

const (
	unknownCategory = "Categoria"
	missingCategory = "Categoria não encontrada"
)

type transactionRow struct {
	ID          int64
	Date        string
	Description string
	Category    string
	TypeLabel   string
	Income      bool
	Amount      string
}

func transactionRows(txs []core.Transaction, categories []core.Category, fallback string) []transactionRow {
	rows := make([]transactionRow, 0, len(txs))
	for _, t := range txs {
		name := fallback
		if c, ok := core.FindCategory(categories, t.CategoryID); ok {
			name = c.Name
		}
		rows = append(rows, transactionRow{
			ID:          t.ID,
			Date:        formatDate(t.Date),
			Description: t.Description,
			Category:    name,
			TypeLabel:   t.Type.Label(),
			Income:      t.Type == core.Income,
			Amount:      formatCurrency(t.Amount),
		})
	}
	return rows
}

// rejectForm reports input that could not even be turned into a draft.
func (s *Server) rejectForm(w http.ResponseWriter, r *http.Request, to string, err error, fallback string) {
	applog.FromContext(r.Context()).DebugContext(r.Context(), "Rejected form input",
		applog.FieldPath, r.URL.Path,
		applog.FieldError, err)
	s.inbox.Notify(r.Context(), notify.Failure("Erro", core.UserMessage(err, fallback)))
	http.Redirect(w, r, to, http.StatusSeeOther)
}

type dashboardView struct {
	Balance         string
	BalanceNegative bool
	Income          string
	Expense         string
	Recent          []transactionRow
	Categories      core.CategorySummary
	Goals           int
	CompletedGoals  int
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.loadLedger(r.Context())

	txs := s.ledger.Transactions()
	categories := s.ledger.Categories()
	goals := s.ledger.Goals()
	balance := core.Balance(txs)

	view := dashboardView{
		Balance:         formatCurrency(balance),
		BalanceNegative: balance.IsNegative(),
		Income:          formatCurrency(core.TotalIncome(txs)),
		Expense:         formatCurrency(core.TotalExpense(txs)),
		Recent:          transactionRows(core.Recent(txs, s.recentLimit), categories, unknownCategory),
		Categories:      core.SummarizeCategories(categories),
		Goals:           len(goals),
	}
	for _, g := range goals {
		if g.Completed() {
			view.CompletedGoals++
		}
	}
	s.render(w, r, "dashboard.html", "Dashboard", "dashboard", view)
}

type categoriesView struct {
	Income  []core.Category
	Expense []core.Category
	Summary core.CategorySummary
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.loadLedger(r.Context())
	categories := s.ledger.Categories()
	s.render(w, r, "categories.html", "Categorias", "categories", categoriesView{
		Income:  core.CategoriesOfType(categories, core.Income),
		Expense: core.CategoriesOfType(categories, core.Expense),
		Summary: core.SummarizeCategories(categories),
	})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	d, err := parseCategoryForm(r)
	if err != nil {
		s.rejectForm(w, r, "/categories", err, "Não foi possível criar a categoria.")
		return
	}
	_, err = s.ledger.CreateCategory(r.Context(), d)
	s.redirect(w, r, "/categories", err)
}

type transactionsView struct {
	Rows           []transactionRow
	IncomeOptions  []core.Category
	ExpenseOptions []core.Category
	Today          string
	HasCategories  bool
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	s.loadLedger(r.Context())
	txs := s.ledger.Transactions()
	categories := s.ledger.Categories()
	s.render(w, r, "transactions.html", "Transações", "transactions", transactionsView{
		Rows:           transactionRows(core.Recent(txs, len(txs)), categories, missingCategory),
		IncomeOptions:  core.CategoriesOfType(categories, core.Income),
		ExpenseOptions: core.CategoriesOfType(categories, core.Expense),
		Today:          core.DateOf(s.now()).String(),
		HasCategories:  len(categories) > 0,
	})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	d, err := parseTransactionForm(r, core.DateOf(s.now()))
	if err != nil {
		s.rejectForm(w, r, "/transactions", err, "Não foi possível adicionar a transação.")
		return
	}
	_, err = s.ledger.CreateTransaction(r.Context(), d)
	s.redirect(w, r, "/transactions", err)
}

func (s *Server) handleUndoTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.rejectForm(w, r, "/transactions", err, "Não foi possível desfazer a transação.")
		return
	}
	err = s.ledger.UndoTransaction(r.Context(), id)
	s.redirect(w, r, "/transactions", err)
}

type goalRow struct {
	ID        int64
	Title     string
	Kind      string
	Target    string
	Current   string
	Remaining string
	Percent   float64
	Progress  string
	Deadline  string
	DaysLeft  int
	Completed bool
	Overdue   bool
}

type goalsView struct {
	Rows      []goalRow
	Completed int
	Today     string
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	s.loadLedger(r.Context())
	now := s.now()

	view := goalsView{Today: core.DateOf(now).String()}
	for _, g := range s.ledger.Goals() {
		pct := core.ProgressPercent(g)
		row := goalRow{
			ID:        g.ID,
			Title:     g.Description,
			Kind:      g.Kind,
			Target:    formatCurrency(g.TargetAmount),
			Current:   formatCurrency(g.CurrentAmount),
			Remaining: formatCurrency(g.Remaining()),
			Percent:   pct,
			Progress:  formatProgress(pct),
			Deadline:  formatDate(g.Deadline),
			DaysLeft:  core.DaysRemaining(g, now),
			Completed: g.Completed(),
			Overdue:   g.Overdue(now),
		}
		if row.Completed {
			view.Completed++
		}
		view.Rows = append(view.Rows, row)
	}
	s.render(w, r, "goals.html", "Metas Financeiras", "goals", view)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	d, err := parseGoalForm(r)
	if err != nil {
		s.rejectForm(w, r, "/goals", err, "Não foi possível criar a meta.")
		return
	}
	_, err = s.ledger.CreateGoal(r.Context(), d)
	s.redirect(w, r, "/goals", err)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.rejectForm(w, r, "/goals", err, "Não foi possível realizar o depósito.")
		return
	}
	amount, err := parseDepositForm(r)
	if err != nil {
		s.rejectForm(w, r, "/goals", err, "Não foi possível realizar o depósito.")
		return
	}
	err = s.ledger.DepositToGoal(r.Context(), id, amount)
	s.redirect(w, r, "/goals", err)
}

type goalProgressResponse struct {
	GoalID        int64   `json:"goal_id"`
	CurrentAmount string  `json:"current_amount"`
	TargetAmount  string  `json:"target_amount"`
	Percent       float64 `json:"percent"`
	Progress      string  `json:"progress"`
}

// handleGoalProgress reports the backend's own progress figures for one goal.
func (s *Server) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, core.UserMessage(err, "identificador inválido"))
		return
	}
	p, err := s.ledger.GoalProgress(r.Context(), id)
	switch {
	case errors.Is(err, services.ErrNotAuthenticated):
		writeJSONError(w, http.StatusUnauthorized, "sessão encerrada")
		return
	case core.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "Meta não encontrada")
		return
	case err != nil:
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Goal progress unavailable",
			applog.FieldEntityID, id,
			applog.FieldError, err)
		writeJSONError(w, http.StatusBadGateway, core.UserMessage(err, "Não foi possível consultar o progresso."))
		return
	}
	_ = json.NewEncoder(w).Encode(goalProgressResponse{
		GoalID:        p.GoalID,
		CurrentAmount: p.CurrentAmount.StringFixed(2),
		TargetAmount:  p.TargetAmount.StringFixed(2),
		Percent:       p.Percent,
		Progress:      formatProgress(p.Percent),
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

type investmentRow struct {
	Name        string
	Description string
	Rate        string
	Risk        string
	RiskClass   string
	Projected   string
	Return      string
}

type investmentsView struct {
	Rows      []investmentRow
	Summary   core.RiskSummary
	Principal string
}

func riskLabel(r core.RiskLevel) (label, class string) {
	switch r {
	case core.RiskLow:
		return "Baixo Risco", "risk-low"
	case core.RiskMedium:
		return "Médio Risco", "risk-medium"
	case core.RiskHigh:
		return "Alto Risco", "risk-high"
	}
	return "Risco não informado", "risk-unknown"
}

func (s *Server) handleInvestments(w http.ResponseWriter, r *http.Request) {
	s.loadLedger(r.Context())
	investments := s.ledger.Investments()

	view := investmentsView{
		Summary:   core.SummarizeRisk(investments),
		Principal: formatCurrency(core.ProjectionPrincipal),
	}
	for _, inv := range investments {
		label, class := riskLabel(inv.Risk())
		view.Rows = append(view.Rows, investmentRow{
			Name:        inv.Name,
			Description: inv.Description,
			Rate:        formatRate(inv.MonthlyRate),
			Risk:        label,
			RiskClass:   class,
			Projected:   formatCurrency(core.ProjectedAnnualValue(inv)),
			Return:      formatCurrency(core.ProjectedReturn(inv)),
		})
	}
	s.render(w, r, "investments.html", "Investimentos", "investments", view)
}

// handleRefresh reloads the mirror from the backend on demand.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	next := safeNext(r.PostForm.Get("next"), "/")
	err := s.ledger.Refresh(r.Context())
	s.redirect(w, r, next, err)
}
