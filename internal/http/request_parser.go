package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"carteira/internal/core"
)

func parseCategoryForm(r *http.Request) (core.CategoryDraft, error) {
	if err := r.ParseForm(); err != nil {
		return core.CategoryDraft{}, &core.ValidationError{Field: "form", Reason: "formato de requisição inválido"}
	}
	t, err := core.ParseEntryType(r.PostForm.Get("type"))
	if err != nil {
		return core.CategoryDraft{}, err
	}
	return core.CategoryDraft{
		Name: sanitizeInput(r.PostForm.Get("name")),
		Type: t,
	}, nil
}

// parseTransactionForm reads a new transaction. A missing date means today.
func parseTransactionForm(r *http.Request, today core.Date) (core.TransactionDraft, error) {
	if err := r.ParseForm(); err != nil {
		return core.TransactionDraft{}, &core.ValidationError{Field: "form", Reason: "formato de requisição inválido"}
	}
	amount, err := core.ParseAmount(r.PostForm.Get("amount"))
	if err != nil {
		return core.TransactionDraft{}, err
	}
	t, err := core.ParseEntryType(r.PostForm.Get("type"))
	if err != nil {
		return core.TransactionDraft{}, err
	}
	categoryID, err := formID(r.PostForm.Get("category_id"))
	if err != nil {
		return core.TransactionDraft{}, &core.ValidationError{Field: "category_id", Reason: "categoria obrigatória"}
	}
	date := today
	if v := strings.TrimSpace(r.PostForm.Get("date")); v != "" {
		if date, err = core.ParseDate(v); err != nil {
			return core.TransactionDraft{}, err
		}
	}
	return core.TransactionDraft{
		Amount:      amount,
		Type:        t,
		CategoryID:  categoryID,
		Date:        date,
		Description: sanitizeInput(r.PostForm.Get("description")),
	}, nil
}

func parseGoalForm(r *http.Request) (core.GoalDraft, error) {
	if err := r.ParseForm(); err != nil {
		return core.GoalDraft{}, &core.ValidationError{Field: "form", Reason: "formato de requisição inválido"}
	}
	target, err := core.ParseAmount(r.PostForm.Get("target_amount"))
	if err != nil {
		return core.GoalDraft{}, err
	}
	deadline, err := core.ParseDate(r.PostForm.Get("deadline"))
	if err != nil {
		return core.GoalDraft{}, &core.ValidationError{Field: "deadline", Reason: "prazo inválido"}
	}
	return core.GoalDraft{
		Description:  sanitizeInput(r.PostForm.Get("description")),
		TargetAmount: target,
		Deadline:     deadline,
		Kind:         sanitizeInput(r.PostForm.Get("kind")),
	}, nil
}

func parseDepositForm(r *http.Request) (decimal.Decimal, error) {
	if err := r.ParseForm(); err != nil {
		return decimal.Zero, &core.ValidationError{Field: "form", Reason: "formato de requisição inválido"}
	}
	return core.ParsePositiveAmount(r.PostForm.Get("amount"))
}

// pathID reads the {id} route variable.
func pathID(r *http.Request) (int64, error) {
	return formID(mux.Vars(r)["id"])
}

func formID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.ValidationError{Field: "id", Reason: "identificador inválido"}
	}
	return id, nil
}
