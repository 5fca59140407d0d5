package rest

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"carteira/internal/core"
)

// Request bodies.
type (
	registerRequest struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	createCategoryRequest struct {
		Name   string `json:"name"`
		Type   string `json:"type"`
		UserID int64  `json:"user_id"`
	}

	createTransactionRequest struct {
		UserID      int64       `json:"user_id"`
		Amount      json.Number `json:"amount"`
		Type        string      `json:"type"`
		CategoryID  int64       `json:"category_id"`
		Date        string      `json:"date"`
		Description string      `json:"description"`
	}

	createGoalRequest struct {
		UserID       int64       `json:"user_id"`
		Description  string      `json:"description"`
		TargetAmount json.Number `json:"target_amount"`
		Deadline     string      `json:"deadline"`
		Kind         string      `json:"kind"`
	}

	depositRequest struct {
		Amount json.Number `json:"amount"`
	}
)

// Response bodies. Required fields are pointers or NullDecimal so that a
// missing key is told apart from a zero value.
type (
	errorPayload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}

	userPayload struct {
		ID    *int64 `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	categoryPayload struct {
		ID     *int64 `json:"id"`
		Name   string `json:"name"`
		Type   string `json:"type"`
		UserID int64  `json:"user_id"`
	}

	transactionPayload struct {
		ID          *int64              `json:"id"`
		UserID      int64               `json:"user_id"`
		Amount      decimal.NullDecimal `json:"amount"`
		Type        string              `json:"type"`
		CategoryID  int64               `json:"category_id"`
		Date        string              `json:"date"`
		Description string              `json:"description"`
	}

	goalPayload struct {
		ID            *int64              `json:"id"`
		UserID        int64               `json:"user_id"`
		Description   string              `json:"description"`
		TargetAmount  decimal.NullDecimal `json:"target_amount"`
		CurrentAmount decimal.NullDecimal `json:"current_amount"`
		Deadline      string              `json:"deadline"`
		Kind          string              `json:"kind"`
	}

	goalProgressPayload struct {
		CurrentAmount decimal.NullDecimal `json:"current_amount"`
		TargetAmount  decimal.NullDecimal `json:"target_amount"`
		Progress      *float64            `json:"progress"`
		Percentage    *float64            `json:"percentage"`
	}

	investmentPayload struct {
		ID          *int64              `json:"id"`
		Name        string              `json:"name"`
		Description string              `json:"description"`
		MonthlyRate decimal.NullDecimal `json:"monthly_rate"`
		RiskLevel   string              `json:"risk_level"`
	}
)

func invalid(field, reason string) error {
	return &core.ValidationError{Source: "response", Field: field, Reason: reason}
}

func requireID(id *int64) (int64, error) {
	if id == nil {
		return 0, invalid("id", "missing")
	}
	if *id <= 0 {
		return 0, invalid("id", "must be positive")
	}
	return *id, nil
}

func wireType(s string) (core.EntryType, error) {
	t, err := core.ParseEntryType(s)
	if err != nil {
		return "", invalid("type", "unknown entry type "+strconv.Quote(s))
	}
	return t, nil
}

func wireDate(field, s string) (core.Date, error) {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, invalid(field, "unparsable date "+strconv.Quote(s))
	}
	return d, nil
}

func nonNegative(field string, d decimal.NullDecimal) (decimal.Decimal, error) {
	if !d.Valid {
		return decimal.Zero, invalid(field, "missing")
	}
	if d.Decimal.IsNegative() {
		return decimal.Zero, invalid(field, "must not be negative")
	}
	return d.Decimal, nil
}

func (p userPayload) toUser() (core.User, error) {
	id, err := requireID(p.ID)
	if err != nil {
		return core.User{}, err
	}
	return core.User{ID: id, Name: p.Name, Email: p.Email}, nil
}

func (p categoryPayload) toCategory() (core.Category, error) {
	id, err := requireID(p.ID)
	if err != nil {
		return core.Category{}, err
	}
	t, err := wireType(p.Type)
	if err != nil {
		return core.Category{}, err
	}
	return core.Category{ID: id, Name: p.Name, Type: t, OwnerID: p.UserID}, nil
}

func (p transactionPayload) toTransaction() (core.Transaction, error) {
	id, err := requireID(p.ID)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := nonNegative("amount", p.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	t, err := wireType(p.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := wireDate("date", p.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:          id,
		OwnerID:     p.UserID,
		Amount:      amount,
		Type:        t,
		CategoryID:  p.CategoryID,
		Date:        date,
		Description: p.Description,
	}, nil
}

func (p goalPayload) toGoal() (core.Goal, error) {
	id, err := requireID(p.ID)
	if err != nil {
		return core.Goal{}, err
	}
	target, err := nonNegative("target_amount", p.TargetAmount)
	if err != nil {
		return core.Goal{}, err
	}
	current := decimal.Zero
	if p.CurrentAmount.Valid {
		if current, err = nonNegative("current_amount", p.CurrentAmount); err != nil {
			return core.Goal{}, err
		}
	}
	deadline, err := wireDate("deadline", p.Deadline)
	if err != nil {
		return core.Goal{}, err
	}
	return core.Goal{
		ID:            id,
		OwnerID:       p.UserID,
		Description:   p.Description,
		TargetAmount:  target,
		CurrentAmount: current,
		Deadline:      deadline,
		Kind:          p.Kind,
	}, nil
}

func (p goalProgressPayload) toGoalProgress(id int64) (core.GoalProgress, error) {
	gp := core.GoalProgress{
		GoalID:        id,
		CurrentAmount: p.CurrentAmount.Decimal,
		TargetAmount:  p.TargetAmount.Decimal,
	}
	switch {
	case p.Progress != nil:
		gp.Percent = *p.Progress
	case p.Percentage != nil:
		gp.Percent = *p.Percentage
	case p.TargetAmount.Valid:
		gp.Percent = core.ProgressPercent(core.Goal{TargetAmount: gp.TargetAmount, CurrentAmount: gp.CurrentAmount})
	default:
		return core.GoalProgress{}, invalid("progress", "missing")
	}
	return gp, nil
}

func (p investmentPayload) toInvestment() (core.Investment, error) {
	id, err := requireID(p.ID)
	if err != nil {
		return core.Investment{}, err
	}
	if !p.MonthlyRate.Valid {
		return core.Investment{}, invalid("monthly_rate", "missing")
	}
	return core.Investment{
		ID:          id,
		Name:        p.Name,
		Description: p.Description,
		MonthlyRate: p.MonthlyRate.Decimal,
		RiskLevel:   strings.TrimSpace(p.RiskLevel),
	}, nil
}
