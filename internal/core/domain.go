package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  EntryType = "income"
	Expense EntryType = "expense"
)

const (
	RiskUnknown RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
)

const dateLayout = "2006-01-02"

type (
	EntryType string

	RiskLevel int

	Date struct {
		time.Time
	}

	User struct {
		ID    int64
		Name  string
		Email string
	}

	Category struct {
		ID      int64
		Name    string
		Type    EntryType
		OwnerID int64
	}

	Transaction struct {
		ID          int64
		OwnerID     int64
		Amount      decimal.Decimal
		Type        EntryType
		CategoryID  int64
		Date        Date
		Description string
	}

	Goal struct {
		ID            int64
		OwnerID       int64
		Description   string
		TargetAmount  decimal.Decimal
		CurrentAmount decimal.Decimal
		Deadline      Date
		Kind          string // free-form, e.g. "economia", "viagem"
	}

	Investment struct {
		ID          int64
		Name        string
		Description string
		MonthlyRate decimal.Decimal
		RiskLevel   string
	}

	// GoalProgress is the backend's own view of a goal's advancement.
	GoalProgress struct {
		GoalID        int64
		CurrentAmount decimal.Decimal
		TargetAmount  decimal.Decimal
		Percent       float64
	}

	CategoryDraft struct {
		Name string
		Type EntryType
	}

	TransactionDraft struct {
		Amount      decimal.Decimal
		Type        EntryType
		CategoryID  int64
		Date        Date
		Description string
	}

	GoalDraft struct {
		Description  string
		TargetAmount decimal.Decimal
		Deadline     Date
		Kind         string
	}
)

// ParseEntryType accepts both the backend's Portuguese values and the English names.
func ParseEntryType(s string) (EntryType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "receita", "income":
		return Income, nil
	case "despesa", "expense":
		return Expense, nil
	}
	return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("tipo desconhecido %q", s)}
}

func (t EntryType) Valid() bool {
	return t == Income || t == Expense
}

// Wire returns the value the backend expects for this type.
func (t EntryType) Wire() string {
	if t == Income {
		return "receita"
	}
	return "despesa"
}

func (t EntryType) Label() string {
	if t == Income {
		return "Receita"
	}
	return "Despesa"
}

// ParseRiskLevel classifies free-text risk labels case-insensitively.
func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "baixo", "low":
		return RiskLow
	case "médio", "medio", "medium":
		return RiskMedium
	case "alto", "high":
		return RiskHigh
	}
	return RiskUnknown
}

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "baixo"
	case RiskMedium:
		return "médio"
	case RiskHigh:
		return "alto"
	}
	return "desconhecido"
}

func (i Investment) Risk() RiskLevel {
	return ParseRiskLevel(i.RiskLevel)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts YYYY-MM-DD and timestamps that start with it.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", time.RFC1123} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, &ValidationError{Field: "date", Reason: fmt.Sprintf("data inválida %q", s)}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return &ValidationError{Field: "date", Reason: "data obrigatória"}
	}
	return nil
}

func (d CategoryDraft) Validate() error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return &ValidationError{Field: "name", Reason: "nome obrigatório"}
	}
	if utf8.RuneCountInString(name) > 100 {
		return &ValidationError{Field: "name", Reason: "nome muito longo (máx. 100 caracteres)"}
	}
	if !d.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "tipo inválido"}
	}
	return nil
}

func (d TransactionDraft) Validate() error {
	if !d.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "valor deve ser maior que zero"}
	}
	if !d.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "tipo inválido"}
	}
	if d.CategoryID <= 0 {
		return &ValidationError{Field: "category_id", Reason: "categoria obrigatória"}
	}
	if err := d.Date.Validate(); err != nil {
		return err
	}
	if utf8.RuneCountInString(d.Description) > 200 {
		return &ValidationError{Field: "description", Reason: "descrição muito longa (máx. 200 caracteres)"}
	}
	return nil
}

func (d GoalDraft) Validate() error {
	desc := strings.TrimSpace(d.Description)
	if desc == "" {
		return &ValidationError{Field: "description", Reason: "descrição obrigatória"}
	}
	if utf8.RuneCountInString(desc) > 200 {
		return &ValidationError{Field: "description", Reason: "descrição muito longa (máx. 200 caracteres)"}
	}
	if !d.TargetAmount.IsPositive() {
		return &ValidationError{Field: "target_amount", Reason: "valor alvo deve ser maior que zero"}
	}
	if err := d.Deadline.Validate(); err != nil {
		return &ValidationError{Field: "deadline", Reason: "prazo obrigatório"}
	}
	kind := strings.TrimSpace(d.Kind)
	if kind == "" {
		return &ValidationError{Field: "kind", Reason: "tipo de meta obrigatório"}
	}
	if utf8.RuneCountInString(kind) > 100 {
		return &ValidationError{Field: "kind", Reason: "tipo de meta muito longo (máx. 100 caracteres)"}
	}
	return nil
}

// ValidateDeposit rejects non-positive deposit amounts.
func ValidateDeposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "valor deve ser maior que zero"}
	}
	return nil
}

func ValidateRegistration(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Reason: "nome obrigatório"}
	}
	if !strings.Contains(email, "@") {
		return &ValidationError{Field: "email", Reason: "email inválido"}
	}
	if password == "" {
		return &ValidationError{Field: "password", Reason: "senha obrigatória"}
	}
	return nil
}

func ValidateCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return &ValidationError{Field: "email", Reason: "email obrigatório"}
	}
	if password == "" {
		return &ValidationError{Field: "password", Reason: "senha obrigatória"}
	}
	return nil
}
