// Package memory is an in-process ledger backend used for local development
// and tests. It enforces the same rules and error taxonomy as the REST backend.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"carteira/internal/core"
)

type account struct {
	user core.User
	hash []byte
}

type Store struct {
	mu          sync.Mutex
	nextID      int64
	accounts    map[int64]*account
	byEmail     map[string]int64
	categories  []core.Category
	txs         []core.Transaction
	goals       []core.Goal
	investments []core.Investment
	cost        int
}

func New(investments []core.Investment) *Store {
	s := &Store{
		accounts: make(map[int64]*account),
		byEmail:  make(map[string]int64),
		cost:     bcrypt.DefaultCost,
	}
	for _, inv := range investments {
		s.nextID++
		inv.ID = s.nextID
		s.investments = append(s.investments, inv)
	}
	return s
}

// NewFromFiles seeds the investment catalog from base/seed_investments.txt.
// Each line is "name|description|monthly_rate|risk_level".
func NewFromFiles(base string) *Store {
	invs := parseInvestments(readLines(filepath.Join(base, "seed_investments.txt")))
	if len(invs) == 0 {
		invs = DefaultInvestments()
	}
	return New(invs)
}

func DefaultInvestments() []core.Investment {
	return []core.Investment{
		{Name: "Tesouro Selic", Description: "Título público pós-fixado com liquidez diária", MonthlyRate: decimal.RequireFromString("0.0085"), RiskLevel: "baixo"},
		{Name: "CDB 110% CDI", Description: "Certificado de depósito bancário", MonthlyRate: decimal.RequireFromString("0.0095"), RiskLevel: "baixo"},
		{Name: "Fundo Multimercado", Description: "Carteira diversificada com gestão ativa", MonthlyRate: decimal.RequireFromString("0.012"), RiskLevel: "médio"},
		{Name: "Fundo Imobiliário", Description: "Cotas de empreendimentos imobiliários", MonthlyRate: decimal.RequireFromString("0.01"), RiskLevel: "medio"},
		{Name: "Ações Ibovespa", Description: "Carteira de ações do índice", MonthlyRate: decimal.RequireFromString("0.018"), RiskLevel: "alto"},
	}
}

// WithCost lowers the bcrypt cost; tests use bcrypt.MinCost.
func (s *Store) WithCost(cost int) *Store {
	s.cost = cost
	return s
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) Register(_ context.Context, name, email, password string) error {
	if err := core.ValidateRegistration(name, email, password); err != nil {
		return badRequest("register", core.UserMessage(err, "dados inválidos"))
	}
	key := strings.ToLower(strings.TrimSpace(email))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[key]; taken {
		return &core.TransportError{Op: "register", StatusCode: http.StatusConflict, Message: "Email já cadastrado"}
	}
	u := core.User{ID: s.id(), Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
	s.accounts[u.ID] = &account{user: u, hash: hash}
	s.byEmail[key] = u.ID
	return nil
}

func (s *Store) Login(_ context.Context, email, password string) (core.User, error) {
	key := strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	id, ok := s.byEmail[key]
	var acc *account
	if ok {
		acc = s.accounts[id]
	}
	s.mu.Unlock()

	if acc == nil || bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return core.User{}, &core.AuthError{Message: "Email ou senha incorretos."}
	}
	return acc.user, nil
}

func (s *Store) FetchUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return core.User{}, &core.NotFoundError{Resource: "user", ID: strconv.FormatInt(id, 10)}
	}
	return acc.user, nil
}

func (s *Store) ListCategories(_ context.Context, ownerID int64) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Category, 0)
	for _, c := range s.categories {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, ownerID int64, d core.CategoryDraft) (core.Category, error) {
	if err := d.Validate(); err != nil {
		return core.Category{}, badRequest("create category", core.UserMessage(err, "dados inválidos"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[ownerID]; !ok {
		return core.Category{}, &core.NotFoundError{Resource: "user", ID: strconv.FormatInt(ownerID, 10)}
	}
	c := core.Category{ID: s.id(), Name: strings.TrimSpace(d.Name), Type: d.Type, OwnerID: ownerID}
	s.categories = append(s.categories, c)
	return c, nil
}

func (s *Store) ListTransactions(_ context.Context, ownerID int64) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) CreateTransaction(_ context.Context, ownerID int64, d core.TransactionDraft) (core.Transaction, error) {
	if err := d.Validate(); err != nil {
		return core.Transaction{}, badRequest("create transaction", core.UserMessage(err, "dados inválidos"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := core.FindCategory(s.categories, d.CategoryID)
	if !ok || cat.OwnerID != ownerID {
		return core.Transaction{}, badRequest("create transaction", "Categoria não encontrada")
	}
	if cat.Type != d.Type {
		return core.Transaction{}, badRequest("create transaction", "Categoria não corresponde ao tipo da transação")
	}
	t := core.Transaction{
		ID:          s.id(),
		OwnerID:     ownerID,
		Amount:      d.Amount,
		Type:        d.Type,
		CategoryID:  d.CategoryID,
		Date:        d.Date,
		Description: strings.TrimSpace(d.Description),
	}
	s.txs = append(s.txs, t)
	return t, nil
}

// UndoTransaction removes the transaction.
func (s *Store) UndoTransaction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.txs {
		if t.ID == id {
			s.txs = append(s.txs[:i], s.txs[i+1:]...)
			return nil
		}
	}
	return &core.NotFoundError{Resource: "transaction", ID: strconv.FormatInt(id, 10)}
}

func (s *Store) ListGoals(_ context.Context, ownerID int64) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Goal, 0)
	for _, g := range s.goals {
		if g.OwnerID == ownerID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) CreateGoal(_ context.Context, ownerID int64, d core.GoalDraft) (core.Goal, error) {
	if err := d.Validate(); err != nil {
		return core.Goal{}, badRequest("create goal", core.UserMessage(err, "dados inválidos"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[ownerID]; !ok {
		return core.Goal{}, &core.NotFoundError{Resource: "user", ID: strconv.FormatInt(ownerID, 10)}
	}
	g := core.Goal{
		ID:            s.id(),
		OwnerID:       ownerID,
		Description:   strings.TrimSpace(d.Description),
		TargetAmount:  d.TargetAmount,
		CurrentAmount: decimal.Zero,
		Deadline:      d.Deadline,
		Kind:          strings.TrimSpace(d.Kind),
	}
	s.goals = append(s.goals, g)
	return g, nil
}

func (s *Store) DepositToGoal(_ context.Context, id int64, amount decimal.Decimal) error {
	if err := core.ValidateDeposit(amount); err != nil {
		return badRequest("deposit to goal", core.UserMessage(err, "valor inválido"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.goals {
		if s.goals[i].ID == id {
			s.goals[i].CurrentAmount = s.goals[i].CurrentAmount.Add(amount)
			return nil
		}
	}
	return &core.NotFoundError{Resource: "goal", ID: strconv.FormatInt(id, 10)}
}

func (s *Store) GoalProgress(_ context.Context, id int64) (core.GoalProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.goals {
		if g.ID == id {
			return core.GoalProgress{
				GoalID:        g.ID,
				CurrentAmount: g.CurrentAmount,
				TargetAmount:  g.TargetAmount,
				Percent:       core.ProgressPercent(g),
			}, nil
		}
	}
	return core.GoalProgress{}, &core.NotFoundError{Resource: "goal", ID: strconv.FormatInt(id, 10)}
}

func (s *Store) ListInvestments(_ context.Context) ([]core.Investment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Investment(nil), s.investments...), nil
}

func badRequest(op, msg string) error {
	return &core.TransportError{Op: op, StatusCode: http.StatusBadRequest, Message: msg}
}

func parseInvestments(lines []string) []core.Investment {
	var out []core.Investment
	for _, line := range lines {
		parts := strings.Split(line, "|")
		if len(parts) != 4 {
			continue
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
		if err != nil {
			continue
		}
		out = append(out, core.Investment{
			Name:        strings.TrimSpace(parts[0]),
			Description: strings.TrimSpace(parts[1]),
			MonthlyRate: rate,
			RiskLevel:   strings.TrimSpace(parts[3]),
		})
	}
	return out
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
