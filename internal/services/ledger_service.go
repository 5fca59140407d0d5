package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"carteira/internal/amqp"
	"carteira/internal/core"
	"carteira/internal/ledger"
	applog "carteira/internal/log"
	"carteira/internal/notify"
	"carteira/internal/session"
)

var ErrNotAuthenticated = errors.New("not authenticated")

const (
	titleSuccess = "Sucesso!"
	titleFailure = "Erro"
)

// EventPublisher receives an event after every applied mutation.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// mirror is the local copy of one owner's ledger, valid for a single session epoch.
type mirror struct {
	owner        int64
	epoch        uint64
	loaded       bool
	categories   []core.Category
	transactions []core.Transaction
	goals        []core.Goal
	investments  []core.Investment
}

// LedgerService orchestrates ledger mutations against the backend and keeps the
// local mirror in step with the ones that succeeded.
type LedgerService struct {
	gw       ledger.Gateway
	sess     *session.Manager
	notifier notify.Notifier
	events   EventPublisher
	logger   *applog.Logger

	mu sync.RWMutex
	m  mirror
}

func NewLedgerService(gw ledger.Gateway, sess *session.Manager, notifier notify.Notifier, events EventPublisher, logger *applog.Logger) *LedgerService {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = applog.Discard()
	}
	s := &LedgerService{
		gw:       gw,
		sess:     sess,
		notifier: notifier,
		events:   events,
		logger:   logger.WithComponent(applog.ComponentLedger),
	}
	sess.OnChange(func(session.Snapshot) {
		s.mu.Lock()
		s.m = mirror{}
		s.mu.Unlock()
	})
	return s
}

func (s *LedgerService) current() (session.Snapshot, error) {
	snap := s.sess.Snapshot()
	if !snap.Authenticated() {
		return snap, ErrNotAuthenticated
	}
	return snap, nil
}

// Refresh refetches the four lists concurrently and replaces the mirror only if
// all of them arrived and the session did not change meanwhile.
func (s *LedgerService) Refresh(ctx context.Context) error {
	snap, err := s.current()
	if err != nil {
		return err
	}
	owner := snap.OwnerID()

	var (
		categories   []core.Category
		transactions []core.Transaction
		goals        []core.Goal
		investments  []core.Investment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		categories, err = s.gw.ListCategories(gctx, owner)
		return err
	})
	g.Go(func() (err error) {
		transactions, err = s.gw.ListTransactions(gctx, owner)
		return err
	})
	g.Go(func() (err error) {
		goals, err = s.gw.ListGoals(gctx, owner)
		return err
	})
	g.Go(func() (err error) {
		investments, err = s.gw.ListInvestments(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Err(ctx, "Refresh failed, keeping previous data", err,
			applog.FieldOperation, applog.OpRefresh,
			applog.FieldOwnerID, owner)
		if s.sess.Valid(snap) {
			s.notifier.Notify(ctx, notify.Failure(titleFailure, core.UserMessage(err, "Não foi possível carregar os dados.")))
		}
		return fmt.Errorf("refresh: %w", err)
	}

	var dropped int
	categories, dropped = keepOwned(categories, owner, func(c core.Category) int64 { return c.OwnerID })
	s.logDropped(ctx, "category", dropped, owner)
	transactions, dropped = keepOwned(transactions, owner, func(t core.Transaction) int64 { return t.OwnerID })
	s.logDropped(ctx, "transaction", dropped, owner)
	goals, dropped = keepOwned(goals, owner, func(g core.Goal) int64 { return g.OwnerID })
	s.logDropped(ctx, "goal", dropped, owner)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sess.Valid(snap) {
		s.logger.InfoContext(ctx, "Discarded refresh for a previous session", applog.FieldOwnerID, owner)
		return core.ErrStaleSession
	}
	s.m = mirror{
		owner:        owner,
		epoch:        snap.Epoch,
		loaded:       true,
		categories:   categories,
		transactions: transactions,
		goals:        goals,
		investments:  investments,
	}
	s.logger.DebugContext(ctx, "Mirror refreshed",
		applog.FieldOwnerID, owner,
		"categories", len(categories),
		"transactions", len(transactions),
		"goals", len(goals),
		"investments", len(investments))
	return nil
}

// keepOwned drops records that belong to someone else. A zero owner means the
// backend did not say, which is accepted.
func keepOwned[T any](items []T, owner int64, ownerOf func(T) int64) (kept []T, dropped int) {
	kept = make([]T, 0, len(items))
	for _, it := range items {
		if o := ownerOf(it); o != 0 && o != owner {
			dropped++
			continue
		}
		kept = append(kept, it)
	}
	return kept, dropped
}

func (s *LedgerService) logDropped(ctx context.Context, resource string, n int, owner int64) {
	if n > 0 {
		s.logger.WarnContext(ctx, "Dropped records owned by another user",
			"resource", resource,
			"dropped", n,
			applog.FieldOwnerID, owner)
	}
}

// EnsureLoaded refreshes unless the mirror already belongs to the current session.
func (s *LedgerService) EnsureLoaded(ctx context.Context) error {
	snap, err := s.current()
	if err != nil {
		return err
	}
	if s.loadedFor(snap) {
		return nil
	}
	return s.Refresh(ctx)
}

func (s *LedgerService) loadedFor(snap session.Snapshot) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m.loaded && s.m.epoch == snap.Epoch
}

// view runs fn on the mirror if it belongs to the current session.
func (s *LedgerService) view(fn func(m *mirror)) {
	snap := s.sess.Snapshot()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !snap.Authenticated() || !s.m.loaded || s.m.epoch != snap.Epoch {
		return
	}
	fn(&s.m)
}

func (s *LedgerService) Categories() []core.Category {
	out := []core.Category{}
	s.view(func(m *mirror) { out = append(out, m.categories...) })
	return out
}

func (s *LedgerService) Transactions() []core.Transaction {
	out := []core.Transaction{}
	s.view(func(m *mirror) { out = append(out, m.transactions...) })
	return out
}

func (s *LedgerService) Goals() []core.Goal {
	out := []core.Goal{}
	s.view(func(m *mirror) { out = append(out, m.goals...) })
	return out
}

func (s *LedgerService) Investments() []core.Investment {
	out := []core.Investment{}
	s.view(func(m *mirror) { out = append(out, m.investments...) })
	return out
}

// apply patches the mirror after a successful backend call. The patch is skipped
// when the mirror was never loaded for this session; the next refresh brings the
// record in anyway.
func (s *LedgerService) apply(snap session.Snapshot, fn func(m *mirror)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sess.Valid(snap) {
		return core.ErrStaleSession
	}
	if s.m.loaded && s.m.epoch == snap.Epoch {
		fn(&s.m)
	}
	return nil
}

// requireOwned checks that the current owner's mirror holds the record with id.
// A loaded mirror that misses it is refreshed once before the id is refused, so
// ids the owner never listed do not reach the backend.
func (s *LedgerService) requireOwned(ctx context.Context, snap session.Snapshot, resource string, id int64, has func(m *mirror) bool) error {
	fresh := !s.loadedFor(snap)
	if err := s.EnsureLoaded(ctx); err != nil {
		return err
	}
	found, err := s.holds(snap, has)
	if err != nil || found {
		return err
	}
	if !fresh {
		if err := s.Refresh(ctx); err != nil {
			return err
		}
		if found, err = s.holds(snap, has); err != nil || found {
			return err
		}
	}
	return &core.NotFoundError{Resource: resource, ID: strconv.FormatInt(id, 10), Message: notFoundMessages[resource]}
}

func (s *LedgerService) holds(snap session.Snapshot, has func(m *mirror) bool) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.sess.Valid(snap) || !s.m.loaded || s.m.epoch != snap.Epoch {
		return false, core.ErrStaleSession
	}
	return has(&s.m), nil
}

var notFoundMessages = map[string]string{
	"transaction": "Transação não encontrada.",
	"goal":        "Meta não encontrada.",
}

func hasTransaction(id int64) func(m *mirror) bool {
	return func(m *mirror) bool {
		for _, t := range m.transactions {
			if t.ID == id {
				return true
			}
		}
		return false
	}
}

func hasGoal(id int64) func(m *mirror) bool {
	return func(m *mirror) bool {
		for _, g := range m.goals {
			if g.ID == id {
				return true
			}
		}
		return false
	}
}

// fail reports a failed mutation. Nothing in the mirror has been touched.
func (s *LedgerService) fail(ctx context.Context, op string, snap session.Snapshot, err error, fallback string) error {
	if errors.Is(err, core.ErrStaleSession) || !s.sess.Valid(snap) {
		return core.ErrStaleSession
	}
	fields := applog.NewFields().
		WithOperation(op).
		WithOwner(snap.OwnerID(), snap.Epoch).
		WithError(err)
	s.logger.WarnContext(ctx, "Mutation failed", fields.ToSlice()...)
	s.notifier.Notify(ctx, notify.Failure(titleFailure, core.UserMessage(err, fallback)))
	return err
}

func (s *LedgerService) succeed(ctx context.Context, message string, ev *amqp.LedgerEvent) {
	s.notifier.Notify(ctx, notify.Success(titleSuccess, message))
	s.publish(ctx, ev)
}

func (s *LedgerService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			"kind", ev.Kind,
			applog.FieldEntityID, ev.EntityID,
			applog.FieldError, err)
	}
}

func (s *LedgerService) CreateCategory(ctx context.Context, d core.CategoryDraft) (core.Category, error) {
	const fallback = "Não foi possível criar a categoria."
	snap, err := s.current()
	if err != nil {
		return core.Category{}, err
	}
	if err := d.Validate(); err != nil {
		return core.Category{}, s.fail(ctx, applog.OpCreate, snap, err, fallback)
	}

	c, err := s.gw.CreateCategory(ctx, snap.OwnerID(), d)
	if err != nil {
		return core.Category{}, s.fail(ctx, applog.OpCreate, snap, err, fallback)
	}
	if err := s.apply(snap, func(m *mirror) { m.categories = append(m.categories, c) }); err != nil {
		return core.Category{}, err
	}

	s.logger.InfoContext(ctx, "Category created", applog.FieldEntityID, c.ID, applog.FieldOwnerID, snap.OwnerID())
	s.succeed(ctx, "Categoria criada com sucesso.", amqp.NewLedgerEvent(amqp.CategoryCreated, snap.OwnerID(), c.ID))
	return c, nil
}

func (s *LedgerService) CreateTransaction(ctx context.Context, d core.TransactionDraft) (core.Transaction, error) {
	const fallback = "Não foi possível adicionar a transação."
	snap, err := s.current()
	if err != nil {
		return core.Transaction{}, err
	}
	if err := d.Validate(); err != nil {
		return core.Transaction{}, s.fail(ctx, applog.OpCreate, snap, err, fallback)
	}

	t, err := s.gw.CreateTransaction(ctx, snap.OwnerID(), d)
	if err != nil {
		return core.Transaction{}, s.fail(ctx, applog.OpCreate, snap, err, fallback)
	}
	if err := s.apply(snap, func(m *mirror) { m.transactions = append(m.transactions, t) }); err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction created",
		applog.FieldEntityID, t.ID,
		applog.FieldOwnerID, snap.OwnerID(),
		applog.FieldAmount, t.Amount.String())
	s.succeed(ctx, "Transação adicionada com sucesso.",
		amqp.NewLedgerEvent(amqp.TransactionCreated, snap.OwnerID(), t.ID).WithAmount(t.Amount))
	return t, nil
}

// UndoTransaction deletes the transaction on the backend and drops it locally.
func (s *LedgerService) UndoTransaction(ctx context.Context, id int64) error {
	const fallback = "Não foi possível desfazer a transação."
	snap, err := s.current()
	if err != nil {
		return err
	}
	if err := s.requireOwned(ctx, snap, "transaction", id, hasTransaction(id)); err != nil {
		if !core.IsNotFound(err) && !errors.Is(err, core.ErrStaleSession) {
			// refresh failures were already reported
			return err
		}
		return s.fail(ctx, applog.OpUndo, snap, err, fallback)
	}

	if err := s.gw.UndoTransaction(ctx, id); err != nil {
		return s.fail(ctx, applog.OpUndo, snap, err, fallback)
	}
	err = s.apply(snap, func(m *mirror) {
		kept := m.transactions[:0:0]
		for _, t := range m.transactions {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		m.transactions = kept
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Transaction undone",
		applog.NewFields().WithEntity(id).WithOwner(snap.OwnerID(), snap.Epoch).ToSlice()...)
	s.succeed(ctx, "Transação desfeita com sucesso.", amqp.NewLedgerEvent(amqp.TransactionUndone, snap.OwnerID(), id))
	return nil
}

func (s *LedgerService) CreateGoal(ctx context.Context, d core.GoalDraft) (core.Goal, error) {
	const fallback = "Não foi possível criar a meta."
	snap, err := s.current()
	if err != nil {
		return core.Goal{}, err
	}
	if err := d.Validate(); err != nil {
		return core.Goal{}, s.fail(ctx, applog.OpCreate, snap, err, fallback)
	}

	g, err := s.gw.CreateGoal(ctx, snap.OwnerID(), d)
	if err != nil {
		return core.Goal{}, s.fail(ctx, applog.OpCreate, snap, err, fallback)
	}
	if err := s.apply(snap, func(m *mirror) { m.goals = append(m.goals, g) }); err != nil {
		return core.Goal{}, err
	}

	s.logger.InfoContext(ctx, "Goal created", applog.FieldEntityID, g.ID, applog.FieldOwnerID, snap.OwnerID())
	s.succeed(ctx, "Meta criada com sucesso.",
		amqp.NewLedgerEvent(amqp.GoalCreated, snap.OwnerID(), g.ID).WithAmount(g.TargetAmount))
	return g, nil
}

// DepositToGoal adds amount to the goal's current amount. The local value may
// exceed the target; only the progress display is clamped.
func (s *LedgerService) DepositToGoal(ctx context.Context, id int64, amount decimal.Decimal) error {
	const fallback = "Não foi possível realizar o depósito."
	snap, err := s.current()
	if err != nil {
		return err
	}
	if err := core.ValidateDeposit(amount); err != nil {
		return s.fail(ctx, applog.OpDeposit, snap, err, fallback)
	}
	if err := s.requireOwned(ctx, snap, "goal", id, hasGoal(id)); err != nil {
		if !core.IsNotFound(err) && !errors.Is(err, core.ErrStaleSession) {
			return err
		}
		return s.fail(ctx, applog.OpDeposit, snap, err, fallback)
	}

	if err := s.gw.DepositToGoal(ctx, id, amount); err != nil {
		return s.fail(ctx, applog.OpDeposit, snap, err, fallback)
	}
	err = s.apply(snap, func(m *mirror) {
		for i := range m.goals {
			if m.goals[i].ID == id {
				m.goals[i].CurrentAmount = m.goals[i].CurrentAmount.Add(amount)
			}
		}
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Deposit applied",
		applog.FieldEntityID, id,
		applog.FieldOwnerID, snap.OwnerID(),
		applog.FieldAmount, amount.String())
	s.succeed(ctx, "Depósito realizado com sucesso.",
		amqp.NewLedgerEvent(amqp.GoalDeposited, snap.OwnerID(), id).WithAmount(amount))
	return nil
}

// GoalProgress asks the backend for its own view of one of the owner's goals.
// It does not touch the mirror.
func (s *LedgerService) GoalProgress(ctx context.Context, id int64) (core.GoalProgress, error) {
	snap, err := s.current()
	if err != nil {
		return core.GoalProgress{}, err
	}
	if err := s.requireOwned(ctx, snap, "goal", id, hasGoal(id)); err != nil {
		return core.GoalProgress{}, err
	}
	return s.gw.GoalProgress(ctx, id)
}
