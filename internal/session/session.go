// Package session tracks who is signed in. A Manager is created once at startup
// and handed to every component that needs the current owner.
package session

import (
	"context"
	"slices"
	"sync"

	"carteira/internal/core"
	"carteira/internal/ledger"
	applog "carteira/internal/log"
	"carteira/internal/notify"
)

type State int

const (
	Unauthenticated State = iota
	Resolving
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	}
	return "unauthenticated"
}

// Snapshot is a consistent view of the session at one point in time. Epoch
// changes on every transition, so a snapshot taken before a network call tells
// whether its result still belongs to the current identity.
type Snapshot struct {
	State State
	User  core.User
	Epoch uint64
}

func (s Snapshot) Authenticated() bool { return s.State == Authenticated }

// OwnerID is zero unless authenticated.
func (s Snapshot) OwnerID() int64 {
	if s.State != Authenticated {
		return 0
	}
	return s.User.ID
}

type Manager struct {
	auth     ledger.Authenticator
	store    IdentityStore
	notifier notify.Notifier
	logger   *applog.Logger

	mu        sync.RWMutex
	state     State
	user      core.User
	epoch     uint64
	listeners []func(Snapshot)
}

func NewManager(auth ledger.Authenticator, store IdentityStore, notifier notify.Notifier, logger *applog.Logger) *Manager {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Manager{
		auth:     auth,
		store:    store,
		notifier: notifier,
		logger:   logger.WithComponent(applog.ComponentSession),
	}
}

// OnChange registers fn to run after every transition, outside the lock.
func (m *Manager) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, User: m.user, Epoch: m.epoch}
}

// Valid reports whether s still describes the current identity.
func (m *Manager) Valid(s Snapshot) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return s.Epoch == m.epoch
}

// transition must be called with m.mu held. It returns what to broadcast.
func (m *Manager) transition(state State, user core.User) (Snapshot, []func(Snapshot)) {
	m.state = state
	m.user = user
	m.epoch++
	snap := Snapshot{State: m.state, User: m.user, Epoch: m.epoch}
	return snap, slices.Clone(m.listeners)
}

func broadcast(snap Snapshot, listeners []func(Snapshot)) {
	for _, fn := range listeners {
		fn(snap)
	}
}

// Resume restores the identity persisted by a previous run. Any failure while
// resolving it clears the stored id and leaves the session Anonymous without
// notifying the user.
func (m *Manager) Resume(ctx context.Context) Snapshot {
	id, ok, err := m.store.Load(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to read stored identity", applog.FieldError, err)
	}
	if err != nil || !ok {
		m.mu.Lock()
		snap, ls := m.transition(Anonymous, core.User{})
		m.mu.Unlock()
		broadcast(snap, ls)
		return snap
	}

	m.mu.Lock()
	resolving, ls := m.transition(Resolving, core.User{})
	m.mu.Unlock()
	broadcast(resolving, ls)

	user, err := m.auth.FetchUser(ctx, id)

	m.mu.Lock()
	if m.epoch != resolving.Epoch {
		// someone logged in or out meanwhile; theirs wins
		snap := Snapshot{State: m.state, User: m.user, Epoch: m.epoch}
		m.mu.Unlock()
		m.logger.InfoContext(ctx, "Discarded stale identity resolution", applog.FieldOwnerID, id)
		return snap
	}
	var (
		snap Snapshot
		cerr error
	)
	if err != nil {
		// cleared under the lock so a concurrent Login cannot have its id erased
		cerr = m.store.Clear(ctx)
		snap, ls = m.transition(Anonymous, core.User{})
	} else {
		snap, ls = m.transition(Authenticated, user)
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.WarnContext(ctx, "Stored identity could not be resolved, starting anonymous",
			applog.FieldOperation, applog.OpResume,
			applog.FieldOwnerID, id,
			applog.FieldError, err)
		if cerr != nil {
			m.logger.WarnContext(ctx, "Failed to clear stored identity", applog.FieldError, cerr)
		}
	} else {
		m.logger.InfoContext(ctx, "Session resumed", applog.FieldOwnerID, user.ID)
	}
	broadcast(snap, ls)
	return snap
}

// Login authenticates against the backend. On failure the state is left as it
// was and the user is notified.
func (m *Manager) Login(ctx context.Context, email, password string) (core.User, error) {
	if err := core.ValidateCredentials(email, password); err != nil {
		m.notifier.Notify(ctx, notify.Failure("Erro no login", core.UserMessage(err, "Email ou senha incorretos.")))
		return core.User{}, err
	}

	user, err := m.auth.Login(ctx, email, password)
	if err != nil {
		m.logger.WarnContext(ctx, "Login failed", applog.FieldOperation, applog.OpLogin, applog.FieldError, err)
		m.notifier.Notify(ctx, notify.Failure("Erro no login", core.UserMessage(err, "Email ou senha incorretos.")))
		return core.User{}, err
	}

	m.mu.Lock()
	serr := m.store.Save(ctx, user.ID)
	snap, ls := m.transition(Authenticated, user)
	m.mu.Unlock()
	broadcast(snap, ls)

	if serr != nil {
		m.logger.WarnContext(ctx, "Failed to persist identity, session will not survive a restart",
			applog.FieldOwnerID, user.ID,
			applog.FieldError, serr)
	}

	m.logger.InfoContext(ctx, "User logged in", applog.FieldOwnerID, user.ID)
	m.notifier.Notify(ctx, notify.Success("Login realizado com sucesso!", "Bem-vindo(a), "+user.Name+"!"))
	return user, nil
}

// Register creates an account without signing in.
func (m *Manager) Register(ctx context.Context, name, email, password string) error {
	if err := core.ValidateRegistration(name, email, password); err != nil {
		m.notifier.Notify(ctx, notify.Failure("Erro no cadastro", core.UserMessage(err, "Erro ao criar conta.")))
		return err
	}
	if err := m.auth.Register(ctx, name, email, password); err != nil {
		m.logger.WarnContext(ctx, "Registration failed", applog.FieldOperation, applog.OpRegister, applog.FieldError, err)
		m.notifier.Notify(ctx, notify.Failure("Erro no cadastro", core.UserMessage(err, "Erro ao criar conta.")))
		return err
	}
	m.notifier.Notify(ctx, notify.Success("Conta criada com sucesso!", "Agora você pode fazer login."))
	return nil
}

// Logout forgets the identity locally. It never calls the backend.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	cerr := m.store.Clear(ctx)
	prev := m.user.ID
	snap, ls := m.transition(Anonymous, core.User{})
	m.mu.Unlock()
	broadcast(snap, ls)

	if cerr != nil {
		m.logger.WarnContext(ctx, "Failed to clear stored identity", applog.FieldError, cerr)
	}

	m.logger.InfoContext(ctx, "User logged out", applog.FieldOperation, applog.OpLogout, applog.FieldOwnerID, prev)
	m.notifier.Notify(ctx, notify.Info("Logout realizado", "Você foi desconectado com sucesso."))
}
