package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"carteira/internal/core"
)

// Ports for the remote ledger backend.
type (
	Authenticator interface {
		Register(ctx context.Context, name, email, password string) error
		Login(ctx context.Context, email, password string) (core.User, error)
		// FetchUser resolves a stored identifier into a user record.
		FetchUser(ctx context.Context, id int64) (core.User, error)
	}

	CategoryStore interface {
		ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error)
		CreateCategory(ctx context.Context, ownerID int64, d core.CategoryDraft) (core.Category, error)
	}

	TransactionStore interface {
		ListTransactions(ctx context.Context, ownerID int64) ([]core.Transaction, error)
		CreateTransaction(ctx context.Context, ownerID int64, d core.TransactionDraft) (core.Transaction, error)
		UndoTransaction(ctx context.Context, id int64) error
	}

	GoalStore interface {
		ListGoals(ctx context.Context, ownerID int64) ([]core.Goal, error)
		CreateGoal(ctx context.Context, ownerID int64, d core.GoalDraft) (core.Goal, error)
		DepositToGoal(ctx context.Context, id int64, amount decimal.Decimal) error
		GoalProgress(ctx context.Context, id int64) (core.GoalProgress, error)
	}

	// InvestmentCatalog is global, not owner-scoped.
	InvestmentCatalog interface {
		ListInvestments(ctx context.Context) ([]core.Investment, error)
	}

	Gateway interface {
		Authenticator
		CategoryStore
		TransactionStore
		GoalStore
		InvestmentCatalog
	}
)
