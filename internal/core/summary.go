package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategorySummary counts categories per entry type.
type CategorySummary struct {
	Income  int
	Expense int
	Total   int
}

// Balance returns total income minus total expense.
func Balance(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Type == Income {
			total = total.Add(tx.Amount)
		} else {
			total = total.Sub(tx.Amount)
		}
	}
	return total
}

func TotalIncome(txs []Transaction) decimal.Decimal {
	return sumOf(txs, Income)
}

func TotalExpense(txs []Transaction) decimal.Decimal {
	return sumOf(txs, Expense)
}

func sumOf(txs []Transaction, t EntryType) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Type == t {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// Recent returns the n most recent transactions, newest first. Ties keep their
// input order. The input slice is not modified.
func Recent(txs []Transaction, n int) []Transaction {
	if n <= 0 || len(txs) == 0 {
		return []Transaction{}
	}
	sorted := make([]Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date.Time)
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// FindCategory looks a category up by id.
func FindCategory(categories []Category, id int64) (Category, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// CategoriesOfType keeps input order.
func CategoriesOfType(categories []Category, t EntryType) []Category {
	out := make([]Category, 0, len(categories))
	for _, c := range categories {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

func SummarizeCategories(categories []Category) CategorySummary {
	var s CategorySummary
	for _, c := range categories {
		switch c.Type {
		case Income:
			s.Income++
		case Expense:
			s.Expense++
		}
	}
	s.Total = len(categories)
	return s
}
