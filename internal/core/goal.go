package core

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ProgressPercent returns current/target as a percentage clamped to [0, 100].
// A goal without a positive target counts as complete.
func ProgressPercent(g Goal) float64 {
	if !g.TargetAmount.IsPositive() {
		return 100
	}
	pct := g.CurrentAmount.Div(g.TargetAmount).Mul(hundred)
	if pct.GreaterThan(hundred) {
		return 100
	}
	if pct.IsNegative() {
		return 0
	}
	return pct.InexactFloat64()
}

// DaysRemaining is the signed number of days until the deadline, rounded up.
// Negative values mean the deadline has passed.
func DaysRemaining(g Goal, today time.Time) int {
	deadline := time.Date(g.Deadline.Year(), g.Deadline.Month(), g.Deadline.Day(), 0, 0, 0, 0, today.Location())
	diff := deadline.Sub(today)
	return int(math.Ceil(diff.Hours() / 24))
}

// Remaining is the amount still missing to reach the target, never negative.
func (g Goal) Remaining() decimal.Decimal {
	rest := g.TargetAmount.Sub(g.CurrentAmount)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

func (g Goal) Completed() bool {
	return ProgressPercent(g) >= 100
}

func (g Goal) Overdue(today time.Time) bool {
	return DaysRemaining(g, today) < 0
}
