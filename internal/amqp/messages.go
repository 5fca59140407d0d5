package amqp

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind names a mutation that was applied to the ledger.
type EventKind string

const (
	CategoryCreated    EventKind = "category.created"
	TransactionCreated EventKind = "transaction.created"
	TransactionUndone  EventKind = "transaction.undone"
	GoalCreated        EventKind = "goal.created"
	GoalDeposited      EventKind = "goal.deposited"
)

// LedgerEvent is published after a mutation succeeded on the backend and was
// applied locally. Consumers use it for auditing, not as a source of truth.
type LedgerEvent struct {
	Kind      EventKind        `json:"kind"`
	OwnerID   int64            `json:"owner_id"`
	EntityID  int64            `json:"entity_id"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func NewLedgerEvent(kind EventKind, ownerID, entityID int64) *LedgerEvent {
	return &LedgerEvent{
		Kind:      kind,
		OwnerID:   ownerID,
		EntityID:  entityID,
		Timestamp: time.Now(),
	}
}

// WithAmount attaches the monetary amount involved, if any.
func (e *LedgerEvent) WithAmount(d decimal.Decimal) *LedgerEvent {
	e.Amount = &d
	return e
}

// RoutingKey is "ledger.<kind>", e.g. ledger.goal.deposited.
func (e *LedgerEvent) RoutingKey() string {
	return "ledger." + string(e.Kind)
}

// ToJSON converts the message to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON creates an event from JSON bytes
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
