package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind discriminates the five engine event types.
type EventKind string

const (
	EventDeposit  EventKind = "Deposit"
	EventWithdraw EventKind = "Withdraw"
	EventOrder    EventKind = "Order"
	EventCancel   EventKind = "Cancel"
	EventTrade    EventKind = "Trade"
)

// Event is emitted exactly once per committed state-changing operation.
// Seq is assigned in commit order with no gaps, so subscribers can replay
// the full history and reconstruct order-book and trade views incrementally.
type Event interface {
	Kind() EventKind
	Sequence() uint64
}

// DepositEvent records a credit to (Token, User). Balance is the ledger
// balance after the credit.
type DepositEvent struct {
	Seq     uint64
	Token   Asset
	User    common.Address
	Amount  *uint256.Int
	Balance *uint256.Int
}

func (e DepositEvent) Kind() EventKind  { return EventDeposit }
func (e DepositEvent) Sequence() uint64 { return e.Seq }

// WithdrawEvent records a debit from (Token, User). Balance is the ledger
// balance after the debit.
type WithdrawEvent struct {
	Seq     uint64
	Token   Asset
	User    common.Address
	Amount  *uint256.Int
	Balance *uint256.Int
}

func (e WithdrawEvent) Kind() EventKind  { return EventWithdraw }
func (e WithdrawEvent) Sequence() uint64 { return e.Seq }

// OrderEvent carries the full tuple of a newly created order.
type OrderEvent struct {
	Seq   uint64
	Order Order
}

func (e OrderEvent) Kind() EventKind  { return EventOrder }
func (e OrderEvent) Sequence() uint64 { return e.Seq }

// CancelEvent carries the full tuple of a cancelled order.
type CancelEvent struct {
	Seq       uint64
	Order     Order
	Timestamp int64 // cancellation time, not order creation time
}

func (e CancelEvent) Kind() EventKind  { return EventCancel }
func (e CancelEvent) Sequence() uint64 { return e.Seq }

// TradeEvent records an all-or-nothing fill. User is the order creator,
// Taker the filling account. Amounts are the order's original legs; the
// taker additionally paid the fee in TokenGet on top of AmountGet.
type TradeEvent struct {
	Seq        uint64
	ID         uint64
	User       common.Address
	TokenGet   Asset
	AmountGet  *uint256.Int
	TokenGive  Asset
	AmountGive *uint256.Int
	Taker      common.Address
	Timestamp  int64
}

func (e TradeEvent) Kind() EventKind  { return EventTrade }
func (e TradeEvent) Sequence() uint64 { return e.Seq }

// Sink receives committed events. Publish is invoked synchronously under
// the engine's write lock, in commit order, exactly once per event; sinks
// that do slow work should hand off to their own goroutine.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Publish(ev Event) { f(ev) }
