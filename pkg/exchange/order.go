package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Order is a resting all-or-nothing order: the creator wants AmountGet of
// TokenGet and gives up AmountGive of TokenGive. Nothing is reserved at
// creation; the creator's TokenGive balance is only debited at fill time.
type Order struct {
	ID         uint64
	User       common.Address // creator
	TokenGet   Asset
	AmountGet  *uint256.Int
	TokenGive  Asset
	AmountGive *uint256.Int
	Timestamp  int64 // unix milliseconds, display only
}

// OrderStatus is the lifecycle state of an order. Filled and Cancelled are
// terminal; there is no transition out of either.
type OrderStatus int8

const (
	OrderOpen OrderStatus = iota
	OrderFilled
	OrderCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// clone returns a deep copy so callers can't mutate engine-owned amounts.
func (o Order) clone() Order {
	o.AmountGet = new(uint256.Int).Set(o.AmountGet)
	o.AmountGive = new(uint256.Int).Set(o.AmountGive)
	return o
}
