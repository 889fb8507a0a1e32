package exchange

import "errors"

// Every failed operation leaves the engine untouched: no balance movement,
// no order mutation, no event. Callers decide whether to resubmit.
var (
	// ErrNotFound is returned for an order id outside [1, OrderCount()].
	ErrNotFound = errors.New("exchange: order not found")

	// ErrUnauthorized is returned when a caller other than the order's
	// creator attempts to cancel it.
	ErrUnauthorized = errors.New("exchange: caller is not the order creator")

	// ErrAlreadyFinal is returned for a fill or cancel against an order
	// that is already Filled or Cancelled.
	ErrAlreadyFinal = errors.New("exchange: order already filled or cancelled")

	// ErrInsufficientFunds is returned when a debit exceeds the ledger
	// balance of the debited account.
	ErrInsufficientFunds = errors.New("exchange: insufficient funds")

	// ErrInvalidAsset is returned when the native sentinel is passed
	// through the token deposit/withdraw path.
	ErrInvalidAsset = errors.New("exchange: invalid asset")

	// ErrOverflow is returned when a fee or balance computation would
	// wrap the 256-bit integer width.
	ErrOverflow = errors.New("exchange: arithmetic overflow")

	// ErrExternalTransfer is returned when the token ledger or base
	// ledger rejects the custody transfer backing a deposit or withdraw.
	ErrExternalTransfer = errors.New("exchange: external transfer failed")
)
