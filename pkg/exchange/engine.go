package exchange

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/ujinpark/dexledger/pkg/util"
)

// TokenLedger is the external token contract surface the engine needs for
// custody transfers. A failed transfer aborts the surrounding deposit or
// withdraw with no engine mutation.
type TokenLedger interface {
	// TransferFrom moves amount from `from` to `to`, spending the
	// allowance `from` granted to `spender`.
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	// Transfer moves amount out of `from` directly.
	Transfer(from, to common.Address, amount *uint256.Int) error
}

// BaseLedger is the platform's native-coin book. Optional: without one the
// engine treats native value as attached to the call, like a payable entry
// point.
type BaseLedger interface {
	Transfer(from, to common.Address, amount *uint256.Int) error
}

// CommitStore journals committed operations. The engine treats it as
// write-behind: journal failures are logged, never surfaced to callers.
type CommitStore interface {
	SaveCommit(c Commit) error
}

// BalanceEntry is one post-operation ledger value inside a Commit.
type BalanceEntry struct {
	Asset  Asset
	User   common.Address
	Amount *uint256.Int
}

// Commit is the durable record of one committed operation.
type Commit struct {
	Event      Event
	Balances   []BalanceEntry
	Order      *Order
	OrderCount uint64
	Seq        uint64
}

// State is a full engine snapshot, used to rebuild on restart.
type State struct {
	Balances   []BalanceEntry
	Orders     []Order
	Filled     []uint64
	Cancelled  []uint64
	OrderCount uint64
	Seq        uint64
}

// Engine is the custodial exchange ledger: it is the sole writer of all
// balances and order records. Every state-changing operation runs as one
// atomic transaction under a single writer lock and emits exactly one event
// on success; failures mutate nothing and emit nothing.
type Engine struct {
	mu sync.Mutex

	feeAccount common.Address
	feePercent uint64
	address    common.Address // custody account in external ledgers

	ledger     *Ledger
	orders     map[uint64]Order
	filled     map[uint64]bool
	cancelled  map[uint64]bool
	orderCount uint64

	seq    uint64
	events []Event
	sinks  []Sink

	base   BaseLedger
	tokens map[Asset]TokenLedger

	store  CommitStore
	clock  util.Clock
	logger *zap.SugaredLogger

	// Self-fills are permitted by default. The policy lives behind this
	// single guard so it can flip without touching the rest of the fill
	// path.
	rejectSelfFill bool
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithBaseLedger attaches the native-coin book the engine pulls deposits
// from and pays withdrawals into.
func WithBaseLedger(b BaseLedger) Option { return func(e *Engine) { e.base = b } }

// WithStore attaches a commit journal.
func WithStore(s CommitStore) Option { return func(e *Engine) { e.store = s } }

// WithSink subscribes a sink to committed events.
func WithSink(s Sink) Option { return func(e *Engine) { e.sinks = append(e.sinks, s) } }

// WithClock overrides the wall clock (tests).
func WithClock(c util.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLogger attaches a structured logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(e *Engine) { e.logger = l } }

// WithAddress sets the engine's custody address in external ledgers.
func WithAddress(addr common.Address) Option { return func(e *Engine) { e.address = addr } }

// RejectSelfFills makes FillOrder refuse takers filling their own orders.
func RejectSelfFills() Option { return func(e *Engine) { e.rejectSelfFill = true } }

// NewEngine creates an engine. Fee account and fee percent are fixed for
// the engine's lifetime; feePercent is in whole percent units.
func NewEngine(feeAccount common.Address, feePercent uint64, opts ...Option) *Engine {
	e := &Engine{
		feeAccount: feeAccount,
		feePercent: feePercent,
		ledger:     NewLedger(),
		orders:     make(map[uint64]Order),
		filled:     make(map[uint64]bool),
		cancelled:  make(map[uint64]bool),
		tokens:     make(map[Asset]TokenLedger),
		clock:      util.RealClock{},
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterToken wires the external ledger for a non-native asset. Deposits
// and withdrawals of unregistered assets fail with ErrExternalTransfer.
func (e *Engine) RegisterToken(asset Asset, ledger TokenLedger) error {
	if IsNative(asset) {
		return ErrInvalidAsset
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokens[asset] = ledger
	return nil
}

// Subscribe adds a sink after construction. Events committed before the
// subscription are available through Events().
func (e *Engine) Subscribe(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// FeeAccount returns the fixed fee-collection account.
func (e *Engine) FeeAccount() common.Address { return e.feeAccount }

// FeePercent returns the fixed taker fee in percent units.
func (e *Engine) FeePercent() uint64 { return e.feePercent }

// Address returns the engine's custody address in external ledgers.
func (e *Engine) Address() common.Address { return e.address }

// BalanceOf returns the ledger balance of (asset, user). Read-only.
func (e *Engine) BalanceOf(asset Asset, user common.Address) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Balance(asset, user)
}

// OrderCount returns the number of orders ever created.
func (e *Engine) OrderCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orderCount
}

// Order returns the order with the given id.
func (e *Engine) Order(id uint64) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o.clone(), nil
}

// OrderFilled reports whether the order reached the Filled terminal state.
func (e *Engine) OrderFilled(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filled[id]
}

// OrderCancelled reports whether the order reached the Cancelled terminal state.
func (e *Engine) OrderCancelled(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled[id]
}

// OrderStatusOf returns the lifecycle state of an order.
func (e *Engine) OrderStatusOf(id uint64) (OrderStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id == 0 || id > e.orderCount {
		return OrderOpen, ErrNotFound
	}
	switch {
	case e.filled[id]:
		return OrderFilled, nil
	case e.cancelled[id]:
		return OrderCancelled, nil
	default:
		return OrderOpen, nil
	}
}

// OpenOrders returns every order that is neither filled nor cancelled,
// in creation order. Read-side view for the order book.
func (e *Engine) OpenOrders() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Order, 0, len(e.orders))
	for id := uint64(1); id <= e.orderCount; id++ {
		if e.filled[id] || e.cancelled[id] {
			continue
		}
		out = append(out, e.orders[id].clone())
	}
	return out
}

// Balances calls fn for every non-zero ledger entry. Read-side view for
// custody reconciliation and state export.
func (e *Engine) Balances(fn func(asset Asset, user common.Address, amount *uint256.Int)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.Entries(fn)
}

// Events returns a snapshot of the committed event log, in commit order.
func (e *Engine) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// DepositNative credits attached native value to the caller's ledger entry.
// With a base ledger wired, the value is first pulled from the caller's
// native holding into engine custody; a failed pull aborts the deposit.
func (e *Engine) DepositNative(user common.Address, value *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ledger.canCredit(NativeAsset, user, value) {
		return ErrOverflow
	}
	if e.base != nil {
		if err := e.base.Transfer(user, e.address, value); err != nil {
			return fmt.Errorf("%w: %v", ErrExternalTransfer, err)
		}
	}
	balance, err := e.ledger.credit(NativeAsset, user, value)
	if err != nil {
		return err
	}
	e.commitDeposit(NativeAsset, user, value, balance)
	return nil
}

// DepositToken pulls amount of a non-native asset from the caller's token
// holding into engine custody and credits the ledger. The caller must have
// approved the engine beforehand; without sufficient allowance or token
// balance the deposit fails atomically.
func (e *Engine) DepositToken(user common.Address, asset Asset, amount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if IsNative(asset) {
		return ErrInvalidAsset
	}
	if !e.ledger.canCredit(asset, user, amount) {
		return ErrOverflow
	}
	tok, ok := e.tokens[asset]
	if !ok {
		return fmt.Errorf("%w: unregistered token %s", ErrExternalTransfer, asset.Hex())
	}
	if err := tok.TransferFrom(e.address, user, e.address, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrExternalTransfer, err)
	}
	balance, err := e.ledger.credit(asset, user, amount)
	if err != nil {
		return err
	}
	e.commitDeposit(asset, user, amount, balance)
	return nil
}

// WithdrawNative debits the caller's native entry and pays the value out of
// engine custody. Balance check and payout are one transaction.
func (e *Engine) WithdrawNative(user common.Address, amount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ledger.Balance(NativeAsset, user).Lt(amount) {
		return ErrInsufficientFunds
	}
	if e.base != nil {
		if err := e.base.Transfer(e.address, user, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrExternalTransfer, err)
		}
	}
	balance, err := e.ledger.debit(NativeAsset, user, amount)
	if err != nil {
		return err
	}
	e.commitWithdraw(NativeAsset, user, amount, balance)
	return nil
}

// WithdrawToken debits the caller's entry for a non-native asset and
// instructs the token ledger to pay the amount out of engine custody.
// A token-level rejection aborts the whole withdrawal.
func (e *Engine) WithdrawToken(user common.Address, asset Asset, amount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if IsNative(asset) {
		return ErrInvalidAsset
	}
	if e.ledger.Balance(asset, user).Lt(amount) {
		return ErrInsufficientFunds
	}
	tok, ok := e.tokens[asset]
	if !ok {
		return fmt.Errorf("%w: unregistered token %s", ErrExternalTransfer, asset.Hex())
	}
	if err := tok.Transfer(e.address, user, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrExternalTransfer, err)
	}
	balance, err := e.ledger.debit(asset, user, amount)
	if err != nil {
		return err
	}
	e.commitWithdraw(asset, user, amount, balance)
	return nil
}

// MakeOrder creates an open order and returns its id. No funds are checked
// or reserved here; the creator's TokenGive balance is only enforced when
// the order fills.
func (e *Engine) MakeOrder(user common.Address, tokenGet Asset, amountGet *uint256.Int, tokenGive Asset, amountGive *uint256.Int) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.orderCount++
	order := Order{
		ID:         e.orderCount,
		User:       user,
		TokenGet:   tokenGet,
		AmountGet:  new(uint256.Int).Set(amountGet),
		TokenGive:  tokenGive,
		AmountGive: new(uint256.Int).Set(amountGive),
		Timestamp:  e.clock.Now().UnixMilli(),
	}
	e.orders[order.ID] = order

	e.seq++
	ev := OrderEvent{Seq: e.seq, Order: order.clone()}
	snapshot := order.clone()
	e.journal(Commit{Event: ev, Order: &snapshot, OrderCount: e.orderCount, Seq: e.seq})
	e.emit(ev)
	e.logger.Infow("order_created",
		"id", order.ID, "user", user.Hex(),
		"token_get", tokenGet.Hex(), "amount_get", amountGet.String(),
		"token_give", tokenGive.Hex(), "amount_give", amountGive.String())
	return order.ID, nil
}

// FillOrder executes an order all-or-nothing with the caller as taker.
//
// The taker is debited AmountGet plus the fee in TokenGet; the creator
// receives AmountGet with no fee deduction. The creator is debited the full
// AmountGive in TokenGive, which moves to the taker untouched. The fee,
// AmountGet × feePercent / 100 rounded down, is credited to the fee account
// in TokenGet. Any insufficient balance or arithmetic overflow aborts the
// whole fill with no mutation.
func (e *Engine) FillOrder(taker common.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id == 0 || id > e.orderCount {
		return ErrNotFound
	}
	if e.filled[id] || e.cancelled[id] {
		return ErrAlreadyFinal
	}
	order := e.orders[id]
	if e.rejectSelfFill && taker == order.User {
		return ErrUnauthorized
	}

	fee, carry := new(uint256.Int).MulOverflow(order.AmountGet, uint256.NewInt(e.feePercent))
	if carry {
		return ErrOverflow
	}
	fee.Div(fee, uint256.NewInt(100))
	takerDebit, carry := new(uint256.Int).AddOverflow(order.AmountGet, fee)
	if carry {
		return ErrOverflow
	}

	// Snapshot the affected entries, then apply the five legs in order:
	// any failed leg restores the snapshot.
	undo := e.snapshotBalances(
		BalanceEntry{order.TokenGet, taker, nil},
		BalanceEntry{order.TokenGet, order.User, nil},
		BalanceEntry{order.TokenGet, e.feeAccount, nil},
		BalanceEntry{order.TokenGive, order.User, nil},
		BalanceEntry{order.TokenGive, taker, nil},
	)
	err := e.trade(order, taker, takerDebit, fee)
	if err != nil {
		e.restoreBalances(undo)
		return err
	}

	e.filled[id] = true
	e.seq++
	ev := TradeEvent{
		Seq:        e.seq,
		ID:         order.ID,
		User:       order.User,
		TokenGet:   order.TokenGet,
		AmountGet:  new(uint256.Int).Set(order.AmountGet),
		TokenGive:  order.TokenGive,
		AmountGive: new(uint256.Int).Set(order.AmountGive),
		Taker:      taker,
		Timestamp:  e.clock.Now().UnixMilli(),
	}
	e.journal(Commit{
		Event: ev,
		Balances: []BalanceEntry{
			{order.TokenGet, taker, e.ledger.Balance(order.TokenGet, taker)},
			{order.TokenGet, order.User, e.ledger.Balance(order.TokenGet, order.User)},
			{order.TokenGet, e.feeAccount, e.ledger.Balance(order.TokenGet, e.feeAccount)},
			{order.TokenGive, order.User, e.ledger.Balance(order.TokenGive, order.User)},
			{order.TokenGive, taker, e.ledger.Balance(order.TokenGive, taker)},
		},
		OrderCount: e.orderCount,
		Seq:        e.seq,
	})
	e.emit(ev)
	e.logger.Infow("order_filled",
		"id", order.ID, "maker", order.User.Hex(), "taker", taker.Hex(),
		"fee", fee.String())
	return nil
}

// trade applies the five balance legs of a fill, taker debit first.
func (e *Engine) trade(order Order, taker common.Address, takerDebit, fee *uint256.Int) error {
	if _, err := e.ledger.debit(order.TokenGet, taker, takerDebit); err != nil {
		return err
	}
	if _, err := e.ledger.credit(order.TokenGet, order.User, order.AmountGet); err != nil {
		return err
	}
	if _, err := e.ledger.credit(order.TokenGet, e.feeAccount, fee); err != nil {
		return err
	}
	if _, err := e.ledger.debit(order.TokenGive, order.User, order.AmountGive); err != nil {
		return err
	}
	if _, err := e.ledger.credit(order.TokenGive, taker, order.AmountGive); err != nil {
		return err
	}
	return nil
}

// CancelOrder marks an open order cancelled. Only the creator may cancel;
// no balances move because nothing was reserved at creation.
func (e *Engine) CancelOrder(user common.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id == 0 || id > e.orderCount {
		return ErrNotFound
	}
	order := e.orders[id]
	if order.User != user {
		return ErrUnauthorized
	}
	if e.filled[id] || e.cancelled[id] {
		return ErrAlreadyFinal
	}

	e.cancelled[id] = true
	e.seq++
	ev := CancelEvent{Seq: e.seq, Order: order.clone(), Timestamp: e.clock.Now().UnixMilli()}
	e.journal(Commit{Event: ev, OrderCount: e.orderCount, Seq: e.seq})
	e.emit(ev)
	e.logger.Infow("order_cancelled", "id", id, "user", user.Hex())
	return nil
}

// Restore rebuilds engine state from a snapshot. Must be called before the
// engine starts serving; it does not emit events.
func (e *Engine) Restore(st State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, b := range st.Balances {
		e.ledger.Set(b.Asset, b.User, b.Amount)
	}
	for _, o := range st.Orders {
		e.orders[o.ID] = o.clone()
	}
	for _, id := range st.Filled {
		e.filled[id] = true
	}
	for _, id := range st.Cancelled {
		e.cancelled[id] = true
	}
	e.orderCount = st.OrderCount
	e.seq = st.Seq
}

// commitDeposit finalizes a deposit: journal, event, log.
func (e *Engine) commitDeposit(asset Asset, user common.Address, amount, balance *uint256.Int) {
	e.seq++
	ev := DepositEvent{Seq: e.seq, Token: asset, User: user, Amount: new(uint256.Int).Set(amount), Balance: balance}
	e.journal(Commit{
		Event:      ev,
		Balances:   []BalanceEntry{{asset, user, new(uint256.Int).Set(balance)}},
		OrderCount: e.orderCount,
		Seq:        e.seq,
	})
	e.emit(ev)
	e.logger.Infow("deposit", "token", asset.Hex(), "user", user.Hex(),
		"amount", amount.String(), "balance", balance.String())
}

// commitWithdraw finalizes a withdrawal: journal, event, log.
func (e *Engine) commitWithdraw(asset Asset, user common.Address, amount, balance *uint256.Int) {
	e.seq++
	ev := WithdrawEvent{Seq: e.seq, Token: asset, User: user, Amount: new(uint256.Int).Set(amount), Balance: balance}
	e.journal(Commit{
		Event:      ev,
		Balances:   []BalanceEntry{{asset, user, new(uint256.Int).Set(balance)}},
		OrderCount: e.orderCount,
		Seq:        e.seq,
	})
	e.emit(ev)
	e.logger.Infow("withdraw", "token", asset.Hex(), "user", user.Hex(),
		"amount", amount.String(), "balance", balance.String())
}

// emit appends to the event log and publishes to sinks, all under the
// engine lock so subscribers observe commit order exactly.
func (e *Engine) emit(ev Event) {
	e.events = append(e.events, ev)
	for _, s := range e.sinks {
		s.Publish(ev)
	}
}

// journal hands the commit to the store, write-behind.
func (e *Engine) journal(c Commit) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveCommit(c); err != nil {
		e.logger.Errorw("journal_write_failed", "seq", c.Seq, "err", err)
	}
}

// snapshotBalances copies the current values of the given entries.
func (e *Engine) snapshotBalances(entries ...BalanceEntry) []BalanceEntry {
	out := make([]BalanceEntry, len(entries))
	for i, entry := range entries {
		out[i] = BalanceEntry{entry.Asset, entry.User, e.ledger.Balance(entry.Asset, entry.User)}
	}
	return out
}

// restoreBalances rolls the given entries back to their snapshot values.
func (e *Engine) restoreBalances(entries []BalanceEntry) {
	for _, entry := range entries {
		e.ledger.Set(entry.Asset, entry.User, entry.Amount)
	}
}
