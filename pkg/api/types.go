package api

// API request/response types for REST endpoints and WebSocket messages.
// Amounts travel as decimal strings in the asset's smallest unit; field
// names follow the engine's event vocabulary (tokenGet/amountGet/...).

// ==============================
// REST Response Types
// ==============================

// ConfigInfo is the engine's fixed construction parameters.
type ConfigInfo struct {
	FeeAccount string `json:"feeAccount"`
	FeePercent uint64 `json:"feePercent"`
}

// BalanceInfo is one ledger entry.
type BalanceInfo struct {
	Token   string `json:"token"`
	User    string `json:"user"`
	Balance string `json:"balance"`
}

// OrderInfo is an order plus its lifecycle status.
type OrderInfo struct {
	ID         uint64 `json:"id"`
	User       string `json:"user"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
	Timestamp  int64  `json:"timestamp"`
	Status     string `json:"status"` // "open", "filled", "cancelled"
}

// OrderBookView partitions open orders against the native-asset sentinel:
// buys want the token and give native value, sells the reverse.
type OrderBookView struct {
	Buys  []OrderInfo `json:"buys"`
	Sells []OrderInfo `json:"sells"`
}

// TradeInfo is one executed fill.
type TradeInfo struct {
	ID         uint64 `json:"id"`
	User       string `json:"user"` // order creator
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
	Taker      string `json:"taker"`
	Timestamp  int64  `json:"timestamp"`
}

// SubmitOrderResponse is returned from POST /orders.
type SubmitOrderResponse struct {
	ID uint64 `json:"id"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// REST Request Types
// ==============================

// TransferRequest is the payload for POST /deposits and POST /withdrawals.
// Token is the zero address for native value.
type TransferRequest struct {
	User   string `json:"user"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// SubmitOrderRequest is the payload for POST /orders.
type SubmitOrderRequest struct {
	User       string `json:"user"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
}

// OrderActionRequest is the payload for POST /orders/{id}/fill and /cancel.
type OrderActionRequest struct {
	User string `json:"user"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients to pick event channels.
// Channels are event kinds in lower case ("deposit", "trade", ...) or
// "events" for everything.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSEvent wraps one committed engine event for the feed. Seq is the commit
// sequence number; clients replay by seq to rebuild their views.
type WSEvent struct {
	Type string      `json:"type"` // "Deposit", "Withdraw", "Order", "Cancel", "Trade"
	Seq  uint64      `json:"seq"`
	Data interface{} `json:"data"`
}
