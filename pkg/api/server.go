package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ujinpark/dexledger/pkg/exchange"
)

// Server exposes the exchange engine over REST and streams committed
// events over WebSocket. It is the contact surface for the UI layer; all
// authoritative state lives in the engine.
type Server struct {
	engine *exchange.Engine
	router *mux.Router
	hub    *Hub
	logger *zap.SugaredLogger
}

// NewServer creates the API server around an engine.
func NewServer(engine *exchange.Engine, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/balances/{token}/{user}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/orderbook", s.handleGetOrderBook).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")

	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdrawals", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/fill", s.handleFillOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// EventSink returns the sink that forwards committed engine events to the
// WebSocket feed, preserving commit order.
func (s *Server) EventSink() exchange.Sink {
	return exchange.SinkFunc(func(ev exchange.Event) {
		s.hub.BroadcastEvent(WSEvent{
			Type: string(ev.Kind()),
			Seq:  ev.Sequence(),
			Data: ev,
		})
	})
}

// Start runs the hub and serves HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.logger.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, ConfigInfo{
		FeeAccount: s.engine.FeeAccount().Hex(),
		FeePercent: s.engine.FeePercent(),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tokenStr, userStr := vars["token"], vars["user"]
	if !common.IsHexAddress(tokenStr) || !common.IsHexAddress(userStr) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	token := common.HexToAddress(tokenStr)
	user := common.HexToAddress(userStr)

	respondJSON(w, BalanceInfo{
		Token:   token.Hex(),
		User:    user.Hex(),
		Balance: s.engine.BalanceOf(token, user).Dec(),
	})
}

func (s *Server) handleGetOrderBook(w http.ResponseWriter, r *http.Request) {
	view := OrderBookView{Buys: []OrderInfo{}, Sells: []OrderInfo{}}
	for _, o := range s.engine.OpenOrders() {
		info := orderInfo(o, exchange.OrderOpen)
		if exchange.IsNative(o.TokenGive) {
			view.Buys = append(view.Buys, info)
		} else {
			view.Sells = append(view.Sells, info)
		}
	}
	respondJSON(w, view)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	order, err := s.engine.Order(id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	status, _ := s.engine.OrderStatusOf(id)
	respondJSON(w, orderInfo(order, status))
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	trades := []TradeInfo{}
	for _, ev := range s.engine.Events() {
		t, ok := ev.(exchange.TradeEvent)
		if !ok {
			continue
		}
		trades = append(trades, TradeInfo{
			ID:         t.ID,
			User:       t.User.Hex(),
			TokenGet:   t.TokenGet.Hex(),
			AmountGet:  t.AmountGet.Dec(),
			TokenGive:  t.TokenGive.Hex(),
			AmountGive: t.AmountGive.Dec(),
			Taker:      t.Taker.Hex(),
			Timestamp:  t.Timestamp,
		})
	}
	respondJSON(w, trades)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	user, token, amount, ok := decodeTransfer(w, r)
	if !ok {
		return
	}
	var err error
	if exchange.IsNative(token) {
		err = s.engine.DepositNative(user, amount)
	} else {
		err = s.engine.DepositToken(user, token, amount)
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{
		Token:   token.Hex(),
		User:    user.Hex(),
		Balance: s.engine.BalanceOf(token, user).Dec(),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	user, token, amount, ok := decodeTransfer(w, r)
	if !ok {
		return
	}
	var err error
	if exchange.IsNative(token) {
		err = s.engine.WithdrawNative(user, amount)
	} else {
		err = s.engine.WithdrawToken(user, token, amount)
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{
		Token:   token.Hex(),
		User:    user.Hex(),
		Balance: s.engine.BalanceOf(token, user).Dec(),
	})
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.User) || !common.IsHexAddress(req.TokenGet) || !common.IsHexAddress(req.TokenGive) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	amountGet, err := uint256.FromDecimal(req.AmountGet)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amountGet", err.Error())
		return
	}
	amountGive, err := uint256.FromDecimal(req.AmountGive)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amountGive", err.Error())
		return
	}

	id, err := s.engine.MakeOrder(
		common.HexToAddress(req.User),
		common.HexToAddress(req.TokenGet), amountGet,
		common.HexToAddress(req.TokenGive), amountGive,
	)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, SubmitOrderResponse{ID: id})
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	user, ok := decodeOrderAction(w, r)
	if !ok {
		return
	}
	if err := s.engine.FillOrder(user, id); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "filled"})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	user, ok := decodeOrderAction(w, r)
	if !ok {
		return
	}
	if err := s.engine.CancelOrder(user, id); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func orderInfo(o exchange.Order, status exchange.OrderStatus) OrderInfo {
	return OrderInfo{
		ID:         o.ID,
		User:       o.User.Hex(),
		TokenGet:   o.TokenGet.Hex(),
		AmountGet:  o.AmountGet.Dec(),
		TokenGive:  o.TokenGive.Hex(),
		AmountGive: o.AmountGive.Dec(),
		Timestamp:  o.Timestamp,
		Status:     status.String(),
	}
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", idStr)
		return 0, false
	}
	return id, true
}

func decodeTransfer(w http.ResponseWriter, r *http.Request) (user common.Address, token common.Address, amount *uint256.Int, ok bool) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.User) || !common.IsHexAddress(req.Token) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	amt, err := uint256.FromDecimal(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	return common.HexToAddress(req.User), common.HexToAddress(req.Token), amt, true
}

func decodeOrderAction(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	var req OrderActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return common.Address{}, false
	}
	if !common.IsHexAddress(req.User) {
		respondError(w, http.StatusBadRequest, "invalid user address", "")
		return common.Address{}, false
	}
	return common.HexToAddress(req.User), true
}

// respondEngineError maps the engine's error taxonomy to HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, exchange.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, exchange.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, exchange.ErrAlreadyFinal):
		status = http.StatusConflict
	case errors.Is(err, exchange.ErrInsufficientFunds),
		errors.Is(err, exchange.ErrExternalTransfer):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, exchange.ErrInvalidAsset),
		errors.Is(err, exchange.ErrOverflow):
		status = http.StatusBadRequest
	}
	respondError(w, status, err.Error(), "")
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   strings.TrimPrefix(errMsg, "exchange: "),
		Message: message,
	})
}
