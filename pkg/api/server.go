package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/events"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/exchange"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/token"
)

// Server exposes the exchange core over REST and streams committed
// events over WebSocket. There is no signature verification: the caller
// address rides in the request body, as in any unsigned dev deployment.
type Server struct {
	ex     *exchange.Exchange
	log    *events.Log
	router *mux.Router
	hub    *Hub
	logger *zap.SugaredLogger
}

// NewServer wires the API to the core and subscribes the websocket hub
// to the event log.
func NewServer(ex *exchange.Exchange, log *events.Log, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		ex:     ex,
		log:    log,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		logger: logger,
	}
	s.setupRoutes()

	// Every committed event goes to the firehose channel, and order
	// lifecycle / trade events additionally to their own channels.
	log.Subscribe(func(e events.Event) {
		s.hub.BroadcastToChannel("events", e)
		switch e.Kind {
		case events.KindOrder, events.KindCancel:
			s.hub.BroadcastToChannel("orders", e)
		case events.KindTrade:
			s.hub.BroadcastToChannel("trades", e)
		}
	})

	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Queries
	api.HandleFunc("/tokens", s.handleGetTokens).Methods("GET")
	api.HandleFunc("/exchange", s.handleGetExchange).Methods("GET")
	api.HandleFunc("/accounts/{address}/balances/{token}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/events", s.handleGetEvents).Methods("GET")

	// Operations
	api.HandleFunc("/transfers", s.handleTransfer).Methods("POST")
	api.HandleFunc("/approvals", s.handleApprove).Methods("POST")
	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdrawals", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/orders", s.handleMakeOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/fill", s.handleFillOrder).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the websocket hub and serves HTTP until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	s.logger.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	toks := s.ex.Tokens()
	out := make([]TokenInfo, len(toks))
	for i, t := range toks {
		out[i] = TokenInfo{
			Name:        t.Name,
			Symbol:      t.Symbol,
			Decimals:    t.Decimals,
			Address:     t.Address.Hex(),
			TotalSupply: t.TotalSupply().String(),
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, ExchangeInfo{
		Address:    s.ex.Address.Hex(),
		FeeAccount: s.ex.FeeAccount().Hex(),
		FeePercent: s.ex.FeePercent(),
		OrderCount: s.ex.OrderCount(),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	account, ok := parseAddress(w, vars["address"])
	if !ok {
		return
	}
	tokenAddr, ok := parseAddress(w, vars["token"])
	if !ok {
		return
	}

	tok, ok := s.ex.Token(tokenAddr)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown token", tokenAddr.Hex())
		return
	}

	respondJSON(w, BalanceInfo{
		Token:   tokenAddr.Hex(),
		Account: account.Hex(),
		Wallet:  tok.BalanceOf(account).String(),
		Custody: s.ex.BalanceOf(tokenAddr, account).String(),
	})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	var orders []exchange.Order
	openOnly := r.URL.Query().Get("status") == "open"
	switch {
	case r.URL.Query().Get("creator") != "":
		creator, ok := parseAddress(w, r.URL.Query().Get("creator"))
		if !ok {
			return
		}
		if openOnly {
			orders = s.ex.OpenOrdersFor(creator)
		} else {
			orders = s.ex.OrdersFor(creator)
		}
	case openOnly:
		orders = s.ex.OpenOrders()
	default:
		orders = s.ex.Orders()
	}

	out := make([]OrderInfo, len(orders))
	for i := range orders {
		out[i] = orderInfo(&orders[i])
	}
	respondJSON(w, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	o, found := s.ex.Order(id)
	if !found {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	respondJSON(w, orderInfo(&o))
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if kind := r.URL.Query().Get("kind"); kind != "" {
		respondJSON(w, s.log.ByKind(events.Kind(kind)))
		return
	}
	respondJSON(w, s.log.All())
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	from, ok := parseAddress(w, req.From)
	if !ok {
		return
	}
	to, ok := parseAddress(w, req.To)
	if !ok {
		return
	}
	tok, ok := s.resolveToken(w, req.Token)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	if err := tok.Transfer(from, to, amount); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	owner, ok := parseAddress(w, req.Owner)
	if !ok {
		return
	}
	spender, ok := parseAddress(w, req.Spender)
	if !ok {
		return
	}
	tok, ok := s.resolveToken(w, req.Token)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	if err := tok.Approve(owner, spender, amount); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleCustody(w, r, s.ex.DepositToken)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleCustody(w, r, s.ex.WithdrawToken)
}

func (s *Server) handleCustody(w http.ResponseWriter, r *http.Request, op func(common.Address, common.Address, *big.Int) error) {
	var req CustodyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, ok := parseAddress(w, req.User)
	if !ok {
		return
	}
	tokenAddr, ok := parseAddress(w, req.Token)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	if err := op(tokenAddr, user, amount); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleMakeOrder(w http.ResponseWriter, r *http.Request) {
	var req MakeOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	creator, ok := parseAddress(w, req.Creator)
	if !ok {
		return
	}
	tokenGet, ok := parseAddress(w, req.TokenGet)
	if !ok {
		return
	}
	tokenGive, ok := parseAddress(w, req.TokenGive)
	if !ok {
		return
	}
	amountGet, ok := parseAmount(w, req.AmountGet)
	if !ok {
		return
	}
	amountGive, ok := parseAmount(w, req.AmountGive)
	if !ok {
		return
	}

	id, err := s.ex.MakeOrder(creator, tokenGet, amountGet, tokenGive, amountGive)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, MakeOrderResponse{Status: "ok", OrderID: id})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	s.handleOrderAction(w, r, s.ex.CancelOrder)
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	s.handleOrderAction(w, r, s.ex.FillOrder)
}

func (s *Server) handleOrderAction(w http.ResponseWriter, r *http.Request, op func(common.Address, uint64) error) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	var req OrderActionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	if err := op(caller, id); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) resolveToken(w http.ResponseWriter, addr string) (*token.Token, bool) {
	tokenAddr, ok := parseAddress(w, addr)
	if !ok {
		return nil, false
	}
	tok, found := s.ex.Token(tokenAddr)
	if !found {
		respondError(w, http.StatusNotFound, "unknown token", tokenAddr.Hex())
		return nil, false
	}
	return tok, true
}

func orderInfo(o *exchange.Order) OrderInfo {
	return OrderInfo{
		ID:         o.ID,
		Creator:    o.Creator.Hex(),
		TokenGet:   o.TokenGet.Hex(),
		AmountGet:  o.AmountGet.String(),
		TokenGive:  o.TokenGive.Hex(),
		AmountGive: o.AmountGive.String(),
		CreatedAt:  o.CreatedAt,
		Status:     o.Status.String(),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func parseAddress(w http.ResponseWriter, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid address", s)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseAmount(w http.ResponseWriter, s string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		respondError(w, http.StatusBadRequest, "invalid amount", s)
		return nil, false
	}
	return amount, true
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", mux.Vars(r)["id"])
		return 0, false
	}
	return id, true
}

// respondCoreError maps the core's error taxonomy onto HTTP statuses.
func respondCoreError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, exchange.ErrOrderNotFound), errors.Is(err, exchange.ErrUnknownToken):
		status = http.StatusNotFound
	case errors.Is(err, exchange.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, exchange.ErrOrderNotOpen):
		status = http.StatusConflict
	case errors.Is(err, exchange.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		status = http.StatusUnprocessableEntity
	}
	respondError(w, status, "operation failed", err.Error())
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: detail})
}
