package api

// Request / response DTOs for the REST surface. Amounts travel as decimal
// strings in base units (18 decimals) since they exceed int64.

type TokenInfo struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	Address     string `json:"address"`
	TotalSupply string `json:"totalSupply"`
}

type ExchangeInfo struct {
	Address    string `json:"address"`
	FeeAccount string `json:"feeAccount"`
	FeePercent int64  `json:"feePercent"`
	OrderCount uint64 `json:"orderCount"`
}

type BalanceInfo struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Wallet  string `json:"wallet"`  // token-ledger balance
	Custody string `json:"custody"` // escrowed on the exchange
}

type OrderInfo struct {
	ID         uint64 `json:"id"`
	Creator    string `json:"creator"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
	CreatedAt  int64  `json:"createdAt"`
	Status     string `json:"status"`
}

type TransferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type ApproveRequest struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

type CustodyRequest struct {
	User   string `json:"user"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type MakeOrderRequest struct {
	Creator    string `json:"creator"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
}

type OrderActionRequest struct {
	Caller string `json:"caller"`
}

type MakeOrderResponse struct {
	Status  string `json:"status"`
	OrderID uint64 `json:"orderId"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest is the client -> server subscription message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
