package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/events"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/exchange"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/token"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/util"
)

var (
	deployer   = common.HexToAddress("0xDE00000000000000000000000000000000000001")
	feeAccount = common.HexToAddress("0xFEE0000000000000000000000000000000000000")
	user1      = common.HexToAddress("0xAA00000000000000000000000000000000000001")
	user2      = common.HexToAddress("0xBB00000000000000000000000000000000000002")
)

func newTestServer(t *testing.T) (*Server, *token.Token, *token.Token) {
	t.Helper()
	log := events.NewLog(util.NewFakeClock(time.Unix(1_700_000_000, 0)))

	token1 := token.New("Dapp University", "DAPP", 1_000_000, deployer, log)
	token2 := token.New("Mock Dai", "mDAI", 1_000_000, deployer, log)

	ex := exchange.New(feeAccount, 10, log, util.RealClock{}, nil)
	ex.RegisterToken(token1)
	ex.RegisterToken(token2)

	if err := token1.Transfer(deployer, user1, token.Units(100)); err != nil {
		t.Fatalf("fund user1: %v", err)
	}
	return NewServer(ex, log, nil), token1, token2
}

// do issues a request against the routed handler and decodes the JSON body.
func do(t *testing.T, s *Server, method, path string, payload, out any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal %s %s: %v", method, path, err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return rec
}

func TestServerHealthAndInfo(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, "GET", "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}

	var info ExchangeInfo
	do(t, s, "GET", "/api/v1/exchange", nil, &info)
	if info.FeePercent != 10 {
		t.Errorf("feePercent = %d, want 10", info.FeePercent)
	}
	if info.FeeAccount != feeAccount.Hex() {
		t.Errorf("feeAccount = %s, want %s", info.FeeAccount, feeAccount.Hex())
	}

	var toks []TokenInfo
	do(t, s, "GET", "/api/v1/tokens", nil, &toks)
	if len(toks) != 2 {
		t.Errorf("tokens = %d, want 2", len(toks))
	}
}

// Drives approve -> deposit -> makeOrder -> cancel over REST, checking
// status codes and the error mapping for a foreign cancel attempt.
func TestServerOrderFlow(t *testing.T) {
	s, token1, token2 := newTestServer(t)
	var info ExchangeInfo
	do(t, s, "GET", "/api/v1/exchange", nil, &info)

	amount := token.Units(10).String()
	rec := do(t, s, "POST", "/api/v1/approvals", ApproveRequest{
		Owner: user1.Hex(), Spender: info.Address, Token: token1.Address.Hex(), Amount: amount,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, s, "POST", "/api/v1/deposits", CustodyRequest{
		User: user1.Hex(), Token: token1.Address.Hex(), Amount: amount,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d: %s", rec.Code, rec.Body)
	}

	var balance BalanceInfo
	do(t, s, "GET", "/api/v1/accounts/"+user1.Hex()+"/balances/"+token1.Address.Hex(), nil, &balance)
	if balance.Custody != amount {
		t.Errorf("custody = %s, want %s", balance.Custody, amount)
	}

	var made MakeOrderResponse
	rec = do(t, s, "POST", "/api/v1/orders", MakeOrderRequest{
		Creator:    user1.Hex(),
		TokenGet:   token2.Address.Hex(),
		AmountGet:  token.Units(1).String(),
		TokenGive:  token1.Address.Hex(),
		AmountGive: token.Units(1).String(),
	}, &made)
	if rec.Code != http.StatusOK || made.OrderID != 1 {
		t.Fatalf("makeOrder status = %d, id = %d: %s", rec.Code, made.OrderID, rec.Body)
	}

	var open []OrderInfo
	do(t, s, "GET", "/api/v1/orders?status=open&creator="+user1.Hex(), nil, &open)
	if len(open) != 1 || open[0].ID != 1 {
		t.Errorf("open orders for user1 = %+v, want order 1", open)
	}

	// A foreign caller may not cancel; the creator may.
	rec = do(t, s, "POST", "/api/v1/orders/1/cancel", OrderActionRequest{Caller: user2.Hex()}, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign cancel status = %d, want 403", rec.Code)
	}
	rec = do(t, s, "POST", "/api/v1/orders/1/cancel", OrderActionRequest{Caller: user1.Hex()}, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("cancel status = %d: %s", rec.Code, rec.Body)
	}

	do(t, s, "GET", "/api/v1/orders?status=open&creator="+user1.Hex(), nil, &open)
	if len(open) != 0 {
		t.Errorf("open orders after cancel = %+v, want empty", open)
	}

	var all []OrderInfo
	do(t, s, "GET", "/api/v1/orders", nil, &all)
	if len(all) != 1 || all[0].Status != "cancelled" {
		t.Errorf("all orders = %+v, want one cancelled order", all)
	}
}

func TestServerErrorMapping(t *testing.T) {
	s, token1, _ := newTestServer(t)

	rec := do(t, s, "GET", "/api/v1/orders/99", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown order status = %d, want 404", rec.Code)
	}

	rec = do(t, s, "POST", "/api/v1/orders/99/fill", OrderActionRequest{Caller: user2.Hex()}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("fill unknown order status = %d, want 404", rec.Code)
	}

	// Deposit without approval surfaces the allowance failure.
	rec = do(t, s, "POST", "/api/v1/deposits", CustodyRequest{
		User: user2.Hex(), Token: token1.Address.Hex(), Amount: token.Units(1).String(),
	}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unapproved deposit status = %d, want 422", rec.Code)
	}

	rec = do(t, s, "POST", "/api/v1/transfers", TransferRequest{
		From: user1.Hex(), To: user2.Hex(), Token: "not-an-address", Amount: "1",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad token address status = %d, want 400", rec.Code)
	}
}
