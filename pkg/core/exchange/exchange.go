// Package exchange implements the custody ledger and order book: escrowed
// per-token user balances, order lifecycle, and fee-taking settlement.
// Operations are all-or-nothing; every precondition is checked before any
// state is touched, and exactly one event is appended per success.
package exchange

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/events"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/token"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/util"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderNotFound       = errors.New("order not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrOrderNotOpen        = errors.New("order not open")
	ErrUnknownToken        = errors.New("unknown token")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Exchange holds tokens in escrow for users and runs the order book.
// FeeAccount and FeePercent are fixed at creation. The exchange itself
// owns a ledger account (Address) that escrowed tokens sit under.
type Exchange struct {
	Address    common.Address
	feeAccount common.Address
	feePercent int64

	mu       sync.RWMutex
	tokens   map[common.Address]*token.Token
	balances map[common.Address]map[common.Address]*big.Int // token -> user -> escrowed amount
	orders   map[uint64]*Order
	orderSeq uint64

	log    *events.Log
	clock  util.Clock
	logger *zap.SugaredLogger
}

// New creates an exchange. The exchange address is derived from the fee
// account so repeated initializations are deterministic.
func New(feeAccount common.Address, feePercent int64, log *events.Log, clock util.Clock, logger *zap.SugaredLogger) *Exchange {
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	h := crypto.Keccak256([]byte("exchange:"), feeAccount.Bytes())
	return &Exchange{
		Address:    common.BytesToAddress(h[12:]),
		feeAccount: feeAccount,
		feePercent: feePercent,
		tokens:     make(map[common.Address]*token.Token),
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		orders:     make(map[uint64]*Order),
		log:        log,
		clock:      clock,
		logger:     logger,
	}
}

func (e *Exchange) FeeAccount() common.Address { return e.feeAccount }
func (e *Exchange) FeePercent() int64          { return e.feePercent }

// RegisterToken makes a token depositable on this exchange.
func (e *Exchange) RegisterToken(t *token.Token) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokens[t.Address] = t
	e.logger.Infow("token_registered", "symbol", t.Symbol, "address", t.Address.Hex())
}

// Token returns a registered token by address.
func (e *Exchange) Token(addr common.Address) (*token.Token, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tokens[addr]
	return t, ok
}

// Tokens returns all registered tokens.
func (e *Exchange) Tokens() []*token.Token {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*token.Token, 0, len(e.tokens))
	for _, t := range e.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Fee computes the trading fee: floor(amount × percent / 100).
func Fee(amount *big.Int, percent int64) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(percent))
	return fee.Div(fee, big.NewInt(100))
}

// DepositToken pulls amount from the user's token balance into the
// exchange's escrow account and credits the user's custody balance.
// The user must have approved the exchange address as spender first.
func (e *Exchange) DepositToken(tokenAddr, user common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tok, ok := e.tokens[tokenAddr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, tokenAddr.Hex())
	}

	// The pull commits (and emits Transfer) only if allowance and balance
	// both hold, so a failure here leaves custody untouched.
	if err := tok.TransferFrom(e.Address, user, e.Address, amount); err != nil {
		return err
	}

	newBal := new(big.Int).Add(e.custody(tokenAddr, user), amount)
	e.setCustody(tokenAddr, user, newBal)

	e.log.Append(events.KindDeposit, events.CustodyData{
		Token:   tokenAddr,
		User:    user,
		Amount:  new(big.Int).Set(amount),
		Balance: new(big.Int).Set(newBal),
	})
	e.logger.Infow("deposit", "token", tok.Symbol, "user", user.Hex(), "amount", amount.String())
	return nil
}

// WithdrawToken pushes amount back from escrow to the user's token balance.
func (e *Exchange) WithdrawToken(tokenAddr, user common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tok, ok := e.tokens[tokenAddr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, tokenAddr.Hex())
	}
	bal := e.custody(tokenAddr, user)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: custody %s < %s", ErrInsufficientBalance, bal, amount)
	}

	if err := tok.Transfer(e.Address, user, amount); err != nil {
		return err
	}

	newBal := new(big.Int).Sub(bal, amount)
	e.setCustody(tokenAddr, user, newBal)

	e.log.Append(events.KindWithdraw, events.CustodyData{
		Token:   tokenAddr,
		User:    user,
		Amount:  new(big.Int).Set(amount),
		Balance: new(big.Int).Set(newBal),
	})
	e.logger.Infow("withdraw", "token", tok.Symbol, "user", user.Hex(), "amount", amount.String())
	return nil
}

// BalanceOf returns the user's custody balance for a token. Pure read.
func (e *Exchange) BalanceOf(tokenAddr, user common.Address) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.custody(tokenAddr, user))
}

// MakeOrder creates an Open order. The creator must already hold at least
// amountGive of tokenGive in custody. Returns the assigned order id.
func (e *Exchange) MakeOrder(creator, tokenGet common.Address, amountGet *big.Int, tokenGive common.Address, amountGive *big.Int) (uint64, error) {
	if err := checkAmount(amountGet); err != nil {
		return 0, err
	}
	if err := checkAmount(amountGive); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	bal := e.custody(tokenGive, creator)
	if bal.Cmp(amountGive) < 0 {
		return 0, fmt.Errorf("%w: custody %s < %s", ErrInsufficientBalance, bal, amountGive)
	}

	e.orderSeq++
	o := &Order{
		ID:         e.orderSeq,
		Creator:    creator,
		TokenGet:   tokenGet,
		AmountGet:  new(big.Int).Set(amountGet),
		TokenGive:  tokenGive,
		AmountGive: new(big.Int).Set(amountGive),
		CreatedAt:  e.clock.Now().UnixMilli(),
		Status:     Open,
	}
	e.orders[o.ID] = o

	e.log.Append(events.KindOrder, orderData(o))
	e.logger.Infow("order_created", "id", o.ID, "creator", creator.Hex())
	return o.ID, nil
}

// CancelOrder moves an Open order to Cancelled. Only the creator may cancel.
func (e *Exchange) CancelOrder(caller common.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	if o.Creator != caller {
		return fmt.Errorf("%w: %s is not the creator of order %d", ErrUnauthorized, caller.Hex(), id)
	}
	if !o.IsOpen() {
		return fmt.Errorf("%w: order %d is %s", ErrOrderNotOpen, id, o.Status)
	}

	o.Status = Cancelled
	data := orderData(o)
	data.Timestamp = e.clock.Now().UnixMilli()
	e.log.Append(events.KindCancel, data)
	e.logger.Infow("order_cancelled", "id", id)
	return nil
}

// FillOrder settles an Open order against the filler's custody balances:
//
//	filler    -amountGet(tokenGet)          +amountGive(tokenGive)
//	creator   +amountGet-fee(tokenGet)      -amountGive(tokenGive)
//	feeAcct   +fee(tokenGet)
//
// where fee = floor(amountGet × feePercent / 100). All legs commit
// together or not at all.
func (e *Exchange) FillOrder(filler common.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	if !o.IsOpen() {
		return fmt.Errorf("%w: order %d is %s", ErrOrderNotOpen, id, o.Status)
	}

	fillerGet := e.custody(o.TokenGet, filler)
	if fillerGet.Cmp(o.AmountGet) < 0 {
		return fmt.Errorf("%w: filler custody %s < %s", ErrInsufficientBalance, fillerGet, o.AmountGet)
	}
	// The creator's escrow was checked at creation but may have been
	// withdrawn since; re-check so no balance can go negative.
	creatorGive := e.custody(o.TokenGive, o.Creator)
	if creatorGive.Cmp(o.AmountGive) < 0 {
		return fmt.Errorf("%w: creator custody %s < %s", ErrInsufficientBalance, creatorGive, o.AmountGive)
	}

	fee := Fee(o.AmountGet, e.feePercent)

	// All preconditions hold; commit every leg.
	e.setCustody(o.TokenGet, filler, new(big.Int).Sub(fillerGet, o.AmountGet))
	e.addCustody(o.TokenGet, o.Creator, new(big.Int).Sub(o.AmountGet, fee))
	e.addCustody(o.TokenGet, e.feeAccount, fee)
	e.setCustody(o.TokenGive, o.Creator, new(big.Int).Sub(e.custody(o.TokenGive, o.Creator), o.AmountGive))
	e.addCustody(o.TokenGive, filler, o.AmountGive)
	o.Status = Filled

	e.log.Append(events.KindTrade, events.TradeData{
		ID:         o.ID,
		User:       filler,
		TokenGet:   o.TokenGet,
		AmountGet:  new(big.Int).Set(o.AmountGet),
		TokenGive:  o.TokenGive,
		AmountGive: new(big.Int).Set(o.AmountGive),
		Creator:    o.Creator,
		Timestamp:  e.clock.Now().UnixMilli(),
	})
	e.logger.Infow("order_filled", "id", id, "filler", filler.Hex(), "fee", fee.String())
	return nil
}

// OrderCount returns the number of orders ever created, which equals the
// last assigned id.
func (e *Exchange) OrderCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orderSeq
}

// Order returns a copy of the order with the given id.
func (e *Exchange) Order(id uint64) (Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders[id]
	if !ok {
		return Order{}, false
	}
	return copyOrder(o), true
}

// Orders returns copies of all orders ever created, in id order.
// Terminal orders are retained forever for the audit trail.
func (e *Exchange) Orders() []Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenOrders returns copies of all Open orders in id order.
func (e *Exchange) OpenOrders() []Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Order
	for _, o := range e.orders {
		if o.IsOpen() {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OrdersFor returns copies of all orders created by user, in id order.
func (e *Exchange) OrdersFor(user common.Address) []Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Order
	for _, o := range e.orders {
		if o.Creator == user {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenOrdersFor returns copies of user's Open orders, in id order.
func (e *Exchange) OpenOrdersFor(user common.Address) []Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Order
	for _, o := range e.orders {
		if o.Creator == user && o.IsOpen() {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// custody returns the stored escrow balance. Caller holds mu.
func (e *Exchange) custody(tokenAddr, user common.Address) *big.Int {
	if row, ok := e.balances[tokenAddr]; ok {
		if b, ok := row[user]; ok {
			return b
		}
	}
	return new(big.Int)
}

func (e *Exchange) setCustody(tokenAddr, user common.Address, amount *big.Int) {
	row := e.balances[tokenAddr]
	if row == nil {
		row = make(map[common.Address]*big.Int)
		e.balances[tokenAddr] = row
	}
	row[user] = amount
}

func (e *Exchange) addCustody(tokenAddr, user common.Address, amount *big.Int) {
	e.setCustody(tokenAddr, user, new(big.Int).Add(e.custody(tokenAddr, user), amount))
}

func orderData(o *Order) events.OrderData {
	return events.OrderData{
		ID:         o.ID,
		User:       o.Creator,
		TokenGet:   o.TokenGet,
		AmountGet:  new(big.Int).Set(o.AmountGet),
		TokenGive:  o.TokenGive,
		AmountGive: new(big.Int).Set(o.AmountGive),
		Timestamp:  o.CreatedAt,
	}
}

func copyOrder(o *Order) Order {
	c := *o
	c.AmountGet = new(big.Int).Set(o.AmountGet)
	c.AmountGive = new(big.Int).Set(o.AmountGive)
	return c
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}
