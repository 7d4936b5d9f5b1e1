// Package token implements a fungible-token ledger: per-account balances,
// spender allowances, and the transfer/approve/transferFrom operations.
// Every operation validates all preconditions before touching state, so a
// failed call leaves the ledger exactly as it was.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/events"
)

var (
	ErrInvalidRecipient      = errors.New("invalid recipient")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")
)

// DefaultDecimals is the fixed decimal precision of every token.
const DefaultDecimals = 18

// Token is one fungible token type. The full supply is minted to the
// deployer at creation and conserved forever: every balance mutation is
// a paired debit and credit.
type Token struct {
	Name     string
	Symbol   string
	Decimals uint8
	Address  common.Address

	mu          sync.RWMutex
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int

	log *events.Log
}

// Units converts a whole-token count into base units (n × 10^18),
// the same scaling the original deployment applies to supplies.
func Units(n int64) *big.Int {
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(DefaultDecimals)), nil)
	return new(big.Int).Mul(big.NewInt(n), exp)
}

// New deploys a token, minting supply whole tokens to the deployer.
// The token address is derived from the symbol so deployments are
// deterministic and replayable.
func New(name, symbol string, supply int64, deployer common.Address, log *events.Log) *Token {
	total := Units(supply)
	t := &Token{
		Name:        name,
		Symbol:      symbol,
		Decimals:    DefaultDecimals,
		Address:     deriveAddress("token", symbol),
		totalSupply: total,
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		log:         log,
	}
	t.balances[deployer] = new(big.Int).Set(total)
	return t
}

// deriveAddress builds a deterministic contract-style address from a
// namespace and a seed string.
func deriveAddress(namespace, seed string) common.Address {
	h := crypto.Keccak256([]byte(namespace + ":" + seed))
	return common.BytesToAddress(h[12:])
}

func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.totalSupply)
}

// BalanceOf returns the balance of an account. Pure read.
func (t *Token) BalanceOf(account common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.balance(account))
}

// Allowance returns what spender may move out of owner's balance. Pure read.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.allowance(owner, spender))
}

// Transfer moves amount from the caller's balance to another account.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.transfer(from, to, amount); err != nil {
		return err
	}
	t.log.Append(events.KindTransfer, events.TransferData{
		Token:  t.Address,
		From:   from,
		To:     to,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// Approve sets (not increments) the allowance of spender over owner's balance.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if spender == (common.Address{}) {
		return fmt.Errorf("%w: zero address spender", ErrInvalidRecipient)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	row := t.allowances[owner]
	if row == nil {
		row = make(map[common.Address]*big.Int)
		t.allowances[owner] = row
	}
	row[spender] = new(big.Int).Set(amount)

	t.log.Append(events.KindApproval, events.ApprovalData{
		Token:   t.Address,
		Owner:   owner,
		Spender: spender,
		Amount:  new(big.Int).Set(amount),
	})
	return nil
}

// TransferFrom moves amount from an owner's balance on the strength of a
// prior approval, decrementing the spender's allowance by exactly amount.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowance(from, spender)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: allowance %s < %s", ErrInsufficientAllowance, allowed, amount)
	}
	if err := t.transfer(from, to, amount); err != nil {
		return err
	}
	// Commit the allowance decrement only after the transfer succeeded.
	t.allowances[from][spender] = new(big.Int).Sub(allowed, amount)

	t.log.Append(events.KindTransfer, events.TransferData{
		Token:  t.Address,
		From:   from,
		To:     to,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// transfer validates and applies a balance move. Caller holds mu.
func (t *Token) transfer(from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%w: zero address", ErrInvalidRecipient)
	}
	bal := t.balance(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), bal, amount)
	}
	t.balances[from] = new(big.Int).Sub(bal, amount)
	t.balances[to] = new(big.Int).Add(t.balance(to), amount)
	return nil
}

func (t *Token) balance(a common.Address) *big.Int {
	if b, ok := t.balances[a]; ok {
		return b
	}
	return new(big.Int)
}

func (t *Token) allowance(owner, spender common.Address) *big.Int {
	if row, ok := t.allowances[owner]; ok {
		if a, ok := row[spender]; ok {
			return a
		}
	}
	return new(big.Int)
}

// Validate checks the conservation invariant: the sum of all balances
// must equal the total supply, and no balance may be negative.
func (t *Token) Validate() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sum := new(big.Int)
	for addr, bal := range t.balances {
		if bal.Sign() < 0 {
			return fmt.Errorf("negative balance for %s: %s", addr.Hex(), bal)
		}
		sum.Add(sum, bal)
	}
	if sum.Cmp(t.totalSupply) != 0 {
		return fmt.Errorf("balance sum %s != total supply %s", sum, t.totalSupply)
	}
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}
