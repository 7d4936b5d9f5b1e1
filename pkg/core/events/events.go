package events

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/apiorno/blockchain-developer-bootcamp/pkg/util"
)

// Kind identifies the operation that produced an event.
type Kind string

const (
	KindTransfer Kind = "Transfer"
	KindApproval Kind = "Approval"
	KindDeposit  Kind = "Deposit"
	KindWithdraw Kind = "Withdraw"
	KindOrder    Kind = "Order"
	KindCancel   Kind = "Cancel"
	KindTrade    Kind = "Trade"
)

// Event is one immutable entry in the audit trail. Seq is 1-based and
// strictly increasing; Time is Unix milliseconds at append.
type Event struct {
	Seq  uint64 `json:"seq"`
	Kind Kind   `json:"kind"`
	Time int64  `json:"time"`
	Data any    `json:"data"`
}

// TransferData is emitted by token transfers, delegated or direct.
type TransferData struct {
	Token  common.Address `json:"token"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"value"`
}

// ApprovalData is emitted when an owner sets a spender allowance.
type ApprovalData struct {
	Token   common.Address `json:"token"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *big.Int       `json:"value"`
}

// CustodyData is emitted on deposits and withdrawals. Balance is the
// user's custody balance after the operation.
type CustodyData struct {
	Token   common.Address `json:"token"`
	User    common.Address `json:"user"`
	Amount  *big.Int       `json:"amount"`
	Balance *big.Int       `json:"balance"`
}

// OrderData is emitted on order creation and cancellation.
type OrderData struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *big.Int       `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *big.Int       `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
}

// TradeData is emitted on a fill. User is the filler, Creator the maker.
type TradeData struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *big.Int       `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *big.Int       `json:"amountGive"`
	Creator    common.Address `json:"creator"`
	Timestamp  int64          `json:"timestamp"`
}

// Sink receives every event immediately after it is appended.
type Sink func(Event)

// Log is the append-only event log. Entries are never rewritten or
// removed; sinks observe them in sequence order. Writers are serialized
// by the core's operation lock, so sink fan-out happens in append order.
type Log struct {
	mu      sync.RWMutex
	clock   util.Clock
	entries []Event
	sinks   []Sink
}

func NewLog(clock util.Clock) *Log {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Log{clock: clock}
}

// Append records a new event and fans it out to all sinks.
func (l *Log) Append(kind Kind, data any) Event {
	l.mu.Lock()
	e := Event{
		Seq:  uint64(len(l.entries)) + 1,
		Kind: kind,
		Time: l.clock.Now().UnixMilli(),
		Data: data,
	}
	l.entries = append(l.entries, e)
	sinks := l.sinks
	l.mu.Unlock()

	for _, s := range sinks {
		s(e)
	}
	return e
}

// Subscribe registers a sink for all future events.
func (l *Log) Subscribe(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// At returns the event at 0-based index i.
func (l *Log) At(i int) (Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.entries) {
		return Event{}, false
	}
	return l.entries[i], true
}

// All returns a copy of the full log in sequence order.
func (l *Log) All() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.entries))
	copy(out, l.entries)
	return out
}

// ByKind returns all events of the given kind in sequence order.
func (l *Log) ByKind(kind Kind) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent event, if any.
func (l *Log) Last() (Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return Event{}, false
	}
	return l.entries[len(l.entries)-1], true
}
