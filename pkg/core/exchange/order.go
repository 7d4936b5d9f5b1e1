package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the lifecycle state of an order. Orders are created Open and
// move exactly once to Cancelled or Filled; both are terminal.
type Status int8

const (
	Open Status = iota
	Cancelled
	Filled
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Cancelled:
		return "cancelled"
	case Filled:
		return "filled"
	default:
		return "unknown"
	}
}

// Order is a resting offer: the creator wants AmountGet of TokenGet in
// exchange for AmountGive of TokenGive out of their custody balance.
// All fields except Status are immutable after creation.
type Order struct {
	ID         uint64         `json:"id"`
	Creator    common.Address `json:"creator"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *big.Int       `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *big.Int       `json:"amountGive"`
	CreatedAt  int64          `json:"createdAt"`
	Status     Status         `json:"status"`
}

// IsOpen reports whether the order can still be cancelled or filled.
func (o *Order) IsOpen() bool { return o.Status == Open }
