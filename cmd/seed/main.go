// Command seed populates a running dexd node with demo data over its
// REST API: funded users, deposits, one cancelled order, three filled
// orders, and ten pairs of resting open orders. It holds no state of its
// own; it is purely a client of the operation surface.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/apiorno/blockchain-developer-bootcamp/pkg/api"
	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/token"
)

const (
	defaultBaseURL = "http://localhost:8080/api/v1"
	user1          = "0xDE00000000000000000000000000000000000001" // deployer
	user2          = "0xDE00000000000000000000000000000000000002"
)

type client struct {
	base string
	http *http.Client
}

func main() {
	base := os.Getenv("SEED_API_URL")
	if base == "" {
		base = defaultBaseURL
	}
	c := &client{base: base, http: &http.Client{Timeout: 10 * time.Second}}

	tokens, err := c.fetchTokens()
	if err != nil {
		log.Fatalf("fetch tokens: %v", err)
	}
	ex, err := c.fetchExchange()
	if err != nil {
		log.Fatalf("fetch exchange: %v", err)
	}
	dapp, meth := tokens["DAPP"], tokens["mETH"]
	log.Printf("exchange: %s  DAPP: %s  mETH: %s", ex.Address, dapp, meth)

	// Fund user2 with 10,000 mETH.
	c.must("transfers", api.TransferRequest{From: user1, To: user2, Token: meth, Amount: units(10_000)})
	log.Printf("transferred %s mETH from %s to %s", units(10_000), user1, user2)

	// user1 deposits 10,000 DAPP; user2 deposits 10,000 mETH.
	c.must("approvals", api.ApproveRequest{Owner: user1, Spender: ex.Address, Token: dapp, Amount: units(10_000)})
	c.must("deposits", api.CustodyRequest{User: user1, Token: dapp, Amount: units(10_000)})
	c.must("approvals", api.ApproveRequest{Owner: user2, Spender: ex.Address, Token: meth, Amount: units(10_000)})
	c.must("deposits", api.CustodyRequest{User: user2, Token: meth, Amount: units(10_000)})
	log.Printf("deposits complete")

	// One cancelled order.
	id := c.makeOrder(user1, meth, units(100), dapp, units(5))
	c.must(fmt.Sprintf("orders/%d/cancel", id), api.OrderActionRequest{Caller: user1})
	log.Printf("order %d cancelled by %s", id, user1)
	time.Sleep(time.Second)

	// Three filled orders.
	for _, o := range []struct{ get, give int64 }{{100, 10}, {50, 15}, {200, 20}} {
		id = c.makeOrder(user1, meth, units(o.get), dapp, units(o.give))
		c.must(fmt.Sprintf("orders/%d/fill", id), api.OrderActionRequest{Caller: user2})
		log.Printf("order %d filled by %s", id, user2)
		time.Sleep(time.Second)
	}

	// Ten pairs of open orders.
	for i := int64(1); i <= 10; i++ {
		c.makeOrder(user1, meth, units(10*i), dapp, units(10))
		c.makeOrder(user2, dapp, units(10), meth, units(10*i))
		time.Sleep(time.Second)
	}
	log.Printf("seed complete")
}

func units(n int64) string {
	return token.Units(n).String()
}

func (c *client) fetchTokens() (map[string]string, error) {
	resp, err := c.http.Get(c.base + "/tokens")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var infos []api.TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(infos))
	for _, t := range infos {
		out[t.Symbol] = t.Address
	}
	return out, nil
}

func (c *client) fetchExchange() (api.ExchangeInfo, error) {
	var info api.ExchangeInfo
	resp, err := c.http.Get(c.base + "/exchange")
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&info)
	return info, err
}

func (c *client) makeOrder(creator, tokenGet, amountGet, tokenGive, amountGive string) uint64 {
	body := c.post("orders", api.MakeOrderRequest{
		Creator:    creator,
		TokenGet:   tokenGet,
		AmountGet:  amountGet,
		TokenGive:  tokenGive,
		AmountGive: amountGive,
	})
	var resp api.MakeOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Fatalf("decode order response: %v", err)
	}
	log.Printf("order %d created by %s", resp.OrderID, creator)
	return resp.OrderID
}

func (c *client) must(path string, payload any) {
	c.post(path, payload)
}

func (c *client) post(path string, payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("marshal %s: %v", path, err)
	}
	resp, err := c.http.Post(c.base+"/"+path, "application/json", bytes.NewReader(data))
	if err != nil {
		log.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if resp.StatusCode >= 400 {
		log.Fatalf("post %s: status %d: %s", path, resp.StatusCode, buf.String())
	}
	return buf.Bytes()
}
