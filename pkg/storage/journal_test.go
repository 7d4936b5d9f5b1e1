package storage

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/events"
)

func newTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j, path
}

func sampleEvents() []events.Event {
	user := common.HexToAddress("0xAA00000000000000000000000000000000000001")
	return []events.Event{
		{Seq: 1, Kind: events.KindDeposit, Time: 1000, Data: events.CustodyData{
			User: user, Amount: big.NewInt(10), Balance: big.NewInt(10),
		}},
		{Seq: 2, Kind: events.KindOrder, Time: 2000, Data: events.OrderData{
			ID: 1, User: user, AmountGet: big.NewInt(5), AmountGive: big.NewInt(3),
		}},
		{Seq: 3, Kind: events.KindTrade, Time: 3000, Data: events.TradeData{
			ID: 1, User: user, Creator: user, AmountGet: big.NewInt(5), AmountGive: big.NewInt(3),
		}},
	}
}

func TestJournalAppendAndReplay(t *testing.T) {
	j, _ := newTestJournal(t)

	for _, e := range sampleEvents() {
		if err := j.Append(e); err != nil {
			t.Fatalf("append %d: %v", e.Seq, err)
		}
	}

	var got []Record
	err := j.Replay(func(r Record) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("replayed %d records, want 3", len(got))
	}
	wantKinds := []events.Kind{events.KindDeposit, events.KindOrder, events.KindTrade}
	for i, r := range got {
		if r.Seq != uint64(i)+1 {
			t.Errorf("record %d seq = %d, want %d", i, r.Seq, i+1)
		}
		if r.Kind != wantKinds[i] {
			t.Errorf("record %d kind = %s, want %s", i, r.Kind, wantKinds[i])
		}
		if len(r.Data) == 0 {
			t.Errorf("record %d has empty payload", i)
		}
	}
}

func TestJournalLastSeq(t *testing.T) {
	j, _ := newTestJournal(t)

	last, err := j.LastSeq()
	if err != nil {
		t.Fatalf("LastSeq on empty journal: %v", err)
	}
	if last != 0 {
		t.Errorf("empty journal LastSeq = %d, want 0", last)
	}

	for _, e := range sampleEvents() {
		if err := j.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	last, err = j.LastSeq()
	if err != nil {
		t.Fatalf("LastSeq: %v", err)
	}
	if last != 3 {
		t.Errorf("LastSeq = %d, want 3", last)
	}
}

func TestJournalSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, e := range sampleEvents() {
		if err := j.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	j, err = OpenJournal(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()

	last, err := j.LastSeq()
	if err != nil {
		t.Fatalf("LastSeq after reopen: %v", err)
	}
	if last != 3 {
		t.Errorf("LastSeq after reopen = %d, want 3", last)
	}
}

func TestJournalSinkAppends(t *testing.T) {
	j, _ := newTestJournal(t)
	sink := j.Sink(nil)

	sink(events.Event{Seq: 1, Kind: events.KindApproval, Time: 1})
	sink(events.Event{Seq: 2, Kind: events.KindWithdraw, Time: 2})

	count := 0
	if err := j.Replay(func(Record) error { count++; return nil }); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if count != 2 {
		t.Errorf("journal holds %d records, want 2", count)
	}
}
