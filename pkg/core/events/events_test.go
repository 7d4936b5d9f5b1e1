package events

import (
	"testing"
	"time"

	"github.com/apiorno/blockchain-developer-bootcamp/pkg/util"
)

func newTestLog() (*Log, *util.FakeClock) {
	clock := util.NewFakeClock(time.Unix(1_700_000_000, 0))
	return NewLog(clock), clock
}

func TestLogAppendAssignsSequence(t *testing.T) {
	log, clock := newTestLog()

	a := log.Append(KindTransfer, "a")
	clock.Advance(time.Second)
	b := log.Append(KindDeposit, "b")

	if a.Seq != 1 || b.Seq != 2 {
		t.Errorf("seqs = %d, %d, want 1, 2", a.Seq, b.Seq)
	}
	if b.Time != a.Time+1000 {
		t.Errorf("timestamps = %d, %d, want 1s apart", a.Time, b.Time)
	}
	if log.Len() != 2 {
		t.Errorf("len = %d, want 2", log.Len())
	}
}

func TestLogAt(t *testing.T) {
	log, _ := newTestLog()
	log.Append(KindOrder, "x")

	if e, ok := log.At(0); !ok || e.Kind != KindOrder {
		t.Errorf("At(0) = %+v, %v", e, ok)
	}
	if _, ok := log.At(1); ok {
		t.Error("At(1) should be out of range")
	}
	if _, ok := log.At(-1); ok {
		t.Error("At(-1) should be out of range")
	}
}

func TestLogByKind(t *testing.T) {
	log, _ := newTestLog()
	log.Append(KindTransfer, 1)
	log.Append(KindOrder, 2)
	log.Append(KindTransfer, 3)

	transfers := log.ByKind(KindTransfer)
	if len(transfers) != 2 {
		t.Fatalf("got %d transfers, want 2", len(transfers))
	}
	if transfers[0].Seq != 1 || transfers[1].Seq != 3 {
		t.Errorf("transfer seqs = %d, %d, want 1, 3", transfers[0].Seq, transfers[1].Seq)
	}
	if got := log.ByKind(KindTrade); len(got) != 0 {
		t.Errorf("ByKind(Trade) = %v, want empty", got)
	}
}

func TestLogSinksObserveAppendOrder(t *testing.T) {
	log, _ := newTestLog()

	var seen []uint64
	log.Subscribe(func(e Event) { seen = append(seen, e.Seq) })

	log.Append(KindOrder, nil)
	log.Append(KindCancel, nil)
	log.Append(KindTrade, nil)

	if len(seen) != 3 {
		t.Fatalf("sink saw %d events, want 3", len(seen))
	}
	for i, seq := range seen {
		if seq != uint64(i)+1 {
			t.Errorf("seen[%d] = %d, want %d", i, seq, i+1)
		}
	}
}

func TestLogAllReturnsCopy(t *testing.T) {
	log, _ := newTestLog()
	log.Append(KindTransfer, nil)

	all := log.All()
	all[0].Kind = KindTrade

	if e, _ := log.At(0); e.Kind != KindTransfer {
		t.Error("mutating All() result changed the log")
	}
}

func TestLogLast(t *testing.T) {
	log, _ := newTestLog()

	if _, ok := log.Last(); ok {
		t.Error("Last() on empty log should report false")
	}
	log.Append(KindDeposit, nil)
	log.Append(KindWithdraw, nil)
	if e, ok := log.Last(); !ok || e.Kind != KindWithdraw || e.Seq != 2 {
		t.Errorf("Last() = %+v, %v", e, ok)
	}
}
