package producer

import (
	"context"
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/pojchain/pkg/chain"
	"github.com/certen/pojchain/pkg/cid"
	"github.com/certen/pojchain/pkg/config"
	"github.com/certen/pojchain/pkg/judgment"
	"github.com/certen/pojchain/pkg/slotclock"
	"github.com/certen/pojchain/pkg/store"
)

func newTestChain(t *testing.T) *chain.Chain {
	t.Helper()
	bs := store.New(dbm.NewMemDB())
	cfg := config.Config{}.Defaults()
	opts := chain.Options{
		KeyLookup:      func(string) ([]byte, bool) { return []byte("secret"), true },
		ValidatorCount: func() int { return 1 },
	}
	c := chain.New("n1", bs, cfg, opts)
	if err := c.Init(""); err != nil {
		t.Fatalf("init: %v", err)
	}
	return c
}

func TestForceTickProposesAndIngestsWhenPoolNonEmpty(t *testing.T) {
	c := newTestChain(t)
	c.AddJudgment(judgment.Ref{ID: "j1", CID: cid.Sum([]byte("c1")), QScore: 70})

	clock := slotclock.New(time.Now().Add(-time.Hour), slotclock.Config{})
	r := New(c, clock)
	r.ForceTick()

	stats := c.GetStats()
	if stats.HeadSlot != 1 {
		t.Fatalf("expected head slot 1 after tick, got %d", stats.HeadSlot)
	}
	if stats.PoolSize != 0 {
		t.Fatalf("expected pool drained, got size %d", stats.PoolSize)
	}
}

func TestForceTickNoOpOnEmptyPool(t *testing.T) {
	c := newTestChain(t)
	clock := slotclock.New(time.Now().Add(-time.Hour), slotclock.Config{})
	r := New(c, clock)
	r.ForceTick()

	stats := c.GetStats()
	if stats.HeadSlot != 0 {
		t.Fatalf("expected head slot unchanged at 0, got %d", stats.HeadSlot)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	c := newTestChain(t)
	clock := slotclock.New(time.Now().Add(-time.Hour), slotclock.Config{SlotDuration: 5 * time.Millisecond})
	r := New(c, clock)

	ctx := context.Background()
	r.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	r.Stop()

	// A second Stop must be a harmless no-op.
	r.Stop()
}
