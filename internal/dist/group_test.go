package dist

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestGroup_SingleProcess(t *testing.T) {
	g, err := Init(context.Background(), 0, 1, "")
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	out, err := g.AllReduceSum([]float64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 1 || out[1] != 2 || out[2] != 3 {
		t.Errorf("got %v", out)
	}
	if err := g.Barrier(); err != nil {
		t.Fatal(err)
	}
}

func TestGroup_AllReduceAcrossRanks(t *testing.T) {
	addr := freeAddr(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const world = 3
	results := make([][]float64, world)
	errs := make([]error, world)

	var wg sync.WaitGroup
	for rank := 0; rank < world; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			g, err := Init(ctx, rank, world, addr)
			if err != nil {
				errs[rank] = err
				return
			}
			defer g.Close()

			vals := []float64{float64(rank + 1), 10 * float64(rank+1)}
			out, err := g.AllReduceSum(vals)
			if err != nil {
				errs[rank] = err
				return
			}
			results[rank] = out

			errs[rank] = g.Barrier()
		}(rank)
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}
	// 1+2+3 = 6, 10+20+30 = 60, identical on every rank
	for rank, out := range results {
		if len(out) != 2 || out[0] != 6 || out[1] != 60 {
			t.Errorf("rank %d result %v, want [6 60]", rank, out)
		}
	}
}

func TestGroup_DialFailsWhenNoCoordinator(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := Init(ctx, 1, 2, freeAddr(t)); err == nil {
		t.Fatal("expected dial to give up without a coordinator")
	}
}
