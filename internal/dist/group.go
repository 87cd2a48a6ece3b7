// Package dist synchronizes the training worker processes: a coordinator
// rank accepts one connection per peer and services lockstep collective
// calls over gob-encoded frames. Every rank must issue the same sequence of
// operations; the group makes no attempt to reorder.
package dist

import (
	"context"
	"encoding/gob"
	"fmt"
	"net"
	"time"
)

// MasterAddrEnv and MasterPortEnv carry the rendezvous endpoint from the
// orchestrator to its workers.
const (
	MasterAddrEnv = "URVC_MASTER_ADDR"
	MasterPortEnv = "URVC_MASTER_PORT"
)

type frame struct {
	Rank   int
	Values []float64
}

type peer struct {
	conn net.Conn
	enc  *gob.Encoder
	dec  *gob.Decoder
}

// Group is one process's handle on the collective.
type Group struct {
	rank  int
	world int

	// rank 0 only, indexed by peer rank (entry 0 unused)
	peers []*peer
	// non-zero ranks only
	master *peer
}

func newPeer(conn net.Conn) *peer {
	return &peer{conn: conn, enc: gob.NewEncoder(conn), dec: gob.NewDecoder(conn)}
}

// Init establishes the group. Rank 0 listens on addr and waits for world-1
// peers; other ranks dial with backoff until the coordinator is up or the
// context ends. A single-process world needs no sockets at all.
func Init(ctx context.Context, rank, world int, addr string) (*Group, error) {
	g := &Group{rank: rank, world: world}
	if world <= 1 {
		return g, nil
	}

	if rank == 0 {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		defer ln.Close()

		g.peers = make([]*peer, world)
		for i := 1; i < world; i++ {
			conn, err := ln.Accept()
			if err != nil {
				g.Close()
				return nil, fmt.Errorf("accept peer: %w", err)
			}
			p := newPeer(conn)
			var hello frame
			if err := p.dec.Decode(&hello); err != nil {
				g.Close()
				return nil, fmt.Errorf("peer hello: %w", err)
			}
			if hello.Rank <= 0 || hello.Rank >= world || g.peers[hello.Rank] != nil {
				g.Close()
				return nil, fmt.Errorf("bad peer rank %d", hello.Rank)
			}
			g.peers[hello.Rank] = p
		}
		return g, nil
	}

	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			g.master = newPeer(conn)
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial %s: %w", addr, ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
	if err := g.master.enc.Encode(frame{Rank: rank}); err != nil {
		g.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}
	return g, nil
}

func (g *Group) Rank() int  { return g.rank }
func (g *Group) World() int { return g.world }

// AllReduceSum sums vals element-wise across all ranks and returns the total
// on every rank. All ranks must pass slices of equal length.
func (g *Group) AllReduceSum(vals []float64) ([]float64, error) {
	sum := make([]float64, len(vals))
	copy(sum, vals)
	if g.world <= 1 {
		return sum, nil
	}

	if g.rank == 0 {
		for r := 1; r < g.world; r++ {
			var f frame
			if err := g.peers[r].dec.Decode(&f); err != nil {
				return nil, fmt.Errorf("recv from rank %d: %w", r, err)
			}
			if len(f.Values) != len(sum) {
				return nil, fmt.Errorf("rank %d sent %d values, want %d", r, len(f.Values), len(sum))
			}
			for i, v := range f.Values {
				sum[i] += v
			}
		}
		for r := 1; r < g.world; r++ {
			if err := g.peers[r].enc.Encode(frame{Rank: 0, Values: sum}); err != nil {
				return nil, fmt.Errorf("send to rank %d: %w", r, err)
			}
		}
		return sum, nil
	}

	if err := g.master.enc.Encode(frame{Rank: g.rank, Values: sum}); err != nil {
		return nil, fmt.Errorf("send to coordinator: %w", err)
	}
	var f frame
	if err := g.master.dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("recv from coordinator: %w", err)
	}
	return f.Values, nil
}

// Barrier blocks until every rank has reached it.
func (g *Group) Barrier() error {
	_, err := g.AllReduceSum(nil)
	return err
}

func (g *Group) Close() error {
	if g.master != nil {
		g.master.conn.Close()
	}
	for _, p := range g.peers {
		if p != nil {
			p.conn.Close()
		}
	}
	return nil
}
