package prices

import (
	"context"
	"strings"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
	"github.com/shopspring/decimal"
)

// ratioPrecision is the number of decimal places kept when dividing leg amounts.
const ratioPrecision = 36

// Mainnet anchors.
const (
	WETHAddress = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	USDCAddress = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	USDTAddress = "0xdac17f958d2ee523a2206206994597c13d831ec7"
)

// Oracle returns the USD price of a token, or zero when it has none.
type Oracle interface {
	USDPrice(ctx context.Context, tokenID string) decimal.Decimal
}

type edge struct {
	to    string
	ratio decimal.Decimal
}

// graph is a directed ratio graph: price(to) = price(from) * ratio.
type graph struct {
	adj map[string][]edge
	pos map[string]map[string]int
}

func newGraph() *graph {
	return &graph{adj: map[string][]edge{}, pos: map[string]map[string]int{}}
}

// addEdge keeps one edge per directed pair; a later ratio replaces the earlier one in place.
func (g *graph) addEdge(from, to string, ratio decimal.Decimal) {
	idx, ok := g.pos[from]
	if !ok {
		idx = map[string]int{}
		g.pos[from] = idx
	}
	if i, seen := idx[to]; seen {
		g.adj[from][i].ratio = ratio
		return
	}
	idx[to] = len(g.adj[from])
	g.adj[from] = append(g.adj[from], edge{to: to, ratio: ratio})
}

// propagate prices every node reachable from the stack that has no price yet.
// The stack is consumed LIFO.
func (g *graph) propagate(known map[string]decimal.Decimal, stack []string) {
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, e := range g.adj[id] {
			if _, ok := known[e.to]; ok {
				continue
			}
			known[e.to] = known[id].Mul(e.ratio)
			stack = append(stack, e.to)
		}
	}
}

// Resolver values swap legs from the ratios observed in one batch.
type Resolver struct {
	oracle  Oracle
	native  string
	stables []string
}

// NewResolver anchors the graph at native (valued at the per-batch anchor price) and
// stables (valued at 1 USD). oracle may be nil.
func NewResolver(oracle Oracle, native string, stables []string) *Resolver {
	lowered := make([]string, len(stables))
	for i, s := range stables {
		lowered[i] = strings.ToLower(s)
	}
	return &Resolver{oracle: oracle, native: strings.ToLower(native), stables: lowered}
}

// Resolve returns a copy of events with every leg whose token could be priced valued in USD.
// Legs that stay unpriced keep null valuation fields.
func (r *Resolver) Resolve(ctx context.Context, events []types.SwapEvent, anchorUSD decimal.Decimal) []types.SwapEvent {
	if len(events) == 0 {
		return nil
	}

	g := newGraph()
	for _, ev := range events {
		if ev.LegA.Amount.IsZero() || ev.LegB.Amount.IsZero() {
			continue
		}
		a, b := strings.ToLower(ev.LegA.TokenID), strings.ToLower(ev.LegB.TokenID)
		g.addEdge(a, b, ev.LegA.Amount.DivRound(ev.LegB.Amount, ratioPrecision))
		g.addEdge(b, a, ev.LegB.Amount.DivRound(ev.LegA.Amount, ratioPrecision))
	}

	known := map[string]decimal.Decimal{}
	seeds := make([]string, 0, len(r.stables)+1)
	for _, s := range r.stables {
		known[s] = decimal.NewFromInt(1)
		seeds = append(seeds, s)
	}
	if anchorUSD.IsPositive() && r.native != "" {
		known[r.native] = anchorUSD
		seeds = append(seeds, r.native)
	}
	g.propagate(known, seeds)

	if r.oracle != nil {
		queried := map[string]bool{}
		for _, ev := range events {
			for _, leg := range []types.Leg{ev.LegA, ev.LegB} {
				id := strings.ToLower(leg.TokenID)
				if _, ok := known[id]; ok || queried[id] {
					continue
				}
				queried[id] = true

				price := r.oracle.USDPrice(ctx, id)
				if !price.IsPositive() {
					logger.Debug("No USD price for %s (%s) in block %d", leg.Symbol, id, ev.BlockNumber)
					continue
				}
				known[id] = price
				g.propagate(known, []string{id})
			}
		}
	}

	// A swap is valued only when both of its tokens are priced.
	out := make([]types.SwapEvent, len(events))
	for i, ev := range events {
		priceA, okA := known[strings.ToLower(ev.LegA.TokenID)]
		priceB, okB := known[strings.ToLower(ev.LegB.TokenID)]
		if okA && okB {
			ev.LegA = ev.LegA.WithPrice(priceA)
			ev.LegB = ev.LegB.WithPrice(priceB)
		}
		out[i] = ev
	}
	return out
}
