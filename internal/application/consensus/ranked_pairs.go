// Package consensus aggregates per-worker ranking submissions for a single
// parent message into one consensus ordering of its siblings, using the
// ranked-pairs (Tideman) method. It is a pure function over slices of ids,
// deliberately kept free of persistence concerns
// so it is directly unit-testable.
package consensus

import (
	"errors"
	"sort"

	"github.com/google/uuid"
)

// ErrCommonSetTooSmall is returned when fewer than two candidates appear in
// every submitted ordering. Callers treat this as "nothing to score" for
// the affected parent, not as a scoring failure.
var ErrCommonSetTooSmall = errors.New("consensus: common candidate set has fewer than two members")

type pair struct {
	winner, loser uuid.UUID
	margin        int
}

// RankedPairs computes the consensus total order over the intersection of
// all given orderings, following the ranked-pairs (Tideman) method:
//
//  1. intersect all orderings to obtain the common candidate set;
//  2. restrict each ordering to that set;
//  3. compute the margin of every unordered pair;
//  4. sort pairs by descending margin, ties broken by ascending winner id
//     then ascending loser id;
//  5. lock pairs into a directed graph in that order, skipping any pair
//     whose addition would create a cycle;
//  6. repeatedly peel the unique source off the resulting DAG.
func RankedPairs(orderings [][]uuid.UUID) ([]uuid.UUID, error) {
	common := intersect(orderings)
	if len(common) < 2 {
		return nil, ErrCommonSetTooSmall
	}

	restricted := make([][]uuid.UUID, len(orderings))
	for i, o := range orderings {
		restricted[i] = restrictTo(o, common)
	}

	pairs := buildPairs(common, restricted)

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].margin != pairs[j].margin {
			return pairs[i].margin > pairs[j].margin
		}
		if pairs[i].winner != pairs[j].winner {
			return idLess(pairs[i].winner, pairs[j].winner)
		}
		return idLess(pairs[i].loser, pairs[j].loser)
	})

	graph := make(map[uuid.UUID]map[uuid.UUID]bool, len(common))
	for _, c := range common {
		graph[c] = make(map[uuid.UUID]bool)
	}

	for _, p := range pairs {
		if reaches(graph, p.loser, p.winner) {
			continue // would create a cycle
		}
		graph[p.winner][p.loser] = true
	}

	return topologicalOrder(common, graph)
}

func intersect(orderings [][]uuid.UUID) []uuid.UUID {
	if len(orderings) == 0 {
		return nil
	}
	counts := make(map[uuid.UUID]int)
	for _, o := range orderings {
		seen := make(map[uuid.UUID]bool, len(o))
		for _, id := range o {
			if !seen[id] {
				seen[id] = true
				counts[id]++
			}
		}
	}
	var common []uuid.UUID
	for id, c := range counts {
		if c == len(orderings) {
			common = append(common, id)
		}
	}
	sort.Slice(common, func(i, j int) bool { return idLess(common[i], common[j]) })
	return common
}

func restrictTo(ordering []uuid.UUID, common []uuid.UUID) []uuid.UUID {
	allowed := make(map[uuid.UUID]bool, len(common))
	for _, id := range common {
		allowed[id] = true
	}
	out := make([]uuid.UUID, 0, len(common))
	for _, id := range ordering {
		if allowed[id] {
			out = append(out, id)
		}
	}
	return out
}

// buildPairs computes margin(a,b) = |orderings placing a before b| - |reverse|
// for every unordered pair of the common set, keeping only the direction
// with the positive margin (a tie keeps a single pair at margin 0, with the
// earlier id of the sorted common set as winner).
func buildPairs(common []uuid.UUID, orderings [][]uuid.UUID) []pair {
	positions := make([]map[uuid.UUID]int, len(orderings))
	for i, o := range orderings {
		pos := make(map[uuid.UUID]int, len(o))
		for idx, id := range o {
			pos[id] = idx
		}
		positions[i] = pos
	}

	var pairs []pair
	for i := 0; i < len(common); i++ {
		for j := i + 1; j < len(common); j++ {
			a, b := common[i], common[j]
			aBeforeB := 0
			for _, pos := range positions {
				pa, okA := pos[a]
				pb, okB := pos[b]
				if !okA || !okB {
					continue
				}
				if pa < pb {
					aBeforeB++
				} else if pb < pa {
					aBeforeB--
				}
			}
			switch {
			case aBeforeB > 0:
				pairs = append(pairs, pair{winner: a, loser: b, margin: aBeforeB})
			case aBeforeB < 0:
				pairs = append(pairs, pair{winner: b, loser: a, margin: -aBeforeB})
			default:
				// Tie: keep a deterministic direction (ascending id) at
				// margin 0 so it still participates in locking order.
				pairs = append(pairs, pair{winner: a, loser: b, margin: 0})
			}
		}
	}
	return pairs
}

// reaches reports whether to is reachable from from in graph (used to
// detect whether adding an edge would close a cycle).
func reaches(graph map[uuid.UUID]map[uuid.UUID]bool, from, to uuid.UUID) bool {
	if from == to {
		return true
	}
	visited := make(map[uuid.UUID]bool)
	stack := []uuid.UUID{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		if n == to {
			return true
		}
		for next := range graph[n] {
			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return false
}

// topologicalOrder repeatedly removes the unique source (a node with no
// remaining incoming edge) from graph, restricted to nodes, producing the
// full consensus order.
func topologicalOrder(nodes []uuid.UUID, graph map[uuid.UUID]map[uuid.UUID]bool) ([]uuid.UUID, error) {
	remaining := make(map[uuid.UUID]bool, len(nodes))
	for _, n := range nodes {
		remaining[n] = true
	}

	order := make([]uuid.UUID, 0, len(nodes))
	for len(remaining) > 0 {
		inDegree := make(map[uuid.UUID]int, len(remaining))
		for n := range remaining {
			inDegree[n] = 0
		}
		for n := range remaining {
			for dst := range graph[n] {
				if remaining[dst] {
					inDegree[dst]++
				}
			}
		}

		var sources []uuid.UUID
		for n, d := range inDegree {
			if d == 0 {
				sources = append(sources, n)
			}
		}
		if len(sources) == 0 {
			return nil, errors.New("consensus: locked graph has no source, this indicates a bug in cycle detection")
		}
		sort.Slice(sources, func(i, j int) bool { return idLess(sources[i], sources[j]) })
		next := sources[0]
		order = append(order, next)
		delete(remaining, next)
	}
	return order, nil
}

func idLess(a, b uuid.UUID) bool {
	return a.String() < b.String()
}
