package services

import (
	"math"
)

// tourProblem is a single day: node 0 is the start anchor, node n-1 the end
// anchor and nodes 1..n-2 are the stops to order.
type tourProblem struct {
	cost [][]float64
	// slot index per node; -1 for anchors.
	slots []int
	// ids break ties so the ordering is deterministic.
	ids []string
	// penalty is added to arcs that go back to an earlier slot.
	penalty float64
}

func (p *tourProblem) size() int { return len(p.cost) }

func (p *tourProblem) arc(i, j int) float64 {
	c := p.cost[i][j]
	if p.slots[i] >= 0 && p.slots[j] >= 0 && p.slots[j] < p.slots[i] {
		c += p.penalty
	}
	return c
}

// tourCost is the cost of start -> order... -> end.
func (p *tourProblem) tourCost(order []int) float64 {
	end := p.size() - 1
	prev := 0
	total := 0.0
	for _, n := range order {
		total += p.arc(prev, n)
		prev = n
	}
	return total + p.arc(prev, end)
}

// nearestNeighborOrder builds a tour greedily from the start anchor.
//
// The algorithm minimizes the immediate arc cost at each step.
// It does not attempt global optimization; 2-opt refines the result.
func nearestNeighborOrder(p *tourProblem) []int {
	stops := p.size() - 2
	if stops <= 0 {
		return []int{}
	}

	visited := make([]bool, p.size())
	order := make([]int, 0, stops)
	current := 0

	for len(order) < stops {
		best := -1
		bestCost := math.Inf(1)

		// Select next stop by minimum arc cost (greedy step).
		for j := 1; j <= stops; j++ {
			if visited[j] {
				continue
			}
			c := p.arc(current, j)
			// Tie-breaker ensures deterministic ordering when costs are equal.
			if best < 0 || c < bestCost || (c == bestCost && p.ids[j] < p.ids[best]) {
				best = j
				bestCost = c
			}
		}

		visited[best] = true
		order = append(order, best)
		current = best
	}
	return order
}
