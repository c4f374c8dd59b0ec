package services

import (
	"context"
	"slices"
	"time"
)

const improvementEpsilon = 1e-9

type twoOptResult struct {
	order      []int
	cost       float64
	iterations int
	// exhausted is set when the budget stopped the search before a local
	// optimum was confirmed.
	exhausted bool
}

// twoOpt improves order by segment reversals, restarting after the first
// improving move, until no move improves or the budget runs out. The scan
// after the last allowed move still runs, so a local optimum reached exactly
// at maxIterations is not reported as exhausted.
func twoOpt(ctx context.Context, p *tourProblem, order []int, maxIterations int, deadline time.Time) twoOptResult {
	best := slices.Clone(order)
	res := twoOptResult{order: best, cost: p.tourCost(best)}
	if len(best) < 2 {
		return res
	}

	for {
		if time.Now().After(deadline) || ctx.Err() != nil {
			res.exhausted = true
			return res
		}

		cand, cost, found, cut := firstImprovement(p, res.order, res.cost, deadline)
		if cut {
			res.exhausted = true
			return res
		}
		if !found {
			return res
		}
		if res.iterations >= maxIterations {
			res.exhausted = true
			return res
		}
		res.order, res.cost = cand, cost
		res.iterations++
	}
}

// firstImprovement returns the first reversal of order that lowers its cost.
// cut reports that the deadline passed before the scan finished.
func firstImprovement(p *tourProblem, order []int, cost float64, deadline time.Time) (next []int, nextCost float64, found, cut bool) {
	for i := 0; i < len(order)-1; i++ {
		for j := i + 1; j < len(order); j++ {
			cand := slices.Clone(order)
			slices.Reverse(cand[i : j+1])
			if c := p.tourCost(cand); c < cost-improvementEpsilon {
				return cand, c, true, false
			}
		}
		if time.Now().After(deadline) {
			return nil, 0, false, true
		}
	}
	return nil, 0, false, false
}
