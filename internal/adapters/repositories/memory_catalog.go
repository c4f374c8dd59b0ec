package repositories

import (
	"context"
	"fmt"
	"itinerary-route-service/internal/domain"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryCatalog is the in-process candidate pool, keyed by plan.
type MemoryCatalog struct {
	plans *xsync.MapOf[string, *xsync.MapOf[string, domain.Candidate]]
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{plans: xsync.NewMapOf[string, *xsync.MapOf[string, domain.Candidate]]()}
}

func (c *MemoryCatalog) PutMany(ctx context.Context, planID string, candidates []domain.Candidate) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("put candidates: %w", err)
	}
	pool, _ := c.plans.LoadOrCompute(planID, func() *xsync.MapOf[string, domain.Candidate] {
		return xsync.NewMapOf[string, domain.Candidate]()
	})
	for _, cand := range candidates {
		pool.Store(cand.ID, cand.Clone())
	}
	return nil
}

func (c *MemoryCatalog) Get(ctx context.Context, planID, spotID string) (domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Candidate{}, fmt.Errorf("get candidate: %w", err)
	}
	pool, ok := c.plans.Load(planID)
	if !ok {
		return domain.Candidate{}, domain.NewNotFound("spot", spotID)
	}
	cand, ok := pool.Load(spotID)
	if !ok {
		return domain.Candidate{}, domain.NewNotFound("spot", spotID)
	}
	return cand.Clone(), nil
}
