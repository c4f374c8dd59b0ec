package services

import (
	"cmp"
	"errors"
	"fmt"
	"itinerary-route-service/internal/domain"
	"slices"
	"sort"
)

// GroupByDay splits slot assignments across trip days.
//
// Within each slot, candidates are sorted by polar angle around center and
// chunked contiguously across days, so each day receives a geographic sector
// of every slot. Days over maxPerDay push their tail to the next day with
// room. When the trip cannot hold every candidate, the lowest composite
// scores are dropped first and returned separately.
func GroupByDay(
	assignments []domain.SlotAssignment,
	days int,
	center domain.Coordinates,
	maxPerDay int,
) (grouped [][]domain.SlotAssignment, dropped []domain.SlotAssignment, err error) {
	if days < 1 {
		return nil, nil, errors.New("group by day: days must be >= 1")
	}
	if maxPerDay < 1 {
		return nil, nil, fmt.Errorf("group by day: maxPerDay must be >= 1, got %d", maxPerDay)
	}

	kept := slices.Clone(assignments)
	if capacity := days * maxPerDay; len(kept) > capacity {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].Candidate.Composite > kept[j].Candidate.Composite
		})
		dropped = kept[capacity:]
		kept = kept[:capacity]
	}

	bySlot := make([][]domain.SlotAssignment, len(domain.Slots))
	for _, as := range kept {
		i := as.Slot.Index()
		bySlot[i] = append(bySlot[i], as)
	}

	grouped = make([][]domain.SlotAssignment, days)
	for _, bucket := range bySlot {
		// Sort by angle so each day gets a contiguous "sector" of the slot.
		slices.SortFunc(bucket, func(a, b domain.SlotAssignment) int {
			aa := a.Candidate.Location.AngleFrom(center)
			ab := b.Candidate.Location.AngleFrom(center)
			switch {
			case aa < ab:
				return -1
			case aa > ab:
				return 1
			}
			return cmp.Compare(a.Candidate.ID, b.Candidate.ID)
		})

		// Ceiling division: distribute the slot as evenly as possible across days.
		chunk := (len(bucket) + days - 1) / days
		for d := 0; d < days; d++ {
			start := d * chunk
			if start >= len(bucket) {
				break
			}
			end := min(start+chunk, len(bucket))
			grouped[d] = append(grouped[d], bucket[start:end]...)
		}
	}

	spillOver(grouped, maxPerDay)
	return grouped, dropped, nil
}

// spillOver moves the tail of overfull days forward, wrapping to earlier days
// once the last day is reached. The caller guarantees total <= days*maxPerDay.
func spillOver(grouped [][]domain.SlotAssignment, maxPerDay int) {
	days := len(grouped)
	for d := 0; d < days; d++ {
		for len(grouped[d]) > maxPerDay {
			last := grouped[d][len(grouped[d])-1]
			grouped[d] = grouped[d][:len(grouped[d])-1]

			for step := 1; step < days; step++ {
				next := (d + step) % days
				if len(grouped[next]) < maxPerDay {
					grouped[next] = append(grouped[next], last)
					break
				}
			}
		}
	}
}
