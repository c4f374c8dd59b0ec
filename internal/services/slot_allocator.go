package services

import (
	"context"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/platform/logger"
	"slices"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// SlotAllocator buckets scored candidates into morning / afternoon / evening.
type SlotAllocator struct {
	tables *SlotTables
	// sorted keys of tables.Evening.KeywordBonuses, so bonus sums are stable.
	eveningKeys []string
}

func NewSlotAllocator(tables *SlotTables) *SlotAllocator {
	keys := lo.Keys(tables.Evening.KeywordBonuses)
	slices.Sort(keys)
	return &SlotAllocator{tables: tables, eveningKeys: keys}
}

func (a *SlotAllocator) Tables() *SlotTables { return a.tables }

// Affinity computes the three slot affinities of a candidate:
// category (or keyword) base, morning congestion inversion, evening bonuses.
func (a *SlotAllocator) Affinity(c domain.Candidate) domain.SlotAffinity {
	aff := a.baseAffinity(c)
	aff[0] += a.MorningBonus(c)
	aff[2] += a.EveningBonus(c)
	return aff
}

func (a *SlotAllocator) baseAffinity(c domain.Candidate) domain.SlotAffinity {
	var aff domain.SlotAffinity
	matched := false
	for _, cat := range c.Categories {
		s, ok := a.tables.Categories[normalizeTag(cat)]
		if !ok {
			continue
		}
		matched = true
		aff[0] = max(aff[0], s.Morning)
		aff[1] = max(aff[1], s.Afternoon)
		aff[2] = max(aff[2], s.Evening)
	}
	if matched {
		return aff
	}

	name := strings.ToLower(c.Name)
	for i, kw := range []KeywordList{a.tables.Keywords.Morning, a.tables.Keywords.Afternoon, a.tables.Keywords.Evening} {
		if containsAny(name, kw.Words) {
			aff[i] = kw.Score
			matched = true
		}
	}
	if matched {
		return aff
	}

	fb := a.tables.Fallback
	return domain.SlotAffinity{fb.Morning, fb.Afternoon, fb.Evening}
}

// IsTouristAttraction detects landmarks by category or name pattern.
func (a *SlotAllocator) IsTouristAttraction(c domain.Candidate) bool {
	if slices.ContainsFunc(a.tables.Tourist.Categories, c.HasCategory) {
		return true
	}
	return containsAny(strings.ToLower(c.Name), a.tables.Tourist.NamePatterns)
}

// MorningBonus rewards spots that are quiet in the morning relative to their
// peak: (peak - morning) / peak times the tourist or default multiplier.
func (a *SlotAllocator) MorningBonus(c domain.Candidate) float64 {
	if len(c.Congestion) != 24 {
		return 0
	}
	peak := lo.Max(c.Congestion)
	if peak <= 0 {
		return 0
	}

	m := a.tables.Morning
	morning := lo.Sum(c.Congestion[m.StartHour:m.EndHour]) / float64(m.EndHour-m.StartHour)
	slack := max(0, (peak-morning)/peak)

	multiplier := m.DefaultMultiplier
	if a.IsTouristAttraction(c) {
		multiplier = m.TouristMultiplier
	}
	return slack * multiplier
}

// EveningBonus adds a fixed bonus per matched evening keyword and one for
// late closing.
func (a *SlotAllocator) EveningBonus(c domain.Candidate) float64 {
	text := strings.ToLower(c.Name)
	for _, cat := range c.Categories {
		text += " " + strings.ReplaceAll(normalizeTag(cat), "_", " ")
	}

	bonus := 0.0
	for _, k := range a.eveningKeys {
		if strings.Contains(text, k) {
			bonus += a.tables.Evening.KeywordBonuses[k]
		}
	}
	if c.CloseMinute != nil && *c.CloseMinute >= a.tables.Evening.LateCloseMinute {
		bonus += a.tables.Evening.LateCloseBonus
	}
	return bonus
}

// Allocate assigns every candidate to its best slot and then rebalances so
// that each slot reaches its floor where a move is possible.
func (a *SlotAllocator) Allocate(ctx context.Context, scored []domain.ScoredCandidate) []domain.SlotAssignment {
	out := make([]domain.SlotAssignment, len(scored))
	for i, sc := range scored {
		aff := a.Affinity(sc.Candidate)
		out[i] = domain.SlotAssignment{Candidate: sc, Slot: aff.Best(), Affinity: aff}
	}

	moves := Rebalance(out)
	if moves > 0 {
		logger.FromContext(ctx).Debug("slot allocation rebalanced",
			zap.Int("candidates", len(out)), zap.Int("moves", moves))
	}
	return out
}

// SlotFloor returns the per-slot minimum for n candidates: max(1, (n/3)/2).
func SlotFloor(n int) int {
	return max(1, (n/3)/2)
}

// Rebalance moves assignments in place until every slot reaches the floor or
// no safe move remains, and returns the number of moves.
//
// The first deficient slot in morning > afternoon > evening order is served
// first. Donors are slots above the floor, most populated first (ties by the
// same priority). From a donor, the candidate with the lowest affinity for its
// current slot among those with positive affinity for the deficient slot is
// moved; ties prefer higher affinity for the deficient slot, then the later
// input position. A slot that cannot be served is skipped.
func Rebalance(assignments []domain.SlotAssignment) int {
	if len(assignments) == 0 {
		return 0
	}
	floor := SlotFloor(len(assignments))

	var counts [len(domain.Slots)]int
	for _, as := range assignments {
		counts[as.Slot.Index()]++
	}

	moves := 0
	skipped := [len(domain.Slots)]bool{}
	for {
		target := -1
		for i := range counts {
			if counts[i] < floor && !skipped[i] {
				target = i
				break
			}
		}
		if target < 0 {
			return moves
		}

		donors := make([]int, 0, len(counts))
		for i := range counts {
			if i != target && counts[i] > floor {
				donors = append(donors, i)
			}
		}
		slices.SortStableFunc(donors, func(x, y int) int { return counts[y] - counts[x] })

		moved := false
		for _, donor := range donors {
			pick := pickForMove(assignments, domain.Slots[donor], domain.Slots[target])
			if pick < 0 {
				continue
			}
			assignments[pick].Slot = domain.Slots[target]
			counts[donor]--
			counts[target]++
			moves++
			moved = true
			break
		}
		if !moved {
			skipped[target] = true
		}
	}
}

func pickForMove(assignments []domain.SlotAssignment, donor, target domain.TimeSlot) int {
	best := -1
	for i, as := range assignments {
		if as.Slot != donor || as.Affinity.For(target) <= 0 {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := assignments[best]
		cur, prev := as.Affinity.For(donor), b.Affinity.For(donor)
		switch {
		case cur < prev:
			best = i
		case cur == prev && as.Affinity.For(target) > b.Affinity.For(target):
			best = i
		case cur == prev && as.Affinity.For(target) == b.Affinity.For(target):
			best = i // later input position wins
		}
	}
	return best
}

func containsAny(text string, words []string) bool {
	return slices.ContainsFunc(words, func(w string) bool {
		return w != "" && strings.Contains(text, w)
	})
}

func normalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
