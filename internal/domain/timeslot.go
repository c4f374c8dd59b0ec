package domain

import "strings"

type TimeSlot string

const (
	SlotMorning   TimeSlot = "MORNING"
	SlotAfternoon TimeSlot = "AFTERNOON"
	SlotEvening   TimeSlot = "EVENING"
)

// Slots lists the slots in day order, which is also the tie-break priority.
var Slots = [...]TimeSlot{SlotMorning, SlotAfternoon, SlotEvening}

// Index returns the position of the slot in the day, or -1.
func (s TimeSlot) Index() int {
	for i, slot := range Slots {
		if slot == s {
			return i
		}
	}
	return -1
}

func ParseTimeSlot(s string) (TimeSlot, error) {
	slot := TimeSlot(strings.ToUpper(strings.TrimSpace(s)))
	if slot == "NIGHT" {
		slot = SlotEvening
	}
	if slot.Index() < 0 {
		return "", NewValidationError("slot", "unknown time slot %q", s)
	}
	return slot, nil
}

// SlotAffinity holds the affinity of a candidate for each slot, indexed by
// TimeSlot.Index.
type SlotAffinity [3]float64

func (a SlotAffinity) For(s TimeSlot) float64 {
	if i := s.Index(); i >= 0 {
		return a[i]
	}
	return 0
}

// Best returns the slot with the highest affinity. Ties go to the earlier slot.
func (a SlotAffinity) Best() TimeSlot {
	best := 0
	for i := 1; i < len(a); i++ {
		if a[i] > a[best] {
			best = i
		}
	}
	return Slots[best]
}

// SlotAssignment is transient: it only lives during allocation.
type SlotAssignment struct {
	Candidate ScoredCandidate
	Slot      TimeSlot
	Affinity  SlotAffinity
}
