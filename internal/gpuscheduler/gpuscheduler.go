// Package gpuscheduler tracks GPU slots and their busy flags, picks a
// single GPU by weighted round-robin, and splits an image count across
// GPUs proportional to weight (spec §4.B).
package gpuscheduler

import "sync"

// Slot is one configured GPU (spec §3 GPUSlot). It is immutable except
// for Busy and CurrentWeight, both guarded by the owning Scheduler's mutex.
type Slot struct {
	Device        int
	DisplayName   string
	Weight        int
	Port          int
	Busy          bool
	CurrentWeight int
}

// Assignment is one (slot, imageCount) pair returned by Distribute.
type Assignment struct {
	Slot       Slot
	ImageCount int
}

// Scheduler is the weighted multi-GPU scheduler described in spec §4.B.
// All exported methods are safe for concurrent use.
type Scheduler struct {
	mu           sync.Mutex
	slots        []*Slot
	multiEnabled bool
	distribute   bool
}

// New builds a Scheduler from a list of configured slots, in declaration
// order (tie-break order for PickOne).
func New(multiEnabled, distributeEnabled bool, slots []Slot) *Scheduler {
	s := &Scheduler{multiEnabled: multiEnabled, distribute: distributeEnabled}
	for _, slot := range slots {
		cp := slot
		cp.CurrentWeight = cp.Weight
		cp.Busy = false
		s.slots = append(s.slots, &cp)
	}
	return s
}

// Slots returns a snapshot of every configured GPU slot, in declaration order.
func (s *Scheduler) Slots() []Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Slot, len(s.slots))
	for i, slot := range s.slots {
		out[i] = *slot
	}
	return out
}

// MultiGPUEnabled reports whether the scheduler was configured as multi-GPU.
func (s *Scheduler) MultiGPUEnabled() bool {
	return s.multiEnabled
}

// PickOne chooses one GPU slot by weighted round-robin (spec §4.B): the
// non-busy slot with the highest CurrentWeight, or if all are busy the
// highest CurrentWeight regardless. Ties break by declaration order. The
// chosen slot's CurrentWeight is decremented by 1; once every slot has
// reached 0, all slots are refilled to their configured Weight before the
// pick is made.
func (s *Scheduler) PickOne() *Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.slots) == 0 {
		return nil
	}

	s.refillIfExhausted()

	candidate := s.highestWeight(false)
	if candidate == nil {
		candidate = s.highestWeight(true)
	}
	if candidate == nil {
		return nil
	}

	candidate.CurrentWeight--
	picked := *candidate
	return &picked
}

func (s *Scheduler) refillIfExhausted() {
	for _, slot := range s.slots {
		if slot.CurrentWeight > 0 {
			return
		}
	}
	for _, slot := range s.slots {
		slot.CurrentWeight = slot.Weight
	}
}

func (s *Scheduler) highestWeight(includeBusy bool) *Slot {
	var best *Slot
	for _, slot := range s.slots {
		if !includeBusy && slot.Busy {
			continue
		}
		if best == nil || slot.CurrentWeight > best.CurrentWeight {
			best = slot
		}
	}
	return best
}

// Distribute splits totalImages across available GPUs proportional to
// weight (spec §4.B, testable property 3). If distribution is disabled,
// totalImages <= 1, or there's only one candidate slot, everything is
// assigned to the single highest-weighted available slot (falling back to
// the full slot list when none is available). Otherwise each of the first
// N-1 candidates (by declaration order) gets floor(totalImages*weight/sum),
// and the remainder goes to the last candidate. Zero-count assignments are
// dropped. The sum of returned counts always equals totalImages.
func (s *Scheduler) Distribute(totalImages int) []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	if totalImages <= 0 || len(s.slots) == 0 {
		return nil
	}

	candidates := s.availableOrAll()

	if !s.distribute || totalImages <= 1 || len(candidates) == 1 {
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.Weight > best.Weight {
				best = c
			}
		}
		return []Assignment{{Slot: *best, ImageCount: totalImages}}
	}

	sum := 0
	for _, c := range candidates {
		sum += c.Weight
	}

	var out []Assignment
	assigned := 0
	for i, c := range candidates {
		if i == len(candidates)-1 {
			break
		}
		count := totalImages * c.Weight / sum
		assigned += count
		if count > 0 {
			out = append(out, Assignment{Slot: *c, ImageCount: count})
		}
	}
	remainder := totalImages - assigned
	if remainder > 0 {
		out = append(out, Assignment{Slot: *candidates[len(candidates)-1], ImageCount: remainder})
	}
	return out
}

func (s *Scheduler) availableOrAll() []*Slot {
	var free []*Slot
	for _, slot := range s.slots {
		if !slot.Busy {
			free = append(free, slot)
		}
	}
	if len(free) == 0 {
		return s.slots
	}
	return free
}

// MarkBusy sets the busy flag for the slot with the given device index.
// A no-op if no slot matches.
func (s *Scheduler) MarkBusy(device int, busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range s.slots {
		if slot.Device == device {
			slot.Busy = busy
			return
		}
	}
}
