package domain

import "slices"

// Sibling is the ordering-relevant view of one member of a sibling group
// (items in a container, containers on a board).
type Sibling struct {
	ID       string
	Position int
}

// PositionShift records one sibling's new position after a planning step.
type PositionShift struct {
	ID       string
	Position int
}

// NextPosition returns the append slot for a sibling group: one past the
// highest occupied position, 0 when the group is empty.
func NextPosition(siblings []Sibling) int {
	next := 0
	for _, s := range siblings {
		if s.Position >= next {
			next = s.Position + 1
		}
	}
	return next
}

// ClampInsertPosition normalizes a requested insert slot. Negative means
// append; anything past the end clamps to the append slot.
func ClampInsertPosition(siblings []Sibling, position int) int {
	limit := len(siblings)
	if position < 0 || position > limit {
		return limit
	}
	return position
}

// CompactAfterRemoval plans the decrement pass that closes the gap left by a
// removed sibling: every position strictly greater than the vacated slot
// shifts down by exactly 1. The removed sibling must not be in the slice.
func CompactAfterRemoval(siblings []Sibling, removedPosition int) []PositionShift {
	shifts := make([]PositionShift, 0)
	for _, s := range siblings {
		if s.Position > removedPosition {
			shifts = append(shifts, PositionShift{ID: s.ID, Position: s.Position - 1})
		}
	}
	return shifts
}

// ShiftForInsert plans the increment pass that opens a slot at position:
// every sibling at or past the slot shifts up by exactly 1.
func ShiftForInsert(siblings []Sibling, position int) []PositionShift {
	shifts := make([]PositionShift, 0)
	for _, s := range siblings {
		if s.Position >= position {
			shifts = append(shifts, PositionShift{ID: s.ID, Position: s.Position + 1})
		}
	}
	return shifts
}

// PlanReorder plans a same-group positional move. The moved sibling must be
// present in the slice; target is clamped to the last occupied slot. The
// returned shifts exclude the moved sibling, whose new position is returned
// separately.
func PlanReorder(siblings []Sibling, movedID string, target int) (int, []PositionShift) {
	current := -1
	for _, s := range siblings {
		if s.ID == movedID {
			current = s.Position
			break
		}
	}
	if current < 0 {
		return -1, nil
	}
	if limit := len(siblings) - 1; target < 0 || target > limit {
		target = limit
	}
	shifts := make([]PositionShift, 0)
	switch {
	case target == current:
	case target > current:
		for _, s := range siblings {
			if s.ID != movedID && s.Position > current && s.Position <= target {
				shifts = append(shifts, PositionShift{ID: s.ID, Position: s.Position - 1})
			}
		}
	default:
		for _, s := range siblings {
			if s.ID != movedID && s.Position >= target && s.Position < current {
				shifts = append(shifts, PositionShift{ID: s.ID, Position: s.Position + 1})
			}
		}
	}
	return target, shifts
}

// VerifyDense reports whether the group's positions are exactly {0..n-1}.
func VerifyDense(siblings []Sibling) error {
	positions := make([]int, 0, len(siblings))
	for _, s := range siblings {
		positions = append(positions, s.Position)
	}
	slices.Sort(positions)
	for want, got := range positions {
		if got != want {
			return ErrPositionsNotDense
		}
	}
	return nil
}

// ApplyShifts returns the group with the planned shifts applied.
func ApplyShifts(siblings []Sibling, shifts []PositionShift) []Sibling {
	byID := make(map[string]int, len(shifts))
	for _, shift := range shifts {
		byID[shift.ID] = shift.Position
	}
	out := make([]Sibling, 0, len(siblings))
	for _, s := range siblings {
		if pos, ok := byID[s.ID]; ok {
			s.Position = pos
		}
		out = append(out, s)
	}
	return out
}
