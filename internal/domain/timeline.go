package domain

import (
	"slices"
	"time"
)

// ResidencySegment is one contiguous interval during which an item sat in a
// single container. Segments are derived at query time and never persisted.
// The interval is half-open: [StartAt, EndAt).
type ResidencySegment struct {
	ContainerID    string
	ContainerLabel string
	StartAt        time.Time
	EndAt          time.Time
	DurationDays   int
	IsCurrent      bool
}

// DurationDays reports the whole days covered by [start, end), with a floor
// of one day so a stage entered and left on the same day still counts.
func DurationDays(start, end time.Time) int {
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return 1
	}
	days := int(elapsed / (24 * time.Hour))
	if elapsed%(24*time.Hour) != 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}

// SortMoves orders ledger events ascending by occurrence time, tie-broken by
// ledger sequence id. Events are never reordered beyond that, even when
// clock skew makes a later event carry an earlier timestamp.
func SortMoves(events []ActivityEvent) {
	slices.SortStableFunc(events, func(a, b ActivityEvent) int {
		if a.OccurredAt.Equal(b.OccurredAt) {
			switch {
			case a.ID < b.ID:
				return -1
			case a.ID > b.ID:
				return 1
			default:
				return 0
			}
		}
		if a.OccurredAt.Before(b.OccurredAt) {
			return -1
		}
		return 1
	})
}

// BuildResidency projects an item's container residency from its creation
// time, its current container, and its ordered move events. Labels are left
// empty for the caller to resolve. With no move events the item has sat in
// its current container since creation; otherwise the first segment covers
// creation up to the first move, and each move opens a segment that closes at
// the next move (or now, for the segment flagged current).
func BuildResidency(createdAt time.Time, currentContainerID string, moves []ActivityEvent, now time.Time) []ResidencySegment {
	filtered := make([]ActivityEvent, 0, len(moves))
	for _, event := range moves {
		if event.IsMove() {
			filtered = append(filtered, event)
		}
	}

	if len(filtered) == 0 {
		return []ResidencySegment{{
			ContainerID:  currentContainerID,
			StartAt:      createdAt,
			EndAt:        now,
			DurationDays: DurationDays(createdAt, now),
			IsCurrent:    true,
		}}
	}

	segments := make([]ResidencySegment, 0, len(filtered)+1)
	segments = append(segments, ResidencySegment{
		ContainerID:  filtered[0].FromContainerID,
		StartAt:      createdAt,
		EndAt:        filtered[0].OccurredAt,
		DurationDays: DurationDays(createdAt, filtered[0].OccurredAt),
	})
	for i, event := range filtered {
		end := now
		last := i == len(filtered)-1
		if !last {
			end = filtered[i+1].OccurredAt
		}
		segments = append(segments, ResidencySegment{
			ContainerID:  event.ToContainerID,
			StartAt:      event.OccurredAt,
			EndAt:        end,
			DurationDays: DurationDays(event.OccurredAt, end),
			IsCurrent:    last,
		})
	}
	return segments
}
