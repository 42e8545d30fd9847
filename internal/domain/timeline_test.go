package domain

import (
	"testing"
	"time"
)

func mustEvent(t *testing.T, id int64, itemID string, from, to string, occurredAt time.Time) ActivityEvent {
	t.Helper()
	event, err := NewActivityEvent(itemID, EventItemMoved, from, to, occurredAt)
	if err != nil {
		t.Fatalf("NewActivityEvent() error = %v", err)
	}
	event.ID = id
	return event
}

func TestDurationDays(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int
	}{
		{name: "zero elapsed floors to one", start: base, end: base, want: 1},
		{name: "partial day rounds up", start: base, end: base.Add(6 * time.Hour), want: 1},
		{name: "exact days", start: base, end: base.AddDate(0, 0, 2), want: 2},
		{name: "two days and change", start: base, end: base.AddDate(0, 0, 2).Add(time.Minute), want: 3},
		{name: "negative elapsed floors to one", start: base, end: base.Add(-time.Hour), want: 1},
	}
	for _, tc := range cases {
		if got := DurationDays(tc.start, tc.end); got != tc.want {
			t.Fatalf("%s: DurationDays() = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestBuildResidency_NoMoves(t *testing.T) {
	createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)

	segments := BuildResidency(createdAt, "col-a", nil, now)
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	seg := segments[0]
	if seg.ContainerID != "col-a" || !seg.StartAt.Equal(createdAt) || !seg.EndAt.Equal(now) {
		t.Fatalf("unexpected segment %#v", seg)
	}
	if !seg.IsCurrent {
		t.Fatal("expected single segment to be current")
	}
	if seg.DurationDays != 3 {
		t.Fatalf("DurationDays = %d, want 3", seg.DurationDays)
	}
}

func TestBuildResidency_MoveChain(t *testing.T) {
	createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	moves := []ActivityEvent{
		mustEvent(t, 1, "t1", "A", "B", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)),
		mustEvent(t, 2, "t1", "B", "C", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
	}

	segments := BuildResidency(createdAt, "C", moves, now)
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}

	want := []struct {
		container string
		days      int
		current   bool
	}{
		{container: "A", days: 2, current: false},
		{container: "B", days: 7, current: false},
		{container: "C", days: 5, current: true},
	}
	for i, w := range want {
		seg := segments[i]
		if seg.ContainerID != w.container || seg.DurationDays != w.days || seg.IsCurrent != w.current {
			t.Fatalf("segment %d = %#v, want %+v", i, seg, w)
		}
	}
	if !segments[0].StartAt.Equal(createdAt) {
		t.Fatalf("first segment starts at %v, want createdAt", segments[0].StartAt)
	}
	for i := 1; i < len(segments); i++ {
		if !segments[i].StartAt.Equal(segments[i-1].EndAt) {
			t.Fatalf("segments %d and %d are not contiguous", i-1, i)
		}
	}
	if !segments[2].EndAt.Equal(now) {
		t.Fatalf("last segment ends at %v, want now", segments[2].EndAt)
	}
}

func TestBuildResidency_Idempotent(t *testing.T) {
	createdAt := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	moves := []ActivityEvent{
		mustEvent(t, 10, "t1", "backlog", "doing", createdAt.AddDate(0, 0, 5)),
	}

	first := BuildResidency(createdAt, "doing", moves, now)
	second := BuildResidency(createdAt, "doing", moves, now)
	if len(first) != len(second) {
		t.Fatalf("segment counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("segment %d differs: %#v vs %#v", i, first[i], second[i])
		}
	}
}

func TestBuildResidency_IgnoresNonMoveEvents(t *testing.T) {
	createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := createdAt.AddDate(0, 0, 10)
	created, err := NewActivityEvent("t1", EventItemCreated, "", "A", createdAt)
	if err != nil {
		t.Fatalf("NewActivityEvent() error = %v", err)
	}

	segments := BuildResidency(createdAt, "A", []ActivityEvent{created}, now)
	if len(segments) != 1 || segments[0].ContainerID != "A" {
		t.Fatalf("expected creation event to be ignored, got %#v", segments)
	}
}

func TestBuildResidency_ClockSkewKeepsFetchOrder(t *testing.T) {
	createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := createdAt.AddDate(0, 0, 4)
	// Second move carries an earlier wall-clock time than the first. The
	// ledger order stands; the projector does not reorder or infer corrections.
	moves := []ActivityEvent{
		mustEvent(t, 1, "t1", "A", "B", createdAt.AddDate(0, 0, 2)),
		mustEvent(t, 2, "t1", "B", "C", createdAt.AddDate(0, 0, 1)),
	}

	segments := BuildResidency(createdAt, "C", moves, now)
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	if segments[1].ContainerID != "B" || segments[2].ContainerID != "C" {
		t.Fatalf("unexpected container order: %#v", segments)
	}
	// The skewed middle segment still reports at least one day.
	if segments[1].DurationDays != 1 {
		t.Fatalf("skewed segment DurationDays = %d, want 1", segments[1].DurationDays)
	}
	if !segments[2].IsCurrent {
		t.Fatal("expected final segment to stay current")
	}
}

func TestSortMoves(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []ActivityEvent{
		mustEvent(t, 3, "t1", "B", "C", base.Add(2*time.Hour)),
		mustEvent(t, 2, "t1", "A", "B", base.Add(time.Hour)),
		mustEvent(t, 5, "t1", "C", "D", base.Add(2*time.Hour)),
	}
	SortMoves(events)
	if events[0].ID != 2 || events[1].ID != 3 || events[2].ID != 5 {
		t.Fatalf("unexpected order: %v %v %v", events[0].ID, events[1].ID, events[2].ID)
	}
}
