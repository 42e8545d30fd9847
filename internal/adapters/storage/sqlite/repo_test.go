package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hylla/flyt/internal/app"
	"github.com/hylla/flyt/internal/domain"
	_ "modernc.org/sqlite"
)

func TestRepository_BoardContainerItemLifecycle(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "flyt.db")
	repo, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	board, err := domain.NewBoard("b1", "Pipeline", now)
	if err != nil {
		t.Fatalf("NewBoard() error = %v", err)
	}
	if err := repo.CreateBoard(ctx, board); err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}

	loadedBoard, err := repo.GetBoard(ctx, board.ID)
	if err != nil {
		t.Fatalf("GetBoard() error = %v", err)
	}
	if loadedBoard.Name != "Pipeline" || !loadedBoard.CreatedAt.Equal(now) {
		t.Fatalf("unexpected board %#v", loadedBoard)
	}

	todo, err := domain.NewContainer("c1", board.ID, "To Do", 0, now)
	if err != nil {
		t.Fatalf("NewContainer() error = %v", err)
	}
	if err := repo.CreateContainer(ctx, todo); err != nil {
		t.Fatalf("CreateContainer() error = %v", err)
	}
	doing, err := domain.NewContainer("c2", board.ID, "Doing", 1, now)
	if err != nil {
		t.Fatalf("NewContainer() error = %v", err)
	}
	if err := repo.CreateContainer(ctx, doing); err != nil {
		t.Fatalf("CreateContainer() error = %v", err)
	}

	item, err := domain.NewItem(domain.ItemInput{
		ID:          "i1",
		BoardID:     board.ID,
		ContainerID: todo.ID,
		Position:    0,
		Title:       "first",
	}, now)
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}
	if err := repo.CreateItem(ctx, item); err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}

	items, err := repo.ListItems(ctx, todo.ID)
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	if len(items) != 1 || items[0].Title != "first" {
		t.Fatalf("unexpected items %#v", items)
	}

	if err := item.Relocate(doing.ID, 0, now.Add(time.Minute)); err != nil {
		t.Fatalf("Relocate() error = %v", err)
	}
	if err := repo.MoveItem(ctx, item, nil); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	moved, err := repo.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if moved.ContainerID != doing.ID || moved.Position != 0 {
		t.Fatalf("unexpected moved item %#v", moved)
	}

	if err := repo.DeleteItem(ctx, item.ID, nil); err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}
	if _, err := repo.GetItem(ctx, item.ID); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected app.ErrNotFound, got %v", err)
	}
}

func TestRepository_ShiftsApplyAtomically(t *testing.T) {
	ctx := context.Background()
	repo, err := Open(filepath.Join(t.TempDir(), "flyt.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	board, _ := domain.NewBoard("b1", "Pipeline", now)
	if err := repo.CreateBoard(ctx, board); err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	todo, _ := domain.NewContainer("c1", board.ID, "To Do", 0, now)
	if err := repo.CreateContainer(ctx, todo); err != nil {
		t.Fatalf("CreateContainer() error = %v", err)
	}
	for i, id := range []string{"i1", "i2", "i3"} {
		item, _ := domain.NewItem(domain.ItemInput{
			ID: id, BoardID: board.ID, ContainerID: todo.ID, Position: i, Title: "task " + id,
		}, now)
		if err := repo.CreateItem(ctx, item); err != nil {
			t.Fatalf("CreateItem(%s) error = %v", id, err)
		}
	}

	// Delete the head item and compact the survivors in one transaction.
	shifts := []domain.PositionShift{{ID: "i2", Position: 0}, {ID: "i3", Position: 1}}
	if err := repo.DeleteItem(ctx, "i1", shifts); err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}
	items, err := repo.ListItems(ctx, todo.ID)
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != "i2" || items[0].Position != 0 || items[1].ID != "i3" || items[1].Position != 1 {
		t.Fatalf("unexpected compacted items %#v", items)
	}

	// A shift targeting a missing row rolls the whole transaction back.
	badShifts := []domain.PositionShift{{ID: "ghost", Position: 0}}
	if err := repo.DeleteItem(ctx, "i2", badShifts); !errors.Is(err, app.ErrOrderIntegrity) {
		t.Fatalf("expected app.ErrOrderIntegrity, got %v", err)
	}
	if _, err := repo.GetItem(ctx, "i2"); err != nil {
		t.Fatalf("expected i2 to survive the rollback, got %v", err)
	}
}

func TestRepository_DeleteContainerCascadesItems(t *testing.T) {
	ctx := context.Background()
	repo, err := Open(filepath.Join(t.TempDir(), "flyt.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	board, _ := domain.NewBoard("b1", "Pipeline", now)
	if err := repo.CreateBoard(ctx, board); err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	todo, _ := domain.NewContainer("c1", board.ID, "To Do", 0, now)
	doing, _ := domain.NewContainer("c2", board.ID, "Doing", 1, now)
	for _, c := range []domain.Container{todo, doing} {
		if err := repo.CreateContainer(ctx, c); err != nil {
			t.Fatalf("CreateContainer(%s) error = %v", c.ID, err)
		}
	}
	item, _ := domain.NewItem(domain.ItemInput{
		ID: "i1", BoardID: board.ID, ContainerID: todo.ID, Position: 0, Title: "goes away",
	}, now)
	if err := repo.CreateItem(ctx, item); err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}

	shifts := []domain.PositionShift{{ID: doing.ID, Position: 0}}
	if err := repo.DeleteContainer(ctx, todo.ID, shifts); err != nil {
		t.Fatalf("DeleteContainer() error = %v", err)
	}
	if _, err := repo.GetItem(ctx, item.ID); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected contained item to cascade, got %v", err)
	}
	containers, err := repo.ListContainers(ctx, board.ID)
	if err != nil {
		t.Fatalf("ListContainers() error = %v", err)
	}
	if len(containers) != 1 || containers[0].ID != doing.ID || containers[0].Position != 0 {
		t.Fatalf("unexpected containers %#v", containers)
	}
}

func TestRepository_ActivityLedgerBatchReads(t *testing.T) {
	ctx := context.Background()
	repo, err := Open(filepath.Join(t.TempDir(), "flyt.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	base := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	appendEvent := func(itemID string, eventType domain.EventType, from, to string, at time.Time) {
		t.Helper()
		event, err := domain.NewActivityEvent(itemID, eventType, from, to, at)
		if err != nil {
			t.Fatalf("NewActivityEvent() error = %v", err)
		}
		if err := repo.AppendEvent(ctx, event); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
	}

	appendEvent("i1", domain.EventItemCreated, "", "c1", base)
	appendEvent("i1", domain.EventItemMoved, "c1", "c2", base.Add(2*time.Hour))
	// Identical timestamps must come back in insertion order.
	appendEvent("i1", domain.EventItemMoved, "c2", "c3", base.Add(4*time.Hour))
	appendEvent("i1", domain.EventItemMoved, "c3", "c1", base.Add(4*time.Hour))
	appendEvent("i2", domain.EventItemMoved, "c1", "c2", base.Add(time.Hour))
	appendEvent("i3", domain.EventItemMoved, "c1", "c2", base.Add(time.Hour))

	events, err := repo.ListMoveEvents(ctx, []string{"i1", "i2"})
	if err != nil {
		t.Fatalf("ListMoveEvents() error = %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 move events, got %d", len(events))
	}
	for _, event := range events {
		if event.Type != domain.EventItemMoved {
			t.Fatalf("non-move event returned: %#v", event)
		}
		if event.ItemID == "i3" {
			t.Fatalf("event for unrequested item returned: %#v", event)
		}
	}
	for i := 1; i < len(events); i++ {
		prev, next := events[i-1], events[i]
		if next.OccurredAt.Before(prev.OccurredAt) {
			t.Fatalf("events out of time order: %#v before %#v", prev, next)
		}
		if next.OccurredAt.Equal(prev.OccurredAt) && next.ID < prev.ID {
			t.Fatalf("tie not broken by ledger id: %#v before %#v", prev, next)
		}
	}
}

func TestRepository_ContainerNamesAndItemBatches(t *testing.T) {
	ctx := context.Background()
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	board, _ := domain.NewBoard("b1", "Pipeline", now)
	if err := repo.CreateBoard(ctx, board); err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	todo, _ := domain.NewContainer("c1", board.ID, "To Do", 0, now)
	doing, _ := domain.NewContainer("c2", board.ID, "Doing", 1, now)
	for _, c := range []domain.Container{todo, doing} {
		if err := repo.CreateContainer(ctx, c); err != nil {
			t.Fatalf("CreateContainer(%s) error = %v", c.ID, err)
		}
	}

	names, err := repo.ContainerNames(ctx, []string{"c1", "c2", "ghost"})
	if err != nil {
		t.Fatalf("ContainerNames() error = %v", err)
	}
	if len(names) != 2 || names["c1"] != "To Do" || names["c2"] != "Doing" {
		t.Fatalf("unexpected names %#v", names)
	}
	if _, ok := names["ghost"]; ok {
		t.Fatal("missing container must be absent, not empty")
	}

	for i, id := range []string{"i1", "i2"} {
		item, _ := domain.NewItem(domain.ItemInput{
			ID: id, BoardID: board.ID, ContainerID: todo.ID, Position: i, Title: "task " + id,
		}, now)
		if err := repo.CreateItem(ctx, item); err != nil {
			t.Fatalf("CreateItem(%s) error = %v", id, err)
		}
	}
	items, err := repo.GetItemsByIDs(ctx, []string{"i1", "ghost", "i2"})
	if err != nil {
		t.Fatalf("GetItemsByIDs() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %#v", items)
	}
}

func TestRepository_UpdateMutations(t *testing.T) {
	ctx := context.Background()
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	board, _ := domain.NewBoard("b1", "Pipeline", now)
	if err := repo.CreateBoard(ctx, board); err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	todo, _ := domain.NewContainer("c1", board.ID, "To Do", 0, now)
	doing, _ := domain.NewContainer("c2", board.ID, "Doing", 1, now)
	for _, c := range []domain.Container{todo, doing} {
		if err := repo.CreateContainer(ctx, c); err != nil {
			t.Fatalf("CreateContainer(%s) error = %v", c.ID, err)
		}
	}
	item, _ := domain.NewItem(domain.ItemInput{
		ID: "i1", BoardID: board.ID, ContainerID: todo.ID, Position: 0, Title: "draft",
	}, now)
	if err := repo.CreateItem(ctx, item); err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}

	later := now.Add(time.Hour)
	if err := board.Rename("Pipeline 2026", later); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if err := repo.UpdateBoard(ctx, board); err != nil {
		t.Fatalf("UpdateBoard() error = %v", err)
	}
	loadedBoard, err := repo.GetBoard(ctx, board.ID)
	if err != nil {
		t.Fatalf("GetBoard() error = %v", err)
	}
	if loadedBoard.Name != "Pipeline 2026" || !loadedBoard.UpdatedAt.Equal(later) {
		t.Fatalf("unexpected board %#v", loadedBoard)
	}

	if err := todo.Rename("Backlog", later); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if err := repo.UpdateContainer(ctx, todo); err != nil {
		t.Fatalf("UpdateContainer() error = %v", err)
	}
	loadedContainer, err := repo.GetContainer(ctx, todo.ID)
	if err != nil {
		t.Fatalf("GetContainer() error = %v", err)
	}
	if loadedContainer.Name != "Backlog" || loadedContainer.Position != 0 {
		t.Fatalf("unexpected container %#v", loadedContainer)
	}

	// Move the second container to the front, shifting the first back.
	if err := doing.SetPosition(0, later); err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}
	shifts := []domain.PositionShift{{ID: todo.ID, Position: 1}}
	if err := repo.MoveContainer(ctx, doing, shifts); err != nil {
		t.Fatalf("MoveContainer() error = %v", err)
	}
	containers, err := repo.ListContainers(ctx, board.ID)
	if err != nil {
		t.Fatalf("ListContainers() error = %v", err)
	}
	if len(containers) != 2 || containers[0].ID != doing.ID || containers[1].ID != todo.ID {
		t.Fatalf("unexpected container order %#v", containers)
	}

	// A shift targeting a missing row rolls the whole transaction back.
	if err := doing.SetPosition(1, later); err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}
	badShifts := []domain.PositionShift{{ID: "ghost", Position: 0}}
	if err := repo.MoveContainer(ctx, doing, badShifts); !errors.Is(err, app.ErrOrderIntegrity) {
		t.Fatalf("expected app.ErrOrderIntegrity, got %v", err)
	}
	survivor, err := repo.GetContainer(ctx, doing.ID)
	if err != nil {
		t.Fatalf("GetContainer() error = %v", err)
	}
	if survivor.Position != 0 {
		t.Fatalf("expected position to survive the rollback, got %#v", survivor)
	}

	if err := item.Retitle("final", later); err != nil {
		t.Fatalf("Retitle() error = %v", err)
	}
	if err := repo.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem() error = %v", err)
	}
	loadedItem, err := repo.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if loadedItem.Title != "final" || loadedItem.ContainerID != todo.ID {
		t.Fatalf("unexpected item %#v", loadedItem)
	}

	ghostBoard := board
	ghostBoard.ID = "missing"
	if err := repo.UpdateBoard(ctx, ghostBoard); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected app.ErrNotFound for board update, got %v", err)
	}
	ghostItem := item
	ghostItem.ID = "missing"
	if err := repo.UpdateItem(ctx, ghostItem); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected app.ErrNotFound for item update, got %v", err)
	}
}

func TestRepository_NotFoundCases(t *testing.T) {
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	ctx := context.Background()
	if _, err := repo.GetBoard(ctx, "missing"); err != app.ErrNotFound {
		t.Fatalf("expected app.ErrNotFound for board, got %v", err)
	}
	if _, err := repo.GetContainer(ctx, "missing"); err != app.ErrNotFound {
		t.Fatalf("expected app.ErrNotFound for container, got %v", err)
	}
	if _, err := repo.GetItem(ctx, "missing"); err != app.ErrNotFound {
		t.Fatalf("expected app.ErrNotFound for item, got %v", err)
	}
	if err := repo.DeleteItem(ctx, "missing", nil); err != app.ErrNotFound {
		t.Fatalf("expected app.ErrNotFound for item delete, got %v", err)
	}
	if err := repo.DeleteContainer(ctx, "missing", nil); err != app.ErrNotFound {
		t.Fatalf("expected app.ErrNotFound for container delete, got %v", err)
	}
}

func TestRepositoryOpenValidation(t *testing.T) {
	if _, err := Open("   "); err == nil {
		t.Fatal("expected error for empty sqlite path")
	}
}
