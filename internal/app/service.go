package app

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hylla/flyt/internal/domain"
)

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	TimelineTimeout time.Duration
	MaxBatchIDs     int
}

// Service orchestrates ordering mutations, activity recording, and timeline
// projection against a Repository.
type Service struct {
	repo            Repository
	idGen           IDGenerator
	clock           Clock
	logger          Logger
	timelineTimeout time.Duration
	maxBatchIDs     int

	mu     sync.Mutex
	groups map[string]*groupLock
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, logger Logger, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Service{
		repo:            repo,
		idGen:           idGen,
		clock:           clock,
		logger:          logger,
		timelineTimeout: cfg.TimelineTimeout,
		maxBatchIDs:     cfg.MaxBatchIDs,
		groups:          map[string]*groupLock{},
	}
}

// nopLogger discards log events when no logger is injected.
type nopLogger struct{}

func (nopLogger) Debug(any, ...any) {}
func (nopLogger) Warn(any, ...any)  {}

// groupLock is one sibling group's mutex plus the number of callers holding
// or waiting on it. The count lets lockGroup drop idle entries from the map
// instead of accumulating one mutex per group ever touched.
type groupLock struct {
	mu   sync.Mutex
	refs int
}

// lockGroup serializes mutations per sibling group. The position column is
// the only shared mutable resource; without this two concurrent deletes on
// one container could double-decrement a sibling. Keys are sorted before
// locking so multi-group callers cannot deadlock each other.
func (s *Service) lockGroup(keys ...string) func() {
	sort.Strings(keys)
	s.mu.Lock()
	held := make([]string, 0, len(keys))
	locks := make([]*groupLock, 0, len(keys))
	seen := map[string]struct{}{}
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		lock, ok := s.groups[key]
		if !ok {
			lock = &groupLock{}
			s.groups[key] = lock
		}
		lock.refs++
		held = append(held, key)
		locks = append(locks, lock)
	}
	s.mu.Unlock()

	for _, lock := range locks {
		lock.mu.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].mu.Unlock()
		}
		s.mu.Lock()
		for i, key := range held {
			locks[i].refs--
			if locks[i].refs == 0 {
				delete(s.groups, key)
			}
		}
		s.mu.Unlock()
	}
}

// CreateBoard creates board.
func (s *Service) CreateBoard(ctx context.Context, name string) (domain.Board, error) {
	board, err := domain.NewBoard(s.idGen(), name, s.clock())
	if err != nil {
		return domain.Board{}, err
	}
	if err := s.repo.CreateBoard(ctx, board); err != nil {
		return domain.Board{}, err
	}
	return board, nil
}

// ListBoards lists boards.
func (s *Service) ListBoards(ctx context.Context) ([]domain.Board, error) {
	return s.repo.ListBoards(ctx)
}

// RenameBoard renames board.
func (s *Service) RenameBoard(ctx context.Context, boardID, name string) (domain.Board, error) {
	board, err := s.repo.GetBoard(ctx, boardID)
	if err != nil {
		return domain.Board{}, err
	}
	if err := board.Rename(name, s.clock()); err != nil {
		return domain.Board{}, err
	}
	if err := s.repo.UpdateBoard(ctx, board); err != nil {
		return domain.Board{}, err
	}
	return board, nil
}

// CreateContainer appends a container at the end of its board's sibling group.
func (s *Service) CreateContainer(ctx context.Context, boardID, name string) (domain.Container, error) {
	if _, err := s.repo.GetBoard(ctx, boardID); err != nil {
		return domain.Container{}, err
	}

	unlock := s.lockGroup("board:" + boardID)
	defer unlock()

	siblings, err := s.repo.ListContainers(ctx, boardID)
	if err != nil {
		return domain.Container{}, err
	}
	position := domain.NextPosition(containerSiblings(siblings))
	container, err := domain.NewContainer(s.idGen(), boardID, name, position, s.clock())
	if err != nil {
		return domain.Container{}, err
	}
	if err := s.repo.CreateContainer(ctx, container); err != nil {
		return domain.Container{}, err
	}
	return container, nil
}

// ListContainers lists containers ordered by position.
func (s *Service) ListContainers(ctx context.Context, boardID string) ([]domain.Container, error) {
	containers, err := s.repo.ListContainers(ctx, boardID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(containers, func(a, b domain.Container) int {
		return a.Position - b.Position
	})
	return containers, nil
}

// RenameContainer renames container.
func (s *Service) RenameContainer(ctx context.Context, containerID, name string) (domain.Container, error) {
	container, err := s.repo.GetContainer(ctx, containerID)
	if err != nil {
		return domain.Container{}, err
	}
	if err := container.Rename(name, s.clock()); err != nil {
		return domain.Container{}, err
	}
	if err := s.repo.UpdateContainer(ctx, container); err != nil {
		return domain.Container{}, err
	}
	return container, nil
}

// MoveContainer reorders a container within its board. position < 0 moves it
// to the end; out-of-range positions clamp the same way item reorders do.
func (s *Service) MoveContainer(ctx context.Context, containerID string, position int) (domain.Container, error) {
	container, err := s.repo.GetContainer(ctx, containerID)
	if err != nil {
		return domain.Container{}, err
	}

	unlock := s.lockGroup("board:" + container.BoardID)
	defer unlock()

	siblings, err := s.repo.ListContainers(ctx, container.BoardID)
	if err != nil {
		return domain.Container{}, err
	}
	group := containerSiblings(siblings)
	target, shifts := domain.PlanReorder(group, container.ID, position)
	if target < 0 {
		return domain.Container{}, ErrNotFound
	}
	if target == container.Position {
		return container, nil
	}
	if err := container.SetPosition(target, s.clock()); err != nil {
		return domain.Container{}, err
	}
	if err := s.repo.MoveContainer(ctx, container, shifts); err != nil {
		return domain.Container{}, err
	}
	return container, nil
}

// DeleteContainer removes a container, compacting the board's sibling group.
// Items inside the container go with it.
func (s *Service) DeleteContainer(ctx context.Context, containerID string) error {
	container, err := s.repo.GetContainer(ctx, containerID)
	if err != nil {
		return err
	}

	unlock := s.lockGroup("board:" + container.BoardID)
	defer unlock()

	siblings, err := s.repo.ListContainers(ctx, container.BoardID)
	if err != nil {
		return err
	}
	remaining := make([]domain.Sibling, 0, len(siblings))
	for _, sibling := range siblings {
		if sibling.ID != containerID {
			remaining = append(remaining, domain.Sibling{ID: sibling.ID, Position: sibling.Position})
		}
	}
	shifts := domain.CompactAfterRemoval(remaining, container.Position)
	if err := verifyPlan(remaining, shifts); err != nil {
		return err
	}
	return s.repo.DeleteContainer(ctx, containerID, shifts)
}

// CreateItemInput holds input values for create item operations.
type CreateItemInput struct {
	BoardID     string
	ContainerID string
	Title       string
}

// CreateItem appends an item at the end of its container's sibling group and
// records a creation event.
func (s *Service) CreateItem(ctx context.Context, in CreateItemInput) (domain.Item, error) {
	container, err := s.repo.GetContainer(ctx, in.ContainerID)
	if err != nil {
		return domain.Item{}, err
	}
	if in.BoardID == "" {
		in.BoardID = container.BoardID
	}
	if container.BoardID != in.BoardID {
		return domain.Item{}, domain.ErrInvalidContainerID
	}

	unlock := s.lockGroup("container:" + in.ContainerID)
	defer unlock()

	siblings, err := s.repo.ListItems(ctx, in.ContainerID)
	if err != nil {
		return domain.Item{}, err
	}
	item, err := domain.NewItem(domain.ItemInput{
		ID:          s.idGen(),
		BoardID:     in.BoardID,
		ContainerID: in.ContainerID,
		Position:    domain.NextPosition(itemSiblings(siblings)),
		Title:       in.Title,
	}, s.clock())
	if err != nil {
		return domain.Item{}, err
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return domain.Item{}, err
	}

	s.recordActivity(ctx, item.ID, domain.EventItemCreated, "", item.ContainerID)
	return item, nil
}

// ListItems lists a container's items ordered by position.
func (s *Service) ListItems(ctx context.Context, containerID string) ([]domain.Item, error) {
	items, err := s.repo.ListItems(ctx, containerID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(items, func(a, b domain.Item) int {
		return a.Position - b.Position
	})
	return items, nil
}

// GetItem returns item.
func (s *Service) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	return s.repo.GetItem(ctx, itemID)
}

// RetitleItem updates an item's title and records an update event. The
// projector ignores item_updated rows; they exist for audit display.
func (s *Service) RetitleItem(ctx context.Context, itemID, title string) (domain.Item, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	if err := item.Retitle(title, s.clock()); err != nil {
		return domain.Item{}, err
	}
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return domain.Item{}, err
	}

	s.recordActivity(ctx, item.ID, domain.EventItemUpdated, "", item.ContainerID)
	return item, nil
}

// MoveItem relocates an item to a container slot. position < 0 appends.
// Cross-container moves compact the vacated group and open a slot in the
// target group; same-container moves shift only the slots between the
// vacated and occupied positions. Both sides commit atomically.
func (s *Service) MoveItem(ctx context.Context, itemID, toContainerID string, position int) (domain.Item, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	target, err := s.repo.GetContainer(ctx, toContainerID)
	if err != nil {
		return domain.Item{}, err
	}
	if target.BoardID != item.BoardID {
		return domain.Item{}, domain.ErrInvalidContainerID
	}

	fromContainerID := item.ContainerID
	if fromContainerID == toContainerID {
		return s.reorderItem(ctx, item, position)
	}

	unlock := s.lockGroup("container:"+fromContainerID, "container:"+toContainerID)
	defer unlock()

	oldSiblings, err := s.repo.ListItems(ctx, fromContainerID)
	if err != nil {
		return domain.Item{}, err
	}
	remaining := make([]domain.Sibling, 0, len(oldSiblings))
	for _, sibling := range oldSiblings {
		if sibling.ID != item.ID {
			remaining = append(remaining, domain.Sibling{ID: sibling.ID, Position: sibling.Position})
		}
	}
	shifts := domain.CompactAfterRemoval(remaining, item.Position)
	if err := verifyPlan(remaining, shifts); err != nil {
		return domain.Item{}, err
	}

	newSiblings, err := s.repo.ListItems(ctx, toContainerID)
	if err != nil {
		return domain.Item{}, err
	}
	targetGroup := itemSiblings(newSiblings)
	insertAt := domain.ClampInsertPosition(targetGroup, position)
	shifts = append(shifts, domain.ShiftForInsert(targetGroup, insertAt)...)

	if err := item.Relocate(toContainerID, insertAt, s.clock()); err != nil {
		return domain.Item{}, err
	}
	if err := s.repo.MoveItem(ctx, item, shifts); err != nil {
		return domain.Item{}, err
	}

	s.recordActivity(ctx, item.ID, domain.EventItemMoved, fromContainerID, toContainerID)
	return item, nil
}

// reorderItem handles a positional move within one container.
func (s *Service) reorderItem(ctx context.Context, item domain.Item, position int) (domain.Item, error) {
	unlock := s.lockGroup("container:" + item.ContainerID)
	defer unlock()

	siblings, err := s.repo.ListItems(ctx, item.ContainerID)
	if err != nil {
		return domain.Item{}, err
	}
	group := itemSiblings(siblings)
	target, shifts := domain.PlanReorder(group, item.ID, position)
	if target < 0 {
		return domain.Item{}, ErrNotFound
	}
	if target == item.Position {
		return item, nil
	}
	if err := item.Relocate(item.ContainerID, target, s.clock()); err != nil {
		return domain.Item{}, err
	}
	if err := s.repo.MoveItem(ctx, item, shifts); err != nil {
		return domain.Item{}, err
	}

	// Residency is unchanged, so no move event lands in the ledger. A
	// from == to row would split the item's single residency interval into
	// bogus segments once projected.
	return item, nil
}

// DeleteItem removes an item and compacts its container's sibling group in
// the same transaction.
func (s *Service) DeleteItem(ctx context.Context, itemID string) error {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	unlock := s.lockGroup("container:" + item.ContainerID)
	defer unlock()

	siblings, err := s.repo.ListItems(ctx, item.ContainerID)
	if err != nil {
		return err
	}
	remaining := make([]domain.Sibling, 0, len(siblings))
	for _, sibling := range siblings {
		if sibling.ID != itemID {
			remaining = append(remaining, domain.Sibling{ID: sibling.ID, Position: sibling.Position})
		}
	}
	shifts := domain.CompactAfterRemoval(remaining, item.Position)
	if err := verifyPlan(remaining, shifts); err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, itemID, shifts); err != nil {
		return err
	}

	s.recordActivity(ctx, item.ID, domain.EventItemDeleted, item.ContainerID, "")
	return nil
}

// recordActivity appends one ledger event. Append failures are logged and
// swallowed: the triggering mutation has already committed, and the ledger is
// allowed to under-report rather than fail the operation. Timelines projected
// after a lost write will misattribute the affected residency interval.
func (s *Service) recordActivity(ctx context.Context, itemID string, eventType domain.EventType, fromContainerID, toContainerID string) {
	event, err := domain.NewActivityEvent(itemID, eventType, fromContainerID, toContainerID, s.clock())
	if err != nil {
		s.logger.Warn("activity event rejected", "item_id", itemID, "type", eventType, "err", err)
		return
	}
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		s.logger.Warn("activity append failed, ledger accuracy degraded",
			"item_id", itemID, "type", eventType,
			"from_container_id", fromContainerID, "to_container_id", toContainerID,
			"err", err)
		return
	}
	s.logger.Debug("activity recorded", "item_id", itemID, "type", eventType)
}

// verifyPlan rejects a shift plan that would leave the group non-dense.
func verifyPlan(remaining []domain.Sibling, shifts []domain.PositionShift) error {
	if err := domain.VerifyDense(domain.ApplyShifts(remaining, shifts)); err != nil {
		return fmt.Errorf("%w: %v", ErrOrderIntegrity, err)
	}
	return nil
}

// itemSiblings projects items onto their ordering view.
func itemSiblings(items []domain.Item) []domain.Sibling {
	out := make([]domain.Sibling, 0, len(items))
	for _, item := range items {
		out = append(out, domain.Sibling{ID: item.ID, Position: item.Position})
	}
	return out
}

// containerSiblings projects containers onto their ordering view.
func containerSiblings(containers []domain.Container) []domain.Sibling {
	out := make([]domain.Sibling, 0, len(containers))
	for _, container := range containers {
		out = append(out, domain.Sibling{ID: container.ID, Position: container.Position})
	}
	return out
}
