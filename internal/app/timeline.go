package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/flyt/internal/domain"
)

// unknownContainerLabel stands in for containers that no longer resolve,
// typically because the container row was deleted after the item moved on.
const unknownContainerLabel = "Unknown"

// ItemTimeline is one item's projected residency history. Found is false when
// the item id had no base row; the rest of the batch still projects.
type ItemTimeline struct {
	ItemID   string
	Found    bool
	Segments []domain.ResidencySegment
}

// ItemTimeline projects a single item's residency segments.
func (s *Service) ItemTimeline(ctx context.Context, itemID string) ([]domain.ResidencySegment, error) {
	timelines, err := s.ItemTimelines(ctx, []string{itemID})
	if err != nil {
		return nil, err
	}
	if len(timelines) != 1 || !timelines[0].Found {
		return nil, ErrNotFound
	}
	return timelines[0].Segments, nil
}

// ItemTimelines projects residency timelines for a batch of items using a
// fixed three-query pipeline: one fetch for base rows, one for all move
// events across the id set, one for container labels. All grouping and
// segment building happens in memory; per-item round trips are a defect at
// scale, not an optimization concern. The pipeline is all-or-nothing: a
// failed query fails the whole batch rather than returning partial state.
func (s *Service) ItemTimelines(ctx context.Context, itemIDs []string) ([]ItemTimeline, error) {
	ids := uniqueNonEmptyIDs(itemIDs)
	if len(ids) == 0 {
		return nil, domain.ErrInvalidID
	}
	if s.maxBatchIDs > 0 && len(ids) > s.maxBatchIDs {
		return nil, fmt.Errorf("%w: %d ids, limit %d", ErrBatchTooLarge, len(ids), s.maxBatchIDs)
	}
	if s.timelineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timelineTimeout)
		defer cancel()
	}
	now := s.clock().UTC()

	items, err := s.repo.GetItemsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch timeline items: %w", err)
	}
	itemByID := make(map[string]domain.Item, len(items))
	presentIDs := make([]string, 0, len(items))
	for _, item := range items {
		itemByID[item.ID] = item
		presentIDs = append(presentIDs, item.ID)
	}

	movesByItem := map[string][]domain.ActivityEvent{}
	if len(presentIDs) > 0 {
		events, err := s.repo.ListMoveEvents(ctx, presentIDs)
		if err != nil {
			return nil, fmt.Errorf("fetch move events: %w", err)
		}
		for _, event := range events {
			movesByItem[event.ItemID] = append(movesByItem[event.ItemID], event)
		}
		for id := range movesByItem {
			domain.SortMoves(movesByItem[id])
		}
	}

	labels, err := s.resolveContainerLabels(ctx, itemByID, movesByItem)
	if err != nil {
		return nil, err
	}

	out := make([]ItemTimeline, 0, len(ids))
	for _, id := range ids {
		item, ok := itemByID[id]
		if !ok {
			out = append(out, ItemTimeline{ItemID: id})
			continue
		}
		segments := domain.BuildResidency(item.CreatedAt, item.ContainerID, movesByItem[id], now)
		for i := range segments {
			segments[i].ContainerLabel = labelFor(labels, segments[i].ContainerID)
		}
		out = append(out, ItemTimeline{ItemID: id, Found: true, Segments: segments})
	}
	return out, nil
}

// resolveContainerLabels batch-resolves every container id any segment could
// reference. Ids that no longer resolve fall back to the Unknown placeholder
// and are logged once each, not once per segment.
func (s *Service) resolveContainerLabels(ctx context.Context, itemByID map[string]domain.Item, movesByItem map[string][]domain.ActivityEvent) (map[string]string, error) {
	needed := map[string]struct{}{}
	for _, item := range itemByID {
		if item.ContainerID != "" {
			needed[item.ContainerID] = struct{}{}
		}
	}
	for _, events := range movesByItem {
		for _, event := range events {
			if event.FromContainerID != "" {
				needed[event.FromContainerID] = struct{}{}
			}
			if event.ToContainerID != "" {
				needed[event.ToContainerID] = struct{}{}
			}
		}
	}
	if len(needed) == 0 {
		return map[string]string{}, nil
	}

	ids := make([]string, 0, len(needed))
	for id := range needed {
		ids = append(ids, id)
	}
	labels, err := s.repo.ContainerNames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve container labels: %w", err)
	}
	for id := range needed {
		if _, ok := labels[id]; !ok {
			s.logger.Warn("container label missing, using placeholder", "container_id", id)
		}
	}
	return labels, nil
}

// labelFor returns the resolved label or the Unknown placeholder.
func labelFor(labels map[string]string, containerID string) string {
	if label, ok := labels[containerID]; ok && strings.TrimSpace(label) != "" {
		return label
	}
	return unknownContainerLabel
}

// uniqueNonEmptyIDs trims and de-duplicates ids while preserving order.
func uniqueNonEmptyIDs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, raw := range in {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
