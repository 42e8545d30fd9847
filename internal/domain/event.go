package domain

import (
	"strings"
	"time"
)

// EventType describes a persisted activity-ledger operation for an item.
type EventType string

// EventType values used by the activity ledger. The timeline projector only
// consumes item_moved rows; the rest exist for audit display.
const (
	EventItemCreated EventType = "item_created"
	EventItemMoved   EventType = "item_moved"
	EventItemUpdated EventType = "item_updated"
	EventItemDeleted EventType = "item_deleted"
)

// ActivityEvent represents a single append-only activity-ledger entry.
// FromContainerID is empty for creation events; rows are never updated or
// deleted once written.
type ActivityEvent struct {
	ID              int64
	ItemID          string
	Type            EventType
	FromContainerID string
	ToContainerID   string
	OccurredAt      time.Time
}

// NewActivityEvent constructs a ledger entry, leaving ID to the store.
func NewActivityEvent(itemID string, eventType EventType, fromContainerID, toContainerID string, occurredAt time.Time) (ActivityEvent, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return ActivityEvent{}, ErrInvalidID
	}
	switch eventType {
	case EventItemCreated, EventItemMoved, EventItemUpdated, EventItemDeleted:
	default:
		return ActivityEvent{}, ErrInvalidEventType
	}
	return ActivityEvent{
		ItemID:          itemID,
		Type:            eventType,
		FromContainerID: strings.TrimSpace(fromContainerID),
		ToContainerID:   strings.TrimSpace(toContainerID),
		OccurredAt:      occurredAt.UTC(),
	}, nil
}

// IsMove reports whether the event describes a container transition.
func (e ActivityEvent) IsMove() bool {
	return e.Type == EventItemMoved
}
