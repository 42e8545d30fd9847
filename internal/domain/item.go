package domain

import (
	"strings"
	"time"
)

// Item is any entity participating in a sibling-ordered list within a container.
type Item struct {
	ID          string
	BoardID     string
	ContainerID string
	Position    int
	Title       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemInput holds input values for item construction.
type ItemInput struct {
	ID          string
	BoardID     string
	ContainerID string
	Position    int
	Title       string
}

// NewItem constructs a new value for this package.
func NewItem(in ItemInput, now time.Time) (Item, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.BoardID = strings.TrimSpace(in.BoardID)
	in.ContainerID = strings.TrimSpace(in.ContainerID)
	in.Title = strings.TrimSpace(in.Title)

	if in.ID == "" {
		return Item{}, ErrInvalidID
	}
	if in.BoardID == "" {
		return Item{}, ErrInvalidID
	}
	if in.ContainerID == "" {
		return Item{}, ErrInvalidContainerID
	}
	if in.Title == "" {
		return Item{}, ErrInvalidTitle
	}
	if in.Position < 0 {
		return Item{}, ErrInvalidPosition
	}

	return Item{
		ID:          in.ID,
		BoardID:     in.BoardID,
		ContainerID: in.ContainerID,
		Position:    in.Position,
		Title:       in.Title,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// Relocate places the item into a container slot.
func (i *Item) Relocate(containerID string, position int, now time.Time) error {
	containerID = strings.TrimSpace(containerID)
	if containerID == "" {
		return ErrInvalidContainerID
	}
	if position < 0 {
		return ErrInvalidPosition
	}
	i.ContainerID = containerID
	i.Position = position
	i.UpdatedAt = now.UTC()
	return nil
}

// Retitle retitles the item.
func (i *Item) Retitle(title string, now time.Time) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidTitle
	}
	i.Title = title
	i.UpdatedAt = now.UTC()
	return nil
}
