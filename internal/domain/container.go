package domain

import (
	"strings"
	"time"
)

// Container represents one ordered collection of items (a column, a stage).
// Containers themselves form a sibling group ordered within their board.
type Container struct {
	ID        string
	BoardID   string
	Name      string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewContainer constructs a new value for this package.
func NewContainer(id, boardID, name string, position int, now time.Time) (Container, error) {
	id = strings.TrimSpace(id)
	boardID = strings.TrimSpace(boardID)
	name = strings.TrimSpace(name)
	if id == "" {
		return Container{}, ErrInvalidID
	}
	if boardID == "" {
		return Container{}, ErrInvalidID
	}
	if name == "" {
		return Container{}, ErrInvalidName
	}
	if position < 0 {
		return Container{}, ErrInvalidPosition
	}
	return Container{
		ID:        id,
		BoardID:   boardID,
		Name:      name,
		Position:  position,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Rename renames the requested operation.
func (c *Container) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	c.Name = name
	c.UpdatedAt = now.UTC()
	return nil
}

// SetPosition handles set position.
func (c *Container) SetPosition(position int, now time.Time) error {
	if position < 0 {
		return ErrInvalidPosition
	}
	c.Position = position
	c.UpdatedAt = now.UTC()
	return nil
}
