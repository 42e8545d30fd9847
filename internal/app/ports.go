package app

import (
	"context"

	"github.com/hylla/flyt/internal/domain"
)

// Repository represents the storage contract required by the engine.
//
// MoveItem, MoveContainer, DeleteItem, and DeleteContainer apply the row
// mutation and the accompanying position shifts in one transaction; a
// partially applied shift set must surface ErrOrderIntegrity, never commit.
// AppendEvent writes to the append-only activity ledger. ListMoveEvents
// returns rows ordered ascending by occurrence time, tie-broken by ledger id.
type Repository interface {
	CreateBoard(context.Context, domain.Board) error
	GetBoard(context.Context, string) (domain.Board, error)
	ListBoards(context.Context) ([]domain.Board, error)
	UpdateBoard(context.Context, domain.Board) error

	CreateContainer(context.Context, domain.Container) error
	GetContainer(context.Context, string) (domain.Container, error)
	ListContainers(context.Context, string) ([]domain.Container, error)
	UpdateContainer(context.Context, domain.Container) error
	MoveContainer(context.Context, domain.Container, []domain.PositionShift) error
	DeleteContainer(context.Context, string, []domain.PositionShift) error
	ContainerNames(context.Context, []string) (map[string]string, error)

	CreateItem(context.Context, domain.Item) error
	GetItem(context.Context, string) (domain.Item, error)
	GetItemsByIDs(context.Context, []string) ([]domain.Item, error)
	ListItems(context.Context, string) ([]domain.Item, error)
	UpdateItem(context.Context, domain.Item) error
	MoveItem(context.Context, domain.Item, []domain.PositionShift) error
	DeleteItem(context.Context, string, []domain.PositionShift) error

	AppendEvent(context.Context, domain.ActivityEvent) error
	ListMoveEvents(context.Context, []string) ([]domain.ActivityEvent, error)
}

// Logger is the subset of the runtime logger the service needs.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}
