// Package postgres provides a pgx-backed Repository for shared deployments
// where a single sqlite file is not enough.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hylla/flyt/internal/app"
	"github.com/hylla/flyt/internal/domain"
)

// Repository represents repository data used by this package.
type Repository struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against the DSN and applies the schema.
func Connect(ctx context.Context, dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	repo := &Repository{pool: pool}
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ready reports whether the pool can serve queries.
func (r *Repository) Ready(ctx context.Context) error {
	var one int
	return r.pool.QueryRow(ctx, `SELECT 1`).Scan(&one)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS boards (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS containers (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			position INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
			container_id TEXT NOT NULL REFERENCES containers(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			title TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS activity_events (
			id BIGSERIAL PRIMARY KEY,
			item_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			from_container_id TEXT NOT NULL DEFAULT '',
			to_container_id TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_containers_board_position ON containers(board_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_items_container_position ON items(container_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_events_item_occurred ON activity_events(item_id, event_type, occurred_at ASC, id ASC)`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}
	return nil
}

// CreateBoard creates board.
func (r *Repository) CreateBoard(ctx context.Context, b domain.Board) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO boards(id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, b.ID, b.Name, b.CreatedAt, b.UpdatedAt)
	return err
}

// GetBoard returns board.
func (r *Repository) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	var b domain.Board
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM boards
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return domain.Board{}, translateErr(err)
	}
	return normalizeBoard(b), nil
}

// ListBoards lists boards.
func (r *Repository) ListBoards(ctx context.Context) ([]domain.Board, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, created_at, updated_at
		FROM boards
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Board{}
	for rows.Next() {
		var b domain.Board
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, normalizeBoard(b))
	}
	return out, rows.Err()
}

// UpdateBoard updates board.
func (r *Repository) UpdateBoard(ctx context.Context, b domain.Board) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE boards
		SET name = $1, updated_at = $2
		WHERE id = $3
	`, b.Name, b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return app.ErrNotFound
	}
	return nil
}

// CreateContainer creates container.
func (r *Repository) CreateContainer(ctx context.Context, c domain.Container) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO containers(id, board_id, name, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.BoardID, c.Name, c.Position, c.CreatedAt, c.UpdatedAt)
	return err
}

// GetContainer returns container.
func (r *Repository) GetContainer(ctx context.Context, id string) (domain.Container, error) {
	var c domain.Container
	err := r.pool.QueryRow(ctx, `
		SELECT id, board_id, name, position, created_at, updated_at
		FROM containers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Container{}, translateErr(err)
	}
	return normalizeContainer(c), nil
}

// ListContainers lists a board's containers ordered by position.
func (r *Repository) ListContainers(ctx context.Context, boardID string) ([]domain.Container, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, board_id, name, position, created_at, updated_at
		FROM containers
		WHERE board_id = $1
		ORDER BY position ASC
	`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Container{}
	for rows.Next() {
		var c domain.Container
		if err := rows.Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, normalizeContainer(c))
	}
	return out, rows.Err()
}

// UpdateContainer updates container.
func (r *Repository) UpdateContainer(ctx context.Context, c domain.Container) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE containers
		SET name = $1, updated_at = $2
		WHERE id = $3
	`, c.Name, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return app.ErrNotFound
	}
	return nil
}

// MoveContainer writes the container's new slot and applies sibling shifts
// atomically.
func (r *Repository) MoveContainer(ctx context.Context, c domain.Container, shifts []domain.PositionShift) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			UPDATE containers
			SET position = $1, updated_at = $2
			WHERE id = $3
		`, c.Position, c.UpdatedAt, c.ID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return app.ErrNotFound
		}
		return applyShifts(ctx, tx, "containers", shifts)
	})
}

// DeleteContainer removes a container and applies sibling shifts atomically.
func (r *Repository) DeleteContainer(ctx context.Context, id string, shifts []domain.PositionShift) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM items WHERE container_id = $1`, id); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, `DELETE FROM containers WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return app.ErrNotFound
		}
		return applyShifts(ctx, tx, "containers", shifts)
	})
}

// ContainerNames resolves container labels in one query.
func (r *Repository) ContainerNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM containers WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

// CreateItem creates item.
func (r *Repository) CreateItem(ctx context.Context, item domain.Item) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO items(id, board_id, container_id, position, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.BoardID, item.ContainerID, item.Position, item.Title, item.CreatedAt, item.UpdatedAt)
	return err
}

// GetItem returns item.
func (r *Repository) GetItem(ctx context.Context, id string) (domain.Item, error) {
	var item domain.Item
	err := r.pool.QueryRow(ctx, `
		SELECT id, board_id, container_id, position, title, created_at, updated_at
		FROM items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.BoardID, &item.ContainerID, &item.Position, &item.Title, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return domain.Item{}, translateErr(err)
	}
	return normalizeItem(item), nil
}

// GetItemsByIDs fetches a batch of items in one query.
func (r *Repository) GetItemsByIDs(ctx context.Context, ids []string) ([]domain.Item, error) {
	out := []domain.Item{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, board_id, container_id, position, title, created_at, updated_at
		FROM items
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.BoardID, &item.ContainerID, &item.Position, &item.Title, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, normalizeItem(item))
	}
	return out, rows.Err()
}

// ListItems lists a container's items ordered by position.
func (r *Repository) ListItems(ctx context.Context, containerID string) ([]domain.Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, board_id, container_id, position, title, created_at, updated_at
		FROM items
		WHERE container_id = $1
		ORDER BY position ASC
	`, containerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Item{}
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.BoardID, &item.ContainerID, &item.Position, &item.Title, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, normalizeItem(item))
	}
	return out, rows.Err()
}

// UpdateItem updates item.
func (r *Repository) UpdateItem(ctx context.Context, item domain.Item) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE items
		SET title = $1, updated_at = $2
		WHERE id = $3
	`, item.Title, item.UpdatedAt, item.ID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return app.ErrNotFound
	}
	return nil
}

// MoveItem writes the item's new slot and applies sibling shifts atomically.
func (r *Repository) MoveItem(ctx context.Context, item domain.Item, shifts []domain.PositionShift) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			UPDATE items
			SET container_id = $1, position = $2, updated_at = $3
			WHERE id = $4
		`, item.ContainerID, item.Position, item.UpdatedAt, item.ID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return app.ErrNotFound
		}
		return applyShifts(ctx, tx, "items", shifts)
	})
}

// DeleteItem removes an item and applies sibling shifts atomically.
func (r *Repository) DeleteItem(ctx context.Context, id string, shifts []domain.PositionShift) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return app.ErrNotFound
		}
		return applyShifts(ctx, tx, "items", shifts)
	})
}

// AppendEvent inserts an activity-ledger record.
func (r *Repository) AppendEvent(ctx context.Context, event domain.ActivityEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO activity_events(item_id, event_type, from_container_id, to_container_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ItemID, string(event.Type), event.FromContainerID, event.ToContainerID, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert activity event: %w", err)
	}
	return nil
}

// ListMoveEvents returns move rows for a batch of items in one query, ordered
// by occurrence time with the ledger id as tie-breaker.
func (r *Repository) ListMoveEvents(ctx context.Context, itemIDs []string) ([]domain.ActivityEvent, error) {
	out := []domain.ActivityEvent{}
	if len(itemIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, item_id, event_type, from_container_id, to_container_id, occurred_at
		FROM activity_events
		WHERE event_type = $1 AND item_id = ANY($2)
		ORDER BY occurred_at ASC, id ASC
	`, string(domain.EventItemMoved), itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			event   domain.ActivityEvent
			typeRaw string
		)
		if err := rows.Scan(&event.ID, &event.ItemID, &typeRaw, &event.FromContainerID, &event.ToContainerID, &event.OccurredAt); err != nil {
			return nil, err
		}
		event.Type = domain.EventType(typeRaw)
		event.OccurredAt = event.OccurredAt.UTC()
		out = append(out, event)
	}
	return out, rows.Err()
}

// inTx runs fn inside one transaction, rolling back on error.
func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	err = tx.Commit(ctx)
	return err
}

// applyShifts writes a shift plan inside the caller's transaction. A shift
// whose row is gone means stale planning state; roll the transaction back
// rather than commit a gapped group.
func applyShifts(ctx context.Context, tx pgx.Tx, table string, shifts []domain.PositionShift) error {
	stmt := `UPDATE ` + table + ` SET position = $1 WHERE id = $2`
	for _, shift := range shifts {
		ct, err := tx.Exec(ctx, stmt, shift.Position, shift.ID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			return fmt.Errorf("%w: shift for missing %s row %s", app.ErrOrderIntegrity, table, shift.ID)
		}
	}
	return nil
}

// translateErr maps pgx sentinel errors onto the application's.
func translateErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return app.ErrNotFound
	}
	return err
}

func normalizeBoard(b domain.Board) domain.Board {
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b
}

func normalizeContainer(c domain.Container) domain.Container {
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c
}

func normalizeItem(item domain.Item) domain.Item {
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item
}
