package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/flyt/internal/app"
	"github.com/hylla/flyt/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository represents repository data used by this package.
type Repository struct {
	db *sql.DB
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS boards (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS containers (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			name TEXT NOT NULL,
			position INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			container_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE,
			FOREIGN KEY(container_id) REFERENCES containers(id) ON DELETE CASCADE
		);`,
		// No foreign keys on the from/to columns: ledger rows outlive the
		// containers they reference, and item rows may be deleted later.
		`CREATE TABLE IF NOT EXISTS activity_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			from_container_id TEXT NOT NULL DEFAULT '',
			to_container_id TEXT NOT NULL DEFAULT '',
			occurred_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_containers_board_position ON containers(board_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_items_container_position ON items(container_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_activity_events_item_occurred ON activity_events(item_id, event_type, occurred_at ASC, id ASC);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateBoard creates board.
func (r *Repository) CreateBoard(ctx context.Context, b domain.Board) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO boards(id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, b.ID, b.Name, ts(b.CreatedAt), ts(b.UpdatedAt))
	return err
}

// GetBoard returns board.
func (r *Repository) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM boards
		WHERE id = ?
	`, id)
	return scanBoard(row)
}

// ListBoards lists boards.
func (r *Repository) ListBoards(ctx context.Context) ([]domain.Board, error) {
	rows, err := r.db.QueryContext(ctx, `
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
		board, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, board)
	}
	return out, rows.Err()
}

// UpdateBoard updates board.
func (r *Repository) UpdateBoard(ctx context.Context, b domain.Board) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE boards
		SET name = ?, updated_at = ?
		WHERE id = ?
	`, b.Name, ts(b.UpdatedAt), b.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// CreateContainer creates container.
func (r *Repository) CreateContainer(ctx context.Context, c domain.Container) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO containers(id, board_id, name, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.BoardID, c.Name, c.Position, ts(c.CreatedAt), ts(c.UpdatedAt))
	return err
}

// GetContainer returns container.
func (r *Repository) GetContainer(ctx context.Context, id string) (domain.Container, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, board_id, name, position, created_at, updated_at
		FROM containers
		WHERE id = ?
	`, id)
	return scanContainer(row)
}

// ListContainers lists a board's containers ordered by position.
func (r *Repository) ListContainers(ctx context.Context, boardID string) ([]domain.Container, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, board_id, name, position, created_at, updated_at
		FROM containers
		WHERE board_id = ?
		ORDER BY position ASC
	`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Container{}
	for rows.Next() {
		container, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, container)
	}
	return out, rows.Err()
}

// UpdateContainer updates container.
func (r *Repository) UpdateContainer(ctx context.Context, c domain.Container) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE containers
		SET name = ?, updated_at = ?
		WHERE id = ?
	`, c.Name, ts(c.UpdatedAt), c.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// MoveContainer writes the container's new slot and applies sibling shifts
// atomically.
func (r *Repository) MoveContainer(ctx context.Context, c domain.Container, shifts []domain.PositionShift) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE containers
		SET position = ?, updated_at = ?
		WHERE id = ?
	`, c.Position, ts(c.UpdatedAt), c.ID)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	if err = applyShifts(ctx, tx, "containers", shifts); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// DeleteContainer removes a container and applies sibling shifts atomically.
// Items inside the container go with it.
func (r *Repository) DeleteContainer(ctx context.Context, id string, shifts []domain.PositionShift) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Contained items are removed explicitly: the foreign_keys pragma is
	// per-connection and cannot be toggled mid-transaction, so the cascade
	// cannot be trusted across the pool.
	if _, err = tx.ExecContext(ctx, `DELETE FROM items WHERE container_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM containers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	if err = applyShifts(ctx, tx, "containers", shifts); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// ContainerNames resolves container labels in one query. Ids that no longer
// exist are simply absent from the result map.
func (r *Repository) ContainerNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT id, name FROM containers WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := r.db.QueryContext(ctx, query, stringArgs(ids)...)
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
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items(id, board_id, container_id, position, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.BoardID, item.ContainerID, item.Position, item.Title, ts(item.CreatedAt), ts(item.UpdatedAt))
	return err
}

// GetItem returns item.
func (r *Repository) GetItem(ctx context.Context, id string) (domain.Item, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, board_id, container_id, position, title, created_at, updated_at
		FROM items
		WHERE id = ?
	`, id)
	return scanItem(row)
}

// GetItemsByIDs fetches a batch of items in one query. Missing ids are not an
// error; callers detect them by comparing the result set against the input.
func (r *Repository) GetItemsByIDs(ctx context.Context, ids []string) ([]domain.Item, error) {
	out := []domain.Item{}
	if len(ids) == 0 {
		return out, nil
	}

	query := `
		SELECT id, board_id, container_id, position, title, created_at, updated_at
		FROM items
		WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := r.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ListItems lists a container's items ordered by position.
func (r *Repository) ListItems(ctx context.Context, containerID string) ([]domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, board_id, container_id, position, title, created_at, updated_at
		FROM items
		WHERE container_id = ?
		ORDER BY position ASC
	`, containerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// UpdateItem updates item.
func (r *Repository) UpdateItem(ctx context.Context, item domain.Item) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE items
		SET title = ?, updated_at = ?
		WHERE id = ?
	`, item.Title, ts(item.UpdatedAt), item.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// MoveItem writes the item's new slot and applies sibling shifts atomically.
func (r *Repository) MoveItem(ctx context.Context, item domain.Item, shifts []domain.PositionShift) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE items
		SET container_id = ?, position = ?, updated_at = ?
		WHERE id = ?
	`, item.ContainerID, item.Position, ts(item.UpdatedAt), item.ID)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	if err = applyShifts(ctx, tx, "items", shifts); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// DeleteItem removes an item and applies sibling shifts atomically.
func (r *Repository) DeleteItem(ctx context.Context, id string, shifts []domain.PositionShift) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	if err = applyShifts(ctx, tx, "items", shifts); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// AppendEvent inserts an activity-ledger record. Rows are append-only; no
// update or delete path exists for this table.
func (r *Repository) AppendEvent(ctx context.Context, event domain.ActivityEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_events(item_id, event_type, from_container_id, to_container_id, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`, event.ItemID, string(event.Type), event.FromContainerID, event.ToContainerID, ts(event.OccurredAt))
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

	query := `
		SELECT id, item_id, event_type, from_container_id, to_container_id, occurred_at
		FROM activity_events
		WHERE event_type = ? AND item_id IN (` + placeholders(len(itemIDs)) + `)
		ORDER BY occurred_at ASC, id ASC`
	args := append([]any{string(domain.EventItemMoved)}, stringArgs(itemIDs)...)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			event       domain.ActivityEvent
			typeRaw     string
			occurredRaw string
		)
		if err := rows.Scan(&event.ID, &event.ItemID, &typeRaw, &event.FromContainerID, &event.ToContainerID, &occurredRaw); err != nil {
			return nil, err
		}
		event.Type = domain.EventType(typeRaw)
		event.OccurredAt = parseTS(occurredRaw)
		out = append(out, event)
	}
	return out, rows.Err()
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// applyShifts writes a shift plan inside the caller's transaction. A shift
// whose row is gone means the plan was computed against stale state; the
// whole transaction must roll back rather than commit a gapped group.
func applyShifts(ctx context.Context, execer execerContext, table string, shifts []domain.PositionShift) error {
	stmt := `UPDATE ` + table + ` SET position = ? WHERE id = ?`
	for _, shift := range shifts {
		res, err := execer.ExecContext(ctx, stmt, shift.Position, shift.ID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected != 1 {
			return fmt.Errorf("%w: shift for missing %s row %s", app.ErrOrderIntegrity, table, shift.ID)
		}
	}
	return nil
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanBoard handles scan board.
func scanBoard(s scanner) (domain.Board, error) {
	var (
		b          domain.Board
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&b.ID, &b.Name, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Board{}, app.ErrNotFound
		}
		return domain.Board{}, err
	}
	b.CreatedAt = parseTS(createdRaw)
	b.UpdatedAt = parseTS(updatedRaw)
	return b, nil
}

// scanContainer handles scan container.
func scanContainer(s scanner) (domain.Container, error) {
	var (
		c          domain.Container
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Container{}, app.ErrNotFound
		}
		return domain.Container{}, err
	}
	c.CreatedAt = parseTS(createdRaw)
	c.UpdatedAt = parseTS(updatedRaw)
	return c, nil
}

// scanItem handles scan item.
func scanItem(s scanner) (domain.Item, error) {
	var (
		item       domain.Item
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&item.ID, &item.BoardID, &item.ContainerID, &item.Position, &item.Title, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Item{}, app.ErrNotFound
		}
		return domain.Item{}, err
	}
	item.CreatedAt = parseTS(createdRaw)
	item.UpdatedAt = parseTS(updatedRaw)
	return item, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// placeholders builds a ?, ?, ... list for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// stringArgs converts ids to query arguments.
func stringArgs(ids []string) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
	}
	return out
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
