package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for catalog persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetShade retrieves a shade by its numeric identifier.
	// Returns ErrShadeNotFound if the shade does not exist.
	GetShade(ctx context.Context, id int) (*Shade, error)

	// ListShades retrieves all shades ordered by ID.
	ListShades(ctx context.Context) ([]Shade, error)

	// ListShadesByRoom retrieves all shades assigned to a room.
	ListShadesByRoom(ctx context.Context, room string) ([]Shade, error)

	// CreateShade inserts a new shade.
	// Returns ErrShadeExists if the ID or remote/channel pair is taken.
	CreateShade(ctx context.Context, shade *Shade) error

	// UpdateShade modifies an existing shade.
	// Returns ErrShadeNotFound if the shade does not exist.
	UpdateShade(ctx context.Context, shade *Shade) error

	// DeleteShade removes a shade by ID.
	// Returns ErrShadeNotFound if the shade does not exist.
	DeleteShade(ctx context.Context, id int) error

	// GetScene retrieves a scene and its ordered commands by name.
	// Returns ErrSceneNotFound if the scene does not exist.
	GetScene(ctx context.Context, name string) (*Scene, error)

	// ListScenes retrieves all scenes with their commands.
	ListScenes(ctx context.Context) ([]Scene, error)

	// SaveScene inserts or replaces a scene and its commands atomically.
	SaveScene(ctx context.Context, scene *Scene) error

	// DeleteScene removes a scene and its commands by name.
	// Returns ErrSceneNotFound if the scene does not exist.
	DeleteScene(ctx context.Context, name string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const shadeColumns = `id, name, room, remote_id, channel, up_code, down_code, stop_code, created_at, updated_at`

// GetShade retrieves a shade by its numeric identifier.
func (r *SQLiteRepository) GetShade(ctx context.Context, id int) (*Shade, error) {
	query := `SELECT ` + shadeColumns + ` FROM shades WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	shade, err := scanShade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShadeNotFound
		}
		return nil, fmt.Errorf("querying shade by id: %w", err)
	}
	return shade, nil
}

// ListShades retrieves all shades ordered by ID.
func (r *SQLiteRepository) ListShades(ctx context.Context) ([]Shade, error) {
	query := `SELECT ` + shadeColumns + ` FROM shades ORDER BY id`
	return r.queryShades(ctx, query)
}

// ListShadesByRoom retrieves all shades assigned to a room.
func (r *SQLiteRepository) ListShadesByRoom(ctx context.Context, room string) ([]Shade, error) {
	query := `SELECT ` + shadeColumns + ` FROM shades WHERE room = ? ORDER BY id`
	return r.queryShades(ctx, query, room)
}

// CreateShade inserts a new shade.
func (r *SQLiteRepository) CreateShade(ctx context.Context, shade *Shade) error {
	now := time.Now().UTC()
	shade.CreatedAt = now
	shade.UpdatedAt = now

	query := `
		INSERT INTO shades (id, name, room, remote_id, channel, up_code, down_code, stop_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		shade.ID,
		shade.Name,
		shade.Room,
		shade.RemoteID,
		shade.Channel,
		nullableInt(shade.UpCode),
		nullableInt(shade.DownCode),
		nullableInt(shade.StopCode),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrShadeExists
		}
		return fmt.Errorf("inserting shade: %w", err)
	}
	return nil
}

// UpdateShade modifies an existing shade.
func (r *SQLiteRepository) UpdateShade(ctx context.Context, shade *Shade) error {
	shade.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE shades
		SET name = ?, room = ?, remote_id = ?, channel = ?,
			up_code = ?, down_code = ?, stop_code = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		shade.Name,
		shade.Room,
		shade.RemoteID,
		shade.Channel,
		nullableInt(shade.UpCode),
		nullableInt(shade.DownCode),
		nullableInt(shade.StopCode),
		shade.UpdatedAt.Format(time.RFC3339),
		shade.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrShadeExists
		}
		return fmt.Errorf("updating shade: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return ErrShadeNotFound
	}
	return nil
}

// DeleteShade removes a shade by ID.
func (r *SQLiteRepository) DeleteShade(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM shades WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting shade: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrShadeNotFound
	}
	return nil
}

// GetScene retrieves a scene and its ordered commands by name.
func (r *SQLiteRepository) GetScene(ctx context.Context, name string) (*Scene, error) {
	query := `SELECT name, description, cycle_count, created_at, updated_at FROM scenes WHERE name = ?`

	row := r.db.QueryRowContext(ctx, query, name)
	scene, err := scanScene(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSceneNotFound
		}
		return nil, fmt.Errorf("querying scene: %w", err)
	}

	commands, err := r.queryCommands(ctx, name)
	if err != nil {
		return nil, err
	}
	scene.Commands = commands
	return scene, nil
}

// ListScenes retrieves all scenes with their commands.
func (r *SQLiteRepository) ListScenes(ctx context.Context) ([]Scene, error) {
	query := `SELECT name, description, cycle_count, created_at, updated_at FROM scenes ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying scenes: %w", err)
	}
	defer rows.Close()

	var scenes []Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scene: %w", err)
		}
		scenes = append(scenes, *scene)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scenes: %w", err)
	}

	for i := range scenes {
		commands, err := r.queryCommands(ctx, scenes[i].Name)
		if err != nil {
			return nil, err
		}
		scenes[i].Commands = commands
	}
	return scenes, nil
}

// SaveScene inserts or replaces a scene and its commands atomically.
func (r *SQLiteRepository) SaveScene(ctx context.Context, scene *Scene) error {
	now := time.Now().UTC()
	if scene.CreatedAt.IsZero() {
		scene.CreatedAt = now
	}
	scene.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scenes (name, description, cycle_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			description = excluded.description,
			cycle_count = excluded.cycle_count,
			updated_at = excluded.updated_at`,
		scene.Name,
		scene.Description,
		scene.CycleCount,
		scene.CreatedAt.Format(time.RFC3339),
		scene.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting scene: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM scene_commands WHERE scene_name = ?`, scene.Name); err != nil {
		return fmt.Errorf("clearing scene commands: %w", err)
	}

	for i, cmd := range scene.Commands {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scene_commands (scene_name, position, shade_id, action, delay_ms)
			VALUES (?, ?, ?, ?, ?)`,
			scene.Name, i, cmd.ShadeID, string(cmd.Action), cmd.DelayMS,
		)
		if err != nil {
			return fmt.Errorf("inserting scene command %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing scene: %w", err)
	}
	return nil
}

// DeleteScene removes a scene and its commands by name.
func (r *SQLiteRepository) DeleteScene(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM scenes WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting scene: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrSceneNotFound
	}
	return nil
}

// queryShades executes a query expected to return shade rows.
func (r *SQLiteRepository) queryShades(ctx context.Context, query string, args ...any) ([]Shade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying shades: %w", err)
	}
	defer rows.Close()

	var shades []Shade
	for rows.Next() {
		shade, err := scanShade(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning shade: %w", err)
		}
		shades = append(shades, *shade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating shades: %w", err)
	}
	return shades, nil
}

// queryCommands loads the ordered command list for one scene.
func (r *SQLiteRepository) queryCommands(ctx context.Context, sceneName string) ([]SceneCommand, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT shade_id, action, delay_ms
		FROM scene_commands
		WHERE scene_name = ?
		ORDER BY position`,
		sceneName,
	)
	if err != nil {
		return nil, fmt.Errorf("querying scene commands: %w", err)
	}
	defer rows.Close()

	var commands []SceneCommand
	for rows.Next() {
		var cmd SceneCommand
		var action string
		if err := rows.Scan(&cmd.ShadeID, &action, &cmd.DelayMS); err != nil {
			return nil, fmt.Errorf("scanning scene command: %w", err)
		}
		cmd.Action = Action(action)
		commands = append(commands, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scene commands: %w", err)
	}
	return commands, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning code.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanShade(scanner rowScanner) (*Shade, error) {
	var s Shade
	var upCode, downCode, stopCode sql.NullInt64
	var createdAt, updatedAt string

	err := scanner.Scan(
		&s.ID,
		&s.Name,
		&s.Room,
		&s.RemoteID,
		&s.Channel,
		&upCode,
		&downCode,
		&stopCode,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.UpCode = intPtrFromNull(upCode)
	s.DownCode = intPtrFromNull(downCode)
	s.StopCode = intPtrFromNull(stopCode)

	if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &s, nil
}

func scanScene(scanner rowScanner) (*Scene, error) {
	var s Scene
	var createdAt, updatedAt string

	err := scanner.Scan(&s.Name, &s.Description, &s.CycleCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &s, nil
}

// nullableInt returns a sql.NullInt64 for optional int pointers.
func nullableInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// intPtrFromNull converts a nullable column back to an optional int.
func intPtrFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
