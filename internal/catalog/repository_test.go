package catalog

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the catalog tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE shades (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			room TEXT NOT NULL DEFAULT '',
			remote_id INTEGER NOT NULL,
			channel INTEGER NOT NULL,
			up_code INTEGER,
			down_code INTEGER,
			stop_code INTEGER,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE UNIQUE INDEX idx_shades_remote_channel ON shades (remote_id, channel);
		CREATE TABLE scenes (
			name TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			cycle_count INTEGER NOT NULL DEFAULT 2,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE scene_commands (
			scene_name TEXT NOT NULL REFERENCES scenes (name) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			shade_id INTEGER NOT NULL REFERENCES shades (id) ON DELETE CASCADE,
			action TEXT NOT NULL CHECK (action IN ('up', 'down', 'stop')),
			delay_ms INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (scene_name, position)
		);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func intPtr(v int) *int { return &v }

func testShade(id int) *Shade {
	return &Shade{
		ID:       id,
		Name:     "Office Shade",
		Room:     "office",
		RemoteID: 0x1A,
		Channel:  id,
		UpCode:   intPtr(1000 + id),
		DownCode: intPtr(2000 + id),
		StopCode: intPtr(3000 + id),
	}
}

func TestSQLiteRepository_ShadeCRUD(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	shade := testShade(14)
	if err := repo.CreateShade(ctx, shade); err != nil {
		t.Fatalf("CreateShade failed: %v", err)
	}
	if shade.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := repo.GetShade(ctx, 14)
	if err != nil {
		t.Fatalf("GetShade failed: %v", err)
	}
	if got.Name != "Office Shade" || got.Room != "office" {
		t.Errorf("unexpected shade: %+v", got)
	}
	if got.DownCode == nil || *got.DownCode != 2014 {
		t.Errorf("expected down_code 2014, got %v", got.DownCode)
	}

	got.Name = "Renamed"
	got.StopCode = nil
	if err := repo.UpdateShade(ctx, got); err != nil {
		t.Fatalf("UpdateShade failed: %v", err)
	}

	updated, err := repo.GetShade(ctx, 14)
	if err != nil {
		t.Fatalf("GetShade after update failed: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Errorf("expected renamed shade, got %q", updated.Name)
	}
	if updated.StopCode != nil {
		t.Errorf("expected stop_code cleared, got %v", *updated.StopCode)
	}

	if err := repo.DeleteShade(ctx, 14); err != nil {
		t.Fatalf("DeleteShade failed: %v", err)
	}
	if _, err := repo.GetShade(ctx, 14); !errors.Is(err, ErrShadeNotFound) {
		t.Errorf("expected ErrShadeNotFound, got %v", err)
	}
}

func TestSQLiteRepository_ShadeNotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if _, err := repo.GetShade(ctx, 99); !errors.Is(err, ErrShadeNotFound) {
		t.Errorf("GetShade: expected ErrShadeNotFound, got %v", err)
	}
	if err := repo.UpdateShade(ctx, testShade(99)); !errors.Is(err, ErrShadeNotFound) {
		t.Errorf("UpdateShade: expected ErrShadeNotFound, got %v", err)
	}
	if err := repo.DeleteShade(ctx, 99); !errors.Is(err, ErrShadeNotFound) {
		t.Errorf("DeleteShade: expected ErrShadeNotFound, got %v", err)
	}
}

func TestSQLiteRepository_DuplicateShade(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.CreateShade(ctx, testShade(1)); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := repo.CreateShade(ctx, testShade(1)); !errors.Is(err, ErrShadeExists) {
		t.Errorf("duplicate id: expected ErrShadeExists, got %v", err)
	}

	// Same remote/channel pair under a different ID is also rejected.
	dup := testShade(1)
	dup.ID = 2
	dup.Channel = 1
	if err := repo.CreateShade(ctx, dup); !errors.Is(err, ErrShadeExists) {
		t.Errorf("duplicate remote/channel: expected ErrShadeExists, got %v", err)
	}
}

func TestSQLiteRepository_ListShadesByRoom(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		shade := testShade(i)
		if i == 3 {
			shade.Room = "bedroom"
		}
		if err := repo.CreateShade(ctx, shade); err != nil {
			t.Fatalf("create shade %d failed: %v", i, err)
		}
	}

	office, err := repo.ListShadesByRoom(ctx, "office")
	if err != nil {
		t.Fatalf("ListShadesByRoom failed: %v", err)
	}
	if len(office) != 2 {
		t.Errorf("expected 2 office shades, got %d", len(office))
	}

	all, err := repo.ListShades(ctx)
	if err != nil {
		t.Fatalf("ListShades failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 shades, got %d", len(all))
	}
}

func TestSQLiteRepository_SceneRoundTrip(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		if err := repo.CreateShade(ctx, testShade(i)); err != nil {
			t.Fatalf("create shade failed: %v", err)
		}
	}

	scene := &Scene{
		Name:        "good_night",
		Description: "Close everything",
		CycleCount:  2,
		Commands: []SceneCommand{
			{ShadeID: 1, Action: ActionDown, DelayMS: 0},
			{ShadeID: 2, Action: ActionDown, DelayMS: 500},
			{ShadeID: 1, Action: ActionStop, DelayMS: 1000},
		},
	}
	if err := repo.SaveScene(ctx, scene); err != nil {
		t.Fatalf("SaveScene failed: %v", err)
	}

	got, err := repo.GetScene(ctx, "good_night")
	if err != nil {
		t.Fatalf("GetScene failed: %v", err)
	}
	if got.CycleCount != 2 || len(got.Commands) != 3 {
		t.Fatalf("unexpected scene: %+v", got)
	}
	// Command order must survive the round trip.
	if got.Commands[1].ShadeID != 2 || got.Commands[1].DelayMS != 500 {
		t.Errorf("unexpected second command: %+v", got.Commands[1])
	}
	if got.Commands[2].Action != ActionStop {
		t.Errorf("expected stop as third command, got %s", got.Commands[2].Action)
	}

	// Saving again replaces the command list.
	scene.Commands = scene.Commands[:1]
	if err := repo.SaveScene(ctx, scene); err != nil {
		t.Fatalf("SaveScene replace failed: %v", err)
	}
	got, err = repo.GetScene(ctx, "good_night")
	if err != nil {
		t.Fatalf("GetScene after replace failed: %v", err)
	}
	if len(got.Commands) != 1 {
		t.Errorf("expected 1 command after replace, got %d", len(got.Commands))
	}

	if err := repo.DeleteScene(ctx, "good_night"); err != nil {
		t.Fatalf("DeleteScene failed: %v", err)
	}
	if _, err := repo.GetScene(ctx, "good_night"); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("expected ErrSceneNotFound, got %v", err)
	}
}

func TestSQLiteRepository_SceneNotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if _, err := repo.GetScene(ctx, "missing"); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("GetScene: expected ErrSceneNotFound, got %v", err)
	}
	if err := repo.DeleteScene(ctx, "missing"); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("DeleteScene: expected ErrSceneNotFound, got %v", err)
	}
}
