package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides catalog access with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations. The dispatch hot path resolves
// shades and RF codes from cache only.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	shades  map[int]*Shade
	scenes  map[string]*Scene
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new catalog registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		shades: make(map[int]*Shade),
		scenes: make(map[string]*Scene),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all shades and scenes from the repository.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	shades, err := r.repo.ListShades(ctx)
	if err != nil {
		return fmt.Errorf("loading shades: %w", err)
	}
	scenes, err := r.repo.ListScenes(ctx)
	if err != nil {
		return fmt.Errorf("loading scenes: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.shades = make(map[int]*Shade, len(shades))
	for i := range shades {
		s := shades[i]
		r.shades[s.ID] = s.DeepCopy()
	}

	r.scenes = make(map[string]*Scene, len(scenes))
	for i := range scenes {
		s := scenes[i]
		r.scenes[s.Name] = s.DeepCopy()
	}

	r.logger.Info("catalog cache refreshed", "shades", len(shades), "scenes", len(scenes))
	return nil
}

// GetShade retrieves a shade by ID.
// Returns ErrShadeNotFound if the shade does not exist.
// The returned shade is a deep copy; callers can safely modify it.
func (r *Registry) GetShade(ctx context.Context, id int) (*Shade, error) {
	r.cacheMu.RLock()
	cached, ok := r.shades[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new shade not yet cached)
	shade, err := r.repo.GetShade(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.shades[id] = shade.DeepCopy()
	r.cacheMu.Unlock()

	return shade, nil
}

// ListShades retrieves all shades ordered by ID.
// The returned shades are deep copies; callers can safely modify them.
func (r *Registry) ListShades(ctx context.Context) ([]Shade, error) {
	r.cacheMu.RLock()
	if len(r.shades) > 0 {
		shades := make([]Shade, 0, len(r.shades))
		for _, s := range r.shades {
			shades = append(shades, *s.DeepCopy())
		}
		r.cacheMu.RUnlock()
		sort.Slice(shades, func(i, j int) bool { return shades[i].ID < shades[j].ID })
		return shades, nil
	}
	r.cacheMu.RUnlock()

	return r.repo.ListShades(ctx)
}

// ListShadesByRoom retrieves all shades assigned to a room.
func (r *Registry) ListShadesByRoom(ctx context.Context, room string) ([]Shade, error) {
	r.cacheMu.RLock()
	if len(r.shades) > 0 {
		var shades []Shade
		for _, s := range r.shades {
			if s.Room == room {
				shades = append(shades, *s.DeepCopy())
			}
		}
		r.cacheMu.RUnlock()
		sort.Slice(shades, func(i, j int) bool { return shades[i].ID < shades[j].ID })
		return shades, nil
	}
	r.cacheMu.RUnlock()

	return r.repo.ListShadesByRoom(ctx, room)
}

// CreateShade validates and persists a new shade, then caches it.
func (r *Registry) CreateShade(ctx context.Context, shade *Shade) error {
	if err := ValidateShade(shade); err != nil {
		return err
	}

	if err := r.repo.CreateShade(ctx, shade); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.shades[shade.ID] = shade.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("shade created", "shade_id", shade.ID, "name", shade.Name)
	return nil
}

// UpdateShade validates and persists changes to an existing shade.
func (r *Registry) UpdateShade(ctx context.Context, shade *Shade) error {
	if err := ValidateShade(shade); err != nil {
		return err
	}

	if err := r.repo.UpdateShade(ctx, shade); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.shades[shade.ID] = shade.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("shade updated", "shade_id", shade.ID)
	return nil
}

// DeleteShade removes a shade from storage and cache.
func (r *Registry) DeleteShade(ctx context.Context, id int) error {
	if err := r.repo.DeleteShade(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.shades, id)
	// Scenes referencing the shade lose their commands via FK cascade;
	// drop them from cache so the next read reloads the trimmed rows.
	for name, scene := range r.scenes {
		for _, cmd := range scene.Commands {
			if cmd.ShadeID == id {
				delete(r.scenes, name)
				break
			}
		}
	}
	r.cacheMu.Unlock()

	r.logger.Info("shade deleted", "shade_id", id)
	return nil
}

// GetScene retrieves a scene by name.
// Returns ErrSceneNotFound if the scene does not exist.
// The returned scene is a deep copy; callers can safely modify it.
func (r *Registry) GetScene(ctx context.Context, name string) (*Scene, error) {
	r.cacheMu.RLock()
	cached, ok := r.scenes[name]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	scene, err := r.repo.GetScene(ctx, name)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.scenes[name] = scene.DeepCopy()
	r.cacheMu.Unlock()

	return scene, nil
}

// ListScenes retrieves all scenes ordered by name.
func (r *Registry) ListScenes(ctx context.Context) ([]Scene, error) {
	r.cacheMu.RLock()
	if len(r.scenes) > 0 {
		scenes := make([]Scene, 0, len(r.scenes))
		for _, s := range r.scenes {
			scenes = append(scenes, *s.DeepCopy())
		}
		r.cacheMu.RUnlock()
		sort.Slice(scenes, func(i, j int) bool { return scenes[i].Name < scenes[j].Name })
		return scenes, nil
	}
	r.cacheMu.RUnlock()

	return r.repo.ListScenes(ctx)
}

// SaveScene validates and persists a scene, then caches it.
// Every shade the scene references must exist in the catalog.
func (r *Registry) SaveScene(ctx context.Context, scene *Scene) error {
	if err := ValidateScene(scene); err != nil {
		return err
	}

	for _, id := range scene.ShadeIDs() {
		if _, err := r.GetShade(ctx, id); err != nil {
			return fmt.Errorf("%w: references shade %d: %v", ErrInvalidScene, id, err)
		}
	}

	if err := r.repo.SaveScene(ctx, scene); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.scenes[scene.Name] = scene.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("scene saved", "scene", scene.Name, "commands", len(scene.Commands))
	return nil
}

// DeleteScene removes a scene from storage and cache.
func (r *Registry) DeleteScene(ctx context.Context, name string) error {
	if err := r.repo.DeleteScene(ctx, name); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.scenes, name)
	r.cacheMu.Unlock()

	r.logger.Info("scene deleted", "scene", name)
	return nil
}
