package catalog

import (
	"fmt"
	"time"
)

// Action is a shade movement command.
type Action string

// Valid actions.
const (
	ActionUp   Action = "up"
	ActionDown Action = "down"
	ActionStop Action = "stop"
)

// AllActions returns every valid action.
func AllActions() []Action {
	return []Action{ActionUp, ActionDown, ActionStop}
}

// ParseAction converts a string into an Action.
// Returns ErrInvalidAction for anything other than up, down or stop.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionUp, ActionDown, ActionStop:
		return Action(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

// Shade represents a single physical window shade and the RF codes that
// drive it. Codes are nullable: a shade with no code for an action cannot
// receive that action.
type Shade struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Room     string `json:"room"`
	RemoteID int    `json:"remote_id"`
	Channel  int    `json:"channel"`

	UpCode   *int `json:"up_code,omitempty"`
	DownCode *int `json:"down_code,omitempty"`
	StopCode *int `json:"stop_code,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CodeFor returns the RF code for the given action.
// Returns ErrCodeUnmapped if the shade has no code for that action.
func (s *Shade) CodeFor(action Action) (int, error) {
	var code *int
	switch action {
	case ActionUp:
		code = s.UpCode
	case ActionDown:
		code = s.DownCode
	case ActionStop:
		code = s.StopCode
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	if code == nil {
		return 0, fmt.Errorf("%w: shade %d has no %s code", ErrCodeUnmapped, s.ID, action)
	}
	return *code, nil
}

// DeepCopy creates an independent copy of the Shade.
// Pointer code fields are cloned so modifications to the copy do not
// affect the original. This is essential for cache isolation.
func (s *Shade) DeepCopy() *Shade {
	if s == nil {
		return nil
	}

	cpy := *s
	cpy.UpCode = copyIntPtr(s.UpCode)
	cpy.DownCode = copyIntPtr(s.DownCode)
	cpy.StopCode = copyIntPtr(s.StopCode)
	return &cpy
}

func copyIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// SceneCommand is one step of a scene: move one shade, optionally after
// a delay relative to the previous step.
type SceneCommand struct {
	ShadeID int    `json:"shade_id"`
	Action  Action `json:"action"`
	DelayMS int    `json:"delay_ms"`
}

// Scene is a named, ordered group of shade commands.
// CycleCount controls how many times the full command list is replayed
// when the scene is activated; values below 1 are treated as 1.
type Scene struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	CycleCount  int            `json:"cycle_count"`
	Commands    []SceneCommand `json:"commands"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates an independent copy of the Scene.
func (s *Scene) DeepCopy() *Scene {
	if s == nil {
		return nil
	}

	cpy := *s
	if s.Commands != nil {
		cpy.Commands = make([]SceneCommand, len(s.Commands))
		copy(cpy.Commands, s.Commands)
	}
	return &cpy
}

// ShadeIDs returns the distinct shade IDs referenced by the scene, in
// first-appearance order.
func (s *Scene) ShadeIDs() []int {
	seen := make(map[int]struct{}, len(s.Commands))
	var ids []int
	for _, cmd := range s.Commands {
		if _, ok := seen[cmd.ShadeID]; ok {
			continue
		}
		seen[cmd.ShadeID] = struct{}{}
		ids = append(ids, cmd.ShadeID)
	}
	return ids
}
