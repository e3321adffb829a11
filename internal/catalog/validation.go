package catalog

import "fmt"

// Validation constants.
const (
	maxNameLength        = 100
	maxDescriptionLength = 500
	maxSceneCommands     = 200
	maxCycleCount        = 10
	maxRemoteID          = 0xFFFF
	maxChannel           = 99
)

// ValidateShade performs validation on a shade.
// Returns an error describing the first validation failure found.
func ValidateShade(s *Shade) error {
	if s == nil {
		return ErrInvalidShade
	}
	if s.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidShade)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidShade)
	}
	if len(s.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidShade, maxNameLength)
	}
	if s.RemoteID < 0 || s.RemoteID > maxRemoteID {
		return fmt.Errorf("%w: remote_id out of range", ErrInvalidShade)
	}
	if s.Channel < 0 || s.Channel > maxChannel {
		return fmt.Errorf("%w: channel out of range", ErrInvalidShade)
	}
	if s.UpCode == nil && s.DownCode == nil && s.StopCode == nil {
		return fmt.Errorf("%w: at least one action code is required", ErrInvalidShade)
	}
	return nil
}

// ValidateScene performs validation on a scene and its commands.
// Returns an error describing the first validation failure found.
func ValidateScene(s *Scene) error {
	if s == nil {
		return ErrInvalidScene
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScene)
	}
	if len(s.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidScene, maxNameLength)
	}
	if len(s.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidScene, maxDescriptionLength)
	}
	if s.CycleCount > maxCycleCount {
		return fmt.Errorf("%w: cycle_count exceeds %d", ErrInvalidScene, maxCycleCount)
	}
	if len(s.Commands) == 0 {
		return fmt.Errorf("%w: at least one command is required", ErrInvalidScene)
	}
	if len(s.Commands) > maxSceneCommands {
		return fmt.Errorf("%w: too many commands (max %d)", ErrInvalidScene, maxSceneCommands)
	}
	for i, cmd := range s.Commands {
		if cmd.ShadeID <= 0 {
			return fmt.Errorf("%w: command %d: shade_id must be positive", ErrInvalidScene, i)
		}
		if _, err := ParseAction(string(cmd.Action)); err != nil {
			return fmt.Errorf("%w: command %d: %v", ErrInvalidScene, i, err)
		}
		if cmd.DelayMS < 0 {
			return fmt.Errorf("%w: command %d: delay_ms must not be negative", ErrInvalidScene, i)
		}
	}
	return nil
}
