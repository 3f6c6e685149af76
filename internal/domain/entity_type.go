package domain

import "fmt"

// EntityType identifies the kind of entity a change request targets.
type EntityType string

const (
	EntityTypeUser     EntityType = "User"
	EntityTypePlaylist EntityType = "Playlist"
)

var knownEntityTypes = map[EntityType]struct{}{
	EntityTypeUser:     {},
	EntityTypePlaylist: {},
}

// ParseEntityType maps the on-chain entity type string to a known variant.
func ParseEntityType(value string) (EntityType, error) {
	entityType := EntityType(value)
	if _, ok := knownEntityTypes[entityType]; !ok {
		return "", fmt.Errorf("unknown entity type %q", value)
	}
	return entityType, nil
}

// Action is the operation a change request performs.
type Action string

const (
	ActionCreate Action = "Create"
	ActionUpdate Action = "Update"
	ActionDelete Action = "Delete"
)

// ParseAction maps the on-chain action string to a known variant.
func ParseAction(value string) (Action, error) {
	switch Action(value) {
	case ActionCreate, ActionUpdate, ActionDelete:
		return Action(value), nil
	default:
		return "", fmt.Errorf("unknown action %q", value)
	}
}
