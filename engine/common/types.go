package common

import (
	"fmt"
	"strings"

	"github.com/xiaonanln/entitysync/engine/uuid"
)

// EntityType is the category of a synced entity. Each type lives in its own grid
// and is dispatched by its own worker.
type EntityType uint8

const (
	// Object is the type of static world objects
	Object EntityType = iota
	// Character is the type of peds and other fast moving entities
	Character
	// TextLabel is the type of floating text labels
	TextLabel
	// Marker is the type of world markers
	Marker

	// EntityTypeCount is the number of entity types
	EntityTypeCount = 4
)

var entityTypeNames = [EntityTypeCount]string{"Object", "Character", "TextLabel", "Marker"}

func (t EntityType) String() string {
	if !t.IsValid() {
		return fmt.Sprintf("EntityType<%d>", uint8(t))
	}
	return entityTypeNames[t]
}

// IsValid returns if the entity type is one of the known types
func (t EntityType) IsValid() bool {
	return t < EntityTypeCount
}

// ParseEntityType converts a type name (case insensitive) to EntityType
func ParseEntityType(s string) (EntityType, bool) {
	for i, name := range entityTypeNames {
		if strings.EqualFold(name, s) {
			return EntityType(i), true
		}
	}
	return 0, false
}

// AllEntityTypes returns all entity types in order
func AllEntityTypes() []EntityType {
	types := make([]EntityType, EntityTypeCount)
	for i := range types {
		types[i] = EntityType(i)
	}
	return types
}

// EntityID type, unique within an EntityType
type EntityID uint64

// IsNil returns if EntityID is nil
func (id EntityID) IsNil() bool {
	return id == 0
}

// EntityKey is the global identity of an entity
type EntityKey struct {
	Type EntityType
	ID   EntityID
}

func (k EntityKey) String() string {
	return fmt.Sprintf("%s<%d>", k.Type, k.ID)
}

// ClientID type
type ClientID string

// GenClientID generates a new Client ID
func GenClientID() ClientID {
	return ClientID(uuid.GenUUID())
}

// IsNil returns if ClientID is nil
func (id ClientID) IsNil() bool {
	return id == ""
}

// CLIENTID_LENGTH is the length of Client IDs
const CLIENTID_LENGTH = uuid.UUID_LENGTH
