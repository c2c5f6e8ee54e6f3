package feed

import (
	"encoding/json"

	"github.com/teramod/radar/internal/world"
)

// EventType discriminates decoded feed records.
type EventType string

const (
	EventSpawn    EventType = "spawn"
	EventMove     EventType = "move"
	EventHealth   EventType = "health"
	EventDespawn  EventType = "despawn"
	EventObserver EventType = "observer"
)

// Event is one decoded entity-state record, ready to apply to the store.
type Event struct {
	Type  EventType
	ID    uint64
	Patch world.AttrPatch

	// observer-only fields
	Rotation *float64
	Yaw      *float64
	Pitch    *float64
}

// wireEvent is the NDJSON line format produced by the capture side.
// Everything except type is optional; partially decoded records are
// expected and tolerated.
type wireEvent struct {
	Type       string   `json:"type"`
	ID         uint64   `json:"id"`
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	Z          *float64 `json:"z"`
	HP         *int32   `json:"hp"`
	MaxHP      *int32   `json:"maxHp"`
	Name       *string  `json:"name"`
	Level      *int32   `json:"level"`
	Class      *string  `json:"class"`
	Relation   *int32   `json:"relation"`
	TemplateID *uint32  `json:"templateId"`
	IsPlayer   bool     `json:"isPlayer"`
	Rotation   *float64 `json:"rotation"`
	Yaw        *float64 `json:"yaw"`
	Pitch      *float64 `json:"pitch"`
}

// decodeLine turns one feed line into an Event. Malformed lines are
// rejected, not raised: the capture side legitimately produces partially
// decoded records. An entity event without an id is malformed; a
// position is taken only when all three coordinates are present.
func decodeLine(line []byte) (Event, bool) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return Event{}, false
	}

	ev := Event{Type: EventType(w.Type), ID: w.ID}
	switch ev.Type {
	case EventSpawn, EventMove, EventHealth, EventDespawn:
		if w.ID == 0 {
			return Event{}, false
		}
	case EventObserver:
	default:
		return Event{}, false
	}

	if w.X != nil && w.Y != nil && w.Z != nil {
		ev.Patch.Pos = &world.Vec3{X: *w.X, Y: *w.Y, Z: *w.Z}
	}
	if w.HP != nil && w.MaxHP != nil {
		ev.Patch.Health = &world.Health{HP: *w.HP, MaxHP: *w.MaxHP}
	}
	ev.Patch.Name = w.Name
	ev.Patch.Level = w.Level
	ev.Patch.Class = w.Class
	ev.Patch.RelationCode = w.Relation
	ev.Patch.TemplateID = w.TemplateID
	ev.Patch.IsPlayer = w.IsPlayer
	ev.Rotation = w.Rotation
	ev.Yaw = w.Yaw
	ev.Pitch = w.Pitch
	return ev, true
}
