// Package snapshot defines the radar output schema and the pure
// assembler that builds one snapshot from observer state and an ordered
// radius-query result.
//
// The wire types mirror the consumer contract exactly: every nullable
// field is emitted as an explicit null, never omitted, so downstream
// parsers can rely on a fixed schema.
package snapshot

import (
	"time"

	"github.com/teramod/radar/internal/world"
)

// Position is a 3-D coordinate block in raw world units.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Player is the observer block. Each field is independently nullable.
type Player struct {
	Position *Position `json:"position"`
	Rotation *float64  `json:"rotation"`
	Yaw      *float64  `json:"yaw"`
	Pitch    *float64  `json:"pitch"`
	IsActive bool      `json:"isActive"`
}

// Entity is one tracked entity reduced to its reportable attributes.
type Entity struct {
	GameID     uint64   `json:"gameId"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Position   Position `json:"position"`
	Distance   *float64 `json:"distance"`
	IsFriendly bool     `json:"isFriendly"`
	HP         *int32   `json:"hp"`
	MaxHP      *int32   `json:"maxHp"`
	Level      *int32   `json:"level"`
	Class      *string  `json:"class"`
}

// Metadata describes the query that produced the snapshot.
type Metadata struct {
	EntitiesInRadius     int     `json:"entitiesInRadius"`
	RadarRadius          float64 `json:"radarRadius"`
	TotalEntitiesTracked int     `json:"totalEntitiesTracked"`
}

// Snapshot is one complete radar frame.
type Snapshot struct {
	Timestamp string   `json:"timestamp"`
	Player    Player   `json:"player"`
	Entities  []Entity `json:"entities"`
	Metadata  Metadata `json:"metadata"`
}

// Assemble builds a snapshot from the observer state, an ordered query
// result, and static metadata. Pure: no I/O, no mutation, cheap enough
// to run every tick.
func Assemble(obs world.Observer, results []world.Result, radiusMeters float64, totalTracked int, now time.Time) *Snapshot {
	player := Player{
		Rotation: copyFloat(obs.Rotation),
		Yaw:      copyFloat(obs.Yaw),
		Pitch:    copyFloat(obs.Pitch),
		IsActive: obs.Active(),
	}
	if obs.HasPos {
		player.Position = &Position{X: obs.Pos.X, Y: obs.Pos.Y, Z: obs.Pos.Z}
	}

	entities := make([]Entity, 0, len(results))
	for _, r := range results {
		e := r.Entity
		dist := r.DistMeters
		out := Entity{
			GameID:     e.ID,
			Name:       e.Name,
			Type:       string(e.Kind),
			Position:   Position{X: e.Pos.X, Y: e.Pos.Y, Z: e.Pos.Z},
			Distance:   &dist,
			IsFriendly: e.Friendly,
		}
		if e.Health != nil {
			hp := e.Health.HP
			maxHP := e.Health.MaxHP
			out.HP = &hp
			out.MaxHP = &maxHP
		}
		if e.Level != nil {
			lv := *e.Level
			out.Level = &lv
		}
		if e.Class != nil {
			cl := *e.Class
			out.Class = &cl
		}
		entities = append(entities, out)
	}

	return &Snapshot{
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Player:    player,
		Entities:  entities,
		Metadata: Metadata{
			EntitiesInRadius:     len(entities),
			RadarRadius:          radiusMeters,
			TotalEntitiesTracked: totalTracked,
		},
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
