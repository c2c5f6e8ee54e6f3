package world

import "time"

// Kind classifies a tracked entity. It is derived once at creation and
// never re-evaluated: an entity does not change kind during its lifetime.
type Kind string

const (
	KindPlayer  Kind = "Player"
	KindNPC     Kind = "NPC"
	KindMonster Kind = "Monster"
)

// Classification and relation policy. The defaults lean hostile: an
// entity with no classification signal is a Monster, and an entity with
// no relation code is not friendly.
const (
	npcTemplateMin     uint32 = 1
	npcTemplateMax     uint32 = 9999
	monsterTemplateMin uint32 = 10000

	// Relation codes at or above this value count as friendly.
	FriendlyRelationThreshold int32 = 10
)

// UnknownName is the sentinel for entities whose spawn carried no name.
const UnknownName = "Unknown"

// Health is a current/maximum hit point pair.
type Health struct {
	HP    int32
	MaxHP int32
}

// Entity is one tracked object: immutable identity plus mutable
// attributes. Position changes must go through Store.Upsert so the grid
// and distance cache stay coherent with the record.
type Entity struct {
	ID         uint64
	Name       string
	Kind       Kind
	Pos        Vec3
	HasPos     bool
	Friendly   bool
	Health     *Health
	Level      *int32
	Class      *string
	LastUpdate time.Time
}

// AttrPatch is a partial attribute update. Only non-nil fields are
// applied; RelationCode, TemplateID and IsPlayer are classification
// hints honoured at creation only.
type AttrPatch struct {
	Name         *string
	Pos          *Vec3
	Health       *Health
	Level        *int32
	Class        *string
	RelationCode *int32
	TemplateID   *uint32
	IsPlayer     bool
}

// ClassifyKind derives an entity kind from creation-time hints: an
// explicit player signal wins, then the template id ranges, then the
// hostile default.
func ClassifyKind(isPlayer bool, templateID *uint32) Kind {
	if isPlayer {
		return KindPlayer
	}
	if templateID != nil {
		switch id := *templateID; {
		case id >= monsterTemplateMin:
			return KindMonster
		case id >= npcTemplateMin && id <= npcTemplateMax:
			return KindNPC
		}
	}
	return KindMonster
}

// ClassifyFriendly derives friendliness from a relation code. A missing
// code is hostile.
func ClassifyFriendly(relationCode *int32) bool {
	return relationCode != nil && *relationCode >= FriendlyRelationThreshold
}

// CreationHook can override the derived kind/friendly pair for a newly
// created entity. Consulted once, at creation, from the radar loop
// goroutine.
type CreationHook interface {
	OverrideClassification(id uint64, name string, templateID uint32, kind Kind, friendly bool) (Kind, bool)
}
