package world

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Store owns the tracked entity population: the identity map, the
// spatial grid and the distance cache. All mutation goes through its
// methods so the three structures never disagree — a position change
// relocates the grid entry and invalidates the cached distance in the
// same call, with no observable intermediate state.
// Accessed only from the radar loop goroutine — no locks.

// Observer is the player's own state. Position is absent until the
// first location event.
type Observer struct {
	Pos      Vec3
	HasPos   bool
	Rotation *float64
	Yaw      *float64
	Pitch    *float64
}

// Active reports whether the observer has a known position.
func (o Observer) Active() bool { return o.HasPos }

// Settings are the static store parameters handed over at construction.
type Settings struct {
	RadiusMeters float64
	MaxEntities  int // population ceiling, 0 = unlimited
	StaleAfter   time.Duration
}

// Stats is an on-demand diagnostic view. Not for the hot path.
type Stats struct {
	Population        int
	InRadius          int
	CacheSize         int
	CellCount         int
	Upserts           uint64
	Removals          uint64
	StaleEvictions    uint64
	CapacityEvictions uint64
	CacheHits         uint64
	CacheMisses       uint64
}

type Store struct {
	entities map[uint64]*Entity
	grid     *Grid
	cache    *distCache
	observer Observer

	radiusMeters float64
	maxEntities  int
	staleAfter   time.Duration

	hook CreationHook     // optional classification override, nil = off
	now  func() time.Time // injectable clock

	upserts           uint64
	removals          uint64
	staleEvictions    uint64
	capacityEvictions uint64

	queryBuf []uint64 // reusable candidate buffer

	log *zap.Logger
}

// Option configures a Store at construction.
type Option func(*Store)

// WithClock replaces the store's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCreationHook installs a classification override consulted once per
// entity creation.
func WithCreationHook(h CreationHook) Option {
	return func(s *Store) { s.hook = h }
}

func NewStore(cfg Settings, log *zap.Logger, opts ...Option) *Store {
	s := &Store{
		entities:     make(map[uint64]*Entity),
		grid:         NewGrid(),
		cache:        newDistCache(),
		radiusMeters: cfg.RadiusMeters,
		maxEntities:  cfg.MaxEntities,
		staleAfter:   cfg.StaleAfter,
		now:          time.Now,
		log:          log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert inserts or merges attributes into the record for id. Unknown
// optional fields are left untouched on update and defaulted on
// creation. Never fails; returns the resulting record.
func (s *Store) Upsert(id uint64, patch AttrPatch) *Entity {
	s.upserts++
	e, ok := s.entities[id]
	if !ok {
		kind := ClassifyKind(patch.IsPlayer, patch.TemplateID)
		friendly := ClassifyFriendly(patch.RelationCode)
		name := UnknownName
		if patch.Name != nil {
			name = *patch.Name
		}
		if s.hook != nil {
			var tmpl uint32
			if patch.TemplateID != nil {
				tmpl = *patch.TemplateID
			}
			kind, friendly = s.hook.OverrideClassification(id, name, tmpl, kind, friendly)
		}
		e = &Entity{ID: id, Name: name, Kind: kind, Friendly: friendly}
		s.entities[id] = e
	} else if patch.Name != nil {
		e.Name = *patch.Name
	}

	if patch.Health != nil {
		h := *patch.Health
		e.Health = &h
	}
	if patch.Level != nil {
		lv := *patch.Level
		e.Level = &lv
	}
	if patch.Class != nil {
		cl := *patch.Class
		e.Class = &cl
	}
	if patch.Pos != nil {
		s.setPosition(e, *patch.Pos)
	}
	e.LastUpdate = s.now()

	if !ok && s.maxEntities > 0 && len(s.entities) > s.maxEntities {
		s.evictOldest(len(s.entities) - s.maxEntities)
	}
	return e
}

// setPosition updates the record and relocates the grid entry in one
// step, then drops the memoized distance.
func (s *Store) setPosition(e *Entity, p Vec3) {
	if e.HasPos {
		s.grid.Move(e.ID, e.Pos, p)
	} else {
		s.grid.Add(e.ID, p)
	}
	e.Pos = p
	e.HasPos = true
	s.cache.invalidate(e.ID)
}

// Remove deletes the record and its grid membership. Idempotent;
// reports whether anything was removed.
func (s *Store) Remove(id uint64) bool {
	e, ok := s.entities[id]
	if !ok {
		return false
	}
	s.dropEntity(e)
	s.removals++
	return true
}

func (s *Store) dropEntity(e *Entity) {
	if e.HasPos {
		s.grid.Remove(e.ID, e.Pos)
	}
	s.cache.invalidate(e.ID)
	delete(s.entities, e.ID)
}

// Get returns the record for id, or nil.
func (s *Store) Get(id uint64) *Entity {
	return s.entities[id]
}

// Count returns the tracked population.
func (s *Store) Count() int {
	return len(s.entities)
}

// SetObserverPosition updates the observer location. If the bucketed
// position changed, the whole distance cache is invalidated.
func (s *Store) SetObserverPosition(p Vec3) {
	s.observer.Pos = p
	s.observer.HasPos = true
	s.cache.rebase(p)
}

// SetObserverAim updates the observer's facing scalars. Nil fields are
// left untouched.
func (s *Store) SetObserverAim(rotation, yaw, pitch *float64) {
	if rotation != nil {
		r := *rotation
		s.observer.Rotation = &r
	}
	if yaw != nil {
		y := *yaw
		s.observer.Yaw = &y
	}
	if pitch != nil {
		p := *pitch
		s.observer.Pitch = &p
	}
}

// Observer returns a copy of the current observer state.
func (s *Store) Observer() Observer {
	return s.observer
}

// RadiusMeters returns the configured query radius.
func (s *Store) RadiusMeters() float64 {
	return s.radiusMeters
}

// Result is one radius-query hit.
type Result struct {
	Entity     *Entity
	DistMeters float64
}

// QueryRadius returns all entities within radiusMeters of the observer,
// sorted ascending by distance, ties broken by id. Empty when the
// observer position is unknown.
//
// Two-phase filter: the grid narrows candidates to the cells
// intersecting the bounding cube of the query sphere, then memoized
// squared distances (in world units, same unit as the converted radius)
// decide membership. Query cost is proportional to population density
// near the observer, not total population.
func (s *Store) QueryRadius(radiusMeters float64) []Result {
	if !s.observer.HasPos || radiusMeters < 0 {
		return nil
	}
	radiusUnits := MetersToUnits(radiusMeters)
	radiusSq := radiusUnits * radiusUnits

	s.cache.rebase(s.observer.Pos)
	cellRadius := int32(math.Ceil(radiusUnits / cellSize))
	s.queryBuf = s.grid.GatherInto(s.observer.Pos, cellRadius, s.queryBuf[:0])

	results := make([]Result, 0, len(s.queryBuf))
	for _, id := range s.queryBuf {
		e := s.entities[id]
		if e == nil {
			continue
		}
		dsq := s.cache.get(id, e.Pos, s.observer.Pos)
		if dsq <= radiusSq {
			results = append(results, Result{
				Entity:     e,
				DistMeters: UnitsToMeters(math.Sqrt(dsq)),
			})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].DistMeters != results[j].DistMeters {
			return results[i].DistMeters < results[j].DistMeters
		}
		return results[i].Entity.ID < results[j].Entity.ID
	})
	return results
}

// EvictStale removes every record whose LastUpdate precedes now−maxAge.
// Returns the number evicted.
func (s *Store) EvictStale(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)
	n := 0
	for _, e := range s.entities {
		if e.LastUpdate.Before(cutoff) {
			s.dropEntity(e)
			s.staleEvictions++
			n++
		}
	}
	if n > 0 && s.log != nil {
		s.log.Debug("stale entities evicted",
			zap.Int("count", n),
			zap.Duration("max_age", maxAge))
	}
	return n
}

// evictOldest is the capacity relief path: drop the k least-recently
// updated entities. Counted separately from normal removals.
func (s *Store) evictOldest(k int) {
	victims := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		victims = append(victims, e)
	}
	sort.Slice(victims, func(i, j int) bool {
		if !victims[i].LastUpdate.Equal(victims[j].LastUpdate) {
			return victims[i].LastUpdate.Before(victims[j].LastUpdate)
		}
		return victims[i].ID < victims[j].ID
	})
	if k > len(victims) {
		k = len(victims)
	}
	for _, e := range victims[:k] {
		s.dropEntity(e)
		s.capacityEvictions++
	}
	if s.log != nil {
		s.log.Warn("population ceiling exceeded, evicted oldest entities",
			zap.Int("evicted", k),
			zap.Int("ceiling", s.maxEntities))
	}
}

// Stats computes a diagnostic view on demand. The in-radius count runs a
// real query; that only warms the (transparent) distance cache.
func (s *Store) Stats() Stats {
	return Stats{
		Population:        len(s.entities),
		InRadius:          len(s.QueryRadius(s.radiusMeters)),
		CacheSize:         s.cache.size(),
		CellCount:         s.grid.CellCount(),
		Upserts:           s.upserts,
		Removals:          s.removals,
		StaleEvictions:    s.staleEvictions,
		CapacityEvictions: s.capacityEvictions,
		CacheHits:         s.cache.hits,
		CacheMisses:       s.cache.misses,
	}
}
