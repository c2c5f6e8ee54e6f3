package world

import "math"

// distCache memoizes observer→entity squared distances. Entries are
// logically keyed by (entity id, observer bucket); since the whole
// cache is cleared whenever the observer's bucketed position changes,
// the current bucket is stored once and the map is keyed by id alone.
// Bucketing the observer position to a coarse grid tolerates
// micro-jitter without invalidating every cached value.
//
// The cache is a pure memoization: dropping it at any point never
// changes a query result.

const observerBucketSize = 16.0 // world units, ~1 m

type bucketKey struct {
	bx int32
	by int32
	bz int32
}

func toBucket(p Vec3) bucketKey {
	return bucketKey{
		bx: int32(math.Floor(p.X / observerBucketSize)),
		by: int32(math.Floor(p.Y / observerBucketSize)),
		bz: int32(math.Floor(p.Z / observerBucketSize)),
	}
}

type distCache struct {
	bucket bucketKey
	valid  bool
	distSq map[uint64]float64

	hits   uint64
	misses uint64
}

func newDistCache() *distCache {
	return &distCache{distSq: make(map[uint64]float64)}
}

// rebase clears the cache wholesale when the observer's bucketed
// position changes. All cached values are keyed under the old bucket
// and become unreachable anyway, so a global clear beats fine-grained
// invalidation.
func (c *distCache) rebase(observer Vec3) {
	b := toBucket(observer)
	if c.valid && b == c.bucket {
		return
	}
	c.bucket = b
	c.valid = true
	clear(c.distSq)
}

// get returns the memoized squared distance for an entity, computing it
// on miss.
func (c *distCache) get(id uint64, entityPos, observerPos Vec3) float64 {
	if d, ok := c.distSq[id]; ok {
		c.hits++
		return d
	}
	c.misses++
	d := entityPos.DistSq(observerPos)
	c.distSq[id] = d
	return d
}

// invalidate drops the entry for one entity. Called whenever that
// entity's position changes or it is removed.
func (c *distCache) invalidate(id uint64) {
	delete(c.distSq, id)
}

func (c *distCache) size() int {
	return len(c.distSq)
}
