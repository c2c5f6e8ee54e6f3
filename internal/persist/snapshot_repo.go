package persist

import (
	"context"
	"fmt"
	"time"
)

// SnapshotRepo archives written snapshots for offline analysis. One row
// per successful pipeline write; failures are the caller's to log and
// never block the pipeline.
type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Insert stores one snapshot payload.
func (r *SnapshotRepo) Insert(ctx context.Context, takenAt time.Time, entityCount int, radiusMeters float64, payload []byte) error {
	if _, err := r.db.Pool.Exec(ctx,
		`INSERT INTO snapshots (taken_at, entity_count, radius_m, payload)
		 VALUES ($1, $2, $3, $4)`,
		takenAt, entityCount, radiusMeters, payload,
	); err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}
	return nil
}

// Prune removes archived snapshots older than the retention window.
func (r *SnapshotRepo) Prune(ctx context.Context, keep time.Duration) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM snapshots WHERE taken_at < $1`,
		time.Now().Add(-keep),
	)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
