package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"friend-graph-service/internal/graph"
)

// Repair is a set of relationship mutations left unapplied by a half finished operation.
type Repair struct {
	ID         string           `json:"id"`
	Operation  string           `json:"operation"`
	Mutations  []graph.Mutation `json:"mutations"`
	Cause      string           `json:"cause"`
	RecordedAt time.Time        `json:"recorded_at"`
	Attempts   int              `json:"attempts"`
}

// RepairStore is the durable journal of pending repairs. SaveRepair upserts by ID and
// ListRepairs returns the oldest first.
type RepairStore interface {
	SaveRepair(ctx context.Context, repair Repair) error
	DeleteRepair(ctx context.Context, id string) error
	ListRepairs(ctx context.Context) ([]Repair, error)
}

var ErrInvalidRepair = errors.New("repair id is required")

type RepairRepository struct {
	db *sqlx.DB
}

func NewRepairRepository(db *sqlx.DB) *RepairRepository {
	return &RepairRepository{db: db}
}

type repairRow struct {
	ID         string    `db:"id"`
	Operation  string    `db:"operation"`
	Mutations  []byte    `db:"mutations"`
	Cause      string    `db:"cause"`
	RecordedAt time.Time `db:"recorded_at"`
	Attempts   int       `db:"attempts"`
}

func (r *RepairRepository) SaveRepair(ctx context.Context, repair Repair) error {
	if repair.ID == "" {
		return ErrInvalidRepair
	}
	mutations, err := json.Marshal(repair.Mutations)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO friend_repairs (id, operation, mutations, cause, recorded_at, attempts)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
	mutations=EXCLUDED.mutations,
	cause=EXCLUDED.cause,
	attempts=EXCLUDED.attempts
`, repair.ID, repair.Operation, mutations, repair.Cause, repair.RecordedAt, repair.Attempts)
	return err
}

func (r *RepairRepository) DeleteRepair(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM friend_repairs WHERE id=$1`, id)
	return err
}

func (r *RepairRepository) ListRepairs(ctx context.Context) ([]Repair, error) {
	var rows []repairRow
	if err := r.db.SelectContext(ctx, &rows, `
SELECT id, operation, mutations, cause, recorded_at, attempts
FROM friend_repairs ORDER BY recorded_at, id`); err != nil {
		return nil, err
	}

	repairs := make([]Repair, 0, len(rows))
	for _, row := range rows {
		repair := Repair{
			ID:         row.ID,
			Operation:  row.Operation,
			Cause:      row.Cause,
			RecordedAt: row.RecordedAt,
			Attempts:   row.Attempts,
		}
		if err := json.Unmarshal(row.Mutations, &repair.Mutations); err != nil {
			return nil, fmt.Errorf("repair %s: %w", row.ID, err)
		}
		repairs = append(repairs, repair)
	}
	return repairs, nil
}

const (
	repairsKey      = "repairs"
	repairsOrderKey = "repairs:order"
)

// RedisRepairRepository keeps each repair as JSON in one hash, ordered by a sorted set
// scored on the record time.
type RedisRepairRepository struct {
	rdb redis.UniversalClient
}

func NewRedisRepairRepository(rdb redis.UniversalClient) *RedisRepairRepository {
	return &RedisRepairRepository{rdb: rdb}
}

func (r *RedisRepairRepository) SaveRepair(ctx context.Context, repair Repair) error {
	if repair.ID == "" {
		return ErrInvalidRepair
	}
	payload, err := json.Marshal(repair)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, repairsKey, repair.ID, payload)
		pipe.ZAddNX(ctx, repairsOrderKey, redis.Z{Score: float64(repair.RecordedAt.UnixNano()), Member: repair.ID})
		return nil
	})
	return err
}

func (r *RedisRepairRepository) DeleteRepair(ctx context.Context, id string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, repairsKey, id)
		pipe.ZRem(ctx, repairsOrderKey, id)
		return nil
	})
	return err
}

func (r *RedisRepairRepository) ListRepairs(ctx context.Context) ([]Repair, error) {
	ids, err := r.rdb.ZRange(ctx, repairsOrderKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Repair{}, nil
	}

	values, err := r.rdb.HMGet(ctx, repairsKey, ids...).Result()
	if err != nil {
		return nil, err
	}
	repairs := make([]Repair, 0, len(values))
	for i, v := range values {
		payload, ok := v.(string)
		if !ok {
			// Deleted between the two reads.
			continue
		}
		var repair Repair
		if err := json.Unmarshal([]byte(payload), &repair); err != nil {
			return nil, fmt.Errorf("repair %s: %w", ids[i], err)
		}
		repairs = append(repairs, repair)
	}
	return repairs, nil
}

// MemoryRepairRepository is the journal used with the in-memory account store.
type MemoryRepairRepository struct {
	mu      sync.Mutex
	repairs map[string]Repair
	order   []string
}

func NewMemoryRepairRepository() *MemoryRepairRepository {
	return &MemoryRepairRepository{repairs: make(map[string]Repair)}
}

func (r *MemoryRepairRepository) SaveRepair(ctx context.Context, repair Repair) error {
	if repair.ID == "" {
		return ErrInvalidRepair
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.repairs[repair.ID]; !ok {
		r.order = append(r.order, repair.ID)
	}
	repair.Mutations = append([]graph.Mutation(nil), repair.Mutations...)
	r.repairs[repair.ID] = repair
	return nil
}

func (r *MemoryRepairRepository) DeleteRepair(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.repairs[id]; !ok {
		return nil
	}
	delete(r.repairs, id)
	for i, rid := range r.order {
		if rid == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryRepairRepository) ListRepairs(ctx context.Context) ([]Repair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Repair, 0, len(r.order))
	for _, id := range r.order {
		repair := r.repairs[id]
		repair.Mutations = append([]graph.Mutation(nil), repair.Mutations...)
		out = append(out, repair)
	}
	return out, nil
}
