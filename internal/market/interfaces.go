package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"subdex/internal/numeric"
	"subdex/internal/pool"
)

// ErrStalePool is returned by SavePool when the stored pool was saved by
// someone else after p was loaded.
var ErrStalePool = errors.New("pool changed since it was loaded")

// Repository persists pool snapshots by pair.
type Repository interface {
	// LoadPool returns an empty Pool when the pair has never been launched.
	LoadPool(ctx context.Context, pair pool.PairKey) (pool.Pool, error)
	// SavePool stores p as version p.Version+1. It fails with ErrStalePool
	// unless the stored version is still p.Version.
	SavePool(ctx context.Context, pair pool.PairKey, p pool.Pool) error
	ListPools(ctx context.Context) ([]pool.PairKey, error)
}

// CheckVersion compares the version a snapshot was loaded at with the one
// currently stored.
func CheckVersion(pair pool.PairKey, stored, loaded uint64) error {
	if stored != loaded {
		return fmt.Errorf("save pool %s at version %d, stored %d: %w", pair, loaded, stored, ErrStalePool)
	}
	return nil
}

// Custody moves asset balances between accounts.
type Custody interface {
	Transfer(ctx context.Context, from, to common.Address, asset string, amount numeric.Amount) error
	Balance(ctx context.Context, account common.Address, asset string) (numeric.Amount, error)
}

// Clock supplies the current time in seconds.
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// Journal records committed operations.
type Journal interface {
	Append(ctx context.Context, events []Event) error
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

func (SystemClock) Now(context.Context) (uint64, error) {
	return uint64(time.Now().Unix()), nil
}

// MemoryRepository keeps pools in a map.
type MemoryRepository struct {
	mu    sync.RWMutex
	pools map[pool.PairKey]pool.Pool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{pools: make(map[pool.PairKey]pool.Pool)}
}

func (r *MemoryRepository) LoadPool(_ context.Context, pair pool.PairKey) (pool.Pool, error) {
	r.mu.RLock()
	p, ok := r.pools[pair]
	r.mu.RUnlock()
	if !ok {
		return pool.Pool{}.Clone(), nil
	}
	return p.Clone(), nil
}

func (r *MemoryRepository) SavePool(_ context.Context, pair pool.PairKey, p pool.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := CheckVersion(pair, r.pools[pair].Version, p.Version); err != nil {
		return err
	}
	saved := p.Clone()
	saved.Version++
	r.pools[pair] = saved
	return nil
}

func (r *MemoryRepository) ListPools(context.Context) ([]pool.PairKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return SortPairs(r.pools), nil
}

// SortPairs returns the keys of m ordered by their string form.
func SortPairs[V any](m map[pool.PairKey]V) []pool.PairKey {
	out := make([]pool.PairKey, 0, len(m))
	for pair := range m {
		out = append(out, pair)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
