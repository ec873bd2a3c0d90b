package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"subdex/internal/ledger"
	"subdex/internal/market"
	"subdex/internal/numeric"
	"subdex/internal/pool"
)

// fileState is the on-disk layout of a FileStore.
type fileState struct {
	Pools     []poolEntry     `json:"pools"`
	Balances  ledger.Balances `json:"balances"`
	UpdatedAt string          `json:"updated_at"`
}

type poolEntry struct {
	Pair pool.PairKey `json:"pair"`
	Pool pool.Pool    `json:"pool"`
}

// FileStore keeps pools and balances in a single JSON file. Every write
// rewrites the file through a tmp file and rename.
type FileStore struct {
	path  string
	width numeric.Width

	mu     sync.Mutex
	pools  map[pool.PairKey]pool.Pool
	ledger *ledger.Ledger
}

func NewFileStore(path string, width numeric.Width) *FileStore {
	return &FileStore{
		path:   path,
		width:  width,
		pools:  make(map[pool.PairKey]pool.Pool),
		ledger: ledger.New(width),
	}
}

func (s *FileStore) LoadPool(_ context.Context, pair pool.PairKey) (pool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return pool.Pool{}, err
	}
	return s.pools[pair].Clone(), nil
}

func (s *FileStore) SavePool(_ context.Context, pair pool.PairKey, p pool.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}

	prev, existed := s.pools[pair]
	if err := market.CheckVersion(pair, prev.Version, p.Version); err != nil {
		return err
	}
	saved := p.Clone()
	saved.Version++
	s.pools[pair] = saved
	if err := s.persist(); err != nil {
		if existed {
			s.pools[pair] = prev
		} else {
			delete(s.pools, pair)
		}
		return err
	}
	return nil
}

func (s *FileStore) ListPools(context.Context) ([]pool.PairKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	return market.SortPairs(s.pools), nil
}

func (s *FileStore) Balance(ctx context.Context, account common.Address, asset string) (numeric.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return numeric.Amount{}, err
	}
	return s.ledger.Balance(ctx, account, asset)
}

func (s *FileStore) Transfer(ctx context.Context, from, to common.Address, asset string, amount numeric.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}

	before := s.ledger.Snapshot()
	if err := s.ledger.Transfer(ctx, from, to, asset, amount); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		s.ledger.Restore(before)
		return err
	}
	return nil
}

// Deposit mints a balance. It backs the ledger deposit command.
func (s *FileStore) Deposit(ctx context.Context, account common.Address, asset string, amount numeric.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}

	before := s.ledger.Snapshot()
	if err := s.ledger.Deposit(ctx, account, asset, amount); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		s.ledger.Restore(before)
		return err
	}
	return nil
}

// Balances returns a copy of every account balance.
func (s *FileStore) Balances() (ledger.Balances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	return s.ledger.Snapshot(), nil
}

// load re-reads the file on every operation so that writes from other
// processes are seen before a pool version is checked.
func (s *FileStore) load() error {
	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.pools = make(map[pool.PairKey]pool.Pool)
			s.ledger.Restore(nil)
			return nil
		}
		return fmt.Errorf("stat state file: %w", err)
	}
	if stat.IsDir() {
		return fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse state file: %w", err)
	}

	pools := make(map[pool.PairKey]pool.Pool, len(state.Pools))
	for _, entry := range state.Pools {
		if err := entry.Pair.Validate(); err != nil {
			return fmt.Errorf("state file: %w", err)
		}
		if err := entry.Pool.Validate(s.width); err != nil {
			return fmt.Errorf("state file: pool %s: %w", entry.Pair, err)
		}
		pools[entry.Pair] = entry.Pool.Clone()
	}

	s.pools = pools
	s.ledger.Restore(state.Balances)
	return nil
}

func (s *FileStore) persist() error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	state := fileState{
		Balances:  s.ledger.Snapshot(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, pair := range market.SortPairs(s.pools) {
		state.Pools = append(state.Pools, poolEntry{Pair: pair, Pool: s.pools[pair]})
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}
