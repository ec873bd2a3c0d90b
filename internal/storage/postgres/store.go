package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"subdex/internal/ledger"
	"subdex/internal/market"
	"subdex/internal/model"
	"subdex/internal/numeric"
	"subdex/internal/pool"
)

// Store provides Postgres persistence for pools, balances, the event
// journal and report windows.
type Store struct {
	pool  *pgxpool.Pool
	width numeric.Width
}

var (
	_ market.Repository = (*Store)(nil)
	_ market.Custody    = (*Store)(nil)
	_ market.Journal    = (*Store)(nil)
)

func NewStore(ctx context.Context, dsn string, width numeric.Width) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pgPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pgPool, width: width}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadPool returns an empty pool when the pair has no row.
func (s *Store) LoadPool(ctx context.Context, pair pool.PairKey) (pool.Pool, error) {
	var row poolRow
	err := s.pool.QueryRow(ctx, `
		SELECT first_reserve::text, second_reserve::text, invariant::text, total_shares::text,
			last_update_time, price1_cumulative::text, price2_cumulative::text, version
		FROM pools WHERE pair = $1
	`, pair.String()).Scan(
		&row.FirstReserve, &row.SecondReserve, &row.Invariant, &row.TotalShares,
		&row.LastUpdateTime, &row.Price1Cumulative, &row.Price2Cumulative, &row.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pool.Pool{}.Clone(), nil
		}
		return pool.Pool{}, err
	}

	rows, err := s.pool.Query(ctx, `SELECT owner, shares::text FROM pool_shares WHERE pair = $1`, pair.String())
	if err != nil {
		return pool.Pool{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var share shareRow
		if err := rows.Scan(&share.Owner, &share.Shares); err != nil {
			return pool.Pool{}, err
		}
		row.Shares = append(row.Shares, share)
	}
	if err := rows.Err(); err != nil {
		return pool.Pool{}, err
	}

	p, err := row.decode()
	if err != nil {
		return pool.Pool{}, fmt.Errorf("decode pool %s: %w", pair, err)
	}
	if err := p.Validate(s.width); err != nil {
		return pool.Pool{}, fmt.Errorf("pool %s: %w", pair, err)
	}
	return p, nil
}

// SavePool replaces the pool row and its share rows in one transaction. The
// row is written only while its version is still p.Version; the conditional
// UPDATE holds the row lock until commit, so concurrent writers of the same
// pair serialize and all but the first get market.ErrStalePool.
func (s *Store) SavePool(ctx context.Context, pair pool.PairKey, p pool.Pool) error {
	row := encodePool(p)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	args := []any{
		pair.String(), pair.First, pair.Second,
		row.FirstReserve, row.SecondReserve, row.Invariant, row.TotalShares,
		row.LastUpdateTime, row.Price1Cumulative, row.Price2Cumulative, row.Version,
	}
	var tag pgconn.CommandTag
	if p.Version == 0 {
		tag, err = tx.Exec(ctx, `
			INSERT INTO pools (
				pair, first_asset, second_asset, first_reserve, second_reserve, invariant, total_shares,
				last_update_time, price1_cumulative, price2_cumulative, version, created_at, updated_at
			) VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7::text::numeric,
				$8, $9::text::numeric, $10::text::numeric, $11::bigint + 1, now(), now())
			ON CONFLICT (pair) DO NOTHING
		`, args...)
	} else {
		tag, err = tx.Exec(ctx, `
			UPDATE pools SET
				first_reserve = $4::text::numeric,
				second_reserve = $5::text::numeric,
				invariant = $6::text::numeric,
				total_shares = $7::text::numeric,
				last_update_time = $8,
				price1_cumulative = $9::text::numeric,
				price2_cumulative = $10::text::numeric,
				version = version + 1,
				updated_at = now()
			WHERE pair = $1 AND first_asset = $2 AND second_asset = $3 AND version = $11::bigint
		`, args...)
	}
	if err != nil {
		return err
	}
	if err := checkSaved(tag, pair, p.Version); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pool_shares WHERE pair = $1`, pair.String()); err != nil {
		return err
	}
	if len(row.Shares) > 0 {
		batch := &pgx.Batch{}
		for _, share := range row.Shares {
			batch.Queue(`INSERT INTO pool_shares (pair, owner, shares) VALUES ($1, $2, $3::text::numeric)`,
				pair.String(), share.Owner, share.Shares)
		}
		br := tx.SendBatch(ctx, batch)
		for range row.Shares {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return err
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// checkSaved turns a pool write that matched no row into a stale error.
func checkSaved(tag pgconn.CommandTag, pair pool.PairKey, version uint64) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save pool %s at version %d: %w", pair, version, market.ErrStalePool)
	}
	return nil
}

func (s *Store) ListPools(ctx context.Context) ([]pool.PairKey, error) {
	rows, err := s.pool.Query(ctx, `SELECT first_asset, second_asset FROM pools ORDER BY pair`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []pool.PairKey
	for rows.Next() {
		var pair pool.PairKey
		if err := rows.Scan(&pair.First, &pair.Second); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

func (s *Store) Balance(ctx context.Context, account common.Address, asset string) (numeric.Amount, error) {
	var text string
	err := s.pool.QueryRow(ctx, `SELECT amount::text FROM balances WHERE account = $1 AND asset = $2`,
		account.Hex(), asset).Scan(&text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return numeric.Zero(), nil
		}
		return numeric.Amount{}, err
	}
	return numeric.Parse(text)
}

// Transfer debits and credits in one transaction. Rows are locked in
// address order.
func (s *Store) Transfer(ctx context.Context, from, to common.Address, asset string, amount numeric.Amount) error {
	if asset == "" {
		return ledger.ErrInvalidAsset
	}
	if amount.IsZero() {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	balances := make(map[common.Address]numeric.Amount, 2)
	for _, account := range lockOrder(from, to) {
		held, err := lockBalance(ctx, tx, account, asset)
		if err != nil {
			return err
		}
		balances[account] = held
	}

	remaining, ok := s.width.Sub(balances[from], amount)
	if !ok {
		return fmt.Errorf("%s holds %s %s: %w", from.Hex(), balances[from], asset, ledger.ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}
	credited, ok := s.width.Add(balances[to], amount)
	if !ok {
		return fmt.Errorf("%s %s: %w", to.Hex(), asset, ledger.ErrBalanceOverflow)
	}

	if err := writeBalance(ctx, tx, from, asset, remaining); err != nil {
		return err
	}
	if err := writeBalance(ctx, tx, to, asset, credited); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Deposit mints amount into account.
func (s *Store) Deposit(ctx context.Context, account common.Address, asset string, amount numeric.Amount) error {
	if asset == "" {
		return ledger.ErrInvalidAsset
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	held, err := lockBalance(ctx, tx, account, asset)
	if err != nil {
		return err
	}
	next, ok := s.width.Add(held, amount)
	if !ok {
		return fmt.Errorf("%s %s: %w", account.Hex(), asset, ledger.ErrBalanceOverflow)
	}
	if err := writeBalance(ctx, tx, account, asset, next); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Append inserts journal events in a single batch.
func (s *Store) Append(ctx context.Context, events []market.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		batch.Queue(`
			INSERT INTO pool_events (pair, kind, account, ts, payload, created_at)
			VALUES ($1, $2, $3, $4, $5::text::jsonb, now())
		`,
			event.Pair.String(),
			string(event.Kind),
			event.Account.Hex(),
			int64(event.Timestamp),
			string(payload),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Events returns journal events with a timestamp after the given one, in
// insertion order.
func (s *Store) Events(ctx context.Context, after uint64) ([]market.Event, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload::text FROM pool_events WHERE ts > $1 ORDER BY id`, int64(after))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []market.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var event market.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// UpsertWindowMetrics inserts or updates report windows.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				pair, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, invest_count, divest_count, volume_first, volume_second,
				fee_first, fee_second, treasury_first, treasury_second,
				reserve_first, reserve_second, fee_rate_first, fee_rate_second, apr, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8::text::numeric,$9::text::numeric,$10::text::numeric,$11::text::numeric,
				$12::text::numeric,$13::text::numeric,$14::text::numeric,$15::text::numeric,
				$16::text::numeric,$17::text::numeric,$18::text::numeric,now(),now())
			ON CONFLICT (pair, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				invest_count = EXCLUDED.invest_count,
				divest_count = EXCLUDED.divest_count,
				volume_first = EXCLUDED.volume_first,
				volume_second = EXCLUDED.volume_second,
				fee_first = EXCLUDED.fee_first,
				fee_second = EXCLUDED.fee_second,
				treasury_first = EXCLUDED.treasury_first,
				treasury_second = EXCLUDED.treasury_second,
				reserve_first = EXCLUDED.reserve_first,
				reserve_second = EXCLUDED.reserve_second,
				fee_rate_first = EXCLUDED.fee_rate_first,
				fee_rate_second = EXCLUDED.fee_rate_second,
				apr = EXCLUDED.apr,
				updated_at = now()
		`,
			m.Pair,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			int64(m.InvestCount),
			int64(m.DivestCount),
			m.VolumeFirst,
			m.VolumeSecond,
			m.FeeFirst,
			m.FeeSecond,
			m.TreasuryFirst,
			m.TreasurySecond,
			m.ReserveFirst,
			m.ReserveSecond,
			m.FeeRateFirst,
			m.FeeRateSecond,
			m.APR,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM report_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO report_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

func lockBalance(ctx context.Context, tx pgx.Tx, account common.Address, asset string) (numeric.Amount, error) {
	var text string
	err := tx.QueryRow(ctx, `
		SELECT amount::text FROM balances WHERE account = $1 AND asset = $2 FOR UPDATE
	`, account.Hex(), asset).Scan(&text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return numeric.Zero(), nil
		}
		return numeric.Amount{}, err
	}
	return numeric.Parse(text)
}

func writeBalance(ctx context.Context, tx pgx.Tx, account common.Address, asset string, amount numeric.Amount) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO balances (account, asset, amount, updated_at)
		VALUES ($1, $2, $3::text::numeric, now())
		ON CONFLICT (account, asset) DO UPDATE
		SET amount = EXCLUDED.amount, updated_at = now()
	`, account.Hex(), asset, amount.String())
	return err
}

func lockOrder(a, b common.Address) []common.Address {
	if a == b {
		return []common.Address{a}
	}
	if a.Cmp(b) < 0 {
		return []common.Address{a, b}
	}
	return []common.Address{b, a}
}
