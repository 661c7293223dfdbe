package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/relayhub/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema or seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and :memory: databases
	// only live as long as their connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== HubStore implementation ====

// Update runs fn inside a transaction and commits only when fn succeeds.
// Errors returned by fn are passed through unwrapped so callers can match
// domain error types.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx store.HubTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after a successful commit
	}()

	if err := fn(&hubTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// View runs fn inside a transaction that is always rolled back.
func (s *SQLiteStore) View(ctx context.Context, fn func(tx store.HubTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // read-only, nothing to keep
	}()

	return fn(&hubTx{tx: tx})
}

type hubTx struct {
	tx *sql.Tx
}

func (t *hubTx) Globals(ctx context.Context) (*store.Globals, error) {
	query := `
		SELECT owner, nonce, min_stake, challenge_period, treasury_balance, enabled_chains
		FROM globals
		WHERE id = 1
	`
	var (
		owner, minStake, treasury string
		nonce, period, chains     int64
	)
	err := t.tx.QueryRowContext(ctx, query).Scan(&owner, &nonce, &minStake, &period, &treasury, &chains)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &store.Globals{
				MinStake:        new(uint256.Int),
				TreasuryBalance: new(uint256.Int),
			}, nil
		}
		return nil, fmt.Errorf("query globals: %w", err)
	}

	g := &store.Globals{
		Owner:           common.HexToAddress(owner),
		Nonce:           uint64(nonce),
		ChallengePeriod: uint64(period),
		EnabledChains:   uint64(chains),
	}
	if g.MinStake, err = parseAmount(minStake); err != nil {
		return nil, fmt.Errorf("parse min_stake: %w", err)
	}
	if g.TreasuryBalance, err = parseAmount(treasury); err != nil {
		return nil, fmt.Errorf("parse treasury_balance: %w", err)
	}
	return g, nil
}

func (t *hubTx) PutGlobals(ctx context.Context, g *store.Globals) error {
	query := `
		INSERT INTO globals (id, owner, nonce, min_stake, challenge_period, treasury_balance, enabled_chains)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			nonce = excluded.nonce,
			min_stake = excluded.min_stake,
			challenge_period = excluded.challenge_period,
			treasury_balance = excluded.treasury_balance,
			enabled_chains = excluded.enabled_chains
	`
	_, err := t.tx.ExecContext(ctx, query,
		g.Owner.Hex(),
		int64(g.Nonce),
		amountText(g.MinStake),
		int64(g.ChallengePeriod),
		amountText(g.TreasuryBalance),
		int64(g.EnabledChains),
	)
	if err != nil {
		return fmt.Errorf("upsert globals: %w", err)
	}
	return nil
}

func (t *hubTx) Message(ctx context.Context, id uint64) (*store.Message, error) {
	query := `
		SELECT id, sender, destination_chain, target, data, created_at, fee_paid, status, relayer
		FROM messages
		WHERE id = ?
	`
	var (
		msg                     store.Message
		rawID, createdAt        int64
		chain                   int64
		status                  int64
		sender, target, relayer string
		fee                     string
	)
	err := t.tx.QueryRowContext(ctx, query, int64(id)).Scan(
		&rawID,
		&sender,
		&chain,
		&target,
		&msg.Data,
		&createdAt,
		&fee,
		&status,
		&relayer,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	msg.ID = uint64(rawID)
	msg.Sender = common.HexToAddress(sender)
	msg.DestinationChain = uint32(chain)
	msg.Target = common.HexToAddress(target)
	msg.CreatedAt = uint64(createdAt)
	msg.Status = store.MessageStatus(status)
	msg.Relayer = common.HexToAddress(relayer)
	if msg.FeePaid, err = parseAmount(fee); err != nil {
		return nil, fmt.Errorf("parse fee_paid: %w", err)
	}
	return &msg, nil
}

func (t *hubTx) PutMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (id, sender, destination_chain, target, data, created_at, fee_paid, status, relayer)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			relayer = excluded.relayer
	`
	_, err := t.tx.ExecContext(ctx, query,
		int64(msg.ID),
		msg.Sender.Hex(),
		int64(msg.DestinationChain),
		msg.Target.Hex(),
		msg.Data,
		int64(msg.CreatedAt),
		amountText(msg.FeePaid),
		int64(msg.Status),
		msg.Relayer.Hex(),
	)
	if err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	return nil
}

func (t *hubTx) Chain(ctx context.Context, chainID uint32) (*store.ChainConfig, error) {
	query := `
		SELECT enabled, receiver, base_fee
		FROM chains
		WHERE chain_id = ?
	`
	chain := store.ChainConfig{ChainID: chainID}
	var receiver, baseFee string
	err := t.tx.QueryRowContext(ctx, query, int64(chainID)).Scan(&chain.Enabled, &receiver, &baseFee)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chain %d: %w", chainID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chain: %w", err)
	}

	chain.Receiver = common.HexToAddress(receiver)
	if chain.BaseFee, err = parseAmount(baseFee); err != nil {
		return nil, fmt.Errorf("parse base_fee: %w", err)
	}
	return &chain, nil
}

func (t *hubTx) PutChain(ctx context.Context, chain *store.ChainConfig) error {
	query := `
		INSERT INTO chains (chain_id, enabled, receiver, base_fee)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chain_id) DO UPDATE SET
			enabled = excluded.enabled,
			receiver = excluded.receiver,
			base_fee = excluded.base_fee
	`
	_, err := t.tx.ExecContext(ctx, query,
		int64(chain.ChainID),
		chain.Enabled,
		chain.Receiver.Hex(),
		amountText(chain.BaseFee),
	)
	if err != nil {
		return fmt.Errorf("upsert chain: %w", err)
	}
	return nil
}

func (t *hubTx) Relayer(ctx context.Context, addr common.Address) (*store.RelayerInfo, error) {
	query := `
		SELECT active, stake, total_relayed, successful, slashed
		FROM relayers
		WHERE address = ?
	`
	info := store.RelayerInfo{Address: addr}
	var (
		stake                         string
		relayed, successful, slashed int64
	)
	err := t.tx.QueryRowContext(ctx, query, addr.Hex()).Scan(&info.Active, &stake, &relayed, &successful, &slashed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("relayer %s: %w", addr.Hex(), store.ErrNotFound)
		}
		return nil, fmt.Errorf("query relayer: %w", err)
	}

	info.TotalRelayed = uint64(relayed)
	info.Successful = uint64(successful)
	info.Slashed = uint64(slashed)
	if info.Stake, err = parseAmount(stake); err != nil {
		return nil, fmt.Errorf("parse stake: %w", err)
	}
	return &info, nil
}

func (t *hubTx) PutRelayer(ctx context.Context, info *store.RelayerInfo) error {
	query := `
		INSERT INTO relayers (address, active, stake, total_relayed, successful, slashed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			active = excluded.active,
			stake = excluded.stake,
			total_relayed = excluded.total_relayed,
			successful = excluded.successful,
			slashed = excluded.slashed
	`
	_, err := t.tx.ExecContext(ctx, query,
		info.Address.Hex(),
		info.Active,
		amountText(info.Stake),
		int64(info.TotalRelayed),
		int64(info.Successful),
		int64(info.Slashed),
	)
	if err != nil {
		return fmt.Errorf("upsert relayer: %w", err)
	}
	return nil
}

func (t *hubTx) Challenge(ctx context.Context, messageID uint64) (*store.Challenge, error) {
	query := `
		SELECT challenger, deadline, resolved
		FROM challenges
		WHERE message_id = ?
	`
	ch := store.Challenge{MessageID: messageID}
	var (
		challenger string
		deadline   int64
	)
	err := t.tx.QueryRowContext(ctx, query, int64(messageID)).Scan(&challenger, &deadline, &ch.Resolved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("challenge %d: %w", messageID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query challenge: %w", err)
	}

	ch.Challenger = common.HexToAddress(challenger)
	ch.Deadline = uint64(deadline)
	return &ch, nil
}

func (t *hubTx) InsertChallenge(ctx context.Context, ch *store.Challenge) error {
	query := `
		INSERT INTO challenges (message_id, challenger, deadline, resolved)
		VALUES (?, ?, ?, ?)
	`
	_, err := t.tx.ExecContext(ctx, query,
		int64(ch.MessageID),
		ch.Challenger.Hex(),
		int64(ch.Deadline),
		ch.Resolved,
	)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

// UpdateChallenge persists the challenger and resolved flag. The deadline
// column is never rewritten.
func (t *hubTx) UpdateChallenge(ctx context.Context, ch *store.Challenge) error {
	query := `
		UPDATE challenges
		SET challenger = ?, resolved = ?
		WHERE message_id = ?
	`
	result, err := t.tx.ExecContext(ctx, query, ch.Challenger.Hex(), ch.Resolved, int64(ch.MessageID))
	if err != nil {
		return fmt.Errorf("update challenge: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("challenge %d: %w", ch.MessageID, store.ErrNotFound)
	}
	return nil
}

func (t *hubTx) ListExpiredChallenges(ctx context.Context, now uint64, limit int) ([]uint64, error) {
	query := `
		SELECT message_id
		FROM challenges
		WHERE resolved = 0 AND deadline < ?
		ORDER BY deadline ASC, message_id ASC
		LIMIT ?
	`
	rows, err := t.tx.QueryContext(ctx, query, int64(now), limit)
	if err != nil {
		return nil, fmt.Errorf("query expired challenges: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan challenge id: %w", err)
		}
		ids = append(ids, uint64(id))
	}

	return ids, rows.Err()
}

func (t *hubTx) AddPayout(ctx context.Context, p *store.Payout) error {
	query := `
		INSERT INTO payouts (id, recipient, amount, reason, message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := t.tx.ExecContext(ctx, query,
		p.ID,
		p.Recipient.Hex(),
		amountText(p.Amount),
		string(p.Reason),
		int64(p.MessageID),
		int64(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

// PayoutTotal sums in Go because amounts are stored as decimal text.
func (t *hubTx) PayoutTotal(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	query := `
		SELECT amount
		FROM payouts
		WHERE recipient = ?
	`
	rows, err := t.tx.QueryContext(ctx, query, addr.Hex())
	if err != nil {
		return nil, fmt.Errorf("query payouts: %w", err)
	}
	defer rows.Close()

	total := new(uint256.Int)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		amount, err := parseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("parse payout amount: %w", err)
		}
		if _, overflow := total.AddOverflow(total, amount); overflow {
			return nil, fmt.Errorf("payout total overflows uint256")
		}
	}

	return total, rows.Err()
}

// ==== LoginStore implementation ====

// PutLoginNonce stores a nonce for addr, replacing any previous one.
func (s *SQLiteStore) PutLoginNonce(ctx context.Context, addr common.Address, nonce string, expiresAt int64) error {
	query := `
		INSERT INTO login_nonces (address, nonce, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			nonce = excluded.nonce,
			expires_at = excluded.expires_at
	`
	if _, err := s.db.ExecContext(ctx, query, addr.Hex(), nonce, expiresAt); err != nil {
		return fmt.Errorf("upsert login nonce: %w", err)
	}
	return nil
}

// TakeLoginNonce returns and deletes the nonce for addr.
func (s *SQLiteStore) TakeLoginNonce(ctx context.Context, addr common.Address) (string, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after a successful commit
	}()

	var (
		nonce     string
		expiresAt int64
	)
	err = tx.QueryRowContext(ctx, `SELECT nonce, expires_at FROM login_nonces WHERE address = ?`, addr.Hex()).
		Scan(&nonce, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, fmt.Errorf("login nonce: %w", store.ErrNotFound)
		}
		return "", 0, fmt.Errorf("query login nonce: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM login_nonces WHERE address = ?`, addr.Hex()); err != nil {
		return "", 0, fmt.Errorf("delete login nonce: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", 0, fmt.Errorf("commit transaction: %w", err)
	}
	return nonce, expiresAt, nil
}

func amountText(a *uint256.Int) string {
	if a == nil {
		return "0"
	}
	return a.Dec()
}

func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(s)
}
