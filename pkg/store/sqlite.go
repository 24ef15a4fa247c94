// Package store persists engine snapshots and the transfer journal in
// SQLite. Amounts are stored as decimal strings: SQLite integers are
// signed 64-bit and would silently corrupt balances above MaxInt64.
package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/speedrun-hq/speedrun-settler/pkg/engine"
	"github.com/speedrun-hq/speedrun-settler/pkg/escrow"
	"github.com/speedrun-hq/speedrun-settler/pkg/models"
)

// Store wraps the SQLite database
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at path and ensures
// the schema exists.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS intents (
		id INTEGER PRIMARY KEY,
		owner TEXT NOT NULL,
		source_chain TEXT NOT NULL,
		source_chain_id INTEGER NOT NULL,
		source_asset TEXT NOT NULL,
		source_network TEXT NOT NULL,
		dest_chain TEXT NOT NULL,
		dest_chain_id INTEGER NOT NULL,
		dest_asset TEXT NOT NULL,
		dest_network TEXT NOT NULL,
		source_amount TEXT NOT NULL,
		min_output TEXT NOT NULL,
		recipient TEXT NOT NULL,
		deadline TEXT NOT NULL,
		status INTEGER NOT NULL,
		escrow_balance TEXT NOT NULL,
		protocol_fee_bps INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		verified_at TEXT,
		deposit_address TEXT NOT NULL,
		deposit_proof TEXT NOT NULL,
		settlement_ref TEXT NOT NULL,
		selected_solver TEXT,
		selected_output TEXT,
		selected_fee TEXT,
		selected_tip TEXT,
		selected_dest TEXT,
		selected_expiry TEXT,
		selected_submitted TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_intents_owner ON intents(owner);
	CREATE INDEX IF NOT EXISTS idx_intents_status ON intents(status);

	CREATE TABLE IF NOT EXISTS quotes (
		intent_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		solver TEXT NOT NULL,
		output_amount TEXT NOT NULL,
		fee TEXT NOT NULL,
		tip TEXT NOT NULL,
		dest_address TEXT NOT NULL,
		expiry TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		PRIMARY KEY (intent_id, position)
	);

	CREATE TABLE IF NOT EXISTS escrow_accounts (
		owner TEXT NOT NULL,
		asset TEXT NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (owner, asset)
	);

	CREATE TABLE IF NOT EXISTS collected_fees (
		asset TEXT PRIMARY KEY,
		amount TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		from_account TEXT NOT NULL,
		to_account TEXT NOT NULL,
		asset TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %v", err)
	}
	return nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(field, v string) (uint64, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt %s value %q: %v", field, v, err)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(field, v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt %s value %q: %v", field, v, err)
	}
	return t, nil
}

// SaveState replaces the persisted snapshot in a single transaction
func (s *Store) SaveState(state *engine.State) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"intents", "quotes", "escrow_accounts", "collected_fees"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %v", table, err)
		}
	}

	for _, intent := range state.Intents {
		if err := insertIntent(tx, intent); err != nil {
			return err
		}
	}
	for _, row := range state.Escrow {
		_, err := tx.Exec(
			"INSERT INTO escrow_accounts (owner, asset, amount) VALUES (?, ?, ?)",
			row.Owner, row.Asset, formatAmount(row.Amount),
		)
		if err != nil {
			return fmt.Errorf("failed to save escrow account %s/%s: %v", row.Owner, row.Asset, err)
		}
	}
	for asset, amount := range state.CollectedFees {
		_, err := tx.Exec(
			"INSERT INTO collected_fees (asset, amount) VALUES (?, ?)",
			asset, formatAmount(amount),
		)
		if err != nil {
			return fmt.Errorf("failed to save collected fees for %s: %v", asset, err)
		}
	}
	_, err = tx.Exec(
		"INSERT INTO meta (key, value) VALUES ('next_id', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		formatAmount(state.NextID),
	)
	if err != nil {
		return fmt.Errorf("failed to save next id: %v", err)
	}

	return tx.Commit()
}

func insertIntent(tx *sql.Tx, intent *models.Intent) error {
	var verifiedAt any
	if intent.VerifiedAt != nil {
		verifiedAt = formatTime(*intent.VerifiedAt)
	}

	var selSolver, selOutput, selFee, selTip, selDest, selExpiry, selSubmitted any
	if q := intent.SelectedQuote; q != nil {
		selSolver = q.Solver
		selOutput = formatAmount(q.OutputAmount)
		selFee = formatAmount(q.Fee)
		selTip = formatAmount(q.Tip)
		selDest = q.DestAddress
		selExpiry = formatTime(q.Expiry)
		selSubmitted = formatTime(q.SubmittedAt)
	}

	_, err := tx.Exec(`INSERT INTO intents (
		id, owner,
		source_chain, source_chain_id, source_asset, source_network,
		dest_chain, dest_chain_id, dest_asset, dest_network,
		source_amount, min_output, recipient, deadline, status,
		escrow_balance, protocol_fee_bps, created_at, updated_at, verified_at,
		deposit_address, deposit_proof, settlement_ref,
		selected_solver, selected_output, selected_fee, selected_tip,
		selected_dest, selected_expiry, selected_submitted
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.ID, intent.Owner,
		intent.Source.Chain, intent.Source.ChainID, intent.Source.Asset, intent.Source.Network,
		intent.Destination.Chain, intent.Destination.ChainID, intent.Destination.Asset, intent.Destination.Network,
		formatAmount(intent.SourceAmount), formatAmount(intent.MinOutput),
		intent.Recipient, formatTime(intent.Deadline), int(intent.Status),
		formatAmount(intent.EscrowBalance), intent.ProtocolFeeBps,
		formatTime(intent.CreatedAt), formatTime(intent.UpdatedAt), verifiedAt,
		intent.DepositAddress, intent.DepositProof, intent.SettlementRef,
		selSolver, selOutput, selFee, selTip, selDest, selExpiry, selSubmitted,
	)
	if err != nil {
		return fmt.Errorf("failed to save intent %d: %v", intent.ID, err)
	}

	for position, q := range intent.Quotes {
		_, err := tx.Exec(`INSERT INTO quotes (
			intent_id, position, solver, output_amount, fee, tip,
			dest_address, expiry, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			intent.ID, position, q.Solver,
			formatAmount(q.OutputAmount), formatAmount(q.Fee), formatAmount(q.Tip),
			q.DestAddress, formatTime(q.Expiry), formatTime(q.SubmittedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to save quote %d/%d: %v", intent.ID, position, err)
		}
	}
	return nil
}

// LoadState reads the persisted snapshot. An empty database yields an
// empty state, not an error.
func (s *Store) LoadState() (*engine.State, error) {
	state := &engine.State{
		NextID:        1,
		CollectedFees: make(map[string]uint64),
	}

	var nextID string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'next_id'").Scan(&nextID)
	switch {
	case err == sql.ErrNoRows:
		// fresh database
	case err != nil:
		return nil, fmt.Errorf("failed to load next id: %v", err)
	default:
		if state.NextID, err = parseAmount("next_id", nextID); err != nil {
			return nil, err
		}
	}

	intents, err := s.loadIntents()
	if err != nil {
		return nil, err
	}
	state.Intents = intents

	if state.Escrow, err = s.loadEscrow(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT asset, amount FROM collected_fees")
	if err != nil {
		return nil, fmt.Errorf("failed to load collected fees: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var asset, amount string
		if err := rows.Scan(&asset, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan collected fees: %v", err)
		}
		if state.CollectedFees[asset], err = parseAmount("collected_fees", amount); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read collected fees: %v", err)
	}
	return state, nil
}

func (s *Store) loadIntents() ([]*models.Intent, error) {
	rows, err := s.db.Query(`SELECT
		id, owner,
		source_chain, source_chain_id, source_asset, source_network,
		dest_chain, dest_chain_id, dest_asset, dest_network,
		source_amount, min_output, recipient, deadline, status,
		escrow_balance, protocol_fee_bps, created_at, updated_at, verified_at,
		deposit_address, deposit_proof, settlement_ref,
		selected_solver, selected_output, selected_fee, selected_tip,
		selected_dest, selected_expiry, selected_submitted
	FROM intents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load intents: %v", err)
	}
	defer rows.Close()

	var intents []*models.Intent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read intents: %v", err)
	}

	for _, intent := range intents {
		if err := s.loadQuotes(intent); err != nil {
			return nil, err
		}
	}
	return intents, nil
}

func scanIntent(rows *sql.Rows) (*models.Intent, error) {
	var (
		intent                                             models.Intent
		status                                             int
		srcAmount, minOutput, escrowBalance                string
		deadline, createdAt, updatedAt                     string
		verifiedAt                                         sql.NullString
		selSolver, selOutput, selFee, selTip               sql.NullString
		selDest, selExpiry, selSubmitted                   sql.NullString
	)
	err := rows.Scan(
		&intent.ID, &intent.Owner,
		&intent.Source.Chain, &intent.Source.ChainID, &intent.Source.Asset, &intent.Source.Network,
		&intent.Destination.Chain, &intent.Destination.ChainID, &intent.Destination.Asset, &intent.Destination.Network,
		&srcAmount, &minOutput, &intent.Recipient, &deadline, &status,
		&escrowBalance, &intent.ProtocolFeeBps, &createdAt, &updatedAt, &verifiedAt,
		&intent.DepositAddress, &intent.DepositProof, &intent.SettlementRef,
		&selSolver, &selOutput, &selFee, &selTip, &selDest, &selExpiry, &selSubmitted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan intent: %v", err)
	}

	intent.Status = models.IntentStatus(status)
	if intent.SourceAmount, err = parseAmount("source_amount", srcAmount); err != nil {
		return nil, err
	}
	if intent.MinOutput, err = parseAmount("min_output", minOutput); err != nil {
		return nil, err
	}
	if intent.EscrowBalance, err = parseAmount("escrow_balance", escrowBalance); err != nil {
		return nil, err
	}
	if intent.Deadline, err = parseTime("deadline", deadline); err != nil {
		return nil, err
	}
	if intent.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if intent.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		t, err := parseTime("verified_at", verifiedAt.String)
		if err != nil {
			return nil, err
		}
		intent.VerifiedAt = &t
	}

	if selSolver.Valid {
		q := models.Quote{Solver: selSolver.String, DestAddress: selDest.String}
		if q.OutputAmount, err = parseAmount("selected_output", selOutput.String); err != nil {
			return nil, err
		}
		if q.Fee, err = parseAmount("selected_fee", selFee.String); err != nil {
			return nil, err
		}
		if q.Tip, err = parseAmount("selected_tip", selTip.String); err != nil {
			return nil, err
		}
		if q.Expiry, err = parseTime("selected_expiry", selExpiry.String); err != nil {
			return nil, err
		}
		if q.SubmittedAt, err = parseTime("selected_submitted", selSubmitted.String); err != nil {
			return nil, err
		}
		intent.SelectedQuote = &q
	}
	return &intent, nil
}

func (s *Store) loadQuotes(intent *models.Intent) error {
	rows, err := s.db.Query(`SELECT solver, output_amount, fee, tip, dest_address, expiry, submitted_at
		FROM quotes WHERE intent_id = ? ORDER BY position`, intent.ID)
	if err != nil {
		return fmt.Errorf("failed to load quotes for intent %d: %v", intent.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q                    models.Quote
			output, fee, tip     string
			expiry, submittedAt  string
		)
		if err := rows.Scan(&q.Solver, &output, &fee, &tip, &q.DestAddress, &expiry, &submittedAt); err != nil {
			return fmt.Errorf("failed to scan quote for intent %d: %v", intent.ID, err)
		}
		if q.OutputAmount, err = parseAmount("output_amount", output); err != nil {
			return err
		}
		if q.Fee, err = parseAmount("fee", fee); err != nil {
			return err
		}
		if q.Tip, err = parseAmount("tip", tip); err != nil {
			return err
		}
		if q.Expiry, err = parseTime("expiry", expiry); err != nil {
			return err
		}
		if q.SubmittedAt, err = parseTime("submitted_at", submittedAt); err != nil {
			return err
		}
		intent.Quotes = append(intent.Quotes, q)
	}
	return rows.Err()
}

func (s *Store) loadEscrow() ([]escrow.Account, error) {
	rows, err := s.db.Query("SELECT owner, asset, amount FROM escrow_accounts ORDER BY owner, asset")
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow accounts: %v", err)
	}
	defer rows.Close()

	var accounts []escrow.Account
	for rows.Next() {
		var acc escrow.Account
		var amount string
		if err := rows.Scan(&acc.Owner, &acc.Asset, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan escrow account: %v", err)
		}
		if acc.Amount, err = parseAmount("escrow amount", amount); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// RecordTransfer appends a row to the transfer journal
func (s *Store) RecordTransfer(id, from, to, asset string, amount uint64, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO transfers (id, from_account, to_account, asset, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, from, to, asset, formatAmount(amount), formatTime(at))
	if err != nil {
		return fmt.Errorf("failed to record transfer %s: %v", id, err)
	}
	return nil
}
