package store

import (
	"context"
	"time"
)

type EntryType string

// Amounts are signed changes to one balance: escrow, spend, refund and
// forfeit touch spendable points; release touches locked points; payout and
// penalty touch total points.
const (
	EntryEscrow  EntryType = "escrow"
	EntryRelease EntryType = "release"
	EntryPayout  EntryType = "payout"
	EntrySpend   EntryType = "spend"
	EntryRefund  EntryType = "refund"
	EntryPenalty EntryType = "penalty"
	EntryForfeit EntryType = "forfeit"
)

// LedgerEntry is one line of the clan balance journal.
type LedgerEntry struct {
	ID        string    `json:"id"`
	ClanTag   string    `json:"clanTag"`
	Type      EntryType `json:"type"`
	Amount    int64     `json:"amount"`
	WarID     *string   `json:"warId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type TransactionStore struct {
	db querier
}

func NewTransactionStore(db querier) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Record(ctx context.Context, e LedgerEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ledger_entries (id, clan_tag, type, amount, war_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.ClanTag, e.Type, e.Amount, e.WarID, e.CreatedAt)
	return err
}

func (s *TransactionStore) History(ctx context.Context, clanTag string, limit int) ([]LedgerEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, clan_tag, type, amount, war_id, created_at
		FROM ledger_entries WHERE clan_tag = $1
		ORDER BY created_at DESC LIMIT $2
	`, clanTag, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.ClanTag, &e.Type, &e.Amount, &e.WarID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
