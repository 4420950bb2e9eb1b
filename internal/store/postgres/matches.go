package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/store"
	"github.com/jackc/pgx/v5"
)

const matchColumns = `id, ynab_transaction_id, itemized_transaction_id, match_score, match_method,
	match_criteria::text, status, reviewed_by, reviewed_at, created_at`

// SaveMatch implements store.Store. Both ends of the match must exist.
func (s *Store) SaveMatch(ctx context.Context, m *domain.TransactionMatch) error {
	if m.ID == "" {
		return fmt.Errorf("SaveMatch: match ID is required")
	}
	criteria := m.Criteria
	if criteria == nil {
		criteria = map[string]any{}
	}
	criteriaJSON, err := jsonArg(criteria)
	if err != nil {
		return fmt.Errorf("SaveMatch: encoding criteria: %w", err)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}

	var ledgerOK, itemizedOK bool
	err = s.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM ynab_transactions WHERE ynab_id = $1),
		       EXISTS (SELECT 1 FROM itemized_transactions WHERE id = $2)`,
		m.LedgerID, m.ItemizedID,
	).Scan(&ledgerOK, &itemizedOK)
	if err != nil {
		return fmt.Errorf("SaveMatch: %w", err)
	}
	if !ledgerOK {
		return fmt.Errorf("SaveMatch: ledger transaction %s: %w", m.LedgerID, store.ErrNotFound)
	}
	if !itemizedOK {
		return fmt.Errorf("SaveMatch: itemized transaction %s: %w", m.ItemizedID, store.ErrNotFound)
	}

	err = s.q.QueryRow(ctx, `
		INSERT INTO transaction_matches
			(id, ynab_transaction_id, itemized_transaction_id, match_score, match_method,
			 match_criteria, status, reviewed_by, reviewed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			match_score = EXCLUDED.match_score,
			match_method = EXCLUDED.match_method,
			match_criteria = EXCLUDED.match_criteria,
			status = EXCLUDED.status,
			reviewed_by = EXCLUDED.reviewed_by,
			reviewed_at = EXCLUDED.reviewed_at
		RETURNING created_at`,
		m.ID, m.LedgerID, m.ItemizedID, m.Score, string(m.Method), criteriaJSON,
		string(m.Status), m.ReviewedBy, m.ReviewedAt, m.CreatedAt,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("SaveMatch: %w", err)
	}
	return nil
}

func scanMatch(row pgx.Row) (*domain.TransactionMatch, error) {
	var (
		m                            domain.TransactionMatch
		method, status, criteriaJSON string
	)
	if err := row.Scan(&m.ID, &m.LedgerID, &m.ItemizedID, &m.Score, &method, &criteriaJSON,
		&status, &m.ReviewedBy, &m.ReviewedAt, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Method = domain.MatchMethod(method)
	m.Status = domain.MatchRecordStatus(status)
	if err := json.Unmarshal([]byte(criteriaJSON), &m.Criteria); err != nil {
		return nil, fmt.Errorf("decoding criteria of %s: %w", m.ID, err)
	}
	return &m, nil
}

// GetMatch implements store.Store.
func (s *Store) GetMatch(ctx context.Context, id string) (*domain.TransactionMatch, error) {
	m, err := scanMatch(s.q.QueryRow(ctx, `SELECT `+matchColumns+` FROM transaction_matches WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "match %s", id)
	}
	return m, nil
}

// ListMatches implements store.Store, highest score first.
func (s *Store) ListMatches(ctx context.Context, itemizedID string) ([]*domain.TransactionMatch, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+matchColumns+`
		FROM transaction_matches
		WHERE itemized_transaction_id = $1
		ORDER BY match_score DESC, id`, itemizedID)
	if err != nil {
		return nil, fmt.Errorf("ListMatches: %w", err)
	}
	defer rows.Close()

	var out []*domain.TransactionMatch
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("ListMatches: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
