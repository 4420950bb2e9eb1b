package domain

import (
	"fmt"
	"time"
)

// MatchRecordStatus is the review state of a match record.
type MatchRecordStatus string

const (
	MatchCandidate MatchRecordStatus = "candidate"
	MatchAccepted  MatchRecordStatus = "accepted"
	MatchRejected  MatchRecordStatus = "rejected"
)

// TransactionMatch records a proposed or reviewed link between a ledger
// transaction (by its ledger id) and an itemized transaction.
type TransactionMatch struct {
	ID         string            `json:"id"`
	LedgerID   string            `json:"ynab_transaction_id"`
	ItemizedID string            `json:"itemized_transaction_id"`
	Score      float64           `json:"match_score"`
	Method     MatchMethod       `json:"match_method"`
	Criteria   map[string]any    `json:"match_criteria,omitempty"`
	Status     MatchRecordStatus `json:"status"`
	ReviewedBy string            `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time        `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// MatchID builds the deterministic match id for a ledger/itemized pair.
func MatchID(ynabID, itemizedID string) string {
	return fmt.Sprintf("match_%s_%s", ynabID, itemizedID)
}

// Clone returns a copy of m that shares nothing mutable with it.
func (m *TransactionMatch) Clone() *TransactionMatch {
	if m == nil {
		return nil
	}
	c := *m
	if m.Criteria != nil {
		c.Criteria = make(map[string]any, len(m.Criteria))
		for k, v := range m.Criteria {
			c.Criteria[k] = v
		}
	}
	if m.ReviewedAt != nil {
		v := *m.ReviewedAt
		c.ReviewedAt = &v
	}
	return &c
}
