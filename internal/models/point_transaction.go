package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TransactionType string

const (
	TransactionTypeEarn  TransactionType = "earn"
	TransactionTypeSpend TransactionType = "spend"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

type TransactionReason string

const (
	TransactionReasonSignedUp  TransactionReason = "signed_up"
	TransactionReasonTicket    TransactionReason = "ticket"
	TransactionReasonExtension TransactionReason = "extension"
	TransactionReasonRefund    TransactionReason = "refund"
	TransactionReasonEtc       TransactionReason = "etc"
)

// TransactionReference names the table a ledger entry points back to.
type TransactionReference string

const (
	TransactionReferenceUsers   TransactionReference = "users"
	TransactionReferenceTickets TransactionReference = "tickets"
	TransactionReferenceStays   TransactionReference = "stays"
)

// PointTransaction is an append-only ledger entry. Rows are never updated or
// deleted once written; the user's current_points column is a denormalized
// view of this log.
type PointTransaction struct {
	bun.BaseModel `bun:"table:point_transactions"`

	ID            string               `bun:"id,pk"`
	UserID        string               `bun:"user_id,notnull"`
	Type          TransactionType      `bun:"type,notnull"`
	Amount        int64                `bun:"amount,notnull"`
	Reason        TransactionReason    `bun:"reason,notnull"`
	ReferenceType TransactionReference `bun:"reference_type,nullzero"`
	ReferenceID   string               `bun:"reference_id,nullzero"`
	BalanceBefore int64                `bun:"balance_before,notnull"`
	BalanceAfter  int64                `bun:"balance_after,notnull"`
	Status        TransactionStatus    `bun:"status,notnull"`
	Description   string               `bun:"description,nullzero"`
	CreatedAt     time.Time            `bun:"created_at,notnull"`
}

// SignedAmount returns the amount with the sign implied by the type, so the
// ledger folds to the current balance.
func (t *PointTransaction) SignedAmount() int64 {
	if t.Type == TransactionTypeSpend {
		return -t.Amount
	}
	return t.Amount
}
