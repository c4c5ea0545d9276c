package ledger

import "time"

// TransactionType enumerates balance change kinds.
type TransactionType string

const (
	TypeDeposit        TransactionType = "deposit"
	TypeWithdrawal     TransactionType = "withdrawal"
	TypeServerCreation TransactionType = "server_creation"
	TypeRenewal        TransactionType = "renewal"
)

// TransactionStatus enumerates transaction states.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Wallet holds an account's spendable balance.
type Wallet struct {
	AccountID int64     `json:"accountId"`
	Balance   float64   `json:"balance"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transaction is an append-only record of a balance change.
type Transaction struct {
	ID        int64             `json:"id"`
	AccountID int64             `json:"accountId"`
	Amount    float64           `json:"amount"`
	Type      TransactionType   `json:"type"`
	Method    string            `json:"method"`
	Reason    string            `json:"reason"`
	Status    TransactionStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Drift reports a mismatch between a wallet balance and the sum of its
// completed transactions.
type Drift struct {
	AccountID int64
	Balance   float64
	Expected  float64
}

// Delta returns the signed difference between stored and expected balance.
func (d Drift) Delta() float64 {
	return d.Balance - d.Expected
}
