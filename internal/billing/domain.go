package billing

import (
	"fmt"
	"time"
)

// InvoiceStatus is the payment state of an invoice.
type InvoiceStatus string

const (
	StatusPending InvoiceStatus = "pending"
	StatusPaid    InvoiceStatus = "paid"
	StatusOverdue InvoiceStatus = "overdue"
)

// Invoice is a billing document for one service period.
type Invoice struct {
	ID        int64         `json:"id"`
	Number    string        `json:"number"`
	AccountID int64         `json:"accountId"`
	ServerID  int64         `json:"serverId"`
	Amount    float64       `json:"amount"`
	Currency  string        `json:"currency"`
	Status    InvoiceStatus `json:"status"`
	Service   string        `json:"service"`
	IssuedAt  time.Time     `json:"issuedAt"`
	DueAt     time.Time     `json:"dueAt"`
	PaidAt    *time.Time    `json:"paidAt,omitempty"`
}

// InvoiceNumber derives the display number from the issue month and row id.
func InvoiceNumber(issuedAt time.Time, id int64) string {
	return fmt.Sprintf("INV-%s-%06d", issuedAt.Format("200601"), id)
}
