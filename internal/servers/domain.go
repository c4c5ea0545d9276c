package servers

import "time"

// Status is the lifecycle state of a hosted game server.
type Status string

const (
	StatusInstalling Status = "installing"
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusExpired    Status = "expired"
)

// ServerRecord is the local billing-side view of a remote game server. The
// remote panel owns the runtime state; this row owns expiry and billing.
type ServerRecord struct {
	ID              int64     `json:"id"`
	AccountID       int64     `json:"accountId"`
	RemoteID        int64     `json:"remoteId"`
	Name            string    `json:"name"`
	Plan            string    `json:"plan"`
	Price           float64   `json:"price"`
	RAMMB           int       `json:"ramMb"`
	DiskMB          int       `json:"diskMb"`
	CPU             int       `json:"cpu"`
	Status          Status    `json:"status"`
	AutoRenew       bool      `json:"autoRenew"`
	IP              string    `json:"ip"`
	Port            int       `json:"port"`
	Location        string    `json:"location"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	NextBillingDate time.Time `json:"nextBillingDate"`
}

// IsExpired reports whether the paid-for period is over at the given instant.
func (r *ServerRecord) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// ExpiringSoon reports whether expiry is within the next seven days but not
// yet past.
func (r *ServerRecord) ExpiringSoon(now time.Time) bool {
	until := r.ExpiresAt.Sub(now)
	return until > 0 && until <= 7*24*time.Hour
}
