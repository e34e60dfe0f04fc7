package webhook

import "time"

// Record is the append-only audit trail of inbound webhook deliveries. Every
// delivery is persisted, including ones that fail signature verification;
// records are never deleted.
type Record struct {
	ID           int        `db:"id" json:"id"`
	Provider     string     `db:"provider" json:"provider"`
	Event        string     `db:"event" json:"event"`
	Signature    string     `db:"signature" json:"-"`
	RawBody      []byte     `db:"raw_body" json:"-"`
	Processed    bool       `db:"processed" json:"processed"`
	ProcessedAt  *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error,omitempty"`
	Retries      int        `db:"retries" json:"retries"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
