package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table.
type Record struct {
	Key            string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	Reference      string    `dynamodbav:"reference,omitempty"`       // order or intent id the key produced
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`   // small JSON responses only
	ResponseStatus int       `dynamodbav:"response_status,omitempty"` // e.g. 200
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// NewRecord builds a record the way Store would, for callers that write it
// as part of a larger transaction.
func NewRecord(key, status, reference string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:       key,
		Status:    status,
		Reference: reference,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl).Unix(),
	}
}
