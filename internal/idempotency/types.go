package idempotency

import "time"

// Record marks an order as counted for its customer. It lives in the
// customer's partition next to the customer row.
type Record struct {
	PK         string    `dynamodbav:"pk"`
	SK         string    `dynamodbav:"sk"`
	EntityType string    `dynamodbav:"EntityType"`
	EventID    string    `dynamodbav:"EventID"` // feed event that applied the count
	AppliedAt  time.Time `dynamodbav:"AppliedAt"`
}
