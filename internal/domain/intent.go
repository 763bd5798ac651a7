package domain

// IntentStatus is the lifecycle state of an order intent.
type IntentStatus string

const (
	IntentPending   IntentStatus = "PENDING"
	IntentExecuted  IntentStatus = "EXECUTED"
	IntentFailed    IntentStatus = "FAILED"
	IntentAbandoned IntentStatus = "ABANDONED"
)

// Terminal reports whether the status is final. A terminal intent is
// finalized exactly once and never transitions again.
func (s IntentStatus) Terminal() bool {
	switch s {
	case IntentExecuted, IntentFailed, IntentAbandoned:
		return true
	}
	return false
}

// Direction of an order intent.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// OrderIntent is a deduplicated action intent owned by the execution ledger.
// IntentID is a deterministic function of (symbol, direction, size, venue,
// time bucket) so colliding submissions within one bucket map to one key.
type OrderIntent struct {
	IntentID    string       `json:"intent_id"`
	Symbol      string       `json:"symbol"`
	Direction   Direction    `json:"direction"`
	Size        float64      `json:"size"`
	Venue       string       `json:"venue"`
	Status      IntentStatus `json:"status"`
	CreatedTs   int64        `json:"created_ts"`   // unix ms
	FinalizedTs int64        `json:"finalized_ts"` // unix ms, 0 while pending
	Metadata    string       `json:"metadata"`     // finalize annotation, free form
}
