package events

import "time"

// Event identifies a topic on the bus.
type Event string

const (
	EventCycleFinished  Event = "cycle.finished"
	EventOrderPlaced    Event = "order.placed"
	EventPositionClosed Event = "position.closed"
	EventRiskAlert      Event = "risk.alert"
)

// Message is the envelope every publication carries. Fields are filled
// per topic: a cycle outcome has no position id, a risk alert has no
// price. Zero-valued fields are omitted on the wire.
type Message struct {
	Event          Event     `json:"event"`
	SubscriptionID string    `json:"subscription_id"`
	CycleID        string    `json:"cycle_id,omitempty"`
	PositionID     string    `json:"position_id,omitempty"`
	Symbol         string    `json:"symbol,omitempty"`
	Side           string    `json:"side,omitempty"`
	Outcome        string    `json:"outcome,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Price          float64   `json:"price,omitempty"`
	Quantity       float64   `json:"quantity,omitempty"`
	PnL            float64   `json:"pnl,omitempty"`
	At             time.Time `json:"at"`
}
