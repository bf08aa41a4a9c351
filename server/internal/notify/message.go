package notify

import "context"

// Event names carried in Message.Event.
const (
	EventCustomerCreated = "customer_created"
	EventStatsComputed   = "stats_computed"
	EventBatchSummary    = "batch_summary"
	EventCustom          = "custom"
)

// Message is one notification. An empty To means the administrator address
// configured on the Dispatcher.
type Message struct {
	Event   string `json:"event"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject"`
	HTML    string `json:"-"`
	Text    string `json:"text"`
}

// Sink delivers a message to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, m Message) error
}
