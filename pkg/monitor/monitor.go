package monitor

import "time"

// Event kinds reported to a Monitor.
const (
	EventRequest  = "REQUEST"
	EventDecision = "DECISION"
	EventReset    = "RESET"
)

// Event is one step of a request as it passes through the bridge.
type Event struct {
	Timestamp time.Time
	Kind      string
	ChannelID string
	RequestID string
	Tool      string
	Content   string
	Failed    bool
}

// Monitor receives request events for display or collection.
type Monitor interface {
	Start() error
	Stop() error
	OnEvent(ev Event)
}
