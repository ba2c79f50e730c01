package alert

import "time"

// Lifecycle event types published on the in-process bus.
const (
	EventAdmitted     = "alert.admitted"
	EventMerged       = "alert.merged"
	EventAcknowledged = "alert.acknowledged"
	EventResolved     = "alert.resolved"
)

// LifecycleEvent carries an alert state change to bus subscribers,
// including the real-time relay.
type LifecycleEvent struct {
	Kind  string    `json:"kind"`
	Alert Alert     `json:"alert"`
	At    time.Time `json:"at"`
}

func (e *LifecycleEvent) Type() string         { return e.Kind }
func (e *LifecycleEvent) Topic() string        { return "alerts" }
func (e *LifecycleEvent) Payload() any         { return e.Alert }
func (e *LifecycleEvent) Timestamp() time.Time { return e.At }

func NewLifecycleEvent(kind string, a Alert) *LifecycleEvent {
	return &LifecycleEvent{Kind: kind, Alert: a, At: time.Now()}
}
