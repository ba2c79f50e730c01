package notify

import (
	"time"

	"github.com/aquamon/aquamon/pkg/alert"
)

// Channel names a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelPush:
		return true
	}
	return false
}

// Outcome is the lifecycle state of one delivery obligation.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeDelivered Outcome = "delivered"
	OutcomeExhausted Outcome = "exhausted"
)

// QuietHours is a subscriber-local window during which non-critical
// alerts are suppressed. End < Start means the window wraps past
// midnight. Start == End disables the window.
type QuietHours struct {
	Start string `json:"start"` // "15:04"
	End   string `json:"end"`
}

// Preference is one subscriber's notification profile. Empty filter
// slices mean "match everything". It is read-only to the router.
type Preference struct {
	SubscriberID string            `json:"subscriber_id"`
	Email        string            `json:"email,omitempty"`
	PushTarget   string            `json:"push_target,omitempty"`
	Channels     []Channel         `json:"channels"`
	Severities   []alert.Severity  `json:"severities,omitempty"`
	Parameters   []alert.Parameter `json:"parameters,omitempty"`
	Devices      []string          `json:"devices,omitempty"`
	QuietHours   *QuietHours       `json:"quiet_hours,omitempty"`
	Timezone     string            `json:"timezone,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Obligation is one owed delivery: one alert, one subscriber, one
// channel. Created by the router, mutated only by the dispatcher.
type Obligation struct {
	ID            string    `json:"id"`
	AlertID       string    `json:"alert_id"`
	SubscriberID  string    `json:"subscriber_id"`
	Channel       Channel   `json:"channel"`
	Attempt       int       `json:"attempt"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	Outcome       Outcome   `json:"outcome"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Message is a rendered notification handed to a channel sender.
type Message struct {
	Recipient string
	Subject   string
	Body      string
}
