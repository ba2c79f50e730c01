package realtime

import (
	"github.com/aquamon/aquamon/pkg/alert"
	"github.com/aquamon/aquamon/pkg/infra/eventbus"
	"github.com/aquamon/aquamon/pkg/infra/logger"
)

// Relay subscribes to alert lifecycle events on the bus and fans them
// out to every configured publisher: the websocket hub, and the NATS
// bridge when one is wired.
type Relay struct {
	bus        eventbus.Bus
	publishers []Publisher
	subID      eventbus.SubscriptionID
}

func NewRelay(bus eventbus.Bus, publishers ...Publisher) *Relay {
	return &Relay{bus: bus, publishers: publishers}
}

func (r *Relay) Start() error {
	id, err := r.bus.Subscribe(r.handle, eventbus.FilterByTypes(
		alert.EventAdmitted,
		alert.EventMerged,
		alert.EventAcknowledged,
		alert.EventResolved,
	))
	if err != nil {
		return err
	}
	r.subID = id
	return nil
}

func (r *Relay) Stop() {
	if r.subID != "" {
		_ = r.bus.Unsubscribe(r.subID)
	}
}

func (r *Relay) handle(e eventbus.Event) error {
	a, ok := e.Payload().(alert.Alert)
	if !ok {
		return nil
	}

	topics := []string{"alerts", "device:" + a.DeviceID}
	for _, pub := range r.publishers {
		for _, topic := range topics {
			if err := pub.Publish(topic, e.Type(), a); err != nil {
				logger.Default().Warn("realtime publish failed",
					"topic", topic, "event", e.Type(), "error", err)
			}
		}
	}
	return nil
}
