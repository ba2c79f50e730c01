package realtime

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// natsConn is the slice of *nats.Conn the bridge needs.
type natsConn interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSBridge mirrors realtime events onto a NATS broker so external
// consumers (dashboards, data lakes) can tap the stream without a
// websocket session.
type NATSBridge struct {
	conn   natsConn
	prefix string
}

func NewNATSBridge(conn natsConn, prefix string) *NATSBridge {
	if prefix == "" {
		prefix = "aquamon"
	}
	return &NATSBridge{conn: conn, prefix: prefix}
}

// Connect dials the broker and returns a bridge over the connection.
func Connect(url, prefix string) (*NATSBridge, *nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, err
	}
	return NewNATSBridge(conn, prefix), conn, nil
}

func (b *NATSBridge) Publish(topic, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	// Hub topics use ":" separators; NATS subjects use ".".
	subject := b.prefix + "." + strings.ReplaceAll(topic, ":", ".")
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{"Event": []string{event}},
	}
	return b.conn.PublishMsg(msg)
}

var _ Publisher = (*NATSBridge)(nil)
