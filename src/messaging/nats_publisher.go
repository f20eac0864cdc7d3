package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"crewhall/src/models"
)

const subjectPrefix = "crewhall"

type msgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NatsPublisher sends committed group events to crewhall.<kind>.<type>.
type NatsPublisher struct {
	conn *nats.Conn
	pub  msgPublisher
}

func Connect(url, name string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NatsPublisher{conn: nc, pub: nc}, nil
}

func Subject(event models.GroupEvent) string {
	return subjectPrefix + "." + string(event.Kind) + "." + string(event.Type)
}

func (p *NatsPublisher) Publish(ctx context.Context, event models.GroupEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode group event: %w", err)
	}

	msg := nats.NewMsg(Subject(event))
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set("Group-Id", event.GroupID)
	if err := p.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish group event: %w", err)
	}
	return nil
}

// Close flushes buffered messages and closes the connection.
func (p *NatsPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
