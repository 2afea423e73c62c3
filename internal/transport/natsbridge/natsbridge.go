// Package natsbridge mirrors Subscription Hub events onto NATS subjects so
// out-of-process subscribers can follow the orchestrator's lifecycle
// without an in-process channel, grounded on the teacher's
// internal/nats.Client (spec SPEC_FULL.md DOMAIN STACK: "NATS event
// mirroring").
package natsbridge

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/foremanhq/foreman/internal/events"
	"github.com/google/uuid"
	nc "github.com/nats-io/nats.go"
)

// SubjectPrefix namespaces every subject this bridge publishes under.
const SubjectPrefix = "foreman.events."

// Bridge connects to a NATS server and republishes every event the
// Subscription Hub emits to `foreman.events.<channel>`, with "all" routed
// to a single shared subject.
type Bridge struct {
	conn *nc.Conn
}

// Connect dials the NATS server at url with indefinite reconnect, matching
// the teacher's internal/nats.NewClient options.
func Connect(url string) (*Bridge, error) {
	conn, err := nc.Connect(url,
		nc.ReconnectWait(2*time.Second),
		nc.MaxReconnects(-1),
		nc.DisconnectErrHandler(func(_ *nc.Conn, err error) {
			if err != nil {
				log.Printf("[NATSBRIDGE] disconnected: %v", err)
			}
		}),
		nc.ReconnectHandler(func(c *nc.Conn) {
			log.Printf("[NATSBRIDGE] reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &Bridge{conn: conn}, nil
}

// Close tears down the NATS connection.
func (b *Bridge) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// Mirror registers a client on the hub's "all" channel and republishes
// every event it sees to NATS. It blocks until the hub channel it reads
// from is closed (via bus.Unregister), so callers typically run it in a
// goroutine.
func (b *Bridge) Mirror(bus *events.Bus) {
	clientID := "natsbridge-" + uuid.New().String()
	ch := bus.Register(clientID)
	if err := bus.Subscribe(clientID, events.ChannelAll); err != nil {
		log.Printf("[NATSBRIDGE] failed to subscribe: %v", err)
		return
	}
	for evt := range ch {
		if err := b.publish(evt); err != nil {
			log.Printf("[NATSBRIDGE] failed to publish event %s: %v", evt.ID, err)
		}
	}
}

func (b *Bridge) publish(evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", evt.ID, err)
	}
	subject := SubjectPrefix + subjectSuffix(evt.Target)
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

func subjectSuffix(target string) string {
	if target == "" {
		return "all"
	}
	return target
}
