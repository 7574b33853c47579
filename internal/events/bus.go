package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
)

const (
	streamName    = "QUEUE_EVENTS"
	subjectPrefix = "queue.events."
	consumerName  = "BROADCASTER"
)

// Bus is an embedded NATS JetStream server carrying queue events from
// the state machine to the broadcast layer. Running it in-process keeps
// deployment to a single binary while the stream gives at-least-once
// delivery; consumers de-duplicate by event id.
type Bus struct {
	server *server.Server
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

// NewEmbeddedBus starts the in-process NATS server and ensures the
// queue event stream exists.
func NewEmbeddedBus(dataDir string) (*Bus, error) {
	opts := &server.Options{
		JetStream: true,
		StoreDir:  filepath.Join(dataDir, "nats-store"),
		Port:      -1, // internal only, random port
		HTTPPort:  -1,
	}

	if err := os.MkdirAll(opts.StoreDir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}
	ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("nats server not ready")
	}
	log.Info().Str("clientURL", ns.ClientURL()).Msg("embedded NATS server started")

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(context.Background(), jetstream.StreamConfig{
		Name:        streamName,
		Description: "Queue state change events",
		Subjects:    []string{subjectPrefix + ">"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("create stream: %w", err)
	}
	log.Info().Str("stream", streamName).Msg("queue event stream ready")

	return &Bus{server: ns, nc: nc, js: js, stream: stream}, nil
}

// Publish appends one event to the stream, keyed by source station.
func (b *Bus) Publish(ev models.QueueEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	subject := subjectPrefix + string(ev.SourceStation)
	if _, err := b.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("%w: publish %s: %v", models.ErrTransientIO, subject, err)
	}
	return nil
}

// Consume delivers every queue event to handler until ctx is done.
// Redeliveries are possible; handlers de-duplicate by event id.
func (b *Bus) Consume(ctx context.Context, handler func(models.QueueEvent)) error {
	cons, err := b.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var ev models.QueueEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping undecodable event")
			msg.Term()
			return
		}
		handler(ev)
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return nil
}

// Shutdown closes the client connection and stops the server.
func (b *Bus) Shutdown() {
	if b.nc != nil {
		b.nc.Close()
	}
	if b.server != nil {
		b.server.Shutdown()
		b.server.WaitForShutdown()
	}
	log.Info().Msg("embedded NATS server stopped")
}
