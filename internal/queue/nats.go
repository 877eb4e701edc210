package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsConfig holds the JetStream analysis queue configuration.
type NatsConfig struct {
	URL        string        // NATS server URL (e.g. "nats://nats:4222")
	StreamName string        // JetStream stream name (default: "SKEIN_ANALYSIS")
	Subject    string        // Subject experience ids are published on
	Durable    string        // Durable consumer name
	Timeout    time.Duration // Connection timeout
	FetchWait  time.Duration // How long Dequeue waits for a batch
}

// NatsAnalysisQueue is an AnalysisQueue backed by a JetStream work-queue
// stream. A single durable pull consumer gives atomic batch handout across
// competing consumers.
type NatsAnalysisQueue struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	sub  *nats.Subscription
	cfg  NatsConfig
}

// withDefaults fills the zero fields of the configuration.
func (cfg NatsConfig) withDefaults() NatsConfig {
	if cfg.URL == "" {
		cfg.URL = "nats://localhost:4222"
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "SKEIN_ANALYSIS"
	}
	if cfg.Subject == "" {
		cfg.Subject = "skein.analysis.experience"
	}
	if cfg.Durable == "" {
		cfg.Durable = "skein-insight-engine"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FetchWait == 0 {
		cfg.FetchWait = 2 * time.Second
	}
	return cfg
}

// NewNatsAnalysisQueue connects to NATS and ensures the stream and durable
// consumer exist.
func NewNatsAnalysisQueue(cfg NatsConfig) (*NatsAnalysisQueue, error) {
	cfg = cfg.withDefaults()

	nc, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("[AnalysisQueue] NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[AnalysisQueue] NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// WorkQueuePolicy: each id is handed to exactly one consumer and
	// removed on ack.
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.Subject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	sub, err := js.PullSubscribe(cfg.Subject, cfg.Durable, nats.BindStream(cfg.StreamName))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create pull consumer: %w", err)
	}

	log.Printf("[AnalysisQueue] connected to NATS at %s, stream %s", cfg.URL, cfg.StreamName)
	return &NatsAnalysisQueue{conn: nc, js: js, sub: sub, cfg: cfg}, nil
}

// Enqueue publishes one experience id.
func (q *NatsAnalysisQueue) Enqueue(ctx context.Context, id string) error {
	_, err := q.js.Publish(q.cfg.Subject, []byte(id), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish experience id: %w", err)
	}
	return nil
}

// EnqueueBatch publishes the ids in order.
func (q *NatsAnalysisQueue) EnqueueBatch(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := q.Enqueue(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Dequeue fetches up to batchSize ids. Messages are acked immediately:
// at-least-once is the contract, and a consumer crash mid-processing is
// covered by the external reconciliation path.
func (q *NatsAnalysisQueue) Dequeue(ctx context.Context, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	msgs, err := q.sub.Fetch(batchSize, nats.MaxWait(q.cfg.FetchWait))
	if errors.Is(err, nats.ErrTimeout) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch analysis batch: %w", err)
	}
	ids := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		ids = append(ids, string(msg.Data))
		if err := msg.Ack(); err != nil {
			log.Printf("[AnalysisQueue] ack failed: %v", err)
		}
	}
	return ids, nil
}

// Size returns the number of pending ids in the stream.
func (q *NatsAnalysisQueue) Size(ctx context.Context) (int, error) {
	info, err := q.js.StreamInfo(q.cfg.StreamName)
	if err != nil {
		return 0, fmt.Errorf("failed to read stream info: %w", err)
	}
	return int(info.State.Msgs), nil
}

// IsEmpty reports whether the stream holds nothing.
func (q *NatsAnalysisQueue) IsEmpty(ctx context.Context) (bool, error) {
	n, err := q.Size(ctx)
	return n == 0, err
}

// Close drains the connection.
func (q *NatsAnalysisQueue) Close() error {
	return q.conn.Drain()
}

var _ AnalysisQueue = (*NatsAnalysisQueue)(nil)
