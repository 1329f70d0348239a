// Package events publishes lifecycle notifications for downstream consumers
// (gateway SSE forwarders, search indexers). Publishing is best-effort:
// callers log failures and carry on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	SubjectJobStatusChanged = "EVENT_JOB_STATUS_CHANGED"
	SubjectLifecyclePass    = "EVENT_LIFECYCLE_PASS"
)

// JobStatusChanged is emitted for every manual transition.
type JobStatusChanged struct {
	Type  string    `json:"type"`
	JobID string    `json:"jobId"`
	From  string    `json:"from"`
	To    string    `json:"to"`
	At    time.Time `json:"at"`
}

// LifecyclePass is emitted after every automatic transition pass.
type LifecyclePass struct {
	Type            string    `json:"type"`
	MovedToDump     int64     `json:"movedToDump"`
	MovedToInactive int64     `json:"movedToInactive"`
	At              time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
	Close() error
}

// ─── Redis ───────────────────────────────────────────────────────────────────

type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	return p.rdb.Publish(ctx, subject, data).Err()
}

// Close is a no-op: the client is owned by the caller.
func (p *RedisPublisher) Close() error { return nil }

// ─── NATS ────────────────────────────────────────────────────────────────────

type NATSPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

func NewNATSPublisher(url string, timeout time.Duration, logger *zap.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("listing-service"),
		nats.Timeout(timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	return &NATSPublisher{conn: conn, logger: logger}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("published event", zap.String("subject", subject), zap.Int("size", len(data)))
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}

// ─── Nop ─────────────────────────────────────────────────────────────────────

type nopPublisher struct{}

// Nop returns a Publisher that drops every event.
func Nop() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, string, any) error { return nil }
func (nopPublisher) Close() error                               { return nil }
