package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/eventcard/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
)

// Publisher announces committed ledger entries. It runs after commit, so a
// failure is logged and never undoes the entry.
type Publisher interface {
	Publish(ctx context.Context, entry *models.LedgerEntry) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, entry *models.LedgerEntry) error {
	return nil
}

// RedisQueuePublisher pushes entries onto a Redis list consumed by reporting workers.
type RedisQueuePublisher struct {
	client *redis.Client
	queue  string
}

func NewRedisQueuePublisher(client *redis.Client, queue string) *RedisQueuePublisher {
	return &RedisQueuePublisher{
		client: client,
		queue:  queue,
	}
}

func (p *RedisQueuePublisher) Publish(ctx context.Context, entry *models.LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return p.client.RPush(ctx, p.queue, data).Err()
}

// NatsPublisher emits entries on a NATS subject, one message per entry.
type NatsPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewNatsPublisher(conn *nats.Conn, subject string) *NatsPublisher {
	return &NatsPublisher{
		conn:    conn,
		subject: subject,
	}
}

func (p *NatsPublisher) Publish(ctx context.Context, entry *models.LedgerEntry) error {
	if p.conn == nil {
		return errors.New("nats connection not initialized")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("Event-Id", entry.EventID)
	msg.Header.Set("Entry-Type", string(entry.Type))
	return p.conn.PublishMsg(msg)
}
