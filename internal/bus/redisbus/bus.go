// Package redisbus bridges several relay processes over Redis Pub/Sub. Frames
// relayed locally are published; frames published by other nodes are handed
// to the local relay. Nothing is stored.
package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hongjun500/chat-relay/internal/observe"
	"github.com/hongjun500/chat-relay/internal/relay"
	"github.com/hongjun500/chat-relay/pkg/logger"
)

const (
	publishTimeout = 2 * time.Second
	queueSize      = 256
)

// ErrQueueFull is returned by Forward when the publisher is falling behind;
// the frame is dropped for other nodes only.
var ErrQueueFull = errors.New("redisbus: publish queue full")

type Bus struct {
	cli     *redis.Client
	channel string
	node    string
	log     *zap.Logger
	queue   chan relay.Frame
}

type Message struct {
	Node string    `json:"node"`
	When time.Time `json:"when"`
	Data []byte    `json:"data"`
}

func New(addr string, db int, channel string, log *zap.Logger) *Bus {
	cli := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return NewWithClient(cli, channel, log)
}

func NewWithClient(cli *redis.Client, channel string, log *zap.Logger) *Bus {
	if log == nil {
		log = logger.Named("bus")
	}
	return &Bus{
		cli:     cli,
		channel: channel,
		node:    uuid.New().String(),
		log:     log,
		queue:   make(chan relay.Frame, queueSize),
	}
}

// Node 本节点标识，用于过滤自己发布的消息
func (b *Bus) Node() string { return b.node }

func (b *Bus) Ping(ctx context.Context) error { return b.cli.Ping(ctx).Err() }

// Forward implements relay.Forwarder. It only queues the frame, so a slow or
// unreachable Redis never delays the session that received it; RunPublisher
// does the publishing.
func (b *Bus) Forward(f relay.Frame) error {
	select {
	case b.queue <- f:
		return nil
	default:
		observe.IncFederation("publish", "dropped")
		return ErrQueueFull
	}
}

// RunPublisher drains the Forward queue until ctx is done.
func (b *Bus) RunPublisher(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-b.queue:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := b.Publish(pctx, f); err != nil {
				b.log.Warn("bus_publish_error", zap.Error(err))
			}
			cancel()
		}
	}
}

func (b *Bus) Publish(ctx context.Context, f relay.Frame) error {
	payload, err := b.encode(f)
	if err != nil {
		return err
	}
	if err := b.cli.Publish(ctx, b.channel, payload).Err(); err != nil {
		observe.IncFederation("publish", "error")
		return err
	}
	observe.IncFederation("publish", "ok")
	return nil
}

type Handler func(f relay.Frame)

// Consume blocks and delivers frames from other nodes to handler until ctx is
// done.
func (b *Bus) Consume(ctx context.Context, handler Handler) error {
	sub := b.cli.Subscribe(ctx, b.channel)
	defer sub.Close()

	// 确认订阅成功后再开始消费
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redisbus: subscription closed")
			}
			b.deliver(msg.Payload, handler)
		}
	}
}

func (b *Bus) deliver(payload string, handler Handler) {
	m, err := b.decode(payload)
	if err != nil {
		observe.IncFederation("consume", "error")
		b.log.Warn("bus_decode_error", zap.Error(err))
		return
	}
	if m.Node == b.node || len(m.Data) == 0 {
		return
	}
	observe.IncFederation("consume", "ok")
	handler(relay.Frame(m.Data))
}

func (b *Bus) encode(f relay.Frame) ([]byte, error) {
	return json.Marshal(&Message{Node: b.node, When: time.Now(), Data: f})
}

func (b *Bus) decode(payload string) (*Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (b *Bus) Close() error { return b.cli.Close() }
