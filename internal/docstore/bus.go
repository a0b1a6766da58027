package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orderfeed/internal/observability/logger"
	"github.com/smallbiznis/orderfeed/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// Notifier spreads change signals beyond this process. The local hub is
// always notified by the store itself.
type Notifier interface {
	Publish(ctx context.Context, topic string) error
}

const DefaultBusChannel = "orderfeed:changes"

var errEmptyTopic = errors.New("empty_change_topic")

// changeMessage is the bus payload.
type changeMessage struct {
	Topic string                     `json:"topic"`
	Meta  correlation.ChangeMetadata `json:"meta"`
}

func encodeChange(ctx context.Context, topic string) ([]byte, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errEmptyTopic
	}
	return json.Marshal(changeMessage{Topic: topic, Meta: correlation.MetadataFromContext(ctx)})
}

func decodeChange(payload string) (changeMessage, error) {
	var msg changeMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return changeMessage{}, err
	}
	msg.Topic = strings.TrimSpace(msg.Topic)
	if msg.Topic == "" {
		return changeMessage{}, errEmptyTopic
	}
	return msg, nil
}

// RedisBus relays change topics between instances over Redis pub/sub.
type RedisBus struct {
	log     *zap.Logger
	rdb     *goredis.Client
	hub     *Hub
	channel string
}

func NewRedisBus(rdb *goredis.Client, hub *Hub, channel string, log *zap.Logger) (*RedisBus, error) {
	if rdb == nil {
		return nil, errors.New("redis client required")
	}
	if hub == nil {
		return nil, errors.New("hub required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultBusChannel
	}
	return &RedisBus{
		log:     log.Named("docstore.bus"),
		rdb:     rdb,
		hub:     hub,
		channel: channel,
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, topic string) error {
	if b == nil || b.rdb == nil {
		return errors.New("redis bus not initialized")
	}
	payload, err := encodeChange(ctx, topic)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

// StartForwarder relays remote topics into the local hub until ctx ends.
func (b *RedisBus) StartForwarder(ctx context.Context) error {
	if b == nil || b.rdb == nil {
		return errors.New("redis bus not initialized")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				msg, err := decodeChange(m.Payload)
				if err != nil {
					b.log.Warn("dropping malformed change message", zap.Error(err))
					continue
				}
				msgCtx := correlation.ContextWithMetadata(ctx, msg.Meta)
				logger.WithContext(msgCtx, b.log).Debug("remote change",
					zap.String("topic", msg.Topic),
					zap.String("correlation_id", correlation.ExtractCorrelationID(msgCtx)),
				)
				b.hub.Notify(msg.Topic)
			}
		}
	}()
	return nil
}

// Ping verifies connectivity within a short deadline.
func (b *RedisBus) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return b.rdb.Ping(ctx).Err()
}
