// Package events provides the pub/sub bus that carries pipeline stage events
// to websocket forwarders. In-memory Go channels by default; Redis Streams
// when enabled, so several instances can share one event feed.
package events

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Settings holds Redis Streams transport configuration.
type Settings struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

// Bus couples a publisher and subscriber over the same transport.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	settings Settings
}

// TopicForSession names the per-session stage-event topic.
func TopicForSession(sessionID string) string {
	return "voxaura:session:" + sessionID
}

// NewBus builds an in-memory bus, or a Redis Streams bus when s.Enabled.
func NewBus(s Settings) (*Bus, error) {
	if !s.Enabled {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, NewWatermillLogger(log.Logger))
		return &Bus{Publisher: ch, Subscriber: ch, settings: s}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := NewWatermillLogger(log.Logger)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, err
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &Bus{Publisher: pub, Subscriber: sub, settings: s}, nil
}

// PrepareTopic readies a topic for its first subscriber. On Redis Streams this
// creates the consumer group at the stream tail, so a fresh subscription sees
// only new events instead of replaying history. In-memory buses need nothing.
func (b *Bus) PrepareTopic(ctx context.Context, topic string) error {
	if b == nil || !b.settings.Enabled {
		return nil
	}
	return EnsureGroupAtTail(ctx, b.settings.Addr, topic, b.settings.Group)
}

// Close shuts down both ends of the bus.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var firstErr error
	if b.Publisher != nil {
		if err := b.Publisher.Close(); err != nil {
			firstErr = err
		}
	}
	if b.Subscriber != nil {
		// gochannel shares one value for both ends; closing twice is safe.
		if err := b.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EnsureGroupAtTail creates the consumer group for a stream at the tail ($)
// if it doesn't exist. This prevents full historical replay on first
// subscribe.
func EnsureGroupAtTail(ctx context.Context, addr, stream, group string) error {
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// BUSYGROUP means the group already exists.
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
