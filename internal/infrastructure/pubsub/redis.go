package pubsub

import (
	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisSettings configures the Redis Streams subscriber. An empty
// ConsumerGroup puts the subscriber in fan-out mode so every live view
// sees every event.
type RedisSettings struct {
	ConsumerGroup string
	Consumer      string
}

func NewRedisSubscriber(client redis.UniversalClient, s RedisSettings) (message.Subscriber, error) {
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: s.ConsumerGroup,
		Consumer:      s.Consumer,
	}, NewLogger(log.With().Str("component", "pubsub").Logger()))
	if err != nil {
		return nil, errors.Wrap(err, "create redis stream subscriber")
	}
	return sub, nil
}

func NewRedisPublisher(client redis.UniversalClient) (message.Publisher, error) {
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, NewLogger(log.With().Str("component", "pubsub").Logger()))
	if err != nil {
		return nil, errors.Wrap(err, "create redis stream publisher")
	}
	return pub, nil
}
