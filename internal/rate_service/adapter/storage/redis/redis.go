package redis

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const updatesChannel = "rates_updated"

type Storage struct {
	rdb *redis.Client
}

func NewStorage(client *redis.Client) *Storage {
	return &Storage{
		rdb: client,
	}
}

func InitStorage(ctx context.Context, options *redis.Options) (*Storage, error) {
	const op = "storage.redis.InitStorage"

	redisClient := redis.NewClient(options)

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, op)
	}

	return NewStorage(redisClient), nil
}

// PublishUpdate notifies subscribers that fresh rates for the locality are
// available. Delivery is best-effort.
func (s *Storage) PublishUpdate(ctx context.Context, locality string) error {
	const op = "storage.redis.PublishUpdate"

	if err := s.rdb.Publish(ctx, updatesChannel, locality).Err(); err != nil {
		return errors.Wrap(err, op)
	}

	return nil
}

// ListenUpdates blocks until a rate update is announced and returns the
// locality it applies to.
func (s *Storage) ListenUpdates(ctx context.Context) (string, error) {
	const op = "storage.redis.ListenUpdates"

	pubsub := s.rdb.Subscribe(ctx, updatesChannel)
	defer pubsub.Close()

	msg, err := pubsub.ReceiveMessage(ctx)
	if err != nil {
		return "", errors.Wrap(err, op)
	}

	locality := msg.Payload

	slog.Debug("Received rates update", "locality", locality)

	return locality, nil
}
