// Package redis provides a jobevents.Bus backed by a Redis Stream, for
// spoolers whose job history must survive restarts or span processes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/spoolworks/printspool-go/jobevents"
)

// Config for the Redis-backed bus. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: PRINTSPOOL_REDIS_ADDR
	RedisAddr string `env:"PRINTSPOOL_REDIS_ADDR,default=localhost:6379"`
	// StreamKey the events are appended to. ENV: PRINTSPOOL_EVENTS_STREAM
	StreamKey string `env:"PRINTSPOOL_EVENTS_STREAM,default=printspool:jobevents"`
	// MaxLen caps the stream with approximate trimming; 0 keeps everything.
	// ENV: PRINTSPOOL_EVENTS_MAXLEN
	MaxLen int64 `env:"PRINTSPOOL_EVENTS_MAXLEN,default=4096"`

	// Client overrides RedisAddr when set.
	Client redis.UniversalClient
}

// Bus implements jobevents.Bus on one Redis Stream. Event IDs are the
// stream entry IDs Redis assigns, so they are valid resume cursors across
// restarts.
type Bus struct {
	client    redis.UniversalClient
	streamKey string
	maxLen    int64
}

var _ jobevents.Bus = (*Bus)(nil)

// New validates cfg and connects.
func New(cfg Config) (*Bus, error) {
	client := cfg.Client
	if client == nil {
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{Addr: addr})
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	key := cfg.StreamKey
	if key == "" {
		key = "printspool:jobevents"
	}
	return &Bus{client: client, streamKey: key, maxLen: cfg.MaxLen}, nil
}

// NewFromEnv builds a Bus using envdecode to populate Config.
func NewFromEnv() (*Bus, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

func (b *Bus) Publish(ctx context.Context, ev jobevents.Event) (string, error) {
	data, err := jobevents.MarshalEvent(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: b.streamKey,
		Values: map[string]any{"d": data},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}
	id, err := b.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("append to stream %s: %w", b.streamKey, err)
	}
	return id, nil
}

func (b *Bus) Subscribe(ctx context.Context, lastEventID string) (jobevents.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := lastEventID
	if start == "" {
		// "$" only covers entries appended while a read is blocked, so
		// resolve the current tail instead; events published between
		// Subscribe and the first Next must not be lost.
		msgs, err := b.client.XRevRangeN(ctx, b.streamKey, "+", "-", 1).Result()
		if err != nil {
			return nil, fmt.Errorf("resolve tail of stream %s: %w", b.streamKey, err)
		}
		start = "0"
		if len(msgs) > 0 {
			start = msgs[0].ID
		}
	}
	return &stream{bus: b, cursor: start}, nil
}

// Close closes the Redis client.
func (b *Bus) Close() error {
	return b.client.Close()
}

// stream reads the shared Redis Stream without a consumer group; every
// subscriber sees every event.
type stream struct {
	bus    *Bus
	cursor string
	closed bool
}

func (s *stream) Next(ctx context.Context) (jobevents.Envelope, error) {
	for {
		if s.closed {
			return jobevents.Envelope{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return jobevents.Envelope{}, err
		}

		// Block briefly, then re-check the context; go-redis honors ctx
		// but short blocks keep shutdown prompt even mid-read.
		streams, err := s.bus.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.bus.streamKey, s.cursor},
			Count:   1,
			Block:   time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if errors.Is(err, redis.ErrClosed) {
				return jobevents.Envelope{}, io.EOF
			}
			return jobevents.Envelope{}, fmt.Errorf("read stream %s: %w", s.bus.streamKey, err)
		}

		for _, str := range streams {
			for _, msg := range str.Messages {
				s.cursor = msg.ID
				raw, ok := msg.Values["d"].(string)
				if !ok {
					continue
				}
				ev, err := jobevents.UnmarshalEvent([]byte(raw))
				if err != nil {
					continue
				}
				return jobevents.Envelope{ID: msg.ID, Event: ev}, nil
			}
		}
	}
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}
