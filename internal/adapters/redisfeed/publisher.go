package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/ports"
)

const (
	defaultStream = "risk-engine:events"
	defaultMaxLen = 10000
	// lastEventKeyPrefix holds the most recent event of each type as a hash.
	lastEventKeyPrefix = "risk-engine:last:"
)

// Config configures the Redis stream publisher.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	Stream   string
	MaxLen   int64 // Approximate stream cap, defaults to 10000
	Logger   ports.Logger
}

// Publisher implements ports.EventPublisher on top of a Redis stream.
type Publisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
	logger ports.Logger
}

// NewPublisher creates a publisher and checks the connection.
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for redis publisher", ports.ErrConfigurationError)
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: redis address is required", ports.ErrConfigurationError)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %w", ports.ErrConnectionFailed, cfg.Addr, err)
	}
	return newPublisher(rdb, cfg), nil
}

func newPublisher(rdb *redis.Client, cfg Config) *Publisher {
	stream := cfg.Stream
	if stream == "" {
		stream = defaultStream
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	cfg.Logger.Info(context.Background(), "Redis event publisher configured", map[string]interface{}{
		"addr":   cfg.Addr,
		"stream": stream,
	})
	return &Publisher{rdb: rdb, stream: stream, maxLen: maxLen, logger: cfg.Logger}
}

// Publish implements ports.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, evt domain.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", evt.Type, err)
	}
	tsMs := evt.Timestamp.UnixMilli()
	values := map[string]interface{}{
		"type":    string(evt.Type),
		"ts_ms":   tsMs,
		"payload": string(payload),
	}

	pipe := p.rdb.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	})
	pipe.HSet(ctx, lastEventKeyPrefix+string(evt.Type), values)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %s to %s: %w", evt.Type, p.stream, err)
	}
	return nil
}

// Recent returns up to count events, newest first.
func (p *Publisher) Recent(ctx context.Context, count int64) ([]domain.Event, error) {
	msgs, err := p.rdb.XRevRangeN(ctx, p.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.stream, err)
	}
	events := make([]domain.Event, 0, len(msgs))
	for _, m := range msgs {
		evt, err := decodeEvent(m.Values)
		if err != nil {
			p.logger.Warn(ctx, "Skipping malformed stream entry", map[string]interface{}{"id": m.ID, "error": err.Error()})
			continue
		}
		events = append(events, evt)
	}
	return events, nil
}

func decodeEvent(values map[string]interface{}) (domain.Event, error) {
	typ, _ := values["type"].(string)
	raw, _ := values["payload"].(string)
	tsStr, _ := values["ts_ms"].(string)

	var evt domain.Event
	if typ == "" {
		return evt, fmt.Errorf("missing event type")
	}
	var tsMs int64
	if _, err := fmt.Sscan(tsStr, &tsMs); err != nil {
		return evt, fmt.Errorf("bad ts_ms %q: %w", tsStr, err)
	}
	evt.Type = domain.EventType(typ)
	evt.Timestamp = time.UnixMilli(tsMs).UTC()
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &evt.Payload); err != nil {
			return evt, fmt.Errorf("bad payload: %w", err)
		}
	}
	return evt, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
