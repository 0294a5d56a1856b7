package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"tradepulse/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: a full session of per-close results + buffer
	analysisStreamMaxLen = 4096
	defaultLatestTTL     = 30 * time.Minute
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes analysis results, signal transitions and closed candles
// to Redis: SET latest + XADD stream + PUBLISH pubsub per payload.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// PublishResult writes the per-instrument analysis result: latest key with
// TTL, capped stream and pubsub fanout, all in one pipeline.
func (p *Publisher) PublishResult(ctx context.Context, r *model.AnalysisResult) error {
	jsonData := string(r.JSON())
	streamKey := r.StreamKey()
	latestKey := "analysis:latest:" + r.InstrumentKey
	pubsubCh := "pub:" + streamKey

	pipe := p.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: analysisStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubCh, jsonData)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis result pipeline for %s: %w", r.InstrumentKey, err)
	}
	return nil
}

// PublishCandle writes a closed timeframe candle to its stream and pubsub
// channel.
func (p *Publisher) PublishCandle(ctx context.Context, c model.Candle) error {
	jsonData := string(c.JSON())
	streamKey := c.StreamKey()
	// Proportional MAXLEN: a session of candles at this TF + buffer
	maxLen := int64(22500/c.TF) + 100
	if maxLen < 200 {
		maxLen = 200
	}

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, "candle:latest:"+model.Itoa(c.TF)+"s:"+c.InstrumentKey, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, "pub:"+streamKey, jsonData)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis candle pipeline for %s: %w", c.InstrumentKey, err)
	}
	return nil
}

// PublishTransition announces a debounce-passing primary-signal transition
// on a dedicated channel for notification/automation consumers.
func (p *Publisher) PublishTransition(ctx context.Context, r *model.AnalysisResult, previous string) error {
	payload := string(r.JSON())
	ch := "pub:signal:" + r.InstrumentKey

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, ch, payload)
	pipe.HSet(ctx, "signal:last", r.InstrumentKey, r.PrimarySignal+"|was:"+previous)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis transition publish for %s: %w", r.InstrumentKey, err)
	}
	return nil
}

// LatestResult fetches the cached analysis result for an instrument.
// Returns nil with no error when absent.
func (p *Publisher) LatestResult(ctx context.Context, instrumentKey string) ([]byte, error) {
	data, err := p.client.Get(ctx, "analysis:latest:"+instrumentKey).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get latest: %w", err)
	}
	return data, nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
