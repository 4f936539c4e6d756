package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/dealhound/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type StreamConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// StreamNotifier publishes alerts to a Redis stream for downstream consumers.
type StreamNotifier struct {
	redis  RedisClient
	stream string
	maxLen int64
	logger *slog.Logger
}

func NewStreamNotifier(cfg StreamConfig, logger *slog.Logger) *StreamNotifier {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newStreamNotifier(client, cfg, logger)
}

func newStreamNotifier(client RedisClient, cfg StreamConfig, logger *slog.Logger) *StreamNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	stream := cfg.Stream
	if stream == "" {
		stream = "stream:price_alerts"
	}
	return &StreamNotifier{
		redis:  client,
		stream: stream,
		maxLen: cfg.MaxLen,
		logger: logger.With("component", "stream_notifier"),
	}
}

type alertMessage struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	URL          string    `json:"url"`
	ProductName  string    `json:"product_name"`
	Price        string    `json:"price"`
	Threshold    string    `json:"threshold"`
	Availability string    `json:"availability"`
	ReadAt       time.Time `json:"read_at"`
	TriggeredAt  time.Time `json:"triggered_at"`
}

const eventTypePriceDrop = "PRICE_DROP"

func (n *StreamNotifier) Send(ctx context.Context, event models.AlertEvent) error {
	msg := alertMessage{
		ID:           event.ID.String(),
		Type:         eventTypePriceDrop,
		URL:          event.Reading.URL,
		ProductName:  event.Reading.DisplayName(),
		Price:        event.Reading.PriceString(),
		Threshold:    event.Threshold.StringFixed(2),
		Availability: event.Reading.Availability.String(),
		ReadAt:       event.Reading.Timestamp,
		TriggeredAt:  event.TriggeredAt,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"data":      string(data),
			"type":      eventTypePriceDrop,
			"alert_id":  msg.ID,
			"url":       msg.URL,
			"timestamp": fmt.Sprintf("%d", event.TriggeredAt.UnixNano()),
		},
	}
	if n.maxLen > 0 {
		args.MaxLen = n.maxLen
		args.Approx = true
	}

	id, err := n.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	n.logger.Info("alert published", "alert_id", msg.ID, "stream", n.stream, "message_id", id)
	return nil
}

func (n *StreamNotifier) Close() error {
	return n.redis.Close()
}
