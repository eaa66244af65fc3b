package publish

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	executionChannel = "trader:executions"
	positionChannel  = "trader:positions"

	publishTimeout = 3 * time.Second
)

// Execution is one published fill notification.
type Execution struct {
	Symbol    string `msgpack:"symbol"`
	Side      string `msgpack:"side"`
	Price     string `msgpack:"price"`
	Qty       string `msgpack:"qty"`
	TradeID   string `msgpack:"trade_id"`
	OrderID   string `msgpack:"order_id"`
	Timestamp int64  `msgpack:"ts"`
}

// PositionNotice is a published position change.
type PositionNotice struct {
	Symbol    string `msgpack:"symbol"`
	Qty       string `msgpack:"qty"`
	AvgEntry  string `msgpack:"avg_entry"`
	Realized  string `msgpack:"realized"`
	Timestamp int64  `msgpack:"ts"`
}

// Publisher pushes trade notifications to Redis pub/sub. A nil
// *Publisher is a no-op so downstream consumers stay optional.
type Publisher struct {
	client *redis.Client
}

// Config is the Redis connection for the publisher.
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NewPublisher connects and pings Redis. A failed ping returns an
// error; the caller decides whether to run without notifications.
func NewPublisher(cfg Config) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ping redis").With("addr", cfg.Addr)
	}
	logs.Infof("redis publisher connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// PublishExecution pushes one fill. Publish failures are logged, not
// propagated; trading never stalls on the notification path.
func (p *Publisher) PublishExecution(ctx context.Context, exec Execution) {
	p.publish(ctx, executionChannel, exec)
}

// PublishPosition pushes a position change.
func (p *Publisher) PublishPosition(ctx context.Context, notice PositionNotice) {
	p.publish(ctx, positionChannel, notice)
}

func (p *Publisher) publish(ctx context.Context, channel string, payload any) {
	if p == nil || p.client == nil {
		return
	}
	data, err := msgpack.Marshal(payload)
	if err != nil {
		logs.Errorf("marshal %s payload: %+v", channel, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		logs.Warnf("publish to %s: %+v", channel, err)
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
