package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// RoutingKeyPrefix prefixes the action in every published routing key.
const RoutingKeyPrefix = "guildview.audit."

// publishTimeout bounds a single publish.
const publishTimeout = 5 * time.Second

// maxDialDelay caps the backoff between dial attempts.
const maxDialDelay = 30 * time.Second

// PublisherOptions configures DialPublisher.
type PublisherOptions struct {
	URL           string
	Exchange      string
	RetryAttempts int
	Delay         time.Duration
	Logger        *slog.Logger
}

// Publisher publishes entries to a topic exchange.
type Publisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
}

// DialPublisher connects to the broker with exponential backoff, declares the
// exchange as a durable topic exchange and returns a Publisher. It gives up
// early when ctx is done.
func DialPublisher(ctx context.Context, opts PublisherOptions) (*Publisher, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var conn *amqp091.Connection
	var lastErr error
	for i := 1; i <= attempts; i++ {
		c, err := amqp091.Dial(opts.URL)
		if err == nil {
			conn = c
			break
		}
		lastErr = err
		if i == attempts {
			break
		}

		sleep := opts.Delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
		logger.Warn("audit broker dial failed",
			slog.Int("attempt", i),
			slog.Duration("sleep", sleep),
			slog.Any("error", err),
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("audit broker dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if conn == nil {
		return nil, fmt.Errorf("audit broker unreachable after %d attempts: %w", attempts, lastErr)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("audit broker connected", slog.String("exchange", opts.Exchange))
	return &Publisher{conn: conn, exchange: opts.Exchange, log: logger}, nil
}

// Log publishes e with routing key RoutingKeyPrefix + action.
func (p *Publisher) Log(e Entry) error {
	if p == nil {
		return nil
	}
	key, msg, err := publishing(e)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		p.log.Warn("audit publish failed", slog.String("key", key), slog.Any("error", err))
		return err
	}
	p.log.Debug("audit published", slog.String("key", key), slog.String("exchange", p.exchange))
	return nil
}

// Close closes the broker connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.conn.Close()
}

// publishing builds the routing key and AMQP message for e.
func publishing(e Entry) (string, amqp091.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return "", amqp091.Publishing{}, err
	}

	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	cid := e.RequestID
	if cid == "" {
		cid = id
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return RoutingKeyPrefix + e.Action, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     id,
		CorrelationId: cid,
		Timestamp:     ts,
		Type:          e.Action,
		Body:          body,
	}, nil
}
