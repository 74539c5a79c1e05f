package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	DefaultExchange = "career-assistant.events"
	publishTimeout  = 5 * time.Second
)

// AMQPConfig configures the RabbitMQ publisher. An empty URL disables publishing.
type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher sends events as persistent JSON messages to a topic exchange.
// The routing key is the event type.
type AMQPPublisher struct {
	ch       channel
	conn     io.Closer
	exchange string
	logger   *zap.Logger
	now      func() time.Time
}

// DialAMQP connects and declares a durable topic exchange.
func DialAMQP(cfg AMQPConfig, logger *zap.Logger) (*AMQPPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is empty")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	return newAMQPPublisher(ch, conn, exchange, logger), nil
}

func newAMQPPublisher(ch channel, conn io.Closer, exchange string, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPPublisher{
		ch:       ch,
		conn:     conn,
		exchange: exchange,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *AMQPPublisher) PublishTurn(ctx context.Context, event TurnCompleted) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    p.now(),
		Type:         TypeTurnCompleted,
		Headers:      amqp.Table{"session_id": event.SessionID},
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, TypeTurnCompleted, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TypeTurnCompleted, err)
	}

	p.logger.Debug("published event",
		zap.String("type", TypeTurnCompleted),
		zap.String("message_id", msg.MessageId),
	)
	return nil
}

func (p *AMQPPublisher) Close() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
