package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/model"
)

// channel is the subset of *amqp.Channel used for publishing
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// message is the payload consumed by the mail relay
type message struct {
	To      string  `json:"to"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Summary Summary `json:"summary"`
}

type amqpNotifier struct {
	conn       *amqp.Connection
	ch         channel
	exchange   string
	routingKey string
	logger     *slog.Logger
	mu         sync.Mutex
}

// NewAMQPNotifier dials RabbitMQ and declares the notification exchange
func NewAMQPNotifier(cfg config.AMQPConfig, logger *slog.Logger) (Notifier, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	logger.Info("amqp notifier ready",
		slog.String("exchange", cfg.Exchange),
		slog.String("routing_key", cfg.RoutingKey),
	)

	return newAMQPNotifier(conn, ch, cfg.Exchange, cfg.RoutingKey, logger), nil
}

func newAMQPNotifier(conn *amqp.Connection, ch channel, exchange, routingKey string, logger *slog.Logger) *amqpNotifier {
	return &amqpNotifier{
		conn:       conn,
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}
}

func (n *amqpNotifier) Notify(ctx context.Context, destination string, summary Summary) error {
	if destination == "" {
		return &model.NotifyError{Destination: destination, Err: fmt.Errorf("empty destination")}
	}

	body, err := json.Marshal(message{
		To:      destination,
		Subject: summary.Subject(),
		Body:    summary.Text(),
		Summary: summary,
	})
	if err != nil {
		return &model.NotifyError{Destination: destination, Err: err}
	}

	// amqp channels are not safe for concurrent publishing
	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.ch.PublishWithContext(ctx,
		n.exchange,
		n.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    summary.JobID,
			Body:         body,
		},
	)
	if err != nil {
		return &model.NotifyError{Destination: destination, Err: err}
	}

	n.logger.Debug("summary published",
		slog.String("job_id", summary.JobID),
		slog.String("exchange", n.exchange),
	)
	return nil
}

func (n *amqpNotifier) Close() error {
	if err := n.ch.Close(); err != nil {
		return err
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
