package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP publishes events to a durable topic exchange, routed by transfer status.
type AMQP struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

func NewAMQP(url, exchange string, logger *slog.Logger) (*AMQP, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("NewAMQP: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewAMQP: channel: %w", err)
	}

	p := &AMQP{conn: conn, channel: ch, exchange: exchange, logger: logger}
	if err := p.declare(); err != nil {
		p.Close()
		return nil, fmt.Errorf("NewAMQP: %w", err)
	}
	return p, nil
}

func (p *AMQP) declare() error {
	if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	return nil
}

func routingKey(event Event) string {
	return "transfer." + string(event.Transfer.Kind) + "." + string(event.Transfer.Status)
}

func (p *AMQP) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("AMQP.Notify: marshal: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Timestamp:    event.Timestamp,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey(event), false, false, msg)
	if err == nil {
		return nil
	}

	p.logger.Warn("amqp publish failed, reopening channel", "exchange", p.exchange, "error", err)
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("AMQP.Notify: reopen channel: %w", chErr)
	}
	p.channel = ch
	if err := p.declare(); err != nil {
		return fmt.Errorf("AMQP.Notify: %w", err)
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, routingKey(event), false, false, msg); err != nil {
		return fmt.Errorf("AMQP.Notify: publish: %w", err)
	}
	return nil
}

func (p *AMQP) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
