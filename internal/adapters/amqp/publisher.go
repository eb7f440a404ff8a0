// Package amqpad publishes reservation events to RabbitMQ. The publisher
// holds one process-wide connection, injected at startup, instead of dialing
// per call.
package amqpad

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"lodgebook/internal/domain"
)

const reservationCreatedQueue = "reservation.created"

type Publisher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New connects to the broker and declares the durable event queue. The
// connection is kept for the life of the process; a broken channel is
// re-established lazily on the next publish.
func New(url string) (*Publisher, error) {
	p := &Publisher{url: url}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureLocked() error {
	if p.ch != nil && !p.conn.IsClosed() {
		return nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	// Durable so events survive broker restarts.
	if _, err := ch.QueueDeclare(reservationCreatedQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("amqp queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// PublishReservationCreated sends the event as a persistent JSON message.
// Delivery is at most once; the caller treats failure as non-fatal.
func (p *Publisher) PublishReservationCreated(ctx context.Context, ev domain.ReservationCreatedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLocked(); err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    fmt.Sprintf("reservation-%d", ev.ReservationID),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", reservationCreatedQueue, false, false, pub); err != nil {
		// drop the channel so the next publish redials
		_ = p.ch.Close()
		p.ch = nil
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
