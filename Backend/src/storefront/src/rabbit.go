package main

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Rabbit publica eventos de dominio en un exchange topic. Un *Rabbit nil
// descarta los eventos.
type Rabbit struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	source   string
}

type envelope struct {
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

func NewRabbit(url, exchange, source string) (*Rabbit, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Rabbit{conn: conn, ch: ch, exchange: exchange, source: source}, nil
}

func (r *Rabbit) Close() {
	if r == nil {
		return
	}
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

func (r *Rabbit) PublishJSON(ctx context.Context, key string, payload any) error {
	if r == nil || r.ch == nil {
		return nil
	}
	body, err := json.Marshal(envelope{Type: key, Source: r.source, Timestamp: time.Now().UTC(), Payload: payload})
	if err != nil {
		return err
	}
	log.Debug().Str("key", key).Msg("publish event")
	return r.ch.PublishWithContext(ctx, r.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

type ConsumerHandler func(ctx context.Context, rk string, body []byte) error

// ConsumeTopic declara la cola, la enlaza al exchange y procesa mensajes
// hasta que ctx termina. Los mensajes con error de handler se descartan.
func (r *Rabbit) ConsumeTopic(ctx context.Context, queueName string, bindings []string, handler ConsumerHandler) error {
	if r == nil || r.ch == nil {
		return nil
	}
	q, err := r.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}
	for _, rk := range bindings {
		if err := r.ch.QueueBind(q.Name, rk, r.exchange, false, nil); err != nil {
			return err
		}
	}
	msgs, err := r.ch.Consume(q.Name, queueName+"-worker", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					log.Warn().Str("queue", queueName).Msg("consumer stopped")
					return
				}
				if err := handler(ctx, d.RoutingKey, d.Body); err != nil {
					log.Error().Err(err).Str("rk", d.RoutingKey).Msg("handler error")
				}
				_ = d.Ack(false)
			}
		}
	}()
	return nil
}
