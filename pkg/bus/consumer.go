// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/delorenj/bloodbank/pkg/core/config"
)

// Handler processes one delivered message body. A nil return acknowledges
// the message; an error rejects it without requeue.
type Handler func(ctx context.Context, routingKey string, body []byte) error

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	// URL is the AMQP connection URL.
	URL string

	// Exchange is the topic exchange to bind against. It is declared
	// durable, matching the publisher side.
	Exchange string

	// Queue names the durable queue. Conventionally the consuming service's
	// name, so restarts resume the same queue.
	Queue string

	// Prefetch bounds unacknowledged deliveries in flight. Defaults to 1.
	Prefetch int

	// ConnectTimeout bounds the broker connection attempt.
	ConnectTimeout time.Duration

	// Logger receives consume diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Consumer reads messages from the topic exchange and feeds them to a
// handler with manual acknowledgement.
type Consumer struct {
	opts   ConsumerOptions
	logger *slog.Logger
}

// NewConsumer creates a consumer. No connection is attempted until Run.
func NewConsumer(opts ConsumerOptions) *Consumer {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Consumer{opts: opts, logger: opts.Logger.With("component", "consumer")}
}

// Run connects, binds the queue to the given routing keys and consumes until
// ctx is cancelled or the broker connection fails.
//
// Messages are acknowledged only after the handler returns nil; a handler
// error rejects the message without requeue so a poison message cannot spin
// the consumer.
func (c *Consumer) Run(ctx context.Context, routingKeys []string, handler Handler) error {
	if len(routingKeys) == 0 {
		return fmt.Errorf("bus: no routing keys to consume")
	}

	conn, err := amqp.DialConfig(c.opts.URL, amqp.Config{
		Dial: amqp.DefaultDial(c.opts.ConnectTimeout),
	})
	if err != nil {
		return fmt.Errorf("bus: failed to connect to RabbitMQ at %q: %w", config.RedactURL(c.opts.URL), err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("bus: failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("bus: failed to declare exchange %q: %w", c.opts.Exchange, err)
	}

	queue, err := ch.QueueDeclare(c.opts.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("bus: failed to declare queue %q: %w", c.opts.Queue, err)
	}
	for _, key := range routingKeys {
		if err := ch.QueueBind(queue.Name, key, c.opts.Exchange, false, nil); err != nil {
			return fmt.Errorf("bus: failed to bind %q to %q: %w", queue.Name, key, err)
		}
	}

	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		return fmt.Errorf("bus: failed to set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("bus: failed to start consuming from %q: %w", queue.Name, err)
	}

	c.logger.Info("consuming",
		"queue", queue.Name,
		"exchange", c.opts.Exchange,
		"routing_keys", routingKeys)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("bus: delivery channel closed")
			}
			if err := handler(ctx, d.RoutingKey, d.Body); err != nil {
				c.logger.Error("message handler failed",
					"routing_key", d.RoutingKey,
					"message_id", d.MessageId,
					"error", err)
				if nerr := d.Nack(false, false); nerr != nil {
					c.logger.Error("failed to nack message", "error", nerr)
				}
				continue
			}
			if aerr := d.Ack(false); aerr != nil {
				c.logger.Error("failed to ack message", "error", aerr)
			}
		}
	}
}
