package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	// ExchangeTriggers — входящие события внешних систем.
	// Routing key = топик события, матчится с event-schedules.
	ExchangeTriggers Exchange = "maestro.triggers"

	// ExchangeEvents — исходящие события переходов runs и шагов.
	ExchangeEvents Exchange = "maestro.events"

	// ExchangeDLQ — dead letter queue.
	ExchangeDLQ Exchange = "maestro.dlq"
)

// Queues — имена очередей.
const (
	// QueueTriggerEvents — все trigger-события для scheduler-а.
	QueueTriggerEvents Queue = "triggers.events"

	// QueueRunEvents — лента событий переходов.
	QueueRunEvents Queue = "runs.events"

	// QueueDLQTriggers — DLQ для необработанных trigger-событий.
	QueueDLQTriggers Queue = "dlq.triggers"
)

// Routing keys.
const (
	// RoutingKeyAllTopics подписывает очередь на все топики.
	RoutingKeyAllTopics RoutingKey = "#"

	// RoutingKeyRunEvents — ключ публикации событий переходов.
	RoutingKeyRunEvents RoutingKey = "run"

	// RoutingKeyDLQTriggers — ключ DLQ trigger-событий.
	RoutingKeyDLQTriggers RoutingKey = "triggers"
)

// SetupTopology объявляет exchanges, queues и bindings.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		if err := bindQueues(ch); err != nil {
			return err
		}
		return nil
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		// topic: routing key несёт топик события
		{ExchangeTriggers, "topic"},
		{ExchangeEvents, "topic"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQTriggers),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// triggers.events — с DLQ (события с ошибкой обработки)
		{QueueTriggerEvents, dlqArgs},

		// runs.events — без DLQ (лента для внешних подписчиков)
		{QueueRunEvents, nil},

		// dlq.triggers — сама DLQ очередь
		{QueueDLQTriggers, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueTriggerEvents, RoutingKeyAllTopics, ExchangeTriggers},
		{QueueRunEvents, RoutingKeyAllTopics, ExchangeEvents},
		{QueueDLQTriggers, RoutingKeyDLQTriggers, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Maestro RabbitMQ Topology:

    maestro.triggers (topic)
    └── triggers.events [routing: #]
            Consumer: Scheduler (event-schedules)
            DLQ: dlq.triggers

    maestro.events (topic)
    └── runs.events [routing: #]
            Consumer: external subscribers

    maestro.dlq (direct)
    └── dlq.triggers [routing: triggers]
            Manual processing
  `
}
