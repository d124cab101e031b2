package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"SuiChat-Agent/internal/events"
	"SuiChat-Agent/pkg/logger"
)

// AMQPConfig 描述事件中继的连接参数。
type AMQPConfig struct {
	URL      string
	Exchange string
	Durable  bool
}

// AMQPRelay 订阅事件总线并把事件载荷转发到 RabbitMQ，
// 供外部审计或监控消费。转发失败只记录日志，绝不影响总线。
type AMQPRelay struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	bus      *events.Bus
	subs     []*events.Subscription
	log      *slog.Logger
}

// relayedEvents 是转发到外部的事件类别。
var relayedEvents = []events.Type{
	events.MessageReceived,
	events.TaskStarted,
	events.TaskCompleted,
	events.TaskFailed,
	events.TaskPlanStarted,
	events.TaskPlanUpdated,
	events.TaskPlanCompleted,
	events.MessageProcessingStarted,
	events.MessageProcessingCompleted,
}

// NewAMQPRelay 建立连接、声明交换机并订阅事件总线。
func NewAMQPRelay(bus *events.Bus, cfg AMQPConfig) (*AMQPRelay, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "suichat.events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", cfg.Durable, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 交换机失败: %w", err)
	}

	relay := &AMQPRelay{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		bus:      bus,
		log:      logger.Named("relay"),
	}
	for _, eventType := range relayedEvents {
		eventType := eventType
		sub := bus.Subscribe(eventType, func(evt events.Event) {
			relay.forward(evt)
		})
		relay.subs = append(relay.subs, sub)
	}
	return relay, nil
}

func (r *AMQPRelay) forward(evt events.Event) {
	body, err := json.Marshal(evt.Data)
	if err != nil {
		r.log.Warn("事件载荷序列化失败",
			slog.String("event", string(evt.Type)),
			slog.Any("error", err),
		)
		return
	}
	err = r.ch.PublishWithContext(context.Background(), r.exchange, string(evt.Type), false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   evt.OccurredAt,
		Body:        body,
	})
	if err != nil {
		r.log.Warn("事件转发失败",
			slog.String("event", string(evt.Type)),
			slog.Any("error", err),
		)
	}
}

// Close 退订总线并关闭连接。
func (r *AMQPRelay) Close() error {
	if r == nil {
		return nil
	}
	for _, sub := range r.subs {
		r.bus.Unsubscribe(sub)
	}
	r.subs = nil
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
