package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// DeadLetterExchange 消费队列的 x-dead-letter-exchange
const DeadLetterExchange = "events.dlx"

// DeadLetterQueue 死信队列名
func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}

// deadLetterArgs 消费队列声明参数，nack(requeue=false) 的消息转入 DLX
func deadLetterArgs() amqp091.Table {
	return amqp091.Table{"x-dead-letter-exchange": DeadLetterExchange}
}

// declareDeadLetter 声明 DLX 与 <queue>.dlq，DLQ 收下所有路由键
func declareDeadLetter(ch *amqp091.Channel, queue string) error {
	if err := ch.ExchangeDeclare(DeadLetterExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead letter exchange: %w", err)
	}
	q, err := ch.QueueDeclare(DeadLetterQueue(queue), true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare dead letter queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "#", DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead letter queue: %w", err)
	}
	return nil
}
