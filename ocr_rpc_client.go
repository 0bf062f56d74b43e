package ocrservice

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"github.com/streadway/amqp"
)

// rpcRequest is the message published to the ocr worker queue.
type rpcRequest struct {
	RequestID string `json:"request_id"`
	ImgBytes  []byte `json:"img_bytes"`
}

// rpcReply is what a worker publishes back. Exactly one of Raw and Error is set.
type rpcReply struct {
	Raw   json.RawMessage `json:"raw,omitempty"`
	Error string          `json:"error,omitempty"`
}

// OcrRpcClient is a BufferEngine that hands the image to an ocr worker over RabbitMQ and
// waits for the raw engine result on an exclusive callback queue.
type OcrRpcClient struct {
	rabbitConfig RabbitConfig
}

func NewOcrRpcClient(rc RabbitConfig) *OcrRpcClient {
	return &OcrRpcClient{rabbitConfig: rc}
}

// Concurrent reports true: every call uses its own connection and callback queue.
func (c *OcrRpcClient) Concurrent() bool {
	return true
}

func (c *OcrRpcClient) RecognizeBuffer(ctx context.Context, data []byte) (RawResult, error) {
	logger := zerolog.Ctx(ctx)
	correlationID := ksuid.New().String()

	logger.Debug().Str("component", "OCR_CLIENT").
		Str("host", stripPasswordFromRawUrl(c.rabbitConfig.AmqpURI)).Msg("dialing rabbitMq")
	conn, err := amqp.Dial(c.rabbitConfig.AmqpURI)
	if err != nil {
		return nil, errors.Wrap(err, "connect to rabbitMq")
	}
	defer conn.Close()

	channel, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open amqp channel")
	}

	if err := channel.ExchangeDeclare(
		c.rabbitConfig.Exchange,     // name
		c.rabbitConfig.ExchangeType, // type
		true,                        // durable
		false,                       // auto-deleted
		false,                       // internal
		false,                       // noWait
		nil,                         // arguments
	); err != nil {
		return nil, errors.Wrap(err, "declare exchange")
	}

	callbackQueue, deliveries, err := c.subscribeCallbackQueue(channel, correlationID)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(rpcRequest{
		RequestID: requestIDFromContext(ctx),
		ImgBytes:  data,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug().Str("component", "OCR_CLIENT").Str("routing_key", c.rabbitConfig.RoutingKey).
		Str("correlation_id", correlationID).Msg("publishing ocr request")
	if err := channel.Publish(
		c.rabbitConfig.Exchange, // publish to an exchange
		c.rabbitConfig.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			Headers:       amqp.Table{},
			ContentType:   "application/json",
			Body:          body,
			DeliveryMode:  amqp.Transient,
			ReplyTo:       callbackQueue.Name,
			CorrelationId: correlationID,
		},
	); err != nil {
		return nil, errors.Wrap(err, "publish ocr request")
	}

	reply, err := awaitReply(ctx, deliveries, correlationID, c.rabbitConfig.RpcResponseTimeout)
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	return RawResult(reply.Raw), nil
}

func (c *OcrRpcClient) subscribeCallbackQueue(channel *amqp.Channel, correlationID string) (amqp.Queue, <-chan amqp.Delivery, error) {
	// declare a callback queue where we will receive rpc responses
	callbackQueue, err := channel.QueueDeclare(
		"",    // name -- let rabbit generate a random one
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // noWait
		nil,   // arguments
	)
	if err != nil {
		return amqp.Queue{}, nil, errors.Wrap(err, "declare callback queue")
	}

	// bind the callback queue to an exchange + routing key
	if err = channel.QueueBind(
		callbackQueue.Name,      // name of the queue
		callbackQueue.Name,      // bindingKey
		c.rabbitConfig.Exchange, // sourceExchange
		false,                   // noWait
		nil,                     // arguments
	); err != nil {
		return amqp.Queue{}, nil, errors.Wrap(err, "bind callback queue")
	}

	deliveries, err := channel.Consume(
		callbackQueue.Name, // name
		correlationID,      // consumerTag
		true,               // noAck
		true,               // exclusive
		false,              // noLocal
		false,              // noWait
		nil,                // arguments
	)
	if err != nil {
		return amqp.Queue{}, nil, errors.Wrap(err, "consume callback queue")
	}
	return callbackQueue, deliveries, nil
}

// awaitReply returns the first delivery carrying correlationID. Deliveries for other ids
// are dropped.
func awaitReply(ctx context.Context, deliveries <-chan amqp.Delivery, correlationID string, timeout time.Duration) (rpcReply, error) {
	logger := zerolog.Ctx(ctx)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return rpcReply{}, errors.New("rpc callback queue closed before a reply arrived")
			}
			if d.CorrelationId != correlationID {
				logger.Debug().Str("component", "OCR_CLIENT").Str("correlation_id", d.CorrelationId).
					Msg("ignoring delivery with foreign correlation id")
				continue
			}
			reply := rpcReply{}
			if err := json.Unmarshal(d.Body, &reply); err != nil {
				return rpcReply{}, errors.Wrap(err, "decode rpc reply")
			}
			return reply, nil
		case <-timer.C:
			return rpcReply{}, errors.Errorf("timeout after %v waiting for rpc response", timeout)
		case <-ctx.Done():
			return rpcReply{}, ctx.Err()
		}
	}
}
