package ocrservice

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
	"github.com/streadway/amqp"
)

// OcrRpcWorker consumes rpcRequests from the ocr queue, runs them through a local engine
// and publishes the raw result back to the caller's callback queue.
type OcrRpcWorker struct {
	rabbitConfig RabbitConfig
	engine       OcrEngine
	conn         *amqp.Connection
	channel      *amqp.Channel
	tag          string
	Done         chan error
}

func NewOcrRpcWorker(rc RabbitConfig, engine OcrEngine) *OcrRpcWorker {
	return &OcrRpcWorker{
		rabbitConfig: rc,
		engine:       engine,
		// tag is based on ksuid K-Sortable Globally Unique IDs
		tag:  ksuid.New().String(),
		Done: make(chan error, 1),
	}
}

func (w *OcrRpcWorker) Run() error {
	var err error
	queueArgs := make(amqp.Table)
	queueArgs["x-max-priority"] = uint8(9)

	log.Info().Str("component", "OCR_WORKER").Str("tag", w.tag).
		Str("host", stripPasswordFromRawUrl(w.rabbitConfig.AmqpURI)).
		Str("engine", w.engine.Name()).
		Msg("dialing rabbitMq")

	w.conn, err = amqp.Dial(w.rabbitConfig.AmqpURI)
	if err != nil {
		log.Warn().Str("component", "OCR_WORKER").Err(err).Str("tag", w.tag).
			Msg("error connecting to rabbitMq")
		return err
	}

	go func() {
		if closeErr := <-w.conn.NotifyClose(make(chan *amqp.Error, 1)); closeErr != nil {
			log.Warn().Str("component", "OCR_WORKER").Str("tag", w.tag).
				Str("reason", closeErr.Error()).Msg("rabbitMq connection closed")
		}
	}()

	w.channel, err = w.conn.Channel()
	if err != nil {
		return err
	}
	// one unacked delivery at a time, the engine handles one image anyway
	if err = w.channel.Qos(1, 0, true); err != nil {
		return err
	}

	if err = w.channel.ExchangeDeclare(
		w.rabbitConfig.Exchange,     // name of the exchange
		w.rabbitConfig.ExchangeType, // type
		true,                        // durable
		false,                       // delete when complete
		false,                       // internal
		false,                       // noWait
		nil,                         // arguments
	); err != nil {
		return err
	}

	// just use the routing key as the queue name, since there's no reason
	// to have a different name
	queue, err := w.channel.QueueDeclare(
		w.rabbitConfig.RoutingKey, // name of the queue
		true,                      // durable
		false,                     // delete when unused
		false,                     // exclusive
		false,                     // noWait
		queueArgs,                 // arguments
	)
	if err != nil {
		return err
	}

	if err = w.channel.QueueBind(
		queue.Name,                // name of the queue
		w.rabbitConfig.RoutingKey, // bindingKey
		w.rabbitConfig.Exchange,   // sourceExchange
		false,                     // noWait
		nil,                       // arguments
	); err != nil {
		return err
	}

	log.Info().Str("component", "OCR_WORKER").Str("tag", w.tag).
		Str("RoutingKey", w.rabbitConfig.RoutingKey).
		Msg("queue bound to exchange, starting consume")
	deliveries, err := w.channel.Consume(
		queue.Name, // name
		w.tag,      // consumerTag,
		false,      // noAck
		false,      // exclusive
		false,      // noLocal
		false,      // noWait
		nil,        // arguments
	)
	if err != nil {
		return err
	}

	go w.handle(deliveries)
	return nil
}

func (w *OcrRpcWorker) Shutdown() error {
	// will close() the deliveries channel
	if err := w.channel.Cancel(w.tag, true); err != nil {
		return fmt.Errorf("worker with tag %s cancel failed: %s", w.tag, err)
	}
	if err := w.conn.Close(); err != nil {
		return fmt.Errorf("AMQP connection with worker %s close error: %s", w.tag, err)
	}
	defer log.Info().Str("component", "OCR_WORKER").Str("tag", w.tag).Msg("Shutdown OK")

	// wait for handle() to exit
	return <-w.Done
}

func (w *OcrRpcWorker) handle(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		log.Info().Str("component", "OCR_WORKER").Str("tag", w.tag).
			Int("msg_size", len(d.Body)).
			Str("CorrelationId", d.CorrelationId).
			Str("ReplyTo", d.ReplyTo).
			Uint64("DeliveryTag", d.DeliveryTag).
			Msg("got delivery")

		reply := w.replyForRequest(context.Background(), d.Body)
		if err := w.sendRpcResponse(reply, d.ReplyTo, d.CorrelationId); err != nil {
			log.Error().Err(err).Str("component", "OCR_WORKER").Str("tag", w.tag).
				Str("CorrelationId", d.CorrelationId).Msg("could not send rpc response")
			// the request goes back to the queue for another worker
			_ = d.Nack(false, true)
			w.Done <- err
			return
		}
		if err := d.Ack(false); err != nil {
			log.Warn().Str("component", "OCR_WORKER").Err(err).Str("tag", w.tag).
				Msg("Ack() was not successful")
		}
	}
	log.Info().Str("component", "OCR_WORKER").Str("tag", w.tag).Msg("handle: deliveries channel closed")
	w.Done <- fmt.Errorf("handle: deliveries channel closed")
}

// replyForRequest runs one encoded rpcRequest through the engine. Failures end up in the
// reply so the caller sees the engine's message.
func (w *OcrRpcWorker) replyForRequest(ctx context.Context, body []byte) rpcReply {
	req := rpcRequest{}
	if err := json.Unmarshal(body, &req); err != nil {
		log.Error().Err(err).Str("component", "OCR_WORKER").Str("tag", w.tag).
			Msg("error unmarshalling json delivery")
		return rpcReply{Error: "invalid rpc request: " + err.Error()}
	}

	logger := log.With().Str("RequestID", req.RequestID).Str("tag", w.tag).Logger()
	ctx = withRequestID(logger.WithContext(ctx), req.RequestID)

	img := UploadedImage{Data: req.ImgBytes}
	if err := ValidateUpload(img); err != nil {
		return rpcReply{Error: err.Error()}
	}

	raw, err := w.engine.Recognize(ctx, img)
	if err != nil {
		return rpcReply{Error: err.Error()}
	}
	if len(raw) == 0 {
		raw = RawResult("null")
	}
	if !json.Valid(raw) {
		return rpcReply{Error: "engine returned a result that is not valid json"}
	}
	return rpcReply{Raw: json.RawMessage(raw)}
}

func (w *OcrRpcWorker) sendRpcResponse(reply rpcReply, replyTo string, correlationID string) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return err
	}

	if err := w.channel.Publish(
		w.rabbitConfig.Exchange, // publish to an exchange
		replyTo,                 // routing to 0 or more queues
		false,                   // mandatory
		false,                   // immediate
		amqp.Publishing{
			Headers:       amqp.Table{},
			ContentType:   "application/json",
			Body:          body,
			DeliveryMode:  amqp.Transient, // 1=non-persistent, 2=persistent
			CorrelationId: correlationID,
		},
	); err != nil {
		return err
	}
	log.Info().Str("component", "OCR_WORKER").Str("CorrelationId", correlationID).
		Str("tag", w.tag).Str("replyTo", replyTo).Msg("sendRpcResponse succeeded")
	return nil
}
