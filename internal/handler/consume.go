package handler

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arena-ops/loan-service/pkg/kafka"
)

type setQuantities func(ctx context.Context, itemID, total, available int) error

// Consumer applies administrative quantity overrides pushed by the
// asset-management screens onto the inventory-adjust topic.
type Consumer struct {
	setQuantitiesHandler setQuantities
	log                  *zap.Logger
	ready                chan bool
}

func NewConsumer(setQuantities setQuantities, log *zap.Logger) *Consumer {
	return &Consumer{
		setQuantitiesHandler: setQuantities,
		log:                  log.Named("consumer"),
		ready:                make(chan bool),
	}
}

func (consumer *Consumer) Setup(sarama.ConsumerGroupSession) error {
	// Mark the consumer as ready
	close(consumer.ready)
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (consumer *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				consumer.log.Warn("message channel was closed")
				return nil
			}
			var req kafka.AdjustQuantities
			if err := json.Unmarshal(message.Value, &req); err != nil {
				consumer.log.Error("", zap.Error(err))
				session.MarkMessage(message, "")
				continue
			}

			if err := consumer.setQuantitiesHandler(context.Background(), req.ItemID, req.QuantityTotal, req.QuantityAvailable); err != nil {
				consumer.log.Error("consumer.setQuantitiesHandler", zap.Error(err))
				continue
			}

			consumer.log.Debug("Message claimed:", zap.String("value", string(message.Value)), zap.Time("timestamp", message.Timestamp), zap.String("topic", message.Topic))
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
