package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Config struct {
	Addrs []string `envconfig:"KAFKA_ADDRS" default:"localhost:9092"`
}

const (
	LoanEventsTopic      = "loan-events"
	InventoryAdjustTopic = "inventory-adjust"

	LoanConsumerGroup = "loan-service"
)

// EventLoan is published to LoanEventsTopic after every committed
// lifecycle mutation; the reporting side consumes it.
type EventLoan struct {
	Type           string    `json:"type"` // created | returned | deleted | status_set
	LoanUid        string    `json:"loanUid"`
	Status         string    `json:"status"`
	TotalDamageFee float64   `json:"totalDamageFee"`
	At             time.Time `json:"at"`
}

// AdjustQuantities is the administrative override pushed by the
// asset-management screens onto InventoryAdjustTopic.
type AdjustQuantities struct {
	ItemID            int `json:"itemId"`
	QuantityTotal     int `json:"quantityTotal"`
	QuantityAvailable int `json:"quantityAvailable"`
}

func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}

func NewConsumer(cfg Config, group string) (sarama.ConsumerGroup, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	defaultCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	return sarama.NewConsumerGroup(cfg.Addrs, group, defaultCfg)
}

// Consume runs the consumer-group session loop until the group is
// closed. Intended to run in its own goroutine.
func Consume(consumer sarama.ConsumerGroup, handler sarama.ConsumerGroupHandler, log *zap.Logger, topics ...string) {
	ctx := context.Background()
	for {
		if err := consumer.Consume(ctx, topics, handler); err != nil {
			if err == sarama.ErrClosedConsumerGroup {
				return
			}
			log.Error("kafka consume", zap.Error(err))
			time.Sleep(time.Second)
		}
	}
}
