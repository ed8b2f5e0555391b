package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"metaphorlab/internal/domain"
)

const clientID = "metaphorlab"

// sourceHeader carries the job source so consumers can filter without
// decoding the payload.
const sourceHeader = "source"

type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafka(brokers []string, topic string) (*Kafka, error) {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return newKafka(producer, topic), nil
}

func newKafka(producer sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

func (k *Kafka) Publish(ctx context.Context, job domain.AnalysisJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(job.ID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(sourceHeader), Value: []byte(job.Source)},
		},
		Timestamp: job.SubmittedAt,
	})

	return err
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}

type KafkaConsumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler Handler
	log     *zap.Logger
}

func NewKafkaConsumer(brokers []string, groupID, topic string, log *zap.Logger) (*KafkaConsumer, error) {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaConsumer{
		group: group,
		topic: topic,
		log:   log.Named("kafka"),
	}, nil
}

// Consume blocks, rejoining the group after every rebalance, until ctx is
// done.
func (c *KafkaConsumer) Consume(ctx context.Context, handler Handler) error {
	c.handler = handler

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			err := c.group.Consume(ctx, []string{c.topic}, c)
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.group.Close()
}

func (c *KafkaConsumer) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (c *KafkaConsumer) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks undecodable messages so they are not redelivered, and
// leaves failed jobs unmarked.
func (c *KafkaConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var job domain.AnalysisJob
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			c.log.Warn("dropping undecodable job",
				zap.Int32("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			session.MarkMessage(msg, "")
			continue
		}

		if err := c.handler(session.Context(), job); err != nil {
			c.log.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}

		session.MarkMessage(msg, "")
	}
	return nil
}
