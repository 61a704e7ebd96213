package kafka

import (
	"github.com/segmentio/kafka-go"
)

// NewWriter returns a writer that partitions by message key, so every message
// of one order lands on the same partition. Topics are set per message.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}
