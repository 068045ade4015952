package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

type Conf struct {
	client *kgo.Client
}

func NewConf(brokers []string, clientID string) (*Conf, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &Conf{client: client}, nil
}

// Ping checks that at least one seed broker is reachable.
func (k *Conf) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

// ProduceMessage writes a single record and waits for the broker ack.
func (k *Conf) ProduceMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	if k == nil || k.client == nil {
		return errors.New("kafka is not configured")
	}
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce message to %s: %w", topic, err)
	}
	return nil
}

func (k *Conf) Close() {
	if k == nil || k.client == nil {
		return
	}
	k.client.Close()
}
