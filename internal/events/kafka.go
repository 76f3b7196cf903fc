package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"visionline/internal/config"
	"visionline/internal/repo"
)

// KafkaPublisher produces every event to one topic, keyed by project id so a
// project's events stay ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: cfg.Topic}, nil
}

func (p *KafkaPublisher) Name() string { return "kafka:" + p.topic }

func (p *KafkaPublisher) Close() { p.client.Close() }

func (p *KafkaPublisher) Publish(ctx context.Context, evt repo.EventRecord) error {
	rec, err := kafkaRecord(p.topic, evt)
	if err != nil {
		return err
	}
	return p.client.ProduceSync(ctx, rec).FirstErr()
}

// EnsureTopic creates the topic with one partition when it does not exist yet.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func kafkaRecord(topic string, evt repo.EventRecord) (*kgo.Record, error) {
	value, err := json.Marshal(NewEnvelope(evt))
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(evt.ProjectID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "event_id", Value: []byte(evt.EventID)},
		},
	}, nil
}
