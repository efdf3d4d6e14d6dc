package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"analyser-ml/internal/aggregator"
)

type Producer struct {
	client *kgo.Client
	topic  string
}

func NewProducer(client *kgo.Client, topic string) *Producer {
	return &Producer{client: client, topic: topic}
}

func (p *Producer) PublishVerdict(ctx context.Context, verdict aggregator.Verdict) error {
	data, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	record := &kgo.Record{
		Topic:     p.topic,
		Key:       []byte(verdict.SessionID),
		Value:     data,
		Timestamp: time.Now(),
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce verdict: %w", err)
	}
	return nil
}
