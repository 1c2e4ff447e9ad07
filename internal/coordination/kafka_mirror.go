package coordination

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"thoth/internal/config"
	"thoth/internal/logging"
)

// KafkaMirror publishes every post/mark_complete onto a Kafka topic, keyed
// by receiver, so the multi-agent orchestration framework (an external
// actor per §1) can subscribe instead of polling the shared block. This
// enriches the substrate's storage backend without changing the block's
// grammar or semantics (§4.7).
type KafkaMirror struct {
	w *kafka.Writer
}

// NewKafkaMirror constructs a Mirror from configuration, or nil if no
// brokers are configured (mirroring is optional).
func NewKafkaMirror(cfg config.KafkaConfig) *KafkaMirror {
	if cfg.Brokers == "" || cfg.Topic == "" {
		return nil
	}
	return &KafkaMirror{
		w: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (k *KafkaMirror) Publish(receiver string, m Message) {
	if k == nil || k.w == nil {
		return
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := k.w.WriteMessages(ctx, kafka.Message{Key: []byte(receiver), Value: payload}); err != nil {
		logging.Log.WithError(err).Warn("coordination: kafka mirror publish failed")
	}
}

func (k *KafkaMirror) Close() error {
	if k == nil || k.w == nil {
		return nil
	}
	return k.w.Close()
}
