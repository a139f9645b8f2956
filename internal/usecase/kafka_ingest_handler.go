package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	pkgkafka "TasaPull/pkg/kafka"
	"TasaPull/pkg/logger"
)

// KafkaIngestHandler feeds messages from the ingestion topic into the push ingestor.
type KafkaIngestHandler struct {
	topic   string
	ingest  *PushIngestor
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewKafkaIngestHandler(topic string, ingest *PushIngestor, metrics domrepo.Metrics, log *logger.Logger) *KafkaIngestHandler {
	if metrics == nil {
		metrics = domrepo.NoopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaIngestHandler{topic: topic, ingest: ingest, metrics: metrics, log: log}
}

var _ pkgkafka.MessageHandler = (*KafkaIngestHandler)(nil)

func (h *KafkaIngestHandler) Topic() string { return h.topic }

// Handle decodes one message. Malformed payloads are structural errors, which the
// consumer does not retry.
func (h *KafkaIngestHandler) Handle(ctx context.Context, b []byte) error {
	var m IngestMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return models.Structural("kafka_ingest", "", "decode: %v", err)
	}
	res, err := h.ingest.Apply(ctx, m, "kafka")
	if err != nil {
		return err
	}
	h.log.Info("kafka message ingested",
		logger.String("tipo_tasa", m.TipoTasa),
		logger.String("kind", m.Kind),
		logger.String("key", pkgkafka.MessageKey(ctx)),
		logger.String("status", string(res.Status)),
		logger.String("message", res.Message),
	)
	return nil
}

// IsRetryableMessage reports whether a handler error may succeed on redelivery.
// Store outages and busy rate types are retried, unlike malformed payloads.
func IsRetryableMessage(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch models.KindOf(err) {
	case models.KindStructuralSource, models.KindConfiguration:
		return false
	default:
		return true
	}
}
