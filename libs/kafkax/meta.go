package kafkax

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID     = "event_id"
	HeaderEventType   = "event_type"
	HeaderAggregateID = "aggregate_id"
)

// EventMeta travels in message headers so consumers can dedupe without
// decoding the payload.
type EventMeta struct {
	EventID     string
	EventType   string
	AggregateID string
}

// NewMessage builds a message on topic meta.EventType keyed by the aggregate,
// so events of one aggregate land on one partition in order. The trace
// context of ctx is injected into the headers.
func NewMessage(ctx context.Context, meta EventMeta, payload []byte) kafka.Message {
	msg := kafka.Message{
		Topic: meta.EventType,
		Key:   []byte(meta.AggregateID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(meta.EventID)},
			{Key: HeaderEventType, Value: []byte(meta.EventType)},
			{Key: HeaderAggregateID, Value: []byte(meta.AggregateID)},
		},
	}
	msg.Headers = InjectTraceHeaders(ctx, msg.Headers)
	return msg
}

// ExtractEventMeta falls back to the key and topic for producers that do
// not set headers.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:     HeaderValue(msg.Headers, HeaderEventID),
		EventType:   HeaderValue(msg.Headers, HeaderEventType),
		AggregateID: HeaderValue(msg.Headers, HeaderAggregateID),
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	if meta.AggregateID == "" {
		meta.AggregateID = string(msg.Key)
	}
	return meta
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
