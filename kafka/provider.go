package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/security"
	"github.com/kbukum/flowkit/stream"
	"github.com/kbukum/flowkit/validation"
)

// ProviderID is the registry id of the Kafka provider.
const ProviderID = "kafka"

// Metadata keys set on items read from a topic.
const (
	MetaTopic     = "kafka_topic"
	MetaPartition = "kafka_partition"
	MetaOffset    = "kafka_offset"
	MetaKey       = "kafka_key"
	MetaTime      = "kafka_time"
	MetaHeaders   = "kafka_headers"
)

// Payload formats.
const (
	FormatJSON  = "json"
	FormatText  = "text"
	FormatBytes = "bytes"
)

type params struct {
	Brokers    []string `json:"brokers" validate:"required,min=1,dive,required"`
	Topic      string   `json:"topic" validate:"required"`
	Partitions []int    `json:"partitions" validate:"dive,gte=0"`
	Format     string   `json:"format" validate:"omitempty,oneof=json text bytes"`
	// KeyField names the payload field used as message key on write. Items
	// without it fall back to their kafka_key metadata.
	KeyField      string             `json:"key_field"`
	TLS           security.TLSConfig `json:"tls"`
	SASLMechanism string             `json:"sasl_mechanism"`
	Compression   string             `json:"compression"`
	RequiredAcks  int                `json:"required_acks"`
	BatchSize     int                `json:"batch_size" validate:"gte=0"`
}

func (p params) config(creds provider.Credentials) Config {
	cfg := Config{
		Brokers: p.Brokers,
		TLS:     p.TLS,
		SASL: SASL{
			Mechanism: p.SASLMechanism,
			Username:  creds.Get("username"),
			Password:  creds.Get("password"),
		},
		Writer: WriterConfig{
			Compression:  p.Compression,
			BatchSize:    p.BatchSize,
			RequiredAcks: p.RequiredAcks,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// Factory is the provider.Factory for "kafka". It does not contact the
// cluster; Init does.
func Factory(_ context.Context, creds provider.Credentials, raw map[string]any) (provider.Provider, error) {
	var p params
	if err := validation.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.Format == "" {
		p.Format = FormatJSON
	}
	cfg := p.config(creds)
	if err := cfg.Validate(); err != nil {
		return nil, errors.InvalidParams(err.Error())
	}
	b, err := newDialBroker(cfg)
	if err != nil {
		return nil, errors.InvalidParams(err.Error()).WithCause(err)
	}
	w, err := newWriter(cfg, p.Topic)
	if err != nil {
		return nil, errors.InvalidParams(err.Error()).WithCause(err)
	}
	return &kafkaProvider{params: p, broker: b, writer: w}, nil
}

// RegisterProviders adds the Kafka provider to reg.
func RegisterProviders(reg *provider.Registry) {
	reg.Register(ProviderID, Factory)
}

type kafkaProvider struct {
	params params
	broker broker
	writer messageWriter
}

func (p *kafkaProvider) Name() string { return ProviderID }

func (p *kafkaProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{ConcurrencySafe: true}
}

// Init checks that the topic exists and is reachable.
func (p *kafkaProvider) Init(ctx context.Context) error {
	_, err := p.partitions(ctx)
	return err
}

func (p *kafkaProvider) Close(context.Context) error {
	if err := p.writer.Close(); err != nil {
		return FromKafka(err, "close writer")
	}
	return nil
}

func (p *kafkaProvider) partitions(ctx context.Context) ([]int, error) {
	if len(p.params.Partitions) > 0 {
		return slices.Sorted(slices.Values(p.params.Partitions)), nil
	}
	parts, err := p.broker.Partitions(ctx, p.params.Topic)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, errors.NotFound("kafka topic", p.params.Topic)
	}
	slices.Sort(parts)
	return parts, nil
}

// span is the part of one partition a Read call covers.
type span struct {
	partition int
	end       int64
}

// Read reads every selected partition in ascending order, each from its
// resume position up to the high watermark observed when Read was called.
// Messages produced later are left for the next run.
func (p *kafkaProvider) Read(ctx context.Context, resume stream.Cursor) (pipeline.Iterator[stream.Item], error) {
	pos, err := parseCursor(resume)
	if err != nil {
		return nil, err
	}
	parts, err := p.partitions(ctx)
	if err != nil {
		return nil, err
	}
	spans := make([]span, 0, len(parts))
	for _, part := range parts {
		first, last, err := p.broker.Watermarks(ctx, p.params.Topic, part)
		if err != nil {
			return nil, err
		}
		if at, ok := pos[part]; !ok || at < first {
			pos[part] = first
		}
		spans = append(spans, span{partition: part, end: last})
	}
	it := &topicIter{p: p, pos: pos, spans: spans}
	return pipeline.FromFunc(it.next, it.close), nil
}

type topicIter struct {
	p      *kafkaProvider
	pos    positions
	spans  []span
	reader messageReader
}

func (it *topicIter) next(ctx context.Context) (stream.Item, bool, error) {
	for len(it.spans) > 0 {
		s := it.spans[0]
		if it.pos[s.partition] >= s.end {
			if err := it.closeReader(); err != nil {
				return stream.Item{}, false, err
			}
			it.spans = it.spans[1:]
			continue
		}
		if it.reader == nil {
			r, err := it.p.broker.OpenPartition(it.p.params.Topic, s.partition, it.pos[s.partition])
			if err != nil {
				return stream.Item{}, false, err
			}
			it.reader = r
		}
		msg, err := it.reader.ReadMessage(ctx)
		if err != nil {
			return stream.Item{}, false, FromKafka(err, fmt.Sprintf("read %s/%d", it.p.params.Topic, s.partition))
		}
		if msg.Offset >= s.end {
			it.pos[s.partition] = s.end
			continue
		}
		it.pos[s.partition] = msg.Offset + 1
		item, err := it.p.decode(msg)
		if err != nil {
			return stream.Item{}, false, err
		}
		item.Cursor = it.pos.cursor()
		return item, true, nil
	}
	return stream.Item{}, false, nil
}

func (it *topicIter) closeReader() error {
	if it.reader == nil {
		return nil
	}
	err := it.reader.Close()
	it.reader = nil
	if err != nil {
		return FromKafka(err, "close reader")
	}
	return nil
}

func (it *topicIter) close() error { return it.closeReader() }

func (p *kafkaProvider) decode(msg kafkago.Message) (stream.Item, error) {
	meta := map[string]any{
		MetaTopic:     msg.Topic,
		MetaPartition: msg.Partition,
		MetaOffset:    msg.Offset,
	}
	if len(msg.Key) > 0 {
		meta[MetaKey] = string(msg.Key)
	}
	if !msg.Time.IsZero() {
		meta[MetaTime] = msg.Time.UTC().Format(time.RFC3339Nano)
	}
	if len(msg.Headers) > 0 {
		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		meta[MetaHeaders] = headers
	}

	item := stream.Item{Metadata: meta}
	switch p.params.Format {
	case FormatText:
		item.Payload = string(msg.Value)
	case FormatBytes:
		item.Payload = msg.Value
	default:
		var payload any
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			return stream.Item{}, errors.MalformedItem("json message", msg.Value).
				WithDetail(MetaPartition, msg.Partition).
				WithDetail(MetaOffset, msg.Offset).
				WithCause(err)
		}
		item.Payload = payload
	}
	return item, nil
}

func (p *kafkaProvider) Write(ctx context.Context, items []stream.Item) error {
	msgs := make([]kafkago.Message, len(items))
	for i, item := range items {
		value, err := p.encode(item.Payload)
		if err != nil {
			return err.WithDetail("index", i)
		}
		msgs[i] = kafkago.Message{Key: p.key(item), Value: value}
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return FromKafka(err, "write "+p.params.Topic)
	}
	return nil
}

func (p *kafkaProvider) encode(payload any) ([]byte, *errors.AppError) {
	switch p.params.Format {
	case FormatText:
		s, ok := payload.(string)
		if !ok {
			return nil, errors.MalformedItem("text", payload)
		}
		return []byte(s), nil
	case FormatBytes:
		switch v := payload.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
		return nil, errors.MalformedItem("bytes", payload)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.MalformedItem("json-encodable", payload)
		}
		return data, nil
	}
}

func (p *kafkaProvider) key(item stream.Item) []byte {
	if p.params.KeyField != "" {
		if m, ok := item.Payload.(map[string]any); ok {
			if v, ok := m[p.params.KeyField]; ok && v != nil {
				return []byte(fmt.Sprint(v))
			}
		}
	}
	if k, ok := item.Meta(MetaKey); ok {
		if s, ok := k.(string); ok {
			return []byte(s)
		}
	}
	return nil
}
