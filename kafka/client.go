package kafka

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
)

// broker is the subset of cluster access the source needs.
type broker interface {
	Partitions(ctx context.Context, topic string) ([]int, error)
	// Watermarks returns the first offset and the high watermark of a
	// partition.
	Watermarks(ctx context.Context, topic string, partition int) (first, last int64, err error)
	OpenPartition(topic string, partition int, offset int64) (messageReader, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// dialBroker reaches the cluster through a kafka-go Dialer, trying the
// configured brokers in order.
type dialBroker struct {
	cfg    Config
	dialer *kafkago.Dialer
}

func newDialBroker(cfg Config) (*dialBroker, error) {
	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, err
	}
	return &dialBroker{cfg: cfg, dialer: dialer}, nil
}

func (b *dialBroker) Partitions(ctx context.Context, topic string) ([]int, error) {
	var lastErr error
	for _, addr := range b.cfg.Brokers {
		parts, err := b.dialer.LookupPartitions(ctx, "tcp", addr, topic)
		if err != nil {
			lastErr = err
			continue
		}
		ids := make([]int, len(parts))
		for i, p := range parts {
			ids[i] = p.ID
		}
		return ids, nil
	}
	return nil, FromKafka(lastErr, "lookup partitions of "+topic)
}

func (b *dialBroker) Watermarks(ctx context.Context, topic string, partition int) (int64, int64, error) {
	var lastErr error
	for _, addr := range b.cfg.Brokers {
		conn, err := b.dialer.DialLeader(ctx, "tcp", addr, topic, partition)
		if err != nil {
			lastErr = err
			continue
		}
		first, last, err := conn.ReadOffsets()
		conn.Close()
		if err != nil {
			return 0, 0, FromKafka(err, fmt.Sprintf("read offsets of %s/%d", topic, partition))
		}
		return first, last, nil
	}
	return 0, 0, FromKafka(lastErr, fmt.Sprintf("dial leader of %s/%d", topic, partition))
}

func (b *dialBroker) OpenPartition(topic string, partition int, offset int64) (messageReader, error) {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   b.cfg.Brokers,
		Topic:     topic,
		Partition: partition,
		Dialer:    b.dialer,
		MinBytes:  1,
		MaxBytes:  10e6,
		MaxWait:   b.cfg.ReadWait,
	})
	if err := r.SetOffset(offset); err != nil {
		r.Close()
		return nil, FromKafka(err, fmt.Sprintf("seek %s/%d", topic, partition))
	}
	return r, nil
}

func newWriter(cfg Config, topic string) (*kafkago.Writer, error) {
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	codec, err := compressionCodec(cfg.Writer.Compression)
	if err != nil {
		return nil, err
	}
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		Transport:    transport,
		Compression:  codec,
		RequiredAcks: kafkago.RequiredAcks(cfg.Writer.RequiredAcks),
		BatchSize:    cfg.Writer.BatchSize,
		BatchTimeout: cfg.Writer.BatchTimeout,
		WriteTimeout: cfg.Writer.WriteTimeout,
	}, nil
}
