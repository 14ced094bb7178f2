package kafka

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/security/tlstest"
	"github.com/kbukum/flowkit/stream"
)

// fakeBroker serves partitions from memory. Messages appended after a Read
// has captured its watermarks stay invisible to that Read.
type fakeBroker struct {
	topic  string
	logs   map[int][]kafkago.Message
	first  map[int]int64
	opened []string
}

func newFakeBroker(topic string) *fakeBroker {
	return &fakeBroker{topic: topic, logs: map[int][]kafkago.Message{}, first: map[int]int64{}}
}

func (b *fakeBroker) produce(partition int, values ...string) {
	for _, v := range values {
		off := b.first[partition] + int64(len(b.logs[partition]))
		b.logs[partition] = append(b.logs[partition], kafkago.Message{
			Topic: b.topic, Partition: partition, Offset: off, Value: []byte(v),
		})
	}
}

func (b *fakeBroker) Partitions(_ context.Context, topic string) ([]int, error) {
	if topic != b.topic {
		return nil, errors.Permanent("lookup", stderrors.New("unknown topic or partition"))
	}
	var ids []int
	for p := range b.logs {
		ids = append(ids, p)
	}
	return ids, nil
}

func (b *fakeBroker) Watermarks(_ context.Context, _ string, partition int) (int64, int64, error) {
	return b.first[partition], b.first[partition] + int64(len(b.logs[partition])), nil
}

func (b *fakeBroker) OpenPartition(_ string, partition int, offset int64) (messageReader, error) {
	b.opened = append(b.opened, fmt.Sprintf("%d@%d", partition, offset))
	idx := int(offset - b.first[partition])
	return &fakeReader{msgs: slices.Clone(b.logs[partition][idx:])}, nil
}

type fakeReader struct {
	msgs []kafkago.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafkago.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	msgs []kafkago.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestProvider(b broker, w messageWriter, p params) *kafkaProvider {
	if p.Topic == "" {
		p.Topic = "events"
	}
	if p.Format == "" {
		p.Format = FormatJSON
	}
	return &kafkaProvider{params: p, broker: b, writer: w}
}

func readAll(t *testing.T, src *kafkaProvider, resume stream.Cursor) []stream.Item {
	t.Helper()
	it, err := src.Read(context.Background(), resume)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer it.Close()
	items, err := pipeline.Collect(context.Background(), it)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return items
}

func cursors(items []stream.Item) []stream.Cursor {
	out := make([]stream.Cursor, len(items))
	for i, it := range items {
		out[i] = it.Cursor
	}
	return out
}

func TestRead_PartitionsInOrderUpToWatermark(t *testing.T) {
	b := newFakeBroker("events")
	b.produce(1, `{"n":3}`)
	b.produce(0, `{"n":1}`, `{"n":2}`)
	src := newTestProvider(b, &fakeWriter{}, params{})

	it, err := src.Read(context.Background(), "")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	b.produce(0, `{"n":99}`)
	items, err := pipeline.Collect(context.Background(), it)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	want := []stream.Cursor{"0:1,1:0", "0:2,1:0", "0:2,1:1"}
	if diff := cmp.Diff(want, cursors(items)); diff != "" {
		t.Fatalf("cursors mismatch (-want +got):\n%s", diff)
	}
	if got := items[2].Payload.(map[string]any)["n"]; got != float64(3) {
		t.Errorf("third payload n = %v, want 3", got)
	}
	if got := items[2].Metadata[MetaPartition]; got != 1 {
		t.Errorf("partition metadata = %v, want 1", got)
	}
}

func TestRead_ResumesEachPartition(t *testing.T) {
	b := newFakeBroker("events")
	b.produce(0, `"a"`, `"b"`, `"c"`)
	b.produce(1, `"x"`, `"y"`)
	src := newTestProvider(b, &fakeWriter{}, params{})

	items := readAll(t, src, "0:2,1:1")
	var got []any
	for _, it := range items {
		got = append(got, it.Payload)
	}
	if diff := cmp.Diff([]any{"c", "y"}, got); diff != "" {
		t.Fatalf("payloads mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"0@2", "1@1"}, b.opened); diff != "" {
		t.Errorf("opened mismatch (-want +got):\n%s", diff)
	}
	if last := items[len(items)-1].Cursor; last != "0:3,1:2" {
		t.Errorf("last cursor = %q", last)
	}

	if rest := readAll(t, src, "0:3,1:2"); len(rest) != 0 {
		t.Errorf("read %d items after the final cursor, want 0", len(rest))
	}
}

func TestRead_CursorBelowRetentionStartsAtFirstOffset(t *testing.T) {
	b := newFakeBroker("events")
	b.first[0] = 10
	b.produce(0, `1`, `2`)
	src := newTestProvider(b, &fakeWriter{}, params{})

	items := readAll(t, src, "0:4")
	if diff := cmp.Diff([]stream.Cursor{"0:11", "0:12"}, cursors(items)); diff != "" {
		t.Fatalf("cursors mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_SelectedPartitions(t *testing.T) {
	b := newFakeBroker("events")
	b.produce(0, `"a"`)
	b.produce(1, `"b"`)
	b.produce(2, `"c"`)
	src := newTestProvider(b, &fakeWriter{}, params{Partitions: []int{2, 0}})

	items := readAll(t, src, "")
	if diff := cmp.Diff([]stream.Cursor{"0:1,2:0", "0:1,2:1"}, cursors(items)); diff != "" {
		t.Fatalf("cursors mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_Formats(t *testing.T) {
	b := newFakeBroker("events")
	b.produce(0, `not json`)

	text := readAll(t, newTestProvider(b, &fakeWriter{}, params{Format: FormatText}), "")
	if text[0].Payload != "not json" {
		t.Errorf("text payload = %v", text[0].Payload)
	}
	raw := readAll(t, newTestProvider(b, &fakeWriter{}, params{Format: FormatBytes}), "")
	if got, ok := raw[0].Payload.([]byte); !ok || string(got) != "not json" {
		t.Errorf("bytes payload = %v", raw[0].Payload)
	}

	it, err := newTestProvider(b, &fakeWriter{}, params{}).Read(context.Background(), "")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer it.Close()
	if _, _, err := it.Next(context.Background()); !errors.HasCode(err, errors.ErrCodeMalformedItem) {
		t.Fatalf("Next on bad json: %v, want MALFORMED_ITEM", err)
	}
}

func TestRead_InvalidCursor(t *testing.T) {
	src := newTestProvider(newFakeBroker("events"), &fakeWriter{}, params{})
	for _, c := range []stream.Cursor{"x", "0:", "0:1,0:2", "-1:3", "1:-3", "0:1;1:2"} {
		if _, err := src.Read(context.Background(), c); !errors.HasCode(err, errors.ErrCodeInvalidParams) {
			t.Errorf("Read(%q) = %v, want INVALID_PARAMS", c, err)
		}
	}
}

func TestWrite_KeysAndEncoding(t *testing.T) {
	w := &fakeWriter{}
	sink := newTestProvider(newFakeBroker("events"), w, params{KeyField: "user"})

	items := []stream.Item{
		{Payload: map[string]any{"user": "u1", "n": 1}},
		{Payload: "plain", Metadata: map[string]any{MetaKey: "k2"}},
		{Payload: 3},
	}
	if err := sink.Write(context.Background(), items); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got [][2]string
	for _, m := range w.msgs {
		got = append(got, [2]string{string(m.Key), string(m.Value)})
	}
	want := [][2]string{
		{"u1", `{"n":1,"user":"u1"}`},
		{"k2", `"plain"`},
		{"", `3`},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_TextRejectsNonString(t *testing.T) {
	w := &fakeWriter{}
	sink := newTestProvider(newFakeBroker("events"), w, params{Format: FormatText})
	err := sink.Write(context.Background(), []stream.Item{{Payload: "ok"}, {Payload: 42}})
	if !errors.HasCode(err, errors.ErrCodeMalformedItem) {
		t.Fatalf("Write: %v, want MALFORMED_ITEM", err)
	}
	if len(w.msgs) != 0 {
		t.Errorf("wrote %d messages of a rejected batch", len(w.msgs))
	}
}

func TestWrite_ClassifiesBrokerErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"temporary protocol error", kafkago.NotEnoughReplicas, true},
		{"fatal protocol error", kafkago.TopicAuthorizationFailed, false},
		{"connection", stderrors.New("dial tcp 10.0.0.1:9092: connection refused"), true},
		{"too large", stderrors.New("message too large"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newTestProvider(newFakeBroker("events"), &fakeWriter{err: tt.err}, params{})
			err := sink.Write(context.Background(), []stream.Item{{Payload: 1}})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v (%v)", got, tt.retryable, err)
			}
		})
	}
}

func TestFromKafka_PassesThrough(t *testing.T) {
	if FromKafka(nil, "op") != nil {
		t.Error("nil error should stay nil")
	}
	if err := FromKafka(context.Canceled, "op"); !stderrors.Is(err, context.Canceled) {
		t.Errorf("canceled = %v", err)
	}
	app := errors.NotFound("kafka topic", "t")
	if err := FromKafka(app, "op"); err != error(app) {
		t.Errorf("app error was rewrapped: %v", err)
	}
}

func TestFactory(t *testing.T) {
	reg := provider.NewRegistry()
	RegisterProviders(reg)
	factory, err := reg.Resolve(ProviderID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	creds := provider.NewCredentials("kafka-prod", map[string]string{"username": "svc", "password": "pw"})
	p, err := factory(context.Background(), creds, map[string]any{
		"brokers":        []any{"localhost:9092"},
		"topic":          "events",
		"sasl_mechanism": "SCRAM-SHA-512",
		"compression":    "zstd",
	})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	kp := p.(*kafkaProvider)
	if kp.params.Format != FormatJSON {
		t.Errorf("default format = %q", kp.params.Format)
	}
	db := kp.broker.(*dialBroker)
	if db.dialer.SASLMechanism == nil {
		t.Error("dialer has no SASL mechanism")
	}
	if err := p.(provider.Closeable).Close(context.Background()); err != nil {
		t.Errorf("Close: %v", err)
	}

	bad := []map[string]any{
		{"topic": "events"},
		{"brokers": []any{"b:9092"}},
		{"brokers": []any{"b:9092"}, "topic": "t", "format": "xml"},
		{"brokers": []any{"b:9092"}, "topic": "t", "compression": "brotli"},
		{"brokers": []any{"b:9092"}, "topic": "t", "unknown": 1},
	}
	for _, params := range bad {
		if _, err := factory(context.Background(), provider.Credentials{}, params); !errors.HasCode(err, errors.ErrCodeInvalidParams) {
			t.Errorf("factory(%v) = %v, want INVALID_PARAMS", params, err)
		}
	}
	_, err = factory(context.Background(), creds, map[string]any{
		"brokers": []any{"b:9092"}, "topic": "t", "sasl_mechanism": "GSSAPI",
	})
	if !errors.HasCode(err, errors.ErrCodeInvalidParams) {
		t.Errorf("unsupported mechanism: %v, want INVALID_PARAMS", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"sasl user defaults to plain", func(c *Config) { c.SASL = SASL{Username: "svc"} }, false},
		{"unknown mechanism", func(c *Config) { c.SASL = SASL{Mechanism: "GSSAPI", Username: "svc"} }, true},
		{"bad acks", func(c *Config) { c.Writer.RequiredAcks = 2 }, true},
		{"bad compression", func(c *Config) { c.Writer.Compression = "brotli" }, true},
		{"no brokers", func(c *Config) { c.Brokers = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Brokers: []string{"localhost:9092"}}
			tt.mutate(&cfg)
			cfg.ApplyDefaults()
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFactory_TLS(t *testing.T) {
	certs := tlstest.Generate(t)
	p, err := Factory(context.Background(), provider.Credentials{}, map[string]any{
		"brokers": []any{"localhost:9093"},
		"topic":   "events",
		"tls":     map[string]any{"enabled": true, "ca_file": certs.CAFile, "server_name": "localhost"},
	})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	defer p.(provider.Closeable).Close(context.Background())

	tc := p.(*kafkaProvider).broker.(*dialBroker).dialer.TLS
	if tc == nil || tc.RootCAs == nil || tc.ServerName != "localhost" {
		t.Errorf("dialer TLS = %+v", tc)
	}

	_, err = Factory(context.Background(), provider.Credentials{}, map[string]any{
		"brokers": []any{"localhost:9093"},
		"topic":   "events",
		"tls":     map[string]any{"enabled": true, "cert_file": certs.CertFile},
	})
	if !errors.HasCode(err, errors.ErrCodeInvalidParams) {
		t.Errorf("cert without key: %v, want INVALID_PARAMS", err)
	}
}
