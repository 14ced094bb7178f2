package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/security"
	"github.com/kbukum/flowkit/stream"
	"github.com/kbukum/flowkit/validation"
)

// StreamProviderID is the registry id of the Redis stream provider.
const StreamProviderID = "redis-stream"

// MetaStreamID is the metadata key holding an entry's stream id.
const MetaStreamID = "redis_stream_id"

type streamParams struct {
	Addr   string `json:"addr" validate:"required"`
	DB     int    `json:"db" validate:"gte=0"`
	Stream string `json:"stream" validate:"required"`
	// Field holds the JSON-encoded payload. Entries without it are read as
	// a map of all their fields.
	Field string `json:"field"`
	// PageSize is the XRANGE COUNT.
	PageSize int64 `json:"page_size" validate:"gte=0"`
	// MaxLen trims the stream approximately on write. Zero keeps everything.
	MaxLen int64              `json:"max_len" validate:"gte=0"`
	TLS    security.TLSConfig `json:"tls"`
}

// StreamFactory is the provider.Factory for "redis-stream". Credentials may
// carry "username" and "password". Cursors are stream entry ids.
func StreamFactory(_ context.Context, creds provider.Credentials, params map[string]any) (provider.Provider, error) {
	var p streamParams
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	if p.Field == "" {
		p.Field = "payload"
	}
	if p.PageSize == 0 {
		p.PageSize = 100
	}
	client, err := New(Config{
		Enabled:  true,
		Addr:     p.Addr,
		DB:       p.DB,
		Username: creds.Get("username"),
		Password: creds.Get("password"),
		TLS:      p.TLS,
	}, nil)
	if err != nil {
		return nil, errors.InvalidParams(err.Error()).WithCause(err)
	}
	return &streamProvider{client: client, params: p}, nil
}

// RegisterProviders adds the Redis providers to reg.
func RegisterProviders(reg *provider.Registry) {
	reg.Register(StreamProviderID, StreamFactory)
}

type streamProvider struct {
	client *Client
	params streamParams
}

func (p *streamProvider) Name() string { return StreamProviderID }

func (p *streamProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{ConcurrencySafe: true}
}

func (p *streamProvider) Init(ctx context.Context) error { return p.client.Ping(ctx) }

func (p *streamProvider) Close(context.Context) error { return p.client.Close() }

func (p *streamProvider) Read(_ context.Context, resume stream.Cursor) (pipeline.Iterator[stream.Item], error) {
	start := "-"
	if !resume.IsZero() {
		next, err := nextID(string(resume))
		if err != nil {
			return nil, err
		}
		start = next
	}
	rdb := p.client.Unwrap()
	fetch := func(ctx context.Context, from string) ([]stream.Item, string, error) {
		msgs, err := rdb.XRangeN(ctx, p.params.Stream, from, "+", p.params.PageSize).Result()
		if err != nil {
			return nil, "", classify("xrange "+p.params.Stream, err)
		}
		items := make([]stream.Item, 0, len(msgs))
		for _, m := range msgs {
			item, err := p.decode(m)
			if err != nil {
				return nil, "", err
			}
			items = append(items, item)
		}
		if int64(len(msgs)) < p.params.PageSize {
			return items, "", nil
		}
		after, err := nextID(msgs[len(msgs)-1].ID)
		if err != nil {
			return nil, "", err
		}
		return items, after, nil
	}
	return pipeline.Paged(fetch, start), nil
}

func (p *streamProvider) decode(m goredis.XMessage) (stream.Item, error) {
	item := stream.Item{Cursor: stream.Cursor(m.ID)}
	meta := map[string]any{MetaStreamID: m.ID}
	raw, ok := m.Values[p.params.Field]
	if !ok {
		item.Payload = m.Values
		item.Metadata = meta
		return item, nil
	}
	s, _ := raw.(string)
	var payload any
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return stream.Item{}, errors.MalformedItem("json field "+p.params.Field, nil).
			WithDetail(MetaStreamID, m.ID).WithCause(err)
	}
	for k, v := range m.Values {
		if k != p.params.Field {
			meta[k] = v
		}
	}
	item.Payload = payload
	item.Metadata = meta
	return item, nil
}

func (p *streamProvider) Write(ctx context.Context, items []stream.Item) error {
	encoded := make([][]byte, len(items))
	for i, item := range items {
		data, err := json.Marshal(item.Payload)
		if err != nil {
			return errors.MalformedItem("json-encodable", item.Payload).WithDetail("index", i)
		}
		encoded[i] = data
	}
	_, err := p.client.Unwrap().Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, data := range encoded {
			args := &goredis.XAddArgs{
				Stream: p.params.Stream,
				Values: map[string]any{p.params.Field: string(data)},
			}
			if p.params.MaxLen > 0 {
				args.MaxLen = p.params.MaxLen
				args.Approx = true
			}
			pipe.XAdd(ctx, args)
		}
		return nil
	})
	return classify("xadd "+p.params.Stream, err)
}

// nextID returns the smallest stream id greater than id, so that XRANGE can
// start strictly after a cursor.
func nextID(id string) (string, error) {
	ms, seq, ok := strings.Cut(id, "-")
	if !ok {
		return "", errors.InvalidParams(fmt.Sprintf("redis stream cursor %q is not an entry id", id))
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return "", errors.InvalidParams(fmt.Sprintf("redis stream cursor %q is not an entry id", id))
	}
	if n == ^uint64(0) {
		t, err := strconv.ParseUint(ms, 10, 64)
		if err != nil {
			return "", errors.InvalidParams(fmt.Sprintf("redis stream cursor %q is not an entry id", id))
		}
		return strconv.FormatUint(t+1, 10) + "-0", nil
	}
	return ms + "-" + strconv.FormatUint(n+1, 10), nil
}
