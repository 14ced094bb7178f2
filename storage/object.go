package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/processor"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/stream"
)

// MetaKey is set on items read from an object store, next to the processor
// name, size, content_type and last_modified keys.
const MetaKey = "object_key"

// Payload formats.
const (
	FormatBytes = "bytes"
	FormatText  = "text"
	FormatJSON  = "json"
)

// Defaults for ObjectParams.
const (
	DefaultPageSize      = 500
	DefaultMaxObjectSize = int64(100 * 1024 * 1024) // 100 MB
)

// ObjectParams are the node params shared by every object store provider.
// Backends embed them with `json:",squash"`.
type ObjectParams struct {
	Prefix        string `json:"prefix"`
	Format        string `json:"format" validate:"omitempty,oneof=bytes text json"`
	PageSize      int    `json:"page_size" validate:"gte=0"`
	MaxObjectSize int64  `json:"max_object_size" validate:"gte=0"`
	// KeyField names the payload field that becomes the object name on
	// write. Without it the item's name metadata is used, and failing that a
	// random name with Extension appended.
	KeyField  string `json:"key_field"`
	Extension string `json:"extension"`
}

// ApplyDefaults fills in zero-valued fields.
func (p *ObjectParams) ApplyDefaults() {
	if p.Format == "" {
		p.Format = FormatBytes
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	if p.MaxObjectSize == 0 {
		p.MaxObjectSize = DefaultMaxObjectSize
	}
}

// Provider exposes a Storage as a flowkit source and sink.
type Provider struct {
	id      string
	storage Storage
	params  ObjectParams
}

// NewProvider wraps s under the registry id id.
func NewProvider(id string, s Storage, params ObjectParams) *Provider {
	params.ApplyDefaults()
	return &Provider{id: id, storage: s, params: params}
}

var (
	_ provider.Source = (*Provider)(nil)
	_ provider.Sink   = (*Provider)(nil)
)

func (p *Provider) Name() string { return p.id }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{ConcurrencySafe: true}
}

// Read lists objects under the prefix in key order starting strictly after
// resume, and downloads each one as it is pulled.
func (p *Provider) Read(_ context.Context, resume stream.Cursor) (pipeline.Iterator[stream.Item], error) {
	list := func(ctx context.Context, after string) ([]FileInfo, string, error) {
		page, err := p.storage.List(ctx, ListOptions{
			Prefix:     p.params.Prefix,
			StartAfter: after,
			MaxKeys:    p.params.PageSize,
		})
		if err != nil {
			return nil, "", err
		}
		if len(page) < p.params.PageSize {
			return page, "", nil
		}
		return page, page[len(page)-1].Path, nil
	}
	return pipeline.Map(pipeline.Paged(list, string(resume)), p.fetch), nil
}

func (p *Provider) fetch(ctx context.Context, fi FileInfo) (stream.Item, error) {
	if fi.Size > p.params.MaxObjectSize {
		return stream.Item{}, errors.Permanent("read "+fi.Path,
			fmt.Errorf("object is %d bytes, limit is %d", fi.Size, p.params.MaxObjectSize))
	}
	body, err := p.storage.Download(ctx, fi.Path)
	if err != nil {
		return stream.Item{}, err
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, p.params.MaxObjectSize+1))
	if err != nil {
		return stream.Item{}, errors.Transient("read "+fi.Path, err)
	}
	if int64(len(data)) > p.params.MaxObjectSize {
		return stream.Item{}, errors.Permanent("read "+fi.Path,
			fmt.Errorf("object exceeds the %d byte limit", p.params.MaxObjectSize))
	}

	contentType := fi.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(fi.Path))
	}
	meta := map[string]any{
		MetaKey:                   fi.Path,
		processor.MetaName:        strings.TrimPrefix(fi.Path, p.params.Prefix),
		processor.MetaSize:        int64(len(data)),
		processor.MetaContentType: contentType,
	}
	if !fi.LastModified.IsZero() {
		meta[processor.MetaLastModified] = fi.LastModified.UTC().Format(time.RFC3339)
	}

	item := stream.Item{Metadata: meta, Cursor: stream.Cursor(fi.Path)}
	switch p.params.Format {
	case FormatText:
		item.Payload = string(data)
	case FormatJSON:
		var payload any
		if err := json.Unmarshal(data, &payload); err != nil {
			return stream.Item{}, errors.MalformedItem("json object", data).
				WithDetail(MetaKey, fi.Path).WithCause(err)
		}
		item.Payload = payload
	default:
		item.Payload = data
	}
	return item, nil
}

// Write uploads one object per item. Writing an item with the same name
// again replaces the object, so a resumed run does not duplicate output.
func (p *Provider) Write(ctx context.Context, items []stream.Item) error {
	for i, item := range items {
		data, contentType, err := p.encode(item)
		if err != nil {
			return err.WithDetail("index", i)
		}
		key := p.params.Prefix + p.objectName(item)
		if err := p.storage.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) encode(item stream.Item) ([]byte, string, *errors.AppError) {
	contentType, _ := item.Metadata[processor.MetaContentType].(string)
	switch p.params.Format {
	case FormatJSON:
		data, err := json.Marshal(item.Payload)
		if err != nil {
			return nil, "", errors.MalformedItem("json-encodable", item.Payload)
		}
		return data, "application/json", nil
	case FormatText:
		s, ok := item.Payload.(string)
		if !ok {
			return nil, "", errors.MalformedItem("text", item.Payload)
		}
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
		}
		return []byte(s), contentType, nil
	default:
		switch v := item.Payload.(type) {
		case []byte:
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			return v, contentType, nil
		case string:
			if contentType == "" {
				contentType = "text/plain; charset=utf-8"
			}
			return []byte(v), contentType, nil
		}
		return nil, "", errors.MalformedItem("bytes", item.Payload)
	}
}

func (p *Provider) objectName(item stream.Item) string {
	if p.params.KeyField != "" {
		if m, ok := item.Payload.(map[string]any); ok {
			if v, ok := m[p.params.KeyField]; ok && v != nil {
				return fmt.Sprint(v) + p.params.Extension
			}
		}
	}
	if name, ok := item.Metadata[processor.MetaName].(string); ok && name != "" {
		return name
	}
	return uuid.NewString() + p.params.Extension
}
