package processor

import (
	"context"
	"reflect"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/stream"
	"github.com/kbukum/flowkit/validation"
)

// Metadata keys set by the builtin transforms.
const (
	MetaIndex      = "index"
	MetaChunkIndex = "chunk_index"
	MetaChunkCount = "chunk_count"
	MetaBatchSize  = "batch_size"
)

func registerBuiltinTransforms(r *Registry) {
	r.RegisterTransform("identity", newIdentity)
	r.RegisterTransform("explode", newExplode)
	r.RegisterTransform("chunk", newChunk)
	r.RegisterTransform("batch", newBatch)
	r.RegisterTransform("set_metadata", newSetMetadata)
	r.RegisterTransform("filter", func(params map[string]any) (Transform, error) {
		return newFilter(r, params)
	})
}

func newIdentity(params map[string]any) (Transform, error) {
	if err := validation.Decode(params, &struct{}{}); err != nil {
		return nil, err
	}
	return TransformFunc(func(_ context.Context, item stream.Item, emit Emit) error {
		return emit(item)
	}), nil
}

// newExplode emits one item per element of a slice payload (fan-out). Byte
// slices are not exploded.
func newExplode(params map[string]any) (Transform, error) {
	if err := validation.Decode(params, &struct{}{}); err != nil {
		return nil, err
	}
	return TransformFunc(func(_ context.Context, item stream.Item, emit Emit) error {
		rv := reflect.ValueOf(item.Payload)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array || rv.Type().Elem().Kind() == reflect.Uint8 {
			return errors.MalformedItem("list", item.Payload)
		}
		for i := 0; i < rv.Len(); i++ {
			if err := emit(item.WithPayload(rv.Index(i).Interface()).WithMeta(MetaIndex, i)); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

type chunkParams struct {
	Size int    `json:"size" validate:"gt=0"`
	Unit string `json:"unit" validate:"omitempty,oneof=runes bytes"`
}

// newChunk splits string or byte payloads into pieces of at most size runes
// (default) or bytes. Rune chunks never split a UTF-8 sequence.
func newChunk(params map[string]any) (Transform, error) {
	var p chunkParams
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	return TransformFunc(func(_ context.Context, item stream.Item, emit Emit) error {
		var pieces []any
		switch v := item.Payload.(type) {
		case string:
			for _, s := range splitString(v, p.Size, p.Unit == "bytes") {
				pieces = append(pieces, s)
			}
		case []byte:
			for start := 0; start < len(v); start += p.Size {
				pieces = append(pieces, v[start:min(start+p.Size, len(v))])
			}
		default:
			return errors.MalformedItem("text or bytes", item.Payload)
		}
		for i, piece := range pieces {
			out := item.WithPayload(piece).WithMeta(MetaChunkIndex, i).WithMeta(MetaChunkCount, len(pieces))
			if err := emit(out); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

func splitString(s string, size int, byBytes bool) []string {
	var out []string
	for len(s) > 0 {
		n := len(s)
		if byBytes {
			n = min(size, len(s))
		} else {
			count := 0
			for i := range s {
				if count == size {
					n = i
					break
				}
				count++
			}
		}
		out = append(out, s[:n])
		s = s[n:]
	}
	return out
}

type batchParams struct {
	Size int `json:"size" validate:"gt=0"`
}

// batcher groups every size inputs into one item whose payload is the list
// of input payloads (fan-in). The emitted item keeps the cursor and metadata
// of the last input. A final partial batch is emitted by Flush.
type batcher struct {
	size    int
	pending []stream.Item
}

func newBatch(params map[string]any) (Transform, error) {
	var p batchParams
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	return &batcher{size: p.Size}, nil
}

func (b *batcher) Process(_ context.Context, item stream.Item, emit Emit) error {
	b.pending = append(b.pending, item)
	if len(b.pending) < b.size {
		return nil
	}
	return b.emit(emit)
}

func (b *batcher) Flush(_ context.Context, emit Emit) error {
	if len(b.pending) == 0 {
		return nil
	}
	return b.emit(emit)
}

func (b *batcher) emit(emit Emit) error {
	payloads := make([]any, len(b.pending))
	for i, it := range b.pending {
		payloads[i] = it.Payload
	}
	last := b.pending[len(b.pending)-1]
	b.pending = b.pending[:0]
	return emit(last.WithPayload(payloads).WithMeta(MetaBatchSize, len(payloads)))
}

func newSetMetadata(params map[string]any) (Transform, error) {
	var p struct {
		Values map[string]any `json:"values" validate:"required,min=1"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	return TransformFunc(func(_ context.Context, item stream.Item, emit Emit) error {
		out := item.WithPayload(item.Payload)
		if out.Metadata == nil {
			out.Metadata = make(map[string]any, len(p.Values))
		}
		for k, v := range p.Values {
			out.Metadata[k] = v
		}
		return emit(out)
	}), nil
}

// newFilter drops items for which the named predicate is false.
func newFilter(r *Registry, params map[string]any) (Transform, error) {
	var p struct {
		Predicate string         `json:"predicate" validate:"required"`
		Params    map[string]any `json:"params"`
	}
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	factory, err := r.Predicate(p.Predicate)
	if err != nil {
		return nil, err
	}
	pred, err := factory(p.Params)
	if err != nil {
		return nil, err
	}
	return TransformFunc(func(ctx context.Context, item stream.Item, emit Emit) error {
		keep, err := pred.Evaluate(ctx, item)
		if err != nil {
			return errors.PredicateFailed(p.Predicate, err)
		}
		if !keep {
			return nil
		}
		return emit(item)
	}), nil
}
