package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/stream"
	"github.com/kbukum/flowkit/validation"
)

// maxLineSize bounds a single JSON line.
const maxLineSize = 4 << 20

type jsonlParams struct {
	// Path of the file. Empty writes to stdout; sources require a path.
	Path string `json:"path"`
	// Envelope writes and reads {"payload","metadata","cursor"} objects
	// instead of bare payloads.
	Envelope bool `json:"envelope"`
}

// JSONLinesFactory is the provider.Factory for "jsonl": newline-delimited
// JSON files. As a source each line is one item and its cursor is the line
// number. As a sink each item becomes one line appended to the file.
func JSONLinesFactory(_ context.Context, _ Credentials, params map[string]any) (Provider, error) {
	var p jsonlParams
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	return &jsonlProvider{params: p}, nil
}

type jsonlProvider struct {
	params jsonlParams

	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

func (p *jsonlProvider) Name() string { return "jsonl" }

func (p *jsonlProvider) Capabilities() Capabilities {
	return Capabilities{ConcurrencySafe: true}
}

func (p *jsonlProvider) Read(_ context.Context, resume stream.Cursor) (pipeline.Iterator[stream.Item], error) {
	if p.params.Path == "" {
		return nil, errors.InvalidParams("jsonl source requires a path")
	}
	skip := 0
	if !resume.IsZero() {
		n, err := strconv.Atoi(string(resume))
		if err != nil || n < 0 {
			return nil, errors.InvalidParams("jsonl cursor must be a line number").
				WithDetail("cursor", string(resume))
		}
		skip = n
	}

	f, err := os.Open(p.params.Path)
	if err != nil {
		return nil, errors.Permanent("open "+p.params.Path, err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	next := func(ctx context.Context) (stream.Item, bool, error) {
		for sc.Scan() {
			line++
			if line <= skip || len(sc.Bytes()) == 0 {
				continue
			}
			item, err := p.decode(sc.Bytes())
			if err != nil {
				return stream.Item{}, false, errors.MalformedItem("json line", nil).
					WithDetail("line", line).WithCause(err)
			}
			item.Cursor = stream.Cursor(strconv.Itoa(line))
			return item, true, nil
		}
		if err := sc.Err(); err != nil {
			return stream.Item{}, false, errors.Permanent("read "+p.params.Path, err)
		}
		return stream.Item{}, false, nil
	}
	return pipeline.FromFunc(next, f.Close), nil
}

func (p *jsonlProvider) decode(line []byte) (stream.Item, error) {
	if p.params.Envelope {
		var item stream.Item
		err := json.Unmarshal(line, &item)
		return item, err
	}
	var payload any
	if err := json.Unmarshal(line, &payload); err != nil {
		return stream.Item{}, err
	}
	return stream.Item{Payload: payload}, nil
}

func (p *jsonlProvider) Write(_ context.Context, items []stream.Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.w == nil {
		var out io.Writer = os.Stdout
		if p.params.Path != "" {
			f, err := os.OpenFile(p.params.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return errors.Permanent("open "+p.params.Path, err)
			}
			p.file = f
			out = f
		}
		p.w = bufio.NewWriter(out)
	}

	enc := json.NewEncoder(p.w)
	for i, item := range items {
		var v any = item.Payload
		if p.params.Envelope {
			v = item
		}
		if enc.Encode(v) != nil {
			return errors.MalformedItem("json-encodable", item.Payload).
				WithDetail("index", i)
		}
	}
	if err := p.w.Flush(); err != nil {
		return errors.Transient("write "+p.params.Path, err)
	}
	return nil
}

func (p *jsonlProvider) Close(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file, p.w = nil, nil
	return err
}
